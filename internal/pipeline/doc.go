// Package pipeline drives one job through the fixed stage sequence.
//
// Items move through Download, Transcribe, Enrich, and Validate on their own,
// bounded by pipeline.item_concurrency. A failing item is recorded and the
// rest continue. Once every item is terminal, the items whose validation
// passed are compiled into one book, which is then rendered. Every stage
// output is written to the checkpoint store before the item advances, so a
// later run can resume from any stage whose prerequisites are on disk.
package pipeline
