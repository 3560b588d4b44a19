// Package chunker partitions long transcripts into bounded, contiguous chunks
// for enrichment and merges the per-chunk markdown back into one document.
//
// Sizes are estimated at 1.3 units per word. Break points between segments
// are scored from silence gaps, speaker changes, and citation starts, then
// accepted greedily while every chunk stays above the minimum size. Chunks
// still above the maximum are halved at the most balanced segment boundary.
package chunker
