// Package compile assembles the per-item notes of a job into one book.
//
// Each item whose validation passed becomes a chapter in submission order.
// The book carries a scripture index and a thematic index mapping entries
// to chapter numbers, a source reference table that also lists items which
// failed earlier stages, and a report with word and verse counts. The
// compile timestamp is supplied by the caller so repeated runs produce the
// same markdown.
package compile
