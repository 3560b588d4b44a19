// Package validation computes the post-hoc quality report for one lecture.
//
// Checks are rule based and deterministic. Transcript checks catch recognizer
// failures (looping output, silence transcribed as a few words, large gaps);
// enrichment checks catch weak verification and generated notes that drift
// from the verified verse data. Critical findings fail the report and block
// compilation of the item; warnings are recorded and logged only.
package validation
