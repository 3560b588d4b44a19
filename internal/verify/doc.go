// Package verify finds scripture citations in lecture transcripts and checks
// each one against the published reference source.
//
// Identification runs in three passes: deterministic patterns over the
// transcript text, then model-proposed references, then fuzzy matching of
// recitations no earlier pass covered. Every candidate passes through
// NewCitation, which rejects locators that do not fit the scripture.
//
// Verification resolves each distinct citation exactly once per batch. The
// verse cache is loaded at the start and saved at the end; misses go to an
// optional local verse server and then to the reference site, one request at
// a time with a delay between requests. A citation that cannot be confirmed
// is reported as unresolved and is never treated as verified.
package verify
