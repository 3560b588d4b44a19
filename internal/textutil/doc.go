// Package textutil provides text processing utilities for diacritic folding,
// fingerprinting, similarity, and filename sanitization.
//
// The primary use cases are:
//   - Folding transliterated text to plain lowercase ASCII for comparison
//   - Creating word or character-trigram fingerprints and comparing them with
//     cosine similarity (used by the fuzzy citation matcher)
//   - Detecting near-duplicate paragraphs in generated notes
//   - Turning titles into path segments for rendered output
package textutil
