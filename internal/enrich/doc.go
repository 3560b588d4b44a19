// Package enrich turns a verified, chunked transcript into lecture notes.
//
// Each chunk is sent to the text generator with the verified verse data that
// falls inside it, so translations and purports come only from the reference
// source. Results are merged in chunk order. The package also provides the
// model-backed citation extractor used during reference identification.
package enrich
