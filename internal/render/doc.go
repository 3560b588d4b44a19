// Package render writes the compiled book to disk.
//
// Two formats are supported: markdown with a YAML front matter block, and
// the full compile payload as indented JSON. Files land in a per-job
// directory under the configured output root and are written atomically.
package render
