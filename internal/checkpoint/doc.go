// Package checkpoint persists immutable, versioned stage outputs keyed by
// (job, item, stage).
//
// Each key maps to one JSON envelope under <root>/<job_id>/, written through a
// temp file and rename so readers see either nothing or a complete payload.
// Writers to one job serialize through an in-process mutex plus a flock on the
// job directory, and every Put checks that the stage's prerequisites are
// already stored and valid. Envelopes that fail to decode or validate read
// back as ErrMissing.
package checkpoint
