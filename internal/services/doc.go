// Package services defines shared error and context utilities consumed by the
// pipeline stages, the job supervisor, and the external collaborator adapters.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, item indexes, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper, and the stable cause codes
//     that the job API reports instead of raw internal errors.
//
// Use these helpers when wiring new stage logic so failure classification stays
// uniform across the pipeline.
package services
