// Package contracts defines the typed, versioned payload each pipeline stage
// writes to the checkpoint store, plus the shape checks that decide whether a
// stored payload is usable.
//
// A payload that fails Validate is treated exactly like a missing checkpoint:
// callers never see a partially decoded stage output.
package contracts
