// Package stage defines the ordered pipeline stages and the legal
// transitions between them.
package stage
