// Package timer runs delayed and periodic callbacks on a single goroutine
//
// Callbacks are keyed by name so they can be replaced or cancelled, and
// periodic callbacks are re-armed only after they return, which keeps each
// of them from overlapping with itself
package timer
