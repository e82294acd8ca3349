// Package aggregate folds endpoint events into per-second series.
//
// Each event is added to a bucket for its endpoint key and to a global
// bucket, keyed by direction and second. Finalize walks every second of
// the observed range, so gaps come out as zero rows, and computes a
// running average per slot of a 60 second circular window.
package aggregate
