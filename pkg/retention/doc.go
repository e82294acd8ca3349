// Package retention bounds the history kept in a bucket store.
//
// Captures are often replayed long after they were recorded, so the window
// is measured back from the newest stored second rather than from the wall
// clock: with a 24h window, everything more than a day older than the last
// ingested bucket is removed, whenever the capture was taken.
package retention
