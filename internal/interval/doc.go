// Package interval implements the busy/free interval algebra.
//
// All functions are pure: they never mutate their inputs and return freshly
// allocated slices. Intervals are half-open in spirit ([Start, End)), but two
// intervals that merely touch are merged into one.
package interval
