// Package ir holds the value types that cross scheduler boundaries:
// callback arguments, callback targets and persisted table snapshots.
//
// ir imports nothing internal. Times are int64 ticks and floats never
// appear in callback arguments, so traces serialise deterministically.
package ir
