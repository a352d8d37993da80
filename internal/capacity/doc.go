// Package capacity provides pure Red Book frame arithmetic: converting track
// durations into CD frames, charging disc-mode gap overhead, and formatting
// frame offsets for cue sheets. It performs no I/O.
package capacity
