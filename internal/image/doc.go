// Package image assembles staged PCM tracks into a single disc image and the
// cue sheet describing track boundaries. Assembly cross-checks every track's
// frame count against the disc plan; any disagreement means the bookkeeping
// upstream is wrong and the disc must not reach the burner.
package image
