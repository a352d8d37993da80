// Package burn drives wodim to write staged audio to disc and read the
// table of contents back for verification. Access to the burner device is
// serialized through an advisory file lock so two sessions cannot interleave
// writes to the same drive.
package burn
