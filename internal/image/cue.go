package image

import (
	"fmt"
	"os"
	"strings"

	"chevelle/internal/capacity"
)

// taoPregap is the standard 2-second pause a track-at-once writer places
// before every track after the first.
const taoPregap = "00:02:00"

// writeCueSheet renders a cue sheet for one image. Offsets address the image
// payload; for track-at-once discs the writer inserts the pregap itself, so
// the cue declares it rather than padding the file.
func writeCueSheet(path, imageName string, mode capacity.Mode, tracks []CueTrack) error {
	var b strings.Builder
	fmt.Fprintf(&b, "FILE %q BINARY\n", imageName)
	for _, track := range tracks {
		fmt.Fprintf(&b, "  TRACK %02d AUDIO\n", track.Number)
		if title := sanitizeCueString(track.Title); title != "" {
			fmt.Fprintf(&b, "    TITLE %q\n", title)
		}
		if mode == capacity.ModeTAO && track.Number > 1 {
			fmt.Fprintf(&b, "    PREGAP %s\n", taoPregap)
		}
		fmt.Fprintf(&b, "    INDEX 01 %s\n", capacity.MSF(track.OffsetFrames))
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// sanitizeCueString strips characters that break cue parsing.
func sanitizeCueString(value string) string {
	value = strings.TrimSpace(value)
	replacer := strings.NewReplacer(`"`, "'", "\n", " ", "\r", " ")
	return replacer.Replace(value)
}
