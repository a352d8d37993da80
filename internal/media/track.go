package media

import (
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"chevelle/internal/capacity"
)

// Track is one source audio file loaded for mastering. Immutable once loaded;
// owned by the session that loaded it.
type Track struct {
	// Index is the 1-based position in the global play order.
	Index int
	// SourcePath is the absolute path to the source audio file.
	SourcePath string
	// Title is the display title derived from the file name.
	Title string
	// Duration is the exact probed duration.
	Duration time.Duration
	// Frames is the duration expressed in CD frames.
	Frames int64
	// EstimatedBytes is the expected staged CD-DA payload size.
	EstimatedBytes int64
	// SampleFormat describes the source stream, e.g. "mp3 44100Hz 2ch".
	SampleFormat string
}

var titleCaser = cases.Title(language.Und, cases.NoLower)

// TitleFromPath derives a display title from a file name: the extension is
// dropped, separators become spaces, and all-lowercase stems are title-cased.
func TitleFromPath(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	stem = strings.NewReplacer("_", " ", ".", " ").Replace(stem)
	stem = strings.Join(strings.Fields(stem), " ")
	if stem == "" {
		return "Untitled"
	}
	if stem == strings.ToLower(stem) {
		return titleCaser.String(stem)
	}
	return stem
}

// NewTrack builds a Track from probe results, computing frame and payload
// accounting. The index is assigned later by the loader.
func NewTrack(path string, duration time.Duration, sampleFormat string) (Track, error) {
	frames, err := capacity.FramesOf(duration)
	if err != nil {
		return Track{}, err
	}
	return Track{
		SourcePath:     path,
		Title:          TitleFromPath(path),
		Duration:       duration,
		Frames:         frames,
		EstimatedBytes: capacity.PayloadBytes(frames),
		SampleFormat:   sampleFormat,
	}, nil
}

// TotalFrames sums the frame counts of the provided tracks.
func TotalFrames(tracks []Track) int64 {
	var total int64
	for _, track := range tracks {
		total += track.Frames
	}
	return total
}
