package capacity

import (
	"fmt"
	"math"
	"strings"
	"time"

	"chevelle/internal/services"
)

// Red Book audio addressing constants.
const (
	// FramesPerSecond is the CD-DA frame rate (1 frame = 1/75 second).
	FramesPerSecond = 75
	// BytesPerFrame is the size of one CD-DA frame of 44.1 kHz 16-bit stereo PCM.
	BytesPerFrame = 2352
	// TAOGapFrames is the mandatory 2-second inter-track gap charged per track
	// after the first when writing track-at-once.
	TAOGapFrames = 150

	// Frames74Min is the capacity of a 74-minute disc.
	Frames74Min = 333000
	// Frames80Min is the capacity of an 80-minute disc.
	Frames80Min = 360000
)

// Mode selects the disc write strategy.
type Mode string

const (
	// ModeDAO writes the disc as one continuous stream with no inter-track gaps.
	ModeDAO Mode = "dao"
	// ModeTAO writes tracks individually with a fixed 2-second gap between them.
	ModeTAO Mode = "tao"
)

// ParseMode converts a string into a known Mode.
func ParseMode(value string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case ModeDAO:
		return ModeDAO, true
	case ModeTAO:
		return ModeTAO, true
	default:
		return "", false
	}
}

// FramesOf converts an exact track duration into CD frames, rounding any
// partial frame up since it still occupies a full frame on disc.
func FramesOf(duration time.Duration) (int64, error) {
	if duration <= 0 {
		return 0, services.Wrap(services.ErrValidation, "capacity", "frames",
			fmt.Sprintf("track duration must be positive, got %s", duration), nil)
	}
	frames := int64(math.Ceil(duration.Seconds() * FramesPerSecond))
	if frames <= 0 {
		frames = 1
	}
	return frames, nil
}

// OverheadFrames returns the per-disc gap overhead for the given mode and
// track count. DAO discs carry none; TAO discs pay one gap per track after
// the first.
func OverheadFrames(mode Mode, trackCount int) int64 {
	if mode != ModeTAO || trackCount <= 1 {
		return 0
	}
	return TAOGapFrames * int64(trackCount-1)
}

// ForMinutes translates a disc capacity expressed in minutes into frames.
func ForMinutes(minutes float64) (int64, error) {
	if minutes <= 0 {
		return 0, services.Wrap(services.ErrConfiguration, "capacity", "for_minutes",
			fmt.Sprintf("disc capacity must be positive, got %.2f minutes", minutes), nil)
	}
	return int64(math.Floor(minutes * 60 * FramesPerSecond)), nil
}

// ValidateCapacity rejects capacity/mode combinations that cannot hold even a
// minimal session, such as a TAO disc smaller than one gap unit.
func ValidateCapacity(mode Mode, frames int64) error {
	if frames <= 0 {
		return services.Wrap(services.ErrConfiguration, "capacity", "validate",
			fmt.Sprintf("capacity must be positive, got %d frames", frames), nil)
	}
	if mode == ModeTAO && frames <= TAOGapFrames {
		return services.Wrap(services.ErrConfiguration, "capacity", "validate",
			fmt.Sprintf("capacity of %d frames cannot hold a TAO gap unit (%d frames)", frames, TAOGapFrames), nil)
	}
	return nil
}

// PayloadBytes returns the staged PCM payload size for a frame count.
func PayloadBytes(frames int64) int64 {
	return frames * BytesPerFrame
}

// MSF formats a frame offset as the MM:SS:FF notation used in cue sheets.
func MSF(frames int64) string {
	if frames < 0 {
		frames = 0
	}
	minutes := frames / (60 * FramesPerSecond)
	seconds := (frames / FramesPerSecond) % 60
	remainder := frames % FramesPerSecond
	return fmt.Sprintf("%02d:%02d:%02d", minutes, seconds, remainder)
}

// Duration converts a frame count back into wall-clock time.
func Duration(frames int64) time.Duration {
	return time.Duration(frames) * time.Second / FramesPerSecond
}
