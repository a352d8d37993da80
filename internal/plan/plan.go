package plan

import (
	"fmt"

	"chevelle/internal/capacity"
	"chevelle/internal/media"
	"chevelle/internal/services"
)

// DiscPlan assigns an ordered run of tracks to one physical disc. Plans are
// immutable once built; runtime state lives on the BurnJob that executes them.
type DiscPlan struct {
	// Index is the 1-based disc number; burn order follows it.
	Index int
	// Tracks in play order, a contiguous slice of the global sequence.
	Tracks []media.Track
	// TotalFrames is the sum of track frames plus mode overhead.
	TotalFrames int64
	// Mode is the write mode the plan was computed for.
	Mode capacity.Mode
}

// TrackCount returns the number of tracks on the disc.
func (p DiscPlan) TrackCount() int {
	return len(p.Tracks)
}

// Duration returns the audible length of the disc.
func (p DiscPlan) Duration() string {
	return capacity.MSF(p.TotalFrames)
}

// Build partitions tracks across the minimum number of discs a first-fit
// in-order walk yields, never reordering: preserving the author's play
// sequence outranks squeezing out a disc. Each disc is filled until the next
// track (plus any TAO gap) would overflow capacityFrames; a track that fits
// exactly to the last frame is included. A single track that cannot fit on an
// empty disc fails the whole plan since tracks are never split.
func Build(tracks []media.Track, capacityFrames int64, mode capacity.Mode) ([]DiscPlan, error) {
	if err := capacity.ValidateCapacity(mode, capacityFrames); err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, nil
	}

	var plans []DiscPlan
	var current []media.Track
	var runningFrames int64

	closeDisc := func() {
		if len(current) == 0 {
			return
		}
		plans = append(plans, DiscPlan{
			Index:       len(plans) + 1,
			Tracks:      current,
			TotalFrames: runningFrames,
			Mode:        mode,
		})
		current = nil
		runningFrames = 0
	}

	for _, track := range tracks {
		if track.Frames <= 0 {
			return nil, services.Wrap(services.ErrValidation, "planner", "build",
				fmt.Sprintf("track %d %q has no frames", track.Index, track.Title), nil)
		}
		if track.Frames > capacityFrames {
			return nil, services.Wrap(services.ErrCapacity, "planner", "build",
				fmt.Sprintf("track %d %q needs %d frames but a disc holds %d",
					track.Index, track.Title, track.Frames, capacityFrames), nil)
		}

		var gap int64
		if mode == capacity.ModeTAO && len(current) > 0 {
			gap = capacity.TAOGapFrames
		}
		if runningFrames+gap+track.Frames <= capacityFrames {
			runningFrames += gap + track.Frames
			current = append(current, track)
			continue
		}
		closeDisc()
		runningFrames = track.Frames
		current = append(current, track)
	}
	closeDisc()

	return plans, nil
}

// Flatten returns the tracks of all plans concatenated in disc order.
func Flatten(plans []DiscPlan) []media.Track {
	var out []media.Track
	for _, p := range plans {
		out = append(out, p.Tracks...)
	}
	return out
}

// DiscLabel names a disc's staging folder, widening the index padding with
// the session size (CD_01 ... CD_007).
func DiscLabel(index, totalDiscs int) string {
	digits := 2
	switch {
	case totalDiscs >= 1000:
		digits = 4
	case totalDiscs >= 100:
		digits = 3
	}
	return fmt.Sprintf("CD_%0*d", digits, index)
}
