package plan_test

import (
	"errors"
	"fmt"
	"testing"

	"chevelle/internal/capacity"
	"chevelle/internal/media"
	"chevelle/internal/plan"
	"chevelle/internal/services"
)

func tracksFromFrames(frames ...int64) []media.Track {
	tracks := make([]media.Track, 0, len(frames))
	for i, f := range frames {
		tracks = append(tracks, media.Track{
			Index:      i + 1,
			SourcePath: fmt.Sprintf("/music/%02d.mp3", i+1),
			Title:      fmt.Sprintf("Track %02d", i+1),
			Frames:     f,
			Duration:   capacity.Duration(f),
		})
	}
	return tracks
}

func TestBuildWorkedExample(t *testing.T) {
	// 300000+40000 overflows a 333000-frame disc, so the 40000-frame track
	// opens disc two and the 20000-frame track joins it.
	tracks := tracksFromFrames(300000, 40000, 20000)
	plans, err := plan.Build(tracks, 333000, capacity.ModeDAO)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(plans) != 2 {
		t.Fatalf("expected 2 discs, got %d", len(plans))
	}
	if plans[0].TrackCount() != 1 || plans[0].TotalFrames != 300000 {
		t.Fatalf("disc 1 wrong: %d tracks, %d frames", plans[0].TrackCount(), plans[0].TotalFrames)
	}
	if plans[1].TrackCount() != 2 || plans[1].TotalFrames != 60000 {
		t.Fatalf("disc 2 wrong: %d tracks, %d frames", plans[1].TrackCount(), plans[1].TotalFrames)
	}
}

func TestBuildPreservesOrderExactly(t *testing.T) {
	tracks := tracksFromFrames(100000, 120000, 90000, 140000, 50000, 60000, 200000)
	plans, err := plan.Build(tracks, 333000, capacity.ModeDAO)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	flat := plan.Flatten(plans)
	if len(flat) != len(tracks) {
		t.Fatalf("flattened %d tracks, want %d", len(flat), len(tracks))
	}
	for i := range tracks {
		if flat[i].Index != tracks[i].Index {
			t.Fatalf("position %d: got track %d, want %d", i, flat[i].Index, tracks[i].Index)
		}
	}
	for i, p := range plans {
		if p.Index != i+1 {
			t.Fatalf("disc indices not contiguous: plan %d has index %d", i, p.Index)
		}
	}
}

func TestBuildFirstFitProperty(t *testing.T) {
	// The first track of disc N+1 must not have fit on disc N.
	tracks := tracksFromFrames(150000, 100000, 120000, 80000, 90000, 50000)
	cap := int64(333000)
	plans, err := plan.Build(tracks, cap, capacity.ModeDAO)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	for i := 1; i < len(plans); i++ {
		prev := plans[i-1]
		next := plans[i].Tracks[0]
		if prev.TotalFrames+next.Frames <= cap {
			t.Fatalf("disc %d left room for track %d (%d+%d <= %d)",
				prev.Index, next.Index, prev.TotalFrames, next.Frames, cap)
		}
	}
}

func TestBuildExactFitIncluded(t *testing.T) {
	tracks := tracksFromFrames(200000, 133000)
	plans, err := plan.Build(tracks, 333000, capacity.ModeDAO)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(plans) != 1 {
		t.Fatalf("exact fit should stay on one disc, got %d", len(plans))
	}
	if plans[0].TotalFrames != 333000 {
		t.Fatalf("total = %d, want 333000", plans[0].TotalFrames)
	}
}

func TestBuildTAOChargesGaps(t *testing.T) {
	tracks := tracksFromFrames(10000, 20000, 30000)
	plans, err := plan.Build(tracks, 333000, capacity.ModeTAO)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(plans) != 1 {
		t.Fatalf("expected 1 disc, got %d", len(plans))
	}
	want := int64(10000 + 20000 + 30000 + 150*2)
	if plans[0].TotalFrames != want {
		t.Fatalf("TAO total = %d, want %d", plans[0].TotalFrames, want)
	}
}

func TestBuildTAOGapForcesSplit(t *testing.T) {
	// Two tracks fit in DAO but the TAO gap pushes them over.
	tracks := tracksFromFrames(200000, 133000)
	daoPlans, err := plan.Build(tracks, 333000, capacity.ModeDAO)
	if err != nil {
		t.Fatalf("DAO build failed: %v", err)
	}
	if len(daoPlans) != 1 {
		t.Fatalf("DAO should fit on one disc, got %d", len(daoPlans))
	}
	taoPlans, err := plan.Build(tracks, 333000, capacity.ModeTAO)
	if err != nil {
		t.Fatalf("TAO build failed: %v", err)
	}
	if len(taoPlans) != 2 {
		t.Fatalf("TAO gap should split to two discs, got %d", len(taoPlans))
	}
	if taoPlans[1].TotalFrames != 133000 {
		t.Fatalf("second disc resets overhead: got %d frames", taoPlans[1].TotalFrames)
	}
}

func TestBuildOversizedTrackFails(t *testing.T) {
	tracks := tracksFromFrames(100000, 400000, 50000)
	_, err := plan.Build(tracks, 333000, capacity.ModeDAO)
	if !errors.Is(err, services.ErrCapacity) {
		t.Fatalf("expected capacity error, got %v", err)
	}
}

func TestBuildEmptyInput(t *testing.T) {
	plans, err := plan.Build(nil, 333000, capacity.ModeDAO)
	if err != nil {
		t.Fatalf("empty input should not error: %v", err)
	}
	if len(plans) != 0 {
		t.Fatalf("expected zero plans, got %d", len(plans))
	}
}

func TestBuildRejectsBadCapacity(t *testing.T) {
	tracks := tracksFromFrames(1000)
	if _, err := plan.Build(tracks, 0, capacity.ModeDAO); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if _, err := plan.Build(tracks, capacity.TAOGapFrames, capacity.ModeTAO); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error for tiny TAO capacity, got %v", err)
	}
}

func TestDiscLabelWidths(t *testing.T) {
	cases := []struct {
		index, total int
		want         string
	}{
		{1, 2, "CD_01"},
		{12, 99, "CD_12"},
		{5, 120, "CD_005"},
		{1000, 1200, "CD_1000"},
	}
	for _, tc := range cases {
		if got := plan.DiscLabel(tc.index, tc.total); got != tc.want {
			t.Fatalf("DiscLabel(%d, %d) = %q, want %q", tc.index, tc.total, got, tc.want)
		}
	}
}
