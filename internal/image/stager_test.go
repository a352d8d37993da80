package image_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"chevelle/internal/capacity"
	"chevelle/internal/encode"
	"chevelle/internal/image"
	"chevelle/internal/media"
	"chevelle/internal/plan"
	"chevelle/internal/services"
)

// stageFixture writes fake PCM files and returns a matching plan and staged
// track list. Each track's payload is filled with its track number so the
// concatenation order is visible in the image bytes.
func stageFixture(t *testing.T, mode capacity.Mode, frames ...int64) (plan.DiscPlan, []encode.StagedTrack) {
	t.Helper()
	dir := t.TempDir()
	var (
		tracks []media.Track
		staged []encode.StagedTrack
		total  int64
	)
	for i, f := range frames {
		track := media.Track{
			Index:  i + 1,
			Title:  fmt.Sprintf("Track %02d", i+1),
			Frames: f,
		}
		tracks = append(tracks, track)

		path := filepath.Join(dir, fmt.Sprintf("track_%02d.pcm", i+1))
		payload := make([]byte, f*capacity.BytesPerFrame)
		for j := range payload {
			payload[j] = byte(i + 1)
		}
		if err := os.WriteFile(path, payload, 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
		staged = append(staged, encode.StagedTrack{
			Track:  track,
			Path:   path,
			Frames: f,
			Bytes:  int64(len(payload)),
		})
		if i > 0 && mode == capacity.ModeTAO {
			total += capacity.TAOGapFrames
		}
		total += f
	}
	return plan.DiscPlan{Index: 1, Tracks: tracks, TotalFrames: total, Mode: mode}, staged
}

func TestAssembleConcatenatesInOrder(t *testing.T) {
	discPlan, staged := stageFixture(t, capacity.ModeDAO, 2, 3)
	img, err := image.NewStager(nil).Assemble(context.Background(), discPlan, staged, t.TempDir())
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if img.Frames != 5 {
		t.Fatalf("frames = %d, want 5", img.Frames)
	}
	payload, err := os.ReadFile(img.ImagePath)
	if err != nil {
		t.Fatalf("read image: %v", err)
	}
	if int64(len(payload)) != 5*capacity.BytesPerFrame {
		t.Fatalf("image size = %d", len(payload))
	}
	if payload[0] != 1 || payload[2*capacity.BytesPerFrame] != 2 {
		t.Fatal("tracks concatenated out of order")
	}
}

func TestAssembleCueOffsets(t *testing.T) {
	discPlan, staged := stageFixture(t, capacity.ModeDAO, 75, 150)
	img, err := image.NewStager(nil).Assemble(context.Background(), discPlan, staged, t.TempDir())
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	cue, err := os.ReadFile(img.CuePath)
	if err != nil {
		t.Fatalf("read cue: %v", err)
	}
	text := string(cue)
	for _, want := range []string{
		"TRACK 01 AUDIO",
		"INDEX 01 00:00:00",
		"TRACK 02 AUDIO",
		"INDEX 01 00:01:00",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("cue missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "PREGAP") {
		t.Fatal("DAO cue must not declare pregaps")
	}
}

func TestAssembleTAOPregap(t *testing.T) {
	discPlan, staged := stageFixture(t, capacity.ModeTAO, 75, 75, 75)
	img, err := image.NewStager(nil).Assemble(context.Background(), discPlan, staged, t.TempDir())
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	cue, err := os.ReadFile(img.CuePath)
	if err != nil {
		t.Fatalf("read cue: %v", err)
	}
	if got := strings.Count(string(cue), "PREGAP 00:02:00"); got != 2 {
		t.Fatalf("expected 2 pregaps, found %d:\n%s", got, cue)
	}
	// Gaps live on the disc, not in the payload.
	if img.Frames != 225 {
		t.Fatalf("payload frames = %d, want 225", img.Frames)
	}
}

func TestAssembleRejectsFrameMismatch(t *testing.T) {
	discPlan, staged := stageFixture(t, capacity.ModeDAO, 10, 20)
	staged[1].Frames = 19
	_, err := image.NewStager(nil).Assemble(context.Background(), discPlan, staged, t.TempDir())
	if !errors.Is(err, services.ErrStaging) {
		t.Fatalf("expected staging error, got %v", err)
	}
	if services.Retryable(err) {
		t.Fatal("staging errors are always fatal")
	}
}

func TestAssembleRejectsCountMismatch(t *testing.T) {
	discPlan, staged := stageFixture(t, capacity.ModeDAO, 10, 20)
	_, err := image.NewStager(nil).Assemble(context.Background(), discPlan, staged[:1], t.TempDir())
	if !errors.Is(err, services.ErrStaging) {
		t.Fatalf("expected staging error, got %v", err)
	}
}

func TestAssembleRejectsShortFile(t *testing.T) {
	discPlan, staged := stageFixture(t, capacity.ModeDAO, 10)
	if err := os.Truncate(staged[0].Path, 100); err != nil {
		t.Fatalf("truncate fixture: %v", err)
	}
	dest := t.TempDir()
	_, err := image.NewStager(nil).Assemble(context.Background(), discPlan, staged, dest)
	if !errors.Is(err, services.ErrStaging) {
		t.Fatalf("expected staging error, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dest, filepath.Base(dest)+".img")); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatal("partial image should be removed")
	}
}
