package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"chevelle/internal/logging"
)

// pathExecutor replies with a canned ffprobe payload per source path.
type pathExecutor struct {
	payloads map[string]string
}

func (p *pathExecutor) Output(_ context.Context, _ string, args []string) ([]byte, error) {
	path := args[len(args)-1]
	payload, ok := p.payloads[path]
	if !ok {
		return nil, errors.New("no such file")
	}
	return []byte(payload), nil
}

func audioPayload(seconds float64) string {
	return fmt.Sprintf(`{"streams": [{"codec_type": "audio", "codec_name": "flac", "duration": "%f", "sample_rate": "44100", "channels": 2}], "format": {}}`, seconds)
}

func newTestLoader(payloads map[string]string) *Loader {
	prober := NewProber("ffprobe", WithExecutor(&pathExecutor{payloads: payloads}))
	return NewLoader(prober, logging.NewNop())
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadPreservesOrderAndAssignsIndexes(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "b_side.flac")
	second := filepath.Join(dir, "a_side.flac")
	touch(t, first)
	touch(t, second)

	loader := newTestLoader(map[string]string{
		first:  audioPayload(10),
		second: audioPayload(20),
	})

	tracks, err := loader.Load(context.Background(), []string{first, second})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(tracks))
	}
	// Explicit file arguments keep the caller's order, even when it is not
	// alphabetical.
	if tracks[0].SourcePath != first || tracks[1].SourcePath != second {
		t.Fatalf("track order changed: %q then %q", tracks[0].SourcePath, tracks[1].SourcePath)
	}
	if tracks[0].Index != 1 || tracks[1].Index != 2 {
		t.Fatalf("expected indexes 1,2 got %d,%d", tracks[0].Index, tracks[1].Index)
	}
	if tracks[0].Frames != 750 || tracks[1].Frames != 1500 {
		t.Fatalf("unexpected frame counts: %d, %d", tracks[0].Frames, tracks[1].Frames)
	}
}

func TestLoadSkipsUnreadableSources(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.flac")
	bad := filepath.Join(dir, "bad.flac")
	touch(t, good)
	touch(t, bad)

	loader := newTestLoader(map[string]string{good: audioPayload(5)})

	tracks, err := loader.Load(context.Background(), []string{bad, good})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(tracks) != 1 {
		t.Fatalf("expected the unreadable source to be skipped, got %d tracks", len(tracks))
	}
	if tracks[0].SourcePath != good || tracks[0].Index != 1 {
		t.Fatalf("surviving track should be re-indexed from 1: %+v", tracks[0])
	}
}

func TestLoadExpandsDirectoriesSorted(t *testing.T) {
	dir := t.TempDir()
	names := []string{"02_second.flac", "01_first.flac", "notes.txt", "03_third.ogg"}
	payloads := make(map[string]string)
	for _, name := range names {
		path := filepath.Join(dir, name)
		touch(t, path)
		payloads[path] = audioPayload(5)
	}

	loader := newTestLoader(payloads)

	tracks, err := loader.Load(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(tracks) != 3 {
		t.Fatalf("expected 3 audio tracks, got %d", len(tracks))
	}
	want := []string{"01 First", "02 Second", "03 Third"}
	for i, title := range want {
		if tracks[i].Title != title {
			t.Fatalf("track %d title = %q, want %q", i, tracks[i].Title, title)
		}
	}
}

func TestLoadMissingPathIsSkippedWithWarning(t *testing.T) {
	loader := newTestLoader(nil)

	tracks, err := loader.Load(context.Background(), []string{"/does/not/exist.flac"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(tracks) != 0 {
		t.Fatalf("expected no tracks, got %d", len(tracks))
	}
}

func TestLoadHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	loader := newTestLoader(nil)
	if _, err := loader.Load(ctx, []string{"/music/song.flac"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}
