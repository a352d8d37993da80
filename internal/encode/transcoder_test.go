package encode_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"chevelle/internal/capacity"
	"chevelle/internal/config"
	"chevelle/internal/encode"
	"chevelle/internal/media"
	"chevelle/internal/plan"
	"chevelle/internal/services"
)

// stubExecutor fabricates ffmpeg output files instead of running ffmpeg.
type stubExecutor struct {
	mu         sync.Mutex
	bytesFor   map[string]int64
	failFor    map[string]error
	active     atomic.Int32
	maxActive  atomic.Int32
	calls      atomic.Int32
	defaultFit bool
}

func newStubExecutor() *stubExecutor {
	return &stubExecutor{
		bytesFor:   map[string]int64{},
		failFor:    map[string]error{},
		defaultFit: true,
	}
}

func (s *stubExecutor) Run(ctx context.Context, binary string, args []string) error {
	s.calls.Add(1)
	active := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		prev := s.maxActive.Load()
		if active <= prev || s.maxActive.CompareAndSwap(prev, active) {
			break
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	source, dest := "", ""
	for i, arg := range args {
		if arg == "-i" && i+1 < len(args) {
			source = args[i+1]
		}
	}
	dest = args[len(args)-1]

	s.mu.Lock()
	err := s.failFor[source]
	size, sized := s.bytesFor[source]
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if !sized && !s.defaultFit {
		return fmt.Errorf("no size configured for %s", source)
	}
	return os.WriteFile(dest, make([]byte, size), 0o644)
}

func testConfig(workers int) *config.Config {
	cfg := config.Default()
	cfg.Encoding.MaxConcurrent = workers
	return &cfg
}

func sourceTrack(index int, frames int64) media.Track {
	return media.Track{
		Index:      index,
		SourcePath: fmt.Sprintf("/music/%02d.flac", index),
		Title:      fmt.Sprintf("Track %02d", index),
		Frames:     frames,
	}
}

func TestTranscodeTrackPadsToFrameBoundary(t *testing.T) {
	stub := newStubExecutor()
	track := sourceTrack(1, 100)
	// One byte short of a full frame on the last frame.
	stub.bytesFor[track.SourcePath] = 100*capacity.BytesPerFrame - 1

	tc := encode.New(testConfig(1), nil, encode.WithExecutor(stub))
	dest := filepath.Join(t.TempDir(), "track_01.pcm")
	staged, err := tc.TranscodeTrack(context.Background(), track, dest)
	if err != nil {
		t.Fatalf("TranscodeTrack failed: %v", err)
	}
	if staged.Frames != 100 {
		t.Fatalf("frames = %d, want 100", staged.Frames)
	}
	info, err := os.Stat(dest)
	if err != nil {
		t.Fatalf("stat output: %v", err)
	}
	if info.Size() != 100*capacity.BytesPerFrame {
		t.Fatalf("size = %d, want %d", info.Size(), 100*capacity.BytesPerFrame)
	}
	if staged.Checksum == "" {
		t.Fatal("expected checksum")
	}
}

func TestTranscodeTrackTrimsOneFrameDrift(t *testing.T) {
	stub := newStubExecutor()
	track := sourceTrack(1, 100)
	stub.bytesFor[track.SourcePath] = 101 * capacity.BytesPerFrame

	tc := encode.New(testConfig(1), nil, encode.WithExecutor(stub))
	dest := filepath.Join(t.TempDir(), "track_01.pcm")
	staged, err := tc.TranscodeTrack(context.Background(), track, dest)
	if err != nil {
		t.Fatalf("TranscodeTrack failed: %v", err)
	}
	if staged.Bytes != 100*capacity.BytesPerFrame {
		t.Fatalf("bytes = %d, want planned size", staged.Bytes)
	}
}

func TestTranscodeTrackRejectsLargeDrift(t *testing.T) {
	stub := newStubExecutor()
	track := sourceTrack(1, 100)
	stub.bytesFor[track.SourcePath] = 110 * capacity.BytesPerFrame

	tc := encode.New(testConfig(1), nil, encode.WithExecutor(stub))
	dest := filepath.Join(t.TempDir(), "track_01.pcm")
	if _, err := tc.TranscodeTrack(context.Background(), track, dest); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if _, err := os.Stat(dest); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("rejected output should be removed")
	}
}

func TestTranscodeTrackToolFailure(t *testing.T) {
	stub := newStubExecutor()
	track := sourceTrack(1, 100)
	stub.failFor[track.SourcePath] = errors.New("exit status 1: decode error")

	tc := encode.New(testConfig(1), nil, encode.WithExecutor(stub))
	dest := filepath.Join(t.TempDir(), "track_01.pcm")
	_, err := tc.TranscodeTrack(context.Background(), track, dest)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !services.Retryable(err) {
		t.Fatal("transcode failures should be retryable")
	}
}

func TestStageDiscKeepsPlanOrder(t *testing.T) {
	stub := newStubExecutor()
	tracks := []media.Track{sourceTrack(1, 10), sourceTrack(2, 20), sourceTrack(3, 30)}
	for _, track := range tracks {
		stub.bytesFor[track.SourcePath] = track.Frames * capacity.BytesPerFrame
	}
	discPlan := plan.DiscPlan{Index: 1, Tracks: tracks, TotalFrames: 60, Mode: capacity.ModeDAO}

	var notified atomic.Int32
	var notifiedFrames atomic.Int64
	tc := encode.New(testConfig(3), nil, encode.WithExecutor(stub))
	staged, err := tc.StageDisc(context.Background(), discPlan, t.TempDir(), func(st encode.StagedTrack) {
		notified.Add(1)
		notifiedFrames.Add(st.Frames)
	})
	if err != nil {
		t.Fatalf("StageDisc failed: %v", err)
	}
	if len(staged) != 3 {
		t.Fatalf("staged %d tracks, want 3", len(staged))
	}
	if notified.Load() != 3 {
		t.Fatalf("onStaged fired %d times, want 3", notified.Load())
	}
	if notifiedFrames.Load() != 60 {
		t.Fatalf("onStaged reported %d frames, want 60", notifiedFrames.Load())
	}
	for i, st := range staged {
		if st.Track.Index != i+1 {
			t.Fatalf("position %d holds track %d", i, st.Track.Index)
		}
		if filepath.Base(st.Path) != fmt.Sprintf("track_%02d.pcm", i+1) {
			t.Fatalf("unexpected staged name %s", st.Path)
		}
	}
}

func TestStageDiscReportsRealFailure(t *testing.T) {
	stub := newStubExecutor()
	tracks := []media.Track{sourceTrack(1, 10), sourceTrack(2, 20), sourceTrack(3, 30)}
	for _, track := range tracks {
		stub.bytesFor[track.SourcePath] = track.Frames * capacity.BytesPerFrame
	}
	stub.failFor[tracks[1].SourcePath] = errors.New("exit status 1")
	discPlan := plan.DiscPlan{Index: 1, Tracks: tracks, TotalFrames: 60, Mode: capacity.ModeDAO}

	tc := encode.New(testConfig(1), nil, encode.WithExecutor(stub))
	_, err := tc.StageDisc(context.Background(), discPlan, t.TempDir(), nil)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestStageDiscHonorsWorkerCap(t *testing.T) {
	stub := newStubExecutor()
	var tracks []media.Track
	for i := 1; i <= 8; i++ {
		track := sourceTrack(i, 10)
		tracks = append(tracks, track)
		stub.bytesFor[track.SourcePath] = track.Frames * capacity.BytesPerFrame
	}
	discPlan := plan.DiscPlan{Index: 1, Tracks: tracks, TotalFrames: 80, Mode: capacity.ModeDAO}

	tc := encode.New(testConfig(2), nil, encode.WithExecutor(stub))
	if _, err := tc.StageDisc(context.Background(), discPlan, t.TempDir(), nil); err != nil {
		t.Fatalf("StageDisc failed: %v", err)
	}
	if got := stub.maxActive.Load(); got > 2 {
		t.Fatalf("observed %d concurrent workers, cap is 2", got)
	}
	if got := stub.calls.Load(); got != 8 {
		t.Fatalf("expected 8 invocations, got %d", got)
	}
}

func TestStageDiscCancelledContext(t *testing.T) {
	stub := newStubExecutor()
	track := sourceTrack(1, 10)
	stub.bytesFor[track.SourcePath] = track.Frames * capacity.BytesPerFrame
	discPlan := plan.DiscPlan{Index: 1, Tracks: []media.Track{track}, TotalFrames: 10, Mode: capacity.ModeDAO}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tc := encode.New(testConfig(1), nil, encode.WithExecutor(stub))
	if _, err := tc.StageDisc(ctx, discPlan, t.TempDir(), nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}
