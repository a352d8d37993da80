package encode

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"chevelle/internal/capacity"
	"chevelle/internal/config"
	"chevelle/internal/logging"
	"chevelle/internal/media"
	"chevelle/internal/services"
)

// frameTolerance is how far (in frames) a decoded track may drift from its
// probed length before the output is rejected. Decoders round the final
// packet differently than ffprobe reports duration.
const frameTolerance = 1

// StagedTrack is one track rendered to CD-ready PCM on disk.
type StagedTrack struct {
	Track    media.Track
	Path     string
	Frames   int64
	Bytes    int64
	Checksum string
}

// Executor abstracts ffmpeg invocation for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) error
}

// Option configures the transcoder.
type Option func(*Transcoder)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(t *Transcoder) {
		if exec != nil {
			t.exec = exec
		}
	}
}

// Transcoder renders source tracks to PCM with a bounded ffmpeg pool. One
// transcoder serves the whole session so concurrent disc staging still
// respects the configured worker cap.
type Transcoder struct {
	binary       string
	exec         Executor
	sem          chan struct{}
	trackTimeout time.Duration
	logger       *slog.Logger
}

// New constructs a transcoder from configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Transcoder {
	workers := cfg.Encoding.MaxConcurrent
	if workers < 1 {
		workers = 1
	}
	t := &Transcoder{
		binary:       cfg.FFmpegBinary(),
		exec:         commandExecutor{},
		sem:          make(chan struct{}, workers),
		trackTimeout: time.Duration(cfg.Encoding.TrackTimeout) * time.Second,
		logger:       logging.NewNop(),
	}
	if logger != nil {
		t.logger = logger
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// TranscodeTrack renders one track to destPath, blocking until a pool slot
// is free. The output is padded, then trimmed or rejected, so it holds
// exactly the track's planned frame count.
func (t *Transcoder) TranscodeTrack(ctx context.Context, track media.Track, destPath string) (StagedTrack, error) {
	select {
	case t.sem <- struct{}{}:
		defer func() { <-t.sem }()
	case <-ctx.Done():
		return StagedTrack{}, ctx.Err()
	}

	runCtx := ctx
	if t.trackTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, t.trackTimeout)
		defer cancel()
	}

	started := time.Now()
	args := []string{
		"-v", "error", "-hide_banner", "-y",
		"-i", track.SourcePath,
		"-map", "0:a:0",
		"-ar", "44100",
		"-ac", "2",
		"-f", "s16le",
		"-c:a", "pcm_s16le",
		destPath,
	}
	if err := t.exec.Run(runCtx, t.binary, args); err != nil {
		_ = os.Remove(destPath)
		if runCtx.Err() != nil && ctx.Err() == nil {
			return StagedTrack{}, services.Wrap(services.ErrExternalTool, "transcode", "render",
				fmt.Sprintf("track %d %q timed out after %s", track.Index, track.Title, t.trackTimeout), err)
		}
		return StagedTrack{}, services.Wrap(services.ErrExternalTool, "transcode", "render",
			fmt.Sprintf("track %d %q", track.Index, track.Title), err)
	}

	staged, err := t.finalize(track, destPath)
	if err != nil {
		_ = os.Remove(destPath)
		return StagedTrack{}, err
	}

	t.logger.Info("track transcoded",
		logging.Int("track", track.Index),
		logging.String("title", track.Title),
		logging.Int64("frames", staged.Frames),
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldEventType, "track_transcoded"))
	return staged, nil
}

// finalize pads the raw PCM to a frame boundary, reconciles it against the
// planned frame count, and fingerprints the payload.
func (t *Transcoder) finalize(track media.Track, destPath string) (StagedTrack, error) {
	info, err := os.Stat(destPath)
	if err != nil {
		return StagedTrack{}, services.Wrap(services.ErrExternalTool, "transcode", "finalize",
			fmt.Sprintf("track %d output missing", track.Index), err)
	}
	if info.Size() == 0 {
		return StagedTrack{}, services.Wrap(services.ErrExternalTool, "transcode", "finalize",
			fmt.Sprintf("track %d %q produced no audio", track.Index, track.Title), nil)
	}

	wantBytes := track.Frames * capacity.BytesPerFrame
	actualFrames := (info.Size() + capacity.BytesPerFrame - 1) / capacity.BytesPerFrame
	if drift := actualFrames - track.Frames; drift > frameTolerance || drift < -frameTolerance {
		return StagedTrack{}, services.Wrap(services.ErrExternalTool, "transcode", "finalize",
			fmt.Sprintf("track %d %q rendered %d frames, expected %d",
				track.Index, track.Title, actualFrames, track.Frames), nil)
	}

	if err := resizeToFrames(destPath, info.Size(), wantBytes); err != nil {
		return StagedTrack{}, services.Wrap(services.ErrExternalTool, "transcode", "finalize",
			fmt.Sprintf("track %d pad", track.Index), err)
	}

	checksum, err := fileChecksum(destPath)
	if err != nil {
		return StagedTrack{}, services.Wrap(services.ErrExternalTool, "transcode", "finalize",
			fmt.Sprintf("track %d checksum", track.Index), err)
	}

	return StagedTrack{
		Track:    track,
		Path:     destPath,
		Frames:   track.Frames,
		Bytes:    wantBytes,
		Checksum: checksum,
	}, nil
}

// resizeToFrames grows the file with silence or trims trailing drift so its
// size lands exactly on the planned byte count.
func resizeToFrames(path string, have, want int64) error {
	if have == want {
		return nil
	}
	if have > want {
		return os.Truncate(path, want)
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()
	silence := make([]byte, want-have)
	if _, err := file.Write(silence); err != nil {
		return err
	}
	return file.Close()
}

func fileChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
