package image

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"chevelle/internal/capacity"
	"chevelle/internal/encode"
	"chevelle/internal/logging"
	"chevelle/internal/plan"
	"chevelle/internal/services"
)

// CueTrack locates one track inside the assembled image.
type CueTrack struct {
	Number int
	Title  string
	// OffsetFrames is the INDEX 01 position measured from the start of the
	// image payload. Inter-track gaps live on the disc, not in the file.
	OffsetFrames int64
	Frames       int64
}

// Image is an assembled, burn-ready disc payload.
type Image struct {
	ImagePath string
	CuePath   string
	// Frames counts payload frames actually present in the image file.
	Frames int64
	Bytes  int64
	Tracks []CueTrack
}

// Stager concatenates staged tracks into disc images.
type Stager struct {
	logger *slog.Logger
}

// NewStager constructs a stager.
func NewStager(logger *slog.Logger) *Stager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Stager{logger: logger}
}

// Assemble writes the image and cue sheet for one disc into destDir. The
// staged tracks must match the plan exactly, in order, count, and per-track
// frames; a mismatch is fatal for the disc since a burner fed a wrong-sized
// image writes garbage at full speed.
func (s *Stager) Assemble(ctx context.Context, discPlan plan.DiscPlan, staged []encode.StagedTrack, destDir string) (Image, error) {
	if len(staged) != len(discPlan.Tracks) {
		return Image{}, services.Wrap(services.ErrStaging, "image", "assemble",
			fmt.Sprintf("disc %d has %d staged tracks for %d planned",
				discPlan.Index, len(staged), len(discPlan.Tracks)), nil)
	}
	if len(staged) == 0 {
		return Image{}, services.Wrap(services.ErrStaging, "image", "assemble",
			fmt.Sprintf("disc %d has no tracks", discPlan.Index), nil)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return Image{}, services.Wrap(services.ErrStaging, "image", "assemble",
			fmt.Sprintf("create image directory %q", destDir), err)
	}

	var payloadFrames int64
	cueTracks := make([]CueTrack, 0, len(staged))
	for i, st := range staged {
		planned := discPlan.Tracks[i]
		if st.Track.Index != planned.Index {
			return Image{}, services.Wrap(services.ErrStaging, "image", "assemble",
				fmt.Sprintf("disc %d position %d holds track %d, plan says %d",
					discPlan.Index, i+1, st.Track.Index, planned.Index), nil)
		}
		if st.Frames != planned.Frames {
			return Image{}, services.Wrap(services.ErrStaging, "image", "assemble",
				fmt.Sprintf("disc %d track %d staged %d frames, plan says %d",
					discPlan.Index, planned.Index, st.Frames, planned.Frames), nil)
		}
		cueTracks = append(cueTracks, CueTrack{
			Number:       i + 1,
			Title:        planned.Title,
			OffsetFrames: payloadFrames,
			Frames:       st.Frames,
		})
		payloadFrames += st.Frames
	}

	wantPayload := discPlan.TotalFrames - capacity.OverheadFrames(discPlan.Mode, len(discPlan.Tracks))
	if payloadFrames != wantPayload {
		return Image{}, services.Wrap(services.ErrStaging, "image", "assemble",
			fmt.Sprintf("disc %d payload is %d frames, plan accounts for %d",
				discPlan.Index, payloadFrames, wantPayload), nil)
	}

	started := time.Now()
	imageName := fmt.Sprintf("%s.img", filepath.Base(destDir))
	imagePath := filepath.Join(destDir, imageName)
	written, err := concatenate(ctx, imagePath, staged)
	if err != nil {
		_ = os.Remove(imagePath)
		return Image{}, err
	}
	if written != payloadFrames*capacity.BytesPerFrame {
		_ = os.Remove(imagePath)
		return Image{}, services.Wrap(services.ErrStaging, "image", "assemble",
			fmt.Sprintf("disc %d image holds %d bytes, expected %d",
				discPlan.Index, written, payloadFrames*capacity.BytesPerFrame), nil)
	}

	cuePath := filepath.Join(destDir, fmt.Sprintf("%s.cue", filepath.Base(destDir)))
	if err := writeCueSheet(cuePath, imageName, discPlan.Mode, cueTracks); err != nil {
		_ = os.Remove(imagePath)
		return Image{}, services.Wrap(services.ErrStaging, "image", "cue", imageName, err)
	}

	s.logger.Info("disc image assembled",
		logging.Int("disc", discPlan.Index),
		logging.Int("tracks", len(cueTracks)),
		logging.Int64("frames", payloadFrames),
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldEventType, "disc_image_assembled"))

	return Image{
		ImagePath: imagePath,
		CuePath:   cuePath,
		Frames:    payloadFrames,
		Bytes:     written,
		Tracks:    cueTracks,
	}, nil
}

func concatenate(ctx context.Context, imagePath string, staged []encode.StagedTrack) (int64, error) {
	out, err := os.Create(imagePath)
	if err != nil {
		return 0, services.Wrap(services.ErrStaging, "image", "concatenate", imagePath, err)
	}
	defer out.Close()

	var written int64
	for _, st := range staged {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		in, err := os.Open(st.Path)
		if err != nil {
			return written, services.Wrap(services.ErrStaging, "image", "concatenate", st.Path, err)
		}
		n, err := io.Copy(out, in)
		_ = in.Close()
		if err != nil {
			return written, services.Wrap(services.ErrStaging, "image", "concatenate", st.Path, err)
		}
		if n != st.Bytes {
			return written, services.Wrap(services.ErrStaging, "image", "concatenate",
				fmt.Sprintf("%s copied %d bytes, staged %d", st.Path, n, st.Bytes), nil)
		}
		written += n
	}
	if err := out.Close(); err != nil {
		return written, services.Wrap(services.ErrStaging, "image", "concatenate", imagePath, err)
	}
	return written, nil
}
