package encode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"chevelle/internal/logging"
	"chevelle/internal/plan"
)

// StageDisc renders every track of one disc plan into destDir, running the
// tracks through the shared pool concurrently. The first failure cancels the
// remaining tracks of this disc; other discs staging on the same transcoder
// are unaffected. Results come back in plan order. onStaged, when non-nil,
// is invoked once per finished track, possibly from concurrent workers.
func (t *Transcoder) StageDisc(ctx context.Context, discPlan plan.DiscPlan, destDir string, onStaged func(StagedTrack)) ([]StagedTrack, error) {
	if len(discPlan.Tracks) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging directory %q: %w", destDir, err)
	}

	discCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	staged := make([]StagedTrack, len(discPlan.Tracks))
	errs := make([]error, len(discPlan.Tracks))

	var wg sync.WaitGroup
	for i, track := range discPlan.Tracks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			destPath := filepath.Join(destDir, fmt.Sprintf("track_%02d.pcm", i+1))
			result, err := t.TranscodeTrack(discCtx, track, destPath)
			if err != nil {
				errs[i] = err
				cancel()
				return
			}
			staged[i] = result
			if onStaged != nil {
				onStaged(result)
			}
		}()
	}
	wg.Wait()

	if err := firstFailure(errs); err != nil {
		t.logger.Error("disc staging failed",
			logging.Int("disc", discPlan.Index),
			logging.Error(err),
			logging.String(logging.FieldEventType, "disc_staging_failed"))
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return staged, nil
}

// firstFailure picks the real failure out of the error slice, preferring a
// tool error over the context cancellations it triggered in sibling workers.
func firstFailure(errs []error) error {
	var fallback error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if fallback == nil {
			fallback = err
		}
	}
	return fallback
}
