package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"chevelle/internal/encode"
	"chevelle/internal/logging"
	"chevelle/internal/media"
	"chevelle/internal/plan"
	"chevelle/internal/queue"
	"chevelle/internal/services"
)

// Summary reports the outcome of a session. FramesTranscoded counts every
// CD frame rendered by the transcode pool, restages included, so it can
// exceed the planned disc total when burns were retried.
type Summary struct {
	SessionID        string
	TrackCount       int
	DiscCount        int
	Completed        int
	Failed           int
	Cancelled        int
	FramesTranscoded int64
	Duration         time.Duration
}

// discState tracks one disc from planning to its terminal status.
type discState struct {
	job    *queue.BurnJob
	plan   plan.DiscPlan
	label  string
	dir    string
	staged []string
	err    error
	done   chan struct{}
}

// Plan probes the sources and partitions them into discs without touching
// the device. Shared by the dry-run command and Run.
func (m *Manager) Plan(ctx context.Context, sources []string) ([]plan.DiscPlan, []media.Track, error) {
	tracks, err := m.loader.Load(ctx, sources)
	if err != nil {
		return nil, nil, err
	}
	capacityFrames, err := m.cfg.CapacityFrames()
	if err != nil {
		return nil, nil, err
	}
	plans, err := plan.Build(tracks, capacityFrames, m.cfg.DiscMode())
	if err != nil {
		return nil, nil, err
	}
	return plans, tracks, nil
}

// Run executes a full mastering session: plan, stage every disc
// concurrently, then burn them one at a time in disc order. It returns once
// every disc reaches a terminal status or cancellation stops the session.
func (m *Manager) Run(ctx context.Context, sources []string) (*Summary, error) {
	started := time.Now()
	m.framesTranscoded.Store(0)

	plans, tracks, err := m.Plan(ctx, sources)
	if err != nil {
		return nil, err
	}
	summary := &Summary{
		SessionID:  uuid.NewString(),
		TrackCount: len(tracks),
		DiscCount:  len(plans),
	}
	if len(plans) == 0 {
		m.logger.Info("nothing to do, no usable tracks",
			logging.String(logging.FieldEventType, "session_empty"))
		return summary, nil
	}

	capacityFrames, err := m.cfg.CapacityFrames()
	if err != nil {
		return nil, err
	}
	if err := m.store.CreateSession(ctx, &queue.Session{
		ID:             summary.SessionID,
		Device:         m.cfg.Disc.Device,
		Mode:           string(m.cfg.DiscMode()),
		CapacityFrames: capacityFrames,
		TrackCount:     len(tracks),
		DiscCount:      len(plans),
	}); err != nil {
		return nil, err
	}

	ctx = services.WithRequestID(ctx, summary.SessionID)
	states, err := m.createJobs(ctx, summary.SessionID, plans)
	if err != nil {
		return nil, err
	}

	m.logger.Info("session started",
		logging.String(logging.FieldCorrelationID, summary.SessionID),
		logging.Int("tracks", len(tracks)),
		logging.Int("discs", len(plans)),
		logging.String(logging.FieldEventType, "session_started"))
	m.emit(Event{Type: EventSessionStarted, DiscCount: len(plans),
		Message: fmt.Sprintf("%d tracks across %d discs", len(tracks), len(plans))})
	if err := m.notifier.NotifySessionStarted(ctx, len(tracks), len(plans)); err != nil {
		m.logNotifyFailure(err)
	}

	// Stage every disc concurrently. The transcoder's worker pool keeps the
	// actual ffmpeg fan-out bounded regardless of disc count.
	stageCtx, cancelStaging := context.WithCancel(ctx)
	defer cancelStaging()
	for _, state := range states {
		go func(state *discState) {
			defer close(state.done)
			discCtx := services.WithJobID(services.WithDiscIndex(stageCtx, state.plan.Index), state.job.ID)
			state.err = m.stageDisc(discCtx, state)
		}(state)
	}

	m.burnAll(ctx, cancelStaging, states, summary)

	summary.FramesTranscoded = m.framesTranscoded.Load()
	summary.Duration = time.Since(started)
	sessionStatus := queue.SessionCompleted
	switch {
	case summary.Failed > 0:
		sessionStatus = queue.SessionFailed
	case summary.Cancelled > 0:
		sessionStatus = queue.SessionCancelled
	}
	if err := m.store.FinishSession(context.WithoutCancel(ctx), summary.SessionID, sessionStatus); err != nil {
		m.logger.Warn("session finish not recorded", logging.Error(err))
	}

	m.emit(Event{Type: EventSessionDone, DiscCount: summary.DiscCount,
		Message: fmt.Sprintf("%d burned, %d failed, %d cancelled",
			summary.Completed, summary.Failed, summary.Cancelled)})
	if err := m.notifier.NotifySessionCompleted(context.WithoutCancel(ctx),
		summary.Completed, summary.Failed, summary.Duration); err != nil {
		m.logNotifyFailure(err)
	}
	m.logger.Info("session finished",
		logging.String(logging.FieldCorrelationID, summary.SessionID),
		logging.Int("completed", summary.Completed),
		logging.Int("failed", summary.Failed),
		logging.Int("cancelled", summary.Cancelled),
		logging.Int64("frames_transcoded", summary.FramesTranscoded),
		logging.String(logging.FieldEventType, "session_finished"))

	if ctx.Err() != nil {
		return summary, services.Wrap(services.ErrCancelled, "workflow", "run",
			fmt.Sprintf("session stopped with %d discs unburned", summary.Cancelled), nil)
	}
	return summary, nil
}

func (m *Manager) createJobs(ctx context.Context, sessionID string, plans []plan.DiscPlan) ([]*discState, error) {
	states := make([]*discState, 0, len(plans))
	for _, discPlan := range plans {
		tracksJSON, err := marshalTracks(discPlan.Tracks)
		if err != nil {
			return nil, err
		}
		job, err := m.store.CreateJob(ctx, &queue.BurnJob{
			SessionID:   sessionID,
			DiscIndex:   discPlan.Index,
			TrackCount:  discPlan.TrackCount(),
			TotalFrames: discPlan.TotalFrames,
			Mode:        string(discPlan.Mode),
			TracksJSON:  tracksJSON,
		})
		if err != nil {
			return nil, err
		}
		label := plan.DiscLabel(discPlan.Index, len(plans))
		states = append(states, &discState{
			job:   job,
			plan:  discPlan,
			label: label,
			dir:   filepath.Join(m.cfg.Paths.StagingDir, sessionID, label),
			done:  make(chan struct{}),
		})
	}
	return states, nil
}

// stageDisc transcodes and assembles one disc. Used for both the initial
// staging pass and full restages on retry.
func (m *Manager) stageDisc(ctx context.Context, state *discState) error {
	if err := m.store.Transition(ctx, state.job, queue.StatusStaging); err != nil {
		return err
	}
	m.emit(Event{Type: EventDiscStaging, DiscIndex: state.plan.Index, Label: state.label})

	staged, err := m.stager.StageDisc(ctx, state.plan, state.dir, m.noteTrackStaged)
	if err != nil {
		if !isCancellation(err) {
			m.markFailed(ctx, state, err)
		}
		return err
	}
	img, err := m.assembler.Assemble(ctx, state.plan, staged, state.dir)
	if err != nil {
		if !isCancellation(err) {
			m.markFailed(ctx, state, err)
		}
		return err
	}

	state.staged = state.staged[:0]
	for _, st := range staged {
		state.staged = append(state.staged, st.Path)
	}
	state.job.ImagePath = img.ImagePath
	state.job.CuePath = img.CuePath
	state.job.SetProgress("Staged", fmt.Sprintf("%d tracks ready", len(staged)), 0)
	if err := m.store.Transition(ctx, state.job, queue.StatusStaged); err != nil {
		return err
	}

	logging.WithContext(ctx, m.logger).Info("disc staged",
		logging.String("label", state.label),
		logging.Int("tracks", len(staged)),
		logging.String(logging.FieldEventType, "disc_staged"))
	m.emit(Event{Type: EventDiscStaged, DiscIndex: state.plan.Index, Label: state.label,
		Message: fmt.Sprintf("%d tracks staged", len(staged))})
	if err := m.notifier.NotifyDiscStaged(ctx, state.label, len(staged)); err != nil {
		m.logNotifyFailure(err)
	}
	return nil
}

// restage wipes a disc's staging directory and runs the staging pass again.
// Retries always rebuild from source; a burn failure taints everything
// derived for that disc.
func (m *Manager) restage(ctx context.Context, state *discState) error {
	if err := os.RemoveAll(state.dir); err != nil {
		return services.Wrap(services.ErrStaging, "workflow", "restage", state.dir, err)
	}
	if err := m.store.Transition(ctx, state.job, queue.StatusPending); err != nil {
		return err
	}
	return m.stageDisc(ctx, state)
}

// noteTrackStaged advances the session-wide transcode counter as individual
// tracks land. Called from concurrent staging workers.
func (m *Manager) noteTrackStaged(staged encode.StagedTrack) {
	total := m.framesTranscoded.Add(staged.Frames)
	m.emit(Event{
		Type:    EventTrackStaged,
		Frames:  total,
		Message: staged.Track.Title,
	})
}

// markFailed records a failure on the job, tolerating transition errors so
// the original failure is never masked.
func (m *Manager) markFailed(ctx context.Context, state *discState, cause error) {
	state.job.ErrorMessage = cause.Error()
	state.job.SetProgress("Failed", cause.Error(), 0)
	if err := m.store.Transition(context.WithoutCancel(ctx), state.job, queue.StatusFailed); err != nil {
		m.logger.Warn("failure not recorded",
			logging.Int(logging.FieldDiscIndex, state.plan.Index),
			logging.Error(err))
	}
}

// markCancelled moves a not-yet-burning job to cancelled.
func (m *Manager) markCancelled(ctx context.Context, state *discState) {
	if state.job.Status.IsTerminal() {
		return
	}
	if err := m.store.Transition(context.WithoutCancel(ctx), state.job, queue.StatusCancelled); err != nil {
		m.logger.Warn("cancellation not recorded",
			logging.Int(logging.FieldDiscIndex, state.plan.Index),
			logging.Error(err))
		return
	}
	m.emit(Event{Type: EventDiscCancelled, DiscIndex: state.plan.Index, Label: state.label})
}

func (m *Manager) logNotifyFailure(err error) {
	m.logger.Warn("notification not delivered",
		logging.Error(err),
		logging.String(logging.FieldEventType, "notify_failed"))
}

func marshalTracks(tracks []media.Track) (string, error) {
	type trackRecord struct {
		Index  int    `json:"index"`
		Title  string `json:"title"`
		Source string `json:"source"`
		Frames int64  `json:"frames"`
	}
	records := make([]trackRecord, 0, len(tracks))
	for _, track := range tracks {
		records = append(records, trackRecord{
			Index:  track.Index,
			Title:  track.Title,
			Source: track.SourcePath,
			Frames: track.Frames,
		})
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("marshal tracks: %w", err)
	}
	return string(payload), nil
}

// isCancellation reports whether an error is the session context going away
// rather than a disc-level failure.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, services.ErrCancelled)
}
