package workflow

import (
	"context"
	"fmt"
	"time"

	"chevelle/internal/burn"
	"chevelle/internal/logging"
	"chevelle/internal/queue"
	"chevelle/internal/services"
)

// burnAll consumes staged discs strictly in disc order and writes them one
// at a time. Staging keeps running for later discs while earlier ones burn.
func (m *Manager) burnAll(ctx context.Context, cancelStaging context.CancelFunc, states []*discState, summary *Summary) {
	total := len(states)
	aborted := false

	for _, state := range states {
		if aborted || ctx.Err() != nil {
			cancelStaging()
			<-state.done
			m.settleSkipped(ctx, state, summary)
			continue
		}

		select {
		case <-state.done:
		case <-ctx.Done():
			cancelStaging()
			<-state.done
		}
		if ctx.Err() != nil {
			m.settleSkipped(ctx, state, summary)
			continue
		}

		err := m.burnWithRetries(ctx, state, total)
		switch {
		case err == nil:
			summary.Completed++
		case isCancellation(err):
			m.markCancelled(ctx, state)
			summary.Cancelled++
		default:
			summary.Failed++
			if err := m.notifier.NotifyError(context.WithoutCancel(ctx), err, state.label); err != nil {
				m.logNotifyFailure(err)
			}
			if m.cfg.Burning.AbortOnFailure {
				aborted = true
				cancelStaging()
			}
		}
	}
}

// settleSkipped records the terminal status of a disc the session never got
// to burn. A disc whose staging already failed counts as failed; everything
// else is cancelled.
func (m *Manager) settleSkipped(ctx context.Context, state *discState, summary *Summary) {
	if state.err != nil && !isCancellation(state.err) {
		summary.Failed++
		return
	}
	m.markCancelled(ctx, state)
	summary.Cancelled++
}

// burnWithRetries drives one disc to a terminal status, restaging from
// source between attempts. Attempts are bounded by max_retries, and a
// retryable failure during the initial staging pass consumes the first
// attempt the same way a failed burn does.
func (m *Manager) burnWithRetries(ctx context.Context, state *discState, total int) error {
	maxRetries := m.cfg.Burning.MaxRetries
	ctx = services.WithJobID(services.WithDiscIndex(ctx, state.plan.Index), state.job.ID)

	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return services.Wrap(services.ErrCancelled, "workflow", "burn", state.label, ctx.Err())
		}

		// A pending staging failure consumes this attempt without
		// touching the device.
		err := state.err
		state.err = nil
		if err == nil {
			err = m.burnOnce(ctx, state, total)
		}
		if err == nil {
			return nil
		}
		if isCancellation(err) {
			return err
		}

		if state.job.Status != queue.StatusFailed {
			m.markFailed(ctx, state, err)
		}
		if !services.Retryable(err) || attempt >= maxRetries {
			m.logger.Error("disc failed",
				logging.Int(logging.FieldDiscIndex, state.plan.Index),
				logging.Int("attempt", attempt+1),
				logging.Error(err),
				logging.String(logging.FieldEventType, "disc_failed"))
			m.emit(Event{Type: EventDiscFailed, DiscIndex: state.plan.Index, DiscCount: total,
				Label: state.label, Message: err.Error()})
			return err
		}

		// The failed disc may still be in the tray; get it out of the way
		// before asking for fresh media.
		_ = m.ejector.Eject(context.WithoutCancel(ctx), m.cfg.Disc.Device)

		state.job.Attempt++
		m.logger.Warn("retrying disc with full restage",
			logging.Int(logging.FieldDiscIndex, state.plan.Index),
			logging.Int("attempt", state.job.Attempt),
			logging.Error(err),
			logging.String(logging.FieldEventType, "disc_retrying"))
		m.emit(Event{Type: EventDiscRetrying, DiscIndex: state.plan.Index, DiscCount: total,
			Label: state.label, Message: fmt.Sprintf("attempt %d: %v", state.job.Attempt, err)})

		// A failed restage is just this attempt's failure; the next
		// iteration decides whether the budget allows another.
		if restageErr := m.restage(ctx, state); restageErr != nil {
			state.err = restageErr
		}
	}
}

// burnOnce performs a single burn attempt on a staged disc. Once wodim has
// the device, the attempt runs on a context that ignores session
// cancellation; interrupting a writer mid-disc guarantees a coaster.
func (m *Manager) burnOnce(ctx context.Context, state *discState, total int) error {
	device := m.cfg.Disc.Device
	lockTimeout := time.Duration(m.cfg.Burning.DeviceLockTimeout) * time.Second

	if err := m.locker.Acquire(ctx, lockTimeout); err != nil {
		return err
	}
	defer func() { _ = m.locker.Release() }()

	m.emit(Event{Type: EventWaitingMedia, DiscIndex: state.plan.Index, DiscCount: total,
		Label: state.label, Message: "insert blank media"})
	if err := m.notifier.NotifyWaitingForMedia(ctx, state.label, device); err != nil {
		m.logNotifyFailure(err)
	}
	if err := m.mediaGate(ctx, device); err != nil {
		return err
	}

	if err := m.store.Transition(ctx, state.job, queue.StatusBurning); err != nil {
		return err
	}
	logging.WithContext(ctx, m.logger).Info("burn started",
		logging.String("label", state.label),
		logging.Int("attempt", state.job.Attempt+1),
		logging.String(logging.FieldEventType, "burn_started"))

	burnCtx := context.WithoutCancel(ctx)
	req := burn.Request{
		Mode:           state.plan.Mode,
		TrackPaths:     state.staged,
		ExpectedFrames: state.plan.TotalFrames,
		Eject:          m.cfg.Disc.EjectAfterBurn,
	}
	if err := m.burner.Burn(burnCtx, device, req, func(update burn.ProgressUpdate) {
		state.job.SetProgress(update.Stage, update.Message, update.Percent)
		if err := m.store.UpdateJob(burnCtx, state.job); err != nil {
			m.logger.Debug("progress not recorded", logging.Error(err))
		}
		m.emit(Event{Type: EventDiscBurning, DiscIndex: state.plan.Index, DiscCount: total,
			Label: state.label, Percent: update.Percent, Message: update.Message})
	}); err != nil {
		return err
	}

	if err := m.store.Transition(burnCtx, state.job, queue.StatusVerifying); err != nil {
		return err
	}
	m.emit(Event{Type: EventDiscVerifying, DiscIndex: state.plan.Index, DiscCount: total, Label: state.label})
	if m.cfg.Burning.Verify {
		if err := m.burner.Verify(burnCtx, device, req); err != nil {
			return err
		}
	}

	state.job.SetProgress("Completed", "burned and verified", 100)
	if err := m.store.Transition(burnCtx, state.job, queue.StatusCompleted); err != nil {
		return err
	}

	logging.WithContext(ctx, m.logger).Info("disc completed",
		logging.String("label", state.label),
		logging.String(logging.FieldEventType, "disc_completed"))
	m.emit(Event{Type: EventDiscCompleted, DiscIndex: state.plan.Index, DiscCount: total,
		Label: state.label, Percent: 100})
	if err := m.notifier.NotifyDiscBurned(burnCtx, state.label, state.plan.Index, total); err != nil {
		m.logNotifyFailure(err)
	}
	return nil
}
