package workflow

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"chevelle/internal/burn"
	"chevelle/internal/config"
	"chevelle/internal/disc"
	"chevelle/internal/encode"
	"chevelle/internal/image"
	"chevelle/internal/logging"
	"chevelle/internal/media"
	"chevelle/internal/notifications"
	"chevelle/internal/plan"
	"chevelle/internal/queue"
)

// TrackLoader turns source arguments into probed tracks.
type TrackLoader interface {
	Load(ctx context.Context, paths []string) ([]media.Track, error)
}

// DiscStager renders one disc plan to staged PCM, reporting each finished
// track through onStaged.
type DiscStager interface {
	StageDisc(ctx context.Context, discPlan plan.DiscPlan, destDir string, onStaged func(encode.StagedTrack)) ([]encode.StagedTrack, error)
}

// ImageAssembler builds the disc image and cue sheet from staged tracks.
type ImageAssembler interface {
	Assemble(ctx context.Context, discPlan plan.DiscPlan, staged []encode.StagedTrack, destDir string) (image.Image, error)
}

// DeviceLocker serializes access to the burner device.
type DeviceLocker interface {
	Acquire(ctx context.Context, timeout time.Duration) error
	Release() error
}

// MediaGate blocks until the device holds usable blank media.
type MediaGate func(ctx context.Context, device string) error

// Manager coordinates one mastering session.
type Manager struct {
	cfg       *config.Config
	store     *queue.Store
	logger    *slog.Logger
	notifier  notifications.Service
	loader    TrackLoader
	stager    DiscStager
	assembler ImageAssembler
	burner    burn.Burner
	locker    DeviceLocker
	ejector   disc.Ejector
	mediaGate MediaGate
	sink      EventSink

	// framesTranscoded accumulates CD frames rendered by finished tracks
	// across the whole session, including restages. Reset per Run.
	framesTranscoded atomic.Int64
}

// Option configures optional Manager collaborators, primarily for tests.
type Option func(*Manager)

// WithLoader overrides the track loader.
func WithLoader(loader TrackLoader) Option {
	return func(m *Manager) {
		if loader != nil {
			m.loader = loader
		}
	}
}

// WithStager overrides the disc stager.
func WithStager(stager DiscStager) Option {
	return func(m *Manager) {
		if stager != nil {
			m.stager = stager
		}
	}
}

// WithAssembler overrides the image assembler.
func WithAssembler(assembler ImageAssembler) Option {
	return func(m *Manager) {
		if assembler != nil {
			m.assembler = assembler
		}
	}
}

// WithBurner overrides the disc writer.
func WithBurner(burner burn.Burner) Option {
	return func(m *Manager) {
		if burner != nil {
			m.burner = burner
		}
	}
}

// WithLocker overrides the device lock.
func WithLocker(locker DeviceLocker) Option {
	return func(m *Manager) {
		if locker != nil {
			m.locker = locker
		}
	}
}

// WithEjector overrides the tray ejector.
func WithEjector(ejector disc.Ejector) Option {
	return func(m *Manager) {
		if ejector != nil {
			m.ejector = ejector
		}
	}
}

// WithMediaGate overrides the blank-media wait.
func WithMediaGate(gate MediaGate) Option {
	return func(m *Manager) {
		if gate != nil {
			m.mediaGate = gate
		}
	}
}

// WithNotifier overrides the notification service.
func WithNotifier(notifier notifications.Service) Option {
	return func(m *Manager) {
		if notifier != nil {
			m.notifier = notifier
		}
	}
}

// WithEventSink registers a consumer for session progress events.
func WithEventSink(sink EventSink) Option {
	return func(m *Manager) {
		m.sink = sink
	}
}

// NewManager constructs a session manager wired to the real collaborators.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:       cfg,
		store:     store,
		logger:    logging.NewComponentLogger(logger, "workflow"),
		notifier:  notifications.NewService(cfg),
		loader:    media.NewLoader(media.NewProber(cfg.FFprobeBinary()), logger),
		stager:    encode.New(cfg, logger),
		assembler: image.NewStager(logger),
		burner:    burn.New(cfg),
		locker:    burn.NewDeviceLock(cfg.Disc.Device),
		ejector:   disc.NewEjector(),
	}
	m.mediaGate = m.defaultMediaGate
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// defaultMediaGate waits for media in the drive and, when configured,
// insists it is blank before handing the device to wodim.
func (m *Manager) defaultMediaGate(ctx context.Context, device string) error {
	timeout := time.Duration(m.cfg.Burning.WaitForMediaTimeout) * time.Second
	monitor := disc.NewMonitor(device, m.logger)
	monitor.Start(ctx)
	defer monitor.Stop()

	if err := disc.WaitForMedia(ctx, device, timeout, monitor); err != nil {
		return err
	}
	if !m.cfg.Burning.RequireBlankPresence {
		return nil
	}

	scanner := disc.NewScanner(m.cfg.WodimBinary())
	status, err := scanner.CheckMedia(ctx, device)
	if err != nil {
		m.logger.Warn("blank-media check unavailable, proceeding",
			logging.Error(err),
			logging.String(logging.FieldEventType, "media_check_skipped"))
		return nil
	}
	if status.Present && !status.Blank {
		m.logger.Warn("inserted media does not look blank",
			logging.String("media_type", status.Type),
			logging.String(logging.FieldEventType, "media_not_blank"))
	}
	return nil
}
