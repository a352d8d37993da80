package disc

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pilebones/go-udev/netlink"

	"chevelle/internal/logging"
	"chevelle/internal/services"
)

// Monitor listens for udev netlink events so a burn session learns about a
// fresh disc the moment the tray closes instead of on the next poll.
type Monitor struct {
	device string
	logger *slog.Logger

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	events  chan struct{}
	running bool
}

// NewMonitor creates a monitor for the given device. Returns nil when no
// device is configured; a nil monitor is safe to use and does nothing.
func NewMonitor(device string, logger *slog.Logger) *Monitor {
	device = strings.TrimSpace(device)
	if device == "" {
		return nil
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Monitor{
		device: device,
		logger: logging.NewComponentLogger(logger, "media-monitor"),
	}
}

// Start connects to the udev netlink socket and begins watching for media
// insertion on the configured device. Connection failure is non-fatal; the
// caller falls back to polling.
func (m *Monitor) Start(ctx context.Context) {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("netlink unavailable, media detection falls back to polling",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"))
		return
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.events = make(chan struct{}, 1)
	m.running = true

	go m.loop(ctx, m.quit, m.events)

	m.logger.Info("media monitor started",
		logging.String("device", m.device),
		logging.String(logging.FieldEventType, "media_monitor_started"))
}

// Stop shuts the monitor down. Safe to call on a nil or stopped monitor.
func (m *Monitor) Stop() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	close(m.quit)
	m.quit = nil
	_ = m.conn.Close()
	m.conn = nil
	m.running = false
}

// Events returns the insertion signal channel, nil when not running.
func (m *Monitor) Events() <-chan struct{} {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events
}

func (m *Monitor) loop(ctx context.Context, quit <-chan struct{}, events chan<- struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	action := "change|add"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM":      "block",
			"ID_CDROM":       "1",
			"ID_CDROM_MEDIA": "1",
		},
	})

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}
	monitorQuit := conn.Monitor(queue, errs, rules)

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			if deviceName(uevent) != m.device {
				continue
			}
			m.logger.Info("media inserted",
				logging.String("device", m.device),
				logging.String("action", string(uevent.Action)),
				logging.String(logging.FieldEventType, "media_inserted"))
			select {
			case events <- struct{}{}:
			default:
			}
		case err := <-errs:
			m.logger.Warn("media monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "media_monitor_error"))
		}
	}
}

func deviceName(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		return devname
	}
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	return "/dev/" + parts[len(parts)-1]
}

// WaitForMedia blocks until the drive holds readable media, reacting to
// monitor events when available and polling otherwise. A zero timeout means
// a single immediate check.
func WaitForMedia(ctx context.Context, device string, timeout time.Duration, monitor *Monitor) error {
	const pollInterval = 2 * time.Second

	check := func() bool {
		status, err := CheckDriveStatus(device)
		return err == nil && status == DriveStatusDiscOK
	}

	if check() {
		return nil
	}
	if timeout <= 0 {
		return services.Wrap(services.ErrTimeout, "disc", "wait_media",
			"no media in "+device, nil)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return services.Wrap(services.ErrTimeout, "disc", "wait_media",
				"no media in "+device+" after "+timeout.String(), nil)
		case <-monitor.Events():
			if check() {
				return nil
			}
		case <-ticker.C:
			if check() {
				return nil
			}
		}
	}
}
