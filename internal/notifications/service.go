package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chevelle/internal/config"
)

const userAgent = "Chevelle/0.1.0"

// Service defines the notification surface exposed to workflow components.
type Service interface {
	NotifySessionStarted(ctx context.Context, trackCount, discCount int) error
	NotifyDiscStaged(ctx context.Context, label string, trackCount int) error
	NotifyWaitingForMedia(ctx context.Context, label, device string) error
	NotifyDiscBurned(ctx context.Context, label string, discIndex, discCount int) error
	NotifySessionCompleted(ctx context.Context, completed, failed int, duration time.Duration) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:     topic,
		client:       &http.Client{Timeout: timeout},
		notifyDiscs:  cfg.Notifications.Discs,
		notifyRun:    cfg.Notifications.Session,
		notifyErrors: cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       *http.Client
	notifyDiscs  bool
	notifyRun    bool
	notifyErrors bool
}

func (n *ntfyService) NotifySessionStarted(ctx context.Context, trackCount, discCount int) error {
	if !n.notifyRun {
		return nil
	}
	data := payload{
		title:   "Chevelle - Session Started",
		message: fmt.Sprintf("Mastering %d tracks across %d discs", trackCount, discCount),
		tags:    []string{"chevelle", "session", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDiscStaged(ctx context.Context, label string, trackCount int) error {
	if !n.notifyDiscs {
		return nil
	}
	data := payload{
		title:   "Chevelle - Disc Staged",
		message: fmt.Sprintf("%s staged (%d tracks), ready to burn", strings.TrimSpace(label), trackCount),
		tags:    []string{"chevelle", "staging", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyWaitingForMedia(ctx context.Context, label, device string) error {
	if !n.notifyDiscs {
		return nil
	}
	data := payload{
		title:    "Chevelle - Insert Disc",
		message:  fmt.Sprintf("Insert a blank disc for %s into %s", strings.TrimSpace(label), device),
		tags:     []string{"chevelle", "media", "waiting"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDiscBurned(ctx context.Context, label string, discIndex, discCount int) error {
	if !n.notifyDiscs {
		return nil
	}
	data := payload{
		title:   "Chevelle - Disc Burned",
		message: fmt.Sprintf("%s burned and verified (%d of %d)", strings.TrimSpace(label), discIndex, discCount),
		tags:    []string{"chevelle", "burn", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySessionCompleted(ctx context.Context, completed, failed int, duration time.Duration) error {
	if !n.notifyRun {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	var title, message string
	if failed == 0 {
		title = "Chevelle - Session Complete"
		message = fmt.Sprintf("All %d discs burned in %s", completed, duration)
	} else {
		title = "Chevelle - Session Complete (with errors)"
		message = fmt.Sprintf("%d discs burned, %d failed in %s", completed, failed, duration)
	}

	data := payload{
		title:    title,
		message:  message,
		tags:     []string{"chevelle", "session", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.notifyErrors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Chevelle - Error",
		message:  builder.String(),
		tags:     []string{"chevelle", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Chevelle - Test",
		message:  "Notification system test",
		tags:     []string{"chevelle", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifySessionStarted(context.Context, int, int) error              { return nil }
func (noopService) NotifyDiscStaged(context.Context, string, int) error               { return nil }
func (noopService) NotifyWaitingForMedia(context.Context, string, string) error       { return nil }
func (noopService) NotifyDiscBurned(context.Context, string, int, int) error          { return nil }
func (noopService) NotifySessionCompleted(context.Context, int, int, time.Duration) error {
	return nil
}
func (noopService) NotifyError(context.Context, error, string) error { return nil }
func (noopService) TestNotification(context.Context) error           { return nil }
