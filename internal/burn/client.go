package burn

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"chevelle/internal/capacity"
	"chevelle/internal/config"
	"chevelle/internal/services"
)

// ProgressUpdate captures wodim progress output.
type ProgressUpdate struct {
	Stage       string
	Track       int
	TotalTracks int
	Percent     float64
	Message     string
}

// Request describes one disc write.
type Request struct {
	Mode capacity.Mode
	// TrackPaths are the staged PCM files in play order. wodim writes them
	// as consecutive audio tracks.
	TrackPaths []string
	// ExpectedFrames is the planned disc length including gap overhead,
	// used by verification.
	ExpectedFrames int64
	Eject          bool
}

// Burner defines the behaviour the burn session needs from the writer.
type Burner interface {
	Burn(ctx context.Context, device string, req Request, progress func(ProgressUpdate)) error
	Verify(ctx context.Context, device string, req Request) error
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onOutput func(string)) error
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client wraps wodim CLI interactions.
type Client struct {
	binary      string
	speed       int
	burnTimeout time.Duration
	exec        Executor
}

// New constructs a wodim client from configuration.
func New(cfg *config.Config, opts ...Option) *Client {
	client := &Client{
		binary:      cfg.WodimBinary(),
		speed:       cfg.Disc.Speed,
		burnTimeout: time.Duration(cfg.Burning.BurnTimeout) * time.Second,
		exec:        commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Burn writes the request's tracks to the device, forwarding progress as
// wodim reports it. The write is not interrupted on context cancellation
// once wodim is fixating; killing the writer mid-session ruins the disc
// either way, so cancellation simply surfaces after the process exits.
func (c *Client) Burn(ctx context.Context, device string, req Request, progress func(ProgressUpdate)) error {
	if len(req.TrackPaths) == 0 {
		return services.Wrap(services.ErrValidation, "burn", "write", "no tracks to burn", nil)
	}
	for _, path := range req.TrackPaths {
		if _, err := os.Stat(path); err != nil {
			return services.Wrap(services.ErrStaging, "burn", "write",
				fmt.Sprintf("staged track missing: %s", path), err)
		}
	}

	burnCtx := ctx
	if c.burnTimeout > 0 {
		var cancel context.CancelFunc
		burnCtx, cancel = context.WithTimeout(ctx, c.burnTimeout)
		defer cancel()
	}

	args := []string{"-v"}
	if req.Mode == capacity.ModeTAO {
		args = append(args, "-tao")
	} else {
		args = append(args, "-dao")
	}
	args = append(args, "-pad", "-audio")
	if req.Eject {
		args = append(args, "-eject")
	}
	args = append(args,
		fmt.Sprintf("speed=%d", c.speed),
		fmt.Sprintf("dev=%s", device),
	)
	args = append(args, req.TrackPaths...)

	totalTracks := len(req.TrackPaths)
	currentTrack := 0
	var toolError string
	// wodim output arrives from the stdout and stderr scanners concurrently;
	// the mutex covers the tracking state and keeps progress calls serialized.
	var mu sync.Mutex
	if err := c.exec.Run(burnCtx, c.binary, args, func(line string) {
		mu.Lock()
		defer mu.Unlock()
		update, ok := parseWodimLine(line, currentTrack, totalTracks)
		if !ok {
			return
		}
		if update.Track > currentTrack {
			currentTrack = update.Track
		}
		if update.Stage == "Error" && toolError == "" {
			toolError = update.Message
		}
		if progress != nil {
			progress(update)
		}
	}); err != nil {
		detail := fmt.Sprintf("wodim on %s", device)
		if toolError != "" {
			detail = fmt.Sprintf("%s: %s", detail, toolError)
		}
		return services.Wrap(services.ErrExternalTool, "burn", "write", detail, err)
	}
	if toolError != "" {
		return services.Wrap(services.ErrExternalTool, "burn", "write",
			fmt.Sprintf("wodim on %s: %s", device, toolError), nil)
	}

	if progress != nil {
		progress(ProgressUpdate{
			Stage:       "Complete",
			Track:       totalTracks,
			TotalTracks: totalTracks,
			Percent:     100,
			Message:     "burn complete",
		})
	}
	return nil
}

// Verify reads the freshly written table of contents and checks it against
// the plan. The drive needs a moment to settle after fixation, so transient
// read failures are retried briefly before failing verification.
func (c *Client) Verify(ctx context.Context, device string, req Request) error {
	const (
		attempts = 3
		settle   = 2 * time.Second
	)

	var (
		toc TOC
		err error
	)
	for attempt := 0; attempt < attempts; attempt++ {
		toc, err = c.ReadTOC(ctx, device)
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(settle):
		}
	}
	if err != nil {
		return services.Wrap(services.ErrVerification, "burn", "verify",
			fmt.Sprintf("read TOC on %s", device), err)
	}

	if toc.TrackCount != len(req.TrackPaths) {
		return services.Wrap(services.ErrVerification, "burn", "verify",
			fmt.Sprintf("disc has %d tracks, expected %d", toc.TrackCount, len(req.TrackPaths)), nil)
	}
	if drift := toc.LeadOutFrames - req.ExpectedFrames; drift > tocFrameTolerance || drift < -tocFrameTolerance {
		return services.Wrap(services.ErrVerification, "burn", "verify",
			fmt.Sprintf("disc length %d frames, expected %d (tolerance %d)",
				toc.LeadOutFrames, req.ExpectedFrames, tocFrameTolerance), nil)
	}
	return nil
}

// ReadTOC queries the disc's table of contents.
func (c *Client) ReadTOC(ctx context.Context, device string) (TOC, error) {
	var (
		mu    sync.Mutex
		lines []string
	)
	err := c.exec.Run(ctx, c.binary, []string{fmt.Sprintf("dev=%s", device), "-toc"}, func(line string) {
		mu.Lock()
		lines = append(lines, line)
		mu.Unlock()
	})
	toc, parseErr := ParseTOC(strings.Join(lines, "\n"))
	if parseErr != nil {
		if err != nil {
			return TOC{}, fmt.Errorf("%w: %s", err, parseErr)
		}
		return TOC{}, parseErr
	}
	// wodim often exits non-zero after informational queries; a parseable
	// TOC wins over the exit status.
	return toc, nil
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onOutput func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	var scanErr error
	var once sync.Once

	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if onOutput != nil {
				onOutput(scanner.Text())
			}
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
		}
	}

	wg.Add(2)
	go scan(stdout)
	go scan(stderr)

	wg.Wait()
	if scanErr != nil {
		_ = cmd.Process.Kill()
		return fmt.Errorf("scan output: %w", scanErr)
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}
