package burn_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"chevelle/internal/burn"
	"chevelle/internal/capacity"
	"chevelle/internal/config"
	"chevelle/internal/services"
)

type stubExecutor struct {
	lines []string
	err   error
	calls [][]string
}

func (s *stubExecutor) Run(ctx context.Context, binary string, args []string, onOutput func(string)) error {
	s.calls = append(s.calls, append([]string{binary}, args...))
	for _, line := range s.lines {
		if onOutput != nil {
			onOutput(line)
		}
	}
	return s.err
}

func stagedTracks(t *testing.T, count int) []string {
	t.Helper()
	dir := t.TempDir()
	var paths []string
	for i := 1; i <= count; i++ {
		path := filepath.Join(dir, fmt.Sprintf("track_%02d.pcm", i))
		if err := os.WriteFile(path, []byte("pcm"), 0o644); err != nil {
			t.Fatalf("write track: %v", err)
		}
		paths = append(paths, path)
	}
	return paths
}

func newClient(stub burn.Executor) *burn.Client {
	cfg := config.Default()
	cfg.Disc.Speed = 8
	return burn.New(&cfg, burn.WithExecutor(stub))
}

func TestBurnBuildsWodimCommand(t *testing.T) {
	stub := &stubExecutor{}
	client := newClient(stub)
	req := burn.Request{
		Mode:       capacity.ModeDAO,
		TrackPaths: stagedTracks(t, 2),
		Eject:      true,
	}
	if err := client.Burn(context.Background(), "/dev/sr0", req, nil); err != nil {
		t.Fatalf("Burn failed: %v", err)
	}
	args := stub.calls[0]
	joined := strings.Join(args, " ")
	for _, want := range []string{"wodim", "-v", "-dao", "-pad", "-audio", "-eject", "speed=8", "dev=/dev/sr0"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("command missing %q: %v", want, args)
		}
	}
	if strings.Contains(joined, "-tao") {
		t.Fatal("DAO burn must not pass -tao")
	}
}

func TestBurnTAOMode(t *testing.T) {
	stub := &stubExecutor{}
	client := newClient(stub)
	req := burn.Request{Mode: capacity.ModeTAO, TrackPaths: stagedTracks(t, 1)}
	if err := client.Burn(context.Background(), "/dev/sr0", req, nil); err != nil {
		t.Fatalf("Burn failed: %v", err)
	}
	if !strings.Contains(strings.Join(stub.calls[0], " "), "-tao") {
		t.Fatalf("TAO burn must pass -tao: %v", stub.calls[0])
	}
}

func TestBurnReportsProgress(t *testing.T) {
	stub := &stubExecutor{lines: []string{
		"Starting new track at sector: 0",
		"Track 01:   12 of   45 MB written (fifo 100%) [buf  99%]   4.0x.",
		"Track 02:   10 of   20 MB written (fifo 100%) [buf  98%]   4.0x.",
		"Fixating...",
	}}
	client := newClient(stub)
	req := burn.Request{Mode: capacity.ModeDAO, TrackPaths: stagedTracks(t, 2)}

	var updates []burn.ProgressUpdate
	if err := client.Burn(context.Background(), "/dev/sr0", req, func(u burn.ProgressUpdate) {
		updates = append(updates, u)
	}); err != nil {
		t.Fatalf("Burn failed: %v", err)
	}

	var sawBurning, sawFixating, sawComplete bool
	for _, u := range updates {
		switch u.Stage {
		case "Burning":
			sawBurning = true
			if u.Track == 2 && u.Percent <= 50 {
				t.Fatalf("track 2 progress should pass 50%%, got %.1f", u.Percent)
			}
		case "Fixating":
			sawFixating = true
		case "Complete":
			sawComplete = true
			if u.Percent != 100 {
				t.Fatalf("completion percent = %.1f", u.Percent)
			}
		}
	}
	if !sawBurning || !sawFixating || !sawComplete {
		t.Fatalf("missing stages: burning=%v fixating=%v complete=%v", sawBurning, sawFixating, sawComplete)
	}
}

// splitExecutor delivers output the way the real executor does: half the
// lines from a stdout goroutine, half from a stderr goroutine, concurrently.
type splitExecutor struct {
	stdout []string
	stderr []string
	err    error
}

func (s *splitExecutor) Run(ctx context.Context, binary string, args []string, onOutput func(string)) error {
	var wg sync.WaitGroup
	feed := func(lines []string) {
		defer wg.Done()
		for _, line := range lines {
			if onOutput != nil {
				onOutput(line)
			}
		}
	}
	wg.Add(2)
	go feed(s.stdout)
	go feed(s.stderr)
	wg.Wait()
	return s.err
}

func TestBurnProgressFromConcurrentStreams(t *testing.T) {
	var stdout, stderr []string
	for i := 0; i < 200; i++ {
		stdout = append(stdout,
			fmt.Sprintf("Track 01: %4d of  100 MB written (fifo 100%%) [buf  99%%]   4.0x.", i%100))
		stderr = append(stderr,
			fmt.Sprintf("Track 02: %4d of  100 MB written (fifo 100%%) [buf  99%%]   4.0x.", i%100))
	}
	stderr = append(stderr, "wodim: Cannot open SCSI driver!")
	stub := &splitExecutor{stdout: stdout, stderr: stderr, err: errors.New("exit status 255")}
	client := newClient(stub)
	req := burn.Request{Mode: capacity.ModeDAO, TrackPaths: stagedTracks(t, 2)}

	// Burn serializes the callback, so plain variables are enough here.
	var (
		updates  int
		maxTrack int
		inFlight bool
	)
	err := client.Burn(context.Background(), "/dev/sr0", req, func(u burn.ProgressUpdate) {
		if inFlight {
			t.Error("progress callback entered concurrently")
		}
		inFlight = true
		updates++
		if u.Track > maxTrack {
			maxTrack = u.Track
		}
		inFlight = false
	})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), "cannot open drive") {
		t.Fatalf("error captured on the stderr stream should surface: %v", err)
	}
	if updates < 400 {
		t.Fatalf("got %d progress updates, want at least 400", updates)
	}
	if maxTrack != 2 {
		t.Fatalf("highest track = %d, want 2", maxTrack)
	}
}

func TestReadTOCFromConcurrentStreams(t *testing.T) {
	tocLines := strings.Split(strings.TrimSpace(tocOutput), "\n")
	stub := &splitExecutor{
		stdout: tocLines,
		stderr: []string{"wodim: informational noise", "more noise"},
	}
	client := newClient(stub)
	toc, err := client.ReadTOC(context.Background(), "/dev/sr0")
	if err != nil {
		t.Fatalf("ReadTOC failed: %v", err)
	}
	if toc.TrackCount != 2 || toc.LeadOutFrames != 331350 {
		t.Fatalf("unexpected TOC: %+v", toc)
	}
}

func TestBurnSurfacesToolError(t *testing.T) {
	stub := &stubExecutor{
		lines: []string{"wodim: Cannot open SCSI driver!"},
		err:   errors.New("exit status 255"),
	}
	client := newClient(stub)
	req := burn.Request{Mode: capacity.ModeDAO, TrackPaths: stagedTracks(t, 1)}
	err := client.Burn(context.Background(), "/dev/sr0", req, nil)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), "cannot open drive") {
		t.Fatalf("error should carry the classified cause: %v", err)
	}
	if !services.Retryable(err) {
		t.Fatal("burn failures should be retryable")
	}
}

func TestBurnRejectsMissingTrack(t *testing.T) {
	stub := &stubExecutor{}
	client := newClient(stub)
	req := burn.Request{Mode: capacity.ModeDAO, TrackPaths: []string{"/nonexistent/track.pcm"}}
	if err := client.Burn(context.Background(), "/dev/sr0", req, nil); !errors.Is(err, services.ErrStaging) {
		t.Fatalf("expected staging error, got %v", err)
	}
	if len(stub.calls) != 0 {
		t.Fatal("wodim must not run with missing inputs")
	}
}

const tocOutput = `track:   1 lba:         0 (        0) 00:02:00 adr: 1 control: 0 mode: -1
track:   2 lba:     13950 (    55800) 03:08:00 adr: 1 control: 0 mode: -1
track:lout lba:    331350 (  1325400) 73:40:00 adr: 1 control: 0 mode: -1
`

func TestParseTOC(t *testing.T) {
	toc, err := burn.ParseTOC(tocOutput)
	if err != nil {
		t.Fatalf("ParseTOC failed: %v", err)
	}
	if toc.TrackCount != 2 {
		t.Fatalf("track count = %d, want 2", toc.TrackCount)
	}
	if toc.LeadOutFrames != 331350 {
		t.Fatalf("lead-out = %d, want 331350", toc.LeadOutFrames)
	}
}

func TestParseTOCEmpty(t *testing.T) {
	if _, err := burn.ParseTOC("wodim: No disk / Wrong disk!"); err == nil {
		t.Fatal("expected error for missing TOC")
	}
}

func TestVerifyAcceptsTolerance(t *testing.T) {
	stub := &stubExecutor{lines: strings.Split(tocOutput, "\n")}
	client := newClient(stub)
	req := burn.Request{
		TrackPaths:     []string{"a", "b"},
		ExpectedFrames: 331300,
	}
	if err := client.Verify(context.Background(), "/dev/sr0", req); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
}

func TestVerifyRejectsTrackMismatch(t *testing.T) {
	stub := &stubExecutor{lines: strings.Split(tocOutput, "\n")}
	client := newClient(stub)
	req := burn.Request{
		TrackPaths:     []string{"a", "b", "c"},
		ExpectedFrames: 331350,
	}
	err := client.Verify(context.Background(), "/dev/sr0", req)
	if !errors.Is(err, services.ErrVerification) {
		t.Fatalf("expected verification error, got %v", err)
	}
}

func TestVerifyRejectsLengthDrift(t *testing.T) {
	stub := &stubExecutor{lines: strings.Split(tocOutput, "\n")}
	client := newClient(stub)
	req := burn.Request{
		TrackPaths:     []string{"a", "b"},
		ExpectedFrames: 300000,
	}
	if err := client.Verify(context.Background(), "/dev/sr0", req); !errors.Is(err, services.ErrVerification) {
		t.Fatalf("expected verification error, got %v", err)
	}
}

func TestDeviceLockSerializes(t *testing.T) {
	lock := burn.NewDeviceLock("/dev/sr0-test-" + t.Name())
	if err := lock.Acquire(context.Background(), time.Second); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	defer func() { _ = lock.Release() }()

	if lock.Path() == "" {
		t.Fatal("expected lock path")
	}
}

func TestDeviceLockTimeout(t *testing.T) {
	device := "/dev/sr0-test-" + t.Name()
	first := burn.NewDeviceLock(device)
	if err := first.Acquire(context.Background(), time.Second); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	defer func() { _ = first.Release() }()

	second := burn.NewDeviceLock(device)
	err := second.Acquire(context.Background(), 400*time.Millisecond)
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if services.Retryable(err) != true {
		t.Fatal("device timeouts are retryable")
	}
}
