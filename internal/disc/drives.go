package disc

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
)

// Executor abstracts running disc utilities for testability.
type Executor interface {
	Output(ctx context.Context, binary string, args []string) ([]byte, error)
}

type commandExecutor struct{}

func (commandExecutor) Output(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		// wodim exits non-zero for informational queries on some drives;
		// callers work from the captured output either way.
		return output, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	return output, nil
}

var devicePattern = regexp.MustCompile(`(/dev/\w+)`)

// commonDevicePaths are checked when wodim reports nothing usable.
var commonDevicePaths = []string{"/dev/sr0", "/dev/sr1", "/dev/cdrom", "/dev/dvd"}

// Scanner discovers optical drives.
type Scanner struct {
	binary string
	exec   Executor
}

// ScannerOption configures the scanner.
type ScannerOption func(*Scanner)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) ScannerOption {
	return func(s *Scanner) {
		if exec != nil {
			s.exec = exec
		}
	}
}

// NewScanner constructs a wodim-backed drive scanner.
func NewScanner(binary string, opts ...ScannerOption) *Scanner {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "wodim"
	}
	s := &Scanner{binary: binary, exec: commandExecutor{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Discover lists candidate burner device paths, preferring what wodim
// reports and falling back to well-known device nodes.
func (s *Scanner) Discover(ctx context.Context) []string {
	var drives []string
	seen := map[string]struct{}{}

	if output, err := s.exec.Output(ctx, s.binary, []string{"--devices"}); err == nil || len(output) > 0 {
		drives = append(drives, ParseDeviceList(string(output), seen)...)
	}

	if len(drives) == 0 {
		for _, path := range commonDevicePaths {
			if _, err := os.Stat(path); err == nil {
				if _, dup := seen[path]; !dup {
					seen[path] = struct{}{}
					drives = append(drives, path)
				}
			}
		}
	}

	if len(drives) == 0 {
		drives = []string{"/dev/sr0"}
	}
	return drives
}

// ParseDeviceList extracts /dev paths from wodim --devices output, skipping
// duplicates already present in seen.
func ParseDeviceList(output string, seen map[string]struct{}) []string {
	if seen == nil {
		seen = map[string]struct{}{}
	}
	var drives []string
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, "/dev/") {
			continue
		}
		match := devicePattern.FindString(line)
		if match == "" {
			continue
		}
		if _, dup := seen[match]; dup {
			continue
		}
		seen[match] = struct{}{}
		drives = append(drives, match)
	}
	return drives
}
