package media

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"chevelle/internal/services"
)

// ProbeResult carries the stream facts the planner needs from one source file.
type ProbeResult struct {
	Duration     time.Duration
	SampleFormat string
	Codec        string
	SampleRate   int
	Channels     int
}

// Executor abstracts probe command execution for testability.
type Executor interface {
	Output(ctx context.Context, binary string, args []string) ([]byte, error)
}

// ProberOption configures the prober.
type ProberOption func(*Prober)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) ProberOption {
	return func(p *Prober) {
		if exec != nil {
			p.exec = exec
		}
	}
}

// Prober wraps ffprobe metadata extraction.
type Prober struct {
	binary string
	exec   Executor
}

// NewProber constructs an ffprobe-backed prober.
func NewProber(binary string, opts ...ProberOption) *Prober {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	prober := &Prober{binary: binary, exec: commandExecutor{}}
	for _, opt := range opts {
		opt(prober)
	}
	return prober
}

type probePayload struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Duration   string `json:"duration"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe inspects one source file and returns its exact duration and sample
// format. Files ffprobe cannot read, or with no audio stream, fail with a
// validation error.
func (p *Prober) Probe(ctx context.Context, path string) (ProbeResult, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return ProbeResult{}, services.Wrap(services.ErrValidation, "probe", "inspect", "empty path", nil)
	}

	args := []string{"-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path}
	output, err := p.exec.Output(ctx, p.binary, args)
	if err != nil {
		return ProbeResult{}, services.Wrap(services.ErrValidation, "probe", "inspect", path, err)
	}

	var payload probePayload
	if err := json.Unmarshal(output, &payload); err != nil {
		return ProbeResult{}, services.Wrap(services.ErrValidation, "probe", "parse", path, err)
	}

	result := ProbeResult{}
	for _, stream := range payload.Streams {
		if !strings.EqualFold(stream.CodecType, "audio") {
			continue
		}
		result.Codec = stream.CodecName
		result.SampleRate = int(parseFloat(stream.SampleRate))
		result.Channels = stream.Channels
		if seconds := parseFloat(stream.Duration); seconds > 0 {
			result.Duration = secondsToDuration(seconds)
		}
		break
	}
	if result.Codec == "" {
		return ProbeResult{}, services.Wrap(services.ErrValidation, "probe", "inspect",
			fmt.Sprintf("%s: no audio stream", path), nil)
	}
	if result.Duration <= 0 {
		if seconds := parseFloat(payload.Format.Duration); seconds > 0 {
			result.Duration = secondsToDuration(seconds)
		}
	}
	if result.Duration <= 0 {
		return ProbeResult{}, services.Wrap(services.ErrValidation, "probe", "inspect",
			fmt.Sprintf("%s: no usable duration", path), nil)
	}
	result.SampleFormat = fmt.Sprintf("%s %dHz %dch", result.Codec, result.SampleRate, result.Channels)
	return result, nil
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(math.Round(seconds * float64(time.Second)))
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return 0
}

type commandExecutor struct{}

func (commandExecutor) Output(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	return output, nil
}
