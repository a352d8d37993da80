package disc

import (
	"context"
	"fmt"
	"strings"
)

// MediaStatus summarizes what the drive reports about inserted media.
type MediaStatus struct {
	Present bool
	Blank   bool
	Type    string
}

// CheckMedia interrogates the drive with wodim -atip and interprets the
// output. wodim's ATIP report is loosely structured, so this is heuristic:
// erasable or explicitly blank media counts as writable.
func (s *Scanner) CheckMedia(ctx context.Context, device string) (MediaStatus, error) {
	device = strings.TrimSpace(device)
	if device == "" {
		return MediaStatus{}, fmt.Errorf("empty device path")
	}

	output, err := s.exec.Output(ctx, s.binary, []string{fmt.Sprintf("dev=%s", device), "-atip"})
	// A failed query with no output at all means the drive itself is
	// unreachable; partial output still carries the ATIP block.
	if err != nil && len(output) == 0 {
		return MediaStatus{}, fmt.Errorf("query media on %s: %w", device, err)
	}
	return ParseATIP(string(output)), nil
}

// ParseATIP interprets wodim -atip output.
func ParseATIP(output string) MediaStatus {
	lower := strings.ToLower(output)
	status := MediaStatus{
		Present: strings.Contains(output, "ATIP") || strings.Contains(output, "Disc"),
		Blank:   strings.Contains(output, "Is erasable") || strings.Contains(lower, "blank"),
		Type:    "Unknown",
	}
	switch {
	case strings.Contains(output, "CD-RW"):
		status.Type = "CD-RW"
	case strings.Contains(output, "CD-R"):
		status.Type = "CD-R"
	}
	return status
}
