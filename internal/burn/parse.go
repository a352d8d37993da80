package burn

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// tocFrameTolerance is how far the written lead-out may land from the
// planned disc length. Drives round session lead-in/lead-out placement to
// whole gap units.
const tocFrameTolerance = 150

// trackProgressPattern matches wodim's per-track write reports:
// "Track 01:   12 of   45 MB written (fifo 100%) [buf  99%]   4.0x."
var trackProgressPattern = regexp.MustCompile(`Track (\d+):\s+(\d+) of\s+(\d+) MB written`)

// tocTrackPattern matches wodim -toc entries:
// "track:   1 lba:         0 (        0) 00:02:00 adr: 1 control: 0 mode: -1"
var tocTrackPattern = regexp.MustCompile(`track:\s*(\S+)\s+lba:\s*(\d+)`)

// parseWodimLine interprets one line of wodim output. Lines with no signal
// report ok=false.
func parseWodimLine(line string, currentTrack, totalTracks int) (ProgressUpdate, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return ProgressUpdate{}, false
	}
	lower := strings.ToLower(line)

	if match := trackProgressPattern.FindStringSubmatch(line); match != nil {
		trackNum, _ := strconv.Atoi(match[1])
		written, _ := strconv.Atoi(match[2])
		total, _ := strconv.Atoi(match[3])

		var trackProgress float64
		if total > 0 {
			trackProgress = float64(written) / float64(total) * 100
		}
		overall := float64(trackNum-1)/float64(totalTracks)*100 + trackProgress/float64(totalTracks)
		if overall > 99 {
			overall = 99
		}
		return ProgressUpdate{
			Stage:       "Burning",
			Track:       trackNum,
			TotalTracks: totalTracks,
			Percent:     overall,
			Message:     fmt.Sprintf("track %d/%d: %d/%d MB", trackNum, totalTracks, written, total),
		}, true
	}

	if strings.Contains(lower, "fixat") {
		return ProgressUpdate{
			Stage:       "Fixating",
			Track:       totalTracks,
			TotalTracks: totalTracks,
			Percent:     99,
			Message:     "fixating disc",
		}, true
	}

	if strings.Contains(lower, "starting") && strings.Contains(lower, "track") {
		return ProgressUpdate{
			Stage:       "Burning",
			Track:       currentTrack + 1,
			TotalTracks: totalTracks,
			Percent:     float64(currentTrack) / float64(totalTracks) * 100,
			Message:     line,
		}, true
	}

	if strings.Contains(lower, "error") || strings.Contains(lower, "cannot") || strings.Contains(lower, "failed") {
		return ProgressUpdate{
			Stage:   "Error",
			Message: classifyErrorLine(lower, line),
		}, true
	}

	return ProgressUpdate{}, false
}

// classifyErrorLine turns wodim's raw complaints into actionable messages.
func classifyErrorLine(lower, raw string) string {
	switch {
	case strings.Contains(lower, "not ready"):
		return "drive not ready - no disc inserted?"
	case strings.Contains(lower, "errno: 5"), strings.Contains(lower, "input/output error"):
		return "I/O error - check the disc and drive"
	case strings.Contains(lower, "no disk"), strings.Contains(lower, "no disc"):
		return "no disc in drive"
	case strings.Contains(lower, "not permitted"):
		return "permission denied opening the burner device"
	case strings.Contains(lower, "cannot open"):
		return "cannot open drive - check the device path"
	default:
		return raw
	}
}

// TOC is the disc layout wodim reads back after a burn.
type TOC struct {
	TrackCount    int
	LeadOutFrames int64
}

// ParseTOC extracts track count and lead-out position from wodim -toc
// output. The lead-out LBA is the total disc length in frames.
func ParseTOC(output string) (TOC, error) {
	var toc TOC
	found := false
	for _, match := range tocTrackPattern.FindAllStringSubmatch(output, -1) {
		found = true
		lba, err := strconv.ParseInt(match[2], 10, 64)
		if err != nil {
			continue
		}
		if match[1] == "lout" {
			toc.LeadOutFrames = lba
			continue
		}
		toc.TrackCount++
	}
	if !found {
		return TOC{}, fmt.Errorf("no table of contents in output")
	}
	return toc, nil
}
