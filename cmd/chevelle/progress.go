package main

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"chevelle/internal/workflow"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

// progressPrinter renders workflow events as console lines. Staging and
// burning interleave, so every line is prefixed with its disc label.
type progressPrinter struct {
	mu       sync.Mutex
	out      io.Writer
	colorize bool
	// last whole percent printed per disc, to keep burn progress at one
	// line per percent instead of one per wodim output line.
	lastPercent map[int]int
}

func newProgressPrinter(out io.Writer, colorize bool) *progressPrinter {
	return &progressPrinter{
		out:         out,
		colorize:    colorize,
		lastPercent: make(map[int]int),
	}
}

func (p *progressPrinter) handle(event workflow.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch event.Type {
	case workflow.EventSessionStarted:
		p.line(ansiBlue, "session", event.Message)
	case workflow.EventDiscStaging:
		p.line("", event.Label, "staging")
	case workflow.EventTrackStaged:
		p.line("", "encode", fmt.Sprintf("%s staged, %d frames transcoded", event.Message, event.Frames))
	case workflow.EventDiscStaged:
		p.line("", event.Label, event.Message)
	case workflow.EventWaitingMedia:
		p.line(ansiYellow, event.Label, "waiting for blank media, "+event.Message)
	case workflow.EventDiscBurning:
		percent := int(event.Percent)
		if percent <= p.lastPercent[event.DiscIndex] {
			return
		}
		p.lastPercent[event.DiscIndex] = percent
		p.line("", event.Label, fmt.Sprintf("burning %3d%% %s", percent, event.Message))
	case workflow.EventDiscVerifying:
		p.line("", event.Label, "verifying")
	case workflow.EventDiscCompleted:
		p.line(ansiGreen, event.Label, fmt.Sprintf("completed (%d of %d)", event.DiscIndex, event.DiscCount))
	case workflow.EventDiscRetrying:
		p.line(ansiYellow, event.Label, "retrying: "+event.Message)
	case workflow.EventDiscFailed:
		p.line(ansiRed, event.Label, "failed: "+event.Message)
	case workflow.EventDiscCancelled:
		p.line(ansiYellow, event.Label, "cancelled")
	case workflow.EventSessionDone:
		p.line(ansiBlue, "session", event.Message)
	}
}

func (p *progressPrinter) summary(summary *workflow.Summary) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.line("", "session", fmt.Sprintf("%d tracks on %d discs in %s, %d frames transcoded",
		summary.TrackCount, summary.DiscCount, summary.Duration.Round(time.Second), summary.FramesTranscoded))
}

func (p *progressPrinter) line(color, label, message string) {
	text := fmt.Sprintf("%-8s %s", label, message)
	if p.colorize && color != "" {
		text = color + text + ansiReset
	}
	fmt.Fprintln(p.out, text)
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
