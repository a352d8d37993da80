package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a burn job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusStaging   Status = "staging"
	StatusStaged    Status = "staged"
	StatusBurning   Status = "burning"
	StatusVerifying Status = "verifying"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

var allStatuses = []Status{
	StatusPending,
	StatusStaging,
	StatusStaged,
	StatusBurning,
	StatusVerifying,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// forward holds the single legal forward step for each non-terminal status.
var forward = map[Status]Status{
	StatusPending:   StatusStaging,
	StatusStaging:   StatusStaged,
	StatusStaged:    StatusBurning,
	StatusBurning:   StatusVerifying,
	StatusVerifying: StatusCompleted,
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status ends the job's lifecycle. Failed is
// terminal only once retries are exhausted; the reset back to pending goes
// through CanTransition like every other edge.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a job may move from one status to another.
// Jobs only ever move forward through the pipeline; the two exceptions are
// failing out of any non-terminal state and the retry reset failed→pending,
// which restarts the job from scratch on fresh media.
func CanTransition(from, to Status) bool {
	if _, known := statusSet[from]; !known {
		return false
	}
	if _, known := statusSet[to]; !known {
		return false
	}
	if from == to {
		return false
	}
	switch to {
	case StatusFailed:
		return !from.IsTerminal()
	case StatusCancelled:
		// A burn already writing is allowed to finish; only jobs that have
		// not reached the device can be cancelled.
		return from == StatusPending || from == StatusStaging || from == StatusStaged
	case StatusPending:
		return from == StatusFailed
	default:
		return forward[from] == to
	}
}

// BurnJob tracks one disc plan through staging, burning, and verification.
// Owned exclusively by the session executing it.
type BurnJob struct {
	ID              int64
	SessionID       string
	DiscIndex       int
	TrackCount      int
	TotalFrames     int64
	Mode            string
	Status          Status
	Attempt         int
	ImagePath       string
	CuePath         string
	ErrorMessage    string
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
	TracksJSON      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SetProgress updates the progress triple in one step.
func (j *BurnJob) SetProgress(stage, message string, percent float64) {
	j.ProgressStage = stage
	j.ProgressMessage = message
	j.ProgressPercent = percent
}

// SetFailed marks the job failed with the given reason.
func (j *BurnJob) SetFailed(message string) {
	j.Status = StatusFailed
	j.ErrorMessage = message
	j.ProgressStage = "Failed"
	j.ProgressMessage = message
	j.ProgressPercent = 0
}

// Session summarizes one mastering run.
type Session struct {
	ID             string
	Device         string
	Mode           string
	CapacityFrames int64
	TrackCount     int
	DiscCount      int
	Status         string
	StartedAt      time.Time
	FinishedAt     *time.Time
}

// Session lifecycle labels persisted on the sessions table.
const (
	SessionRunning   = "running"
	SessionCompleted = "completed"
	SessionFailed    = "failed"
	SessionCancelled = "cancelled"
)
