package workflow

// EventType labels what a session event describes.
type EventType string

const (
	EventSessionStarted EventType = "session_started"
	EventDiscStaging    EventType = "disc_staging"
	EventTrackStaged    EventType = "track_staged"
	EventDiscStaged     EventType = "disc_staged"
	EventWaitingMedia   EventType = "waiting_for_media"
	EventDiscBurning    EventType = "disc_burning"
	EventDiscVerifying  EventType = "disc_verifying"
	EventDiscCompleted  EventType = "disc_completed"
	EventDiscFailed     EventType = "disc_failed"
	EventDiscRetrying   EventType = "disc_retrying"
	EventDiscCancelled  EventType = "disc_cancelled"
	EventSessionDone    EventType = "session_done"
)

// Event is a progress report emitted while a session runs. DiscIndex is zero
// for session-level events. Frames carries the session-wide running total of
// transcoded CD frames on track_staged events.
type Event struct {
	Type      EventType
	DiscIndex int
	DiscCount int
	Label     string
	Percent   float64
	Frames    int64
	Message   string
}

// EventSink receives session events. Sinks must not block; slow consumers
// stall burn progress bookkeeping.
type EventSink func(Event)

func (m *Manager) emit(event Event) {
	if m.sink != nil {
		m.sink(event)
	}
}
