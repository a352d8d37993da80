package testsupport

import (
	"context"
	"testing"

	"chevelle/internal/config"
	"chevelle/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewSession creates a session row for tests using the provided store.
func NewSession(t testing.TB, store *queue.Store, cfg *config.Config, id string) *queue.Session {
	t.Helper()

	capacityFrames, err := cfg.CapacityFrames()
	if err != nil {
		t.Fatalf("capacity frames: %v", err)
	}
	session := &queue.Session{
		ID:             id,
		Device:         cfg.Disc.Device,
		Mode:           string(cfg.DiscMode()),
		CapacityFrames: capacityFrames,
	}
	if err := store.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("store.CreateSession: %v", err)
	}
	return session
}
