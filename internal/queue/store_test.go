package queue_test

import (
	"context"
	"testing"

	"chevelle/internal/queue"
	"chevelle/internal/testsupport"
)

func newStore(t *testing.T) *queue.Store {
	t.Helper()
	return testsupport.MustOpenStore(t, testsupport.NewConfig(t))
}

func seedSession(t *testing.T, store *queue.Store) *queue.Session {
	t.Helper()
	session := &queue.Session{
		ID:             "11111111-2222-3333-4444-555555555555",
		Device:         "/dev/sr0",
		Mode:           "dao",
		CapacityFrames: 333000,
		TrackCount:     3,
		DiscCount:      2,
	}
	if err := store.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return session
}

func TestCreateAndFetchJob(t *testing.T) {
	store := newStore(t)
	session := seedSession(t, store)
	ctx := context.Background()

	job, err := store.CreateJob(ctx, &queue.BurnJob{
		SessionID:   session.ID,
		DiscIndex:   1,
		TrackCount:  2,
		TotalFrames: 300000,
		Mode:        "dao",
		TracksJSON:  `[{"index":1}]`,
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if job.ID == 0 {
		t.Fatal("expected assigned job id")
	}
	if job.Status != queue.StatusPending {
		t.Fatalf("new job status = %s", job.Status)
	}

	fetched, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if fetched == nil || fetched.TotalFrames != 300000 || fetched.TracksJSON != `[{"index":1}]` {
		t.Fatalf("fetched job mismatch: %+v", fetched)
	}
}

func TestGetJobMissingReturnsNil(t *testing.T) {
	store := newStore(t)
	job, err := store.GetJob(context.Background(), 999)
	if err != nil {
		t.Fatalf("get missing job: %v", err)
	}
	if job != nil {
		t.Fatalf("expected nil job, got %+v", job)
	}
}

func TestJobsBySessionOrdered(t *testing.T) {
	store := newStore(t)
	session := seedSession(t, store)
	ctx := context.Background()

	for _, idx := range []int{2, 1, 3} {
		if _, err := store.CreateJob(ctx, &queue.BurnJob{
			SessionID: session.ID, DiscIndex: idx, TrackCount: 1,
			TotalFrames: 1000, Mode: "dao",
		}); err != nil {
			t.Fatalf("create job %d: %v", idx, err)
		}
	}

	jobs, err := store.JobsBySession(ctx, session.ID)
	if err != nil {
		t.Fatalf("jobs by session: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	for i, job := range jobs {
		if job.DiscIndex != i+1 {
			t.Fatalf("position %d has disc index %d", i, job.DiscIndex)
		}
	}
}

func TestTransitionEnforcesStateMachine(t *testing.T) {
	store := newStore(t)
	session := seedSession(t, store)
	ctx := context.Background()

	job, err := store.CreateJob(ctx, &queue.BurnJob{
		SessionID: session.ID, DiscIndex: 1, TrackCount: 1,
		TotalFrames: 1000, Mode: "dao",
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	if err := store.Transition(ctx, job, queue.StatusBurning); err == nil {
		t.Fatal("pending -> burning should be rejected")
	}
	if job.Status != queue.StatusPending {
		t.Fatalf("rejected transition mutated job: %s", job.Status)
	}

	for _, next := range []queue.Status{queue.StatusStaging, queue.StatusStaged, queue.StatusBurning} {
		if err := store.Transition(ctx, job, next); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}

	fetched, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if fetched.Status != queue.StatusBurning {
		t.Fatalf("persisted status = %s", fetched.Status)
	}
}

func TestUpdateJobPersistsProgress(t *testing.T) {
	store := newStore(t)
	session := seedSession(t, store)
	ctx := context.Background()

	job, err := store.CreateJob(ctx, &queue.BurnJob{
		SessionID: session.ID, DiscIndex: 1, TrackCount: 1,
		TotalFrames: 1000, Mode: "tao",
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	job.SetProgress("Burning", "track 1 of 3", 33.3)
	job.ImagePath = "/tmp/CD_01.img"
	job.CuePath = "/tmp/CD_01.cue"
	if err := store.UpdateJob(ctx, job); err != nil {
		t.Fatalf("update job: %v", err)
	}

	fetched, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if fetched.ProgressStage != "Burning" || fetched.ProgressPercent != 33.3 {
		t.Fatalf("progress not persisted: %+v", fetched)
	}
	if fetched.ImagePath != "/tmp/CD_01.img" || fetched.CuePath != "/tmp/CD_01.cue" {
		t.Fatalf("paths not persisted: %+v", fetched)
	}
}

func TestSessionLifecycle(t *testing.T) {
	store := newStore(t)
	session := seedSession(t, store)
	ctx := context.Background()

	latest, err := store.LatestSession(ctx)
	if err != nil {
		t.Fatalf("latest session: %v", err)
	}
	if latest == nil || latest.ID != session.ID {
		t.Fatalf("latest session mismatch: %+v", latest)
	}
	if latest.Status != queue.SessionRunning {
		t.Fatalf("new session status = %s", latest.Status)
	}
	if latest.FinishedAt != nil {
		t.Fatal("running session should have no finish time")
	}

	if err := store.FinishSession(ctx, session.ID, queue.SessionCompleted); err != nil {
		t.Fatalf("finish session: %v", err)
	}
	latest, err = store.LatestSession(ctx)
	if err != nil {
		t.Fatalf("latest session: %v", err)
	}
	if latest.Status != queue.SessionCompleted || latest.FinishedAt == nil {
		t.Fatalf("finish not persisted: %+v", latest)
	}
}

func TestFinishUnknownSession(t *testing.T) {
	store := newStore(t)
	if err := store.FinishSession(context.Background(), "nope", queue.SessionFailed); err == nil {
		t.Fatal("expected error for unknown session")
	}
}
