package upload

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestSweepExpiresLiveSessions(t *testing.T) {
	svc, env := newTestService(t)
	owner := uuid.New()
	session := mustCreate(t, svc, owner, 10, 4)

	if _, err := svc.SubmitChunk(context.Background(), owner, session.ID, 0, testPayload[0:4], ""); err != nil {
		t.Fatalf("SubmitChunk returned error: %v", err)
	}

	sweeper := NewSweeper(svc, time.Minute, nil)

	// Within the TTL nothing moves.
	stats := sweeper.Sweep(context.Background())
	if stats.Expired != 0 {
		t.Fatalf("expected no expiry within TTL, got %+v", stats)
	}

	env.clock.advance(time.Hour + time.Minute)
	stats = sweeper.Sweep(context.Background())
	if stats.Expired != 1 {
		t.Fatalf("expected 1 expired session, got %+v", stats)
	}
	if env.chunks.deleteCalls() != 1 {
		t.Fatalf("expected chunk storage reclaimed, got %d deletes", env.chunks.deleteCalls())
	}
	if _, err := svc.Progress(context.Background(), owner, session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expired session to be removed, got %v", err)
	}

	types := env.events.types()
	if types[len(types)-1] != EventSessionExpired {
		t.Fatalf("expected session_expired event, got %v", types)
	}
}

func TestSweepPurgesLazilyExpiredSessions(t *testing.T) {
	svc, env := newTestService(t)
	owner := uuid.New()
	session := mustCreate(t, svc, owner, 10, 4)

	// An operation flips the state first; the sweeper only purges.
	env.clock.advance(2 * time.Hour)
	if _, err := svc.Progress(context.Background(), owner, session.ID); err != nil {
		t.Fatalf("Progress returned error: %v", err)
	}

	sweeper := NewSweeper(svc, time.Minute, nil)
	stats := sweeper.Sweep(context.Background())
	if stats.Purged != 1 || stats.Expired != 0 {
		t.Fatalf("expected 1 purged already-expired session, got %+v", stats)
	}
}

func TestSweepPurgesFailedSessionsAfterGrace(t *testing.T) {
	svc, env := newTestService(t)
	owner := uuid.New()
	session := mustCreate(t, svc, owner, 10, 4)

	// Exhaust retries to fail the session.
	for i := 0; i < 3; i++ {
		svc.SubmitChunk(context.Background(), owner, session.ID, 0, []byte("012"), "")
	}
	snap := mustFind(t, svc, owner, session.ID)
	if snap.State != StateFailed {
		t.Fatalf("expected failed state, got %s", snap.State)
	}

	sweeper := NewSweeper(svc, time.Minute, nil)

	// Inside the grace window the chunks stay for diagnosis.
	stats := sweeper.Sweep(context.Background())
	if stats.Purged != 0 {
		t.Fatalf("expected failed session kept within grace, got %+v", stats)
	}

	env.clock.advance(31 * time.Minute)
	stats = sweeper.Sweep(context.Background())
	if stats.Purged != 1 {
		t.Fatalf("expected 1 purged failed session, got %+v", stats)
	}
	if _, err := svc.Progress(context.Background(), owner, session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected purged session to be removed, got %v", err)
	}
}

func TestSweepEvictsCompletedSessionsAfterTTL(t *testing.T) {
	svc, env := newTestService(t)
	owner := uuid.New()
	session := completeSession(t, svc, owner)

	sweeper := NewSweeper(svc, time.Minute, nil)

	// Completed sessions stay queryable until their TTL runs out.
	stats := sweeper.Sweep(context.Background())
	if stats.Evicted != 0 {
		t.Fatalf("expected completed session retained, got %+v", stats)
	}
	if _, err := svc.Progress(context.Background(), owner, session.ID); err != nil {
		t.Fatalf("Progress on completed session failed: %v", err)
	}

	deletesAfterFinalize := env.chunks.deleteCalls()

	env.clock.advance(2 * time.Hour)
	stats = sweeper.Sweep(context.Background())
	if stats.Evicted != 1 {
		t.Fatalf("expected 1 evicted session, got %+v", stats)
	}
	// Chunks were already released at finalization; eviction frees no storage.
	if env.chunks.deleteCalls() != deletesAfterFinalize {
		t.Fatalf("eviction must not touch chunk storage again")
	}
}

func TestSweepReconcilesOrphanedChunks(t *testing.T) {
	svc, env := newTestService(t)
	owner := uuid.New()
	live := mustCreate(t, svc, owner, 10, 4)
	if _, err := svc.SubmitChunk(context.Background(), owner, live.ID, 0, testPayload[0:4], ""); err != nil {
		t.Fatalf("SubmitChunk returned error: %v", err)
	}

	// Leftovers of a session that never survived a crash.
	orphan := uuid.New()
	env.chunks.seed(orphan, 0, []byte("stale"))
	env.chunks.seed(orphan, 1, []byte("stale"))

	sweeper := NewSweeper(svc, time.Minute, nil)
	stats := sweeper.Sweep(context.Background())
	if stats.Orphans != 1 {
		t.Fatalf("expected 1 orphan reclaimed, got %+v", stats)
	}

	// The live session's storage is untouched.
	rc, err := env.chunks.Get(context.Background(), live.ID, 0)
	if err != nil {
		t.Fatalf("live chunk storage was reclaimed: %v", err)
	}
	rc.Close()
	if _, err := env.chunks.Get(context.Background(), orphan, 0); err == nil {
		t.Fatalf("orphaned chunk storage still present")
	}
}
