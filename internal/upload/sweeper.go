package upload

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sweeper periodically expires stale sessions and reclaims orphaned chunk
// storage. It never holds a lock across the full sweep: each entry is locked
// individually and briefly so ingestion is never blocked.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	log      *zap.Logger
}

// SweepStats summarizes one sweep pass.
type SweepStats struct {
	Expired int
	Purged  int
	Evicted int
	Orphans int
}

// NewSweeper constructs a sweeper over the given service.
func NewSweeper(svc *Service, interval time.Duration, log *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{svc: svc, interval: interval, log: log}
}

// Run sweeps on the configured interval until the context is cancelled.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("sweeper started", zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.log.Info("sweeper stopped")
			return
		case <-ticker.C:
			stats := w.Sweep(ctx)
			if stats.Expired+stats.Purged+stats.Evicted+stats.Orphans > 0 {
				w.log.Info("sweep completed",
					zap.Int("expired", stats.Expired),
					zap.Int("purged", stats.Purged),
					zap.Int("evicted", stats.Evicted),
					zap.Int("orphans", stats.Orphans))
			}
		}
	}
}

// Sweep runs a single pass: sessions past their TTL are expired and purged,
// failed sessions past the grace period lose their retained chunks, completed
// sessions past their TTL are evicted, and chunk storage with no registry
// entry is deleted.
func (w *Sweeper) Sweep(ctx context.Context) SweepStats {
	now := w.svc.clock.Now()
	var stats SweepStats
	var evs []Event

	w.svc.mu.RLock()
	entries := make([]*session, 0, len(w.svc.sessions))
	for _, e := range w.svc.sessions {
		entries = append(entries, e)
	}
	w.svc.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		switch e.state {
		case StateCompleted:
			// Chunks were released at finalization; the entry is kept
			// read-only until its TTL passes.
			if !now.Before(e.expiresAt) {
				e.mu.Unlock()
				w.remove(e.id)
				stats.Evicted++
				continue
			}
			e.mu.Unlock()

		case StateExpired, StateCancelled:
			e.mu.Unlock()
			w.reclaim(ctx, e.id)
			w.remove(e.id)
			stats.Purged++

		case StateFailed:
			if now.Sub(e.lastActivity) >= w.svc.cfg.FailedGrace {
				e.mu.Unlock()
				w.reclaim(ctx, e.id)
				w.remove(e.id)
				stats.Purged++
				continue
			}
			e.mu.Unlock()

		default:
			if !now.Before(e.expiresAt) {
				e.state = StateExpired
				w.svc.persistSession(ctx, e.snapshot())
				evs = append(evs, e.event(EventSessionExpired, -1, now))
				e.mu.Unlock()
				w.reclaim(ctx, e.id)
				w.remove(e.id)
				stats.Expired++
				continue
			}
			e.mu.Unlock()
		}
	}

	// Second pass: reconcile chunk storage against the registry. Storage with
	// no live session is a crash-recovery orphan.
	ids, err := w.svc.chunks.Sessions(ctx)
	if err != nil {
		w.log.Warn("list chunk storage", zap.Error(err))
	} else {
		for _, id := range ids {
			w.svc.mu.RLock()
			_, live := w.svc.sessions[id]
			w.svc.mu.RUnlock()
			if live {
				continue
			}
			if err := w.svc.chunks.DeleteAll(ctx, id); err != nil {
				w.log.Warn("delete orphaned chunks",
					zap.String("session_id", id.String()), zap.Error(err))
				continue
			}
			stats.Orphans++
		}
	}

	w.svc.emit(evs...)
	return stats
}

func (w *Sweeper) reclaim(ctx context.Context, id uuid.UUID) {
	if err := w.svc.chunks.DeleteAll(ctx, id); err != nil {
		w.log.Warn("reclaim chunk storage",
			zap.String("session_id", id.String()), zap.Error(err))
	}
}

func (w *Sweeper) remove(id uuid.UUID) {
	w.svc.mu.Lock()
	delete(w.svc.sessions, id)
	w.svc.mu.Unlock()
}
