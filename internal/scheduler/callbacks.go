// Package scheduler redials calls whose scheduled callback time has arrived.
package scheduler

import (
	"context"
	"time"

	"voicebot/internal/calls"
	"voicebot/internal/dialout"
	"voicebot/pkg/logger"
)

// BatchSize caps how many due callbacks one poll handles.
const BatchSize = 50

type Store interface {
	ListDueCallbacks(ctx context.Context, now time.Time, limit int) ([]calls.CallRecord, error)
	ClearCallback(ctx context.Context, id string) error
}

type Redialer interface {
	Redial(ctx context.Context, id string) (dialout.Outcome, error)
}

// Claimer ensures one process dials a given callback. utils.RedisClaimer satisfies it.
// A claim is released when the redial fails so the next poll retries it.
type Claimer interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

type Worker struct {
	store    Store
	dialer   Redialer
	claimer  Claimer
	interval time.Duration
	clock    func() time.Time
}

func NewWorker(store Store, dialer Redialer, claimer Claimer, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Worker{store: store, dialer: dialer, claimer: claimer, interval: interval, clock: time.Now}
}

// Run polls until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.Poll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll dials every due callback once and returns how many were dialed.
func (w *Worker) Poll(ctx context.Context) int {
	log := logger.From(ctx)
	due, err := w.store.ListDueCallbacks(ctx, w.clock().UTC(), BatchSize)
	if err != nil {
		log.Error("list due callbacks failed", "err", err)
		return 0
	}

	dialed := 0
	for _, rec := range due {
		if ctx.Err() != nil {
			break
		}
		key := "callback:" + rec.ID
		if w.claimer != nil {
			ok, err := w.claimer.Claim(ctx, key)
			if err != nil {
				log.Warn("callback claim failed", "id", rec.ID, "err", err)
				continue
			}
			if !ok {
				continue
			}
		}

		o, err := w.dialer.Redial(ctx, rec.ID)
		if err != nil {
			log.Error("callback redial failed", "id", rec.ID, "call_sid", rec.CallSID, "err", err)
			if w.claimer != nil {
				if err := w.claimer.Release(ctx, key); err != nil {
					log.Warn("callback claim not released", "id", rec.ID, "err", err)
				}
			}
			continue
		}
		if err := w.store.ClearCallback(ctx, rec.ID); err != nil {
			log.Error("callback not cleared", "id", rec.ID, "err", err)
		}
		log.Info("callback dialed", "id", rec.ID, "new_call_sid", o.CallSID)
		dialed++
	}
	return dialed
}
