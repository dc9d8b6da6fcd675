package service

import (
	"context"
	"sync"
	"time"

	"github.com/quorumsec/gatehouse/internal/identity/store"
	"github.com/quorumsec/gatehouse/pkg/slogx"
)

// DefaultSweepInterval is how often the housekeeping worker runs.
const DefaultSweepInterval = 20 * time.Second

// Housekeeper periodically deletes expired tickets, one-time codes, and
// login challenges. Sweep errors are logged and swallowed; expiry is also
// enforced at read time, so a failed sweep only delays reclamation.
type Housekeeper struct {
	Store store.Store

	// Interval between sweeps. Zero means DefaultSweepInterval.
	Interval time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

func NewHousekeeper(st store.Store, interval time.Duration) *Housekeeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Housekeeper{
		Store:    st,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the sweep loop. The first sweep runs after one interval.
func (h *Housekeeper) Start(ctx context.Context) {
	h.startOnce.Do(func() {
		go h.run(ctx)
	})
}

// Stop halts the loop, waiting for an in-flight sweep to finish.
func (h *Housekeeper) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
	})
	<-h.doneCh
}

func (h *Housekeeper) run(ctx context.Context) {
	defer close(h.doneCh)

	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.Sweep(ctx)
		case <-h.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Sweep runs one cleanup pass. Exported so tests and operators can trigger
// it directly.
func (h *Housekeeper) Sweep(ctx context.Context) {
	log := slogx.FromContext(ctx)
	now := time.Now().UTC()

	tickets, err := h.Store.Tickets().DeleteExpiredTickets(ctx, now)
	if err != nil {
		log.Error("expired ticket sweep failed", "err", err)
	}

	codes, err := h.Store.OneTimeCodes().DeleteExpiredCodes(ctx, now)
	if err != nil {
		log.Error("expired code sweep failed", "err", err)
	}

	challenges, err := h.Store.LoginChallenges().DeleteExpiredChallenges(ctx, now)
	if err != nil {
		log.Error("expired challenge sweep failed", "err", err)
	}

	if tickets > 0 || codes > 0 || challenges > 0 {
		log.Debug("housekeeping sweep",
			"tickets", tickets, "codes", codes, "challenges", challenges)
	}
}
