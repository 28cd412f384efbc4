package memory

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

type purger interface {
	purgeExpired(now time.Time) int
}

// Reaper periodically drops expired entries from in-memory stores. Expiry is
// always re-checked on read, so the reaper only bounds memory use.
type Reaper struct {
	stores   []purger
	interval time.Duration
	now      func() time.Time
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
	started  atomic.Bool
}

func NewReaper(interval time.Duration, verifications *VerificationStore, revocations *RevocationStore) *Reaper {
	return &Reaper{
		stores:   []purger{verifications, revocations},
		interval: interval,
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the background loop. Close must be called to stop it.
func (r *Reaper) Start() {
	if r.started.Swap(true) {
		return
	}
	go r.run()
}

func (r *Reaper) run() {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				slog.Debug("reaped expired auth records", "count", n)
			}
		}
	}
}

// Sweep purges every store once and returns how many records were dropped.
func (r *Reaper) Sweep() int {
	now := r.now()
	n := 0
	for _, s := range r.stores {
		n += s.purgeExpired(now)
	}
	return n
}

// Close stops the loop and waits for it to exit. Safe to call more than once
// and before Start has been called.
func (r *Reaper) Close() {
	r.once.Do(func() {
		close(r.stop)
	})
	if r.started.Load() {
		<-r.done
	}
}
