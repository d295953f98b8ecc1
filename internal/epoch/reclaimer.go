package epoch

import (
	"context"
	"sync"
	"time"
)

// retired is a value whose destruction was deferred until epoch at is
// provably unreachable from any reader.
type retired struct {
	at   uint64
	free func()
}

// Reclaimer batches retired values and frees them once SafeToReclaim holds.
// Its collect/drain ticker loop follows the same shape as this codebase's
// other periodic background workers (run until ctx is cancelled or Stop is
// called, flush whatever is pending), repurposed here from periodic
// collection to deferred memory reclaim.
type Reclaimer struct {
	e        *Epoch
	interval time.Duration

	mu      sync.Mutex
	pending []retired

	done chan struct{}
	stop chan struct{}
}

// NewReclaimer returns a Reclaimer that checks its pending queue every
// interval (a small default is used if interval <= 0).
func NewReclaimer(e *Epoch, interval time.Duration) *Reclaimer {
	if interval <= 0 {
		interval = 5 * time.Millisecond
	}
	return &Reclaimer{
		e:        e,
		interval: interval,
		done:     make(chan struct{}),
		stop:     make(chan struct{}),
	}
}

// Retire schedules free to run once no reader can still reference the
// version that was current as of retiredAt (see Epoch.Current).
func (r *Reclaimer) Retire(retiredAt uint64, free func()) {
	r.mu.Lock()
	r.pending = append(r.pending, retired{at: retiredAt, free: free})
	r.mu.Unlock()
}

// Run drains pending retirements on each tick until ctx is cancelled or Stop
// is called. It is meant to run in its own goroutine for the lifetime of the
// owning facade.
func (r *Reclaimer) Run(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return
		case <-r.stop:
			r.drain()
			return
		case <-ticker.C:
			r.drain()
		}
	}
}

func (r *Reclaimer) drain() {
	r.mu.Lock()
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()

	var kept []retired
	for _, p := range pending {
		if r.e.SafeToReclaim(p.at) {
			p.free()
		} else {
			kept = append(kept, p)
		}
	}
	if kept != nil {
		r.mu.Lock()
		r.pending = append(kept, r.pending...)
		r.mu.Unlock()
	}
}

// Stop closes the stop channel (a no-op if it is already closed) and blocks
// until Run has returned. Run returns on Stop or on cancellation of its
// ctx, whichever it sees first, after a final drain that frees everything
// already safe to reclaim. If Run was never started, Stop blocks forever.
func (r *Reclaimer) Stop() {
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
	<-r.done
}
