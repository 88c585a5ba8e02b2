package location

import (
	"context"
	"errors"
	"sync"
)

// ErrPermissionDenied is reported when the user refuses to share a device position.
var ErrPermissionDenied = errors.New("location access denied or unavailable")

// Fix is a position reported by the device sensor.
type Fix struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
}

// DeviceLocator obtains the current device position. Locate blocks until a
// fix is available, the request fails, or ctx is done.
type DeviceLocator interface {
	Locate(ctx context.Context) (Fix, error)
}

// pendingDropper is implemented by locators that buffer results between
// lookups. The resolver drops the buffer when a cycle's location is replaced.
type pendingDropper interface {
	DropPending()
}

type fixResult struct {
	fix Fix
	err error
}

// PushLocator is a DeviceLocator fed by the client: positions arrive through
// Push or Deny and are handed to whichever Locate calls are waiting. A result
// that arrives while nobody waits is kept for the next Locate.
type PushLocator struct {
	mu      sync.Mutex
	waiters []chan fixResult
	pending *fixResult
}

func NewPushLocator() *PushLocator {
	return &PushLocator{}
}

func (p *PushLocator) Locate(ctx context.Context) (Fix, error) {
	p.mu.Lock()
	if p.pending != nil {
		r := *p.pending
		p.pending = nil
		p.mu.Unlock()
		return r.fix, r.err
	}
	ch := make(chan fixResult, 1)
	p.waiters = append(p.waiters, ch)
	p.mu.Unlock()

	select {
	case r := <-ch:
		return r.fix, r.err
	case <-ctx.Done():
		p.removeWaiter(ch)
		return Fix{}, ctx.Err()
	}
}

// Push delivers a device position.
func (p *PushLocator) Push(fix Fix) {
	p.deliver(fixResult{fix: fix})
}

// Deny delivers a refusal.
func (p *PushLocator) Deny() {
	p.deliver(fixResult{err: ErrPermissionDenied})
}

// DropPending forgets a result that arrived while nobody was waiting.
func (p *PushLocator) DropPending() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = nil
}

// Waiting reports how many Locate calls are blocked.
func (p *PushLocator) Waiting() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiters)
}

func (p *PushLocator) deliver(r fixResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.waiters) == 0 {
		p.pending = &r
		return
	}
	for _, ch := range p.waiters {
		ch <- r
	}
	p.waiters = nil
	p.pending = nil
}

func (p *PushLocator) removeWaiter(ch chan fixResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.waiters {
		if w == ch {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
}
