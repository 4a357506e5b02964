package alerts

import (
	"context"
	"sync"
	"time"

	"opsdash/internal/tenant"
)

// Poller keeps the latest default alert page of the session for the
// dashboard overview. A page fetched under another identity is never served.
type Poller struct {
	svc    *Service
	tenant *tenant.Context

	mu   sync.RWMutex
	last *ListResult
	gen  uint64
	at   time.Time
}

// NewPoller 创建告警轮询器
func NewPoller(svc *Service, tc *tenant.Context) *Poller {
	return &Poller{svc: svc, tenant: tc}
}

// Poll fetches the unfiltered alert page for the session's default scope.
func (p *Poller) Poll(ctx context.Context) error {
	gen := p.tenant.Generation()
	res, err := p.svc.List(ctx, nil, "")
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.last, p.gen, p.at = res, gen, time.Now()
	p.mu.Unlock()
	return nil
}

// Latest returns the last page and when it was fetched. ok is false when
// nothing was fetched yet or the identity changed since.
func (p *Poller) Latest() (res *ListResult, at time.Time, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil || p.gen != p.tenant.Generation() {
		return nil, time.Time{}, false
	}
	return p.last, p.at, true
}
