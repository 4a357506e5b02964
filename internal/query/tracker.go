// Package query tracks in-flight upstream reads so that a response is only
// applied when it still belongs to the newest request for its key and to the
// identity that issued it.
package query

import (
	"errors"
	"net/url"
	"sync"

	"opsdash/internal/metrics"
	"opsdash/internal/tenant"
)

// ErrStaleResponse is returned when a response arrived after the identity
// changed or after a newer request for the same key was issued.
var ErrStaleResponse = errors.New("query: stale response discarded")

// Key identifies a cached query: kind, effective tenant and normalized filters.
type Key struct {
	Kind    string
	Scope   string
	Filters string
}

// NewKey 构造查询键，filters 按 url.Values.Encode 排序编码
func NewKey(kind string, scope tenant.Scope, filters url.Values) Key {
	return Key{Kind: kind, Scope: scope.String(), Filters: filters.Encode()}
}

// Ticket 单次请求的凭据
type Ticket struct {
	key        Key
	seq        uint64
	generation uint64
}

// Key 请求对应的查询键
func (t Ticket) Key() Key { return t.key }

// Tracker 记录每个查询键的最新序号
type Tracker struct {
	mu     sync.Mutex
	tenant *tenant.Context
	latest map[Key]uint64
	epoch  map[string]uint64 // per kind, bumped by Invalidate
	seq    uint64
}

// NewTracker 创建查询追踪器
func NewTracker(tc *tenant.Context) *Tracker {
	return &Tracker{
		tenant: tc,
		latest: make(map[Key]uint64),
		epoch:  make(map[string]uint64),
	}
}

// Begin registers a new request for key and supersedes older ones.
func (t *Tracker) Begin(key Key) Ticket {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	t.latest[key] = t.seq
	return Ticket{key: key, seq: t.seq, generation: t.tenant.Generation()}
}

// Commit reports whether the response for ticket may be applied. It returns
// ErrStaleResponse when the identity changed since Begin, when a newer
// request for the same key was issued, or when the kind was invalidated.
// A ticket commits at most once; a successful commit forgets its key.
func (t *Tracker) Commit(ticket Ticket) error {
	if t.tenant.Generation() != ticket.generation {
		metrics.StaleResponsesTotal.WithLabelValues("identity_changed").Inc()
		return ErrStaleResponse
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.latest[ticket.key] != ticket.seq || ticket.seq <= t.epoch[ticket.key.Kind] {
		metrics.StaleResponsesTotal.WithLabelValues("superseded").Inc()
		return ErrStaleResponse
	}
	delete(t.latest, ticket.key)
	return nil
}

// Invalidate drops every in-flight request of kind, as after a refresh or a
// mutation that changes its results.
func (t *Tracker) Invalidate(kind string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.epoch[kind] = t.seq
	for k := range t.latest {
		if k.Kind == kind {
			delete(t.latest, k)
		}
	}
}
