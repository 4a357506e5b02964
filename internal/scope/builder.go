// Package scope merges the effective tenant into outbound request parameters.
package scope

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"opsdash/internal/tenant"
)

// ErrNoSession is returned by tenant-scoped operations started while logged
// out. No upstream call is made in that case.
var ErrNoSession = errors.New("scope: no active session")

// ParamTenantID is the query parameter the upstream API reads the tenant from.
const ParamTenantID = "org_id"

// Resolver is the part of tenant.Context the builder depends on.
type Resolver interface {
	ResolveEffectiveTenant(override string) tenant.Scope
	Generation() uint64
}

// Builder parameterizes outbound calls with the effective tenant.
type Builder struct {
	resolver Resolver
}

// NewBuilder returns a Builder reading tenancy from r.
func NewBuilder(r Resolver) *Builder {
	return &Builder{resolver: r}
}

// Build resolves the effective tenant for override and returns a copy of base
// with org_id set to it. When the scope names no tenant (unscoped super admin
// view, or logged out) the copy carries no org_id at all, even if base had
// one: the tenant parameter is owned by the builder, never by the caller.
//
// base is never modified, so calling Build twice with the same inputs and
// context state yields identical results.
func (b *Builder) Build(base url.Values, override string) (url.Values, tenant.Scope) {
	s := b.resolver.ResolveEffectiveTenant(override)
	return Apply(base, s), s
}

// Resolve is Build for a call that may carry a scope bound by the HTTP layer.
// A scope found on ctx wins over override; otherwise override is resolved
// against the live session. The returned generation identifies the session
// the scope was taken from, for comparison once the upstream answers. The
// generation is read before the identity, so a concurrent swap can only make
// the pair compare stale.
func (b *Builder) Resolve(ctx context.Context, base url.Values, override string) (url.Values, tenant.Scope, uint64) {
	if s, gen, ok := tenant.BoundScope(ctx); ok {
		return Apply(base, s), s, gen
	}
	gen := b.resolver.Generation()
	params, s := b.Build(base, override)
	return params, s, gen
}

// Apply merges an already resolved scope into a copy of base.
func Apply(base url.Values, s tenant.Scope) url.Values {
	params := make(url.Values, len(base)+1)
	for k, v := range base {
		params[k] = append([]string(nil), v...)
	}
	params.Del(ParamTenantID)

	if id, ok := s.TenantID(); ok {
		params.Set(ParamTenantID, id)
	}
	return params
}

// NormalizeFilters lower-cases filter values and drops empty ones. The
// upstream compares enum filters (severity, status, source, cloud_provider,
// resource_type) case-sensitively against lower-case values.
func NormalizeFilters(filters map[string]string) url.Values {
	params := make(url.Values, len(filters))
	for k, v := range filters {
		v = strings.ToLower(strings.TrimSpace(v))
		if k == "" || v == "" || k == ParamTenantID {
			continue
		}
		params.Set(k, v)
	}
	return params
}
