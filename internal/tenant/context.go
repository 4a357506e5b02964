package tenant

import (
	"strings"
	"sync"
	"sync/atomic"
)

// Context is the single source of truth for "who am I, what tenant am I" in
// the dashboard process. It holds at most one Identity. Reads are lock-free;
// SetIdentity and Clear are serialized so every reader observes either the
// previous or the next identity, never a mix.
//
// A Context is created empty (logged out) and is owned by the session
// lifecycle, which is the only component expected to mutate it. Tests build
// independent contexts with NewContext.
type Context struct {
	mu         sync.Mutex
	current    atomic.Pointer[Identity]
	generation atomic.Uint64
}

// NewContext returns an empty, logged-out Context.
func NewContext() *Context {
	return &Context{}
}

// SetIdentity replaces the live identity. It fails with
// ErrInvalidIdentityState when the identity violates its invariants, in which
// case the previous identity is retained.
func (c *Context) SetIdentity(identity *Identity) error {
	if err := identity.validate(); err != nil {
		return err
	}

	snapshot := *identity

	c.mu.Lock()
	c.current.Store(&snapshot)
	c.generation.Add(1)
	c.mu.Unlock()
	return nil
}

// Clear removes the live identity.
func (c *Context) Clear() {
	c.mu.Lock()
	c.current.Store(nil)
	c.generation.Add(1)
	c.mu.Unlock()
}

// Identity returns the live identity, or nil when logged out.
func (c *Context) Identity() *Identity {
	return c.current.Load()
}

// Generation increases on every SetIdentity and Clear. Callers capture it
// when issuing a request and compare it when the response arrives to detect
// an identity change in between.
func (c *Context) Generation() uint64 {
	return c.generation.Load()
}

// IsAuthenticated reports whether an identity is live.
func (c *Context) IsAuthenticated() bool {
	return c.current.Load() != nil
}

// IsSuperAdmin reports whether the live identity is a super-tenant admin.
// It is false, not an error, when logged out.
func (c *Context) IsSuperAdmin() bool {
	return c.current.Load().IsSuperAdmin()
}

// OwnTenantID returns the tenant of a live tenant user. It returns false
// when logged out or for a super admin.
func (c *Context) OwnTenantID() (string, bool) {
	id := c.current.Load()
	if id == nil || id.role != RoleTenantUser {
		return "", false
	}
	return id.tenantID, true
}

// ResolveEffectiveTenant is the only place where an override tenant is
// honoured. Tenant users always resolve to their own tenant regardless of
// override; super admins resolve to the override, or to Unscoped when none is
// given; a logged-out context resolves to NoScope.
func (c *Context) ResolveEffectiveTenant(override string) Scope {
	return resolve(c.current.Load(), override)
}

func resolve(id *Identity, override string) Scope {
	if id == nil {
		return NoScope()
	}

	switch id.role {
	case RoleSuperTenantAdmin:
		if o := strings.TrimSpace(override); o != "" {
			return ForTenant(o)
		}
		return Unscoped()
	case RoleTenantUser:
		return ForTenant(id.tenantID)
	default:
		return NoScope()
	}
}

// AuthorizeAccess reports whether the live identity may see records of
// tenantID. It is a per-record check, not a request gate.
func (c *Context) AuthorizeAccess(tenantID string) bool {
	id := c.current.Load()
	if id == nil {
		return false
	}
	if id.role == RoleSuperTenantAdmin {
		return true
	}
	return tenantID != "" && tenantID == id.tenantID
}
