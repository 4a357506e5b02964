package tenant

import "context"

type scopeKind uint8

const (
	scopeNone scopeKind = iota
	scopeUnscoped
	scopeTenant
)

// Scope is the effective tenant of a request or validation: the tenant id
// actually applied after role and override resolution. It is derived on
// demand and never stored on the Context.
//
// The zero value is the "none" scope of a logged-out session.
type Scope struct {
	kind     scopeKind
	tenantID string
}

// NoScope is the scope of a session without identity.
func NoScope() Scope { return Scope{} }

// Unscoped is the multi-tenant view of a super admin without override.
func Unscoped() Scope { return Scope{kind: scopeUnscoped} }

// ForTenant pins the scope to tenantID. An empty id yields NoScope.
func ForTenant(tenantID string) Scope {
	if tenantID == "" {
		return NoScope()
	}
	return Scope{kind: scopeTenant, tenantID: tenantID}
}

// TenantID returns the pinned tenant and true, or "" and false when the
// scope is none or unscoped.
func (s Scope) TenantID() (string, bool) {
	if s.kind != scopeTenant {
		return "", false
	}
	return s.tenantID, true
}

func (s Scope) IsNone() bool     { return s.kind == scopeNone }
func (s Scope) IsUnscoped() bool { return s.kind == scopeUnscoped }

func (s Scope) String() string {
	switch s.kind {
	case scopeUnscoped:
		return "*"
	case scopeTenant:
		return s.tenantID
	default:
		return "-"
	}
}

type scopeContextKey struct{}

type boundScope struct {
	scope Scope
	gen   uint64
}

// WithScope attaches a Scope resolved at generation gen to ctx. The tenant
// scope middleware binds it once per request; alert and resource services
// prefer it over resolving the override again, and refuse it once the
// session has moved past gen.
func WithScope(ctx context.Context, s Scope, gen uint64) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, boundScope{scope: s, gen: gen})
}

// ScopeFromContext retrieves a Scope attached with WithScope. The second
// return value indicates whether one was present.
func ScopeFromContext(ctx context.Context) (Scope, bool) {
	b, ok := ctx.Value(scopeContextKey{}).(boundScope)
	return b.scope, ok
}

// BoundScope is ScopeFromContext plus the identity generation the scope was
// resolved at.
func BoundScope(ctx context.Context) (Scope, uint64, bool) {
	b, ok := ctx.Value(scopeContextKey{}).(boundScope)
	return b.scope, b.gen, ok
}
