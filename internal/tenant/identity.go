package tenant

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidIdentityState is returned when a tenant user arrives without a
	// tenant id. It is fatal to the login or restore attempt that produced it.
	ErrInvalidIdentityState = errors.New("tenant: invalid identity state")

	// ErrMalformedIdentity is returned when an identity payload from the
	// upstream is structurally broken (missing id, unknown role). It is a
	// boundary validation failure, not an isolation failure.
	ErrMalformedIdentity = errors.New("tenant: malformed identity payload")
)

// Role is the closed set of principals the dashboard understands.
type Role uint8

const (
	// RoleUnknown is the zero value and never valid on a live identity.
	RoleUnknown Role = iota
	// RoleSuperTenantAdmin may select any tenant or browse unscoped.
	RoleSuperTenantAdmin
	// RoleTenantUser is pinned to exactly one tenant.
	RoleTenantUser
)

// 上游接口使用的角色字符串
const (
	wireProductAdmin = "product_admin"
	wireOrgUser      = "org_user"
)

// ParseRole maps the upstream role string to a Role.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case wireProductAdmin:
		return RoleSuperTenantAdmin, nil
	case wireOrgUser:
		return RoleTenantUser, nil
	default:
		return RoleUnknown, fmt.Errorf("%w: unknown role %q", ErrMalformedIdentity, s)
	}
}

func (r Role) String() string {
	switch r {
	case RoleSuperTenantAdmin:
		return wireProductAdmin
	case RoleTenantUser:
		return wireOrgUser
	default:
		return "unknown"
	}
}

// Identity is an immutable snapshot of the authenticated principal. Values are
// only produced by NewSuperAdmin, NewTenantUser and ParseIdentity, so a tenant
// user without a tenant id cannot be built through the public API.
type Identity struct {
	id       string
	email    string
	name     string
	role     Role
	tenantID string
}

// Profile carries the display fields of an identity that play no part in
// tenancy decisions.
type Profile struct {
	Email string
	Name  string
}

// NewSuperAdmin builds a super-tenant admin identity.
func NewSuperAdmin(id string, p Profile) (*Identity, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: missing id", ErrMalformedIdentity)
	}
	return &Identity{id: id, email: p.Email, name: p.Name, role: RoleSuperTenantAdmin}, nil
}

// NewTenantUser builds a tenant user identity pinned to tenantID.
func NewTenantUser(id, tenantID string, p Profile) (*Identity, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: missing id", ErrMalformedIdentity)
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant user %s has no tenant id", ErrInvalidIdentityState, id)
	}
	return &Identity{id: id, email: p.Email, name: p.Name, role: RoleTenantUser, tenantID: tenantID}, nil
}

func (i *Identity) ID() string       { return i.id }
func (i *Identity) Email() string    { return i.email }
func (i *Identity) Name() string     { return i.name }
func (i *Identity) Role() Role       { return i.role }
func (i *Identity) TenantID() string { return i.tenantID }

// IsSuperAdmin reports whether the identity is a super-tenant admin.
func (i *Identity) IsSuperAdmin() bool { return i != nil && i.role == RoleSuperTenantAdmin }

// validate re-checks the invariants for identities that did not come through
// the constructors (zero values, struct copies).
func (i *Identity) validate() error {
	if i == nil {
		return fmt.Errorf("%w: nil identity", ErrInvalidIdentityState)
	}
	if i.id == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidIdentityState)
	}
	switch i.role {
	case RoleSuperTenantAdmin:
		return nil
	case RoleTenantUser:
		if i.tenantID == "" {
			return fmt.Errorf("%w: tenant user %s has no tenant id", ErrInvalidIdentityState, i.id)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown role for %s", ErrInvalidIdentityState, i.id)
	}
}

// Payload is the identity shape exchanged with the upstream API
// (`GET /auth/me`, the `user` field of `POST /auth/login`).
type Payload struct {
	ID    string  `json:"id"`
	Email string  `json:"email,omitempty"`
	Name  string  `json:"name,omitempty"`
	Role  string  `json:"role"`
	OrgID *string `json:"org_id"`
}

// ParseIdentity validates an upstream payload and converts it into an
// Identity. A missing id or unknown role yields ErrMalformedIdentity; a tenant
// user without org_id yields ErrInvalidIdentityState. Super admins carrying an
// org_id keep no tenant: their scope always comes from an explicit override.
func ParseIdentity(p Payload) (*Identity, error) {
	if strings.TrimSpace(p.ID) == "" {
		return nil, fmt.Errorf("%w: missing id", ErrMalformedIdentity)
	}
	role, err := ParseRole(p.Role)
	if err != nil {
		return nil, err
	}

	profile := Profile{Email: p.Email, Name: p.Name}
	if role == RoleSuperTenantAdmin {
		return NewSuperAdmin(p.ID, profile)
	}

	orgID := ""
	if p.OrgID != nil {
		orgID = *p.OrgID
	}
	return NewTenantUser(p.ID, orgID, profile)
}

// Payload converts the identity back to its wire shape.
func (i *Identity) Payload() Payload {
	p := Payload{ID: i.id, Email: i.email, Name: i.name, Role: i.role.String()}
	if i.tenantID != "" {
		org := i.tenantID
		p.OrgID = &org
	}
	return p
}
