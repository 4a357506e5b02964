package tenant

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTenantUser(t *testing.T, id, tenantID string) *Identity {
	t.Helper()
	identity, err := NewTenantUser(id, tenantID, Profile{})
	require.NoError(t, err)
	return identity
}

func mustSuperAdmin(t *testing.T) *Identity {
	t.Helper()
	identity, err := NewSuperAdmin("admin-1", Profile{Name: "Product Admin"})
	require.NoError(t, err)
	return identity
}

func TestContextStartsLoggedOut(t *testing.T) {
	c := NewContext()

	assert.False(t, c.IsAuthenticated())
	assert.False(t, c.IsSuperAdmin())
	_, ok := c.OwnTenantID()
	assert.False(t, ok)
	assert.True(t, c.ResolveEffectiveTenant("").IsNone())
	assert.True(t, c.ResolveEffectiveTenant("org-2").IsNone())
	assert.False(t, c.AuthorizeAccess("org-1"))
}

func TestSetIdentityRejectsTenantUserWithoutTenant(t *testing.T) {
	c := NewContext()

	err := c.SetIdentity(&Identity{id: "user-invalid", role: RoleTenantUser})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidIdentityState))
	assert.False(t, c.IsAuthenticated(), "context must stay logged out")

	previous := mustTenantUser(t, "user-1", "org-1")
	require.NoError(t, c.SetIdentity(previous))
	gen := c.Generation()

	err = c.SetIdentity(&Identity{id: "user-2", role: RoleTenantUser})
	require.ErrorIs(t, err, ErrInvalidIdentityState)
	own, ok := c.OwnTenantID()
	assert.True(t, ok)
	assert.Equal(t, "org-1", own, "previous identity must be retained")
	assert.Equal(t, gen, c.Generation())
}

func TestSetIdentityRejectsZeroAndNil(t *testing.T) {
	c := NewContext()
	assert.ErrorIs(t, c.SetIdentity(nil), ErrInvalidIdentityState)
	assert.ErrorIs(t, c.SetIdentity(&Identity{}), ErrInvalidIdentityState)
	assert.ErrorIs(t, c.SetIdentity(&Identity{id: "x"}), ErrInvalidIdentityState)
}

func TestTenantUserOverrideIgnored(t *testing.T) {
	c := NewContext()
	require.NoError(t, c.SetIdentity(mustTenantUser(t, "user-1", "org-1")))

	for _, override := range []string{"", "org-1", "org-2", "  "} {
		id, ok := c.ResolveEffectiveTenant(override).TenantID()
		assert.True(t, ok)
		assert.Equal(t, "org-1", id, "override %q", override)
	}

	assert.False(t, c.IsSuperAdmin())
	assert.True(t, c.AuthorizeAccess("org-1"))
	assert.False(t, c.AuthorizeAccess("org-2"))
	assert.False(t, c.AuthorizeAccess(""))
}

func TestSuperAdminResolution(t *testing.T) {
	c := NewContext()
	require.NoError(t, c.SetIdentity(mustSuperAdmin(t)))

	assert.True(t, c.IsSuperAdmin())
	_, ok := c.OwnTenantID()
	assert.False(t, ok)

	id, ok := c.ResolveEffectiveTenant("org-2").TenantID()
	assert.True(t, ok)
	assert.Equal(t, "org-2", id)
	assert.True(t, c.ResolveEffectiveTenant("").IsUnscoped())
	assert.True(t, c.AuthorizeAccess("org-anything"))
}

func TestClearReturnsToLoggedOut(t *testing.T) {
	c := NewContext()
	require.NoError(t, c.SetIdentity(mustTenantUser(t, "user-1", "org-1")))
	before := c.Generation()

	c.Clear()

	assert.Nil(t, c.Identity())
	assert.True(t, c.ResolveEffectiveTenant("org-1").IsNone())
	assert.Greater(t, c.Generation(), before)
}

func TestSetIdentityCopiesSnapshot(t *testing.T) {
	c := NewContext()
	identity := mustTenantUser(t, "user-1", "org-1")
	require.NoError(t, c.SetIdentity(identity))

	identity.tenantID = "org-2"
	own, _ := c.OwnTenantID()
	assert.Equal(t, "org-1", own)
}

func TestContextConcurrentReadsSeeWholeIdentity(t *testing.T) {
	c := NewContext()
	a := mustTenantUser(t, "user-a", "org-a")
	b := mustTenantUser(t, "user-b", "org-b")

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if i%2 == 0 {
				_ = c.SetIdentity(a)
			} else {
				_ = c.SetIdentity(b)
			}
		}
		close(stop)
	}()

	for {
		select {
		case <-stop:
			wg.Wait()
			return
		default:
		}
		if id := c.Identity(); id != nil {
			switch id.ID() {
			case "user-a":
				assert.Equal(t, "org-a", id.TenantID())
			case "user-b":
				assert.Equal(t, "org-b", id.TenantID())
			}
		}
	}
}

func TestScopeContextHelpers(t *testing.T) {
	ctx := context.Background()
	_, ok := ScopeFromContext(ctx)
	assert.False(t, ok)
	_, _, ok = BoundScope(ctx)
	assert.False(t, ok)

	ctx = WithScope(ctx, ForTenant("org-1"), 7)
	s, ok := ScopeFromContext(ctx)
	require.True(t, ok)
	id, ok := s.TenantID()
	assert.True(t, ok)
	assert.Equal(t, "org-1", id)

	s, gen, ok := BoundScope(ctx)
	require.True(t, ok)
	assert.Equal(t, ForTenant("org-1"), s)
	assert.Equal(t, uint64(7), gen)

	assert.True(t, ForTenant("").IsNone())
	assert.Equal(t, "*", Unscoped().String())
	assert.Equal(t, "-", NoScope().String())
}
