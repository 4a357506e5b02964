package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"opsdash/internal/tenant"
	"opsdash/internal/tokenstore"
	"opsdash/internal/transport"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeAuth struct {
	me       tenant.Payload
	meErr    error
	onMe     func()
	login    transport.LoginResult
	loginErr error
	meCalls  int
}

func (f *fakeAuth) Me(context.Context) (tenant.Payload, error) {
	f.meCalls++
	if f.onMe != nil {
		f.onMe()
	}
	return f.me, f.meErr
}

func (f *fakeAuth) Login(context.Context, transport.Credentials) (transport.LoginResult, error) {
	return f.login, f.loginErr
}

type recordingNav struct {
	mu      sync.Mutex
	reasons []string
}

func (n *recordingNav) ShowLoggedOut(_ context.Context, reason string) {
	n.mu.Lock()
	n.reasons = append(n.reasons, reason)
	n.mu.Unlock()
}

func (n *recordingNav) calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.reasons...)
}

func strPtr(s string) *string { return &s }

type fixture struct {
	lc     *Lifecycle
	tc     *tenant.Context
	tokens *tokenstore.MemoryStore
	auth   *fakeAuth
	nav    *recordingNav
	logs   *observer.ObservedLogs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	f := &fixture{
		tc:     tenant.NewContext(),
		tokens: tokenstore.NewMemoryStore(),
		auth:   &fakeAuth{},
		nav:    &recordingNav{},
		logs:   logs,
	}
	f.lc = NewLifecycle(f.tc, f.tokens, f.auth, WithNavigator(f.nav), WithLogger(zap.New(core)))
	return f
}

func (f *fixture) storedToken(t *testing.T) string {
	t.Helper()
	token, err := f.tokens.Load(context.Background())
	require.NoError(t, err)
	return token
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	return token
}

func TestRestoreWithoutToken(t *testing.T) {
	f := newFixture(t)

	id, err := f.lc.Restore(context.Background())
	require.NoError(t, err)
	assert.Nil(t, id)
	assert.Equal(t, StateLoggedOut, f.lc.State())
	assert.Zero(t, f.auth.meCalls, "无凭证时不应请求上游")
}

func TestRestoreTenantUser(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.tokens.Save(context.Background(), "opaque"))
	f.auth.me = tenant.Payload{ID: "u1", Role: "org_user", OrgID: strPtr("org-1")}

	id, err := f.lc.Restore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, StateAuthenticated, f.lc.State())

	own, ok := f.tc.OwnTenantID()
	assert.True(t, ok)
	assert.Equal(t, "org-1", own)
	assert.Equal(t, 1, f.logs.FilterMessage("会话已恢复").Len())

	again, err := f.lc.Restore(context.Background())
	require.NoError(t, err)
	assert.Same(t, f.lc.Identity(), again)
	assert.Equal(t, 1, f.auth.meCalls, "已登录时不应重复恢复")
}

func TestRestoreTenantUserWithoutTenantDiscardsToken(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.tokens.Save(context.Background(), "opaque"))
	f.auth.me = tenant.Payload{ID: "u1", Role: "org_user"}

	id, err := f.lc.Restore(context.Background())
	assert.ErrorIs(t, err, tenant.ErrInvalidIdentityState)
	assert.Nil(t, id)
	assert.Equal(t, StateLoggedOut, f.lc.State())
	assert.False(t, f.tc.IsAuthenticated())
	assert.Empty(t, f.storedToken(t))
}

func TestRestoreMalformedPayload(t *testing.T) {
	for name, payload := range map[string]tenant.Payload{
		"missing id":   {Role: "org_user", OrgID: strPtr("org-1")},
		"unknown role": {ID: "u1", Role: "viewer"},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			require.NoError(t, f.tokens.Save(context.Background(), "opaque"))
			f.auth.me = payload

			_, err := f.lc.Restore(context.Background())
			assert.ErrorIs(t, err, tenant.ErrMalformedIdentity)
			assert.Equal(t, StateLoggedOut, f.lc.State())
			assert.Empty(t, f.storedToken(t))
		})
	}
}

func TestRestoreExpiredJWTSkipsUpstream(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.tokens.Save(context.Background(), signedToken(t, time.Now().Add(-time.Minute))))

	_, err := f.lc.Restore(context.Background())
	assert.ErrorIs(t, err, transport.ErrAuthExpired)
	assert.Zero(t, f.auth.meCalls)
	assert.Empty(t, f.storedToken(t))
	assert.Equal(t, StateLoggedOut, f.lc.State())
}

func TestRestoreValidJWT(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.tokens.Save(context.Background(), signedToken(t, time.Now().Add(time.Hour))))
	f.auth.me = tenant.Payload{ID: "admin", Role: "product_admin"}

	id, err := f.lc.Restore(context.Background())
	require.NoError(t, err)
	assert.True(t, id.IsSuperAdmin())
	assert.Equal(t, 1, f.auth.meCalls)
}

func TestRestoreUsesInjectedClock(t *testing.T) {
	f := newFixture(t)
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	f.lc = NewLifecycle(f.tc, f.tokens, f.auth, WithNavigator(f.nav),
		WithClock(func() time.Time { return exp.Add(time.Second) }))
	require.NoError(t, f.tokens.Save(context.Background(), signedToken(t, exp)))

	_, err := f.lc.Restore(context.Background())
	assert.ErrorIs(t, err, transport.ErrAuthExpired)
	assert.Zero(t, f.auth.meCalls)
}

func TestRestoreUpstreamDownKeepsToken(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.tokens.Save(context.Background(), "opaque"))
	f.auth.meErr = &transport.Error{Method: "GET", Path: "/auth/me", StatusCode: 503}

	_, err := f.lc.Restore(context.Background())
	assert.ErrorIs(t, err, transport.ErrTransport)
	assert.Equal(t, StateLoggedOut, f.lc.State())
	assert.Equal(t, "opaque", f.storedToken(t))
}

func TestRestoreAuthExpiredDuringLookup(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.tokens.Save(context.Background(), "opaque"))
	// the transport fires the hook before returning ErrAuthExpired
	f.auth.onMe = func() { f.lc.HandleAuthExpired(context.Background()) }
	f.auth.meErr = transport.ErrAuthExpired

	_, err := f.lc.Restore(context.Background())
	assert.ErrorIs(t, err, transport.ErrAuthExpired)
	assert.Equal(t, StateLoggedOut, f.lc.State())
	assert.Empty(t, f.storedToken(t))
	assert.Equal(t, []string{ReasonAuthExpired}, f.nav.calls())
}

func TestRestoreSupersededByLogin(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.tokens.Save(context.Background(), "old"))
	f.auth.me = tenant.Payload{ID: "u1", Role: "org_user", OrgID: strPtr("org-old")}
	f.auth.login = transport.LoginResult{Token: "new", User: tenant.Payload{ID: "u2", Role: "org_user", OrgID: strPtr("org-new")}}
	f.auth.onMe = func() {
		_, err := f.lc.Login(context.Background(), transport.Credentials{})
		require.NoError(t, err)
	}

	_, err := f.lc.Restore(context.Background())
	assert.ErrorIs(t, err, ErrSuperseded)

	own, _ := f.tc.OwnTenantID()
	assert.Equal(t, "org-new", own)
	assert.Equal(t, "new", f.storedToken(t))
	assert.Equal(t, StateAuthenticated, f.lc.State())
}

func TestLoginPersistsTokenAndIdentity(t *testing.T) {
	f := newFixture(t)
	f.auth.login = transport.LoginResult{
		Token: "tok",
		User:  tenant.Payload{ID: "u1", Role: "org_user", OrgID: strPtr("org-1")},
	}

	id, err := f.lc.Login(context.Background(), transport.Credentials{Email: "a@b.c", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "org-1", id.TenantID())
	assert.Equal(t, "tok", f.storedToken(t))
	assert.Equal(t, StateAuthenticated, f.lc.State())
	assert.Equal(t, tenant.ForTenant("org-1"), f.tc.ResolveEffectiveTenant("org-2"))
}

func TestLoginInvalidIdentityPersistsNothing(t *testing.T) {
	f := newFixture(t)
	f.auth.login = transport.LoginResult{Token: "tok", User: tenant.Payload{ID: "u1", Role: "org_user"}}

	_, err := f.lc.Login(context.Background(), transport.Credentials{})
	assert.ErrorIs(t, err, tenant.ErrInvalidIdentityState)
	assert.Empty(t, f.storedToken(t))
	assert.False(t, f.tc.IsAuthenticated())
	assert.Equal(t, StateLoggedOut, f.lc.State())
}

func TestLoginKeepsPreviousIdentityOnFailure(t *testing.T) {
	f := newFixture(t)
	prev, err := tenant.NewSuperAdmin("admin", tenant.Profile{})
	require.NoError(t, err)
	require.NoError(t, f.tc.SetIdentity(prev))

	f.auth.login = transport.LoginResult{Token: "tok", User: tenant.Payload{ID: "u1", Role: "org_user"}}
	_, err = f.lc.Login(context.Background(), transport.Credentials{})
	require.Error(t, err)
	assert.True(t, f.tc.IsSuperAdmin(), "失败的登录不应改变当前身份")
}

func TestLoginMissingToken(t *testing.T) {
	f := newFixture(t)
	f.auth.login = transport.LoginResult{User: tenant.Payload{ID: "admin", Role: "product_admin"}}

	_, err := f.lc.Login(context.Background(), transport.Credentials{})
	assert.ErrorIs(t, err, ErrMissingToken)
	assert.False(t, f.tc.IsAuthenticated())
}

func TestLoginPropagatesTransportError(t *testing.T) {
	f := newFixture(t)
	want := &transport.Error{Method: "POST", Path: "/auth/login", StatusCode: 401, Err: transport.ErrInvalidCredentials}
	f.auth.loginErr = want

	_, err := f.lc.Login(context.Background(), transport.Credentials{})
	var got *transport.Error
	require.True(t, errors.As(err, &got))
	assert.Same(t, want, got)
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	f.auth.login = transport.LoginResult{Token: "tok", User: tenant.Payload{ID: "admin", Role: "product_admin"}}
	_, err := f.lc.Login(context.Background(), transport.Credentials{})
	require.NoError(t, err)

	require.NoError(t, f.lc.Logout(context.Background()))
	assert.Equal(t, StateLoggedOut, f.lc.State())
	assert.False(t, f.tc.IsAuthenticated())
	assert.Empty(t, f.storedToken(t))
	assert.Equal(t, []string{ReasonLogout}, f.nav.calls())
	assert.True(t, f.tc.ResolveEffectiveTenant("org-1").IsNone())
}

func TestHandleAuthExpiredIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.auth.login = transport.LoginResult{Token: "tok", User: tenant.Payload{ID: "u1", Role: "org_user", OrgID: strPtr("org-1")}}
	_, err := f.lc.Login(context.Background(), transport.Credentials{})
	require.NoError(t, err)

	f.lc.HandleAuthExpired(context.Background())
	f.lc.HandleAuthExpired(context.Background())

	assert.Equal(t, StateLoggedOut, f.lc.State())
	assert.Empty(t, f.storedToken(t))
	assert.Equal(t, []string{ReasonAuthExpired}, f.nav.calls())
	assert.Equal(t, 1, f.logs.FilterField(zap.String("reason", ReasonAuthExpired)).Len())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "logged_out", StateLoggedOut.String())
	assert.Equal(t, "restoring", StateRestoring.String())
	assert.Equal(t, "authenticated", StateAuthenticated.String())
}
