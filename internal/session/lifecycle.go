// Package session drives the dashboard login state: restoring a stored token
// on startup, logging in and out, and reacting to upstream session expiry.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"opsdash/internal/metrics"
	"opsdash/internal/tenant"
	"opsdash/internal/tokenstore"
	"opsdash/internal/transport"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

var (
	// ErrSuperseded is returned by Restore when a login, logout or newer
	// restore finished while it was waiting on the upstream.
	ErrSuperseded = errors.New("session: superseded by a newer transition")

	// ErrMissingToken login 响应未携带令牌
	ErrMissingToken = errors.New("session: login response carried no token")
)

// 登出原因
const (
	ReasonLogout        = "logout"
	ReasonAuthExpired   = "auth_expired"
	ReasonRestoreFailed = "restore_failed"
	ReasonNoToken       = "no_token"
	ReasonUpstreamDown  = "upstream_unavailable"
)

// State 会话状态
type State int32

const (
	StateLoggedOut State = iota
	StateRestoring
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateRestoring:
		return "restoring"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "logged_out"
	}
}

// Authenticator is the upstream side of the session: identity lookup for a
// stored token and credential exchange. *transport.Client implements it.
type Authenticator interface {
	Me(ctx context.Context) (tenant.Payload, error)
	Login(ctx context.Context, creds transport.Credentials) (transport.LoginResult, error)
}

// Navigator shows the unauthenticated view after the session ends.
type Navigator interface {
	ShowLoggedOut(ctx context.Context, reason string)
}

// NavigatorFunc 函数适配器
type NavigatorFunc func(ctx context.Context, reason string)

func (f NavigatorFunc) ShowLoggedOut(ctx context.Context, reason string) { f(ctx, reason) }

type nopNavigator struct{}

func (nopNavigator) ShowLoggedOut(context.Context, string) {}

// Lifecycle 会话生命周期
type Lifecycle struct {
	mu      sync.Mutex
	state   State
	attempt uint64 // bumped by every transition that invalidates in-flight restores

	tenant *tenant.Context
	tokens tokenstore.Store
	auth   Authenticator
	nav    Navigator
	logger *zap.Logger
	now    func() time.Time
}

// Option 生命周期配置选项
type Option func(*Lifecycle)

// WithNavigator 设置登出后的导航回调
func WithNavigator(nav Navigator) Option {
	return func(l *Lifecycle) {
		if nav != nil {
			l.nav = nav
		}
	}
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(l *Lifecycle) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock 设置时钟，用于令牌过期判断
func WithClock(now func() time.Time) Option {
	return func(l *Lifecycle) {
		l.now = now
	}
}

// NewLifecycle 创建会话生命周期，初始状态为 LoggedOut
func NewLifecycle(tc *tenant.Context, tokens tokenstore.Store, auth Authenticator, opts ...Option) *Lifecycle {
	l := &Lifecycle{
		tenant: tc,
		tokens: tokens,
		auth:   auth,
		nav:    nopNavigator{},
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.Named("session")
	return l
}

// State 当前状态
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Identity 当前身份，未登录时为 nil
func (l *Lifecycle) Identity() *tenant.Identity {
	return l.tenant.Identity()
}

// Restore re-establishes the session from the stored token.
//
// No token leaves the session logged out without error. A token the upstream
// rejects, or one that yields a malformed or inconsistent identity, is
// discarded. Other upstream failures keep the token so a later Restore can
// retry once the upstream is reachable again.
func (l *Lifecycle) Restore(ctx context.Context) (*tenant.Identity, error) {
	l.mu.Lock()
	if l.state == StateAuthenticated {
		l.mu.Unlock()
		return l.tenant.Identity(), nil
	}
	l.attempt++
	attempt := l.attempt
	l.transition(StateRestoring, "restore")
	l.mu.Unlock()

	token, err := l.tokens.Load(ctx)
	if err != nil {
		l.fail(ctx, attempt, false, ReasonRestoreFailed)
		return nil, fmt.Errorf("session: load token: %w", err)
	}
	if token == "" {
		l.fail(ctx, attempt, false, ReasonNoToken)
		return nil, nil
	}
	if l.tokenExpired(token) {
		l.fail(ctx, attempt, true, ReasonAuthExpired)
		return nil, fmt.Errorf("%w: stored token has expired", transport.ErrAuthExpired)
	}

	payload, err := l.auth.Me(ctx)
	if err != nil {
		if errors.Is(err, transport.ErrAuthExpired) {
			l.fail(ctx, attempt, true, ReasonAuthExpired)
			return nil, err
		}
		l.logger.Warn("恢复会话失败，保留凭证", zap.Error(err))
		l.fail(ctx, attempt, false, ReasonUpstreamDown)
		return nil, err
	}

	identity, err := tenant.ParseIdentity(payload)
	if err != nil {
		l.logger.Error("上游返回的身份无效，丢弃凭证",
			zap.String("user_id", payload.ID),
			zap.String("role", payload.Role),
			zap.Error(err),
		)
		l.fail(ctx, attempt, true, ReasonRestoreFailed)
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.attempt != attempt {
		return nil, ErrSuperseded
	}
	if err := l.tenant.SetIdentity(identity); err != nil {
		l.discardLocked(ctx, ReasonRestoreFailed)
		return nil, err
	}
	l.transition(StateAuthenticated, "restore")
	l.logIdentity("会话已恢复", identity)
	return l.tenant.Identity(), nil
}

// Login exchanges credentials for a session. An invalid identity in the
// response persists nothing and leaves the tenant context untouched.
func (l *Lifecycle) Login(ctx context.Context, creds transport.Credentials) (*tenant.Identity, error) {
	res, err := l.auth.Login(ctx, creds)
	if err != nil {
		return nil, err
	}

	identity, err := tenant.ParseIdentity(res.User)
	if err != nil {
		l.logger.Error("登录响应中的身份无效",
			zap.String("user_id", res.User.ID),
			zap.String("role", res.User.Role),
			zap.Error(err),
		)
		return nil, err
	}
	if res.Token == "" {
		return nil, ErrMissingToken
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.tokens.Save(ctx, res.Token); err != nil {
		return nil, fmt.Errorf("session: persist token: %w", err)
	}
	if err := l.tenant.SetIdentity(identity); err != nil {
		if delErr := l.tokens.Delete(ctx); delErr != nil {
			l.logger.Warn("回滚凭证失败", zap.Error(delErr))
		}
		return nil, err
	}
	l.attempt++
	l.transition(StateAuthenticated, "login")
	l.logIdentity("登录成功", identity)
	return l.tenant.Identity(), nil
}

// Logout ends the session. The identity is cleared even when the token
// cannot be deleted; that error is still returned.
func (l *Lifecycle) Logout(ctx context.Context) error {
	return l.end(ctx, ReasonLogout, true)
}

// HandleAuthExpired is the transport's auth-expired hook. It behaves like
// Logout and does nothing when no session is active.
func (l *Lifecycle) HandleAuthExpired(ctx context.Context) {
	if err := l.end(ctx, ReasonAuthExpired, false); err != nil {
		l.logger.Warn("会话过期处理时删除凭证失败", zap.Error(err))
	}
}

func (l *Lifecycle) end(ctx context.Context, reason string, always bool) error {
	l.mu.Lock()
	if !always && l.state == StateLoggedOut && !l.tenant.IsAuthenticated() {
		l.mu.Unlock()
		return nil
	}
	err := l.discardLocked(ctx, reason)
	l.mu.Unlock()

	l.nav.ShowLoggedOut(ctx, reason)
	return err
}

// fail ends a restore attempt unless something newer already took over.
func (l *Lifecycle) fail(ctx context.Context, attempt uint64, discardToken bool, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.attempt != attempt {
		return
	}
	if discardToken {
		if err := l.discardLocked(ctx, reason); err != nil {
			l.logger.Warn("删除凭证失败", zap.Error(err))
		}
		return
	}
	l.tenant.Clear()
	l.transition(StateLoggedOut, reason)
}

func (l *Lifecycle) discardLocked(ctx context.Context, reason string) error {
	l.attempt++
	err := l.tokens.Delete(ctx)
	l.tenant.Clear()
	l.transition(StateLoggedOut, reason)
	if err != nil {
		return fmt.Errorf("session: delete token: %w", err)
	}
	return nil
}

func (l *Lifecycle) transition(to State, reason string) {
	from := l.state
	l.state = to
	if from == to {
		return
	}
	metrics.SessionTransitionsTotal.WithLabelValues(from.String(), to.String()).Inc()
	l.logger.Info("会话状态变更",
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.String("reason", reason),
	)
}

func (l *Lifecycle) logIdentity(msg string, identity *tenant.Identity) {
	l.logger.Info(msg,
		zap.String("user_id", identity.ID()),
		zap.Stringer("role", identity.Role()),
		zap.String("org_id", identity.TenantID()),
	)
}

// tokenExpired 本地检查 JWT 的 exp；非 JWT 令牌交由上游判断
func (l *Lifecycle) tokenExpired(token string) bool {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	return claims.ExpiresAt != nil && !claims.ExpiresAt.After(l.now())
}
