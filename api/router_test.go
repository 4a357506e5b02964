package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"opsdash/internal/alerts"
	"opsdash/internal/common"
	"opsdash/internal/config"
	"opsdash/internal/logger"
	"opsdash/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// upstream 模拟上游告警 API
type upstream struct {
	role    string
	orgID   string
	leak    atomic.Bool
	expired atomic.Bool
}

func (u *upstream) handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if u.expired.Load() && r.URL.Path != "/api/v1/auth/login" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"token expired"}`))
		return
	}

	user := map[string]any{"id": "u1", "email": "ops@example.com", "role": u.role, "org_id": nil}
	if u.orgID != "" {
		user["org_id"] = u.orgID
	}

	switch {
	case r.URL.Path == "/api/v1/auth/login":
		_ = json.NewEncoder(w).Encode(map[string]any{"token": "tok-1", "user": user})
	case r.URL.Path == "/api/v1/auth/me":
		_ = json.NewEncoder(w).Encode(user)
	case r.URL.Path == "/api/v1/alerts":
		org := r.URL.Query().Get("org_id")
		if org == "" {
			org = "org-1"
		}
		items := []alerts.Alert{{ID: "a1", Title: "cpu", Severity: alerts.SeverityCritical, Status: alerts.StatusOpen, OrgID: org}}
		if u.leak.Load() {
			items = append(items, alerts.Alert{ID: "a2", Title: "disk", Severity: alerts.SeverityLow, Status: alerts.StatusOpen, OrgID: "org-other"})
		}
		_ = json.NewEncoder(w).Encode(alerts.ListResult{Alerts: items, TotalCount: len(items)})
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"not found"}`))
	}
}

func setupTestRouter(t *testing.T, up *upstream) (*gin.Engine, *AppContainer) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger.Set(zap.NewNop())

	srv := httptest.NewServer(http.HandlerFunc(up.handler))
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		Upstream:  config.UpstreamConfig{BaseURL: srv.URL, APIPrefix: "/api/v1", Timeout: 5},
		Session:   config.SessionConfig{Store: "memory", TokenKey: "auth_token"},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 100, RequestsPerMinute: 1000, BurstSize: 100},
	}
	container, err := BuildContainer(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(container.Close)

	return SetupRouter(container), container
}

func do(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) common.APIResponse {
	t.Helper()
	var resp common.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func login(t *testing.T, router *gin.Engine) {
	t.Helper()
	w := do(router, http.MethodPost, "/api/session", `{"email":"ops@example.com","password":"secret"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestHealthAndReady(t *testing.T) {
	router, _ := setupTestRouter(t, &upstream{role: "org_user", orgID: "org-1"})

	w := do(router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "logged_out")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestScopedRoutesRequireSession(t *testing.T) {
	router, _ := setupTestRouter(t, &upstream{role: "org_user", orgID: "org-1"})

	w := do(router, http.MethodGet, "/api/alerts", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, common.CodeUnauthorized, decode(t, w).Code)
}

func TestLoginAndListAlerts(t *testing.T) {
	router, container := setupTestRouter(t, &upstream{role: "org_user", orgID: "org-1"})
	login(t, router)
	assert.Equal(t, session.StateAuthenticated, container.Lifecycle.State())

	w := do(router, http.MethodGet, "/api/session", "")
	assert.Contains(t, w.Body.String(), `"state":"authenticated"`)
	assert.Contains(t, w.Body.String(), `"org_id":"org-1"`)

	// 租户用户的覆盖参数被忽略
	w = do(router, http.MethodGet, "/api/alerts?org_id=org-2&severity=CRITICAL", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"org_id":"org-1"`)
	assert.NotContains(t, w.Body.String(), "org-2")
}

func TestIsolationViolationAnswersBadGateway(t *testing.T) {
	up := &upstream{role: "org_user", orgID: "org-1"}
	router, _ := setupTestRouter(t, up)
	login(t, router)
	up.leak.Store(true)

	w := do(router, http.MethodGet, "/api/alerts", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, common.CodeIsolationViolation, decode(t, w).Code)
	assert.NotContains(t, w.Body.String(), "org-other")
	assert.NotContains(t, w.Body.String(), "disk")
}

func TestSuperAdminOverride(t *testing.T) {
	router, _ := setupTestRouter(t, &upstream{role: "product_admin"})
	login(t, router)

	w := do(router, http.MethodGet, "/api/alerts?org_id=org-7", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"org_id":"org-7"`)

	w = do(router, http.MethodGet, "/api/alerts/stats?org_id=org-7", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"critical":1`)
}

func TestAuthExpiryLogsOut(t *testing.T) {
	up := &upstream{role: "org_user", orgID: "org-1"}
	router, container := setupTestRouter(t, up)
	login(t, router)
	up.expired.Store(true)

	w := do(router, http.MethodGet, "/api/alerts", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, common.CodeSessionExpired, decode(t, w).Code)
	assert.Equal(t, session.StateLoggedOut, container.Lifecycle.State())
	assert.False(t, container.Tenant.IsAuthenticated())

	token, err := container.Tokens.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestLogout(t *testing.T) {
	router, container := setupTestRouter(t, &upstream{role: "org_user", orgID: "org-1"})
	login(t, router)

	w := do(router, http.MethodDelete, "/api/session", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"logged_out"`)
	assert.False(t, container.Tenant.IsAuthenticated())

	w = do(router, http.MethodGet, "/api/alerts", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginValidation(t *testing.T) {
	router, _ := setupTestRouter(t, &upstream{role: "org_user", orgID: "org-1"})

	w := do(router, http.MethodPost, "/api/session", `{"email":"not-an-email"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInvalidPatchStatus(t *testing.T) {
	router, _ := setupTestRouter(t, &upstream{role: "org_user", orgID: "org-1"})
	login(t, router)

	w := do(router, http.MethodPatch, "/api/alerts/a1", `{"status":"bogus"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, common.CodeInvalidRequest, decode(t, w).Code)
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS(CORSConfig{AllowOrigins: []string{"http://localhost:5173"}}))
	r.GET("/api/alerts", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/api/alerts", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/alerts", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
