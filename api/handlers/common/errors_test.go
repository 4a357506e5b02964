package common

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"opsdash/internal/alerts"
	respond "opsdash/internal/common"
	"opsdash/internal/isolation"
	"opsdash/internal/logger"
	"opsdash/internal/query"
	"opsdash/internal/scope"
	"opsdash/internal/tenant"
	"opsdash/internal/transport"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCodeOf(t *testing.T) {
	cases := map[string]struct {
		err  error
		code int
	}{
		"no session":      {scope.ErrNoSession, respond.CodeUnauthorized},
		"auth expired":    {fmt.Errorf("wrap: %w", transport.ErrAuthExpired), respond.CodeSessionExpired},
		"bad credentials": {&transport.Error{StatusCode: 401, Err: transport.ErrInvalidCredentials}, respond.CodeInvalidCredentials},
		"malformed":       {tenant.ErrMalformedIdentity, respond.CodeInvalidIdentity},
		"violation":       {&isolation.ViolationError{Operation: "alerts"}, respond.CodeIsolationViolation},
		"unauthorized":    {&isolation.UnauthorizedError{Operation: "resource"}, respond.CodeUnauthorizedAccess},
		"stale":           {query.ErrStaleResponse, respond.CodeStaleResponse},
		"bad status":      {alerts.ErrInvalidStatus, respond.CodeInvalidRequest},
		"upstream 404":    {&transport.Error{StatusCode: 404}, respond.CodeNotFound},
		"upstream 500":    {&transport.Error{StatusCode: 500}, respond.CodeUpstreamFailed},
		"deadline":        {context.DeadlineExceeded, respond.CodeUpstreamFailed},
		"unknown":         {errors.New("boom"), respond.CodeInternalError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.code, CodeOf(tc.err))
		})
	}
}

func TestRespondErrorHidesViolationDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger.Set(zap.NewNop())
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/alerts", nil)

	RespondError(c, &isolation.ViolationError{
		Operation: "alerts",
		Expected:  "org-1",
		Offenders: []isolation.Offender{{Index: 0, RecordID: "secret-alert", TenantID: "org-2"}},
	})

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.NotContains(t, w.Body.String(), "org-2")
	assert.NotContains(t, w.Body.String(), "secret-alert")

	var resp respond.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, respond.CodeIsolationViolation, resp.Code)
}
