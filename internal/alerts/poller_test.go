package alerts

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollerServesLatestForSameIdentity(t *testing.T) {
	var calls int32
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, alertsOf("org-1", "org-1"))
	})
	f.loginTenantUser(t, "org-1")
	p := NewPoller(f.svc, f.tc)

	_, _, ok := p.Latest()
	assert.False(t, ok)

	require.NoError(t, p.Poll(context.Background()))
	res, at, ok := p.Latest()
	require.True(t, ok)
	assert.Len(t, res.Alerts, 2)
	assert.False(t, at.IsZero())

	f.loginTenantUser(t, "org-1")
	_, _, ok = p.Latest()
	assert.False(t, ok, "身份变化后不应返回旧数据")
}

func TestPollerKeepsPreviousPageOnFailure(t *testing.T) {
	var leak atomic.Bool
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if leak.Load() {
			writeJSON(w, alertsOf("org-2"))
			return
		}
		writeJSON(w, alertsOf("org-1"))
	})
	f.loginTenantUser(t, "org-1")
	p := NewPoller(f.svc, f.tc)

	require.NoError(t, p.Poll(context.Background()))
	leak.Store(true)
	assert.Error(t, p.Poll(context.Background()))

	res, _, ok := p.Latest()
	require.True(t, ok)
	assert.Equal(t, "org-1", res.Alerts[0].OrgID)
}
