package isolation

import (
	"fmt"
	"net/url"
	"sort"

	"opsdash/internal/tenant"

	"go.uber.org/zap"
)

// Report is the non-failing outcome of Inspect.
type Report struct {
	Passed bool     `json:"passed"`
	Issues []string `json:"issues,omitempty"`
}

// Inspect lists every isolation issue in records without failing. An empty
// expected tenant only checks that each record carries some tenant id. It is
// meant for diagnostics and fixtures; read paths must use Validate.
func Inspect(records Batch, expected string) Report {
	var issues []string
	for i := 0; i < records.Len(); i++ {
		got := records.At(i).RecordTenantID()
		switch {
		case got == "":
			issues = append(issues, fmt.Sprintf("Item %d: Missing org_id", i))
		case expected != "" && got != expected:
			issues = append(issues, fmt.Sprintf("Item %d: Org ID mismatch. Expected: %s, Got: %s", i, expected, got))
		}
	}
	return Report{Passed: len(issues) == 0, Issues: issues}
}

// DistinctTenants returns the sorted set of tenant ids seen in records.
// Missing ids are reported as "".
func DistinctTenants(records Batch) []string {
	seen := make(map[string]struct{})
	for i := 0; i < records.Len(); i++ {
		seen[records.At(i).RecordTenantID()] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Tracer logs how the tenant scope propagates through a call. All output is
// at debug level and skipped entirely when debug is disabled.
type Tracer struct {
	logger *zap.Logger
}

// NewTracer creates a Tracer. A nil logger discards output.
func NewTracer(logger *zap.Logger) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracer{logger: logger.Named("scope")}
}

// TraceScope records the scope seen at a named stage.
func (t *Tracer) TraceScope(stage string, s tenant.Scope, fields ...zap.Field) {
	if !t.logger.Core().Enabled(zap.DebugLevel) {
		return
	}
	_, pinned := s.TenantID()
	t.logger.Debug("org propagation",
		append([]zap.Field{
			zap.String("stage", stage),
			zap.String("org_id", s.String()),
			zap.Bool("pinned", pinned),
			zap.Bool("unscoped", s.IsUnscoped()),
			zap.Bool("none", s.IsNone()),
		}, fields...)...,
	)
}

// MonitorCall records the outbound parameters and the tenants present in
// the response of an upstream call.
func (t *Tracer) MonitorCall(endpoint string, params url.Values, records Batch) {
	if !t.logger.Core().Enabled(zap.DebugLevel) {
		return
	}
	fields := []zap.Field{
		zap.String("endpoint", endpoint),
		zap.String("params", params.Encode()),
		zap.Bool("has_org_id", params.Has("org_id")),
	}
	if records != nil {
		fields = append(fields,
			zap.Int("count", records.Len()),
			zap.Strings("org_ids", DistinctTenants(records)),
		)
	}
	t.logger.Debug("api call", fields...)
}
