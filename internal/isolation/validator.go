// Package isolation re-checks on the client side that every record returned
// by the upstream belongs to the effective tenant of the session.
package isolation

import (
	"opsdash/internal/metrics"
	"opsdash/internal/tenant"

	"go.uber.org/zap"
)

// Record is any tenant-scoped domain record. RecordTenantID returns "" when
// the tenant field is missing or null.
type Record interface {
	RecordID() string
	RecordTenantID() string
}

// Batch is an indexed collection of records.
type Batch interface {
	Len() int
	At(i int) Record
}

// Slice adapts a slice of records to Batch.
type Slice[T Record] []T

func (s Slice[T]) Len() int        { return len(s) }
func (s Slice[T]) At(i int) Record { return s[i] }

const reasonNoContext = "no tenant context"

// Validator checks inbound records against an effective tenant scope.
type Validator struct {
	logger *zap.Logger
}

// NewValidator creates a Validator. A nil logger discards output.
func NewValidator(logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{logger: logger.Named("isolation")}
}

// Validate passes only when every record carries the scope's tenant. An
// unscoped super admin view passes unconditionally. A none scope (logged out
// between request and response) always fails: a context-less batch is never
// treated as valid. One bad record fails the whole batch.
func (v *Validator) Validate(operation string, s tenant.Scope, records Batch) error {
	if s.IsUnscoped() {
		metrics.RecordIsolationCheck(operation, true)
		return nil
	}

	expected, ok := s.TenantID()
	if !ok {
		err := &ViolationError{Operation: operation, Expected: s.String(), Reason: reasonNoContext}
		v.report(err, records.Len())
		return err
	}

	var offenders []Offender
	for i := 0; i < records.Len(); i++ {
		r := records.At(i)
		if got := r.RecordTenantID(); got == "" || got != expected {
			offenders = append(offenders, Offender{Index: i, RecordID: r.RecordID(), TenantID: got})
		}
	}

	if len(offenders) > 0 {
		err := &ViolationError{Operation: operation, Expected: expected, Offenders: offenders}
		v.report(err, records.Len())
		return err
	}

	metrics.RecordIsolationCheck(operation, true)
	return nil
}

// CheckRecord is the single-record form of Validate used by detail fetches
// and mutation echoes.
func (v *Validator) CheckRecord(operation string, s tenant.Scope, r Record) error {
	if s.IsUnscoped() {
		metrics.RecordIsolationCheck(operation, true)
		return nil
	}

	expected, ok := s.TenantID()
	if !ok {
		err := &UnauthorizedError{Operation: operation, Expected: s.String(), RecordID: r.RecordID(),
			TenantID: r.RecordTenantID(), Reason: reasonNoContext}
		v.reportUnauthorized(err)
		return err
	}

	if got := r.RecordTenantID(); got == "" || got != expected {
		err := &UnauthorizedError{Operation: operation, Expected: expected, RecordID: r.RecordID(), TenantID: got}
		v.reportUnauthorized(err)
		return err
	}

	metrics.RecordIsolationCheck(operation, true)
	return nil
}

func (v *Validator) report(err *ViolationError, total int) {
	metrics.RecordIsolationCheck(err.Operation, false)
	v.logger.Error("data isolation violation",
		zap.String("operation", err.Operation),
		zap.String("expected_org_id", err.Expected),
		zap.String("reason", err.Reason),
		zap.Int("batch_size", total),
		zap.Any("offenders", err.Offenders),
	)
}

func (v *Validator) reportUnauthorized(err *UnauthorizedError) {
	metrics.RecordIsolationCheck(err.Operation, false)
	v.logger.Error("unauthorized record access",
		zap.String("operation", err.Operation),
		zap.String("expected_org_id", err.Expected),
		zap.String("record_id", err.RecordID),
		zap.String("org_id", err.TenantID),
		zap.String("reason", err.Reason),
	)
}
