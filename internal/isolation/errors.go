package isolation

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDataIsolationViolation matches every *ViolationError.
	ErrDataIsolationViolation = errors.New("isolation: data isolation violation")
	// ErrUnauthorizedAccess matches every *UnauthorizedError.
	ErrUnauthorizedAccess = errors.New("isolation: unauthorized access")
)

// Offender identifies one record that failed the tenant check.
type Offender struct {
	Index    int    `json:"index"`
	RecordID string `json:"record_id"`
	TenantID string `json:"tenant_id"`
}

// ViolationError rejects a whole batch. It is a defect signal, never a
// retryable condition: callers must surface a generic failure and drop the
// batch instead of filtering it.
type ViolationError struct {
	Operation string
	Expected  string
	Reason    string
	Offenders []Offender
}

func (e *ViolationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "isolation: data isolation violation in %s", e.Operation)
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	if len(e.Offenders) > 0 {
		fmt.Fprintf(&b, " (expected %s, %d offending record(s):", e.Expected, len(e.Offenders))
		for _, o := range e.Offenders {
			fmt.Fprintf(&b, " #%d id=%s org_id=%q", o.Index, o.RecordID, o.TenantID)
		}
		b.WriteString(")")
	}
	return b.String()
}

func (e *ViolationError) Is(target error) bool {
	return target == ErrDataIsolationViolation
}

// UnauthorizedError is the single-record form of a violation.
type UnauthorizedError struct {
	Operation string
	Expected  string
	RecordID  string
	TenantID  string
	Reason    string
}

func (e *UnauthorizedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("isolation: unauthorized access to %s in %s: %s", e.RecordID, e.Operation, e.Reason)
	}
	return fmt.Sprintf("isolation: unauthorized access to %s in %s (expected %s, got org_id=%q)",
		e.RecordID, e.Operation, e.Expected, e.TenantID)
}

func (e *UnauthorizedError) Is(target error) bool {
	return target == ErrUnauthorizedAccess
}
