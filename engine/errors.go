/*
errors.go - Centralized error types for the period engine

ERROR CATEGORIES:
 1. Validation errors - a close precondition or required config failed;
    user-correctable, names the specific failing condition
 2. Duplicate period - the materialization race; recovered locally and never
    surfaced by EnsurePeriod
 3. Locked / not found - surfaced to callers, never auto-retried
 4. Dependency errors - external payroll calculator or storage failed;
    swallowed (logged) only for the materializer's best-effort seeding step

USAGE:

	if errors.Is(err, engine.ErrPeriodLocked) { ... }

	var verr *engine.ValidationError
	if errors.As(err, &verr) { reason := verr.Reason }
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicatePeriod is returned by InsertPeriod when the interval
	// collides with an existing period for the company. A concurrent
	// materializer hitting this re-queries and returns the winner.
	ErrDuplicatePeriod = errors.New("duplicate payment period")

	// ErrPeriodLocked is returned when a mutation targets a locked period.
	ErrPeriodLocked = errors.New("payment period is locked")

	// ErrNotFound is returned when a referenced period, element, record, or
	// company config does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDependencyFailed is returned when the external payroll calculator
	// or the storage layer fails mid-operation.
	ErrDependencyFailed = errors.New("dependency failed")

	// ErrInvalidCadence is returned by the calculator for an out-of-range
	// cycle start day or unknown frequency.
	ErrInvalidCadence = errors.New("invalid cadence configuration")
)

// =============================================================================
// VALIDATION - Close preconditions and config problems
// =============================================================================

// Reason codes reported by ValidationError. Close preconditions are checked
// in this precedence order; the first failing one is reported.
const (
	ReasonPendingDrivers = "pending_drivers"
	ReasonFailedPayments = "failed_payments"
	ReasonEmptyPeriod    = "empty_period"
	ReasonAlreadyClosed  = "already_closed"
	ReasonNotClosed      = "not_closed"
	ReasonAlreadyPaid    = "already_paid"
	ReasonNotCalculated  = "not_calculated"
	ReasonFailedPayment  = "failed_payment"
)

// ValidationError reports a user-correctable rule violation with a stable
// machine-readable reason code.
type ValidationError struct {
	Reason  string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func newValidation(reason, format string, args ...any) *ValidationError {
	return &ValidationError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// =============================================================================
// STRUCTURED ERRORS - Carry context, unwrap to sentinels
// =============================================================================

// LockedPeriodError identifies which period blocked a mutation.
type LockedPeriodError struct {
	PeriodID PeriodID
}

func (e *LockedPeriodError) Error() string {
	return fmt.Sprintf("period %s is locked", e.PeriodID)
}

func (e *LockedPeriodError) Unwrap() error { return ErrPeriodLocked }

// NotFoundError identifies the missing entity by kind and id.
type NotFoundError struct {
	Kind string // "period", "element", "payroll_record", "company_config"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// DependencyError wraps a failure of an external collaborator.
type DependencyError struct {
	Op  string // e.g. "payroll_calculator", "storage"
	Err error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error { return ErrDependencyFailed }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the error is due to invalid caller input or
// state, as opposed to an internal/dependency failure.
func IsClientError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr) ||
		errors.Is(err, ErrPeriodLocked) ||
		errors.Is(err, ErrInvalidCadence)
}

// IsNotFound reports whether the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
