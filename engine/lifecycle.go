/*
lifecycle.go - Period state machine

STATES:
  open -> processing -> closed, with an orthogonal locked bit settable only
  on closed periods. Closed is terminal for this engine.

CLOSE PRECONDITIONS (checked in this precedence order; the first failing one
is reported):
  1. pending_drivers  - every user with at least one element in the period
                        must have a paid payroll record
  2. failed_payments  - no payroll record may be in the failed state
  3. empty_period     - at least one payroll record must exist

Close re-validates all three inside the same storage transaction as the
status write, so a period cannot close concurrently with an element landing
in it. Caller authorization is an external concern.
*/
package engine

import (
	"context"
	"time"
)

// Controller governs period status and the locked bit.
type Controller struct {
	store TxStore
}

func NewController(store TxStore) *Controller {
	return &Controller{store: store}
}

// CloseReport summarizes a close evaluation. Returned by CanClose and by a
// successful Close.
type CloseReport struct {
	PeriodID     PeriodID  `json:"period_id"`
	CanClose     bool      `json:"can_close"`
	Reason       string    `json:"reason,omitempty"`
	TotalDrivers int       `json:"total_drivers"`
	PaidDrivers  int       `json:"paid_drivers"`
	PeriodStart  Date      `json:"period_start"`
	PeriodEnd    Date      `json:"period_end"`
	Frequency    Frequency `json:"frequency"`
}

// CanClose evaluates the close preconditions without mutating anything.
func (c *Controller) CanClose(ctx context.Context, periodID PeriodID) (CloseReport, error) {
	var report CloseReport
	err := c.store.WithTx(ctx, func(s Store) error {
		period, err := loadPeriod(ctx, s, periodID)
		if err != nil {
			return err
		}
		r, verr, err := evaluateClose(ctx, s, period)
		if err != nil {
			return err
		}
		report = r
		report.CanClose = verr == nil
		if verr != nil {
			report.Reason = verr.Reason
		}
		return nil
	})
	return report, err
}

// Close transitions the period to closed after re-validating every
// precondition inside the same transaction as the status write.
func (c *Controller) Close(ctx context.Context, periodID PeriodID) (CloseReport, error) {
	var report CloseReport
	err := c.store.WithTx(ctx, func(s Store) error {
		period, err := loadPeriod(ctx, s, periodID)
		if err != nil {
			return err
		}
		if period.Status == StatusClosed {
			return newValidation(ReasonAlreadyClosed, "period %s is already closed", periodID)
		}

		r, verr, err := evaluateClose(ctx, s, period)
		if err != nil {
			return err
		}
		if verr != nil {
			return verr
		}

		now := time.Now().UTC()
		if err := s.UpdatePeriodStatus(ctx, periodID, StatusClosed, &now); err != nil {
			return &DependencyError{Op: "storage", Err: err}
		}
		report = r
		report.CanClose = true
		return nil
	})
	return report, err
}

// Lock sets the locked bit. Only closed periods can be locked; locking is
// idempotent.
func (c *Controller) Lock(ctx context.Context, periodID PeriodID) error {
	return c.store.WithTx(ctx, func(s Store) error {
		period, err := loadPeriod(ctx, s, periodID)
		if err != nil {
			return err
		}
		if period.Status != StatusClosed {
			return newValidation(ReasonNotClosed, "period %s must be closed before locking", periodID)
		}
		if period.Locked {
			return nil
		}
		if err := s.SetPeriodLocked(ctx, periodID, true); err != nil {
			return &DependencyError{Op: "storage", Err: err}
		}
		return nil
	})
}

// MarkProcessing records that payroll calculation has started for some user
// in the period. open -> processing; idempotent on processing; rejected on
// closed. Invoked by the calculator integration, not exposed to end users.
func (c *Controller) MarkProcessing(ctx context.Context, periodID PeriodID) error {
	return c.store.WithTx(ctx, func(s Store) error {
		period, err := loadPeriod(ctx, s, periodID)
		if err != nil {
			return err
		}
		switch period.Status {
		case StatusProcessing:
			return nil
		case StatusClosed:
			return newValidation(ReasonAlreadyClosed, "period %s is closed", periodID)
		}
		if err := s.UpdatePeriodStatus(ctx, periodID, StatusProcessing, nil); err != nil {
			return &DependencyError{Op: "storage", Err: err}
		}
		return nil
	})
}

// evaluateClose runs the precondition checks against the store view s (which
// is the surrounding transaction when called from Close).
func evaluateClose(ctx context.Context, s Store, period *Period) (CloseReport, *ValidationError, error) {
	report := CloseReport{
		PeriodID:    period.ID,
		PeriodStart: period.Start,
		PeriodEnd:   period.End,
		Frequency:   period.Frequency,
	}

	users, err := s.UsersWithElements(ctx, period.ID)
	if err != nil {
		return report, nil, &DependencyError{Op: "storage", Err: err}
	}
	records, err := s.ListPayrollRecords(ctx, period.ID)
	if err != nil {
		return report, nil, &DependencyError{Op: "storage", Err: err}
	}

	statusByUser := make(map[UserID]PaymentStatus, len(records))
	for _, rec := range records {
		statusByUser[rec.UserID] = rec.PaymentStatus
	}

	report.TotalDrivers = len(users)
	for _, u := range users {
		if statusByUser[u] == PaymentPaid {
			report.PaidDrivers++
		}
	}

	// 1. Every driver with elements must be paid.
	for _, u := range users {
		if statusByUser[u] != PaymentPaid {
			return report, newValidation(ReasonPendingDrivers,
				"%d of %d drivers are not paid yet", report.TotalDrivers-report.PaidDrivers, report.TotalDrivers), nil
		}
	}
	// 2. No failed payment may remain.
	for _, rec := range records {
		if rec.PaymentStatus == PaymentFailed {
			return report, newValidation(ReasonFailedPayments,
				"payroll record %s is in failed state", rec.ID), nil
		}
	}
	// 3. An empty period cannot be closed.
	if len(records) == 0 {
		return report, newValidation(ReasonEmptyPeriod,
			"period %s has no payroll records", period.ID), nil
	}
	return report, nil, nil
}

func loadPeriod(ctx context.Context, s Store, id PeriodID) (*Period, error) {
	period, err := s.GetPeriod(ctx, id)
	if err != nil {
		return nil, &DependencyError{Op: "storage", Err: err}
	}
	if period == nil {
		return nil, &NotFoundError{Kind: "period", ID: string(id)}
	}
	return period, nil
}
