/*
payout.go - Payout Orchestrator

PURPOSE:
  Batch "mark paid" with per-item failure isolation: each calculation id is
  validated and marked in its own transaction, one failure never aborts the
  rest, and failures are aggregated into the result instead of an error.
  After the batch, every touched period is re-evaluated against the close
  preconditions and auto-closed when they now hold.
*/
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Orchestrator performs payouts and auto-closes completed periods.
type Orchestrator struct {
	store     TxStore
	lifecycle *Controller
	log       *slog.Logger
}

func NewOrchestrator(store TxStore, lifecycle *Controller, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{store: store, lifecycle: lifecycle, log: log}
}

// BatchError is one isolated per-item failure in a payout batch.
type BatchError struct {
	CalculationID RecordID `json:"calculation_id"`
	Reason        string   `json:"reason"`
	Message       string   `json:"message"`
}

// BatchResult aggregates a MarkManyPaid run.
type BatchResult struct {
	SuccessCount  int          `json:"success_count"`
	ErrorCount    int          `json:"error_count"`
	Errors        []BatchError `json:"errors,omitempty"`
	PeriodsClosed []PeriodID   `json:"periods_closed,omitempty"`
}

// MarkManyPaid marks each calculation id as paid independently, then
// auto-closes every touched period whose close preconditions are satisfied.
// The returned error is non-nil only for infrastructure failures; business
// rejections land in the result's Errors slice.
func (o *Orchestrator) MarkManyPaid(ctx context.Context, calculationIDs []RecordID, method, reference, notes string) (BatchResult, error) {
	var result BatchResult
	touched := make(map[PeriodID]struct{})

	for _, id := range calculationIDs {
		periodID, err := o.markOne(ctx, id, method, reference, notes)
		if err != nil {
			result.ErrorCount++
			result.Errors = append(result.Errors, toBatchError(id, err))
			continue
		}
		result.SuccessCount++
		touched[periodID] = struct{}{}
	}

	for periodID := range touched {
		report, err := o.lifecycle.Close(ctx, periodID)
		if err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				// Preconditions not met yet; the period simply stays open.
				continue
			}
			o.log.Warn("auto-close failed", "period_id", periodID, "error", err)
			continue
		}
		o.log.Info("period auto-closed",
			"period_id", periodID,
			"paid_drivers", report.PaidDrivers,
			"total_drivers", report.TotalDrivers)
		result.PeriodsClosed = append(result.PeriodsClosed, periodID)
	}
	return result, nil
}

// MarkPaid marks a single calculation as paid. Same validation as the batch
// path, surfaced as an error instead of a report entry; the period is
// auto-closed when the payment completes it.
func (o *Orchestrator) MarkPaid(ctx context.Context, calculationID RecordID, method, reference, notes string) (*BatchResult, error) {
	result, err := o.MarkManyPaid(ctx, []RecordID{calculationID}, method, reference, notes)
	if err != nil {
		return nil, err
	}
	if result.ErrorCount > 0 {
		e := result.Errors[0]
		switch e.Reason {
		case "not_found":
			return nil, &NotFoundError{Kind: "payroll_record", ID: string(calculationID)}
		case "period_locked":
			return nil, &LockedPeriodError{}
		default:
			return nil, &ValidationError{Reason: e.Reason, Message: e.Message}
		}
	}
	return &result, nil
}

// markOne validates and marks a single record inside one transaction and
// returns the period it belongs to.
func (o *Orchestrator) markOne(ctx context.Context, id RecordID, method, reference, notes string) (PeriodID, error) {
	var periodID PeriodID
	err := o.store.WithTx(ctx, func(s Store) error {
		rec, err := s.GetPayrollRecord(ctx, id)
		if err != nil {
			return &DependencyError{Op: "storage", Err: err}
		}
		if rec == nil {
			return &NotFoundError{Kind: "payroll_record", ID: string(id)}
		}

		period, err := loadPeriod(ctx, s, rec.PeriodID)
		if err != nil {
			return err
		}
		if period.Locked {
			return &LockedPeriodError{PeriodID: period.ID}
		}

		switch rec.PaymentStatus {
		case PaymentPaid:
			return newValidation(ReasonAlreadyPaid, "record %s is already paid", id)
		case PaymentPending:
			return newValidation(ReasonNotCalculated, "record %s has not been calculated", id)
		case PaymentFailed:
			return newValidation(ReasonFailedPayment, "record %s failed and needs recalculation", id)
		}

		if err := s.MarkRecordPaid(ctx, id, method, reference, notes, time.Now().UTC()); err != nil {
			return &DependencyError{Op: "storage", Err: err}
		}
		periodID = rec.PeriodID
		return nil
	})
	return periodID, err
}

func toBatchError(id RecordID, err error) BatchError {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return BatchError{CalculationID: id, Reason: verr.Reason, Message: verr.Message}
	}
	if errors.Is(err, ErrNotFound) {
		return BatchError{CalculationID: id, Reason: "not_found", Message: err.Error()}
	}
	if errors.Is(err, ErrPeriodLocked) {
		return BatchError{CalculationID: id, Reason: "period_locked", Message: err.Error()}
	}
	return BatchError{CalculationID: id, Reason: "internal", Message: err.Error()}
}
