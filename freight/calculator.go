/*
calculator.go - Payroll aggregate calculator

PURPOSE:
  Implements engine.PayrollCalculator by summing a driver's elements in a
  period into the payroll record's monetary aggregates:

    gross_earnings   = sum of load amounts
    fuel_expenses    = sum of fuel expense amounts
    total_deductions = sum of deduction amounts
    other_income     = sum of other income amounts
    net_payment      = gross + other_income - fuel - deductions

  Recalculating moves a pending/calculated record to "calculated" and clears
  the needs_recalculation flag. Records already paid keep their status and
  paid fields; only the aggregates are refreshed. The first recalculation in
  an open period also flips the period to processing.
*/
package freight

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fleetops/payroll-engine/engine"
)

// Calculator computes and stores payroll aggregates per (period, driver).
type Calculator struct {
	store     engine.TxStore
	lifecycle *engine.Controller
	log       *slog.Logger
}

func NewCalculator(store engine.TxStore, lifecycle *engine.Controller, log *slog.Logger) *Calculator {
	if log == nil {
		log = slog.Default()
	}
	return &Calculator{store: store, lifecycle: lifecycle, log: log}
}

// Recalculate recomputes the aggregates for one driver in one period and
// upserts the payroll record, all inside a single transaction.
func (c *Calculator) Recalculate(ctx context.Context, periodID engine.PeriodID, userID engine.UserID) error {
	err := c.store.WithTx(ctx, func(s engine.Store) error {
		elements, err := s.ListElementsByPeriod(ctx, periodID)
		if err != nil {
			return &engine.DependencyError{Op: "storage", Err: err}
		}

		var gross, fuel, deductions, other decimal.Decimal
		for _, el := range elements {
			if el.UserID != userID {
				continue
			}
			switch el.Kind {
			case engine.KindLoad:
				gross = gross.Add(el.Amount)
			case engine.KindFuelExpense:
				fuel = fuel.Add(el.Amount)
			case engine.KindDeduction:
				deductions = deductions.Add(el.Amount)
			case engine.KindOtherIncome:
				other = other.Add(el.Amount)
			}
		}
		net := gross.Add(other).Sub(fuel).Sub(deductions)

		now := time.Now().UTC()
		rec, err := s.FindPayrollRecord(ctx, periodID, userID)
		if err != nil {
			return &engine.DependencyError{Op: "storage", Err: err}
		}
		if rec == nil {
			rec = &engine.PayrollRecord{
				ID:            engine.RecordID(uuid.NewString()),
				PeriodID:      periodID,
				UserID:        userID,
				PaymentStatus: engine.PaymentCalculated,
				CreatedAt:     now,
			}
		}

		rec.GrossEarnings = gross
		rec.FuelExpenses = fuel
		rec.TotalDeductions = deductions
		rec.OtherIncome = other
		rec.NetPayment = net
		rec.NeedsRecalculation = false
		rec.UpdatedAt = now

		// Paid records keep their payment state; everything else becomes
		// calculated again.
		if rec.PaymentStatus != engine.PaymentPaid {
			rec.PaymentStatus = engine.PaymentCalculated
		}

		if err := s.UpsertPayrollRecord(ctx, *rec); err != nil {
			return &engine.DependencyError{Op: "storage", Err: err}
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Calculation activity moves an open period into processing. A failure
	// here does not undo the calculation.
	if err := c.lifecycle.MarkProcessing(ctx, periodID); err != nil {
		if !engine.IsClientError(err) {
			c.log.Warn("mark processing failed", "period_id", periodID, "error", err)
		}
	}
	return nil
}

// RecalculateFlagged recomputes every record of the period currently marked
// needs_recalculation. Used after reassignments.
func (c *Calculator) RecalculateFlagged(ctx context.Context, periodID engine.PeriodID) error {
	records, err := c.store.ListPayrollRecords(ctx, periodID)
	if err != nil {
		return &engine.DependencyError{Op: "storage", Err: err}
	}
	for _, rec := range records {
		if !rec.NeedsRecalculation {
			continue
		}
		if err := c.Recalculate(ctx, periodID, rec.UserID); err != nil {
			return err
		}
	}
	return nil
}
