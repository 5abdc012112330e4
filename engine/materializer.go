/*
materializer.go - Idempotent "ensure period exists"

PURPOSE:
  Lazily materializes the one period containing a target date, exactly once,
  under concurrent access. No distributed lock: the storage uniqueness
  constraint on (company_id, start_date) is the sole serialization point, and
  a losing inserter recovers by re-querying the winner.

FLOW:
  1. Return the existing period covering the date, if any
  2. Compute boundaries from the company's cadence config
  3. Insert; on ErrDuplicatePeriod re-query and return the existing row
  4. Best-effort: seed payroll aggregates via the external calculator for
     users that already have elements in range. Failure here is logged and
     swallowed - materialization never fails because seeding did.

Materialization never backfills history; only the single covering period is
created.
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Materializer implements the ensure-exists operation on top of the
// calculator and the period store.
type Materializer struct {
	store Store
	calc  PayrollCalculator
	log   *slog.Logger
}

// NewMaterializer wires a materializer. calc may be nil when no seeding is
// wanted (tests, read-only tooling); log may be nil for the default logger.
func NewMaterializer(store Store, calc PayrollCalculator, log *slog.Logger) *Materializer {
	if log == nil {
		log = slog.Default()
	}
	return &Materializer{store: store, calc: calc, log: log}
}

// EnsurePeriod returns the persisted period containing target, creating it
// if it does not exist yet. Safe to call concurrently: all callers for the
// same date get the same period id.
func (m *Materializer) EnsurePeriod(ctx context.Context, companyID CompanyID, target Date) (*Period, error) {
	existing, err := m.store.FindPeriodContaining(ctx, companyID, target)
	if err != nil {
		return nil, &DependencyError{Op: "storage", Err: err}
	}
	if existing != nil {
		return existing, nil
	}

	cfg, err := m.store.GetCompanyConfig(ctx, companyID)
	if err != nil {
		return nil, &DependencyError{Op: "storage", Err: err}
	}
	if cfg == nil {
		return nil, &NotFoundError{Kind: "company_config", ID: string(companyID)}
	}

	bounds, err := ComputePeriod(target, cfg.Cadence())
	if err != nil {
		return nil, err
	}

	period := Period{
		ID:        PeriodID(uuid.NewString()),
		CompanyID: companyID,
		Start:     bounds.Start,
		End:       bounds.End,
		Frequency: cfg.Frequency,
		Status:    StatusOpen,
		CreatedAt: time.Now().UTC(),
	}

	switch err := m.store.InsertPeriod(ctx, period); {
	case err == nil:
		m.seedAggregates(ctx, &period)
		return &period, nil

	case errors.Is(err, ErrDuplicatePeriod):
		// A concurrent caller created it between lookup and insert. The
		// conflict is an implementation detail; return the winner.
		winner, qerr := m.store.FindPeriodContaining(ctx, companyID, target)
		if qerr != nil {
			return nil, &DependencyError{Op: "storage", Err: qerr}
		}
		if winner == nil {
			// Insert collided but nothing covers the date: the colliding row
			// must overlap without containing target. Config drift; surface.
			return nil, &DependencyError{Op: "storage",
				Err: fmt.Errorf("period insert collided for %s but no period covers %s", companyID, target)}
		}
		return winner, nil

	default:
		return nil, &DependencyError{Op: "storage", Err: err}
	}
}

// PreviewPeriods computes previous/current/next boundaries around ref for UI
// lookahead, without persisting anything.
func (m *Materializer) PreviewPeriods(ctx context.Context, companyID CompanyID, ref Date) ([]PreviewPeriod, error) {
	cfg, err := m.store.GetCompanyConfig(ctx, companyID)
	if err != nil {
		return nil, &DependencyError{Op: "storage", Err: err}
	}
	if cfg == nil {
		return nil, &NotFoundError{Kind: "company_config", ID: string(companyID)}
	}

	current, err := ComputePeriod(ref, cfg.Cadence())
	if err != nil {
		return nil, err
	}
	previous, err := ComputePrevious(current, cfg.Cadence())
	if err != nil {
		return nil, err
	}
	next, err := ComputeNext(current, cfg.Cadence())
	if err != nil {
		return nil, err
	}

	preview := func(b Bounds, tag PreviewTag) PreviewPeriod {
		return PreviewPeriod{
			CompanyID: companyID,
			Start:     b.Start,
			End:       b.End,
			Frequency: cfg.Frequency,
			Tag:       tag,
		}
	}
	return []PreviewPeriod{
		preview(previous, PreviewPrevious),
		preview(current, PreviewCurrent),
		preview(next, PreviewNext),
	}, nil
}

// seedAggregates triggers the external calculator for users that already
// have elements assigned to the new period. Best-effort only.
func (m *Materializer) seedAggregates(ctx context.Context, p *Period) {
	if m.calc == nil {
		return
	}
	users, err := m.store.UsersWithElements(ctx, p.ID)
	if err != nil {
		m.log.Warn("period seeding skipped", "period_id", p.ID, "error", err)
		return
	}
	for _, user := range users {
		if err := m.calc.Recalculate(ctx, p.ID, user); err != nil {
			m.log.Warn("payroll seeding failed",
				"period_id", p.ID, "user_id", user, "error", err)
		}
	}
}
