/*
assignment.go - Assignment Resolver

PURPOSE:
  Decides which payment period a financial element belongs to and stores the
  period id on the element at creation time (eager denormalization, so reads
  never recompute cadence math).

RULES:
  - Loads use pickup or delivery date per the company's assignment criterion;
    the other element kinds use their single event date
  - A missing relevant date falls back to today
  - The covering period is materialized on demand via EnsurePeriod
  - Assignment into a locked period is refused

INVARIANT (documented, not an oversight):
  Editing an element's relevant date does NOT re-resolve its period. The
  Reassignment Service is the only way to move an element between periods.
*/
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Resolver assigns financial elements to payment periods.
type Resolver struct {
	store Store
	mat   *Materializer
}

func NewResolver(store Store, mat *Materializer) *Resolver {
	return &Resolver{store: store, mat: mat}
}

// ResolvePeriodForElement returns the id of the period the element belongs
// to, materializing the period if necessary. The element is not persisted.
func (r *Resolver) ResolvePeriodForElement(ctx context.Context, companyID CompanyID, el Element) (PeriodID, error) {
	cfg, err := r.store.GetCompanyConfig(ctx, companyID)
	if err != nil {
		return "", &DependencyError{Op: "storage", Err: err}
	}
	if cfg == nil {
		return "", &NotFoundError{Kind: "company_config", ID: string(companyID)}
	}

	relevant, ok := el.RelevantDate(cfg.AssignmentCriterion)
	if !ok {
		relevant = Today()
	}

	period, err := r.mat.EnsurePeriod(ctx, companyID, relevant)
	if err != nil {
		return "", err
	}
	if period.Locked {
		return "", &LockedPeriodError{PeriodID: period.ID}
	}
	return period.ID, nil
}

// CreateElement resolves the element's period and persists it with the
// period id set. Generates an id when the caller left it empty.
func (r *Resolver) CreateElement(ctx context.Context, el Element) (Element, error) {
	periodID, err := r.ResolvePeriodForElement(ctx, el.CompanyID, el)
	if err != nil {
		return Element{}, err
	}

	el.PeriodID = periodID
	if el.ID == "" {
		el.ID = ElementID(uuid.NewString())
	}
	if el.CreatedAt.IsZero() {
		el.CreatedAt = time.Now().UTC()
	}

	if err := r.store.InsertElement(ctx, el); err != nil {
		return Element{}, &DependencyError{Op: "storage", Err: err}
	}
	return el, nil
}
