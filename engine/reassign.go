/*
reassign.go - Reassignment Service

PURPOSE:
  Atomically moves a financial element between payment periods. Either the
  element's period id changes and BOTH periods are flagged for payroll
  recalculation, or nothing changes. This is the only supported way to move
  an element; editing an element's dates never re-resolves its period.
*/
package engine

import "context"

// Reassigner moves elements between periods.
type Reassigner struct {
	store TxStore
}

func NewReassigner(store TxStore) *Reassigner {
	return &Reassigner{store: store}
}

// Reassign moves the element to newPeriodID. Fails with ErrPeriodLocked if
// the source or destination period is locked, ErrNotFound for a missing
// element or period. A move to the element's current period is a no-op.
func (r *Reassigner) Reassign(ctx context.Context, kind ElementKind, elementID ElementID, newPeriodID PeriodID) error {
	return r.store.WithTx(ctx, func(s Store) error {
		el, err := s.GetElement(ctx, kind, elementID)
		if err != nil {
			return &DependencyError{Op: "storage", Err: err}
		}
		if el == nil {
			return &NotFoundError{Kind: "element", ID: string(elementID)}
		}

		target, err := loadPeriod(ctx, s, newPeriodID)
		if err != nil {
			return err
		}
		if target.Locked {
			return &LockedPeriodError{PeriodID: target.ID}
		}
		if target.CompanyID != el.CompanyID {
			return &NotFoundError{Kind: "period", ID: string(newPeriodID)}
		}

		if el.PeriodID == newPeriodID {
			return nil
		}

		if el.PeriodID != "" {
			source, err := loadPeriod(ctx, s, el.PeriodID)
			if err != nil {
				return err
			}
			if source.Locked {
				return &LockedPeriodError{PeriodID: source.ID}
			}
		}

		if err := s.UpdateElementPeriod(ctx, kind, elementID, newPeriodID); err != nil {
			return &DependencyError{Op: "storage", Err: err}
		}
		if el.PeriodID != "" {
			if err := s.FlagRecalculation(ctx, el.PeriodID); err != nil {
				return &DependencyError{Op: "storage", Err: err}
			}
		}
		if err := s.FlagRecalculation(ctx, newPeriodID); err != nil {
			return &DependencyError{Op: "storage", Err: err}
		}
		return nil
	})
}
