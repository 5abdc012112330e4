/*
store.go - Persistence interfaces for the period engine

PURPOSE:
  Defines the boundary between the engine and the database. Two
  implementations exist: store/sqlite (production) and engine/store
  (in-memory, for tests and dev).

CONCURRENCY CONTRACT:
  InsertPeriod is the sole serialization point for materialization: the
  storage layer MUST enforce uniqueness/non-overlap per company and report a
  collision as ErrDuplicatePeriod. No other operation needs external locking;
  callers that must read-then-write atomically (close validation, payouts,
  reassignment) do so inside WithTx.
*/
package engine

import (
	"context"
	"time"
)

// PeriodFilter narrows ListPeriods. Nil fields are ignored.
type PeriodFilter struct {
	Status *PeriodStatus
	From   *Date // periods ending on/after
	To     *Date // periods starting on/before
	Limit  int   // 0 = no limit
}

// Store is the persistence surface the engine components run against.
//
// Lookup methods return (nil, nil) when the row does not exist; the engine
// decides whether absence is an error.
type Store interface {
	// Company configuration
	SaveCompanyConfig(ctx context.Context, companyID CompanyID, cfg CompanyConfig) error
	GetCompanyConfig(ctx context.Context, companyID CompanyID) (*CompanyConfig, error)

	// Periods
	FindPeriodContaining(ctx context.Context, companyID CompanyID, d Date) (*Period, error)
	// InsertPeriod persists a new period. Returns ErrDuplicatePeriod when the
	// interval collides with an existing period for the company.
	InsertPeriod(ctx context.Context, p Period) error
	GetPeriod(ctx context.Context, id PeriodID) (*Period, error)
	ListPeriods(ctx context.Context, companyID CompanyID, f PeriodFilter) ([]Period, error)
	UpdatePeriodStatus(ctx context.Context, id PeriodID, status PeriodStatus, closedAt *time.Time) error
	SetPeriodLocked(ctx context.Context, id PeriodID, locked bool) error

	// Financial elements
	InsertElement(ctx context.Context, el Element) error
	GetElement(ctx context.Context, kind ElementKind, id ElementID) (*Element, error)
	UpdateElementPeriod(ctx context.Context, kind ElementKind, id ElementID, periodID PeriodID) error
	ListElementsByPeriod(ctx context.Context, periodID PeriodID) ([]Element, error)
	// UsersWithElements returns the distinct users having at least one
	// element assigned to the period. Used by the close preconditions.
	UsersWithElements(ctx context.Context, periodID PeriodID) ([]UserID, error)

	// Payroll records
	UpsertPayrollRecord(ctx context.Context, rec PayrollRecord) error
	GetPayrollRecord(ctx context.Context, id RecordID) (*PayrollRecord, error)
	FindPayrollRecord(ctx context.Context, periodID PeriodID, userID UserID) (*PayrollRecord, error)
	ListPayrollRecords(ctx context.Context, periodID PeriodID) ([]PayrollRecord, error)
	MarkRecordPaid(ctx context.Context, id RecordID, method, reference, notes string, paidAt time.Time) error
	// FlagRecalculation marks every payroll record of the period as needing
	// recomputation by the external calculator.
	FlagRecalculation(ctx context.Context, periodID PeriodID) error
	// ListFlaggedPeriods returns the distinct periods that still contain
	// records flagged for recalculation. Drives the background sweeper.
	ListFlaggedPeriods(ctx context.Context) ([]PeriodID, error)
}

// TxStore extends Store with transaction support. fn runs against a Store
// view whose writes commit only if fn returns nil.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}

// PayrollCalculator is the external subsystem computing monetary aggregates
// for a (period, user) pair. The engine treats it as opaque pass/fail.
type PayrollCalculator interface {
	Recalculate(ctx context.Context, periodID PeriodID, userID UserID) error
}
