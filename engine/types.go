/*
Package engine implements the payment period lifecycle for a freight-company
back office: deriving payroll-period boundaries from a company's billing
cadence, lazily materializing periods on first reference, assigning financial
elements to periods, and governing the open/processing/closed state machine
that gates payouts.

KEY CONCEPTS (types.go):
  - Period: a persisted, contiguous date range grouping financial elements
  - PreviewPeriod: a computed lookahead range that is never persisted
  - Element: a load, fuel expense, deduction, or other-income record
  - PayrollRecord: per (period, driver) payment state and aggregates

DESIGN PRINCIPLES:
 1. Explicitness: every operation takes a company ID; no ambient state
 2. Precision: monetary aggregates use decimal.Decimal, never float64
 3. Type safety: PreviewPeriod is a distinct type, so a preview can never be
    mutated, closed, or persisted by accident
 4. Lazy materialization: periods exist only once a date inside them is
    referenced; history is never eagerly backfilled

SEE ALSO:
  - period.go: pure cadence calculator
  - materializer.go: idempotent ensure-exists
  - lifecycle.go: close/lock state machine
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CompanyID string
type PeriodID string
type ElementID string
type UserID string
type RecordID string

// =============================================================================
// COMPANY CONFIG - Billing cadence and assignment rule
// =============================================================================

// Frequency is the payroll cadence a company pays its drivers on.
type Frequency string

const (
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
)

// AssignmentCriterion selects which date field of a load determines its
// payment period. Non-load elements always use their own event date.
type AssignmentCriterion string

const (
	CriterionPickupDate   AssignmentCriterion = "pickup_date"
	CriterionDeliveryDate AssignmentCriterion = "delivery_date"
)

// CompanyConfig is a company's payment configuration.
//
// CycleStartDay meaning depends on Frequency:
//   - weekly/biweekly: ISO weekday, 1 = Monday .. 7 = Sunday
//   - monthly: day of month 1..31, clamped to short months
type CompanyConfig struct {
	Frequency           Frequency           `json:"frequency"`
	CycleStartDay       int                 `json:"cycle_start_day"`
	AssignmentCriterion AssignmentCriterion `json:"assignment_criterion"`
}

// Cadence returns the pure-calculation view of the config.
func (c CompanyConfig) Cadence() CadenceConfig {
	return CadenceConfig{Frequency: c.Frequency, CycleStartDay: c.CycleStartDay}
}

// =============================================================================
// PERIOD - Persisted payroll period
// =============================================================================

// PeriodStatus is the lifecycle state of a period.
/// Transitions: open -> processing -> closed. Closed is terminal here;
// reopening is an administrative action outside this engine.
type PeriodStatus string

const (
	StatusOpen       PeriodStatus = "open"
	StatusProcessing PeriodStatus = "processing"
	StatusClosed     PeriodStatus = "closed"
)

// Period is a materialized payroll period. For a company, persisted periods
// are contiguous and pairwise non-overlapping; at most one covers any date.
// Periods are created only by the Materializer and mutated only by the
// Lifecycle Controller (status, locked).
type Period struct {
	ID        PeriodID
	CompanyID CompanyID
	Start     Date // inclusive
	End       Date // inclusive
	Frequency Frequency
	Status    PeriodStatus
	Locked    bool
	CreatedAt time.Time
	ClosedAt  *time.Time
}

// Contains reports whether d falls inside the period [Start, End].
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// =============================================================================
// PREVIEW PERIOD - UI lookahead, never persisted
// =============================================================================

// PreviewTag labels which neighbor of the reference date a preview covers.
type PreviewTag string

const (
	PreviewPrevious PreviewTag = "previous"
	PreviewCurrent  PreviewTag = "current"
	PreviewNext     PreviewTag = "next"
)

// PreviewPeriod is a computed period used for UI lookahead before a real
// period exists. It deliberately has no ID and is a separate type from
// Period: nothing that mutates or persists periods accepts a PreviewPeriod.
type PreviewPeriod struct {
	CompanyID CompanyID
	Start     Date
	End       Date
	Frequency Frequency
	Tag       PreviewTag
}

// =============================================================================
// FINANCIAL ELEMENTS
// =============================================================================

// ElementKind discriminates the four kinds of financial element that can be
// assigned to a payment period.
type ElementKind string

const (
	KindLoad        ElementKind = "load"
	KindFuelExpense ElementKind = "fuel_expense"
	KindDeduction   ElementKind = "deduction"
	KindOtherIncome ElementKind = "other_income"
)

// Element is a financial event assignable to exactly one period. Loads carry
// pickup and delivery dates; the other kinds carry a single event date.
// PeriodID is empty until the Assignment Resolver stores it at creation time.
type Element struct {
	ID        ElementID
	Kind      ElementKind
	CompanyID CompanyID
	UserID    UserID
	PeriodID  PeriodID

	PickupDate   *Date // loads only
	DeliveryDate *Date // loads only
	EventDate    *Date // fuel expenses, deductions, other income

	Amount      decimal.Decimal
	Description string
	CreatedAt   time.Time
}

// RelevantDate returns the date that determines this element's period under
// the given criterion, and false when the element has no usable date (the
// resolver then falls back to today).
func (e Element) RelevantDate(criterion AssignmentCriterion) (Date, bool) {
	if e.Kind == KindLoad {
		var d *Date
		switch criterion {
		case CriterionPickupDate:
			d = e.PickupDate
		default:
			d = e.DeliveryDate
		}
		if d == nil || d.IsZero() {
			return Date{}, false
		}
		return *d, true
	}
	if e.EventDate == nil || e.EventDate.IsZero() {
		return Date{}, false
	}
	return *e.EventDate, true
}

// =============================================================================
// PAYROLL RECORDS - Per (period, driver) payment state
// =============================================================================

// PaymentStatus tracks a driver's payroll record through a period.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentCalculated PaymentStatus = "calculated"
	PaymentApproved   PaymentStatus = "approved"
	PaymentPaid       PaymentStatus = "paid"
	PaymentFailed     PaymentStatus = "failed"
)

// PayrollRecord is the per (period, user) aggregate row. The monetary fields
// are written by the external payroll calculator and are opaque to this
// engine; the engine owns PaymentStatus, the paid_* fields, and the
// NeedsRecalculation flag.
type PayrollRecord struct {
	ID       RecordID
	PeriodID PeriodID
	UserID   UserID

	PaymentStatus    PaymentStatus
	PaidAt           *time.Time
	PaymentMethod    string
	PaymentReference string
	PaymentNotes     string

	GrossEarnings   decimal.Decimal
	FuelExpenses    decimal.Decimal
	TotalDeductions decimal.Decimal
	OtherIncome     decimal.Decimal
	NetPayment      decimal.Decimal

	NeedsRecalculation bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
