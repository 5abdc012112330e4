package freight_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/payroll-engine/engine"
	"github.com/fleetops/payroll-engine/engine/store"
	"github.com/fleetops/payroll-engine/freight"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func d(day int) engine.Date {
	return engine.NewDate(2024, time.June, day)
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	v, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return v
}

func seedWeek(t *testing.T, mem *store.Memory) engine.Period {
	t.Helper()
	p := engine.Period{
		ID:        "p1",
		CompanyID: "acme",
		Start:     d(10),
		End:       d(16),
		Frequency: engine.FrequencyWeekly,
		Status:    engine.StatusOpen,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, mem.InsertPeriod(context.Background(), p))
	return p
}

func insert(t *testing.T, mem *store.Memory, el engine.Element) {
	t.Helper()
	require.NoError(t, mem.InsertElement(context.Background(), el))
}

// =============================================================================
// AGGREGATES
// =============================================================================

func TestRecalculate_SumsByKind(t *testing.T) {
	// GIVEN: A driver with two loads, a fuel expense, a deduction and
	//        detention pay in one period
	// WHEN: Recalculating
	// THEN: gross=4050, fuel=412.35, deductions=150, other=75,
	//       net = 4050 + 75 - 412.35 - 150 = 3562.65

	mem := store.NewMemory()
	p := seedWeek(t, mem)
	del := d(11)

	insert(t, mem, engine.Element{ID: "l1", Kind: engine.KindLoad, CompanyID: "acme", UserID: "driver-a",
		PeriodID: p.ID, DeliveryDate: &del, Amount: dec(t, "1850.00")})
	insert(t, mem, engine.Element{ID: "l2", Kind: engine.KindLoad, CompanyID: "acme", UserID: "driver-a",
		PeriodID: p.ID, DeliveryDate: &del, Amount: dec(t, "2200.00")})
	insert(t, mem, engine.Element{ID: "f1", Kind: engine.KindFuelExpense, CompanyID: "acme", UserID: "driver-a",
		PeriodID: p.ID, EventDate: &del, Amount: dec(t, "412.35")})
	insert(t, mem, engine.Element{ID: "d1", Kind: engine.KindDeduction, CompanyID: "acme", UserID: "driver-a",
		PeriodID: p.ID, EventDate: &del, Amount: dec(t, "150.00")})
	insert(t, mem, engine.Element{ID: "o1", Kind: engine.KindOtherIncome, CompanyID: "acme", UserID: "driver-a",
		PeriodID: p.ID, EventDate: &del, Amount: dec(t, "75.00")})

	calc := freight.NewCalculator(mem, engine.NewController(mem), nil)
	require.NoError(t, calc.Recalculate(context.Background(), p.ID, "driver-a"))

	rec, err := mem.FindPayrollRecord(context.Background(), p.ID, "driver-a")
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.True(t, rec.GrossEarnings.Equal(dec(t, "4050.00")), "gross = %s", rec.GrossEarnings)
	assert.True(t, rec.FuelExpenses.Equal(dec(t, "412.35")))
	assert.True(t, rec.TotalDeductions.Equal(dec(t, "150.00")))
	assert.True(t, rec.OtherIncome.Equal(dec(t, "75.00")))
	assert.True(t, rec.NetPayment.Equal(dec(t, "3562.65")), "net = %s", rec.NetPayment)
	assert.Equal(t, engine.PaymentCalculated, rec.PaymentStatus)
	assert.False(t, rec.NeedsRecalculation)
}

func TestRecalculate_IgnoresOtherDrivers(t *testing.T) {
	// GIVEN: Elements from two drivers in one period
	// WHEN: Recalculating driver-a
	// THEN: Only driver-a's elements contribute

	mem := store.NewMemory()
	p := seedWeek(t, mem)
	del := d(11)

	insert(t, mem, engine.Element{ID: "l1", Kind: engine.KindLoad, CompanyID: "acme", UserID: "driver-a",
		PeriodID: p.ID, DeliveryDate: &del, Amount: dec(t, "1000")})
	insert(t, mem, engine.Element{ID: "l2", Kind: engine.KindLoad, CompanyID: "acme", UserID: "driver-b",
		PeriodID: p.ID, DeliveryDate: &del, Amount: dec(t, "9000")})

	calc := freight.NewCalculator(mem, engine.NewController(mem), nil)
	require.NoError(t, calc.Recalculate(context.Background(), p.ID, "driver-a"))

	rec, err := mem.FindPayrollRecord(context.Background(), p.ID, "driver-a")
	require.NoError(t, err)
	assert.True(t, rec.GrossEarnings.Equal(dec(t, "1000")))
}

func TestRecalculate_PreservesPaidStatus(t *testing.T) {
	// GIVEN: A record already marked paid
	// WHEN: A recalculation runs (e.g. after a reassignment flag)
	// THEN: Aggregates refresh but the paid state and details survive

	mem := store.NewMemory()
	p := seedWeek(t, mem)
	del := d(11)
	insert(t, mem, engine.Element{ID: "l1", Kind: engine.KindLoad, CompanyID: "acme", UserID: "driver-a",
		PeriodID: p.ID, DeliveryDate: &del, Amount: dec(t, "500")})

	paidAt := time.Now().UTC()
	require.NoError(t, mem.UpsertPayrollRecord(context.Background(), engine.PayrollRecord{
		ID: "r1", PeriodID: p.ID, UserID: "driver-a",
		PaymentStatus: engine.PaymentPaid, PaidAt: &paidAt, PaymentMethod: "ach",
		NeedsRecalculation: true,
		CreatedAt:          paidAt, UpdatedAt: paidAt,
	}))

	calc := freight.NewCalculator(mem, engine.NewController(mem), nil)
	require.NoError(t, calc.Recalculate(context.Background(), p.ID, "driver-a"))

	rec, err := mem.GetPayrollRecord(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, engine.PaymentPaid, rec.PaymentStatus)
	assert.True(t, rec.GrossEarnings.Equal(dec(t, "500")))
	assert.False(t, rec.NeedsRecalculation)
}

func TestRecalculate_MovesOpenPeriodToProcessing(t *testing.T) {
	// GIVEN: An open period
	// WHEN: The first recalculation runs
	// THEN: The period status becomes processing

	mem := store.NewMemory()
	p := seedWeek(t, mem)
	del := d(11)
	insert(t, mem, engine.Element{ID: "l1", Kind: engine.KindLoad, CompanyID: "acme", UserID: "driver-a",
		PeriodID: p.ID, DeliveryDate: &del, Amount: dec(t, "500")})

	calc := freight.NewCalculator(mem, engine.NewController(mem), nil)
	require.NoError(t, calc.Recalculate(context.Background(), p.ID, "driver-a"))

	got, err := mem.GetPeriod(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusProcessing, got.Status)
}

// =============================================================================
// FLAGGED RECALCULATION
// =============================================================================

func TestRecalculateFlagged_OnlyFlaggedRecords(t *testing.T) {
	// GIVEN: One flagged and one clean record in a period
	// WHEN: Running the flagged sweep
	// THEN: Only the flagged record is recomputed and unflagged

	mem := store.NewMemory()
	p := seedWeek(t, mem)
	del := d(11)
	insert(t, mem, engine.Element{ID: "l1", Kind: engine.KindLoad, CompanyID: "acme", UserID: "driver-a",
		PeriodID: p.ID, DeliveryDate: &del, Amount: dec(t, "500")})

	now := time.Now().UTC()
	require.NoError(t, mem.UpsertPayrollRecord(context.Background(), engine.PayrollRecord{
		ID: "r1", PeriodID: p.ID, UserID: "driver-a",
		PaymentStatus: engine.PaymentCalculated, NeedsRecalculation: true,
		CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, mem.UpsertPayrollRecord(context.Background(), engine.PayrollRecord{
		ID: "r2", PeriodID: p.ID, UserID: "driver-b",
		PaymentStatus: engine.PaymentCalculated, GrossEarnings: dec(t, "999"),
		CreatedAt: now, UpdatedAt: now,
	}))

	calc := freight.NewCalculator(mem, engine.NewController(mem), nil)
	require.NoError(t, calc.RecalculateFlagged(context.Background(), p.ID))

	r1, _ := mem.GetPayrollRecord(context.Background(), "r1")
	r2, _ := mem.GetPayrollRecord(context.Background(), "r2")
	assert.False(t, r1.NeedsRecalculation)
	assert.True(t, r1.GrossEarnings.Equal(dec(t, "500")))
	assert.True(t, r2.GrossEarnings.Equal(dec(t, "999")), "clean record must be untouched")
}

// =============================================================================
// ELEMENT CONSTRUCTORS
// =============================================================================

func TestElementConstructors(t *testing.T) {
	pickup, delivery := d(10), d(11)
	amount := dec(t, "100")

	load := freight.NewLoad("acme", "driver-a", pickup, delivery, amount)
	assert.Equal(t, engine.KindLoad, load.Kind)
	require.NotNil(t, load.PickupDate)
	require.NotNil(t, load.DeliveryDate)
	assert.Equal(t, pickup, *load.PickupDate)
	assert.Equal(t, delivery, *load.DeliveryDate)

	fuel := freight.NewFuelExpense("acme", "driver-a", delivery, amount)
	assert.Equal(t, engine.KindFuelExpense, fuel.Kind)
	require.NotNil(t, fuel.EventDate)

	ded := freight.NewDeduction("acme", "driver-a", delivery, amount, "insurance")
	assert.Equal(t, engine.KindDeduction, ded.Kind)
	assert.Equal(t, "insurance", ded.Description)

	inc := freight.NewOtherIncome("acme", "driver-a", delivery, amount, "detention")
	assert.Equal(t, engine.KindOtherIncome, inc.Kind)
	assert.Equal(t, "detention", inc.Description)
}
