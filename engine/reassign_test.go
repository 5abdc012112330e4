package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/payroll-engine/engine"
	"github.com/fleetops/payroll-engine/engine/store"
)

// =============================================================================
// REASSIGNMENT
// =============================================================================

func TestReassign_MovesElementAndFlagsBothPeriods(t *testing.T) {
	// GIVEN: An element in period p1, payroll records in p1 and p2
	// WHEN: Reassigning the element to p2
	// THEN: The element's period changes and both periods' records are
	//       flagged for recalculation

	mem := store.NewMemory()
	p1 := seedPeriod(t, mem, "p1", engine.StatusOpen)
	p2 := seedPeriodWithStart(t, mem, "p2", engine.StatusOpen, date(2024, time.June, 17))
	seedLoad(t, mem, p1.ID, "l1", "driver-a")
	seedRecord(t, mem, "r1", p1.ID, "driver-a", engine.PaymentCalculated)
	seedRecord(t, mem, "r2", p2.ID, "driver-a", engine.PaymentCalculated)

	ctx := context.Background()
	err := engine.NewReassigner(mem).Reassign(ctx, engine.KindLoad, "l1", p2.ID)
	require.NoError(t, err)

	el, err := mem.GetElement(ctx, engine.KindLoad, "l1")
	require.NoError(t, err)
	assert.Equal(t, p2.ID, el.PeriodID)

	r1, _ := mem.GetPayrollRecord(ctx, "r1")
	r2, _ := mem.GetPayrollRecord(ctx, "r2")
	assert.True(t, r1.NeedsRecalculation, "source period must be flagged")
	assert.True(t, r2.NeedsRecalculation, "target period must be flagged")
}

func TestReassign_SamePeriod_NoOp(t *testing.T) {
	// GIVEN: An element already in the target period
	// WHEN: Reassigning it there
	// THEN: Nothing changes, no recalculation flags

	mem := store.NewMemory()
	p1 := seedPeriod(t, mem, "p1", engine.StatusOpen)
	seedLoad(t, mem, p1.ID, "l1", "driver-a")
	seedRecord(t, mem, "r1", p1.ID, "driver-a", engine.PaymentCalculated)

	ctx := context.Background()
	err := engine.NewReassigner(mem).Reassign(ctx, engine.KindLoad, "l1", p1.ID)
	require.NoError(t, err)

	r1, _ := mem.GetPayrollRecord(ctx, "r1")
	assert.False(t, r1.NeedsRecalculation)
}

func TestReassign_LockedTarget_Rejected(t *testing.T) {
	// GIVEN: A locked target period
	// WHEN: Reassigning an element into it
	// THEN: Rejected with the locked error; element stays put

	mem := store.NewMemory()
	p1 := seedPeriod(t, mem, "p1", engine.StatusOpen)
	p2 := seedPeriodWithStart(t, mem, "p2", engine.StatusClosed, date(2024, time.June, 17))
	require.NoError(t, mem.SetPeriodLocked(context.Background(), p2.ID, true))
	seedLoad(t, mem, p1.ID, "l1", "driver-a")

	err := engine.NewReassigner(mem).Reassign(context.Background(), engine.KindLoad, "l1", p2.ID)
	assert.ErrorIs(t, err, engine.ErrPeriodLocked)

	el, _ := mem.GetElement(context.Background(), engine.KindLoad, "l1")
	assert.Equal(t, p1.ID, el.PeriodID)
}

func TestReassign_LockedSource_Rejected(t *testing.T) {
	// GIVEN: An element whose current period is locked
	// WHEN: Reassigning it out
	// THEN: Rejected; locked periods are immutable in both directions

	mem := store.NewMemory()
	p1 := seedPeriod(t, mem, "p1", engine.StatusClosed)
	p2 := seedPeriodWithStart(t, mem, "p2", engine.StatusOpen, date(2024, time.June, 17))
	require.NoError(t, mem.SetPeriodLocked(context.Background(), p1.ID, true))
	seedLoad(t, mem, p1.ID, "l1", "driver-a")

	err := engine.NewReassigner(mem).Reassign(context.Background(), engine.KindLoad, "l1", p2.ID)
	assert.ErrorIs(t, err, engine.ErrPeriodLocked)

	el, _ := mem.GetElement(context.Background(), engine.KindLoad, "l1")
	assert.Equal(t, p1.ID, el.PeriodID)
}

func TestReassign_CrossCompany_Rejected(t *testing.T) {
	// GIVEN: A target period belonging to a different company
	// WHEN: Reassigning an element into it
	// THEN: Rejected as not found - foreign periods are invisible

	mem := store.NewMemory()
	p1 := seedPeriod(t, mem, "p1", engine.StatusOpen)
	other := engine.Period{
		ID:        "p-other",
		CompanyID: "rival",
		Start:     date(2024, time.June, 10),
		End:       date(2024, time.June, 16),
		Frequency: engine.FrequencyWeekly,
		Status:    engine.StatusOpen,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, mem.InsertPeriod(context.Background(), other))
	seedLoad(t, mem, p1.ID, "l1", "driver-a")

	err := engine.NewReassigner(mem).Reassign(context.Background(), engine.KindLoad, "l1", other.ID)
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestReassign_UnknownElement(t *testing.T) {
	mem := store.NewMemory()
	p1 := seedPeriod(t, mem, "p1", engine.StatusOpen)

	err := engine.NewReassigner(mem).Reassign(context.Background(), engine.KindLoad, "missing", p1.ID)
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestReassign_UnknownTargetPeriod(t *testing.T) {
	mem := store.NewMemory()
	p1 := seedPeriod(t, mem, "p1", engine.StatusOpen)
	seedLoad(t, mem, p1.ID, "l1", "driver-a")

	err := engine.NewReassigner(mem).Reassign(context.Background(), engine.KindLoad, "l1", "missing")
	assert.ErrorIs(t, err, engine.ErrNotFound)
}
