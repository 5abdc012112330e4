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

func newOrchestrator(mem *store.Memory) *engine.Orchestrator {
	return engine.NewOrchestrator(mem, engine.NewController(mem), nil)
}

// =============================================================================
// SINGLE PAYOUT
// =============================================================================

func TestMarkPaid_CalculatedRecord(t *testing.T) {
	// GIVEN: A calculated payroll record
	// WHEN: Marking it paid with method and reference
	// THEN: Status becomes paid with the payment details stored

	mem := store.NewMemory()
	p := seedPeriod(t, mem, "p1", engine.StatusProcessing)
	seedLoad(t, mem, p.ID, "l1", "driver-a")
	seedRecord(t, mem, "r1", p.ID, "driver-a", engine.PaymentCalculated)

	orch := newOrchestrator(mem)
	_, err := orch.MarkPaid(context.Background(), "r1", "ach", "batch-42", "june settlement")
	require.NoError(t, err)

	rec, err := mem.GetPayrollRecord(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, engine.PaymentPaid, rec.PaymentStatus)
	assert.NotNil(t, rec.PaidAt)
	assert.Equal(t, "ach", rec.PaymentMethod)
	assert.Equal(t, "batch-42", rec.PaymentReference)
}

func TestMarkPaid_RejectedStatuses(t *testing.T) {
	// GIVEN: Records in non-payable states
	// WHEN: Marking each paid
	// THEN: Each is rejected with its specific reason and stays unchanged

	cases := []struct {
		name       string
		status     engine.PaymentStatus
		wantReason string
	}{
		{"already_paid", engine.PaymentPaid, engine.ReasonAlreadyPaid},
		{"pending_not_calculated", engine.PaymentPending, engine.ReasonNotCalculated},
		{"failed_needs_recalc", engine.PaymentFailed, engine.ReasonFailedPayment},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mem := store.NewMemory()
			p := seedPeriod(t, mem, "p1", engine.StatusProcessing)
			seedLoad(t, mem, p.ID, "l1", "driver-a")
			seedRecord(t, mem, "r1", p.ID, "driver-a", tc.status)

			orch := newOrchestrator(mem)
			_, err := orch.MarkPaid(context.Background(), "r1", "ach", "", "")

			var verr *engine.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.wantReason, verr.Reason)

			rec, _ := mem.GetPayrollRecord(context.Background(), "r1")
			assert.Equal(t, tc.status, rec.PaymentStatus)
		})
	}
}

func TestMarkPaid_LockedPeriod_Rejected(t *testing.T) {
	// GIVEN: A record in a locked period
	// WHEN: Marking it paid
	// THEN: Rejected with the locked error

	mem := store.NewMemory()
	p := seedPeriod(t, mem, "p1", engine.StatusClosed)
	require.NoError(t, mem.SetPeriodLocked(context.Background(), p.ID, true))
	seedRecord(t, mem, "r1", p.ID, "driver-a", engine.PaymentApproved)

	orch := newOrchestrator(mem)
	_, err := orch.MarkPaid(context.Background(), "r1", "ach", "", "")
	assert.ErrorIs(t, err, engine.ErrPeriodLocked)
}

func TestMarkPaid_UnknownRecord(t *testing.T) {
	mem := store.NewMemory()
	orch := newOrchestrator(mem)

	_, err := orch.MarkPaid(context.Background(), "missing", "ach", "", "")
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

// =============================================================================
// BATCH PAYOUT - per-item isolation
// =============================================================================

func TestMarkManyPaid_FailureIsolation(t *testing.T) {
	// GIVEN: A batch of three records - calculated, already paid, missing
	// WHEN: Marking the batch paid
	// THEN: The calculated one succeeds; the other two land in Errors with
	//       their own reasons; the batch itself does not error

	mem := store.NewMemory()
	p := seedPeriod(t, mem, "p1", engine.StatusProcessing)
	seedLoad(t, mem, p.ID, "l1", "driver-a")
	seedLoad(t, mem, p.ID, "l2", "driver-b")
	seedRecord(t, mem, "r1", p.ID, "driver-a", engine.PaymentCalculated)
	seedRecord(t, mem, "r2", p.ID, "driver-b", engine.PaymentPaid)

	orch := newOrchestrator(mem)
	result, err := orch.MarkManyPaid(context.Background(),
		[]engine.RecordID{"r1", "r2", "missing"}, "ach", "batch-7", "")
	require.NoError(t, err)

	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 2, result.ErrorCount)
	require.Len(t, result.Errors, 2)

	reasons := map[engine.RecordID]string{}
	for _, e := range result.Errors {
		reasons[e.CalculationID] = e.Reason
	}
	assert.Equal(t, engine.ReasonAlreadyPaid, reasons["r2"])
	assert.Equal(t, "not_found", reasons["missing"])

	rec, _ := mem.GetPayrollRecord(context.Background(), "r1")
	assert.Equal(t, engine.PaymentPaid, rec.PaymentStatus)
}

// =============================================================================
// AUTO-CLOSE
// =============================================================================

func TestMarkManyPaid_AutoClosesCompletedPeriod(t *testing.T) {
	// GIVEN: The last unpaid driver of a period (one already paid)
	// WHEN: The batch pays the remaining record
	// THEN: The period is auto-closed and reported in PeriodsClosed

	mem := store.NewMemory()
	p := seedPeriod(t, mem, "p1", engine.StatusProcessing)
	seedLoad(t, mem, p.ID, "l1", "driver-a")
	seedLoad(t, mem, p.ID, "l2", "driver-b")
	seedRecord(t, mem, "r1", p.ID, "driver-a", engine.PaymentPaid)
	seedRecord(t, mem, "r2", p.ID, "driver-b", engine.PaymentApproved)

	orch := newOrchestrator(mem)
	result, err := orch.MarkManyPaid(context.Background(), []engine.RecordID{"r2"}, "ach", "", "")
	require.NoError(t, err)

	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, []engine.PeriodID{p.ID}, result.PeriodsClosed)

	got, _ := mem.GetPeriod(context.Background(), p.ID)
	assert.Equal(t, engine.StatusClosed, got.Status)
	assert.NotNil(t, got.ClosedAt)
}

func TestMarkManyPaid_IncompletePeriodStaysOpen(t *testing.T) {
	// GIVEN: Two unpaid drivers, batch pays only one
	// WHEN: The batch finishes
	// THEN: The period stays open and is not in PeriodsClosed

	mem := store.NewMemory()
	p := seedPeriod(t, mem, "p1", engine.StatusProcessing)
	seedLoad(t, mem, p.ID, "l1", "driver-a")
	seedLoad(t, mem, p.ID, "l2", "driver-b")
	seedRecord(t, mem, "r1", p.ID, "driver-a", engine.PaymentCalculated)
	seedRecord(t, mem, "r2", p.ID, "driver-b", engine.PaymentCalculated)

	orch := newOrchestrator(mem)
	result, err := orch.MarkManyPaid(context.Background(), []engine.RecordID{"r1"}, "ach", "", "")
	require.NoError(t, err)

	assert.Empty(t, result.PeriodsClosed)
	got, _ := mem.GetPeriod(context.Background(), p.ID)
	assert.Equal(t, engine.StatusProcessing, got.Status)
}

func TestMarkManyPaid_ClosesEachTouchedPeriodOnce(t *testing.T) {
	// GIVEN: Records spread over two completable periods
	// WHEN: One batch pays all of them
	// THEN: Both periods auto-close

	mem := store.NewMemory()
	p1 := seedPeriod(t, mem, "p1", engine.StatusProcessing)
	p2 := seedPeriodWithStart(t, mem, "p2", engine.StatusProcessing, date(2024, time.June, 17))
	seedLoad(t, mem, p1.ID, "l1", "driver-a")
	seedLoad(t, mem, p2.ID, "l2", "driver-a")
	seedRecord(t, mem, "r1", p1.ID, "driver-a", engine.PaymentCalculated)
	seedRecord(t, mem, "r2", p2.ID, "driver-a", engine.PaymentCalculated)

	orch := newOrchestrator(mem)
	result, err := orch.MarkManyPaid(context.Background(), []engine.RecordID{"r1", "r2"}, "wire", "", "")
	require.NoError(t, err)

	assert.Equal(t, 2, result.SuccessCount)
	assert.Len(t, result.PeriodsClosed, 2)

	for _, id := range []engine.PeriodID{p1.ID, p2.ID} {
		got, _ := mem.GetPeriod(context.Background(), id)
		assert.Equal(t, engine.StatusClosed, got.Status)
	}
}
