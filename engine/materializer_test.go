package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/payroll-engine/engine"
	"github.com/fleetops/payroll-engine/engine/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T, companyID engine.CompanyID, cfg engine.CompanyConfig) *store.Memory {
	t.Helper()
	mem := store.NewMemory()
	require.NoError(t, mem.SaveCompanyConfig(context.Background(), companyID, cfg))
	return mem
}

var weeklyMonday = engine.CompanyConfig{
	Frequency:           engine.FrequencyWeekly,
	CycleStartDay:       1,
	AssignmentCriterion: engine.CriterionDeliveryDate,
}

// recordingCalculator remembers every (period, user) it was asked to
// recalculate and can be told to fail.
type recordingCalculator struct {
	mu    sync.Mutex
	calls []string
	fail  bool
}

func (c *recordingCalculator) Recalculate(_ context.Context, periodID engine.PeriodID, userID engine.UserID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, fmt.Sprintf("%s/%s", periodID, userID))
	if c.fail {
		return errors.New("calculator unavailable")
	}
	return nil
}

// =============================================================================
// ENSURE PERIOD - idempotence
// =============================================================================

func TestEnsurePeriod_CreatesCoveringPeriod(t *testing.T) {
	// GIVEN: A weekly Monday company with no periods
	// WHEN: Ensuring the period for Wednesday 2024-06-12
	// THEN: An open period [2024-06-10, 2024-06-16] is created

	mem := newTestStore(t, "acme", weeklyMonday)
	mat := engine.NewMaterializer(mem, nil, nil)

	p, err := mat.EnsurePeriod(context.Background(), "acme", date(2024, time.June, 12))
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, date(2024, time.June, 10), p.Start)
	assert.Equal(t, date(2024, time.June, 16), p.End)
	assert.Equal(t, engine.StatusOpen, p.Status)
	assert.False(t, p.Locked)
}

func TestEnsurePeriod_Idempotent(t *testing.T) {
	// GIVEN: A period already materialized for a date
	// WHEN: Ensuring again with any date inside the same week
	// THEN: The same period id comes back; no second period exists

	mem := newTestStore(t, "acme", weeklyMonday)
	mat := engine.NewMaterializer(mem, nil, nil)
	ctx := context.Background()

	first, err := mat.EnsurePeriod(ctx, "acme", date(2024, time.June, 12))
	require.NoError(t, err)

	for day := 10; day <= 16; day++ {
		again, err := mat.EnsurePeriod(ctx, "acme", date(2024, time.June, day))
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)
	}

	periods, err := mem.ListPeriods(ctx, "acme", engine.PeriodFilter{})
	require.NoError(t, err)
	assert.Len(t, periods, 1)
}

func TestEnsurePeriod_Concurrent_SingleWinner(t *testing.T) {
	// GIVEN: Many goroutines racing to materialize the same week
	// WHEN: They all call EnsurePeriod for dates in that week
	// THEN: Exactly one period exists and every caller got its id

	mem := newTestStore(t, "acme", weeklyMonday)
	mat := engine.NewMaterializer(mem, nil, nil)
	ctx := context.Background()

	const racers = 32
	ids := make([]engine.PeriodID, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := mat.EnsurePeriod(ctx, "acme", date(2024, time.June, 10+i%7))
			if assert.NoError(t, err) {
				ids[i] = p.ID
			}
		}(i)
	}
	wg.Wait()

	periods, err := mem.ListPeriods(ctx, "acme", engine.PeriodFilter{})
	require.NoError(t, err)
	require.Len(t, periods, 1)
	for _, id := range ids {
		assert.Equal(t, periods[0].ID, id)
	}
}

func TestEnsurePeriod_DistinctWeeks_DistinctPeriods(t *testing.T) {
	// GIVEN: Dates in two different weeks
	// WHEN: Ensuring each
	// THEN: Two contiguous periods exist

	mem := newTestStore(t, "acme", weeklyMonday)
	mat := engine.NewMaterializer(mem, nil, nil)
	ctx := context.Background()

	p1, err := mat.EnsurePeriod(ctx, "acme", date(2024, time.June, 12))
	require.NoError(t, err)
	p2, err := mat.EnsurePeriod(ctx, "acme", date(2024, time.June, 19))
	require.NoError(t, err)

	assert.NotEqual(t, p1.ID, p2.ID)
	assert.Equal(t, p1.End.AddDays(1), p2.Start)
}

func TestEnsurePeriod_MissingConfig(t *testing.T) {
	// GIVEN: No configuration for the company
	// WHEN: Ensuring a period
	// THEN: A not-found error names the company config

	mem := store.NewMemory()
	mat := engine.NewMaterializer(mem, nil, nil)

	_, err := mat.EnsurePeriod(context.Background(), "ghost", date(2024, time.June, 12))
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

// =============================================================================
// ENSURE PERIOD - aggregate seeding
// =============================================================================

func TestEnsurePeriod_SeedingFailureIsSwallowed(t *testing.T) {
	// GIVEN: A calculator that always fails
	// WHEN: Materializing a new period
	// THEN: The period is still created; the seeding failure is not surfaced

	mem := newTestStore(t, "acme", weeklyMonday)
	calc := &recordingCalculator{fail: true}
	mat := engine.NewMaterializer(mem, calc, nil)

	p, err := mat.EnsurePeriod(context.Background(), "acme", date(2024, time.June, 12))
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
}

// =============================================================================
// PREVIEW
// =============================================================================

func TestPreviewPeriods_PreviousCurrentNext(t *testing.T) {
	// GIVEN: A weekly Monday company
	// WHEN: Previewing around 2024-06-12
	// THEN: Three contiguous previews come back, nothing is persisted

	mem := newTestStore(t, "acme", weeklyMonday)
	mat := engine.NewMaterializer(mem, nil, nil)
	ctx := context.Background()

	previews, err := mat.PreviewPeriods(ctx, "acme", date(2024, time.June, 12))
	require.NoError(t, err)
	require.Len(t, previews, 3)

	assert.Equal(t, engine.PreviewPrevious, previews[0].Tag)
	assert.Equal(t, engine.PreviewCurrent, previews[1].Tag)
	assert.Equal(t, engine.PreviewNext, previews[2].Tag)

	assert.Equal(t, date(2024, time.June, 3), previews[0].Start)
	assert.Equal(t, date(2024, time.June, 10), previews[1].Start)
	assert.Equal(t, date(2024, time.June, 17), previews[2].Start)
	assert.Equal(t, previews[0].End.AddDays(1), previews[1].Start)
	assert.Equal(t, previews[1].End.AddDays(1), previews[2].Start)

	periods, err := mem.ListPeriods(ctx, "acme", engine.PeriodFilter{})
	require.NoError(t, err)
	assert.Empty(t, periods, "preview must not materialize periods")
}
