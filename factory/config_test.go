package factory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/payroll-engine/engine"
	"github.com/fleetops/payroll-engine/factory"
)

// =============================================================================
// DEFAULTS
// =============================================================================

func TestParsePaymentConfig_EmptyDocument_Defaults(t *testing.T) {
	// GIVEN: An empty JSON config
	// WHEN: Parsing it
	// THEN: Defaults apply - weekly, Monday start, delivery-date assignment

	f := factory.NewConfigFactory()
	cfg, err := f.ParsePaymentConfig(`{}`)
	require.NoError(t, err)

	assert.Equal(t, engine.FrequencyWeekly, cfg.Frequency)
	assert.Equal(t, 1, cfg.CycleStartDay)
	assert.Equal(t, engine.CriterionDeliveryDate, cfg.AssignmentCriterion)
}

func TestParsePaymentConfig_PartialDocument(t *testing.T) {
	// GIVEN: Only the frequency is set
	// WHEN: Parsing
	// THEN: The rest keeps its default

	f := factory.NewConfigFactory()
	cfg, err := f.ParsePaymentConfig(`{"default_payment_frequency": "biweekly"}`)
	require.NoError(t, err)

	assert.Equal(t, engine.FrequencyBiweekly, cfg.Frequency)
	assert.Equal(t, 1, cfg.CycleStartDay)
	assert.Equal(t, engine.CriterionDeliveryDate, cfg.AssignmentCriterion)
}

// =============================================================================
// EXPLICIT VALUES
// =============================================================================

func TestParsePaymentConfig_FullDocument(t *testing.T) {
	f := factory.NewConfigFactory()
	cfg, err := f.ParsePaymentConfig(`{
		"default_payment_frequency": "monthly",
		"payment_cycle_start_day": 15,
		"assignment_criterion": "pickup_date"
	}`)
	require.NoError(t, err)

	assert.Equal(t, engine.FrequencyMonthly, cfg.Frequency)
	assert.Equal(t, 15, cfg.CycleStartDay)
	assert.Equal(t, engine.CriterionPickupDate, cfg.AssignmentCriterion)
}

func TestParsePaymentConfig_ExplicitZeroDay_Rejected(t *testing.T) {
	// GIVEN: payment_cycle_start_day explicitly 0
	// WHEN: Parsing
	// THEN: Rejected - absent means default, zero is out of range

	f := factory.NewConfigFactory()
	_, err := f.ParsePaymentConfig(`{"payment_cycle_start_day": 0}`)
	assert.ErrorIs(t, err, engine.ErrInvalidCadence)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestParsePaymentConfig_Invalid(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"unknown_frequency", `{"default_payment_frequency": "fortnightly"}`},
		{"unknown_criterion", `{"assignment_criterion": "drop_date"}`},
		{"weekly_day_out_of_range", `{"default_payment_frequency": "weekly", "payment_cycle_start_day": 8}`},
		{"monthly_day_out_of_range", `{"default_payment_frequency": "monthly", "payment_cycle_start_day": 32}`},
		{"malformed_json", `{"default_payment_frequency": `},
	}

	f := factory.NewConfigFactory()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.ParsePaymentConfig(tc.raw)
			assert.Error(t, err)
		})
	}
}

func TestParsePaymentConfig_WeekdayRangeDependsOnFrequency(t *testing.T) {
	// GIVEN: Day 20, invalid for weekly but fine for monthly
	f := factory.NewConfigFactory()

	_, err := f.ParsePaymentConfig(`{"default_payment_frequency": "weekly", "payment_cycle_start_day": 20}`)
	assert.ErrorIs(t, err, engine.ErrInvalidCadence)

	cfg, err := f.ParsePaymentConfig(`{"default_payment_frequency": "monthly", "payment_cycle_start_day": 20}`)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.CycleStartDay)
}

// =============================================================================
// ROUND TRIP
// =============================================================================

func TestToJSON_RoundTrip(t *testing.T) {
	f := factory.NewConfigFactory()
	original := engine.CompanyConfig{
		Frequency:           engine.FrequencyBiweekly,
		CycleStartDay:       3,
		AssignmentCriterion: engine.CriterionPickupDate,
	}

	wire := f.ToJSON(original)
	require.NotNil(t, wire.PaymentCycleStartDay)
	assert.Equal(t, "biweekly", wire.DefaultPaymentFrequency)
	assert.Equal(t, 3, *wire.PaymentCycleStartDay)
	assert.Equal(t, "pickup_date", wire.AssignmentCriterion)

	back, err := f.FromJSON(wire)
	require.NoError(t, err)
	assert.Equal(t, original, back)
}
