/*
Package factory provides JSON to Go payment configuration conversion.

PURPOSE:
  Converts JSON payment configuration documents into engine.CompanyConfig.
  This enables cadence configuration without code changes - operations staff
  can define a company's payment setup in JSON, and the factory produces the
  proper Go struct with defaults and validation applied.

JSON SCHEMA:
  {
    "default_payment_frequency": "weekly",
    "payment_cycle_start_day": 1,
    "assignment_criterion": "delivery_date"
  }

DEFAULTS:
  - frequency: weekly
  - cycle start day: 1 (Monday for weekly/biweekly, the 1st for monthly)
  - assignment criterion: delivery_date

VALIDATION:
  - weekly/biweekly require cycle_start_day in 1..7 (ISO weekday)
  - monthly requires cycle_start_day in 1..31
  - unknown frequency or criterion values are rejected, never coerced

SEE ALSO:
  - engine/types.go: CompanyConfig definition
  - engine/period.go: how CycleStartDay drives boundary math
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/fleetops/payroll-engine/engine"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PaymentConfigJSON is the wire representation of a company's payment setup.
// Pointer fields distinguish "absent, use default" from an explicit value.
type PaymentConfigJSON struct {
	DefaultPaymentFrequency string `json:"default_payment_frequency,omitempty"`
	PaymentCycleStartDay    *int   `json:"payment_cycle_start_day,omitempty"`
	AssignmentCriterion     string `json:"assignment_criterion,omitempty"`
}

// =============================================================================
// CONFIG FACTORY
// =============================================================================

// ConfigFactory converts JSON payment configurations to engine structs.
type ConfigFactory struct{}

func NewConfigFactory() *ConfigFactory {
	return &ConfigFactory{}
}

// ParsePaymentConfig parses a JSON document into a validated CompanyConfig.
func (f *ConfigFactory) ParsePaymentConfig(jsonStr string) (engine.CompanyConfig, error) {
	var cj PaymentConfigJSON
	if err := json.Unmarshal([]byte(jsonStr), &cj); err != nil {
		return engine.CompanyConfig{}, fmt.Errorf("failed to parse payment config JSON: %w", err)
	}
	return f.FromJSON(cj)
}

// FromJSON applies defaults and validates the parsed document.
func (f *ConfigFactory) FromJSON(cj PaymentConfigJSON) (engine.CompanyConfig, error) {
	cfg := engine.CompanyConfig{
		Frequency:           engine.FrequencyWeekly,
		CycleStartDay:       1,
		AssignmentCriterion: engine.CriterionDeliveryDate,
	}

	if cj.DefaultPaymentFrequency != "" {
		freq, err := parseFrequency(cj.DefaultPaymentFrequency)
		if err != nil {
			return engine.CompanyConfig{}, err
		}
		cfg.Frequency = freq
	}
	if cj.PaymentCycleStartDay != nil {
		cfg.CycleStartDay = *cj.PaymentCycleStartDay
	}
	if cj.AssignmentCriterion != "" {
		criterion, err := parseCriterion(cj.AssignmentCriterion)
		if err != nil {
			return engine.CompanyConfig{}, err
		}
		cfg.AssignmentCriterion = criterion
	}

	if err := cfg.Cadence().Validate(); err != nil {
		return engine.CompanyConfig{}, err
	}
	return cfg, nil
}

// ToJSON converts a CompanyConfig back to its wire form.
func (f *ConfigFactory) ToJSON(cfg engine.CompanyConfig) PaymentConfigJSON {
	day := cfg.CycleStartDay
	return PaymentConfigJSON{
		DefaultPaymentFrequency: string(cfg.Frequency),
		PaymentCycleStartDay:    &day,
		AssignmentCriterion:     string(cfg.AssignmentCriterion),
	}
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseFrequency(s string) (engine.Frequency, error) {
	switch s {
	case "weekly":
		return engine.FrequencyWeekly, nil
	case "biweekly":
		return engine.FrequencyBiweekly, nil
	case "monthly":
		return engine.FrequencyMonthly, nil
	default:
		return "", fmt.Errorf("unknown payment frequency: %q", s)
	}
}

func parseCriterion(s string) (engine.AssignmentCriterion, error) {
	switch s {
	case "pickup_date":
		return engine.CriterionPickupDate, nil
	case "delivery_date":
		return engine.CriterionDeliveryDate, nil
	default:
		return "", fmt.Errorf("unknown assignment criterion: %q", s)
	}
}
