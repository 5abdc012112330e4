/*
scenarios.go - Demo scenario loaders

PURPOSE:
  Seeds the database with realistic demo data so the API can be explored
  without a frontend or a production import. Each scenario wipes the store,
  registers company configurations and pushes elements through the real
  Resolver/Calculator path, so periods materialize exactly as they would in
  production.

AVAILABLE SCENARIOS:
  weekly-carrier    Small carrier on a weekly Monday cadence, two drivers
                    mid-cycle with loads, fuel and deductions
  monthly-fleet     Fleet paying monthly on the 1st, one driver calculated
                    and ready for payout
  mixed-cadences    A weekly and a biweekly company side by side

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "weekly-carrier"}

NOTE:
  Scenarios reset the database. Only use in development/demo environments.
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/fleetops/payroll-engine/engine"
	"github.com/fleetops/payroll-engine/freight"
)

// scenarios lists the loadable demos in display order.
var scenarios = []ScenarioDTO{
	{
		ID:          "weekly-carrier",
		Name:        "Weekly Carrier",
		Description: "Small carrier, weekly Monday cadence, two drivers with loads, fuel and deductions in the current week",
	},
	{
		ID:          "monthly-fleet",
		Name:        "Monthly Fleet",
		Description: "Fleet paying monthly on the 1st; one driver calculated and ready for payout",
	},
	{
		ID:          "mixed-cadences",
		Name:        "Mixed Cadences",
		Description: "A weekly and a biweekly company side by side, showing independent period boundaries",
	},
}

// ListScenarios returns the available demo scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the last loaded scenario id.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"scenario_id": h.currentScenario})
}

// LoadScenario wipes the store and seeds the requested scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	if err := h.resetStore(ctx); err != nil {
		writeError(w, http.StatusBadGateway, "Failed to reset store", err)
		return
	}

	var err error
	switch req.ScenarioID {
	case "weekly-carrier":
		err = h.loadWeeklyCarrier(ctx)
	case "monthly-fleet":
		err = h.loadMonthlyFleet(ctx)
	case "mixed-cadences":
		err = h.loadMixedCadences(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario: "+req.ScenarioID, nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario_id": req.ScenarioID})
}

// ResetDatabase wipes all data.
// POST /api/scenarios/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.resetStore(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, "Failed to reset store", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) resetStore(ctx context.Context) error {
	rs, ok := h.Store.(resetter)
	if !ok {
		return fmt.Errorf("store does not support reset")
	}
	return rs.Reset(ctx)
}

// =============================================================================
// SCENARIO BUILDERS
// =============================================================================

func (h *Handler) loadWeeklyCarrier(ctx context.Context) error {
	company := engine.CompanyID("carrier-blue-ridge")
	if err := h.Store.SaveCompanyConfig(ctx, company, engine.CompanyConfig{
		Frequency:           engine.FrequencyWeekly,
		CycleStartDay:       1, // Monday
		AssignmentCriterion: engine.CriterionDeliveryDate,
	}); err != nil {
		return err
	}

	today := engine.Today()
	elements := []engine.Element{
		freight.NewLoad(company, "driver-alvarez", today.AddDays(-2), today.AddDays(-1), dec("1850.00")),
		freight.NewLoad(company, "driver-alvarez", today.AddDays(-1), today, dec("2200.00")),
		freight.NewFuelExpense(company, "driver-alvarez", today.AddDays(-1), dec("412.35")),
		freight.NewLoad(company, "driver-okafor", today.AddDays(-1), today, dec("1975.50")),
		freight.NewDeduction(company, "driver-okafor", today, dec("150.00"), "insurance"),
	}
	return h.seedElements(ctx, elements)
}

func (h *Handler) loadMonthlyFleet(ctx context.Context) error {
	company := engine.CompanyID("fleet-summit")
	if err := h.Store.SaveCompanyConfig(ctx, company, engine.CompanyConfig{
		Frequency:           engine.FrequencyMonthly,
		CycleStartDay:       1,
		AssignmentCriterion: engine.CriterionPickupDate,
	}); err != nil {
		return err
	}

	today := engine.Today()
	elements := []engine.Element{
		freight.NewLoad(company, "driver-chen", today.AddDays(-3), today.AddDays(-2), dec("3100.00")),
		freight.NewFuelExpense(company, "driver-chen", today.AddDays(-2), dec("520.80")),
		freight.NewOtherIncome(company, "driver-chen", today.AddDays(-1), dec("75.00"), "detention pay"),
	}
	return h.seedElements(ctx, elements)
}

func (h *Handler) loadMixedCadences(ctx context.Context) error {
	weekly := engine.CompanyID("carrier-weekly")
	biweekly := engine.CompanyID("carrier-biweekly")

	if err := h.Store.SaveCompanyConfig(ctx, weekly, engine.CompanyConfig{
		Frequency:           engine.FrequencyWeekly,
		CycleStartDay:       5, // Friday
		AssignmentCriterion: engine.CriterionDeliveryDate,
	}); err != nil {
		return err
	}
	if err := h.Store.SaveCompanyConfig(ctx, biweekly, engine.CompanyConfig{
		Frequency:           engine.FrequencyBiweekly,
		CycleStartDay:       1, // Monday
		AssignmentCriterion: engine.CriterionDeliveryDate,
	}); err != nil {
		return err
	}

	today := engine.Today()
	elements := []engine.Element{
		freight.NewLoad(weekly, "driver-silva", today.AddDays(-1), today, dec("1425.00")),
		freight.NewLoad(biweekly, "driver-patel", today.AddDays(-4), today.AddDays(-3), dec("2680.00")),
		freight.NewFuelExpense(biweekly, "driver-patel", today.AddDays(-3), dec("389.12")),
	}
	return h.seedElements(ctx, elements)
}

// seedElements pushes elements through the real creation path so periods
// materialize and aggregates calculate exactly as in production.
func (h *Handler) seedElements(ctx context.Context, elements []engine.Element) error {
	for _, el := range elements {
		created, err := h.Resolver.CreateElement(ctx, el)
		if err != nil {
			return fmt.Errorf("seed element for %s: %w", el.UserID, err)
		}
		if err := h.Calculator.Recalculate(ctx, created.PeriodID, created.UserID); err != nil {
			return fmt.Errorf("seed recalculation for %s: %w", el.UserID, err)
		}
	}
	return nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}
