/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/config.go: PaymentConfigJSON type
*/
package api

import (
	"github.com/fleetops/payroll-engine/engine"
	"github.com/fleetops/payroll-engine/factory"
)

// =============================================================================
// COMPANY / CONFIG
// =============================================================================

// CreateCompanyRequest registers a company's payment configuration.
type CreateCompanyRequest struct {
	CompanyID string                    `json:"company_id"`
	Config    factory.PaymentConfigJSON `json:"config"`
}

// CompanyDTO echoes a registered configuration back to the client.
type CompanyDTO struct {
	CompanyID string                    `json:"company_id"`
	Config    factory.PaymentConfigJSON `json:"config"`
}

// =============================================================================
// PERIODS
// =============================================================================

// PeriodDTO represents a materialized payment period.
type PeriodDTO struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Frequency string `json:"frequency"`
	Status    string `json:"status"`
	Locked    bool   `json:"locked"`
	CreatedAt string `json:"created_at,omitempty"`
	ClosedAt  string `json:"closed_at,omitempty"`
}

// PreviewPeriodDTO is a computed lookahead period. It has no id because it
// is never persisted.
type PreviewPeriodDTO struct {
	CompanyID string `json:"company_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Frequency string `json:"frequency"`
	Tag       string `json:"tag"`
}

// EnsurePeriodRequest asks for the period covering a date to exist.
type EnsurePeriodRequest struct {
	Date string `json:"date"`
}

// =============================================================================
// FINANCIAL ELEMENTS
// =============================================================================

// CreateElementRequest creates a load, fuel expense, deduction or other
// income item. Loads use pickup/delivery dates; the rest use event_date.
type CreateElementRequest struct {
	Kind         string `json:"kind"`
	CompanyID    string `json:"company_id"`
	UserID       string `json:"user_id"`
	PickupDate   string `json:"pickup_date,omitempty"`
	DeliveryDate string `json:"delivery_date,omitempty"`
	EventDate    string `json:"event_date,omitempty"`
	Amount       string `json:"amount"`
	Description  string `json:"description,omitempty"`
}

// ElementDTO represents a financial element in responses.
type ElementDTO struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	CompanyID    string `json:"company_id"`
	UserID       string `json:"user_id"`
	PeriodID     string `json:"period_id"`
	PickupDate   string `json:"pickup_date,omitempty"`
	DeliveryDate string `json:"delivery_date,omitempty"`
	EventDate    string `json:"event_date,omitempty"`
	Amount       string `json:"amount"`
	Description  string `json:"description,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
}

// =============================================================================
// PAYROLL / PAYOUTS
// =============================================================================

// PayrollRecordDTO represents a driver's payroll record for a period.
type PayrollRecordDTO struct {
	ID                 string `json:"id"`
	PeriodID           string `json:"period_id"`
	UserID             string `json:"user_id"`
	PaymentStatus      string `json:"payment_status"`
	PaidAt             string `json:"paid_at,omitempty"`
	PaymentMethod      string `json:"payment_method,omitempty"`
	PaymentReference   string `json:"payment_reference,omitempty"`
	PaymentNotes       string `json:"payment_notes,omitempty"`
	GrossEarnings      string `json:"gross_earnings"`
	FuelExpenses       string `json:"fuel_expenses"`
	TotalDeductions    string `json:"total_deductions"`
	OtherIncome        string `json:"other_income"`
	NetPayment         string `json:"net_payment"`
	NeedsRecalculation bool   `json:"needs_recalculation"`
}

// MarkPaidRequest marks one or more payroll records as paid.
type MarkPaidRequest struct {
	CalculationIDs   []string `json:"calculation_ids"`
	PaymentMethod    string   `json:"payment_method,omitempty"`
	PaymentReference string   `json:"payment_reference,omitempty"`
	PaymentNotes     string   `json:"payment_notes,omitempty"`
}

// =============================================================================
// REASSIGNMENT
// =============================================================================

// ReassignRequest moves an element to a different period.
type ReassignRequest struct {
	Kind        string `json:"kind"`
	ElementID   string `json:"element_id"`
	NewPeriodID string `json:"new_period_id"`
}

// =============================================================================
// SCENARIOS / ERRORS
// =============================================================================

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a demo scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Reason  string `json:"reason,omitempty"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toPeriodDTO(p engine.Period) PeriodDTO {
	dto := PeriodDTO{
		ID:        string(p.ID),
		CompanyID: string(p.CompanyID),
		StartDate: p.Start.String(),
		EndDate:   p.End.String(),
		Frequency: string(p.Frequency),
		Status:    string(p.Status),
		Locked:    p.Locked,
	}
	if !p.CreatedAt.IsZero() {
		dto.CreatedAt = p.CreatedAt.Format(rfc3339)
	}
	if p.ClosedAt != nil {
		dto.ClosedAt = p.ClosedAt.Format(rfc3339)
	}
	return dto
}

func toPreviewDTO(p engine.PreviewPeriod) PreviewPeriodDTO {
	return PreviewPeriodDTO{
		CompanyID: string(p.CompanyID),
		StartDate: p.Start.String(),
		EndDate:   p.End.String(),
		Frequency: string(p.Frequency),
		Tag:       string(p.Tag),
	}
}

func toElementDTO(el engine.Element) ElementDTO {
	dto := ElementDTO{
		ID:          string(el.ID),
		Kind:        string(el.Kind),
		CompanyID:   string(el.CompanyID),
		UserID:      string(el.UserID),
		PeriodID:    string(el.PeriodID),
		Amount:      el.Amount.String(),
		Description: el.Description,
	}
	if el.PickupDate != nil {
		dto.PickupDate = el.PickupDate.String()
	}
	if el.DeliveryDate != nil {
		dto.DeliveryDate = el.DeliveryDate.String()
	}
	if el.EventDate != nil {
		dto.EventDate = el.EventDate.String()
	}
	if !el.CreatedAt.IsZero() {
		dto.CreatedAt = el.CreatedAt.Format(rfc3339)
	}
	return dto
}

func toRecordDTO(rec engine.PayrollRecord) PayrollRecordDTO {
	dto := PayrollRecordDTO{
		ID:                 string(rec.ID),
		PeriodID:           string(rec.PeriodID),
		UserID:             string(rec.UserID),
		PaymentStatus:      string(rec.PaymentStatus),
		PaymentMethod:      rec.PaymentMethod,
		PaymentReference:   rec.PaymentReference,
		PaymentNotes:       rec.PaymentNotes,
		GrossEarnings:      rec.GrossEarnings.String(),
		FuelExpenses:       rec.FuelExpenses.String(),
		TotalDeductions:    rec.TotalDeductions.String(),
		OtherIncome:        rec.OtherIncome.String(),
		NetPayment:         rec.NetPayment.String(),
		NeedsRecalculation: rec.NeedsRecalculation,
	}
	if rec.PaidAt != nil {
		dto.PaidAt = rec.PaidAt.Format(rfc3339)
	}
	return dto
}
