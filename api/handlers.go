/*
handlers.go - HTTP API handlers for the payroll period engine

PURPOSE:
  Exposes the period engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the engine services.

ENDPOINTS:
  Companies:
    POST   /api/companies                        Register payment configuration
    GET    /api/companies/{id}                   Get configuration
    GET    /api/companies/{id}/periods           List materialized periods
    GET    /api/companies/{id}/periods/preview   Previous/current/next preview
    POST   /api/companies/{id}/periods/ensure    Materialize period for a date

  Elements:
    POST   /api/elements                         Create load/expense/deduction/income

  Periods:
    GET    /api/periods/{id}                     Get period
    GET    /api/periods/{id}/can-close           Evaluate close preconditions
    POST   /api/periods/{id}/close               Close period
    POST   /api/periods/{id}/lock                Lock closed period
    GET    /api/periods/{id}/payroll             Payroll records
    GET    /api/periods/{id}/elements            Elements in period

  Payouts:
    POST   /api/payouts/mark-paid                Batch mark paid + auto-close

  Reassignments:
    POST   /api/reassignments                    Move element between periods

  Scenarios:
    GET    /api/scenarios                        List demo scenarios
    POST   /api/scenarios/load                   Load a demo scenario

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (duplicate period)
  - 423: Period locked
  - 502: Storage/dependency failure
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/fleetops/payroll-engine/engine"
	"github.com/fleetops/payroll-engine/factory"
	"github.com/fleetops/payroll-engine/freight"
)

const rfc3339 = time.RFC3339

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// resetter is implemented by stores that support wiping all data (sqlite,
// in-memory). Used by the scenario loader.
type resetter interface {
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store         engine.TxStore
	ConfigFactory *factory.ConfigFactory

	Materializer *engine.Materializer
	Resolver     *engine.Resolver
	Lifecycle    *engine.Controller
	Orchestrator *engine.Orchestrator
	Reassigner   *engine.Reassigner
	Calculator   *freight.Calculator

	log *slog.Logger

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler wires the engine services over the given store.
func NewHandler(store engine.TxStore, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}

	lifecycle := engine.NewController(store)
	calc := freight.NewCalculator(store, lifecycle, log)
	mat := engine.NewMaterializer(store, calc, log)

	return &Handler{
		Store:         store,
		ConfigFactory: factory.NewConfigFactory(),
		Materializer:  mat,
		Resolver:      engine.NewResolver(store, mat),
		Lifecycle:     lifecycle,
		Orchestrator:  engine.NewOrchestrator(store, lifecycle, log),
		Reassigner:    engine.NewReassigner(store),
		Calculator:    calc,
		log:           log,
	}
}

// =============================================================================
// COMPANY HANDLERS
// =============================================================================

// CreateCompany registers a company's payment configuration.
// POST /api/companies
func (h *Handler) CreateCompany(w http.ResponseWriter, r *http.Request) {
	var req CreateCompanyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.CompanyID == "" {
		writeError(w, http.StatusBadRequest, "company_id is required", nil)
		return
	}

	cfg, err := h.ConfigFactory.FromJSON(req.Config)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payment configuration", err)
		return
	}

	if err := h.Store.SaveCompanyConfig(r.Context(), engine.CompanyID(req.CompanyID), cfg); err != nil {
		writeError(w, http.StatusBadGateway, "Failed to save configuration", err)
		return
	}

	writeJSON(w, http.StatusCreated, CompanyDTO{
		CompanyID: req.CompanyID,
		Config:    h.ConfigFactory.ToJSON(cfg),
	})
}

// GetCompany returns a company's payment configuration.
// GET /api/companies/{id}
func (h *Handler) GetCompany(w http.ResponseWriter, r *http.Request) {
	companyID := engine.CompanyID(chi.URLParam(r, "id"))

	cfg, err := h.Store.GetCompanyConfig(r.Context(), companyID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "Failed to load configuration", err)
		return
	}
	if cfg == nil {
		writeError(w, http.StatusNotFound, "Company not found", nil)
		return
	}

	writeJSON(w, http.StatusOK, CompanyDTO{
		CompanyID: string(companyID),
		Config:    h.ConfigFactory.ToJSON(*cfg),
	})
}

// ListPeriods returns a company's materialized periods, newest first.
// GET /api/companies/{id}/periods?status=open&from=2024-01-01&to=2024-12-31&limit=20
func (h *Handler) ListPeriods(w http.ResponseWriter, r *http.Request) {
	companyID := engine.CompanyID(chi.URLParam(r, "id"))

	var f engine.PeriodFilter
	if s := r.URL.Query().Get("status"); s != "" {
		status := engine.PeriodStatus(s)
		f.Status = &status
	}
	if s := r.URL.Query().Get("from"); s != "" {
		d, err := engine.ParseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
			return
		}
		f.From = &d
	}
	if s := r.URL.Query().Get("to"); s != "" {
		d, err := engine.ParseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
			return
		}
		f.To = &d
	}

	periods, err := h.Store.ListPeriods(r.Context(), companyID, f)
	if err != nil {
		writeError(w, http.StatusBadGateway, "Failed to list periods", err)
		return
	}

	dtos := make([]PeriodDTO, len(periods))
	for i, p := range periods {
		dtos[i] = toPeriodDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// PreviewPeriods returns the previous, current and next computed periods
// around a reference date, without persisting anything.
// GET /api/companies/{id}/periods/preview?date=2024-06-12
func (h *Handler) PreviewPeriods(w http.ResponseWriter, r *http.Request) {
	companyID := engine.CompanyID(chi.URLParam(r, "id"))

	ref := engine.Today()
	if s := r.URL.Query().Get("date"); s != "" {
		d, err := engine.ParseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
			return
		}
		ref = d
	}

	previews, err := h.Materializer.PreviewPeriods(r.Context(), companyID, ref)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	dtos := make([]PreviewPeriodDTO, len(previews))
	for i, p := range previews {
		dtos[i] = toPreviewDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// EnsurePeriod materializes the period covering a date. Idempotent: repeated
// calls return the same period.
// POST /api/companies/{id}/periods/ensure
func (h *Handler) EnsurePeriod(w http.ResponseWriter, r *http.Request) {
	companyID := engine.CompanyID(chi.URLParam(r, "id"))

	var req EnsurePeriodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ref := engine.Today()
	if req.Date != "" {
		d, err := engine.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
			return
		}
		ref = d
	}

	period, err := h.Materializer.EnsurePeriod(r.Context(), companyID, ref)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(*period))
}

// =============================================================================
// ELEMENT HANDLERS
// =============================================================================

// CreateElement creates a financial element and assigns it to its period.
// POST /api/elements
func (h *Handler) CreateElement(w http.ResponseWriter, r *http.Request) {
	var req CreateElementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	el, err := h.elementFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid element", err)
		return
	}

	created, err := h.Resolver.CreateElement(r.Context(), el)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	// The new element changes the driver's aggregates.
	if err := h.Calculator.Recalculate(r.Context(), created.PeriodID, created.UserID); err != nil {
		h.log.Warn("recalculation after element create failed",
			"period_id", created.PeriodID, "user_id", created.UserID, "error", err)
	}

	writeJSON(w, http.StatusCreated, toElementDTO(created))
}

func (h *Handler) elementFromRequest(req CreateElementRequest) (engine.Element, error) {
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return engine.Element{}, errors.New("amount must be a decimal string")
	}

	companyID := engine.CompanyID(req.CompanyID)
	userID := engine.UserID(req.UserID)

	switch engine.ElementKind(req.Kind) {
	case engine.KindLoad:
		pickup, err := engine.ParseDate(req.PickupDate)
		if err != nil {
			return engine.Element{}, errors.New("pickup_date must be YYYY-MM-DD")
		}
		delivery, err := engine.ParseDate(req.DeliveryDate)
		if err != nil {
			return engine.Element{}, errors.New("delivery_date must be YYYY-MM-DD")
		}
		return freight.NewLoad(companyID, userID, pickup, delivery, amount), nil

	case engine.KindFuelExpense, engine.KindDeduction, engine.KindOtherIncome:
		date, err := engine.ParseDate(req.EventDate)
		if err != nil {
			return engine.Element{}, errors.New("event_date must be YYYY-MM-DD")
		}
		switch engine.ElementKind(req.Kind) {
		case engine.KindFuelExpense:
			return freight.NewFuelExpense(companyID, userID, date, amount), nil
		case engine.KindDeduction:
			return freight.NewDeduction(companyID, userID, date, amount, req.Description), nil
		default:
			return freight.NewOtherIncome(companyID, userID, date, amount, req.Description), nil
		}

	default:
		return engine.Element{}, errors.New("kind must be load, fuel_expense, deduction or other_income")
	}
}

// =============================================================================
// PERIOD LIFECYCLE HANDLERS
// =============================================================================

// GetPeriod returns a single period.
// GET /api/periods/{id}
func (h *Handler) GetPeriod(w http.ResponseWriter, r *http.Request) {
	id := engine.PeriodID(chi.URLParam(r, "id"))

	period, err := h.Store.GetPeriod(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusBadGateway, "Failed to load period", err)
		return
	}
	if period == nil {
		writeError(w, http.StatusNotFound, "Period not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(*period))
}

// CanClose evaluates the close preconditions without closing.
// GET /api/periods/{id}/can-close
func (h *Handler) CanClose(w http.ResponseWriter, r *http.Request) {
	id := engine.PeriodID(chi.URLParam(r, "id"))

	report, err := h.Lifecycle.CanClose(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ClosePeriod closes the period if every precondition holds.
// POST /api/periods/{id}/close
func (h *Handler) ClosePeriod(w http.ResponseWriter, r *http.Request) {
	id := engine.PeriodID(chi.URLParam(r, "id"))

	report, err := h.Lifecycle.Close(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// LockPeriod sets the locked bit on a closed period.
// POST /api/periods/{id}/lock
func (h *Handler) LockPeriod(w http.ResponseWriter, r *http.Request) {
	id := engine.PeriodID(chi.URLParam(r, "id"))

	if err := h.Lifecycle.Lock(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return
	}

	period, err := h.Store.GetPeriod(r.Context(), id)
	if err != nil || period == nil {
		writeError(w, http.StatusBadGateway, "Failed to reload period", err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(*period))
}

// ListPayroll returns the payroll records of a period.
// GET /api/periods/{id}/payroll
func (h *Handler) ListPayroll(w http.ResponseWriter, r *http.Request) {
	id := engine.PeriodID(chi.URLParam(r, "id"))

	records, err := h.Store.ListPayrollRecords(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusBadGateway, "Failed to list payroll records", err)
		return
	}

	dtos := make([]PayrollRecordDTO, len(records))
	for i, rec := range records {
		dtos[i] = toRecordDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListElements returns the financial elements assigned to a period.
// GET /api/periods/{id}/elements
func (h *Handler) ListElements(w http.ResponseWriter, r *http.Request) {
	id := engine.PeriodID(chi.URLParam(r, "id"))

	elements, err := h.Store.ListElementsByPeriod(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusBadGateway, "Failed to list elements", err)
		return
	}

	dtos := make([]ElementDTO, len(elements))
	for i, el := range elements {
		dtos[i] = toElementDTO(el)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PAYOUT HANDLERS
// =============================================================================

// MarkPaid marks a batch of payroll records as paid. Per-item failures land
// in the response body; the batch itself always returns 200.
// POST /api/payouts/mark-paid
func (h *Handler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	var req MarkPaidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.CalculationIDs) == 0 {
		writeError(w, http.StatusBadRequest, "calculation_ids is required", nil)
		return
	}

	ids := make([]engine.RecordID, len(req.CalculationIDs))
	for i, id := range req.CalculationIDs {
		ids[i] = engine.RecordID(id)
	}

	result, err := h.Orchestrator.MarkManyPaid(r.Context(), ids,
		req.PaymentMethod, req.PaymentReference, req.PaymentNotes)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// REASSIGNMENT HANDLERS
// =============================================================================

// Reassign moves an element to a different period.
// POST /api/reassignments
func (h *Handler) Reassign(w http.ResponseWriter, r *http.Request) {
	var req ReassignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	err := h.Reassigner.Reassign(r.Context(),
		engine.ElementKind(req.Kind), engine.ElementID(req.ElementID),
		engine.PeriodID(req.NewPeriodID))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	el, err := h.Store.GetElement(r.Context(), engine.ElementKind(req.Kind), engine.ElementID(req.ElementID))
	if err != nil || el == nil {
		writeError(w, http.StatusBadGateway, "Failed to reload element", err)
		return
	}
	writeJSON(w, http.StatusOK, toElementDTO(*el))
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps engine error types onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	var verr *engine.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: verr.Message, Reason: verr.Reason})
		return
	}

	switch {
	case errors.Is(err, engine.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, engine.ErrDuplicatePeriod):
		writeError(w, http.StatusConflict, "Period already exists", err)
	case errors.Is(err, engine.ErrPeriodLocked):
		writeError(w, http.StatusLocked, "Period is locked", err)
	case errors.Is(err, engine.ErrInvalidCadence):
		writeError(w, http.StatusBadRequest, "Invalid cadence configuration", err)
	case errors.Is(err, engine.ErrDependencyFailed):
		writeError(w, http.StatusBadGateway, "Dependency failure", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
