// Package store provides an in-memory engine.TxStore for tests and dev.
//
// Transactions are simulated with a full snapshot taken before the function
// runs and restored if it returns an error, mirroring the rollback semantics
// of the sqlite store closely enough for engine-level tests.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fleetops/payroll-engine/engine"
)

type elementKey struct {
	Kind engine.ElementKind
	ID   engine.ElementID
}

// Memory implements engine.TxStore with plain maps guarded by one mutex.
type Memory struct {
	mu       sync.Mutex
	configs  map[engine.CompanyID]engine.CompanyConfig
	periods  map[engine.PeriodID]engine.Period
	elements map[elementKey]engine.Element
	records  map[engine.RecordID]engine.PayrollRecord
}

func NewMemory() *Memory {
	return &Memory{
		configs:  make(map[engine.CompanyID]engine.CompanyConfig),
		periods:  make(map[engine.PeriodID]engine.Period),
		elements: make(map[elementKey]engine.Element),
		records:  make(map[engine.RecordID]engine.PayrollRecord),
	}
}

// =============================================================================
// TRANSACTIONS - snapshot + restore
// =============================================================================

func (m *Memory) WithTx(_ context.Context, fn func(engine.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{m: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	configs  map[engine.CompanyID]engine.CompanyConfig
	periods  map[engine.PeriodID]engine.Period
	elements map[elementKey]engine.Element
	records  map[engine.RecordID]engine.PayrollRecord
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		configs:  make(map[engine.CompanyID]engine.CompanyConfig, len(m.configs)),
		periods:  make(map[engine.PeriodID]engine.Period, len(m.periods)),
		elements: make(map[elementKey]engine.Element, len(m.elements)),
		records:  make(map[engine.RecordID]engine.PayrollRecord, len(m.records)),
	}
	for k, v := range m.configs {
		s.configs[k] = v
	}
	for k, v := range m.periods {
		s.periods[k] = v
	}
	for k, v := range m.elements {
		s.elements[k] = v
	}
	for k, v := range m.records {
		s.records[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.configs = s.configs
	m.periods = s.periods
	m.elements = s.elements
	m.records = s.records
}

// txView exposes the unlocked internals to the function running inside
// WithTx, which already holds the mutex.
type txView struct {
	m *Memory
}

// Reset drops all data. For tests and demo scenario reloads.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs = make(map[engine.CompanyID]engine.CompanyConfig)
	m.periods = make(map[engine.PeriodID]engine.Period)
	m.elements = make(map[elementKey]engine.Element)
	m.records = make(map[engine.RecordID]engine.PayrollRecord)
	return nil
}

// =============================================================================
// COMPANY CONFIG
// =============================================================================

func (m *Memory) SaveCompanyConfig(_ context.Context, companyID engine.CompanyID, cfg engine.CompanyConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveConfigLocked(companyID, cfg)
}

func (m *Memory) saveConfigLocked(companyID engine.CompanyID, cfg engine.CompanyConfig) error {
	m.configs[companyID] = cfg
	return nil
}

func (m *Memory) GetCompanyConfig(_ context.Context, companyID engine.CompanyID) (*engine.CompanyConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getConfigLocked(companyID)
}

func (m *Memory) getConfigLocked(companyID engine.CompanyID) (*engine.CompanyConfig, error) {
	cfg, ok := m.configs[companyID]
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

// =============================================================================
// PERIODS
// =============================================================================

func (m *Memory) FindPeriodContaining(_ context.Context, companyID engine.CompanyID, d engine.Date) (*engine.Period, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findContainingLocked(companyID, d)
}

func (m *Memory) findContainingLocked(companyID engine.CompanyID, d engine.Date) (*engine.Period, error) {
	for _, p := range m.periods {
		if p.CompanyID == companyID && p.Contains(d) {
			p := p
			return &p, nil
		}
	}
	return nil, nil
}

func (m *Memory) InsertPeriod(_ context.Context, p engine.Period) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertPeriodLocked(p)
}

func (m *Memory) insertPeriodLocked(p engine.Period) error {
	for _, existing := range m.periods {
		if existing.CompanyID != p.CompanyID {
			continue
		}
		// Same start or any interval overlap collides.
		if existing.Start.Equal(p.Start) ||
			(existing.Start.BeforeOrEqual(p.End) && existing.End.AfterOrEqual(p.Start)) {
			return engine.ErrDuplicatePeriod
		}
	}
	m.periods[p.ID] = p
	return nil
}

func (m *Memory) GetPeriod(_ context.Context, id engine.PeriodID) (*engine.Period, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getPeriodLocked(id)
}

func (m *Memory) getPeriodLocked(id engine.PeriodID) (*engine.Period, error) {
	p, ok := m.periods[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Memory) ListPeriods(_ context.Context, companyID engine.CompanyID, f engine.PeriodFilter) ([]engine.Period, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listPeriodsLocked(companyID, f)
}

func (m *Memory) listPeriodsLocked(companyID engine.CompanyID, f engine.PeriodFilter) ([]engine.Period, error) {
	var out []engine.Period
	for _, p := range m.periods {
		if p.CompanyID != companyID {
			continue
		}
		if f.Status != nil && p.Status != *f.Status {
			continue
		}
		if f.From != nil && p.End.Before(*f.From) {
			continue
		}
		if f.To != nil && p.Start.After(*f.To) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.After(out[j].Start) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Memory) UpdatePeriodStatus(_ context.Context, id engine.PeriodID, status engine.PeriodStatus, closedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateStatusLocked(id, status, closedAt)
}

func (m *Memory) updateStatusLocked(id engine.PeriodID, status engine.PeriodStatus, closedAt *time.Time) error {
	p, ok := m.periods[id]
	if !ok {
		return engine.ErrNotFound
	}
	p.Status = status
	if closedAt != nil {
		t := *closedAt
		p.ClosedAt = &t
	}
	m.periods[id] = p
	return nil
}

func (m *Memory) SetPeriodLocked(_ context.Context, id engine.PeriodID, locked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setLockedLocked(id, locked)
}

func (m *Memory) setLockedLocked(id engine.PeriodID, locked bool) error {
	p, ok := m.periods[id]
	if !ok {
		return engine.ErrNotFound
	}
	p.Locked = locked
	m.periods[id] = p
	return nil
}

// =============================================================================
// ELEMENTS
// =============================================================================

func (m *Memory) InsertElement(_ context.Context, el engine.Element) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertElementLocked(el)
}

func (m *Memory) insertElementLocked(el engine.Element) error {
	m.elements[elementKey{Kind: el.Kind, ID: el.ID}] = el
	return nil
}

func (m *Memory) GetElement(_ context.Context, kind engine.ElementKind, id engine.ElementID) (*engine.Element, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getElementLocked(kind, id)
}

func (m *Memory) getElementLocked(kind engine.ElementKind, id engine.ElementID) (*engine.Element, error) {
	el, ok := m.elements[elementKey{Kind: kind, ID: id}]
	if !ok {
		return nil, nil
	}
	return &el, nil
}

func (m *Memory) UpdateElementPeriod(_ context.Context, kind engine.ElementKind, id engine.ElementID, periodID engine.PeriodID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateElementPeriodLocked(kind, id, periodID)
}

func (m *Memory) updateElementPeriodLocked(kind engine.ElementKind, id engine.ElementID, periodID engine.PeriodID) error {
	k := elementKey{Kind: kind, ID: id}
	el, ok := m.elements[k]
	if !ok {
		return engine.ErrNotFound
	}
	el.PeriodID = periodID
	m.elements[k] = el
	return nil
}

func (m *Memory) ListElementsByPeriod(_ context.Context, periodID engine.PeriodID) ([]engine.Element, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listElementsLocked(periodID)
}

func (m *Memory) listElementsLocked(periodID engine.PeriodID) ([]engine.Element, error) {
	var out []engine.Element
	for _, el := range m.elements {
		if el.PeriodID == periodID {
			out = append(out, el)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UsersWithElements(_ context.Context, periodID engine.PeriodID) ([]engine.UserID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usersWithElementsLocked(periodID)
}

func (m *Memory) usersWithElementsLocked(periodID engine.PeriodID) ([]engine.UserID, error) {
	seen := make(map[engine.UserID]bool)
	var out []engine.UserID
	for _, el := range m.elements {
		if el.PeriodID == periodID && !seen[el.UserID] {
			seen[el.UserID] = true
			out = append(out, el.UserID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// =============================================================================
// PAYROLL RECORDS
// =============================================================================

func (m *Memory) UpsertPayrollRecord(_ context.Context, rec engine.PayrollRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertRecordLocked(rec)
}

func (m *Memory) upsertRecordLocked(rec engine.PayrollRecord) error {
	m.records[rec.ID] = rec
	return nil
}

func (m *Memory) GetPayrollRecord(_ context.Context, id engine.RecordID) (*engine.PayrollRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getRecordLocked(id)
}

func (m *Memory) getRecordLocked(id engine.RecordID) (*engine.PayrollRecord, error) {
	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *Memory) FindPayrollRecord(_ context.Context, periodID engine.PeriodID, userID engine.UserID) (*engine.PayrollRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findRecordLocked(periodID, userID)
}

func (m *Memory) findRecordLocked(periodID engine.PeriodID, userID engine.UserID) (*engine.PayrollRecord, error) {
	for _, rec := range m.records {
		if rec.PeriodID == periodID && rec.UserID == userID {
			rec := rec
			return &rec, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListPayrollRecords(_ context.Context, periodID engine.PeriodID) ([]engine.PayrollRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listRecordsLocked(periodID)
}

func (m *Memory) listRecordsLocked(periodID engine.PeriodID) ([]engine.PayrollRecord, error) {
	var out []engine.PayrollRecord
	for _, rec := range m.records {
		if rec.PeriodID == periodID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *Memory) MarkRecordPaid(_ context.Context, id engine.RecordID, method, reference, notes string, paidAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markPaidLocked(id, method, reference, notes, paidAt)
}

func (m *Memory) markPaidLocked(id engine.RecordID, method, reference, notes string, paidAt time.Time) error {
	rec, ok := m.records[id]
	if !ok {
		return engine.ErrNotFound
	}
	rec.PaymentStatus = engine.PaymentPaid
	rec.PaidAt = &paidAt
	rec.PaymentMethod = method
	rec.PaymentReference = reference
	rec.PaymentNotes = notes
	rec.UpdatedAt = paidAt
	m.records[id] = rec
	return nil
}

func (m *Memory) FlagRecalculation(_ context.Context, periodID engine.PeriodID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flagRecalcLocked(periodID)
}

func (m *Memory) flagRecalcLocked(periodID engine.PeriodID) error {
	now := time.Now().UTC()
	for id, rec := range m.records {
		if rec.PeriodID == periodID {
			rec.NeedsRecalculation = true
			rec.UpdatedAt = now
			m.records[id] = rec
		}
	}
	return nil
}

func (m *Memory) ListFlaggedPeriods(_ context.Context) ([]engine.PeriodID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listFlaggedLocked()
}

func (m *Memory) listFlaggedLocked() ([]engine.PeriodID, error) {
	seen := map[engine.PeriodID]bool{}
	var out []engine.PeriodID
	for _, rec := range m.records {
		if rec.NeedsRecalculation && !seen[rec.PeriodID] {
			seen[rec.PeriodID] = true
			out = append(out, rec.PeriodID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// =============================================================================
// TX VIEW - unlocked delegation
// =============================================================================

func (v *txView) SaveCompanyConfig(_ context.Context, companyID engine.CompanyID, cfg engine.CompanyConfig) error {
	return v.m.saveConfigLocked(companyID, cfg)
}

func (v *txView) GetCompanyConfig(_ context.Context, companyID engine.CompanyID) (*engine.CompanyConfig, error) {
	return v.m.getConfigLocked(companyID)
}

func (v *txView) FindPeriodContaining(_ context.Context, companyID engine.CompanyID, d engine.Date) (*engine.Period, error) {
	return v.m.findContainingLocked(companyID, d)
}

func (v *txView) InsertPeriod(_ context.Context, p engine.Period) error {
	return v.m.insertPeriodLocked(p)
}

func (v *txView) GetPeriod(_ context.Context, id engine.PeriodID) (*engine.Period, error) {
	return v.m.getPeriodLocked(id)
}

func (v *txView) ListPeriods(_ context.Context, companyID engine.CompanyID, f engine.PeriodFilter) ([]engine.Period, error) {
	return v.m.listPeriodsLocked(companyID, f)
}

func (v *txView) UpdatePeriodStatus(_ context.Context, id engine.PeriodID, status engine.PeriodStatus, closedAt *time.Time) error {
	return v.m.updateStatusLocked(id, status, closedAt)
}

func (v *txView) SetPeriodLocked(_ context.Context, id engine.PeriodID, locked bool) error {
	return v.m.setLockedLocked(id, locked)
}

func (v *txView) InsertElement(_ context.Context, el engine.Element) error {
	return v.m.insertElementLocked(el)
}

func (v *txView) GetElement(_ context.Context, kind engine.ElementKind, id engine.ElementID) (*engine.Element, error) {
	return v.m.getElementLocked(kind, id)
}

func (v *txView) UpdateElementPeriod(_ context.Context, kind engine.ElementKind, id engine.ElementID, periodID engine.PeriodID) error {
	return v.m.updateElementPeriodLocked(kind, id, periodID)
}

func (v *txView) ListElementsByPeriod(_ context.Context, periodID engine.PeriodID) ([]engine.Element, error) {
	return v.m.listElementsLocked(periodID)
}

func (v *txView) UsersWithElements(_ context.Context, periodID engine.PeriodID) ([]engine.UserID, error) {
	return v.m.usersWithElementsLocked(periodID)
}

func (v *txView) UpsertPayrollRecord(_ context.Context, rec engine.PayrollRecord) error {
	return v.m.upsertRecordLocked(rec)
}

func (v *txView) GetPayrollRecord(_ context.Context, id engine.RecordID) (*engine.PayrollRecord, error) {
	return v.m.getRecordLocked(id)
}

func (v *txView) FindPayrollRecord(_ context.Context, periodID engine.PeriodID, userID engine.UserID) (*engine.PayrollRecord, error) {
	return v.m.findRecordLocked(periodID, userID)
}

func (v *txView) ListPayrollRecords(_ context.Context, periodID engine.PeriodID) ([]engine.PayrollRecord, error) {
	return v.m.listRecordsLocked(periodID)
}

func (v *txView) MarkRecordPaid(_ context.Context, id engine.RecordID, method, reference, notes string, paidAt time.Time) error {
	return v.m.markPaidLocked(id, method, reference, notes, paidAt)
}

func (v *txView) FlagRecalculation(_ context.Context, periodID engine.PeriodID) error {
	return v.m.flagRecalcLocked(periodID)
}

func (v *txView) ListFlaggedPeriods(_ context.Context) ([]engine.PeriodID, error) {
	return v.m.listFlaggedLocked()
}
