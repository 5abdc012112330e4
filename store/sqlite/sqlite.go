/*
Package sqlite provides the SQLite-backed implementation of engine.TxStore.

PURPOSE:
  Persists company configurations, payment periods, financial elements and
  payroll records. In production the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

KEY TABLES:
  company_configs:    One cadence row per company
  payment_periods:    Materialized periods; UNIQUE(company_id, start_date)
  financial_elements: Loads, fuel expenses, deductions, other income
  payroll_records:    Per (period, driver) payment state and aggregates

MATERIALIZATION RACE:
  InsertPeriod is the serialization point for concurrent materialization. It
  runs a guarded INSERT (INSERT .. SELECT WHERE NOT EXISTS an overlapping
  period) so two racers computing the same - or even a misaligned - interval
  cannot both land. A zero-row insert or a unique-index violation is reported
  as engine.ErrDuplicatePeriod and the caller re-queries the winner.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - engine/store.go: Interface definition and concurrency contract
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/fleetops/payroll-engine/engine"
)

// Store implements engine.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
	q  queries
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps ":memory:" databases coherent (every pooled
	// connection would otherwise get its own empty database) and sidesteps
	// SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, q: queries{db: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Company payment configuration (one row per company)
	CREATE TABLE IF NOT EXISTS company_configs (
		company_id TEXT PRIMARY KEY,
		frequency TEXT NOT NULL,
		cycle_start_day INTEGER NOT NULL,
		assignment_criterion TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Materialized payment periods
	-- CRITICAL: UNIQUE(company_id, start_date) is the serialization point for
	-- concurrent materialization; InsertPeriod additionally guards against
	-- overlapping intervals before inserting.
	CREATE TABLE IF NOT EXISTS payment_periods (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		frequency TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'open',
		locked BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL,
		closed_at TEXT,
		UNIQUE(company_id, start_date)
	);

	CREATE INDEX IF NOT EXISTS idx_periods_company_dates
		ON payment_periods(company_id, start_date, end_date);
	CREATE INDEX IF NOT EXISTS idx_periods_status
		ON payment_periods(status);

	-- Financial elements; the four kinds share one table discriminated by kind
	CREATE TABLE IF NOT EXISTS financial_elements (
		kind TEXT NOT NULL,
		id TEXT NOT NULL,
		company_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		period_id TEXT NOT NULL,
		pickup_date TEXT,
		delivery_date TEXT,
		event_date TEXT,
		amount TEXT NOT NULL,
		description TEXT,
		created_at TEXT NOT NULL,
		PRIMARY KEY(kind, id)
	);

	CREATE INDEX IF NOT EXISTS idx_elements_period
		ON financial_elements(period_id);
	CREATE INDEX IF NOT EXISTS idx_elements_period_user
		ON financial_elements(period_id, user_id);

	-- Payroll records, one per (period, driver)
	CREATE TABLE IF NOT EXISTS payroll_records (
		id TEXT PRIMARY KEY,
		period_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		payment_status TEXT NOT NULL DEFAULT 'pending',
		paid_at TEXT,
		payment_method TEXT,
		payment_reference TEXT,
		payment_notes TEXT,
		gross_earnings TEXT NOT NULL DEFAULT '0',
		fuel_expenses TEXT NOT NULL DEFAULT '0',
		total_deductions TEXT NOT NULL DEFAULT '0',
		other_income TEXT NOT NULL DEFAULT '0',
		net_payment TEXT NOT NULL DEFAULT '0',
		needs_recalculation BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(period_id, user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_records_period
		ON payroll_records(period_id);
	CREATE INDEX IF NOT EXISTS idx_records_status
		ON payroll_records(payment_status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LOCKED WRAPPERS (engine.Store interface)
// =============================================================================

func (s *Store) SaveCompanyConfig(ctx context.Context, companyID engine.CompanyID, cfg engine.CompanyConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.saveCompanyConfig(ctx, companyID, cfg)
}

func (s *Store) GetCompanyConfig(ctx context.Context, companyID engine.CompanyID) (*engine.CompanyConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.getCompanyConfig(ctx, companyID)
}

func (s *Store) FindPeriodContaining(ctx context.Context, companyID engine.CompanyID, d engine.Date) (*engine.Period, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.findPeriodContaining(ctx, companyID, d)
}

func (s *Store) InsertPeriod(ctx context.Context, p engine.Period) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.insertPeriod(ctx, p)
}

func (s *Store) GetPeriod(ctx context.Context, id engine.PeriodID) (*engine.Period, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.getPeriod(ctx, id)
}

func (s *Store) ListPeriods(ctx context.Context, companyID engine.CompanyID, f engine.PeriodFilter) ([]engine.Period, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.listPeriods(ctx, companyID, f)
}

func (s *Store) UpdatePeriodStatus(ctx context.Context, id engine.PeriodID, status engine.PeriodStatus, closedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.updatePeriodStatus(ctx, id, status, closedAt)
}

func (s *Store) SetPeriodLocked(ctx context.Context, id engine.PeriodID, locked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.setPeriodLocked(ctx, id, locked)
}

func (s *Store) InsertElement(ctx context.Context, el engine.Element) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.insertElement(ctx, el)
}

func (s *Store) GetElement(ctx context.Context, kind engine.ElementKind, id engine.ElementID) (*engine.Element, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.getElement(ctx, kind, id)
}

func (s *Store) UpdateElementPeriod(ctx context.Context, kind engine.ElementKind, id engine.ElementID, periodID engine.PeriodID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.updateElementPeriod(ctx, kind, id, periodID)
}

func (s *Store) ListElementsByPeriod(ctx context.Context, periodID engine.PeriodID) ([]engine.Element, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.listElementsByPeriod(ctx, periodID)
}

func (s *Store) UsersWithElements(ctx context.Context, periodID engine.PeriodID) ([]engine.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.usersWithElements(ctx, periodID)
}

func (s *Store) UpsertPayrollRecord(ctx context.Context, rec engine.PayrollRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.upsertPayrollRecord(ctx, rec)
}

func (s *Store) GetPayrollRecord(ctx context.Context, id engine.RecordID) (*engine.PayrollRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.getPayrollRecord(ctx, id)
}

func (s *Store) FindPayrollRecord(ctx context.Context, periodID engine.PeriodID, userID engine.UserID) (*engine.PayrollRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.findPayrollRecord(ctx, periodID, userID)
}

func (s *Store) ListPayrollRecords(ctx context.Context, periodID engine.PeriodID) ([]engine.PayrollRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.listPayrollRecords(ctx, periodID)
}

func (s *Store) MarkRecordPaid(ctx context.Context, id engine.RecordID, method, reference, notes string, paidAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.markRecordPaid(ctx, id, method, reference, notes, paidAt)
}

func (s *Store) FlagRecalculation(ctx context.Context, periodID engine.PeriodID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.flagRecalculation(ctx, periodID)
}

func (s *Store) ListFlaggedPeriods(ctx context.Context) ([]engine.PeriodID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.listFlaggedPeriods(ctx)
}

// =============================================================================
// TRANSACTIONS (engine.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction. Reads inside fn go
// through the same transaction, so close validation sees its own writes.
func (s *Store) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{q: queries{db: sqlTx}}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore runs every Store method against the open transaction. No locking:
// WithTx already holds the store mutex.
type txStore struct {
	q queries
}

func (ts *txStore) SaveCompanyConfig(ctx context.Context, companyID engine.CompanyID, cfg engine.CompanyConfig) error {
	return ts.q.saveCompanyConfig(ctx, companyID, cfg)
}

func (ts *txStore) GetCompanyConfig(ctx context.Context, companyID engine.CompanyID) (*engine.CompanyConfig, error) {
	return ts.q.getCompanyConfig(ctx, companyID)
}

func (ts *txStore) FindPeriodContaining(ctx context.Context, companyID engine.CompanyID, d engine.Date) (*engine.Period, error) {
	return ts.q.findPeriodContaining(ctx, companyID, d)
}

func (ts *txStore) InsertPeriod(ctx context.Context, p engine.Period) error {
	return ts.q.insertPeriod(ctx, p)
}

func (ts *txStore) GetPeriod(ctx context.Context, id engine.PeriodID) (*engine.Period, error) {
	return ts.q.getPeriod(ctx, id)
}

func (ts *txStore) ListPeriods(ctx context.Context, companyID engine.CompanyID, f engine.PeriodFilter) ([]engine.Period, error) {
	return ts.q.listPeriods(ctx, companyID, f)
}

func (ts *txStore) UpdatePeriodStatus(ctx context.Context, id engine.PeriodID, status engine.PeriodStatus, closedAt *time.Time) error {
	return ts.q.updatePeriodStatus(ctx, id, status, closedAt)
}

func (ts *txStore) SetPeriodLocked(ctx context.Context, id engine.PeriodID, locked bool) error {
	return ts.q.setPeriodLocked(ctx, id, locked)
}

func (ts *txStore) InsertElement(ctx context.Context, el engine.Element) error {
	return ts.q.insertElement(ctx, el)
}

func (ts *txStore) GetElement(ctx context.Context, kind engine.ElementKind, id engine.ElementID) (*engine.Element, error) {
	return ts.q.getElement(ctx, kind, id)
}

func (ts *txStore) UpdateElementPeriod(ctx context.Context, kind engine.ElementKind, id engine.ElementID, periodID engine.PeriodID) error {
	return ts.q.updateElementPeriod(ctx, kind, id, periodID)
}

func (ts *txStore) ListElementsByPeriod(ctx context.Context, periodID engine.PeriodID) ([]engine.Element, error) {
	return ts.q.listElementsByPeriod(ctx, periodID)
}

func (ts *txStore) UsersWithElements(ctx context.Context, periodID engine.PeriodID) ([]engine.UserID, error) {
	return ts.q.usersWithElements(ctx, periodID)
}

func (ts *txStore) UpsertPayrollRecord(ctx context.Context, rec engine.PayrollRecord) error {
	return ts.q.upsertPayrollRecord(ctx, rec)
}

func (ts *txStore) GetPayrollRecord(ctx context.Context, id engine.RecordID) (*engine.PayrollRecord, error) {
	return ts.q.getPayrollRecord(ctx, id)
}

func (ts *txStore) FindPayrollRecord(ctx context.Context, periodID engine.PeriodID, userID engine.UserID) (*engine.PayrollRecord, error) {
	return ts.q.findPayrollRecord(ctx, periodID, userID)
}

func (ts *txStore) ListPayrollRecords(ctx context.Context, periodID engine.PeriodID) ([]engine.PayrollRecord, error) {
	return ts.q.listPayrollRecords(ctx, periodID)
}

func (ts *txStore) MarkRecordPaid(ctx context.Context, id engine.RecordID, method, reference, notes string, paidAt time.Time) error {
	return ts.q.markRecordPaid(ctx, id, method, reference, notes, paidAt)
}

func (ts *txStore) FlagRecalculation(ctx context.Context, periodID engine.PeriodID) error {
	return ts.q.flagRecalculation(ctx, periodID)
}

func (ts *txStore) ListFlaggedPeriods(ctx context.Context) ([]engine.PeriodID, error) {
	return ts.q.listFlaggedPeriods(ctx)
}

// =============================================================================
// QUERIES - shared between the plain store and the transaction view
// =============================================================================

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db dbtx
}

// ----- company configs -----

func (q queries) saveCompanyConfig(ctx context.Context, companyID engine.CompanyID, cfg engine.CompanyConfig) error {
	query := `
		INSERT INTO company_configs (company_id, frequency, cycle_start_day, assignment_criterion, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(company_id) DO UPDATE SET
			frequency = excluded.frequency,
			cycle_start_day = excluded.cycle_start_day,
			assignment_criterion = excluded.assignment_criterion,
			updated_at = excluded.updated_at
	`

	_, err := q.db.ExecContext(ctx, query,
		companyID, cfg.Frequency, cfg.CycleStartDay, cfg.AssignmentCriterion,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save company config: %w", err)
	}
	return nil
}

func (q queries) getCompanyConfig(ctx context.Context, companyID engine.CompanyID) (*engine.CompanyConfig, error) {
	var cfg engine.CompanyConfig
	err := q.db.QueryRowContext(ctx,
		"SELECT frequency, cycle_start_day, assignment_criterion FROM company_configs WHERE company_id = ?",
		companyID,
	).Scan(&cfg.Frequency, &cfg.CycleStartDay, &cfg.AssignmentCriterion)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ----- periods -----

const periodColumns = "id, company_id, start_date, end_date, frequency, status, locked, created_at, closed_at"

func (q queries) findPeriodContaining(ctx context.Context, companyID engine.CompanyID, d engine.Date) (*engine.Period, error) {
	// ISO date strings compare correctly as text.
	query := `
		SELECT ` + periodColumns + `
		FROM payment_periods
		WHERE company_id = ? AND start_date <= ? AND end_date >= ?
		LIMIT 1
	`

	row := q.db.QueryRowContext(ctx, query, companyID, d.String(), d.String())
	p, err := scanPeriod(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (q queries) insertPeriod(ctx context.Context, p engine.Period) error {
	// Guarded insert: the row lands only if no period of the company overlaps
	// [start, end]. Zero rows affected means a racer (or a misaligned period)
	// already covers part of the interval.
	query := `
		INSERT INTO payment_periods (id, company_id, start_date, end_date, frequency, status, locked, created_at)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM payment_periods
			WHERE company_id = ? AND start_date <= ? AND end_date >= ?
		)
	`

	res, err := q.db.ExecContext(ctx, query,
		p.ID, p.CompanyID, p.Start.String(), p.End.String(), p.Frequency,
		p.Status, p.Locked, p.CreatedAt.UTC().Format(time.RFC3339),
		p.CompanyID, p.End.String(), p.Start.String(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return engine.ErrDuplicatePeriod
		}
		return fmt.Errorf("failed to insert period: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to insert period: %w", err)
	}
	if n == 0 {
		return engine.ErrDuplicatePeriod
	}
	return nil
}

func (q queries) getPeriod(ctx context.Context, id engine.PeriodID) (*engine.Period, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT "+periodColumns+" FROM payment_periods WHERE id = ?", id)
	p, err := scanPeriod(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (q queries) listPeriods(ctx context.Context, companyID engine.CompanyID, f engine.PeriodFilter) ([]engine.Period, error) {
	query := "SELECT " + periodColumns + " FROM payment_periods WHERE company_id = ?"
	args := []any{companyID}

	if f.Status != nil {
		query += " AND status = ?"
		args = append(args, *f.Status)
	}
	if f.From != nil {
		query += " AND end_date >= ?"
		args = append(args, f.From.String())
	}
	if f.To != nil {
		query += " AND start_date <= ?"
		args = append(args, f.To.String())
	}
	query += " ORDER BY start_date DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query periods: %w", err)
	}
	defer rows.Close()

	var periods []engine.Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, *p)
	}
	return periods, rows.Err()
}

func (q queries) updatePeriodStatus(ctx context.Context, id engine.PeriodID, status engine.PeriodStatus, closedAt *time.Time) error {
	var closedAtStr *string
	if closedAt != nil {
		t := closedAt.UTC().Format(time.RFC3339)
		closedAtStr = &t
	}

	res, err := q.db.ExecContext(ctx,
		"UPDATE payment_periods SET status = ?, closed_at = COALESCE(?, closed_at) WHERE id = ?",
		status, closedAtStr, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update period status: %w", err)
	}
	return requireRow(res)
}

func (q queries) setPeriodLocked(ctx context.Context, id engine.PeriodID, locked bool) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE payment_periods SET locked = ? WHERE id = ?", locked, id)
	if err != nil {
		return fmt.Errorf("failed to set period locked: %w", err)
	}
	return requireRow(res)
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPeriod(row scanner) (*engine.Period, error) {
	var (
		p         engine.Period
		start     string
		end       string
		createdAt string
		closedAt  sql.NullString
	)

	err := row.Scan(&p.ID, &p.CompanyID, &start, &end, &p.Frequency,
		&p.Status, &p.Locked, &createdAt, &closedAt)
	if err != nil {
		return nil, err
	}

	if p.Start, err = engine.ParseDate(start); err != nil {
		return nil, fmt.Errorf("bad start_date %q: %w", start, err)
	}
	if p.End, err = engine.ParseDate(end); err != nil {
		return nil, fmt.Errorf("bad end_date %q: %w", end, err)
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if closedAt.Valid {
		t, _ := time.Parse(time.RFC3339, closedAt.String)
		p.ClosedAt = &t
	}
	return &p, nil
}

// ----- financial elements -----

const elementColumns = "kind, id, company_id, user_id, period_id, pickup_date, delivery_date, event_date, amount, description, created_at"

func (q queries) insertElement(ctx context.Context, el engine.Element) error {
	query := `
		INSERT INTO financial_elements
		(kind, id, company_id, user_id, period_id, pickup_date, delivery_date, event_date, amount, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.db.ExecContext(ctx, query,
		el.Kind, el.ID, el.CompanyID, el.UserID, el.PeriodID,
		nullDate(el.PickupDate), nullDate(el.DeliveryDate), nullDate(el.EventDate),
		el.Amount.String(), nullString(el.Description),
		el.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert element: %w", err)
	}
	return nil
}

func (q queries) getElement(ctx context.Context, kind engine.ElementKind, id engine.ElementID) (*engine.Element, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT "+elementColumns+" FROM financial_elements WHERE kind = ? AND id = ?",
		kind, id)
	el, err := scanElement(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return el, nil
}

func (q queries) updateElementPeriod(ctx context.Context, kind engine.ElementKind, id engine.ElementID, periodID engine.PeriodID) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE financial_elements SET period_id = ? WHERE kind = ? AND id = ?",
		periodID, kind, id)
	if err != nil {
		return fmt.Errorf("failed to update element period: %w", err)
	}
	return requireRow(res)
}

func (q queries) listElementsByPeriod(ctx context.Context, periodID engine.PeriodID) ([]engine.Element, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+elementColumns+" FROM financial_elements WHERE period_id = ? ORDER BY created_at ASC, id ASC",
		periodID)
	if err != nil {
		return nil, fmt.Errorf("failed to query elements: %w", err)
	}
	defer rows.Close()

	var elements []engine.Element
	for rows.Next() {
		el, err := scanElement(rows)
		if err != nil {
			return nil, err
		}
		elements = append(elements, *el)
	}
	return elements, rows.Err()
}

func (q queries) usersWithElements(ctx context.Context, periodID engine.PeriodID) ([]engine.UserID, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT DISTINCT user_id FROM financial_elements WHERE period_id = ? ORDER BY user_id",
		periodID)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []engine.UserID
	for rows.Next() {
		var u engine.UserID
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanElement(row scanner) (*engine.Element, error) {
	var (
		el          engine.Element
		pickup      sql.NullString
		delivery    sql.NullString
		event       sql.NullString
		amount      string
		description sql.NullString
		createdAt   string
	)

	err := row.Scan(&el.Kind, &el.ID, &el.CompanyID, &el.UserID, &el.PeriodID,
		&pickup, &delivery, &event, &amount, &description, &createdAt)
	if err != nil {
		return nil, err
	}

	if el.PickupDate, err = parseNullDate(pickup); err != nil {
		return nil, err
	}
	if el.DeliveryDate, err = parseNullDate(delivery); err != nil {
		return nil, err
	}
	if el.EventDate, err = parseNullDate(event); err != nil {
		return nil, err
	}
	if el.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("bad amount %q: %w", amount, err)
	}
	el.Description = description.String
	el.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &el, nil
}

// ----- payroll records -----

const recordColumns = `id, period_id, user_id, payment_status, paid_at, payment_method,
	payment_reference, payment_notes, gross_earnings, fuel_expenses, total_deductions,
	other_income, net_payment, needs_recalculation, created_at, updated_at`

func (q queries) upsertPayrollRecord(ctx context.Context, rec engine.PayrollRecord) error {
	query := `
		INSERT INTO payroll_records
		(id, period_id, user_id, payment_status, paid_at, payment_method, payment_reference,
		 payment_notes, gross_earnings, fuel_expenses, total_deductions, other_income,
		 net_payment, needs_recalculation, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(period_id, user_id) DO UPDATE SET
			payment_status = excluded.payment_status,
			gross_earnings = excluded.gross_earnings,
			fuel_expenses = excluded.fuel_expenses,
			total_deductions = excluded.total_deductions,
			other_income = excluded.other_income,
			net_payment = excluded.net_payment,
			needs_recalculation = excluded.needs_recalculation,
			updated_at = excluded.updated_at
	`

	var paidAt *string
	if rec.PaidAt != nil {
		t := rec.PaidAt.UTC().Format(time.RFC3339)
		paidAt = &t
	}

	_, err := q.db.ExecContext(ctx, query,
		rec.ID, rec.PeriodID, rec.UserID, rec.PaymentStatus, paidAt,
		nullString(rec.PaymentMethod), nullString(rec.PaymentReference), nullString(rec.PaymentNotes),
		rec.GrossEarnings.String(), rec.FuelExpenses.String(), rec.TotalDeductions.String(),
		rec.OtherIncome.String(), rec.NetPayment.String(), rec.NeedsRecalculation,
		rec.CreatedAt.UTC().Format(time.RFC3339), rec.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert payroll record: %w", err)
	}
	return nil
}

func (q queries) getPayrollRecord(ctx context.Context, id engine.RecordID) (*engine.PayrollRecord, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM payroll_records WHERE id = ?", id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (q queries) findPayrollRecord(ctx context.Context, periodID engine.PeriodID, userID engine.UserID) (*engine.PayrollRecord, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM payroll_records WHERE period_id = ? AND user_id = ?",
		periodID, userID)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (q queries) listPayrollRecords(ctx context.Context, periodID engine.PeriodID) ([]engine.PayrollRecord, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM payroll_records WHERE period_id = ? ORDER BY user_id",
		periodID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payroll records: %w", err)
	}
	defer rows.Close()

	var records []engine.PayrollRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (q queries) markRecordPaid(ctx context.Context, id engine.RecordID, method, reference, notes string, paidAt time.Time) error {
	query := `
		UPDATE payroll_records SET
			payment_status = 'paid',
			paid_at = ?,
			payment_method = ?,
			payment_reference = ?,
			payment_notes = ?,
			updated_at = ?
		WHERE id = ?
	`

	ts := paidAt.UTC().Format(time.RFC3339)
	res, err := q.db.ExecContext(ctx, query,
		ts, nullString(method), nullString(reference), nullString(notes), ts, id)
	if err != nil {
		return fmt.Errorf("failed to mark record paid: %w", err)
	}
	return requireRow(res)
}

func (q queries) flagRecalculation(ctx context.Context, periodID engine.PeriodID) error {
	_, err := q.db.ExecContext(ctx,
		"UPDATE payroll_records SET needs_recalculation = TRUE, updated_at = ? WHERE period_id = ?",
		time.Now().UTC().Format(time.RFC3339), periodID)
	if err != nil {
		return fmt.Errorf("failed to flag recalculation: %w", err)
	}
	return nil
}

func (q queries) listFlaggedPeriods(ctx context.Context) ([]engine.PeriodID, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT DISTINCT period_id FROM payroll_records WHERE needs_recalculation = TRUE ORDER BY period_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list flagged periods: %w", err)
	}
	defer rows.Close()

	var out []engine.PeriodID
	for rows.Next() {
		var id engine.PeriodID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func scanRecord(row scanner) (*engine.PayrollRecord, error) {
	var (
		rec       engine.PayrollRecord
		paidAt    sql.NullString
		method    sql.NullString
		reference sql.NullString
		notes     sql.NullString
		gross     string
		fuel      string
		deduct    string
		other     string
		net       string
		createdAt string
		updatedAt string
	)

	err := row.Scan(&rec.ID, &rec.PeriodID, &rec.UserID, &rec.PaymentStatus,
		&paidAt, &method, &reference, &notes,
		&gross, &fuel, &deduct, &other, &net,
		&rec.NeedsRecalculation, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if paidAt.Valid {
		t, _ := time.Parse(time.RFC3339, paidAt.String)
		rec.PaidAt = &t
	}
	rec.PaymentMethod = method.String
	rec.PaymentReference = reference.String
	rec.PaymentNotes = notes.String

	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&rec.GrossEarnings, gross},
		{&rec.FuelExpenses, fuel},
		{&rec.TotalDeductions, deduct},
		{&rec.OtherIncome, other},
		{&rec.NetPayment, net},
	} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return nil, fmt.Errorf("bad amount %q: %w", f.src, err)
		}
	}

	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &rec, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"payroll_records", "financial_elements", "payment_periods", "company_configs"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return engine.ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(d *engine.Date) sql.NullString {
	if d == nil || d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDate(ns sql.NullString) (*engine.Date, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	d, err := engine.ParseDate(ns.String)
	if err != nil {
		return nil, fmt.Errorf("bad date %q: %w", ns.String, err)
	}
	return &d, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
