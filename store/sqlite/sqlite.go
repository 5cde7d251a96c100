/*
Package sqlite provides the SQLite-backed persistence for the engine.

PURPOSE:
  One Store implements everything the batch runners and the queue
  worker need: the loans table, the run-audit table, and the durable
  notification queue. In production the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  loans:          Per-loan accrual state. due_dates_json and
                  late_fee_tiers_json are structured JSON columns
                  validated on read; a malformed column is surfaced
                  as a DecodeFailure, never a crash.
  accrual_runs:   One row per batch run, for audit and the ops API.
  notifications:  Durable queue rows. Never deleted, only
                  status-transitioned.

OPTIMISTIC CONCURRENCY:
  loans.version guards against request-path writes (payment webhooks)
  racing the batch. Every engine write is WHERE id = ? AND version = ?;
  a miss returns loan.ErrVersionConflict and the runner skips the loan
  until the next tick.

WAL MODE:
  SQLite is opened with WAL for better concurrency: readers don't block
  and crash recovery is cheap.

USAGE:
  store, err := sqlite.New("./data/loans.db")
  if err != nil { ... }
  defer store.Close()

SEE ALSO:
  - jobs: the batch runners driving the loans table
  - notify: the worker draining the notifications table
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/crednest/loan-engine/loan"
	"github.com/crednest/loan-engine/notify"
)

// Store implements the persistence interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
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

func (s *Store) migrate() error {
	schema := `
	-- Per-loan accrual state. Mutated exclusively by the batch runners
	-- once a loan is active; request-path writes bump version.
	CREATE TABLE IF NOT EXISTS loans (
		id INTEGER PRIMARY KEY,
		principal TEXT NOT NULL,
		daily_interest_rate TEXT NOT NULL,
		due_dates_json TEXT,
		late_fee_tiers_json TEXT,
		accrued_interest TEXT NOT NULL DEFAULT '0',
		accrued_penalty TEXT NOT NULL DEFAULT '0',
		last_calculated_date TEXT,
		processed_at TEXT NOT NULL,
		status TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Candidate scan is the hot path: active statuses in id order.
	CREATE INDEX IF NOT EXISTS idx_loans_status_id
		ON loans(status, id);

	-- Run audit (one row per batch run)
	CREATE TABLE IF NOT EXISTS accrual_runs (
		id TEXT PRIMARY KEY,
		job TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		processed INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		skipped INTEGER DEFAULT 0,
		error TEXT,
		started_at TEXT,
		completed_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accrual_runs_job
		ON accrual_runs(job, created_at DESC);

	-- Durable notification queue (append + status transitions only)
	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		recipient TEXT NOT NULL,
		message TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_status_created
		ON notifications(status, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LOANS
// =============================================================================

// DecodeFailure reports one loan row whose JSON columns could not be
// decoded. The runner dead-letter logs these and continues.
type DecodeFailure struct {
	LoanID int64
	Err    error
}

// CreateLoan inserts a new accrual state row. The caller supplies the id
// (loans are created upstream at disbursal; this exists for seeding and
// tests).
func (s *Store) CreateLoan(ctx context.Context, l *loan.AccrualState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dueDates, err := loan.EncodeDueDates(l.DueDates)
	if err != nil {
		return fmt.Errorf("failed to encode due dates: %w", err)
	}
	tiers, err := loan.EncodeTiers(l.Tiers)
	if err != nil {
		return fmt.Errorf("failed to encode tiers: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO loans
		(id, principal, daily_interest_rate, due_dates_json, late_fee_tiers_json,
		 accrued_interest, accrued_penalty, last_calculated_date, processed_at,
		 status, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		l.ID,
		l.Principal.String(),
		l.DailyInterestRate.String(),
		dueDates,
		tiers,
		l.AccruedInterest.String(),
		l.AccruedPenalty.String(),
		nullDate(l.LastCalculatedDate),
		l.ProcessedAt.String(),
		l.Status,
		l.Version,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert loan: %w", err)
	}
	return nil
}

// SetRawColumns overwrites a loan's JSON columns without validation.
// Test seam for exercising the reject-and-continue decode path; rows
// are written by the snapshot pipeline upstream.
func (s *Store) SetRawColumns(ctx context.Context, id int64, dueDatesJSON, tiersJSON string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"UPDATE loans SET due_dates_json = ?, late_fee_tiers_json = ? WHERE id = ?",
		dueDatesJSON, tiersJSON, id)
	return err
}

// GetLoan loads one loan by id.
func (s *Store) GetLoan(ctx context.Context, id int64) (*loan.AccrualState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, loanColumns+" FROM loans WHERE id = ?", id)
	l, err := scanLoan(row)
	if err == sql.ErrNoRows {
		return nil, loan.ErrLoanNotFound
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

// ListActiveLoans returns all loans in an active status in ascending id
// order. Rows whose JSON columns fail to decode come back as
// DecodeFailures alongside the good rows; one bad record must not hide
// the other thousands.
func (s *Store) ListActiveLoans(ctx context.Context) ([]loan.AccrualState, []DecodeFailure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		loanColumns+" FROM loans WHERE status IN (?, ?) ORDER BY id ASC",
		loan.StatusCurrent, loan.StatusOverdue,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query active loans: %w", err)
	}
	defer rows.Close()

	var loans []loan.AccrualState
	var failures []DecodeFailure
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			if de, ok := err.(*decodeError); ok {
				failures = append(failures, DecodeFailure{LoanID: de.loanID, Err: de.err})
				continue
			}
			return nil, nil, err
		}
		loans = append(loans, *l)
	}
	return loans, failures, rows.Err()
}

// UpdateAccrual persists a loan's new accrual figures under its version
// token. On success the in-memory version is bumped to match the row.
func (s *Store) UpdateAccrual(ctx context.Context, l *loan.AccrualState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE loans
		SET accrued_interest = ?, accrued_penalty = ?, last_calculated_date = ?,
		    version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`,
		l.AccruedInterest.String(),
		l.AccruedPenalty.String(),
		nullDate(l.LastCalculatedDate),
		time.Now().UTC().Format(time.RFC3339),
		l.ID,
		l.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update loan %d: %w", l.ID, err)
	}
	if err := s.checkWrite(ctx, res, l.ID); err != nil {
		return err
	}
	l.Version++
	return nil
}

// UpdateStatus transitions a loan's status under its version token. The
// from-status is part of the predicate so a transition never applies
// twice.
func (s *Store) UpdateStatus(ctx context.Context, id int64, from, to loan.Status, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE loans
		SET status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND status = ? AND version = ?
	`,
		to,
		time.Now().UTC().Format(time.RFC3339),
		id,
		from,
		version,
	)
	if err != nil {
		return fmt.Errorf("failed to update loan %d status: %w", id, err)
	}
	return s.checkWrite(ctx, res, id)
}

// checkWrite distinguishes "row gone" from "row moved" after a guarded
// UPDATE matched nothing.
func (s *Store) checkWrite(ctx context.Context, res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM loans WHERE id = ?", id).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return loan.ErrLoanNotFound
	}
	return loan.ErrVersionConflict
}

const loanColumns = `
	SELECT id, principal, daily_interest_rate, due_dates_json, late_fee_tiers_json,
	       accrued_interest, accrued_penalty, last_calculated_date, processed_at,
	       status, version`

type scannable interface {
	Scan(dest ...any) error
}

// decodeError carries the loan id past scanLoan so ListActiveLoans can
// turn it into a DecodeFailure.
type decodeError struct {
	loanID int64
	err    error
}

func (e *decodeError) Error() string { return fmt.Sprintf("loan %d: %v", e.loanID, e.err) }
func (e *decodeError) Unwrap() error { return e.err }

func scanLoan(row scannable) (*loan.AccrualState, error) {
	var (
		l              loan.AccrualState
		principal      string
		rate           string
		dueDatesJSON   sql.NullString
		tiersJSON      sql.NullString
		interest       string
		penalty        string
		lastCalculated sql.NullString
		processedAt    string
	)

	err := row.Scan(
		&l.ID, &principal, &rate, &dueDatesJSON, &tiersJSON,
		&interest, &penalty, &lastCalculated, &processedAt,
		&l.Status, &l.Version,
	)
	if err != nil {
		return nil, err
	}

	l.Principal = loan.MustDecimal(principal)
	l.DailyInterestRate = loan.MustDecimal(rate)
	l.AccruedInterest = loan.MustDecimal(interest)
	l.AccruedPenalty = loan.MustDecimal(penalty)

	if l.DueDates, err = loan.DecodeDueDates(dueDatesJSON.String); err != nil {
		return nil, &decodeError{loanID: l.ID, err: err}
	}
	if l.Tiers, err = loan.DecodeTiers(tiersJSON.String); err != nil {
		return nil, &decodeError{loanID: l.ID, err: err}
	}

	if lastCalculated.Valid && lastCalculated.String != "" {
		if l.LastCalculatedDate, err = loan.ParseDate(lastCalculated.String); err != nil {
			return nil, &decodeError{loanID: l.ID, err: err}
		}
	}
	if l.ProcessedAt, err = loan.ParseDate(processedAt); err != nil {
		return nil, &decodeError{loanID: l.ID, err: err}
	}

	return &l, nil
}

func nullDate(d loan.Date) any {
	if d.IsZero() {
		return nil
	}
	return d.String()
}

// =============================================================================
// RUN AUDIT
// =============================================================================

// RunRecord is one batch run, persisted for audit and the ops API.
type RunRecord struct {
	ID          string
	Job         string
	Status      string // running | completed | failed
	Processed   int
	Failed      int
	Skipped     int
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
}

// SaveRun upserts a run record (written once as running, again on
// completion).
func (s *Store) SaveRun(ctx context.Context, run RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO accrual_runs
		(id, job, status, processed, failed, skipped, error, started_at, completed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Job,
		run.Status,
		run.Processed,
		run.Failed,
		run.Skipped,
		nullString(run.Error),
		nullTime(run.StartedAt),
		nullTime(run.CompletedAt),
		run.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save run record: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job, status, processed, failed, skipped, error, started_at, completed_at, created_at
		FROM accrual_runs
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var (
			run         RunRecord
			errText     sql.NullString
			startedAt   sql.NullString
			completedAt sql.NullString
			createdAt   string
		)
		if err := rows.Scan(&run.ID, &run.Job, &run.Status, &run.Processed, &run.Failed,
			&run.Skipped, &errText, &startedAt, &completedAt, &createdAt); err != nil {
			return nil, err
		}
		run.Error = errText.String
		run.StartedAt = parseTimePtr(startedAt)
		run.CompletedAt = parseTimePtr(completedAt)
		run.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// =============================================================================
// NOTIFICATION QUEUE (notify.Queue interface)
// =============================================================================

// Enqueue persists a new pending notification.
func (s *Store) Enqueue(ctx context.Context, n notify.QueuedNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications
		(id, recipient, message, status, attempts, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		n.ID,
		n.Recipient,
		n.Message,
		n.Status,
		n.Attempts,
		nullString(n.LastError),
		n.CreatedAt.UTC().Format(time.RFC3339),
		n.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}
	return nil
}

// ClaimBatch selects up to limit deliverable items oldest-first and
// marks them processing in one transaction.
func (s *Store) ClaimBatch(ctx context.Context, limit, maxAttempts int) ([]notify.QueuedNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, recipient, message, status, attempts, last_error, created_at, updated_at
		FROM notifications
		WHERE status = ? OR (status = ? AND attempts < ?)
		ORDER BY created_at ASC
		LIMIT ?
	`, notify.StatusPending, notify.StatusFailed, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue: %w", err)
	}

	var batch []notify.QueuedNotification
	for rows.Next() {
		var (
			n         notify.QueuedNotification
			lastError sql.NullString
			createdAt string
			updatedAt string
		)
		if err := rows.Scan(&n.ID, &n.Recipient, &n.Message, &n.Status, &n.Attempts,
			&lastError, &createdAt, &updatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		n.LastError = lastError.String
		n.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		n.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		batch = append(batch, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for i := range batch {
		if _, err := tx.ExecContext(ctx,
			"UPDATE notifications SET status = ?, updated_at = ? WHERE id = ?",
			notify.StatusProcessing, now, batch[i].ID,
		); err != nil {
			return nil, fmt.Errorf("failed to claim notification %s: %w", batch[i].ID, err)
		}
		batch[i].Status = notify.StatusProcessing
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return batch, nil
}

// MarkSent finalizes a delivered item.
func (s *Store) MarkSent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET status = ?, attempts = attempts + 1, last_error = NULL, updated_at = ?
		WHERE id = ?
	`, notify.StatusSent, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}
	return nil
}

// MarkFailed records a delivery failure. Once attempts reach the
// ceiling the item is terminal dead and the worker stops claiming it.
func (s *Store) MarkFailed(ctx context.Context, id, sendErr string, maxAttempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET attempts = attempts + 1,
		    status = CASE WHEN attempts + 1 >= ? THEN ? ELSE ? END,
		    last_error = ?,
		    updated_at = ?
		WHERE id = ?
	`,
		maxAttempts,
		notify.StatusDead,
		notify.StatusFailed,
		sendErr,
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark notification failed: %w", err)
	}
	return nil
}

// QueueCounts returns the number of notifications per status, for the
// ops API.
func (s *Store) QueueCounts(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM notifications GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count queue: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}
