/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  One Store implements every persistence interface of the console. Services
  receive it through their own narrow interface, so each package only sees
  the methods it needs.

INTERFACES IMPLEMENTED:
  auth.AccessResolver:  role + sub-permissions per request
  membership.Store:     accounts and profiles
  survey.Store:         surveys, targeting, responses
  billing.Store:        invoices
  equipment.Store:      bows and loans
  calendar.Store:       events
  audit.Sink/Reader:    account and invoice logs

FOLD():
  The driver registers a deterministic SQL function fold(text) that is
  survey.Normalize. Target-group queries compare fold(column) with values
  normalized by the same Go function, so the SQL resolver and the in-memory
  evaluator agree for full-width and non-ASCII text.

KEY CONSTRAINTS:
  - accounts(email) unique
  - survey_responses(survey_id, account_id) unique: one response per member
  - survey_answers(response_id, question_id, option_id) unique
  - idx_bow_loans_open: at most one open loan per bow

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, and every multi-statement write runs
  inside one database transaction (withTx).

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time

USAGE:
  store, err := sqlite.New("./data/kyudo.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). Every statement is idempotent.

SEE ALSO:
  - accounts.go, surveys.go, invoices.go, equipment.go, calendar.go, audit.go
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/kyudo-console/audit"
	"github.com/warp/kyudo-console/auth"
	"github.com/warp/kyudo-console/billing"
	"github.com/warp/kyudo-console/calendar"
	"github.com/warp/kyudo-console/equipment"
	"github.com/warp/kyudo-console/membership"
	"github.com/warp/kyudo-console/survey"
)

// DriverName is the database/sql driver with fold() registered.
const DriverName = "sqlite3_kyudo"

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("fold", survey.Normalize, true)
		},
	})
}

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ auth.AccessResolver = (*Store)(nil)
	_ membership.Store    = (*Store)(nil)
	_ survey.Store        = (*Store)(nil)
	_ billing.Store       = (*Store)(nil)
	_ equipment.Store     = (*Store)(nil)
	_ calendar.Store      = (*Store)(nil)
	_ audit.Sink          = (*Store)(nil)
	_ audit.Reader        = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open(DriverName, dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
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

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate re-applies the schema. New already does this; the method exists for
// the migrate command.
func (s *Store) Migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.migrate()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Accounts and profiles (profile id == account id)
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		session_version INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS account_permissions (
		account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		permission TEXT NOT NULL,
		PRIMARY KEY (account_id, permission)
	);

	CREATE TABLE IF NOT EXISTS profiles (
		account_id TEXT PRIMARY KEY REFERENCES accounts(id) ON DELETE CASCADE,
		display_name TEXT NOT NULL,
		generation TEXT,
		gender TEXT,
		department TEXT,
		ryuha TEXT,
		position TEXT,
		public_note TEXT,
		student_number TEXT,
		phone TEXT,
		address TEXT,
		restricted_note TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_profiles_generation
		ON profiles(generation);

	-- Surveys
	CREATE TABLE IF NOT EXISTS surveys (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		status TEXT NOT NULL DEFAULT 'draft',
		opens_at TEXT,
		closes_at TEXT,
		is_anonymous BOOLEAN NOT NULL DEFAULT FALSE,
		created_by TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_surveys_created_at
		ON surveys(created_at);

	CREATE TABLE IF NOT EXISTS survey_questions (
		id TEXT PRIMARY KEY,
		survey_id TEXT NOT NULL REFERENCES surveys(id) ON DELETE CASCADE,
		prompt TEXT NOT NULL,
		type TEXT NOT NULL,
		allow_option_add BOOLEAN NOT NULL DEFAULT FALSE,
		position INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_survey_questions_survey
		ON survey_questions(survey_id, position);

	-- Options are listed in insertion (rowid) order
	CREATE TABLE IF NOT EXISTS survey_options (
		id TEXT PRIMARY KEY,
		question_id TEXT NOT NULL REFERENCES survey_questions(id) ON DELETE CASCADE,
		label TEXT NOT NULL,
		created_by TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_survey_options_question
		ON survey_options(question_id);

	CREATE TABLE IF NOT EXISTS survey_target_groups (
		id TEXT PRIMARY KEY,
		survey_id TEXT NOT NULL REFERENCES surveys(id) ON DELETE CASCADE,
		position INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS survey_target_conditions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		group_id TEXT NOT NULL REFERENCES survey_target_groups(id) ON DELETE CASCADE,
		field TEXT NOT NULL,
		op TEXT NOT NULL,
		value TEXT NOT NULL
	);

	-- Explicit targets override target groups when present
	CREATE TABLE IF NOT EXISTS survey_targets (
		survey_id TEXT NOT NULL REFERENCES surveys(id) ON DELETE CASCADE,
		account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		PRIMARY KEY (survey_id, account_id)
	);

	CREATE TABLE IF NOT EXISTS survey_responses (
		id TEXT PRIMARY KEY,
		survey_id TEXT NOT NULL REFERENCES surveys(id) ON DELETE CASCADE,
		account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		submitted_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(survey_id, account_id)
	);

	CREATE INDEX IF NOT EXISTS idx_survey_responses_account
		ON survey_responses(account_id);

	CREATE TABLE IF NOT EXISTS survey_answers (
		response_id TEXT NOT NULL REFERENCES survey_responses(id) ON DELETE CASCADE,
		question_id TEXT NOT NULL REFERENCES survey_questions(id) ON DELETE CASCADE,
		option_id TEXT NOT NULL REFERENCES survey_options(id) ON DELETE CASCADE,
		UNIQUE(response_id, question_id, option_id)
	);

	-- Invoices
	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		amount TEXT NOT NULL,
		billed_at TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		approver_id TEXT,
		approved_at TEXT,
		requester_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_invoices_account
		ON invoices(account_id);
	CREATE INDEX IF NOT EXISTS idx_invoices_status
		ON invoices(status);

	-- Bows and loans
	CREATE TABLE IF NOT EXISTS bows (
		id TEXT PRIMARY KEY,
		bow_number TEXT NOT NULL,
		name TEXT NOT NULL,
		strength TEXT NOT NULL,
		length TEXT NOT NULL,
		note TEXT,
		borrower_profile_id TEXT REFERENCES profiles(account_id),
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bow_loans (
		id TEXT PRIMARY KEY,
		bow_id TEXT NOT NULL REFERENCES bows(id) ON DELETE CASCADE,
		borrower_profile_id TEXT NOT NULL REFERENCES profiles(account_id),
		operator_id TEXT NOT NULL,
		borrowed_at TEXT NOT NULL,
		returned_at TEXT
	);

	-- CRITICAL: one open loan per bow
	CREATE UNIQUE INDEX IF NOT EXISTS idx_bow_loans_open
		ON bow_loans(bow_id) WHERE returned_at IS NULL;

	CREATE INDEX IF NOT EXISTS idx_bow_loans_bow
		ON bow_loans(bow_id, borrowed_at DESC);

	-- Calendar
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		starts_at TEXT NOT NULL,
		ends_at TEXT NOT NULL,
		all_day BOOLEAN NOT NULL DEFAULT FALSE,
		color TEXT NOT NULL,
		created_by TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_range
		ON events(starts_at, ends_at);

	-- Audit logs (append-only)
	CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		log TEXT NOT NULL,
		operator_id TEXT,
		subject_id TEXT,
		action TEXT NOT NULL,
		detail TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_logs_log_created
		ON audit_logs(log, created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx executes fn within a database transaction. The caller must not hold
// s.mu.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(sqlTx); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// Reset deletes all data. Used by demo scenarios.
func (s *Store) Reset(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{
			"audit_logs", "events", "bow_loans", "bows", "invoices",
			"survey_answers", "survey_responses", "survey_targets",
			"survey_target_conditions", "survey_target_groups",
			"survey_options", "survey_questions", "surveys",
			"profiles", "account_permissions", "accounts",
		} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("reset %s: %w", table, err)
			}
		}
		return nil
	})
}

// Helper functions

// timeLayout has fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: fmtTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// placeholders returns "?, ?, ..." for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
