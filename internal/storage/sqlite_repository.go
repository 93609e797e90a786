package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/sandeepkv93/pickupd/internal/model"
)

const sqliteTimeLayout = time.RFC3339Nano

const (
	// DriverCGO is github.com/mattn/go-sqlite3.
	DriverCGO = "sqlite3"
	// DriverPure is modernc.org/sqlite, for builds without cgo.
	DriverPure = "sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) (*SQLiteRepository, error) {
	if db == nil {
		return nil, errors.New("storage: nil db")
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

// OpenSQLite opens the database file with the given driver, creating parent
// directories, and applies the embedded migrations.
func OpenSQLite(driver, path string) (*SQLiteRepository, error) {
	switch driver {
	case "":
		driver = DriverCGO
	case DriverCGO, DriverPure:
	default:
		return nil, fmt.Errorf("storage: unsupported driver %q", driver)
	}
	if path == "" {
		return nil, errors.New("storage: db path is empty")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Both processes share the file; one connection per process keeps
	// the pragmas below in effect for every statement.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := MigrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	repo, err := NewSQLiteRepository(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) ListReminders(ctx context.Context) ([]model.Reminder, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_number, section, created_at
		FROM reminders ORDER BY position ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Reminder, 0)
	for rows.Next() {
		item, scanErr := scanReminder(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ListCompleted(ctx context.Context) ([]model.CompletedOrder, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_number, section, completed_at
		FROM completed ORDER BY position ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.CompletedOrder, 0)
	for rows.Next() {
		item, scanErr := scanCompleted(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// InsertReminder appends in after the existing reminders. Inserting an id
// that is already stored is a no-op, so a retried write cannot duplicate it.
func (r *SQLiteRepository) InsertReminder(ctx context.Context, in model.Reminder) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO reminders (id, position, order_number, section, created_at)
		SELECT ?, COALESCE(MAX(position), -1) + 1, ?, ?, ? FROM reminders`,
		in.ID, in.OrderNumber, string(in.Section), mustTime(in.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert reminder %s: %w", in.ID, err)
	}
	return nil
}

// CompleteReminder deletes the reminder and records done at the front of
// the completed list, keeping at most limit entries. ErrNotFound means the
// reminder was already completed or removed and nothing was written.
func (r *SQLiteRepository) CompleteReminder(ctx context.Context, done model.CompletedOrder, limit int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, done.ID)
	if err != nil {
		return fmt.Errorf("delete reminder %s: %w", done.ID, err)
	}
	if err := checkRowsAffected(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO completed (id, position, order_number, section, completed_at)
		SELECT ?, COALESCE(MIN(position), 0) - 1, ?, ?, ? FROM completed`,
		done.ID, done.OrderNumber, string(done.Section), mustTime(done.CompletedAt),
	); err != nil {
		return fmt.Errorf("insert completed %s: %w", done.ID, err)
	}
	if limit > 0 {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM completed WHERE id NOT IN (
				SELECT id FROM completed ORDER BY position ASC LIMIT ?)`, limit,
		); err != nil {
			return fmt.Errorf("trim completed: %w", err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRepository) DeleteReminder(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete reminder %s: %w", id, err)
	}
	return checkRowsAffected(res)
}

func (r *SQLiteRepository) ListLedgerEntries(ctx context.Context) ([]LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT reminder_id, first_triggered_at, last_triggered_at, cycle_count
		FROM ledger_entries ORDER BY first_triggered_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]LedgerEntry, 0)
	for rows.Next() {
		item, scanErr := scanLedgerEntry(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpsertLedgerEntry(ctx context.Context, in LedgerEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (reminder_id, first_triggered_at, last_triggered_at, cycle_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(reminder_id) DO UPDATE SET
			last_triggered_at = excluded.last_triggered_at,
			cycle_count = excluded.cycle_count`,
		in.ReminderID, mustTime(in.FirstTriggeredAt), mustTime(in.LastTriggeredAt), in.CycleCount,
	)
	return err
}

func (r *SQLiteRepository) DeleteLedgerEntry(ctx context.Context, reminderID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM ledger_entries WHERE reminder_id = ?`, reminderID)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

// ClaimLedgerEntry decides and records a firing of reminderID at now in one
// write transaction. It fires when no entry exists, or when repeat is
// positive and the stored last firing is at least repeat old. Processes
// sharing the file serialize on the write lock, so one cycle is claimed once.
// The stored entry is returned either way.
func (r *SQLiteRepository) ClaimLedgerEntry(ctx context.Context, reminderID string, now time.Time, repeat time.Duration) (LedgerEntry, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return LedgerEntry{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// A write as the first statement takes the lock before the read below.
	if _, err := tx.ExecContext(ctx, `UPDATE schema_meta SET value = value WHERE key = 'version'`); err != nil {
		return LedgerEntry{}, false, fmt.Errorf("lock ledger: %w", err)
	}

	entry, err := scanLedgerEntry(tx.QueryRowContext(ctx, `
		SELECT reminder_id, first_triggered_at, last_triggered_at, cycle_count
		FROM ledger_entries WHERE reminder_id = ?`, reminderID))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		entry = LedgerEntry{ReminderID: reminderID, FirstTriggeredAt: now, LastTriggeredAt: now, CycleCount: 1}
	case err != nil:
		return LedgerEntry{}, false, fmt.Errorf("read ledger entry %s: %w", reminderID, err)
	case repeat > 0 && now.Sub(entry.LastTriggeredAt) >= repeat:
		entry.LastTriggeredAt = now
		entry.CycleCount++
	default:
		return entry, false, nil
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (reminder_id, first_triggered_at, last_triggered_at, cycle_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(reminder_id) DO UPDATE SET
			last_triggered_at = excluded.last_triggered_at,
			cycle_count = excluded.cycle_count`,
		entry.ReminderID, mustTime(entry.FirstTriggeredAt), mustTime(entry.LastTriggeredAt), entry.CycleCount,
	); err != nil {
		return LedgerEntry{}, false, fmt.Errorf("write ledger entry %s: %w", reminderID, err)
	}
	if err := tx.Commit(); err != nil {
		return LedgerEntry{}, false, fmt.Errorf("commit ledger entry %s: %w", reminderID, err)
	}
	return entry, true, nil
}

func (r *SQLiteRepository) SchemaVersion(ctx context.Context) (int, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM schema_meta WHERE key = 'version'`).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse schema version %q: %w", raw, err)
	}
	return v, nil
}

func mustTime(v time.Time) string {
	return v.UTC().Format(sqliteTimeLayout)
}

func parseRequiredTime(v string) (time.Time, error) {
	return time.Parse(sqliteTimeLayout, v)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReminder(s scanner) (model.Reminder, error) {
	var out model.Reminder
	var section string
	var created string
	if err := s.Scan(&out.ID, &out.OrderNumber, &section, &created); err != nil {
		return model.Reminder{}, err
	}
	createdAt, err := parseRequiredTime(created)
	if err != nil {
		return model.Reminder{}, err
	}
	out.Section = model.Section(section)
	out.CreatedAt = createdAt
	return out, nil
}

func scanCompleted(s scanner) (model.CompletedOrder, error) {
	var out model.CompletedOrder
	var section string
	var completed string
	if err := s.Scan(&out.ID, &out.OrderNumber, &section, &completed); err != nil {
		return model.CompletedOrder{}, err
	}
	completedAt, err := parseRequiredTime(completed)
	if err != nil {
		return model.CompletedOrder{}, err
	}
	out.Section = model.Section(section)
	out.CompletedAt = completedAt
	return out, nil
}

func scanLedgerEntry(s scanner) (LedgerEntry, error) {
	var out LedgerEntry
	var first string
	var last string
	if err := s.Scan(&out.ReminderID, &first, &last, &out.CycleCount); err != nil {
		return LedgerEntry{}, err
	}
	firstAt, err := parseRequiredTime(first)
	if err != nil {
		return LedgerEntry{}, err
	}
	lastAt, err := parseRequiredTime(last)
	if err != nil {
		return LedgerEntry{}, err
	}
	out.FirstTriggeredAt = firstAt
	out.LastTriggeredAt = lastAt
	return out, nil
}

func checkRowsAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
