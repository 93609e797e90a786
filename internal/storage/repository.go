package storage

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/pickupd/internal/model"
)

var ErrNotFound = errors.New("storage: not found")

// SchemaVersion is the layout the embedded migrations produce.
const SchemaVersion = 1

type LedgerEntry struct {
	ReminderID       string
	FirstTriggeredAt time.Time
	LastTriggeredAt  time.Time
	CycleCount       int
}

type Repository interface {
	ListReminders(ctx context.Context) ([]model.Reminder, error)
	ListCompleted(ctx context.Context) ([]model.CompletedOrder, error)
	// Writes touch only the rows they name, so several processes can
	// mutate the same file without overwriting each other.
	InsertReminder(ctx context.Context, in model.Reminder) error
	CompleteReminder(ctx context.Context, done model.CompletedOrder, limit int) error
	DeleteReminder(ctx context.Context, id string) error

	ListLedgerEntries(ctx context.Context) ([]LedgerEntry, error)
	UpsertLedgerEntry(ctx context.Context, in LedgerEntry) error
	DeleteLedgerEntry(ctx context.Context, reminderID string) error
	ClaimLedgerEntry(ctx context.Context, reminderID string, now time.Time, repeat time.Duration) (LedgerEntry, bool, error)

	SchemaVersion(ctx context.Context) (int, error)
}
