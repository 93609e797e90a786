package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sandeepkv93/pickupd/internal/model"
)

func setupRepo(t *testing.T, driver string) *SQLiteRepository {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "nested", "pickupd-test.db")
	repo, err := OpenSQLite(driver, dbPath)
	if err != nil {
		t.Fatalf("open sqlite (%s): %v", driver, err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func parseRFC3339(t *testing.T, value string) time.Time {
	t.Helper()
	out, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse time: %v", err)
	}
	return out
}

func TestRowWritesKeepOrder(t *testing.T) {
	for _, driver := range []string{DriverCGO, DriverPure} {
		t.Run(driver, func(t *testing.T) {
			repo := setupRepo(t, driver)
			ctx := context.Background()
			created := parseRFC3339(t, "2026-02-09T12:00:00Z")

			for _, r := range []model.Reminder{
				{ID: "rem-b", OrderNumber: "2", Section: model.SectionVolaille, CreatedAt: created.Add(time.Minute)},
				{ID: "rem-a", OrderNumber: "1", Section: model.SectionBoucherie, CreatedAt: created},
				{ID: "rem-c", OrderNumber: "3", Section: model.SectionFromage, CreatedAt: created},
			} {
				if err := repo.InsertReminder(ctx, r); err != nil {
					t.Fatalf("insert %s: %v", r.ID, err)
				}
			}
			if err := repo.InsertReminder(ctx, model.Reminder{ID: "rem-b", OrderNumber: "2", Section: model.SectionVolaille, CreatedAt: created}); err != nil {
				t.Fatalf("repeat insert: %v", err)
			}

			reminders, err := repo.ListReminders(ctx)
			if err != nil {
				t.Fatalf("list reminders: %v", err)
			}
			if len(reminders) != 3 || reminders[0].ID != "rem-b" || reminders[1].ID != "rem-a" || reminders[2].ID != "rem-c" {
				t.Fatalf("expected insertion order preserved, got %#v", reminders)
			}
			if !reminders[1].CreatedAt.Equal(created) {
				t.Fatalf("unexpected created_at: %s", reminders[1].CreatedAt)
			}

			if err := repo.CompleteReminder(ctx, model.CompletedOrder{ID: "rem-a", OrderNumber: "1", Section: "Poissonnerie", CompletedAt: created.Add(time.Hour)}, 2); err != nil {
				t.Fatalf("complete rem-a: %v", err)
			}
			if err := repo.CompleteReminder(ctx, model.CompletedOrder{ID: "rem-b", OrderNumber: "2", Section: model.SectionVolaille, CompletedAt: created.Add(2 * time.Hour)}, 2); err != nil {
				t.Fatalf("complete rem-b: %v", err)
			}
			if err := repo.CompleteReminder(ctx, model.CompletedOrder{ID: "rem-a", CompletedAt: created}, 2); err != ErrNotFound {
				t.Fatalf("expected ErrNotFound completing twice, got: %v", err)
			}

			completed, err := repo.ListCompleted(ctx)
			if err != nil {
				t.Fatalf("list completed: %v", err)
			}
			if len(completed) != 2 || completed[0].ID != "rem-b" || completed[1].Section != "Poissonnerie" {
				t.Fatalf("unexpected completed list: %#v", completed)
			}

			if err := repo.CompleteReminder(ctx, model.CompletedOrder{ID: "rem-c", OrderNumber: "3", Section: model.SectionFromage, CompletedAt: created.Add(3 * time.Hour)}, 2); err != nil {
				t.Fatalf("complete rem-c: %v", err)
			}
			completed, err = repo.ListCompleted(ctx)
			if err != nil {
				t.Fatalf("list completed after trim: %v", err)
			}
			if len(completed) != 2 || completed[0].ID != "rem-c" || completed[1].ID != "rem-b" {
				t.Fatalf("expected oldest completion trimmed, got %#v", completed)
			}

			reminders, err = repo.ListReminders(ctx)
			if err != nil {
				t.Fatalf("list reminders after completes: %v", err)
			}
			if len(reminders) != 0 {
				t.Fatalf("expected reminders moved out, got %#v", reminders)
			}
		})
	}
}

func TestDeleteReminderTouchesOnlyThatRow(t *testing.T) {
	repo := setupRepo(t, DriverCGO)
	ctx := context.Background()
	created := parseRFC3339(t, "2026-02-09T12:00:00Z")

	for _, id := range []string{"rem-1", "rem-2"} {
		if err := repo.InsertReminder(ctx, model.Reminder{ID: id, OrderNumber: id, Section: model.SectionBoucherie, CreatedAt: created}); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}
	if err := repo.DeleteReminder(ctx, "rem-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.DeleteReminder(ctx, "rem-1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound on second delete, got: %v", err)
	}
	reminders, err := repo.ListReminders(ctx)
	if err != nil {
		t.Fatalf("list reminders: %v", err)
	}
	if len(reminders) != 1 || reminders[0].ID != "rem-2" {
		t.Fatalf("unexpected reminders: %#v", reminders)
	}
}

func TestClaimLedgerEntryFiresOncePerCycle(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "claim.db")
	first, err := OpenSQLite(DriverCGO, dbPath)
	if err != nil {
		t.Fatalf("open first: %v", err)
	}
	t.Cleanup(func() { _ = first.Close() })
	second, err := OpenSQLite(DriverCGO, dbPath)
	if err != nil {
		t.Fatalf("open second: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })

	ctx := context.Background()
	at := parseRFC3339(t, "2026-02-09T12:20:00Z")
	repeat := 10 * time.Minute

	entry, fired, err := first.ClaimLedgerEntry(ctx, "rem-1", at, repeat)
	if err != nil || !fired || entry.CycleCount != 1 {
		t.Fatalf("first claim: entry=%#v fired=%v err=%v", entry, fired, err)
	}
	entry, fired, err = second.ClaimLedgerEntry(ctx, "rem-1", at.Add(30*time.Second), repeat)
	if err != nil || fired {
		t.Fatalf("second connection should not claim the same cycle: fired=%v err=%v", fired, err)
	}
	if entry.CycleCount != 1 || !entry.LastTriggeredAt.Equal(at) {
		t.Fatalf("expected stored entry returned, got %#v", entry)
	}

	entry, fired, err = second.ClaimLedgerEntry(ctx, "rem-1", at.Add(repeat), repeat)
	if err != nil || !fired || entry.CycleCount != 2 || !entry.FirstTriggeredAt.Equal(at) {
		t.Fatalf("repeat claim: entry=%#v fired=%v err=%v", entry, fired, err)
	}
	if _, fired, err := first.ClaimLedgerEntry(ctx, "rem-1", at.Add(repeat+time.Second), repeat); err != nil || fired {
		t.Fatalf("first connection should see the repeat already claimed: fired=%v err=%v", fired, err)
	}
	if _, fired, err := first.ClaimLedgerEntry(ctx, "rem-2", at, 0); err != nil || !fired {
		t.Fatalf("one-shot claim: fired=%v err=%v", fired, err)
	}
	if _, fired, err := first.ClaimLedgerEntry(ctx, "rem-2", at.Add(time.Hour), 0); err != nil || fired {
		t.Fatalf("one-shot should not fire again: fired=%v err=%v", fired, err)
	}
}

func TestLedgerEntryUpsertAndDelete(t *testing.T) {
	repo := setupRepo(t, DriverCGO)
	ctx := context.Background()
	first := parseRFC3339(t, "2026-02-09T12:01:01Z")

	entry := LedgerEntry{ReminderID: "rem-1", FirstTriggeredAt: first, LastTriggeredAt: first, CycleCount: 1}
	if err := repo.UpsertLedgerEntry(ctx, entry); err != nil {
		t.Fatalf("insert ledger entry: %v", err)
	}
	entry.LastTriggeredAt = first.Add(10 * time.Minute)
	entry.CycleCount = 2
	if err := repo.UpsertLedgerEntry(ctx, entry); err != nil {
		t.Fatalf("update ledger entry: %v", err)
	}

	list, err := repo.ListLedgerEntries(ctx)
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	if len(list) != 1 || list[0].CycleCount != 2 || !list[0].FirstTriggeredAt.Equal(first) {
		t.Fatalf("unexpected ledger list: %#v", list)
	}

	if err := repo.DeleteLedgerEntry(ctx, "rem-1"); err != nil {
		t.Fatalf("delete ledger entry: %v", err)
	}
	if err := repo.DeleteLedgerEntry(ctx, "rem-1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound on second delete, got: %v", err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := OpenSQLite("postgres", filepath.Join(t.TempDir(), "x.db")); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
