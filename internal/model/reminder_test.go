package model

import (
	"errors"
	"testing"
	"time"
)

func TestReminderValidateSuccess(t *testing.T) {
	rem := Reminder{
		ID:          "rem-1",
		OrderNumber: "1042",
		Section:     SectionFromage,
		CreatedAt:   time.Date(2026, 2, 9, 13, 0, 0, 0, time.UTC),
	}
	if err := rem.Validate(); err != nil {
		t.Fatalf("expected valid reminder, got error: %v", err)
	}
}

func TestReminderValidateMissingOrderNumber(t *testing.T) {
	rem := Reminder{
		ID:        "rem-1",
		Section:   SectionFromage,
		CreatedAt: time.Date(2026, 2, 9, 13, 0, 0, 0, time.UTC),
	}
	err := rem.Validate()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, ErrInvalidReminder) {
		t.Fatalf("expected ErrInvalidReminder, got: %v", err)
	}
}

func TestReminderAgeNeverNegative(t *testing.T) {
	created := time.Date(2026, 2, 9, 13, 0, 0, 0, time.UTC)
	rem := Reminder{CreatedAt: created}
	if got := rem.Age(created.Add(-time.Minute)); got != 0 {
		t.Fatalf("expected zero age for clock skew, got %s", got)
	}
	if got := rem.Age(created.Add(90 * time.Second)); got != 90*time.Second {
		t.Fatalf("unexpected age: %s", got)
	}
}

func TestSectionCanonical(t *testing.T) {
	if got := Section("  fromage ").Canonical(); got != SectionFromage {
		t.Fatalf("expected %q, got %q", SectionFromage, got)
	}
	if !Section("VOLAILLE").IsKnown() {
		t.Fatal("expected case-insensitive match for known section")
	}
	if Section("Poissonnerie").IsKnown() {
		t.Fatal("expected free-form section to be unknown")
	}
	if got := Section(" Poissonnerie ").Canonical(); got != "Poissonnerie" {
		t.Fatalf("expected trimmed free-form section, got %q", got)
	}
}

func TestPrependCompletedCapsAndOrders(t *testing.T) {
	var list []CompletedOrder
	for i := 0; i < 11; i++ {
		list = PrependCompleted(list, CompletedOrder{ID: string(rune('a' + i))}, 10)
	}
	if len(list) != 10 {
		t.Fatalf("expected 10 entries, got %d", len(list))
	}
	if list[0].ID != "k" {
		t.Fatalf("expected most recent first, got %q", list[0].ID)
	}
	if list[9].ID != "b" {
		t.Fatalf("expected oldest entry evicted, last=%q", list[9].ID)
	}
}

func TestCompleteReminderCopiesFields(t *testing.T) {
	at := time.Date(2026, 2, 9, 14, 5, 6, 0, time.UTC)
	c := CompleteReminder(Reminder{ID: "rem-1", OrderNumber: "77", Section: SectionVolaille}, at)
	if c.ID != "rem-1" || c.OrderNumber != "77" || c.Section != SectionVolaille {
		t.Fatalf("unexpected completed order: %#v", c)
	}
	if got := c.CompletedClock(time.UTC); got != "14:05:06" {
		t.Fatalf("unexpected clock rendering: %q", got)
	}
}
