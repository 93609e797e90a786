package trigger

import (
	"context"
	"testing"
	"time"

	"github.com/sandeepkv93/pickupd/internal/ledger"
	"github.com/sandeepkv93/pickupd/internal/model"
)

func TestEvaluateProducesIntentsForDueReminders(t *testing.T) {
	created := time.Date(2026, 2, 9, 12, 0, 0, 0, time.UTC)
	l := ledger.New(ledger.Policy{Grace: time.Minute, Repeat: 10 * time.Minute})
	reminders := []model.Reminder{
		{ID: "old", OrderNumber: "101", Section: model.SectionBoucherie, CreatedAt: created},
		{ID: "fresh", OrderNumber: "102", Section: model.SectionFromage, CreatedAt: created.Add(50 * time.Second)},
	}

	intents := Evaluate(context.Background(), reminders, created.Add(61*time.Second), l)
	if len(intents) != 1 {
		t.Fatalf("expected one intent, got %d", len(intents))
	}
	got := intents[0]
	if got.ReminderID != "old" || got.DedupTag != "old" || got.Cycle != 1 {
		t.Fatalf("unexpected intent: %+v", got)
	}
	if got.Title != Title || got.Body != "Order #101 in Boucherie needs pickup!" {
		t.Fatalf("unexpected content: %q / %q", got.Title, got.Body)
	}
	if got.IconHint != "boucherie" {
		t.Fatalf("unexpected icon hint: %q", got.IconHint)
	}

	again := Evaluate(context.Background(), reminders, created.Add(62*time.Second), l)
	for _, intent := range again {
		if intent.ReminderID == "old" {
			t.Fatal("expected ledger to suppress a second intent in the same window")
		}
	}
}

func TestBodyMentionsRepeatCycle(t *testing.T) {
	r := model.Reminder{OrderNumber: "7", Section: model.SectionVolaille}
	if got := Body(r, 3); got != "Order #7 in Volaille needs pickup! (reminder 3)" {
		t.Fatalf("unexpected body: %q", got)
	}
}

func TestIconHintFallsBackForFreeFormSection(t *testing.T) {
	if got := IconHint("Poissonnerie"); got != "default" {
		t.Fatalf("expected default icon, got %q", got)
	}
	if got := IconHint("boulangerie"); got != "boulangerie" {
		t.Fatalf("expected boulangerie icon, got %q", got)
	}
}
