// Package trigger turns due reminders into notification intents.
package trigger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sandeepkv93/pickupd/internal/ledger"
	"github.com/sandeepkv93/pickupd/internal/model"
)

const Title = "Order Pickup Reminder"

// Deduper is the ledger contract the evaluator consults.
type Deduper interface {
	ShouldTrigger(ctx context.Context, r model.Reminder, now time.Time) ledger.Decision
}

// Intent is a notification the platform should show. DedupTag doubles as the
// platform stacking tag so a duplicate display replaces the previous one.
type Intent struct {
	ReminderID  string
	OrderNumber string
	Section     model.Section
	Title       string
	Body        string
	IconHint    string
	DedupTag    string
	Cycle       int
}

// Evaluate asks the ledger about every live reminder and returns one intent
// per reminder that fires now, in snapshot order.
func Evaluate(ctx context.Context, reminders []model.Reminder, now time.Time, d Deduper) []Intent {
	out := make([]Intent, 0)
	for _, r := range reminders {
		decision := d.ShouldTrigger(ctx, r, now)
		if !decision.Fire {
			continue
		}
		out = append(out, NewIntent(r, decision.Cycle))
	}
	return out
}

func NewIntent(r model.Reminder, cycle int) Intent {
	return Intent{
		ReminderID:  r.ID,
		OrderNumber: r.OrderNumber,
		Section:     r.Section,
		Title:       Title,
		Body:        Body(r, cycle),
		IconHint:    IconHint(r.Section),
		DedupTag:    r.ID,
		Cycle:       cycle,
	}
}

func Body(r model.Reminder, cycle int) string {
	body := fmt.Sprintf("Order #%s in %s needs pickup!", r.OrderNumber, r.Section)
	if cycle > 1 {
		body += fmt.Sprintf(" (reminder %d)", cycle)
	}
	return body
}

func IconHint(section model.Section) string {
	if !section.IsKnown() {
		return "default"
	}
	return strings.ToLower(string(section.Canonical()))
}
