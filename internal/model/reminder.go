package model

import (
	"errors"
	"strings"
	"time"
)

var ErrInvalidReminder = errors.New("model: invalid reminder")

type Section string

const (
	SectionBoucherie   Section = "Boucherie"
	SectionVolaille    Section = "Volaille"
	SectionFromage     Section = "Fromage"
	SectionBoulangerie Section = "Boulangerie"
)

// KnownSections lists the counters offered by the form, in display order.
func KnownSections() []Section {
	return []Section{SectionBoucherie, SectionVolaille, SectionFromage, SectionBoulangerie}
}

// IsKnown reports whether s is one of the fixed counters. Free-form sections
// are still valid reminders, they just get no dedicated styling.
func (s Section) IsKnown() bool {
	switch s.Canonical() {
	case SectionBoucherie, SectionVolaille, SectionFromage, SectionBoulangerie:
		return true
	default:
		return false
	}
}

// Canonical maps case variants of a known section onto its constant and trims
// anything else.
func (s Section) Canonical() Section {
	trimmed := strings.TrimSpace(string(s))
	for _, known := range []Section{SectionBoucherie, SectionVolaille, SectionFromage, SectionBoulangerie} {
		if strings.EqualFold(trimmed, string(known)) {
			return known
		}
	}
	return Section(trimmed)
}

type Reminder struct {
	ID          string    `json:"id"`
	OrderNumber string    `json:"orderNumber"`
	Section     Section   `json:"section"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Age is the time elapsed since creation, never negative.
func (r Reminder) Age(now time.Time) time.Duration {
	age := now.Sub(r.CreatedAt)
	if age < 0 {
		return 0
	}
	return age
}

func (r Reminder) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.Join(ErrInvalidReminder, errors.New("id is required"))
	}
	if strings.TrimSpace(r.OrderNumber) == "" {
		return errors.Join(ErrInvalidReminder, errors.New("order number is required"))
	}
	if strings.TrimSpace(string(r.Section)) == "" {
		return errors.Join(ErrInvalidReminder, errors.New("section is required"))
	}
	if r.CreatedAt.IsZero() {
		return errors.Join(ErrInvalidReminder, errors.New("created_at is required"))
	}
	return nil
}

type CompletedOrder struct {
	ID          string    `json:"id"`
	OrderNumber string    `json:"orderNumber"`
	Section     Section   `json:"section"`
	CompletedAt time.Time `json:"completedAt"`
}

// CompleteReminder turns a live reminder into its completed record.
func CompleteReminder(r Reminder, at time.Time) CompletedOrder {
	return CompletedOrder{
		ID:          r.ID,
		OrderNumber: r.OrderNumber,
		Section:     r.Section,
		CompletedAt: at.UTC(),
	}
}

// PrependCompleted puts c at the front of list and trims the result to limit
// entries, evicting the oldest. A non-positive limit keeps everything.
func PrependCompleted(list []CompletedOrder, c CompletedOrder, limit int) []CompletedOrder {
	out := make([]CompletedOrder, 0, len(list)+1)
	out = append(out, c)
	out = append(out, list...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// CompletedClock renders the completion time the way the pickup list shows it.
func (c CompletedOrder) CompletedClock(loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return c.CompletedAt.In(loc).Format("15:04:05")
}
