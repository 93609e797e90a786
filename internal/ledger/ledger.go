// Package ledger records which reminders have already produced a
// notification and in which repeat cycle, so that wake-ups never re-alert
// inside one repeat window.
package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sandeepkv93/pickupd/internal/model"
	"github.com/sandeepkv93/pickupd/internal/storage"
)

type Policy struct {
	// Grace is how long a reminder stays quiet after creation.
	Grace time.Duration
	// Repeat is the minimum spacing between two notifications for the same
	// reminder. Zero means notify once.
	Repeat time.Duration
}

func DefaultPolicy() Policy {
	return Policy{Grace: 15 * time.Minute, Repeat: 10 * time.Minute}
}

type Entry struct {
	ReminderID       string
	FirstTriggeredAt time.Time
	LastTriggeredAt  time.Time
	CycleCount       int
}

type Decision struct {
	Fire  bool
	Cycle int
}

// Persister is the subset of storage.Repository the ledger writes through to.
type Persister interface {
	ListLedgerEntries(ctx context.Context) ([]storage.LedgerEntry, error)
	UpsertLedgerEntry(ctx context.Context, in storage.LedgerEntry) error
	DeleteLedgerEntry(ctx context.Context, reminderID string) error
}

// Claimer is implemented by persisters that can decide a firing atomically
// against the stored entry. When several processes share one database the
// claim is what keeps a cycle from being notified twice.
type Claimer interface {
	ClaimLedgerEntry(ctx context.Context, reminderID string, now time.Time, repeat time.Duration) (storage.LedgerEntry, bool, error)
}

type Option func(*Ledger)

func WithPersister(p Persister) Option {
	return func(l *Ledger) {
		l.persist = p
		l.claim, _ = p.(Claimer)
	}
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

type Ledger struct {
	mu      sync.Mutex
	policy  Policy
	entries map[string]Entry
	persist Persister
	claim   Claimer
	logger  *zap.SugaredLogger
}

func New(policy Policy, opts ...Option) *Ledger {
	l := &Ledger{
		policy:  policy,
		entries: make(map[string]Entry),
		logger:  zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) Policy() Policy {
	return l.policy
}

// Load replaces the in-memory entries with the persisted ones.
func (l *Ledger) Load(ctx context.Context) error {
	if l.persist == nil {
		return nil
	}
	rows, err := l.persist.ListLedgerEntries(ctx)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]Entry, len(rows))
	for _, row := range rows {
		l.entries[row.ReminderID] = fromStorage(row)
	}
	return nil
}

// ShouldTrigger decides whether r fires at now and records the firing. With a
// Claimer the stored entry has the last word, since another process may have
// fired r after this ledger was loaded.
func (l *Ledger) ShouldTrigger(ctx context.Context, r model.Reminder, now time.Time) Decision {
	if r.Age(now) < l.policy.Grace {
		return Decision{}
	}

	l.mu.Lock()
	entry, ok := l.entries[r.ID]
	switch {
	case !ok:
		entry = Entry{ReminderID: r.ID, FirstTriggeredAt: now, LastTriggeredAt: now, CycleCount: 1}
	case l.policy.Repeat > 0 && now.Sub(entry.LastTriggeredAt) >= l.policy.Repeat:
		entry.LastTriggeredAt = now
		entry.CycleCount++
	default:
		l.mu.Unlock()
		return Decision{Cycle: entry.CycleCount}
	}
	if l.claim == nil {
		l.entries[r.ID] = entry
		l.mu.Unlock()
		l.write(ctx, entry)
		return Decision{Fire: true, Cycle: entry.CycleCount}
	}
	l.mu.Unlock()

	stored, fired, err := l.claim.ClaimLedgerEntry(ctx, r.ID, now, l.policy.Repeat)
	if err != nil {
		l.logger.Warnw("ledger claim failed, deciding from memory", "reminder_id", r.ID, "error", err)
		l.mu.Lock()
		l.entries[r.ID] = entry
		l.mu.Unlock()
		return Decision{Fire: true, Cycle: entry.CycleCount}
	}
	entry = fromStorage(stored)
	l.mu.Lock()
	l.entries[r.ID] = entry
	l.mu.Unlock()
	return Decision{Fire: fired, Cycle: entry.CycleCount}
}

// Purge drops the entry for id. Unknown ids are not an error; the return
// value only reports whether something was removed.
func (l *Ledger) Purge(ctx context.Context, id string) bool {
	l.mu.Lock()
	_, ok := l.entries[id]
	delete(l.entries, id)
	l.mu.Unlock()

	if l.persist != nil {
		err := l.persist.DeleteLedgerEntry(ctx, id)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			l.logger.Warnw("ledger purge not persisted", "reminder_id", id, "error", err)
		}
	}
	return ok
}

// Reconcile purges every entry whose reminder is not in live and returns the
// purged ids, sorted.
func (l *Ledger) Reconcile(ctx context.Context, live []string) []string {
	keep := make(map[string]struct{}, len(live))
	for _, id := range live {
		keep[id] = struct{}{}
	}

	l.mu.Lock()
	orphans := make([]string, 0)
	for id := range l.entries {
		if _, ok := keep[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	l.mu.Unlock()

	sort.Strings(orphans)
	for _, id := range orphans {
		l.Purge(ctx, id)
	}
	return orphans
}

func (l *Ledger) Entry(id string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[id]
	return entry, ok
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// NextDue is the earliest time r can fire again. The zero time means never.
func (l *Ledger) NextDue(r model.Reminder) time.Time {
	l.mu.Lock()
	entry, ok := l.entries[r.ID]
	l.mu.Unlock()
	if !ok {
		return r.CreatedAt.Add(l.policy.Grace)
	}
	if l.policy.Repeat <= 0 {
		return time.Time{}
	}
	return entry.LastTriggeredAt.Add(l.policy.Repeat)
}

func (l *Ledger) write(ctx context.Context, entry Entry) {
	if l.persist == nil {
		return
	}
	err := l.persist.UpsertLedgerEntry(ctx, storage.LedgerEntry{
		ReminderID:       entry.ReminderID,
		FirstTriggeredAt: entry.FirstTriggeredAt,
		LastTriggeredAt:  entry.LastTriggeredAt,
		CycleCount:       entry.CycleCount,
	})
	if err != nil {
		l.logger.Warnw("ledger entry not persisted", "reminder_id", entry.ReminderID, "cycle", entry.CycleCount, "error", err)
	}
}

func fromStorage(row storage.LedgerEntry) Entry {
	return Entry{
		ReminderID:       row.ReminderID,
		FirstTriggeredAt: row.FirstTriggeredAt,
		LastTriggeredAt:  row.LastTriggeredAt,
		CycleCount:       row.CycleCount,
	}
}
