// Package reminders is the foreground's Reminder Store: the only writer of
// the live reminder set and the completed list.
package reminders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/zap"

	"github.com/sandeepkv93/pickupd/internal/model"
	"github.com/sandeepkv93/pickupd/internal/storage"
)

var (
	ErrNotFound    = errors.New("reminders: not found")
	ErrAmbiguous   = errors.New("reminders: reference matches more than one reminder")
	ErrPersistence = errors.New("reminders: persistence failure")
)

const DefaultCompletedLimit = 10

// CleanupSignaler tells the background context to drop ledger state for a
// reminder that no longer exists.
type CleanupSignaler interface {
	Cleanup(ctx context.Context, reminderID string) error
}

type Options struct {
	CompletedLimit int
	RetryAttempts  int
	RetryBackoff   time.Duration
	Cleanup        CleanupSignaler
	Logger         *zap.SugaredLogger
	Clock          func() time.Time
	NewID          func() string
	Sleep          func(ctx context.Context, d time.Duration) error
}

type Store struct {
	mu        sync.Mutex
	repo      storage.Repository
	reminders *orderedmap.OrderedMap[string, model.Reminder]
	completed []model.CompletedOrder
	journal   []write

	cleanupMu sync.Mutex
	cleanup   CleanupSignaler
	pending   mapset.Set[string]

	limit    int
	attempts int
	backoff  time.Duration
	logger   *zap.SugaredLogger
	clock    func() time.Time
	newID    func() string
	sleep    func(ctx context.Context, d time.Duration) error
}

// Open builds a store over repo and loads the persisted state.
func Open(ctx context.Context, repo storage.Repository, opts Options) (*Store, error) {
	if repo == nil {
		return nil, errors.New("reminders: nil repository")
	}
	s := &Store{
		repo:      repo,
		reminders: orderedmap.New[string, model.Reminder](),
		cleanup:   opts.Cleanup,
		pending:   mapset.NewSet[string](),
		limit:     opts.CompletedLimit,
		attempts:  opts.RetryAttempts,
		backoff:   opts.RetryBackoff,
		logger:    opts.Logger,
		clock:     opts.Clock,
		newID:     opts.NewID,
		sleep:     opts.Sleep,
	}
	if s.limit <= 0 {
		s.limit = DefaultCompletedLimit
	}
	if s.attempts <= 0 {
		s.attempts = 1
	}
	if s.logger == nil {
		s.logger = zap.NewNop().Sugar()
	}
	if s.clock == nil {
		s.clock = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.sleep == nil {
		s.sleep = sleepContext
	}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// SetCleanupSignaler swaps the cleanup target, e.g. once the bridge connects.
func (s *Store) SetCleanupSignaler(c CleanupSignaler) {
	s.cleanupMu.Lock()
	defer s.cleanupMu.Unlock()
	s.cleanup = c
}

// write is one row-level mutation that has not reached the repository yet.
type write struct {
	kind  string
	id    string
	apply func(ctx context.Context, repo storage.Repository) error
}

// Reload replaces the in-memory view with the persisted one. Mutations that
// failed to persist are written first; if they still fail the in-memory view
// is kept and ErrPersistence is returned.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.journal) > 0 {
		_, err := s.persistLocked(ctx)
		return err
	}
	return s.loadLocked(ctx)
}

func (s *Store) loadLocked(ctx context.Context) error {
	items, err := s.repo.ListReminders(ctx)
	if err != nil {
		return fmt.Errorf("load reminders: %w", err)
	}
	completed, err := s.repo.ListCompleted(ctx)
	if err != nil {
		return fmt.Errorf("load completed: %w", err)
	}
	s.reminders = orderedmap.New[string, model.Reminder]()
	for _, item := range items {
		s.reminders.Set(item.ID, item)
	}
	if len(completed) > s.limit {
		completed = completed[:s.limit]
	}
	s.completed = completed
	return nil
}

func (s *Store) List(_ context.Context) []model.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked()
}

func (s *Store) Completed(_ context.Context) []model.CompletedOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.CompletedOrder, len(s.completed))
	copy(out, s.completed)
	return out
}

func (s *Store) CompletedLimit() int {
	return s.limit
}

func (s *Store) Get(id string) (model.Reminder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reminders.Get(id)
}

// Resolve finds a live reminder by exact id, then by order number, then by
// unique id prefix.
func (s *Store) Resolve(ref string) (model.Reminder, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return model.Reminder{}, ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.reminders.Get(ref); ok {
		return r, nil
	}
	var byOrder, byPrefix []model.Reminder
	for pair := s.reminders.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.OrderNumber == ref {
			byOrder = append(byOrder, pair.Value)
		}
		if strings.HasPrefix(pair.Key, ref) {
			byPrefix = append(byPrefix, pair.Value)
		}
	}
	for _, matches := range [][]model.Reminder{byOrder, byPrefix} {
		switch len(matches) {
		case 0:
			continue
		case 1:
			return matches[0], nil
		default:
			return model.Reminder{}, fmt.Errorf("%w: %q", ErrAmbiguous, ref)
		}
	}
	return model.Reminder{}, fmt.Errorf("%w: %q", ErrNotFound, ref)
}

// Add creates a reminder. A persistence error is returned alongside a valid
// reminder: the mutation is kept in memory and retried on the next write.
func (s *Store) Add(ctx context.Context, orderNumber string, section model.Section) (model.Reminder, error) {
	r := model.Reminder{
		ID:          s.newID(),
		OrderNumber: strings.TrimSpace(orderNumber),
		Section:     section.Canonical(),
		CreatedAt:   s.clock().UTC(),
	}
	if err := r.Validate(); err != nil {
		return model.Reminder{}, err
	}

	s.mu.Lock()
	if _, exists := s.reminders.Get(r.ID); exists {
		s.mu.Unlock()
		return model.Reminder{}, fmt.Errorf("reminders: duplicate id %q", r.ID)
	}
	s.reminders.Set(r.ID, r)
	s.journal = append(s.journal, write{kind: "add", id: r.ID, apply: func(ctx context.Context, repo storage.Repository) error {
		return repo.InsertReminder(ctx, r)
	}})
	_, err := s.persistLocked(ctx)
	s.mu.Unlock()

	s.logger.Infow("reminder added", "reminder_id", r.ID, "order", r.OrderNumber, "section", r.Section)
	return r, err
}

func (s *Store) Complete(ctx context.Context, id string) (model.CompletedOrder, error) {
	s.mu.Lock()
	r, ok := s.reminders.Get(id)
	if !ok {
		s.mu.Unlock()
		return model.CompletedOrder{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	done := model.CompleteReminder(r, s.clock())
	s.reminders.Delete(id)
	s.completed = model.PrependCompleted(s.completed, done, s.limit)
	limit := s.limit
	s.journal = append(s.journal, write{kind: "complete", id: id, apply: func(ctx context.Context, repo storage.Repository) error {
		return repo.CompleteReminder(ctx, done, limit)
	}})
	gone, err := s.persistLocked(ctx)
	s.mu.Unlock()

	if gone.Contains(id) {
		return model.CompletedOrder{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	s.logger.Infow("reminder completed", "reminder_id", id, "order", r.OrderNumber)
	s.signalCleanup(ctx, id)
	return done, err
}

func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	r, ok := s.reminders.Get(id)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	s.reminders.Delete(id)
	s.journal = append(s.journal, write{kind: "remove", id: id, apply: func(ctx context.Context, repo storage.Repository) error {
		return repo.DeleteReminder(ctx, id)
	}})
	gone, err := s.persistLocked(ctx)
	s.mu.Unlock()

	if gone.Contains(id) {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	s.logger.Infow("reminder removed", "reminder_id", id, "order", r.OrderNumber)
	s.signalCleanup(ctx, id)
	return err
}

// PendingCleanups lists reminder ids whose cleanup signal has not been
// delivered yet.
func (s *Store) PendingCleanups() []string {
	return s.pending.ToSlice()
}

// RetryCleanups re-sends undelivered cleanup signals and returns how many are
// still pending.
func (s *Store) RetryCleanups(ctx context.Context) int {
	s.cleanupMu.Lock()
	target := s.cleanup
	s.cleanupMu.Unlock()
	if target == nil {
		return s.pending.Cardinality()
	}
	for _, id := range s.pending.ToSlice() {
		if err := target.Cleanup(ctx, id); err != nil {
			s.logger.Debugw("cleanup retry failed", "reminder_id", id, "error", err)
			continue
		}
		s.pending.Remove(id)
	}
	return s.pending.Cardinality()
}

func (s *Store) signalCleanup(ctx context.Context, id string) {
	s.cleanupMu.Lock()
	target := s.cleanup
	s.cleanupMu.Unlock()
	if target == nil {
		s.pending.Add(id)
		return
	}
	if err := target.Cleanup(ctx, id); err != nil {
		s.logger.Warnw("cleanup signal not delivered, will retry", "reminder_id", id, "error", err)
		s.pending.Add(id)
	}
}

func (s *Store) listLocked() []model.Reminder {
	out := make([]model.Reminder, 0, s.reminders.Len())
	for pair := s.reminders.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// persistLocked drains the journal with retries, then re-reads both lists so
// rows written by other processes show up. It returns the ids whose rows had
// already been completed or removed elsewhere.
func (s *Store) persistLocked(ctx context.Context) (mapset.Set[string], error) {
	gone := mapset.NewThreadUnsafeSet[string]()
	delay := s.backoff
	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		lastErr = s.flushLocked(ctx, gone)
		if lastErr == nil {
			break
		}
		s.logger.Warnw("persist failed", "attempt", attempt, "of", s.attempts, "pending", len(s.journal), "error", lastErr)
		if attempt == s.attempts {
			return gone, fmt.Errorf("%w: %w", ErrPersistence, lastErr)
		}
		if err := s.sleep(ctx, delay); err != nil {
			return gone, fmt.Errorf("%w: %w", ErrPersistence, errors.Join(lastErr, err))
		}
		delay *= 2
	}
	if err := s.loadLocked(ctx); err != nil {
		s.logger.Warnw("refresh after write failed", "error", err)
	}
	return gone, nil
}

func (s *Store) flushLocked(ctx context.Context, gone mapset.Set[string]) error {
	for len(s.journal) > 0 {
		next := s.journal[0]
		err := next.apply(ctx, s.repo)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			s.logger.Debugw("row already changed elsewhere", "op", next.kind, "reminder_id", next.id)
			gone.Add(next.id)
		case err != nil:
			return err
		}
		s.journal = s.journal[1:]
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
