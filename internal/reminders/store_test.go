package reminders

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sandeepkv93/pickupd/internal/model"
	"github.com/sandeepkv93/pickupd/internal/storage"
)

type memoryRepo struct {
	mu         sync.Mutex
	reminders  []model.Reminder
	completed  []model.CompletedOrder
	failWrites int
	writes     int
}

func (m *memoryRepo) ListReminders(context.Context) ([]model.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Reminder(nil), m.reminders...), nil
}

func (m *memoryRepo) ListCompleted(context.Context) ([]model.CompletedOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.CompletedOrder(nil), m.completed...), nil
}

func (m *memoryRepo) fail() error {
	m.writes++
	if m.failWrites > 0 {
		m.failWrites--
		return errors.New("disk full")
	}
	return nil
}

func (m *memoryRepo) InsertReminder(_ context.Context, in model.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	m.reminders = append(m.reminders, in)
	return nil
}

func (m *memoryRepo) take(id string) bool {
	for i, r := range m.reminders {
		if r.ID == id {
			m.reminders = append(m.reminders[:i:i], m.reminders[i+1:]...)
			return true
		}
	}
	return false
}

func (m *memoryRepo) CompleteReminder(_ context.Context, done model.CompletedOrder, limit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	if !m.take(done.ID) {
		return storage.ErrNotFound
	}
	m.completed = model.PrependCompleted(m.completed, done, limit)
	return nil
}

func (m *memoryRepo) DeleteReminder(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	if !m.take(id) {
		return storage.ErrNotFound
	}
	return nil
}

func (m *memoryRepo) ListLedgerEntries(context.Context) ([]storage.LedgerEntry, error) {
	return nil, nil
}

func (m *memoryRepo) UpsertLedgerEntry(context.Context, storage.LedgerEntry) error { return nil }

func (m *memoryRepo) DeleteLedgerEntry(context.Context, string) error { return nil }

func (m *memoryRepo) ClaimLedgerEntry(_ context.Context, id string, now time.Time, _ time.Duration) (storage.LedgerEntry, bool, error) {
	return storage.LedgerEntry{ReminderID: id, FirstTriggeredAt: now, LastTriggeredAt: now, CycleCount: 1}, true, nil
}

func (m *memoryRepo) SchemaVersion(context.Context) (int, error) { return storage.SchemaVersion, nil }

type recordingCleanup struct {
	mu   sync.Mutex
	ids  []string
	fail bool
}

func (r *recordingCleanup) Cleanup(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("bridge down")
	}
	r.ids = append(r.ids, id)
	return nil
}

func newTestStore(t *testing.T, repo storage.Repository, opts Options) *Store {
	t.Helper()
	base := time.Date(2026, 2, 9, 12, 0, 0, 0, time.UTC)
	tick := 0
	if opts.Clock == nil {
		opts.Clock = func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Second)
		}
	}
	seq := 0
	if opts.NewID == nil {
		opts.NewID = func() string {
			seq++
			return fmt.Sprintf("rem-%02d", seq)
		}
	}
	if opts.Sleep == nil {
		opts.Sleep = func(context.Context, time.Duration) error { return nil }
	}
	store, err := Open(context.Background(), repo, opts)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}

func TestAddListKeepsInsertionOrder(t *testing.T) {
	store := newTestStore(t, &memoryRepo{}, Options{})
	ctx := context.Background()
	for _, order := range []string{"30", "10", "20"} {
		if _, err := store.Add(ctx, order, model.SectionFromage); err != nil {
			t.Fatalf("add %s: %v", order, err)
		}
	}
	list := store.List(ctx)
	if len(list) != 3 || list[0].OrderNumber != "30" || list[2].OrderNumber != "20" {
		t.Fatalf("unexpected list order: %#v", list)
	}
}

func TestAddRejectsBlankInput(t *testing.T) {
	store := newTestStore(t, &memoryRepo{}, Options{})
	if _, err := store.Add(context.Background(), "   ", model.SectionFromage); !errors.Is(err, model.ErrInvalidReminder) {
		t.Fatalf("expected ErrInvalidReminder, got %v", err)
	}
	if _, err := store.Add(context.Background(), "12", " "); !errors.Is(err, model.ErrInvalidReminder) {
		t.Fatalf("expected ErrInvalidReminder for blank section, got %v", err)
	}
}

func TestCompleteMovesToFrontOfCompletedAndSignalsCleanup(t *testing.T) {
	repo := &memoryRepo{}
	cleanup := &recordingCleanup{}
	store := newTestStore(t, repo, Options{Cleanup: cleanup})
	ctx := context.Background()

	first, _ := store.Add(ctx, "1", model.SectionBoucherie)
	second, _ := store.Add(ctx, "2", model.SectionVolaille)

	if _, err := store.Complete(ctx, first.ID); err != nil {
		t.Fatalf("complete first: %v", err)
	}
	done, err := store.Complete(ctx, second.ID)
	if err != nil {
		t.Fatalf("complete second: %v", err)
	}
	if done.ID != second.ID || done.OrderNumber != "2" {
		t.Fatalf("unexpected completed order: %#v", done)
	}

	for _, r := range store.List(ctx) {
		if r.ID == first.ID || r.ID == second.ID {
			t.Fatalf("completed reminder still live: %s", r.ID)
		}
	}
	completed := store.Completed(ctx)
	if len(completed) != 2 || completed[0].ID != second.ID || completed[1].ID != first.ID {
		t.Fatalf("expected most recent completion first, got %#v", completed)
	}
	if len(cleanup.ids) != 2 || cleanup.ids[0] != first.ID {
		t.Fatalf("expected cleanup signals, got %v", cleanup.ids)
	}
	if len(repo.reminders) != 0 || len(repo.completed) != 2 || repo.completed[0].ID != second.ID {
		t.Fatalf("expected rows persisted before return, got %#v %#v", repo.reminders, repo.completed)
	}
}

func TestCompletedListIsCapped(t *testing.T) {
	store := newTestStore(t, &memoryRepo{}, Options{CompletedLimit: 3})
	ctx := context.Background()
	var ids []string
	for i := 0; i < 4; i++ {
		r, err := store.Add(ctx, fmt.Sprint(i), model.SectionFromage)
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		ids = append(ids, r.ID)
	}
	for _, id := range ids {
		if _, err := store.Complete(ctx, id); err != nil {
			t.Fatalf("complete: %v", err)
		}
	}
	completed := store.Completed(ctx)
	if len(completed) != 3 {
		t.Fatalf("expected cap of 3, got %d", len(completed))
	}
	if completed[0].ID != ids[3] || completed[2].ID != ids[1] {
		t.Fatalf("expected oldest evicted, got %#v", completed)
	}
}

func TestRemoveUnknownIsNotFound(t *testing.T) {
	cleanup := &recordingCleanup{}
	store := newTestStore(t, &memoryRepo{}, Options{Cleanup: cleanup})
	err := store.Remove(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Complete(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from complete, got %v", err)
	}
	if len(cleanup.ids) != 0 {
		t.Fatalf("unknown id must not signal cleanup, got %v", cleanup.ids)
	}
}

func TestRemoveDoesNotRecordCompletion(t *testing.T) {
	store := newTestStore(t, &memoryRepo{}, Options{})
	ctx := context.Background()
	r, _ := store.Add(ctx, "9", model.SectionBoulangerie)
	if err := store.Remove(ctx, r.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(store.List(ctx)) != 0 || len(store.Completed(ctx)) != 0 {
		t.Fatal("expected reminder gone and no completion record")
	}
}

func TestPersistenceFailureRetriesThenWarns(t *testing.T) {
	repo := &memoryRepo{failWrites: 5}
	var waits []time.Duration
	store := newTestStore(t, repo, Options{
		RetryAttempts: 3,
		RetryBackoff:  10 * time.Millisecond,
		Sleep: func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		},
	})
	ctx := context.Background()

	r, err := store.Add(ctx, "404", model.SectionFromage)
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence warning, got %v", err)
	}
	if r.ID == "" || len(store.List(ctx)) != 1 {
		t.Fatal("expected in-memory mutation kept despite persistence failure")
	}
	if repo.writes != 3 {
		t.Fatalf("expected 3 attempts, got %d", repo.writes)
	}
	if len(waits) != 2 || waits[0] != 10*time.Millisecond || waits[1] != 20*time.Millisecond {
		t.Fatalf("expected exponential backoff, got %v", waits)
	}

	repo.failWrites = 0
	if _, err := store.Add(ctx, "405", model.SectionFromage); err != nil {
		t.Fatalf("expected recovery on next write, got %v", err)
	}
	if len(repo.reminders) != 2 || repo.reminders[0].OrderNumber != "404" {
		t.Fatalf("expected pending write flushed first after recovery, got %#v", repo.reminders)
	}
	if list := store.List(ctx); len(list) != 2 {
		t.Fatalf("expected both reminders listed, got %#v", list)
	}
}

func TestCleanupRetriedAfterBridgeFailure(t *testing.T) {
	cleanup := &recordingCleanup{fail: true}
	store := newTestStore(t, &memoryRepo{}, Options{Cleanup: cleanup})
	ctx := context.Background()
	r, _ := store.Add(ctx, "5", model.SectionVolaille)

	if err := store.Remove(ctx, r.ID); err != nil {
		t.Fatalf("remove must succeed even when cleanup cannot be confirmed: %v", err)
	}
	if pending := store.PendingCleanups(); len(pending) != 1 || pending[0] != r.ID {
		t.Fatalf("expected pending cleanup, got %v", pending)
	}

	cleanup.fail = false
	if left := store.RetryCleanups(ctx); left != 0 {
		t.Fatalf("expected no pending cleanups after retry, got %d", left)
	}
	if len(cleanup.ids) != 1 || cleanup.ids[0] != r.ID {
		t.Fatalf("expected cleanup delivered on retry, got %v", cleanup.ids)
	}
}

func TestResolveByOrderNumberAndPrefix(t *testing.T) {
	store := newTestStore(t, &memoryRepo{}, Options{})
	ctx := context.Background()
	a, _ := store.Add(ctx, "77", model.SectionFromage)
	_, _ = store.Add(ctx, "78", model.SectionFromage)

	got, err := store.Resolve("77")
	if err != nil || got.ID != a.ID {
		t.Fatalf("resolve by order number: %v %#v", err, got)
	}
	got, err = store.Resolve("rem-01")
	if err != nil || got.ID != a.ID {
		t.Fatalf("resolve by id: %v %#v", err, got)
	}
	if _, err := store.Resolve("rem-"); !errors.Is(err, ErrAmbiguous) {
		t.Fatalf("expected ErrAmbiguous for shared prefix, got %v", err)
	}
	if _, err := store.Resolve("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreSurvivesReopenOnSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	repo, err := storage.OpenSQLite(storage.DriverCGO, path)
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	ctx := context.Background()
	store := newTestStore(t, repo, Options{})
	kept, _ := store.Add(ctx, "1", model.SectionBoucherie)
	done, _ := store.Add(ctx, "2", model.SectionFromage)
	if _, err := store.Complete(ctx, done.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	_ = repo.Close()

	reopened, err := storage.OpenSQLite(storage.DriverCGO, path)
	if err != nil {
		t.Fatalf("reopen repo: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	again := newTestStore(t, reopened, Options{})
	list := again.List(ctx)
	if len(list) != 1 || list[0].ID != kept.ID {
		t.Fatalf("unexpected reminders after reopen: %#v", list)
	}
	completed := again.Completed(ctx)
	if len(completed) != 1 || completed[0].ID != done.ID {
		t.Fatalf("unexpected completed after reopen: %#v", completed)
	}
}

func TestReloadWritesPendingChangesBeforeReading(t *testing.T) {
	repo := &memoryRepo{}
	store := newTestStore(t, repo, Options{})
	ctx := context.Background()
	a, _ := store.Add(ctx, "1", model.SectionFromage)

	repo.failWrites = 1
	if err := store.Remove(ctx, a.ID); !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	repo.mu.Lock()
	repo.reminders = append(repo.reminders, model.Reminder{ID: "other-1", OrderNumber: "2", Section: model.SectionVolaille, CreatedAt: a.CreatedAt})
	repo.mu.Unlock()

	if err := store.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	list := store.List(ctx)
	if len(list) != 1 || list[0].ID != "other-1" {
		t.Fatalf("expected pending remove applied and foreign row kept, got %#v", list)
	}
}

func TestCompleteOfReminderRemovedElsewhereIsNotFound(t *testing.T) {
	repo := &memoryRepo{}
	cleanup := &recordingCleanup{}
	store := newTestStore(t, repo, Options{Cleanup: cleanup})
	ctx := context.Background()
	a, _ := store.Add(ctx, "1", model.SectionFromage)

	if err := repo.DeleteReminder(ctx, a.ID); err != nil {
		t.Fatalf("delete behind the store: %v", err)
	}
	if _, err := store.Complete(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(store.List(ctx)) != 0 || len(store.Completed(ctx)) != 0 {
		t.Fatalf("expected view refreshed from storage, got %#v %#v", store.List(ctx), store.Completed(ctx))
	}
	if len(cleanup.ids) != 0 {
		t.Fatalf("expected no cleanup for a reminder this store did not complete, got %v", cleanup.ids)
	}
}

func TestTwoStoresOverOneDatabaseKeepEachOthersRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	ctx := context.Background()
	openRepo := func() *storage.SQLiteRepository {
		t.Helper()
		repo, err := storage.OpenSQLite(storage.DriverCGO, path)
		if err != nil {
			t.Fatalf("open repo: %v", err)
		}
		t.Cleanup(func() { _ = repo.Close() })
		return repo
	}

	tuiRepo := openRepo()
	tui := newTestStore(t, tuiRepo, Options{})
	a, err := tui.Add(ctx, "1", model.SectionBoucherie)
	if err != nil {
		t.Fatalf("tui add: %v", err)
	}

	seq := 0
	cli := newTestStore(t, openRepo(), Options{NewID: func() string {
		seq++
		return fmt.Sprintf("cli-%02d", seq)
	}})
	b, err := cli.Add(ctx, "2", model.SectionVolaille)
	if err != nil {
		t.Fatalf("cli add: %v", err)
	}

	if err := tui.Remove(ctx, a.ID); err != nil {
		t.Fatalf("tui remove: %v", err)
	}

	persisted, err := tuiRepo.ListReminders(ctx)
	if err != nil {
		t.Fatalf("list persisted: %v", err)
	}
	if len(persisted) != 1 || persisted[0].ID != b.ID {
		t.Fatalf("expected the cli reminder to survive the tui write, got %#v", persisted)
	}
	if list := tui.List(ctx); len(list) != 1 || list[0].ID != b.ID {
		t.Fatalf("expected the tui view to pick up the cli reminder, got %#v", list)
	}

	if _, err := cli.Complete(ctx, b.ID); err != nil {
		t.Fatalf("cli complete: %v", err)
	}
	if err := tui.Reload(ctx); err != nil {
		t.Fatalf("tui reload: %v", err)
	}
	if len(tui.List(ctx)) != 0 || len(tui.Completed(ctx)) != 1 {
		t.Fatalf("expected tui to see the cli completion, got %#v %#v", tui.List(ctx), tui.Completed(ctx))
	}
}
