// Package scheduler runs reminder check passes in the background context.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"

	"github.com/sandeepkv93/pickupd/internal/ledger"
	"github.com/sandeepkv93/pickupd/internal/model"
	"github.com/sandeepkv93/pickupd/internal/notify"
	"github.com/sandeepkv93/pickupd/internal/trigger"
)

type Reason string

const (
	ReasonPeriodic Reason = "periodic"
	ReasonCatchUp  Reason = "catch-up"
	ReasonMessage  Reason = "message"
	ReasonPoll     Reason = "poll"
	ReasonStartup  Reason = "startup"
)

// Snapshot reads the persisted reminder set. storage.Repository satisfies it.
type Snapshot interface {
	ListReminders(ctx context.Context) ([]model.Reminder, error)
}

type checkState int

const (
	stateIdle checkState = iota
	stateChecking
)

// Result summarises one Check call. A coalesced call did no work itself;
// the pass already running picks its request up.
type Result struct {
	Reason    Reason
	Coalesced bool
	Passes    int
	Checked   int
	Intents   []trigger.Intent
	Purged    []string
	NextDue   time.Time
	Err       error
}

type CheckerOptions struct {
	Snapshot Snapshot
	Ledger   *ledger.Ledger
	Notifier notify.Notifier
	Clock    func() time.Time
	Logger   *zap.SugaredLogger
}

// Checker runs at most one pass at a time. A Check arriving while a pass is
// in flight sets a flag and returns; the running caller loops once more
// before going idle.
type Checker struct {
	snapshot Snapshot
	ledger   *ledger.Ledger
	notifier notify.Notifier
	clock    func() time.Time
	logger   *zap.SugaredLogger

	mu      sync.Mutex
	state   checkState
	recheck bool

	tombstones mapset.Set[string]
	silent     atomic.Bool
}

func NewChecker(opts CheckerOptions) *Checker {
	c := &Checker{
		snapshot:   opts.Snapshot,
		ledger:     opts.Ledger,
		notifier:   opts.Notifier,
		clock:      opts.Clock,
		logger:     opts.Logger,
		tombstones: mapset.NewSet[string](),
	}
	if c.ledger == nil {
		c.ledger = ledger.New(ledger.DefaultPolicy())
	}
	if c.notifier == nil {
		c.notifier = notify.Noop{}
	}
	if c.clock == nil {
		c.clock = func() time.Time { return time.Now().UTC() }
	}
	if c.logger == nil {
		c.logger = zap.NewNop().Sugar()
	}
	return c
}

func (c *Checker) Ledger() *ledger.Ledger {
	return c.ledger
}

// SetSilent switches between showing intents and only logging them. The
// ledger is updated either way.
func (c *Checker) SetSilent(v bool) {
	c.silent.Store(v)
}

func (c *Checker) Silent() bool {
	return c.silent.Load()
}

// Forget handles a CLEANUP: the ledger entry goes away and the id is
// skipped until a snapshot without it has been observed.
func (c *Checker) Forget(ctx context.Context, reminderID string) {
	c.tombstones.Add(reminderID)
	c.ledger.Purge(ctx, reminderID)
}

// Cleanup lets an in-process Checker stand in for the bridge as the Reminder
// Store's cleanup signaler.
func (c *Checker) Cleanup(ctx context.Context, reminderID string) error {
	c.Forget(ctx, reminderID)
	return nil
}

func (c *Checker) Tombstoned(reminderID string) bool {
	return c.tombstones.Contains(reminderID)
}

func (c *Checker) Check(ctx context.Context, reason Reason) Result {
	c.mu.Lock()
	if c.state == stateChecking {
		c.recheck = true
		c.mu.Unlock()
		c.logger.Debugw("check coalesced", "reason", reason)
		return Result{Reason: reason, Coalesced: true}
	}
	c.state = stateChecking
	c.mu.Unlock()

	total := Result{Reason: reason}
	for {
		c.pass(ctx, &total)
		c.mu.Lock()
		if !c.recheck || ctx.Err() != nil {
			c.recheck = false
			c.state = stateIdle
			c.mu.Unlock()
			return total
		}
		c.recheck = false
		c.mu.Unlock()
	}
}

func (c *Checker) pass(ctx context.Context, total *Result) {
	total.Passes++
	now := c.clock()

	snapshot, err := c.snapshot.ListReminders(ctx)
	if err != nil {
		c.logger.Warnw("check pass could not read reminders", "reason", total.Reason, "error", err)
		total.Err = err
		return
	}

	present := mapset.NewThreadUnsafeSet[string]()
	live := make([]model.Reminder, 0, len(snapshot))
	liveIDs := make([]string, 0, len(snapshot))
	for _, r := range snapshot {
		present.Add(r.ID)
		if c.tombstones.Contains(r.ID) {
			continue
		}
		live = append(live, r)
		liveIDs = append(liveIDs, r.ID)
	}
	for _, id := range c.tombstones.ToSlice() {
		if !present.Contains(id) {
			c.tombstones.Remove(id)
		}
	}

	purged := c.ledger.Reconcile(ctx, liveIDs)
	intents := trigger.Evaluate(ctx, live, now, c.ledger)
	for _, in := range intents {
		c.deliver(ctx, in)
	}

	total.Checked = len(live)
	total.Purged = append(total.Purged, purged...)
	total.Intents = append(total.Intents, intents...)
	total.NextDue = c.nextDue(live)
	total.Err = nil

	c.logger.Infow("check pass complete",
		"reason", total.Reason,
		"reminders", len(live),
		"fired", len(intents),
		"purged", len(purged),
		"silent", c.Silent(),
	)
}

func (c *Checker) deliver(ctx context.Context, in trigger.Intent) {
	if c.Silent() {
		c.logger.Infow("notification suppressed",
			"reminder_id", in.ReminderID, "order", in.OrderNumber, "cycle", in.Cycle, "body", in.Body)
		return
	}
	if err := c.notifier.Show(ctx, in); err != nil {
		c.logger.Warnw("notification failed", "reminder_id", in.ReminderID, "cycle", in.Cycle, "error", err)
	}
}

func (c *Checker) nextDue(live []model.Reminder) time.Time {
	due := make([]time.Time, 0, len(live))
	for _, r := range live {
		if t := c.ledger.NextDue(r); !t.IsZero() {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return time.Time{}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].Before(due[j]) })
	return due[0]
}
