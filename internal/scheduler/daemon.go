package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sandeepkv93/pickupd/internal/bridge"
	"github.com/sandeepkv93/pickupd/internal/notify"
)

const (
	DefaultPeriodicTag = "reminder-check"
	DefaultCatchUpTag  = "check-reminders"
	nextDueTag         = "next-due"
	minWakeDelay       = time.Second
)

type DaemonOptions struct {
	Checker   *Checker
	Bridge    bridge.Endpoint
	Notifier  notify.Notifier
	Registrar PeriodicRegistrar

	PeriodicTag         string
	CatchUpTag          string
	MinInterval         time.Duration
	RegistrationTimeout time.Duration
	PermissionTimeout   time.Duration
	WakeBuffer          int

	Clock  func() time.Time
	Logger *zap.SugaredLogger
}

// Daemon is the background context. It funnels periodic ticks, one-shot
// wakes and bridge messages into a single Checker.
type Daemon struct {
	opts    DaemonOptions
	checker *Checker
	engine  *Engine
	logger  *zap.SugaredLogger
	clock   func() time.Time

	wg       sync.WaitGroup
	mu       sync.Mutex
	periodic bool
}

func NewDaemon(opts DaemonOptions) *Daemon {
	if opts.Registrar == nil {
		opts.Registrar = TickerRegistrar{}
	}
	if opts.PeriodicTag == "" {
		opts.PeriodicTag = DefaultPeriodicTag
	}
	if opts.CatchUpTag == "" {
		opts.CatchUpTag = DefaultCatchUpTag
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = 10 * time.Minute
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Noop{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Daemon{
		opts:    opts,
		checker: opts.Checker,
		engine:  NewEngine(opts.WakeBuffer),
		logger:  logger,
		clock:   clock,
	}
}

func (d *Daemon) Checker() *Checker {
	return d.checker
}

// PeriodicActive reports whether periodic registration succeeded.
func (d *Daemon) PeriodicActive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.periodic
}

// Run blocks until ctx is cancelled. Nothing inside the loop is fatal.
func (d *Daemon) Run(ctx context.Context) error {
	if d.checker == nil {
		return errors.New("scheduler: daemon has no checker")
	}
	if err := d.checker.Ledger().Load(ctx); err != nil {
		d.logger.Warnw("ledger load failed, starting empty", "error", err)
	}
	d.checkPermission(ctx)

	d.engine.Start()
	defer d.engine.Stop()

	periodic := d.registerPeriodic(ctx)
	defer periodic.Stop()
	var ticks <-chan time.Time
	if periodic != nil {
		ticks = periodic.C
	}

	if err := d.engine.Schedule(Wake{Tag: d.opts.CatchUpTag, Reason: ReasonStartup, At: time.Now().UTC()}); err != nil {
		d.logger.Warnw("startup wake not scheduled", "error", err)
	}

	var messages <-chan bridge.Message
	if d.opts.Bridge != nil {
		messages = d.opts.Bridge.Messages()
	}
	var clicks <-chan string
	if src, ok := d.opts.Notifier.(notify.ClickSource); ok {
		clicks = src.Clicks()
	}

	var lastTick time.Time
	for {
		select {
		case <-ctx.Done():
			d.wg.Wait()
			return nil

		case t := <-ticks:
			t = t.Round(0)
			if !lastTick.IsZero() && t.Sub(lastTick) > 2*periodic.Interval {
				d.logger.Infow("periodic gap detected, scheduling catch-up", "gap", t.Sub(lastTick).String())
				d.scheduleCatchUp()
			}
			lastTick = t
			d.spawnCheck(ctx, ReasonPeriodic)

		case w, ok := <-d.engine.C():
			if !ok {
				d.wg.Wait()
				return nil
			}
			d.spawnCheck(ctx, w.Reason)

		case m, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			d.handleMessage(ctx, m)

		case id, ok := <-clicks:
			if !ok {
				clicks = nil
				continue
			}
			d.focus(ctx, id)
		}
	}
}

func (d *Daemon) checkPermission(ctx context.Context) {
	timeout := d.opts.PermissionTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := d.opts.Notifier.Permission(pctx)
	switch {
	case err == nil:
		d.checker.SetSilent(false)
	case errors.Is(err, notify.ErrPermissionDenied), errors.Is(err, context.DeadlineExceeded):
		d.checker.SetSilent(true)
		d.logger.Warnw("notifications unavailable, running silent", "error", err)
	default:
		d.checker.SetSilent(true)
		d.logger.Warnw("notification permission check failed, running silent", "error", err)
	}
}

func (d *Daemon) registerPeriodic(ctx context.Context) *Periodic {
	p, err := registerWithTimeout(ctx, d.opts.Registrar, d.opts.PeriodicTag, d.opts.MinInterval, d.opts.RegistrationTimeout)
	if err != nil {
		if errors.Is(err, ErrBackgroundUnsupported) {
			d.logger.Warnw("periodic checks unsupported, relying on messages and foreground polling", "tag", d.opts.PeriodicTag)
		} else {
			d.logger.Warnw("periodic registration failed, relying on messages and foreground polling", "tag", d.opts.PeriodicTag, "error", err)
		}
		return nil
	}
	d.mu.Lock()
	d.periodic = true
	d.mu.Unlock()
	d.logger.Infow("periodic checks registered", "tag", p.Tag, "interval", p.Interval.String())
	return p
}

func (d *Daemon) scheduleCatchUp() {
	if err := d.engine.Replace(Wake{Tag: d.opts.CatchUpTag, Reason: ReasonCatchUp, At: time.Now().UTC()}); err != nil {
		d.logger.Warnw("catch-up wake not scheduled", "error", err)
	}
}

func (d *Daemon) handleMessage(ctx context.Context, m bridge.Message) {
	switch m.Type {
	case bridge.TypeCleanup:
		d.checker.Forget(ctx, m.ReminderID)
		d.logger.Infow("cleanup received", "reminder_id", m.ReminderID)
	case bridge.TypeRecheck:
		d.spawnCheck(ctx, ReasonMessage)
	default:
		d.logger.Debugw("ignoring bridge message", "type", m.Type)
	}
}

func (d *Daemon) focus(ctx context.Context, reminderID string) {
	if d.opts.Bridge == nil {
		return
	}
	if err := d.opts.Bridge.Send(ctx, bridge.Focus(reminderID)); err != nil {
		d.logger.Infow("focus not delivered", "reminder_id", reminderID, "error", err)
	}
}

func (d *Daemon) spawnCheck(ctx context.Context, reason Reason) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		res := d.checker.Check(ctx, reason)
		if res.Coalesced || res.NextDue.IsZero() {
			return
		}
		// Checks judge due-ness on the injected clock; the engine sleeps on
		// the wall clock, so only the remaining delay carries over.
		delay := res.NextDue.Sub(d.clock())
		if delay < minWakeDelay {
			delay = minWakeDelay
		}
		at := time.Now().UTC().Add(delay)
		if err := d.engine.Replace(Wake{Tag: nextDueTag, Reason: ReasonCatchUp, At: at}); err != nil && !errors.Is(err, ErrEngineStopped) {
			d.logger.Warnw("next-due wake not scheduled", "error", err)
		}
	}()
}
