package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/sandeepkv93/pickupd/internal/bridge"
	"github.com/sandeepkv93/pickupd/internal/config"
	"github.com/sandeepkv93/pickupd/internal/ledger"
	"github.com/sandeepkv93/pickupd/internal/logging"
	"github.com/sandeepkv93/pickupd/internal/notify"
	"github.com/sandeepkv93/pickupd/internal/reminders"
	"github.com/sandeepkv93/pickupd/internal/scheduler"
	"github.com/sandeepkv93/pickupd/internal/storage"
)

// app holds what every command needs: config, logger and the database.
type app struct {
	cfg    *config.Config
	logger *zap.SugaredLogger
	repo   *storage.SQLiteRepository

	closeLog func() error
}

// newApp loads config and opens the database. With offTerminal set and no
// log file configured, logs go to pickupd.log next to the database.
func newApp(configPath string, offTerminal bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if offTerminal && cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(filepath.Dir(cfg.Store.Path), "pickupd.log")
	}
	logger, closeLog, err := logging.New(cfg.Log, nil)
	if err != nil {
		return nil, err
	}
	repo, err := storage.OpenSQLite(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &app{cfg: cfg, logger: logger, repo: repo, closeLog: closeLog}, nil
}

func (a *app) Close() {
	_ = a.logger.Sync()
	_ = a.repo.Close()
	_ = a.closeLog()
}

func (a *app) policy() ledger.Policy {
	return ledger.Policy{Grace: a.cfg.Policy.Grace, Repeat: a.cfg.Policy.Repeat}
}

func (a *app) openStore(ctx context.Context, cleanup reminders.CleanupSignaler) (*reminders.Store, error) {
	return reminders.Open(ctx, a.repo, reminders.Options{
		CompletedLimit: a.cfg.Store.CompletedLimit,
		RetryAttempts:  a.cfg.Store.RetryAttempts,
		RetryBackoff:   a.cfg.Store.RetryBackoff,
		Cleanup:        cleanup,
		Logger:         a.logger.Named("store"),
	})
}

func (a *app) newLedger() *ledger.Ledger {
	return ledger.New(a.policy(),
		ledger.WithPersister(a.repo),
		ledger.WithLogger(a.logger.Named("ledger")),
	)
}

// notifiers builds the desktop notifier and, when configured, web push.
// The desktop notifier is returned separately for its click stream.
func (a *app) notifiers() (notify.Notifier, *notify.Desktop) {
	var members []notify.Notifier
	var desktop *notify.Desktop
	if a.cfg.Notify.Desktop {
		desktop = notify.NewDesktop(notify.DesktopOptions{Logger: a.logger.Named("desktop")})
		members = append(members, desktop)
	}
	if wp := a.cfg.Notify.WebPush; wp.Enabled {
		members = append(members, notify.NewWebPush(notify.WebPushOptions{
			Subscriber:      wp.Subscriber,
			VAPIDPublicKey:  wp.VAPIDPublicKey,
			VAPIDPrivateKey: wp.VAPIDPrivateKey,
			TTL:             wp.TTL,
			Subscriptions:   wp.Subscriptions,
			Logger:          a.logger.Named("webpush"),
		}))
	}
	switch len(members) {
	case 0:
		return notify.Noop{}, nil
	case 1:
		return members[0], desktop
	default:
		return notify.NewMulti(members...), desktop
	}
}

func (a *app) newChecker(n notify.Notifier) *scheduler.Checker {
	return scheduler.NewChecker(scheduler.CheckerOptions{
		Snapshot: a.repo,
		Ledger:   a.newLedger(),
		Notifier: n,
		Logger:   a.logger.Named("checker"),
	})
}

func (a *app) bridgeURL() string {
	return bridge.URL(a.cfg.Bridge.Addr, a.cfg.Bridge.Path)
}

// dialDaemon connects to a running daemon, bounded by the dial timeout.
func (a *app) dialDaemon(ctx context.Context) (*bridge.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Bridge.DialTimeout)
	defer cancel()
	return bridge.Dial(ctx, a.bridgeURL(), a.logger.Named("bridge"))
}

// oneShotSignaler dials the daemon for each signal. Used by short-lived CLI
// invocations that do not keep a connection open.
type oneShotSignaler struct {
	app *app
}

func (s oneShotSignaler) send(ctx context.Context, m bridge.Message) error {
	client, err := s.app.dialDaemon(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	sendCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return client.Send(sendCtx, m)
}

func (s oneShotSignaler) Cleanup(ctx context.Context, reminderID string) error {
	return s.send(ctx, bridge.Cleanup(reminderID))
}

func (s oneShotSignaler) Recheck(ctx context.Context) error {
	return s.send(ctx, bridge.Recheck())
}
