package main

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/pickupd/internal/bridge"
	"github.com/sandeepkv93/pickupd/internal/update"
	"github.com/sandeepkv93/pickupd/internal/views"
)

func runTUI(configPath string) error {
	a, err := newApp(configPath, true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notifier, desktop := a.notifiers()
	fallback := a.newChecker(notifier)
	if err := fallback.Ledger().Load(ctx); err != nil {
		a.logger.Warnw("ledger load failed", "error", err)
	}

	conn := &daemonConn{}
	defer conn.Close()
	var endpoint bridge.Endpoint
	client, err := a.dialDaemon(ctx)
	if err != nil {
		a.logger.Infow("daemon unreachable, checking reminders in this window", "url", a.bridgeURL(), "error", err)
	} else {
		endpoint = conn.swap(client)
	}

	store, err := a.openStore(ctx, nil)
	if err != nil {
		return err
	}
	if endpoint != nil {
		store.SetCleanupSignaler(bridge.Signaler{Endpoint: endpoint})
	} else {
		store.SetCleanupSignaler(fallback)
	}

	opts := update.Options{
		Context:      ctx,
		Store:        store,
		Bridge:       endpoint,
		Fallback:     fallback,
		Policy:       a.policy(),
		PollInterval: a.cfg.UI.PollInterval,
		Theme:        views.ParseTheme(a.cfg.UI.Theme),
		Logger:       a.logger.Named("tui"),
	}
	opts.Redial = func(ctx context.Context) (bridge.Endpoint, error) {
		client, err := a.dialDaemon(ctx)
		if err != nil {
			return nil, err
		}
		a.logger.Infow("daemon reachable again, handing checks back", "url", a.bridgeURL())
		return conn.swap(client), nil
	}
	if desktop != nil {
		opts.Clicks = desktop.Clicks()
	}

	program := tea.NewProgram(update.NewModel(opts), tea.WithAltScreen(), tea.WithReportFocus())
	_, err = program.Run()
	return err
}

// daemonConn owns the current daemon connection so a redial can close the
// one it replaces.
type daemonConn struct {
	mu     sync.Mutex
	client *bridge.Client
}

func (c *daemonConn) swap(next *bridge.Client) bridge.Endpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		_ = c.client.Close()
	}
	c.client = next
	return next
}

func (c *daemonConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		_ = c.client.Close()
		c.client = nil
	}
}
