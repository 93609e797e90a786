package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sandeepkv93/pickupd/internal/commands"
	"github.com/sandeepkv93/pickupd/internal/mcptools"
	"github.com/sandeepkv93/pickupd/internal/model"
)

// runCLI executes one reminder command and exits. Cleanup and recheck
// signals reach the daemon when it runs; otherwise the daemon reconciles
// its ledger on the next pass.
func runCLI(configPath, verb string, args []string) error {
	cmd, err := commands.Parse(strings.Join(append([]string{verb}, args...), " "))
	if err != nil {
		return err
	}

	a, err := newApp(configPath, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	daemon := oneShotSignaler{app: a}
	store, err := a.openStore(ctx, daemon)
	if err != nil {
		return err
	}

	res, err := commands.Execute(cmd, commands.Handlers{
		Add: func(in commands.AddArgs) (commands.Result, error) {
			r, err := store.Add(ctx, in.OrderNumber, model.Section(in.Section))
			if err != nil {
				return commands.Result{}, err
			}
			if err := daemon.Recheck(ctx); err != nil {
				a.logger.Debugw("recheck not delivered", "error", err)
			}
			return commands.Result{Message: fmt.Sprintf("added order #%s in %s (id %s)", r.OrderNumber, r.Section, r.ID)}, nil
		},
		Complete: func(in commands.TargetArgs) (commands.Result, error) {
			r, err := store.Resolve(in.Ref)
			if err != nil {
				return commands.Result{}, err
			}
			done, err := store.Complete(ctx, r.ID)
			if err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: fmt.Sprintf("order #%s picked up at %s", done.OrderNumber, done.CompletedClock(time.Local))}, nil
		},
		Remove: func(in commands.TargetArgs) (commands.Result, error) {
			r, err := store.Resolve(in.Ref)
			if err != nil {
				return commands.Result{}, err
			}
			if err := store.Remove(ctx, r.ID); err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: fmt.Sprintf("removed order #%s", r.OrderNumber)}, nil
		},
		List: func() (commands.Result, error) {
			now := time.Now()
			list := store.List(ctx)
			lines := make([]string, 0, len(list))
			for _, r := range list {
				lines = append(lines, fmt.Sprintf("#%-8s %-12s waiting %-8s id %s",
					r.OrderNumber, r.Section, r.Age(now).Round(time.Second), r.ID))
			}
			return commands.Result{Message: fmt.Sprintf("%d pending", len(list)), Lines: lines}, nil
		},
		Completed: func() (commands.Result, error) {
			list := store.Completed(ctx)
			lines := make([]string, 0, len(list))
			for _, c := range list {
				lines = append(lines, fmt.Sprintf("%s #%-8s %s", c.CompletedClock(time.Local), c.OrderNumber, c.Section))
			}
			return commands.Result{Message: fmt.Sprintf("%d completed", len(list)), Lines: lines}, nil
		},
		Recheck: func() (commands.Result, error) {
			if err := daemon.Recheck(ctx); err != nil {
				return commands.Result{}, fmt.Errorf("daemon at %s: %w", a.bridgeURL(), err)
			}
			return commands.Result{Message: "recheck requested"}, nil
		},
	})
	if err != nil {
		return err
	}

	fmt.Println(res.Message)
	for _, line := range res.Lines {
		fmt.Println(line)
	}
	if pending := store.PendingCleanups(); len(pending) > 0 {
		a.logger.Infow("daemon not reachable; ledger will reconcile on its next pass", "reminders", pending)
	}
	return nil
}

func runMCP(configPath string) error {
	a, err := newApp(configPath, true)
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := a.openStore(context.Background(), oneShotSignaler{app: a})
	if err != nil {
		return err
	}
	return mcptools.NewServer(store, a.logger.Named("mcp")).ServeStdio()
}
