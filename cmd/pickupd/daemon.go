package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sandeepkv93/pickupd/internal/bridge"
	"github.com/sandeepkv93/pickupd/internal/scheduler"
)

func runDaemon(configPath string) error {
	a, err := newApp(configPath, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := bridge.NewServer(a.logger.Named("bridge"), a.cfg.Scheduler.WakeBuffer)
	defer hub.Close()

	mux := http.NewServeMux()
	mux.Handle(a.cfg.Bridge.Path, hub)
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	ln, err := net.Listen("tcp", a.cfg.Bridge.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.cfg.Bridge.Addr, err)
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Errorw("bridge server stopped", "error", err)
			stop()
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	notifier, _ := a.notifiers()
	var registrar scheduler.PeriodicRegistrar = scheduler.TickerRegistrar{}
	if !a.cfg.Scheduler.Periodic {
		registrar = scheduler.UnsupportedRegistrar{}
	}

	d := scheduler.NewDaemon(scheduler.DaemonOptions{
		Checker:             a.newChecker(notifier),
		Bridge:              hub,
		Notifier:            notifier,
		Registrar:           registrar,
		PeriodicTag:         a.cfg.Scheduler.PeriodicTag,
		CatchUpTag:          a.cfg.Scheduler.CatchUpTag,
		MinInterval:         a.cfg.Scheduler.MinInterval,
		RegistrationTimeout: a.cfg.Scheduler.RegistrationTimeout,
		PermissionTimeout:   a.cfg.Notify.PermissionTimeout,
		WakeBuffer:          a.cfg.Scheduler.WakeBuffer,
		Logger:              a.logger.Named("daemon"),
	})
	a.logger.Infow("daemon started",
		"bridge", a.bridgeURL(),
		"db", a.cfg.Store.Path,
		"grace", a.cfg.Policy.Grace.String(),
		"repeat", a.cfg.Policy.Repeat.String(),
	)
	err = d.Run(ctx)
	a.logger.Infow("daemon stopped")
	return err
}
