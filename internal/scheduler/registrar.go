package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrBackgroundUnsupported is returned by registrars on hosts that cannot
// run periodic background work. Checks then depend on messages, catch-up
// wakes and foreground polling.
var ErrBackgroundUnsupported = errors.New("scheduler: background execution unsupported")

// Periodic is a registered recurring trigger.
type Periodic struct {
	Tag      string
	Interval time.Duration
	C        <-chan time.Time
	stop     func()
	once     sync.Once
}

func (p *Periodic) Stop() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		if p.stop != nil {
			p.stop()
		}
	})
}

type PeriodicRegistrar interface {
	RegisterPeriodic(ctx context.Context, tag string, minInterval time.Duration) (*Periodic, error)
}

// TickerRegistrar backs periodic registration with a time.Ticker owned by
// the daemon process.
type TickerRegistrar struct{}

func (TickerRegistrar) RegisterPeriodic(ctx context.Context, tag string, minInterval time.Duration) (*Periodic, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if minInterval <= 0 {
		return nil, fmt.Errorf("scheduler: invalid interval %s for %q", minInterval, tag)
	}
	ticker := time.NewTicker(minInterval)
	return &Periodic{Tag: tag, Interval: minInterval, C: ticker.C, stop: ticker.Stop}, nil
}

type UnsupportedRegistrar struct{}

func (UnsupportedRegistrar) RegisterPeriodic(context.Context, string, time.Duration) (*Periodic, error) {
	return nil, ErrBackgroundUnsupported
}

// registerWithTimeout bounds a registrar that may hang. A registration that
// completes after the deadline is stopped immediately.
func registerWithTimeout(ctx context.Context, r PeriodicRegistrar, tag string, interval, timeout time.Duration) (*Periodic, error) {
	if timeout <= 0 {
		return r.RegisterPeriodic(ctx, tag, interval)
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		p   *Periodic
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		p, err := r.RegisterPeriodic(rctx, tag, interval)
		done <- outcome{p: p, err: err}
	}()

	select {
	case o := <-done:
		return o.p, o.err
	case <-rctx.Done():
		go func() {
			if o := <-done; o.p != nil {
				o.p.Stop()
			}
		}()
		return nil, fmt.Errorf("scheduler: register %q: %w", tag, rctx.Err())
	}
}
