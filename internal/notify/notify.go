// Package notify shows trigger intents to the user.
package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/sandeepkv93/pickupd/internal/trigger"
)

// ErrPermissionDenied means the platform cannot or will not display
// notifications. Callers keep evaluating and log intents instead.
var ErrPermissionDenied = errors.New("notify: permission denied")

type Notifier interface {
	Show(ctx context.Context, in trigger.Intent) error
	Permission(ctx context.Context) error
}

// ClickSource is implemented by notifiers that report which reminder's
// notification the user clicked.
type ClickSource interface {
	Clicks() <-chan string
}

type Noop struct{}

func (Noop) Show(context.Context, trigger.Intent) error { return nil }
func (Noop) Permission(context.Context) error            { return nil }

// Multi fans an intent out to every member.
type Multi struct {
	members []Notifier
	clicks  chan string
	once    sync.Once
}

func NewMulti(members ...Notifier) *Multi {
	kept := make([]Notifier, 0, len(members))
	for _, m := range members {
		if m != nil {
			kept = append(kept, m)
		}
	}
	return &Multi{members: kept}
}

func (m *Multi) Show(ctx context.Context, in trigger.Intent) error {
	var errs []error
	for _, n := range m.members {
		if err := n.Show(ctx, in); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Permission succeeds when at least one member may show notifications.
func (m *Multi) Permission(ctx context.Context) error {
	if len(m.members) == 0 {
		return ErrPermissionDenied
	}
	var errs []error
	for _, n := range m.members {
		err := n.Permission(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Clicks merges the click streams of all members that have one.
func (m *Multi) Clicks() <-chan string {
	m.once.Do(func() {
		m.clicks = make(chan string, 16)
		var wg sync.WaitGroup
		for _, n := range m.members {
			src, ok := n.(ClickSource)
			if !ok {
				continue
			}
			wg.Add(1)
			go func(ch <-chan string) {
				defer wg.Done()
				for id := range ch {
					m.clicks <- id
				}
			}(src.Clicks())
		}
		go func() {
			wg.Wait()
			close(m.clicks)
		}()
	})
	return m.clicks
}
