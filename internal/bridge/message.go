// Package bridge carries the small message protocol between the foreground
// UI and the background daemon. Delivery is at-most-once and unordered with
// respect to store writes; receivers must treat every message as a hint.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	ErrInvalidMessage = errors.New("bridge: invalid message")
	ErrClosed         = errors.New("bridge: closed")
	ErrDropped        = errors.New("bridge: message dropped")
	ErrNoPeers        = errors.New("bridge: no connected peers")
)

type Type string

const (
	// TypeCleanup asks the background to purge ledger state for a reminder.
	TypeCleanup Type = "CLEANUP"
	// TypeRecheck asks the background for an immediate check pass.
	TypeRecheck Type = "RECHECK"
	// TypeFocus tells the foreground a notification for a reminder was clicked.
	TypeFocus Type = "FOCUS"
)

type Message struct {
	Type       Type   `json:"type"`
	ReminderID string `json:"reminderId,omitempty"`
}

func Cleanup(reminderID string) Message {
	return Message{Type: TypeCleanup, ReminderID: reminderID}
}

func Recheck() Message {
	return Message{Type: TypeRecheck}
}

func Focus(reminderID string) Message {
	return Message{Type: TypeFocus, ReminderID: reminderID}
}

func (m Message) Validate() error {
	switch m.Type {
	case TypeCleanup, TypeFocus:
		if strings.TrimSpace(m.ReminderID) == "" {
			return fmt.Errorf("%w: %s requires reminderId", ErrInvalidMessage, m.Type)
		}
		return nil
	case TypeRecheck:
		return nil
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, m.Type)
	}
}

func Encode(m Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func Decode(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Endpoint is one side of the channel.
type Endpoint interface {
	Send(ctx context.Context, m Message) error
	Messages() <-chan Message
	Close() error
}

// Signaler adapts an endpoint to the Reminder Store's cleanup hook.
type Signaler struct {
	Endpoint Endpoint
}

func (s Signaler) Cleanup(ctx context.Context, reminderID string) error {
	if s.Endpoint == nil {
		return ErrClosed
	}
	return s.Endpoint.Send(ctx, Cleanup(reminderID))
}
