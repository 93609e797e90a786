package bridge

import (
	"context"
	"sync"
)

type pipeEnd struct {
	in   chan Message
	peer *pipeEnd
	once sync.Once
	mu   sync.RWMutex
	done bool
}

// NewPipe returns two connected in-process endpoints. Sends never block: a
// full buffer drops the message, matching the at-most-once contract of the
// websocket transport.
func NewPipe(buffer int) (Endpoint, Endpoint) {
	if buffer <= 0 {
		buffer = 1
	}
	a := &pipeEnd{in: make(chan Message, buffer)}
	b := &pipeEnd{in: make(chan Message, buffer)}
	a.peer = b
	b.peer = a
	return a, b
}

func (p *pipeEnd) Send(ctx context.Context, m Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.RLock()
	closed := p.done
	p.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	peer := p.peer
	peer.mu.RLock()
	defer peer.mu.RUnlock()
	if peer.done {
		return ErrClosed
	}
	select {
	case peer.in <- m:
		return nil
	default:
		return ErrDropped
	}
}

func (p *pipeEnd) Messages() <-chan Message {
	return p.in
}

func (p *pipeEnd) Close() error {
	p.once.Do(func() {
		p.mu.Lock()
		p.done = true
		close(p.in)
		p.mu.Unlock()
	})
	return nil
}
