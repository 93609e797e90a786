package scheduler

import (
	"container/heap"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrInvalidWakeTime = errors.New("scheduler: invalid wake time")
	ErrEngineStopped   = errors.New("scheduler: engine stopped")
)

// Wake is a one-shot request to run a check pass at At.
type Wake struct {
	Tag    string
	Reason Reason
	At     time.Time
}

type wakeQueue []Wake

func (q wakeQueue) Len() int { return len(q) }

func (q wakeQueue) Less(i, j int) bool {
	return q[i].At.Before(q[j].At)
}

func (q wakeQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
}

func (q *wakeQueue) Push(x any) {
	*q = append(*q, x.(Wake))
}

func (q *wakeQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[0 : n-1]
	return item
}

// Engine emits wakes on C in time order. Emission never blocks: when the
// consumer is behind, the wake is counted in Dropped and discarded. A
// dropped wake is harmless because the next periodic tick or message
// triggers the same check.
type Engine struct {
	mu      sync.Mutex
	queue   wakeQueue
	out     chan Wake
	wakeup  chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	stopped bool
	dropped uint64
}

func NewEngine(bufferSize int) *Engine {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Engine{
		queue:  make(wakeQueue, 0),
		out:    make(chan Wake, bufferSize),
		wakeup: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

func (e *Engine) C() <-chan Wake {
	return e.out
}

func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true
	heap.Init(&e.queue)
	go e.loop()
}

func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started || e.stopped {
		e.stopped = true
		e.mu.Unlock()
		return
	}
	e.stopped = true
	close(e.stopCh)
	e.mu.Unlock()
	<-e.doneCh
}

func (e *Engine) Schedule(w Wake) error {
	if w.At.IsZero() {
		return ErrInvalidWakeTime
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrEngineStopped
	}
	heap.Push(&e.queue, w)
	e.signalWakeup()
	return nil
}

// Replace drops every pending wake carrying w.Tag and schedules w. Used for
// the next-due wake, of which only the latest computation matters.
func (e *Engine) Replace(w Wake) error {
	if w.At.IsZero() {
		return ErrInvalidWakeTime
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrEngineStopped
	}
	e.removeTagLocked(w.Tag)
	heap.Push(&e.queue, w)
	e.signalWakeup()
	return nil
}

func (e *Engine) Cancel(tag string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := e.removeTagLocked(tag)
	if n > 0 {
		e.signalWakeup()
	}
	return n
}

func (e *Engine) removeTagLocked(tag string) int {
	removed := 0
	for i := len(e.queue) - 1; i >= 0; i-- {
		if e.queue[i].Tag == tag {
			heap.Remove(&e.queue, i)
			removed++
		}
	}
	return removed
}

func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

func (e *Engine) Dropped() uint64 {
	return atomic.LoadUint64(&e.dropped)
}

func (e *Engine) loop() {
	defer close(e.doneCh)
	defer close(e.out)

	var timer *time.Timer
	for {
		next, hasNext := e.peek()
		if !hasNext {
			select {
			case <-e.wakeup:
				continue
			case <-e.stopCh:
				return
			}
		}

		wait := time.Until(next.At)
		if wait < 0 {
			wait = 0
		}
		timer = resetTimer(timer, wait)

		select {
		case <-timer.C:
			for _, w := range e.popDue(time.Now().UTC()) {
				select {
				case e.out <- w:
				default:
					atomic.AddUint64(&e.dropped, 1)
				}
			}
		case <-e.wakeup:
			continue
		case <-e.stopCh:
			stopTimer(timer)
			return
		}
	}
}

func (e *Engine) signalWakeup() {
	select {
	case e.wakeup <- struct{}{}:
	default:
	}
}

func (e *Engine) peek() (Wake, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return Wake{}, false
	}
	return e.queue[0], true
}

func (e *Engine) popDue(now time.Time) []Wake {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Wake, 0)
	for len(e.queue) > 0 {
		if e.queue[0].At.After(now) {
			break
		}
		out = append(out, heap.Pop(&e.queue).(Wake))
	}
	return out
}

func resetTimer(timer *time.Timer, d time.Duration) *time.Timer {
	if timer == nil {
		return time.NewTimer(d)
	}
	stopTimer(timer)
	timer.Reset(d)
	return timer
}

func stopTimer(timer *time.Timer) {
	if timer == nil {
		return
	}
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}
