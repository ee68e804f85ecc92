// Package messaging delivers domain events to in-process subscribers and,
// optionally, to other service instances and the notification broker.
package messaging

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/shared"
)

var (
	// ErrEventBusClosed is returned by Publish and Subscribe after Close.
	ErrEventBusClosed = errors.New("event bus is closed")

	ErrNilHandler = errors.New("event bus: nil handler")
	ErrNilEvent   = errors.New("event bus: nil event")
)

// ══════════════════════════════════════════════════════════════════════════════
// LOCAL BUS
// ══════════════════════════════════════════════════════════════════════════════

// LocalBus runs handlers inside this process. A handler error or panic is
// logged and counted; it never reaches the command that published.
type LocalBus struct {
	log *slog.Logger

	// slots bounds concurrent handlers; nil runs them before Publish returns.
	slots chan struct{}

	mu       sync.RWMutex
	byType   map[shared.EventType][]shared.EventHandler
	wildcard []shared.EventHandler
	closed   bool
	inflight sync.WaitGroup

	handled atomic.Int64
	failed  atomic.Int64
}

// NewLocalBus returns a bus with workers concurrent handler slots.
// workers <= 0 delivers synchronously.
func NewLocalBus(log *slog.Logger, workers int) *LocalBus {
	if log == nil {
		log = slog.Default()
	}
	b := &LocalBus{log: log, byType: make(map[shared.EventType][]shared.EventHandler)}
	if workers > 0 {
		b.slots = make(chan struct{}, workers)
	}
	return b
}

func (b *LocalBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.add(handler, func() { b.byType[eventType] = append(b.byType[eventType], handler) })
}

// SubscribeAll receives every event regardless of type.
func (b *LocalBus) SubscribeAll(handler shared.EventHandler) error {
	return b.add(handler, func() { b.wildcard = append(b.wildcard, handler) })
}

func (b *LocalBus) add(handler shared.EventHandler, register func()) error {
	if handler == nil {
		return ErrNilHandler
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	register()
	return nil
}

// Publish hands the event to its type's handlers, then to wildcard ones.
func (b *LocalBus) Publish(event shared.Event) error {
	if event == nil {
		return ErrNilEvent
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	typed := b.byType[event.EventType()]
	targets := make([]shared.EventHandler, 0, len(typed)+len(b.wildcard))
	targets = append(append(targets, typed...), b.wildcard...)
	// Counted under the lock so Close waits for these.
	b.inflight.Add(len(targets))
	b.mu.RUnlock()

	for _, h := range targets {
		if b.slots == nil {
			b.deliver(event, h)
			continue
		}
		go func(h shared.EventHandler) {
			b.slots <- struct{}{}
			defer func() { <-b.slots }()
			b.deliver(event, h)
		}(h)
	}
	return nil
}

func (b *LocalBus) deliver(event shared.Event, h shared.EventHandler) {
	defer b.inflight.Done()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("handler panicked: %v", r)
			}
		}()
		return h(event)
	}()

	b.handled.Add(1)
	if err != nil {
		b.failed.Add(1)
		b.log.Error("event handler failed",
			"event_type", event.EventType(),
			"aggregate_id", event.AggregateID(),
			"error", err)
	}
}

// Stats reports handler runs and how many of them failed or panicked.
func (b *LocalBus) Stats() (handled, failed int64) {
	return b.handled.Load(), b.failed.Load()
}

// Close refuses new events and waits for queued handlers to finish.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	already := b.closed
	b.closed = true
	b.mu.Unlock()
	if already {
		return nil
	}
	b.inflight.Wait()
	return nil
}
