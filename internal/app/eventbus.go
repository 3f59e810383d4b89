package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/mucd/internal/domain"
	"github.com/rs/zerolog/log"
)

// Listener reacts to a membership event.
type Listener func(ctx context.Context, ev domain.Event) error

type listenerEntry struct {
	name string
	fn   Listener
}

// Bus is an explicit listener registry. Dispatch is synchronous and calls
// listeners in registration order; a failing listener does not stop the
// others.
type Bus struct {
	mu        sync.RWMutex
	listeners []listenerEntry
}

func NewBus() *Bus {
	return &Bus{}
}

// Add registers fn under name, replacing a listener of the same name.
// The returned func removes it.
func (b *Bus) Add(name string, fn Listener) (remove func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.listeners {
		if b.listeners[i].name == name {
			b.listeners[i].fn = fn
			return func() { b.Remove(name) }
		}
	}
	b.listeners = append(b.listeners, listenerEntry{name: name, fn: fn})
	return func() { b.Remove(name) }
}

func (b *Bus) Remove(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.listeners {
		if b.listeners[i].name == name {
			b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
			return
		}
	}
}

func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

func (b *Bus) Dispatch(ctx context.Context, ev domain.Event) {
	b.mu.RLock()
	listeners := append([]listenerEntry(nil), b.listeners...)
	b.mu.RUnlock()

	for _, l := range listeners {
		if err := b.call(ctx, l, ev); err != nil {
			log.Warn().Str("module", "app.bus").Str("listener", l.name).Str("event", string(ev.Kind)).Str("room", string(ev.Room)).Err(err).Msg("listener failed")
		}
	}
}

func (b *Bus) call(ctx context.Context, l listenerEntry, ev domain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return l.fn(ctx, ev)
}
