package events

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/webdevcody/youtube-video-suggestions/internal/metrics"
)

// Handler receives a published event. Handlers run on the publisher's
// goroutine and must not block or publish.
type Handler func(Event)

type subscription struct {
	id uint64
	fn Handler
}

// Bus is a synchronous, process-local publish/subscribe register keyed by
// event kind. It holds no events: publishing with no subscribers is a no-op
// and late subscribers never see earlier events.
type Bus struct {
	logger *slog.Logger

	mu       sync.RWMutex
	nextID   uint64
	handlers map[Kind][]subscription
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger:   logger,
		handlers: make(map[Kind][]subscription),
	}
}

// Subscribe registers fn for every given kind and returns a function that
// removes it from all of them. The returned function is idempotent.
func (b *Bus) Subscribe(fn Handler, kinds ...Kind) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	sub := subscription{id: b.nextID, fn: fn}
	for _, k := range kinds {
		b.handlers[k] = append(b.handlers[k], sub)
	}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for _, k := range kinds {
				b.handlers[k] = removeSub(b.handlers[k], sub.id)
				if len(b.handlers[k]) == 0 {
					delete(b.handlers, k)
				}
			}
		})
	}
}

// Publish delivers e to every handler currently registered for e.Type, in
// registration order, before returning. A panicking handler is logged and
// does not stop delivery to the rest.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.handlers[e.Type]))
	copy(subs, b.handlers[e.Type])
	b.mu.RUnlock()

	metrics.EventsPublished.WithLabelValues(string(e.Type)).Inc()

	for _, sub := range subs {
		b.deliver(sub, e)
	}
}

// Subscribers returns the number of handlers registered for kind.
func (b *Bus) Subscribers(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[kind])
}

func (b *Bus) deliver(sub subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("events: handler panicked",
				slog.String("type", string(e.Type)),
				slog.Uint64("subscription", sub.id),
				slog.String("panic", fmt.Sprint(r)))
		}
	}()
	sub.fn(e)
}

func removeSub(subs []subscription, id uint64) []subscription {
	out := subs[:0:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}
