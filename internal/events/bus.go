package events

import (
	"context"
	"fmt"
	"sync"

	"vtuber/internal/logging"
)

// DefaultMaxHistory is the history capacity used when none is given.
const DefaultMaxHistory = 100

// Handler reacts to an event without blocking on I/O.
type Handler func(ev Event) error

// ContextHandler reacts to an event and may block; it is only invoked by Publish.
type ContextHandler func(ctx context.Context, ev Event) error

// SubscriptionID identifies one registration. Registering the same function
// twice yields two ids and two invocations per event.
type SubscriptionID uint64

type subscription struct {
	id     SubscriptionID
	name   string
	plain  Handler
	withCx ContextHandler
}

// Bus dispatches events to subscribers in subscription order and keeps a
// bounded history of the most recent events.
type Bus struct {
	mu          sync.Mutex
	subscribers map[EventKind][]subscription
	history     []Event
	maxHistory  int
	nextID      SubscriptionID
}

// NewBus creates a bus keeping at most maxHistory events (<= 0 means 100).
func NewBus(maxHistory int) *Bus {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Bus{
		subscribers: make(map[EventKind][]subscription),
		maxHistory:  maxHistory,
	}
}

// Subscribe registers a non-blocking handler for kind.
func (b *Bus) Subscribe(kind EventKind, h Handler) SubscriptionID {
	return b.add(kind, subscription{plain: h})
}

// SubscribeContext registers a context-aware handler for kind.
// PublishSync skips such handlers.
func (b *Bus) SubscribeContext(kind EventKind, h ContextHandler) SubscriptionID {
	return b.add(kind, subscription{withCx: h})
}

func (b *Bus) add(kind EventKind, sub subscription) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub.id = b.nextID
	sub.name = fmt.Sprintf("%s#%d", kind, sub.id)
	b.subscribers[kind] = append(b.subscribers[kind], sub)
	logging.EventsDebug("subscribed handler %s", sub.name)
	return sub.id
}

// Unsubscribe removes the registration id from kind. Returns false if absent.
// A dispatch already in progress still invokes the handlers it snapshotted.
func (b *Bus) Unsubscribe(kind EventKind, id SubscriptionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[kind]
	for i, s := range subs {
		if s.id == id {
			next := make([]subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			b.subscribers[kind] = next
			logging.EventsDebug("unsubscribed handler %s", s.name)
			return true
		}
	}
	return false
}

// SubscriberCount returns the number of registrations for kind.
func (b *Bus) SubscriberCount(kind EventKind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[kind])
}

// record appends ev to history and returns a snapshot of the subscribers.
func (b *Bus) record(ev Event) []subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = append(b.history, ev)
	if over := len(b.history) - b.maxHistory; over > 0 {
		b.history = append([]Event(nil), b.history[over:]...)
	}
	subs := b.subscribers[ev.Kind]
	snapshot := make([]subscription, len(subs))
	copy(snapshot, subs)
	return snapshot
}

// Publish records ev and invokes every handler for ev.Kind sequentially, in
// subscription order. A failing handler does not stop the others; each
// failure is re-published as a system_error event unless ev is itself one.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	subs := b.record(ev)
	logging.EventsDebug("publishing %s to %d handler(s)", ev, len(subs))

	for _, s := range subs {
		err := invoke(ctx, s, ev)
		if err == nil {
			continue
		}
		logging.EventsError("error in event handler %s for %s: %v", s.name, ev.Kind, err)
		if ev.Kind == KindSystemError {
			continue
		}
		b.Publish(ctx, NewEvent(KindSystemError, map[string]any{
			"error":             err.Error(),
			"original_event":    string(ev.Kind),
			"original_event_id": ev.ID,
			"handler":           s.name,
		}, "event_bus"))
	}
}

// PublishSync records ev and invokes only the non-blocking handlers.
// Context handlers are skipped; handler failures are logged, not re-published.
func (b *Bus) PublishSync(ev Event) {
	subs := b.record(ev)
	logging.EventsDebug("publishing (sync) %s to %d handler(s)", ev, len(subs))

	for _, s := range subs {
		if s.plain == nil {
			logging.EventsWarn("skipping context handler %s in sync publish", s.name)
			continue
		}
		if err := invoke(context.Background(), s, ev); err != nil {
			logging.EventsError("error in event handler %s for %s: %v", s.name, ev.Kind, err)
		}
	}
}

func invoke(ctx context.Context, s subscription, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	if s.withCx != nil {
		return s.withCx(ctx, ev)
	}
	return s.plain(ev)
}

// History returns up to limit of the most recent events, oldest first.
// A nil kind returns events of every kind.
func (b *Bus) History(kind *EventKind, limit int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	var filtered []Event
	if kind == nil {
		filtered = b.history
	} else {
		for _, ev := range b.history {
			if ev.Kind == *kind {
				filtered = append(filtered, ev)
			}
		}
	}
	if limit >= 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	out := make([]Event, len(filtered))
	copy(out, filtered)
	return out
}

// ClearHistory drops every recorded event.
func (b *Bus) ClearHistory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = nil
	logging.Events("event history cleared")
}
