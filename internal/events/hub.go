package events

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"github.com/kode4food/caravan"
	"github.com/kode4food/caravan/message"
	"github.com/kode4food/caravan/topic"

	"github.com/kode4food/foreman/pkg/api"
	"github.com/kode4food/foreman/pkg/log"
)

type (
	// Hub fans published events out to matching subscriptions
	Hub struct {
		subs   map[SubscriptionID]*subscription
		now    func() time.Time
		mu     sync.RWMutex
		closed bool
	}

	// Handler receives events delivered to a subscription
	Handler func(*api.Event)

	// SubscriptionID identifies a subscription for Unsubscribe
	SubscriptionID string

	subscription struct {
		handler Handler
		prod    topic.Producer[*api.Event]
		cons    topic.Consumer[*api.Event]
		stop    chan struct{}
		done    chan struct{}
		id      SubscriptionID
		pattern string
		once    sync.Once
	}
)

var (
	ErrInvalidPattern = fmt.Errorf(
		"%w: invalid event pattern", api.ErrValidation,
	)
	ErrNilHandler           = fmt.Errorf("%w: nil handler", api.ErrValidation)
	ErrSubscriptionNotFound = fmt.Errorf("subscription %w", api.ErrNotFound)
	ErrHubClosed            = errors.New("event hub closed")
)

// NewHub creates an empty event hub
func NewHub() *Hub {
	return &Hub{
		subs: map[SubscriptionID]*subscription{},
		now:  time.Now,
	}
}

// Subscribe registers handler for every later event whose type matches
// pattern. Events published before the call are never delivered to it
func (h *Hub) Subscribe(
	pattern string, handler Handler,
) (SubscriptionID, error) {
	if pattern == "" || !doublestar.ValidatePattern(pattern) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPattern, pattern)
	}
	if handler == nil {
		return "", ErrNilHandler
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return "", ErrHubClosed
	}

	t := caravan.NewTopic[*api.Event]()
	sub := &subscription{
		id:      SubscriptionID(uuid.NewString()),
		pattern: pattern,
		handler: handler,
		prod:    t.NewProducer(),
		cons:    t.NewConsumer(),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	h.subs[sub.id] = sub
	go sub.deliver()
	return sub.id, nil
}

// Unsubscribe stops delivery to the subscription. Events still queued for
// it are dropped
func (h *Hub) Unsubscribe(id SubscriptionID) error {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSubscriptionNotFound, id)
	}
	sub.close()
	return nil
}

// Publish delivers a copy of the event to every matching subscription,
// assigning an ID and timestamp when they are absent
func (h *Hub) Publish(ev *api.Event) {
	if ev == nil {
		return
	}
	out := *ev
	if out.ID == "" {
		out.ID = api.EventID(uuid.NewString())
	}
	if out.Timestamp.IsZero() {
		out.Timestamp = h.now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for _, sub := range h.subs {
		if sub.matches(out.Type) {
			message.Send(sub.prod, &out)
		}
	}
}

// Raise builds and publishes an event
func (h *Hub) Raise(typ api.EventType, source string, data any) {
	h.Publish(&api.Event{Type: typ, Source: source, Data: data})
}

// Len returns the number of active subscriptions
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close stops every subscription and waits for in-flight handlers
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := h.subs
	h.subs = map[SubscriptionID]*subscription{}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
		<-sub.done
	}
}

func (s *subscription) matches(typ api.EventType) bool {
	ok, err := doublestar.Match(s.pattern, string(typ))
	return err == nil && ok
}

func (s *subscription) deliver() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case ev, ok := <-s.cons.Receive():
			if !ok {
				return
			}
			s.handle(ev)
		}
	}
}

func (s *subscription) handle(ev *api.Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Event handler panicked",
				log.EventType(ev.Type),
				slog.String("subscription", string(s.id)),
				slog.Any("panic", r))
		}
	}()
	s.handler(ev)
}

func (s *subscription) close() {
	s.once.Do(func() {
		close(s.stop)
		s.prod.Close()
		s.cons.Close()
	})
}
