package events_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/foreman/internal/events"
	"github.com/kode4food/foreman/pkg/api"
)

const waitTimeout = time.Second

func TestPublishMatchesPattern(t *testing.T) {
	hub := events.NewHub()
	defer hub.Close()

	tasks := make(chan *api.Event, 4)
	all := make(chan *api.Event, 4)

	_, err := hub.Subscribe("task.*", func(ev *api.Event) { tasks <- ev })
	require.NoError(t, err)
	_, err = hub.Subscribe("*", func(ev *api.Event) { all <- ev })
	require.NoError(t, err)

	hub.Raise(api.EventWorkflowStarted, "workflow", nil)
	hub.Raise(api.EventTaskCompleted, "tasks", map[string]any{"id": "t1"})

	ev := receive(t, tasks)
	assert.Equal(t, api.EventTaskCompleted, ev.Type)
	assert.Equal(t, "tasks", ev.Source)
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.Timestamp.IsZero())

	assert.Equal(t, api.EventWorkflowStarted, receive(t, all).Type)
	assert.Equal(t, api.EventTaskCompleted, receive(t, all).Type)
	assertNone(t, tasks)
}

func TestPublishKeepsCallerFields(t *testing.T) {
	hub := events.NewHub()
	defer hub.Close()

	got := make(chan *api.Event, 1)
	_, err := hub.Subscribe("system.error", func(ev *api.Event) { got <- ev })
	require.NoError(t, err)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	orig := &api.Event{ID: "fixed", Type: api.EventSystemError, Timestamp: at}
	hub.Publish(orig)
	hub.Publish(nil)

	ev := receive(t, got)
	assert.Equal(t, api.EventID("fixed"), ev.ID)
	assert.True(t, at.Equal(ev.Timestamp))
	assert.NotSame(t, orig, ev)
}

func TestDeliveryOrderPerSubscription(t *testing.T) {
	hub := events.NewHub()
	defer hub.Close()

	var mu sync.Mutex
	var seen []any
	done := make(chan struct{})
	_, err := hub.Subscribe("decision.*", func(ev *api.Event) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, ev.Data)
		if len(seen) == 5 {
			close(done)
		}
	})
	require.NoError(t, err)

	for i := range 5 {
		hub.Raise(api.EventDecisionMade, "decision", i)
	}

	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("events not delivered")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []any{0, 1, 2, 3, 4}, seen)
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	hub := events.NewHub()
	defer hub.Close()

	release := make(chan struct{})
	_, err := hub.Subscribe("*", func(*api.Event) { <-release })
	require.NoError(t, err)

	fast := make(chan *api.Event, 100)
	_, err = hub.Subscribe("*", func(ev *api.Event) { fast <- ev })
	require.NoError(t, err)

	published := make(chan struct{})
	go func() {
		for range 50 {
			hub.Raise(api.EventTaskCreated, "tasks", nil)
		}
		close(published)
	}()

	select {
	case <-published:
	case <-time.After(waitTimeout):
		t.Fatal("publish blocked on slow subscriber")
	}
	for range 50 {
		receive(t, fast)
	}
	close(release)
}

func TestHandlerPanicRecovered(t *testing.T) {
	hub := events.NewHub()
	defer hub.Close()

	got := make(chan *api.Event, 2)
	_, err := hub.Subscribe("*", func(ev *api.Event) {
		if ev.Data == "boom" {
			panic("boom")
		}
		got <- ev
	})
	require.NoError(t, err)

	hub.Raise(api.EventSystemError, "test", "boom")
	hub.Raise(api.EventSystemError, "test", "ok")
	assert.Equal(t, "ok", receive(t, got).Data)
}

func TestSubscribeValidation(t *testing.T) {
	hub := events.NewHub()
	defer hub.Close()

	_, err := hub.Subscribe("", func(*api.Event) {})
	assert.ErrorIs(t, err, events.ErrInvalidPattern)
	assert.ErrorIs(t, err, api.ErrValidation)

	_, err = hub.Subscribe("task.[", func(*api.Event) {})
	assert.ErrorIs(t, err, events.ErrInvalidPattern)

	_, err = hub.Subscribe("task.*", nil)
	assert.ErrorIs(t, err, events.ErrNilHandler)
}

func TestUnsubscribe(t *testing.T) {
	hub := events.NewHub()
	defer hub.Close()

	got := make(chan *api.Event, 4)
	id, err := hub.Subscribe("*", func(ev *api.Event) { got <- ev })
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Len())

	require.NoError(t, hub.Unsubscribe(id))
	assert.Equal(t, 0, hub.Len())
	hub.Raise(api.EventTaskCreated, "tasks", nil)
	assertNone(t, got)

	err = hub.Unsubscribe(id)
	assert.ErrorIs(t, err, events.ErrSubscriptionNotFound)
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestEventsBeforeSubscribeNotDelivered(t *testing.T) {
	hub := events.NewHub()
	defer hub.Close()

	hub.Raise(api.EventTaskCreated, "tasks", "early")

	got := make(chan *api.Event, 2)
	_, err := hub.Subscribe("*", func(ev *api.Event) { got <- ev })
	require.NoError(t, err)
	hub.Raise(api.EventTaskCreated, "tasks", "late")

	assert.Equal(t, "late", receive(t, got).Data)
	assertNone(t, got)
}

func TestClose(t *testing.T) {
	hub := events.NewHub()
	_, err := hub.Subscribe("*", func(*api.Event) {})
	require.NoError(t, err)

	hub.Close()
	hub.Close()
	assert.Equal(t, 0, hub.Len())

	_, err = hub.Subscribe("*", func(*api.Event) {})
	assert.ErrorIs(t, err, events.ErrHubClosed)
	hub.Raise(api.EventTaskCreated, "tasks", nil)
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() {
		events.Discard.Raise(api.EventTaskCreated, "tasks", nil)
	})
}

func receive(t *testing.T, ch <-chan *api.Event) *api.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(waitTimeout):
		t.Fatal("event not received")
		return nil
	}
}

func assertNone(t *testing.T, ch <-chan *api.Event) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %s", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}
