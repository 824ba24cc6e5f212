package workflow

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/kode4food/foreman/internal/events"
	"github.com/kode4food/foreman/pkg/api"
	"github.com/kode4food/foreman/pkg/log"
)

// activation holds what a registered definition's triggers hold open
type activation struct {
	subs   []events.SubscriptionID
	states []*api.TriggerState
}

// ListTriggers returns the state of every active trigger, ordered by
// workflow and trigger index
func (e *Engine) ListTriggers() []*api.TriggerState {
	e.mu.Lock()
	defer e.mu.Unlock()
	var res []*api.TriggerState
	for _, a := range e.activations {
		for _, st := range a.states {
			cpy := *st
			res = append(res, &cpy)
		}
	}
	slices.SortFunc(res, func(l, r *api.TriggerState) int {
		return cmp.Or(
			cmp.Compare(l.WorkflowID, r.WorkflowID),
			cmp.Compare(l.Index, r.Index),
		)
	})
	return res
}

func (e *Engine) checkTriggerSources(def *api.WorkflowDefinition) error {
	for _, t := range def.Triggers {
		switch {
		case t.Type == api.TriggerSchedule && e.timer == nil:
			return fmt.Errorf("%w: %s schedule", ErrTriggerUnavailable, def.ID)
		case t.Type == api.TriggerEvent && e.subscriber == nil:
			return fmt.Errorf("%w: %s event", ErrTriggerUnavailable, def.ID)
		}
	}
	return nil
}

func (e *Engine) activate(def *api.WorkflowDefinition) error {
	a := &activation{}
	var err error
	for i, t := range def.Triggers {
		st := &api.TriggerState{
			WorkflowID: def.ID,
			Type:       t.Type,
			Event:      t.Event,
			Index:      i,
		}
		a.states = append(a.states, st)
		switch t.Type {
		case api.TriggerSchedule:
			err = e.activateSchedule(def.ID, t, st)
		case api.TriggerEvent:
			err = e.activateEvent(def.ID, t, a)
		}
		if err != nil {
			e.deactivate(def.ID, a)
			return err
		}
	}

	e.mu.Lock()
	e.activations[def.ID] = a
	e.mu.Unlock()
	return nil
}

func (e *Engine) activateSchedule(
	id api.WorkflowID, t *api.WorkflowTrigger, st *api.TriggerState,
) error {
	interval := time.Duration(t.IntervalMs) * time.Millisecond
	key := fmt.Sprintf("%s%d", triggerPrefix(id), st.Index)
	vars := api.CloneValues(t.Variables)

	e.mu.Lock()
	st.NextRun = e.now().Add(interval)
	e.mu.Unlock()

	return e.timer.Every(e.ctx, key, interval, func() error {
		e.mu.Lock()
		now := e.now()
		st.LastRun = now
		st.NextRun = now.Add(interval)
		e.mu.Unlock()

		_, err := e.Execute(e.ctx, id, api.CloneValues(vars))
		return err
	})
}

func (e *Engine) activateEvent(
	id api.WorkflowID, t *api.WorkflowTrigger, a *activation,
) error {
	vars := api.CloneValues(t.Variables)
	sub, err := e.subscriber.Subscribe(t.Event, func(ev *api.Event) {
		bag := api.CloneValues(vars)
		if bag == nil {
			bag = map[string]any{}
		}
		maps.Copy(bag, eventPayload(ev))

		_, err := e.Execute(e.ctx, id, bag)
		if err != nil {
			slog.Warn("Event trigger not executed",
				log.WorkflowID(id),
				log.EventType(ev.Type),
				log.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}
	a.subs = append(a.subs, sub)
	return nil
}

func (e *Engine) deactivate(id api.WorkflowID, a *activation) {
	if a == nil {
		return
	}
	for _, sub := range a.subs {
		err := e.subscriber.Unsubscribe(sub)
		if err != nil && !errors.Is(err, events.ErrSubscriptionNotFound) {
			slog.Warn("Trigger unsubscribe failed",
				log.WorkflowID(id),
				log.Error(err))
		}
	}
	if e.timer != nil {
		e.timer.CancelPrefix(e.ctx, triggerPrefix(id))
	}
}

func triggerPrefix(id api.WorkflowID) string {
	return fmt.Sprintf("workflow/%s/trigger/", id)
}

// eventPayload turns an event's data into variables. Maps and structs
// are flattened into top-level variables; any other value is kept under
// "event". The triggering event's type is always available
func eventPayload(ev *api.Event) map[string]any {
	res := map[string]any{}
	switch data := ev.Data.(type) {
	case nil:
	case map[string]any:
		maps.Copy(res, api.CloneValues(data))
	default:
		if m, ok := toValues(data); ok {
			maps.Copy(res, m)
		} else {
			res["event"] = data
		}
	}
	res["event_type"] = string(ev.Type)
	return res
}

func toValues(v any) (map[string]any, bool) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var res map[string]any
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, false
	}
	return res, true
}
