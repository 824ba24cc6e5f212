package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kode4food/foreman/pkg/api"
	"github.com/kode4food/foreman/pkg/log"
)

type (
	// HealingAction runs when its condition holds after a collection, at
	// most once per cooldown
	HealingAction struct {
		Condition HealingCondition
		Action    HealingFunc
		Name      string
		Cooldown  time.Duration
	}

	// HealingCondition inspects the latest snapshot and the unresolved
	// alerts
	HealingCondition func(*api.SystemSnapshot, []*api.Alert) bool

	// HealingFunc remedies the condition seen in the snapshot
	HealingFunc func(ctx context.Context, s *api.SystemSnapshot) error

	// WorkflowLauncher starts workflow executions
	WorkflowLauncher interface {
		Execute(
			ctx context.Context, id api.WorkflowID, vars map[string]any,
		) (*api.WorkflowExecution, error)
	}
)

// WorkflowHealing builds a healing action that launches a workflow. The
// snapshot that triggered it is passed in the "snapshot" variable
func WorkflowHealing(
	name string, cond HealingCondition, cooldown time.Duration,
	wf WorkflowLauncher, id api.WorkflowID, vars map[string]any,
) *HealingAction {
	action := func(ctx context.Context, s *api.SystemSnapshot) error {
		bag := api.CloneValues(vars)
		if bag == nil {
			bag = map[string]any{}
		}
		bag["healing_action"] = name
		if s != nil {
			readings := map[string]any{}
			for k, v := range snapshotReadings(s) {
				readings[k] = v
			}
			bag["snapshot"] = readings
		}
		exec, err := wf.Execute(ctx, id, bag)
		if err != nil {
			return err
		}
		slog.Info("Healing workflow launched",
			slog.String("action", name),
			log.WorkflowID(id),
			log.ExecutionID(exec.ID))
		return nil
	}
	return &HealingAction{
		Name:      name,
		Condition: cond,
		Action:    action,
		Cooldown:  cooldown,
	}
}

// AlertPresent is a condition that holds while an unresolved alert of the
// given type exists for the metric or source
func AlertPresent(typ, subject string) HealingCondition {
	return func(_ *api.SystemSnapshot, alerts []*api.Alert) bool {
		for _, a := range alerts {
			if a.Type == typ && (a.Metric == subject || a.Source == subject) {
				return true
			}
		}
		return false
	}
}

func (h *HealingAction) validate() error {
	if h == nil || h.Name == "" {
		return fmt.Errorf("%w: name required", ErrInvalidHealing)
	}
	if h.Condition == nil || h.Action == nil {
		return fmt.Errorf("%w: %s needs a condition and an action",
			ErrInvalidHealing, h.Name)
	}
	if h.Cooldown < 0 {
		return fmt.Errorf("%w: %s has negative cooldown",
			ErrInvalidHealing, h.Name)
	}
	return nil
}

func (h *HealingAction) run(
	ctx context.Context, s *api.SystemSnapshot,
) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHealingPanicked, r)
		}
	}()
	return h.Action(ctx, s)
}
