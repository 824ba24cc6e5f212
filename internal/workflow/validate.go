package workflow

import (
	"errors"
	"fmt"

	"github.com/kode4food/foreman/pkg/api"
	"github.com/kode4food/foreman/pkg/util"
)

// ValidateDefinition checks the structure of a definition: it needs an ID
// and at least one step, step IDs must be unique, and every branch target
// must name a step of the definition
func ValidateDefinition(def *api.WorkflowDefinition) error {
	if def == nil {
		return fmt.Errorf("%w: nil", ErrInvalidDefinition)
	}
	if def.ID == "" {
		return fmt.Errorf("%w: id required", ErrInvalidDefinition)
	}
	if len(def.Steps) == 0 {
		return fmt.Errorf("%w: %s has no steps", ErrInvalidDefinition, def.ID)
	}

	ids := util.Set[api.StepID]{}
	for i, s := range def.Steps {
		if s == nil || s.ID == "" {
			return fmt.Errorf("%w: %s step %d has no id",
				ErrInvalidDefinition, def.ID, i)
		}
		if ids.Contains(s.ID) {
			return fmt.Errorf("%w: %s has duplicate step %s",
				ErrInvalidDefinition, def.ID, s.ID)
		}
		ids.Add(s.ID)
	}

	var errs []error
	for _, s := range def.Steps {
		errs = append(errs, validateTargets(def.ID, s, ids))
	}
	for i, t := range def.Triggers {
		errs = append(errs, validateTrigger(def.ID, i, t))
	}
	return errors.Join(errs...)
}

func validateTargets(
	id api.WorkflowID, s *api.WorkflowStep, ids util.Set[api.StepID],
) error {
	for _, n := range s.Next {
		if n.Step != "" && !ids.Contains(n.Step) {
			return fmt.Errorf("%w: %s step %s targets unknown step %s",
				ErrInvalidDefinition, id, s.ID, n.Step)
		}
	}
	if s.Type != api.StepCondition {
		return nil
	}
	for _, branch := range []string{"then", "else"} {
		target, ok := configString(s, branch)
		if ok && target != "" && !ids.Contains(api.StepID(target)) {
			return fmt.Errorf("%w: %s step %s %s targets unknown step %s",
				ErrInvalidDefinition, id, s.ID, branch, target)
		}
	}
	return nil
}

func validateTrigger(id api.WorkflowID, i int, t *api.WorkflowTrigger) error {
	if t == nil {
		return fmt.Errorf("%w: %s trigger %d is empty",
			ErrInvalidDefinition, id, i)
	}
	switch t.Type {
	case api.TriggerSchedule:
		if t.IntervalMs <= 0 {
			return fmt.Errorf("%w: %s trigger %d needs a positive interval",
				ErrInvalidDefinition, id, i)
		}
	case api.TriggerEvent:
		if t.Event == "" {
			return fmt.Errorf("%w: %s trigger %d needs an event pattern",
				ErrInvalidDefinition, id, i)
		}
	default:
		return fmt.Errorf("%w: %s trigger %d has unknown type %q",
			ErrInvalidDefinition, id, i, t.Type)
	}
	return nil
}

func validateExpressions(def *api.WorkflowDefinition, scripts Scripts) error {
	for _, s := range def.Steps {
		for _, n := range s.Next {
			if n.When == "" {
				continue
			}
			if err := scripts.Validate(n.When); err != nil {
				return fmt.Errorf("%w: %s step %s guard: %w",
					ErrInvalidDefinition, def.ID, s.ID, err)
			}
		}
	}
	return nil
}
