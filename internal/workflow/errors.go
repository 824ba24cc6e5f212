package workflow

import (
	"errors"
	"fmt"

	"github.com/kode4food/foreman/pkg/api"
)

var (
	ErrWorkflowNotFound  = fmt.Errorf("workflow %w", api.ErrNotFound)
	ErrExecutionNotFound = fmt.Errorf("execution %w", api.ErrNotFound)
	ErrTemplateNotFound  = fmt.Errorf("template %w", api.ErrNotFound)
	ErrAtCapacity        = fmt.Errorf("%w: workflows", api.ErrCapacity)
	ErrWorkflowDisabled  = fmt.Errorf("%w: disabled", api.ErrValidation)
	ErrMissingVariable   = fmt.Errorf("%w: missing variable", api.ErrValidation)
	ErrUnknownStepType   = fmt.Errorf("%w: unknown step type", api.ErrValidation)
	ErrNotInProgress     = fmt.Errorf("%w: not in progress", api.ErrInvalidState)

	ErrInvalidDefinition = fmt.Errorf(
		"%w: invalid definition", api.ErrValidation,
	)
	ErrInvalidTemplate = fmt.Errorf(
		"%w: invalid template", api.ErrValidation,
	)
	ErrInvalidStepConfig = fmt.Errorf(
		"%w: invalid step config", api.ErrValidation,
	)
	ErrTriggerUnavailable = fmt.Errorf(
		"%w: trigger source unavailable", api.ErrValidation,
	)

	ErrStepNotFound = errors.New("step not found")
	ErrTaskFailed   = errors.New("task failed")
	ErrStepPanicked = errors.New("step panicked")
)
