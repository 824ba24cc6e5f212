package workflow

import (
	"context"

	"github.com/kode4food/foreman/pkg/api"
)

type (
	// StepExecutor runs one attempt of a step. The step's config has
	// already been interpolated against vars, which the executor must not
	// modify
	StepExecutor interface {
		Execute(
			ctx context.Context, step *api.WorkflowStep, vars map[string]any,
		) (*StepResult, error)
	}

	// StepFunc adapts a function to the StepExecutor interface
	StepFunc func(
		ctx context.Context, step *api.WorkflowStep, vars map[string]any,
	) (*StepResult, error)

	// StepResult is what a successful step attempt produced. Output merges
	// into the variable bag. A non-empty Next overrides the step's guards,
	// and Option is matched against guards that name a decision option
	StepResult struct {
		Output map[string]any
		Next   api.StepID
		Option string
	}

	// TaskRunner creates a task and runs it to completion
	TaskRunner interface {
		Submit(context.Context, *api.TaskRequest) (*api.TaskResult, error)
	}

	// Decider makes a decision over a set of options
	Decider interface {
		MakeDecision(
			context.Context, api.DecisionContext, []api.DecisionOption,
		) (*api.Decision, error)
	}

	// Scripts validates and runs sandboxed expressions and chunks
	Scripts interface {
		Validate(src string) error
		Evaluate(
			ctx context.Context, src string, vars map[string]any,
		) (bool, error)
		Execute(
			ctx context.Context, src string, vars map[string]any,
		) (map[string]any, error)
	}
)

// Execute calls f
func (f StepFunc) Execute(
	ctx context.Context, step *api.WorkflowStep, vars map[string]any,
) (*StepResult, error) {
	return f(ctx, step, vars)
}
