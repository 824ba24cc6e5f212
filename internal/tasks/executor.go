package tasks

import (
	"context"

	"github.com/kode4food/foreman/pkg/api"
)

type (
	// Executor performs the work of a task and returns its output
	Executor interface {
		Execute(ctx context.Context, task *api.Task) (any, error)
	}

	// ExecutorFunc adapts a function to the Executor interface
	ExecutorFunc func(ctx context.Context, task *api.Task) (any, error)
)

// Execute calls f(ctx, task)
func (f ExecutorFunc) Execute(
	ctx context.Context, task *api.Task,
) (any, error) {
	return f(ctx, task)
}
