package core

import (
	"context"
	"fmt"
	"maps"

	"github.com/kode4food/foreman/internal/tasks"
	"github.com/kode4food/foreman/pkg/api"
)

// ScriptRunner executes sandboxed scripts
type ScriptRunner interface {
	Execute(
		ctx context.Context, src string, vars map[string]any,
	) (map[string]any, error)
}

// ScriptKey is the task metadata entry holding the script to run
const ScriptKey = "script"

// ErrInvalidScript is returned when a task's script entry is not a string
var ErrInvalidScript = fmt.Errorf("%w: task script", api.ErrValidation)

// ScriptExecutor runs the script in a task's metadata, with the remaining
// metadata entries bound as variables. The script is interrupted when the
// task times out. A task without a script completes with its metadata as
// the result
func ScriptExecutor(scripts ScriptRunner) tasks.Executor {
	return tasks.ExecutorFunc(
		func(ctx context.Context, t *api.Task) (any, error) {
			vars := maps.Clone(map[string]any(t.Metadata))
			raw, ok := vars[ScriptKey]
			if !ok {
				return vars, nil
			}
			src, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrInvalidScript, t.ID)
			}
			delete(vars, ScriptKey)
			return scripts.Execute(ctx, src, vars)
		},
	)
}
