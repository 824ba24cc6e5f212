package tasks

import (
	"errors"
	"fmt"

	"github.com/kode4food/foreman/pkg/api"
)

var (
	ErrTaskNotFound   = fmt.Errorf("task %w", api.ErrNotFound)
	ErrTaskTimeout    = fmt.Errorf("task %w", api.ErrTimeout)
	ErrAtCapacity     = fmt.Errorf("%w: tasks", api.ErrCapacity)
	ErrTitleRequired  = fmt.Errorf("%w: title required", api.ErrValidation)
	ErrNoExecutor     = fmt.Errorf("%w: no executor", api.ErrValidation)
	ErrTaskInProgress = fmt.Errorf("%w: in progress", api.ErrInvalidState)
	ErrTaskFinished   = fmt.Errorf("%w: finished", api.ErrInvalidState)
	ErrTaskNotPending = fmt.Errorf("%w: not pending", api.ErrInvalidState)

	ErrInvalidPriority = fmt.Errorf(
		"%w: invalid priority", api.ErrValidation,
	)
	ErrExecutorPanicked = errors.New("executor panicked")
)
