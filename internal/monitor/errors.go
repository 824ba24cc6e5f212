package monitor

import (
	"errors"
	"fmt"

	"github.com/kode4food/foreman/pkg/api"
)

var (
	ErrAlertNotFound   = fmt.Errorf("alert %w", api.ErrNotFound)
	ErrAlertResolved   = fmt.Errorf("%w: alert resolved", api.ErrInvalidState)
	ErrInvalidSource   = fmt.Errorf("%w: invalid source", api.ErrValidation)
	ErrInvalidRule     = fmt.Errorf("%w: invalid threshold", api.ErrValidation)
	ErrInvalidHealing  = fmt.Errorf("%w: invalid healing", api.ErrValidation)
	ErrSourcePanicked  = errors.New("source panicked")
	ErrHealingPanicked = errors.New("healing action panicked")
	ErrAlreadyStarted  = errors.New("monitor already started")
	ErrNoTimer         = errors.New("monitor has no timer")
)
