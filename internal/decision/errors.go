package decision

import (
	"errors"
	"fmt"

	"github.com/kode4food/foreman/pkg/api"
)

var (
	ErrDecisionNotFound = fmt.Errorf("decision %w", api.ErrNotFound)
	ErrDecisionTimeout  = fmt.Errorf("decision %w", api.ErrTimeout)
	ErrInvalidRule      = fmt.Errorf("%w: invalid rule", api.ErrValidation)
	ErrInvalidStrategy  = fmt.Errorf("%w: invalid strategy", api.ErrValidation)
	ErrForcedOption     = fmt.Errorf("%w: forced option", api.ErrValidation)
	ErrOutcomeRecorded  = fmt.Errorf("%w: outcome recorded", api.ErrInvalidState)
	ErrScoreCount       = errors.New("strategy returned wrong score count")
	ErrDecisionPanicked = errors.New("decision panicked")
)
