package api

import "github.com/kode4food/foreman/pkg/util"

// Status is the lifecycle state shared by tasks and workflow executions
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// StatusTransitions lists the status changes a task or an execution may
// go through
var StatusTransitions = util.StateTransitions[Status]{
	StatusPending: util.SetOf(
		StatusInProgress, StatusCancelled,
	),
	StatusInProgress: util.SetOf(
		StatusCompleted, StatusFailed, StatusCancelled,
	),
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// IsTerminal reports whether no further transitions are possible
func (s Status) IsTerminal() bool {
	return StatusTransitions.IsTerminal(s)
}

// CanTransition reports whether a change from s to the next status is
// allowed
func (s Status) CanTransition(next Status) bool {
	return StatusTransitions.CanTransition(s, next)
}
