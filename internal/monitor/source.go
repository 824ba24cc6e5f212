package monitor

import (
	"context"

	"github.com/kode4food/foreman/pkg/api"
)

type (
	// Source is a monitored component. Collect returns its current
	// readings and Health reports how it is doing
	Source interface {
		Collect(ctx context.Context) (map[string]float64, error)
		Health(ctx context.Context) (*api.HealthReport, error)
	}

	// TaskStats exposes the task scheduler's counters
	TaskStats interface {
		GetMetrics() api.TaskMetrics
	}

	// WorkflowStats exposes the workflow engine's counters
	WorkflowStats interface {
		GetMetrics() api.WorkflowMetrics
	}

	// DecisionStats exposes the decision engine's counters
	DecisionStats interface {
		GetMetrics() api.DecisionMetrics
	}

	taskSource struct {
		stats     TaskStats
		maxQueue  float64
		maxFailed float64
	}

	workflowSource struct {
		stats WorkflowStats
	}

	decisionSource struct {
		stats DecisionStats
	}
)

// NewTaskSource reports the task scheduler's counters. It is in warning
// when the backlog or the failure rate exceed the given limits; a limit of
// zero is not checked
func NewTaskSource(stats TaskStats, maxQueue, maxFailureRate float64) Source {
	return &taskSource{
		stats:     stats,
		maxQueue:  maxQueue,
		maxFailed: maxFailureRate,
	}
}

// NewWorkflowSource reports the workflow engine's counters
func NewWorkflowSource(stats WorkflowStats) Source {
	return &workflowSource{stats: stats}
}

// NewDecisionSource reports the decision engine's counters
func NewDecisionSource(stats DecisionStats) Source {
	return &decisionSource{stats: stats}
}

func (s *taskSource) Collect(context.Context) (map[string]float64, error) {
	m := s.stats.GetMetrics()
	return map[string]float64{
		"total":            float64(m.Total),
		"active":           float64(m.Active),
		"pending":          float64(m.Pending),
		"completed":        float64(m.ByStatus[api.StatusCompleted]),
		"failed":           float64(m.ByStatus[api.StatusFailed]),
		"failure_rate":     taskFailureRate(m),
		"average_duration": m.AverageDuration,
	}, nil
}

func (s *taskSource) Health(context.Context) (*api.HealthReport, error) {
	m := s.stats.GetMetrics()
	rate := taskFailureRate(m)
	res := &api.HealthReport{
		Status: api.HealthHealthy,
		Details: map[string]any{
			"pending":      m.Pending,
			"active":       m.Active,
			"failure_rate": rate,
		},
	}
	switch {
	case s.maxQueue > 0 && float64(m.Pending) > s.maxQueue:
		res.Status = api.HealthWarning
		res.Message = "task backlog is deep"
	case s.maxFailed > 0 && rate > s.maxFailed:
		res.Status = api.HealthWarning
		res.Message = "tasks are failing"
	}
	return res, nil
}

func (s *workflowSource) Collect(context.Context) (map[string]float64, error) {
	m := s.stats.GetMetrics()
	return map[string]float64{
		"total":            float64(m.Total),
		"active":           float64(m.Active),
		"completed":        float64(m.Completed),
		"failed":           float64(m.Failed),
		"cancelled":        float64(m.Cancelled),
		"average_duration": m.AverageDuration,
	}, nil
}

func (s *workflowSource) Health(context.Context) (*api.HealthReport, error) {
	m := s.stats.GetMetrics()
	return &api.HealthReport{
		Status:  api.HealthHealthy,
		Details: map[string]any{"active": m.Active},
	}, nil
}

func (s *decisionSource) Collect(context.Context) (map[string]float64, error) {
	m := s.stats.GetMetrics()
	return map[string]float64{
		"total":              float64(m.Total),
		"rule_applied":       float64(m.RuleApplied),
		"success_rate":       m.SuccessRate,
		"average_confidence": m.AverageConfidence,
	}, nil
}

func (s *decisionSource) Health(context.Context) (*api.HealthReport, error) {
	return &api.HealthReport{Status: api.HealthHealthy}, nil
}

func taskFailureRate(m api.TaskMetrics) float64 {
	failed := float64(m.ByStatus[api.StatusFailed])
	done := failed + float64(m.ByStatus[api.StatusCompleted])
	if done == 0 {
		return 0
	}
	return failed / done
}
