package monitor

import (
	"fmt"

	"github.com/kode4food/foreman/internal/config"
	"github.com/kode4food/foreman/pkg/api"
)

// ThresholdRule raises an alert when a reading crosses a limit. Metric
// names a snapshot reading (cpu_percent, pending_tasks, ...) or a source
// reading as <source>.<field>. The alert fires when the reading is above
// the threshold, or below it when Below is set
type ThresholdRule struct {
	Name      string
	Metric    string
	Severity  api.Severity
	Threshold float64
	Below     bool
}

// Snapshot reading names
const (
	ReadingCPU             = "cpu_percent"
	ReadingMemory          = "memory_percent"
	ReadingPendingTasks    = "pending_tasks"
	ReadingActiveTasks     = "active_tasks"
	ReadingCompletedTasks  = "completed_tasks"
	ReadingFailedTasks     = "failed_tasks"
	ReadingTaskDuration    = "average_task_duration"
	ReadingFailureRate     = "failure_rate"
	ReadingActiveWorkflows = "active_workflows"
	ReadingCompletedFlows  = "completed_workflows"
	ReadingFailedWorkflows = "failed_workflows"
)

// Alert types raised by the monitor
const (
	AlertThreshold     = "threshold"
	AlertHealth        = "health"
	AlertSourceFailure = "source_failure"
)

func (r *ThresholdRule) validate() error {
	if r == nil || r.Name == "" || r.Metric == "" {
		return fmt.Errorf("%w: name and metric required", ErrInvalidRule)
	}
	switch r.Severity {
	case "":
		r.Severity = api.SeverityWarning
	case api.SeverityInfo, api.SeverityWarning, api.SeverityError,
		api.SeverityCritical:
	default:
		return fmt.Errorf("%w: %s has unknown severity %q", ErrInvalidRule,
			r.Name, r.Severity)
	}
	return nil
}

func (r *ThresholdRule) breached(value float64) bool {
	if r.Below {
		return value < r.Threshold
	}
	return value > r.Threshold
}

// builtinRules returns the rules for every configured threshold. A zero
// or negative threshold disables its rule
func builtinRules(t config.Thresholds) []*ThresholdRule {
	var res []*ThresholdRule
	add := func(name, metric string, limit float64, sev api.Severity) {
		if limit > 0 {
			res = append(res, &ThresholdRule{
				Name:      name,
				Metric:    metric,
				Threshold: limit,
				Severity:  sev,
			})
		}
	}
	add("high_cpu", ReadingCPU, t.CPUPercent, api.SeverityWarning)
	add("high_memory", ReadingMemory, t.MemoryPercent, api.SeverityWarning)
	add("queue_depth", ReadingPendingTasks, t.QueueDepth, api.SeverityWarning)
	add("failure_rate", ReadingFailureRate, t.FailureRate, api.SeverityError)
	return res
}

func snapshotReadings(s *api.SystemSnapshot) map[string]float64 {
	return map[string]float64{
		ReadingCPU:             s.CPUPercent,
		ReadingMemory:          s.MemoryPercent,
		ReadingPendingTasks:    float64(s.PendingTasks),
		ReadingActiveTasks:     float64(s.ActiveTasks),
		ReadingCompletedTasks:  float64(s.CompletedTasks),
		ReadingFailedTasks:     float64(s.FailedTasks),
		ReadingTaskDuration:    s.AverageTaskDuration,
		ReadingFailureRate:     s.FailureRate,
		ReadingActiveWorkflows: float64(s.ActiveWorkflows),
		ReadingCompletedFlows:  float64(s.CompletedWorkflows),
		ReadingFailedWorkflows: float64(s.FailedWorkflows),
	}
}
