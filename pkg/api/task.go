package api

import (
	"maps"
	"strings"
	"time"
)

type (
	// TaskID uniquely identifies a task
	TaskID string

	// Priority orders pending tasks; higher values run first
	Priority int

	// Metadata carries free-form attributes of a task
	Metadata map[string]any

	// Task is a single unit of work owned by the task scheduler
	Task struct {
		CreatedAt         time.Time `json:"created_at"`
		UpdatedAt         time.Time `json:"updated_at"`
		StartedAt         time.Time `json:"started_at,omitempty"`
		CompletedAt       time.Time `json:"completed_at,omitempty"`
		Metadata          Metadata  `json:"metadata,omitempty"`
		Result            any       `json:"result,omitempty"`
		ID                TaskID    `json:"id"`
		Title             string    `json:"title"`
		Description       string    `json:"description,omitempty"`
		Type              string    `json:"type,omitempty"`
		Executor          string    `json:"executor,omitempty"`
		Status            Status    `json:"status"`
		Error             string    `json:"error,omitempty"`
		Priority          Priority  `json:"priority"`
		EstimatedDuration int64     `json:"estimated_duration,omitempty"`
		ActualDuration    int64     `json:"actual_duration,omitempty"`
	}

	// TaskRequest describes a task to be created
	TaskRequest struct {
		Metadata          Metadata `json:"metadata,omitempty"`
		Title             string   `json:"title"`
		Description       string   `json:"description,omitempty"`
		Type              string   `json:"type,omitempty"`
		Executor          string   `json:"executor,omitempty"`
		Priority          Priority `json:"priority,omitempty"`
		EstimatedDuration int64    `json:"estimated_duration,omitempty"`
	}

	// TaskResult reports the outcome of a single task execution
	TaskResult struct {
		Output   any    `json:"output,omitempty"`
		TaskID   TaskID `json:"task_id"`
		Status   Status `json:"status"`
		Error    string `json:"error,omitempty"`
		Duration int64  `json:"duration"`
	}

	// TaskFilter selects tasks; zero-valued fields match everything
	TaskFilter struct {
		Status   Status   `json:"status,omitempty"`
		Type     string   `json:"type,omitempty"`
		Executor string   `json:"executor,omitempty"`
		Priority Priority `json:"priority,omitempty"`
	}

	// TaskUpdate carries the mutable fields of a task; nil fields are kept
	TaskUpdate struct {
		Title       *string   `json:"title,omitempty"`
		Description *string   `json:"description,omitempty"`
		Priority    *Priority `json:"priority,omitempty"`
		Metadata    Metadata  `json:"metadata,omitempty"`
	}

	// TaskMetrics aggregates task scheduler counters
	TaskMetrics struct {
		ByStatus        map[Status]int   `json:"by_status"`
		ByPriority      map[Priority]int `json:"by_priority"`
		Total           int              `json:"total"`
		Active          int              `json:"active"`
		Pending         int              `json:"pending"`
		AverageDuration float64          `json:"average_duration"`
	}
)

const (
	PriorityLow Priority = iota + 1
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

var priorityNames = map[Priority]string{
	PriorityLow:      "low",
	PriorityMedium:   "medium",
	PriorityHigh:     "high",
	PriorityCritical: "critical",
}

// ParsePriority resolves a priority name such as "high"
func ParsePriority(name string) (Priority, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for p, n := range priorityNames {
		if n == name {
			return p, true
		}
	}
	return 0, false
}

func (p Priority) String() string {
	if n, ok := priorityNames[p]; ok {
		return n
	}
	return "custom"
}

// Clone returns a copy of the task that shares no maps with the original
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	res := *t
	res.Metadata = maps.Clone(t.Metadata)
	return &res
}

// Matches reports whether the task satisfies the filter
func (f *TaskFilter) Matches(t *Task) bool {
	if f == nil {
		return true
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.Executor != "" && t.Executor != f.Executor {
		return false
	}
	if f.Priority != 0 && t.Priority != f.Priority {
		return false
	}
	return true
}
