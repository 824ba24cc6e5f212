package api

import (
	"maps"
	"math"
	"slices"
	"time"
)

type (
	// WorkflowID uniquely identifies a workflow definition
	WorkflowID string

	// ExecutionID uniquely identifies one run of a workflow
	ExecutionID string

	// StepID identifies a step within a workflow definition
	StepID string

	// StepType selects the executor that runs a step
	StepType string

	// TriggerType selects how a trigger launches executions
	TriggerType string

	// TemplateID identifies a workflow template
	TemplateID string

	// WorkflowDefinition is a declarative multi-step process
	WorkflowDefinition struct {
		Variables   map[string]any     `json:"variables,omitempty" yaml:"variables,omitempty"`
		ID          WorkflowID         `json:"id" yaml:"id"`
		Name        string             `json:"name" yaml:"name"`
		Description string             `json:"description,omitempty" yaml:"description,omitempty"`
		Steps       []*WorkflowStep    `json:"steps" yaml:"steps"`
		Triggers    []*WorkflowTrigger `json:"triggers,omitempty" yaml:"triggers,omitempty"`
		Enabled     bool               `json:"enabled" yaml:"enabled"`
	}

	// WorkflowStep is one named unit of a workflow definition
	WorkflowStep struct {
		Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
		Retry  *RetryPolicy   `json:"retry,omitempty" yaml:"retry,omitempty"`
		ID     StepID         `json:"id" yaml:"id"`
		Name   string         `json:"name,omitempty" yaml:"name,omitempty"`
		Type   StepType       `json:"type" yaml:"type"`
		Next   []NextStep     `json:"next,omitempty" yaml:"next,omitempty"`
	}

	// NextStep is a guarded transition. When is an expression over the
	// variable bag and Option must equal a decision step's selected option.
	// An empty Step ends the workflow
	NextStep struct {
		Step   StepID `json:"step,omitempty" yaml:"step,omitempty"`
		When   string `json:"when,omitempty" yaml:"when,omitempty"`
		Option string `json:"option,omitempty" yaml:"option,omitempty"`
	}

	// RetryPolicy configures per-step retry with exponential backoff
	RetryPolicy struct {
		MaxAttempts       int     `json:"max_attempts" yaml:"max_attempts"`
		InitialDelayMs    int64   `json:"initial_delay_ms" yaml:"initial_delay_ms"`
		BackoffMultiplier float64 `json:"backoff_multiplier" yaml:"backoff_multiplier"`
		MaxDelayMs        int64   `json:"max_delay_ms,omitempty" yaml:"max_delay_ms,omitempty"`
	}

	// WorkflowTrigger launches executions on a schedule or on events
	WorkflowTrigger struct {
		Variables  map[string]any `json:"variables,omitempty" yaml:"variables,omitempty"`
		Type       TriggerType    `json:"type" yaml:"type"`
		Event      string         `json:"event,omitempty" yaml:"event,omitempty"`
		IntervalMs int64          `json:"interval_ms,omitempty" yaml:"interval_ms,omitempty"`
	}

	// TriggerState reports an active trigger of a registered workflow
	TriggerState struct {
		NextRun    time.Time   `json:"next_run,omitempty"`
		LastRun    time.Time   `json:"last_run,omitempty"`
		WorkflowID WorkflowID  `json:"workflow_id"`
		Type       TriggerType `json:"type"`
		Event      string      `json:"event,omitempty"`
		Index      int         `json:"index"`
	}

	// WorkflowExecution is one run of a workflow definition
	WorkflowExecution struct {
		StartedAt   time.Time      `json:"started_at"`
		UpdatedAt   time.Time      `json:"updated_at"`
		CompletedAt time.Time      `json:"completed_at,omitempty"`
		Variables   map[string]any `json:"variables"`
		ID          ExecutionID    `json:"id"`
		WorkflowID  WorkflowID     `json:"workflow_id"`
		CurrentStep StepID         `json:"current_step,omitempty"`
		Status      Status         `json:"status"`
		Error       string         `json:"error,omitempty"`
		History     []*StepRecord  `json:"history"`
	}

	// StepRecord is one attempt of one step in an execution's history
	StepRecord struct {
		StartedAt time.Time      `json:"started_at"`
		EndedAt   time.Time      `json:"ended_at"`
		Output    map[string]any `json:"output,omitempty"`
		StepID    StepID         `json:"step_id"`
		Type      StepType       `json:"type"`
		Status    Status         `json:"status"`
		Error     string         `json:"error,omitempty"`
		Attempt   int            `json:"attempt"`
	}

	// StepEvent is the payload of step_completed and step_failed events
	StepEvent struct {
		Record      *StepRecord `json:"record"`
		ExecutionID ExecutionID `json:"execution_id"`
		WorkflowID  WorkflowID  `json:"workflow_id"`
	}

	// ExecutionFilter selects executions; zero-valued fields match everything
	ExecutionFilter struct {
		WorkflowID WorkflowID `json:"workflow_id,omitempty"`
		Status     Status     `json:"status,omitempty"`
		Limit      int        `json:"limit,omitempty"`
	}

	// WorkflowMetrics aggregates workflow engine counters
	WorkflowMetrics struct {
		Total           int     `json:"total"`
		Active          int     `json:"active"`
		Completed       int     `json:"completed"`
		Failed          int     `json:"failed"`
		Cancelled       int     `json:"cancelled"`
		AverageDuration float64 `json:"average_duration"`
	}

	// WorkflowTemplate is a parameterized workflow definition
	WorkflowTemplate struct {
		Definition  *WorkflowDefinition `json:"definition" yaml:"definition"`
		ID          TemplateID          `json:"id" yaml:"id"`
		Name        string              `json:"name" yaml:"name"`
		Description string              `json:"description,omitempty" yaml:"description,omitempty"`
		Variables   []TemplateVariable  `json:"variables,omitempty" yaml:"variables,omitempty"`
	}

	// TemplateVariable declares a variable a template expects
	TemplateVariable struct {
		Default     any    `json:"default,omitempty" yaml:"default,omitempty"`
		Name        string `json:"name" yaml:"name"`
		Description string `json:"description,omitempty" yaml:"description,omitempty"`
		Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
	}
)

const (
	StepTask      StepType = "task"
	StepDecision  StepType = "decision"
	StepWait      StepType = "wait"
	StepCondition StepType = "condition"
	StepScript    StepType = "script"
)

const (
	TriggerSchedule TriggerType = "schedule"
	TriggerEvent    TriggerType = "event"
)

// Delay returns the backoff delay that precedes the given retry attempt,
// where attempt 1 is the first retry
func (p *RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.BackoffMultiplier
	if mult <= 0 {
		mult = 1
	}
	ms := float64(p.InitialDelayMs) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelayMs > 0 && ms > float64(p.MaxDelayMs) {
		ms = float64(p.MaxDelayMs)
	}
	if ms > float64(math.MaxInt64/int64(time.Millisecond)) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ms) * time.Millisecond
}

// GetStep returns the step with the given ID, or nil
func (d *WorkflowDefinition) GetStep(id StepID) *WorkflowStep {
	for _, s := range d.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// StepAfter returns the step that follows id in definition order, or nil
func (d *WorkflowDefinition) StepAfter(id StepID) *WorkflowStep {
	for i, s := range d.Steps {
		if s.ID == id && i+1 < len(d.Steps) {
			return d.Steps[i+1]
		}
	}
	return nil
}

// Clone returns a deep copy of the definition
func (d *WorkflowDefinition) Clone() *WorkflowDefinition {
	if d == nil {
		return nil
	}
	res := *d
	res.Variables = deepCopyMap(d.Variables)
	res.Steps = make([]*WorkflowStep, len(d.Steps))
	for i, s := range d.Steps {
		res.Steps[i] = s.Clone()
	}
	res.Triggers = make([]*WorkflowTrigger, len(d.Triggers))
	for i, t := range d.Triggers {
		tr := *t
		tr.Variables = deepCopyMap(t.Variables)
		res.Triggers[i] = &tr
	}
	return &res
}

// Clone returns a deep copy of the step
func (s *WorkflowStep) Clone() *WorkflowStep {
	if s == nil {
		return nil
	}
	res := *s
	res.Config = deepCopyMap(s.Config)
	res.Next = slices.Clone(s.Next)
	if s.Retry != nil {
		r := *s.Retry
		res.Retry = &r
	}
	return &res
}

// Clone returns a copy of the execution that shares no mutable state
func (e *WorkflowExecution) Clone() *WorkflowExecution {
	if e == nil {
		return nil
	}
	res := *e
	res.Variables = deepCopyMap(e.Variables)
	res.History = make([]*StepRecord, len(e.History))
	for i, h := range e.History {
		res.History[i] = h.Clone()
	}
	return &res
}

// Clone returns a deep copy of the record
func (r *StepRecord) Clone() *StepRecord {
	if r == nil {
		return nil
	}
	res := *r
	res.Output = deepCopyMap(r.Output)
	return &res
}

// Clone returns a deep copy of the template
func (t *WorkflowTemplate) Clone() *WorkflowTemplate {
	if t == nil {
		return nil
	}
	res := *t
	res.Definition = t.Definition.Clone()
	res.Variables = slices.Clone(t.Variables)
	return &res
}

// Matches reports whether the execution satisfies the filter
func (f *ExecutionFilter) Matches(e *WorkflowExecution) bool {
	if f == nil {
		return true
	}
	if f.WorkflowID != "" && e.WorkflowID != f.WorkflowID {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	return true
}

// CloneValues returns a deep copy of a variable bag
func CloneValues(m map[string]any) map[string]any {
	return deepCopyMap(m)
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	res := make(map[string]any, len(m))
	for k, v := range m {
		res[k] = deepCopyValue(v)
	}
	return res
}

func deepCopyValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return deepCopyMap(v)
	case []any:
		res := make([]any, len(v))
		for i, e := range v {
			res[i] = deepCopyValue(e)
		}
		return res
	case []string:
		return slices.Clone(v)
	case map[string]string:
		return maps.Clone(v)
	default:
		return v
	}
}
