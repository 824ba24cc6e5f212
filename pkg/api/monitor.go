package api

import (
	"maps"
	"time"
)

type (
	// AlertID uniquely identifies an alert
	AlertID string

	// Severity grades an alert
	Severity string

	// HealthStatus grades a module's health
	HealthStatus string

	// Trend classifies the recent direction of a metric
	Trend string

	// MetricSample is one point of a named time series. Value carries the
	// primary reading and Fields any structured values collected with it
	MetricSample struct {
		Timestamp time.Time          `json:"timestamp"`
		Fields    map[string]float64 `json:"fields,omitempty"`
		Tags      map[string]string  `json:"tags,omitempty"`
		Name      string             `json:"name"`
		Value     float64            `json:"value"`
	}

	// MetricQuery selects samples; zero-valued fields match everything
	MetricQuery struct {
		Since time.Time `json:"since,omitempty"`
		Until time.Time `json:"until,omitempty"`
		Name  string    `json:"name,omitempty"`
		Limit int       `json:"limit,omitempty"`
	}

	// Alert is raised by threshold evaluation or a failed health check
	Alert struct {
		Timestamp  time.Time  `json:"timestamp"`
		ResolvedAt *time.Time `json:"resolved_at,omitempty"`
		Value      *float64   `json:"value,omitempty"`
		Threshold  *float64   `json:"threshold,omitempty"`
		ID         AlertID    `json:"id"`
		Severity   Severity   `json:"severity"`
		Type       string     `json:"type"`
		Message    string     `json:"message"`
		Source     string     `json:"source,omitempty"`
		Metric     string     `json:"metric,omitempty"`
		Resolved   bool       `json:"resolved"`
	}

	// AlertFilter selects alerts; zero-valued fields match everything
	AlertFilter struct {
		Resolved *bool    `json:"resolved,omitempty"`
		Severity Severity `json:"severity,omitempty"`
		Type     string   `json:"type,omitempty"`
		Source   string   `json:"source,omitempty"`
		Limit    int      `json:"limit,omitempty"`
	}

	// HealthReport is what a monitored source says about itself
	HealthReport struct {
		Details map[string]any `json:"details,omitempty"`
		Status  HealthStatus   `json:"status"`
		Message string         `json:"message,omitempty"`
	}

	// ModuleHealth is the monitor's record of a source's last health check
	ModuleHealth struct {
		Timestamp time.Time      `json:"timestamp"`
		Details   map[string]any `json:"details,omitempty"`
		Module    string         `json:"module"`
		Status    HealthStatus   `json:"status"`
		Error     string         `json:"error,omitempty"`
	}

	// SystemHealth is the overall health with its per-module breakdown
	SystemHealth struct {
		Modules map[string]*ModuleHealth `json:"modules"`
		Status  HealthStatus             `json:"status"`
	}

	// SystemSnapshot is the system-wide reading taken on every collection
	SystemSnapshot struct {
		Timestamp           time.Time `json:"timestamp"`
		CPUPercent          float64   `json:"cpu_percent"`
		MemoryPercent       float64   `json:"memory_percent"`
		PendingTasks        int       `json:"pending_tasks"`
		ActiveTasks         int       `json:"active_tasks"`
		CompletedTasks      int       `json:"completed_tasks"`
		FailedTasks         int       `json:"failed_tasks"`
		AverageTaskDuration float64   `json:"average_task_duration"`
		FailureRate         float64   `json:"failure_rate"`
		ActiveWorkflows     int       `json:"active_workflows"`
		CompletedWorkflows  int       `json:"completed_workflows"`
		FailedWorkflows     int       `json:"failed_workflows"`
	}

	// Dashboard is a point-in-time view of the monitor's state
	Dashboard struct {
		Snapshot *SystemSnapshot          `json:"snapshot,omitempty"`
		Modules  map[string]*ModuleHealth `json:"modules"`
		Trends   map[string]Trend         `json:"trends"`
		Health   HealthStatus             `json:"health"`
		Alerts   []*Alert                 `json:"alerts"`
	}
)

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
	HealthOffline  HealthStatus = "offline"
)

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

var healthRank = map[HealthStatus]int{
	HealthHealthy:  0,
	HealthWarning:  1,
	HealthCritical: 2,
	HealthOffline:  3,
}

// Worse returns whichever of the two statuses is more severe
func (h HealthStatus) Worse(other HealthStatus) HealthStatus {
	if healthRank[other] > healthRank[h] {
		return other
	}
	return h
}

// IsFailing reports whether the status should raise a critical alert
func (h HealthStatus) IsFailing() bool {
	return h == HealthCritical || h == HealthOffline
}

// Clone returns a copy of the alert that shares no pointers
func (a *Alert) Clone() *Alert {
	if a == nil {
		return nil
	}
	res := *a
	res.ResolvedAt = clonePtr(a.ResolvedAt)
	res.Value = clonePtr(a.Value)
	res.Threshold = clonePtr(a.Threshold)
	return &res
}

// Clone returns a copy of the module health record
func (m *ModuleHealth) Clone() *ModuleHealth {
	if m == nil {
		return nil
	}
	res := *m
	res.Details = maps.Clone(m.Details)
	return &res
}

// Clone returns a copy of the sample that shares no maps
func (s *MetricSample) Clone() *MetricSample {
	if s == nil {
		return nil
	}
	res := *s
	res.Fields = maps.Clone(s.Fields)
	res.Tags = maps.Clone(s.Tags)
	return &res
}

// Matches reports whether the sample satisfies the query's name and time
// range; Limit is applied by the caller
func (q *MetricQuery) Matches(s *MetricSample) bool {
	if q == nil {
		return true
	}
	if q.Name != "" && s.Name != q.Name {
		return false
	}
	if !q.Since.IsZero() && s.Timestamp.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && s.Timestamp.After(q.Until) {
		return false
	}
	return true
}

// Matches reports whether the alert satisfies the filter
func (f *AlertFilter) Matches(a *Alert) bool {
	if f == nil {
		return true
	}
	if f.Resolved != nil && a.Resolved != *f.Resolved {
		return false
	}
	if f.Severity != "" && a.Severity != f.Severity {
		return false
	}
	if f.Type != "" && a.Type != f.Type {
		return false
	}
	if f.Source != "" && a.Source != f.Source {
		return false
	}
	return true
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
