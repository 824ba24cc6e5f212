package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/kode4food/foreman/pkg/api"
	"github.com/kode4food/foreman/pkg/log"
)

const (
	eventSource        = "monitor"
	monitorSource      = "monitor"
	systemSeriesPrefix = "system."
)

// GetAlerts returns the alerts that satisfy the filter, newest first
func (m *Monitor) GetAlerts(f *api.AlertFilter) []*api.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []*api.Alert
	for _, a := range slices.Backward(m.alerts) {
		if !f.Matches(a) {
			continue
		}
		res = append(res, a.Clone())
		if f != nil && f.Limit > 0 && len(res) == f.Limit {
			break
		}
	}
	return res
}

// ResolveAlert marks an unresolved alert as resolved
func (m *Monitor) ResolveAlert(id api.AlertID) (*api.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.ID != id {
			continue
		}
		if a.Resolved {
			return nil, fmt.Errorf("%w: %s", ErrAlertResolved, id)
		}
		m.resolveLocked(a)
		return a.Clone(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrAlertNotFound, id)
}

// createAlert stores the alert unless alerting is disabled or an
// unresolved alert with the same type, source and metric already exists.
// Error and critical alerts are published
func (m *Monitor) createAlert(ctx context.Context, a *api.Alert) {
	if !m.cfg.AlertingEnabled {
		return
	}
	m.mu.Lock()
	if m.findOpenLocked(a.Type, a.Source, a.Metric) != nil {
		m.mu.Unlock()
		return
	}
	a.ID = api.AlertID(uuid.NewString())
	a.Timestamp = m.now()
	m.alerts = append(m.alerts, a)
	res := a.Clone()
	m.mu.Unlock()

	m.raised.Add(ctx, 1,
		metric.WithAttributes(attribute.String("severity", string(res.Severity))),
	)
	slog.Warn("Alert raised",
		log.AlertID(res.ID),
		slog.String("type", res.Type),
		slog.String("severity", string(res.Severity)),
		slog.String("message", res.Message))

	switch res.Severity {
	case api.SeverityError, api.SeverityCritical:
		m.events.Raise(api.EventMonitorAlert, eventSource, res)
	}
}

// resolveMatching resolves the open alert for a condition that has cleared
func (m *Monitor) resolveMatching(typ, source, metric string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a := m.findOpenLocked(typ, source, metric); a != nil {
		m.resolveLocked(a)
		slog.Info("Alert resolved",
			log.AlertID(a.ID),
			slog.String("type", a.Type))
	}
}

func (m *Monitor) findOpenLocked(typ, source, metric string) *api.Alert {
	for _, a := range m.alerts {
		if !a.Resolved && a.Type == typ && a.Source == source &&
			a.Metric == metric {
			return a
		}
	}
	return nil
}

func (m *Monitor) resolveLocked(a *api.Alert) {
	now := m.now()
	a.Resolved = true
	a.ResolvedAt = &now
}

// pruneAlerts drops resolved alerts that were resolved before the cutoff
func (m *Monitor) pruneAlerts(cutoff time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = slices.DeleteFunc(m.alerts, func(a *api.Alert) bool {
		return a.Resolved && a.ResolvedAt.Before(cutoff)
	})
}
