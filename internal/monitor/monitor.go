package monitor

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/kode4food/foreman/internal/config"
	"github.com/kode4food/foreman/internal/events"
	"github.com/kode4food/foreman/internal/timer"
	"github.com/kode4food/foreman/pkg/api"
	"github.com/kode4food/foreman/pkg/log"
)

type (
	// Monitor collects metrics, checks health, raises alerts and runs
	// healing actions
	Monitor struct {
		events    events.Publisher
		timer     Timer
		store     Store
		host      HostCollector
		tasks     TaskStats
		workflows WorkflowStats
		now       func() time.Time
		sources   map[string]Source
		rules     []*ThresholdRule
		breached  map[string]bool
		healing   []*healingState
		modules   map[string]*api.ModuleHealth
		alerts    []*api.Alert
		snapshot  *api.SystemSnapshot
		readings  metric.Float64Gauge
		raised    metric.Int64Counter
		cfg       config.MonitorConfig
		started   bool
		mu        sync.Mutex
	}

	// Deps are the collaborators a Monitor samples and reports through.
	// A nil Store keeps samples in memory and a nil Host reads gopsutil
	Deps struct {
		Events    events.Publisher
		Timer     Timer
		Store     Store
		Host      HostCollector
		Tasks     TaskStats
		Workflows WorkflowStats
		Meter     metric.Meter
		Clock     timer.Clock
	}

	// Timer drives the collection and health-check ticks
	Timer interface {
		Every(
			ctx context.Context, key string, interval time.Duration,
			fn timer.Func,
		) error
		CancelPrefix(ctx context.Context, prefix string)
	}

	healingState struct {
		action  *HealingAction
		lastRun time.Time
	}
)

const (
	instrumentation = "github.com/kode4food/foreman/internal/monitor"
	timerPrefix     = "monitor/"
	metricsKey      = timerPrefix + "metrics"
	healthKey       = timerPrefix + "health"
	trendWindow     = 10
	trendDeadband   = 0.05
)

// New creates a monitor with the configured built-in threshold rules
func New(cfg config.MonitorConfig, deps Deps) (*Monitor, error) {
	m := &Monitor{
		events:    deps.Events,
		timer:     deps.Timer,
		store:     deps.Store,
		host:      deps.Host,
		tasks:     deps.Tasks,
		workflows: deps.Workflows,
		now:       time.Now,
		sources:   map[string]Source{},
		rules:     builtinRules(cfg.Thresholds),
		breached:  map[string]bool{},
		modules:   map[string]*api.ModuleHealth{},
		cfg:       cfg,
	}
	if m.events == nil {
		m.events = events.Discard
	}
	if m.store == nil {
		m.store = NewMemoryStore()
	}
	if m.host == nil {
		m.host = PSUtil
	}
	if deps.Clock != nil {
		m.now = deps.Clock
	}

	meter := deps.Meter
	if meter == nil {
		meter = otel.Meter(instrumentation)
	}
	var err error
	m.readings, err = meter.Float64Gauge("foreman.monitor.reading",
		metric.WithDescription("Latest system snapshot readings"),
	)
	if err != nil {
		return nil, err
	}
	m.raised, err = meter.Int64Counter("foreman.monitor.alerts",
		metric.WithDescription("Alerts raised by severity"),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Start arms the metric collection and health check ticks
func (m *Monitor) Start(ctx context.Context) error {
	if m.timer == nil {
		return ErrNoTimer
	}
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	err := errors.Join(
		m.timer.Every(ctx, metricsKey, m.cfg.MetricsInterval, func() error {
			_, err := m.CollectMetrics(ctx)
			return err
		}),
		m.timer.Every(ctx, healthKey, m.cfg.HealthInterval, func() error {
			m.PerformHealthChecks(ctx)
			return nil
		}),
	)
	if err != nil {
		m.Stop(ctx)
		return err
	}
	slog.Info("Monitor started",
		slog.Duration("metrics_interval", m.cfg.MetricsInterval),
		slog.Duration("health_interval", m.cfg.HealthInterval))
	return nil
}

// Stop disarms both ticks
func (m *Monitor) Stop(ctx context.Context) {
	m.mu.Lock()
	wasStarted := m.started
	m.started = false
	m.mu.Unlock()
	if !wasStarted {
		return
	}
	m.timer.CancelPrefix(ctx, timerPrefix)
	slog.Info("Monitor stopped")
}

// RegisterSource adds or replaces a monitored source
func (m *Monitor) RegisterSource(name string, src Source) error {
	if name == "" || src == nil {
		return fmt.Errorf("%w: %q", ErrInvalidSource, name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[name] = src
	return nil
}

// AddThresholdRule adds a custom threshold rule
func (m *Monitor) AddThresholdRule(r *ThresholdRule) error {
	if err := r.validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cpy := *r
	m.rules = append(m.rules, &cpy)
	return nil
}

// RegisterHealingAction adds an action considered after every collection
// while healing is enabled
func (m *Monitor) RegisterHealingAction(h *HealingAction) error {
	if err := h.validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healing = append(m.healing, &healingState{action: h})
	return nil
}

// CollectMetrics takes a system snapshot and a sample from every source,
// stores them, prunes expired data, evaluates thresholds and runs the
// healing actions that apply
func (m *Monitor) CollectMetrics(
	ctx context.Context,
) (*api.SystemSnapshot, error) {
	now := m.now()
	snap := m.takeSnapshot(ctx, now)
	readings := snapshotReadings(snap)

	samples := make([]*api.MetricSample, 0, len(readings))
	for name, v := range readings {
		samples = append(samples, &api.MetricSample{
			Name:      systemSeriesPrefix + name,
			Value:     v,
			Timestamp: now,
		})
		m.readings.Record(ctx, v,
			metric.WithAttributes(attribute.String("reading", name)),
		)
	}
	for _, s := range m.collectSources(ctx, now) {
		samples = append(samples, s)
		for k, v := range s.Fields {
			readings[s.Name+"."+k] = v
		}
	}

	var errs []error
	if err := m.store.Add(ctx, samples...); err != nil {
		errs = append(errs, fmt.Errorf("store samples: %w", err))
	}
	if m.cfg.Retention > 0 {
		cutoff := now.Add(-m.cfg.Retention)
		if err := m.store.Prune(ctx, cutoff); err != nil {
			errs = append(errs, fmt.Errorf("prune samples: %w", err))
		}
		m.pruneAlerts(cutoff)
	}

	m.mu.Lock()
	m.snapshot = snap
	m.mu.Unlock()

	m.evaluate(ctx, readings)
	if m.cfg.HealingEnabled {
		m.heal(ctx, snap)
	}
	return cloneSnapshot(snap), errors.Join(errs...)
}

// PerformHealthChecks polls every source and returns the resulting system
// health. A source that errors or panics is offline, and a failing one
// raises a critical alert
func (m *Monitor) PerformHealthChecks(ctx context.Context) *api.SystemHealth {
	for _, e := range m.sourceList() {
		mh := m.checkSource(ctx, e.name, e.src)

		m.mu.Lock()
		prev := api.HealthHealthy
		if old, ok := m.modules[e.name]; ok {
			prev = old.Status
		}
		m.modules[e.name] = mh
		m.mu.Unlock()

		if prev != mh.Status {
			slog.Info("Module health changed",
				log.Module(e.name),
				slog.String("from", string(prev)),
				log.Status(mh.Status))
			m.events.Raise(api.EventMonitorHealthChanged, eventSource,
				mh.Clone())
		}

		if mh.Status.IsFailing() {
			m.createAlert(ctx, &api.Alert{
				Type:     AlertHealth,
				Severity: api.SeverityCritical,
				Source:   e.name,
				Message: fmt.Sprintf("module %s is %s: %s",
					e.name, mh.Status, mh.Error),
			})
		} else {
			m.resolveMatching(AlertHealth, e.name, "")
		}
	}
	return m.GetHealth()
}

// GetHealth returns the last recorded health of every module and the
// worst of them as the overall status
func (m *Monitor) GetHealth() *api.SystemHealth {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := &api.SystemHealth{
		Status:  api.HealthHealthy,
		Modules: make(map[string]*api.ModuleHealth, len(m.modules)),
	}
	for name, mh := range m.modules {
		res.Modules[name] = mh.Clone()
		res.Status = res.Status.Worse(mh.Status)
	}
	return res
}

// GetMetrics returns the stored samples that satisfy the query
func (m *Monitor) GetMetrics(
	ctx context.Context, q *api.MetricQuery,
) ([]*api.MetricSample, error) {
	return m.store.Query(ctx, q)
}

// GetDashboard returns the latest snapshot, the unresolved alerts, module
// health and the recent trend of every stored series
func (m *Monitor) GetDashboard(ctx context.Context) (*api.Dashboard, error) {
	names, err := m.store.Names(ctx)
	if err != nil {
		return nil, err
	}
	trends := make(map[string]api.Trend, len(names))
	for _, name := range names {
		samples, err := m.store.Query(ctx, &api.MetricQuery{
			Name:  name,
			Limit: trendWindow,
		})
		if err != nil {
			return nil, err
		}
		trends[name] = Trend(samples)
	}

	health := m.GetHealth()
	unresolved := false
	m.mu.Lock()
	snap := cloneSnapshot(m.snapshot)
	m.mu.Unlock()

	return &api.Dashboard{
		Snapshot: snap,
		Modules:  health.Modules,
		Health:   health.Status,
		Trends:   trends,
		Alerts:   m.GetAlerts(&api.AlertFilter{Resolved: &unresolved}),
	}, nil
}

// Trend compares the average of the older half of the samples with the
// newer half. Changes within 5% of the older average are stable
func Trend(samples []*api.MetricSample) api.Trend {
	if len(samples) < 2 {
		return api.TrendStable
	}
	mid := len(samples) / 2
	older := average(samples[:mid])
	newer := average(samples[mid:])
	diff := newer - older
	if diff == 0 || (older != 0 && abs(diff) <= abs(older)*trendDeadband) {
		return api.TrendStable
	}
	if diff > 0 {
		return api.TrendUp
	}
	return api.TrendDown
}

func (m *Monitor) takeSnapshot(
	ctx context.Context, now time.Time,
) *api.SystemSnapshot {
	snap := &api.SystemSnapshot{Timestamp: now}
	host, err := m.host.Read(ctx)
	if err != nil {
		slog.Warn("Host utilization unavailable",
			log.Error(err))
	}
	snap.CPUPercent = host.CPUPercent
	snap.MemoryPercent = host.MemoryPercent

	if m.tasks != nil {
		tm := m.tasks.GetMetrics()
		snap.PendingTasks = tm.Pending
		snap.ActiveTasks = tm.Active
		snap.CompletedTasks = tm.ByStatus[api.StatusCompleted]
		snap.FailedTasks = tm.ByStatus[api.StatusFailed]
		snap.AverageTaskDuration = tm.AverageDuration
		snap.FailureRate = taskFailureRate(tm)
	}
	if m.workflows != nil {
		wm := m.workflows.GetMetrics()
		snap.ActiveWorkflows = wm.Active
		snap.CompletedWorkflows = wm.Completed
		snap.FailedWorkflows = wm.Failed
	}
	return snap
}

type namedSource struct {
	src  Source
	name string
}

func (m *Monitor) sourceList() []namedSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]namedSource, 0, len(m.sources))
	for name, src := range m.sources {
		res = append(res, namedSource{name: name, src: src})
	}
	slices.SortFunc(res, func(l, r namedSource) int {
		return cmp.Compare(l.name, r.name)
	})
	return res
}

func (m *Monitor) collectSources(
	ctx context.Context, now time.Time,
) []*api.MetricSample {
	var res []*api.MetricSample
	for _, e := range m.sourceList() {
		fields, err := collect(ctx, e.src)
		if err != nil {
			slog.Warn("Source collection failed",
				log.Module(e.name),
				log.Error(err))
			m.createAlert(ctx, &api.Alert{
				Type:     AlertSourceFailure,
				Severity: api.SeverityWarning,
				Source:   e.name,
				Message: fmt.Sprintf("collecting %s failed: %v",
					e.name, err),
			})
			continue
		}
		m.resolveMatching(AlertSourceFailure, e.name, "")
		res = append(res, &api.MetricSample{
			Name:      e.name,
			Value:     fields["value"],
			Fields:    maps.Clone(fields),
			Tags:      map[string]string{"source": e.name},
			Timestamp: now,
		})
	}
	return res
}

func (m *Monitor) checkSource(
	ctx context.Context, name string, src Source,
) *api.ModuleHealth {
	mh := &api.ModuleHealth{
		Module:    name,
		Status:    api.HealthHealthy,
		Timestamp: m.now(),
	}
	rep, err := check(ctx, src)
	switch {
	case err != nil:
		mh.Status = api.HealthOffline
		mh.Error = err.Error()
	case rep != nil:
		if rep.Status != "" {
			mh.Status = rep.Status
		}
		mh.Details = maps.Clone(rep.Details)
		mh.Error = rep.Message
	}
	return mh
}

func (m *Monitor) evaluate(ctx context.Context, readings map[string]float64) {
	m.mu.Lock()
	rules := slices.Clone(m.rules)
	m.mu.Unlock()

	for _, r := range rules {
		v, ok := readings[r.Metric]
		if !ok {
			continue
		}
		if !r.breached(v) {
			m.setBreached(r.Name, false)
			m.resolveMatching(AlertThreshold, monitorSource, r.Metric)
			continue
		}

		value, limit := v, r.Threshold
		alert := &api.Alert{
			Type:      AlertThreshold,
			Severity:  r.Severity,
			Source:    monitorSource,
			Metric:    r.Metric,
			Value:     &value,
			Threshold: &limit,
			Message: fmt.Sprintf("%s: %s is %.2f (threshold %.2f)",
				r.Name, r.Metric, v, r.Threshold),
		}
		if m.setBreached(r.Name, true) {
			m.events.Raise(api.EventMonitorThresholdExceeded, eventSource,
				alert.Clone())
		}
		m.createAlert(ctx, alert)
	}
}

// setBreached records a rule's state and reports whether it changed
func (m *Monitor) setBreached(rule string, breached bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := m.breached[rule] != breached
	m.breached[rule] = breached
	return changed
}

func (m *Monitor) heal(ctx context.Context, snap *api.SystemSnapshot) {
	unresolved := false
	alerts := m.GetAlerts(&api.AlertFilter{Resolved: &unresolved})
	now := m.now()

	var due []*HealingAction
	for _, h := range m.readyHealing(now) {
		if h.action.Condition(snap, alerts) && m.claimHealing(h, now) {
			due = append(due, h.action)
		}
	}

	for _, h := range due {
		slog.Info("Running healing action",
			slog.String("action", h.Name))
		if err := h.run(ctx, snap); err != nil {
			slog.Error("Healing action failed",
				slog.String("action", h.Name),
				log.Error(err))
		}
	}
}

// readyHealing returns the healing actions whose cooldown has elapsed.
// Their conditions are evaluated without holding the monitor lock
func (m *Monitor) readyHealing(now time.Time) []*healingState {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []*healingState
	for _, h := range m.healing {
		if h.ready(now) {
			res = append(res, h)
		}
	}
	return res
}

func (m *Monitor) claimHealing(h *healingState, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !h.ready(now) {
		return false
	}
	h.lastRun = now
	return true
}

func (h *healingState) ready(now time.Time) bool {
	return h.lastRun.IsZero() || now.Sub(h.lastRun) >= h.action.Cooldown
}

func collect(
	ctx context.Context, src Source,
) (res map[string]float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSourcePanicked, r)
		}
	}()
	return src.Collect(ctx)
}

func check(ctx context.Context, src Source) (res *api.HealthReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSourcePanicked, r)
		}
	}()
	return src.Health(ctx)
}

func cloneSnapshot(s *api.SystemSnapshot) *api.SystemSnapshot {
	if s == nil {
		return nil
	}
	res := *s
	return &res
}

func average(samples []*api.MetricSample) float64 {
	var sum float64
	for _, s := range samples {
		sum += s.Value
	}
	return sum / float64(len(samples))
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
