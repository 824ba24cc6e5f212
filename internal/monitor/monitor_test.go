package monitor_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/kode4food/foreman/internal/config"
	"github.com/kode4food/foreman/internal/monitor"
	"github.com/kode4food/foreman/internal/timer"
	"github.com/kode4food/foreman/pkg/api"
)

type (
	fakeSource struct {
		mu     sync.Mutex
		status api.HealthStatus
		fields map[string]float64
		err    error
		panics bool
	}

	recorder struct {
		mu     sync.Mutex
		events []*api.Event
	}

	fakeHost struct {
		mu      sync.Mutex
		reading monitor.HostReading
	}

	fakeTasks struct {
		metrics api.TaskMetrics
	}

	fakeClock struct {
		mu  sync.Mutex
		now time.Time
	}

	fakeTimer struct {
		mu        sync.Mutex
		funcs     map[string]timer.Func
		intervals map[string]time.Duration
		cancelled []string
	}

	fakeLauncher struct {
		mu   sync.Mutex
		vars []map[string]any
	}
)

var errSource = errors.New("source unavailable")

func TestHealthAlertDeduplicated(t *testing.T) {
	rec := &recorder{}
	m := newMonitor(t, testConfig(), monitor.Deps{Events: rec})
	src := &fakeSource{status: api.HealthCritical}
	require.NoError(t, m.RegisterSource("db", src))
	ctx := context.Background()

	for range 3 {
		h := m.PerformHealthChecks(ctx)
		assert.Equal(t, api.HealthCritical, h.Status)
	}
	open := unresolved(m)
	require.Len(t, open, 1)
	assert.Equal(t, api.SeverityCritical, open[0].Severity)
	assert.Equal(t, monitor.AlertHealth, open[0].Type)
	assert.Equal(t, "db", open[0].Source)
	assert.Len(t, rec.of(api.EventMonitorAlert), 1)
	assert.Len(t, rec.of(api.EventMonitorHealthChanged), 1)

	resolved, err := m.ResolveAlert(open[0].ID)
	require.NoError(t, err)
	assert.True(t, resolved.Resolved)
	assert.NotNil(t, resolved.ResolvedAt)

	m.PerformHealthChecks(ctx)
	assert.Len(t, m.GetAlerts(nil), 2)
	require.Len(t, unresolved(m), 1)

	src.setStatus(api.HealthHealthy)
	h := m.PerformHealthChecks(ctx)
	assert.Equal(t, api.HealthHealthy, h.Status)
	assert.Empty(t, unresolved(m))
	assert.Len(t, rec.of(api.EventMonitorHealthChanged), 2)
}

func TestHealthOffline(t *testing.T) {
	m := newMonitor(t, testConfig(), monitor.Deps{})
	require.NoError(t, m.RegisterSource("a-ok", &fakeSource{}))
	require.NoError(t, m.RegisterSource("b-warn", &fakeSource{
		status: api.HealthWarning,
	}))
	require.NoError(t, m.RegisterSource("c-err", &fakeSource{err: errSource}))
	require.NoError(t, m.RegisterSource("d-panic", &fakeSource{panics: true}))

	h := m.PerformHealthChecks(context.Background())
	assert.Equal(t, api.HealthOffline, h.Status)
	assert.Equal(t, api.HealthHealthy, h.Modules["a-ok"].Status)
	assert.Equal(t, api.HealthWarning, h.Modules["b-warn"].Status)
	assert.Equal(t, api.HealthOffline, h.Modules["c-err"].Status)
	assert.Equal(t, errSource.Error(), h.Modules["c-err"].Error)
	assert.Equal(t, api.HealthOffline, h.Modules["d-panic"].Status)
	assert.Contains(t, h.Modules["d-panic"].Error, "source panicked")

	open := unresolved(m)
	assert.Len(t, open, 2)
	assert.Equal(t, h, m.GetHealth())
}

func TestRegisterSourceInvalid(t *testing.T) {
	m := newMonitor(t, testConfig(), monitor.Deps{})
	assert.ErrorIs(t, m.RegisterSource("", &fakeSource{}),
		monitor.ErrInvalidSource)
	assert.ErrorIs(t, m.RegisterSource("x", nil), api.ErrValidation)
}

func TestThresholdAlerts(t *testing.T) {
	rec := &recorder{}
	host := &fakeHost{reading: monitor.HostReading{CPUPercent: 95}}
	m := newMonitor(t, testConfig(), monitor.Deps{Events: rec, Host: host})
	ctx := context.Background()

	snap, err := m.CollectMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 95.0, snap.CPUPercent)

	_, err = m.CollectMetrics(ctx)
	require.NoError(t, err)

	open := unresolved(m)
	require.Len(t, open, 1)
	a := open[0]
	assert.Equal(t, monitor.AlertThreshold, a.Type)
	assert.Equal(t, monitor.ReadingCPU, a.Metric)
	assert.Equal(t, api.SeverityWarning, a.Severity)
	require.NotNil(t, a.Value)
	require.NotNil(t, a.Threshold)
	assert.Equal(t, 95.0, *a.Value)
	assert.Equal(t, 80.0, *a.Threshold)
	assert.Len(t, rec.of(api.EventMonitorThresholdExceeded), 1)
	assert.Empty(t, rec.of(api.EventMonitorAlert))

	host.set(monitor.HostReading{CPUPercent: 10})
	_, err = m.CollectMetrics(ctx)
	require.NoError(t, err)
	assert.Empty(t, unresolved(m))

	host.set(monitor.HostReading{CPUPercent: 99})
	_, err = m.CollectMetrics(ctx)
	require.NoError(t, err)
	assert.Len(t, unresolved(m), 1)
	assert.Len(t, rec.of(api.EventMonitorThresholdExceeded), 2)
}

func TestFailureRateAlertPublished(t *testing.T) {
	rec := &recorder{}
	tasks := &fakeTasks{metrics: api.TaskMetrics{
		Pending: 3,
		ByStatus: map[api.Status]int{
			api.StatusCompleted: 1,
			api.StatusFailed:    3,
		},
	}}
	m := newMonitor(t, testConfig(), monitor.Deps{Events: rec, Tasks: tasks})

	snap, err := m.CollectMetrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.75, snap.FailureRate)
	assert.Equal(t, 3, snap.PendingTasks)
	assert.Equal(t, 3, snap.FailedTasks)

	open := unresolved(m)
	require.Len(t, open, 1)
	assert.Equal(t, monitor.ReadingFailureRate, open[0].Metric)
	assert.Equal(t, api.SeverityError, open[0].Severity)

	alerts := rec.of(api.EventMonitorAlert)
	require.Len(t, alerts, 1)
	assert.Equal(t, open[0].ID, alerts[0].Data.(*api.Alert).ID)
}

func TestCustomThresholdRule(t *testing.T) {
	m := newMonitor(t, testConfig(), monitor.Deps{})
	require.NoError(t, m.RegisterSource("queue", &fakeSource{
		fields: map[string]float64{"value": 3, "lag": 120, "consumers": 0},
	}))
	require.NoError(t, m.AddThresholdRule(&monitor.ThresholdRule{
		Name:      "queue_lag",
		Metric:    "queue.lag",
		Threshold: 100,
		Severity:  api.SeverityCritical,
	}))
	require.NoError(t, m.AddThresholdRule(&monitor.ThresholdRule{
		Name:      "no_consumers",
		Metric:    "queue.consumers",
		Threshold: 1,
		Below:     true,
	}))

	_, err := m.CollectMetrics(context.Background())
	require.NoError(t, err)

	lag := m.GetAlerts(&api.AlertFilter{Severity: api.SeverityCritical})
	require.Len(t, lag, 1)
	assert.Equal(t, "queue.lag", lag[0].Metric)

	low := m.GetAlerts(&api.AlertFilter{Severity: api.SeverityWarning})
	require.Len(t, low, 1)
	assert.Equal(t, "queue.consumers", low[0].Metric)

	res, err := m.GetMetrics(context.Background(), &api.MetricQuery{
		Name: "queue",
	})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, 3.0, res[0].Value)
	assert.Equal(t, 120.0, res[0].Fields["lag"])
	assert.Equal(t, "queue", res[0].Tags["source"])
}

func TestThresholdRuleInvalid(t *testing.T) {
	m := newMonitor(t, testConfig(), monitor.Deps{})
	for _, r := range []*monitor.ThresholdRule{
		nil,
		{Metric: "cpu_percent"},
		{Name: "x"},
		{Name: "x", Metric: "cpu_percent", Severity: "loud"},
	} {
		assert.ErrorIs(t, m.AddThresholdRule(r), monitor.ErrInvalidRule)
	}
}

func TestBuiltinThresholdDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Thresholds.CPUPercent = 0
	host := &fakeHost{reading: monitor.HostReading{CPUPercent: 100}}
	m := newMonitor(t, cfg, monitor.Deps{Host: host})

	_, err := m.CollectMetrics(context.Background())
	require.NoError(t, err)
	assert.Empty(t, m.GetAlerts(nil))
}

func TestAlertingDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.AlertingEnabled = false
	rec := &recorder{}
	host := &fakeHost{reading: monitor.HostReading{CPUPercent: 95}}
	m := newMonitor(t, cfg, monitor.Deps{Events: rec, Host: host})
	require.NoError(t, m.RegisterSource("db", &fakeSource{
		status: api.HealthCritical,
	}))
	ctx := context.Background()

	_, err := m.CollectMetrics(ctx)
	require.NoError(t, err)
	m.PerformHealthChecks(ctx)

	assert.Empty(t, m.GetAlerts(nil))
	assert.Empty(t, rec.of(api.EventMonitorAlert))
	assert.Len(t, rec.of(api.EventMonitorThresholdExceeded), 1)
}

func TestSourceFailureAlert(t *testing.T) {
	m := newMonitor(t, testConfig(), monitor.Deps{})
	src := &fakeSource{err: errSource}
	require.NoError(t, m.RegisterSource("cache", src))
	require.NoError(t, m.RegisterSource("broken", &fakeSource{panics: true}))
	ctx := context.Background()

	_, err := m.CollectMetrics(ctx)
	require.NoError(t, err)
	open := m.GetAlerts(&api.AlertFilter{
		Type:   monitor.AlertSourceFailure,
		Source: "cache",
	})
	require.Len(t, open, 1)
	assert.Equal(t, api.SeverityWarning, open[0].Severity)
	assert.Len(t, unresolved(m), 2)

	src.setErr(nil)
	_, err = m.CollectMetrics(ctx)
	require.NoError(t, err)
	assert.Len(t, unresolved(m), 1)
}

func TestResolveAlertErrors(t *testing.T) {
	m := newMonitor(t, testConfig(), monitor.Deps{})
	_, err := m.ResolveAlert("missing")
	assert.ErrorIs(t, err, monitor.ErrAlertNotFound)
	assert.ErrorIs(t, err, api.ErrNotFound)

	require.NoError(t, m.RegisterSource("db", &fakeSource{
		status: api.HealthOffline,
	}))
	m.PerformHealthChecks(context.Background())
	a := unresolved(m)[0]

	_, err = m.ResolveAlert(a.ID)
	require.NoError(t, err)
	_, err = m.ResolveAlert(a.ID)
	assert.ErrorIs(t, err, monitor.ErrAlertResolved)
	assert.ErrorIs(t, err, api.ErrInvalidState)
}

func TestGetAlertsLimit(t *testing.T) {
	m := newMonitor(t, testConfig(), monitor.Deps{})
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, m.RegisterSource(name, &fakeSource{
			status: api.HealthCritical,
		}))
	}
	m.PerformHealthChecks(context.Background())

	res := m.GetAlerts(&api.AlertFilter{Limit: 2})
	require.Len(t, res, 2)
	assert.Equal(t, "c", res[0].Source)
	assert.Equal(t, "b", res[1].Source)

	res[0].Message = "changed"
	assert.NotEqual(t, "changed", m.GetAlerts(nil)[0].Message)
}

func TestRetention(t *testing.T) {
	cfg := testConfig()
	cfg.Retention = time.Hour
	clock := newFakeClock()
	host := &fakeHost{reading: monitor.HostReading{CPUPercent: 95}}
	m := newMonitor(t, cfg, monitor.Deps{Host: host, Clock: clock.Now})
	ctx := context.Background()

	_, err := m.CollectMetrics(ctx)
	require.NoError(t, err)
	host.set(monitor.HostReading{CPUPercent: 10})
	clock.advance(time.Minute)
	_, err = m.CollectMetrics(ctx)
	require.NoError(t, err)
	require.Len(t, m.GetAlerts(nil), 1)

	clock.advance(2 * time.Hour)
	_, err = m.CollectMetrics(ctx)
	require.NoError(t, err)

	res, err := m.GetMetrics(ctx, &api.MetricQuery{
		Name: "system." + monitor.ReadingCPU,
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{10}, values(res))
	assert.Empty(t, m.GetAlerts(nil))
}

func TestHealingCooldown(t *testing.T) {
	clock := newFakeClock()
	host := &fakeHost{reading: monitor.HostReading{CPUPercent: 95}}
	m := newMonitor(t, testConfig(), monitor.Deps{
		Host:  host,
		Clock: clock.Now,
	})
	wf := &fakeLauncher{}
	require.NoError(t, m.RegisterHealingAction(monitor.WorkflowHealing(
		"scale_out",
		monitor.AlertPresent(monitor.AlertThreshold, monitor.ReadingCPU),
		time.Minute, wf, "scale", map[string]any{"region": "east"},
	)))
	ctx := context.Background()

	_, err := m.CollectMetrics(ctx)
	require.NoError(t, err)
	_, err = m.CollectMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, wf.count())

	clock.advance(2 * time.Minute)
	_, err = m.CollectMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, wf.count())

	vars := wf.last()
	assert.Equal(t, "east", vars["region"])
	assert.Equal(t, "scale_out", vars["healing_action"])
	snap := vars["snapshot"].(map[string]any)
	assert.Equal(t, 95.0, snap[monitor.ReadingCPU])

	host.set(monitor.HostReading{CPUPercent: 10})
	clock.advance(2 * time.Minute)
	_, err = m.CollectMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, wf.count())
}

func TestHealingDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.HealingEnabled = false
	host := &fakeHost{reading: monitor.HostReading{CPUPercent: 95}}
	m := newMonitor(t, cfg, monitor.Deps{Host: host})
	wf := &fakeLauncher{}
	require.NoError(t, m.RegisterHealingAction(monitor.WorkflowHealing(
		"scale_out",
		monitor.AlertPresent(monitor.AlertThreshold, monitor.ReadingCPU),
		0, wf, "scale", nil,
	)))

	_, err := m.CollectMetrics(context.Background())
	require.NoError(t, err)
	assert.Zero(t, wf.count())
}

func TestHealingPanicRecovered(t *testing.T) {
	m := newMonitor(t, testConfig(), monitor.Deps{})
	calls := 0
	require.NoError(t, m.RegisterHealingAction(&monitor.HealingAction{
		Name: "explode",
		Condition: func(*api.SystemSnapshot, []*api.Alert) bool {
			return true
		},
		Action: func(context.Context, *api.SystemSnapshot) error {
			calls++
			panic("boom")
		},
	}))

	_, err := m.CollectMetrics(context.Background())
	require.NoError(t, err)
	_, err = m.CollectMetrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestHealingConditionReadsMonitor(t *testing.T) {
	host := &fakeHost{reading: monitor.HostReading{CPUPercent: 95}}
	m := newMonitor(t, testConfig(), monitor.Deps{Host: host})

	var seen []int
	require.NoError(t, m.RegisterHealingAction(&monitor.HealingAction{
		Name: "inspect",
		Condition: func(*api.SystemSnapshot, []*api.Alert) bool {
			seen = append(seen, len(m.GetAlerts(nil)))
			_ = m.GetHealth()
			return false
		},
		Action: func(context.Context, *api.SystemSnapshot) error {
			return nil
		},
	}))

	done := make(chan error, 1)
	go func() {
		_, err := m.CollectMetrics(context.Background())
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("healing condition deadlocked on the monitor")
	}
	assert.Len(t, seen, 1)
}

func TestHealingActionInvalid(t *testing.T) {
	m := newMonitor(t, testConfig(), monitor.Deps{})
	cond := func(*api.SystemSnapshot, []*api.Alert) bool { return true }
	act := func(context.Context, *api.SystemSnapshot) error { return nil }
	for _, h := range []*monitor.HealingAction{
		nil,
		{Condition: cond, Action: act},
		{Name: "x", Action: act},
		{Name: "x", Condition: cond},
		{Name: "x", Condition: cond, Action: act, Cooldown: -time.Second},
	} {
		assert.ErrorIs(t, m.RegisterHealingAction(h),
			monitor.ErrInvalidHealing)
	}
}

func TestTrend(t *testing.T) {
	series := func(vals ...float64) []*api.MetricSample {
		res := make([]*api.MetricSample, 0, len(vals))
		for i, v := range vals {
			res = append(res, sampleAt("x", i, v))
		}
		return res
	}
	for name, tc := range map[string]struct {
		samples []*api.MetricSample
		want    api.Trend
	}{
		"empty":    {nil, api.TrendStable},
		"single":   {series(5), api.TrendStable},
		"up":       {series(10, 10, 20, 20), api.TrendUp},
		"down":     {series(20, 20, 10, 10), api.TrendDown},
		"deadband": {series(100, 100, 104, 104), api.TrendStable},
		"flat":     {series(0, 0, 0, 0), api.TrendStable},
		"from0":    {series(0, 0, 1, 1), api.TrendUp},
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, monitor.Trend(tc.samples))
		})
	}
}

func TestDashboard(t *testing.T) {
	clock := newFakeClock()
	host := &fakeHost{}
	m := newMonitor(t, testConfig(), monitor.Deps{
		Host:  host,
		Clock: clock.Now,
	})
	require.NoError(t, m.RegisterSource("db", &fakeSource{
		status: api.HealthWarning,
	}))
	ctx := context.Background()

	empty, err := m.GetDashboard(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty.Snapshot)
	assert.Equal(t, api.HealthHealthy, empty.Health)

	for i := range 12 {
		host.set(monitor.HostReading{
			CPUPercent:    float64(i * 10),
			MemoryPercent: 40,
		})
		_, err := m.CollectMetrics(ctx)
		require.NoError(t, err)
		clock.advance(time.Minute)
	}
	m.PerformHealthChecks(ctx)

	d, err := m.GetDashboard(ctx)
	require.NoError(t, err)
	require.NotNil(t, d.Snapshot)
	assert.Equal(t, 110.0, d.Snapshot.CPUPercent)
	assert.Equal(t, api.HealthWarning, d.Health)
	assert.Equal(t, api.HealthWarning, d.Modules["db"].Status)
	assert.Equal(t, api.TrendUp, d.Trends["system."+monitor.ReadingCPU])
	assert.Equal(t,
		api.TrendStable, d.Trends["system."+monitor.ReadingMemory],
	)
	require.Len(t, d.Alerts, 1)
	assert.False(t, d.Alerts[0].Resolved)
}

func TestStartStop(t *testing.T) {
	cfg := testConfig()
	tm := newFakeTimer()
	m := newMonitor(t, cfg, monitor.Deps{Timer: tm})
	require.NoError(t, m.RegisterSource("db", &fakeSource{
		status: api.HealthCritical,
	}))
	ctx := context.Background()

	require.NoError(t, m.Start(ctx))
	assert.ErrorIs(t, m.Start(ctx), monitor.ErrAlreadyStarted)
	assert.Equal(t, cfg.MetricsInterval, tm.interval("monitor/metrics"))
	assert.Equal(t, cfg.HealthInterval, tm.interval("monitor/health"))

	require.NoError(t, tm.get("monitor/health")())
	assert.Len(t, unresolved(m), 1)

	require.NoError(t, tm.get("monitor/metrics")())
	res, err := m.GetMetrics(ctx, &api.MetricQuery{})
	require.NoError(t, err)
	assert.NotEmpty(t, res)

	m.Stop(ctx)
	m.Stop(ctx)
	assert.Equal(t, []string{"monitor/"}, tm.cancelledPrefixes())

	require.NoError(t, m.Start(ctx))
}

func TestStartWithoutTimer(t *testing.T) {
	m := newMonitor(t, testConfig(), monitor.Deps{})
	assert.ErrorIs(t, m.Start(context.Background()), monitor.ErrNoTimer)
}

func TestTelemetryInstruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	host := &fakeHost{reading: monitor.HostReading{CPUPercent: 95}}
	m := newMonitor(t, testConfig(), monitor.Deps{
		Host:  host,
		Meter: provider.Meter("test"),
	})
	ctx := context.Background()
	_, err := m.CollectMetrics(ctx)
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	gauge, ok := findMetric(rm, "foreman.monitor.reading").Data.(metricdata.Gauge[float64])
	require.True(t, ok)
	var cpu float64
	for _, dp := range gauge.DataPoints {
		if v, ok := dp.Attributes.Value("reading"); ok &&
			v.AsString() == monitor.ReadingCPU {
			cpu = dp.Value
		}
	}
	assert.Equal(t, 95.0, cpu)

	sum, ok := findMetric(rm, "foreman.monitor.alerts").Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)
	sev, _ := sum.DataPoints[0].Attributes.Value("severity")
	assert.Equal(t, string(api.SeverityWarning), sev.AsString())
}

func TestTaskSourceHealth(t *testing.T) {
	ctx := context.Background()
	stats := &fakeTasks{metrics: api.TaskMetrics{
		Pending:  20,
		ByStatus: map[api.Status]int{api.StatusCompleted: 4},
	}}

	rep, err := monitor.NewTaskSource(stats, 10, 0.5).Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, api.HealthWarning, rep.Status)

	rep, err = monitor.NewTaskSource(stats, 0, 0.5).Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, api.HealthHealthy, rep.Status)

	fields, err := monitor.NewTaskSource(stats, 0, 0).Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20.0, fields["pending"])
	assert.Equal(t, 4.0, fields["completed"])
	assert.Equal(t, 0.0, fields["failure_rate"])
}

func newMonitor(
	t *testing.T, cfg config.MonitorConfig, deps monitor.Deps,
) *monitor.Monitor {
	t.Helper()
	if deps.Host == nil {
		deps.Host = &fakeHost{}
	}
	m, err := monitor.New(cfg, deps)
	require.NoError(t, err)
	return m
}

func testConfig() config.MonitorConfig {
	return config.MonitorConfig{
		MetricsInterval: time.Minute,
		HealthInterval:  30 * time.Second,
		Retention:       24 * time.Hour,
		AlertingEnabled: true,
		HealingEnabled:  true,
		Thresholds: config.Thresholds{
			CPUPercent:    80,
			MemoryPercent: 90,
			QueueDepth:    100,
			FailureRate:   0.5,
		},
	}
}

func unresolved(m *monitor.Monitor) []*api.Alert {
	open := false
	return m.GetAlerts(&api.AlertFilter{Resolved: &open})
}

func findMetric(rm metricdata.ResourceMetrics, name string) metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m
			}
		}
	}
	return metricdata.Metrics{}
}

func (s *fakeSource) Collect(context.Context) (map[string]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panics {
		panic("collect exploded")
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.fields, nil
}

func (s *fakeSource) Health(context.Context) (*api.HealthReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panics {
		panic("health exploded")
	}
	if s.err != nil {
		return nil, s.err
	}
	return &api.HealthReport{Status: s.status}, nil
}

func (s *fakeSource) setStatus(status api.HealthStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *fakeSource) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (r *recorder) Raise(typ api.EventType, source string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, &api.Event{
		Type:   typ,
		Source: source,
		Data:   data,
	})
}

func (r *recorder) of(typ api.EventType) []*api.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []*api.Event
	for _, ev := range r.events {
		if ev.Type == typ {
			res = append(res, ev)
		}
	}
	return res
}

func (h *fakeHost) Read(context.Context) (monitor.HostReading, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reading, nil
}

func (h *fakeHost) set(r monitor.HostReading) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reading = r
}

func (f *fakeTasks) GetMetrics() api.TaskMetrics {
	return f.metrics
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: storeEpoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{
		funcs:     map[string]timer.Func{},
		intervals: map[string]time.Duration{},
	}
}

func (f *fakeTimer) Every(
	_ context.Context, key string, interval time.Duration, fn timer.Func,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.funcs[key] = fn
	f.intervals[key] = interval
	return nil
}

func (f *fakeTimer) CancelPrefix(_ context.Context, prefix string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, prefix)
}

func (f *fakeTimer) get(key string) timer.Func {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.funcs[key]
}

func (f *fakeTimer) interval(key string) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.intervals[key]
}

func (f *fakeTimer) cancelledPrefixes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}

func (l *fakeLauncher) Execute(
	_ context.Context, id api.WorkflowID, vars map[string]any,
) (*api.WorkflowExecution, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.vars = append(l.vars, vars)
	return &api.WorkflowExecution{
		ID:         api.ExecutionID("exec-" + string(id)),
		WorkflowID: id,
	}, nil
}

func (l *fakeLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.vars)
}

func (l *fakeLauncher) last() map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.vars[len(l.vars)-1]
}
