package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/kode4food/foreman/internal/config"
	"github.com/kode4food/foreman/internal/decision"
	"github.com/kode4food/foreman/internal/events"
	"github.com/kode4food/foreman/internal/monitor"
	"github.com/kode4food/foreman/internal/script"
	"github.com/kode4food/foreman/internal/tasks"
	"github.com/kode4food/foreman/internal/timer"
	"github.com/kode4food/foreman/internal/workflow"
	"github.com/kode4food/foreman/pkg/log"
)

type (
	// Core is the assembled orchestration system
	Core struct {
		Events    *events.Hub
		Timer     *timer.Scheduler
		Tasks     *tasks.Scheduler
		Decisions *decision.Engine
		Workflows *workflow.Engine
		Monitor   *monitor.Monitor

		cfg     *config.Config
		closers []func() error
		cancel  context.CancelFunc
		done    chan struct{}
	}

	// Deps replace the collaborators Core would otherwise build from its
	// configuration. Every member is optional
	Deps struct {
		Store   monitor.Store
		Host    monitor.HostCollector
		Archive workflow.Archiver
		Clock   timer.Clock
		Meter   metric.Meter
		Tracer  trace.Tracer
	}
)

const (
	processKey   = "tasks/process"
	tasksSource  = "tasks"
	flowsSource  = "workflows"
	decideSource = "decisions"
)

var (
	ErrAlreadyRunning = errors.New("core already running")
	ErrLoadWorkflows  = errors.New("failed to load workflows")
	ErrOpenStore      = errors.New("failed to open metric store")
)

// New builds every component from the configuration, loads the workflow
// definitions and templates found in the configured directories, and
// registers the components as monitor sources
func New(ctx context.Context, cfg *config.Config, deps Deps) (*Core, error) {
	c := &Core{
		Events: events.NewHub(),
		Timer:  timer.New(deps.Clock, nil),
		cfg:    cfg,
	}
	scripts := script.NewEnv()

	c.Tasks = tasks.New(cfg.Tasks, c.Events)
	c.Tasks.RegisterExecutor(cfg.Tasks.DefaultExecutor, ScriptExecutor(scripts))
	c.Decisions = decision.New(cfg.Decision, c.Events, scripts)

	archive := deps.Archive
	if archive == nil && cfg.Workflow.ArchiveURL != "" {
		a, closeFn, err := workflow.OpenArchive(ctx, cfg.Workflow.ArchiveURL)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, closeFn)
		archive = a
	}

	c.Workflows = workflow.New(cfg.Workflow, workflow.Deps{
		Tasks:      c.Tasks,
		Decider:    c.Decisions,
		Scripts:    scripts,
		Events:     c.Events,
		Subscriber: c.Events,
		Timer:      c.Timer,
		Archive:    archive,
		Tracer:     deps.Tracer,
	})

	store, err := c.metricStore(ctx, deps.Store)
	if err != nil {
		return nil, c.abandon(err)
	}
	c.Monitor, err = monitor.New(cfg.Monitor, monitor.Deps{
		Events:    c.Events,
		Timer:     c.Timer,
		Store:     store,
		Host:      deps.Host,
		Tasks:     c.Tasks,
		Workflows: c.Workflows,
		Meter:     deps.Meter,
		Clock:     deps.Clock,
	})
	if err != nil {
		return nil, c.abandon(err)
	}

	if err := c.registerSources(); err != nil {
		return nil, c.abandon(err)
	}
	if err := c.loadWorkflows(); err != nil {
		return nil, c.abandon(err)
	}
	return c, nil
}

// Start runs the timer scheduler, the task backlog drain and the monitor
func (c *Core) Start(ctx context.Context) error {
	if c.cancel != nil {
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.done = make(chan struct{})
	go func() {
		defer close(c.done)
		c.Timer.Run(runCtx)
	}()

	err := c.Timer.Every(ctx, processKey, c.cfg.Tasks.ProcessInterval,
		func() error {
			if n := c.Tasks.ProcessQueue(runCtx); n > 0 {
				slog.Debug("Tasks dispatched", slog.Int("count", n))
			}
			return nil
		},
	)
	if err == nil {
		err = c.Monitor.Start(ctx)
	}
	if err != nil {
		c.Stop(ctx)
		return err
	}
	slog.Info("Orchestration core started")
	return nil
}

// Stop halts the monitor and the backlog drain, cancels running workflow
// executions, waits for dispatched tasks and releases external resources
func (c *Core) Stop(ctx context.Context) {
	if c.cancel != nil {
		c.Monitor.Stop(ctx)
		c.Timer.Cancel(ctx, processKey)
	}
	c.Workflows.Close()
	c.Tasks.Wait()
	if c.cancel != nil {
		c.cancel()
		<-c.done
		c.cancel = nil
	}
	c.Events.Close()
	if err := c.close(); err != nil {
		slog.Error("Failed to release resources", log.Error(err))
	}
	slog.Info("Orchestration core stopped")
}

func (c *Core) metricStore(
	ctx context.Context, store monitor.Store,
) (monitor.Store, error) {
	if store != nil || c.cfg.Monitor.Redis.Addr == "" {
		return store, nil
	}
	rs := monitor.NewRedisStore(c.cfg.Monitor.Redis)
	if err := rs.Ping(ctx); err != nil {
		_ = rs.Close()
		return nil, fmt.Errorf("%w: %w", ErrOpenStore, err)
	}
	c.closers = append(c.closers, rs.Close)
	slog.Info("Using Redis metric store",
		slog.String("addr", c.cfg.Monitor.Redis.Addr),
		slog.Int("db", c.cfg.Monitor.Redis.DB))
	return rs, nil
}

func (c *Core) registerSources() error {
	th := c.cfg.Monitor.Thresholds
	return errors.Join(
		c.Monitor.RegisterSource(tasksSource,
			monitor.NewTaskSource(c.Tasks, th.QueueDepth, th.FailureRate),
		),
		c.Monitor.RegisterSource(flowsSource,
			monitor.NewWorkflowSource(c.Workflows),
		),
		c.Monitor.RegisterSource(decideSource,
			monitor.NewDecisionSource(c.Decisions),
		),
	)
}

func (c *Core) loadWorkflows() error {
	if dir := c.cfg.Workflow.TemplateDir; dir != "" {
		tpls, err := workflow.LoadTemplatesDir(dir)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrLoadWorkflows, err)
		}
		for _, tpl := range tpls {
			if err := c.Workflows.RegisterTemplate(tpl); err != nil {
				return fmt.Errorf("%w: %w", ErrLoadWorkflows, err)
			}
		}
		slog.Info("Workflow templates loaded",
			slog.String("dir", dir),
			slog.Int("count", len(tpls)))
	}

	if dir := c.cfg.Workflow.DefinitionDir; dir != "" {
		defs, err := workflow.LoadDefinitionsDir(dir)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrLoadWorkflows, err)
		}
		for _, def := range defs {
			if err := c.Workflows.Register(def); err != nil {
				return fmt.Errorf("%w: %w", ErrLoadWorkflows, err)
			}
		}
		slog.Info("Workflow definitions loaded",
			slog.String("dir", dir),
			slog.Int("count", len(defs)))
	}
	return nil
}

func (c *Core) abandon(err error) error {
	c.Workflows.Close()
	c.Events.Close()
	return errors.Join(err, c.close())
}

func (c *Core) close() error {
	var errs []error
	for _, fn := range c.closers {
		errs = append(errs, fn())
	}
	c.closers = nil
	return errors.Join(errs...)
}
