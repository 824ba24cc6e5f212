package workflow

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/kode4food/foreman/internal/config"
	"github.com/kode4food/foreman/internal/events"
	"github.com/kode4food/foreman/internal/script"
	"github.com/kode4food/foreman/internal/timer"
	"github.com/kode4food/foreman/pkg/api"
	"github.com/kode4food/foreman/pkg/log"
)

type (
	// Engine registers workflow definitions and runs their executions
	Engine struct {
		events      events.Publisher
		subscriber  events.Subscriber
		timer       Timer
		archive     Archiver
		tracer      trace.Tracer
		scripts     Scripts
		now         func() time.Time
		ctx         context.Context
		cancel      context.CancelFunc
		defs        map[api.WorkflowID]*api.WorkflowDefinition
		activations map[api.WorkflowID]*activation
		templates   map[api.TemplateID]*api.WorkflowTemplate
		executors   map[api.StepType]StepExecutor
		runs        map[api.ExecutionID]*run
		order       []api.ExecutionID
		counters    counters
		cfg         config.WorkflowConfig
		wg          sync.WaitGroup
		regMu       sync.Mutex
		mu          sync.Mutex
	}

	// Deps are the collaborators an Engine runs steps and triggers with.
	// Nil members disable what depends on them: task and decision steps,
	// event and schedule triggers, archival. Scripts defaults to a fresh
	// sandboxed Lua environment
	Deps struct {
		Tasks      TaskRunner
		Decider    Decider
		Scripts    Scripts
		Events     events.Publisher
		Subscriber events.Subscriber
		Timer      Timer
		Archive    Archiver
		Tracer     trace.Tracer
	}

	// Timer fires schedule triggers
	Timer interface {
		Every(
			ctx context.Context, key string, interval time.Duration,
			fn timer.Func,
		) error
		CancelPrefix(ctx context.Context, prefix string)
	}

	run struct {
		exec   *api.WorkflowExecution
		def    *api.WorkflowDefinition
		cancel context.CancelFunc
	}

	counters struct {
		total     int
		active    int
		completed int
		failed    int
		cancelled int
		avgMs     float64
	}
)

const (
	eventSource     = "workflow"
	instrumentation = "github.com/kode4food/foreman/internal/workflow"
	archiveTimeout  = 10 * time.Second
)

// New creates a workflow engine with the built-in step types registered
func New(cfg config.WorkflowConfig, deps Deps) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		events:      deps.Events,
		subscriber:  deps.Subscriber,
		timer:       deps.Timer,
		archive:     deps.Archive,
		tracer:      deps.Tracer,
		scripts:     deps.Scripts,
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
		defs:        map[api.WorkflowID]*api.WorkflowDefinition{},
		activations: map[api.WorkflowID]*activation{},
		templates:   map[api.TemplateID]*api.WorkflowTemplate{},
		executors:   map[api.StepType]StepExecutor{},
		runs:        map[api.ExecutionID]*run{},
		cfg:         cfg,
	}
	if e.events == nil {
		e.events = events.Discard
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(instrumentation)
	}
	if e.scripts == nil {
		e.scripts = script.NewEnv()
	}

	e.executors[api.StepWait] = waitStep{}
	e.executors[api.StepCondition] = &conditionStep{
		scripts: e.scripts,
		timeout: cfg.ScriptTimeout,
	}
	e.executors[api.StepScript] = &scriptStep{
		scripts: e.scripts,
		timeout: cfg.ScriptTimeout,
	}
	if deps.Tasks != nil {
		e.executors[api.StepTask] = &taskStep{tasks: deps.Tasks}
	}
	if deps.Decider != nil {
		e.executors[api.StepDecision] = &decisionStep{decider: deps.Decider}
	}
	return e
}

// RegisterExecutor binds a step type to an executor, replacing any
// executor already bound to it
func (e *Engine) RegisterExecutor(typ api.StepType, ex StepExecutor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executors[typ] = ex
}

// Register validates and stores a definition, replacing one with the same
// ID. The replaced definition's triggers are deactivated first, and the
// new ones are activated when the definition is enabled
func (e *Engine) Register(def *api.WorkflowDefinition) error {
	if err := ValidateDefinition(def); err != nil {
		return err
	}
	if err := validateExpressions(def, e.scripts); err != nil {
		return err
	}
	if def.Enabled {
		if err := e.checkTriggerSources(def); err != nil {
			return err
		}
	}

	e.regMu.Lock()
	defer e.regMu.Unlock()

	stored := def.Clone()
	e.mu.Lock()
	old := e.activations[def.ID]
	delete(e.activations, def.ID)
	e.defs[def.ID] = stored
	e.mu.Unlock()

	e.deactivate(def.ID, old)
	if stored.Enabled {
		if err := e.activate(stored); err != nil {
			slog.Error("Trigger activation failed",
				log.WorkflowID(def.ID),
				log.Error(err))
			return err
		}
	}

	slog.Info("Workflow registered",
		log.WorkflowID(def.ID),
		slog.Int("steps", len(def.Steps)),
		slog.Int("triggers", len(def.Triggers)))
	e.events.Raise(api.EventWorkflowRegistered, eventSource, stored.Clone())
	return nil
}

// Unregister removes a definition and deactivates its triggers. Running
// executions of it are left to finish
func (e *Engine) Unregister(id api.WorkflowID) error {
	e.regMu.Lock()
	defer e.regMu.Unlock()

	e.mu.Lock()
	if _, ok := e.defs[id]; !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	old := e.activations[id]
	delete(e.activations, id)
	delete(e.defs, id)
	e.mu.Unlock()

	e.deactivate(id, old)
	slog.Info("Workflow unregistered",
		log.WorkflowID(id))
	return nil
}

// GetDefinition returns a copy of the registered definition
func (e *Engine) GetDefinition(
	id api.WorkflowID,
) (*api.WorkflowDefinition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	def, ok := e.defs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	return def.Clone(), nil
}

// ListDefinitions returns copies of every definition ordered by ID
func (e *Engine) ListDefinitions() []*api.WorkflowDefinition {
	e.mu.Lock()
	defer e.mu.Unlock()
	res := make([]*api.WorkflowDefinition, 0, len(e.defs))
	for _, def := range e.defs {
		res = append(res, def.Clone())
	}
	slices.SortFunc(res, func(l, r *api.WorkflowDefinition) int {
		return cmp.Compare(l.ID, r.ID)
	})
	return res
}

// Execute starts a new execution of the workflow and returns it while
// still in progress. The run continues on its own goroutine and outlives
// ctx, though it keeps ctx's values
func (e *Engine) Execute(
	ctx context.Context, id api.WorkflowID, vars map[string]any,
) (*api.WorkflowExecution, error) {
	e.mu.Lock()
	def, ok := e.defs[id]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	if !def.Enabled {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrWorkflowDisabled, id)
	}
	if e.counters.active >= e.cfg.MaxConcurrent {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAtCapacity, id)
	}

	r := e.newRunLocked(def, vars)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	started := r.exec.Clone()
	e.mu.Unlock()

	slog.Info("Workflow started",
		log.WorkflowID(id),
		log.ExecutionID(started.ID))
	e.events.Raise(api.EventWorkflowStarted, eventSource, started)

	e.wg.Go(func() {
		e.execute(runCtx, r)
	})
	return started, nil
}

// Cancel stops an in-progress execution. The step in flight has its
// context cancelled and its result is discarded
func (e *Engine) Cancel(id api.ExecutionID) error {
	e.mu.Lock()
	r, ok := e.runs[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	if !r.exec.Status.CanTransition(api.StatusCancelled) {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotInProgress, id)
	}
	res := e.finishLocked(r, api.StatusCancelled, "")
	e.mu.Unlock()

	r.cancel()
	e.finished(res)
	return nil
}

// GetExecution returns a copy of the execution
func (e *Engine) GetExecution(
	id api.ExecutionID,
) (*api.WorkflowExecution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	return r.exec.Clone(), nil
}

// ListExecutions returns copies of the executions that satisfy filter in
// start order. A positive Limit keeps the most recent ones
func (e *Engine) ListExecutions(
	filter *api.ExecutionFilter,
) []*api.WorkflowExecution {
	e.mu.Lock()
	defer e.mu.Unlock()
	var res []*api.WorkflowExecution
	for _, id := range e.order {
		if ex := e.runs[id].exec; filter.Matches(ex) {
			res = append(res, ex.Clone())
		}
	}
	if filter != nil && filter.Limit > 0 && len(res) > filter.Limit {
		res = res[len(res)-filter.Limit:]
	}
	return res
}

// GetMetrics returns a snapshot of the engine counters
func (e *Engine) GetMetrics() api.WorkflowMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.counters
	return api.WorkflowMetrics{
		Total:           c.total,
		Active:          c.active,
		Completed:       c.completed,
		Failed:          c.failed,
		Cancelled:       c.cancelled,
		AverageDuration: c.avgMs,
	}
}

// Wait blocks until every execution started so far has stopped running
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Close deactivates every trigger, cancels the executions still in
// progress and waits for their runs to stop
func (e *Engine) Close() {
	e.regMu.Lock()
	e.mu.Lock()
	acts := e.activations
	e.activations = map[api.WorkflowID]*activation{}
	var running []api.ExecutionID
	for _, id := range e.order {
		if e.runs[id].exec.Status == api.StatusInProgress {
			running = append(running, id)
		}
	}
	e.mu.Unlock()

	for id, a := range acts {
		e.deactivate(id, a)
	}
	e.regMu.Unlock()

	for _, id := range running {
		_ = e.Cancel(id)
	}
	e.cancel()
	e.wg.Wait()
}

func (e *Engine) newRunLocked(
	def *api.WorkflowDefinition, vars map[string]any,
) *run {
	snapshot := def.Clone()
	bag := snapshot.Variables
	if bag == nil {
		bag = map[string]any{}
	}
	maps.Copy(bag, api.CloneValues(vars))

	now := e.now()
	r := &run{
		def: snapshot,
		exec: &api.WorkflowExecution{
			ID:         api.ExecutionID(uuid.NewString()),
			WorkflowID: def.ID,
			Status:     api.StatusInProgress,
			StartedAt:  now,
			UpdatedAt:  now,
			Variables:  bag,
			History:    []*api.StepRecord{},
		},
	}
	e.runs[r.exec.ID] = r
	e.order = append(e.order, r.exec.ID)
	e.counters.total++
	e.counters.active++
	return r
}

func (e *Engine) finishLocked(
	r *run, status api.Status, msg string,
) *api.WorkflowExecution {
	now := e.now()
	r.exec.Status = status
	r.exec.Error = msg
	r.exec.CompletedAt = now
	r.exec.UpdatedAt = now

	c := &e.counters
	c.active--
	switch status {
	case api.StatusCompleted:
		c.completed++
	case api.StatusFailed:
		c.failed++
	case api.StatusCancelled:
		c.cancelled++
	}
	n := float64(c.completed + c.failed + c.cancelled)
	ms := float64(now.Sub(r.exec.StartedAt).Milliseconds())
	c.avgMs += (ms - c.avgMs) / n
	return r.exec.Clone()
}

func (e *Engine) finished(exec *api.WorkflowExecution) {
	attrs := []any{
		log.WorkflowID(exec.WorkflowID),
		log.ExecutionID(exec.ID),
		log.Status(exec.Status),
	}
	var typ api.EventType
	switch exec.Status {
	case api.StatusCompleted:
		typ = api.EventWorkflowCompleted
		slog.Info("Workflow completed", attrs...)
	case api.StatusFailed:
		typ = api.EventWorkflowFailed
		slog.Error("Workflow failed",
			append(attrs, log.ErrorString(exec.Error))...)
	default:
		typ = api.EventWorkflowCancelled
		slog.Info("Workflow cancelled", attrs...)
	}
	e.events.Raise(typ, eventSource, exec)

	if e.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := e.archive.Archive(ctx, exec); err != nil {
		slog.Warn("Execution not archived",
			log.ExecutionID(exec.ID),
			log.Error(err))
	}
}
