package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kode4food/foreman/pkg/api"
	"github.com/kode4food/foreman/pkg/log"
)

// errStopped ends a run whose execution left the in_progress status
// while a step was in flight
var errStopped = errors.New("execution stopped")

func (e *Engine) execute(ctx context.Context, r *run) {
	defer r.cancel()

	ctx, span := e.tracer.Start(ctx, "workflow.execute",
		trace.WithAttributes(
			attribute.String("workflow.id", string(r.def.ID)),
			attribute.String("workflow.execution_id", string(r.exec.ID)),
		),
	)
	defer span.End()

	err := e.walk(ctx, r)
	switch {
	case errors.Is(err, errStopped):
		span.SetStatus(codes.Error, errStopped.Error())
		return
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.stop(r, api.StatusFailed, err.Error())
	default:
		e.stop(r, api.StatusCompleted, "")
	}
}

func (e *Engine) walk(ctx context.Context, r *run) error {
	step := r.def.Steps[0]
	for step != nil {
		if !e.enter(r, step.ID) {
			return errStopped
		}
		res, err := e.runStep(ctx, r, step)
		if err != nil {
			return err
		}
		step, err = e.nextStep(ctx, r, step, res)
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) runStep(
	ctx context.Context, r *run, step *api.WorkflowStep,
) (*StepResult, error) {
	policy := e.retryPolicy(step)
	for attempt := 1; ; attempt++ {
		started := e.now()
		res, err := e.attempt(ctx, r, step, attempt)
		rec := &api.StepRecord{
			StepID:    step.ID,
			Type:      step.Type,
			Attempt:   attempt,
			StartedAt: started,
			EndedAt:   e.now(),
			Status:    api.StatusCompleted,
		}
		if err != nil {
			rec.Status = api.StatusFailed
			rec.Error = err.Error()
		} else if res != nil {
			rec.Output = res.Output
		}

		if !e.record(r, rec) {
			return nil, errStopped
		}
		if err == nil {
			if res == nil {
				res = &StepResult{}
			}
			return res, nil
		}

		if errors.Is(err, api.ErrValidation) || attempt >= policy.MaxAttempts {
			return nil, fmt.Errorf("step %s: %w", step.ID, err)
		}
		delay := policy.Delay(attempt)
		slog.Warn("Step attempt failed",
			log.ExecutionID(r.exec.ID),
			log.StepID(step.ID),
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", delay),
			log.Error(err))
		if !sleep(ctx, delay) {
			return nil, errStopped
		}
	}
}

func (e *Engine) attempt(
	ctx context.Context, r *run, step *api.WorkflowStep, attempt int,
) (res *StepResult, err error) {
	ctx, span := e.tracer.Start(ctx, "workflow.step",
		trace.WithAttributes(
			attribute.String("workflow.step_id", string(step.ID)),
			attribute.String("workflow.step_type", string(step.Type)),
			attribute.Int("workflow.attempt", attempt),
		),
	)
	defer func() {
		if rec := recover(); rec != nil {
			res = nil
			err = fmt.Errorf("%w: %v", ErrStepPanicked, rec)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	ex, ok := e.executorFor(step.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStepType, step.Type)
	}
	vars := e.variables(r)
	return ex.Execute(ctx, newInterpolator(vars).step(step), vars)
}

func (e *Engine) nextStep(
	ctx context.Context, r *run, step *api.WorkflowStep, res *StepResult,
) (*api.WorkflowStep, error) {
	if res.Next != "" {
		next := r.def.GetStep(res.Next)
		if next == nil {
			return nil, fmt.Errorf("%w: %s", ErrStepNotFound, res.Next)
		}
		return next, nil
	}
	if len(step.Next) == 0 {
		return r.def.StepAfter(step.ID), nil
	}

	var vars map[string]any
	for _, n := range step.Next {
		if n.Option != "" && n.Option != res.Option {
			continue
		}
		if n.When != "" {
			if vars == nil {
				vars = e.variables(r)
			}
			ok, err := e.guard(ctx, n.When, vars)
			if err != nil {
				return nil, fmt.Errorf("step %s guard: %w", step.ID, err)
			}
			if !ok {
				continue
			}
		}
		if n.Step == "" {
			return nil, nil
		}
		return r.def.GetStep(n.Step), nil
	}
	return nil, nil
}

func (e *Engine) guard(
	ctx context.Context, expr string, vars map[string]any,
) (bool, error) {
	ctx, cancel := withScriptTimeout(ctx, e.cfg.ScriptTimeout)
	defer cancel()
	return e.scripts.Evaluate(ctx, expr, vars)
}

func (e *Engine) retryPolicy(step *api.WorkflowStep) api.RetryPolicy {
	policy := e.cfg.Retry
	if step.Retry != nil {
		policy = *step.Retry
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return policy
}

func (e *Engine) executorFor(typ api.StepType) (StepExecutor, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ex, ok := e.executors[typ]
	return ex, ok
}

// enter marks step as current, reporting false if the run must stop
func (e *Engine) enter(r *run, id api.StepID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r.exec.Status != api.StatusInProgress {
		return false
	}
	r.exec.CurrentStep = id
	r.exec.UpdatedAt = e.now()
	return true
}

// record appends an attempt to the history and merges a successful
// attempt's output into the variables. Attempts that finish after the
// execution was cancelled are discarded
func (e *Engine) record(r *run, rec *api.StepRecord) bool {
	e.mu.Lock()
	if r.exec.Status != api.StatusInProgress {
		e.mu.Unlock()
		return false
	}
	r.exec.History = append(r.exec.History, rec)
	r.exec.UpdatedAt = rec.EndedAt
	if rec.Status == api.StatusCompleted {
		maps.Copy(r.exec.Variables, rec.Output)
	}
	ev := &api.StepEvent{
		Record:      rec.Clone(),
		ExecutionID: r.exec.ID,
		WorkflowID:  r.exec.WorkflowID,
	}
	e.mu.Unlock()

	if rec.Status == api.StatusCompleted {
		slog.Debug("Step completed",
			log.ExecutionID(ev.ExecutionID),
			log.StepID(rec.StepID),
			slog.Int("attempt", rec.Attempt))
		e.events.Raise(api.EventWorkflowStepCompleted, eventSource, ev)
		return true
	}
	e.events.Raise(api.EventWorkflowStepFailed, eventSource, ev)
	return true
}

func (e *Engine) variables(r *run) map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return api.CloneValues(r.exec.Variables)
}

func (e *Engine) stop(r *run, status api.Status, msg string) {
	e.mu.Lock()
	if r.exec.Status != api.StatusInProgress {
		e.mu.Unlock()
		return
	}
	res := e.finishLocked(r, status, msg)
	e.mu.Unlock()
	e.finished(res)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
