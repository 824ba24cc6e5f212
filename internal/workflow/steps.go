package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/kode4food/foreman/pkg/api"
)

type (
	taskStep struct {
		tasks TaskRunner
	}

	decisionStep struct {
		decider Decider
	}

	waitStep struct{}

	conditionStep struct {
		scripts Scripts
		timeout time.Duration
	}

	scriptStep struct {
		scripts Scripts
		timeout time.Duration
	}
)

// Output keys written by the built-in step types
const (
	OutputTaskID         = "task_id"
	OutputTaskResult     = "task_result"
	OutputDecisionID     = "decision_id"
	OutputSelectedOption = "selected_option"
	OutputCondition      = "condition_result"
)

func (s *taskStep) Execute(
	ctx context.Context, step *api.WorkflowStep, _ map[string]any,
) (*StepResult, error) {
	req, err := taskRequest(step)
	if err != nil {
		return nil, err
	}
	res, err := s.tasks.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	if res.Status != api.StatusCompleted {
		return nil, fmt.Errorf("%w: %s: %s", ErrTaskFailed, res.TaskID,
			res.Error)
	}

	out := map[string]any{OutputTaskID: string(res.TaskID)}
	key := OutputTaskResult
	if name, ok := configString(step, "output"); ok && name != "" {
		key = name
	}
	out[key] = res.Output
	return &StepResult{Output: out}, nil
}

func taskRequest(step *api.WorkflowStep) (*api.TaskRequest, error) {
	req := &api.TaskRequest{Title: string(step.ID)}
	if step.Name != "" {
		req.Title = step.Name
	}
	if t, ok := configString(step, "title"); ok && t != "" {
		req.Title = t
	}
	req.Description, _ = configString(step, "description")
	req.Type, _ = configString(step, "task_type")
	req.Executor, _ = configString(step, "executor")

	prio, err := configPriority(step)
	if err != nil {
		return nil, err
	}
	req.Priority = prio

	if est, ok, err := configFloat(step, "estimated_duration"); err != nil {
		return nil, err
	} else if ok {
		req.EstimatedDuration = int64(est)
	}

	meta, err := configMap(step, "metadata")
	if err != nil {
		return nil, err
	}
	req.Metadata = api.Metadata(meta)
	return req, nil
}

func configPriority(step *api.WorkflowStep) (api.Priority, error) {
	v, ok := step.Config["priority"]
	if !ok || v == nil {
		return 0, nil
	}
	if name, ok := v.(string); ok {
		if p, ok := api.ParsePriority(name); ok {
			return p, nil
		}
	}
	if f, ok := toFloat(v); ok {
		return api.Priority(f), nil
	}
	return 0, fmt.Errorf("%w: %s has invalid priority %v",
		ErrInvalidStepConfig, step.ID, v)
}

func (s *decisionStep) Execute(
	ctx context.Context, step *api.WorkflowStep, _ map[string]any,
) (*StepResult, error) {
	data, err := configMap(step, "data")
	if err != nil {
		return nil, err
	}
	dtype, _ := configString(step, "decision_type")
	options, err := decisionOptions(step)
	if err != nil {
		return nil, err
	}

	d, err := s.decider.MakeDecision(ctx, api.DecisionContext{
		Type: api.DecisionType(dtype),
		Data: data,
	}, options)
	if err != nil {
		return nil, err
	}

	res := &StepResult{
		Output: map[string]any{OutputDecisionID: string(d.ID)},
	}
	if d.Selected != nil {
		res.Option = d.Selected.ID
		res.Output[OutputSelectedOption] = d.Selected.ID
	}
	if name, ok := configString(step, "output"); ok && name != "" {
		res.Output[name] = res.Option
	}
	return res, nil
}

func decisionOptions(step *api.WorkflowStep) ([]api.DecisionOption, error) {
	var raw []any
	switch v := step.Config["options"].(type) {
	case []any:
		raw = v
	case []string:
		for _, id := range v {
			raw = append(raw, id)
		}
	case []map[string]any:
		for _, m := range v {
			raw = append(raw, m)
		}
	default:
		return nil, fmt.Errorf("%w: %s requires %q list",
			ErrInvalidStepConfig, step.ID, "options")
	}
	res := make([]api.DecisionOption, 0, len(raw))
	for _, r := range raw {
		switch r := r.(type) {
		case string:
			res = append(res, api.DecisionOption{ID: r})
		case map[string]any:
			opt := api.DecisionOption{
				Risks:    toStrings(r["risks"]),
				Benefits: toStrings(r["benefits"]),
			}
			opt.ID, _ = r["id"].(string)
			opt.Description, _ = r["description"].(string)
			if score, ok := toFloat(r["score"]); ok {
				opt.Score = score
			}
			if opt.ID == "" {
				return nil, fmt.Errorf("%w: %s has option without id",
					ErrInvalidStepConfig, step.ID)
			}
			res = append(res, opt)
		default:
			return nil, fmt.Errorf("%w: %s has invalid option %v",
				ErrInvalidStepConfig, step.ID, r)
		}
	}
	return res, nil
}

func (waitStep) Execute(
	ctx context.Context, step *api.WorkflowStep, _ map[string]any,
) (*StepResult, error) {
	d, err := configDuration(step)
	if err != nil {
		return nil, err
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return &StepResult{}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *conditionStep) Execute(
	ctx context.Context, step *api.WorkflowStep, vars map[string]any,
) (*StepResult, error) {
	expr, err := requireString(step, "expression")
	if err != nil {
		return nil, err
	}
	ctx, cancel := withScriptTimeout(ctx, s.timeout)
	defer cancel()
	ok, err := s.scripts.Evaluate(ctx, expr, vars)
	if err != nil {
		return nil, err
	}

	res := &StepResult{Output: map[string]any{OutputCondition: ok}}
	branch := "else"
	if ok {
		branch = "then"
	}
	if next, ok := configString(step, branch); ok {
		res.Next = api.StepID(next)
	}
	return res, nil
}

func (s *scriptStep) Execute(
	ctx context.Context, step *api.WorkflowStep, vars map[string]any,
) (*StepResult, error) {
	src, err := requireString(step, "script")
	if err != nil {
		return nil, err
	}
	ctx, cancel := withScriptTimeout(ctx, s.timeout)
	defer cancel()
	out, err := s.scripts.Execute(ctx, src, vars)
	if err != nil {
		return nil, err
	}
	return &StepResult{Output: out}, nil
}

func withScriptTimeout(
	ctx context.Context, d time.Duration,
) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
