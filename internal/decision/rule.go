package decision

import (
	"context"
	"fmt"
	"maps"

	"github.com/kode4food/foreman/pkg/api"
)

type (
	// Rule forces an option when its condition matches a context. The
	// condition is either a Go predicate or a When expression evaluated in
	// the script sandbox over the context data. The forced option is either
	// chosen by Action or named by OptionID
	Rule struct {
		Condition func(api.DecisionContext) bool
		Action    func(
			api.DecisionContext, []api.DecisionOption,
		) (*api.DecisionOption, error)
		Name     string
		When     string
		OptionID string
		Priority int
		Enabled  bool
	}

	// Predicates evaluates When expressions
	Predicates interface {
		Validate(src string) error
		Evaluate(
			ctx context.Context, src string, vars map[string]any,
		) (bool, error)
	}
)

func (r *Rule) validate(preds Predicates) error {
	if r.Name == "" {
		return fmt.Errorf("%w: name required", ErrInvalidRule)
	}
	if (r.Condition == nil) == (r.When == "") {
		return fmt.Errorf("%w: %s needs exactly one of condition or when",
			ErrInvalidRule, r.Name)
	}
	if (r.Action == nil) == (r.OptionID == "") {
		return fmt.Errorf("%w: %s needs exactly one of action or option",
			ErrInvalidRule, r.Name)
	}
	if r.When != "" {
		if preds == nil {
			return fmt.Errorf("%w: %s uses when without an evaluator",
				ErrInvalidRule, r.Name)
		}
		if err := preds.Validate(r.When); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidRule, r.Name, err)
		}
	}
	return nil
}

func (r *Rule) matches(
	ctx context.Context, preds Predicates, dctx api.DecisionContext,
) (bool, error) {
	if r.Condition != nil {
		return r.Condition(dctx), nil
	}
	vars := maps.Clone(dctx.Data)
	if vars == nil {
		vars = map[string]any{}
	}
	if _, ok := vars["type"]; !ok {
		vars["type"] = string(dctx.Type)
	}
	return preds.Evaluate(ctx, r.When, vars)
}

func (r *Rule) force(
	dctx api.DecisionContext, options []api.DecisionOption,
) (*api.DecisionOption, error) {
	id := r.OptionID
	if r.Action != nil {
		opt, err := r.Action(dctx, options)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.Name, err)
		}
		if opt == nil {
			return nil, fmt.Errorf("%w: rule %s chose nothing",
				ErrForcedOption, r.Name)
		}
		id = opt.ID
	}
	for _, o := range options {
		if o.ID == id {
			sel := o.Clone()
			return &sel, nil
		}
	}
	return nil, fmt.Errorf("%w: rule %s chose %q, not among options",
		ErrForcedOption, r.Name, id)
}
