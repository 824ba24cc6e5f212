package api

import (
	"maps"
	"slices"
	"time"
)

type (
	// DecisionID uniquely identifies a decision
	DecisionID string

	// DecisionType categorizes a decision context and selects its strategy
	DecisionType string

	// DecisionContext is the typed input of a decision
	DecisionContext struct {
		Data map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
		Type DecisionType   `json:"type" yaml:"type"`
	}

	// DecisionOption is one labeled choice supplied by the caller
	DecisionOption struct {
		ID          string   `json:"id" yaml:"id"`
		Description string   `json:"description,omitempty" yaml:"description,omitempty"`
		Risks       []string `json:"risks,omitempty" yaml:"risks,omitempty"`
		Benefits    []string `json:"benefits,omitempty" yaml:"benefits,omitempty"`
		Score       float64  `json:"score" yaml:"score"`
	}

	// Decision records one evaluation and, later, its outcome
	Decision struct {
		CreatedAt  time.Time        `json:"created_at"`
		Context    DecisionContext  `json:"context"`
		Selected   *DecisionOption  `json:"selected,omitempty"`
		Outcome    *DecisionOutcome `json:"outcome,omitempty"`
		ID         DecisionID       `json:"id"`
		Reasoning  string           `json:"reasoning"`
		Rule       string           `json:"rule,omitempty"`
		Options    []DecisionOption `json:"options"`
		Scores     []float64        `json:"scores,omitempty"`
		Confidence float64          `json:"confidence"`
	}

	// DecisionOutcome is appended to a decision after the fact
	DecisionOutcome struct {
		RecordedAt time.Time          `json:"recorded_at"`
		Metrics    map[string]float64 `json:"metrics,omitempty"`
		Success    bool               `json:"success"`
	}

	// DecisionFilter selects decisions from history
	DecisionFilter struct {
		Since      time.Time    `json:"since,omitempty"`
		HasOutcome *bool        `json:"has_outcome,omitempty"`
		Type       DecisionType `json:"type,omitempty"`
		Limit      int          `json:"limit,omitempty"`
	}

	// DecisionMetrics aggregates decision engine counters
	DecisionMetrics struct {
		ByType            map[DecisionType]int `json:"by_type"`
		Total             int                  `json:"total"`
		RuleApplied       int                  `json:"rule_applied"`
		WithOutcome       int                  `json:"with_outcome"`
		Successful        int                  `json:"successful"`
		SuccessRate       float64              `json:"success_rate"`
		AverageConfidence float64              `json:"average_confidence"`
	}
)

// Clone returns a deep copy of the option
func (o DecisionOption) Clone() DecisionOption {
	o.Risks = slices.Clone(o.Risks)
	o.Benefits = slices.Clone(o.Benefits)
	return o
}

// Clone returns a copy of the decision that shares no mutable state
func (d *Decision) Clone() *Decision {
	if d == nil {
		return nil
	}
	res := *d
	res.Context.Data = maps.Clone(d.Context.Data)
	res.Options = make([]DecisionOption, len(d.Options))
	for i, o := range d.Options {
		res.Options[i] = o.Clone()
	}
	res.Scores = slices.Clone(d.Scores)
	if d.Selected != nil {
		sel := d.Selected.Clone()
		res.Selected = &sel
	}
	if d.Outcome != nil {
		out := *d.Outcome
		out.Metrics = maps.Clone(d.Outcome.Metrics)
		res.Outcome = &out
	}
	return &res
}

// Matches reports whether the decision satisfies the filter
func (f *DecisionFilter) Matches(d *Decision) bool {
	if f == nil {
		return true
	}
	if f.Type != "" && d.Context.Type != f.Type {
		return false
	}
	if !f.Since.IsZero() && d.CreatedAt.Before(f.Since) {
		return false
	}
	if f.HasOutcome != nil && *f.HasOutcome != (d.Outcome != nil) {
		return false
	}
	return true
}
