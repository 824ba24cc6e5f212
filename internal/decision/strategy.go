package decision

import (
	"context"

	"github.com/kode4food/foreman/pkg/api"
)

type (
	// Strategy scores every option of a decision context. The returned
	// slice is aligned with options
	Strategy interface {
		Score(
			ctx context.Context, dctx api.DecisionContext,
			options []api.DecisionOption,
		) ([]float64, error)
	}

	// StrategyFunc adapts a function to the Strategy interface
	StrategyFunc func(
		ctx context.Context, dctx api.DecisionContext,
		options []api.DecisionOption,
	) ([]float64, error)

	// WeightedStrategy adds BenefitWeight per listed benefit to an option's
	// base score and subtracts RiskWeight per listed risk, flooring at zero
	WeightedStrategy struct {
		BenefitWeight float64
		RiskWeight    float64
	}
)

const (
	DefaultBenefitWeight = 10
	DefaultRiskWeight    = 5
)

// DefaultStrategy is the heuristic used when no strategy is registered for
// a context type
var DefaultStrategy = &WeightedStrategy{
	BenefitWeight: DefaultBenefitWeight,
	RiskWeight:    DefaultRiskWeight,
}

// Score calls f(ctx, dctx, options)
func (f StrategyFunc) Score(
	ctx context.Context, dctx api.DecisionContext,
	options []api.DecisionOption,
) ([]float64, error) {
	return f(ctx, dctx, options)
}

// Score applies the weighted heuristic to each option
func (w *WeightedStrategy) Score(
	_ context.Context, _ api.DecisionContext, options []api.DecisionOption,
) ([]float64, error) {
	res := make([]float64, len(options))
	for i, o := range options {
		res[i] = w.ScoreOption(o)
	}
	return res, nil
}

// ScoreOption scores a single option
func (w *WeightedStrategy) ScoreOption(o api.DecisionOption) float64 {
	s := o.Score +
		w.BenefitWeight*float64(len(o.Benefits)) -
		w.RiskWeight*float64(len(o.Risks))
	return max(s, 0)
}
