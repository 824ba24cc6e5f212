package decision

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kode4food/foreman/internal/config"
	"github.com/kode4food/foreman/internal/events"
	"github.com/kode4food/foreman/pkg/api"
	"github.com/kode4food/foreman/pkg/log"
)

type (
	// Engine makes decisions and keeps a bounded history of them
	Engine struct {
		events     events.Publisher
		preds      Predicates
		now        func() time.Time
		strategies map[string]Strategy
		byID       map[api.DecisionID]*api.Decision
		rules      []*Rule
		history    []*api.Decision
		counters   counters
		cfg        config.DecisionConfig
		mu         sync.Mutex
	}

	counters struct {
		byType        map[api.DecisionType]int
		total         int
		ruleApplied   int
		withOutcome   int
		successful    int
		confidenceSum float64
	}

	evaluation struct {
		decision *api.Decision
		err      error
	}
)

const (
	eventSource  = "decision"
	topReasons   = 3
	noneListed   = "none"
	ruleTemplate = "applied rule: %s"
)

// New creates a decision engine. preds evaluates the When expressions of
// data-defined rules and may be nil when only Go predicates are used
func New(
	cfg config.DecisionConfig, pub events.Publisher, preds Predicates,
) *Engine {
	if pub == nil {
		pub = events.Discard
	}
	return &Engine{
		events:     pub,
		preds:      preds,
		now:        time.Now,
		strategies: map[string]Strategy{},
		byID:       map[api.DecisionID]*api.Decision{},
		counters: counters{
			byType: map[api.DecisionType]int{},
		},
		cfg: cfg,
	}
}

// RegisterStrategy selects a strategy for contexts of the named type
func (e *Engine) RegisterStrategy(name string, s Strategy) error {
	if name == "" || s == nil {
		return ErrInvalidStrategy
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategies[name] = s
	return nil
}

// RegisterRule adds a deterministic override rule
func (e *Engine) RegisterRule(r *Rule) error {
	if r == nil {
		return fmt.Errorf("%w: nil", ErrInvalidRule)
	}
	if err := r.validate(e.preds); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, r)
	slices.SortStableFunc(e.rules, func(a, b *Rule) int {
		return cmp.Compare(b.Priority, a.Priority)
	})
	return nil
}

// MakeDecision evaluates rules, then the strategy for the context's type,
// and records the resulting decision
func (e *Engine) MakeDecision(
	ctx context.Context, dctx api.DecisionContext,
	options []api.DecisionOption,
) (*api.Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	done := make(chan evaluation, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- evaluation{
					err: fmt.Errorf("%w: %v", ErrDecisionPanicked, r),
				}
			}
		}()
		d, err := e.evaluate(ctx, dctx, options)
		done <- evaluation{decision: d, err: err}
	}()

	var ev evaluation
	select {
	case ev = <-done:
	case <-ctx.Done():
		ev.err = ctx.Err()
	}
	if ev.err != nil {
		if errors.Is(ev.err, context.DeadlineExceeded) {
			ev.err = fmt.Errorf("%w after %s",
				ErrDecisionTimeout, e.cfg.Timeout)
		}
		slog.Warn("Decision failed",
			slog.String("type", string(dctx.Type)),
			log.Error(ev.err))
		return nil, ev.err
	}

	res := e.store(ev.decision)
	slog.Debug("Decision made",
		log.DecisionID(res.ID),
		slog.String("type", string(dctx.Type)),
		slog.Float64("confidence", res.Confidence))
	e.events.Raise(api.EventDecisionMade, eventSource, res)
	return res, nil
}

// RecordOutcome attaches an outcome to a decision. Only one outcome can be
// recorded per decision
func (e *Engine) RecordOutcome(
	id api.DecisionID, outcome api.DecisionOutcome,
) error {
	e.mu.Lock()
	d, ok := e.byID[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDecisionNotFound, id)
	}
	if d.Outcome != nil {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrOutcomeRecorded, id)
	}
	if outcome.RecordedAt.IsZero() {
		outcome.RecordedAt = e.now()
	}
	d.Outcome = &outcome
	e.counters.withOutcome++
	if outcome.Success {
		e.counters.successful++
	}
	res := d.Clone()
	e.mu.Unlock()

	slog.Debug("Decision outcome recorded",
		log.DecisionID(id),
		slog.Bool("success", outcome.Success))
	e.events.Raise(api.EventDecisionOutcome, eventSource, res)
	return nil
}

// GetDecision returns a copy of a decision still held in history
func (e *Engine) GetDecision(id api.DecisionID) (*api.Decision, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDecisionNotFound, id)
	}
	return d.Clone(), nil
}

// GetDecisionHistory returns matching decisions oldest first. A positive
// Limit keeps only the most recent matches
func (e *Engine) GetDecisionHistory(
	filter *api.DecisionFilter,
) []*api.Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	var res []*api.Decision
	for _, d := range e.history {
		if filter.Matches(d) {
			res = append(res, d.Clone())
		}
	}
	if filter != nil && filter.Limit > 0 && len(res) > filter.Limit {
		res = res[len(res)-filter.Limit:]
	}
	return res
}

// GetMetrics returns lifetime decision counters
func (e *Engine) GetMetrics() api.DecisionMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()

	c := e.counters
	res := api.DecisionMetrics{
		ByType:      make(map[api.DecisionType]int, len(c.byType)),
		Total:       c.total,
		RuleApplied: c.ruleApplied,
		WithOutcome: c.withOutcome,
		Successful:  c.successful,
	}
	for k, v := range c.byType {
		res.ByType[k] = v
	}
	if c.withOutcome > 0 {
		res.SuccessRate = float64(c.successful) / float64(c.withOutcome)
	}
	if c.total > 0 {
		res.AverageConfidence = c.confidenceSum / float64(c.total)
	}
	return res
}

func (e *Engine) evaluate(
	ctx context.Context, dctx api.DecisionContext,
	options []api.DecisionOption,
) (*api.Decision, error) {
	d := &api.Decision{
		ID:      api.DecisionID(uuid.NewString()),
		Context: dctx,
	}

	rule, err := e.matchRule(ctx, dctx)
	if err != nil {
		return nil, err
	}
	if rule != nil {
		sel, err := rule.force(dctx, options)
		if err != nil {
			return nil, err
		}
		d.Options = cloneOptions(options)
		d.Selected = sel
		d.Confidence = 1
		d.Rule = rule.Name
		d.Reasoning = fmt.Sprintf(ruleTemplate, rule.Name)
		return d, nil
	}

	if len(options) > e.cfg.MaxOptions {
		options = options[:e.cfg.MaxOptions]
	}
	if len(options) == 0 {
		d.Options = []api.DecisionOption{}
		d.Reasoning = "no options available"
		return d, nil
	}

	scores, err := e.strategyFor(dctx.Type).Score(ctx, dctx, options)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(options) {
		return nil, fmt.Errorf("%w: got %d, want %d",
			ErrScoreCount, len(scores), len(options))
	}

	ranked, rankedScores := rank(options, scores)
	d.Options = ranked
	d.Scores = rankedScores
	sel := ranked[0].Clone()
	d.Selected = &sel
	d.Confidence = confidence(rankedScores)
	d.Reasoning = reasoning(sel, rankedScores[0])
	return d, ctx.Err()
}

func (e *Engine) matchRule(
	ctx context.Context, dctx api.DecisionContext,
) (*Rule, error) {
	e.mu.Lock()
	rules := slices.Clone(e.rules)
	e.mu.Unlock()

	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		ok, err := r.matches(ctx, e.preds, dctx)
		if err != nil {
			slog.Warn("Decision rule failed",
				slog.String("rule", r.Name),
				log.Error(err))
			continue
		}
		if ok {
			return r, nil
		}
	}
	return nil, nil
}

func (e *Engine) strategyFor(typ api.DecisionType) Strategy {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.strategies[string(typ)]; ok {
		return s
	}
	return DefaultStrategy
}

func (e *Engine) store(d *api.Decision) *api.Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	d.CreatedAt = e.now()
	e.history = append(e.history, d)
	e.byID[d.ID] = d
	if over := len(e.history) - e.cfg.HistoryLimit; over > 0 {
		for _, old := range e.history[:over] {
			delete(e.byID, old.ID)
		}
		e.history = slices.Clone(e.history[over:])
	}

	e.counters.total++
	e.counters.byType[d.Context.Type]++
	e.counters.confidenceSum += d.Confidence
	if d.Rule != "" {
		e.counters.ruleApplied++
	}
	return d.Clone()
}

func rank(
	options []api.DecisionOption, scores []float64,
) ([]api.DecisionOption, []float64) {
	idx := make([]int, len(options))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(l, r int) int {
		return cmp.Compare(scores[r], scores[l])
	})

	ranked := make([]api.DecisionOption, len(idx))
	rankedScores := make([]float64, len(idx))
	for i, j := range idx {
		ranked[i] = options[j].Clone()
		rankedScores[i] = scores[j]
	}
	return ranked, rankedScores
}

// confidence expects scores sorted in descending order
func confidence(scores []float64) float64 {
	switch len(scores) {
	case 0:
		return 0
	case 1:
		return 0.8
	}
	top, second := scores[0], scores[1]
	if top <= 0 {
		return 0.5
	}
	c := 0.5 + 0.45*(top-second)/top
	return min(max(c, 0), 1)
}

func reasoning(sel api.DecisionOption, score float64) string {
	name := sel.ID
	if sel.Description != "" {
		name = fmt.Sprintf("%s (%s)", sel.ID, sel.Description)
	}
	return fmt.Sprintf(
		"selected %s with score %.1f; benefits: %s; risks: %s",
		name, score, summarize(sel.Benefits), summarize(sel.Risks),
	)
}

func summarize(items []string) string {
	if len(items) == 0 {
		return noneListed
	}
	if len(items) > topReasons {
		items = items[:topReasons]
	}
	return strings.Join(items, ", ")
}

func cloneOptions(options []api.DecisionOption) []api.DecisionOption {
	res := make([]api.DecisionOption, len(options))
	for i, o := range options {
		res[i] = o.Clone()
	}
	return res
}
