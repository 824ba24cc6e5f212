package api_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/foreman/pkg/api"
)

func TestDecisionClone(t *testing.T) {
	d := &api.Decision{
		ID:      "d1",
		Context: api.DecisionContext{Type: "t", Data: map[string]any{"k": 1}},
		Options: []api.DecisionOption{
			{ID: "x", Benefits: []string{"a"}},
		},
		Selected: &api.DecisionOption{ID: "x", Benefits: []string{"a"}},
		Outcome:  &api.DecisionOutcome{Metrics: map[string]float64{"m": 1}},
	}

	cl := d.Clone()
	cl.Context.Data["k"] = 2
	cl.Options[0].Benefits[0] = "b"
	cl.Selected.ID = "y"
	cl.Outcome.Metrics["m"] = 2

	assert.Equal(t, 1, d.Context.Data["k"])
	assert.Equal(t, "a", d.Options[0].Benefits[0])
	assert.Equal(t, "x", d.Selected.ID)
	assert.Equal(t, 1.0, d.Outcome.Metrics["m"])
}

func TestDecisionFilter(t *testing.T) {
	now := time.Now()
	d := &api.Decision{
		Context:   api.DecisionContext{Type: "routing"},
		CreatedAt: now,
	}
	yes := true
	no := false

	assert.True(t, (&api.DecisionFilter{Type: "routing"}).Matches(d))
	assert.False(t, (&api.DecisionFilter{Type: "pricing"}).Matches(d))
	assert.False(t, (&api.DecisionFilter{HasOutcome: &yes}).Matches(d))
	assert.True(t, (&api.DecisionFilter{HasOutcome: &no}).Matches(d))
	assert.False(t,
		(&api.DecisionFilter{Since: now.Add(time.Minute)}).Matches(d),
	)
}
