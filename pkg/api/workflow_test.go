package api_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/foreman/pkg/api"
)

func TestRetryDelay(t *testing.T) {
	p := &api.RetryPolicy{
		MaxAttempts:       5,
		InitialDelayMs:    1000,
		BackoffMultiplier: 2,
	}
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	assert.Equal(t, time.Second, p.Delay(0))

	p.MaxDelayMs = 3000
	assert.Equal(t, 3*time.Second, p.Delay(3))
}

func TestRetryDelayNoMultiplier(t *testing.T) {
	p := &api.RetryPolicy{InitialDelayMs: 50}
	assert.Equal(t, 50*time.Millisecond, p.Delay(4))
}

func TestDefinitionSteps(t *testing.T) {
	def := &api.WorkflowDefinition{
		ID: "wf",
		Steps: []*api.WorkflowStep{
			{ID: "a", Type: api.StepTask},
			{ID: "b", Type: api.StepWait},
		},
	}

	assert.Equal(t, api.StepID("b"), def.GetStep("b").ID)
	assert.Nil(t, def.GetStep("missing"))
	assert.Equal(t, api.StepID("b"), def.StepAfter("a").ID)
	assert.Nil(t, def.StepAfter("b"))
}

func TestDefinitionClone(t *testing.T) {
	def := &api.WorkflowDefinition{
		ID:        "wf",
		Variables: map[string]any{"nested": map[string]any{"k": 1}},
		Steps: []*api.WorkflowStep{
			{
				ID:     "a",
				Type:   api.StepTask,
				Config: map[string]any{"title": "A"},
				Next:   []api.NextStep{{Step: "b"}},
				Retry:  &api.RetryPolicy{MaxAttempts: 2},
			},
		},
		Triggers: []*api.WorkflowTrigger{
			{Type: api.TriggerEvent, Event: "task.*"},
		},
	}

	cl := def.Clone()
	cl.Steps[0].Config["title"] = "B"
	cl.Steps[0].Next[0].Step = "c"
	cl.Steps[0].Retry.MaxAttempts = 9
	cl.Variables["nested"].(map[string]any)["k"] = 2
	cl.Triggers[0].Event = "other"

	assert.Equal(t, "A", def.Steps[0].Config["title"])
	assert.Equal(t, api.StepID("b"), def.Steps[0].Next[0].Step)
	assert.Equal(t, 2, def.Steps[0].Retry.MaxAttempts)
	assert.Equal(t, 1, def.Variables["nested"].(map[string]any)["k"])
	assert.Equal(t, "task.*", def.Triggers[0].Event)
}

func TestExecutionClone(t *testing.T) {
	ex := &api.WorkflowExecution{
		ID:        "e1",
		Variables: map[string]any{"x": 1},
		History: []*api.StepRecord{
			{StepID: "a", Output: map[string]any{"y": 2}},
		},
	}

	cl := ex.Clone()
	cl.Variables["x"] = 5
	cl.History[0].Output["y"] = 6
	cl.History[0].StepID = "z"

	assert.Equal(t, 1, ex.Variables["x"])
	assert.Equal(t, 2, ex.History[0].Output["y"])
	assert.Equal(t, api.StepID("a"), ex.History[0].StepID)
}

func TestExecutionFilter(t *testing.T) {
	ex := &api.WorkflowExecution{WorkflowID: "wf", Status: api.StatusFailed}

	assert.True(t, (*api.ExecutionFilter)(nil).Matches(ex))
	assert.True(t, (&api.ExecutionFilter{WorkflowID: "wf"}).Matches(ex))
	assert.False(t, (&api.ExecutionFilter{WorkflowID: "other"}).Matches(ex))
	assert.False(t,
		(&api.ExecutionFilter{Status: api.StatusCompleted}).Matches(ex),
	)
}
