package workflow_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/foreman/internal/workflow"
	"github.com/kode4food/foreman/pkg/api"
)

const orderYAML = `
id: order-fulfillment
name: Order fulfillment
variables:
  region: eu
steps:
  - id: reserve
    type: task
    config:
      title: Reserve {{order.id}}
      priority: high
    retry:
      max_attempts: 5
      initial_delay_ms: 200
      backoff_multiplier: 1.5
  - id: route
    type: decision
    config:
      decision_type: shipping
      options:
        - id: ground
          score: 40
        - id: air
          score: 60
          risks: [cost]
    next:
      - option: air
        step: expedite
      - step: ""
  - id: expedite
    type: wait
    config:
      duration: 10ms
triggers:
  - type: event
    event: order.created
  - type: schedule
    interval_ms: 60000
`

const templateYAML = `
id: nightly-report
name: Nightly report
variables:
  - name: team
    required: true
  - name: format
    default: pdf
definition:
  name: Report for {{team}}
  steps:
    - id: build
      type: script
      config:
        script: return { report = team }
`

func TestParseDefinitionYAML(t *testing.T) {
	def, err := workflow.ParseDefinitionYAML([]byte(orderYAML))
	require.NoError(t, err)

	assert.Equal(t, api.WorkflowID("order-fulfillment"), def.ID)
	assert.True(t, def.Enabled)
	assert.Equal(t, "eu", def.Variables["region"])
	require.Len(t, def.Steps, 3)

	reserve := def.Steps[0]
	assert.Equal(t, api.StepTask, reserve.Type)
	assert.Equal(t, "high", reserve.Config["priority"])
	require.NotNil(t, reserve.Retry)
	assert.Equal(t, 5, reserve.Retry.MaxAttempts)
	assert.Equal(t, int64(200), reserve.Retry.InitialDelayMs)
	assert.Equal(t, 1.5, reserve.Retry.BackoffMultiplier)

	route := def.Steps[1]
	require.Len(t, route.Next, 2)
	assert.Equal(t, "air", route.Next[0].Option)
	assert.Equal(t, api.StepID(""), route.Next[1].Step)
	opts, ok := route.Config["options"].([]any)
	require.True(t, ok)
	assert.Len(t, opts, 2)

	require.Len(t, def.Triggers, 2)
	assert.Equal(t, api.TriggerEvent, def.Triggers[0].Type)
	assert.Equal(t, int64(60000), def.Triggers[1].IntervalMs)
}

func TestParseDefinitionYAMLDisabled(t *testing.T) {
	def, err := workflow.ParseDefinitionYAML([]byte(`
id: off
enabled: false
steps:
  - id: a
    type: wait
`))
	require.NoError(t, err)
	assert.False(t, def.Enabled)
}

func TestParseDefinitionYAMLErrors(t *testing.T) {
	_, err := workflow.ParseDefinitionYAML([]byte("id: [unclosed"))
	assert.ErrorIs(t, err, workflow.ErrInvalidDefinition)

	_, err = workflow.ParseDefinitionYAML([]byte("id: empty\nsteps: []\n"))
	assert.ErrorIs(t, err, workflow.ErrInvalidDefinition)

	_, err = workflow.ParseTemplateYAML([]byte("name: no id\n"))
	assert.ErrorIs(t, err, workflow.ErrInvalidTemplate)
}

func TestLoadDirs(t *testing.T) {
	defs := t.TempDir()
	writeFile(t, defs, "b-order.yaml", orderYAML)
	writeFile(t, defs, "a-tiny.yml", "id: tiny\nsteps:\n  - id: a\n    type: wait\n")
	writeFile(t, defs, "notes.txt", "not a workflow")
	require.NoError(t, os.Mkdir(filepath.Join(defs, "nested.yaml"), 0o755))

	loaded, err := workflow.LoadDefinitionsDir(defs)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, api.WorkflowID("tiny"), loaded[0].ID)
	assert.Equal(t, api.WorkflowID("order-fulfillment"), loaded[1].ID)

	tpls := t.TempDir()
	writeFile(t, tpls, "report.yaml", templateYAML)
	templates, err := workflow.LoadTemplatesDir(tpls)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	tpl := templates[0]
	assert.Equal(t, api.TemplateID("nightly-report"), tpl.ID)
	assert.True(t, tpl.Definition.Enabled)
	require.Len(t, tpl.Variables, 2)
	assert.True(t, tpl.Variables[0].Required)
	assert.Equal(t, "pdf", tpl.Variables[1].Default)

	_, err = workflow.LoadDefinitionsDir(filepath.Join(defs, "missing"))
	assert.Error(t, err)

	writeFile(t, defs, "c-broken.yaml", "id: broken\n")
	_, err = workflow.LoadDefinitionsDir(defs)
	assert.ErrorIs(t, err, workflow.ErrInvalidDefinition)
	assert.ErrorContains(t, err, "c-broken.yaml")
}

func TestLoadedTemplateInstantiates(t *testing.T) {
	tpl, err := workflow.ParseTemplateYAML([]byte(templateYAML))
	require.NoError(t, err)

	e := workflow.New(testConfig(), workflow.Deps{})
	require.NoError(t, e.RegisterTemplate(tpl))
	def, err := e.CreateWorkflowFromTemplate("nightly-report",
		map[string]any{"team": "ops"},
	)
	require.NoError(t, err)
	assert.Equal(t, "Report for ops", def.Name)
	assert.Equal(t, "pdf", def.Variables["format"])

	got := runToEnd(t, e, def.ID, nil)
	assert.Equal(t, api.StatusCompleted, got.Status)
	assert.Equal(t, "ops", got.Variables["report"])
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
