package workflow

import (
	"cmp"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/kode4food/foreman/pkg/api"
	"github.com/kode4food/foreman/pkg/log"
)

// RegisterTemplate stores a template, replacing one with the same ID
func (e *Engine) RegisterTemplate(tpl *api.WorkflowTemplate) error {
	if tpl == nil || tpl.ID == "" {
		return fmt.Errorf("%w: id required", ErrInvalidTemplate)
	}
	if tpl.Definition == nil || len(tpl.Definition.Steps) == 0 {
		return fmt.Errorf("%w: %s has no steps", ErrInvalidTemplate, tpl.ID)
	}
	for _, v := range tpl.Variables {
		if v.Name == "" {
			return fmt.Errorf("%w: %s has unnamed variable",
				ErrInvalidTemplate, tpl.ID)
		}
	}

	e.mu.Lock()
	e.templates[tpl.ID] = tpl.Clone()
	e.mu.Unlock()

	slog.Info("Template registered",
		slog.String("template_id", string(tpl.ID)))
	return nil
}

// GetTemplates returns copies of every template ordered by ID
func (e *Engine) GetTemplates() []*api.WorkflowTemplate {
	e.mu.Lock()
	defer e.mu.Unlock()
	res := make([]*api.WorkflowTemplate, 0, len(e.templates))
	for _, t := range e.templates {
		res = append(res, t.Clone())
	}
	slices.SortFunc(res, func(l, r *api.WorkflowTemplate) int {
		return cmp.Compare(l.ID, r.ID)
	})
	return res
}

// CreateWorkflowFromTemplate instantiates a template under a new workflow
// ID and registers it. Every required variable must be supplied unless it
// has a default. Placeholders in names, the description and string config
// values are filled from the variables; others are left for run time
func (e *Engine) CreateWorkflowFromTemplate(
	id api.TemplateID, vars map[string]any,
) (*api.WorkflowDefinition, error) {
	e.mu.Lock()
	tpl, ok := e.templates[id]
	if ok {
		tpl = tpl.Clone()
	}
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}

	values, err := templateValues(tpl, vars)
	if err != nil {
		return nil, err
	}

	def := tpl.Definition
	def.ID = api.WorkflowID(fmt.Sprintf("%s-%s", tpl.ID, uuid.NewString()))
	in := newInterpolator(values)
	def.Name = in.text(def.Name)
	if def.Name == "" {
		def.Name = tpl.Name
	}
	def.Description = in.text(def.Description)
	for i, s := range def.Steps {
		def.Steps[i] = in.step(s)
	}
	if def.Variables == nil {
		def.Variables = map[string]any{}
	}
	maps.Copy(def.Variables, values)

	if err := e.Register(def); err != nil {
		return nil, err
	}
	slog.Info("Workflow created from template",
		slog.String("template_id", string(id)),
		log.WorkflowID(def.ID))
	return def.Clone(), nil
}

func templateValues(
	tpl *api.WorkflowTemplate, vars map[string]any,
) (map[string]any, error) {
	res := api.CloneValues(vars)
	if res == nil {
		res = map[string]any{}
	}
	for _, v := range tpl.Variables {
		if _, ok := res[v.Name]; ok {
			continue
		}
		if v.Default != nil {
			res[v.Name] = v.Default
			continue
		}
		if v.Required {
			return nil, fmt.Errorf("%w: %s requires %s",
				ErrMissingVariable, tpl.ID, v.Name)
		}
	}
	return res, nil
}
