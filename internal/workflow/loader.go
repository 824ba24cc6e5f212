package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kode4food/foreman/pkg/api"
)

// ParseDefinitionYAML decodes and validates a definition. Definitions are
// enabled unless the document says otherwise
func ParseDefinitionYAML(data []byte) (*api.WorkflowDefinition, error) {
	def := &api.WorkflowDefinition{Enabled: true}
	if err := yaml.Unmarshal(data, def); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}
	if err := ValidateDefinition(def); err != nil {
		return nil, err
	}
	return def, nil
}

// ParseTemplateYAML decodes a template. Its definition is enabled unless
// the document says otherwise
func ParseTemplateYAML(data []byte) (*api.WorkflowTemplate, error) {
	tpl := &api.WorkflowTemplate{
		Definition: &api.WorkflowDefinition{Enabled: true},
	}
	if err := yaml.Unmarshal(data, tpl); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
	}
	if tpl.ID == "" {
		return nil, fmt.Errorf("%w: id required", ErrInvalidTemplate)
	}
	if tpl.Definition == nil || len(tpl.Definition.Steps) == 0 {
		return nil, fmt.Errorf("%w: %s has no steps", ErrInvalidTemplate,
			tpl.ID)
	}
	return tpl, nil
}

// LoadDefinitionFile reads and parses a single definition file
func LoadDefinitionFile(path string) (*api.WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	def, err := ParseDefinitionYAML(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// LoadDefinitionsDir parses every .yaml or .yml file in dir, in name order
func LoadDefinitionsDir(dir string) ([]*api.WorkflowDefinition, error) {
	paths, err := yamlFiles(dir)
	if err != nil {
		return nil, err
	}
	res := make([]*api.WorkflowDefinition, 0, len(paths))
	for _, p := range paths {
		def, err := LoadDefinitionFile(p)
		if err != nil {
			return nil, err
		}
		res = append(res, def)
	}
	return res, nil
}

// LoadTemplatesDir parses every .yaml or .yml file in dir as a template
func LoadTemplatesDir(dir string) ([]*api.WorkflowTemplate, error) {
	paths, err := yamlFiles(dir)
	if err != nil {
		return nil, err
	}
	res := make([]*api.WorkflowTemplate, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		tpl, err := ParseTemplateYAML(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		res = append(res, tpl)
	}
	return res, nil
}

func yamlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var res []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			res = append(res, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(res)
	return res, nil
}
