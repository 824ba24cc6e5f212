package workflow

import (
	"encoding/json"
	"log/slog"
	"regexp"

	"github.com/tidwall/gjson"

	"github.com/kode4food/foreman/pkg/api"
	"github.com/kode4food/foreman/pkg/log"
)

// interpolator substitutes {{path}} placeholders with values found at a
// gjson path in the variable bag. Placeholders that resolve to nothing are
// left untouched
type interpolator struct {
	doc []byte
}

var placeholder = regexp.MustCompile(`\{\{\s*([^{}\s]+)\s*\}\}`)

func newInterpolator(vars map[string]any) *interpolator {
	doc, err := json.Marshal(vars)
	if err != nil {
		slog.Warn("Variables not interpolable",
			log.Error(err))
		doc = []byte("{}")
	}
	return &interpolator{doc: doc}
}

// step returns a copy of the step with its name and config interpolated
func (in *interpolator) step(s *api.WorkflowStep) *api.WorkflowStep {
	res := s.Clone()
	res.Name = in.text(s.Name)
	res.Config = in.config(s.Config)
	return res
}

func (in *interpolator) config(cfg map[string]any) map[string]any {
	if cfg == nil {
		return nil
	}
	res := make(map[string]any, len(cfg))
	for k, v := range cfg {
		res[k] = in.value(v)
	}
	return res
}

func (in *interpolator) value(v any) any {
	switch v := v.(type) {
	case string:
		return in.string(v)
	case map[string]any:
		return in.config(v)
	case []any:
		res := make([]any, len(v))
		for i, e := range v {
			res[i] = in.value(e)
		}
		return res
	default:
		return v
	}
}

// string keeps the resolved value's type when the placeholder is the
// entire string, and splices its text form otherwise
func (in *interpolator) string(s string) any {
	m := placeholder.FindStringSubmatchIndex(s)
	if m == nil {
		return s
	}
	if m[0] == 0 && m[1] == len(s) {
		if r := gjson.GetBytes(in.doc, s[m[2]:m[3]]); r.Exists() {
			return r.Value()
		}
		return s
	}
	return in.text(s)
}

func (in *interpolator) text(s string) string {
	return placeholder.ReplaceAllStringFunc(s, func(match string) string {
		path := placeholder.FindStringSubmatch(match)[1]
		r := gjson.GetBytes(in.doc, path)
		if !r.Exists() {
			return match
		}
		return r.String()
	})
}
