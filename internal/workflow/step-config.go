package workflow

import (
	"fmt"
	"strconv"
	"time"

	"github.com/kode4food/foreman/pkg/api"
)

func configString(step *api.WorkflowStep, key string) (string, bool) {
	v, ok := step.Config[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func requireString(step *api.WorkflowStep, key string) (string, error) {
	s, ok := configString(step, key)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: %s requires %q", ErrInvalidStepConfig,
			step.ID, key)
	}
	return s, nil
}

func configFloat(step *api.WorkflowStep, key string) (float64, bool, error) {
	v, ok := step.Config[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, true, fmt.Errorf("%w: %s has non-numeric %q",
			ErrInvalidStepConfig, step.ID, key)
	}
	return f, true, nil
}

func configMap(step *api.WorkflowStep, key string) (map[string]any, error) {
	v, ok := step.Config[key]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s has non-map %q",
			ErrInvalidStepConfig, step.ID, key)
	}
	return m, nil
}

func configDuration(step *api.WorkflowStep) (time.Duration, error) {
	if ms, ok, err := configFloat(step, "duration_ms"); err != nil {
		return 0, err
	} else if ok {
		return checkDuration(step, time.Duration(ms*float64(time.Millisecond)))
	}

	v, ok := step.Config["duration"]
	if !ok {
		return 0, fmt.Errorf("%w: %s requires %q or %q",
			ErrInvalidStepConfig, step.ID, "duration_ms", "duration")
	}
	if s, ok := v.(string); ok {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %w", ErrInvalidStepConfig,
				step.ID, err)
		}
		return checkDuration(step, d)
	}
	if ms, ok := toFloat(v); ok {
		return checkDuration(step, time.Duration(ms*float64(time.Millisecond)))
	}
	return 0, fmt.Errorf("%w: %s has invalid %q", ErrInvalidStepConfig,
		step.ID, "duration")
}

func checkDuration(
	step *api.WorkflowStep, d time.Duration,
) (time.Duration, error) {
	if d < 0 {
		return 0, fmt.Errorf("%w: %s has negative duration",
			ErrInvalidStepConfig, step.ID)
	}
	return d, nil
}

func toFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toStrings(v any) []string {
	switch v := v.(type) {
	case []string:
		return v
	case []any:
		res := make([]string, 0, len(v))
		for _, e := range v {
			res = append(res, fmt.Sprint(e))
		}
		return res
	case string:
		return []string{v}
	default:
		return nil
	}
}
