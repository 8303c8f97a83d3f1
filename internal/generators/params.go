package generators

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Params arrive from JSON (float64, json.Number) or YAML (int, int64,
// float64), so numeric lookups accept all of them.

func toFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toInt64(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, true
		}
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
			return i, true
		}
	}
	f, ok := toFloat64(v)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

func paramString(params map[string]interface{}, key string) (string, bool) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return "", false
	}
	s, ok := raw.(string)
	return s, ok
}

func paramStringDefault(params map[string]interface{}, key, def string) string {
	if s, ok := paramString(params, key); ok && s != "" {
		return s
	}
	return def
}

// paramFloat returns def when key is absent and an error when it is present
// but not numeric.
func paramFloat(params map[string]interface{}, key string, def float64) (float64, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return def, nil
	}
	f, ok := toFloat64(raw)
	if !ok {
		return 0, fmt.Errorf("'%s' must be numeric, got %v", key, raw)
	}
	return f, nil
}

func paramInt(params map[string]interface{}, key string, def int64) (int64, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return def, nil
	}
	i, ok := toInt64(raw)
	if !ok {
		return 0, fmt.Errorf("'%s' must be numeric, got %v", key, raw)
	}
	return i, nil
}

func paramList(params map[string]interface{}, key string) ([]interface{}, bool) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return nil, false
	}
	switch l := raw.(type) {
	case []interface{}:
		return l, true
	case []string:
		out := make([]interface{}, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]interface{}, len(l))
		for i, f := range l {
			out[i] = f
		}
		return out, true
	case []int:
		out := make([]interface{}, len(l))
		for i, n := range l {
			out[i] = n
		}
		return out, true
	}
	return nil, false
}

func paramMap(params map[string]interface{}, key string) map[string]interface{} {
	raw, ok := params[key]
	if !ok || raw == nil {
		return nil
	}
	if m, ok := raw.(map[string]interface{}); ok {
		return m
	}
	return nil
}
