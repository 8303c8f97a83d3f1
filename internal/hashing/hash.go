package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/mmrzaf/tablegen/internal/domain"
)

// HashRequest fingerprints the parts of a request that shape the generated
// data. Table and field order are significant; param key order is not.
func HashRequest(req *domain.GenerationRequest) (string, error) {
	data, err := json.Marshal(canonicalizeRequest(req))
	if err != nil {
		return "", err
	}

	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

func canonicalizeRequest(req *domain.GenerationRequest) map[string]interface{} {
	tables := make([]map[string]interface{}, len(req.Tables))
	for i, table := range req.Tables {
		fields := make([]map[string]interface{}, len(table.Fields))
		for j, f := range table.Fields {
			fieldMap := map[string]interface{}{
				"name": f.Name,
				"type": f.Kind,
			}
			if len(f.Params) > 0 {
				fieldMap["params"] = canonicalizeParams(f.Params)
			}
			if f.IsUnique {
				fieldMap["is_unique"] = true
			}
			if len(f.Dependencies) > 0 {
				deps := append([]string(nil), f.Dependencies...)
				sort.Strings(deps)
				fieldMap["dependencies"] = deps
			}
			fields[j] = fieldMap
		}

		tables[i] = map[string]interface{}{
			"id":         table.ID,
			"name":       table.Name,
			"rows_count": table.RowsCount,
			"fields":     fields,
		}
	}

	result := map[string]interface{}{
		"tables": tables,
	}
	if req.Config.GlobalContext != "" {
		result["global_context"] = req.Config.GlobalContext
	}
	if req.Config.Locale != "" {
		result["locale"] = req.Config.Locale
	}
	return result
}

func canonicalizeParams(params map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(params))
	for k, v := range params {
		result[k] = canonicalizeValue(v)
	}
	return result
}

func canonicalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return canonicalizeParams(val)
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(val))
		for k, inner := range val {
			m[stringKey(k)] = canonicalizeValue(inner)
		}
		return m
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = canonicalizeValue(inner)
		}
		return out
	default:
		return val
	}
}

func stringKey(k interface{}) string {
	if s, ok := k.(string); ok {
		return s
	}
	b, _ := json.Marshal(k)
	return string(b)
}
