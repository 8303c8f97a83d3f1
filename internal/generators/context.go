package generators

import (
	"encoding/json"
	"strings"

	"github.com/mmrzaf/tablegen/internal/domain"
)

// RowContext holds the values produced so far for the row being built,
// keyed by field name. Foreign key fields store their parent row here.
type RowContext map[string]interface{}

func NewRowContext(globalContext string) RowContext {
	rc := RowContext{}
	if globalContext != "" {
		rc[domain.GlobalContextKey] = globalContext
	}
	return rc
}

// Lookup resolves a dotted path such as "author.name" through nested rows.
func (c RowContext) Lookup(path string) (interface{}, bool) {
	var cur interface{} = map[string]interface{}(c)
	for _, part := range strings.Split(path, ".") {
		var m map[string]interface{}
		switch v := cur.(type) {
		case map[string]interface{}:
			m = v
		case domain.Row:
			m = v
		case RowContext:
			m = v
		default:
			return nil, false
		}
		next, ok := m[part]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Missing is the marker rendered in place of an unresolvable placeholder.
func Missing(path string) string {
	return "[Missing " + path + "]"
}

// RenderPrompt substitutes {field} and {field.attr} placeholders. Doubled
// braces are literal. Unknown paths render as a Missing marker; only
// malformed placeholders are errors.
func RenderPrompt(tpl string, rc RowContext) (string, error) {
	var b strings.Builder
	b.Grow(len(tpl))
	for i := 0; i < len(tpl); i++ {
		c := tpl[i]
		switch c {
		case '{':
			if i+1 < len(tpl) && tpl[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(tpl[i+1:], '}')
			if end < 0 {
				return "", newError(KindFormattingError, nil, "unclosed placeholder at offset %d", i)
			}
			name := strings.TrimSpace(tpl[i+1 : i+1+end])
			if name == "" || strings.ContainsRune(name, '{') {
				return "", newError(KindFormattingError, nil, "invalid placeholder %q", tpl[i:i+2+end])
			}
			v, ok := rc.Lookup(name)
			if !ok {
				b.WriteString(Missing(name))
			} else {
				b.WriteString(promptValue(v))
			}
			i += end + 1
		case '}':
			if i+1 < len(tpl) && tpl[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", newError(KindFormattingError, nil, "single '}' at offset %d", i)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

func promptValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	case domain.Row, map[string]interface{}, RowContext:
		b, err := json.Marshal(val)
		if err != nil {
			return Canonical(val)
		}
		return string(b)
	default:
		return Canonical(val)
	}
}
