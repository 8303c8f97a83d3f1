package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/mmrzaf/tablegen/internal/domain"
)

// Exporter writes a finished dataset in one output format.
type Exporter interface {
	Export(ctx context.Context, ds *domain.Dataset, w io.Writer) error
	ContentType() string
	FileExtension() string
}

func ForFormat(format string) (Exporter, error) {
	switch format {
	case domain.OutputFormatJSON, "":
		return JSONExporter{}, nil
	case domain.OutputFormatCSV:
		return CSVExporter{}, nil
	case domain.OutputFormatSQL:
		return SQLExporter{}, nil
	case domain.OutputFormatSQLite:
		return SQLiteExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// columns returns the declared columns followed by any extra keys found in
// rows, in first-seen order.
func columns(td *domain.TableData) []string {
	seen := make(map[string]bool, len(td.Columns))
	out := make([]string, 0, len(td.Columns))
	for _, c := range td.Columns {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, row := range td.Rows {
		extra := make([]string, 0)
		for k := range row {
			if !seen[k] {
				extra = append(extra, k)
			}
		}
		// Extra keys found in the same row are taken in sorted order.
		sort.Strings(extra)
		for _, k := range extra {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

// text renders a cell for text formats. Nested values become JSON.
func text(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return val.Format(time.RFC3339)
	case map[string]interface{}, domain.Row, []interface{}:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	default:
		return fmt.Sprint(val)
	}
}
