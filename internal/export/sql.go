package export

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/mmrzaf/tablegen/internal/domain"
)

// SQLExporter writes one INSERT statement per row.
type SQLExporter struct{}

func (SQLExporter) ContentType() string   { return "application/sql" }
func (SQLExporter) FileExtension() string { return ".sql" }

func (SQLExporter) Export(ctx context.Context, ds *domain.Dataset, w io.Writer) error {
	bw := bufio.NewWriter(w)
	for i := range ds.Tables {
		if err := ctx.Err(); err != nil {
			return err
		}
		td := &ds.Tables[i]
		cols := columns(td)
		quoted := make([]string, len(cols))
		for j, c := range cols {
			quoted[j] = quoteIdent(c)
		}
		prefix := "INSERT INTO " + quoteIdent(td.Name) + " (" + strings.Join(quoted, ", ") + ") VALUES ("

		vals := make([]string, len(cols))
		for _, row := range td.Rows {
			for j, c := range cols {
				vals[j] = sqlLiteral(row[c])
			}
			if _, err := bw.WriteString(prefix + strings.Join(vals, ", ") + ");\n"); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func sqlLiteral(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	default:
		return "'" + strings.ReplaceAll(text(val), "'", "''") + "'"
	}
}
