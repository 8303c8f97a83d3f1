package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mmrzaf/tablegen/internal/domain"
)

// SQLiteExporter builds a database file with one table per generated table
// and streams it to w.
type SQLiteExporter struct{}

func (SQLiteExporter) ContentType() string   { return "application/vnd.sqlite3" }
func (SQLiteExporter) FileExtension() string { return ".sqlite" }

func (e SQLiteExporter) Export(ctx context.Context, ds *domain.Dataset, w io.Writer) error {
	f, err := os.CreateTemp("", "tablegen-*.sqlite")
	if err != nil {
		return err
	}
	path := f.Name()
	_ = f.Close()
	defer os.Remove(path)

	if err := e.WriteFile(ctx, ds, path); err != nil {
		return err
	}

	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(w, src)
	return err
}

// WriteFile writes ds into the SQLite database at path, creating tables
// that do not exist yet.
func (SQLiteExporter) WriteFile(ctx context.Context, ds *domain.Dataset, path string) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return err
	}

	for i := range ds.Tables {
		td := &ds.Tables[i]
		cols := columns(td)
		if err := createTable(ctx, db, td, cols); err != nil {
			return fmt.Errorf("table %s: %w", td.Name, err)
		}
		if err := insertBatch(ctx, db, td, cols); err != nil {
			return fmt.Errorf("table %s: %w", td.Name, err)
		}
	}
	return nil
}

func createTable(ctx context.Context, db *sql.DB, td *domain.TableData, cols []string) error {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = fmt.Sprintf("%s %s", quoteIdent(c), columnType(td.Rows, c))
	}
	_, err := db.ExecContext(ctx, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		quoteIdent(td.Name), strings.Join(defs, ", ")))
	return err
}

// columnType picks INTEGER or REAL when every non-null value agrees,
// otherwise TEXT.
func columnType(rows []domain.Row, col string) string {
	kind := ""
	for _, row := range rows {
		var k string
		switch v := row[col].(type) {
		case nil:
			continue
		case bool, int, int64:
			k = "INTEGER"
		case float64:
			k = "REAL"
		case json.Number:
			if _, err := v.Int64(); err == nil {
				k = "INTEGER"
			} else {
				k = "REAL"
			}
		default:
			return "TEXT"
		}
		switch {
		case kind == "":
			kind = k
		case kind != k:
			kind = "REAL"
		}
	}
	if kind == "" {
		return "TEXT"
	}
	return kind
}

func insertBatch(ctx context.Context, db *sql.DB, td *domain.TableData, cols []string) error {
	if len(td.Rows) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
		placeholders[i] = "?"
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(td.Name), strings.Join(quoted, ", "), strings.Join(placeholders, ", ")))
	if err != nil {
		return err
	}
	defer stmt.Close()

	args := make([]interface{}, len(cols))
	for _, row := range td.Rows {
		for i, c := range cols {
			args[i] = sqliteValue(row[c])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func sqliteValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case bool:
		if val {
			return 1
		}
		return 0
	case int, int64, float64, string:
		return val
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	default:
		return text(val)
	}
}
