package export

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mmrzaf/tablegen/internal/domain"
)

func sampleDataset() *domain.Dataset {
	return &domain.Dataset{Tables: []domain.TableData{
		{
			ID:      "a",
			Name:    "authors",
			Columns: []string{"id", "name", "active"},
			Rows: []domain.Row{
				{"id": int64(1), "name": "O'Brien", "active": true},
				{"id": int64(2), "name": "Le Guin", "active": false},
			},
		},
		{
			ID:      "b",
			Name:    "books",
			Columns: []string{"id", "author_id", "price"},
			Rows: []domain.Row{
				{"id": "b1", "author_id": int64(1), "price": 9.5},
				{"id": "b2", "author_id": int64(2), "price": nil},
			},
		},
	}}
}

func TestForFormat(t *testing.T) {
	for _, f := range []string{"", domain.OutputFormatJSON, domain.OutputFormatCSV, domain.OutputFormatSQL, domain.OutputFormatSQLite} {
		if _, err := ForFormat(f); err != nil {
			t.Fatalf("format %q: %v", f, err)
		}
	}
	if _, err := ForFormat("xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestJSONExportKeepsTableOrder(t *testing.T) {
	var buf bytes.Buffer
	if err := (JSONExporter{}).Export(context.Background(), sampleDataset(), &buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Index(out, `"authors"`) > strings.Index(out, `"books"`) {
		t.Fatalf("tables out of order: %s", out)
	}

	var back domain.Dataset
	if err := json.Unmarshal(buf.Bytes(), &back); err != nil {
		t.Fatal(err)
	}
	if len(back.Tables) != 2 || len(back.Tables[0].Rows) != 2 {
		t.Fatalf("unexpected decoded dataset: %+v", back)
	}
}

func TestCSVExportWritesOneFilePerTable(t *testing.T) {
	var buf bytes.Buffer
	if err := (CSVExporter{}).Export(context.Background(), sampleDataset(), &buf); err != nil {
		t.Fatal(err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	if len(zr.File) != 2 || zr.File[0].Name != "authors.csv" || zr.File[1].Name != "books.csv" {
		t.Fatalf("unexpected archive entries: %v", zr.File)
	}

	rc, err := zr.File[0].Open()
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	records, err := csv.NewReader(rc).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(records[0], ",") != "id,name,active" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if strings.Join(records[1], ",") != "1,O'Brien,true" {
		t.Fatalf("unexpected first row: %v", records[1])
	}
}

func TestCSVHeaderIncludesExtraKeys(t *testing.T) {
	td := &domain.TableData{
		Name:    "t",
		Columns: []string{"a"},
		Rows:    []domain.Row{{"a": 1}, {"a": 2, "z": 3, "b": 4}},
	}
	if got := strings.Join(columns(td), ","); got != "a,b,z" {
		t.Fatalf("unexpected columns: %s", got)
	}
}

func TestSQLExportLiterals(t *testing.T) {
	var buf bytes.Buffer
	if err := (SQLExporter{}).Export(context.Background(), sampleDataset(), &buf); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 statements, got %d", len(lines))
	}
	want := []string{
		`INSERT INTO "authors" ("id", "name", "active") VALUES (1, 'O''Brien', TRUE);`,
		`INSERT INTO "authors" ("id", "name", "active") VALUES (2, 'Le Guin', FALSE);`,
		`INSERT INTO "books" ("id", "author_id", "price") VALUES ('b1', 1, 9.5);`,
		`INSERT INTO "books" ("id", "author_id", "price") VALUES ('b2', 2, NULL);`,
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d:\n got %s\nwant %s", i, lines[i], want[i])
		}
	}
}

func TestSQLLiteralJSONNumberAndNested(t *testing.T) {
	if got := sqlLiteral(json.Number("42")); got != "42" {
		t.Fatalf("json.Number: %s", got)
	}
	if got := sqlLiteral(map[string]interface{}{"k": "v"}); got != `'{"k":"v"}'` {
		t.Fatalf("nested: %s", got)
	}
	if got := quoteIdent(`we"ird`); got != `"we""ird"` {
		t.Fatalf("ident: %s", got)
	}
}

func TestSQLiteExportRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.sqlite")
	if err := (SQLiteExporter{}).WriteFile(context.Background(), sampleDataset(), path); err != nil {
		t.Fatal(err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM "books"`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 books, got %d", n)
	}
	var name string
	var active int
	if err := db.QueryRow(`SELECT name, active FROM "authors" WHERE id = 1`).Scan(&name, &active); err != nil {
		t.Fatal(err)
	}
	if name != "O'Brien" || active != 1 {
		t.Fatalf("unexpected author row: %s %d", name, active)
	}
}

func TestSQLiteExportStreamsFile(t *testing.T) {
	var buf bytes.Buffer
	if err := (SQLiteExporter{}).Export(context.Background(), sampleDataset(), &buf); err != nil {
		t.Fatal(err)
	}
	header, err := io.ReadAll(io.LimitReader(&buf, 16))
	if err != nil {
		t.Fatal(err)
	}
	if string(header) != "SQLite format 3\x00" {
		t.Fatalf("unexpected file header %q", header)
	}
}

func TestColumnType(t *testing.T) {
	rows := []domain.Row{{"i": int64(1), "f": 1.5, "m": int64(1), "s": "x", "n": nil}, {"i": int64(2), "f": 2.5, "m": 2.5, "s": 3, "n": nil}}
	cases := map[string]string{"i": "INTEGER", "f": "REAL", "m": "REAL", "s": "TEXT", "n": "TEXT"}
	for col, want := range cases {
		if got := columnType(rows, col); got != want {
			t.Fatalf("column %s: got %s want %s", col, got, want)
		}
	}
}
