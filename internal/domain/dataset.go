package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Dataset is the result of a generation job: tables in resolution order,
// each with its columns in declaration order.
//
// Its JSON form is an object mapping table name to a list of row objects.
// Both table and column order survive a round trip.
type Dataset struct {
	Tables []TableData
}

type TableData struct {
	ID      string
	Name    string
	Columns []string
	Rows    []Row
}

func (d *Dataset) Table(name string) (*TableData, bool) {
	for i := range d.Tables {
		if d.Tables[i].Name == name {
			return &d.Tables[i], true
		}
	}
	return nil, false
}

func (d *Dataset) TotalRows() int {
	n := 0
	for _, t := range d.Tables {
		n += len(t.Rows)
	}
	return n
}

// ByName flattens the dataset into the plain table-name -> rows mapping.
func (d *Dataset) ByName() map[string][]Row {
	out := make(map[string][]Row, len(d.Tables))
	for _, t := range d.Tables {
		out[t.Name] = t.Rows
	}
	return out
}

func (d Dataset) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, t := range d.Tables {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeKey(&buf, t.Name); err != nil {
			return nil, err
		}
		buf.WriteByte('[')
		for j, row := range t.Rows {
			if j > 0 {
				buf.WriteByte(',')
			}
			if err := writeRow(&buf, t.Columns, row); err != nil {
				return nil, fmt.Errorf("table %s row %d: %w", t.Name, j, err)
			}
		}
		buf.WriteByte(']')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeKey(buf *bytes.Buffer, key string) error {
	b, err := json.Marshal(key)
	if err != nil {
		return err
	}
	buf.Write(b)
	buf.WriteByte(':')
	return nil
}

func writeRow(buf *bytes.Buffer, columns []string, row Row) error {
	keys := make([]string, 0, len(row))
	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if _, ok := row[c]; ok {
			keys = append(keys, c)
			seen[c] = struct{}{}
		}
	}
	extra := make([]string, 0)
	for k := range row {
		if _, ok := seen[k]; !ok {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	keys = append(keys, extra...)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeKey(buf, k); err != nil {
			return err
		}
		b, err := json.Marshal(row[k])
		if err != nil {
			return fmt.Errorf("column %s: %w", k, err)
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return nil
}

func (d *Dataset) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	tables := make([]TableData, 0)
	for dec.More() {
		name, err := stringToken(dec)
		if err != nil {
			return err
		}
		td := TableData{ID: name, Name: name}
		if err := expectDelim(dec, '['); err != nil {
			return err
		}
		known := make(map[string]struct{})
		for dec.More() {
			if err := expectDelim(dec, '{'); err != nil {
				return err
			}
			row := Row{}
			for dec.More() {
				col, err := stringToken(dec)
				if err != nil {
					return err
				}
				var v interface{}
				if err := dec.Decode(&v); err != nil {
					return fmt.Errorf("table %s column %s: %w", name, col, err)
				}
				if _, ok := known[col]; !ok {
					known[col] = struct{}{}
					td.Columns = append(td.Columns, col)
				}
				row[col] = v
			}
			if err := expectDelim(dec, '}'); err != nil {
				return err
			}
			td.Rows = append(td.Rows, row)
		}
		if err := expectDelim(dec, ']'); err != nil {
			return err
		}
		tables = append(tables, td)
	}
	if err := expectDelim(dec, '}'); err != nil {
		return err
	}
	d.Tables = tables
	return nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func stringToken(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	s, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key, got %v", tok)
	}
	return s, nil
}
