package export

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"io"

	"github.com/mmrzaf/tablegen/internal/domain"
)

// CSVExporter writes a zip archive holding one <table>.csv per table.
type CSVExporter struct{}

func (CSVExporter) ContentType() string   { return "application/zip" }
func (CSVExporter) FileExtension() string { return ".zip" }

func (CSVExporter) Export(ctx context.Context, ds *domain.Dataset, w io.Writer) error {
	zw := zip.NewWriter(w)
	for i := range ds.Tables {
		if err := ctx.Err(); err != nil {
			return err
		}
		td := &ds.Tables[i]
		f, err := zw.Create(td.Name + ".csv")
		if err != nil {
			return err
		}
		if err := writeCSV(f, td); err != nil {
			return err
		}
	}
	return zw.Close()
}

func writeCSV(w io.Writer, td *domain.TableData) error {
	cols := columns(td)
	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return err
	}
	record := make([]string, len(cols))
	for _, row := range td.Rows {
		for i, c := range cols {
			record[i] = text(row[c])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
