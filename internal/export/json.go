package export

import (
	"context"
	"encoding/json"
	"io"

	"github.com/mmrzaf/tablegen/internal/domain"
)

// JSONExporter writes {"<table>": [rows...]} in generation order.
type JSONExporter struct{}

func (JSONExporter) ContentType() string   { return "application/json" }
func (JSONExporter) FileExtension() string { return ".json" }

func (JSONExporter) Export(_ context.Context, ds *domain.Dataset, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ds)
}
