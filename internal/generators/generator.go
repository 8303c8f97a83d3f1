package generators

import (
	"context"
	"math/rand"

	"github.com/mmrzaf/tablegen/internal/domain"
	"golang.org/x/text/language"
)

type Generator interface {
	Generate(rng *rand.Rand, field domain.FieldSpec, ctx GeneratorContext) (interface{}, error)
	Validate(field domain.FieldSpec) error
}

// GeneratorContext is everything a generator may read besides its params.
type GeneratorContext struct {
	Context context.Context
	Row     RowContext
	Tables  TableSource
	// Avoid is nil unless the field is unique.
	Avoid   *AvoidSet
	Attempt int
	Locale  language.Tag
}

func (c GeneratorContext) context() context.Context {
	if c.Context == nil {
		return context.Background()
	}
	return c.Context
}

// TableSource exposes fully generated tables by id.
type TableSource interface {
	Rows(tableID string) ([]domain.Row, bool)
}

// Reference is the value produced by a foreign key field: the referenced
// column value plus the whole parent row.
type Reference struct {
	Value interface{}
	Row   domain.Row
}
