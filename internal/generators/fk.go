package generators

import (
	"errors"
	"math/rand"

	"github.com/mmrzaf/tablegen/internal/domain"
)

// FKGenerator samples a row of an already generated table and returns a
// Reference carrying the column value and the whole parent row.
type FKGenerator struct{}

func (g *FKGenerator) Validate(field domain.FieldSpec) error {
	_, _, err := fkParams(field.Params)
	return err
}

func (g *FKGenerator) Generate(rng *rand.Rand, field domain.FieldSpec, ctx GeneratorContext) (interface{}, error) {
	tableID, column, err := fkParams(field.Params)
	if err != nil {
		return nil, newError(KindConfigError, err, "invalid foreign key")
	}
	if ctx.Tables == nil {
		return nil, newError(KindDependencyNotReady, nil, "table '%s' not generated yet", tableID)
	}
	rows, ok := ctx.Tables.Rows(tableID)
	if !ok {
		return nil, newError(KindDependencyNotReady, nil, "table '%s' not generated yet", tableID)
	}
	if len(rows) == 0 {
		return nil, newError(KindEmptySource, nil, "table '%s' has no rows", tableID)
	}
	if _, ok := rows[0][column]; !ok {
		return nil, newError(KindConfigError, nil, "column '%s' not found in table '%s'", column, tableID)
	}

	if ctx.Avoid == nil || ctx.Avoid.Len() == 0 {
		row := rows[rng.Intn(len(rows))]
		return Reference{Value: row[column], Row: row}, nil
	}

	candidates := make([]int, 0, len(rows))
	for i, row := range rows {
		if !ctx.Avoid.Contains(Canonical(row[column])) {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return nil, newError(KindUniqueExhausted, nil, "all values of '%s.%s' already used", tableID, column)
	}
	row := rows[candidates[rng.Intn(len(candidates))]]
	return Reference{Value: row[column], Row: row}, nil
}

func fkParams(params map[string]interface{}) (string, string, error) {
	tableID, ok := paramString(params, "table_id")
	if !ok || tableID == "" {
		return "", "", errors.New("foreign_key requires 'table_id' param")
	}
	column, ok := paramString(params, "column_name")
	if !ok || column == "" {
		return "", "", errors.New("foreign_key requires 'column_name' param")
	}
	return tableID, column, nil
}
