package exec

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/mmrzaf/tablegen/internal/domain"
	"github.com/mmrzaf/tablegen/internal/generators"
	"github.com/mmrzaf/tablegen/internal/registry"
	"golang.org/x/text/language"
)

// MaxUniqueAttempts bounds generation attempts for one unique field in one
// row.
const MaxUniqueAttempts = 10

// generatedTables is the set of fully generated tables, keyed by table id.
// A table is added only once all of its rows exist.
type generatedTables struct {
	rows map[string][]domain.Row
}

func newGeneratedTables() *generatedTables {
	return &generatedTables{rows: make(map[string][]domain.Row)}
}

func (g *generatedTables) Rows(tableID string) ([]domain.Row, bool) {
	rows, ok := g.rows[tableID]
	return rows, ok
}

func (g *generatedTables) add(tableID string, rows []domain.Row) {
	g.rows[tableID] = rows
}

// rowBuilder produces the rows of one table. It owns the per-field sets of
// accepted unique values for that table.
type rowBuilder struct {
	table  *domain.TableSpec
	gens   []generators.Generator
	genErr []error
	unique map[string]*generators.ValueSet
	tables generators.TableSource
	rng    *rand.Rand
	global string
	locale language.Tag
}

func newRowBuilder(reg *registry.GeneratorRegistry, table *domain.TableSpec, tables generators.TableSource, rng *rand.Rand, global string, locale language.Tag) *rowBuilder {
	b := &rowBuilder{
		table:  table,
		gens:   make([]generators.Generator, len(table.Fields)),
		genErr: make([]error, len(table.Fields)),
		unique: make(map[string]*generators.ValueSet),
		tables: tables,
		rng:    rng,
		global: global,
		locale: locale,
	}
	for i, f := range table.Fields {
		b.gens[i], b.genErr[i] = reg.Get(f.Kind)
		if f.IsUnique {
			b.unique[f.Name] = generators.NewValueSet()
		}
	}
	return b
}

// Build generates one row. Fields see only earlier fields of the same row
// (and global_context) through the row context.
func (b *rowBuilder) Build(ctx context.Context) domain.Row {
	rc := generators.NewRowContext(b.global)
	row := make(domain.Row, len(b.table.Fields))

	for i, f := range b.table.Fields {
		value, parent := b.resolve(ctx, i, rc)
		row[f.Name] = value
		if parent != nil {
			rc[f.Name] = parent
		} else {
			rc[f.Name] = value
		}
	}

	return row
}

// resolve returns the field value and, for a successful foreign key, the
// referenced parent row.
func (b *rowBuilder) resolve(ctx context.Context, i int, rc generators.RowContext) (interface{}, domain.Row) {
	f := b.table.Fields[i]
	if b.genErr[i] != nil {
		return generators.Materialize(b.genErr[i]), nil
	}

	gctx := generators.GeneratorContext{
		Context: ctx,
		Row:     rc,
		Tables:  b.tables,
		Locale:  b.locale,
	}

	if !f.IsUnique {
		value, parent, err := b.attempt(f, i, gctx)
		if err != nil {
			return generators.Materialize(err), nil
		}
		return value, parent
	}

	claimed := b.unique[f.Name]
	gctx.Avoid = generators.NewAvoidSet(claimed)
	for attempt := 0; attempt < MaxUniqueAttempts; attempt++ {
		gctx.Attempt = attempt
		value, parent, err := b.attempt(f, i, gctx)
		if err != nil {
			if generators.IsKind(err, generators.KindUniqueExhausted) {
				break
			}
			continue
		}
		if generators.LooksLikeError(value) {
			continue
		}
		key := generators.Canonical(value)
		if gctx.Avoid.Contains(key) {
			gctx.Avoid.Add(key)
			continue
		}
		claimed.Add(key)
		return value, parent
	}
	return generators.UniquenessFailed(f.Name), nil
}

func (b *rowBuilder) attempt(f domain.FieldSpec, i int, gctx generators.GeneratorContext) (value interface{}, parent domain.Row, err error) {
	defer func() {
		if r := recover(); r != nil {
			value, parent = nil, nil
			err = &generators.GenerationError{
				Kind:    generators.KindGeneratorFailure,
				Message: fmt.Sprintf("%s generator panicked: %v", f.Kind, r),
			}
		}
	}()

	v, err := b.gens[i].Generate(b.rng, f, gctx)
	if err != nil {
		return nil, nil, err
	}
	if ref, ok := v.(generators.Reference); ok {
		return ref.Value, ref.Row, nil
	}
	return v, nil, nil
}
