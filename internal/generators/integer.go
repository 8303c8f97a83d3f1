package generators

import (
	"math/rand"
	"strconv"

	"github.com/mmrzaf/tablegen/internal/domain"
)

// maxEnumerableRange is the widest range for which a unique integer field
// picks directly among the values not yet avoided.
const maxEnumerableRange = 4096

// IntegerGenerator draws uniformly from the inclusive range [min, max],
// defaulting to [0, 100].
type IntegerGenerator struct{}

func (g *IntegerGenerator) Validate(field domain.FieldSpec) error {
	_, _, err := integerBounds(field.Params)
	return err
}

func (g *IntegerGenerator) Generate(rng *rand.Rand, field domain.FieldSpec, ctx GeneratorContext) (interface{}, error) {
	lo, hi, err := integerBounds(field.Params)
	if err != nil {
		return nil, err
	}
	v := lo + rng.Int63n(hi-lo+1)
	if ctx.Avoid == nil || !ctx.Avoid.Contains(strconv.FormatInt(v, 10)) || hi-lo >= maxEnumerableRange {
		return v, nil
	}

	free := make([]int64, 0)
	for n := lo; n <= hi; n++ {
		if !ctx.Avoid.Contains(strconv.FormatInt(n, 10)) {
			free = append(free, n)
		}
	}
	if len(free) == 0 {
		return nil, newError(KindUniqueExhausted, nil, "all values in %d..%d already used", lo, hi)
	}
	return free[rng.Intn(len(free))], nil
}

func integerBounds(params map[string]interface{}) (int64, int64, error) {
	lo, err := paramInt(params, "min", 0)
	if err != nil {
		return 0, 0, newError(KindConfigError, err, "invalid integer bounds")
	}
	hi, err := paramInt(params, "max", 100)
	if err != nil {
		return 0, 0, newError(KindConfigError, err, "invalid integer bounds")
	}
	if hi < lo {
		return 0, 0, newError(KindConfigError, nil, "max (%d) must be >= min (%d)", hi, lo)
	}
	return lo, hi, nil
}

// BooleanGenerator returns true with params.probability percent likelihood.
type BooleanGenerator struct{}

func (g *BooleanGenerator) Validate(field domain.FieldSpec) error {
	_, err := booleanProbability(field.Params)
	return err
}

func (g *BooleanGenerator) Generate(rng *rand.Rand, field domain.FieldSpec, _ GeneratorContext) (interface{}, error) {
	p, err := booleanProbability(field.Params)
	if err != nil {
		return nil, err
	}
	return rng.Float64()*100 < p, nil
}

func booleanProbability(params map[string]interface{}) (float64, error) {
	p, err := paramFloat(params, "probability", 50)
	if err != nil {
		return 0, newError(KindConfigError, err, "invalid probability")
	}
	if p < 0 || p > 100 {
		return 0, newError(KindConfigError, nil, "probability must be within 0..100, got %v", p)
	}
	return p, nil
}
