package generators

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/mmrzaf/tablegen/internal/domain"
)

// DistributionGenerator picks one of params.options, weighted by
// params.weights when present.
type DistributionGenerator struct{}

func (g *DistributionGenerator) Validate(field domain.FieldSpec) error {
	_, _, err := distributionParams(field.Params)
	return err
}

func (g *DistributionGenerator) Generate(rng *rand.Rand, field domain.FieldSpec, _ GeneratorContext) (interface{}, error) {
	options, weights, err := distributionParams(field.Params)
	if err != nil {
		return nil, newError(KindConfigError, err, "invalid distribution")
	}
	if weights == nil {
		return options[rng.Intn(len(options))], nil
	}

	totalWeight := 0.0
	for _, w := range weights {
		totalWeight += w
	}

	r := rng.Float64() * totalWeight
	cumWeight := 0.0
	for i, w := range weights {
		cumWeight += w
		if r < cumWeight {
			return options[i], nil
		}
	}
	return options[len(options)-1], nil
}

func distributionParams(params map[string]interface{}) ([]interface{}, []float64, error) {
	options, ok := paramList(params, "options")
	if !ok {
		return nil, nil, errors.New("distribution requires 'options' list")
	}
	if len(options) == 0 {
		return nil, nil, errors.New("'options' cannot be empty")
	}

	rawWeights, hasWeights := paramList(params, "weights")
	if !hasWeights {
		if raw, present := params["weights"]; present && raw != nil {
			return nil, nil, errors.New("'weights' must be a list")
		}
		return options, nil, nil
	}
	if len(rawWeights) != len(options) {
		return nil, nil, fmt.Errorf("'weights' has %d entries but 'options' has %d", len(rawWeights), len(options))
	}

	weights := make([]float64, len(rawWeights))
	total := 0.0
	for i, w := range rawWeights {
		f, ok := toFloat64(w)
		if !ok {
			return nil, nil, fmt.Errorf("weight %d is not numeric: %v", i, w)
		}
		if f < 0 {
			return nil, nil, fmt.Errorf("negative weight: %v", w)
		}
		weights[i] = f
		total += f
	}
	if total == 0 {
		return nil, nil, errors.New("total weight is zero")
	}
	return options, weights, nil
}
