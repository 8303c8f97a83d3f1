package generators

import (
	"errors"
	"math/rand"
	"regexp/syntax"
	"sync"

	"github.com/lucasjones/reggen"
	"github.com/mmrzaf/tablegen/internal/domain"
)

// DefaultRepeatLimit bounds the expansion of unbounded repeats (*, +).
const DefaultRepeatLimit = 10

// RegexGenerator expands params.pattern into a random matching string.
type RegexGenerator struct {
	mu    sync.Mutex
	cache map[string]*reggen.Generator
}

func (g *RegexGenerator) Validate(field domain.FieldSpec) error {
	pattern, ok := paramString(field.Params, "pattern")
	if !ok || pattern == "" {
		return errors.New("regex requires 'pattern' param")
	}
	if _, err := syntax.Parse(pattern, syntax.Perl); err != nil {
		return err
	}
	return nil
}

func (g *RegexGenerator) Generate(rng *rand.Rand, field domain.FieldSpec, _ GeneratorContext) (interface{}, error) {
	pattern, ok := paramString(field.Params, "pattern")
	if !ok || pattern == "" {
		return nil, newError(KindConfigError, nil, "regex requires 'pattern' param")
	}
	limit, err := paramInt(field.Params, "limit", DefaultRepeatLimit)
	if err != nil {
		return nil, newError(KindConfigError, err, "invalid repeat limit")
	}

	out, err := g.expand(pattern, int(limit), rng.Int63())
	if err != nil {
		return nil, newError(KindInvalidPattern, err, "invalid pattern %q", pattern)
	}
	return out, nil
}

// expand holds the lock while generating: reggen generators keep their own
// rand source, which is not safe for concurrent use. The source is reseeded
// from the caller's rng on every call.
func (g *RegexGenerator) expand(pattern string, limit int, seed int64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	gen, ok := g.cache[pattern]
	if !ok {
		var err error
		gen, err = reggen.NewGenerator(pattern)
		if err != nil {
			return "", err
		}
		if g.cache == nil {
			g.cache = make(map[string]*reggen.Generator)
		}
		g.cache[pattern] = gen
	}
	gen.SetSeed(seed)
	return gen.Generate(limit), nil
}
