package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mmrzaf/tablegen/internal/domain"
	"github.com/mmrzaf/tablegen/internal/generators"
)

type GeneratorRegistry struct {
	mu         sync.RWMutex
	generators map[domain.FieldKind]generators.Generator
}

func NewGeneratorRegistry() *GeneratorRegistry {
	return &GeneratorRegistry{
		generators: make(map[domain.FieldKind]generators.Generator),
	}
}

func (r *GeneratorRegistry) Register(kind domain.FieldKind, gen generators.Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generators[kind] = gen
}

func (r *GeneratorRegistry) Get(kind domain.FieldKind) (generators.Generator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	gen, ok := r.generators[kind]
	if !ok {
		return nil, fmt.Errorf("generator not found: %s", kind)
	}
	return gen, nil
}

func (r *GeneratorRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.generators))
	for kind := range r.generators {
		names = append(names, string(kind))
	}
	sort.Strings(names)
	return names
}

// FakerMethods lists the capability names of the registered faker provider.
func (r *GeneratorRegistry) FakerMethods() []string {
	gen, err := r.Get(domain.FieldKindFaker)
	if err != nil {
		return nil
	}
	fg, ok := gen.(*generators.FakerGenerator)
	if !ok {
		return nil
	}
	return fg.Provider.Methods()
}

// DefaultGeneratorRegistry registers every field kind. client may be nil, in
// which case llm fields materialize a provider error.
func DefaultGeneratorRegistry(client generators.CompletionClient) *GeneratorRegistry {
	r := NewGeneratorRegistry()
	r.Register(domain.FieldKindFaker, generators.NewFakerGenerator())
	r.Register(domain.FieldKindLLM, &generators.LLMGenerator{Client: client})
	r.Register(domain.FieldKindDistribution, &generators.DistributionGenerator{})
	r.Register(domain.FieldKindForeignKey, &generators.FKGenerator{})
	r.Register(domain.FieldKindInteger, &generators.IntegerGenerator{})
	r.Register(domain.FieldKindBoolean, &generators.BooleanGenerator{})
	r.Register(domain.FieldKindRegex, &generators.RegexGenerator{})
	r.Register(domain.FieldKindTimestamp, &generators.TimestampGenerator{})
	r.Register(domain.FieldKindTemplate, &generators.TemplateGenerator{})
	return r
}
