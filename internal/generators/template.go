package generators

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"text/template"
	"unicode"

	"github.com/Masterminds/sprig/v3"
	"github.com/mmrzaf/tablegen/internal/domain"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// TemplateGenerator renders params.template against the row context.
// Fields are addressed as {{ .title }}, parent rows as {{ .author.name }}.
type TemplateGenerator struct {
	cache sync.Map
}

func (g *TemplateGenerator) Validate(field domain.FieldSpec) error {
	src, ok := paramString(field.Params, "template")
	if !ok || src == "" {
		return errors.New("template requires 'template' param")
	}
	_, err := g.parse(src)
	return err
}

func (g *TemplateGenerator) Generate(_ *rand.Rand, field domain.FieldSpec, ctx GeneratorContext) (interface{}, error) {
	src, ok := paramString(field.Params, "template")
	if !ok || src == "" {
		return nil, newError(KindConfigError, nil, "template requires 'template' param")
	}
	tpl, err := g.parse(src)
	if err != nil {
		return nil, newError(KindTemplateError, err, "template parse failed")
	}

	var b strings.Builder
	data := map[string]interface{}(ctx.Row)
	if data == nil {
		data = map[string]interface{}{}
	}
	if err := tpl.Execute(&b, data); err != nil {
		return nil, newError(KindTemplateError, err, "template render failed")
	}
	return b.String(), nil
}

func (g *TemplateGenerator) parse(src string) (*template.Template, error) {
	if cached, ok := g.cache.Load(src); ok {
		return cached.(*template.Template), nil
	}
	tpl, err := template.New("field").
		Funcs(TemplateFuncs()).
		Option("missingkey=error").
		Parse(src)
	if err != nil {
		return nil, err
	}
	g.cache.Store(src, tpl)
	return tpl, nil
}

// TemplateFuncs is sprig's text function map plus slugify.
func TemplateFuncs() template.FuncMap {
	funcs := sprig.TxtFuncMap()
	funcs["slugify"] = slugifyFunc
	return funcs
}

// slugifyFunc accepts either (value) or (separator, value) so that both
// {{ .name | slugify }} and {{ .name | slugify "_" }} work in pipelines.
func slugifyFunc(args ...interface{}) (string, error) {
	switch len(args) {
	case 1:
		return Slugify(fmt.Sprint(args[0]), "-"), nil
	case 2:
		return Slugify(fmt.Sprint(args[1]), fmt.Sprint(args[0])), nil
	default:
		return "", fmt.Errorf("slugify takes 1 or 2 arguments, got %d", len(args))
	}
}

// Slugify lowercases s, strips diacritics and joins runs of letters and
// digits with sep.
func Slugify(s, sep string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, s); err == nil {
		s = folded
	}

	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pending && b.Len() > 0 {
				b.WriteString(sep)
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	return b.String()
}
