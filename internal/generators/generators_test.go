package generators

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"regexp"
	"strings"
	"testing"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/mmrzaf/tablegen/internal/domain"
	"golang.org/x/text/language"
)

func field(kind domain.FieldKind, params map[string]interface{}) domain.FieldSpec {
	return domain.FieldSpec{Name: "f", Kind: kind, Params: params}
}

func newRNG() *rand.Rand { return rand.New(rand.NewSource(42)) }

type tableMap map[string][]domain.Row

func (m tableMap) Rows(id string) ([]domain.Row, bool) {
	rows, ok := m[id]
	return rows, ok
}

func TestFaker_UnknownMethod(t *testing.T) {
	g := NewFakerGenerator()
	_, err := g.Generate(newRNG(), field(domain.FieldKindFaker, map[string]interface{}{"method": "nope"}), GeneratorContext{})
	if !IsKind(err, KindUnknownMethod) {
		t.Fatalf("expected unknown_method, got %v", err)
	}
	if got := Materialize(err); got != "Error: Faker method 'nope' not found" {
		t.Fatalf("unexpected materialized value: %q", got)
	}
	if err := g.Validate(field(domain.FieldKindFaker, map[string]interface{}{"method": "nope"})); err == nil {
		t.Fatal("expected validate error for unknown method")
	}
}

func TestFaker_UUID4(t *testing.T) {
	g := NewFakerGenerator()
	rng := newRNG()
	f := field(domain.FieldKindFaker, map[string]interface{}{"method": "uuid4"})
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		v, err := g.Generate(rng, f, GeneratorContext{})
		if err != nil {
			t.Fatal(err)
		}
		u, err := uuid.Parse(v.(string))
		if err != nil {
			t.Fatalf("invalid uuid %v: %v", v, err)
		}
		if u.Version() != 4 {
			t.Fatalf("expected v4, got %d", u.Version())
		}
		if seen[u.String()] {
			t.Fatalf("duplicate uuid %s", u)
		}
		seen[u.String()] = true
	}
}

func TestFaker_KwargsForwarded(t *testing.T) {
	g := NewFakerGenerator()
	f := field(domain.FieldKindFaker, map[string]interface{}{
		"method": "random_int",
		"kwargs": map[string]interface{}{"min": 5, "max": 5.0},
	})
	v, err := g.Generate(newRNG(), f, GeneratorContext{})
	if err != nil {
		t.Fatal(err)
	}
	if v != int64(5) {
		t.Fatalf("expected 5, got %#v", v)
	}

	f.Params["kwargs"] = map[string]interface{}{"min": 10, "max": 1}
	if _, err := g.Generate(newRNG(), f, GeneratorContext{}); !IsKind(err, KindGeneratorFailure) {
		t.Fatalf("expected generator_failure, got %v", err)
	}
}

func TestFaker_PanicBecomesGeneratorFailure(t *testing.T) {
	g := NewFakerGenerator()
	g.Provider.Register("boom", func(*rand.Rand, map[string]interface{}, language.Tag) (interface{}, error) {
		panic("kaput")
	})
	_, err := g.Generate(newRNG(), field(domain.FieldKindFaker, map[string]interface{}{"method": "boom"}), GeneratorContext{})
	if !IsKind(err, KindGeneratorFailure) {
		t.Fatalf("expected generator_failure, got %v", err)
	}
}

func TestFaker_LocaleMethods(t *testing.T) {
	g := NewFakerGenerator()
	ctx := GeneratorContext{Locale: language.MustParse("de-DE")}
	v, err := g.Generate(newRNG(), field(domain.FieldKindFaker, map[string]interface{}{"method": "country_code"}), ctx)
	if err != nil {
		t.Fatal(err)
	}
	if v != "DE" {
		t.Fatalf("expected DE, got %v", v)
	}
	v, err = g.Generate(newRNG(), field(domain.FieldKindFaker, map[string]interface{}{"method": "locale"}), ctx)
	if err != nil {
		t.Fatal(err)
	}
	if v != "de-DE" {
		t.Fatalf("expected de-DE, got %v", v)
	}

	zh := GeneratorContext{Locale: language.MustParse("zh-CN")}
	en := GeneratorContext{Locale: language.MustParse("en-US")}
	for _, method := range []string{"name", "first_name", "last_name"} {
		f := field(domain.FieldKindFaker, map[string]interface{}{"method": method})
		v, err := g.Generate(newRNG(), f, zh)
		if err != nil {
			t.Fatal(err)
		}
		if !hasHan(v.(string)) {
			t.Fatalf("%s: expected a Chinese name for zh-CN, got %q", method, v)
		}
		v, err = g.Generate(newRNG(), f, en)
		if err != nil {
			t.Fatal(err)
		}
		if hasHan(v.(string)) {
			t.Fatalf("%s: unexpected Chinese name for en-US: %q", method, v)
		}
	}
}

func hasHan(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

func TestFaker_EAN13Checksum(t *testing.T) {
	code := ean13(newRNG())
	if len(code) != 13 {
		t.Fatalf("expected 13 digits, got %q", code)
	}
	sum := 0
	for i, r := range code {
		d := int(r - '0')
		if i%2 == 1 {
			d *= 3
		}
		sum += d
	}
	if sum%10 != 0 {
		t.Fatalf("bad checksum in %s", code)
	}
}

func TestDistribution(t *testing.T) {
	g := &DistributionGenerator{}
	rng := newRNG()

	_, err := g.Generate(rng, field(domain.FieldKindDistribution, map[string]interface{}{
		"options": []interface{}{"a", "b"},
		"weights": []interface{}{1},
	}), GeneratorContext{})
	if !IsKind(err, KindConfigError) {
		t.Fatalf("expected config_error for weight mismatch, got %v", err)
	}

	f := field(domain.FieldKindDistribution, map[string]interface{}{
		"options": []interface{}{"never", "always"},
		"weights": []interface{}{0, 3.5},
	})
	for i := 0; i < 100; i++ {
		v, err := g.Generate(rng, f, GeneratorContext{})
		if err != nil {
			t.Fatal(err)
		}
		if v != "always" {
			t.Fatalf("zero-weight option selected: %v", v)
		}
	}

	f = field(domain.FieldKindDistribution, map[string]interface{}{"options": []interface{}{"x", "y", "z"}})
	got := map[interface{}]bool{}
	for i := 0; i < 200; i++ {
		v, _ := g.Generate(rng, f, GeneratorContext{})
		got[v] = true
	}
	if len(got) != 3 {
		t.Fatalf("expected all options drawn, got %v", got)
	}

	if err := g.Validate(field(domain.FieldKindDistribution, map[string]interface{}{"options": []interface{}{}})); err == nil {
		t.Fatal("expected error for empty options")
	}
}

func TestInteger_InclusiveRange(t *testing.T) {
	g := &IntegerGenerator{}
	rng := newRNG()
	f := field(domain.FieldKindInteger, map[string]interface{}{"min": 1, "max": 3})
	seen := map[int64]bool{}
	for i := 0; i < 200; i++ {
		v, err := g.Generate(rng, f, GeneratorContext{})
		if err != nil {
			t.Fatal(err)
		}
		n := v.(int64)
		if n < 1 || n > 3 {
			t.Fatalf("out of range: %d", n)
		}
		seen[n] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected 1, 2 and 3, got %v", seen)
	}

	v, err := g.Generate(rng, field(domain.FieldKindInteger, nil), GeneratorContext{})
	if err != nil {
		t.Fatal(err)
	}
	if n := v.(int64); n < 0 || n > 100 {
		t.Fatalf("default range violated: %d", n)
	}

	_, err = g.Generate(rng, field(domain.FieldKindInteger, map[string]interface{}{"min": "abc"}), GeneratorContext{})
	if !IsKind(err, KindConfigError) {
		t.Fatalf("expected config_error, got %v", err)
	}
}

func TestBoolean_Extremes(t *testing.T) {
	g := &BooleanGenerator{}
	rng := newRNG()
	for i := 0; i < 50; i++ {
		v, _ := g.Generate(rng, field(domain.FieldKindBoolean, map[string]interface{}{"probability": 0}), GeneratorContext{})
		if v != false {
			t.Fatal("probability 0 produced true")
		}
		v, _ = g.Generate(rng, field(domain.FieldKindBoolean, map[string]interface{}{"probability": 100}), GeneratorContext{})
		if v != true {
			t.Fatal("probability 100 produced false")
		}
	}
	if err := g.Validate(field(domain.FieldKindBoolean, map[string]interface{}{"probability": 150})); err == nil {
		t.Fatal("expected error for probability > 100")
	}
}

func TestRegex(t *testing.T) {
	g := &RegexGenerator{}
	re := regexp.MustCompile(`^[A-Z]{3}-[0-9]{4}$`)
	f := field(domain.FieldKindRegex, map[string]interface{}{"pattern": `[A-Z]{3}-[0-9]{4}`})
	for i := 0; i < 20; i++ {
		v, err := g.Generate(newRNG(), f, GeneratorContext{})
		if err != nil {
			t.Fatal(err)
		}
		if !re.MatchString(v.(string)) {
			t.Fatalf("%q does not match", v)
		}
	}

	_, err := g.Generate(newRNG(), field(domain.FieldKindRegex, map[string]interface{}{"pattern": "[a-"}), GeneratorContext{})
	if !IsKind(err, KindInvalidPattern) {
		t.Fatalf("expected invalid_pattern, got %v", err)
	}
}

func TestRegex_FollowsRNGSeed(t *testing.T) {
	f := field(domain.FieldKindRegex, map[string]interface{}{"pattern": `[A-Z]{8}`})
	draw := func() []interface{} {
		g := &RegexGenerator{}
		rng := newRNG()
		out := make([]interface{}, 5)
		for i := range out {
			v, err := g.Generate(rng, f, GeneratorContext{})
			if err != nil {
				t.Fatal(err)
			}
			out[i] = v
		}
		return out
	}
	a, b := draw(), draw()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("draw %d differs for the same seed: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestTimestamp_SpanWiderThanDuration(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	g := &TimestampGenerator{Now: func() time.Time { return now }}
	rng := newRNG()
	f := field(domain.FieldKindTimestamp, map[string]interface{}{"min_date": "1700-01-01", "max_date": "now", "format": "timestamp"})
	lo := time.Date(1700, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	for i := 0; i < 50; i++ {
		v, err := g.Generate(rng, f, GeneratorContext{})
		if err != nil {
			t.Fatal(err)
		}
		if ts := v.(int64); ts < lo || ts > now.Unix() {
			t.Fatalf("timestamp out of range: %d", ts)
		}
	}
}

func TestTimestamp(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	g := &TimestampGenerator{Now: func() time.Time { return now }}
	rng := newRNG()

	f := field(domain.FieldKindTimestamp, map[string]interface{}{"min_date": "-1d", "max_date": "now", "format": "timestamp"})
	for i := 0; i < 20; i++ {
		v, err := g.Generate(rng, f, GeneratorContext{})
		if err != nil {
			t.Fatal(err)
		}
		ts := v.(int64)
		if ts < now.Add(-24*time.Hour).Unix() || ts > now.Unix() {
			t.Fatalf("timestamp out of range: %d", ts)
		}
	}

	// Reversed bounds are swapped.
	f = field(domain.FieldKindTimestamp, map[string]interface{}{"min_date": "now", "max_date": "2024-06-01", "format": "iso"})
	v, err := g.Generate(rng, f, GeneratorContext{})
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := time.Parse(time.RFC3339, v.(string))
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Before(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)) || parsed.After(now) {
		t.Fatalf("iso value out of range: %v", parsed)
	}

	f = field(domain.FieldKindTimestamp, map[string]interface{}{"min_date": "2024-01-01", "max_date": "2024-02-01", "format": "%Y/%m"})
	v, err = g.Generate(rng, f, GeneratorContext{})
	if err != nil {
		t.Fatal(err)
	}
	if s := v.(string); s != "2024/01" && s != "2024/02" {
		t.Fatalf("unexpected strftime output %q", s)
	}

	_, err = g.Generate(rng, field(domain.FieldKindTimestamp, map[string]interface{}{"min_date": "someday"}), GeneratorContext{})
	if !IsKind(err, KindConfigError) {
		t.Fatalf("expected config_error, got %v", err)
	}
}

func TestTemplate(t *testing.T) {
	g := &TemplateGenerator{}
	row := RowContext{
		"first":          "Ada",
		"title":          "Héllo Wörld!",
		"author":         domain.Row{"name": "Grace", "id": 7},
		"global_context": "library",
	}
	ctx := GeneratorContext{Row: row}

	cases := []struct {
		tpl  string
		want string
	}{
		{"{{ .first }} by {{ .author.name }}", "Ada by Grace"},
		{"{{ .title | slugify }}", "hello-world"},
		{`{{ .title | slugify "_" }}`, "hello_world"},
		{"{{ upper .first }}", "ADA"},
		{"{{ .global_context }}", "library"},
	}
	for _, tc := range cases {
		v, err := g.Generate(nil, field(domain.FieldKindTemplate, map[string]interface{}{"template": tc.tpl}), ctx)
		if err != nil {
			t.Fatalf("%s: %v", tc.tpl, err)
		}
		if v != tc.want {
			t.Fatalf("%s: got %q want %q", tc.tpl, v, tc.want)
		}
	}

	for _, bad := range []string{"{{ .missing }}", "{{ .first ", "{{ .author.age }}"} {
		_, err := g.Generate(nil, field(domain.FieldKindTemplate, map[string]interface{}{"template": bad}), ctx)
		if !IsKind(err, KindTemplateError) {
			t.Fatalf("%q: expected template_error, got %v", bad, err)
		}
	}
}

func TestRenderPrompt(t *testing.T) {
	rc := RowContext{
		"name":   "Ada",
		"author": domain.Row{"name": "Grace"},
	}
	got, err := RenderPrompt("{name} likes {author.name}; {author.age} {{literal}} {ghost}", rc)
	if err != nil {
		t.Fatal(err)
	}
	want := "Ada likes Grace; [Missing author.age] {literal} [Missing ghost]"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}

	for _, bad := range []string{"{oops", "a } b", "{}"} {
		if _, err := RenderPrompt(bad, rc); !IsKind(err, KindFormattingError) {
			t.Fatalf("%q: expected formatting_error, got %v", bad, err)
		}
	}
}

type fakeClient struct {
	reqs  []CompletionRequest
	reply string
	err   error
}

func (c *fakeClient) Complete(_ context.Context, req CompletionRequest) (string, error) {
	c.reqs = append(c.reqs, req)
	return c.reply, c.err
}

func TestLLM(t *testing.T) {
	client := &fakeClient{reply: "  \"Paris\" \n"}
	g := &LLMGenerator{Client: client}
	f := field(domain.FieldKindLLM, map[string]interface{}{
		"prompt_template": "A city in {country}",
		"temperature":     1.0,
	})

	claimed := NewValueSet()
	claimed.Add("Rome")
	avoid := NewAvoidSet(claimed)
	avoid.Add("Lyon")

	v, err := g.Generate(nil, f, GeneratorContext{Row: RowContext{"country": "France"}, Avoid: avoid, Attempt: 3})
	if err != nil {
		t.Fatal(err)
	}
	if v != "Paris" {
		t.Fatalf("expected cleaned value, got %q", v)
	}
	req := client.reqs[0]
	if !strings.HasPrefix(req.Prompt, "A city in France") {
		t.Fatalf("unexpected prompt: %q", req.Prompt)
	}
	if !strings.Contains(req.Prompt, "Rome, Lyon") {
		t.Fatalf("expected avoid list in prompt: %q", req.Prompt)
	}
	if math.Abs(req.Temperature-1.3) > 1e-9 {
		t.Fatalf("expected temperature 1.3, got %v", req.Temperature)
	}
	if req.Model != DefaultModel || req.MaxTokens != DefaultMaxTokens || req.System != SystemInstruction {
		t.Fatalf("unexpected defaults: %+v", req)
	}

	client.err = errors.New("timeout")
	if _, err := g.Generate(nil, f, GeneratorContext{Row: RowContext{}}); !IsKind(err, KindProviderError) {
		t.Fatalf("expected provider_error, got %v", err)
	}
	if _, err := g.Generate(nil, field(domain.FieldKindLLM, nil), GeneratorContext{}); !IsKind(err, KindConfigError) {
		t.Fatalf("expected config_error, got %v", err)
	}
	if _, err := (&LLMGenerator{}).Generate(nil, f, GeneratorContext{}); !IsKind(err, KindProviderError) {
		t.Fatalf("expected provider_error without client, got %v", err)
	}
}

func TestRetryTemperature_Capped(t *testing.T) {
	if got := RetryTemperature(0.7, 0); got != 0.7 {
		t.Fatalf("attempt 0 changed temperature: %v", got)
	}
	if got := RetryTemperature(1.95, 5); got != MaxTemperature {
		t.Fatalf("expected cap %v, got %v", MaxTemperature, got)
	}
}

func TestFK(t *testing.T) {
	g := &FKGenerator{}
	f := field(domain.FieldKindForeignKey, map[string]interface{}{"table_id": "authors", "column_name": "id"})
	rng := newRNG()

	if _, err := g.Generate(rng, f, GeneratorContext{Tables: tableMap{}}); !IsKind(err, KindDependencyNotReady) {
		t.Fatalf("expected dependency_not_ready, got %v", err)
	}
	if _, err := g.Generate(rng, f, GeneratorContext{Tables: tableMap{"authors": nil}}); !IsKind(err, KindEmptySource) {
		t.Fatalf("expected empty_source, got %v", err)
	}

	tables := tableMap{"authors": {
		{"id": "a1", "name": "Ada"},
		{"id": "a2", "name": "Grace"},
	}}
	v, err := g.Generate(rng, f, GeneratorContext{Tables: tables})
	if err != nil {
		t.Fatal(err)
	}
	ref := v.(Reference)
	if ref.Row["id"] != ref.Value {
		t.Fatalf("parent row does not match value: %+v", ref)
	}

	claimed := NewValueSet()
	claimed.Add("a1")
	for i := 0; i < 20; i++ {
		v, err := g.Generate(rng, f, GeneratorContext{Tables: tables, Avoid: NewAvoidSet(claimed)})
		if err != nil {
			t.Fatal(err)
		}
		if v.(Reference).Value != "a2" {
			t.Fatalf("avoided value selected: %v", v)
		}
	}
	claimed.Add("a2")
	if _, err := g.Generate(rng, f, GeneratorContext{Tables: tables, Avoid: NewAvoidSet(claimed)}); !IsKind(err, KindUniqueExhausted) {
		t.Fatalf("expected unique_exhausted, got %v", err)
	}

	bad := field(domain.FieldKindForeignKey, map[string]interface{}{"table_id": "authors", "column_name": "email"})
	if _, err := g.Generate(rng, bad, GeneratorContext{Tables: tables}); !IsKind(err, KindConfigError) {
		t.Fatalf("expected config_error for unknown column, got %v", err)
	}
}

func TestAvoidSet_Last(t *testing.T) {
	claimed := NewValueSet()
	for _, v := range []string{"a", "b", "c"} {
		claimed.Add(v)
	}
	avoid := NewAvoidSet(claimed)
	avoid.Add("d")
	avoid.Add("b")

	got := strings.Join(avoid.Last(3), ",")
	if got != "b,c,d" {
		t.Fatalf("unexpected tail: %s", got)
	}
	if avoid.Len() != 4 {
		t.Fatalf("expected 4 avoided values, got %d", avoid.Len())
	}
	if claimed.Contains("d") {
		t.Fatal("avoid set leaked into claimed values")
	}
	var nilSet *AvoidSet
	if nilSet.Contains("a") || nilSet.Last(3) != nil {
		t.Fatal("nil avoid set should be empty")
	}
}

func TestMaterialize(t *testing.T) {
	err := newError(KindProviderError, errors.New("boom"), "model call failed")
	if got := Materialize(err); got != "Error: model call failed (boom)" {
		t.Fatalf("unexpected: %q", got)
	}
	if !LooksLikeError(Materialize(err)) || LooksLikeError("fine") || LooksLikeError(3) {
		t.Fatal("LooksLikeError misclassified")
	}
	if UniquenessFailed("id") != "Error: uniqueness failed for id" {
		t.Fatal("unexpected sentinel")
	}
}
