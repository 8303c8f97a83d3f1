package generators

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"github.com/go-faker/faker/v4"
	"github.com/google/uuid"
	"github.com/mmrzaf/tablegen/internal/domain"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Method is one named capability of the random-data provider.
type Method func(rng *rand.Rand, kwargs map[string]interface{}, locale language.Tag) (interface{}, error)

// Provider maps method names to implementations. Lookups of unknown names
// report ok=false instead of failing.
type Provider struct {
	methods map[string]Method
}

func NewProvider() *Provider {
	p := &Provider{methods: make(map[string]Method)}
	p.registerDefaults()
	return p
}

func (p *Provider) Register(name string, m Method) {
	p.methods[name] = m
}

func (p *Provider) Lookup(name string) (Method, bool) {
	m, ok := p.methods[name]
	return m, ok
}

func (p *Provider) Methods() []string {
	names := make([]string, 0, len(p.methods))
	for name := range p.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type FakerGenerator struct {
	Provider *Provider
}

func NewFakerGenerator() *FakerGenerator {
	return &FakerGenerator{Provider: NewProvider()}
}

func (g *FakerGenerator) Validate(field domain.FieldSpec) error {
	method, ok := paramString(field.Params, "method")
	if !ok || method == "" {
		return fmt.Errorf("faker requires 'method' param")
	}
	if _, ok := g.Provider.Lookup(method); !ok {
		return fmt.Errorf("unknown faker method: %s", method)
	}
	if raw, ok := field.Params["kwargs"]; ok && raw != nil && paramMap(field.Params, "kwargs") == nil {
		return fmt.Errorf("'kwargs' must be a mapping")
	}
	return nil
}

func (g *FakerGenerator) Generate(rng *rand.Rand, field domain.FieldSpec, ctx GeneratorContext) (val interface{}, err error) {
	name, _ := paramString(field.Params, "method")
	method, ok := g.Provider.Lookup(name)
	if !ok {
		return nil, newError(KindUnknownMethod, nil, "Faker method '%s' not found", name)
	}

	defer func() {
		if r := recover(); r != nil {
			val = nil
			err = newError(KindGeneratorFailure, nil, "faker method '%s' panicked: %v", name, r)
		}
	}()

	val, err = method(rng, paramMap(field.Params, "kwargs"), ctx.Locale)
	if err != nil {
		return nil, newError(KindGeneratorFailure, err, "faker method '%s' failed", name)
	}
	return val, nil
}

func plain(f func() string) Method {
	return func(*rand.Rand, map[string]interface{}, language.Tag) (interface{}, error) {
		return f(), nil
	}
}

// localized picks the variant registered for the locale's base language,
// falling back to def.
func localized(def func() string, byBase map[string]func() string) Method {
	return func(_ *rand.Rand, _ map[string]interface{}, tag language.Tag) (interface{}, error) {
		base, _ := tag.Base()
		if f, ok := byBase[base.String()]; ok {
			return f(), nil
		}
		return def(), nil
	}
}

func pick(values []string) Method {
	return func(rng *rand.Rand, _ map[string]interface{}, _ language.Tag) (interface{}, error) {
		return values[rng.Intn(len(values))], nil
	}
}

var (
	cities = []string{
		"New York", "Los Angeles", "Chicago", "Houston", "Phoenix",
		"Philadelphia", "San Antonio", "San Diego", "Dallas", "San Jose",
		"Austin", "Seattle", "Denver", "Boston", "Portland",
		"London", "Paris", "Tokyo", "Berlin", "Madrid",
		"Rome", "Amsterdam", "Vienna", "Prague", "Barcelona",
		"Munich", "Milan", "Stockholm", "Copenhagen", "Oslo",
	}
	streets = []string{
		"Main St", "Oak Ave", "Maple Dr", "Cedar Ln", "Pine St",
		"Elm St", "Washington Blvd", "Lake Rd", "Hill St", "Park Ave",
	}
	states = []string{
		"California", "Texas", "New York", "Florida", "Illinois",
		"Washington", "Oregon", "Colorado", "Nevada", "Georgia",
	}
	jobs = []string{
		"Software Engineer", "Data Analyst", "Product Manager", "Accountant",
		"Nurse", "Teacher", "Architect", "Electrician", "Graphic Designer",
		"Sales Representative", "Pharmacist", "Civil Engineer", "Chef",
		"Journalist", "Lawyer", "Mechanic", "Photographer", "Veterinarian",
	}
	companySuffixes = []string{"Inc", "LLC", "Group", "Ltd", "and Sons", "Partners"}
	colors          = []string{"red", "green", "blue", "yellow", "purple", "orange", "black", "white", "teal", "gray"}
)

func (p *Provider) registerDefaults() {
	p.Register("uuid4", func(rng *rand.Rand, _ map[string]interface{}, _ language.Tag) (interface{}, error) {
		var b [16]byte
		rng.Read(b[:])
		u, err := uuid.FromBytes(b[:])
		if err != nil {
			return nil, err
		}
		u[6] = (u[6] & 0x0f) | 0x40
		u[8] = (u[8] & 0x3f) | 0x80
		return u.String(), nil
	})

	p.Register("name", localized(func() string { return faker.Name() }, map[string]func() string{
		"zh": func() string { return faker.ChineseName() },
	}))
	p.Register("first_name", localized(func() string { return faker.FirstName() }, map[string]func() string{
		"zh": func() string { return faker.ChineseFirstName() },
	}))
	p.Register("last_name", localized(func() string { return faker.LastName() }, map[string]func() string{
		"zh": func() string { return faker.ChineseLastName() },
	}))
	p.Register("email", plain(func() string { return faker.Email() }))
	p.Register("user_name", plain(func() string { return faker.Username() }))
	p.Register("password", plain(func() string { return faker.Password() }))
	p.Register("phone_number", plain(func() string { return faker.Phonenumber() }))
	p.Register("word", plain(func() string { return faker.Word() }))
	p.Register("sentence", plain(func() string { return faker.Sentence() }))
	p.Register("paragraph", plain(func() string { return faker.Paragraph() }))
	p.Register("text", plain(func() string { return faker.Paragraph() }))
	p.Register("url", plain(func() string { return faker.URL() }))
	p.Register("domain_name", plain(func() string { return faker.DomainName() }))
	p.Register("ipv4", plain(func() string { return faker.IPv4() }))
	p.Register("ipv6", plain(func() string { return faker.IPv6() }))
	p.Register("mac_address", plain(func() string { return faker.MacAddress() }))
	p.Register("date", plain(func() string { return faker.Date() }))
	p.Register("time", plain(func() string { return faker.TimeString() }))
	p.Register("month_name", plain(func() string { return faker.MonthName() }))
	p.Register("year", plain(func() string { return faker.YearString() }))
	p.Register("day_of_week", plain(func() string { return faker.DayOfWeek() }))
	p.Register("timezone", plain(func() string { return faker.Timezone() }))
	p.Register("currency_code", plain(func() string { return faker.Currency() }))
	p.Register("credit_card_number", plain(func() string { return faker.CCNumber() }))
	p.Register("credit_card_provider", plain(func() string { return faker.CCType() }))
	p.Register("latitude", func(*rand.Rand, map[string]interface{}, language.Tag) (interface{}, error) {
		return faker.Latitude(), nil
	})
	p.Register("longitude", func(*rand.Rand, map[string]interface{}, language.Tag) (interface{}, error) {
		return faker.Longitude(), nil
	})

	p.Register("city", pick(cities))
	p.Register("state", pick(states))
	p.Register("job", pick(jobs))
	p.Register("color_name", pick(colors))
	p.Register("street_address", func(rng *rand.Rand, _ map[string]interface{}, _ language.Tag) (interface{}, error) {
		return fmt.Sprintf("%d %s", 1+rng.Intn(9999), streets[rng.Intn(len(streets))]), nil
	})
	p.Register("address", func(rng *rand.Rand, _ map[string]interface{}, _ language.Tag) (interface{}, error) {
		return fmt.Sprintf("%d %s, %s, %s %05d",
			1+rng.Intn(9999), streets[rng.Intn(len(streets))],
			cities[rng.Intn(len(cities))], states[rng.Intn(len(states))], rng.Intn(100000)), nil
	})
	p.Register("postcode", func(rng *rand.Rand, _ map[string]interface{}, _ language.Tag) (interface{}, error) {
		return fmt.Sprintf("%05d", rng.Intn(100000)), nil
	})
	p.Register("company", func(rng *rand.Rand, _ map[string]interface{}, _ language.Tag) (interface{}, error) {
		return faker.LastName() + " " + companySuffixes[rng.Intn(len(companySuffixes))], nil
	})
	p.Register("ean13", func(rng *rand.Rand, _ map[string]interface{}, _ language.Tag) (interface{}, error) {
		return ean13(rng), nil
	})
	p.Register("ean", func(rng *rand.Rand, _ map[string]interface{}, _ language.Tag) (interface{}, error) {
		return ean13(rng), nil
	})

	p.Register("random_int", func(rng *rand.Rand, kw map[string]interface{}, _ language.Tag) (interface{}, error) {
		lo, err := paramInt(kw, "min", 0)
		if err != nil {
			return nil, err
		}
		hi, err := paramInt(kw, "max", 9999)
		if err != nil {
			return nil, err
		}
		if hi < lo {
			return nil, fmt.Errorf("max (%d) must be >= min (%d)", hi, lo)
		}
		return lo + rng.Int63n(hi-lo+1), nil
	})
	p.Register("pyfloat", func(rng *rand.Rand, kw map[string]interface{}, _ language.Tag) (interface{}, error) {
		lo, err := paramFloat(kw, "min_value", 0)
		if err != nil {
			return nil, err
		}
		hi, err := paramFloat(kw, "max_value", 1)
		if err != nil {
			return nil, err
		}
		if hi < lo {
			return nil, fmt.Errorf("max_value (%v) must be >= min_value (%v)", hi, lo)
		}
		v := lo + rng.Float64()*(hi-lo)
		if digits, err := paramInt(kw, "right_digits", -1); err == nil && digits >= 0 {
			scale := math.Pow(10, float64(digits))
			v = math.Round(v*scale) / scale
		}
		return v, nil
	})
	p.Register("gauss", func(rng *rand.Rand, kw map[string]interface{}, _ language.Tag) (interface{}, error) {
		mu, err := paramFloat(kw, "mu", 0)
		if err != nil {
			return nil, err
		}
		sigma, err := paramFloat(kw, "sigma", 1)
		if err != nil {
			return nil, err
		}
		if sigma < 0 {
			return nil, fmt.Errorf("sigma must be >= 0, got %v", sigma)
		}
		return mu + rng.NormFloat64()*sigma, nil
	})
	p.Register("boolean", func(rng *rand.Rand, kw map[string]interface{}, _ language.Tag) (interface{}, error) {
		chance, err := paramFloat(kw, "chance_of_getting_true", 50)
		if err != nil {
			return nil, err
		}
		return rng.Float64()*100 < chance, nil
	})
	p.Register("random_element", func(rng *rand.Rand, kw map[string]interface{}, _ language.Tag) (interface{}, error) {
		elems, ok := paramList(kw, "elements")
		if !ok || len(elems) == 0 {
			return nil, fmt.Errorf("'elements' must be a non-empty list")
		}
		return elems[rng.Intn(len(elems))], nil
	})
	p.Register("numerify", func(rng *rand.Rand, kw map[string]interface{}, _ language.Tag) (interface{}, error) {
		return replaceMarks(rng, paramStringDefault(kw, "text", "###"), true, false), nil
	})
	p.Register("lexify", func(rng *rand.Rand, kw map[string]interface{}, _ language.Tag) (interface{}, error) {
		return replaceMarks(rng, paramStringDefault(kw, "text", "????"), false, true), nil
	})
	p.Register("bothify", func(rng *rand.Rand, kw map[string]interface{}, _ language.Tag) (interface{}, error) {
		return replaceMarks(rng, paramStringDefault(kw, "text", "## ??"), true, true), nil
	})

	p.Register("locale", func(_ *rand.Rand, _ map[string]interface{}, tag language.Tag) (interface{}, error) {
		return tag.String(), nil
	})
	p.Register("language_name", func(_ *rand.Rand, _ map[string]interface{}, tag language.Tag) (interface{}, error) {
		return display.Self.Name(tag), nil
	})
	p.Register("country_code", func(_ *rand.Rand, _ map[string]interface{}, tag language.Tag) (interface{}, error) {
		region, _ := tag.Region()
		return region.String(), nil
	})
}

func replaceMarks(rng *rand.Rand, text string, digits, letters bool) string {
	var b strings.Builder
	for _, r := range text {
		switch {
		case digits && r == '#':
			b.WriteByte(byte('0' + rng.Intn(10)))
		case letters && r == '?':
			b.WriteByte(byte('a' + rng.Intn(26)))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func ean13(rng *rand.Rand) string {
	digits := make([]byte, 12)
	sum := 0
	for i := range digits {
		d := rng.Intn(10)
		digits[i] = byte('0' + d)
		if i%2 == 0 {
			sum += d
		} else {
			sum += 3 * d
		}
	}
	check := (10 - sum%10) % 10
	return string(digits) + strconv.Itoa(check)
}
