package generators

import (
	"math/rand"
	"time"

	"github.com/mmrzaf/tablegen/internal/domain"
	"github.com/mmrzaf/tablegen/internal/timeutil"
	"github.com/ncruces/go-strftime"
)

const (
	TimestampFormatISO  = "iso"
	TimestampFormatUnix = "timestamp"

	DefaultTimestampLayout = "%Y-%m-%d %H:%M:%S"
)

// TimestampGenerator returns an instant uniformly between params.min_date
// and params.max_date, rendered per params.format.
type TimestampGenerator struct {
	// Now is overridable for tests.
	Now func() time.Time
}

func (g *TimestampGenerator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func (g *TimestampGenerator) Validate(field domain.FieldSpec) error {
	_, _, err := g.bounds(field.Params)
	return err
}

func (g *TimestampGenerator) Generate(rng *rand.Rand, field domain.FieldSpec, _ GeneratorContext) (interface{}, error) {
	lo, hi, err := g.bounds(field.Params)
	if err != nil {
		return nil, err
	}

	// Drawn in whole seconds so spans wider than a time.Duration still work.
	t := lo.Truncate(time.Second)
	if t.Before(lo) && hi.Unix() > t.Unix() {
		t = t.Add(time.Second)
	}
	if span := hi.Unix() - t.Unix(); span > 0 {
		t = time.Unix(t.Unix()+rng.Int63n(span+1), 0).In(lo.Location())
	}

	switch format := paramStringDefault(field.Params, "format", DefaultTimestampLayout); format {
	case TimestampFormatISO:
		return t.Format(time.RFC3339), nil
	case TimestampFormatUnix:
		return t.Unix(), nil
	default:
		return strftime.Format(format, t), nil
	}
}

func (g *TimestampGenerator) bounds(params map[string]interface{}) (time.Time, time.Time, error) {
	now := g.now()
	lo, err := timeutil.ParseRelativeTime(paramStringDefault(params, "min_date", "-1y"), now)
	if err != nil {
		return time.Time{}, time.Time{}, newError(KindConfigError, err, "invalid min_date")
	}
	hi, err := timeutil.ParseRelativeTime(paramStringDefault(params, "max_date", "now"), now)
	if err != nil {
		return time.Time{}, time.Time{}, newError(KindConfigError, err, "invalid max_date")
	}
	if lo.After(hi) {
		lo, hi = hi, lo
	}
	return lo, hi, nil
}
