package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/mmrzaf/tablegen/internal/domain"
	"github.com/mmrzaf/tablegen/internal/registry"
	"golang.org/x/text/language"
)

type Validator struct {
	genRegistry *registry.GeneratorRegistry
}

func NewValidator(genRegistry *registry.GeneratorRegistry) *Validator {
	return &Validator{genRegistry: genRegistry}
}

const maxNameLength = 63

// IsValidName accepts printable names without surrounding whitespace.
// Exporters quote names, so SQL keywords and spaces are fine.
func IsValidName(s string) bool {
	if s == "" || len(s) > maxNameLength || strings.TrimSpace(s) != s {
		return false
	}
	for _, r := range s {
		if !unicode.IsPrint(r) || r == '"' || r == '/' || r == '\\' {
			return false
		}
	}
	return true
}

func IsValidOutputFormat(format string) bool {
	switch format {
	case domain.OutputFormatJSON, domain.OutputFormatCSV, domain.OutputFormatSQL, domain.OutputFormatSQLite:
		return true
	default:
		return false
	}
}

// ParseLocale accepts BCP 47 tags and underscore forms such as "en_US".
func ParseLocale(s string) (language.Tag, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return language.AmericanEnglish, nil
	}
	tag, err := language.Parse(strings.ReplaceAll(s, "_", "-"))
	if err != nil {
		return language.Und, fmt.Errorf("invalid locale %q: %w", s, err)
	}
	return tag, nil
}

func (v *Validator) ValidateRequest(req *domain.GenerationRequest) error {
	if req == nil {
		return errors.New("request is required")
	}
	if err := v.validateConfig(&req.Config); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if len(req.Tables) == 0 {
		return errors.New("request must have at least one table")
	}

	ids := make(map[string]bool)
	names := make(map[string]bool)
	for i := range req.Tables {
		t := &req.Tables[i]
		if err := v.validateTable(t, ids, names); err != nil {
			label := t.Name
			if label == "" {
				label = fmt.Sprintf("#%d", i)
			}
			return fmt.Errorf("table '%s': %w", label, err)
		}
	}
	return nil
}

func (v *Validator) validateConfig(cfg *domain.GenerationConfig) error {
	if cfg.Locale != "" {
		if _, err := ParseLocale(cfg.Locale); err != nil {
			return err
		}
	}
	if cfg.OutputFormat != "" && !IsValidOutputFormat(cfg.OutputFormat) {
		return fmt.Errorf("invalid output_format: %s", cfg.OutputFormat)
	}
	return nil
}

func (v *Validator) validateTable(t *domain.TableSpec, ids, names map[string]bool) error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("table id is required")
	}
	if ids[t.ID] {
		return fmt.Errorf("duplicate table id: %s", t.ID)
	}
	ids[t.ID] = true

	if !IsValidName(t.Name) {
		return fmt.Errorf("invalid table name: %q", t.Name)
	}
	if names[t.Name] {
		return fmt.Errorf("duplicate table name: %s", t.Name)
	}
	names[t.Name] = true

	if t.RowsCount < 1 || t.RowsCount > domain.MaxRowsPerTable {
		return fmt.Errorf("rows_count must be within 1..%d, got %d", domain.MaxRowsPerTable, t.RowsCount)
	}
	if len(t.Fields) == 0 {
		return errors.New("table must have at least one field")
	}

	fieldNames := make(map[string]bool)
	for i := range t.Fields {
		f := &t.Fields[i]
		if err := v.validateField(f, fieldNames); err != nil {
			return fmt.Errorf("field '%s': %w", f.Name, err)
		}
	}
	return nil
}

func (v *Validator) validateField(f *domain.FieldSpec, fieldNames map[string]bool) error {
	if !IsValidName(f.Name) || strings.Contains(f.Name, ".") {
		return fmt.Errorf("invalid field name: %q", f.Name)
	}
	if f.Name == domain.GlobalContextKey {
		return fmt.Errorf("field name %s is reserved", domain.GlobalContextKey)
	}
	if fieldNames[f.Name] {
		return fmt.Errorf("duplicate field name: %s", f.Name)
	}
	fieldNames[f.Name] = true

	if f.Kind == "" {
		return errors.New("field type is required")
	}
	gen, err := v.genRegistry.Get(f.Kind)
	if err != nil {
		return fmt.Errorf("unknown field type: %s", f.Kind)
	}
	if err := gen.Validate(*f); err != nil {
		return fmt.Errorf("generator validation failed: %w", err)
	}
	return nil
}
