package generators

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Canonical is the string form used for uniqueness comparisons.
func Canonical(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(val)
	}
}

// ValueSet holds the accepted values of one unique field, in acceptance
// order.
type ValueSet struct {
	index  map[string]struct{}
	values []string
}

func NewValueSet() *ValueSet {
	return &ValueSet{index: make(map[string]struct{})}
}

func (s *ValueSet) Add(v string) bool {
	if _, ok := s.index[v]; ok {
		return false
	}
	s.index[v] = struct{}{}
	s.values = append(s.values, v)
	return true
}

func (s *ValueSet) Contains(v string) bool {
	_, ok := s.index[v]
	return ok
}

func (s *ValueSet) Len() int { return len(s.values) }

// AvoidSet layers the rejections of a single field attempt loop over the
// values already claimed in the table. The claimed set is never written.
type AvoidSet struct {
	claimed *ValueSet
	local   *ValueSet
}

func NewAvoidSet(claimed *ValueSet) *AvoidSet {
	if claimed == nil {
		claimed = NewValueSet()
	}
	return &AvoidSet{claimed: claimed, local: NewValueSet()}
}

func (a *AvoidSet) Contains(v string) bool {
	if a == nil {
		return false
	}
	return a.claimed.Contains(v) || a.local.Contains(v)
}

func (a *AvoidSet) Add(v string) {
	if a == nil || a.claimed.Contains(v) {
		return
	}
	a.local.Add(v)
}

func (a *AvoidSet) Len() int {
	if a == nil {
		return 0
	}
	return a.claimed.Len() + a.local.Len()
}

// Last returns up to n of the most recently avoided values, oldest first.
func (a *AvoidSet) Last(n int) []string {
	if a == nil || n <= 0 {
		return nil
	}
	out := make([]string, 0, n)
	local := a.local.values
	if len(local) >= n {
		return append(out, local[len(local)-n:]...)
	}
	need := n - len(local)
	claimed := a.claimed.values
	if need > len(claimed) {
		need = len(claimed)
	}
	out = append(out, claimed[len(claimed)-need:]...)
	return append(out, local...)
}
