package validation

import (
	"sort"

	"github.com/mmrzaf/tablegen/internal/domain"
)

// Resolution is a table generation order. When the foreign key graph has a
// cycle, Unresolved lists the tables on or behind it; they are appended to
// Order in declaration order.
type Resolution struct {
	Order      []string
	Unresolved []string
}

func (r Resolution) HasCycle() bool { return len(r.Unresolved) > 0 }

// ResolveOrder runs Kahn's algorithm over the foreign key graph. Among
// ready tables the smallest id goes first. Self references and references
// to unknown ids do not count as dependencies. A cycle is not an error.
func ResolveOrder(tables []domain.TableSpec) Resolution {
	known := make(map[string]bool, len(tables))
	for _, t := range tables {
		known[t.ID] = true
	}

	dependents := make(map[string][]string)
	inDegree := make(map[string]int, len(tables))
	for _, t := range tables {
		deps := TableDependencies(t)
		count := 0
		for _, dep := range deps {
			if !known[dep] {
				continue
			}
			dependents[dep] = append(dependents[dep], t.ID)
			count++
		}
		inDegree[t.ID] = count
	}

	queue := make([]string, 0)
	for _, t := range tables {
		if inDegree[t.ID] == 0 {
			queue = append(queue, t.ID)
		}
	}
	sort.Strings(queue)

	order := make([]string, 0, len(tables))
	placed := make(map[string]bool, len(tables))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)
		placed[node] = true

		for _, dependent := range dependents[node] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
		sort.Strings(queue)
	}

	res := Resolution{Order: order}
	for _, t := range tables {
		if !placed[t.ID] {
			res.Order = append(res.Order, t.ID)
			res.Unresolved = append(res.Unresolved, t.ID)
		}
	}
	return res
}

// TableDependencies returns the distinct table ids that t references
// through foreign key fields, excluding t itself.
func TableDependencies(t domain.TableSpec) []string {
	seen := make(map[string]bool)
	deps := make([]string, 0)
	for _, f := range t.Fields {
		if f.Kind != domain.FieldKindForeignKey {
			continue
		}
		ref, _ := f.Params["table_id"].(string)
		if ref == "" || ref == t.ID || seen[ref] {
			continue
		}
		seen[ref] = true
		deps = append(deps, ref)
	}
	return deps
}

// OrderNames maps resolved ids to display names, for diagnostics.
func OrderNames(tables []domain.TableSpec, ids []string) []string {
	names := make(map[string]string, len(tables))
	for _, t := range tables {
		names[t.ID] = t.Name
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = names[id]
	}
	return out
}
