package planner

import (
	"sort"

	"lead_portal_backend/internal/search/query"
)

// PlanCheck reports how a request relates to the index catalog.
type PlanCheck struct {
	// IndexedFilters names the usable indexes, best match first.
	IndexedFilters []string
	// UnindexedFilters lists filter fields no index can serve.
	UnindexedFilters []query.Field
	// UsesIndexedFilter is true when at least one index narrows the scan.
	UsesIndexedFilter bool
}

type indexMatch struct {
	name    string
	matched int
}

// CheckPlan decides which catalog indexes can serve req. A btree index is
// usable when, after organization_id, its leading columns are bound by
// filter predicates; a range predicate ends the usable prefix. Trigram
// indexes serve substring filters on any of their columns. Index keys match
// a filter's IndexKey exactly. With no filters at all, an index whose first
// key after organization_id is the plain sort column counts as serving the
// query; lower(city) cannot serve ORDER BY city.
func CheckPlan(req query.Request, catalog *Catalog) PlanCheck {
	predicates := req.Filter.Predicates()

	byColumn := make(map[string][]query.Field, len(predicates))
	for _, p := range predicates {
		key := p.Field.IndexKey()
		byColumn[key] = append(byColumn[key], p.Field)
	}

	served := make(map[query.Field]bool, len(predicates))
	var matches []indexMatch

	for _, idx := range catalog.indexes {
		var fields []query.Field
		switch idx.Method {
		case MethodTrigram:
			fields = trigramMatch(idx, byColumn)
		default:
			fields = btreeMatch(idx, byColumn)
		}
		if len(fields) == 0 {
			continue
		}
		for _, f := range fields {
			served[f] = true
		}
		matches = append(matches, indexMatch{name: idx.Name, matched: len(fields)})
	}

	if len(predicates) == 0 {
		for _, idx := range catalog.indexes {
			if idx.Method == MethodBTree && leadingColumn(idx) == req.Sort.Column() {
				matches = append(matches, indexMatch{name: idx.Name, matched: 1})
			}
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].matched != matches[j].matched {
			return matches[i].matched > matches[j].matched
		}
		return matches[i].name < matches[j].name
	})

	check := PlanCheck{
		IndexedFilters:    make([]string, 0, len(matches)),
		UnindexedFilters:  make([]query.Field, 0),
		UsesIndexedFilter: len(matches) > 0,
	}
	for _, m := range matches {
		check.IndexedFilters = append(check.IndexedFilters, m.name)
	}
	for _, p := range predicates {
		if !served[p.Field] {
			check.UnindexedFilters = append(check.UnindexedFilters, p.Field)
		}
	}
	return check
}

func btreeMatch(idx IndexDescriptor, byColumn map[string][]query.Field) []query.Field {
	var fields []query.Field
	for _, col := range idx.Columns {
		if col == TenantColumn {
			continue
		}
		matched, rangeBound := false, false
		for _, f := range byColumn[col] {
			switch f.Op() {
			case query.OpEquals, query.OpPresence:
				fields = append(fields, f)
				matched = true
			case query.OpAtLeast:
				fields = append(fields, f)
				matched, rangeBound = true, true
			}
		}
		if !matched || rangeBound {
			break
		}
	}
	return fields
}

func trigramMatch(idx IndexDescriptor, byColumn map[string][]query.Field) []query.Field {
	var fields []query.Field
	for _, col := range idx.Columns {
		for _, f := range byColumn[col] {
			if f.Op() == query.OpContains {
				fields = append(fields, f)
			}
		}
	}
	return fields
}

func leadingColumn(idx IndexDescriptor) string {
	for _, col := range idx.Columns {
		if col != TenantColumn {
			return col
		}
	}
	return ""
}
