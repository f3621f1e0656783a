package query

import (
	"math"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Field names a recognized search filter.
type Field string

const (
	FieldCity                    Field = "city"
	FieldState                   Field = "state"
	FieldStatus                  Field = "status"
	FieldCategory                Field = "category"
	FieldHasWebsite              Field = "has_website"
	FieldMinRating               Field = "min_rating"
	FieldPriceLevel              Field = "price_level"
	FieldBusinessStatus          Field = "business_status"
	FieldPureServiceAreaBusiness Field = "pure_service_area_business"
	FieldBusinessNameContains    Field = "business_name_contains"
)

// Op describes how a filter constrains its column.
type Op int

const (
	OpEquals Op = iota
	OpAtLeast
	OpContains
	OpPresence
)

type fieldSpec struct {
	column  string
	op      Op
	lowered bool
	parse   func(Value) (Value, bool)
}

var fieldSpecs = map[Field]fieldSpec{
	FieldCity:                    {column: "city", op: OpEquals, lowered: true, parse: parseFoldedText},
	FieldState:                   {column: "state", op: OpEquals, parse: parseState},
	FieldStatus:                  {column: "status", op: OpEquals, parse: parseStatus},
	FieldCategory:                {column: "category", op: OpEquals, lowered: true, parse: parseFoldedText},
	FieldHasWebsite:              {column: "website", op: OpPresence, parse: parseBool},
	FieldMinRating:               {column: "rating", op: OpAtLeast, parse: parseMinRating},
	FieldPriceLevel:              {column: "price_level", op: OpEquals, parse: parsePriceLevel},
	FieldBusinessStatus:          {column: "business_status", op: OpEquals, parse: parseBusinessStatus},
	FieldPureServiceAreaBusiness: {column: "pure_service_area_business", op: OpEquals, parse: parseBool},
	FieldBusinessNameContains:    {column: "business_name", op: OpContains, parse: parseFoldedText},
}

// IndexKey returns the expression the field's predicate compares, written
// the way an index key spells it: lower(city) for case folded columns.
func (f Field) IndexKey() string {
	spec := fieldSpecs[f]
	if spec.lowered {
		return "lower(" + spec.column + ")"
	}
	return spec.column
}

// Op returns the comparison a field applies to its column.
func (f Field) Op() Op { return fieldSpecs[f].op }

// Known reports whether f is a recognized filter.
func (f Field) Known() bool {
	_, ok := fieldSpecs[f]
	return ok
}

// Lead statuses accepted by the status filter.
var validStatuses = map[string]struct{}{
	"new":       {},
	"contacted": {},
	"validated": {},
	"qualified": {},
	"converted": {},
	"rejected":  {},
}

var validBusinessStatuses = map[string]struct{}{
	"OPERATIONAL":        {},
	"CLOSED_TEMPORARILY": {},
	"CLOSED_PERMANENTLY": {},
}

// IsValidStatus reports whether s is a lead status.
func IsValidStatus(s string) bool {
	_, ok := validStatuses[s]
	return ok
}

// Predicate is one normalized filter condition.
type Predicate struct {
	Field Field
	Value Value
}

// Filter is the normalized, immutable set of filter predicates, ordered by
// field name.
type Filter struct {
	predicates []Predicate
}

// Predicates returns a copy of the filter's predicates in field order.
func (f Filter) Predicates() []Predicate {
	out := make([]Predicate, len(f.predicates))
	copy(out, f.predicates)
	return out
}

// Get returns the value for field, if present.
func (f Filter) Get(field Field) (Value, bool) {
	for _, p := range f.predicates {
		if p.Field == field {
			return p.Value, true
		}
	}
	return Value{}, false
}

func (f Filter) Len() int { return len(f.predicates) }

func newFilter(raw Raw) Filter {
	predicates := make([]Predicate, 0, len(fieldSpecs))
	for field, def := range fieldSpecs {
		value, ok := raw[string(field)]
		if !ok {
			continue
		}
		parsed, ok := def.parse(value)
		if !ok {
			continue
		}
		predicates = append(predicates, Predicate{Field: field, Value: parsed})
	}
	sort.Slice(predicates, func(i, j int) bool {
		return predicates[i].Field < predicates[j].Field
	})
	return Filter{predicates: predicates}
}

// foldText trims, collapses inner whitespace and lower-cases s so that it
// matches the lower(column) expressions used by the leads indexes. A Caser
// may keep state, so each call builds its own.
func foldText(s string) string {
	s = norm.NFC.String(s)
	s = strings.Join(strings.Fields(s), " ")
	return cases.Lower(language.Und).String(s)
}

func parseFoldedText(v Value) (Value, bool) {
	text, ok := v.text()
	if !ok {
		return Value{}, false
	}
	folded := foldText(text)
	if folded == "" {
		return Value{}, false
	}
	return StringValue(folded), true
}

func parseState(v Value) (Value, bool) {
	text, ok := v.text()
	if !ok {
		return Value{}, false
	}
	code := strings.ToUpper(strings.TrimSpace(text))
	if len(code) != 2 {
		return Value{}, false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return Value{}, false
		}
	}
	return StringValue(code), true
}

func parseStatus(v Value) (Value, bool) {
	text, ok := v.text()
	if !ok {
		return Value{}, false
	}
	status := strings.ToLower(strings.TrimSpace(text))
	if !IsValidStatus(status) {
		return Value{}, false
	}
	return StringValue(status), true
}

func parseBusinessStatus(v Value) (Value, bool) {
	text, ok := v.text()
	if !ok {
		return Value{}, false
	}
	status := strings.ToUpper(strings.Join(strings.Fields(text), "_"))
	if _, ok := validBusinessStatuses[status]; !ok {
		return Value{}, false
	}
	return StringValue(status), true
}

func parseBool(v Value) (Value, bool) {
	b, ok := v.boolean()
	if !ok {
		return Value{}, false
	}
	return BoolValue(b), true
}

func parseMinRating(v Value) (Value, bool) {
	n, ok := v.number()
	if !ok {
		return Value{}, false
	}
	return NumberValue(math.Min(math.Max(n, 0), 5)), true
}

func parsePriceLevel(v Value) (Value, bool) {
	n, ok := v.number()
	if !ok {
		return Value{}, false
	}
	return NumberValue(math.Min(math.Max(math.Round(n), 0), 4)), true
}
