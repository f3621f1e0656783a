// Package planner checks normalized leads searches against the index catalog
// before they reach the database.
package planner

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Method is the index access method as far as the planner cares.
type Method string

const (
	MethodBTree   Method = "btree"
	MethodTrigram Method = "trigram"
)

// TenantColumn is bound by every search and therefore always satisfied.
const TenantColumn = "organization_id"

// IndexDescriptor describes one index on the leads table. Columns are in
// index order and may be expressions such as lower(city); an expression
// serves only predicates on the same expression.
type IndexDescriptor struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
	Method  Method   `yaml:"method"`
}

// Catalog is an immutable set of index descriptors.
type Catalog struct {
	indexes []IndexDescriptor
}

type catalogFile struct {
	Indexes []IndexDescriptor `yaml:"indexes"`
}

//go:embed indexes.yaml
var defaultCatalogYAML []byte

// NewCatalog builds a catalog, normalizing column expressions.
func NewCatalog(indexes ...IndexDescriptor) *Catalog {
	out := make([]IndexDescriptor, 0, len(indexes))
	for _, idx := range indexes {
		cols := make([]string, len(idx.Columns))
		for i, c := range idx.Columns {
			cols[i] = normalizeColumn(c)
		}
		method := idx.Method
		if method == "" {
			method = MethodBTree
		}
		out = append(out, IndexDescriptor{Name: idx.Name, Columns: cols, Method: method})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return &Catalog{indexes: out}
}

// DefaultCatalog returns the catalog matching the shipped migrations.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalogYAML(defaultCatalogYAML)
}

// ParseCatalogYAML decodes a catalog document.
func ParseCatalogYAML(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse index catalog: %w", err)
	}
	for i, idx := range file.Indexes {
		if idx.Name == "" || len(idx.Columns) == 0 {
			return nil, fmt.Errorf("parse index catalog: entry %d needs a name and columns", i)
		}
		switch idx.Method {
		case "", MethodBTree, MethodTrigram:
		default:
			return nil, fmt.Errorf("parse index catalog: index %s has unknown method %q", idx.Name, idx.Method)
		}
	}
	return NewCatalog(file.Indexes...), nil
}

// LoadCatalogFile reads a catalog document from disk.
func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read index catalog: %w", err)
	}
	return ParseCatalogYAML(data)
}

// Indexes returns a copy of the catalog's descriptors.
func (c *Catalog) Indexes() []IndexDescriptor {
	out := make([]IndexDescriptor, len(c.indexes))
	copy(out, c.indexes)
	return out
}

// normalizeColumn reduces an index key to the expression a search compares:
// lower((city)::text) DESC becomes lower(city) and business_name
// gin_trgm_ops becomes business_name. A function wrapper is kept, so an
// expression key never matches a plain column.
func normalizeColumn(expr string) string {
	col := strings.ToLower(strings.TrimSpace(expr))
	closing := strings.LastIndexByte(col, ')')
	opening := strings.IndexByte(col, '(')
	if closing < 0 || opening < 0 || opening > closing {
		return bareColumn(col)
	}
	fn := strings.TrimSpace(col[:opening])
	inner := bareColumn(col[opening+1 : closing])
	if fn == "" {
		return inner
	}
	return fn + "(" + inner + ")"
}

func bareColumn(expr string) string {
	col := strings.TrimSpace(expr)
	for {
		if strings.HasPrefix(col, "(") && strings.HasSuffix(col, ")") {
			col = strings.TrimSpace(col[1 : len(col)-1])
			continue
		}
		if cast := strings.Index(col, "::"); cast >= 0 {
			col = strings.TrimSpace(col[:cast])
			continue
		}
		break
	}
	if space := strings.IndexByte(col, ' '); space >= 0 {
		// ordering or operator class
		col = col[:space]
	}
	return strings.Trim(col, `"`)
}
