package extract

import (
	"regexp"
	"strings"

	"github.com/ppiankov/etlconv/internal/model"
)

// Grammar defines a pipe-delimited field table format
type Grammar interface {
	// Name returns the grammar name
	Name() string

	// MatchHeader checks if the line is this grammar's table header
	MatchHeader(line string) bool

	// ParseRow parses a field row. It returns false if the line is not a row.
	ParseRow(line string) (*model.Field, bool)
}

// TableGrammar is a Grammar described by a header pattern and a row pattern.
// The row pattern must define the named groups name, req, type, desc and
// optionally conv.
type TableGrammar struct {
	name     string
	headerRe *regexp.Regexp
	fieldRe  *regexp.Regexp
}

// NewTableGrammar compiles a table grammar. It panics on invalid patterns.
func NewTableGrammar(name, headerPattern, fieldPattern string) *TableGrammar {
	return &TableGrammar{
		name:     name,
		headerRe: regexp.MustCompile(`(?i)` + headerPattern),
		fieldRe:  regexp.MustCompile(`(?i)` + fieldPattern),
	}
}

// Name returns the grammar name
func (g *TableGrammar) Name() string {
	return g.name
}

// MatchHeader checks the line against the header pattern
func (g *TableGrammar) MatchHeader(line string) bool {
	return g.headerRe.MatchString(line)
}

// ParseRow extracts a field from a matching row
func (g *TableGrammar) ParseRow(line string) (*model.Field, bool) {
	m := g.fieldRe.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}

	group := func(name string) string {
		if i := g.fieldRe.SubexpIndex(name); i >= 0 {
			return strings.TrimSpace(m[i])
		}
		return ""
	}

	return &model.Field{
		Name:        strings.ToLower(group("name")),
		Required:    strings.HasPrefix(strings.ToLower(group("req")), "yes"),
		DataType:    group("type"),
		Description: group("desc"),
		Conventions: group("conv"),
	}, true
}

// LegacyGrammar is the first, five column format:
// Field | Required | Data Type | Description | Conventions
func LegacyGrammar() *TableGrammar {
	return NewTableGrammar("v1",
		`^field\s*\|\s*required`,
		`^(?P<name>[^|]+)`+
			`\|(?P<req>[^|]+)`+
			`\|(?P<type>[^|]+)`+
			`\|(?P<desc>[^|]+)`+
			`(?:\|(?P<conv>[^|]+))?`)
}

// ForeignKeyGrammar inserts a foreign key column after the field name:
// Field | Foreign Key/Constraints | Required | Data Type | Description | Conventions
func ForeignKeyGrammar() *TableGrammar {
	return NewTableGrammar("v2",
		`^field\s*\|\s*(?:foreign key/|not null)`,
		`^(?P<name>[^|]+)`+
			`\|(?P<fk>[^|]+)`+
			`\|(?P<req>[^|]+)`+
			`\|(?P<type>[^|]+)`+
			`\|(?P<desc>[^|]+)`+
			`(?:\|(?P<conv>[^|]+))?`)
}

// Registry holds grammars in match order
type Registry struct {
	grammars []Grammar
}

// NewRegistry creates a registry with the built-in grammars
func NewRegistry() *Registry {
	registry := &Registry{}

	// Order matters: the legacy grammar is tried first
	registry.Register(LegacyGrammar())
	registry.Register(ForeignKeyGrammar())

	return registry
}

// Register appends a grammar
func (r *Registry) Register(g Grammar) {
	r.grammars = append(r.grammars, g)
}

// MatchHeader returns the first grammar whose header matches the line
func (r *Registry) MatchHeader(line string) Grammar {
	for _, g := range r.grammars {
		if g.MatchHeader(line) {
			return g
		}
	}
	return nil
}

// Names returns the registered grammar names
func (r *Registry) Names() []string {
	names := make([]string, len(r.grammars))
	for i, g := range r.grammars {
		names[i] = g.Name()
	}
	return names
}
