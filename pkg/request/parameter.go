package request

import "github.com/wangfeng/cherrycake-gateway/pkg/security"

// Source identifies where a parameter value is read from.
type Source uint8

const (
	// SourceQuery reads the value from the query string.
	SourceQuery Source = iota
	// SourceBody reads the value from the posted body fields.
	SourceBody
	// SourcePath reads the value from the URI segment of a variable path component.
	SourcePath
)

// String returns a string representation of the source.
func (s Source) String() string {
	switch s {
	case SourceQuery:
		return "query"
	case SourceBody:
		return "body"
	case SourcePath:
		return "path"
	default:
		return "unknown"
	}
}

// Parameter is the immutable definition of a named request input.
type Parameter struct {
	Name          string
	Source        Source
	SecurityRules []string
	Filters       []string
	Description   string
}

// Security filters and checks parameter values.
type Security interface {
	FilterValue(value string, filters []string) string
	CheckValue(value string, received bool, rules []string) security.Report
}

// Validator checks rule and filter identifiers when a request is mapped.
type Validator interface {
	ValidateRules(rules []string) error
	ValidateFilters(filters []string) error
}

// retrieve returns the raw value for p. Absence is not an error.
func (p Parameter) retrieve(pathValue string, hasPath bool, query, body map[string][]string) (string, bool) {
	switch p.Source {
	case SourcePath:
		return pathValue, hasPath
	case SourceBody:
		return first(body, p.Name)
	default:
		return first(query, p.Name)
	}
}

func first(m map[string][]string, name string) (string, bool) {
	vs, ok := m[name]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}
