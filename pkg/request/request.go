// Package request describes the shape of the URLs an action answers to and
// binds incoming values to that shape.
//
// A Request is an immutable definition built once at mapping time and shared
// by every dispatch. Values received for one dispatch live in a Values,
// created fresh by Retrieve, so concurrent dispatches never share state.
package request

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/wangfeng/cherrycake-gateway/pkg/security"
)

var (
	// ErrInvalidRequest indicates a request definition that can never match correctly.
	ErrInvalidRequest = errors.New("request: invalid definition")

	// ErrRejected indicates a parameter failed its security rules.
	ErrRejected = errors.New("request: parameter rejected")

	// ErrPathMismatch indicates values were retrieved for a path that does not match.
	ErrPathMismatch = errors.New("request: path does not match")

	// ErrMissingParameter indicates a URL could not be built for lack of a path value.
	ErrMissingParameter = errors.New("request: missing parameter")
)

// ComponentKind is the kind of a path component.
type ComponentKind uint8

const (
	// ComponentFixed matches a literal segment.
	ComponentFixed ComponentKind = iota
	// ComponentVariable matches any non-empty segment and binds it to a parameter.
	ComponentVariable
)

// PathComponent is one segment of a request path.
type PathComponent struct {
	Kind      ComponentKind
	Literal   string
	Parameter string
}

// Fixed returns a literal path component.
func Fixed(literal string) PathComponent {
	return PathComponent{Kind: ComponentFixed, Literal: literal}
}

// Variable returns a path component bound to the named parameter.
func Variable(parameter string) PathComponent {
	return PathComponent{Kind: ComponentVariable, Parameter: parameter}
}

// String renders the component as it appears in a path pattern.
func (c PathComponent) String() string {
	if c.Kind == ComponentVariable {
		return "{" + c.Parameter + "}"
	}
	return c.Literal
}

// Config describes a request.
type Config struct {
	Path                []PathComponent
	Parameters          []Parameter
	AdditionalCacheKeys map[string]string
	CSRF                bool
	Description         string
}

// RejectionError reports which parameter failed which rules.
type RejectionError struct {
	Parameter string
	Report    security.Report
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("request: parameter %q rejected: %s", e.Parameter, e.Report.String())
}

func (e *RejectionError) Unwrap() error {
	return ErrRejected
}

// Request is the immutable shape an incoming URI is matched against.
type Request struct {
	path        []PathComponent
	parameters  []Parameter
	byName      map[string]int
	pathBinding map[string]int
	cacheKeys   map[string]string
	csrf        bool
	description string
}

// New builds a request from cfg and checks that it is well formed.
func New(cfg Config) (*Request, error) {
	r := &Request{
		path:        append([]PathComponent(nil), cfg.Path...),
		parameters:  append([]Parameter(nil), cfg.Parameters...),
		byName:      make(map[string]int, len(cfg.Parameters)),
		pathBinding: make(map[string]int),
		cacheKeys:   make(map[string]string, len(cfg.AdditionalCacheKeys)),
		csrf:        cfg.CSRF,
		description: cfg.Description,
	}
	for k, v := range cfg.AdditionalCacheKeys {
		r.cacheKeys[k] = v
	}

	for i, p := range r.parameters {
		if p.Name == "" {
			return nil, fmt.Errorf("%w: parameter %d has no name", ErrInvalidRequest, i)
		}
		if _, dup := r.byName[p.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate parameter %q", ErrInvalidRequest, p.Name)
		}
		r.byName[p.Name] = i
	}

	for i, c := range r.path {
		switch c.Kind {
		case ComponentFixed:
			if c.Literal == "" || strings.Contains(c.Literal, "/") {
				return nil, fmt.Errorf("%w: bad literal at component %d", ErrInvalidRequest, i)
			}
		case ComponentVariable:
			idx, ok := r.byName[c.Parameter]
			if !ok {
				return nil, fmt.Errorf("%w: component %d bound to undeclared parameter %q", ErrInvalidRequest, i, c.Parameter)
			}
			if r.parameters[idx].Source != SourcePath {
				return nil, fmt.Errorf("%w: parameter %q bound to a path component must have source path", ErrInvalidRequest, c.Parameter)
			}
			if _, dup := r.pathBinding[c.Parameter]; dup {
				return nil, fmt.Errorf("%w: parameter %q bound twice", ErrInvalidRequest, c.Parameter)
			}
			r.pathBinding[c.Parameter] = i
		default:
			return nil, fmt.Errorf("%w: unknown kind at component %d", ErrInvalidRequest, i)
		}
	}

	for _, p := range r.parameters {
		if _, bound := r.pathBinding[p.Name]; p.Source == SourcePath && !bound {
			return nil, fmt.Errorf("%w: path parameter %q not bound to any component", ErrInvalidRequest, p.Name)
		}
	}
	return r, nil
}

// MustNew is like New but panics on error. Intended for static mapping tables.
func MustNew(cfg Config) *Request {
	r, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return r
}

// Validate checks every parameter's rules and filters against v.
func (r *Request) Validate(v Validator) error {
	for _, p := range r.parameters {
		if err := v.ValidateRules(p.SecurityRules); err != nil {
			return fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		if err := v.ValidateFilters(p.Filters); err != nil {
			return fmt.Errorf("parameter %q: %w", p.Name, err)
		}
	}
	return nil
}

// Path returns a copy of the path components.
func (r *Request) Path() []PathComponent {
	return append([]PathComponent(nil), r.path...)
}

// Parameters returns a copy of the parameter definitions.
func (r *Request) Parameters() []Parameter {
	return append([]Parameter(nil), r.parameters...)
}

// Parameter returns the named parameter definition.
func (r *Request) Parameter(name string) (Parameter, bool) {
	idx, ok := r.byName[name]
	if !ok {
		return Parameter{}, false
	}
	return r.parameters[idx], true
}

// CSRF returns true when the request requires a CSRF check before the handler runs.
func (r *Request) CSRF() bool {
	return r.csrf
}

// Description returns the human readable description.
func (r *Request) Description() string {
	return r.description
}

// Pattern renders the path pattern, e.g. "/items/{id}".
func (r *Request) Pattern() string {
	return "/" + r.shape()
}

func (r *Request) shape() string {
	parts := make([]string, len(r.path))
	for i, c := range r.path {
		parts[i] = c.String()
	}
	return strings.Join(parts, "/")
}

// MatchesPath reports whether segments structurally match the request path.
func (r *Request) MatchesPath(segments []string) bool {
	if len(segments) != len(r.path) {
		return false
	}
	for i, c := range r.path {
		switch c.Kind {
		case ComponentFixed:
			if segments[i] != c.Literal {
				return false
			}
		case ComponentVariable:
			if segments[i] == "" {
				return false
			}
		}
	}
	return true
}

// Retrieve binds the values of every declared parameter for one dispatch and
// runs the security rules. A failing rule returns a *RejectionError.
func (r *Request) Retrieve(segments []string, query, body url.Values, sec Security) (*Values, error) {
	if !r.MatchesPath(segments) {
		return nil, ErrPathMismatch
	}

	v := newValues(len(r.parameters))
	for _, p := range r.parameters {
		var segment string
		idx, hasPath := r.pathBinding[p.Name]
		if hasPath {
			segment = segments[idx]
		}
		raw, ok := p.retrieve(segment, hasPath, query, body)
		if !ok {
			if len(p.SecurityRules) > 0 {
				if report := sec.CheckValue("", false, p.SecurityRules); !report.OK() {
					return nil, &RejectionError{Parameter: p.Name, Report: report}
				}
			}
			continue
		}
		filtered := sec.FilterValue(raw, p.Filters)
		if len(p.SecurityRules) > 0 {
			if report := sec.CheckValue(filtered, true, p.SecurityRules); !report.OK() {
				return nil, &RejectionError{Parameter: p.Name, Report: report}
			}
		}
		v.set(p.Name, raw, filtered)
	}
	return v, nil
}

// URLOptions tweak the URL produced by BuildURL.
type URLOptions struct {
	// Locale, when set, is prepended as the first path segment.
	Locale string
	// CacheBust, when set, is appended as the cb query parameter.
	CacheBust string
}

// BuildURL renders a URL matching this request with params substituted.
// Query parameters present in params are appended in name order.
func (r *Request) BuildURL(params map[string]string, opts URLOptions) (string, error) {
	segments := make([]string, 0, len(r.path)+1)
	if opts.Locale != "" {
		segments = append(segments, url.PathEscape(opts.Locale))
	}
	for _, c := range r.path {
		if c.Kind == ComponentFixed {
			segments = append(segments, url.PathEscape(c.Literal))
			continue
		}
		value, ok := params[c.Parameter]
		if !ok || value == "" {
			return "", fmt.Errorf("%w: %q", ErrMissingParameter, c.Parameter)
		}
		segments = append(segments, url.PathEscape(value))
	}

	query := url.Values{}
	for _, p := range r.parameters {
		if p.Source != SourceQuery {
			continue
		}
		if value, ok := params[p.Name]; ok {
			query.Set(p.Name, value)
		}
	}
	if opts.CacheBust != "" {
		query.Set("cb", opts.CacheBust)
	}

	u := "/" + strings.Join(segments, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u, nil
}

// CacheKey returns the deterministic cache identity of this request for the
// given filtered values: the path shape followed by the received values merged
// with the additional cache keys, sorted by name.
func (r *Request) CacheKey(values map[string]string) string {
	merged := make(url.Values, len(values)+len(r.cacheKeys))
	for k, v := range r.cacheKeys {
		merged.Set(k, v)
	}
	for k, v := range values {
		if _, declared := r.byName[k]; declared {
			merged.Set(k, v)
		}
	}
	return r.shape() + "?" + merged.Encode()
}
