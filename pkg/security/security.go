// Package security filters and checks request parameter values.
//
// Filters are pure, order-dependent string transforms. Rules are named checks
// backed by go-playground/validator; every rule except notEmpty accepts an
// empty or absent value, so optional parameters only fail when present and
// malformed.
package security

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var (
	ErrUnknownFilter = errors.New("security: unknown filter")
	ErrUnknownRule   = errors.New("security: unknown rule")
)

// Built-in filter identifiers.
const (
	FilterTrim      = "trim"
	FilterLower     = "lower"
	FilterUpper     = "upper"
	FilterStripTags = "stripTags"
	FilterXSS       = "xss"
	FilterInt       = "int"
	FilterSlug      = "slug"
)

// Built-in rule identifiers. The parameterised ones take the form name=N.
const (
	RuleNotEmpty     = "notEmpty"
	RuleInteger      = "integer"
	RulePositive     = "positive"
	RuleNumeric      = "numeric"
	RuleBoolean      = "boolean"
	RuleSlug         = "slug"
	RuleEmail        = "email"
	RuleUUID         = "uuid"
	RuleAlphanumeric = "alphanumeric"
	RuleSQLInjection = "sqlInjection"
	RuleTypicalID    = "typicalId"
	RuleMinChars     = "minChars"
	RuleMaxChars     = "maxChars"
	RuleMinValue     = "minValue"
	RuleMaxValue     = "maxValue"
)

var (
	tagPattern       = regexp.MustCompile(`<[^>]*>`)
	leadingInt       = regexp.MustCompile(`^\s*[+-]?\d+`)
	slugPattern      = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	integerPattern   = regexp.MustCompile(`^[+-]?\d+$`)
	typicalIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	sqlPatterns      = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bunion\b[\s\S]*\bselect\b`),
		regexp.MustCompile(`(?i)\b(drop|truncate|alter)\s+table\b`),
		regexp.MustCompile(`(?i)\b(insert\s+into|delete\s+from)\b`),
		regexp.MustCompile(`(?i)'\s*(or|and)\s+'?\d*'?\s*=\s*'?\d*`),
		regexp.MustCompile(`'\s*(--|#|/\*)`),
		regexp.MustCompile(`;\s*(?i:select|update|delete|drop|insert)\b`),
	}
)

// rule describes how a rule identifier maps onto a validator tag.
type rule struct {
	tag           string
	parameterised bool
	message       string
}

var rules = map[string]rule{
	RuleNotEmpty:     {tag: "required", message: "must not be empty"},
	RuleInteger:      {tag: "cc_integer", message: "must be an integer"},
	RulePositive:     {tag: "cc_integer,cc_min=1", message: "must be a positive integer"},
	RuleNumeric:      {tag: "numeric", message: "must be numeric"},
	RuleBoolean:      {tag: "boolean", message: "must be a boolean"},
	RuleSlug:         {tag: "cc_slug", message: "must be a slug"},
	RuleEmail:        {tag: "email", message: "must be an email address"},
	RuleUUID:         {tag: "uuid", message: "must be a UUID"},
	RuleAlphanumeric: {tag: "alphanum", message: "must be alphanumeric"},
	RuleSQLInjection: {tag: "cc_nosql", message: "looks like an SQL injection attempt"},
	RuleTypicalID:    {tag: "cc_typicalid", message: "must be a typical identifier"},
	RuleMinChars:     {tag: "min=%s", parameterised: true, message: "must have at least %s characters"},
	RuleMaxChars:     {tag: "max=%s", parameterised: true, message: "must have at most %s characters"},
	RuleMinValue:     {tag: "numeric,cc_min=%s", parameterised: true, message: "must be at least %s"},
	RuleMaxValue:     {tag: "numeric,cc_max=%s", parameterised: true, message: "must be at most %s"},
}

var filters = map[string]func(string) string{
	FilterTrim:      strings.TrimSpace,
	FilterLower:     strings.ToLower,
	FilterUpper:     strings.ToUpper,
	FilterStripTags: func(s string) string { return tagPattern.ReplaceAllString(s, "") },
	FilterXSS:       html.EscapeString,
	FilterInt:       toInt,
	FilterSlug:      toSlug,
}

// Failure describes one rule a value did not satisfy.
type Failure struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Report is the result of checking a value against a list of rules.
type Report struct {
	Failures []Failure `json:"failures,omitempty"`
}

// OK returns true when every rule passed.
func (r Report) OK() bool {
	return len(r.Failures) == 0
}

// String joins the failures into a single line.
func (r Report) String() string {
	if r.OK() {
		return "ok"
	}
	parts := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		parts[i] = f.Rule + ": " + f.Message
	}
	return strings.Join(parts, "; ")
}

// Checker filters and validates values. It is safe for concurrent use.
type Checker struct {
	validate *validator.Validate
}

// NewChecker creates a checker with the built-in rules registered.
func NewChecker() *Checker {
	v := validator.New()
	_ = v.RegisterValidation("cc_integer", matchString(integerPattern))
	_ = v.RegisterValidation("cc_slug", matchString(slugPattern))
	_ = v.RegisterValidation("cc_typicalid", matchString(typicalIDPattern))
	_ = v.RegisterValidation("cc_nosql", func(fl validator.FieldLevel) bool {
		return !LooksLikeSQLInjection(fl.Field().String())
	})
	_ = v.RegisterValidation("cc_min", compareFloat(func(v, bound float64) bool { return v >= bound }))
	_ = v.RegisterValidation("cc_max", compareFloat(func(v, bound float64) bool { return v <= bound }))
	return &Checker{validate: v}
}

// FilterValue applies filters to value in order.
func (c *Checker) FilterValue(value string, names []string) string {
	for _, name := range names {
		if f, ok := filters[name]; ok {
			value = f(value)
		}
	}
	return value
}

// CheckValue runs rules in order against an already filtered value.
func (c *Checker) CheckValue(value string, received bool, names []string) Report {
	var report Report
	for _, name := range names {
		id, arg := splitRule(name)
		r, ok := rules[id]
		if !ok {
			report.Failures = append(report.Failures, Failure{Rule: name, Message: "unknown rule"})
			continue
		}
		if id == RuleNotEmpty {
			if !received || value == "" {
				report.Failures = append(report.Failures, Failure{Rule: name, Message: r.message})
			}
			continue
		}
		if value == "" {
			continue
		}
		tag, message := r.tag, r.message
		if r.parameterised {
			tag = fmt.Sprintf(r.tag, arg)
			message = fmt.Sprintf(r.message, arg)
		}
		if err := c.validate.Var(value, tag); err != nil {
			report.Failures = append(report.Failures, Failure{Rule: name, Message: message})
		}
	}
	return report
}

// ValidateFilters returns an error naming the first unknown filter.
func (c *Checker) ValidateFilters(names []string) error {
	for _, name := range names {
		if _, ok := filters[name]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownFilter, name)
		}
	}
	return nil
}

// ValidateRules returns an error naming the first unknown or malformed rule.
func (c *Checker) ValidateRules(names []string) error {
	for _, name := range names {
		id, arg := splitRule(name)
		r, ok := rules[id]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownRule, name)
		}
		if id == RuleMinChars || id == RuleMaxChars {
			if n, err := strconv.Atoi(arg); err != nil || n < 0 {
				return fmt.Errorf("%w: %q needs a character count", ErrUnknownRule, name)
			}
		} else if r.parameterised {
			if _, err := strconv.ParseFloat(arg, 64); err != nil {
				return fmt.Errorf("%w: %q needs a numeric argument", ErrUnknownRule, name)
			}
		} else if arg != "" {
			return fmt.Errorf("%w: %q takes no argument", ErrUnknownRule, name)
		}
	}
	return nil
}

// LooksLikeSQLInjection reports whether s matches one of the known injection patterns.
func LooksLikeSQLInjection(s string) bool {
	for _, p := range sqlPatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

func splitRule(name string) (string, string) {
	id, arg, _ := strings.Cut(name, "=")
	return id, arg
}

func matchString(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

func compareFloat(cmp func(v, bound float64) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		v, err := strconv.ParseFloat(fl.Field().String(), 64)
		if err != nil {
			return false
		}
		bound, err := strconv.ParseFloat(fl.Param(), 64)
		if err != nil {
			return false
		}
		return cmp(v, bound)
	}
}

func toInt(s string) string {
	m := leadingInt.FindString(s)
	if m == "" {
		return "0"
	}
	n, err := strconv.ParseInt(strings.TrimSpace(m), 10, 64)
	if err != nil {
		return "0"
	}
	return strconv.FormatInt(n, 10)
}

func toSlug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
