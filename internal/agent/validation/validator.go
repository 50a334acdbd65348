// Package validation implements the static field validation rules applied
// while the agent collects required fields. Rules map a field name to a
// pattern and a human-readable message; they are loaded once and never
// mutated at runtime.
package validation

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

const dateLayout = "2006-01-02"

// Rule pairs a regular expression with the message returned when a value
// does not match it.
type Rule struct {
	Pattern string `yaml:"pattern"`
	Message string `yaml:"message"`
}

type ruleFile struct {
	Rules map[string]Rule `yaml:"rules"`
}

type compiledRule struct {
	re      *regexp.Regexp
	message string
}

// Validator validates raw field values against the configured rule set.
type Validator struct {
	rules map[string]compiledRule

	// now is injectable for date comparisons in tests.
	now func() time.Time
}

// New compiles the provided rules into a Validator.
func New(rules map[string]Rule) (*Validator, error) {
	compiled := make(map[string]compiledRule, len(rules))
	for field, r := range rules {
		// anchor so the whole trimmed value must match
		re, err := regexp.Compile(`\A(?:` + r.Pattern + `)\z`)
		if err != nil {
			return nil, fmt.Errorf("compile rule for %q: %w", field, err)
		}
		compiled[field] = compiledRule{re: re, message: r.Message}
	}
	return &Validator{rules: compiled, now: time.Now}, nil
}

// Default returns a Validator built from the embedded rule set.
func Default() (*Validator, error) {
	return parse(defaultRules)
}

// Load reads a rule file from disk; an empty path falls back to the
// embedded defaults.
func Load(path string) (*Validator, error) {
	if path == "" {
		return Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read validation rules: %w", err)
	}
	return parse(b)
}

func parse(b []byte) (*Validator, error) {
	var f ruleFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse validation rules: %w", err)
	}
	return New(f.Rules)
}

// Validate reports whether the raw value is acceptable for the field and,
// when it is not, the message to show the user. The value is trimmed before
// matching; the stored value is the caller's responsibility.
func (v *Validator) Validate(field, value string) (bool, string) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return false, fmt.Sprintf("%s is required", field)
	}

	if rule, ok := v.rules[field]; ok {
		if !rule.re.MatchString(trimmed) {
			return false, rule.message
		}
	}

	// date-like fields must parse and must not lie in the future
	if strings.Contains(strings.ToLower(field), "date") {
		d, err := time.Parse(dateLayout, trimmed)
		if err != nil {
			return false, "invalid date, use the YYYY-MM-DD format"
		}
		if d.After(v.now()) {
			return false, "date cannot be in the future"
		}
	}

	return true, ""
}

// HasRule reports whether a pattern rule is registered for the field.
func (v *Validator) HasRule(field string) bool {
	_, ok := v.rules[field]
	return ok
}
