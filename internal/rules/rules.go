// Package rules defines the static detection rule registry.
package rules

import (
	"fmt"
	"os"
	"regexp"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Severity classifies detection rules and the alerts they produce.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Rule is a single detection rule. Pattern is matched case-insensitively
// against one log line. Rules carrying a Threshold are evaluated by the
// window detector instead of per-line matching.
type Rule struct {
	ID          string   `yaml:"id" validate:"required"`
	Name        string   `yaml:"name" validate:"required"`
	Description string   `yaml:"description"`
	Severity    Severity `yaml:"severity" validate:"required,oneof=LOW MEDIUM HIGH CRITICAL"`
	Pattern     string   `yaml:"pattern" validate:"required"`
	Techniques  []string `yaml:"techniques"`

	// Threshold and WindowSeconds are set only on windowed rules.
	Threshold     int `yaml:"threshold" validate:"gte=0"`
	WindowSeconds int `yaml:"window_seconds" validate:"gte=0"`

	re *regexp.Regexp
}

// Windowed reports whether the rule is evaluated by the window detector.
func (r *Rule) Windowed() bool {
	return r.Threshold > 0
}

// Regexp returns the compiled case-insensitive pattern.
func (r *Rule) Regexp() *regexp.Regexp {
	return r.re
}

var validate = validator.New()

// Registry is an ordered, read-only collection of rules. It is built once
// at startup and never mutated afterwards.
type Registry struct {
	order []string
	rules map[string]*Rule
}

// NewRegistry validates and compiles the given rules, preserving their
// order. A duplicate rule id or an invalid rule is a configuration error.
func NewRegistry(list []Rule) (*Registry, error) {
	reg := &Registry{
		order: make([]string, 0, len(list)),
		rules: make(map[string]*Rule, len(list)),
	}

	for i := range list {
		r := list[i]
		if err := validate.Struct(&r); err != nil {
			return nil, fmt.Errorf("rules: invalid rule %q: %w", r.ID, err)
		}
		if _, ok := reg.rules[r.ID]; ok {
			return nil, fmt.Errorf("rules: duplicate rule id %q", r.ID)
		}

		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rules: rule %q: bad pattern: %w", r.ID, err)
		}
		r.re = re

		reg.order = append(reg.order, r.ID)
		reg.rules[r.ID] = &r
	}

	return reg, nil
}

// Rules returns all rules in insertion order.
func (reg *Registry) Rules() []*Rule {
	out := make([]*Rule, 0, len(reg.order))
	for _, id := range reg.order {
		out = append(out, reg.rules[id])
	}
	return out
}

// Get returns the rule with the given id.
func (reg *Registry) Get(id string) (*Rule, bool) {
	r, ok := reg.rules[id]
	return r, ok
}

// Len returns the number of rules.
func (reg *Registry) Len() int {
	return len(reg.order)
}

// LoadFile reads additional rules from a YAML file. The result is appended
// to the builtin table by callers; duplicate detection happens in
// NewRegistry.
func LoadFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules: read %s: %w", path, err)
	}

	var list []Rule
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("rules: parse %s: %w", path, err)
	}
	return list, nil
}
