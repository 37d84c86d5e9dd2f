package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Condition is one atomic predicate over a named snapshot field.
type Condition struct {
	Field string `json:"field"`
	Op    string `json:"op"` // eq, ne, gt, lt, contains, empty, notempty
	Value any    `json:"value,omitempty"`
}

// Rule is immutable once loaded. Specificity is the number of atomic
// conditions; more specific rules beat less specific ones.
type Rule struct {
	ID          int         `json:"id"`
	Conditions  []Condition `json:"conditions"`
	Template    string      `json:"template"`
	Lightweight bool        `json:"lightweight"`
}

func (r Rule) Specificity() int {
	return len(r.Conditions)
}

// RuleSet is the loaded rule file: the rules plus the synonym table used to
// naturalize slot values when rendering.
type RuleSet struct {
	Rules    []Rule            `json:"rules"`
	Synonyms map[string]string `json:"synonyms"`
}

// Load reads the rule file and rejects obviously broken rules up front.
func Load(path string) (*RuleSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	var rs RuleSet
	if err := json.Unmarshal(raw, &rs); err != nil {
		return nil, fmt.Errorf("invalid rules format: %w", err)
	}
	seen := map[int]bool{}
	for _, r := range rs.Rules {
		if seen[r.ID] {
			return nil, fmt.Errorf("duplicate rule id %d", r.ID)
		}
		seen[r.ID] = true
		if r.Template == "" {
			return nil, fmt.Errorf("rule %d has an empty template", r.ID)
		}
		for _, c := range r.Conditions {
			switch c.Op {
			case "eq", "ne", "gt", "lt", "contains", "empty", "notempty":
			default:
				return nil, fmt.Errorf("rule %d: unknown op %q", r.ID, c.Op)
			}
		}
	}
	return &rs, nil
}

// eval checks one condition against the snapshot fields. Missing fields fail
// every op except empty.
func (c Condition) eval(fields map[string]any) bool {
	v, present := fields[c.Field]
	switch c.Op {
	case "empty":
		return !present || isZero(v)
	case "notempty":
		return present && !isZero(v)
	}
	if !present {
		return false
	}
	switch c.Op {
	case "eq":
		return looseEqual(v, c.Value)
	case "ne":
		return !looseEqual(v, c.Value)
	case "gt":
		a, aok := asFloat(v)
		b, bok := asFloat(c.Value)
		return aok && bok && a > b
	case "lt":
		a, aok := asFloat(v)
		b, bok := asFloat(c.Value)
		return aok && bok && a < b
	case "contains":
		s, sok := v.(string)
		sub, subok := c.Value.(string)
		return sok && subok && strings.Contains(strings.ToLower(s), strings.ToLower(sub))
	}
	return false
}

// looseEqual compares across the numeric types JSON decoding produces.
func looseEqual(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}
	return a == b
}

func isZero(v any) bool {
	if v == nil || v == "" || v == false {
		return true
	}
	if f, ok := asFloat(v); ok {
		return f == 0
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
