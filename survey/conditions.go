package survey

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/width"
)

// =============================================================================
// NORMALIZATION
// =============================================================================

// Normalize folds s for case-insensitive comparison: full-width forms are
// narrowed (so "６０" equals "60") and Unicode case folding is applied.
//
// The SQLite store registers this exact function as fold(), so rule
// evaluation in memory and in SQL agree for non-ASCII text.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	// Casers are stateful; never share one across goroutines.
	return cases.Fold().String(width.Fold.String(s))
}

// EqValues returns the normalized values an eq condition accepts.
// A generation condition may list several cohorts separated by commas.
func (c Condition) EqValues() []string {
	if c.Field == FieldGeneration && strings.Contains(c.Value, ",") {
		var out []string
		for _, part := range strings.Split(c.Value, ",") {
			if v := Normalize(part); v != "" {
				out = append(out, v)
			}
		}
		return out
	}
	return []string{Normalize(c.Value)}
}

// =============================================================================
// CONDITION EVALUATOR
// =============================================================================

// Matches reports whether the profile satisfies one condition.
// An empty profile value never matches.
func Matches(p ProfileFields, c Condition) bool {
	v := Normalize(p.Value(c.Field))
	if v == "" {
		return false
	}
	switch c.Op {
	case OpEq:
		for _, want := range c.EqValues() {
			if v == want {
				return true
			}
		}
		return false
	case OpILike:
		return strings.Contains(v, Normalize(c.Value))
	}
	return false
}

// =============================================================================
// TARGET GROUP RESOLVER (in memory)
// =============================================================================

// MatchesAnyGroup evaluates OR-of-AND rules. No groups means everyone is
// eligible. A group without conditions matches everyone.
func MatchesAnyGroup(p ProfileFields, groups []TargetGroup) bool {
	if len(groups) == 0 {
		return true
	}
	for _, g := range groups {
		if matchesAll(p, g.Conditions) {
			return true
		}
	}
	return false
}

func matchesAll(p ProfileFields, conds []Condition) bool {
	for _, c := range conds {
		if !Matches(p, c) {
			return false
		}
	}
	return true
}
