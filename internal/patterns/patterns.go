// Package patterns holds the ordered regular-expression sets matched
// against log lines. Order is priority: the first pattern that matches a
// line claims it.
package patterns

import (
	"log"
	"regexp"
)

// Pattern is a named, compiled expression. Matching is case-insensitive.
type Pattern struct {
	Name     string
	Expr     string
	Solution string
	re       *regexp.Regexp
}

// Compile builds a Pattern from name and expression.
func Compile(name, expr, solution string) (Pattern, error) {
	re, err := regexp.Compile(CaseInsensitive(expr))
	if err != nil {
		return Pattern{}, err
	}
	return Pattern{Name: name, Expr: expr, Solution: solution, re: re}, nil
}

// CaseInsensitive prefixes expr with the (?i) flag. The result is valid for
// both Go regexp and DuckDB regexp_matches, which share RE2 syntax.
func CaseInsensitive(expr string) string {
	return "(?i)" + expr
}

// MatchString reports whether line contains a match.
func (p Pattern) MatchString(line string) bool {
	return p.re != nil && p.re.MatchString(line)
}

// Set is an ordered list of patterns with unique names.
type Set []Pattern

// Match returns the first pattern in s that matches line.
func (s Set) Match(line string) (Pattern, bool) {
	for _, p := range s {
		if p.MatchString(line) {
			return p, true
		}
	}
	return Pattern{}, false
}

// Names returns pattern names in priority order.
func (s Set) Names() []string {
	out := make([]string, len(s))
	for i, p := range s {
		out[i] = p.Name
	}
	return out
}

// Exprs returns raw expressions in priority order.
func (s Set) Exprs() []string {
	out := make([]string, len(s))
	for i, p := range s {
		out[i] = p.Expr
	}
	return out
}

// CompileOverrides builds the histogram-mode set: each expression is its
// own pattern, named by its text. Duplicates are ignored; expressions that
// fail to compile are logged and dropped.
func CompileOverrides(exprs []string) Set {
	var set Set
	seen := make(map[string]bool, len(exprs))
	for _, expr := range exprs {
		if expr == "" || seen[expr] {
			continue
		}
		seen[expr] = true
		p, err := Compile(expr, expr, "")
		if err != nil {
			log.Printf("patterns: dropping override %q: %v", expr, err)
			continue
		}
		set = append(set, p)
	}
	return set
}
