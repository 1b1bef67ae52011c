// Package inspector matches request content against ordered signature rules.
//
// A rule containing any of ^$.|?*+()[]{} is a case-insensitive regular
// expression; any other rule is a case-insensitive substring. Rules that fail
// to compile never match and do not affect the rest of the list.
package inspector

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/BradenHooton/rampart/internal/models"
)

const regexMeta = `^$.|?*+()[]{}`

// Result of inspecting one haystack
type Result struct {
	// Blocked is set in first-match mode when a rule matched
	Blocked bool
	// Rule is the first matching rule in first-match mode
	Rule models.SignatureRule
	// Score is the capped sum of matched weights in scoring mode
	Score int
	// Matched lists every matching rule in scoring mode
	Matched []models.SignatureRule
}

// RuleError reports a rule that could not be compiled
type RuleError struct {
	Rule models.SignatureRule
	Err  error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %q: %v", e.Rule.Pattern, e.Err)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

type compiled struct {
	rule    models.SignatureRule
	literal string
	re      *regexp.Regexp
	broken  bool
}

func (c compiled) match(haystack string) bool {
	switch {
	case c.broken:
		return false
	case c.re != nil:
		return c.re.MatchString(haystack)
	default:
		return c.literal != "" && strings.Contains(haystack, c.literal)
	}
}

// LooksLikeRegex reports whether pattern is treated as a regular expression
func LooksLikeRegex(pattern string) bool {
	return strings.ContainsAny(pattern, regexMeta)
}

// RuleSet is an ordered, precompiled rule list. It is immutable and safe for concurrent use.
type RuleSet struct {
	rules  []compiled
	maxCap int
}

// Compile builds a RuleSet. Malformed rules are kept as non-matching and
// reported in the returned errors.
func Compile(rules []models.SignatureRule) (*RuleSet, []error) {
	rs := &RuleSet{rules: make([]compiled, 0, len(rules)), maxCap: models.MaxScore}
	var errs []error
	for _, r := range rules {
		c := compiled{rule: r}
		if LooksLikeRegex(r.Pattern) {
			re, err := regexp.Compile("(?i)" + r.Pattern)
			if err != nil {
				c.broken = true
				errs = append(errs, &RuleError{Rule: r, Err: err})
			} else {
				c.re = re
			}
		} else {
			c.literal = strings.ToLower(r.Pattern)
		}
		rs.rules = append(rs.rules, c)
	}
	return rs, errs
}

// MustCompile is Compile for built-in rule sets and panics on a malformed rule
func MustCompile(rules []models.SignatureRule) *RuleSet {
	rs, errs := Compile(rules)
	if len(errs) > 0 {
		panic(errs[0])
	}
	return rs
}

// WithCap returns a copy of rs whose scoring mode clamps to limit
func (rs *RuleSet) WithCap(limit int) *RuleSet {
	cp := *rs
	cp.maxCap = limit
	return &cp
}

// Len returns the number of rules, including malformed ones
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// Inspect evaluates haystack in the given mode. First-match mode normalizes
// the haystack first; scoring mode only folds case.
func (rs *RuleSet) Inspect(haystack string, mode models.Mode) Result {
	if rs == nil {
		return Result{}
	}
	if mode == models.ModeFirstMatch {
		h := Normalize(haystack)
		for _, c := range rs.rules {
			if c.match(h) {
				return Result{Blocked: true, Rule: c.rule}
			}
		}
		return Result{}
	}

	h := strings.ToLower(haystack)
	var res Result
	for _, c := range rs.rules {
		if c.match(h) {
			res.Score += c.rule.Weight
			res.Matched = append(res.Matched, c.rule)
		}
	}
	if res.Score > rs.maxCap {
		res.Score = rs.maxCap
	}
	if res.Score < 0 {
		res.Score = 0
	}
	return res
}

// Inspect compiles rules and evaluates haystack in one step. Callers that
// inspect repeatedly should Compile once and use RuleSet.Inspect.
func Inspect(haystack string, rules []models.SignatureRule, mode models.Mode) Result {
	rs, _ := Compile(rules)
	return rs.Inspect(haystack, mode)
}

// Normalize folds case and decodes %XX escapes whose byte is printable ASCII.
// Other escapes are left as written. A literal '+' is the form encoding of a
// space and becomes one; an escaped %2B stays '+'.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '+' {
			b.WriteByte(' ')
			continue
		}
		if s[i] == '%' && i+2 < len(s) {
			if hi, ok := unhex(s[i+1]); ok {
				if lo, ok := unhex(s[i+2]); ok {
					c := hi<<4 | lo
					if c >= 0x20 && c <= 0x7e {
						b.WriteByte(c)
						i += 2
						continue
					}
				}
			}
		}
		b.WriteByte(s[i])
	}
	return strings.ToLower(b.String())
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
