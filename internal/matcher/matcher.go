// Package matcher decides whether a subject (normally a client address) is
// covered by an allow or deny list of exact, wildcard and CIDR rules.
package matcher

import (
	"net/netip"
	"regexp"
	"strings"

	"go4.org/netipx"
)

// Kind is the rule form, chosen from the raw text
type Kind int

const (
	KindExact Kind = iota
	KindWildcard
	KindCIDR
)

func (k Kind) String() string {
	switch k {
	case KindWildcard:
		return "wildcard"
	case KindCIDR:
		return "cidr"
	default:
		return "exact"
	}
}

// Rule is one parsed allow/deny line
type Rule struct {
	Raw   string
	Kind  Kind
	Value string // lowercased exact value or wildcard prefix; CIDR text for KindCIDR

	prefix netip.Prefix
	valid  bool
}

var lineSplit = regexp.MustCompile(`\r?\n`)

// ParseRule classifies one rule. A CIDR rule that fails to parse never matches.
func ParseRule(raw string) Rule {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.Contains(raw, "/"):
		r := Rule{Raw: raw, Kind: KindCIDR, Value: raw}
		if p, err := netip.ParsePrefix(raw); err == nil {
			r.prefix = p
			r.valid = true
		}
		return r
	case strings.HasSuffix(raw, "*"):
		return Rule{Raw: raw, Kind: KindWildcard, Value: strings.ToLower(strings.TrimSuffix(raw, "*")), valid: true}
	default:
		return Rule{Raw: raw, Kind: KindExact, Value: strings.ToLower(raw), valid: raw != ""}
	}
}

// Match reports whether subject satisfies this rule
func (r Rule) Match(subject string) bool {
	if !r.valid {
		return false
	}
	switch r.Kind {
	case KindCIDR:
		addr, ok := parseAddr(subject)
		if !ok {
			return false
		}
		// Prefix.Contains is false across address families
		return r.prefix.Contains(addr)
	case KindWildcard:
		return strings.HasPrefix(strings.ToLower(subject), r.Value)
	default:
		return strings.EqualFold(subject, r.Value)
	}
}

// Matches reports whether subject satisfies the single textual rule.
// Malformed input yields false.
func Matches(subject, rule string) bool {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return false
	}
	return ParseRule(rule).Match(subject)
}

// IsListed reports whether any rule matches subject. Blank rules are ignored.
func IsListed(subject string, rules []string) bool {
	for _, rule := range rules {
		if strings.TrimSpace(rule) == "" {
			continue
		}
		if Matches(subject, rule) {
			return true
		}
	}
	return false
}

// SplitLines splits newline-delimited rule text, trimming each line and
// dropping blanks and '#' comments.
func SplitLines(text string) []string {
	var out []string
	for _, line := range lineSplit.Split(text, -1) {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

func parseAddr(s string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil || addr.Zone() != "" {
		return netip.Addr{}, false
	}
	return addr, true
}

// RuleSet is a list of rules parsed once and compiled for lookup.
// It is immutable after ParseRules returns and safe for concurrent use.
type RuleSet struct {
	rules     []Rule
	exact     map[string]struct{}
	wildcards []string
	ips       *netipx.IPSet
}

// ParseRules parses newline-delimited rule text into a RuleSet
func ParseRules(text string) *RuleSet {
	return NewRuleSet(SplitLines(text))
}

// NewRuleSet compiles already-split rules
func NewRuleSet(lines []string) *RuleSet {
	rs := &RuleSet{exact: make(map[string]struct{})}
	var b netipx.IPSetBuilder
	for _, line := range lines {
		r := ParseRule(line)
		if r.Raw == "" {
			continue
		}
		rs.rules = append(rs.rules, r)
		if !r.valid {
			continue
		}
		switch r.Kind {
		case KindCIDR:
			b.AddPrefix(r.prefix.Masked())
		case KindWildcard:
			rs.wildcards = append(rs.wildcards, r.Value)
		default:
			rs.exact[r.Value] = struct{}{}
		}
	}
	if set, err := b.IPSet(); err == nil {
		rs.ips = set
	}
	return rs
}

// Merge returns a new set containing the rules of rs followed by other
func (rs *RuleSet) Merge(other *RuleSet) *RuleSet {
	if rs == nil {
		return other
	}
	if other == nil {
		return rs
	}
	lines := make([]string, 0, rs.Len()+other.Len())
	for _, r := range rs.rules {
		lines = append(lines, r.Raw)
	}
	for _, r := range other.rules {
		lines = append(lines, r.Raw)
	}
	return NewRuleSet(lines)
}

// Contains reports whether subject is covered by any rule in the set
func (rs *RuleSet) Contains(subject string) bool {
	if rs == nil {
		return false
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return false
	}
	lower := strings.ToLower(subject)
	if _, ok := rs.exact[lower]; ok {
		return true
	}
	for _, prefix := range rs.wildcards {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	if rs.ips != nil {
		if addr, ok := parseAddr(subject); ok {
			return rs.ips.Contains(addr)
		}
	}
	return false
}

// Rules returns the parsed rules in their original order
func (rs *RuleSet) Rules() []Rule {
	if rs == nil {
		return nil
	}
	out := make([]Rule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

// Len returns the number of non-blank rules
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}
