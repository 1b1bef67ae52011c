package models

// Mode selects how the inspector evaluates a rule list
type Mode int

const (
	// ModeFirstMatch stops at the first matching rule
	ModeFirstMatch Mode = iota
	// ModeScore sums the weight of every matching rule
	ModeScore
)

// MaxScore bounds the effect a single haystack can have in scoring mode
const MaxScore = 5

// SignatureRule is a literal or regular-expression pattern with a category and weight.
// Rule lists are ordered and immutable once loaded.
type SignatureRule struct {
	Pattern  string `yaml:"pattern"`
	Category string `yaml:"category"`
	Weight   int    `yaml:"weight"`
}
