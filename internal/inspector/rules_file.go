package inspector

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/BradenHooton/rampart/internal/models"
)

// RuleFile is the YAML document overriding the built-in rule sets.
// An omitted section keeps its defaults.
//
//	waf:
//	  - pattern: '<\s*script\b'
//	    category: xss
//	notfound:
//	  - pattern: '\.env'
//	    weight: 2
type RuleFile struct {
	WAF      []models.SignatureRule `yaml:"waf"`
	NotFound []models.SignatureRule `yaml:"notfound"`
	Spam     []models.SignatureRule `yaml:"spam"`
}

// RuleSets holds the compiled sets used by the policies
type RuleSets struct {
	WAF      *RuleSet
	NotFound *RuleSet
	Spam     *RuleSet
}

// DefaultRuleSets compiles the built-in sets
func DefaultRuleSets() RuleSets {
	return RuleSets{
		WAF:      MustCompile(DefaultWAFRules()),
		NotFound: MustCompile(DefaultNotFoundRules()),
		Spam:     MustCompile(DefaultSpamRules()),
	}
}

// LoadRuleFile reads and compiles a rule file. An empty path yields the
// defaults. Malformed individual rules are returned as errors alongside
// usable sets; a file that cannot be read or parsed is a hard error.
func LoadRuleFile(path string) (RuleSets, []error, error) {
	if path == "" {
		return DefaultRuleSets(), nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return RuleSets{}, nil, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRuleFile(data)
}

// ParseRuleFile compiles a YAML rule document
func ParseRuleFile(data []byte) (RuleSets, []error, error) {
	var rf RuleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return RuleSets{}, nil, fmt.Errorf("parse rules file: %w", err)
	}

	var all []error
	build := func(rules, defaults []models.SignatureRule) *RuleSet {
		if len(rules) == 0 {
			rules = defaults
		}
		for i := range rules {
			if rules[i].Weight == 0 {
				rules[i].Weight = 1
			}
		}
		rs, errs := Compile(rules)
		all = append(all, errs...)
		return rs
	}

	sets := RuleSets{
		WAF:      build(rf.WAF, DefaultWAFRules()),
		NotFound: build(rf.NotFound, DefaultNotFoundRules()),
		Spam:     build(rf.Spam, DefaultSpamRules()),
	}
	return sets, all, nil
}
