package policy

import (
	"context"
	"net/http"
	"strings"

	"github.com/BradenHooton/rampart/internal/inspector"
	"github.com/BradenHooton/rampart/internal/matcher"
	"github.com/BradenHooton/rampart/internal/models"
)

// WAFConfig configures request signature inspection
type WAFConfig struct {
	AllowList *matcher.RuleSet
	// UserAgentAllowList holds case-insensitive User-Agent substrings that skip inspection
	UserAgentAllowList []string
	Rules              *inspector.RuleSet
}

// WAF denies requests whose path, query or body match an attack signature.
// It keeps no state, so it never depends on the store.
type WAF struct {
	allow  *matcher.RuleSet
	agents []string
	rules  *inspector.RuleSet
	sink   EventSink
}

// NewWAF creates the signature policy
func NewWAF(cfg WAFConfig, deps Deps) *WAF {
	deps = deps.withDefaults()
	agents := make([]string, 0, len(cfg.UserAgentAllowList))
	for _, a := range cfg.UserAgentAllowList {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			agents = append(agents, a)
		}
	}
	return &WAF{
		allow:  cfg.AllowList,
		agents: agents,
		rules:  cfg.Rules,
		sink:   deps.Sink,
	}
}

func (p *WAF) Name() string { return NameWAF }

func (p *WAF) trustedAgent(ua string) bool {
	ua = strings.ToLower(ua)
	for _, a := range p.agents {
		if strings.Contains(ua, a) {
			return true
		}
	}
	return false
}

func (p *WAF) Evaluate(ctx context.Context, rc models.RequestContext) models.Decision {
	if rc.Privileged || p.allow.Contains(rc.Subject) || p.trustedAgent(rc.UserAgent) {
		return models.Allow(0)
	}

	res := p.rules.Inspect(inspector.Haystack(rc.Path, rc.RawQuery, rc.Body), models.ModeFirstMatch)
	if !res.Blocked {
		return models.Allow(0)
	}

	p.sink.EmitEvent(ctx, models.EventWAFBlock, map[string]any{
		"ip":       rc.Subject,
		"method":   rc.Method,
		"path":     rc.Path,
		"category": res.Rule.Category,
		"rule":     res.Rule.Pattern,
	})
	return models.Deny(http.StatusForbidden, models.ReasonBlocked)
}
