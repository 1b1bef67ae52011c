package policy

import (
	"context"
	"net/http"
	"strings"

	"github.com/BradenHooton/rampart/internal/inspector"
	"github.com/BradenHooton/rampart/internal/matcher"
	"github.com/BradenHooton/rampart/internal/models"
)

const notFoundKey = "404"

// NotFoundConfig configures repeated-404 counting
type NotFoundConfig struct {
	Limits
	AllowList *matcher.RuleSet
	// SampleEvery emits one 404_hit event per this many counted hits
	SampleEvery int
	// IgnorePrefixes are paths browsers and crawlers request routinely
	IgnorePrefixes []string
	// Rules score sensitive paths; each hit counts 1 plus the path's score
	Rules *inspector.RuleSet
}

// NotFound locks out subjects that probe for missing resources. Evaluated
// with a status other than 404 it only checks the lock.
type NotFound struct {
	*counter
	allow       *matcher.RuleSet
	sampleEvery int
	ignore      []string
	rules       *inspector.RuleSet
}

// NewNotFound creates the repeated-404 policy
func NewNotFound(cfg NotFoundConfig, deps Deps) *NotFound {
	ignore := make([]string, 0, len(cfg.IgnorePrefixes))
	for _, p := range cfg.IgnorePrefixes {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			ignore = append(ignore, p)
		}
	}
	return &NotFound{
		counter:     newCounter(notFoundKey, cfg.Limits, deps),
		allow:       cfg.AllowList,
		sampleEvery: max(1, cfg.SampleEvery),
		ignore:      ignore,
		rules:       cfg.Rules,
	}
}

func (p *NotFound) Name() string { return NameNotFound }

func (p *NotFound) ignored(path string) bool {
	path = strings.ToLower(path)
	for _, prefix := range p.ignore {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (p *NotFound) Evaluate(ctx context.Context, rc models.RequestContext) models.Decision {
	if rc.Privileged || p.ignored(rc.Path) || p.allow.Contains(rc.Subject) {
		return models.Allow(0)
	}

	fields := map[string]any{"ip": rc.Subject, "path": rc.Path}

	if d, ok := p.checkLock(ctx, rc.Subject, fields, models.Deny(http.StatusForbidden, models.ReasonLocked)); !ok {
		return d
	}
	if rc.Status != http.StatusNotFound {
		return models.Allow(0)
	}

	score := p.rules.Inspect(rc.Path, models.ModeScore).Score
	delta := 1 + score

	count, ok := p.add(ctx, rc.Subject, delta, fields)
	if !ok {
		return models.Allow(0)
	}
	if p.enforce(ctx, rc.Subject, count, models.EventLockout, with(fields, "score", score)) {
		return denied(models.Deny(http.StatusForbidden, models.ReasonLocked), count)
	}

	if crossed(count, delta, p.sampleEvery) {
		p.emit(ctx, models.EventNotFoundHit, with(fields, "score", score, "count", count))
	}
	return models.Allow(count)
}
