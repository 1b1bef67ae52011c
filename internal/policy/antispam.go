package policy

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/BradenHooton/rampart/internal/inspector"
	"github.com/BradenHooton/rampart/internal/matcher"
	"github.com/BradenHooton/rampart/internal/models"
)

const antispamKey = "spam"

var (
	urlPattern    = regexp.MustCompile(`(?i)https?://`)
	anchorPattern = regexp.MustCompile(`(?i)<\s*a\b`)
)

// CountLinks counts URLs and anchor tags in content
func CountLinks(content string) int {
	return len(urlPattern.FindAllStringIndex(content, -1)) +
		len(anchorPattern.FindAllStringIndex(content, -1))
}

// AntispamConfig configures comment screening
type AntispamConfig struct {
	Limits
	AllowList *matcher.RuleSet
	// MinSeconds is the shortest time between rendering the form and submitting it
	MinSeconds time.Duration
	MaxLinks   int
	Rules      *inspector.RuleSet
}

// Antispam screens comment submissions. Each rejected submission counts 1
// toward the subject's window; accepted comments count their spam score.
type Antispam struct {
	*counter
	allow      *matcher.RuleSet
	minSeconds time.Duration
	maxLinks   int
	rules      *inspector.RuleSet
}

// NewAntispam creates the comment policy
func NewAntispam(cfg AntispamConfig, deps Deps) *Antispam {
	return &Antispam{
		counter:    newCounter(antispamKey, cfg.Limits, deps),
		allow:      cfg.AllowList,
		minSeconds: cfg.MinSeconds,
		maxLinks:   max(0, cfg.MaxLinks),
		rules:      cfg.Rules,
	}
}

func (p *Antispam) Name() string { return NameAntispam }

func (p *Antispam) Evaluate(ctx context.Context, rc models.RequestContext) models.Decision {
	c := rc.Comment
	if c == nil || rc.Privileged || p.allow.Contains(rc.Subject) {
		return models.Allow(0)
	}

	fields := map[string]any{"ip": rc.Subject, "post": c.PostID, "type": c.CommentType}
	locked := models.Deny(http.StatusForbidden, models.ReasonLocked)

	if d, ok := p.checkLock(ctx, rc.Subject, fields, locked); !ok {
		return d
	}

	if strings.TrimSpace(c.Honeypot) != "" {
		return p.block(ctx, rc.Subject, models.Deny(http.StatusForbidden, models.ReasonBlocked),
			with(fields, "reason", "honeypot"))
	}

	if p.minSeconds > 0 {
		now := p.deps.Clock.Now()
		if c.RenderedAt.IsZero() || now.Sub(c.RenderedAt) < p.minSeconds {
			tooFast := models.RateLimit(0)
			tooFast.RetryAfter = p.minSeconds
			elapsed := int64(-1)
			if !c.RenderedAt.IsZero() {
				elapsed = int64(now.Sub(c.RenderedAt) / time.Second)
			}
			return p.block(ctx, rc.Subject, tooFast, with(fields,
				"reason", "min_seconds",
				"elapsed", elapsed,
				"required", int64(p.minSeconds/time.Second),
			))
		}
	}

	if links := CountLinks(c.Content); links > p.maxLinks {
		return p.block(ctx, rc.Subject, models.Deny(http.StatusForbidden, models.ReasonBlocked),
			with(fields, "reason", "links", "links", links, "max", p.maxLinks))
	}

	score := p.rules.Inspect(c.Content, models.ModeScore).Score
	pass := with(fields, "score", score)
	count := 0
	if score > 0 {
		n, err := p.increment(ctx, rc.Subject, score)
		if err != nil {
			pass["store_error"] = err.Error()
		} else {
			count = n
			if p.enforce(ctx, rc.Subject, count, models.EventLockout, pass) {
				return denied(locked, count)
			}
		}
	}

	p.emit(ctx, models.EventAntispamPass, pass)
	return models.Allow(count)
}

// block counts the rejection and returns d, or a lock when the count tipped
// the subject over the threshold. Exactly one of antispam_block or lockout
// is emitted.
func (p *Antispam) block(ctx context.Context, subject string, d models.Decision, fields map[string]any) models.Decision {
	count, err := p.increment(ctx, subject, 1)
	if err != nil {
		p.emit(ctx, models.EventAntispamBlock, with(fields, "store_error", err.Error()))
		return d
	}
	if p.enforce(ctx, subject, count, models.EventLockout, fields) {
		return denied(models.Deny(http.StatusForbidden, models.ReasonLocked), count)
	}
	p.emit(ctx, models.EventAntispamBlock, with(fields, "count", count))
	return denied(d, count)
}
