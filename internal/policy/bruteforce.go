package policy

import (
	"context"
	"fmt"
	"net/http"

	"github.com/BradenHooton/rampart/internal/matcher"
	"github.com/BradenHooton/rampart/internal/models"
)

const bruteForceKey = "bf"

// BruteForceConfig configures login failure counting
type BruteForceConfig struct {
	Limits
	AllowList *matcher.RuleSet
}

// BruteForce locks a subject out of authentication after too many failures.
// Called with OutcomeNone it only checks the lock, so hosts can gate a login
// before checking credentials and report the outcome afterwards.
type BruteForce struct {
	*counter
	allow *matcher.RuleSet
}

// NewBruteForce creates the brute-force policy
func NewBruteForce(cfg BruteForceConfig, deps Deps) *BruteForce {
	return &BruteForce{
		counter: newCounter(bruteForceKey, cfg.Limits, deps),
		allow:   cfg.AllowList,
	}
}

func (p *BruteForce) Name() string { return NameBruteForce }

func (p *BruteForce) Evaluate(ctx context.Context, rc models.RequestContext) models.Decision {
	if rc.Privileged || p.allow.Contains(rc.Subject) {
		return models.Allow(0)
	}

	fields := map[string]any{"ip": rc.Subject}
	if rc.Username != "" {
		fields["username"] = rc.Username
	}

	if d, ok := p.checkLock(ctx, rc.Subject, fields, models.Deny(http.StatusForbidden, models.ReasonLocked)); !ok {
		return d
	}

	switch rc.Outcome {
	case models.OutcomeFailure:
	case models.OutcomeSuccess:
		_ = p.RecordSuccess(ctx, rc.Subject)
		return models.Allow(0)
	default:
		return models.Allow(0)
	}

	count, ok := p.add(ctx, rc.Subject, 1, fields)
	if !ok {
		return models.Allow(0)
	}
	if p.enforce(ctx, rc.Subject, count, models.EventLockout, fields) {
		return denied(models.Deny(http.StatusForbidden, models.ReasonLocked), count)
	}

	p.emit(ctx, models.EventAttempt, with(fields, "policy", p.key, "count", count))
	return models.Allow(count)
}

// RecordSuccess clears the subject's failure counter. An active lock is left
// to expire on its own.
func (p *BruteForce) RecordSuccess(ctx context.Context, subject string) error {
	fields := map[string]any{"ip": subject}
	if err := p.reset(ctx, subject); err != nil {
		p.emit(ctx, models.EventStoreError, with(fields, "policy", p.key, "op", "reset", "error", err))
		return fmt.Errorf("reset failure counter: %w", err)
	}
	p.emit(ctx, models.EventLoginSuccess, fields)
	return nil
}
