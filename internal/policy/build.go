package policy

import (
	"github.com/BradenHooton/rampart/internal/config"
	"github.com/BradenHooton/rampart/internal/inspector"
	"github.com/BradenHooton/rampart/internal/matcher"
)

func limits(w config.Window) Limits {
	return Limits{Threshold: w.Threshold, Window: w.Window, LockDuration: w.LockDuration}
}

// FromConfig builds a registry holding every enabled policy
func FromConfig(cfg *config.Config, rules inspector.RuleSets, deps Deps) (*Registry, error) {
	var policies []Policy

	bruteAllow := matcher.ParseRules(cfg.Brute.AllowList)

	if cfg.WAF.Enabled {
		policies = append(policies, NewWAF(WAFConfig{
			AllowList:          matcher.ParseRules(cfg.WAF.AllowList),
			UserAgentAllowList: cfg.WAF.UserAgentAllowList,
			Rules:              rules.WAF,
		}, deps))
	}

	if cfg.Rate.Enabled {
		routes := DefaultRoutes()
		routes.RESTExceptions = cfg.Rate.RESTExceptions
		policies = append(policies, NewRate(RateConfig{
			Login:     limits(cfg.Rate.Login),
			TwoFactor: limits(cfg.Rate.TwoFactor),
			XMLRPC:    limits(cfg.Rate.XMLRPC),
			REST:      limits(cfg.Rate.REST),
			Routes:    routes,
		}, deps))
	}

	if cfg.Brute.Enabled {
		policies = append(policies, NewBruteForce(BruteForceConfig{
			Limits:    limits(cfg.Brute.Window),
			AllowList: bruteAllow,
		}, deps))
	}

	if cfg.NotFound.Enabled {
		policies = append(policies, NewNotFound(NotFoundConfig{
			Limits:         limits(cfg.NotFound.Window),
			AllowList:      matcher.ParseRules(cfg.NotFound.AllowList).Merge(bruteAllow),
			SampleEvery:    cfg.NotFound.SampleEvery,
			IgnorePrefixes: cfg.NotFound.IgnorePrefixes,
			Rules:          rules.NotFound,
		}, deps))
	}

	if cfg.Antispam.Enabled {
		policies = append(policies, NewAntispam(AntispamConfig{
			Limits:     limits(cfg.Antispam.Window),
			AllowList:  matcher.ParseRules(cfg.Antispam.AllowList),
			MinSeconds: cfg.Antispam.MinSeconds,
			MaxLinks:   cfg.Antispam.MaxLinks,
			Rules:      rules.Spam,
		}, deps))
	}

	return NewRegistry(policies...)
}
