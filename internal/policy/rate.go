package policy

import (
	"context"
	"strings"

	"github.com/BradenHooton/rampart/internal/models"
)

// RouteKind classifies sensitive routes. Each kind is counted separately.
type RouteKind string

const (
	RouteNone      RouteKind = ""
	RouteLogin     RouteKind = "login"
	RouteTwoFactor RouteKind = "2fa"
	RouteXMLRPC    RouteKind = "xmlrpc"
	RouteREST      RouteKind = "rest"
)

// Routes describes which paths belong to which kind
type Routes struct {
	LoginPaths     []string
	TwoFactorPaths []string
	XMLRPCPaths    []string
	// RESTPrefix marks API paths; a rest_route query parameter also counts
	RESTPrefix string
	// RESTExceptions are path prefixes never counted as REST traffic
	RESTExceptions []string
}

// DefaultRoutes matches the host's own endpoints plus common CMS entry points
func DefaultRoutes() Routes {
	return Routes{
		LoginPaths:     []string{"/auth/login", "/wp-login.php"},
		TwoFactorPaths: []string{"/auth/2fa"},
		XMLRPCPaths:    []string{"/xmlrpc.php"},
		RESTPrefix:     "/api/",
	}
}

// Classify returns the kind of route rc targets
func (r Routes) Classify(rc models.RequestContext) RouteKind {
	path := strings.ToLower(rc.Path)

	for _, p := range r.LoginPaths {
		if strings.HasPrefix(path, p) {
			return RouteLogin
		}
	}
	for _, p := range r.TwoFactorPaths {
		if strings.HasPrefix(path, p) {
			return RouteTwoFactor
		}
	}
	for _, p := range r.XMLRPCPaths {
		if strings.HasPrefix(path, p) {
			return RouteXMLRPC
		}
	}

	rest := (r.RESTPrefix != "" && strings.HasPrefix(path, r.RESTPrefix)) ||
		strings.Contains(strings.ToLower(rc.RawQuery), "rest_route=")
	if !rest {
		return RouteNone
	}
	for _, p := range r.RESTExceptions {
		if p != "" && strings.HasPrefix(path, strings.ToLower(p)) {
			return RouteNone
		}
	}
	return RouteREST
}

// RateConfig configures per-route request rate limits
type RateConfig struct {
	Login     Limits
	TwoFactor Limits
	XMLRPC    Limits
	REST      Limits
	Routes    Routes
}

// Rate limits requests to sensitive routes per subject
type Rate struct {
	routes   Routes
	counters map[RouteKind]*counter
}

// NewRate creates the request-rate policy
func NewRate(cfg RateConfig, deps Deps) *Rate {
	kinds := map[RouteKind]Limits{
		RouteLogin:     cfg.Login,
		RouteTwoFactor: cfg.TwoFactor,
		RouteXMLRPC:    cfg.XMLRPC,
		RouteREST:      cfg.REST,
	}
	counters := make(map[RouteKind]*counter, len(kinds))
	for kind, limits := range kinds {
		if limits.Threshold <= 0 {
			continue
		}
		counters[kind] = newCounter("rate:"+string(kind), limits, deps)
	}
	return &Rate{routes: cfg.Routes, counters: counters}
}

func (p *Rate) Name() string { return NameRate }

func (p *Rate) Evaluate(ctx context.Context, rc models.RequestContext) models.Decision {
	kind := p.routes.Classify(rc)
	c, ok := p.counters[kind]
	if !ok {
		return models.Allow(0)
	}

	fields := map[string]any{"ip": rc.Subject, "route": string(kind)}

	limited := models.RateLimit(0)
	limited.RetryAfter = c.limits.LockDuration

	if d, ok := c.checkLock(ctx, rc.Subject, fields, limited); !ok {
		return d
	}

	count, ok := c.add(ctx, rc.Subject, 1, fields)
	if !ok {
		return models.Allow(0)
	}
	if c.enforce(ctx, rc.Subject, count, models.EventRateLimited, fields) {
		return denied(limited, count)
	}
	return models.Allow(count)
}
