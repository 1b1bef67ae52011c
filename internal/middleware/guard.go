package middleware

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/BradenHooton/rampart/internal/inspector"
	"github.com/BradenHooton/rampart/internal/models"
	"github.com/BradenHooton/rampart/internal/policy"
	pkghttp "github.com/BradenHooton/rampart/pkg/http"
)

// GuardConfig configures the request guard
type GuardConfig struct {
	// MaxBodyBytes caps the body inspected by the WAF
	MaxBodyBytes int64
	Logger       *slog.Logger
}

// Guard runs the request-wide policies around every request: signature
// inspection, then sensitive-route rate limiting, then the repeated-404 lock.
// Responses with status 404 are counted after the handler runs.
func Guard(engine *policy.Engine, cfg GuardConfig) func(http.Handler) http.Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = inspector.DefaultMaxBody
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			rc := RequestContext(r)

			if engine.Enabled(policy.NameWAF) {
				body, err := inspector.ReadBody(r, cfg.MaxBodyBytes)
				if err != nil {
					cfg.Logger.WarnContext(ctx, "failed to read body for inspection", slog.Any("error", err))
				}
				rc.Body = body
			}

			for _, name := range []string{policy.NameWAF, policy.NameRate, policy.NameNotFound} {
				if d := engine.Evaluate(ctx, name, rc); !d.Allowed() {
					pkghttp.WriteDecision(w, d)
					return
				}
			}

			if !engine.Enabled(policy.NameNotFound) {
				next.ServeHTTP(w, r)
				return
			}

			wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(wrapped, r)

			if wrapped.Status() == http.StatusNotFound {
				rc.Status = http.StatusNotFound
				rc.Body = ""
				engine.Evaluate(ctx, policy.NameNotFound, rc)
			}
		})
	}
}

// RequestContext builds the policy input for r. The body is left empty.
func RequestContext(r *http.Request) models.RequestContext {
	return models.RequestContext{
		Subject:     ClientIP(r),
		Method:      r.Method,
		Path:        r.URL.Path,
		RawQuery:    r.URL.RawQuery,
		ContentType: r.Header.Get("Content-Type"),
		UserAgent:   r.UserAgent(),
		Privileged:  IsPrivileged(r),
	}
}
