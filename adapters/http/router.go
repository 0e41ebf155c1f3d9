package http

import (
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/artpar/actionkit/adapters/metrics"
	"github.com/artpar/actionkit/core/action"
	"github.com/artpar/actionkit/core/registry"
	"github.com/artpar/actionkit/pkg/apierr"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterConfig holds what the router serves.
type RouterConfig struct {
	Registry *registry.Registry
	Executor *action.Executor

	Health  *HealthHandler
	Version VersionResponse

	// Metrics enables the metrics middleware and endpoint when set.
	Metrics     *metrics.Collector
	MetricsPath string
	// Gatherer serves MetricsPath. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// Timeout cancels request contexts after the given duration. Zero
	// disables it.
	Timeout time.Duration
}

// NewRouter creates the main HTTP router. Every descriptor of the registry
// is mounted on its pattern; unknown paths and methods are answered with
// the executor's error envelope.
func NewRouter(cfg RouterConfig, logger zerolog.Logger) (chi.Router, error) {
	if cfg.Registry == nil || cfg.Executor == nil {
		return nil, fmt.Errorf("router: registry and executor are required")
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.Health == nil {
		cfg.Health = NewHealthHandler(nil)
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.StripSlashes)
	r.Use(NewLoggingMiddleware(logger, cfg.MetricsPath))
	r.Use(middleware.Recoverer)
	if cfg.Timeout > 0 {
		r.Use(middleware.Timeout(cfg.Timeout))
	}
	if cfg.Metrics != nil {
		r.Use(NewMetricsMiddleware(cfg.Metrics, cfg.MetricsPath))
	}

	// Health endpoints
	r.Get("/health", cfg.Health.Liveness)
	r.Get("/health/live", cfg.Health.Liveness)
	r.Get("/health/ready", cfg.Health.Readiness)
	r.Get("/version", VersionHandler(cfg.Version))

	if cfg.Metrics != nil {
		g := cfg.Gatherer
		if g == nil {
			g = prometheus.DefaultGatherer
		}
		r.Handle(cfg.MetricsPath, promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	}

	for _, d := range cfg.Registry.Descriptors() {
		r.Method(d.Method(), ChiPattern(d.Pattern()), cfg.Executor.Handler(d, URLParams))
		logger.Debug().Str("route", d.Name()).Str("method", d.Method()).Str("pattern", d.Pattern()).Msg("route mounted")
	}

	notFound, err := fallback("not_found", func(ctx *action.Context) (any, error) {
		return nil, apierr.NotFound("")
	})
	if err != nil {
		return nil, err
	}
	notAllowed, err := fallback("method_not_allowed", func(ctx *action.Context) (any, error) {
		return nil, apierr.MethodNotAllowed(ctx.Request.Method, cfg.Registry.Allowed(ctx.Request.URL.Path))
	})
	if err != nil {
		return nil, err
	}
	r.NotFound(cfg.Executor.Handler(notFound, nil).ServeHTTP)
	r.MethodNotAllowed(cfg.Executor.Handler(notAllowed, nil).ServeHTTP)

	return r, nil
}

// fallback builds a filterless descriptor for router-level errors.
func fallback(name string, h action.Handler) (*action.Descriptor, error) {
	return action.NewDescriptor(action.Route{Name: name, Method: "*", Pattern: "/*", Handler: h})
}

// URLParams returns the chi route parameters of r.
func URLParams(r *http.Request) map[string]string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return nil
	}
	params := make(map[string]string, len(rctx.URLParams.Keys))
	for i, k := range rctx.URLParams.Keys {
		if k == "*" {
			continue
		}
		params[k] = rctx.URLParams.Values[i]
	}
	return params
}

var altParamRe = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)|<([^>]*)>`)

// ChiPattern rewrites :name and <name> parameters into chi's {name}.
func ChiPattern(pattern string) string {
	return altParamRe.ReplaceAllStringFunc(pattern, func(m string) string {
		if m[0] == ':' {
			return "{" + m[1:] + "}"
		}
		return "{" + m[1:len(m)-1] + "}"
	})
}
