package gateway

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Environment selects logging verbosity and whether incidents are reported.
type Environment string

const (
	Development Environment = "development"
	Test        Environment = "test"
	Production  Environment = "production"
)

// ParseEnvironment accepts development, test, or production.
func ParseEnvironment(s string) (Environment, error) {
	switch e := Environment(s); e {
	case Development, Test, Production:
		return e, nil
	case "":
		return Development, nil
	default:
		return "", fmt.Errorf("unknown environment %q", s)
	}
}

// Gateway serves a Contract. It routes each request to a declared operation,
// runs the request pipeline, and resolves every failure into an error
// payload. It implements http.Handler.
type Gateway struct {
	contract *Contract
	catalog  *Catalog
	resolver *Resolver

	handlers   map[string]*boundHandler
	middleware []Middleware
	verifiers  map[string]Verifier

	sink      ErrorSink
	reporter  Reporter
	logger    *slog.Logger
	env       Environment
	docs      *docsConfig
	bodyLimit int64
	rateLimit *RateLimitConfig
	metrics   *Metrics
	validator Validator
	encoders  []Encoder
	idHeader  string

	once     sync.Once
	handler  http.Handler
	buildErr error

	mu sync.Mutex
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = l
	}
}

// WithEnvironment sets the environment. Defaults to Development.
func WithEnvironment(env Environment) Option {
	return func(g *Gateway) {
		g.env = env
	}
}

// WithSecurity registers the verifier for a security scheme name used in
// the contract's security requirements.
func WithSecurity(scheme string, v Verifier) Option {
	return func(g *Gateway) {
		g.verifiers[scheme] = v
	}
}

// WithErrorSink replaces the default error payload writer.
func WithErrorSink(sink ErrorSink) Option {
	return func(g *Gateway) {
		g.sink = sink
	}
}

// WithReporter sets where incidents for unclassified failures go. Reporting
// only happens in Production.
func WithReporter(r Reporter) Option {
	return func(g *Gateway) {
		g.reporter = r
	}
}

// WithDocs serves an HTML documentation page at path and the contract at
// specPath. A specPath ending in .yaml or .yml is served as YAML.
func WithDocs(path, specPath string) Option {
	return func(g *Gateway) {
		g.docs = &docsConfig{path: path, specPath: specPath}
	}
}

// WithBodyLimit caps request bodies at n bytes. Larger bodies fail with
// PayloadTooLarge.
func WithBodyLimit(n int64) Option {
	return func(g *Gateway) {
		g.bodyLimit = n
	}
}

// WithRateLimit enables per-caller rate limiting after security checks.
func WithRateLimit(cfg RateLimitConfig) Option {
	return func(g *Gateway) {
		g.rateLimit = &cfg
	}
}

// WithMetrics records request and failure metrics.
func WithMetrics(m *Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// WithValidator sets a validator run on every typed request after binding.
func WithValidator(v Validator) Option {
	return func(g *Gateway) {
		g.validator = v
	}
}

// WithEncoder registers an additional response encoder.
func WithEncoder(enc Encoder) Option {
	return func(g *Gateway) {
		g.encoders = append(g.encoders, enc)
	}
}

// WithRequestIDHeader sets the request ID header. Defaults to X-Request-ID.
func WithRequestIDHeader(name string) Option {
	return func(g *Gateway) {
		g.idHeader = name
	}
}

// New creates a Gateway for contract.
func New(contract *Contract, opts ...Option) *Gateway {
	g := &Gateway{
		contract:  contract,
		handlers:  make(map[string]*boundHandler),
		verifiers: make(map[string]Verifier),
		sink:      DefaultErrorSink,
		logger:    slog.Default(),
		env:       Development,
		idHeader:  "X-Request-ID",
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.docs != nil {
		g.docs.title = cmp.Or(contract.Info.Title, "API")
		g.docs.document = contract.Document()
	}
	g.catalog = NewCatalog(contract.Errors)
	g.resolver = NewResolver(g.catalog)
	return g
}

// Use adds middleware. Middleware runs after routing and before the
// pipeline, in the order added.
func (g *Gateway) Use(mw ...Middleware) {
	g.middleware = append(g.middleware, mw...)
}

// Contract returns the served contract.
func (g *Gateway) Contract() *Contract { return g.contract }

// Resolver returns the gateway's error resolver.
func (g *Gateway) Resolver() *Resolver { return g.resolver }

// Pipeline returns the gateway's request pipeline, uncompiled.
func (g *Gateway) Pipeline() *Pipeline {
	sec := &securityCheck{
		global:    g.contract.Security,
		verifiers: g.verifiers,
		metrics:   g.metrics,
	}
	if g.rateLimit != nil {
		sec.limiter = newRateLimiter(*g.rateLimit)
	}
	eh := &errorHandler{
		resolver: g.resolver,
		reporter: g.reporter,
		sink:     g.sink,
		logger:   g.logger,
		env:      g.env,
		metrics:  g.metrics,
	}

	p := &Pipeline{codecs: newCodecRegistry(g.encoders), logger: g.logger}
	p.Append(
		NewStage("bind", g.bind),
		NewStage("docs", g.docs.handle),
		NewStage("switch", g.selectHandler),
		NewStage("request", g.debugRequest),
		NewStage("validate", g.validate),
		NewStage("security", sec.handle),
		NewStage("pre-handler", g.debugPreHandler),
		NewStage("dispatch", g.dispatch),
		NewStage("not-found", notFound),
		eh.stage(),
	)
	p.AppendOutbound(
		OutboundStage{Name: "post-handler", Handle: g.debugPostHandler},
		OutboundStage{Name: "prune", Handle: g.pruneResponse},
		OutboundStage{Name: "response", Handle: g.debugResponse},
	)
	return p
}

// Build compiles the pipeline once and returns the complete handler.
// ServeHTTP calls it on first use; calling it directly surfaces
// configuration errors at startup.
func (g *Gateway) Build() (http.Handler, error) {
	g.once.Do(func() {
		compiled, err := g.Pipeline().Compile()
		if err != nil {
			g.buildErr = err
			return
		}

		h := compiled
		for i := len(g.middleware) - 1; i >= 0; i-- {
			h = g.middleware[i](h)
		}
		g.handler = g.route(h)
	})
	return g.handler, g.buildErr
}

// ServeHTTP implements http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h, err := g.Build()
	if err != nil {
		g.logger.ErrorContext(r.Context(), "gateway pipeline is invalid", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.ServeHTTP(w, r)
}

// route creates the RequestContext and attaches the matched operation
// before anything else runs.
func (g *Gateway) route(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := &RequestContext{
			APIVersion: g.contract.Version(),
			Phase:      PhaseRouting,
		}
		if op, params := g.contract.Match(r.Method, r.URL.EscapedPath()); op != nil {
			rc.Operation = op
			rc.Params = params
			for name, val := range params {
				r.SetPathValue(name, val)
			}
		}
		next.ServeHTTP(w, withRequestContext(r, rc))
	})
}

// ListenAndServe starts an HTTP server on the given address.
// It blocks until the context is cancelled, then shuts down gracefully.
func (g *Gateway) ListenAndServe(ctx context.Context, addr string) error {
	if _, err := g.Build(); err != nil {
		return err
	}
	return Serve(ctx, &http.Server{
		Addr:              addr,
		Handler:           g,
		ReadHeaderTimeout: 10 * time.Second,
	})
}

// Serve runs srv until ctx is cancelled, then shuts it down gracefully.
// A clean shutdown returns nil.
func Serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
