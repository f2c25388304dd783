// Command sample runs a gateway for a small users API described by an
// embedded OpenAPI contract.
//
// Run:
//
//	go run ./cmd/sample
//	go run ./cmd/sample -config gateway.yaml
//
// Then explore:
//
//	GET    http://localhost:8080/docs              documentation page
//	GET    http://localhost:8080/openapi.json      contract
//	GET    http://localhost:8080/v1/health         health check
//	GET    http://localhost:8080/v1/users          list users
//	POST   http://localhost:8080/v1/users          create user (bearer token, users:write)
//	GET    http://localhost:8080/v1/users/{id}     get user
//	DELETE http://localhost:8080/v1/users/{id}     delete user (bearer token, users:write)
//	GET    http://localhost:8080/metrics           Prometheus metrics
package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bjaus/gateway"
	"github.com/bjaus/gateway/bearer"
	"github.com/bjaus/gateway/config"
	"github.com/bjaus/gateway/incident"
)

//go:embed openapi.yaml
var embeddedContract []byte

func main() {
	configPath := flag.String("config", "", "Path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, closer, err := newLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer closer.Close() //nolint:errcheck // best-effort on exit
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	contract, err := loadContract(cfg.Contract)
	if err != nil {
		return err
	}

	env, err := gateway.ParseEnvironment(cfg.Environment)
	if err != nil {
		return err
	}

	opts := []gateway.Option{
		gateway.WithLogger(logger),
		gateway.WithEnvironment(env),
		gateway.WithBodyLimit(cfg.Server.BodyLimit),
	}

	reporter, closeReporter, err := newReporter(ctx, cfg.Logger, logger)
	if err != nil {
		return err
	}
	defer closeReporter() //nolint:errcheck // best-effort on exit
	opts = append(opts, gateway.WithReporter(reporter))

	if cfg.Security.JWT.Enabled() {
		v, err := bearer.New(bearer.Config{
			Secret:   []byte(cfg.Security.JWT.Secret),
			Issuer:   cfg.Security.JWT.Issuer,
			Audience: cfg.Security.JWT.Audience,
		})
		if err != nil {
			return err
		}
		opts = append(opts, gateway.WithSecurity(cfg.Security.JWT.Scheme, v))
	}

	if cfg.Docs.Path != "" {
		opts = append(opts, gateway.WithDocs(cfg.Docs.Path, cfg.Docs.SpecPath))
	}
	if cfg.RateLimit.Rate > 0 {
		opts = append(opts, gateway.WithRateLimit(gateway.RateLimitConfig{
			Rate:  cfg.RateLimit.Rate,
			Burst: cfg.RateLimit.Burst,
		}))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := gateway.NewMetrics(reg)
	opts = append(opts, gateway.WithMetrics(metrics))

	gw := gateway.New(contract, opts...)
	gw.Use(gateway.Logger(logger), metrics.Middleware(), gateway.SecureHeaders())
	if len(cfg.CORS.AllowOrigins) > 0 {
		gw.Use(gw.CORS(gateway.CORSConfig{
			AllowOrigins:     cfg.CORS.AllowOrigins,
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           cfg.CORS.MaxAge,
		}))
	}
	if cfg.Server.RequestTimeout > 0 {
		gw.Use(gateway.Timeout(cfg.Server.RequestTimeout))
	}
	registerHandlers(gw, newUserStore())

	if _, err := gw.Build(); err != nil {
		return err
	}

	mux := http.NewServeMux()
	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	mux.Handle("/", gw)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           gateway.Recovery(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	sup := gateway.NewSupervisor(logger)
	sup.Go("http", func(ctx context.Context) error {
		logger.InfoContext(ctx, "starting server", "addr", srv.Addr)
		return gateway.Serve(ctx, srv)
	})
	return sup.Run(ctx)
}

func loadContract(cfg config.ContractConfig) (*gateway.Contract, error) {
	overlays := make([][]byte, 0, len(cfg.Overlays))
	for _, path := range cfg.Overlays {
		data, err := os.ReadFile(path) //nolint:gosec // operator-provided path
		if err != nil {
			return nil, fmt.Errorf("reading overlay: %w", err)
		}
		overlays = append(overlays, data)
	}

	if _, err := os.Stat(cfg.Path); err == nil {
		return gateway.LoadContract(cfg.Path, overlays...)
	}
	return gateway.ParseContract(embeddedContract, overlays...)
}

// newReporter always logs incidents. A configured error reporting target
// also persists them; the returned func closes that store.
func newReporter(ctx context.Context, cfg config.LoggerConfig, logger *slog.Logger) (gateway.Reporter, func() error, error) {
	logReporter := gateway.LogReporter(logger)
	if cfg.ErrorReportingTarget == "" {
		return logReporter, func() error { return nil }, nil
	}
	store, err := incident.Open(ctx, cfg.ErrorReportingTarget)
	if err != nil {
		return nil, nil, fmt.Errorf("opening incident store: %w", err)
	}
	return incident.Multi{logReporter, store}, store.Close, nil
}
