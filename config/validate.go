package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks required fields and known values. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	switch c.Environment {
	case "development", "test", "production":
	default:
		errs = append(errs, fmt.Errorf("environment must be \"development\", \"test\", or \"production\", got %q", c.Environment))
	}

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.BodyLimit < 0 {
		errs = append(errs, fmt.Errorf("server.body_limit must be >= 0, got %d", c.Server.BodyLimit))
	}

	if c.Server.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.request_timeout must be >= 0, got %s", c.Server.RequestTimeout))
	}

	if c.Contract.Path == "" {
		errs = append(errs, errors.New("contract.path is required"))
	}

	if c.Docs.Path != "" && c.Docs.SpecPath == "" {
		errs = append(errs, errors.New("docs.spec_path is required when docs.path is set"))
	}

	switch strings.ToLower(c.Logger.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logger.level must be debug, info, warn, or error, got %q", c.Logger.Level))
	}

	if t := c.Logger.RemoteLogTarget; t != "" &&
		!strings.HasPrefix(t, "tcp://") && !strings.HasPrefix(t, "udp://") {
		errs = append(errs, fmt.Errorf("logger.remote_log_target must start with tcp:// or udp://, got %q", t))
	}

	if t := c.Logger.ErrorReportingTarget; t != "" && !strings.Contains(t, "://") {
		errs = append(errs, fmt.Errorf("logger.error_reporting_target must be a URL, got %q", t))
	}

	if c.Security.JWT.Enabled() && c.Security.JWT.Scheme == "" {
		errs = append(errs, errors.New("security.jwt.scheme is required when a jwt secret is set"))
	}

	if c.RateLimit.Rate < 0 {
		errs = append(errs, fmt.Errorf("rate_limit.rate must be >= 0, got %v", c.RateLimit.Rate))
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path))
	}

	if c.CORS.MaxAge < 0 {
		errs = append(errs, fmt.Errorf("cors.max_age must be >= 0, got %d", c.CORS.MaxAge))
	}

	return errors.Join(errs...)
}
