// Package config loads gateway configuration from defaults, a YAML file,
// GATEWAY_* environment variables, and _file secret references.
package config

import "time"

// Config is the complete gateway configuration.
type Config struct {
	Environment string          `yaml:"environment"`
	Server      ServerConfig    `yaml:"server"`
	Contract    ContractConfig  `yaml:"contract"`
	Docs        DocsConfig      `yaml:"docs"`
	Logger      LoggerConfig    `yaml:"logger"`
	Security    SecurityConfig  `yaml:"security"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	Metrics     MetricsConfig   `yaml:"metrics"`
	CORS        CORSConfig      `yaml:"cors"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	BodyLimit    int64         `yaml:"body_limit"`

	// RequestTimeout bounds each request's context. Zero disables it.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// ContractConfig locates the API contract. Overlays are merged onto it in
// order; they hold definitions computed per deployment.
type ContractConfig struct {
	Path     string   `yaml:"path"`
	Overlays []string `yaml:"overlays"`
}

// DocsConfig enables the documentation page. Empty Path disables it.
type DocsConfig struct {
	Path     string `yaml:"path"`
	SpecPath string `yaml:"spec_path"`
}

// LoggerConfig holds log and incident targets.
type LoggerConfig struct {
	Level string `yaml:"level"`

	// File appends JSON log lines to a file.
	File string `yaml:"file"`

	// RemoteLogTarget streams JSON log lines to tcp://host:port or
	// udp://host:port.
	RemoteLogTarget string `yaml:"remote_log_target"`

	// ErrorReportingTarget is where incidents are stored: a sqlite:// or
	// postgres:// URL. Empty logs incidents instead.
	ErrorReportingTarget     string `yaml:"error_reporting_target"`
	ErrorReportingTargetFile string `yaml:"error_reporting_target_file"`
}

// SecurityConfig holds verifier settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig configures the bearer verifier for one security scheme.
type JWTConfig struct {
	Scheme     string `yaml:"scheme"`
	Secret     string `yaml:"secret"`
	SecretFile string `yaml:"secret_file"`
	Issuer     string `yaml:"issuer"`
	Audience   string `yaml:"audience"`
}

// Enabled reports whether a JWT verifier is configured.
func (j JWTConfig) Enabled() bool {
	return j.Secret != "" || j.SecretFile != ""
}

// RateLimitConfig holds per-caller rate limits. Zero Rate disables limiting.
type RateLimitConfig struct {
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// CORSConfig enables cross-origin handling when AllowOrigins is non-empty.
type CORSConfig struct {
	AllowOrigins     []string `yaml:"allow_origins"`
	AllowCredentials bool     `yaml:"allow_credentials"`
	MaxAge           int      `yaml:"max_age"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Environment: "development",
		Server: ServerConfig{
			Addr:           ":8080",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   60 * time.Second,
			BodyLimit:      1 << 20,
			RequestTimeout: 30 * time.Second,
		},
		Contract: ContractConfig{
			Path: "openapi.yaml",
		},
		Logger: LoggerConfig{
			Level: "info",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{Scheme: "bearerAuth"},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
