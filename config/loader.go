package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources:
//  1. Built-in defaults
//  2. YAML file (explicit path, GATEWAY_CONFIG, ./gateway.yaml)
//  3. GATEWAY_* environment variables
//  4. _file secret references
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if filePath := discoverConfigFile(configPath); filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("GATEWAY_CONFIG"); envPath != "" {
		return envPath
	}
	if _, err := os.Stat("gateway.yaml"); err == nil {
		return "gateway.yaml"
	}
	return ""
}

// loadYAMLFile parses path into cfg. Fields absent from the file keep their
// current values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"GATEWAY_ENVIRONMENT":            &cfg.Environment,
		"GATEWAY_ADDR":                   &cfg.Server.Addr,
		"GATEWAY_CONTRACT":               &cfg.Contract.Path,
		"GATEWAY_DOCS_PATH":              &cfg.Docs.Path,
		"GATEWAY_DOCS_SPEC_PATH":         &cfg.Docs.SpecPath,
		"GATEWAY_LOG_LEVEL":              &cfg.Logger.Level,
		"GATEWAY_LOG_FILE":               &cfg.Logger.File,
		"GATEWAY_REMOTE_LOG_TARGET":      &cfg.Logger.RemoteLogTarget,
		"GATEWAY_ERROR_REPORTING_TARGET": &cfg.Logger.ErrorReportingTarget,
		"GATEWAY_JWT_SECRET":             &cfg.Security.JWT.Secret,
		"GATEWAY_JWT_ISSUER":             &cfg.Security.JWT.Issuer,
		"GATEWAY_JWT_AUDIENCE":           &cfg.Security.JWT.Audience,
	}
	for name, dst := range strs {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("GATEWAY_CONTRACT_OVERLAYS"); v != "" {
		cfg.Contract.Overlays = strings.Split(v, ",")
	}
	if v := os.Getenv("GATEWAY_CORS_ORIGINS"); v != "" {
		cfg.CORS.AllowOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("GATEWAY_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("GATEWAY_REQUEST_TIMEOUT: %w", err)
		}
		cfg.Server.RequestTimeout = d
	}
	if v := os.Getenv("GATEWAY_BODY_LIMIT"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("GATEWAY_BODY_LIMIT: %w", err)
		}
		cfg.Server.BodyLimit = n
	}
	if v := os.Getenv("GATEWAY_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("GATEWAY_RATE_LIMIT: %w", err)
		}
		cfg.RateLimit.Rate = f
	}
	if v := os.Getenv("GATEWAY_METRICS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("GATEWAY_METRICS: %w", err)
		}
		cfg.Metrics.Enabled = b
	}
	return nil
}

// resolveFileReferences fills a value from its _file field when the value
// itself is empty.
func resolveFileReferences(cfg *Config) error {
	refs := []struct {
		name string
		file string
		dst  *string
	}{
		{"security.jwt.secret_file", cfg.Security.JWT.SecretFile, &cfg.Security.JWT.Secret},
		{"logger.error_reporting_target_file", cfg.Logger.ErrorReportingTargetFile, &cfg.Logger.ErrorReportingTarget},
	}
	for _, ref := range refs {
		if ref.file == "" || *ref.dst != "" {
			continue
		}
		val, err := readSecretFile(ref.file)
		if err != nil {
			return fmt.Errorf("%s: %w", ref.name, err)
		}
		*ref.dst = val
	}
	return nil
}

func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
