package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"vision": {"gemini"},
	"speech": {"google", "openai"},
	"player": {"oto", "mock"},
}

// Load reads the YAML configuration file at path, applies environment
// overrides, and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment overrides,
// and validates the result. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyEnvOverrides(cfg)
	normalize(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides replaces storage settings with their CRIBWATCH_*
// environment values when set. Environment wins over the file so deployments
// can share one config across projects.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CRIBWATCH_BUCKET"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := os.Getenv("CRIBWATCH_PROJECT"); v != "" {
		cfg.Storage.ProjectID = v
	}
	if v := os.Getenv("CRIBWATCH_LOCATION"); v != "" {
		cfg.Storage.Location = v
	}
}

// normalize cleans user-supplied values that have a canonical form.
func normalize(cfg *Config) {
	cfg.Storage.Bucket = strings.TrimRight(strings.TrimPrefix(cfg.Storage.Bucket, "gs://"), "/")
	cfg.Storage.Prefix = strings.Trim(cfg.Storage.Prefix, "/")
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxUploadMB < 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_mb %d must not be negative", cfg.Server.MaxUploadMB))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	// Storage: the pipeline cannot run without a destination bucket and a
	// project for the model endpoint.
	if cfg.Storage.Bucket == "" {
		errs = append(errs, errors.New("storage.bucket is required (or set CRIBWATCH_BUCKET)"))
	}
	if cfg.Storage.ProjectID == "" {
		errs = append(errs, errors.New("storage.project_id is required (or set CRIBWATCH_PROJECT)"))
	}
	if cfg.Storage.Location == "" {
		errs = append(errs, errors.New("storage.location is required (or set CRIBWATCH_LOCATION)"))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("vision", cfg.Providers.Vision.Name)
	validateProviderName("speech", cfg.Providers.Speech.Name)
	validateProviderName("player", cfg.Providers.Player.Name)

	if cfg.Providers.Vision.Name == "" {
		errs = append(errs, errors.New("providers.vision.name is required; uploads cannot be analyzed without a vision provider"))
	}
	if cfg.Providers.Speech.Name == "" {
		slog.Warn("no speech provider configured; alerts will be recorded but not voiced")
	}

	// Alert
	if cfg.Alert.DrainTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("alert.drain_timeout_seconds %d must not be negative", cfg.Alert.DrainTimeoutSeconds))
	}

	// History
	if cfg.History.RecentLimit < 0 {
		errs = append(errs, fmt.Errorf("history.recent_limit %d must not be negative", cfg.History.RecentLimit))
	}
	if cfg.History.PostgresDSN == "" {
		slog.Warn("history.postgres_dsn is empty; analysis history will not survive restarts")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
