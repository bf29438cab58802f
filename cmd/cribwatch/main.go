// Command cribwatch is the main entry point for the cribwatch alert server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haneul-dev/cribwatch/internal/app"
	"github.com/haneul-dev/cribwatch/internal/config"
	"github.com/haneul-dev/cribwatch/internal/observe"
	"github.com/haneul-dev/cribwatch/pkg/provider/audioplayer"
	"github.com/haneul-dev/cribwatch/pkg/provider/audioplayer/mock"
	otoplayer "github.com/haneul-dev/cribwatch/pkg/provider/audioplayer/oto"
	"github.com/haneul-dev/cribwatch/pkg/provider/objectstore/gcs"
	"github.com/haneul-dev/cribwatch/pkg/provider/speech"
	googlespeech "github.com/haneul-dev/cribwatch/pkg/provider/speech/google"
	oaispeech "github.com/haneul-dev/cribwatch/pkg/provider/speech/openai"
	"github.com/haneul-dev/cribwatch/pkg/provider/vision"
	"github.com/haneul-dev/cribwatch/pkg/provider/vision/gemini"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "cribwatch: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "cribwatch: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel := new(slog.LevelVar)
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("cribwatch starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownOTel, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(ctx, reg, cfg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(ctx, cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	defer closeProviders(providers)

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot-reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		if d := config.Diff(old, new); d.LogLevelChanged {
			logLevel.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level updated", "log_level", d.NewLogLevel)
		}
		application.ApplyConfig(old, new)
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	printStartupSummary(cfg)
	slog.Info("server ready, press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(ctx context.Context, reg *config.Registry, cfg *config.Config) {
	// ── Vision ────────────────────────────────────────────────────────────────

	reg.RegisterVision("gemini", func(entry config.ProviderEntry) (vision.Provider, error) {
		var opts []gemini.Option
		if entry.Model != "" {
			opts = append(opts, gemini.WithModel(entry.Model))
		}
		return gemini.New(ctx, cfg.Storage.ProjectID, cfg.Storage.Location, opts...)
	})

	// ── Speech ────────────────────────────────────────────────────────────────

	reg.RegisterSpeech("google", func(entry config.ProviderEntry) (speech.Provider, error) {
		var opts []googlespeech.Option
		if entry.CredentialsFile != "" {
			opts = append(opts, googlespeech.WithCredentialsFile(entry.CredentialsFile))
		}
		if lang := optString(entry.Options, "language_code"); lang != "" {
			opts = append(opts, googlespeech.WithLanguageCode(lang))
		}
		return googlespeech.New(ctx, opts...)
	})

	reg.RegisterSpeech("openai", func(entry config.ProviderEntry) (speech.Provider, error) {
		var opts []oaispeech.Option
		if entry.Model != "" {
			opts = append(opts, oaispeech.WithModel(entry.Model))
		}
		if baseURL := optString(entry.Options, "base_url"); baseURL != "" {
			opts = append(opts, oaispeech.WithBaseURL(baseURL))
		}
		return oaispeech.New(entry.APIKey, opts...)
	})

	// ── Player ────────────────────────────────────────────────────────────────

	reg.RegisterPlayer("oto", func(config.ProviderEntry) (audioplayer.Player, error) {
		return otoplayer.New(), nil
	})

	// mock discards audio; useful on headless hosts and in demos.
	reg.RegisterPlayer("mock", func(config.ProviderEntry) (audioplayer.Player, error) {
		return &mock.Player{}, nil
	})
}

// buildProviders instantiates the object store plus all providers named in
// cfg using the registry and returns them in an [app.Providers] struct.
func buildProviders(ctx context.Context, cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	var storeOpts []gcs.Option
	if cfg.Storage.ExpectedRegion != "" {
		storeOpts = append(storeOpts, gcs.WithExpectedRegion(cfg.Storage.ExpectedRegion))
	}
	if credFile := cfg.Providers.Vision.CredentialsFile; credFile != "" {
		storeOpts = append(storeOpts, gcs.WithCredentialsFile(credFile))
	}
	store, err := gcs.New(ctx, cfg.Storage.ProjectID, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("create object store: %w", err)
	}
	ps.Store = store

	if name := cfg.Providers.Vision.Name; name != "" {
		p, err := reg.CreateVision(cfg.Providers.Vision)
		if err != nil {
			return nil, fmt.Errorf("create vision provider %q: %w", name, err)
		}
		ps.Vision = p
		slog.Info("provider created", "kind", "vision", "name", name)
	}

	if name := cfg.Providers.Speech.Name; name != "" {
		p, err := reg.CreateSpeech(cfg.Providers.Speech)
		if err != nil {
			return nil, fmt.Errorf("create speech provider %q: %w", name, err)
		}
		ps.Speech = p
		slog.Info("provider created", "kind", "speech", "name", name)
	}

	if name := cfg.Providers.Player.Name; name != "" {
		p, err := reg.CreatePlayer(cfg.Providers.Player)
		if err != nil {
			return nil, fmt.Errorf("create player %q: %w", name, err)
		}
		ps.Player = p
		slog.Info("provider created", "kind", "player", "name", name)
	}

	return ps, nil
}

func closeProviders(ps *app.Providers) {
	for name, c := range map[string]interface{ Close() error }{
		"store":  ps.Store,
		"vision": ps.Vision,
		"speech": ps.Speech,
		"player": ps.Player,
	} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			slog.Warn("provider close error", "provider", name, "err", err)
		}
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        cribwatch — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Vision", cfg.Providers.Vision.Name, cfg.Providers.Vision.Model)
	printProvider("Speech", cfg.Providers.Speech.Name, cfg.Providers.Speech.Model)
	printProvider("Player", cfg.Providers.Player.Name, "")
	fmt.Printf("║  Bucket          : %-19s ║\n", trunc(cfg.Storage.Bucket))
	fmt.Printf("║  Location        : %-19s ║\n", trunc(cfg.Storage.Location))
	if cfg.History.PostgresDSN != "" {
		fmt.Printf("║  History         : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  History         : %-19s ║\n", "in-memory")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, trunc(value))
}

func trunc(v string) string {
	if len(v) > 19 {
		return v[:16] + "…"
	}
	return v
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
