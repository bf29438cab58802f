// Package app wires all cribwatch subsystems into a running service.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order, draining queued alerts before exit.
//
// For testing, inject substitutes via functional options (WithHistoryStore,
// WithMetrics). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/haneul-dev/cribwatch/internal/alert"
	"github.com/haneul-dev/cribwatch/internal/analysis"
	"github.com/haneul-dev/cribwatch/internal/config"
	"github.com/haneul-dev/cribwatch/internal/health"
	"github.com/haneul-dev/cribwatch/internal/history"
	"github.com/haneul-dev/cribwatch/internal/observe"
	"github.com/haneul-dev/cribwatch/internal/pipeline"
	"github.com/haneul-dev/cribwatch/internal/server"
	"github.com/haneul-dev/cribwatch/pkg/provider/audioplayer"
	"github.com/haneul-dev/cribwatch/pkg/provider/objectstore"
	"github.com/haneul-dev/cribwatch/pkg/provider/speech"
	"github.com/haneul-dev/cribwatch/pkg/provider/vision"
)

// defaultDrainTimeout bounds the alert-queue drain during shutdown when the
// config does not set one.
const defaultDrainTimeout = 30 * time.Second

// Providers holds one interface value per provider slot. Store and Vision
// are required; Speech and Player may be nil, in which case alarms are
// recorded but never voiced. Populated by main.go via the config registry.
type Providers struct {
	Store  objectstore.Store
	Vision vision.Provider
	Speech speech.Provider
	Player audioplayer.Player
}

// App owns all subsystem lifetimes and serves the cribwatch HTTP API.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics

	// Subsystems — initialised in New, torn down in Shutdown.
	hub     *server.Hub
	queue   *alert.Queue
	history history.Store
	srv     *server.Server
	httpSrv *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithHistoryStore injects a history store instead of creating one from config.
func WithHistoryStore(s history.Store) Option {
	return func(a *App) { a.history = s }
}

// WithMetrics injects a metrics bundle instead of using the global provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Store == nil || providers.Vision == nil {
		return nil, errors.New("app: object store and vision providers are required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. History store ─────────────────────────────────────────────────
	if err := a.initHistory(ctx); err != nil {
		return nil, fmt.Errorf("app: init history: %w", err)
	}

	// ── 2. Event hub ─────────────────────────────────────────────────────
	a.hub = server.NewHub()
	a.closers = append(a.closers, a.hub.Close)

	// ── 3. Alert queue + synthesizer ─────────────────────────────────────
	var synth *alert.Synthesizer
	if a.providers.Speech != nil {
		synth = alert.NewSynthesizer(a.providers.Speech, cfg.Alert.ClipDir, a.metrics)
	}
	if a.providers.Player != nil {
		// Closed separately in Shutdown so queued alerts can drain.
		a.queue = alert.NewQueue(a.providers.Player, a.metrics)
	}
	if (synth == nil) != (a.queue == nil) {
		slog.Warn("speech and player must both be configured to voice alerts",
			"speech", a.providers.Speech != nil,
			"player", a.providers.Player != nil,
		)
		synth = nil
		a.queue = nil
	}

	// ── 4. Pipeline ──────────────────────────────────────────────────────
	pl := pipeline.New(pipeline.Deps{
		Store:       a.providers.Store,
		Bucket:      cfg.Storage.Bucket,
		Prefix:      cfg.Storage.Prefix,
		Analyzer:    analysis.NewAnalyzer(a.providers.Vision, a.metrics),
		Synthesizer: synth,
		Queue:       a.queue,
		History:     a.history,
		Notifier:    a.hub,
		Metrics:     a.metrics,
	})

	// ── 5. HTTP server ───────────────────────────────────────────────────
	checks := health.New(
		health.Probe{Name: "object_store", Check: func(ctx context.Context) error {
			_, err := a.providers.Store.ResolveBucket(ctx, cfg.Storage.Bucket)
			return err
		}},
		health.Probe{Name: "history", Check: a.history.Ping},
	)
	a.srv = server.New(server.Deps{
		Pipeline:    pl,
		Hub:         a.hub,
		History:     a.history,
		Health:      checks,
		Metrics:     a.metrics,
		MaxUploadMB: cfg.Server.MaxUploadMB,
		RecentLimit: cfg.History.RecentLimit,
	})
	a.httpSrv = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// initHistory connects the PostgreSQL store, or falls back to memory when no
// DSN is configured.
func (a *App) initHistory(ctx context.Context) error {
	if a.history != nil {
		return nil // injected
	}
	if dsn := a.cfg.History.PostgresDSN; dsn != "" {
		store, err := history.Connect(ctx, dsn)
		if err != nil {
			return err
		}
		a.history = store
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
		slog.Info("history store connected", "backend", "postgres")
		return nil
	}
	a.history = history.NewMemStore()
	slog.Info("history store connected", "backend", "memory")
	return nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP until ctx is cancelled, then stops the listener. Queued
// alerts keep playing until Shutdown drains them.
func (a *App) Run(ctx context.Context) error {
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		slog.Info("http server listening", "addr", a.httpSrv.Addr, "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.httpSrv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	eg.Go(func() error {
		<-egCtx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.httpSrv.Shutdown(stopCtx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
		}
		return egCtx.Err()
	})

	return eg.Wait()
}

// ApplyConfig applies a hot-reloaded config. Only live-adjustable settings
// take effect; anything flagged RequiresRestart is logged and ignored.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.MaxUploadChanged {
		a.srv.SetMaxUploadMB(d.NewMaxUploadMB)
		slog.Info("upload limit updated", "max_upload_mb", d.NewMaxUploadMB)
	}
	if d.RecentLimitChanged {
		a.srv.SetRecentLimit(d.NewRecentLimit)
		slog.Info("history limit updated", "recent_limit", d.NewRecentLimit)
	}
	if d.RequiresRestart {
		slog.Warn("config changes to storage, providers, or listener need a restart to apply")
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears the service down in order: stop accepting uploads, drain
// the alert queue so pending warnings are still spoken, then close the
// remaining subsystems. It respects the context deadline; when ctx expires
// the queue abandons playback and removes leftover clips.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down")

		// Stop the listener first so no new runs start mid-teardown.
		httpCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.httpSrv.Shutdown(httpCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("http server shutdown error", "err", err)
		}

		// Drain queued alerts.
		if a.queue != nil {
			drain := defaultDrainTimeout
			if s := a.cfg.Alert.DrainTimeoutSeconds; s > 0 {
				drain = time.Duration(s) * time.Second
			}
			drainCtx, cancelDrain := context.WithTimeout(ctx, drain)
			defer cancelDrain()
			if err := a.queue.Close(drainCtx); err != nil {
				slog.Warn("alert queue drain incomplete", "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
