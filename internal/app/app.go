// Package app wires the LinguaWorlds subsystems into a running application:
// configuration in, a conversation-ready scene manager plus the metrics/health
// listener out.
//
// New creates and connects everything synchronously, Run serves until the
// context is cancelled, and Shutdown tears down in reverse order. Inject test
// doubles via the functional options; anything not injected is built from the
// config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/linguaworlds/linguaworlds/internal/backend"
	"github.com/linguaworlds/linguaworlds/internal/config"
	"github.com/linguaworlds/linguaworlds/internal/glossary"
	"github.com/linguaworlds/linguaworlds/internal/health"
	"github.com/linguaworlds/linguaworlds/internal/observe"
	"github.com/linguaworlds/linguaworlds/internal/progression"
	"github.com/linguaworlds/linguaworlds/internal/resilience"
	"github.com/linguaworlds/linguaworlds/internal/scene"
	"github.com/linguaworlds/linguaworlds/internal/store"
	"github.com/linguaworlds/linguaworlds/internal/voice"
	"github.com/linguaworlds/linguaworlds/pkg/audio"
)

// App owns all subsystem lifetimes.
type App struct {
	cfg    *config.Config
	userID string

	device audio.CaptureDevice
	player audio.Player

	stateStore store.StateStore
	client     *backend.Client
	conv       backend.Conversation
	mirror     backend.ProgressMirror
	metrics    *observe.Metrics
	breaker    *resilience.Breaker

	voice    *voice.Manager
	glossary *glossary.Manager
	progress *progression.System
	scenes   *scene.Manager

	// closers run in reverse order during Shutdown.
	closers []func(context.Context) error
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithAudio injects the capture device and player. Defaults to the no-op
// implementations, which degrade recording and playback gracefully.
func WithAudio(device audio.CaptureDevice, player audio.Player) Option {
	return func(a *App) {
		a.device = device
		a.player = player
	}
}

// WithStateStore injects a state store instead of building one from config.
func WithStateStore(st store.StateStore) Option {
	return func(a *App) { a.stateStore = st }
}

// WithBackend injects the conversation backend and progress mirror instead of
// constructing the HTTP client from config. mirror may be nil.
func WithBackend(conv backend.Conversation, mirror backend.ProgressMirror) Option {
	return func(a *App) {
		a.conv = conv
		a.mirror = mirror
	}
}

// New wires all subsystems from cfg.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:    cfg,
		userID: cfg.Backend.UserID,
		device: audio.NopDevice{},
		player: audio.NopPlayer{},
	}
	for _, o := range opts {
		o(a)
	}
	if a.userID == "" {
		a.userID = uuid.NewString()
		slog.Info("no user id configured, generated one", "user_id", a.userID)
	}

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	a.initBackend()
	if err := a.initObserve(ctx); err != nil {
		return nil, fmt.Errorf("app: init observability: %w", err)
	}
	a.initVoice()
	if err := a.initLearnerState(); err != nil {
		return nil, err
	}
	if err := a.initScenes(); err != nil {
		return nil, fmt.Errorf("app: init scenes: %w", err)
	}

	slog.Info("application wired",
		"storage", cfg.Storage.Driver,
		"backend", cfg.Backend.BaseURL,
		"languages", len(cfg.Languages),
	)
	return a, nil
}

// initStore builds the state store selected by config, unless one was
// injected.
func (a *App) initStore(ctx context.Context) error {
	if a.stateStore != nil {
		return nil
	}
	switch a.cfg.Storage.Driver {
	case config.StorageMemory:
		a.stateStore = store.NewMemStore()
	case config.StorageFile:
		fs, err := store.NewFileStore(a.cfg.Storage.Path)
		if err != nil {
			return err
		}
		a.stateStore = fs
	case config.StoragePostgres:
		ps, err := store.NewPostgresStore(ctx, a.cfg.Storage.PostgresDSN)
		if err != nil {
			return err
		}
		a.stateStore = ps
		a.addCloser(func(context.Context) error {
			ps.Close()
			return nil
		})
	default:
		return fmt.Errorf("unknown storage driver %q", a.cfg.Storage.Driver)
	}
	return nil
}

// initBackend builds the HTTP client unless a backend was injected.
func (a *App) initBackend() {
	if a.conv != nil {
		return
	}
	a.client = backend.NewClient(a.cfg.Backend.BaseURL,
		backend.WithTimeout(a.cfg.Backend.Timeout))
	a.conv = a.client
	a.mirror = a.client
}

// initObserve sets up the OTel metrics SDK with its Prometheus exporter.
func (a *App) initObserve(ctx context.Context) error {
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		return err
	}
	a.addCloser(shutdown)

	m, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}
	a.metrics = m
	return nil
}

func (a *App) initVoice() {
	a.breaker = resilience.New(resilience.Config{Name: "backend"})
	a.voice = voice.NewManager(voice.Config{
		Device:       a.device,
		Player:       a.player,
		Backend:      a.conv,
		Metrics:      a.metrics,
		CacheSize:    a.cfg.Voice.CacheSize,
		MinRecording: a.cfg.Voice.MinRecordingTime,
		MaxRecording: a.cfg.Voice.MaxRecordingTime,
		Breaker:      a.breaker,
	})
	a.addCloser(func(context.Context) error { return a.voice.Close() })
}

func (a *App) initLearnerState() error {
	var gOpts []glossary.Option
	var pOpts []progression.Option
	if a.mirror != nil {
		gOpts = append(gOpts, glossary.WithMirror(a.mirror))
		pOpts = append(pOpts, progression.WithMirror(a.mirror, a.userID))
	}

	g, err := glossary.NewManager(a.stateStore, gOpts...)
	if err != nil {
		return fmt.Errorf("app: init glossary: %w", err)
	}
	a.glossary = g

	p, err := progression.NewSystem(a.stateStore, pOpts...)
	if err != nil {
		return fmt.Errorf("app: init progression: %w", err)
	}
	a.progress = p
	return nil
}

func (a *App) initScenes() error {
	scenes, err := scene.NewManager(scene.Config{
		Catalog:  a.cfg,
		Voice:    a.voice,
		Backend:  a.conv,
		Glossary: a.glossary,
		Progress: a.progress,
		Store:    a.stateStore,
		Metrics:  a.metrics,
		UserID:   a.userID,
	})
	if err != nil {
		return err
	}
	a.scenes = scenes
	return nil
}

// Scenes returns the top-level scene manager.
func (a *App) Scenes() *scene.Manager { return a.scenes }

// Voice returns the voice manager.
func (a *App) Voice() *voice.Manager { return a.voice }

// Glossary returns the glossary manager.
func (a *App) Glossary() *glossary.Manager { return a.glossary }

// Progress returns the progression system.
func (a *App) Progress() *progression.System { return a.progress }

// Run serves the metrics/health listener (when configured) until ctx is
// cancelled. Returns nil on a clean, signal-driven exit.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if addr := a.cfg.Server.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		health.New(
			health.StoreCheck(a.stateStore),
			health.BackendCheck(a.breaker),
		).Register(mux)
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			slog.Info("metrics listener started", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	} else {
		g.Go(func() error {
			<-ctx.Done()
			return nil
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown tears subsystems down in reverse initialisation order.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) addCloser(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}
