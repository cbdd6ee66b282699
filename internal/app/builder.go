package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/dsiportal/placement-sync/internal/api"
	v1 "github.com/dsiportal/placement-sync/internal/api/v1"
	"github.com/dsiportal/placement-sync/internal/assets"
	"github.com/dsiportal/placement-sync/internal/config"
	"github.com/dsiportal/placement-sync/internal/connection"
	"github.com/dsiportal/placement-sync/internal/notify"
	"github.com/dsiportal/placement-sync/internal/portal"
	"github.com/dsiportal/placement-sync/internal/push"
	"github.com/dsiportal/placement-sync/internal/remote"
	"github.com/dsiportal/placement-sync/internal/session"
	"github.com/dsiportal/placement-sync/internal/status"
	psync "github.com/dsiportal/placement-sync/internal/sync"
	"github.com/dsiportal/placement-sync/internal/telemetry"
)

const (
	defaultHTTPAddress    = ":8080"
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second
)

// Option configures the app builder
type Option func(*appConfig) error

// appConfig holds the builder inputs. Component overrides exist mainly for
// testing.
type appConfig struct {
	config *config.Config

	// Optional component overrides
	store        remote.Store
	probe        connection.Probe
	player       notify.TonePlayer
	sessionStore session.Store

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration
}

func baseConfig(opts ...Option) (*appConfig, error) {
	cfg := &appConfig{
		address:        defaultHTTPAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.config == nil {
		cfg.config = config.Default()
	}

	return cfg, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) Option {
	return func(cfg *appConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) Option {
	return func(cfg *appConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares replaces the default HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *appConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithStore injects the remote store instead of building one from the
// backend configuration. The app closes it on Stop.
func WithStore(s remote.Store) Option {
	return func(cfg *appConfig) error {
		cfg.store = s
		return nil
	}
}

// WithProbe injects the connectivity probe
func WithProbe(p connection.Probe) Option {
	return func(cfg *appConfig) error {
		cfg.probe = p
		return nil
	}
}

// WithTonePlayer enables the sound sink
func WithTonePlayer(p notify.TonePlayer) Option {
	return func(cfg *appConfig) error {
		cfg.player = p
		return nil
	}
}

// WithSessionStore injects the session store
func WithSessionStore(s session.Store) Option {
	return func(cfg *appConfig) error {
		cfg.sessionStore = s
		return nil
	}
}

// NewApp builds every component from the configuration. Nothing runs until
// Start is called.
func NewApp(ctx context.Context, opts ...Option) (*App, error) {
	b, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	components := &Components{}
	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			if err := components.close(context.WithoutCancel(ctx)); err != nil {
				slog.Warn("Failed to release partially built components", "error", err)
			}
		}
	}()

	components.Telemetry, err = telemetry.New(ctx, telemetry.WithTelemetryConfig(b.config.Telemetry))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	if err := buildSyncComponents(ctx, b, components); err != nil {
		return nil, fmt.Errorf("failed to build sync components: %w", err)
	}

	if err := buildNotificationComponents(b, components); err != nil {
		return nil, fmt.Errorf("failed to build notification components: %w", err)
	}

	if err := buildSessionComponents(b, components); err != nil {
		return nil, fmt.Errorf("failed to build session components: %w", err)
	}

	if b.config.Assets != nil && b.config.Assets.Enabled {
		components.Assets, err = assets.NewWorker(b.config.Assets)
		if err != nil {
			return nil, fmt.Errorf("failed to build asset worker: %w", err)
		}
	}

	httpServer, err := buildHTTPServer(b, components)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	cleanupNeeded = false
	return &App{
		config:     b.config,
		components: components,
		httpServer: httpServer,
	}, nil
}

// buildSyncComponents builds the remote store, the connection monitor and the
// sync engine
func buildSyncComponents(ctx context.Context, b *appConfig, c *Components) error {
	slog.Info("Initializing sync components", "backend", b.config.Backend.GetType())

	c.Store = b.store
	if c.Store == nil {
		store, err := remote.New(ctx, &b.config.Backend)
		if err != nil {
			return fmt.Errorf("failed to create remote store: %w", err)
		}
		c.Store = store
	}

	c.Monitor = connection.NewMonitor()
	c.Probe = b.probe
	if c.Probe == nil {
		if probeURL := b.config.Network.GetProbeURL(); probeURL != "" {
			c.Probe = connection.NewHTTPProbe(probeURL, b.config.Network.GetProbeInterval())
		} else {
			c.Probe = connection.StaticProbe{}
		}
	}

	syncMetrics, err := telemetry.NewSyncMetrics(c.Telemetry.MeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create sync metrics: %w", err)
	}

	c.Toasts = notify.NewToastStack()
	c.Engine = psync.NewEngine(c.Store, portal.NewState(), b.config.Backend.GetDocumentPath(),
		psync.WithMonitor(c.Monitor),
		psync.WithMessenger(c.Toasts),
		psync.WithSyncConfig(b.config.Sync),
		psync.WithStatusPersistence(status.NewFilePersistence(b.config.Sync.GetStatusDir())),
		psync.WithSyncMetrics(syncMetrics),
		psync.WithTracer(c.Telemetry.Tracer(psync.TracerName)),
	)

	slog.Info("Sync components initialized successfully")
	return nil
}

// buildNotificationComponents builds the push hub, the badge and the
// dispatcher with its sinks, and links them to the engine
func buildNotificationComponents(b *appConfig, c *Components) error {
	slog.Info("Initializing notification components")
	notifications := b.config.Notifications

	c.Hub = push.NewHub(
		push.WithVersion(b.config.Assets.GetVersion()),
		push.WithPushConfig(notifications.GetPush()),
	)

	metrics, err := telemetry.NewNotificationMetrics(c.Telemetry.MeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create notification metrics: %w", err)
	}

	badge := notify.NewBadge(push.DefaultTitle)
	var dispatcher *notify.Dispatcher
	sinks := []notify.Sink{
		notify.ToastSink{Stack: c.Toasts, Duration: notifications.GetRealtimeToastDuration()},
		notify.BrowserSink{
			Notifier:  c.Hub,
			AutoClose: notifications.GetBrowserAutoClose(),
			Icon:      notifications.GetPush().Icon,
			Lookup:    func(id portal.ID) (portal.Notification, bool) { return dispatcher.Lookup(id) },
		},
		notify.PushSink{Relay: c.Hub},
	}
	if b.player != nil {
		sinks = append(sinks, notify.SoundSink{Player: b.player})
	}

	dispatcher = notify.NewDispatcher(c.Engine,
		notify.WithNotificationsConfig(notifications),
		notify.WithSinks(sinks...),
		notify.WithBadge(badge),
		notify.WithMessenger(c.Toasts),
		notify.WithMetrics(metrics),
		notify.WithTracer(c.Telemetry.Tracer(notify.TracerName)),
	)
	c.Dispatcher = dispatcher

	c.Engine.OnReplace(dispatcher.ObserveSnapshot)
	c.Engine.OnReplace(c.Hub.ObserveReplacement)

	badge.OnChange(func(count int, title string) {
		c.Hub.PostMessage(push.Message{Type: push.TypeBadge, Badge: &push.BadgeState{Count: count, Title: title}})
	})
	c.Toasts.OnChange(func(toasts []notify.Toast) {
		c.Hub.PostMessage(push.Message{Type: push.TypeToasts, Toasts: toasts})
	})
	c.Hub.OnConnect(func(id string) {
		c.Hub.SendTo(id, push.Message{Type: push.TypeBadge, Badge: &push.BadgeState{Count: badge.Count(), Title: badge.Title()}})
		c.Hub.SendTo(id, push.Message{Type: push.TypeToasts, Toasts: c.Toasts.Toasts()})
	})

	slog.Info("Notification components initialized successfully")
	return nil
}

// buildSessionComponents builds the session store and manager
func buildSessionComponents(b *appConfig, c *Components) error {
	store := b.sessionStore
	if store == nil {
		var err error
		store, err = session.NewStore(b.config.Session)
		if err != nil {
			return fmt.Errorf("failed to create session store: %w", err)
		}
	}

	c.Sessions = session.NewManager(c.Engine, store,
		session.WithSeeder(c.Dispatcher),
		session.WithDefaultAdmin(b.config.Session.GetDefaultAdmin()),
	)
	return nil
}

// buildHTTPServer builds the HTTP server with router and middleware
func buildHTTPServer(b *appConfig, c *Components) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RealIP,
			skipUpgrades(middleware.Timeout(b.requestTimeout)),
			api.LoggingMiddleware,
		}
	}

	metricsMiddleware, err := telemetry.MetricsMiddleware(c.Telemetry.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
	}
	if metricsMiddleware != nil {
		b.middlewares = append([]func(http.Handler) http.Handler{
			telemetry.TracingMiddleware(c.Telemetry.TracerProvider()),
			metricsMiddleware,
		}, b.middlewares...)
	}

	serverOpts := []api.ServerOption{
		api.WithMiddlewares(b.middlewares...),
		api.WithMetricsHandler(c.Telemetry.MetricsHandler()),
	}
	if c.Assets != nil {
		serverOpts = append(serverOpts, api.WithAssetsHandler(c.Assets))
	}

	router := api.NewServer(v1.Services{
		Sync:          c.Engine,
		Connection:    c.Monitor,
		Notifications: c.Dispatcher,
		Sessions:      c.Sessions,
		Push:          c.Hub,
	}, serverOpts...)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}

// skipUpgrades applies mw to every request except websocket upgrades, which
// outlive any request timeout
func skipUpgrades(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		wrapped := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if websocket.IsWebSocketUpgrade(r) {
				next.ServeHTTP(w, r)
				return
			}
			wrapped.ServeHTTP(w, r)
		})
	}
}
