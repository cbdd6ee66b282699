// Package config provides configuration loading and management for the placement sync daemon.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dsiportal/placement-sync/internal/telemetry"
)

// EnvPrefix is the prefix of every environment variable read by the daemon
const EnvPrefix = "PLACEMENT_SYNC"

const (
	// BackendMemory keeps the document in process memory
	BackendMemory = "memory"

	// BackendFile stores the document as a JSON file on the local filesystem
	BackendFile = "file"

	// BackendPostgres stores the document in a PostgreSQL table
	BackendPostgres = "postgres"

	// BackendRedis stores the document in a Redis key
	BackendRedis = "redis"
)

const (
	// SessionStoreFile persists the session reference in a YAML file
	SessionStoreFile = "file"

	// SessionStoreKeyring persists the session reference in the OS keyring
	SessionStoreKeyring = "keyring"
)

// Defaults applied by the Get* accessors
const (
	DefaultDocumentPath          = "placement-portal/data"
	DefaultFileDir               = "./data/documents"
	DefaultReadyTimeout          = 5 * time.Second
	DefaultReconnectDelay        = time.Second
	DefaultResubscribeMaxElapsed = 2 * time.Minute
	DefaultPersistTimeout        = 10 * time.Second
	DefaultStatusDir             = "./data/status"
	DefaultProbeInterval         = 5 * time.Second
	DefaultNotificationLimit     = 20
	DefaultMaxSimultaneousToasts = 1
	DefaultRealtimeToastDuration = 8 * time.Second
	DefaultToastDuration         = 3 * time.Second
	DefaultBrowserAutoClose      = 10 * time.Second
	DefaultSinkTimeout           = 5 * time.Second
	DefaultSessionFile           = "./data/session.yaml"
	DefaultKeyringService        = "placement-sync"
	DefaultAdminUsername         = "admin"
	DefaultAdminPassword         = "admin123"
	DefaultAssetsUpstream        = "http://localhost:3000"
	DefaultAssetsVersion         = "1.1.0"
	DefaultDynamicCacheSize      = 50
	DefaultPushIcon              = "./DSi.png"
	DefaultPushTag               = "job-notification"
	DefaultPushURL               = "./"
)

// DefaultPrecache is the list of assets cached on install when none are configured
var DefaultPrecache = []string{"./", "./index.html", "./styles.css", "./script.js", "./DSi.png", "./manifest.json"}

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks; this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// Backend selects and configures the remote document store
	Backend BackendConfig `yaml:"backend"`

	// Sync tunes the sync engine
	Sync *SyncConfig `yaml:"sync,omitempty"`

	// Network configures connectivity probing
	Network *NetworkConfig `yaml:"network,omitempty"`

	// Notifications tunes notification delivery
	Notifications *NotificationsConfig `yaml:"notifications,omitempty"`

	// Session configures login persistence
	Session *SessionConfig `yaml:"session,omitempty"`

	// Assets configures the offline asset cache in front of the UI
	Assets *AssetsConfig `yaml:"assets,omitempty"`

	// Telemetry configures OpenTelemetry metrics and tracing
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// BackendConfig defines the remote store settings
type BackendConfig struct {
	// Type is one of memory, file, postgres or redis
	// Defaults to memory if not specified
	Type string `yaml:"type,omitempty"`

	// DocumentPath is the path of the portal document inside the store
	DocumentPath string `yaml:"documentPath,omitempty"`

	File     *FileBackendConfig `yaml:"file,omitempty"`
	Postgres *PostgresConfig    `yaml:"postgres,omitempty"`
	Redis    *RedisConfig       `yaml:"redis,omitempty"`
}

// FileBackendConfig defines the file store settings
type FileBackendConfig struct {
	// Dir is the directory documents are stored under
	Dir string `yaml:"dir,omitempty"`
}

// PostgresConfig defines database connection settings
type PostgresConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password
	// The file should contain only the password with optional trailing whitespace
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxConns is the maximum number of pooled connections
	MaxConns int32 `yaml:"maxConns,omitempty"`
}

// RedisConfig defines the Redis store settings
type RedisConfig struct {
	// Address is host:port of the Redis server
	Address string `yaml:"address"`

	// DB is the logical database number
	DB int `yaml:"db,omitempty"`

	// Username is the ACL user, empty for the default user
	Username string `yaml:"username,omitempty"`

	// PasswordFile is the path to a file containing the Redis password
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// KeyPrefix is prepended to every document key and channel
	KeyPrefix string `yaml:"keyPrefix,omitempty"`
}

// SyncConfig defines the sync engine settings
type SyncConfig struct {
	// ReadyTimeout bounds the wait for backend readiness (e.g., "5s")
	ReadyTimeout string `yaml:"readyTimeout,omitempty"`

	// ReconnectDelay is how long to wait after the network returns before
	// re-arming the subscription
	ReconnectDelay string `yaml:"reconnectDelay,omitempty"`

	// ResubscribeMaxElapsed bounds the retries of a failed re-arm
	ResubscribeMaxElapsed string `yaml:"resubscribeMaxElapsed,omitempty"`

	// PersistTimeout bounds every read and write against the backend
	PersistTimeout string `yaml:"persistTimeout,omitempty"`

	// StatusDir is where the sync status file is written
	StatusDir string `yaml:"statusDir,omitempty"`
}

// NetworkConfig defines the connectivity probe
type NetworkConfig struct {
	// ProbeURL is fetched periodically; empty means the network is always online
	ProbeURL string `yaml:"probeURL,omitempty"`

	// ProbeInterval is the time between probes
	ProbeInterval string `yaml:"probeInterval,omitempty"`
}

// NotificationsConfig defines notification delivery settings
type NotificationsConfig struct {
	// Limit is the maximum number of notifications kept in the feed
	Limit int `yaml:"limit,omitempty"`

	// MaxSimultaneousToasts is how many notifications arriving in a single
	// snapshot are surfaced individually. 0 means use the default of 1.
	MaxSimultaneousToasts int `yaml:"maxSimultaneousToasts,omitempty"`

	RealtimeToastDuration string `yaml:"realtimeToastDuration,omitempty"`
	ToastDuration         string `yaml:"toastDuration,omitempty"`
	BrowserAutoClose      string `yaml:"browserAutoClose,omitempty"`

	// SinkTimeout bounds each fan-out target
	SinkTimeout string `yaml:"sinkTimeout,omitempty"`

	// Push holds the defaults merged into every push payload
	Push *PushConfig `yaml:"push,omitempty"`
}

// PushConfig defines push payload defaults
type PushConfig struct {
	Icon  string `yaml:"icon,omitempty"`
	Badge string `yaml:"badge,omitempty"`
	Tag   string `yaml:"tag,omitempty"`
	URL   string `yaml:"url,omitempty"`
}

// SessionConfig defines session persistence settings
type SessionConfig struct {
	// Store is file or keyring
	Store string `yaml:"store,omitempty"`

	// File is the session file used by the file store
	File string `yaml:"file,omitempty"`

	// KeyringService is the service name used by the keyring store
	KeyringService string `yaml:"keyringService,omitempty"`

	// DefaultAdmin is the built-in admin account checked before AppState admins
	DefaultAdmin *AdminCredentials `yaml:"defaultAdmin,omitempty"`
}

// AdminCredentials is a username and password pair
type AdminCredentials struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// AssetsConfig defines the offline asset cache
type AssetsConfig struct {
	// Enabled mounts the asset handler at the server root
	Enabled bool `yaml:"enabled"`

	// Upstream is the origin serving the UI assets
	Upstream string `yaml:"upstream,omitempty"`

	// Version names the cache generation (dsi-static-v<version>)
	Version string `yaml:"version,omitempty"`

	// Precache lists the paths fetched on install
	Precache []string `yaml:"precache,omitempty"`

	// DynamicCacheSize bounds the dynamic cache entry count
	DynamicCacheSize int `yaml:"dynamicCacheSize,omitempty"`
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns a configuration using the in-memory backend and every default
func Default() *Config {
	return &Config{Backend: BackendConfig{Type: BackendMemory}}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	var errs []error

	if err := c.Backend.validate(); err != nil {
		errs = append(errs, fmt.Errorf("backend: %w", err))
	}
	if err := c.Sync.validate(); err != nil {
		errs = append(errs, fmt.Errorf("sync: %w", err))
	}
	if err := c.Network.validate(); err != nil {
		errs = append(errs, fmt.Errorf("network: %w", err))
	}
	if err := c.Notifications.validate(); err != nil {
		errs = append(errs, fmt.Errorf("notifications: %w", err))
	}
	if err := c.Session.validate(); err != nil {
		errs = append(errs, fmt.Errorf("session: %w", err))
	}
	if err := c.Assets.validate(); err != nil {
		errs = append(errs, fmt.Errorf("assets: %w", err))
	}
	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	return errors.Join(errs...)
}

func (b *BackendConfig) validate() error {
	switch b.GetType() {
	case BackendMemory, BackendFile:
		return nil
	case BackendPostgres:
		if b.Postgres == nil {
			return fmt.Errorf("postgres configuration is required for type %s", BackendPostgres)
		}
		if b.Postgres.Host == "" || b.Postgres.User == "" || b.Postgres.Database == "" {
			return fmt.Errorf("postgres.host, postgres.user and postgres.database are required")
		}
		return nil
	case BackendRedis:
		if b.Redis == nil || b.Redis.Address == "" {
			return fmt.Errorf("redis.address is required for type %s", BackendRedis)
		}
		return nil
	default:
		return fmt.Errorf("unsupported type %q", b.Type)
	}
}

func (s *SyncConfig) validate() error {
	if s == nil {
		return nil
	}
	return validateDurations(map[string]string{
		"readyTimeout":          s.ReadyTimeout,
		"reconnectDelay":        s.ReconnectDelay,
		"resubscribeMaxElapsed": s.ResubscribeMaxElapsed,
		"persistTimeout":        s.PersistTimeout,
	})
}

func (n *NetworkConfig) validate() error {
	if n == nil {
		return nil
	}
	if n.ProbeURL != "" {
		if _, err := url.ParseRequestURI(n.ProbeURL); err != nil {
			return fmt.Errorf("probeURL must be a valid URL: %w", err)
		}
	}
	return validateDurations(map[string]string{"probeInterval": n.ProbeInterval})
}

func (n *NotificationsConfig) validate() error {
	if n == nil {
		return nil
	}
	if n.Limit < 0 {
		return fmt.Errorf("limit must not be negative, got %d", n.Limit)
	}
	if n.MaxSimultaneousToasts < 0 {
		return fmt.Errorf("maxSimultaneousToasts must not be negative, got %d", n.MaxSimultaneousToasts)
	}
	return validateDurations(map[string]string{
		"realtimeToastDuration": n.RealtimeToastDuration,
		"toastDuration":         n.ToastDuration,
		"browserAutoClose":      n.BrowserAutoClose,
		"sinkTimeout":           n.SinkTimeout,
	})
}

func (s *SessionConfig) validate() error {
	switch s.GetStore() {
	case SessionStoreFile, SessionStoreKeyring:
	default:
		return fmt.Errorf("unsupported store %q", s.Store)
	}
	if s != nil && s.DefaultAdmin != nil && s.DefaultAdmin.Username == "" {
		return fmt.Errorf("defaultAdmin.username is required when defaultAdmin is set")
	}
	return nil
}

func (a *AssetsConfig) validate() error {
	if a == nil || !a.Enabled {
		return nil
	}
	if _, err := url.ParseRequestURI(a.GetUpstream()); err != nil {
		return fmt.Errorf("upstream must be a valid URL: %w", err)
	}
	if a.DynamicCacheSize < 0 {
		return fmt.Errorf("dynamicCacheSize must not be negative, got %d", a.DynamicCacheSize)
	}
	return nil
}

// validateDurations checks that every non-empty value parses as a duration
func validateDurations(fields map[string]string) error {
	var errs []error
	for name, value := range fields {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			errs = append(errs, fmt.Errorf("%s must be a valid duration (e.g., '5s', '1m'): %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// durationOr parses value, returning def when it is empty or invalid
func durationOr(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

// readSecret returns the trimmed content of file, or the named environment
// variable when file is empty.
func readSecret(file, envVar string) (string, error) {
	if file != "" {
		data, err := os.ReadFile(filepath.Clean(file))
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", file, err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return os.Getenv(envVar), nil
}
