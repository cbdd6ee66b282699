package config

import (
	"fmt"
	"net/url"
	"time"
)

// GetType returns the backend type, using memory if not specified
func (b *BackendConfig) GetType() string {
	if b == nil || b.Type == "" {
		return BackendMemory
	}
	return b.Type
}

// GetDocumentPath returns the document path, using the default if not specified
func (b *BackendConfig) GetDocumentPath() string {
	if b == nil || b.DocumentPath == "" {
		return DefaultDocumentPath
	}
	return b.DocumentPath
}

// GetDir returns the file store directory
func (f *FileBackendConfig) GetDir() string {
	if f == nil || f.Dir == "" {
		return DefaultFileDir
	}
	return f.Dir
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from PLACEMENT_SYNC_DATABASE_PASSWORD environment variable
func (p *PostgresConfig) GetPassword() (string, error) {
	password, err := readSecret(p.PasswordFile, EnvPrefix+"_DATABASE_PASSWORD")
	if err != nil {
		return "", err
	}
	if password == "" {
		return "", fmt.Errorf(
			"no database password configured: set passwordFile or %s_DATABASE_PASSWORD environment variable", EnvPrefix,
		)
	}
	return password, nil
}

// GetConnectionString builds a PostgreSQL connection string.
// The password is URL-escaped to handle special characters safely.
func (p *PostgresConfig) GetConnectionString() (string, error) {
	password, err := p.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := p.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	port := p.Port
	if port == 0 {
		port = 5432
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(p.User),
		url.QueryEscape(password),
		p.Host,
		port,
		p.Database,
		sslMode,
	), nil
}

// GetPassword returns the Redis password from PasswordFile or the
// PLACEMENT_SYNC_REDIS_PASSWORD environment variable. An empty password is
// allowed.
func (r *RedisConfig) GetPassword() (string, error) {
	return readSecret(r.PasswordFile, EnvPrefix+"_REDIS_PASSWORD")
}

// GetReadyTimeout returns the backend readiness bound
func (s *SyncConfig) GetReadyTimeout() time.Duration {
	if s == nil {
		return DefaultReadyTimeout
	}
	return durationOr(s.ReadyTimeout, DefaultReadyTimeout)
}

// GetReconnectDelay returns the delay before re-arming the subscription
func (s *SyncConfig) GetReconnectDelay() time.Duration {
	if s == nil {
		return DefaultReconnectDelay
	}
	return durationOr(s.ReconnectDelay, DefaultReconnectDelay)
}

// GetResubscribeMaxElapsed returns the retry budget of a re-arm
func (s *SyncConfig) GetResubscribeMaxElapsed() time.Duration {
	if s == nil {
		return DefaultResubscribeMaxElapsed
	}
	return durationOr(s.ResubscribeMaxElapsed, DefaultResubscribeMaxElapsed)
}

// GetPersistTimeout returns the per-call backend timeout
func (s *SyncConfig) GetPersistTimeout() time.Duration {
	if s == nil {
		return DefaultPersistTimeout
	}
	return durationOr(s.PersistTimeout, DefaultPersistTimeout)
}

// GetStatusDir returns the status directory
func (s *SyncConfig) GetStatusDir() string {
	if s == nil || s.StatusDir == "" {
		return DefaultStatusDir
	}
	return s.StatusDir
}

// GetProbeURL returns the probe URL, empty when probing is disabled
func (n *NetworkConfig) GetProbeURL() string {
	if n == nil {
		return ""
	}
	return n.ProbeURL
}

// GetProbeInterval returns the time between probes
func (n *NetworkConfig) GetProbeInterval() time.Duration {
	if n == nil {
		return DefaultProbeInterval
	}
	return durationOr(n.ProbeInterval, DefaultProbeInterval)
}

// GetLimit returns the feed size limit
func (n *NotificationsConfig) GetLimit() int {
	if n == nil || n.Limit == 0 {
		return DefaultNotificationLimit
	}
	return n.Limit
}

// GetMaxSimultaneousToasts returns the burst policy
func (n *NotificationsConfig) GetMaxSimultaneousToasts() int {
	if n == nil || n.MaxSimultaneousToasts == 0 {
		return DefaultMaxSimultaneousToasts
	}
	return n.MaxSimultaneousToasts
}

// GetRealtimeToastDuration returns how long realtime toasts stay visible
func (n *NotificationsConfig) GetRealtimeToastDuration() time.Duration {
	if n == nil {
		return DefaultRealtimeToastDuration
	}
	return durationOr(n.RealtimeToastDuration, DefaultRealtimeToastDuration)
}

// GetToastDuration returns how long generic toasts stay visible
func (n *NotificationsConfig) GetToastDuration() time.Duration {
	if n == nil {
		return DefaultToastDuration
	}
	return durationOr(n.ToastDuration, DefaultToastDuration)
}

// GetBrowserAutoClose returns when browser notifications close themselves
func (n *NotificationsConfig) GetBrowserAutoClose() time.Duration {
	if n == nil {
		return DefaultBrowserAutoClose
	}
	return durationOr(n.BrowserAutoClose, DefaultBrowserAutoClose)
}

// GetSinkTimeout returns the per fan-out target bound
func (n *NotificationsConfig) GetSinkTimeout() time.Duration {
	if n == nil {
		return DefaultSinkTimeout
	}
	return durationOr(n.SinkTimeout, DefaultSinkTimeout)
}

// GetPush returns the push defaults with empty fields filled in
func (n *NotificationsConfig) GetPush() PushConfig {
	out := PushConfig{}
	if n != nil && n.Push != nil {
		out = *n.Push
	}
	if out.Icon == "" {
		out.Icon = DefaultPushIcon
	}
	if out.Badge == "" {
		out.Badge = out.Icon
	}
	if out.Tag == "" {
		out.Tag = DefaultPushTag
	}
	if out.URL == "" {
		out.URL = DefaultPushURL
	}
	return out
}

// GetStore returns the session store kind, using file if not specified
func (s *SessionConfig) GetStore() string {
	if s == nil || s.Store == "" {
		return SessionStoreFile
	}
	return s.Store
}

// GetFile returns the session file path
func (s *SessionConfig) GetFile() string {
	if s == nil || s.File == "" {
		return DefaultSessionFile
	}
	return s.File
}

// GetKeyringService returns the keyring service name
func (s *SessionConfig) GetKeyringService() string {
	if s == nil || s.KeyringService == "" {
		return DefaultKeyringService
	}
	return s.KeyringService
}

// GetDefaultAdmin returns the built-in admin credentials
func (s *SessionConfig) GetDefaultAdmin() AdminCredentials {
	if s == nil || s.DefaultAdmin == nil {
		return AdminCredentials{Username: DefaultAdminUsername, Password: DefaultAdminPassword}
	}
	return *s.DefaultAdmin
}

// GetUpstream returns the asset origin
func (a *AssetsConfig) GetUpstream() string {
	if a == nil || a.Upstream == "" {
		return DefaultAssetsUpstream
	}
	return a.Upstream
}

// GetVersion returns the cache generation
func (a *AssetsConfig) GetVersion() string {
	if a == nil || a.Version == "" {
		return DefaultAssetsVersion
	}
	return a.Version
}

// GetPrecache returns the install-time asset list
func (a *AssetsConfig) GetPrecache() []string {
	if a == nil || len(a.Precache) == 0 {
		return append([]string(nil), DefaultPrecache...)
	}
	return a.Precache
}

// GetDynamicCacheSize returns the dynamic cache bound
func (a *AssetsConfig) GetDynamicCacheSize() int {
	if a == nil || a.DynamicCacheSize == 0 {
		return DefaultDynamicCacheSize
	}
	return a.DynamicCacheSize
}
