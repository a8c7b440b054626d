package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/inkwell/hostkit/pkg/observability"
	"github.com/inkwell/hostkit/pkg/resolver"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Plugin discovery configuration
	Plugins PluginsConfig

	// Marketplace catalog configuration
	Catalog CatalogConfig

	// Resolution cache configuration
	Cache CacheConfig

	// Resolver tuning
	Resolver ResolverConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// PluginsConfig holds plugin discovery settings
type PluginsConfig struct {
	// Dirs are the directories scanned for installed plugins, each plugin
	// in its own subdirectory with a plugin.yaml manifest.
	Dirs []string

	// Watch enables filesystem watching for automatic rescans.
	Watch bool
}

// CatalogConfig holds the local catalog mirror and remote registry settings
type CatalogConfig struct {
	// Path is the SQLite database file; ":memory:" keeps the catalog
	// ephemeral.
	Path string

	// RegistryURL is the remote registry; empty disables syncing.
	RegistryURL string

	// SyncSchedule is a 5-field cron expression for periodic syncs.
	SyncSchedule string

	// SyncOnStart forces a full sync during startup.
	SyncOnStart bool

	// ClientTimeout bounds a single registry round-trip.
	ClientTimeout time.Duration
}

// CacheConfig holds resolution cache settings
type CacheConfig struct {
	// Type selects the backend: "memory" or "redis".
	Type string

	// RedisURL is required when Type is "redis".
	RedisURL string

	// TTL bounds how long a resolution result may be served.
	TTL time.Duration

	// Size is the entry cap for the memory backend.
	Size int
}

// ResolverConfig holds resolver tuning knobs
type ResolverConfig struct {
	ProviderTimeout time.Duration
	MaxTreeDepth    int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("HOSTKIT_HOST", "0.0.0.0"),
			Port:            getEnv("HOSTKIT_PORT", "8080"),
			ReadTimeout:     getEnvDuration("HOSTKIT_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("HOSTKIT_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("HOSTKIT_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("HOSTKIT_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Plugins: PluginsConfig{
			Dirs:  getEnvList("HOSTKIT_PLUGIN_DIRS", defaultPluginDirs()),
			Watch: getEnvBool("HOSTKIT_PLUGIN_WATCH", true),
		},
		Catalog: CatalogConfig{
			Path:          getEnv("HOSTKIT_CATALOG_PATH", defaultCatalogPath()),
			RegistryURL:   getEnv("HOSTKIT_REGISTRY_URL", ""),
			SyncSchedule:  getEnv("HOSTKIT_SYNC_SCHEDULE", "*/30 * * * *"),
			SyncOnStart:   getEnvBool("HOSTKIT_SYNC_ON_START", true),
			ClientTimeout: getEnvDuration("HOSTKIT_REGISTRY_TIMEOUT", 15*time.Second),
		},
		Cache: CacheConfig{
			Type:     getEnv("HOSTKIT_CACHE_TYPE", "memory"),
			RedisURL: getEnv("HOSTKIT_REDIS_URL", ""),
			TTL:      getEnvDuration("HOSTKIT_CACHE_TTL", 5*time.Minute),
			Size:     getEnvInt("HOSTKIT_CACHE_SIZE", 256),
		},
		Resolver: ResolverConfig{
			ProviderTimeout: getEnvDuration("HOSTKIT_PROVIDER_TIMEOUT", resolver.DefaultProviderTimeout),
			MaxTreeDepth:    getEnvInt("HOSTKIT_MAX_TREE_DEPTH", resolver.DefaultMaxTreeDepth),
		},
		Observability: ObservabilityConfig{
			LogLevel:       observability.ParseLogLevel(getEnv("HOSTKIT_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("HOSTKIT_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistencies
func (c *Config) Validate() error {
	if len(c.Plugins.Dirs) == 0 {
		return fmt.Errorf("at least one plugin directory is required")
	}
	switch c.Cache.Type {
	case "memory":
	case "redis":
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("HOSTKIT_REDIS_URL is required when cache type is redis")
		}
	default:
		return fmt.Errorf("unknown cache type %q", c.Cache.Type)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}
	if c.Resolver.ProviderTimeout <= 0 {
		return fmt.Errorf("provider timeout must be positive")
	}
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("invalid server port %q", c.Server.Port)
	}
	return nil
}

// Addr returns the host:port the API server binds to.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

func defaultPluginDirs() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return []string{"plugins"}
	}
	return []string{filepath.Join(home, ".hostkit", "plugins")}
}

func defaultCatalogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "catalog.db"
	}
	return filepath.Join(home, ".hostkit", "catalog.db")
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList returns a colon-separated environment variable as a list
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, string(os.PathListSeparator)) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
