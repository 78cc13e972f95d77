package config

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const envPrefix = "POST_LOADER"

// Storage backend identifiers accepted by StorageConfig.
const (
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendS3     = "s3"
)

// ServerConfig holds server-related configurations.
// Note: Fields should be exported (start with uppercase) to be unmarshalled by Viper.
type ServerConfig struct {
	HTTPPort int    `mapstructure:"http_port"`
	GRPCPort int    `mapstructure:"grpc_port"`
	PodID    string `mapstructure:"pod_id"`
}

// LogConfig holds logging-related configurations.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// RemoteConfig describes the backend API the remote loaders talk to.
type RemoteConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	LoginPath      string `mapstructure:"login_path"`
	UsersPath      string `mapstructure:"users_path"`
	PostsPath      string `mapstructure:"posts_path"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// AuthConfig holds credentials for the backend login and the admin endpoints.
type AuthConfig struct {
	Username        string `mapstructure:"username"` // Optional, enables basic auth on the login request
	Password        string `mapstructure:"password"` // Should primarily come from ENV
	TokenTTLSeconds int    `mapstructure:"token_ttl_seconds"`
	AdminAPIKey     string `mapstructure:"admin_api_key"` // Should primarily come from ENV
}

// StorageConfig selects the local cache backends.
type StorageConfig struct {
	UserBackend  string `mapstructure:"user_backend"`  // redis | sqlite
	ImageBackend string `mapstructure:"image_backend"` // s3 | sqlite
	SQLitePath   string `mapstructure:"sqlite_path"`
}

// RedisConfig holds Redis-related configurations.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"` // Optional
	DB       int    `mapstructure:"db"`       // Optional
}

// S3Config holds the object storage settings for the avatar cache.
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// NATSConfig holds NATS-related configurations. An empty URL disables the consumer.
type NATSConfig struct {
	URL               string `mapstructure:"url"`
	ValidationSubject string `mapstructure:"validation_subject"`
}

// CacheConfig holds cache maintenance settings.
type CacheConfig struct {
	Timezone                  string `mapstructure:"timezone"` // IANA name used for calendar-day expiry, "Local" by default
	ValidationIntervalSeconds int    `mapstructure:"validation_interval_seconds"`
}

// AppConfig holds application-specific configurations.
type AppConfig struct {
	ServiceName            string `mapstructure:"service_name"`
	Version                string `mapstructure:"version"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds"`
	FeedConcurrency        int    `mapstructure:"feed_concurrency"`
}

// Config holds all configuration for the application.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	Remote  RemoteConfig  `mapstructure:"remote"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Storage StorageConfig `mapstructure:"storage"`
	Redis   RedisConfig   `mapstructure:"redis"`
	S3      S3Config      `mapstructure:"s3"`
	NATS    NATSConfig    `mapstructure:"nats"`
	Cache   CacheConfig   `mapstructure:"cache"`
	App     AppConfig     `mapstructure:"app"`
}

// RemoteTimeout returns the per-request timeout of the backend HTTP client.
func (c *Config) RemoteTimeout() time.Duration {
	if c.Remote.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Remote.TimeoutSeconds) * time.Second
}

// Location resolves Cache.Timezone, falling back to the host's local zone.
func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Cache.Timezone)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid cache.timezone %q: %w", name, err)
	}
	return loc, nil
}

// Provider defines an interface for accessing application configuration.
// This allows for easy mocking in tests and decouples the app from Viper.
type Provider interface {
	Get() *Config
}

// StaticProvider serves a fixed configuration. Used by tests and tools.
type StaticProvider struct {
	Config *Config
}

// Get returns the wrapped configuration.
func (p StaticProvider) Get() *Config {
	return p.Config
}

// viperProvider implements the Provider interface using Viper.
type viperProvider struct {
	config atomic.Pointer[Config]
	logger *zap.Logger // Using zap.Logger directly for config internal logging, not domain.Logger to avoid circular deps
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.grpc_port", 9090)
	v.SetDefault("log.level", "info")
	v.SetDefault("remote.login_path", "/login")
	v.SetDefault("remote.users_path", "/users")
	v.SetDefault("remote.posts_path", "/posts")
	v.SetDefault("remote.timeout_seconds", 10)
	v.SetDefault("storage.user_backend", BackendSQLite)
	v.SetDefault("storage.image_backend", BackendSQLite)
	v.SetDefault("storage.sqlite_path", "post-store.sqlite")
	v.SetDefault("nats.validation_subject", "post_loader.cache.validate")
	v.SetDefault("cache.timezone", "Local")
	v.SetDefault("cache.validation_interval_seconds", 3600)
	v.SetDefault("app.service_name", "post-loader-service")
	v.SetDefault("app.shutdown_timeout_seconds", 30)
	v.SetDefault("app.feed_concurrency", 8)

	// Keys without a useful default are still registered so AutomaticEnv can
	// supply them during Unmarshal.
	for _, key := range []string{
		"server.pod_id", "remote.base_url",
		"auth.username", "auth.password", "auth.admin_api_key",
		"redis.address", "redis.password",
		"s3.endpoint", "s3.region", "s3.bucket", "s3.access_key", "s3.secret_key",
		"nats.url", "app.version",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("auth.token_ttl_seconds", 0)
	v.SetDefault("redis.db", 0)
}

// Validate reports configuration combinations the service cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Remote.BaseURL) == "" {
		return fmt.Errorf("remote.base_url is required")
	}
	switch c.Storage.UserBackend {
	case BackendRedis:
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address is required when storage.user_backend is %q", BackendRedis)
		}
	case BackendSQLite:
	default:
		return fmt.Errorf("unsupported storage.user_backend %q", c.Storage.UserBackend)
	}
	switch c.Storage.ImageBackend {
	case BackendS3:
		if c.S3.Endpoint == "" || c.S3.Bucket == "" || c.S3.AccessKey == "" || c.S3.SecretKey == "" {
			return fmt.Errorf("s3 endpoint/bucket/access_key/secret_key are required when storage.image_backend is %q", BackendS3)
		}
	case BackendSQLite:
	default:
		return fmt.Errorf("unsupported storage.image_backend %q", c.Storage.ImageBackend)
	}
	if (c.Storage.UserBackend == BackendSQLite || c.Storage.ImageBackend == BackendSQLite) && strings.TrimSpace(c.Storage.SQLitePath) == "" {
		return fmt.Errorf("storage.sqlite_path is required for the sqlite backend")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// NewViperProvider creates and initializes a new configuration provider using Viper.
// It loads configuration from file and environment variables, and sets up hot-reloading.
// appCtx is the application lifecycle context used for graceful shutdown of background tasks.
func NewViperProvider(appCtx context.Context, logger *zap.Logger) (Provider, error) {
	v := viper.New()
	setDefaults(v)

	// Configure Viper to read from YAML file
	v.SetConfigName(getEnv("VIPER_CONFIG_NAME", "config"))
	v.SetConfigType("yaml")
	v.AddConfigPath(os.Getenv("VIPER_CONFIG_PATH")) // e.g., "/app/config" or "./config" for local dev
	v.AddConfigPath(".")                            // Also look in current directory for local dev

	// Configure Viper to read from environment variables
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_")) // e.g., remote.base_url becomes POST_LOADER_REMOTE_BASE_URL

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.Warn("Config file not found; relying on defaults and environment variables", zap.Error(err))
		} else {
			logger.Error("Failed to read config file", zap.Error(err))
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		logger.Error("Failed to unmarshal config", zap.Error(err))
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", zap.Error(err))
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	p := &viperProvider{logger: logger}
	p.config.Store(cfg)

	// Set up SIGHUP for hot-reloading configuration
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("Panic recovered in SIGHUP handler goroutine",
					zap.String("goroutine_name", "SIGHUPConfigReloader"),
					zap.Any("panic_info", r),
					zap.String("stacktrace", string(debug.Stack())),
				)
			}
		}()
		defer signal.Stop(sigChan)
		for {
			select {
			case sig := <-sigChan:
				p.logger.Info("SIGHUP received, attempting to reload configuration...", zap.String("signal", sig.String()))
				if err := v.ReadInConfig(); err != nil {
					p.logger.Error("Failed to re-read config file on SIGHUP", zap.Error(err))
					continue
				}
				p.reload(v, "SIGHUP")
			case <-appCtx.Done():
				p.logger.Info("SIGHUPConfigReloader goroutine shutting down due to context cancellation.")
				return
			}
		}
	}()

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("Panic recovered in OnConfigChange callback",
					zap.String("event_name", e.Name),
					zap.String("event_op", e.Op.String()),
					zap.Any("panic_info", r),
					zap.String("stacktrace", string(debug.Stack())),
				)
			}
		}()
		p.logger.Info("Config file changed", zap.String("name", e.Name), zap.String("op", e.Op.String()))
		p.reload(v, "file change event")
	})

	p.logger.Info("Configuration loaded successfully", zap.String("config_file_used", v.ConfigFileUsed()))

	return p, nil
}

// reload swaps in a freshly unmarshalled config. Storage backends and ports are bound at
// startup, so only settings read per call (log level, timeouts, intervals) take effect.
func (p *viperProvider) reload(v *viper.Viper, trigger string) {
	newCfg := &Config{}
	if err := v.Unmarshal(newCfg); err != nil {
		p.logger.Error("Failed to unmarshal reloaded config", zap.String("trigger", trigger), zap.Error(err))
		return
	}
	if err := newCfg.Validate(); err != nil {
		p.logger.Error("Reloaded config is invalid; keeping previous configuration", zap.String("trigger", trigger), zap.Error(err))
		return
	}
	p.config.Store(newCfg)
	p.logger.Info("Configuration reloaded successfully", zap.String("trigger", trigger))
}

// Get returns the current configuration.
func (p *viperProvider) Get() *Config {
	return p.config.Load()
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
