package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/google/wire"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/post-loader-service/internal/adapters/config"
	appgrpc "gitlab.com/timkado/api/post-loader-service/internal/adapters/grpc"
	apphttp "gitlab.com/timkado/api/post-loader-service/internal/adapters/http"
	"gitlab.com/timkado/api/post-loader-service/internal/adapters/logger"
	"gitlab.com/timkado/api/post-loader-service/internal/adapters/middleware"
	appnats "gitlab.com/timkado/api/post-loader-service/internal/adapters/nats"
	appredis "gitlab.com/timkado/api/post-loader-service/internal/adapters/redis"
	apps3 "gitlab.com/timkado/api/post-loader-service/internal/adapters/s3"
	appsqlite "gitlab.com/timkado/api/post-loader-service/internal/adapters/sqlite"
	"gitlab.com/timkado/api/post-loader-service/internal/application"
	"gitlab.com/timkado/api/post-loader-service/internal/domain"
)

// AdminAuthMiddleware guards the /admin routes.
type AdminAuthMiddleware func(http.Handler) http.Handler

// ReadinessCheck is one dependency probed by /ready.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Stores holds the local cache backends selected by storage.user_backend and
// storage.image_backend.
type Stores struct {
	Users  domain.UserStore
	Images domain.ImageDataStore
	Checks []ReadinessCheck
}

// InitialZapLoggerProvider provides a basic *zap.Logger instance, primarily for config initialization.
func InitialZapLoggerProvider() (*zap.Logger, func(), error) {
	logger, err := zap.NewProduction()
	if err != nil {
		logger, err = zap.NewDevelopment()
		if err != nil {
			logger = zap.NewExample()
			fmt.Fprintf(os.Stderr, "Failed to create initial zap logger (production and development failed, falling back to example): %v\n", err)
		}
	}

	cleanup := func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to sync initial zap logger: %v\n", syncErr)
		}
	}
	return logger, cleanup, nil
}

// App struct is defined here for Wire to use.
type App struct {
	configProvider     config.Provider
	logger             domain.Logger
	httpServeMux       *http.ServeMux
	httpServer         *http.Server
	grpcServer         *appgrpc.Server
	stores             *Stores
	feed               *application.FeedService
	users              domain.UserLoader
	images             domain.ImageDataLoader
	maintenance        *application.CacheMaintenance
	validationConsumer *appnats.ValidationConsumer
	adminAuth          AdminAuthMiddleware
}

// NewApp is the constructor for App, also for Wire.
func NewApp(
	cfgProvider config.Provider,
	appLogger domain.Logger,
	mux *http.ServeMux,
	server *http.Server,
	grpcSrv *appgrpc.Server,
	stores *Stores,
	feed *application.FeedService,
	users domain.UserLoader,
	images domain.ImageDataLoader,
	maintenance *application.CacheMaintenance,
	validationConsumer *appnats.ValidationConsumer,
	adminAuth AdminAuthMiddleware,
) (*App, func(), error) {
	app := &App{
		configProvider:     cfgProvider,
		logger:             appLogger,
		httpServeMux:       mux,
		httpServer:         server,
		grpcServer:         grpcSrv,
		stores:             stores,
		feed:               feed,
		users:              users,
		images:             images,
		maintenance:        maintenance,
		validationConsumer: validationConsumer,
		adminAuth:          adminAuth,
	}

	cleanup := func() {
		app.logger.Info(context.Background(), "Running app cleanup...")
		if app.maintenance != nil {
			app.maintenance.Stop()
		}
		if app.grpcServer != nil {
			app.grpcServer.GracefulStop()
		}
	}
	return app, cleanup, nil
}

// ConfigProvider provides the application configuration.
func ConfigProvider(appCtx context.Context, logger *zap.Logger) (config.Provider, error) {
	return config.NewViperProvider(appCtx, logger)
}

// LoggerProvider provides the application logger. The cleanup flushes it.
func LoggerProvider(cfgProvider config.Provider) (domain.Logger, func(), error) {
	appLogger, err := logger.NewZapAdapter(cfgProvider, cfgProvider.Get().App.ServiceName)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if syncer, ok := appLogger.(interface{ Sync() error }); ok {
			_ = syncer.Sync()
		}
	}
	return appLogger, cleanup, nil
}

// HTTPServeMuxProvider provides the main HTTP multiplexer.
func HTTPServeMuxProvider() *http.ServeMux {
	return http.NewServeMux()
}

// HTTPGracefulServerProvider provides a new HTTP server configured for graceful shutdown.
// The write timeout leaves room for a feed that needs a login, the post list and author lookups.
func HTTPGracefulServerProvider(cfgProvider config.Provider, mux *http.ServeMux) *http.Server {
	appCfg := cfgProvider.Get()
	writeTimeout := 3 * appCfg.RemoteTimeout()
	if writeTimeout < 30*time.Second {
		writeTimeout = 30 * time.Second
	}
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", appCfg.Server.HTTPPort),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}
}

// StoresProvider opens the configured cache backends. SQLite is opened once and
// shared when both caches use it.
func StoresProvider(ctx context.Context, cfgProvider config.Provider, appLogger domain.Logger) (*Stores, func(), error) {
	cfg := cfgProvider.Get()
	stores := &Stores{}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	var sqliteStore *appsqlite.Store
	if cfg.Storage.UserBackend == config.BackendSQLite || cfg.Storage.ImageBackend == config.BackendSQLite {
		s, err := appsqlite.Open(ctx, cfg.Storage.SQLitePath, appLogger)
		if err != nil {
			return nil, nil, err
		}
		sqliteStore = s
		cleanups = append(cleanups, func() {
			appLogger.Info(context.Background(), "Closing SQLite store...")
			if err := s.Close(); err != nil {
				appLogger.Error(context.Background(), "Error closing SQLite store", "error", err.Error())
			}
		})
		stores.Checks = append(stores.Checks, ReadinessCheck{Name: "sqlite", Check: s.Ping})
	}

	switch cfg.Storage.UserBackend {
	case config.BackendRedis:
		client, closeRedis, err := appredis.NewClient(ctx, cfgProvider, appLogger)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		cleanups = append(cleanups, closeRedis)
		stores.Users = appredis.NewUserStoreAdapter(client, appLogger)
		stores.Checks = append(stores.Checks, ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}})
	default:
		stores.Users = sqliteStore
	}

	switch cfg.Storage.ImageBackend {
	case config.BackendS3:
		client, err := apps3.NewClient(ctx, cfgProvider)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		adapter := apps3.NewImageStoreAdapter(cfg.S3.Bucket, client, appLogger)
		if err := adapter.Ping(ctx); err != nil {
			appLogger.Error(ctx, "S3 bucket is not reachable", "bucket", cfg.S3.Bucket, "error", err.Error())
			cleanup()
			return nil, nil, fmt.Errorf("failed to reach S3 bucket %s: %w", cfg.S3.Bucket, err)
		}
		stores.Images = adapter
		stores.Checks = append(stores.Checks, ReadinessCheck{Name: "s3", Check: adapter.Ping})
	default:
		stores.Images = sqliteStore
	}

	appLogger.Info(ctx, "Cache stores ready", "user_backend", cfg.Storage.UserBackend, "image_backend", cfg.Storage.ImageBackend)
	return stores, cleanup, nil
}

func UserStoreProvider(s *Stores) domain.UserStore { return s.Users }

func ImageDataStoreProvider(s *Stores) domain.ImageDataStore { return s.Images }

// HTTPClientProvider provides the outbound client used by every remote loader.
func HTTPClientProvider(cfgProvider config.Provider) *apphttp.Client {
	return apphttp.NewClient(cfgProvider)
}

func remoteURL(cfg *config.Config, path string) (string, error) {
	u, err := url.JoinPath(cfg.Remote.BaseURL, path)
	if err != nil {
		return "", fmt.Errorf("invalid remote URL for %q: %w", path, err)
	}
	return u, nil
}

// SessionTokenLoaderProvider provides the login client.
func SessionTokenLoaderProvider(cfgProvider config.Provider, client domain.HTTPClient, appLogger domain.Logger) (*application.RemoteSessionTokenLoader, error) {
	cfg := cfgProvider.Get()
	loginURL, err := remoteURL(cfg, cfg.Remote.LoginPath)
	if err != nil {
		return nil, err
	}
	return application.NewRemoteSessionTokenLoader(loginURL, client, cfg.Auth.Username, cfg.Auth.Password, appLogger), nil
}

// SessionTokenProviderProvider memoises the login token for auth.token_ttl_seconds.
func SessionTokenProviderProvider(loader *application.RemoteSessionTokenLoader, cfgProvider config.Provider, appLogger domain.Logger) *application.SessionTokenProvider {
	ttl := time.Duration(cfgProvider.Get().Auth.TokenTTLSeconds) * time.Second
	return application.NewSessionTokenProvider(loader, ttl, appLogger)
}

// CachePolicyProvider resolves cache.timezone into the expiry policy.
func CachePolicyProvider(cfgProvider config.Provider) (application.CachePolicy, error) {
	loc, err := cfgProvider.Get().Location()
	if err != nil {
		return application.CachePolicy{}, err
	}
	return application.NewCachePolicy(loc), nil
}

func LocalUserLoaderProvider(store domain.UserStore, policy application.CachePolicy, appLogger domain.Logger) *application.LocalUserLoader {
	return application.NewLocalUserLoader(store, policy, time.Now, appLogger)
}

// RemoteUserLoaderProvider drops the memoised session token whenever the
// backend rejects it.
func RemoteUserLoaderProvider(cfgProvider config.Provider, client domain.HTTPClient, tokens *application.SessionTokenProvider, appLogger domain.Logger) (*application.RemoteUserLoader, error) {
	cfg := cfgProvider.Get()
	usersURL, err := remoteURL(cfg, cfg.Remote.UsersPath)
	if err != nil {
		return nil, err
	}
	return application.NewRemoteUserLoader(usersURL, client, tokens.Provider(), appLogger).
		OnAuthRejected(tokens.Invalidate), nil
}

// UserLoaderProvider composes local-first loading with a write-through remote fallback.
func UserLoaderProvider(local *application.LocalUserLoader, remote *application.RemoteUserLoader, appLogger domain.Logger) domain.UserLoader {
	return application.NewUserLoaderWithFallback(
		local,
		application.NewUserLoaderCacheDecorator(remote, local, appLogger),
		appLogger,
	)
}

func LocalImageDataLoaderProvider(store domain.ImageDataStore, appLogger domain.Logger) *application.LocalImageDataLoader {
	return application.NewLocalImageDataLoader(store, appLogger)
}

// RemoteImageDataLoaderProvider sends no session token; avatar URLs point at
// arbitrary hosts.
func RemoteImageDataLoaderProvider(client domain.HTTPClient, appLogger domain.Logger) *application.RemoteImageDataLoader {
	return application.NewRemoteImageDataLoader(client, nil, appLogger)
}

// ImageDataLoaderProvider composes the avatar loaders the same way as users.
func ImageDataLoaderProvider(local *application.LocalImageDataLoader, remote *application.RemoteImageDataLoader, appLogger domain.Logger) domain.ImageDataLoader {
	return application.NewImageDataLoaderWithFallback(
		local,
		application.NewImageDataLoaderCacheDecorator(remote, local, appLogger),
		appLogger,
	)
}

func PostLoaderProvider(cfgProvider config.Provider, client domain.HTTPClient, tokens *application.SessionTokenProvider, appLogger domain.Logger) (domain.PostLoader, error) {
	cfg := cfgProvider.Get()
	postsURL, err := remoteURL(cfg, cfg.Remote.PostsPath)
	if err != nil {
		return nil, err
	}
	return application.NewRemotePostLoader(postsURL, client, tokens.Provider(), appLogger).
		OnAuthRejected(tokens.Invalidate), nil
}

func FeedServiceProvider(posts domain.PostLoader, users domain.UserLoader, cfgProvider config.Provider, appLogger domain.Logger) *application.FeedService {
	return application.NewFeedService(posts, users, cfgProvider.Get().App.FeedConcurrency, appLogger)
}

// CacheMaintenanceProvider provides the sweeper for the user cache.
func CacheMaintenanceProvider(local *application.LocalUserLoader, cfgProvider config.Provider, appLogger domain.Logger) *application.CacheMaintenance {
	interval := time.Duration(cfgProvider.Get().Cache.ValidationIntervalSeconds) * time.Second
	return application.NewCacheMaintenance(local, interval, appLogger)
}

func ValidationConsumerProvider(ctx context.Context, cfgProvider config.Provider, maintenance *application.CacheMaintenance, appLogger domain.Logger) (*appnats.ValidationConsumer, func(), error) {
	return appnats.NewValidationConsumer(ctx, cfgProvider, maintenance, appLogger)
}

func GRPCServerProvider(appCtx context.Context, appLogger domain.Logger, cfgProvider config.Provider) *appgrpc.Server {
	return appgrpc.NewServer(appCtx, appLogger, cfgProvider)
}

func AdminAuthMiddlewareProvider(cfgProvider config.Provider, appLogger domain.Logger) AdminAuthMiddleware {
	return middleware.AdminAPIKeyMiddleware(cfgProvider, appLogger)
}

// ProviderSet is the Wire provider set for the entire application.
var ProviderSet = wire.NewSet(
	InitialZapLoggerProvider,
	ConfigProvider,
	LoggerProvider,
	HTTPServeMuxProvider,
	HTTPGracefulServerProvider,

	// Storage
	StoresProvider,
	UserStoreProvider,
	ImageDataStoreProvider,

	// Remote access
	HTTPClientProvider,
	wire.Bind(new(domain.HTTPClient), new(*apphttp.Client)),
	SessionTokenLoaderProvider,
	SessionTokenProviderProvider,

	// Loaders and services
	CachePolicyProvider,
	LocalUserLoaderProvider,
	RemoteUserLoaderProvider,
	UserLoaderProvider,
	LocalImageDataLoaderProvider,
	RemoteImageDataLoaderProvider,
	ImageDataLoaderProvider,
	PostLoaderProvider,
	FeedServiceProvider,
	CacheMaintenanceProvider,

	// Inbound
	ValidationConsumerProvider,
	GRPCServerProvider,
	AdminAuthMiddlewareProvider,
	NewApp,
)
