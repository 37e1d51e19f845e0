package main

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/crmconsole/internal/console"
	"github.com/MarkoPoloResearchLab/crmconsole/internal/crmapi"
	"github.com/MarkoPoloResearchLab/crmconsole/internal/httpapi"
	"github.com/MarkoPoloResearchLab/crmconsole/internal/metrics"
	"github.com/MarkoPoloResearchLab/crmconsole/internal/querycache"
	"github.com/MarkoPoloResearchLab/crmconsole/internal/storage"
)

const (
	secureCookieScheme = "https://"

	errorMessageOpenDatabase    = "open branding database"
	errorMessageMigrateDatabase = "migrate branding database"
	errorMessageConnectRedis    = "connect redis"
)

// consoleServer holds the wired handlers behind the route table.
type consoleServer struct {
	metrics        *metrics.Registry
	sessionAuth    *httpapi.SessionAuth
	auth           *httpapi.AuthHandlers
	dashboard      *httpapi.DashboardHandlers
	emailLog       *httpapi.EmailLogHandlers
	emailTemplates *httpapi.EmailTemplateHandlers
	export         *httpapi.ExportHandlers
	reports        *httpapi.ReportHandlers
}

func (application *ServerApplication) buildConsole(configuration ServerConfig, logger *zap.Logger) (*consoleServer, error) {
	database, databaseErr := application.databaseOpener(storage.Config{
		DriverName:     configuration.DatabaseDriver,
		DataSourceName: configuration.DatabaseDataSource,
	})
	if databaseErr != nil {
		return nil, fmt.Errorf("%s: %w", errorMessageOpenDatabase, databaseErr)
	}
	if migrateErr := storage.AutoMigrate(database); migrateErr != nil {
		return nil, fmt.Errorf("%s: %w", errorMessageMigrateDatabase, migrateErr)
	}

	registry := metrics.NewRegistry()
	cacheStore, storeErr := newCacheStore(configuration)
	if storeErr != nil {
		return nil, storeErr
	}

	client, clientErr := crmapi.NewClient(crmapi.Config{
		BaseURL:  configuration.CRMAPIBaseURL,
		Timeout:  configuration.CRMRequestTimeout,
		Observer: registry,
		Logger:   logger,
	})
	if clientErr != nil {
		return nil, clientErr
	}

	gateway, gatewayErr := console.NewGateway(console.Config{
		Client:      client,
		Cache:       querycache.NewCache(cacheStore, configuration.CacheTTL, logger, registry),
		Snapshots:   storage.NewBrandingSnapshotRepository(database),
		BrandingTTL: configuration.BrandingCacheTTL,
		Logger:      logger,
	})
	if gatewayErr != nil {
		return nil, gatewayErr
	}

	secureCookies := strings.HasPrefix(configuration.PublicBaseURL, secureCookieScheme)
	sessions, sessionsErr := httpapi.NewSessionManager(configuration.SessionSecret, secureCookies, logger)
	if sessionsErr != nil {
		return nil, sessionsErr
	}

	renderer := httpapi.NewPageRenderer(gateway, logger)
	return &consoleServer{
		metrics:     registry,
		sessionAuth: httpapi.NewSessionAuth(renderer, sessions, gateway, logger),
		auth:        httpapi.NewAuthHandlers(renderer, sessions, gateway, logger),
		dashboard:   httpapi.NewDashboardHandlers(renderer, sessions, gateway, logger),
		emailLog: httpapi.NewEmailLogHandlers(renderer, sessions, gateway, httpapi.EmailLogOptions{
			PollInterval: configuration.EmailLogPollInterval,
			Location:     time.Local,
			Observer:     registry,
		}, logger),
		emailTemplates: httpapi.NewEmailTemplateHandlers(renderer, sessions, gateway, logger),
		export:         httpapi.NewExportHandlers(renderer, sessions, gateway, gateway, logger),
		reports:        httpapi.NewReportHandlers(renderer, sessions, gateway, gateway, gateway, logger),
	}, nil
}

func newCacheStore(configuration ServerConfig) (querycache.Store, error) {
	if configuration.CacheBackend != cacheBackendRedis {
		return querycache.NewMemoryStore(), nil
	}
	redisClient, connectErr := querycache.ConnectRedis(configuration.RedisURL)
	if connectErr != nil {
		return nil, fmt.Errorf("%s: %w", errorMessageConnectRedis, connectErr)
	}
	return querycache.NewRedisStore(redisClient), nil
}
