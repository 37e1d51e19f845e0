package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/crmconsole/internal/storage"
)

const (
	commandUseName                = "server"
	commandShortDescription       = "Run the CRM console"
	commandLongDescription        = "Launch the CRM console HTTP server in front of the CRM REST API"
	missingConfigurationMessage   = "missing required configuration"
	invalidConfigurationMessage   = "invalid configuration"
	loggerCreationErrorMessage    = "logger"
	logEventListening             = "listening"
	logEventShutdown              = "shutdown"
	logFieldAddress               = "addr"
	logFieldServeMode             = "serve_mode"
	loggerContextBuildConsole     = "build_console"
	loggerContextServer           = "server"
	readHeaderTimeoutSeconds      = 5
	shutdownTimeout               = 10 * time.Second
	unexpectedArgumentsMessage    = "unexpected command arguments"
	commandInitializationFailure  = "failed to configure command"
	flagNotDefinedMessage         = "flag %s not defined"
	environmentConfigurationError = "failed to apply environment configuration"

	cacheBackendMemory = "memory"
	cacheBackendRedis  = "redis"
)

const (
	flagNameApplicationAddress   = "app-addr"
	flagNameServeMode            = "serve-mode"
	flagNameCRMAPIBaseURL        = "crm-api-base-url"
	flagNameCRMRequestTimeout    = "crm-request-timeout"
	flagNameSessionSecret        = "session-secret"
	flagNameDatabaseDriver       = "db-driver"
	flagNameDatabaseDataSource   = "db-dsn"
	flagNameCacheBackend         = "cache-backend"
	flagNameRedisURL             = "redis-url"
	flagNameCacheTTL             = "cache-ttl"
	flagNameBrandingCacheTTL     = "branding-cache-ttl"
	flagNameEmailLogPollInterval = "email-log-poll-interval"
	flagNamePublicBaseURL        = "public-base-url"

	environmentKeyApplicationAddress   = "APP_ADDR"
	environmentKeyServeMode            = "SERVE_MODE"
	environmentKeyCRMAPIBaseURL        = "CRM_API_BASE_URL"
	environmentKeyCRMRequestTimeout    = "CRM_REQUEST_TIMEOUT"
	environmentKeySessionSecret        = "SESSION_SECRET"
	environmentKeyDatabaseDriver       = "DB_DRIVER"
	environmentKeyDatabaseDataSource   = "DB_DSN"
	environmentKeyCacheBackend         = "CACHE_BACKEND"
	environmentKeyRedisURL             = "REDIS_URL"
	environmentKeyCacheTTL             = "CACHE_TTL"
	environmentKeyBrandingCacheTTL     = "BRANDING_CACHE_TTL"
	environmentKeyEmailLogPollInterval = "EMAIL_LOG_POLL_INTERVAL"
	environmentKeyPublicBaseURL        = "PUBLIC_BASE_URL"

	defaultApplicationAddress   = ":8080"
	defaultCRMRequestTimeout    = 30 * time.Second
	defaultDatabaseDataSource   = "file:crmconsole.db"
	defaultCacheTTL             = 30 * time.Second
	defaultBrandingCacheTTL     = 10 * time.Minute
	defaultEmailLogPollInterval = 30 * time.Second
)

// ServerConfig captures configuration needed to run the console.
type ServerConfig struct {
	ApplicationAddress   string
	ServeMode            ServeMode
	CRMAPIBaseURL        string
	CRMRequestTimeout    time.Duration
	SessionSecret        string
	DatabaseDriver       string
	DatabaseDataSource   string
	CacheBackend         string
	RedisURL             string
	CacheTTL             time.Duration
	BrandingCacheTTL     time.Duration
	EmailLogPollInterval time.Duration
	PublicBaseURL        string
}

// DatabaseOpener opens the branding snapshot database.
type DatabaseOpener func(storage.Config) (*gorm.DB, error)

// ServerApplication constructs and executes the server command.
type ServerApplication struct {
	configurationLoader *viper.Viper
	databaseOpener      DatabaseOpener
}

// NewServerApplication creates a ServerApplication with default dependencies.
func NewServerApplication() *ServerApplication {
	return &ServerApplication{
		configurationLoader: viper.New(),
		databaseOpener:      storage.OpenDatabase,
	}
}

// WithDatabaseOpener overrides the database opener dependency.
func (application *ServerApplication) WithDatabaseOpener(databaseOpener DatabaseOpener) *ServerApplication {
	application.databaseOpener = databaseOpener
	return application
}

// Command builds the Cobra command for the server.
func (application *ServerApplication) Command() (*cobra.Command, error) {
	rootCommand := &cobra.Command{
		Use:   commandUseName,
		Short: commandShortDescription,
		Long:  commandLongDescription,
		RunE:  application.runCommand,
	}

	if configurationErr := application.configureCommand(rootCommand); configurationErr != nil {
		return nil, configurationErr
	}

	return rootCommand, nil
}

func (application *ServerApplication) configureCommand(command *cobra.Command) error {
	commandFlags := command.Flags()
	commandFlags.String(flagNameApplicationAddress, defaultApplicationAddress, "address for the HTTP server to listen on")
	commandFlags.String(flagNameServeMode, string(ServeModeMonolith), "route set to serve: monolith, web or api")
	commandFlags.String(flagNameCRMAPIBaseURL, "", "base URL of the CRM REST API")
	commandFlags.Duration(flagNameCRMRequestTimeout, defaultCRMRequestTimeout, "timeout applied to each CRM request")
	commandFlags.String(flagNameSessionSecret, "", "secret used to sign session cookies")
	commandFlags.String(flagNameDatabaseDriver, storage.DriverNameSQLite, "database driver for branding snapshots")
	commandFlags.String(flagNameDatabaseDataSource, defaultDatabaseDataSource, "database connection string for branding snapshots")
	commandFlags.String(flagNameCacheBackend, cacheBackendMemory, "response cache backend: memory or redis")
	commandFlags.String(flagNameRedisURL, "", "redis URL or address when the cache backend is redis")
	commandFlags.Duration(flagNameCacheTTL, defaultCacheTTL, "lifetime of cached CRM responses")
	commandFlags.Duration(flagNameBrandingCacheTTL, defaultBrandingCacheTTL, "lifetime of the cached branding profile")
	commandFlags.Duration(flagNameEmailLogPollInterval, defaultEmailLogPollInterval, "refresh interval of the live email log")
	commandFlags.String(flagNamePublicBaseURL, "", "public origin of the console, allowed by CORS on the JSON API")

	application.configurationLoader.AutomaticEnv()
	for _, binding := range configurationBindings {
		if bindErr := application.bindFlag(commandFlags, binding.environmentKey, binding.flagName); bindErr != nil {
			return bindErr
		}
		if environmentErr := application.applyEnvironmentConfiguration(commandFlags, binding.environmentKey, binding.flagName); environmentErr != nil {
			return environmentErr
		}
	}

	return nil
}

type configurationBinding struct {
	environmentKey string
	flagName       string
}

var configurationBindings = []configurationBinding{
	{environmentKeyApplicationAddress, flagNameApplicationAddress},
	{environmentKeyServeMode, flagNameServeMode},
	{environmentKeyCRMAPIBaseURL, flagNameCRMAPIBaseURL},
	{environmentKeyCRMRequestTimeout, flagNameCRMRequestTimeout},
	{environmentKeySessionSecret, flagNameSessionSecret},
	{environmentKeyDatabaseDriver, flagNameDatabaseDriver},
	{environmentKeyDatabaseDataSource, flagNameDatabaseDataSource},
	{environmentKeyCacheBackend, flagNameCacheBackend},
	{environmentKeyRedisURL, flagNameRedisURL},
	{environmentKeyCacheTTL, flagNameCacheTTL},
	{environmentKeyBrandingCacheTTL, flagNameBrandingCacheTTL},
	{environmentKeyEmailLogPollInterval, flagNameEmailLogPollInterval},
	{environmentKeyPublicBaseURL, flagNamePublicBaseURL},
}

func (application *ServerApplication) bindFlag(flagSet *pflag.FlagSet, environmentKey string, flagName string) error {
	flag := flagSet.Lookup(flagName)
	if flag == nil {
		return fmt.Errorf(flagNotDefinedMessage, flagName)
	}

	if bindErr := application.configurationLoader.BindPFlag(environmentKey, flag); bindErr != nil {
		return bindErr
	}

	return nil
}

func (application *ServerApplication) applyEnvironmentConfiguration(flagSet *pflag.FlagSet, environmentKey string, flagName string) error {
	environmentValue, environmentFound := os.LookupEnv(environmentKey)
	if !environmentFound {
		return nil
	}

	if setErr := flagSet.Set(flagName, environmentValue); setErr != nil {
		return fmt.Errorf("%s: %w", environmentConfigurationError, setErr)
	}

	return nil
}

func (application *ServerApplication) loadConfiguration() (ServerConfig, error) {
	loader := application.configurationLoader
	serveMode, serveModeErr := ParseServeMode(loader.GetString(environmentKeyServeMode))
	if serveModeErr != nil {
		return ServerConfig{}, fmt.Errorf("%s: %w", invalidConfigurationMessage, serveModeErr)
	}
	return ServerConfig{
		ApplicationAddress:   strings.TrimSpace(loader.GetString(environmentKeyApplicationAddress)),
		ServeMode:            serveMode,
		CRMAPIBaseURL:        strings.TrimSpace(loader.GetString(environmentKeyCRMAPIBaseURL)),
		CRMRequestTimeout:    loader.GetDuration(environmentKeyCRMRequestTimeout),
		SessionSecret:        strings.TrimSpace(loader.GetString(environmentKeySessionSecret)),
		DatabaseDriver:       strings.TrimSpace(loader.GetString(environmentKeyDatabaseDriver)),
		DatabaseDataSource:   strings.TrimSpace(loader.GetString(environmentKeyDatabaseDataSource)),
		CacheBackend:         strings.ToLower(strings.TrimSpace(loader.GetString(environmentKeyCacheBackend))),
		RedisURL:             strings.TrimSpace(loader.GetString(environmentKeyRedisURL)),
		CacheTTL:             loader.GetDuration(environmentKeyCacheTTL),
		BrandingCacheTTL:     loader.GetDuration(environmentKeyBrandingCacheTTL),
		EmailLogPollInterval: loader.GetDuration(environmentKeyEmailLogPollInterval),
		PublicBaseURL:        strings.TrimRight(strings.TrimSpace(loader.GetString(environmentKeyPublicBaseURL)), "/"),
	}, nil
}

func (application *ServerApplication) runCommand(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return fmt.Errorf("%s: %s", unexpectedArgumentsMessage, strings.Join(arguments, " "))
	}

	serverConfig, loadErr := application.loadConfiguration()
	if loadErr != nil {
		return loadErr
	}

	if validationErr := ensureRequiredConfiguration(serverConfig); validationErr != nil {
		return validationErr
	}

	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return fmt.Errorf("%s: %w", loggerCreationErrorMessage, loggerErr)
	}
	defer func() {
		_ = logger.Sync()
	}()

	consoleServer, buildErr := application.buildConsole(serverConfig, logger)
	if buildErr != nil {
		logger.Error(loggerContextBuildConsole, zap.Error(buildErr))
		return buildErr
	}

	signalContext, stopSignals := signal.NotifyContext(commandContext(command), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	httpServer := newHTTPServer(signalContext, serverConfig.ApplicationAddress, newRouter(consoleServer, serverConfig, logger))
	go func() {
		<-signalContext.Done()
		logger.Info(logEventShutdown)
		shutdownContext, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = httpServer.Shutdown(shutdownContext)
	}()

	logger.Info(logEventListening, zap.String(logFieldAddress, serverConfig.ApplicationAddress), zap.String(logFieldServeMode, string(serverConfig.ServeMode)))
	if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		logger.Error(loggerContextServer, zap.Error(serveErr))
		return serveErr
	}

	return nil
}

// newHTTPServer derives every request context from baseContext, so a shutdown
// signal also ends open email log streams.
func newHTTPServer(baseContext context.Context, address string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeoutSeconds * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return baseContext
		},
	}
}

func commandContext(command *cobra.Command) context.Context {
	if command.Context() != nil {
		return command.Context()
	}
	return context.Background()
}

func ensureRequiredConfiguration(configuration ServerConfig) error {
	var missingParameters []string

	if configuration.CRMAPIBaseURL == "" {
		missingParameters = append(missingParameters, flagNameCRMAPIBaseURL)
	}

	if configuration.SessionSecret == "" {
		missingParameters = append(missingParameters, flagNameSessionSecret)
	}

	if configuration.CacheBackend == cacheBackendRedis && configuration.RedisURL == "" {
		missingParameters = append(missingParameters, flagNameRedisURL)
	}

	if len(missingParameters) > 0 {
		return fmt.Errorf("%s: %s", missingConfigurationMessage, strings.Join(missingParameters, ", "))
	}

	switch configuration.CacheBackend {
	case cacheBackendMemory, cacheBackendRedis:
	default:
		return fmt.Errorf("%s: %s %q", invalidConfigurationMessage, flagNameCacheBackend, configuration.CacheBackend)
	}

	return nil
}

func main() {
	application := NewServerApplication()
	rootCommand, commandErr := application.Command()
	if commandErr != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", commandInitializationFailure, commandErr)
		os.Exit(1)
	}

	if executeErr := rootCommand.Execute(); executeErr != nil {
		os.Exit(1)
	}
}
