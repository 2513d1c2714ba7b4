package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Shiki0138/hotelbooking-sub004/internal/config"
	"github.com/Shiki0138/hotelbooking-sub004/internal/logging"
)

const (
	defaultConfigPath      = "etc/app.yaml"
	gracefulShutdownPeriod = 5 * time.Second
)

//
// HTTP server management
//

// ServerManager owns the HTTP listener lifecycle.
type ServerManager struct {
	server *http.Server
	log    zerolog.Logger
}

func NewServerManager(address string, handler http.Handler, log zerolog.Logger) *ServerManager {
	return &ServerManager{
		server: &http.Server{
			Addr:    address,
			Handler: handler,
		},
		log: log.With().Str("component", "http-server").Logger(),
	}
}

// Start runs the listener in its own goroutine so the runner can keep
// wiring the rest of the process.
func (manager *ServerManager) Start() {
	go func() {
		manager.log.Info().Str("addr", manager.server.Addr).Msg("http server listening")

		if err := manager.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			manager.log.Fatal().Err(err).Msg("http server failed")
		}
	}()
}

// GracefulShutdown waits for in-flight requests up to the shutdown period.
func (manager *ServerManager) GracefulShutdown() error {
	shutdownContext, cancel := context.WithTimeout(
		context.Background(),
		gracefulShutdownPeriod,
	)
	defer cancel()

	if err := manager.server.Shutdown(shutdownContext); err != nil {
		manager.log.Error().Err(err).Msg("http shutdown error")
		return err
	}

	manager.log.Info().Msg("http server stopped")
	return nil
}

//
// Signal handling
//

// SignalHandler blocks until SIGINT or SIGTERM arrives.
type SignalHandler struct {
	notifyContext context.Context
	stopFunc      context.CancelFunc
}

func NewSignalHandler() *SignalHandler {
	notifyContext, stopFunc := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	return &SignalHandler{
		notifyContext: notifyContext,
		stopFunc:      stopFunc,
	}
}

func (handler *SignalHandler) WaitForShutdownSignal() {
	<-handler.notifyContext.Done()
	handler.stopFunc()
}

//
// Application runner
//

// ApplicationRunner owns the whole process lifecycle: config, wiring,
// serving, shutdown.
type ApplicationRunner struct {
	configuration config.Config
	log           zerolog.Logger
	serverManager *ServerManager
	signalHandler *SignalHandler
	appContext    *AppContext
}

func NewApplicationRunner() *ApplicationRunner {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}
	if _, err := os.Stat(path); err != nil {
		// No config file is fine; env vars and defaults carry the rest.
		path = ""
	}

	configuration, err := config.Load(path)
	if err != nil {
		// The logger is configured by the config we failed to load, so
		// fall back to a plain stderr logger for this one message.
		fallback := logging.New(logging.Config{})
		fallback.Fatal().Err(err).Msg("load configuration")
	}

	return &ApplicationRunner{
		configuration: configuration,
		log:           logging.New(configuration.Logging),
		signalHandler: NewSignalHandler(),
	}
}

// Run executes the full start, serve, and shutdown sequence.
func (runner *ApplicationRunner) Run() {
	runner.log.Info().Msg("notification engine starting")

	runner.appContext = InitAppContext(runner.configuration, runner.log)
	runner.appContext.Start()

	startTierConsumer(runner.appContext)

	router := BuildGinRouter(runner.appContext)
	runner.serverManager = NewServerManager(runner.configuration.HTTPAddress, router, runner.log)
	runner.serverManager.Start()

	runner.signalHandler.WaitForShutdownSignal()
	runner.performShutdown()
}

// performShutdown stops the front door first, then releases engine
// resources in dependency order.
func (runner *ApplicationRunner) performShutdown() {
	runner.log.Info().Msg("shutdown signal received")

	if err := runner.serverManager.GracefulShutdown(); err != nil {
		runner.log.Error().Err(err).Msg("server shutdown error")
	}

	if runner.appContext != nil {
		runner.appContext.Close()
	}

	runner.log.Info().Msg("notification engine stopped")
}
