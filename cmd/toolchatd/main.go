package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aschepis/backscratcher/toolchat/chat"
	"github.com/aschepis/backscratcher/toolchat/config"
	"github.com/aschepis/backscratcher/toolchat/conversations"
	toolchatlogger "github.com/aschepis/backscratcher/toolchat/logger"
	"github.com/aschepis/backscratcher/toolchat/mcp"
	"github.com/aschepis/backscratcher/toolchat/runtime"
	"github.com/aschepis/backscratcher/toolchat/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", config.GetServerConfigPath(), "Path to server config file")
		address    = flag.String("addr", "", "HTTP listen address (overrides server.address)")
		backendURL = flag.String("backend", "", "Conversation backend URL (overrides backend.url)")
		noPersist  = flag.Bool("no-persist", false, "Do not store conversations")
		logFile    = flag.String("logfile", "", "Path to log file. If not set, logs to stdout")
		pretty     = flag.Bool("pretty", false, "Use pretty console output (only valid when logfile is not set)")
	)
	flag.Parse()

	if *logFile != "" && *pretty {
		return fmt.Errorf("--logfile and --pretty are mutually exclusive")
	}

	logger, err := toolchatlogger.InitWithOptions(*logFile, *pretty)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appConfig, err := config.LoadServerConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load server configuration: %w", err)
	}
	if *address != "" {
		appConfig.Server.Address = *address
	}
	if *backendURL != "" {
		appConfig.Backend.URL = *backendURL
	}
	logger.Info().Str("config", *configPath).Str("address", appConfig.Server.Address).Msg("toolchatd starting")

	// ---------------------------
	// 1. Providers
	// ---------------------------

	registry := appConfig.NewProviderRegistry()
	for _, p := range registry.Providers() {
		logger.Info().Str("provider", p.ID).Bool("configured", p.Configured).Bool("default", p.Default).Msg("Provider enabled")
	}
	clients := chat.NewClientCache(config.ClientFactory(appConfig, logger), logger)

	// ---------------------------
	// 2. Tool sessions + idle sweeper
	// ---------------------------

	manager := mcp.NewManager(logger, mcp.SessionOptions{
		ClientName:    appConfig.MCP.ClientName,
		ClientVersion: appConfig.MCP.ClientVersion,
		ToolTimeout:   appConfig.ToolTimeoutDuration(),
	})
	defer manager.Close()

	sweeperCtx, cancelSweeper := context.WithCancel(context.Background())
	defer cancelSweeper()
	if idle := appConfig.IdleTimeoutDuration(); idle > 0 {
		sweeper, err := runtime.NewSweeper(manager, appConfig.MCP.SweepSchedule, idle, logger)
		if err != nil {
			return fmt.Errorf("failed to create session sweeper: %w", err)
		}
		go sweeper.Start(sweeperCtx)
	}

	// ---------------------------
	// 3. Persistence
	// ---------------------------

	var persister chat.Persister
	if !*noPersist {
		opts := conversations.DefaultGatewayOptions()
		opts.MaxRetries = appConfig.Backend.MaxRetries
		if timeout := appConfig.BackendTimeoutDuration(); timeout > 0 {
			opts.HTTPClient.Timeout = timeout
		}
		persister = conversations.NewGateway(appConfig.Backend.URL, opts, logger)
		logger.Info().Str("backend", appConfig.Backend.URL).Msg("Conversation persistence enabled")
	}

	dispatcher := chat.NewDispatcher(registry, chat.SessionsFromManager(manager), clients, persister, chat.DispatcherOptions{
		System:      appConfig.SystemPrompt,
		TurnTimeout: appConfig.TurnTimeoutDuration(),
		Policy:      chat.FirstToolCallOnly,
	}, logger)

	// ---------------------------
	// 4. HTTP server
	// ---------------------------

	srv := server.New(server.Config{
		Address: appConfig.Server.Address,
		Logger:  logger,
	}, dispatcher, manager, registry)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancelSweeper()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("Graceful shutdown did not complete")
		}
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info().Msg("toolchatd shutdown complete")
	return nil
}
