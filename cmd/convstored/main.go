package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aschepis/backscratcher/toolchat/config"
	"github.com/aschepis/backscratcher/toolchat/conversations"
	toolchatlogger "github.com/aschepis/backscratcher/toolchat/logger"
	"github.com/aschepis/backscratcher/toolchat/migrations"
	"github.com/aschepis/backscratcher/toolchat/server"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath    = flag.String("config", config.GetServerConfigPath(), "Path to server config file")
		address       = flag.String("addr", "", "HTTP listen address (overrides store.address)")
		dbPath        = flag.String("db", "", "Path to SQLite database file (overrides store.db_path)")
		migrationsDir = flag.String("migrations", "", "Read migrations from this directory instead of the embedded set")
		logFile       = flag.String("logfile", "", "Path to log file. If not set, logs to stdout")
		pretty        = flag.Bool("pretty", false, "Use pretty console output (only valid when logfile is not set)")
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
		appConfig.Store.Address = *address
	}
	if *dbPath != "" {
		appConfig.Store.DBPath = *dbPath
	}

	logger.Info().Str("path", appConfig.Store.DBPath).Msg("Opening conversation database")
	db, err := sql.Open("sqlite3", appConfig.Store.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close() //nolint:errcheck // No remedy for db close errors
	db.SetMaxOpenConns(1)

	if *migrationsDir != "" {
		err = migrations.RunMigrations(db, *migrationsDir, logger)
	} else {
		err = migrations.Run(db, logger)
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	httpServer := &http.Server{
		Addr:              appConfig.Store.Address,
		Handler:           server.NewStoreHandler(conversations.NewStore(db), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("address", appConfig.Store.Address).Msg("Starting conversation store")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("Graceful shutdown did not complete")
		}
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info().Msg("convstored shutdown complete")
	return nil
}
