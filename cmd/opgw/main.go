// Package main is the entry point for the operation gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/vyrodovalexey/opgw/internal/config"
	"github.com/vyrodovalexey/opgw/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	envFile     string
	logLevel    string
	logFormat   string
	watch       bool
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	if err := loadEnvFile(flags.envFile); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load env file: %v\n", err)
		os.Exit(1)
	}

	if err := run(flags); err != nil {
		fmt.Fprintf(os.Stderr, "opgw: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("OPGW_CONFIG_PATH", "opgw.yaml"),
		"Path to configuration file")
	envFile := flag.String("env-file", getEnvOrDefault("OPGW_ENV_FILE", ".env"),
		"Optional dotenv file loaded before the configuration")
	logLevel := flag.String("log-level", os.Getenv("OPGW_LOG_LEVEL"),
		"Log level override (debug, info, warn, error)")
	logFormat := flag.String("log-format", os.Getenv("OPGW_LOG_FORMAT"),
		"Log format override (json, console)")
	watch := flag.Bool("watch", getEnvBool("OPGW_WATCH_CONFIG", true),
		"Reload rate limits when the configuration file changes")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		envFile:     *envFile,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		watch:       *watch,
		showVersion: *showVersion,
	}
}

func printVersion() {
	fmt.Printf("opgw version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// loadEnvFile loads path into the environment. A missing file is not an
// error; variables already set win.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

func run(flags cliFlags) error {
	path, err := config.ResolveConfigPath(flags.configPath)
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	applyLogOverrides(cfg, flags)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Observability.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting opgw",
		observability.String("version", version),
		observability.String("config", path),
		observability.String("cache", cfg.Cache.Backend),
		observability.String("rate_limit_store", cfg.RateLimitStore.Backend),
		observability.Bool("storage", cfg.Storage.Enabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var watcher *config.Watcher
	if flags.watch {
		watcher = startConfigWatcher(ctx, app, path)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- app.server.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err = <-serveErr:
		if err != nil {
			logger.Error("server failed", observability.Error(err))
		}
	}

	shutdown(app, watcher)
	return err
}

func applyLogOverrides(cfg *config.Config, flags cliFlags) {
	if flags.logLevel != "" {
		cfg.Observability.Logging.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Observability.Logging.Format = flags.logFormat
	}
}

func startConfigWatcher(ctx context.Context, app *application, path string) *config.Watcher {
	watcher, err := config.NewWatcher(path, app.reload,
		config.WithLogger(app.logger),
		config.WithErrorCallback(func(err error) {
			app.logger.Warn("configuration reload rejected", observability.Error(err))
		}),
	)
	if err != nil {
		app.logger.Warn("failed to create config watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(ctx); err != nil {
		app.logger.Warn("failed to start config watcher", observability.Error(err))
		return nil
	}

	return watcher
}

func shutdown(app *application, watcher *config.Watcher) {
	ctx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout.Duration())
	defer cancel()

	if watcher != nil {
		_ = watcher.Stop()
	}

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("failed to stop server gracefully", observability.Error(err))
	}

	if err := app.close(ctx); err != nil {
		app.logger.Error("failed to release resources", observability.Error(err))
	}

	app.logger.Info("opgw stopped")
}
