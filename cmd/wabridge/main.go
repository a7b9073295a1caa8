package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wabridge/internal/config"
	"wabridge/internal/constants"
	"wabridge/internal/retry"
	"wabridge/internal/service"
	"wabridge/internal/tracing"
	"wabridge/pkg/whatsapp"
	watypes "wabridge/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose = flag.Bool("verbose", false, "Enable verbose logging (includes sensitive information)")
	version = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("wabridge %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting wabridge")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - sensitive information will be logged")
	} else {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
			level = logrus.InfoLevel
		}
		logger.SetLevel(level)
	}

	// Initialize OpenTelemetry tracing
	tracingManager := tracing.NewManager(cfg.Tracing, Version, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	// Open the credential store with exponential backoff; sqlite may be
	// briefly locked by an exiting predecessor.
	var factory watypes.SessionFactory
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(constants.DefaultCredentialInitBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(constants.DefaultCredentialInitMaxMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultCredentialInitAttempts,
		Jitter:       true,
	})

	err = backoff.Retry(ctx, func() error {
		var initErr error
		factory, initErr = whatsapp.NewSessionFactory(ctx, whatsapp.Config{
			SessionDir: cfg.SessionDir,
			Logger:     logger,
		})
		if initErr != nil {
			logger.Warnf("Failed to open credential store: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return fmt.Errorf("failed to open credential store after retries: %w", err)
	}

	resolver, err := service.NewIdentityResolver(cfg.SessionDir, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize identity resolver: %w", err)
	}
	defer func() {
		if err := resolver.Close(); err != nil {
			logger.Warnf("Failed to flush identity mappings: %v", err)
		}
	}()

	content := service.NewRetransmissionStore(constants.DefaultRetransmissionCacheSize)
	dispatcher := service.NewWebhookDispatcher(cfg.WebhookURL, cfg.APIKey, logger)

	supervisor := service.NewSupervisor(factory, resolver, content, dispatcher, logger, service.SupervisorOptions{})
	defer supervisor.Shutdown()

	// A failed first connection is not fatal: the API stays up and reports
	// the error through /status.
	if err := supervisor.Start(ctx); err != nil {
		logger.Warnf("Initial connection failed: %v", err)
	}

	server := NewServer(cfg, supervisor, logger)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}
