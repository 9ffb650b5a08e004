package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/relayworks/mailwatch/internal/config"
	"github.com/relayworks/mailwatch/internal/google"
	"github.com/relayworks/mailwatch/internal/instrumentation"
	"github.com/relayworks/mailwatch/internal/logging"
	"github.com/relayworks/mailwatch/internal/notify"
	"github.com/relayworks/mailwatch/internal/server"
	"github.com/relayworks/mailwatch/internal/store"
	"github.com/relayworks/mailwatch/internal/vault"
	"github.com/relayworks/mailwatch/internal/watch"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and metrics servers",
		Long: `Start the registration and lifecycle HTTP server plus, when enabled, the
Prometheus metrics server on its dedicated port.

Configuration comes from the environment (a .env file is honored in
development). Required: GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET,
GOOGLE_REDIRECT_URL, PUBSUB_PROJECT, SESSION_SECRET and, outside
development, FIELD_ENCRYPTION_KEY.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Error("instrumentation shutdown failed", logging.Err(err))
		}
	}()

	v, err := vault.New(cfg.FieldEncryptionKey, logger)
	if err != nil {
		return err
	}

	st, err := store.New(cfg.DatabasePath, v)
	if err != nil {
		return err
	}
	defer st.Close()

	oauthClient := google.NewClient(
		cfg.GoogleClientID,
		cfg.GoogleClientSecret,
		cfg.GoogleRedirectURL,
		cfg.ProviderTimeout,
	)

	manager := watch.NewManager(watch.ManagerConfig{
		Store:         st,
		Tokens:        oauthClient,
		Topic:         cfg.Topic(),
		ChannelPrefix: cfg.PubSubTopicPrefix,
		Logger:        logger,
		Metrics:       provider.Metrics(),
	})

	notifier := notify.New(notify.Config{
		RegistrationURL: cfg.RegistrationWebhookURL,
		RenewalURL:      cfg.RenewalWebhookURL,
		MaxAttempts:     cfg.NotifyMaxAttempts,
		BaseDelay:       cfg.NotifyBaseDelay,
		Timeout:         cfg.NotifyTimeout,
		Logger:          logger,
	})

	srv := server.New(server.Config{
		Addr:          cfg.HTTPAddr,
		SessionSecret: cfg.SessionSecret,
		Store:         st,
		OAuth:         oauthClient,
		Watches:       manager,
		Notifier:      notifier,
		Logger:        logger,
		Metrics:       provider.Metrics(),
		Audit:         instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging),
	})

	var metricsServer *server.MetricsServer
	if cfg.MetricsEnabled && provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.MetricsAddr,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", logging.Err(err))
			}
		}()
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	select {
	case <-shutdownCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("http server stopped with error: %w", err)
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer stopCancel()

	if err := srv.Shutdown(stopCtx); err != nil {
		logger.Error("http server shutdown failed", logging.Err(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(stopCtx); err != nil {
			logger.Error("metrics server shutdown failed", logging.Err(err))
		}
	}
	return nil
}
