package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/relayworks/mailwatch/internal/config"
	"github.com/relayworks/mailwatch/internal/google"
	"github.com/relayworks/mailwatch/internal/instrumentation"
	"github.com/relayworks/mailwatch/internal/logging"
	"github.com/relayworks/mailwatch/internal/notify"
	"github.com/relayworks/mailwatch/internal/store"
	"github.com/relayworks/mailwatch/internal/vault"
	"github.com/relayworks/mailwatch/internal/watch"
)

func newRenewCmd() *cobra.Command {
	var horizonHours int

	cmd := &cobra.Command{
		Use:   "renew",
		Short: "Run one watch-renewal batch",
		Long: `Select every account whose mailbox watch expires within the horizon,
renew each watch concurrently, and report the batch outcome to the
renewal webhook. Intended to run under cron; the serve command does
not renew on its own.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runRenew(horizonHours)
		},
	}

	cmd.Flags().IntVar(&horizonHours, "horizon-hours", 0,
		"renew watches expiring within this many hours (default from RENEWAL_HORIZON_HOURS)")

	return cmd
}

func runRenew(horizonHours int) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if horizonHours <= 0 {
		horizonHours = cfg.RenewalHorizonHours
	}

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	// The batch is a single short-lived pass, Prometheus scraping makes no
	// sense here. Push exporters still work if configured.
	if instrConfig.MetricsExporter == instrumentation.ExporterPrometheus {
		instrConfig.MetricsExporter = instrumentation.ExporterNone
	}

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
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

	scheduler := watch.NewScheduler(watch.SchedulerConfig{
		Store:    st,
		Renewer:  manager,
		Notifier: notifier,
		Logger:   logger,
		Metrics:  provider.Metrics(),
	})

	summary, err := scheduler.RunBatch(ctx, horizonHours)
	if err != nil {
		return err
	}

	logger.Info("renewal batch finished",
		logging.Operation("renew"),
		slog.Int("processed", summary.TotalProcessed),
		slog.Int("successful", summary.Successful),
		slog.Int("failed", summary.Failed))

	if summary.Failed > 0 {
		return fmt.Errorf("renewal batch finished with %d failed renewals", summary.Failed)
	}
	return nil
}
