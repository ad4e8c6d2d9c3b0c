package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-telegram/bot"
	"github.com/reshetovitsme/tag-feed/internal/di"
	"github.com/reshetovitsme/tag-feed/internal/modules/feed/domain"
	feedService "github.com/reshetovitsme/tag-feed/internal/modules/feed/service"
	"github.com/reshetovitsme/tag-feed/internal/shared/config"
	"github.com/reshetovitsme/tag-feed/internal/shared/logging"
	httpServer "github.com/reshetovitsme/tag-feed/internal/transport/http"
	"github.com/samber/do/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

var (
	flagConfig string
	flagPrint  bool
)

var rootCmd = &cobra.Command{
	Use:           "tag-feed",
	Short:         "Publish recently tagged releases as a feed",
	Long:          "tag-feed watches a repository tags listing and publishes the most recent releases as an RSS, Atom or JSON feed.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the feed over HTTP",
	RunE:  runServe,
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Rebuild and persist the feed once",
	RunE:  runPublish,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "tag-feed %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file")
	publishCmd.Flags().BoolVar(&flagPrint, "print", false, "write the published feed to stdout")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup loads config, installs the default logger and builds the container
func setup() (*config.Config, do.Injector, func(), error) {
	cfg, err := config.LoadFrom(flagConfig)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		return nil, nil, nil, err
	}

	logger, closer := logging.New(logging.Options{
		Level: cfg.LogLevel,
		JSON:  cfg.AppEnv == domain.AppEnvProduction,
		File:  cfg.LogFile,
	})
	slog.SetDefault(logger)

	injector, err := di.Setup(cfg)
	if err != nil {
		closer.Close()
		return nil, nil, nil, oops.With("context", "failed to setup dependency injection").Wrap(err)
	}

	cleanup := func() {
		if err := di.Shutdown(injector); err != nil {
			slog.Error("Error during shutdown", "error", err)
		}
		closer.Close()
	}
	return cfg, injector, cleanup, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, injector, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.TelegramEnabled() {
		b, err := do.Invoke[*bot.Bot](injector)
		if err != nil {
			return err
		}
		go b.Start(ctx)
		slog.Info("Telegram announcements enabled", "chat_id", cfg.TelegramChatID)
	}

	if cfg.PublishMode == domain.PublishModeScheduled {
		refresher := do.MustInvoke[*feedService.Refresher](injector)
		refresher.Start(ctx)
		slog.Info("Scheduled publishing enabled", "interval", cfg.RefreshIntervalDuration())
	}

	server := do.MustInvoke[*httpServer.Server](injector)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	slog.Info("Application started", "port", cfg.HTTPPort, "repository_url", cfg.RepositoryURL)
	slog.Info("Press Ctrl+C to stop")

	select {
	case <-ctx.Done():
		slog.Info("Shutting down...")
		return nil
	case err := <-errCh:
		if err != nil {
			slog.Error("Failed to start HTTP server", "error", err)
		}
		return err
	}
}

func runPublish(cmd *cobra.Command, args []string) error {
	cfg, injector, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.TelegramEnabled() {
		if _, err := do.Invoke[*bot.Bot](injector); err != nil {
			return err
		}
	}

	svc := do.MustInvoke[*feedService.Service](injector)
	data, err := svc.Publish(cmd.Context())
	if err != nil {
		slog.Error("Failed to publish feed", "error", err)
		return err
	}

	if flagPrint {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	slog.Info("Feed published", "cache_name", cfg.CacheName, "bytes", len(data))
	return nil
}
