package di

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	feedRepo "github.com/reshetovitsme/tag-feed/internal/modules/feed/repository"
	feedService "github.com/reshetovitsme/tag-feed/internal/modules/feed/service"
	listingService "github.com/reshetovitsme/tag-feed/internal/modules/listing/service"
	"github.com/reshetovitsme/tag-feed/internal/shared/config"
	httpServer "github.com/reshetovitsme/tag-feed/internal/transport/http"
	telegramHandler "github.com/reshetovitsme/tag-feed/internal/transport/telegram"
	"github.com/samber/do/v2"
	"github.com/samber/oops"
)

// Setup initializes the dependency injection container for cfg
func Setup(cfg *config.Config) (do.Injector, error) {
	injector := do.New()

	// Register Config
	do.ProvideValue(injector, cfg)

	// Register Feed Repository
	do.Provide(injector, func(i do.Injector) (feedRepo.Repository, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo, err := feedRepo.Open(cfg.StorageBackend, cfg.CachePath, cfg.StorageDSN)
		if err != nil {
			return nil, oops.With("storage_backend", cfg.StorageBackend, "cache_path", cfg.CachePath, "context", "failed to initialize feed repository").Wrap(err)
		}
		return repo, nil
	})

	// Register Listing Fetcher
	do.Provide(injector, func(i do.Injector) (listingService.Fetcher, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return listingService.New(cfg.FetchTimeoutDuration()), nil
	})

	// Register Serializer
	do.Provide(injector, func(i do.Injector) (feedService.Serializer, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return feedService.NewSerializer(cfg.FeedFormat)
	})

	// Register Feed Service
	do.Provide(injector, func(i do.Injector) (*feedService.Service, error) {
		cfg := do.MustInvoke[*config.Config](i)
		svc, err := feedService.New(
			feedService.Options{
				RepositoryURL:       cfg.RepositoryURL,
				CacheKey:            cfg.CacheName,
				MaxItems:            cfg.MaxItems,
				CacheTTL:            cfg.CacheTTLDuration(),
				Metadata:            cfg.FeedMetadata(),
				DescriptionTemplate: cfg.ItemDescription,
			},
			do.MustInvoke[listingService.Fetcher](i),
			do.MustInvoke[feedRepo.Repository](i),
			do.MustInvoke[feedService.Serializer](i),
		)
		if err != nil {
			return nil, oops.With("context", "failed to create feed service").Wrap(err)
		}
		return svc, nil
	})

	// Register Refresher
	do.Provide(injector, func(i do.Injector) (*feedService.Refresher, error) {
		cfg := do.MustInvoke[*config.Config](i)
		svc := do.MustInvoke[*feedService.Service](i)
		return feedService.NewRefresher(svc, cfg.RefreshIntervalDuration()), nil
	})

	// Register Telegram Handler
	do.Provide(injector, func(i do.Injector) (*telegramHandler.Handler, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo := do.MustInvoke[feedRepo.Repository](i)
		svc := do.MustInvoke[*feedService.Service](i)
		return telegramHandler.New(cfg, repo, svc), nil
	})

	// Register HTTP Server
	do.Provide(injector, func(i do.Injector) (*httpServer.Server, error) {
		cfg := do.MustInvoke[*config.Config](i)
		svc := do.MustInvoke[*feedService.Service](i)
		server := httpServer.New(cfg, svc)
		server.SetLogger(slog.Default())
		return server, nil
	})

	// Register Bot; only resolvable when telegram is configured
	do.Provide(injector, func(i do.Injector) (*bot.Bot, error) {
		cfg := do.MustInvoke[*config.Config](i)
		if !cfg.TelegramEnabled() {
			return nil, oops.Errorf("telegram bot token and chat id are not configured")
		}
		handler := do.MustInvoke[*telegramHandler.Handler](i)

		opts := []bot.Option{
			bot.WithDefaultHandler(handler.HandleUpdate),
			bot.WithServerURL(cfg.TelegramAPIURL),
		}

		b, err := bot.New(cfg.TelegramBotToken, opts...)
		if err != nil {
			return nil, oops.With("context", "failed to create telegram bot").Wrap(err)
		}

		handler.RegisterCommands(b)
		handler.SetSender(b)

		// Announce releases after every publish
		svc := do.MustInvoke[*feedService.Service](i)
		svc.SetAnnouncer(handler)

		return b, nil
	})

	return injector, nil
}

// Shutdown gracefully shuts down all services
func Shutdown(injector do.Injector) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if server, err := do.Invoke[*httpServer.Server](injector); err == nil && server != nil {
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Error shutting down HTTP server", "error", err)
		}
	}

	if refresher, err := do.Invoke[*feedService.Refresher](injector); err == nil && refresher != nil {
		refresher.Stop()
	}

	// Deliver a queued announcement before the repository goes away
	if svc, err := do.Invoke[*feedService.Service](injector); err == nil && svc != nil {
		svc.Close()
	}

	if repo, err := do.Invoke[feedRepo.Repository](injector); err == nil && repo != nil {
		if err := repo.Close(); err != nil {
			return oops.With("context", "failed to close feed repository").Wrap(err)
		}
	}

	return nil
}
