// Package app assembles the service graph shared by the HTTP server and the
// command line tool.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"lgtmagic/internal/client/iplookup"
	"lgtmagic/internal/client/moderation"
	"lgtmagic/internal/config"
	"lgtmagic/internal/handler"
	"lgtmagic/internal/repository"
	"lgtmagic/internal/service"
	"lgtmagic/pkg/codec"
)

type App struct {
	Services handler.Services
	Store    repository.ObjectStore

	closers []func()
	log     *zap.Logger
}

// New connects the object store and the quota backend and builds every
// service on top of them. Close releases the connections.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	s3Store, err := repository.NewS3Repository(ctx, &cfg.S3, log)
	if err != nil {
		return nil, fmt.Errorf("init object store: %w", err)
	}
	store := repository.NewCachedObjectStore(s3Store, cfg.S3.ListCacheTTL, log)

	a := &App{Store: store, log: log}

	quotaRepo, err := a.openQuotaRepository(ctx, &cfg.Quota)
	if err != nil {
		a.Close()
		return nil, err
	}

	vision := moderation.NewClient(cfg.Moderation.Endpoint, cfg.Moderation.APIKey, cfg.Moderation.Timeout, log)
	if !vision.Enabled() {
		log.Warn("VISION_API_KEY not set, content moderation is disabled")
	}

	admin, err := service.NewAdminService(cfg.Admin.Password, cfg.Admin.SessionSecret, cfg.Admin.SessionTTL, nil, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	quota := service.NewQuotaService(quotaRepo, cfg.Quota.DailyLimit, nil, log)
	gate := service.NewContentGate(vision, log)
	loader := service.NewSourceLoader(cfg.App.MaxUploadSize, cfg.App.SourceFetchTimeout, cfg.App.AllowPrivateSources, log)

	a.Services = handler.Services{
		Uploads: service.NewUploadService(loader, quota, gate, store, codec.NewEncoder(log), service.UploadOptions{
			DefaultFormat:  cfg.App.OutputFormat,
			DefaultQuality: cfg.App.OutputQuality,
		}, log),
		Gallery:  service.NewGalleryService(store, cfg.App.GalleryLimit, log),
		Quota:    quota,
		Gate:     gate,
		Admin:    admin,
		Identity: service.NewIdentityResolver(iplookup.NewClient(cfg.IPLookup.URL, cfg.IPLookup.Timeout, log), loc, log),
	}

	return a, nil
}

func (a *App) openQuotaRepository(ctx context.Context, cfg *config.QuotaConfig) (repository.QuotaRepository, error) {
	switch cfg.Backend {
	case config.QuotaBackendPostgres:
		pool, err := repository.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		repo := repository.NewPostgresQuotaRepository(pool, a.log)
		a.closers = append(a.closers, repo.Close)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("prepare quota schema: %w", err)
		}
		a.log.Info("Quota ledger ready", zap.String("backend", cfg.Backend))
		return repo, nil

	case config.QuotaBackendRedis:
		client, err := repository.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		repo := repository.NewRedisQuotaRepository(client, a.log)
		a.closers = append(a.closers, func() {
			if err := repo.Close(); err != nil {
				a.log.Warn("Failed to close redis client", zap.Error(err))
			}
		})
		a.log.Info("Quota ledger ready", zap.String("backend", cfg.Backend))
		return repo, nil

	case config.QuotaBackendMemory:
		a.log.Warn("Using in-memory quota ledger, counts reset on restart")
		return repository.NewMemoryQuotaRepository(), nil

	default:
		return nil, fmt.Errorf("unknown quota backend %q", cfg.Backend)
	}
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
