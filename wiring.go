package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/jupark12/docshift/config"
	"github.com/jupark12/docshift/enhance"
	"github.com/jupark12/docshift/store"
)

// openStore returns the Postgres store when DATABASE_URL is set and the
// in-memory store otherwise. The cleanup func is never nil.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (store.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Info().Msg("using in-memory document store")
		return store.NewMemoryStore(), func() {}, nil
	}

	if err := store.Migrate(cfg.DatabaseURL, logger); err != nil {
		return nil, nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("unable to reach database: %w", err)
	}

	var docs store.Store = store.NewPostgresStore(pool)
	if cfg.PayloadCacheSize > 0 {
		docs = store.NewCachedStore(docs, cfg.PayloadCacheSize, cfg.PayloadCacheTTL)
	}
	logger.Info().Int("payload_cache_size", cfg.PayloadCacheSize).Msg("using postgres document store")
	return docs, pool.Close, nil
}

// openEnhancer builds the configured model client wrapped with the rate-limit
// fallback.
func openEnhancer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (enhance.Enhancer, func(), error) {
	var (
		base    enhance.Enhancer
		cleanup = func() {}
	)

	switch cfg.AIProvider {
	case config.ProviderOpenAI:
		o, err := enhance.NewOpenAI(enhance.OpenAIOptions{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
		})
		if err != nil {
			return nil, nil, err
		}
		base = o
	case config.ProviderVertex:
		v, err := enhance.NewVertex(ctx, cfg.VertexProjectID, cfg.VertexRegion, cfg.VertexModel)
		if err != nil {
			return nil, nil, err
		}
		base = v
		cleanup = func() {
			if err := v.Close(); err != nil {
				logger.Warn().Err(err).Msg("failed to close vertex client")
			}
		}
	default:
		logger.Warn().Msg("no AI provider configured, documents are converted without enhancement")
		return enhance.Passthrough{}, cleanup, nil
	}

	logger.Info().Str("provider", cfg.AIProvider).Msg("AI enhancement enabled")
	return enhance.WithFallback(base, func(err error) {
		logger.Warn().Err(err).Msg("enhancement rate limited")
	}), cleanup, nil
}
