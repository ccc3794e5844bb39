package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/shopify-source/internal/config"
	"github.com/Sternrassler/shopify-source/pkg/pipeline"
	"github.com/Sternrassler/shopify-source/pkg/ratelimit"
	"github.com/Sternrassler/shopify-source/pkg/shopify"
	"github.com/Sternrassler/shopify-source/pkg/sink"
	"github.com/Sternrassler/shopify-source/pkg/state"
)

// app holds everything a load needs. Fields are nil until opened.
type app struct {
	source *shopify.Source
	redis  *redis.Client
	store  state.Store
	sink   sink.Sink
	runner *pipeline.Runner
}

// openSource builds the Shopify source. With rate_limit.redis_url set, the
// call-limit buckets live in Redis and are shared with other processes
// loading the same shop.
func openSource(ctx context.Context, cfg *config.Config) (*app, error) {
	sc, err := cfg.ShopifyConfig()
	if err != nil {
		return nil, err
	}

	a := &app{}
	var opts []shopify.Option
	if cfg.RateLimit.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RateLimit.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse rate_limit.redis_url: %w", err)
		}
		a.redis = redis.NewClient(redisOpts)
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		opts = append(opts, shopify.WithRateLimitStore(ratelimit.NewRedisStore(a.redis)))
		log.Info().Str("addr", redisOpts.Addr).Msg("Sharing call limits via Redis")
	}

	if a.source, err = shopify.NewSource(sc, opts...); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// openApp opens the source, state store, sink and runner.
func openApp(ctx context.Context, cfg *config.Config, fullRefresh bool) (*app, error) {
	a, err := openSource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if a.store, err = state.Open(ctx, cfg.State.DSN); err != nil {
		a.Close()
		return nil, fmt.Errorf("open state store: %w", err)
	}
	if a.sink, err = sink.Open(ctx, cfg.Destination.DSN); err != nil {
		a.Close()
		return nil, fmt.Errorf("open destination: %w", err)
	}

	pc := cfg.PipelineConfig()
	pc.FullRefresh = pc.FullRefresh || fullRefresh
	if a.runner, err = pipeline.New(a.source, a.store, a.sink, pc); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases everything that was opened.
func (a *app) Close() error {
	var errs []error
	if a.sink != nil {
		errs = append(errs, a.sink.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.source != nil {
		errs = append(errs, a.source.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}
