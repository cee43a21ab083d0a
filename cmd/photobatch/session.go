package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/photo-batch-client/internal/config"
	"github.com/Sternrassler/photo-batch-client/pkg/activity"
	"github.com/Sternrassler/photo-batch-client/pkg/albums"
	"github.com/Sternrassler/photo-batch-client/pkg/batch"
	"github.com/Sternrassler/photo-batch-client/pkg/cache"
	"github.com/Sternrassler/photo-batch-client/pkg/gateway"
	"github.com/Sternrassler/photo-batch-client/pkg/metrics"
	"github.com/Sternrassler/photo-batch-client/pkg/pagination"
)

// session wires one editor with its gateway, catalog and activity tracking.
type session struct {
	cfg         config.Config
	logger      zerolog.Logger
	coordinator *activity.Coordinator
	gateway     *gateway.Client
	catalog     *albums.CachedCatalog
	editor      *batch.Editor
	redis       *redis.Client

	cancel  context.CancelFunc
	closers []func()
}

func openSession(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*session, error) {
	s := &session{
		cfg:         cfg,
		logger:      logger,
		coordinator: activity.NewCoordinator(logger),
	}
	ctx, s.cancel = context.WithCancel(ctx)

	gw, err := gateway.New(gateway.DefaultConfig(cfg.APIURL, cfg.Token))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("create gateway: %w", err)
	}
	s.gateway = gw

	var manager *cache.Manager
	if cfg.UsesRedis() {
		s.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		s.closers = append(s.closers, func() { s.redis.Close() })

		if err := s.redis.Ping(ctx).Err(); err != nil {
			s.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		logger.Info().Str("addr", cfg.RedisAddr).Msg("Connected to Redis")

		manager = cache.NewManager(s.redis)

		mirror, unsubscribe := activity.NewRedisMirror(s.redis, s.coordinator, logger)
		s.closers = append(s.closers, unsubscribe)
		go func() {
			if err := mirror.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn().Err(err).Msg("Activity mirror stopped")
			}
		}()
	}

	catalogCfg := albums.DefaultCachedCatalogConfig(gw, manager)
	catalogCfg.TTL = cfg.CatalogTTL
	catalogCfg.Tracker = s.coordinator
	catalogCfg.Logger = logger
	s.catalog, err = albums.NewCachedCatalog(catalogCfg)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("create album catalog: %w", err)
	}

	chunkCfg := pagination.DefaultConfig()
	chunkCfg.ChunkSize = cfg.ChunkSize

	s.editor, err = batch.New(batch.Config{
		Gateway:  pagination.NewChunkedGateway(gw, chunkCfg),
		Tracker:  s.coordinator,
		Catalogs: map[batch.FieldName]albums.Catalog{batch.FieldAlbums: s.catalog},
		Logger:   logger,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("create editor: %w", err)
	}

	if cfg.MetricsAddr != "" {
		s.serveMetrics(cfg.MetricsAddr)
	}

	return s, nil
}

func (s *session) serveMetrics(addr string) {
	server := metrics.NewServer(addr)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Serving metrics")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	s.closers = append(s.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	})
}

// waitIdle blocks until all network activity of the session has settled.
func (s *session) waitIdle(ctx context.Context) error {
	return s.coordinator.Wait(ctx, s.cfg.IdleDelay, s.cfg.WaitTimeout)
}

// Close stops background work and releases connections in reverse order.
func (s *session) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
