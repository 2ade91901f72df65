package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MdWarishh/visa-management-backend/internal/domain"
	"github.com/MdWarishh/visa-management-backend/internal/handler"
	"github.com/MdWarishh/visa-management-backend/internal/infrastructure/redis"
	"github.com/MdWarishh/visa-management-backend/internal/repository"
	"github.com/MdWarishh/visa-management-backend/internal/worker"
	"github.com/MdWarishh/visa-management-backend/pkg/config"
	"github.com/MdWarishh/visa-management-backend/pkg/database"
)

const memoryQueueSize = 256

type stores struct {
	kind       string
	principals domain.PrincipalRepository
	candidates domain.CandidateRepository
	queue      domain.RenderQueue
	checks     map[string]handler.Checker
	closers    []func() error
}

// openStores connects the repositories and the render queue selected by cfg.
func openStores(ctx context.Context, cfg *config.Config, log *slog.Logger) (*stores, error) {
	st := &stores{checks: map[string]handler.Checker{}}

	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		st.kind = "memory"
		st.principals = repository.NewMemoryPrincipalRepository()
		st.candidates = repository.NewMemoryCandidateRepository()
	} else {
		pool, err := database.NewConnectionPool(ctx, &database.Config{
			URL:             cfg.DatabaseURL,
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		}, log)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, pool.Close)
		if err := repository.Migrate(ctx, pool.GetDB()); err != nil {
			st.close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		st.kind = "postgres"
		st.principals = repository.NewPostgresPrincipalRepository(pool.GetDB(), log)
		st.candidates = repository.NewPostgresCandidateRepository(pool.GetDB(), log)
		st.checks["database"] = pool.Health
	}

	switch cfg.RenderQueue {
	case "redis":
		client, err := redis.NewClient(ctx, cfg.RedisURL, log)
		if err != nil {
			st.close()
			return nil, err
		}
		st.closers = append(st.closers, client.Close)
		st.queue = redis.NewRenderQueue(client, redis.DefaultRenderQueueKey)
		st.checks["redis"] = client.Ping
	default:
		st.queue = worker.NewChannelQueue(memoryQueueSize)
	}
	return st, nil
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}
