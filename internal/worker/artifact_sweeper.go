package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/MdWarishh/visa-management-backend/internal/domain"
	"github.com/MdWarishh/visa-management-backend/internal/observability/metrics"
)

const sweepBatch = 100

// ArtifactSweeper periodically re-enqueues issued records that have no
// rendered artifact.
type ArtifactSweeper struct {
	candidates domain.CandidateRepository
	queue      domain.RenderQueue
	statuses   []domain.Status
	interval   time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

func NewArtifactSweeper(
	candidates domain.CandidateRepository,
	queue domain.RenderQueue,
	statuses []domain.Status,
	interval time.Duration,
	logger *slog.Logger,
) *ArtifactSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArtifactSweeper{
		candidates: candidates,
		queue:      queue,
		statuses:   statuses,
		interval:   interval,
		now:        time.Now,
		logger:     logger,
	}
}

// Start runs Sweep on every tick until ctx is cancelled.
func (s *ArtifactSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("artifact sweeper started", slog.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("artifact sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep enqueues one batch and returns how many requests were published.
func (s *ArtifactSweeper) Sweep(ctx context.Context) int {
	missing, err := s.candidates.ListMissingArtifacts(ctx, s.statuses, sweepBatch)
	if err != nil {
		s.logger.Error("failed to list records missing artifacts", slog.String("error", err.Error()))
		return 0
	}

	published := 0
	for _, c := range missing {
		err := s.queue.Publish(ctx, domain.RenderRequest{CandidateID: c.ID, RequestedAt: s.now()})
		metrics.ObserveRenderQueued("sweeper", err)
		if err != nil {
			s.logger.Warn("failed to re-enqueue render",
				slog.String("candidate_id", c.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		published++
	}
	if published > 0 {
		s.logger.Info("re-enqueued missing artifacts", slog.Int("count", published))
	}
	return published
}
