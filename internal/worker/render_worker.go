package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MdWarishh/visa-management-backend/internal/domain"
	"github.com/MdWarishh/visa-management-backend/internal/observability/metrics"
	"github.com/MdWarishh/visa-management-backend/internal/observability/tracing"
	"github.com/MdWarishh/visa-management-backend/internal/reliability/circuitbreaker"
	"github.com/MdWarishh/visa-management-backend/internal/reliability/retry"
)

// Renderer produces the artifact for a record and returns its stored path.
type Renderer interface {
	Render(ctx context.Context, c *domain.Candidate) (string, error)
}

// ArtifactAttacher stores a rendered artifact path on a record.
type ArtifactAttacher interface {
	AttachArtifact(ctx context.Context, id, path string) error
}

// RenderWorker consumes render requests and attaches the rendered artifact.
// Failures are logged and counted; the sweeper re-enqueues what is missing.
type RenderWorker struct {
	queue      domain.RenderQueue
	candidates domain.CandidateRepository
	renderer   Renderer
	attacher   ArtifactAttacher
	eligible   func(domain.Status) bool
	breaker    *circuitbreaker.Breaker
	retry      *retry.Config
	idle       time.Duration
	logger     *slog.Logger
}

// NewRenderWorker creates a new render worker
func NewRenderWorker(
	queue domain.RenderQueue,
	candidates domain.CandidateRepository,
	renderer Renderer,
	attacher ArtifactAttacher,
	eligible func(domain.Status) bool,
	logger *slog.Logger,
) *RenderWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RenderWorker{
		queue:      queue,
		candidates: candidates,
		renderer:   renderer,
		attacher:   attacher,
		eligible:   eligible,
		breaker:    circuitbreaker.New(5, 30*time.Second),
		retry: &retry.Config{
			MaxAttempts:       3,
			InitialBackoff:    200 * time.Millisecond,
			MaxBackoff:        2 * time.Second,
			BackoffMultiplier: 2,
		},
		idle:   time.Second,
		logger: logger,
	}
}

// WithRetry replaces the render retry policy and returns the worker.
func (w *RenderWorker) WithRetry(cfg *retry.Config) *RenderWorker {
	w.retry = cfg
	return w
}

// Start consumes the queue until ctx is cancelled.
func (w *RenderWorker) Start(ctx context.Context) {
	w.logger.Info("render worker started")
	w.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		w.logger.Warn("renderer circuit changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})

	for {
		req, err := w.queue.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("render worker stopped")
				return
			}
			w.logger.Error("failed to consume render request", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				w.logger.Info("render worker stopped")
				return
			case <-time.After(w.idle):
			}
			continue
		}
		if err := w.Handle(ctx, req); err != nil {
			w.logger.Error("render failed",
				slog.String("candidate_id", req.CandidateID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Handle renders one request. Deleted or no longer eligible records are skipped.
func (w *RenderWorker) Handle(ctx context.Context, req domain.RenderRequest) (err error) {
	ctx, span := tracing.Start(ctx, "render.handle", attribute.String("candidate.id", req.CandidateID))
	defer func() { tracing.End(span, err) }()

	logger := w.logger.With(slog.String("candidate_id", req.CandidateID))

	c, err := w.candidates.GetByID(ctx, req.CandidateID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Warn("render requested for unknown record")
			return nil
		}
		return err
	}
	if c.IsDeleted || !w.eligible(c.Status) {
		logger.Debug("skipping render", slog.String("status", string(c.Status)), slog.Bool("deleted", c.IsDeleted))
		return nil
	}

	if !w.breaker.Allow() {
		metrics.ObserveRender("circuit_open", 0)
		return errors.Join(domain.ErrRenderingFailed, circuitbreaker.ErrOpen)
	}

	start := time.Now()
	path, err := retry.Do(ctx, w.retry, logger, "render_artifact", func(ctx context.Context, _ int) (string, error) {
		return w.renderer.Render(ctx, c)
	})
	w.breaker.Record(err)
	if err != nil {
		metrics.ObserveRender("error", time.Since(start))
		return errors.Join(domain.ErrRenderingFailed, err)
	}
	metrics.ObserveRender("success", time.Since(start))

	if err := w.attacher.AttachArtifact(ctx, c.ID, path); err != nil {
		return err
	}
	logger.Info("artifact rendered", slog.String("path", path), slog.Duration("duration", time.Since(start)))
	return nil
}
