package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"time"

	"github.com/MdWarishh/visa-management-backend/internal/domain"
	"github.com/MdWarishh/visa-management-backend/internal/observability/metrics"
	"github.com/MdWarishh/visa-management-backend/internal/reliability/retry"
)

const (
	DefaultVisaPrefix           = "VN"
	DefaultAllocatorMaxAttempts = 10
)

// errVisaCollision marks a generated number that is already taken.
var errVisaCollision = errors.New("visa number collision")

// AllocatorConfig holds identifier allocation settings.
type AllocatorConfig struct {
	Prefix      string
	MaxAttempts int
}

// IdentifierAllocator reserves globally unique visa numbers. The probe is an
// early exit only; the store's unique index is what guarantees uniqueness.
type IdentifierAllocator struct {
	candidates  domain.CandidateRepository
	prefix      string
	maxAttempts int
	suffix      func() int
	now         func() time.Time
	logger      *slog.Logger
}

// AllocatorOption configures an IdentifierAllocator.
type AllocatorOption func(*IdentifierAllocator)

// WithSuffixSource replaces the random 8-digit suffix generator.
func WithSuffixSource(fn func() int) AllocatorOption {
	return func(a *IdentifierAllocator) {
		if fn != nil {
			a.suffix = fn
		}
	}
}

// WithAllocatorClock overrides the time source used for the year and issue date.
func WithAllocatorClock(now func() time.Time) AllocatorOption {
	return func(a *IdentifierAllocator) {
		if now != nil {
			a.now = now
		}
	}
}

func NewIdentifierAllocator(candidates domain.CandidateRepository, cfg AllocatorConfig, logger *slog.Logger, opts ...AllocatorOption) *IdentifierAllocator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultVisaPrefix
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultAllocatorMaxAttempts
	}
	a := &IdentifierAllocator{
		candidates:  candidates,
		prefix:      cfg.Prefix,
		maxAttempts: cfg.MaxAttempts,
		suffix:      randomSuffix,
		now:         time.Now,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func randomSuffix() int {
	return 10000000 + rand.IntN(90000000)
}

// Format renders a visa number for the given year and suffix.
func (a *IdentifierAllocator) Format(year, suffix int) string {
	return fmt.Sprintf("%s%d%08d", a.prefix, year, suffix)
}

// Pattern matches numbers produced by this allocator.
func (a *IdentifierAllocator) Pattern() *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(a.prefix) + `\d{4}\d{8}$`)
}

// Allocate reserves a fresh visa number on the candidate and returns it. When
// the candidate already carries a number, that number is returned unchanged.
func (a *IdentifierAllocator) Allocate(ctx context.Context, candidateID string) (string, error) {
	return a.Reserve(ctx, candidateID, func(ctx context.Context, next string) (string, error) {
		err := a.candidates.AssignVisaNumber(ctx, candidateID, next, a.now())
		var conflict *domain.ConflictError
		if errors.As(err, &conflict) && conflict.Field == "visaNumber" && conflict.Value != "" && conflict.Value != next {
			// another writer already allocated for this record
			return conflict.Value, nil
		}
		return next, err
	})
}

// Reserve draws candidate numbers and hands each to write, which must store it
// atomically and return the number actually stored. A ConflictError on
// visaNumber carrying the offered number is a collision and triggers another
// draw; any other error ends the loop unchanged.
func (a *IdentifierAllocator) Reserve(ctx context.Context, candidateID string, write func(ctx context.Context, number string) (string, error)) (string, error) {
	cfg := &retry.Config{
		MaxAttempts: a.maxAttempts,
		RetryIf:     func(err error) bool { return errors.Is(err, errVisaCollision) },
	}

	var attempts int
	number, err := retry.Do(ctx, cfg, a.logger, "allocate_visa_number", func(ctx context.Context, attempt int) (string, error) {
		attempts = attempt
		next := a.Format(a.now().Year(), a.suffix())

		taken, err := a.candidates.VisaNumberExists(ctx, next)
		if err != nil {
			return "", err
		}
		if taken {
			return "", errVisaCollision
		}

		stored, err := write(ctx, next)
		var conflict *domain.ConflictError
		if errors.As(err, &conflict) && conflict.Field == "visaNumber" && conflict.Value == next {
			return "", errVisaCollision
		}
		return stored, err
	})
	if err != nil {
		if errors.Is(err, errVisaCollision) {
			metrics.ObserveAllocation("exhausted", attempts)
			a.logger.Error("visa number allocation exhausted",
				slog.String("candidate_id", candidateID),
				slog.Int("attempts", attempts),
			)
			return "", fmt.Errorf("%w: no free visa number after %d attempts", domain.ErrAllocationExhausted, attempts)
		}
		metrics.ObserveAllocation("error", attempts)
		return "", err
	}

	metrics.ObserveAllocation("success", attempts)
	a.logger.Info("visa number allocated",
		slog.String("candidate_id", candidateID),
		slog.String("visa_number", number),
		slog.Int("attempts", attempts),
	)
	return number, nil
}
