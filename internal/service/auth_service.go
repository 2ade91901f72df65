package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MdWarishh/visa-management-backend/internal/domain"
	"github.com/MdWarishh/visa-management-backend/internal/observability/metrics"
	"github.com/MdWarishh/visa-management-backend/internal/security/auth"
)

const (
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = 15 * time.Minute
	DefaultSessionTTL       = 8 * time.Hour
)

// AccountGuard verifies credentials, enforces progressive lockout and issues
// session tokens.
//
// Sessions are stateless: EndSession does not revoke anything server side and
// a captured token stays valid until it expires.
type AccountGuard struct {
	principals domain.PrincipalRepository
	hasher     *auth.Hasher
	tokens     *auth.TokenManager
	threshold  int
	lockFor    time.Duration
	sessionTTL map[domain.Tier]time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// GuardOption configures an AccountGuard.
type GuardOption func(*AccountGuard)

// WithClock overrides the time source.
func WithClock(now func() time.Time) GuardOption {
	return func(g *AccountGuard) {
		if now != nil {
			g.now = now
		}
	}
}

// WithLockout sets the failure threshold and lock duration.
func WithLockout(threshold int, d time.Duration) GuardOption {
	return func(g *AccountGuard) {
		if threshold > 0 {
			g.threshold = threshold
		}
		if d > 0 {
			g.lockFor = d
		}
	}
}

// WithSessionTTL sets the session lifetime for one tier.
func WithSessionTTL(tier domain.Tier, d time.Duration) GuardOption {
	return func(g *AccountGuard) {
		if d > 0 {
			g.sessionTTL[tier] = d
		}
	}
}

// NewAccountGuard creates a new account guard
func NewAccountGuard(
	principals domain.PrincipalRepository,
	hasher *auth.Hasher,
	tokens *auth.TokenManager,
	logger *slog.Logger,
	opts ...GuardOption,
) *AccountGuard {
	if logger == nil {
		logger = slog.Default()
	}

	g := &AccountGuard{
		principals: principals,
		hasher:     hasher,
		tokens:     tokens,
		threshold:  DefaultLockoutThreshold,
		lockFor:    DefaultLockoutDuration,
		sessionTTL: map[domain.Tier]time.Duration{},
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Session is the result of a successful authentication.
type Session struct {
	Token     string                  `json:"token"`
	TokenType string                  `json:"tokenType"`
	ExpiresAt time.Time               `json:"expiresAt"`
	Principal domain.PrincipalSummary `json:"user"`
}

// Authenticate verifies identity and secret.
func (g *AccountGuard) Authenticate(ctx context.Context, identity, secret string) (*Session, error) {
	email := domain.NormalizeEmail(identity)
	if email == "" || secret == "" {
		return nil, domain.NewValidationError("email and password are required")
	}

	p, err := g.principals.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			g.logger.Info("login attempt with unknown email", slog.String("email", email))
			metrics.ObserveLogin("unknown")
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("load principal: %w", err)
	}

	now := g.now()
	if p.IsLocked(now) {
		metrics.ObserveLogin("locked")
		return nil, &domain.LockedError{MinutesLeft: minutesLeft(*p.LockedUntil, now)}
	}

	if !p.IsActive {
		metrics.ObserveLogin("disabled")
		return nil, domain.ErrDisabled
	}

	ok, err := g.hasher.Verify(p.SecretHash, secret)
	if err != nil {
		g.logger.Error("failed to verify secret",
			slog.String("principal_id", p.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("verify secret: %w", err)
	}
	if !ok {
		return nil, g.recordFailure(ctx, p, now)
	}

	if err := g.principals.RecordSuccessfulLogin(ctx, p.ID, now); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}

	ttl := g.ttlFor(p.Tier)
	token, expiresAt, err := g.tokens.GenerateToken(p.ID, now, ttl)
	if err != nil {
		g.logger.Error("failed to sign token", slog.String("error", err.Error()))
		return nil, fmt.Errorf("issue session: %w", err)
	}

	p.FailedAttempts = 0
	p.LockedUntil = nil
	p.LastLoginAt = &now

	g.logger.Info("principal logged in",
		slog.String("principal_id", p.ID),
		slog.String("email", p.Email),
		slog.String("role", string(p.Tier)),
	)
	metrics.ObserveLogin("success")

	return &Session{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expiresAt,
		Principal: p.Summary(),
	}, nil
}

func (g *AccountGuard) recordFailure(ctx context.Context, p *domain.Principal, now time.Time) error {
	res, err := g.principals.RecordFailedAttempt(ctx, p.ID, g.threshold, now, now.Add(g.lockFor))
	if err != nil {
		return fmt.Errorf("record failed attempt: %w", err)
	}

	if res.LockedUntil != nil && res.LockedUntil.After(now) {
		if res.Attempts == g.threshold {
			metrics.ObserveLockout()
			g.logger.Warn("account locked",
				slog.String("principal_id", p.ID),
				slog.String("email", p.Email),
				slog.Time("locked_until", *res.LockedUntil),
			)
		}
		metrics.ObserveLogin("locked")
		return &domain.LockedError{MinutesLeft: minutesLeft(*res.LockedUntil, now)}
	}

	g.logger.Info("login failed with wrong secret",
		slog.String("email", p.Email),
		slog.Int("failed_attempts", res.Attempts),
	)
	metrics.ObserveLogin("invalid")
	return &domain.CredentialsError{AttemptsLeft: max(0, g.threshold-res.Attempts)}
}

// VerifySession checks a token and returns the current principal summary.
func (g *AccountGuard) VerifySession(ctx context.Context, token string) (domain.PrincipalSummary, error) {
	claims, err := g.tokens.ValidateToken(token, g.now())
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return domain.PrincipalSummary{}, domain.ErrSessionExpired
		}
		return domain.PrincipalSummary{}, domain.ErrSessionInvalid
	}

	p, err := g.principals.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.PrincipalSummary{}, domain.ErrSessionInvalid
		}
		return domain.PrincipalSummary{}, fmt.Errorf("load principal: %w", err)
	}
	if !p.IsActive {
		return domain.PrincipalSummary{}, domain.ErrDisabled
	}
	return p.Summary(), nil
}

// EndSession is a no-op; the client discards the token.
func (g *AccountGuard) EndSession(_ context.Context, principalID string) {
	g.logger.Debug("session ended by client", slog.String("principal_id", principalID))
}

// ChangeSecret replaces a principal's own secret after verifying the current one.
func (g *AccountGuard) ChangeSecret(ctx context.Context, principalID, current, next string) error {
	if len(next) < minUserSecretLength {
		return domain.NewValidationError(fmt.Sprintf("new password must be at least %d characters", minUserSecretLength))
	}

	p, err := g.principals.GetByID(ctx, principalID)
	if err != nil {
		return err
	}

	now := g.now()
	if p.IsLocked(now) {
		return &domain.LockedError{MinutesLeft: minutesLeft(*p.LockedUntil, now)}
	}

	ok, err := g.hasher.Verify(p.SecretHash, current)
	if err != nil {
		return fmt.Errorf("verify secret: %w", err)
	}
	if !ok {
		// Wrong current secrets count toward the same lockout as failed logins.
		err := g.recordFailure(ctx, p, now)
		var creds *domain.CredentialsError
		if errors.As(err, &creds) {
			return domain.NewValidationError(fmt.Sprintf("current password is incorrect, %d attempt(s) left", creds.AttemptsLeft))
		}
		return err
	}

	hash, err := g.hasher.Hash(next)
	if err != nil {
		g.logger.Error("failed to hash new secret", slog.String("error", err.Error()))
		return err
	}
	if err := g.principals.ResetSecret(ctx, principalID, hash); err != nil {
		return fmt.Errorf("store secret: %w", err)
	}

	g.logger.Info("principal changed secret", slog.String("principal_id", principalID))
	return nil
}

func (g *AccountGuard) ttlFor(tier domain.Tier) time.Duration {
	if d, ok := g.sessionTTL[tier]; ok {
		return d
	}
	return DefaultSessionTTL
}

// minutesLeft is the remaining lock time rounded up to whole minutes.
func minutesLeft(until, now time.Time) int {
	ms := until.Sub(now).Milliseconds()
	if ms <= 0 {
		return 0
	}
	return int((ms + 59999) / 60000)
}
