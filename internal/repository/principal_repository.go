package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MdWarishh/visa-management-backend/internal/domain"
)

// PostgresPrincipalRepository implements domain.PrincipalRepository using PostgreSQL
type PostgresPrincipalRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresPrincipalRepository creates a new principal repository
func NewPostgresPrincipalRepository(db *sql.DB, logger *slog.Logger) *PostgresPrincipalRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresPrincipalRepository{
		db:     db,
		logger: logger,
	}
}

const principalColumns = `id, name, email, secret_hash, tier, COALESCE(created_by, ''),
		can_create, can_modify, can_delete, can_export, can_download, can_view,
		is_active, failed_attempts, locked_until, last_login_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrincipal(row rowScanner) (*domain.Principal, error) {
	p := &domain.Principal{}
	var tier string
	var lockedUntil, lastLogin sql.NullTime
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.SecretHash,
		&tier,
		&p.CreatedBy,
		&p.Capabilities.CanCreate,
		&p.Capabilities.CanModify,
		&p.Capabilities.CanDelete,
		&p.Capabilities.CanExport,
		&p.Capabilities.CanDownload,
		&p.Capabilities.CanView,
		&p.IsActive,
		&p.FailedAttempts,
		&lockedUntil,
		&lastLogin,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Tier = domain.Tier(tier)
	p.LockedUntil = timePtr(lockedUntil)
	p.LastLoginAt = timePtr(lastLogin)
	return p, nil
}

// Create creates a new principal
func (r *PostgresPrincipalRepository) Create(ctx context.Context, p *domain.Principal) error {
	query := `
		INSERT INTO principals (id, name, email, secret_hash, tier, created_by,
			can_create, can_modify, can_delete, can_export, can_download, can_view, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		p.ID,
		p.Name,
		p.Email,
		p.SecretHash,
		string(p.Tier),
		nullString(p.CreatedBy),
		p.Capabilities.CanCreate,
		p.Capabilities.CanModify,
		p.Capabilities.CanDelete,
		p.Capabilities.CanExport,
		p.Capabilities.CanDownload,
		p.Capabilities.CanView,
		p.IsActive,
	).Scan(&p.CreatedAt, &p.UpdatedAt)

	if err != nil {
		if tErr := translateError(err, func(string) string { return p.Email }); tErr != err {
			return tErr
		}
		r.logger.Error("failed to create principal",
			slog.String("email", p.Email),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create principal: %w", err)
	}

	return nil
}

// GetByID retrieves a principal by ID
func (r *PostgresPrincipalRepository) GetByID(ctx context.Context, id string) (*domain.Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE id = $1`

	p, err := scanPrincipal(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error("failed to get principal by id",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to get principal: %w", err)
	}

	return p, nil
}

// GetByEmail retrieves a principal by normalized email
func (r *PostgresPrincipalRepository) GetByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE email = $1`

	p, err := scanPrincipal(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get principal by email: %w", err)
	}

	return p, nil
}

// Update writes profile fields, capabilities and the active flag
func (r *PostgresPrincipalRepository) Update(ctx context.Context, p *domain.Principal) error {
	query := `
		UPDATE principals
		SET name = $1, email = $2, can_create = $3, can_modify = $4, can_delete = $5,
			can_export = $6, can_download = $7, can_view = $8, is_active = $9, updated_at = NOW()
		WHERE id = $10
		RETURNING updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		p.Name,
		p.Email,
		p.Capabilities.CanCreate,
		p.Capabilities.CanModify,
		p.Capabilities.CanDelete,
		p.Capabilities.CanExport,
		p.Capabilities.CanDownload,
		p.Capabilities.CanView,
		p.IsActive,
		p.ID,
	).Scan(&p.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if tErr := translateError(err, func(string) string { return p.Email }); tErr != err {
			return tErr
		}
		return fmt.Errorf("failed to update principal: %w", err)
	}

	return nil
}

// Delete removes a principal; restricted users created by it cascade
func (r *PostgresPrincipalRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM principals WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete principal: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}

	if rows == 0 {
		return domain.ErrNotFound
	}

	return nil
}

func (r *PostgresPrincipalRepository) list(ctx context.Context, where string, arg any) ([]*domain.Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE ` + where + ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		r.logger.Error("failed to list principals",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to list principals: %w", err)
	}
	defer rows.Close()

	principals := []*domain.Principal{}
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan principal: %w", err)
		}
		principals = append(principals, p)
	}

	return principals, rows.Err()
}

// ListByTier lists principals of one tier
func (r *PostgresPrincipalRepository) ListByTier(ctx context.Context, tier domain.Tier) ([]*domain.Principal, error) {
	return r.list(ctx, "tier = $1", string(tier))
}

// ListByCreator lists restricted users owned by an admin
func (r *PostgresPrincipalRepository) ListByCreator(ctx context.Context, creatorID string) ([]*domain.Principal, error) {
	return r.list(ctx, "created_by = $1", creatorID)
}

// CountByTier counts principals of one tier
func (r *PostgresPrincipalRepository) CountByTier(ctx context.Context, tier domain.Tier) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM principals WHERE tier = $1`, string(tier)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count principals: %w", err)
	}
	return n, nil
}

// RecordFailedAttempt increments the counter in one statement so concurrent
// failures cannot read the same pre-increment value.
func (r *PostgresPrincipalRepository) RecordFailedAttempt(ctx context.Context, id string, threshold int, now, lockUntil time.Time) (domain.FailedAttempt, error) {
	query := `
		UPDATE principals
		SET failed_attempts = CASE
				WHEN locked_until IS NOT NULL AND locked_until <= $3 THEN 1
				ELSE failed_attempts + 1
			END,
			locked_until = CASE
				WHEN locked_until IS NOT NULL AND locked_until <= $3 THEN
					CASE WHEN 1 >= $2 THEN $4::timestamptz ELSE NULL END
				WHEN locked_until IS NULL AND failed_attempts + 1 >= $2 THEN $4::timestamptz
				ELSE locked_until
			END,
			updated_at = $3
		WHERE id = $1
		RETURNING failed_attempts, locked_until
	`

	var res domain.FailedAttempt
	var lockedUntil sql.NullTime
	err := r.db.QueryRowContext(ctx, query, id, threshold, now, lockUntil).Scan(&res.Attempts, &lockedUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return res, domain.ErrNotFound
		}
		r.logger.Error("failed to record failed attempt",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return res, fmt.Errorf("failed to record failed attempt: %w", err)
	}
	res.LockedUntil = timePtr(lockedUntil)
	return res, nil
}

// RecordSuccessfulLogin resets lockout state and stamps the login time
func (r *PostgresPrincipalRepository) RecordSuccessfulLogin(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE principals
		SET failed_attempts = 0, locked_until = NULL, last_login_at = $2, updated_at = $2
		WHERE id = $1
	`
	return r.execOne(ctx, "record successful login", query, id, at)
}

// ResetSecret replaces the hash and clears lockout state
func (r *PostgresPrincipalRepository) ResetSecret(ctx context.Context, id, secretHash string) error {
	query := `
		UPDATE principals
		SET secret_hash = $2, failed_attempts = 0, locked_until = NULL, updated_at = NOW()
		WHERE id = $1
	`
	return r.execOne(ctx, "reset secret", query, id, secretHash)
}

func (r *PostgresPrincipalRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}
