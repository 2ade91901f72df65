package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/MdWarishh/visa-management-backend/internal/domain"
)

// PostgresCandidateRepository implements domain.CandidateRepository using PostgreSQL.
// Uniqueness is enforced by the partial unique indexes in schema.sql.
type PostgresCandidateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresCandidateRepository creates a new candidate repository
func NewPostgresCandidateRepository(db *sql.DB, logger *slog.Logger) *PostgresCandidateRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresCandidateRepository{db: db, logger: logger}
}

const candidateColumns = `id, tenant_id, identity_type, identity_number, full_name, date_of_birth,
		profession, company_name, application_number, application_date, country, visa_type,
		visa_number, visa_issue_date, visa_expiry_date, status, remarks,
		photo_path, document_path, artifact_path, is_deleted, deleted_at,
		created_by, created_at, updated_at`

func scanCandidate(row rowScanner) (*domain.Candidate, error) {
	c := &domain.Candidate{}
	var identityType, identityNumber, status string
	var visaNumber sql.NullString
	var issueDate, expiryDate, deletedAt sql.NullTime
	err := row.Scan(
		&c.ID,
		&c.TenantID,
		&identityType,
		&identityNumber,
		&c.FullName,
		&c.DateOfBirth,
		&c.Profession,
		&c.CompanyName,
		&c.ApplicationNumber,
		&c.ApplicationDate,
		&c.Country,
		&c.VisaType,
		&visaNumber,
		&issueDate,
		&expiryDate,
		&status,
		&c.Remarks,
		&c.PhotoPath,
		&c.DocumentPath,
		&c.ArtifactPath,
		&c.IsDeleted,
		&deletedAt,
		&c.CreatedBy,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Identity, _ = domain.NewIdentityProof(identityType, identityNumber)
	c.Status = domain.Status(status)
	c.VisaNumber = visaNumber.String
	c.VisaIssueDate = timePtr(issueDate)
	c.VisaExpiryDate = timePtr(expiryDate)
	c.DeletedAt = timePtr(deletedAt)
	return c, nil
}

// conflictValue returns the offending value of c for a conflicting field.
func conflictValue(c *domain.Candidate) func(string) string {
	return func(field string) string {
		switch field {
		case "applicationNumber":
			return c.ApplicationNumber
		case "passportNumber":
			return c.Identity.PassportNumber()
		case "controlNumber":
			return c.Identity.ControlNumber()
		case "visaNumber":
			return c.VisaNumber
		}
		return ""
	}
}

// Insert stores a new candidate together with its first audit entry
func (r *PostgresCandidateRepository) Insert(ctx context.Context, c *domain.Candidate) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO candidates (id, tenant_id, identity_type, identity_number, full_name, date_of_birth,
			profession, company_name, application_number, application_date, country, visa_type,
			visa_issue_date, visa_expiry_date, status, remarks, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $18)
		RETURNING created_at, updated_at
	`
	err = tx.QueryRowContext(ctx, query,
		c.ID,
		c.TenantID,
		string(c.Identity.Kind()),
		c.Identity.Value(),
		c.FullName,
		c.DateOfBirth,
		c.Profession,
		c.CompanyName,
		c.ApplicationNumber,
		c.ApplicationDate,
		c.Country,
		c.VisaType,
		nullTime(c.VisaIssueDate),
		nullTime(c.VisaExpiryDate),
		string(c.Status),
		c.Remarks,
		c.CreatedBy,
		c.CreatedAt,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if tErr := translateError(err, conflictValue(c)); tErr != err {
			return tErr
		}
		r.logger.Error("failed to insert candidate",
			slog.String("application_number", c.ApplicationNumber),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to insert candidate: %w", err)
	}

	for _, entry := range c.History {
		if err := insertHistory(ctx, tx, c.ID, entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit candidate: %w", err)
	}
	return nil
}

func insertHistory(ctx context.Context, tx *sql.Tx, candidateID string, entry domain.StatusEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO candidate_status_history (candidate_id, status, actor, note, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, candidateID, string(entry.Status), entry.Actor, entry.Note, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append status history: %w", err)
	}
	return nil
}

// whereClause renders a filter as SQL conditions starting at placeholder $start.
func whereClause(f domain.CandidateFilter, start int) (string, []any) {
	conds := []string{fmt.Sprintf("is_deleted = $%d", start)}
	args := []any{f.Deleted}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", start+len(args)-1)
	}
	if f.TenantID != "" {
		conds = append(conds, "tenant_id = "+next(f.TenantID))
	}
	if f.Status != "" {
		conds = append(conds, "status = "+next(string(f.Status)))
	}
	if f.Search != "" {
		p := next("%" + escapeLike(f.Search) + "%")
		conds = append(conds, fmt.Sprintf(
			"(full_name ILIKE %[1]s OR identity_number ILIKE %[1]s OR application_number ILIKE %[1]s OR visa_number ILIKE %[1]s)", p))
	}
	return strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Get returns a record matching filter, with its audit trail and download log
func (r *PostgresCandidateRepository) Get(ctx context.Context, filter domain.CandidateFilter, id string) (*domain.Candidate, error) {
	where, args := whereClause(filter, 2)
	query := `SELECT ` + candidateColumns + ` FROM candidates WHERE id = $1 AND ` + where
	c, err := scanCandidate(r.db.QueryRowContext(ctx, query, append([]any{id}, args...)...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get candidate: %w", err)
	}
	if err := r.loadTrails(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// GetByID returns a record regardless of tenant or deletion state
func (r *PostgresCandidateRepository) GetByID(ctx context.Context, id string) (*domain.Candidate, error) {
	query := `SELECT ` + candidateColumns + ` FROM candidates WHERE id = $1`
	c, err := scanCandidate(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get candidate: %w", err)
	}
	if err := r.loadTrails(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *PostgresCandidateRepository) loadTrails(ctx context.Context, c *domain.Candidate) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, actor, note, created_at FROM candidate_status_history
		WHERE candidate_id = $1 ORDER BY id
	`, c.ID)
	if err != nil {
		return fmt.Errorf("failed to load status history: %w", err)
	}
	defer rows.Close()
	c.History = []domain.StatusEntry{}
	for rows.Next() {
		var e domain.StatusEntry
		var status string
		if err := rows.Scan(&status, &e.Actor, &e.Note, &e.Timestamp); err != nil {
			return fmt.Errorf("failed to scan status history: %w", err)
		}
		e.Status = domain.Status(status)
		c.History = append(c.History, e)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	dl, err := r.db.QueryContext(ctx, `
		SELECT downloaded_at, origin FROM candidate_downloads
		WHERE candidate_id = $1 ORDER BY id
	`, c.ID)
	if err != nil {
		return fmt.Errorf("failed to load downloads: %w", err)
	}
	defer dl.Close()
	c.Downloads = []domain.DownloadEntry{}
	for dl.Next() {
		var e domain.DownloadEntry
		if err := dl.Scan(&e.At, &e.Origin); err != nil {
			return fmt.Errorf("failed to scan download: %w", err)
		}
		c.Downloads = append(c.Downloads, e)
	}
	return dl.Err()
}

// List returns one page of records newest first, without trails
func (r *PostgresCandidateRepository) List(ctx context.Context, filter domain.CandidateFilter, page domain.Page) ([]*domain.Candidate, int, error) {
	where, args := whereClause(filter, 1)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM candidates WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count candidates: %w", err)
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM candidates WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		candidateColumns, where, n+1, n+2)
	rows, err := r.db.QueryContext(ctx, query, append(args, page.Limit, page.Offset())...)
	if err != nil {
		r.logger.Error("failed to list candidates", slog.String("error", err.Error()))
		return nil, 0, fmt.Errorf("failed to list candidates: %w", err)
	}
	defer rows.Close()

	out := []*domain.Candidate{}
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// Update writes mutable fields and appends entry in one transaction. The row
// is only touched while it is live and still in status expected.
func (r *PostgresCandidateRepository) Update(ctx context.Context, c *domain.Candidate, expected domain.Status, entry *domain.StatusEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE candidates
		SET identity_type = $2, identity_number = $3, full_name = $4, date_of_birth = $5,
			profession = $6, company_name = $7, application_number = $8, application_date = $9,
			country = $10, visa_type = $11, visa_issue_date = $12, visa_expiry_date = $13,
			status = $14, remarks = $15, visa_number = COALESCE(visa_number, $16), updated_at = NOW()
		WHERE id = $1 AND status = $17 AND NOT is_deleted
		RETURNING updated_at, visa_number
	`
	var visaNumber sql.NullString
	err = tx.QueryRowContext(ctx, query,
		c.ID,
		string(c.Identity.Kind()),
		c.Identity.Value(),
		c.FullName,
		c.DateOfBirth,
		c.Profession,
		c.CompanyName,
		c.ApplicationNumber,
		c.ApplicationDate,
		c.Country,
		c.VisaType,
		nullTime(c.VisaIssueDate),
		nullTime(c.VisaExpiryDate),
		string(c.Status),
		c.Remarks,
		nullString(c.VisaNumber),
		string(expected),
	).Scan(&c.UpdatedAt, &visaNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r.updateMiss(ctx, tx, c.ID)
		}
		if tErr := translateError(err, conflictValue(c)); tErr != err {
			return tErr
		}
		return fmt.Errorf("failed to update candidate: %w", err)
	}
	c.VisaNumber = visaNumber.String

	if entry != nil {
		if err := insertHistory(ctx, tx, c.ID, *entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit candidate update: %w", err)
	}
	return nil
}

// updateMiss explains why a conditional update matched no row.
func (r *PostgresCandidateRepository) updateMiss(ctx context.Context, tx *sql.Tx, id string) error {
	var deleted bool
	err := tx.QueryRowContext(ctx, `SELECT is_deleted FROM candidates WHERE id = $1`, id).Scan(&deleted)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.ErrNotFound
	case err != nil:
		return fmt.Errorf("failed to check candidate: %w", err)
	case deleted:
		return domain.ErrNotFound
	}
	return domain.ErrStaleStatus
}

// SoftDelete flags a live record; a second call reports ErrAlreadyDeleted
func (r *PostgresCandidateRepository) SoftDelete(ctx context.Context, filter domain.CandidateFilter, id string, at time.Time) error {
	tenantCond := ""
	args := []any{id, at}
	if filter.TenantID != "" {
		tenantCond = " AND tenant_id = $3"
		args = append(args, filter.TenantID)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE candidates SET is_deleted = TRUE, deleted_at = $2, updated_at = $2
		 WHERE id = $1 AND is_deleted = FALSE`+tenantCond, args...)
	if err != nil {
		return fmt.Errorf("failed to delete candidate: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 1 {
		return nil
	}

	lookup := []any{id}
	if filter.TenantID != "" {
		lookup = append(lookup, filter.TenantID)
		tenantCond = " AND tenant_id = $2"
	}
	var deleted bool
	err = r.db.QueryRowContext(ctx, `SELECT is_deleted FROM candidates WHERE id = $1`+tenantCond, lookup...).Scan(&deleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("failed to check candidate: %w", err)
	}
	if deleted {
		return domain.ErrAlreadyDeleted
	}
	return domain.ErrNotFound
}

// VisaNumberExists probes every record, deleted ones included
func (r *PostgresCandidateRepository) VisaNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM candidates WHERE visa_number = $1)`, number).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to probe visa number: %w", err)
	}
	return exists, nil
}

// AssignVisaNumber reserves number on a record that has none
func (r *PostgresCandidateRepository) AssignVisaNumber(ctx context.Context, id, number string, issuedAt time.Time) error {
	var assigned string
	err := r.db.QueryRowContext(ctx, `
		UPDATE candidates
		SET visa_number = $2, visa_issue_date = COALESCE(visa_issue_date, $3), updated_at = $3
		WHERE id = $1 AND visa_number IS NULL
		RETURNING visa_number
	`, id, number, issuedAt).Scan(&assigned)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
			return &domain.ConflictError{Field: "visaNumber", Value: number}
		}
		return fmt.Errorf("failed to assign visa number: %w", err)
	}

	var current sql.NullString
	err = r.db.QueryRowContext(ctx, `SELECT visa_number FROM candidates WHERE id = $1`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("failed to read visa number: %w", err)
	}
	return &domain.ConflictError{Field: "visaNumber", Value: current.String}
}

// SetArtifact stores the rendered document path
func (r *PostgresCandidateRepository) SetArtifact(ctx context.Context, id, path string) error {
	return r.execOne(ctx, "set artifact",
		`UPDATE candidates SET artifact_path = $2, updated_at = NOW() WHERE id = $1`, id, path)
}

// SetUpload stores an uploaded file path in the slot named by kind
func (r *PostgresCandidateRepository) SetUpload(ctx context.Context, id string, kind domain.UploadKind, path string) error {
	var column string
	switch kind {
	case domain.UploadPhoto:
		column = "photo_path"
	case domain.UploadDocument:
		column = "document_path"
	default:
		return domain.NewValidationError("unknown upload kind")
	}
	return r.execOne(ctx, "set upload",
		`UPDATE candidates SET `+column+` = $2, updated_at = NOW() WHERE id = $1`, id, path)
}

// FindPublic matches a live record by date-of-birth day and either identifier
func (r *PostgresCandidateRepository) FindPublic(ctx context.Context, match domain.PublicMatch) (*domain.Candidate, error) {
	query := `SELECT ` + candidateColumns + ` FROM candidates
		WHERE is_deleted = FALSE
		  AND date_of_birth >= $1 AND date_of_birth < $2
		  AND (application_number = $3 OR identity_number = $3)
		  AND ($4 = '' OR id = $4)
		ORDER BY created_at DESC
		LIMIT 1`
	c, err := scanCandidate(r.db.QueryRowContext(ctx, query, match.DOBFrom, match.DOBTo, match.Identifier, match.ID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find candidate: %w", err)
	}
	return c, nil
}

// AppendDownload records a served artifact
func (r *PostgresCandidateRepository) AppendDownload(ctx context.Context, id string, entry domain.DownloadEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO candidate_downloads (candidate_id, origin, downloaded_at) VALUES ($1, $2, $3)
	`, id, entry.Origin, entry.At)
	if err != nil {
		return fmt.Errorf("failed to append download: %w", err)
	}
	return nil
}

// Stats counts live records per status, deleted records, and this month's intake
func (r *PostgresCandidateRepository) Stats(ctx context.Context, filter domain.CandidateFilter, monthStart time.Time) (*domain.CandidateStats, error) {
	args := []any{monthStart}
	tenantCond := ""
	if filter.TenantID != "" {
		tenantCond = "WHERE tenant_id = $2"
		args = append(args, filter.TenantID)
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, is_deleted, COUNT(*), COUNT(*) FILTER (WHERE created_at >= $1)
		FROM candidates `+tenantCond+`
		GROUP BY status, is_deleted
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}
	defer rows.Close()

	stats := &domain.CandidateStats{ByStatus: map[domain.Status]int{}}
	for _, s := range domain.Statuses {
		stats.ByStatus[s] = 0
	}
	for rows.Next() {
		var status string
		var deleted bool
		var count, thisMonth int
		if err := rows.Scan(&status, &deleted, &count, &thisMonth); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		if deleted {
			stats.Deleted += count
			continue
		}
		stats.Total += count
		stats.ByStatus[domain.Status(status)] += count
		stats.ThisMonth += thisMonth
	}
	return stats, rows.Err()
}

// ListMissingArtifacts returns live records in statuses that should carry an artifact but do not
func (r *PostgresCandidateRepository) ListMissingArtifacts(ctx context.Context, statuses []domain.Status, limit int) ([]*domain.Candidate, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+candidateColumns+` FROM candidates
		WHERE is_deleted = FALSE AND artifact_path = '' AND status = ANY($1)
		ORDER BY updated_at
		LIMIT $2`, pq.Array(names), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list missing artifacts: %w", err)
	}
	defer rows.Close()

	out := []*domain.Candidate{}
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresCandidateRepository) execOne(ctx context.Context, op, query string, args ...any) error {
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
