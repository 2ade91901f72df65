package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/MdWarishh/visa-management-backend/internal/domain"
)

func TestRecordFailedAttemptUsesSingleUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	lockUntil := now.Add(15 * time.Minute)
	mock.ExpectQuery("UPDATE principals\\s+SET failed_attempts = CASE").
		WithArgs("p1", 5, now, lockUntil).
		WillReturnRows(sqlmock.NewRows([]string{"failed_attempts", "locked_until"}).AddRow(5, lockUntil))

	repo := NewPostgresPrincipalRepository(db, nil)
	res, err := repo.RecordFailedAttempt(context.Background(), "p1", 5, now, lockUntil)
	if err != nil {
		t.Fatalf("RecordFailedAttempt: %v", err)
	}
	if res.Attempts != 5 || res.LockedUntil == nil || !res.LockedUntil.Equal(lockUntil) {
		t.Fatalf("unexpected result: %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreatePrincipalTranslatesDuplicateEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("INSERT INTO principals").
		WillReturnError(&pq.Error{Code: pgUniqueViolation, Constraint: "principals_email_key"})

	repo := NewPostgresPrincipalRepository(db, nil)
	err = repo.Create(context.Background(), &domain.Principal{ID: "p1", Email: "a@x.com", Tier: domain.TierAdmin})

	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.Field != "email" || conflict.Value != "a@x.com" {
		t.Fatalf("unexpected conflict: %+v", conflict)
	}
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("conflict must unwrap to ErrConflict")
	}
}

func TestInsertCandidateTranslatesApplicationNumberConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO candidates").
		WillReturnError(&pq.Error{Code: pgUniqueViolation, Constraint: "candidates_tenant_application_key"})
	mock.ExpectRollback()

	repo := NewPostgresCandidateRepository(db, nil)
	c := &domain.Candidate{
		ID:                "c1",
		TenantID:          "a1",
		Identity:          domain.Passport("p1"),
		FullName:          "Jane Doe",
		ApplicationNumber: "APP1",
		Status:            domain.StatusPending,
	}
	err = repo.Insert(context.Background(), c)

	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) || conflict.Field != "applicationNumber" || conflict.Value != "APP1" {
		t.Fatalf("expected applicationNumber conflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertCandidateWritesFirstHistoryEntry(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO candidates").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectExec("INSERT INTO candidate_status_history").
		WithArgs("c1", "Pending", "a@x.com", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	repo := NewPostgresCandidateRepository(db, nil)
	c := &domain.Candidate{
		ID:                "c1",
		TenantID:          "a1",
		Identity:          domain.Control("ctl-9"),
		FullName:          "Jane Doe",
		ApplicationNumber: "APP1",
		Status:            domain.StatusPending,
		CreatedAt:         now,
		History:           []domain.StatusEntry{{Status: domain.StatusPending, Actor: "a@x.com", Timestamp: now}},
	}
	if err := repo.Insert(context.Background(), c); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSoftDeleteReportsAlreadyDeleted(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("UPDATE candidates SET is_deleted = TRUE").
		WithArgs("c1", sqlmock.AnyArg(), "a1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT is_deleted FROM candidates").
		WithArgs("c1", "a1").
		WillReturnRows(sqlmock.NewRows([]string{"is_deleted"}).AddRow(true))

	repo := NewPostgresCandidateRepository(db, nil)
	err = repo.SoftDelete(context.Background(), domain.CandidateFilter{TenantID: "a1"}, "c1", time.Now())
	if !errors.Is(err, domain.ErrAlreadyDeleted) {
		t.Fatalf("expected ErrAlreadyDeleted, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAssignVisaNumberTranslatesCollision(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("UPDATE candidates\\s+SET visa_number").
		WithArgs("c1", "VN202612345678", sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: pgUniqueViolation, Constraint: "candidates_visa_number_key"})

	repo := NewPostgresCandidateRepository(db, nil)
	err = repo.AssignVisaNumber(context.Background(), "c1", "VN202612345678", time.Now())

	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) || conflict.Field != "visaNumber" {
		t.Fatalf("expected visaNumber conflict, got %v", err)
	}
}

// updateArgs matches the conditional update's placeholders on id and the
// expected status only.
func updateArgs(id string, expected domain.Status) []driver.Value {
	args := make([]driver.Value, 17)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	args[0] = id
	args[16] = string(expected)
	return args
}

func updateCandidate() *domain.Candidate {
	return &domain.Candidate{
		ID:                "c1",
		TenantID:          "a1",
		Identity:          domain.Passport("P1"),
		FullName:          "Ravi Kumar",
		DateOfBirth:       time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC),
		ApplicationNumber: "APP1",
		Status:            domain.StatusIssued,
		VisaNumber:        "VN202600000001",
	}
}

func TestUpdateWritesStatusAndVisaNumberTogether(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE candidates\\s+SET .*visa_number = COALESCE\\(visa_number, \\$16\\).*WHERE id = \\$1 AND status = \\$17 AND NOT is_deleted").
		WithArgs(updateArgs("c1", domain.StatusApproved)...).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at", "visa_number"}).AddRow(now, "VN202600000001"))
	mock.ExpectExec("INSERT INTO candidate_status_history").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	repo := NewPostgresCandidateRepository(db, nil)
	c := updateCandidate()
	entry := &domain.StatusEntry{Status: domain.StatusIssued, Actor: "a@x.com", Timestamp: now}
	if err := repo.Update(context.Background(), c, domain.StatusApproved, entry); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if c.VisaNumber != "VN202600000001" || !c.UpdatedAt.Equal(now) {
		t.Fatalf("expected stored values written back, got %+v", c)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateMissExplainsStaleOrDeleted(t *testing.T) {
	cases := []struct {
		name    string
		deleted bool
		want    error
	}{
		{"status changed", false, domain.ErrStaleStatus},
		{"record deleted", true, domain.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("sqlmock.New: %v", err)
			}
			defer db.Close()

			mock.ExpectBegin()
			mock.ExpectQuery("UPDATE candidates").
				WithArgs(updateArgs("c1", domain.StatusPending)...).
				WillReturnRows(sqlmock.NewRows([]string{"updated_at", "visa_number"}))
			mock.ExpectQuery("SELECT is_deleted FROM candidates").
				WithArgs("c1").
				WillReturnRows(sqlmock.NewRows([]string{"is_deleted"}).AddRow(tc.deleted))
			mock.ExpectRollback()

			repo := NewPostgresCandidateRepository(db, nil)
			entry := &domain.StatusEntry{Status: domain.StatusIssued, Actor: "a@x.com", Timestamp: time.Now()}
			err = repo.Update(context.Background(), updateCandidate(), domain.StatusPending, entry)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("unmet expectations: %v", err)
			}
		})
	}
}

func TestUpdateTranslatesControlNumberConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE candidates").
		WillReturnError(&pq.Error{Code: pgUniqueViolation, Constraint: "candidates_tenant_control_key"})
	mock.ExpectRollback()

	repo := NewPostgresCandidateRepository(db, nil)
	c := updateCandidate()
	c.Identity = domain.Control("CTL-9")
	err = repo.Update(context.Background(), c, domain.StatusPending, nil)

	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) || conflict.Field != "controlNumber" || conflict.Value != "CTL-9" {
		t.Fatalf("expected controlNumber conflict, got %v", err)
	}
}

func TestWhereClause(t *testing.T) {
	where, args := whereClause(domain.CandidateFilter{
		TenantID: "a1",
		Status:   domain.StatusIssued,
		Search:   "50%_off",
	}, 1)

	want := "is_deleted = $1 AND tenant_id = $2 AND status = $3 AND " +
		"(full_name ILIKE $4 OR identity_number ILIKE $4 OR application_number ILIKE $4 OR visa_number ILIKE $4)"
	if where != want {
		t.Fatalf("unexpected where:\n got %s\nwant %s", where, want)
	}
	if len(args) != 4 || args[0] != false || args[1] != "a1" || args[2] != "Issued" {
		t.Fatalf("unexpected args: %v", args)
	}
	if args[3] != `%50\%\_off%` {
		t.Fatalf("search pattern not escaped: %v", args[3])
	}
}
