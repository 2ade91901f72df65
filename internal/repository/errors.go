package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/MdWarishh/visa-management-backend/internal/domain"
)

//go:embed schema.sql
var schema string

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

const (
	pgUniqueViolation  = "23505"
	pgNotNullViolation = "23502"
	pgCheckViolation   = "23514"
)

// constraintFields maps unique index names to the field they protect.
var constraintFields = map[string]string{
	"principals_email_key":              "email",
	"principals_single_owner_key":       "role",
	"candidates_tenant_application_key": "applicationNumber",
	"candidates_tenant_passport_key":    "passportNumber",
	"candidates_tenant_control_key":     "controlNumber",
	"candidates_visa_number_key":        "visaNumber",
}

// translateError maps constraint violations into domain errors. value returns
// the offending value for a field name.
func translateError(err error, value func(field string) string) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch string(pqErr.Code) {
	case pgUniqueViolation:
		field, ok := constraintFields[pqErr.Constraint]
		if !ok {
			field = pqErr.Constraint
		}
		v := ""
		if value != nil {
			v = value(field)
		}
		return &domain.ConflictError{Field: field, Value: v}
	case pgNotNullViolation:
		return domain.NewValidationError(fmt.Sprintf("%s is required", pqErr.Column))
	case pgCheckViolation:
		return domain.NewValidationError(fmt.Sprintf("invalid value (%s)", pqErr.Constraint))
	}
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}
