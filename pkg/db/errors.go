package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// PGError is the driver-neutral view of a postgres error. pgx is the
// runtime driver; lib/pq errors still surface from goose and sql tooling.
type PGError struct {
	Code       string
	Constraint string
	Table      string
	Column     string
	Detail     string
	Message    string
}

// AsPG extracts the postgres error from err's chain, whichever driver raised it.
func AsPG(err error) (PGError, bool) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return PGError{
			Code: pgxErr.Code, Constraint: pgxErr.ConstraintName, Table: pgxErr.TableName,
			Column: pgxErr.ColumnName, Detail: pgxErr.Detail, Message: pgxErr.Message,
		}, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return PGError{
			Code: string(pqErr.Code), Constraint: pqErr.Constraint, Table: pqErr.Table,
			Column: pqErr.Column, Detail: pqErr.Detail, Message: pqErr.Message,
		}, true
	}
	return PGError{}, false
}

// IsUniqueViolation reports whether err is a unique constraint violation. When
// constraint is set only violations of that constraint match.
func IsUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	if pg, ok := AsPG(err); ok {
		return pg.Code == pgUniqueViolation && (constraint == "" || pg.Constraint == constraint)
	}

	// sqlite reports uniqueness through the message only
	msg := err.Error()
	if !errors.Is(err, gorm.ErrDuplicatedKey) && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	return constraint == "" || strings.Contains(msg, constraint)
}
