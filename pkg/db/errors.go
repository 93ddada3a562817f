package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const uniqueViolationCode = "23505"

// IsUniqueViolation reports whether err is a unique constraint
// violation, optionally restricted to the named constraints. Callers
// racing on an insert use this to fall back to a read.
//
// Postgres errors carry the constraint name and are filtered exactly.
// Sqlite, which backs the test suites, reports the violated columns
// rather than the constraint name, so any sqlite unique violation
// matches regardless of the filter.
func IsUniqueViolation(err error, constraints ...string) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolationCode && matchesConstraint(pgErr.ConstraintName, constraints)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolationCode && matchesConstraint(pqErr.Constraint, constraints)
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func matchesConstraint(name string, constraints []string) bool {
	if len(constraints) == 0 {
		return true
	}
	for _, c := range constraints {
		if c == name {
			return true
		}
	}
	return false
}
