// Package store implements the persistence interfaces on PostgreSQL.
package store

import (
	"database/sql"
	"errors"
	"time"

	contextutils "dailyfeed/internal/utils"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// psql builds dollar-placeholder statements for lib/pq
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// queryError tags a failed statement as an infrastructure failure
func queryError(err error, what string) error {
	return contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "%s: %w", what, err)
}

// notFound maps sql.ErrNoRows to the given sentinel and everything else to queryError
func notFound(err error, sentinel error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return contextutils.WrapError(sentinel, what)
	}
	return queryError(err, what)
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nullInt64Ptr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}
