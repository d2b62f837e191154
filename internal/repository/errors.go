package repository

import (
	"errors"
	"strings"

	"github.com/lib/pq"
)

// PostgreSQL error codes
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgSerialization       = "40001"
	pgDeadlock            = "40P01"
)

func pgCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == pgUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	return pgCode(err) == pgForeignKeyViolation
}

// IsTransient reports server-side failures a client may retry: connection
// exceptions (class 08), operator intervention (class 57), serialization
// failures and deadlocks.
func IsTransient(err error) bool {
	code := pgCode(err)
	switch {
	case code == "":
		return false
	case code == pgSerialization, code == pgDeadlock:
		return true
	case strings.HasPrefix(code, "08"), strings.HasPrefix(code, "57"):
		return true
	}
	return false
}
