// Package sqlxrepos implements the domain repositories on PostgreSQL.
// Repositories hold the shared pool and take an optional per-call executor
// so service-level transactions can pass their own.
package sqlxrepos

import (
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
