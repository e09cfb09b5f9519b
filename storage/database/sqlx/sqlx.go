// Package sqlxrepos implements the domain repositories over database/sql with sqlx. Queries use
// `?` placeholders and are rebound for the connection's driver, so postgres and sqlite3 share them.
package sqlxrepos

import (
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/rehmanpranto/QuizFlow/core"
)

const pqUniqueViolation = "23505"

type baseRepository struct {
	exec core.DBExecutor
}

// getExec returns the service-provided executor (usually a transaction) if any.
func (repo baseRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

// isUniqueViolation reports whether err is a unique constraint failure, optionally on column.
func isUniqueViolation(err error, column ...string) bool {
	var col string
	if len(column) > 0 {
		col = column[0]
	}

	switch e := errors.Cause(err).(type) {
	case *pq.Error:
		if e.Code != pqUniqueViolation {
			return false
		}
		return col == "" || strings.Contains(e.Constraint, col) || strings.Contains(e.Detail, "("+col+")")
	case sqlite3.Error:
		if e.ExtendedCode != sqlite3.ErrConstraintUnique {
			return false
		}
		return col == "" || strings.Contains(e.Error(), "."+col)
	}
	return false
}

// orderBy renders ordering, keeping only the allowed fields.
func orderBy(ordering []core.DBOrdering, allowed map[string]string, fallback string) string {
	list := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		if col, ok := allowed[ord.Field]; ok {
			ord.Field = col
			list = append(list, ord.String())
		}
	}
	if len(list) == 0 {
		return " ORDER BY " + fallback
	}
	return " ORDER BY " + strings.Join(list, ", ")
}
