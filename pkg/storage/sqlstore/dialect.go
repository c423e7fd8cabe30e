package sqlstore

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Dialect selects driver specific SQL.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite3"
)

// ParseDialect accepts the driver names used in configuration.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pq":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", s)
	}
}

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// rebind converts $n placeholders to the dialect's form. SQLite gets ?n so
// a repeated placeholder keeps binding the same argument.
func (d Dialect) rebind(query string) string {
	if d != SQLite {
		return query
	}
	return placeholderRe.ReplaceAllString(query, "?$1")
}

// pgUndefinedTable is SQLSTATE 42P01.
const pgUndefinedTable = "42P01"

// isMissingTable reports whether err means a referenced table does not exist.
func isMissingTable(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUndefinedTable
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrError && strings.Contains(liteErr.Error(), "no such table")
	}
	return strings.Contains(err.Error(), "no such table")
}
