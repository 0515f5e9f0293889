// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// booking engine and handlers to distinguish between different failure
// scenarios without inspecting driver errors.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a row addressed by id does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a version-checked write affected no row
// because another writer changed it first.  Callers retry the whole
// unit of work.
var ErrConflict = errors.New("conflict")

// ErrUsernameExists is returned on a duplicate registration.
var ErrUsernameExists = errors.New("username already exists")

// isDuplicateKey reports whether err is a unique constraint violation on
// either MySQL (1062) or SQLite.
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsLockContention reports lock failures the store resolves by aborting
// one of the writers: InnoDB deadlock (1213) or lock wait timeout (1205),
// and SQLite busy/locked.  Callers treat them like ErrConflict.
func IsLockContention(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1213 || me.Number == 1205
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
