// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers to distinguish
// between failure scenarios without inspecting driver errors.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when an id-addressed row does not exist.
var ErrNotFound = errors.New("not found")

// ErrUsernameExists is returned when a username is already taken.
var ErrUsernameExists = errors.New("username already exists")

// ErrDuplicateEntry is returned when an entry with the same name, address
// and zipcode (case-insensitive) already exists, whether detected by the
// pre-check or by the unique index.
var ErrDuplicateEntry = errors.New("duplicate entry")

// ErrConflict is returned for any other constraint violation, such as an
// unrelated unique index or deleting a user who still owns entries.
var ErrConflict = errors.New("conflict")

// EntryIdentityKey is the unique index over (name, address lines, zipcode).
const EntryIdentityKey = "uq_entries_identity"

const (
	mysqlDuplicateKey    = 1062
	mysqlRowIsReferenced = 1451
	mysqlNoReferencedRow = 1452
)

// classify maps MySQL constraint errors to sentinels. Other errors pass
// through unchanged.
func classify(err error) error {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return err
	}
	switch me.Number {
	case mysqlDuplicateKey:
		switch {
		case strings.Contains(me.Message, EntryIdentityKey):
			return ErrDuplicateEntry
		case strings.Contains(me.Message, "uq_users_username"):
			return ErrUsernameExists
		}
		return ErrConflict
	case mysqlRowIsReferenced, mysqlNoReferencedRow:
		return ErrConflict
	}
	return err
}
