// Package repository holds the MySQL data access layer.  The sentinel
// values below let higher layers tell failure scenarios apart without
// inspecting driver errors: ErrSeatTaken means a seat claim collided with
// an existing claim, ErrShowNotFound and ErrBookingNotFound mean the row
// is absent, and ErrConflict signals conflicting state such as a show
// that still has claims.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrConflict is returned when a delete or update cannot be performed
// because of conflicting state.  Handlers translate it into HTTP 409.
var ErrConflict = errors.New("conflict")

// ErrSeatTaken is returned by InsertClaims when at least one seat of the
// batch is already claimed.  No claim of the batch is stored.
var ErrSeatTaken = errors.New("seat already claimed")

// ErrShowNotFound indicates that a show was not located in the DB.
var ErrShowNotFound = errors.New("show not found")

// ErrBookingNotFound indicates that a booking row does not exist.
var ErrBookingNotFound = errors.New("booking not found")

// ErrEmailExists is returned when a user registers with a taken email.
var ErrEmailExists = errors.New("email already exists")

// MySQL server error numbers the repositories react to.
const (
	errDuplicateEntry   = 1062
	errNoReferencedRow  = 1452
	errRowIsReferenced  = 1451
	errLockWaitTimeout  = 1205
	errDeadlockDetected = 1213
)

func mysqlErrorNumber(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

// IsDuplicateKey reports whether err is a unique or primary key violation.
func IsDuplicateKey(err error) bool { return mysqlErrorNumber(err) == errDuplicateEntry }

// IsRetryable reports whether err is a transient lock conflict after
// which the whole transaction may be replayed.
func IsRetryable(err error) bool {
	switch mysqlErrorNumber(err) {
	case errDeadlockDetected, errLockWaitTimeout:
		return true
	}
	return false
}

func isMissingParent(err error) bool { return mysqlErrorNumber(err) == errNoReferencedRow }

func isReferenced(err error) bool { return mysqlErrorNumber(err) == errRowIsReferenced }
