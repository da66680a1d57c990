package store

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ConflictError reports a uniqueness violation. Field names the column whose
// value already exists ("email", "username", "key_hash", ...), or is empty
// when the backend did not say.
type ConflictError struct {
	Field string
	Err   error
}

func (e *ConflictError) Error() string {
	if e.Field == "" {
		return "unique constraint violation"
	}
	return "unique constraint violation on " + e.Field
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// constraintFields maps the constraint names declared in migrations.go to
// the column they protect.
var constraintFields = map[string]string{
	"uq_users_username":      "username",
	"uq_users_email":         "email",
	"uq_api_keys_hash":       "key_hash",
	"uq_api_keys_ciphertext": "key_ciphertext",
}

const (
	pgUniqueViolation = "23505"
	mysqlDupEntry     = 1062
)

// SQLite reports "UNIQUE constraint failed: users.email".
var sqliteUnique = regexp.MustCompile(`UNIQUE constraint failed: \w+\.(\w+)`)

// translate maps driver-specific constraint errors onto ConflictError so
// callers never see storage-engine error codes. Other errors are wrapped
// with op.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return &ConflictError{Field: constraintFields[pgErr.ConstraintName], Err: err}
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDupEntry {
		return &ConflictError{Field: mysqlConstraintField(myErr.Message), Err: err}
	}

	if m := sqliteUnique.FindStringSubmatch(err.Error()); m != nil {
		return &ConflictError{Field: m[1], Err: err}
	}

	return fmt.Errorf("%s: %w", op, err)
}

// mysqlConstraintField extracts the key name from
// "Duplicate entry 'x' for key 'users.uq_users_email'".
func mysqlConstraintField(msg string) string {
	i := strings.LastIndex(msg, "for key '")
	if i < 0 {
		return ""
	}
	name := strings.TrimSuffix(msg[i+len("for key '"):], "'")
	if dot := strings.LastIndex(name, "."); dot >= 0 {
		name = name[dot+1:]
	}
	return constraintFields[name]
}
