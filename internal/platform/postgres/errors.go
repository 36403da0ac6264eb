package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/taskforge/internal/store"
)

// SQLSTATE codes the snapshot schema can raise.
const (
	uniqueViolationCode     = "23505"
	foreignKeyViolationCode = "23503"
	checkViolationCode      = "23514"
	notNullViolationCode    = "23502"
	undefinedTableCode      = "42P01"
)

// constraintErrors maps integrity violations to store sentinels. detail
// picks the constraint or column named in the message.
var constraintErrors = map[string]struct {
	sentinel error
	label    string
	detail   func(*pgconn.PgError) string
}{
	uniqueViolationCode:     {store.ErrDuplicate, "unique violation", constraintName},
	foreignKeyViolationCode: {store.ErrInvalidEntity, "foreign key violation", constraintName},
	checkViolationCode:      {store.ErrInvalidEntity, "check constraint violation", constraintName},
	notNullViolationCode:    {store.ErrInvalidEntity, "not null violation", func(e *pgconn.PgError) string { return e.ColumnName }},
}

func constraintName(e *pgconn.PgError) string { return e.ConstraintName }

// MapError translates driver errors into store errors. The driver error stays
// in the chain; unknown errors are returned unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	if pgErr.Code == undefinedTableCode {
		return fmt.Errorf("schema is not migrated (run `server migrate up`): %w", err)
	}
	if m, ok := constraintErrors[pgErr.Code]; ok {
		return fmt.Errorf("%w: %s (%s): %w", m.sentinel, m.label, m.detail(pgErr), err)
	}
	return err
}

// SQLState returns the SQLSTATE code carried by err, or "".
func SQLState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
