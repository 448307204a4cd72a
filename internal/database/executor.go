package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// QueryResult is what the executor hands back for one statement.
type QueryResult struct {
	Rows []*Row

	// RowCount is the number of rows the command tag reports as returned or
	// affected.
	RowCount int64
}

// QueryError is a driver-reported failure. Message is the server's message
// unchanged; Code is the SQLSTATE when the failure came from PostgreSQL.
type QueryError struct {
	Message    string
	Code       string
	Detail     string
	Hint       string
	Table      string
	Column     string
	Constraint string

	err error
}

func (e *QueryError) Error() string {
	return e.Message
}

func (e *QueryError) Unwrap() error {
	return e.err
}

// NewQueryError wraps err as a *QueryError, copying PostgreSQL diagnostics
// when err carries a *pgconn.PgError. Errors that already are QueryErrors are
// returned as is.
func NewQueryError(err error) error {
	if err == nil {
		return nil
	}

	var qe *QueryError
	if errors.As(err, &qe) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &QueryError{
			Message:    pgErr.Message,
			Code:       pgErr.Code,
			Detail:     pgErr.Detail,
			Hint:       pgErr.Hint,
			Table:      pgErr.TableName,
			Column:     pgErr.ColumnName,
			Constraint: pgErr.ConstraintName,
			err:        err,
		}
	}

	return &QueryError{Message: err.Error(), err: err}
}

// Query runs one parameterized statement on the pool. Use it for work that
// is not tenant scoped, such as health checks.
func (db *Database) Query(ctx context.Context, sql string, args ...any) (*QueryResult, error) {
	pool, err := db.Pool(ctx)
	if err != nil {
		return nil, err
	}
	return Run(ctx, pool, sql, args...)
}

// Run executes sql on q and decodes every returned row.
func Run(ctx context.Context, q Querier, sql string, args ...any) (*QueryResult, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, NewQueryError(err)
	}

	result, err := CollectRows(rows)
	if err != nil {
		return nil, NewQueryError(err)
	}
	return result, nil
}

// CollectRows drains rows into a QueryResult and closes them.
func CollectRows(rows pgx.Rows) (*QueryResult, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	result := &QueryResult{Rows: []*Row{}}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}

		row := NewRow()
		for i, f := range fields {
			if i < len(values) {
				row.Set(f.Name, ValueOf(values[i]))
			}
		}
		result.Rows = append(result.Rows, row)
	}

	// The command tag and any deferred error are only final once the rows
	// are closed.
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result.RowCount = rows.CommandTag().RowsAffected()
	return result, nil
}
