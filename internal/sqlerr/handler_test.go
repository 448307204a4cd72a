package sqlerr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/deppfellow/shiftboard/internal/database"
	"github.com/deppfellow/shiftboard/internal/errs"
	"github.com/deppfellow/shiftboard/internal/postgrest"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func asHTTP(t *testing.T, err error) *errs.HTTPError {
	t.Helper()
	var httpErr *errs.HTTPError
	require.True(t, errors.As(err, &httpErr), "expected *errs.HTTPError, got %T", err)
	return httpErr
}

func TestHandleErrorPgErrors(t *testing.T) {
	tests := []struct {
		name    string
		pgErr   *pgconn.PgError
		status  int
		code    string
		message string
	}{
		{
			name: "unique violation",
			pgErr: &pgconn.PgError{
				Code:           "23505",
				TableName:      "users",
				ConstraintName: "users_email_key",
			},
			status:  http.StatusConflict,
			code:    "USER_ALREADY_EXISTS",
			message: "A User with this Email already exists",
		},
		{
			name: "unique violation without known column",
			pgErr: &pgconn.PgError{
				Code:           "23505",
				TableName:      "swap_requests",
				ConstraintName: "one_open_request",
			},
			status:  http.StatusConflict,
			code:    "SWAP_REQUEST_ALREADY_EXISTS",
			message: "A Swap Request with this identifier already exists",
		},
		{
			name: "foreign key violation",
			pgErr: &pgconn.PgError{
				Code:       "23503",
				TableName:  "shifts",
				ColumnName: "user_id",
			},
			status:  http.StatusBadRequest,
			code:    "SHIFT_NOT_FOUND",
			message: "The referenced User does not exist",
		},
		{
			name: "not null violation",
			pgErr: &pgconn.PgError{
				Code:       "23502",
				TableName:  "shifts",
				ColumnName: "starts_at",
			},
			status:  http.StatusBadRequest,
			code:    "SHIFT_REQUIRED",
			message: "The Starts At is required",
		},
		{
			name: "check violation",
			pgErr: &pgconn.PgError{
				Code:       "23514",
				TableName:  "organization_members",
				ColumnName: "role",
			},
			status:  http.StatusBadRequest,
			code:    "ORGANIZATION_MEMBER_INVALID",
			message: "The Role value does not meet required conditions",
		},
		{
			name: "row level security",
			pgErr: &pgconn.PgError{
				Code:      "42501",
				TableName: "shifts",
			},
			status:  http.StatusForbidden,
			code:    "FORBIDDEN",
			message: "You are not allowed to modify this Shift",
		},
		{
			name:    "unknown",
			pgErr:   &pgconn.PgError{Code: "57014"},
			status:  http.StatusInternalServerError,
			code:    "INTERNAL_SERVER_ERROR",
			message: "Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httpErr := asHTTP(t, HandleError(database.NewQueryError(tt.pgErr)))
			assert.Equal(t, tt.status, httpErr.Status)
			assert.Equal(t, tt.code, httpErr.Code)
			assert.Equal(t, tt.message, httpErr.Message)
		})
	}
}

func TestHandleErrorNotNullFieldErrors(t *testing.T) {
	err := fmt.Errorf("insert shift: %w", &pgconn.PgError{Code: "23502", ColumnName: "Title"})

	httpErr := asHTTP(t, HandleError(err))
	require.Len(t, httpErr.Errors, 1)
	assert.Equal(t, errs.FieldError{Field: "title", Error: "is required"}, httpErr.Errors[0])
}

func TestHandleErrorQueryErrorWithoutDriverError(t *testing.T) {
	err := &database.QueryError{Message: "duplicate key", Code: "23505", Table: "organizations"}

	httpErr := asHTTP(t, HandleError(err))
	assert.Equal(t, http.StatusConflict, httpErr.Status)
	assert.Equal(t, "ORGANIZATION_ALREADY_EXISTS", httpErr.Code)
}

func TestHandleErrorPassesHTTPErrorsThrough(t *testing.T) {
	orig := errs.NewForbiddenError("user is not a member of any organization", true)

	got := HandleError(fmt.Errorf("resolve: %w", orig))
	assert.Same(t, orig, got)
}

func TestHandleErrorOther(t *testing.T) {
	tests := map[string]struct {
		err    error
		status int
	}{
		"configuration": {err: errs.NewConfigurationError("database.url", "is required"), status: http.StatusInternalServerError},
		"bad filter":    {err: fmt.Errorf("%w: unknown operator", postgrest.ErrInvalidFilter), status: http.StatusBadRequest},
		"no filter":     {err: postgrest.ErrMissingFilter, status: http.StatusBadRequest},
		"no rows":       {err: pgx.ErrNoRows, status: http.StatusNotFound},
		"plain":         {err: errors.New("connection reset"), status: http.StatusInternalServerError},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.status, asHTTP(t, HandleError(tt.err)).Status)
		})
	}

	assert.NoError(t, HandleError(nil))
}

func TestErrCode(t *testing.T) {
	assert.Equal(t, UniqueViolation, ErrCode(&pgconn.PgError{Code: "23505"}))
	assert.Equal(t, Other, ErrCode(&database.QueryError{Message: "timeout"}))
	assert.Equal(t, Other, ErrCode(errors.New("x")))
}

func TestMapSeverity(t *testing.T) {
	assert.Equal(t, SeverityFatal, MapSeverity("FATAL"))
	assert.Equal(t, SeverityError, MapSeverity("ERROR"))
	assert.Equal(t, SeverityError, MapSeverity("bogus"))
}
