package sqlerr

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/deppfellow/shiftboard/internal/database"
	"github.com/deppfellow/shiftboard/internal/errs"
	"github.com/deppfellow/shiftboard/internal/postgrest"
	"github.com/go-openapi/inflect"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrCode reports the Code of err, or Other when err is not a database
// error.
func ErrCode(err error) Code {
	if e, ok := Convert(err); ok {
		return e.Code
	}
	return Other
}

// Convert finds a database error in err's chain and classifies it.
func Convert(err error) (*Error, bool) {
	var sqlErr *Error
	if errors.As(err, &sqlErr) {
		return sqlErr, true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return ConvertPgError(pgErr), true
	}

	var qe *database.QueryError
	if errors.As(err, &qe) && qe.Code != "" {
		return &Error{
			Code:           MapCode(qe.Code),
			Severity:       SeverityError,
			DatabaseCode:   qe.Code,
			Message:        qe.Message,
			TableName:      qe.Table,
			ColumnName:     qe.Column,
			ConstraintName: qe.Constraint,
			driverErr:      qe,
		}, true
	}

	return nil, false
}

func ConvertPgError(src *pgconn.PgError) *Error {
	return &Error{
		Code:           MapCode(src.Code),
		Severity:       MapSeverity(src.Severity),
		DatabaseCode:   src.Code,
		Message:        src.Message,
		SchemaName:     src.SchemaName,
		TableName:      src.TableName,
		ColumnName:     src.ColumnName,
		DataTypeName:   src.DataTypeName,
		ConstraintName: src.ConstraintName,
		driverErr:      src,
	}
}

// generateErrorCode builds <ENTITY>_<ACTION>, e.g. SHIFT_ALREADY_EXISTS.
func generateErrorCode(tableName string, code Code) string {
	domain := "RECORD"
	if tableName != "" {
		domain = strings.ToUpper(inflect.Singularize(tableName))
	}

	action := "ERROR"
	switch code {
	case ForeignKeyViolation:
		action = "NOT_FOUND"
	case UniqueViolation:
		action = "ALREADY_EXISTS"
	case NotNullViolation:
		action = "REQUIRED"
	case CheckViolation, InvalidText:
		action = "INVALID"
	case InsufficientPrivilege:
		action = "FORBIDDEN"
	}

	return domain + "_" + action
}

func formatUserFriendlyMessage(e *Error) string {
	entity := getEntityName(e.TableName, e.ColumnName)

	switch e.Code {
	case ForeignKeyViolation:
		return fmt.Sprintf("The referenced %s does not exist", entity)
	case UniqueViolation:
		if col := extractColumnForUniqueViolation(e.ConstraintName); col != "" {
			return fmt.Sprintf("A %s with this %s already exists", entity, humanizeText(col))
		}
		return fmt.Sprintf("A %s with this identifier already exists", entity)
	case NotNullViolation:
		field := humanizeText(e.ColumnName)
		if field == "" {
			field = "field"
		}
		return fmt.Sprintf("The %s is required", field)
	case CheckViolation:
		if field := humanizeText(e.ColumnName); field != "" {
			return fmt.Sprintf("The %s value does not meet required conditions", field)
		}
		return "One or more values do not meet required conditions"
	case InvalidText:
		return "One or more values have an invalid format"
	case InsufficientPrivilege:
		return fmt.Sprintf("You are not allowed to modify this %s", entity)
	default:
		return "An error occurred while processing your request"
	}
}

// getEntityName prefers a foreign key column (user_id -> User), then the
// singular table name.
func getEntityName(tableName, columnName string) string {
	col := strings.ToLower(columnName)
	if strings.HasSuffix(col, "_id") {
		return humanizeText(strings.TrimSuffix(col, "_id"))
	}
	if tableName != "" {
		return humanizeText(inflect.Singularize(tableName))
	}
	return "record"
}

func humanizeText(text string) string {
	if text == "" {
		return ""
	}
	return cases.Title(language.English).String(strings.ReplaceAll(text, "_", " "))
}

var uniqueKeyRe = regexp.MustCompile(`_([^_]+)_(?:key|ukey)$`)

// extractColumnForUniqueViolation reads the column from unique_<table>_<column>
// or <table>_<column>_key.
func extractColumnForUniqueViolation(constraintName string) string {
	if constraintName == "" {
		return ""
	}

	if strings.HasPrefix(constraintName, "unique_") {
		parts := strings.Split(constraintName, "_")
		if len(parts) >= 3 {
			return parts[len(parts)-1]
		}
	}

	if m := uniqueKeyRe.FindStringSubmatch(constraintName); len(m) > 1 {
		return m[1]
	}
	return ""
}

// HandleError converts err into an *errs.HTTPError. HTTP errors pass
// through unchanged.
func HandleError(err error) error {
	if err == nil {
		return nil
	}

	var httpErr *errs.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}

	var cfgErr *errs.ConfigurationError
	if errors.As(err, &cfgErr) {
		return errs.NewInternalServerError()
	}

	switch {
	case errors.Is(err, postgrest.ErrInvalidIdentifier),
		errors.Is(err, postgrest.ErrInvalidSelect),
		errors.Is(err, postgrest.ErrInvalidFilter),
		errors.Is(err, postgrest.ErrMissingFilter),
		errors.Is(err, postgrest.ErrEmptyPayload):
		code := "INVALID_QUERY"
		return errs.NewBadRequestError(err.Error(), false, &code, nil, nil)
	}

	if sqlErr, ok := Convert(err); ok {
		code := generateErrorCode(sqlErr.TableName, sqlErr.Code)
		msg := formatUserFriendlyMessage(sqlErr)

		switch sqlErr.Code {
		case ForeignKeyViolation:
			return errs.NewBadRequestError(msg, false, &code, nil, nil)
		case UniqueViolation:
			return errs.NewConflictError(msg, true, &code)
		case NotNullViolation:
			fields := []errs.FieldError{{Field: strings.ToLower(sqlErr.ColumnName), Error: "is required"}}
			return errs.NewBadRequestError(msg, true, &code, fields, nil)
		case CheckViolation, InvalidText:
			return errs.NewBadRequestError(msg, true, &code, nil, nil)
		case InsufficientPrivilege:
			return errs.NewForbiddenError(msg, true)
		default:
			return errs.NewInternalServerError()
		}
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return errs.NewNotFoundError("Resource not found", false, nil)
	}

	return errs.NewInternalServerError()
}
