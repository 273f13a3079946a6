package response

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	DefaultErrorMessage = "Something went wrong, please try again later."

	msgDBConnection = "Database connection issue. Please try again."
	msgDBColumnSize = "Column size isn't sufficient in database."
	msgDBNoData     = "No data found in database."
	msgDBGeneric    = "Exception occurred in database."
)

// Messages maps sentinel errors to the text a client is shown for them.
type Messages map[error]string

// ErrorMessage turns err into something safe to show a client. Errors found
// in known get their mapped text. Database driver errors collapse to a
// handful of fixed messages and anything else gets the default message.
func ErrorMessage(err error, known Messages) string {
	if err == nil {
		return ""
	}
	for sentinel, msg := range known {
		if errors.Is(err, sentinel) {
			return msg
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgMessage(pgErr.Code)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return msgDBNoData
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return msgDBConnection
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Request timed out, please try again."
	}

	text := err.Error()
	switch {
	case strings.Contains(text, "SQLSTATE"), strings.Contains(text, "sqlite"), strings.Contains(text, "gorm"):
		return msgDBGeneric
	case strings.Contains(text, "connection refused"), strings.Contains(text, "bad connection"):
		return msgDBConnection
	}
	return DefaultErrorMessage
}

func pgMessage(code string) string {
	switch {
	case code == "22001":
		return msgDBColumnSize
	case code == "P0002" || code == "02000":
		return msgDBNoData
	case strings.HasPrefix(code, "08"), code == "57P01", code == "57P03":
		return msgDBConnection
	default:
		return msgDBGeneric
	}
}
