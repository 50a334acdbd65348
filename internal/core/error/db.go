package errx

import (
	"database/sql"
	"errors"
	"net/http"
)

// WrapDB maps relational store errors to AppError. sql.ErrNoRows becomes a
// 404 so handlers can pass store errors straight to the HTTP boundary.
func WrapDB(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return New(err, http.StatusNotFound, "not found")
	}

	return New(err, http.StatusInternalServerError, DBErrorMessage)
}
