package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// ToHTTP converts err into an echo HTTP error with the status of its Kind.
// Untyped errors are reported without their cause.
func ToHTTP(err error) *echo.HTTPError {
	var ae *Error
	if !errors.As(err, &ae) {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return echo.NewHTTPError(HTTPStatus(ae.Kind), ae.Message)
}
