// Package apierror holds the client-facing errors of the query API.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is returned to clients as-is in the response body.
type Error struct {
	Code        int    `json:"code"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Code, e.Description, e.Message)
}

func InvalidQueryString(key, value string, reason ...string) *Error {
	msg := fmt.Sprintf("Invalid query-string parameter: key '%s', value '%s'.", key, value)
	for _, r := range reason {
		msg += " " + r
	}
	return &Error{
		Code:        http.StatusBadRequest,
		Description: "Invalid query-string",
		Message:     msg,
	}
}

func IvornNotFound(ivorn string) *Error {
	return &Error{
		Code:        http.StatusUnprocessableEntity,
		Description: "Invalid IVORN",
		Message: fmt.Sprintf("Sorry, IVORN '%s' not found in the database. "+
			"Check it is URL-encoded and matches an archived packet exactly.", ivorn),
	}
}

func IvornNotSupplied() *Error {
	return &Error{
		Code:        http.StatusBadRequest,
		Description: "No IVORN supplied",
		Message:     "Please specify a properly URL-encoded IVORN after the endpoint path.",
	}
}

func LimitMaxExceeded(requested, max int) *Error {
	return &Error{
		Code:        http.StatusRequestEntityTooLarge,
		Description: "Limit too high",
		Message: fmt.Sprintf("You requested 'limit=%d', but the maximum limit is %d. "+
			"Use 'offset' to page through larger result sets.", requested, max),
	}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
