package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error is an error carrying the HTTP status it should be reported with.
type Error struct {
	Code      int    `json:"code"`
	Message   string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
	Err       error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(code int, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func BadRequest(message string, err error) *Error {
	return New(http.StatusBadRequest, message, err)
}

func NotFound(message string) *Error {
	return New(http.StatusNotFound, message, nil)
}

func Conflict(message string, err error) *Error {
	return New(http.StatusConflict, message, err)
}

// Unavailable reports a dependency outage the client may retry.
func Unavailable(message string, err error) *Error {
	return &Error{Code: http.StatusServiceUnavailable, Message: message, Retryable: true, Err: err}
}

func Internal(err error) *Error {
	return New(http.StatusInternalServerError, "Internal server error", err)
}

// Respond writes err as JSON. Errors that are not *Error become a 500
// without leaking the underlying message.
func Respond(c *gin.Context, err error) {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = Internal(err)
	}
	if appErr.Err != nil {
		_ = c.Error(appErr.Err)
	}
	body := gin.H{"error": appErr.Message}
	if appErr.Retryable {
		body["retryable"] = true
	}
	c.AbortWithStatusJSON(appErr.Code, body)
}
