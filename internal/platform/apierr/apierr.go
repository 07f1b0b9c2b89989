package apierr

import (
	"fmt"
	"net/http"

	pkgerrors "github.com/yungbote/docsync-backend/internal/pkg/errors"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func NotFound(code string, format string, args ...any) *Error {
	return New(http.StatusNotFound, code, fmt.Errorf("%w: "+format, append([]any{pkgerrors.ErrNotFound}, args...)...))
}

func InvalidArgument(code string, format string, args ...any) *Error {
	return New(http.StatusBadRequest, code, fmt.Errorf("%w: "+format, append([]any{pkgerrors.ErrInvalidArgument}, args...)...))
}

// Upstream wraps a failure of an external dependency. The cause stays reachable via errors.Is/As.
func Upstream(code string, err error) *Error {
	return New(http.StatusBadGateway, code, fmt.Errorf("%w: %w", pkgerrors.ErrUpstream, err))
}
