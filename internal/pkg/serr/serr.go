package serr

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// ServiceError is an error that knows how it should be reported to a client.
type ServiceError struct {
	Err        error
	Msg        string
	Code       string
	StackTrace string
	StatusCode int
	Env        map[string]string
}

func NewServiceError(err error, statusCode int, msg string, args ...any) *ServiceError {
	return &ServiceError{
		Err:        err,
		Msg:        fmt.Sprintf(msg, args...),
		StatusCode: statusCode,
		StackTrace: string(debug.Stack()),
		Env:        make(map[string]string),
	}
}

// WithCode sets the machine readable error code returned to clients.
func (e *ServiceError) WithCode(code string) *ServiceError {
	e.Code = code
	return e
}

// With adds a key to the error environment.
func (e *ServiceError) With(key, val string) *ServiceError {
	e.Env[key] = val
	return e
}

func (e *ServiceError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// As returns the first ServiceError in the chain of err.
func As(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
