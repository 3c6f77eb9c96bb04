package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Define static errors
var (
	ErrRemote = errors.New("platform error")
)

// StatusError is a non-2xx response from the platform.
type StatusError struct {
	StatusCode int
	// ErrorCode and ErrorName come from the structured error body when present.
	ErrorCode string
	ErrorName string
	Message   string
	RequestID string
	Path      string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s (status %d) %s", ErrRemote, e.StatusCode, e.Path)
	if e.ErrorName != "" {
		msg += ": " + e.ErrorName
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}

	return msg
}

// Is matches ErrRemote.
func (e *StatusError) Is(target error) bool {
	return target == ErrRemote
}

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// ErrorBody is the structured error document returned by the platform.
type ErrorBody struct {
	ErrorCode string            `json:"errorCode"`
	ErrorName string            `json:"errorName"`
	Message   string            `json:"message,omitempty"`
	Params    map[string]string `json:"parameters,omitempty"`
}

func newStatusError(status int, path, requestID string, body []byte) *StatusError {
	se := &StatusError{StatusCode: status, Path: path, RequestID: requestID}

	var eb ErrorBody
	if err := json.Unmarshal(body, &eb); err == nil && (eb.ErrorCode != "" || eb.ErrorName != "") {
		se.ErrorCode = eb.ErrorCode
		se.ErrorName = eb.ErrorName
		se.Message = eb.Message
		return se
	}

	if len(body) > 512 {
		body = body[:512]
	}
	se.Message = string(body)

	return se
}

// IsNotFound reports whether err is a 404 from the platform.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}
