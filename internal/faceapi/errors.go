package faceapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrInvalidImage marks a payload that is not a decodable base64 image.
	ErrInvalidImage = errors.New("invalid base64 image")
	// ErrResponseTooLarge marks a backend reply exceeding the body limit.
	ErrResponseTooLarge = errors.New("backend response exceeds size limit")
)

// StatusError is returned for any non-2xx reply from the backend.
type StatusError struct {
	StatusCode int
	// Message is the backend's own explanation, taken from a "message" or
	// "detail" field when the body is JSON.
	Message string
	// Body is the start of the reply, for logs.
	Body string

	payload []byte
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("face api returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("face api returned %d", e.StatusCode)
}

// HTTPStatus exposes the upstream status for retry classification.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }

// IsClientError reports a 4xx reply, which the usecase relays as an
// unsuccessful outcome instead of a gateway failure.
func (e *StatusError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// Decode unmarshals the full backend reply into out.
func (e *StatusError) Decode(out any) error {
	if len(e.payload) == 0 {
		return errors.New("empty error body")
	}
	return json.Unmarshal(e.payload, out)
}

// IsNotFound reports whether err is a backend 404.
func IsNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}

const maxErrorBody = 2048

// NewStatusError builds the error for a non-2xx reply with the given body.
func NewStatusError(code int, body []byte) *StatusError {
	statusErr := &StatusError{
		StatusCode: code,
		Body:       truncate(string(body), maxErrorBody),
		payload:    append([]byte(nil), body...),
	}

	var payload struct {
		Message string          `json:"message"`
		Detail  json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return statusErr
	}
	statusErr.Message = payload.Message
	if statusErr.Message == "" && len(payload.Detail) > 0 {
		var detail string
		if err := json.Unmarshal(payload.Detail, &detail); err == nil {
			statusErr.Message = detail
		} else {
			statusErr.Message = truncate(string(payload.Detail), maxErrorBody)
		}
	}
	return statusErr
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
