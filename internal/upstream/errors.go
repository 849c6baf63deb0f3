package upstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrAuthentication covers bad credentials and failed token refresh.
	// Every 401 APIError matches it through errors.Is.
	ErrAuthentication = errors.New("authentication failed")

	// ErrNoData is returned when a success envelope carries no payload.
	ErrNoData = errors.New("no data received")

	errNoRefreshToken = errors.New("no refresh token available")
)

// APIError is a non-2xx response, normalized to the server's message.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// Is makes a 401 match ErrAuthentication.
func (e *APIError) Is(target error) bool {
	return target == ErrAuthentication && e.Status == http.StatusUnauthorized
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// newAPIError extracts the envelope message from an error body, falling back
// to a generic message when the body is empty or not an envelope.
func newAPIError(status int, body []byte) *APIError {
	return &APIError{Status: status, Message: parseErrorMessage(status, body)}
}

func parseErrorMessage(status int, body []byte) string {
	var env struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if len(body) > 0 && json.Unmarshal(body, &env) == nil {
		if msg := strings.TrimSpace(env.Message); msg != "" {
			return msg
		}
		if msg := strings.TrimSpace(env.Error); msg != "" {
			return msg
		}
	}
	return fmt.Sprintf("Request failed with status %d", status)
}

// Message returns a user-facing message for err: the server message for API
// errors, the error text otherwise, or fallback for nil-ish cases.
func Message(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}
