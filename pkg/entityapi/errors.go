// pkg/entityapi/errors.go
package entityapi

import (
	"errors"
	"fmt"
)

// ErrUnexpectedResponse is returned when a body cannot be decoded at all
var ErrUnexpectedResponse = errors.New("unexpected API response")

// APIError is an application error reported by the entity store
// ({"stat":"error","code":...}). Codes follow the store's own taxonomy.
type APIError struct {
	Code        int
	Kind        string // machine name, e.g. "unique_violation"
	Description string
	RequestID   string
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("API Error %d: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("API Error %d: %s", e.Code, e.Kind)
}

// HTTPError is a transport level failure carrying the HTTP status
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
	RequestID  string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %s: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("HTTP %s", e.Status)
}
