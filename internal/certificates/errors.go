package certificates

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned for unknown templates, badges and issuances
	ErrNotFound = errors.New("not found")
	// ErrLocked is returned when a locked template would be modified
	ErrLocked = errors.New("certificate template is locked")
	// ErrMissingContent marks a template without background. Renders still
	// succeed with blank pages.
	ErrMissingContent = errors.New("certificate template has no background")
	// ErrInvalidTransition is returned for status changes the lifecycle forbids
	ErrInvalidTransition = errors.New("status transition not allowed")
	// ErrInactive is returned when recipients ask for an inactive template
	ErrInactive = errors.New("certificate template is not active")
	// ErrForbidden is returned when an issuance does not belong to the actor
	ErrForbidden = errors.New("forbidden")
	// ErrNoRecipients is returned by bulk renders without issued badges
	ErrNoRecipients = errors.New("no issued badges for certificate template")
)

// ValidationError carries field level messages
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records a message for field, keeping the first one
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = message
	}
}

// OrNil returns nil when no field failed
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}
