package workflow

import (
	"errors"
	"fmt"
)

// The three caller-recoverable failure classes. Callers classify with
// errors.Is; the HTTP layer maps them to 404/400/403.
var (
	// ErrNotFound covers both a genuinely missing entity and a
	// cross-organization access attempt. The two are deliberately
	// indistinguishable so tenants cannot probe for each other's data.
	ErrNotFound = errors.New("workflow: not found")

	// ErrValidation covers bad enum values, illegal state transitions,
	// failed guard conditions and malformed scores.
	ErrValidation = errors.New("workflow: validation failed")

	// ErrAuthorization means the entity exists and is in scope but the
	// caller lacks the required role or relationship.
	ErrAuthorization = errors.New("workflow: not allowed")
)

func notFound(entity string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, entity)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func forbidden(action string) error {
	return fmt.Errorf("%w: %s", ErrAuthorization, action)
}
