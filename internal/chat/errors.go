package chat

import (
	"database/sql"
	"errors"
	"fmt"
)

// ValidationError indicates malformed or missing required input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// AuthorizationError indicates the actor lacks rights over the target
// entity.
type AuthorizationError struct {
	Msg string
}

func (e *AuthorizationError) Error() string {
	return e.Msg
}

// NotFoundError indicates a referenced entity does not exist.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Resource)
}

// notFound translates a missing-row error into a NotFoundError for the
// named resource, passing other errors through.
func notFound(err error, resource string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return &NotFoundError{Resource: resource}
	}
	return err
}
