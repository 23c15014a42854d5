package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/planhub/messaging/internal/chat"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func NewBadRequestError(msg string) *ApiError {
	if msg == "" {
		msg = lower(http.StatusText(http.StatusBadRequest))
	}

	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    msg,
	}
}

func NewNotFoundError(msg string) *ApiError {
	if msg == "" {
		msg = lower(http.StatusText(http.StatusNotFound))
	}

	return &ApiError{
		StatusCode: http.StatusNotFound,
		Message:    msg,
	}
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusInternalServerError,
		Message:    lower(http.StatusText(http.StatusInternalServerError)),
		Err:        err,
	}
}

func NewUnauthorizedError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusUnauthorized,
		Message:    lower(http.StatusText(http.StatusUnauthorized)),
	}
}

func NewForbiddenError(msg string) *ApiError {
	if msg == "" {
		msg = lower(http.StatusText(http.StatusForbidden))
	}

	return &ApiError{
		StatusCode: http.StatusForbidden,
		Message:    msg,
	}
}

// fromDomainError translates service-layer errors into API responses.
func fromDomainError(err error) *ApiError {
	var validationErr *chat.ValidationError
	var authzErr *chat.AuthorizationError
	var notFoundErr *chat.NotFoundError

	switch {
	case errors.As(err, &validationErr):
		return NewBadRequestError(validationErr.Msg)
	case errors.As(err, &authzErr):
		return NewForbiddenError(authzErr.Msg)
	case errors.As(err, &notFoundErr):
		return NewNotFoundError(notFoundErr.Error())
	default:
		return NewInternalServerError(err)
	}
}
