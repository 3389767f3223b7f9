package utils

import (
	"errors"
	"fmt"
	"net/http"

	"gorm.io/gorm"
)

type ErrorKind int

const (
	KindPersistence ErrorKind = iota
	KindValidation
	KindAuth
	KindForbidden
	KindNotFound
	KindConflict
	KindUpstreamPayment
	KindWebhookVerification
)

// AppError carries a client-safe Message. Err holds the internal cause and is
// only ever logged.
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewValidationError(format string, args ...interface{}) error {
	return &AppError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NewAuthError(message string) error {
	return &AppError{Kind: KindAuth, Message: message}
}

func NewForbiddenError(message string) error {
	return &AppError{Kind: KindForbidden, Message: message}
}

func NewNotFoundError(format string, args ...interface{}) error {
	return &AppError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func NewConflictError(format string, args ...interface{}) error {
	return &AppError{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func NewPersistenceError(message string, err error) error {
	return &AppError{Kind: KindPersistence, Message: message, Err: err}
}

func NewUpstreamPaymentError(message string, err error) error {
	return &AppError{Kind: KindUpstreamPayment, Message: message, Err: err}
}

func NewWebhookVerificationError(err error) error {
	return &AppError{Kind: KindWebhookVerification, Message: "webhook signature verification failed", Err: err}
}

// WrapDBError classifies a gorm error. Callers pass what they were doing as
// the message for the persistence case.
func WrapDBError(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &AppError{Kind: KindNotFound, Message: "record not found", Err: err}
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &AppError{Kind: KindConflict, Message: "record already exists", Err: err}
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return &AppError{Kind: KindValidation, Message: "referenced record does not exist", Err: err}
	}
	return NewPersistenceError(message, err)
}

func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindPersistence
}

func IsKind(err error, kind ErrorKind) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Kind == kind
}

// StatusCode maps an error to the HTTP status returned to clients.
func StatusCode(err error) int {
	switch KindOf(err) {
	case KindValidation, KindWebhookVerification:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text a client may see for err.
func PublicMessage(err error) string {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return "internal server error"
	}
	switch appErr.Kind {
	case KindPersistence:
		return "internal server error"
	case KindUpstreamPayment:
		return "payment processor error"
	}
	return appErr.Message
}
