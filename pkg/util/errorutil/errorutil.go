package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts service and storage errors to a DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}

	var transitionErr *domain.InvalidTransitionError
	if errors.As(err, &transitionErr) {
		return &DomainError{
			Code:       "INVALID_TRANSITION",
			Message:    transitionErr.Error(),
			HTTPStatus: http.StatusConflict,
			Details:    map[string]any{"from": transitionErr.From, "to": transitionErr.To},
			Err:        err,
		}
	}

	var policyErr *domain.PolicyNotFoundError
	if errors.As(err, &policyErr) {
		return &DomainError{
			Code:       "POLICY_NOT_FOUND",
			Message:    policyErr.Error(),
			HTTPStatus: http.StatusUnprocessableEntity,
			Details:    map[string]any{"priority": policyErr.Priority, "client_tier": policyErr.ClientTier},
			Err:        err,
		}
	}

	var attachmentErr *domain.AttachmentValidationError
	if errors.As(err, &attachmentErr) {
		status := http.StatusBadRequest
		code := "VALIDATION_FAILED"
		switch attachmentErr.Reason {
		case domain.AttachmentTooLarge:
			status, code = http.StatusRequestEntityTooLarge, "ATTACHMENT_TOO_LARGE"
		case domain.AttachmentTypeNotAllowed:
			status, code = http.StatusUnsupportedMediaType, "ATTACHMENT_TYPE_NOT_ALLOWED"
		}
		return &DomainError{
			Code:       code,
			Message:    attachmentErr.Error(),
			HTTPStatus: status,
			Details:    map[string]any{"file_name": attachmentErr.FileName, "reason": attachmentErr.Reason},
			Err:        err,
		}
	}

	var scanErr *domain.ScanStorageError
	if errors.As(err, &scanErr) {
		return &DomainError{
			Code:       "SCAN_STORAGE_ERROR",
			Message:    "sla scan could not complete",
			HTTPStatus: http.StatusServiceUnavailable,
			Details:    map[string]any{"dimension": scanErr.Dimension},
			Err:        err,
		}
	}

	switch {
	case errors.Is(err, domain.ErrPolicyNotFound):
		return NewDomainError("POLICY_NOT_FOUND", err.Error(), http.StatusUnprocessableEntity, nil)
	case errors.Is(err, domain.ErrAmbiguousPolicy):
		return &DomainError{Code: "AMBIGUOUS_POLICY", Message: "sla policy configuration is ambiguous", HTTPStatus: http.StatusInternalServerError, Err: err}
	case errors.Is(err, domain.ErrTicketTerminal):
		return &DomainError{Code: "TICKET_TERMINAL", Message: "ticket is in a terminal status", HTTPStatus: http.StatusConflict, Err: err}
	case errors.Is(err, repository.ErrNotFound):
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			de.Err = err
			return de
		}
	}

	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
