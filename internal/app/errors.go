package app

import (
	"errors"
	"fmt"
	"net/http"

	"folio/internal/auth"
	"folio/internal/content"
	"folio/internal/history"
	"folio/internal/upload"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

var (
	errUnauthorized = domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
	errInvalidBody  = domainError(http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil)
)

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, auth.ErrMissingCredential), errors.Is(err, auth.ErrInvalidCredential):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, content.ErrInvalidImport), errors.Is(err, content.ErrNoValidContent):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, history.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Revision not found", nil
	case errors.Is(err, upload.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "Image exceeds the 10 MB limit", nil
	case errors.Is(err, upload.ErrNotImage):
		return http.StatusUnsupportedMediaType, "INVALID_FILE", "Please upload an image file", nil
	case errors.Is(err, upload.ErrNoStrategies):
		return http.StatusBadGateway, "UPLOAD_FAILED", "All upload providers failed", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
