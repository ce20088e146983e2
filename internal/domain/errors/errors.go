// Package errors defines the coded errors handlers map to HTTP responses.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes for domain errors.
const (
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeInternal            = "INTERNAL_ERROR"
	ErrCodeConflict            = "CONFLICT"
	ErrCodeQuotaExceeded       = "QUOTA_EXCEEDED"
	ErrCodeNoProviderAvailable = "NO_PROVIDER_AVAILABLE"
	ErrCodeModelNotFound       = "MODEL_NOT_FOUND"
	ErrCodePromptNotFound      = "PROMPT_NOT_FOUND"
	ErrCodeUpstream            = "UPSTREAM_ERROR"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeFallbackCycle       = "FALLBACK_CYCLE"
	ErrCodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
)

// DomainError is an error a handler can report to the caller as-is. Err
// carries the underlying cause for logs and errors.Is; it is never written
// to responses.
type DomainError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *DomainError) Error() string {
	msg := e.Code + ": " + e.Message
	switch {
	case e.Details != "":
		msg += " (" + e.Details + ")"
	case e.Err != nil:
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func newError(status int, code, message, details string, cause error) *DomainError {
	return &DomainError{Code: code, Message: message, Details: details, HTTPStatus: status, Err: cause}
}

// NewNotFoundError reports a missing entity of the given kind.
func NewNotFoundError(resource, identifier string) *DomainError {
	return newError(http.StatusNotFound, ErrCodeNotFound, resource+" not found", identifier, nil)
}

// NewValidationError reports malformed or missing caller input.
func NewValidationError(message string, details string) *DomainError {
	return newError(http.StatusBadRequest, ErrCodeValidation, message, details, nil)
}

func NewUnauthorizedError(message string) *DomainError {
	return newError(http.StatusUnauthorized, ErrCodeUnauthorized, message, "", nil)
}

func NewForbiddenError(message string) *DomainError {
	return newError(http.StatusForbidden, ErrCodeForbidden, message, "", nil)
}

// NewInternalError wraps a store or codec failure. The cause stays in the
// logs.
func NewInternalError(message string, err error) *DomainError {
	return newError(http.StatusInternalServerError, ErrCodeInternal, message, "", err)
}

func NewConflictError(message string, details string) *DomainError {
	return newError(http.StatusConflict, ErrCodeConflict, message, details, nil)
}

// NewQuotaExceededError reports a tenant over its monthly token cap.
func NewQuotaExceededError(tenantID string, used, limit int64) *DomainError {
	return newError(http.StatusTooManyRequests, ErrCodeQuotaExceeded, "monthly token limit reached",
		fmt.Sprintf("tenant %s used %d of %d tokens", tenantID, used, limit), nil)
}

// NewNoProviderAvailableError reports that routing found no active provider.
func NewNoProviderAvailableError(details string) *DomainError {
	return newError(http.StatusServiceUnavailable, ErrCodeNoProviderAvailable, "no active LLM provider available", details, nil)
}

// NewModelNotFoundError reports a model missing from a provider catalog.
func NewModelNotFoundError(modelID, providerName string) *DomainError {
	return newError(http.StatusBadRequest, ErrCodeModelNotFound, "model "+modelID+" not found", "provider "+providerName, nil)
}

func NewPromptNotFoundError(promptID string) *DomainError {
	return newError(http.StatusNotFound, ErrCodePromptNotFound, "prompt not found", promptID, nil)
}

// NewUpstreamError wraps a transport or HTTP failure from an LLM provider.
// The cause names the upstream status, so it is shown to the caller.
func NewUpstreamError(provider string, err error) *DomainError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return newError(http.StatusBadGateway, ErrCodeUpstream, "provider "+provider+" request failed", details, err)
}

// NewRateLimitedError reports a provider rate-limit rejection.
func NewRateLimitedError(provider, limit string) *DomainError {
	return newError(http.StatusTooManyRequests, ErrCodeRateLimited, "provider "+provider+" rate limit exceeded", limit, nil)
}

// NewFallbackCycleError reports a fallback chain that revisits a provider.
func NewFallbackCycleError(providerID string, cause error) *DomainError {
	return newError(http.StatusBadGateway, ErrCodeFallbackCycle, "fallback chain revisits a provider", providerID, cause)
}

func NewServiceUnavailableError(service string, err error) *DomainError {
	return newError(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, service+" is unavailable", "", err)
}

// IsDomainError reports whether err wraps a DomainError.
func IsDomainError(err error) bool {
	_, ok := GetDomainError(err)
	return ok
}

// GetDomainError extracts the domain error from an error.
func GetDomainError(err error) (*DomainError, bool) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr, true
	}
	return nil, false
}

// HasCode reports whether err is a domain error with the given code.
func HasCode(err error, code string) bool {
	domainErr, ok := GetDomainError(err)
	return ok && domainErr.Code == code
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return HasCode(err, ErrCodeNotFound)
}

// IsValidationError checks if the error is a validation error.
func IsValidationError(err error) bool {
	return HasCode(err, ErrCodeValidation)
}

// IsConflict checks if the error is a conflict error.
func IsConflict(err error) bool {
	return HasCode(err, ErrCodeConflict)
}

// IsFallbackEligible reports whether err came from the provider side and may
// be retried against a configured fallback provider.
func IsFallbackEligible(err error) bool {
	return HasCode(err, ErrCodeUpstream) || HasCode(err, ErrCodeRateLimited)
}
