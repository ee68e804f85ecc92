// Package shared holds the error kinds, domain error type and events used by
// every domain package. It imports nothing outside the standard library.
package shared

import (
	"errors"
	"fmt"
)

// Error kinds. Callers match them with errors.Is; the transport maps each
// kind to one status code.
var (
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")

	// The entity exists but its status forbids the operation.
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")

	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	ErrStorage            = errors.New("storage error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError says which operation of which domain failed, of what Kind,
// and optionally what caused it.
type DomainError struct {
	Domain  string // "application", "report", "identity", ...
	Op      string
	Kind    error
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
	}
	return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
}

// Unwrap prefers the cause; Is still matches the Kind.
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is matches the Kind or anything in the cause chain.
func (e *DomainError) Is(target error) bool {
	return (e.Kind != nil && errors.Is(e.Kind, target)) ||
		(e.Err != nil && errors.Is(e.Err, target))
}

func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// StorageError marks a repository failure. The driver error stays in the chain.
func StorageError(domain, op string, err error) *DomainError {
	return WrapError(domain, op, ErrStorage, "storage failure", err)
}

// Application domain errors
var (
	ErrApplicationNotFound      = NewDomainError("application", "Find", ErrNotFound, "application not found")
	ErrApplicationAlreadyExists = NewDomainError("application", "Submit", ErrAlreadyExists, "application for this program already exists")
	ErrApplicationNotPending    = NewDomainError("application", "Decide", ErrInvalidState, "application is not pending")
	ErrApplicationNotApproved   = NewDomainError("application", "Complete", ErrInvalidState, "application is not approved")
	ErrInvalidDecision          = NewDomainError("application", "Decide", ErrInvalidInput, "decision must be APPROVE or REJECT")
	ErrEmptyMessage             = NewDomainError("application", "Validate", ErrEmptyValue, "message is required")
	ErrNotApplicationArtisan    = NewDomainError("application", "Authorize", ErrForbidden, "actor is not the artisan owning the program")
	ErrNotApplicationViewer     = NewDomainError("application", "Authorize", ErrForbidden, "actor may not view this application")
	ErrNotApplicant             = NewDomainError("application", "Authorize", ErrForbidden, "only applicants may submit applications")
)

// Program directory errors
var (
	ErrProgramNotFound = NewDomainError("program", "Find", ErrValidation, "program does not exist")
	ErrProgramClosed   = NewDomainError("program", "Check", ErrValidation, "program is not open for applications")
)

// Progress report domain errors
var (
	ErrReportNotFound        = NewDomainError("report", "Find", ErrNotFound, "progress report not found")
	ErrReportWeekExists      = NewDomainError("report", "Create", ErrAlreadyExists, "report for this week already exists")
	ErrReportParentNotActive = NewDomainError("report", "Create", ErrInvalidState, "application is not approved")
	ErrReportFrozen          = NewDomainError("report", "Modify", ErrInvalidState, "reports of this application can no longer be changed")
	ErrInvalidWeekNumber     = NewDomainError("report", "Validate", ErrValueOutOfRange, "week number must be a positive integer")
	ErrEmptyReportText       = NewDomainError("report", "Validate", ErrEmptyValue, "report text is required")
	ErrEmptyImageURL         = NewDomainError("report", "Validate", ErrEmptyValue, "image URL is required")
	ErrNotReportOwner        = NewDomainError("report", "Authorize", ErrForbidden, "actor does not own the application")
)

// Identity errors
var (
	ErrMissingToken = NewDomainError("identity", "Resolve", ErrUnauthorized, "missing session token")
	ErrInvalidToken = NewDomainError("identity", "Resolve", ErrUnauthorized, "invalid session token")
	ErrRevokedToken = NewDomainError("identity", "Resolve", ErrUnauthorized, "session token revoked")
)

func isAny(err error, kinds ...error) bool {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

func IsNotFound(err error) bool      { return errors.Is(err, ErrNotFound) }
func IsAlreadyExists(err error) bool { return errors.Is(err, ErrAlreadyExists) }
func IsForbidden(err error) bool     { return errors.Is(err, ErrForbidden) }
func IsUnauthorized(err error) bool  { return errors.Is(err, ErrUnauthorized) }
func IsStorage(err error) bool       { return errors.Is(err, ErrStorage) }

// IsValidation covers every malformed-input kind.
func IsValidation(err error) bool {
	return isAny(err, ErrValidation, ErrInvalidID, ErrInvalidInput, ErrEmptyValue, ErrValueOutOfRange)
}

// IsInvalidState reports an operation the entity's current status refuses.
func IsInvalidState(err error) bool {
	return isAny(err, ErrInvalidState, ErrStateTransition)
}

// IsRetryable is true for infrastructure failures only. A refusal by
// authorization or status is final even if a storage error is in its chain.
func IsRetryable(err error) bool {
	if IsForbidden(err) || IsInvalidState(err) {
		return false
	}
	return isAny(err, ErrStorage, ErrServiceUnavailable, ErrTimeout)
}
