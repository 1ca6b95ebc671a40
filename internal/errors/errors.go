// Package errors provides custom error types for the grievance backend.
//
// Each type maps to one failure class of the intake pipeline and tells the
// caller which recovery policy applies:
//   - NotFoundError: unknown complaint id, reported as a structured failure
//   - ValidationRejectedError: AI judged the evidence photo as spam
//   - CollaboratorError: AI, mail, SMS, telephony or blob provider failed
//   - MalformedExtractionError: AI extraction output was not valid JSON
//   - ConfigError: required startup settings are missing (fatal)
package errors

import (
	stderrors "errors"
	"fmt"
)

// NotFoundError indicates that no complaint matches the given identifier.
//
// Returned by:
//   - Store.Mutate when the id is absent
//   - Evidence gate before any upload is persisted
//   - Reject operation
//
// Recovery strategy: report {success:false} to the caller, never fatal
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("complaint not found: %s", e.ID)
}

// NewNotFoundError creates a not-found error for a complaint id
func NewNotFoundError(id string) *NotFoundError {
	return &NotFoundError{ID: id}
}

// ValidationRejectedError indicates the AI verdict rejected uploaded evidence.
//
// The complaint is left untouched so the citizen may re-upload.
type ValidationRejectedError struct {
	ID      string
	Verdict string
}

func (e *ValidationRejectedError) Error() string {
	return fmt.Sprintf("evidence rejected for %s: %q", e.ID, e.Verdict)
}

// NewValidationRejectedError creates a rejection error with the raw verdict text
func NewValidationRejectedError(id, verdict string) *ValidationRejectedError {
	return &ValidationRejectedError{ID: id, Verdict: verdict}
}

// CollaboratorError wraps a failure of an external provider.
//
// This error is returned when:
//   - Gemini times out or answers with a non-200 status
//   - Twilio rejects a call or message
//   - The mailbox cannot be reached
//   - Blob storage refuses a write
//
// Recovery strategy depends on the component: fail-open for evidence,
// fail-silent for notifications, skip-item or skip-cycle for the email agent.
type CollaboratorError struct {
	Collaborator string
	Message      string
	Err          error
}

func (e *CollaboratorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s unavailable: %s: %v", e.Collaborator, e.Message, e.Err)
	}
	return fmt.Sprintf("%s unavailable: %s", e.Collaborator, e.Message)
}

// Unwrap returns the wrapped error for error chain inspection
func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// NewCollaboratorError creates a collaborator error with context
func NewCollaboratorError(collaborator, msg string, err error) *CollaboratorError {
	return &CollaboratorError{Collaborator: collaborator, Message: msg, Err: err}
}

// MalformedExtractionError indicates the AI returned text that is not the
// expected JSON object. The affected email is dropped, not retried.
type MalformedExtractionError struct {
	Raw string
	Err error
}

func (e *MalformedExtractionError) Error() string {
	return fmt.Sprintf("malformed extraction: %v", e.Err)
}

// Unwrap returns the wrapped error for error chain inspection
func (e *MalformedExtractionError) Unwrap() error {
	return e.Err
}

// NewMalformedExtractionError creates an extraction error carrying the raw text
func NewMalformedExtractionError(raw string, err error) *MalformedExtractionError {
	return &MalformedExtractionError{Raw: raw, Err: err}
}

// ConfigError indicates a missing or malformed startup setting.
//
// The process must refuse to start when this is returned.
type ConfigError struct {
	Key     string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Message)
}

// NewConfigError creates a configuration error for a key
func NewConfigError(key, msg string) *ConfigError {
	return &ConfigError{Key: key, Message: msg}
}

// IsNotFound checks if the error chain contains a NotFoundError
func IsNotFound(err error) bool {
	var target *NotFoundError
	return stderrors.As(err, &target)
}

// IsValidationRejected checks if the error chain contains a ValidationRejectedError
func IsValidationRejected(err error) bool {
	var target *ValidationRejectedError
	return stderrors.As(err, &target)
}

// IsCollaborator checks if the error chain contains a CollaboratorError
func IsCollaborator(err error) bool {
	var target *CollaboratorError
	return stderrors.As(err, &target)
}

// IsMalformedExtraction checks if the error chain contains a MalformedExtractionError
func IsMalformedExtraction(err error) bool {
	var target *MalformedExtractionError
	return stderrors.As(err, &target)
}

// IsConfig checks if the error chain contains a ConfigError
func IsConfig(err error) bool {
	var target *ConfigError
	return stderrors.As(err, &target)
}
