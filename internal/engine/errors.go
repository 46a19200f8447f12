package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Match with errors.Is.
var (
	// ErrDuplicateAssembly means an assembly id was already registered.
	// It indicates a scheduler invariant violation, not bad input.
	ErrDuplicateAssembly = errors.New("duplicate assembly id")

	// ErrUnknownDefinition means no registered definition has the name.
	ErrUnknownDefinition = errors.New("unknown definition")

	// ErrNoMembers means a record resolved to no usable parts.
	ErrNoMembers = errors.New("no matching members")
)

// RuntimeError represents an error detected while the engine mutates the
// graph. It carries structured fields for logging.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// AssemblyID identifies the affected assembly, if any.
	AssemblyID AssemblyID

	// Definition names the affected definition, if any.
	Definition string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying sentinel, exposed through Unwrap.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeDuplicateAssembly indicates an id collision in the registry.
	ErrCodeDuplicateAssembly RuntimeErrorCode = "DUPLICATE_ASSEMBLY"

	// ErrCodeInvalidRecord indicates a persisted record that cannot be restored.
	ErrCodeInvalidRecord RuntimeErrorCode = "INVALID_RECORD"

	// ErrCodeEventFailed indicates a structural event that panicked or failed.
	ErrCodeEventFailed RuntimeErrorCode = "EVENT_FAILED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.AssemblyID != 0 && e.Definition != "" {
		return fmt.Sprintf("%s: %s (assembly=%d, definition=%s)", e.Code, e.Message, e.AssemblyID, e.Definition)
	}
	if e.Definition != "" {
		return fmt.Sprintf("%s: %s (definition=%s)", e.Code, e.Message, e.Definition)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the sentinel error.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsDuplicateAssemblyError reports whether err is a duplicate id error.
// Uses errors.As to handle wrapped errors.
func IsDuplicateAssemblyError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeDuplicateAssembly
	}
	return false
}

// IsInvalidRecordError reports whether err came from restoring a record.
func IsInvalidRecordError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeInvalidRecord
	}
	return false
}

// NewDuplicateAssemblyError creates a RuntimeError for an id collision.
func NewDuplicateAssemblyError(id AssemblyID, definition string) *RuntimeError {
	return &RuntimeError{
		Code:       ErrCodeDuplicateAssembly,
		Message:    "assembly id already registered",
		AssemblyID: id,
		Definition: definition,
		Err:        ErrDuplicateAssembly,
	}
}

// NewInvalidRecordError creates a RuntimeError for an unrestorable record.
func NewInvalidRecordError(container, definition string, cause error) *RuntimeError {
	return &RuntimeError{
		Code:       ErrCodeInvalidRecord,
		Message:    fmt.Sprintf("cannot restore record: %v", cause),
		Definition: definition,
		Details:    map[string]string{"container": container},
		Err:        cause,
	}
}

// Rejection names one definition refused at registration and why.
type Rejection struct {
	Name   string
	Reason string
}

// RegistrationError lists the definitions refused by RegisterDefinition.
// Definitions not listed were registered.
type RegistrationError struct {
	Rejected []Rejection
}

// Error implements the error interface.
func (e *RegistrationError) Error() string {
	parts := make([]string, len(e.Rejected))
	for i, r := range e.Rejected {
		parts[i] = fmt.Sprintf("%s: %s", r.Name, r.Reason)
	}
	return "definitions rejected: " + strings.Join(parts, "; ")
}

// Names returns the rejected definition names in order.
func (e *RegistrationError) Names() []string {
	names := make([]string, len(e.Rejected))
	for i, r := range e.Rejected {
		names[i] = r.Name
	}
	return names
}
