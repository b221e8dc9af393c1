package tool

import "fmt"

// RegistryError is a registry-related error with a machine-readable code.
type RegistryError struct {
	Code    string
	Message string
}

func (e *RegistryError) Error() string {
	return e.Message
}

// NewNotFoundError reports a lookup for an unregistered tool.
func NewNotFoundError(name string) *RegistryError {
	return &RegistryError{
		Code:    "tool_not_found",
		Message: fmt.Sprintf("tool '%s' not found", name),
	}
}

// NewAlreadyRegisteredError reports a duplicate registration.
func NewAlreadyRegisteredError(name string) *RegistryError {
	return &RegistryError{
		Code:    "tool_already_registered",
		Message: fmt.Sprintf("tool '%s' already registered", name),
	}
}

// ValidationError reports invalid tool arguments with field detail.
type ValidationError struct {
	Tool    string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for tool '%s': %s: %s", e.Tool, e.Field, e.Message)
}
