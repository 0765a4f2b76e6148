package model

import "fmt"

// FieldError describes a single violated constraint on a request field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when client-supplied data violates the schema.
// Handlers map it to a 400 response enumerating the field errors.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "invalid input data"
	}
	return fmt.Sprintf("invalid input data: %s: %s", e.Errors[0].Field, e.Errors[0].Message)
}

// GenerationError is returned when the valuation provider call failed or
// returned nothing usable after all fallback attempts. Handlers map it to 500.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("failed to generate valuation: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// StorageError wraps a failure from the underlying store. Handlers map it to 500.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
