// file: internal/schema/errors.go
package schema

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrorCode defines validation error codes.
type ErrorCode int

// Defined validation error codes.
const (
	ErrSchemaNotFound ErrorCode = iota + 1000
	ErrSchemaLoadFailed
	ErrSchemaCompileFailed
	ErrValidationFailed
	ErrInvalidJSONFormat
)

// ValidationError represents a schema load or validation failure.
type ValidationError struct {
	Code    ErrorCode
	Message string
	Cause   error
	// SchemaPath is the keyword location that was violated.
	SchemaPath string
	// InstancePath is the location in the response body.
	InstancePath string
	Context      map[string]interface{}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("[%d] %s", e.Code, e.Message)
	if e.SchemaPath != "" {
		msg += " (schema path: " + e.SchemaPath + ")"
	}
	if e.InstancePath != "" {
		msg += " (instance path: " + e.InstancePath + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// WithContext adds a context entry and returns e.
func (e *ValidationError) WithContext(key string, value interface{}) *ValidationError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewValidationError creates a ValidationError. cause may be nil.
func NewValidationError(code ErrorCode, message string, cause error) *ValidationError {
	if cause != nil {
		cause = errors.WithStack(cause)
	}
	return &ValidationError{Code: code, Message: message, Cause: cause}
}

// IsValidationError reports whether err carries a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// convertValidationError maps a jsonschema failure to a ValidationError,
// taking paths from the first basic output entry.
func convertValidationError(valErr *jsonschema.ValidationError, responseType string, data []byte) *ValidationError {
	out := valErr.BasicOutput()
	ve := NewValidationError(ErrValidationFailed, valErr.Message, valErr)

	if len(out.Errors) > 0 {
		ve.SchemaPath = out.Errors[0].KeywordLocation
		ve.InstancePath = out.Errors[0].InstanceLocation

		causes := make([]map[string]string, 0, len(out.Errors))
		for _, c := range out.Errors {
			causes = append(causes, map[string]string{
				"instanceLocation": c.InstanceLocation,
				"keywordLocation":  c.KeywordLocation,
				"error":            c.Error,
			})
		}
		ve.WithContext("validationErrors", causes)
	}
	return ve.WithContext("responseType", responseType).WithContext("dataPreview", calculatePreview(data))
}
