package llm

import (
	"errors"
	"fmt"
)

// ErrMissingField is wrapped by SchemaError when a required reply key is absent or null.
var ErrMissingField = errors.New("required field missing")

// ParseError means the model reply contained no decodable JSON object.
type ParseError struct {
	Template string
	Raw      string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("llm %s: reply is not valid JSON: %v", e.Template, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SchemaError means the reply was JSON but did not match the template's schema:
// a required field was missing, a field had the wrong type, or the reply
// failed its own validation.
type SchemaError struct {
	Template string
	Field    string
	Err      error
}

func (e *SchemaError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("llm %s: schema mismatch on %q: %v", e.Template, e.Field, e.Err)
	}
	return fmt.Sprintf("llm %s: schema mismatch: %v", e.Template, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// TransportError means the backend could not be reached or returned an error
// status. It also covers an open circuit and context cancellation.
type TransportError struct {
	Template string
	Backend  string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("llm %s: %s request failed: %v", e.Template, e.Backend, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
