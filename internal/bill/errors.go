package bill

import (
	"fmt"
	"strings"
)

// ParseError is returned when no structured data can be recovered from the
// model's text
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parsing model response: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("parsing model response: %s", e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// SchemaValidationError is returned when the parsed data cannot be coerced
// into the output schema
type SchemaValidationError struct {
	Problems []string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("model response does not match schema: %s", strings.Join(e.Problems, "; "))
}
