package fetching

import "fmt"

// ErrorKind classifies why a document could not be fetched
type ErrorKind string

const (
	Unreachable     ErrorKind = "unreachable"
	HTTPStatus      ErrorKind = "http_status"
	UnsupportedType ErrorKind = "unsupported_type"
	TooLarge        ErrorKind = "too_large"
	InvalidURL      ErrorKind = "invalid_url"
)

// Error is returned by Fetch for every failure
type Error struct {
	Kind       ErrorKind
	URL        string
	StatusCode int // set for HTTPStatus
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == HTTPStatus:
		return fmt.Sprintf("fetching %s: unexpected status %d", e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("fetching %s: %s: %v", e.URL, e.Kind, e.Err)
	default:
		return fmt.Sprintf("fetching %s: %s", e.URL, e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}
