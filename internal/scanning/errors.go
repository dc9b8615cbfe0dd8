package scanning

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RasterizationKind classifies why a document could not be rendered
type RasterizationKind string

const (
	RasterCorrupt  RasterizationKind = "corrupt"
	RasterEmpty    RasterizationKind = "empty"
	RasterOversize RasterizationKind = "oversize"
)

// RasterizationError is returned by Rasterize
type RasterizationError struct {
	Kind RasterizationKind
	Page int // 1-based, zero when the failure is not page specific
	Err  error
}

func (e *RasterizationError) Error() string {
	msg := "rasterizing document: " + string(e.Kind)
	if e.Page > 0 {
		msg = fmt.Sprintf("%s (page %d)", msg, e.Page)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RasterizationError) Unwrap() error {
	return e.Err
}

// ModelErrorKind classifies a failed model call
type ModelErrorKind string

const (
	ModelTransport     ModelErrorKind = "transport"
	ModelRateLimited   ModelErrorKind = "rate_limited"
	ModelTimeout       ModelErrorKind = "timeout"
	ModelEmptyResponse ModelErrorKind = "empty_response"
)

// ModelInvocationError is returned by every Scanner
type ModelInvocationError struct {
	Kind       ModelErrorKind
	StatusCode int // HTTP status from the backend, when known
	Err        error
}

func (e *ModelInvocationError) Error() string {
	msg := "invoking model: " + string(e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ModelInvocationError) Unwrap() error {
	return e.Err
}

// retryable reports whether a second attempt could succeed
func (e *ModelInvocationError) retryable() bool {
	switch e.Kind {
	case ModelRateLimited:
		return true
	case ModelTransport:
		return e.StatusCode == 0 || e.StatusCode >= 500
	}
	return false
}

// ClassifyModelError maps a backend client error to a ModelInvocationError.
// Errors that are already classified are returned unchanged.
func ClassifyModelError(ctx context.Context, err error) *ModelInvocationError {
	var merr *ModelInvocationError
	if errors.As(err, &merr) {
		return merr
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ModelInvocationError{Kind: ModelTimeout, Err: err}
	}

	statusCode := 0
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPCode() > 0 {
		statusCode = apiErr.HTTPCode()
	}
	var gerr *googleapi.Error
	if statusCode == 0 && errors.As(err, &gerr) {
		statusCode = gerr.Code
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return &ModelInvocationError{Kind: ModelRateLimited, StatusCode: statusCode, Err: err}
	case status.Code(err) == codes.ResourceExhausted:
		return &ModelInvocationError{Kind: ModelRateLimited, StatusCode: http.StatusTooManyRequests, Err: err}
	case status.Code(err) == codes.DeadlineExceeded:
		return &ModelInvocationError{Kind: ModelTimeout, Err: err}
	}
	return &ModelInvocationError{Kind: ModelTransport, StatusCode: statusCode, Err: err}
}
