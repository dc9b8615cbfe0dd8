package scanning

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// retrying wraps a Scanner with a single retry for transient failures
type retrying struct {
	Scanner
	backoff time.Duration
}

// WithRetry retries a failed Scan once after backoff when the failure was
// rate limiting or a transport error that is not a client error. Timeouts,
// empty responses and content problems are returned as is.
func WithRetry(s Scanner, backoff time.Duration) Scanner {
	return &retrying{Scanner: s, backoff: backoff}
}

func (r *retrying) Scan(ctx context.Context, payload Payload) (*Response, error) {
	resp, err := r.Scanner.Scan(ctx, payload)
	if err == nil {
		return resp, nil
	}

	var merr *ModelInvocationError
	if !errors.As(err, &merr) || !merr.retryable() {
		return nil, err
	}

	slog.WarnContext(ctx, "scanning.retry", "kind", merr.Kind, "status", merr.StatusCode, "backoff", r.backoff)

	timer := time.NewTimer(r.backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		// A deadline during backoff still counts as a model timeout
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &ModelInvocationError{Kind: ModelTimeout, Err: ctx.Err()}
		}
		return nil, err
	case <-timer.C:
	}

	return r.Scanner.Scan(ctx, payload)
}
