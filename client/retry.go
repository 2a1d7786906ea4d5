package client

import (
	"context"
	"time"

	"github.com/thavlik/foldy-bench/request"
)

// Retry wraps next so retryable failures are attempted up to maxAttempts
// times with exponential backoff from baseDelay. maxAttempts <= 1 returns
// next unchanged.
func Retry(next Predictor, maxAttempts int, baseDelay time.Duration) Predictor {
	if maxAttempts <= 1 {
		return next
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return &retrying{next: next, max: maxAttempts, base: baseDelay}
}

type retrying struct {
	next Predictor
	max  int
	base time.Duration
}

func (r *retrying) Predict(ctx context.Context, payload *request.Payload) (*Response, error) {
	var last error
	for i := 0; i < r.max; i++ {
		resp, err := r.next.Predict(ctx, payload)
		if err == nil {
			return resp, nil
		}
		if !Retryable(err) {
			return nil, err
		}
		last = err
		if i == r.max-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.base * time.Duration(1<<i)):
		}
	}
	return nil, last
}
