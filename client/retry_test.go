package client

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thavlik/foldy-bench/request"
)

type scripted struct {
	errs  []error
	calls int
}

func (s *scripted) Predict(ctx context.Context, payload *request.Payload) (*Response, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return &Response{StatusCode: 200, Body: json.RawMessage(`{}`)}, nil
}

func TestRetryDisabledByDefault(t *testing.T) {
	s := &scripted{}
	assert.Same(t, Predictor(s), Retry(s, 1, time.Millisecond))
	assert.Same(t, Predictor(s), Retry(s, 0, time.Millisecond))
}

func TestRetryTransient(t *testing.T) {
	s := &scripted{errs: []error{
		&StatusError{StatusCode: 503},
		&TransportError{URL: "x", Err: context.DeadlineExceeded},
	}}
	resp, err := Retry(s, 3, time.Millisecond).Predict(context.Background(), testPayload())
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 3, s.calls)
}

func TestRetryStopsOnPermanent(t *testing.T) {
	s := &scripted{errs: []error{&StatusError{StatusCode: 400, Body: "bad"}}}
	_, err := Retry(s, 5, time.Millisecond).Predict(context.Background(), testPayload())
	require.Error(t, err)
	assert.Equal(t, 1, s.calls)
}

func TestRetryGivesUp(t *testing.T) {
	fail := &StatusError{StatusCode: 500, Body: "boom"}
	s := &scripted{errs: []error{fail, fail, fail, fail}}
	_, err := Retry(s, 3, time.Millisecond).Predict(context.Background(), testPayload())
	assert.Equal(t, fail, err)
	assert.Equal(t, 3, s.calls)
}

type cancelOnCall struct {
	cancel context.CancelFunc
	calls  int
}

func (c *cancelOnCall) Predict(ctx context.Context, payload *request.Payload) (*Response, error) {
	c.calls++
	c.cancel()
	return nil, &StatusError{StatusCode: 503, Body: "busy"}
}

func TestRetryStopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &cancelOnCall{cancel: cancel}
	_, err := Retry(p, 5, time.Hour).Predict(ctx, testPayload())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, p.calls)
}
