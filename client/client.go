// Package client talks to the remote prediction service.
//
// Every call sends exactly one request; retrying is opt-in through Retry.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/thavlik/foldy-bench/request"
)

const (
	// PredictPath is the prediction route under the base URL.
	PredictPath = "/biology/mit/boltz2/predict"

	// DefaultTimeout bounds a whole prediction exchange.
	DefaultTimeout = 20 * time.Minute

	// RequestIDHeader carries the id recorded in the artifact.
	RequestIDHeader = "X-Request-Id"
)

// Response is a successful reply.
type Response struct {
	RequestID  string
	StatusCode int
	Body       json.RawMessage
}

// Predictor is anything that can run one prediction.
type Predictor interface {
	Predict(ctx context.Context, payload *request.Payload) (*Response, error)
}

// Client ...
type Client struct {
	baseURL string
	http    *http.Client
}

// Option ...
type Option func(*Client)

// WithHTTPClient replaces the underlying client. Its Timeout is left as
// given.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a client for baseURL whose timeout covers connection,
// request upload and reading the whole response.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Predict posts payload to the prediction route.
func (c *Client) Predict(ctx context.Context, payload *request.Payload) (*Response, error) {
	body, err := payload.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return c.post(ctx, PredictPath, body)
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

func (c *Client) post(ctx context.Context, path string, body []byte) (*Response, error) {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	requestID := uuid.New().String()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if !json.Valid(data) {
		return nil, &DecodeError{Body: string(data)}
	}
	return &Response{
		RequestID:  requestID,
		StatusCode: resp.StatusCode,
		Body:       json.RawMessage(data),
	}, nil
}
