package client

import (
	"context"
	"encoding/json"
	"fmt"
)

// ServePath is the route of the thin HTTP wrapper that runs a whole
// directory of definitions in one call.
const ServePath = "/predict"

// ServeRequest ...
type ServeRequest struct {
	Data          string `json:"data"`
	SamplingSteps int    `json:"sampling_steps"`
	BatchSize     int    `json:"batch_size,omitempty"`
}

// Serve asks the wrapper to predict every definition under req.Data.
func (c *Client) Serve(ctx context.Context, req ServeRequest) (*Response, error) {
	body, err := json.Marshal(&req)
	if err != nil {
		return nil, fmt.Errorf("encode serve request: %w", err)
	}
	return c.post(ctx, ServePath, body)
}
