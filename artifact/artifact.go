// Package artifact persists the outcome of each prediction call.
package artifact

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"time"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Artifact is one success or error record. Use Success or Failure to
// build it; each sets exactly the fields its status allows.
type Artifact struct {
	Status         string          `json:"status"`
	ElapsedSeconds float64         `json:"elapsed_seconds"`
	TargetID       string          `json:"target_id,omitempty"`
	SamplingSteps  int             `json:"sampling_steps"`
	RequestID      string          `json:"request_id,omitempty"`
	StatusCode     int             `json:"status_code,omitempty"`
	Response       json.RawMessage `json:"response,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// Success ...
func Success(targetID string, steps int, elapsed time.Duration, requestID string, response json.RawMessage) *Artifact {
	return &Artifact{
		Status:         StatusOK,
		ElapsedSeconds: Seconds(elapsed),
		TargetID:       targetID,
		SamplingSteps:  steps,
		RequestID:      requestID,
		Response:       response,
	}
}

// Failure ...
func Failure(targetID string, steps int, elapsed time.Duration, statusCode int, message string) *Artifact {
	return &Artifact{
		Status:         StatusError,
		ElapsedSeconds: Seconds(elapsed),
		TargetID:       targetID,
		SamplingSteps:  steps,
		StatusCode:     statusCode,
		Error:          message,
	}
}

// OK ...
func (a *Artifact) OK() bool {
	return a.Status == StatusOK
}

// Encode renders the artifact as indented JSON.
func (a *Artifact) Encode() ([]byte, error) {
	return json.MarshalIndent(a, "", "  ")
}

// Seconds rounds d to hundredths of a second.
func Seconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}

// Name is the file name for an artifact of targetID at steps written at
// ts: {target}_steps{N}_{unix}.json, with an _error suffix for failures.
func Name(targetID string, steps int, ts time.Time, failed bool) string {
	suffix := ""
	if failed {
		suffix = "_error"
	}
	return fmt.Sprintf("%s_steps%d_%d%s.json", sanitize(targetID), steps, ts.Unix(), suffix)
}

// NameFor ...
func NameFor(a *Artifact, ts time.Time) string {
	return Name(a.TargetID, a.SamplingSteps, ts, !a.OK())
}

func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, id)
}

// Read loads an artifact file.
func Read(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	a := &Artifact{}
	if err := json.Unmarshal(data, a); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}
