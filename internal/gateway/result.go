package gateway

import (
	"encoding/json"
	"errors"

	"github.com/vyrodovalexey/opgw/internal/classify"
)

// Result is the envelope returned by every invocation.
type Result struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *ErrorInfo      `json:"error,omitempty"`
}

// ErrorInfo describes a failed invocation.
type ErrorInfo struct {
	Category   classify.Category `json:"category"`
	Type       classify.Type     `json:"type"`
	Suggestion string            `json:"suggestion"`
	Message    string            `json:"message"`

	// RetryAfterMs is set on rate limit rejections.
	RetryAfterMs int64 `json:"retryAfterMs,omitempty"`

	// Attempts is the number of executions made, zero when none ran.
	Attempts int `json:"attempts,omitempty"`
}

// ErrNoData is returned by Decode on a result without data.
var ErrNoData = errors.New("result has no data")

// Decode unmarshals the result data into v.
func (r Result) Decode(v any) error {
	if len(r.Data) == 0 {
		return ErrNoData
	}
	return json.Unmarshal(r.Data, v)
}

// Classification returns the error classification, or the zero value for
// a successful result.
func (r Result) Classification() classify.Classification {
	if r.Error == nil {
		return classify.Classification{}
	}
	return classify.Classification{
		Category:   r.Error.Category,
		Type:       r.Error.Type,
		Suggestion: r.Error.Suggestion,
	}
}

func success(data json.RawMessage) Result {
	return Result{Success: true, Data: data}
}

func failure(c classify.Classification, message string) Result {
	return Result{
		Success: false,
		Error: &ErrorInfo{
			Category:   c.Category,
			Type:       c.Type,
			Suggestion: c.Suggestion,
			Message:    message,
		},
	}
}
