package replicate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Prediction statuses reported by the provider, both on submission and in
// webhook deliveries.
const (
	StatusStarting   = "starting"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

// Prediction is the provider's view of one generation run. The same shape
// arrives as the webhook payload.
type Prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Input  map[string]any  `json:"input,omitempty"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  *string         `json:"error,omitempty"`
	Logs   string          `json:"logs,omitempty"`
	URLs   PredictionURLs  `json:"urls,omitempty"`
}

// PredictionURLs are the provider's polling and cancel endpoints for a
// prediction.
type PredictionURLs struct {
	Get    string `json:"get,omitempty"`
	Cancel string `json:"cancel,omitempty"`
}

// OutputURL extracts the artifact URL from the output field, which the
// provider returns either as a bare string or as a list of URLs.
func (p *Prediction) OutputURL() string {
	if len(p.Output) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(p.Output, &single); err == nil {
		return strings.TrimSpace(single)
	}
	var many []string
	if err := json.Unmarshal(p.Output, &many); err == nil && len(many) > 0 {
		return strings.TrimSpace(many[0])
	}
	return ""
}

// ErrorMessage returns the provider error string, if any.
func (p *Prediction) ErrorMessage() string {
	if p.Error == nil {
		return ""
	}
	return strings.TrimSpace(*p.Error)
}

// ProviderError is a non-2xx response from the provider API.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("replicate: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Gateway submits generation runs to the provider.
type Gateway interface {
	// Submit starts a prediction for the named model. modelName is the
	// provider path, e.g. "google/veo-3".
	Submit(ctx context.Context, modelName string, input map[string]any) (*Prediction, error)
}

// NoOpGateway accepts every submission without calling out. It backs local
// development when no API token is configured.
type NoOpGateway struct{}

func (g *NoOpGateway) Submit(ctx context.Context, modelName string, input map[string]any) (*Prediction, error) {
	return &Prediction{ID: "noop", Status: StatusStarting, Input: input}, nil
}
