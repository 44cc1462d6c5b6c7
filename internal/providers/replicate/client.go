package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.replicate.com"

// webhookEvents is the delivery filter requested for every prediction.
var webhookEvents = []string{"start", "output", "logs", "completed"}

type Config struct {
	APIToken   string
	BaseURL    string
	WebhookURL string
	Timeout    time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *zap.Logger
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.Named("providers.replicate"),
	}
}

type createPredictionRequest struct {
	Input               map[string]any `json:"input"`
	Webhook             string         `json:"webhook,omitempty"`
	WebhookEventsFilter []string       `json:"webhook_events_filter,omitempty"`
}

func (c *Client) Submit(ctx context.Context, modelName string, input map[string]any) (*Prediction, error) {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		return nil, fmt.Errorf("replicate: model name is empty")
	}

	payload := createPredictionRequest{Input: input}
	if c.cfg.WebhookURL != "" {
		payload.Webhook = c.cfg.WebhookURL
		payload.WebhookEventsFilter = webhookEvents
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1/models/%s/predictions", strings.TrimRight(c.cfg.BaseURL, "/"), modelName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn("prediction create rejected",
			zap.String("model", modelName),
			zap.Int("status", resp.StatusCode),
		)
		return nil, &ProviderError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var prediction Prediction
	if err := json.Unmarshal(raw, &prediction); err != nil {
		return nil, fmt.Errorf("replicate: decode response: %w", err)
	}
	if prediction.ID == "" {
		return nil, fmt.Errorf("replicate: response missing prediction id")
	}

	c.log.Info("prediction created",
		zap.String("model", modelName),
		zap.String("prediction_id", prediction.ID),
		zap.String("status", prediction.Status),
	)
	return &prediction, nil
}
