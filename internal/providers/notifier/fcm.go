package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	accountdomain "github.com/vidra-ai/vidra/internal/account/domain"
	"go.uber.org/zap"
)

type Config struct {
	Endpoint string
	AuthKey  string
}

// FCMNotifier delivers push notifications over the FCM HTTP API. Users
// without a registered device token are skipped silently.
type FCMNotifier struct {
	cfg        Config
	accounts   accountdomain.Service
	httpClient *http.Client
	log        *zap.Logger
}

func NewFCM(cfg Config, accounts accountdomain.Service, log *zap.Logger) *FCMNotifier {
	return &FCMNotifier{
		cfg:        cfg,
		accounts:   accounts,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log.Named("providers.notifier"),
	}
}

type fcmMessage struct {
	To           string            `json:"to"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (n *FCMNotifier) JobComplete(ctx context.Context, userID, jobID, videoURL string) error {
	token, err := n.accounts.FCMToken(ctx, userID)
	if err != nil {
		return err
	}
	if token == "" {
		n.log.Debug("no fcm token registered, skipping notification", zap.String("user_id", userID))
		return nil
	}

	body, err := json.Marshal(fcmMessage{
		To: token,
		Notification: fcmNotification{
			Title: "Video Ready!",
			Body:  "Your video generation is complete.",
		},
		Data: map[string]string{
			"type":      "video_complete",
			"job_id":    jobID,
			"video_url": videoURL,
		},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "key="+n.cfg.AuthKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notifier: fcm returned status %d", resp.StatusCode)
	}
	return nil
}
