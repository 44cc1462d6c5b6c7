package notifier

import "context"

// Notifier tells a user their job finished. Implementations are
// best-effort; callers never fail a webhook on a notification error.
type Notifier interface {
	JobComplete(ctx context.Context, userID, jobID, videoURL string) error
}

type NoOpNotifier struct{}

func (n *NoOpNotifier) JobComplete(ctx context.Context, userID, jobID, videoURL string) error {
	return nil
}
