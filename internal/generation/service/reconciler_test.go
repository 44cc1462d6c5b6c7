package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	accountrepo "github.com/vidra-ai/vidra/internal/account/repository"
	"github.com/vidra-ai/vidra/internal/config"
	"github.com/vidra-ai/vidra/internal/generation/domain"
	generationrepo "github.com/vidra-ai/vidra/internal/generation/repository"
	jobdomain "github.com/vidra-ai/vidra/internal/job/domain"
	jobrepo "github.com/vidra-ai/vidra/internal/job/repository"
	"github.com/vidra-ai/vidra/internal/providers/replicate"
	"go.uber.org/zap"
)

func newTestReconciler(f *generationFixture, fallbackLookup bool) domain.Reconciler {
	return NewReconciler(ReconcilerParams{
		Cfg:         config.Config{WebhookFallbackLookup: fallbackLookup},
		DB:          f.db,
		Log:         zap.NewNop(),
		GenID:       f.node,
		Repo:        generationrepo.Provide(),
		AccountRepo: accountrepo.Provide(),
		Jobs:        f.jobs,
		JobRepo:     jobrepo.Provide(),
		Notifier:    f.notifier,
	})
}

// submitJob runs a real submission so the reconciler sees the same state a
// live webhook would: a PROCESSING job, a prediction lookup entry and a
// ledger reservation.
func submitJob(t *testing.T, f *generationFixture, predictionID string) string {
	t.Helper()
	f.grant(t, "user-1", 100)
	f.gateway.predictionID = predictionID
	resp, err := f.service.Generate(context.Background(), "user-1", validGenerateRequest())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return resp.PredictionID
}

func succeededPrediction(id, outputURL string) *replicate.Prediction {
	out, _ := json.Marshal(outputURL)
	return &replicate.Prediction{ID: id, Status: replicate.StatusSucceeded, Output: out}
}

func failedPrediction(id, message string) *replicate.Prediction {
	p := &replicate.Prediction{ID: id, Status: replicate.StatusFailed}
	if message != "" {
		p.Error = &message
	}
	return p
}

func TestProcessSucceededCompletesAndNotifies(t *testing.T) {
	f := setupGeneration(t)
	ctx := context.Background()
	r := newTestReconciler(f, false)
	jobID := submitJob(t, f, "pred-ok")

	if err := r.Process(ctx, succeededPrediction(jobID, "https://cdn.example.com/out.mp4")); err != nil {
		t.Fatalf("process: %v", err)
	}

	job, err := f.jobs.Get(ctx, "user-1", jobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != jobdomain.StatusComplete {
		t.Fatalf("expected COMPLETE, got %s", job.Status)
	}
	if job.StorageURL == nil || *job.StorageURL != "https://cdn.example.com/out.mp4" {
		t.Fatalf("expected storage url recorded, got %v", job.StorageURL)
	}
	if job.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}
	if f.notifier.Calls() != 1 {
		t.Fatalf("expected 1 notification, got %d", f.notifier.Calls())
	}
	// Success never touches the reservation.
	if balance := f.balance(t, "user-1"); balance != 50 {
		t.Fatalf("expected balance 50, got %d", balance)
	}
}

func TestProcessSucceededOutputArray(t *testing.T) {
	f := setupGeneration(t)
	ctx := context.Background()
	r := newTestReconciler(f, false)
	jobID := submitJob(t, f, "pred-array")

	out, _ := json.Marshal([]string{"https://cdn.example.com/a.mp4", "https://cdn.example.com/b.mp4"})
	if err := r.Process(ctx, &replicate.Prediction{ID: jobID, Status: replicate.StatusSucceeded, Output: out}); err != nil {
		t.Fatalf("process: %v", err)
	}

	job, err := f.jobs.Get(ctx, "user-1", jobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.StorageURL == nil || *job.StorageURL != "https://cdn.example.com/a.mp4" {
		t.Fatalf("expected first array element, got %v", job.StorageURL)
	}
}

func TestProcessFailedRefundsExactlyOnce(t *testing.T) {
	f := setupGeneration(t)
	ctx := context.Background()
	r := newTestReconciler(f, false)
	jobID := submitJob(t, f, "pred-fail")

	event := failedPrediction(jobID, "NSFW content detected")
	if err := r.Process(ctx, event); err != nil {
		t.Fatalf("process: %v", err)
	}

	job, err := f.jobs.Get(ctx, "user-1", jobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != jobdomain.StatusFailed {
		t.Fatalf("expected FAILED, got %s", job.Status)
	}
	if job.ErrorMessage == nil || *job.ErrorMessage != "NSFW content detected" {
		t.Fatalf("expected provider error message, got %v", job.ErrorMessage)
	}
	if balance := f.balance(t, "user-1"); balance != 100 {
		t.Fatalf("expected full refund, got balance %d", balance)
	}

	// At-least-once delivery: the retry must not refund again.
	if err := r.Process(ctx, event); err != nil {
		t.Fatalf("process replay: %v", err)
	}
	if balance := f.balance(t, "user-1"); balance != 100 {
		t.Fatalf("expected balance unchanged after replay, got %d", balance)
	}
}

func TestProcessFailedRefundRollsBackClaimOnError(t *testing.T) {
	f := setupGeneration(t)
	ctx := context.Background()
	r := newTestReconciler(f, false)
	jobID := submitJob(t, f, "pred-crash")

	// Break the ledger so the refund transaction fails after the claim.
	if err := f.db.Exec(`ALTER TABLE credit_ledger RENAME TO credit_ledger_backup`).Error; err != nil {
		t.Fatalf("rename ledger: %v", err)
	}

	event := failedPrediction(jobID, "worker crashed")
	if err := r.Process(ctx, event); err != nil {
		t.Fatalf("process: %v", err)
	}

	// The claim must roll back with the credit, leaving the refund pending.
	var refunded sql.NullInt64
	if err := f.db.Raw(`SELECT credits_refunded FROM jobs WHERE user_id = ? AND id = ?`, "user-1", jobID).Scan(&refunded).Error; err != nil {
		t.Fatalf("read claim: %v", err)
	}
	if refunded.Valid {
		t.Fatalf("expected claim rolled back, got credits_refunded=%d", refunded.Int64)
	}
	if balance := f.balance(t, "user-1"); balance != 50 {
		t.Fatalf("expected balance unchanged, got %d", balance)
	}

	// Once the ledger is back, the redelivery completes the refund.
	if err := f.db.Exec(`ALTER TABLE credit_ledger_backup RENAME TO credit_ledger`).Error; err != nil {
		t.Fatalf("restore ledger: %v", err)
	}
	if err := r.Process(ctx, event); err != nil {
		t.Fatalf("process retry: %v", err)
	}
	if balance := f.balance(t, "user-1"); balance != 100 {
		t.Fatalf("expected refund after retry, got balance %d", balance)
	}
}

func TestProcessFailedDefaultMessage(t *testing.T) {
	f := setupGeneration(t)
	ctx := context.Background()
	r := newTestReconciler(f, false)
	jobID := submitJob(t, f, "pred-fail-blank")

	if err := r.Process(ctx, failedPrediction(jobID, "")); err != nil {
		t.Fatalf("process: %v", err)
	}
	job, err := f.jobs.Get(ctx, "user-1", jobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.ErrorMessage == nil || *job.ErrorMessage != "Job failed" {
		t.Fatalf("expected default error message, got %v", job.ErrorMessage)
	}
}

func TestProcessCanceledRefunds(t *testing.T) {
	f := setupGeneration(t)
	ctx := context.Background()
	r := newTestReconciler(f, false)
	jobID := submitJob(t, f, "pred-cancel")

	if err := r.Process(ctx, &replicate.Prediction{ID: jobID, Status: replicate.StatusCanceled}); err != nil {
		t.Fatalf("process: %v", err)
	}
	job, err := f.jobs.Get(ctx, "user-1", jobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != jobdomain.StatusFailed {
		t.Fatalf("expected FAILED, got %s", job.Status)
	}
	if balance := f.balance(t, "user-1"); balance != 100 {
		t.Fatalf("expected refund, got balance %d", balance)
	}
}

func TestProcessStaleEventAfterTerminal(t *testing.T) {
	f := setupGeneration(t)
	ctx := context.Background()
	r := newTestReconciler(f, false)
	jobID := submitJob(t, f, "pred-stale")

	if err := r.Process(ctx, failedPrediction(jobID, "boom")); err != nil {
		t.Fatalf("process failed event: %v", err)
	}

	// A late "processing" delivery must not resurrect a terminal job.
	if err := r.Process(ctx, &replicate.Prediction{ID: jobID, Status: replicate.StatusProcessing}); err != nil {
		t.Fatalf("process stale event: %v", err)
	}
	job, err := f.jobs.Get(ctx, "user-1", jobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != jobdomain.StatusFailed {
		t.Fatalf("expected FAILED to stick, got %s", job.Status)
	}

	// A late failure after completion is equally ignored.
	doneID := submitJob(t, f, "pred-done")
	if err := r.Process(ctx, succeededPrediction(doneID, "https://cdn.example.com/out.mp4")); err != nil {
		t.Fatalf("process succeeded event: %v", err)
	}
	balanceBefore := f.balance(t, "user-1")
	if err := r.Process(ctx, failedPrediction(doneID, "late failure")); err != nil {
		t.Fatalf("process late failure: %v", err)
	}
	job, err = f.jobs.Get(ctx, "user-1", doneID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != jobdomain.StatusComplete {
		t.Fatalf("expected COMPLETE to stick, got %s", job.Status)
	}
	if balance := f.balance(t, "user-1"); balance != balanceBefore {
		t.Fatalf("expected no refund for a completed job, got %d", balance)
	}
}

func TestProcessSucceededWithoutOutputFailsWithoutRefund(t *testing.T) {
	f := setupGeneration(t)
	ctx := context.Background()
	r := newTestReconciler(f, false)
	jobID := submitJob(t, f, "pred-empty")

	if err := r.Process(ctx, &replicate.Prediction{ID: jobID, Status: replicate.StatusSucceeded}); err != nil {
		t.Fatalf("process: %v", err)
	}

	job, err := f.jobs.Get(ctx, "user-1", jobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != jobdomain.StatusFailed {
		t.Fatalf("expected FAILED, got %s", job.Status)
	}
	if job.ErrorMessage == nil || *job.ErrorMessage != "Job completed but no output URL" {
		t.Fatalf("unexpected error message: %v", job.ErrorMessage)
	}
	// The provider did the work, so the reservation stays spent.
	if balance := f.balance(t, "user-1"); balance != 50 {
		t.Fatalf("expected no refund, got balance %d", balance)
	}
	if f.notifier.Calls() != 0 {
		t.Fatalf("expected no notification, got %d", f.notifier.Calls())
	}
}

func TestProcessUnknownPredictionAcks(t *testing.T) {
	f := setupGeneration(t)
	r := newTestReconciler(f, false)

	if err := r.Process(context.Background(), succeededPrediction("pred-unknown", "https://cdn.example.com/out.mp4")); err != nil {
		t.Fatalf("expected unknown prediction to be dropped, got %v", err)
	}
}

func TestProcessRejectsMissingID(t *testing.T) {
	f := setupGeneration(t)
	r := newTestReconciler(f, false)

	if err := r.Process(context.Background(), nil); !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for nil prediction, got %v", err)
	}
	if err := r.Process(context.Background(), &replicate.Prediction{Status: replicate.StatusSucceeded}); !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for empty id, got %v", err)
	}
}

func TestProcessFallbackLookup(t *testing.T) {
	f := setupGeneration(t)
	ctx := context.Background()
	jobID := submitJob(t, f, "pred-fallback")

	// Simulate a lookup entry lost before the webhook landed.
	if err := f.db.Exec(`DELETE FROM predictions WHERE id = ?`, jobID).Error; err != nil {
		t.Fatalf("delete prediction: %v", err)
	}

	strict := newTestReconciler(f, false)
	if err := strict.Process(ctx, succeededPrediction(jobID, "https://cdn.example.com/out.mp4")); err != nil {
		t.Fatalf("process without fallback: %v", err)
	}
	job, err := f.jobs.Get(ctx, "user-1", jobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != jobdomain.StatusProcessing {
		t.Fatalf("expected job untouched without fallback, got %s", job.Status)
	}

	relaxed := newTestReconciler(f, true)
	if err := relaxed.Process(ctx, succeededPrediction(jobID, "https://cdn.example.com/out.mp4")); err != nil {
		t.Fatalf("process with fallback: %v", err)
	}
	job, err = f.jobs.Get(ctx, "user-1", jobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != jobdomain.StatusComplete {
		t.Fatalf("expected COMPLETE via fallback lookup, got %s", job.Status)
	}
}

func TestProcessRecordsWebhookEvent(t *testing.T) {
	f := setupGeneration(t)
	r := newTestReconciler(f, false)

	if err := r.Process(context.Background(), succeededPrediction("pred-audit", "https://cdn.example.com/out.mp4")); err != nil {
		t.Fatalf("process: %v", err)
	}

	var count int
	if err := f.db.Raw(`SELECT COUNT(1) FROM webhook_events WHERE prediction_id = ?`, "pred-audit").Scan(&count).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 recorded event, got %d", count)
	}
}
