package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/vidra-ai/vidra/internal/account/domain"
	"github.com/vidra-ai/vidra/internal/config"
	"github.com/vidra-ai/vidra/internal/generation/domain"
	jobdomain "github.com/vidra-ai/vidra/internal/job/domain"
	obsmetrics "github.com/vidra-ai/vidra/internal/observability/metrics"
	"github.com/vidra-ai/vidra/internal/providers/notifier"
	"github.com/vidra-ai/vidra/internal/providers/replicate"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const errNoOutputURL = "Job completed but no output URL"

type ReconcilerParams struct {
	fx.In

	Cfg         config.Config
	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        domain.Repository
	AccountRepo accountdomain.Repository
	Jobs        jobdomain.Service
	JobRepo     jobdomain.Repository
	Notifier    notifier.Notifier
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

// reconciler applies provider webhook deliveries to jobs. Deliveries are
// at-least-once and may arrive out of order, so every transition has to
// tolerate replays and stale events.
type reconciler struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	repo           domain.Repository
	accountRepo    accountdomain.Repository
	jobs           jobdomain.Service
	jobRepo        jobdomain.Repository
	notifier       notifier.Notifier
	fallbackLookup bool
	obsMetrics     *obsmetrics.Metrics
}

func NewReconciler(p ReconcilerParams) domain.Reconciler {
	return &reconciler{
		db:             p.DB,
		log:            p.Log.Named("generation.reconciler"),
		genID:          p.GenID,
		repo:           p.Repo,
		accountRepo:    p.AccountRepo,
		jobs:           p.Jobs,
		jobRepo:        p.JobRepo,
		notifier:       p.Notifier,
		fallbackLookup: p.Cfg.WebhookFallbackLookup,
		obsMetrics:     p.ObsMetrics,
	}
}

func (r *reconciler) Process(ctx context.Context, prediction *replicate.Prediction) error {
	if prediction == nil || strings.TrimSpace(prediction.ID) == "" {
		return domain.ErrInvalidPayload
	}

	log := r.log.With(
		zap.String("prediction_id", prediction.ID),
		zap.String("provider_status", prediction.Status),
	)
	r.recordEvent(ctx, prediction)
	if r.obsMetrics != nil {
		r.obsMetrics.RecordWebhookEvent(ctx, prediction.Status)
	}

	userID, jobID, found, err := r.jobs.ResolvePrediction(ctx, prediction.ID)
	if err != nil {
		log.Error("prediction lookup failed", zap.Error(err))
		return nil
	}
	if !found {
		log.Warn("no prediction lookup entry")
		if !r.fallbackLookup {
			return nil
		}
		job, err := r.jobs.FindByPredictionID(ctx, prediction.ID)
		if err != nil || job == nil {
			log.Warn("fallback job lookup found nothing", zap.Error(err))
			return nil
		}
		userID, jobID = job.UserID, job.ID
	}

	job, err := r.jobs.Get(ctx, userID, jobID)
	if err != nil {
		if err == jobdomain.ErrNotFound {
			log.Warn("job not found for prediction", zap.String("user_id", userID), zap.String("job_id", jobID))
		} else {
			log.Error("job load failed", zap.Error(err))
		}
		return nil
	}

	switch prediction.Status {
	case replicate.StatusStarting, replicate.StatusProcessing:
		if job.Status.Terminal() {
			log.Info("stale progress event after terminal status, ignoring",
				zap.String("status", string(job.Status)),
			)
			return nil
		}
		status := jobdomain.StatusProcessing
		if err := r.jobs.Update(ctx, userID, jobID, jobdomain.Update{Status: &status}); err != nil {
			log.Error("failed to mark job processing", zap.Error(err))
		}

	case replicate.StatusSucceeded:
		r.applySucceeded(ctx, log, job, prediction)

	case replicate.StatusFailed, replicate.StatusCanceled:
		r.applyFailed(ctx, log, job, prediction)

	default:
		log.Warn("unknown provider status, ignoring")
	}
	return nil
}

func (r *reconciler) applySucceeded(ctx context.Context, log *zap.Logger, job *jobdomain.Job, prediction *replicate.Prediction) {
	outputURL := prediction.OutputURL()
	if outputURL == "" {
		log.Error("prediction succeeded without output url")
		r.applyFailure(ctx, log, job, errNoOutputURL, false)
		return
	}

	if job.Status.Terminal() && job.Status != jobdomain.StatusComplete {
		log.Info("success event after failure, ignoring")
		return
	}

	status := jobdomain.StatusComplete
	now := time.Now().UTC()
	if err := r.jobs.Update(ctx, job.UserID, job.ID, jobdomain.Update{
		Status:      &status,
		StorageURL:  &outputURL,
		PreviewURL:  &outputURL,
		CompletedAt: &now,
	}); err != nil {
		log.Error("failed to mark job complete", zap.Error(err))
		return
	}
	log.Info("job complete", zap.String("job_id", job.ID))

	if err := r.notifier.JobComplete(ctx, job.UserID, job.ID, outputURL); err != nil {
		log.Warn("completion notification failed", zap.Error(err))
		if r.obsMetrics != nil {
			r.obsMetrics.RecordNotification(ctx, "error")
		}
	} else if r.obsMetrics != nil {
		r.obsMetrics.RecordNotification(ctx, "ok")
	}
}

func (r *reconciler) applyFailed(ctx context.Context, log *zap.Logger, job *jobdomain.Job, prediction *replicate.Prediction) {
	message := prediction.ErrorMessage()
	if message == "" {
		message = "Job failed"
	}
	r.applyFailure(ctx, log, job, message, true)
}

// applyFailure marks the job FAILED and, when refund is requested, returns
// the deducted credits. The conditional credits_refunded claim makes the
// refund safe under webhook replays: only one delivery ever wins it.
func (r *reconciler) applyFailure(ctx context.Context, log *zap.Logger, job *jobdomain.Job, message string, refund bool) {
	if job.Status == jobdomain.StatusComplete {
		log.Info("failure event after completion, ignoring")
		return
	}

	status := jobdomain.StatusFailed
	now := time.Now().UTC()
	if err := r.jobs.Update(ctx, job.UserID, job.ID, jobdomain.Update{
		Status:       &status,
		ErrorMessage: &message,
		FailedAt:     &now,
	}); err != nil {
		log.Error("failed to mark job failed", zap.Error(err))
		return
	}
	log.Info("job failed", zap.String("job_id", job.ID), zap.String("error", message))

	if !refund || job.CreditsDeducted <= 0 {
		return
	}

	// Claim and credit run in one transaction so a crash between them can
	// never burn the claim without returning the credits. The conditional
	// credits_refunded stamp still makes replays lose the claim.
	amount := job.CreditsDeducted
	var refunded bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claimed, err := r.jobRepo.ClaimRefund(ctx, tx, job.UserID, job.ID, amount)
		if err != nil {
			return err
		}
		if !claimed {
			return nil
		}
		if err := r.accountRepo.EnsureUser(ctx, tx, job.UserID); err != nil {
			return err
		}
		if err := r.accountRepo.Credit(ctx, tx, job.UserID, amount); err != nil {
			return err
		}
		balance, _, err := r.accountRepo.Balance(ctx, tx, job.UserID)
		if err != nil {
			return err
		}
		jobID := job.ID
		if err := r.accountRepo.InsertEntry(ctx, tx, &accountdomain.LedgerEntry{
			ID:           r.genID.Generate(),
			UserID:       job.UserID,
			Kind:         accountdomain.KindRefund,
			Delta:        amount,
			BalanceAfter: balance,
			JobID:        &jobID,
			CreatedAt:    time.Now().UTC(),
		}); err != nil {
			return err
		}
		refunded = true
		return nil
	})
	if err != nil {
		log.Error("refund failed",
			zap.String("user_id", job.UserID),
			zap.Int64("amount", amount),
			zap.Error(err),
		)
		return
	}
	if !refunded {
		log.Info("refund already issued, skipping")
		return
	}
	if r.obsMetrics != nil {
		r.obsMetrics.RecordCreditEntry(ctx, string(accountdomain.KindRefund))
	}
	log.Info("credits refunded",
		zap.String("user_id", job.UserID),
		zap.Int64("amount", amount),
	)
}

// recordEvent keeps an audit trail of raw deliveries. Never blocks the
// webhook on failure.
func (r *reconciler) recordEvent(ctx context.Context, prediction *replicate.Prediction) {
	payload, err := json.Marshal(prediction)
	if err != nil {
		return
	}
	event := &domain.WebhookEvent{
		ID:           r.genID.Generate(),
		PredictionID: prediction.ID,
		Status:       prediction.Status,
		Payload:      payload,
		ReceivedAt:   time.Now().UTC(),
	}
	if err := r.repo.InsertWebhookEvent(ctx, r.db, event); err != nil {
		r.log.Warn("failed to record webhook event", zap.Error(err))
	}
}
