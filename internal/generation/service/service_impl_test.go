package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	accountdomain "github.com/vidra-ai/vidra/internal/account/domain"
	accountrepo "github.com/vidra-ai/vidra/internal/account/repository"
	accountservice "github.com/vidra-ai/vidra/internal/account/service"
	catalogdomain "github.com/vidra-ai/vidra/internal/catalog/domain"
	catalogrepo "github.com/vidra-ai/vidra/internal/catalog/repository"
	catalogservice "github.com/vidra-ai/vidra/internal/catalog/service"
	"github.com/vidra-ai/vidra/internal/config"
	"github.com/vidra-ai/vidra/internal/generation/domain"
	jobdomain "github.com/vidra-ai/vidra/internal/job/domain"
	jobrepo "github.com/vidra-ai/vidra/internal/job/repository"
	jobservice "github.com/vidra-ai/vidra/internal/job/service"
	"github.com/vidra-ai/vidra/internal/providers/replicate"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeGateway struct {
	mu           sync.Mutex
	calls        int
	lastModel    string
	lastInput    map[string]any
	predictionID string
	status       string
	err          error
}

func (g *fakeGateway) Submit(ctx context.Context, modelName string, input map[string]any) (*replicate.Prediction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.lastModel = modelName
	g.lastInput = input
	if g.err != nil {
		return nil, g.err
	}
	id := g.predictionID
	if id == "" {
		id = fmt.Sprintf("pred-%d", g.calls)
	}
	status := g.status
	if status == "" {
		status = replicate.StatusStarting
	}
	return &replicate.Prediction{ID: id, Status: status}, nil
}

func (g *fakeGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (n *fakeNotifier) JobComplete(ctx context.Context, userID, jobID, videoURL string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, jobID)
	return n.err
}

func (n *fakeNotifier) Calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

type generationFixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	accounts accountdomain.Service
	jobs     jobdomain.Service
	catalog  catalogdomain.Service
	gateway  *fakeGateway
	notifier *fakeNotifier
	service  domain.Service
}

func setupGeneration(t *testing.T) *generationFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	prepareGenerationSchema(t, db)

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	accounts := accountservice.NewService(accountservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  accountrepo.Provide(),
	})
	jobs := jobservice.NewService(jobservice.Params{
		DB:   db,
		Log:  zap.NewNop(),
		Repo: jobrepo.Provide(),
	})
	catalog := catalogservice.NewService(catalogservice.Params{
		DB:   db,
		Log:  zap.NewNop(),
		Repo: catalogrepo.Provide(),
	})

	gateway := &fakeGateway{}
	notifier := &fakeNotifier{}
	service := NewService(Params{
		Cfg:      config.Config{},
		Log:      zap.NewNop(),
		Accounts: accounts,
		Jobs:     jobs,
		Catalog:  catalog,
		Gateway:  gateway,
	})

	return &generationFixture{
		db:       db,
		node:     node,
		accounts: accounts,
		jobs:     jobs,
		catalog:  catalog,
		gateway:  gateway,
		notifier: notifier,
		service:  service,
	}
}

func prepareGenerationSchema(t *testing.T, db *gorm.DB) {
	t.Helper()
	statements := []string{
		`CREATE TABLE users (
			id TEXT PRIMARY KEY,
			credits BIGINT NOT NULL DEFAULT 0,
			fcm_token TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE credit_ledger (
			id BIGINT PRIMARY KEY,
			user_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			delta BIGINT NOT NULL,
			balance_after BIGINT NOT NULL,
			job_id TEXT,
			reference TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE purchases (
			token TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			product_id TEXT NOT NULL,
			credits BIGINT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE jobs (
			user_id TEXT NOT NULL,
			id TEXT NOT NULL,
			prompt TEXT NOT NULL DEFAULT '',
			model_id TEXT NOT NULL DEFAULT '',
			model_name TEXT NOT NULL DEFAULT '',
			duration_seconds INT NOT NULL DEFAULT 0,
			aspect_ratio TEXT NOT NULL DEFAULT '',
			enable_audio BOOLEAN NOT NULL DEFAULT FALSE,
			status TEXT NOT NULL,
			cost BIGINT NOT NULL DEFAULT 0,
			credits_deducted BIGINT NOT NULL DEFAULT 0,
			credits_refunded BIGINT,
			replicate_prediction_id TEXT,
			input_image TEXT,
			first_frame_url TEXT,
			last_frame_url TEXT,
			storage_url TEXT,
			preview_url TEXT,
			error_message TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			completed_at DATETIME,
			failed_at DATETIME,
			PRIMARY KEY (user_id, id)
		)`,
		`CREATE TABLE predictions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			job_id TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE models (
			id TEXT PRIMARY KEY,
			replicate_name TEXT NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			duration_options TEXT NOT NULL DEFAULT '[]',
			schema_parameters TEXT NOT NULL DEFAULT '[]',
			aspect_ratios TEXT NOT NULL DEFAULT '[]',
			credits_per_second BIGINT NOT NULL DEFAULT 0,
			supports_audio BOOLEAN NOT NULL DEFAULT FALSE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE webhook_events (
			id BIGINT PRIMARY KEY,
			prediction_id TEXT NOT NULL,
			status TEXT NOT NULL,
			payload TEXT,
			received_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("prepare schema: %v", err)
		}
	}

	if err := db.Exec(
		`INSERT INTO models (id, replicate_name, display_name, duration_options, schema_parameters, aspect_ratios, credits_per_second, supports_audio, created_at, updated_at)
		 VALUES ('test-model', 'acme/test-model', 'Test Model', '[5,8]', '[{"name":"image","type":"string","format":"uri"}]', '["16:9"]', 10, 1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
	).Error; err != nil {
		t.Fatalf("seed model: %v", err)
	}
}

func (f *generationFixture) grant(t *testing.T, userID string, amount int64) {
	t.Helper()
	if _, err := f.accounts.Grant(context.Background(), userID, amount, "test"); err != nil {
		t.Fatalf("grant: %v", err)
	}
}

func (f *generationFixture) balance(t *testing.T, userID string) int64 {
	t.Helper()
	balance, err := f.accounts.Balance(context.Background(), userID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return balance
}

func validGenerateRequest() domain.GenerateRequest {
	return domain.GenerateRequest{
		Prompt:          "a lighthouse in a storm",
		ModelID:         "test-model",
		DurationSeconds: 5,
		AspectRatio:     "16:9",
	}
}

func TestGenerateReservesCreditsAndCreatesJob(t *testing.T) {
	f := setupGeneration(t)
	ctx := context.Background()
	f.grant(t, "user-1", 100)

	resp, err := f.service.Generate(ctx, "user-1", validGenerateRequest())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.PredictionID == "" {
		t.Fatal("expected a prediction id")
	}

	// 5 seconds at 10 credits/second.
	if balance := f.balance(t, "user-1"); balance != 50 {
		t.Fatalf("expected balance 50, got %d", balance)
	}

	job, err := f.jobs.Get(ctx, "user-1", resp.PredictionID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != jobdomain.StatusProcessing {
		t.Fatalf("expected PROCESSING, got %s", job.Status)
	}
	if job.CreditsDeducted != 50 {
		t.Fatalf("expected 50 credits deducted, got %d", job.CreditsDeducted)
	}

	_, _, found, err := f.jobs.ResolvePrediction(ctx, resp.PredictionID)
	if err != nil {
		t.Fatalf("resolve prediction: %v", err)
	}
	if !found {
		t.Fatal("expected a prediction lookup entry")
	}
}

func TestGenerateInsufficientCredits(t *testing.T) {
	f := setupGeneration(t)
	f.grant(t, "user-1", 10)

	_, err := f.service.Generate(context.Background(), "user-1", validGenerateRequest())
	var insufficient *accountdomain.InsufficientCreditsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientCreditsError, got %v", err)
	}
	if insufficient.Required != 50 || insufficient.Available != 10 {
		t.Fatalf("unexpected error values: %+v", insufficient)
	}

	// Credits must never reach the provider when the reservation fails.
	if f.gateway.Calls() != 0 {
		t.Fatalf("expected no gateway calls, got %d", f.gateway.Calls())
	}
	if balance := f.balance(t, "user-1"); balance != 10 {
		t.Fatalf("expected balance untouched at 10, got %d", balance)
	}
}

func TestGenerateRejectsInvalidDuration(t *testing.T) {
	f := setupGeneration(t)
	f.grant(t, "user-1", 1000)

	req := validGenerateRequest()
	req.DurationSeconds = 7
	_, err := f.service.Generate(context.Background(), "user-1", req)
	if !errors.Is(err, catalogdomain.ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
	if balance := f.balance(t, "user-1"); balance != 1000 {
		t.Fatalf("expected balance untouched, got %d", balance)
	}
}

func TestGenerateUnknownModel(t *testing.T) {
	f := setupGeneration(t)

	req := validGenerateRequest()
	req.ModelID = "no-such-model"
	_, err := f.service.Generate(context.Background(), "user-1", req)
	if !errors.Is(err, catalogdomain.ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
}

func TestGenerateProviderFailureRefunds(t *testing.T) {
	f := setupGeneration(t)
	ctx := context.Background()
	f.grant(t, "user-1", 100)
	f.gateway.err = &replicate.ProviderError{StatusCode: 500, Body: "upstream down"}

	_, err := f.service.Generate(ctx, "user-1", validGenerateRequest())
	var provider *replicate.ProviderError
	if !errors.As(err, &provider) {
		t.Fatalf("expected ProviderError, got %v", err)
	}

	if balance := f.balance(t, "user-1"); balance != 100 {
		t.Fatalf("expected reserved credits returned, got balance %d", balance)
	}
	jobs, err := f.jobs.List(ctx, "user-1", 10)
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected no jobs after provider failure, got %d", len(jobs))
	}
}

func TestGenerateDuplicatePredictionSingleDeduction(t *testing.T) {
	f := setupGeneration(t)
	ctx := context.Background()
	f.grant(t, "user-1", 200)
	f.gateway.predictionID = "pred-same"

	first, err := f.service.Generate(ctx, "user-1", validGenerateRequest())
	if err != nil {
		t.Fatalf("generate first: %v", err)
	}
	second, err := f.service.Generate(ctx, "user-1", validGenerateRequest())
	if err != nil {
		t.Fatalf("generate second: %v", err)
	}

	if first.PredictionID != second.PredictionID {
		t.Fatalf("expected the same prediction, got %s and %s", first.PredictionID, second.PredictionID)
	}
	// The losing submission must hand its reservation back.
	if balance := f.balance(t, "user-1"); balance != 150 {
		t.Fatalf("expected a single 50 credit deduction, got balance %d", balance)
	}

	var count int
	if err := f.db.Raw(`SELECT COUNT(1) FROM jobs`).Scan(&count).Error; err != nil {
		t.Fatalf("count jobs: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 job, got %d", count)
	}
}

func TestGenerateMapsImageParameter(t *testing.T) {
	f := setupGeneration(t)
	ctx := context.Background()
	f.grant(t, "user-1", 100)

	req := validGenerateRequest()
	req.FirstFrameURL = "https://cdn.example.com/frame.png"
	if _, err := f.service.Generate(ctx, "user-1", req); err != nil {
		t.Fatalf("generate: %v", err)
	}

	if got := f.gateway.lastInput["image"]; got != req.FirstFrameURL {
		t.Fatalf("expected first frame mapped to image param, got %v", got)
	}
	if f.gateway.lastModel != "acme/test-model" {
		t.Fatalf("expected provider model name, got %s", f.gateway.lastModel)
	}
}

func TestCreateEffectQueuesWithoutCredits(t *testing.T) {
	f := setupGeneration(t)
	ctx := context.Background()
	f.grant(t, "user-1", 100)

	resp, err := f.service.CreateEffect(ctx, "user-1", domain.EffectRequest{
		EffectID: "sparkle",
		ImageURL: "https://cdn.example.com/cat.png",
	})
	if err != nil {
		t.Fatalf("create effect: %v", err)
	}
	if resp.Status != string(jobdomain.StatusQueued) {
		t.Fatalf("expected QUEUED, got %s", resp.Status)
	}

	job, err := f.jobs.Get(ctx, "user-1", resp.JobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.CreditsDeducted != 0 || job.Cost != 0 {
		t.Fatalf("expected a free job, got cost=%d deducted=%d", job.Cost, job.CreditsDeducted)
	}
	if balance := f.balance(t, "user-1"); balance != 100 {
		t.Fatalf("expected balance untouched, got %d", balance)
	}
	if f.gateway.Calls() != 0 {
		t.Fatalf("expected no provider call for effects, got %d", f.gateway.Calls())
	}
}

func TestCreateEffectRequiresImage(t *testing.T) {
	f := setupGeneration(t)

	_, err := f.service.CreateEffect(context.Background(), "user-1", domain.EffectRequest{EffectID: "sparkle"})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}
