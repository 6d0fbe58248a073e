// Package cmd provides CLI commands for the rolo tool.
package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/rolograph/rolograph/config"
	"github.com/rolograph/rolograph/credentials"
	"github.com/rolograph/rolograph/pkg/ai"
	"github.com/rolograph/rolograph/pkg/db"
	"github.com/rolograph/rolograph/pkg/dedup"
	"github.com/rolograph/rolograph/pkg/extraction"
	"github.com/rolograph/rolograph/pkg/gaps"
	"github.com/rolograph/rolograph/pkg/graph"
	"github.com/rolograph/rolograph/pkg/importer"
	"github.com/rolograph/rolograph/pkg/logging"
	"github.com/rolograph/rolograph/pkg/queues"
	"github.com/rolograph/rolograph/pkg/service"
)

// App holds the wired application components shared by the CLI commands.
type App struct {
	Config  *config.Config
	Logger  logging.Logger
	OwnerID uuid.UUID

	Pool    *pgxpool.Pool
	Repo    *graph.Repository
	AI      *ai.Client
	Engine  *dedup.Engine
	Scanner *gaps.Scanner
	Service *service.Service
}

// NewApp loads configuration and connects every component. When withQueue is
// true, submitted evidence is handed to the Redis queue instead of being
// processed inline; the worker command consumes it.
func NewApp(ctx context.Context, withQueue bool) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg, withQueue)
}

func newApp(ctx context.Context, cfg *config.Config, withQueue bool) (*App, error) {
	logCfg := logging.DefaultConfig()
	if cfg.Debug {
		logCfg.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logCfg)

	if cfg.OwnerID == "" {
		return nil, fmt.Errorf("no owner configured; run `rolo init` first")
	}
	ownerID, err := uuid.Parse(cfg.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("invalid owner_id in config: %w", err)
	}

	pool, err := db.Connect(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	creds := credentials.NewStore()
	apiKey, err := creds.APIKey()
	if err != nil {
		db.Close(pool)
		return nil, fmt.Errorf("no OpenAI API key; run `rolo auth set-key` (%w)", err)
	}

	aiClient := ai.NewClient(apiKey, ai.Options{
		ExtractModel: cfg.OpenAI.ExtractModel,
		EmbedModel:   cfg.OpenAI.EmbedModel,
		BaseURL:      cfg.OpenAI.BaseURL,
	}, logger)

	repo := graph.NewRepository(pool, logger)
	pipeline := extraction.NewPipeline(repo, aiClient, aiClient, aiClient, logger)

	engine := dedup.NewEngine(repo, dedup.Thresholds{
		Name:           cfg.Dedup.NameThreshold,
		Embedding:      cfg.Dedup.EmbeddingThreshold,
		BatchEmbedding: cfg.Dedup.BatchEmbeddingThreshold,
		AutoQuestion:   cfg.Dedup.AutoQuestionThreshold,
	}, cfg.Gaps.QuestionTTL, logger)

	scanner := gaps.NewScanner(repo, aiClient, gaps.Config{
		Limiter: gaps.LimiterConfig{
			DailyCap:          cfg.Gaps.DailyQuestionCap,
			Cooldown:          cfg.Gaps.QuestionCooldown,
			DismissPauseAfter: cfg.Gaps.DismissPauseAfter,
			DismissPause:      cfg.Gaps.DismissPause,
		},
		CandidateLimit:     cfg.Gaps.CandidateLimit,
		RecencyBoostWindow: cfg.Gaps.RecencyBoostWindow,
		QuestionTTL:        cfg.Gaps.QuestionTTL,
	}, logger)

	imp := importer.New(repo, aiClient, engine, logger)

	var queue queues.Queue
	if withQueue {
		queue = queues.NewRedisQueue(newRedisClient(cfg), queues.DefaultQueueConfigs()[queues.QueueExtract])
	}

	svc := service.New(repo, pipeline, engine, scanner, imp, queue, logger)

	return &App{
		Config:  cfg,
		Logger:  logger,
		OwnerID: ownerID,
		Pool:    pool,
		Repo:    repo,
		AI:      aiClient,
		Engine:  engine,
		Scanner: scanner,
		Service: svc,
	}, nil
}

// Close releases the app's connections.
func (a *App) Close() {
	if a.Pool != nil {
		db.Close(a.Pool)
	}
}

func newRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}
