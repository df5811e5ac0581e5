package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"docuchat/internal/ai"
	"docuchat/internal/app"
	"docuchat/internal/cache"
	"docuchat/internal/config"
	"docuchat/internal/model"
	mysqlClient "docuchat/internal/platform/mysql"
	rabbitmqClient "docuchat/internal/platform/rabbitmq"
	redisClient "docuchat/internal/platform/redis"
	"docuchat/internal/repository"
	"docuchat/internal/retriever"
	"docuchat/internal/vectorindex"
	chromaIndex "docuchat/internal/vectorindex/chroma"
	chromemIndex "docuchat/internal/vectorindex/chromem"
	memoryIndex "docuchat/internal/vectorindex/memory"
	"docuchat/internal/worker"
)

type App struct {
	Config          *config.Config
	MySQL           *gorm.DB
	Redis           *redis.Client
	MQConn          *amqp.Connection
	Index           vectorindex.Index
	RAGService      *app.RAGService
	IngestPublisher *rabbitmqClient.IngestPublisher
	IngestWorker    *worker.IngestWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}
	if err := mysqlDB.AutoMigrate(&model.Document{}, &repository.CorpusVersion{}); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	a := &App{
		Config:    cfg,
		MySQL:     mysqlDB,
		StartedAt: time.Now(),
	}

	answers := buildAnswerCache(ctx, cfg, a)

	index, err := buildIndex(cfg)
	if err != nil {
		return nil, err
	}
	a.Index = index

	llm := ai.NewClient(ai.Config{
		BaseURL:            cfg.LLM.BaseURL,
		APIKey:             cfg.LLM.APIKey,
		Model:              cfg.LLM.Model,
		EmbeddingModel:     cfg.LLM.EmbeddingModel,
		EmbeddingDimension: cfg.LLM.EmbeddingDimension,
		EmbeddingBatchSize: cfg.LLM.EmbeddingBatchSize,
		MaxTokens:          cfg.LLM.MaxTokens,
		Temperature:        cfg.LLM.Temperature,
		RequestTimeout:     time.Duration(cfg.LLM.RequestTimeoutSec) * time.Second,
		RetryAttempts:      cfg.LLM.RetryAttempts,
		RetryBaseDelay:     time.Duration(cfg.LLM.RetryBaseDelayMs) * time.Millisecond,
	})

	search := retriever.New(llm, index,
		cfg.Index.RetryAttempts,
		time.Duration(cfg.Index.RetryBaseDelayMs)*time.Millisecond,
	)

	docRepo := repository.NewDocumentRepository(mysqlDB)
	versionRepo := repository.NewCorpusVersionRepository(mysqlDB)

	a.RAGService = app.NewRAGService(docRepo, versionRepo, index, llm, llm, search, answers, app.Options{
		ChunkMaxSize:   cfg.Chunking.MaxSize,
		ChunkOverlap:   cfg.Chunking.Overlap,
		DefaultTopK:    cfg.Retrieval.DefaultTopK,
		MaxTopK:        cfg.Retrieval.MaxTopK,
		ContextBudget:  cfg.Retrieval.ContextBudget,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		CacheTTL:       time.Duration(cfg.Cache.TTLSeconds) * time.Second,
	})

	if cfg.RabbitMQ.Enabled {
		mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.IngestQueue)
		if err != nil {
			return nil, err
		}
		a.MQConn = mqConn
		a.IngestPublisher = rabbitmqClient.NewIngestPublisher(mqConn, cfg.RabbitMQ.IngestQueue)
		a.IngestWorker = worker.NewIngestWorker(mqConn, a.RAGService, cfg.RabbitMQ.IngestQueue)
		if err := a.IngestWorker.Start(ctx); err != nil {
			return nil, fmt.Errorf("start ingest worker failed: %w", err)
		}
	}

	return a, nil
}

// buildAnswerCache degrades to a no-op cache when caching is disabled or
// redis is unreachable; the cache is never allowed to block startup.
func buildAnswerCache(ctx context.Context, cfg *config.Config, a *App) cache.AnswerCache {
	if !cfg.Cache.Enabled {
		return cache.NewNoopCache()
	}
	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Printf("redis unavailable, answer caching disabled: %v", err)
		return cache.NewNoopCache()
	}
	a.Redis = redisCli
	return cache.NewRedisCache(redisCli)
}

func buildIndex(cfg *config.Config) (vectorindex.Index, error) {
	switch cfg.Index.Backend {
	case "chroma":
		return chromaIndex.New(chromaIndex.Config{
			URL:        cfg.Index.URL,
			Collection: cfg.Index.Collection,
			Timeout:    time.Duration(cfg.Index.RequestTimeoutSec) * time.Second,
		}), nil
	case "chromem":
		return chromemIndex.New(cfg.Index.Path, cfg.Index.Collection)
	case "memory":
		return memoryIndex.New(), nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
	}
}

func (a *App) Close() error {
	var closeErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.IngestWorker != nil {
		a.IngestWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
