// Command nexus-memoryd wires the episodic memory engine's storage
// adapters, extraction/recall pipelines, and the Storage API facade
// into one process, then runs the background consolidation sweep. It
// exposes no HTTP or RPC surface of its own: integrators import
// pkg/memory directly and drive the facade from their own transport.
package main

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus-memory/internal/config"
	"github.com/adverant/nexus-memory/pkg/classifier"
	"github.com/adverant/nexus-memory/pkg/database"
	"github.com/adverant/nexus-memory/pkg/embedcache"
	"github.com/adverant/nexus-memory/pkg/embedding/providers"
	"github.com/adverant/nexus-memory/pkg/embedding/rerank"
	"github.com/adverant/nexus-memory/pkg/embedpipeline"
	"github.com/adverant/nexus-memory/pkg/episode"
	"github.com/adverant/nexus-memory/pkg/extractor"
	"github.com/adverant/nexus-memory/pkg/memory"
	"github.com/adverant/nexus-memory/pkg/observability"
	"github.com/adverant/nexus-memory/pkg/recall"
	"github.com/adverant/nexus-memory/pkg/resolver"
	"github.com/adverant/nexus-memory/pkg/storage"
	"github.com/adverant/nexus-memory/pkg/storeclients"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: failed to load .env: %v", err)
	}

	logger := observability.NewLogger("nexus-memoryd")
	metrics := observability.NewMetricsClient()

	cfg, err := config.Load(func(format string, args ...interface{}) {
		logger.Warn(fmt.Sprintf(format, args...), nil)
	})
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	facade, consolidator, closeFns, err := build(ctx, cfg, logger, metrics)
	if err != nil {
		log.Fatalf("build memory engine: %v", err)
	}
	defer func() {
		for _, fn := range closeFns {
			if err := fn(); err != nil {
				logger.Warn("close dependency", map[string]interface{}{"error": err.Error()})
			}
		}
	}()
	_ = facade // wired for integrators embedding this binary's composition

	consolidator.Start()
	logger.Info("nexus-memoryd started", map[string]interface{}{
		"environment": cfg.Environment,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down", nil)

	consolidator.Stop()
}

// build wires every storage adapter, the extraction/classification/
// resolution pipeline, the embedder, the optional reranker, and the
// three engines (storage, episode, recall) into one Facade, returning
// the consolidator alongside it and a list of close functions to run
// on shutdown.
func build(ctx context.Context, cfg *config.Config, logger observability.Logger, metrics observability.MetricsClient) (*memory.Facade, *episode.Consolidator, []func() error, error) {
	var closers []func() error

	db, err := database.NewDatabase(ctx, database.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, closers, fmt.Errorf("connect database: %w", err)
	}
	closers = append(closers, db.Close)

	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Cache.Address,
		Password:     cfg.Cache.Password,
		DB:           cfg.Cache.DB,
		DialTimeout:  cfg.Cache.DialTimeout,
		ReadTimeout:  cfg.Cache.ReadTimeout,
		WriteTimeout: cfg.Cache.WriteTimeout,
		PoolSize:     cfg.Cache.PoolSize,
	})
	closers = append(closers, redisClient.Close)

	qdrantClient, err := newQdrantClient(cfg.Vector)
	if err != nil {
		return nil, nil, closers, fmt.Errorf("connect qdrant: %w", err)
	}
	closers = append(closers, qdrantClient.Close)

	neo4jDriver, err := neo4j.NewDriverWithContext(cfg.Graph.URI, neo4j.BasicAuth(cfg.Graph.Username, cfg.Graph.Password, ""))
	if err != nil {
		return nil, nil, closers, fmt.Errorf("connect neo4j: %w", err)
	}
	closers = append(closers, func() error { return neo4jDriver.Close(ctx) })

	relationalStore := storeclients.NewPostgresRelationalStore(db.GetDB(), "", logger, metrics)
	episodeStore := storeclients.NewPostgresEpisodeStore(db.GetDB(), "", logger, metrics)
	entityStore := storeclients.NewPostgresEntityStore(db.GetDB(), "", logger, metrics)
	factStore := storeclients.NewPostgresFactStore(db.GetDB(), "", logger, metrics)
	vectorStore := storeclients.NewQdrantVectorStore(qdrantClient, cfg.Vector.UnifiedCollection, logger, metrics)
	episodicVectorStore := storeclients.NewQdrantVectorStore(qdrantClient, cfg.Vector.EpisodicCollection, logger, metrics)
	graphStore := storeclients.NewNeo4jGraphStore(neo4jDriver, logger, metrics)
	recentCache := storeclients.NewRedisRecentCache(redisClient, "", logger, metrics)
	graphReader := storeclients.NewRecallGraphReader(graphStore, entityStore, factStore, logger)

	embedder := embedpipeline.NewPipeline(
		embedpipeline.NewVoyageEmbedder(cfg.Embedding.VoyageAPIKey),
		nil,
		cfg.Embedding.VoyageModel,
		logger,
		metrics,
	)
	closers = append(closers, embedder.Close)
	embedCache := embedcache.New(redisClient, "", logger, metrics)

	reranker, err := newReranker(cfg.Rerank, logger, metrics)
	if err != nil {
		logger.Warn("reranker disabled", map[string]interface{}{"error": err.Error()})
		reranker = nil
	}

	cls := classifier.New(reranker, nil, logger, metrics)
	ext := extractor.New(nil, cls, cfg.Extraction.EntityMinConfidence, cfg.Extraction.MaxEntitiesPerEpisode, logger, metrics)
	res := resolver.New(reranker, logger, metrics)

	storageEngine := storage.New(
		relationalStore, vectorStore, embedder, embedCache, cfg.Embedding.VoyageModel,
		logger, metrics,
		storage.WithGraphStore(graphStore),
		storage.WithRecentCache(recentCache),
	)

	episodeEngine := episode.New(
		episodeStore, episodicVectorStore, graphStore, entityStore, factStore,
		ext, res, embedder, embedCache, cfg.Embedding.VoyageModel,
		logger, metrics,
	)

	consolidator := episode.NewConsolidator(episodeEngine, episodeStore, cfg.Consolidation.Interval)

	recallEngine := recall.New(
		episodicVectorStore, episodeStore, graphReader, nil, embedder, reranker,
		recall.Config{
			ScoreThresholdEpisodic: cfg.Recall.ScoreThresholdEpisodic,
			ScoreThresholdUnified:  cfg.Recall.ScoreThresholdUnified,
			RerankShortlistMax:     cfg.Recall.RerankShortlistMax,
		},
		logger, metrics,
	)

	facade := memory.New(
		storageEngine, episodeEngine, consolidator, recallEngine,
		entityStore, factStore, episodeStore, relationalStore,
		logger, metrics,
	)

	return facade, consolidator, closers, nil
}

func newQdrantClient(cfg config.VectorConfig) (*qdrant.Client, error) {
	host, port := "localhost", 6334
	if cfg.URL != "" {
		if u, err := url.Parse(cfg.URL); err == nil {
			if u.Hostname() != "" {
				host = u.Hostname()
			}
			if p, err := strconv.Atoi(u.Port()); err == nil && p > 0 {
				port = p
			}
		}
	}
	return qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
	})
}

func newReranker(cfg config.RerankConfig, logger observability.Logger, metrics observability.MetricsClient) (rerank.Reranker, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("no rerank api key configured")
	}
	provider := providers.NewCohereRerankProvider(cfg.APIKey)
	return rerank.NewCrossEncoderReranker(provider, &rerank.CrossEncoderConfig{
		BatchSize:      cfg.BatchSize,
		MaxConcurrency: cfg.MaxConcurrency,
		TimeoutPerBatch: cfg.TimeoutPerCall,
	}, logger, metrics)
}
