// Package app is the composition root shared by the API server and the CLI.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdesk/internal/config"
	"github.com/kailas-cloud/ragdesk/internal/credentials"
	dbmilvus "github.com/kailas-cloud/ragdesk/internal/db/milvus"
	dbredis "github.com/kailas-cloud/ragdesk/internal/db/redis"
	"github.com/kailas-cloud/ragdesk/internal/domain"
	"github.com/kailas-cloud/ragdesk/internal/metrics"
	budgetrepo "github.com/kailas-cloud/ragdesk/internal/repository/budget"
	"github.com/kailas-cloud/ragdesk/internal/repository/embcache"
	"github.com/kailas-cloud/ragdesk/internal/repository/pagecache"
	"github.com/kailas-cloud/ragdesk/internal/repository/vector"
	chitransport "github.com/kailas-cloud/ragdesk/internal/transport/chi"
	openaitransport "github.com/kailas-cloud/ragdesk/internal/transport/openai"
	"github.com/kailas-cloud/ragdesk/internal/transport/pdf"
	"github.com/kailas-cloud/ragdesk/internal/transport/vision"
	answeruc "github.com/kailas-cloud/ragdesk/internal/usecase/answer"
	"github.com/kailas-cloud/ragdesk/internal/usecase/chunking"
	embeddinguc "github.com/kailas-cloud/ragdesk/internal/usecase/embedding"
	"github.com/kailas-cloud/ragdesk/internal/usecase/extraction"
	healthuc "github.com/kailas-cloud/ragdesk/internal/usecase/health"
	indexuc "github.com/kailas-cloud/ragdesk/internal/usecase/index"
	ingestuc "github.com/kailas-cloud/ragdesk/internal/usecase/ingest"
	"github.com/kailas-cloud/ragdesk/internal/usecase/retrieval"
	usageuc "github.com/kailas-cloud/ragdesk/internal/usecase/usage"
)

// App holds the wired services.
type App struct {
	Index  *indexuc.Handle
	Ingest *ingestuc.Service
	Answer *answeruc.Service
	Usage  *usageuc.Service
	Health *healthuc.Service

	cfg    config.Config
	store  *dbredis.Store
	milvus *dbmilvus.Client
	logger *zap.Logger
}

// New connects to the backing services, ensures the vector index and builds the pipeline.
// On error everything opened so far is closed.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (a *App, err error) {
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()

	a = &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close(context.Background())
			a = nil
		}
	}()

	a.store, err = dbredis.NewStore(dbredis.Config{
		Addrs:      cfg.Database.Addrs,
		Password:   cfg.Database.Password,
		ClientName: "ragdesk",
	})
	if err != nil {
		return nil, fmt.Errorf("create %s store: %w", cfg.Database.Driver, err)
	}
	readiness := time.Duration(cfg.Database.ReadinessTimeout) * time.Second
	if err := a.store.WaitForReady(ctx, readiness); err != nil {
		return nil, fmt.Errorf("database not ready: %w", err)
	}
	logger.Info("Connected to database",
		zap.String("driver", cfg.Database.Driver),
		zap.Strings("addrs", cfg.Database.Addrs),
	)

	budget := a.buildBudget(ctx)
	// A typed nil *BudgetTracker inside the interface would not compare equal to nil.
	var budgetChecker embeddinguc.BudgetChecker
	var budgetReader usageuc.BudgetReader
	if budget != nil {
		budgetChecker = budget
		budgetReader = budget
	}

	baseEmbedder := openaitransport.NewEmbedder(&openaitransport.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})
	docEmbedder := a.buildEmbedder(baseEmbedder, cfg.Embedding.DocumentInstruction, budgetChecker)
	queryEmbedder := a.buildEmbedder(baseEmbedder, cfg.Embedding.QueryInstruction, budgetChecker)

	backend, err := a.buildBackend(ctx)
	if err != nil {
		return nil, err
	}
	manager := indexuc.New(backend, indexuc.Config{
		PollInterval:    time.Duration(cfg.VectorIndex.PollIntervalMS) * time.Millisecond,
		ReadyTimeout:    time.Duration(cfg.VectorIndex.ReadyTimeoutSec) * time.Second,
		UpsertBatchSize: cfg.VectorIndex.UpsertBatchSize,
	}, logger)
	a.Index, err = manager.EnsureIndex(ctx, domain.IndexSpec{
		Name:      cfg.VectorIndex.Name,
		Dimension: cfg.VectorIndex.Dimension,
		Metric:    cfg.VectorIndex.Metric,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure index %s: %w", cfg.VectorIndex.Name, err)
	}

	extractor, err := a.buildExtractor(ctx)
	if err != nil {
		return nil, err
	}
	chunker, err := chunking.New(chunking.Params{
		Size:     cfg.Chunking.Size,
		Overlap:  cfg.Chunking.Overlap,
		Strategy: chunking.IDStrategy(cfg.Chunking.IDStrategy),
	})
	if err != nil {
		return nil, fmt.Errorf("create chunker: %w", err)
	}

	a.Ingest, err = ingestuc.New(ingestuc.Config{
		Extractor: extractor,
		Chunker:   chunker,
		Embedder:  embeddinguc.NewBatcher(docEmbedder, cfg.Embedding.BatchSize, logger),
		Index:     a.Index,
		Workers:   cfg.Ingest.Workers,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create ingest service: %w", err)
	}

	generator := openaitransport.NewGenerator(&openaitransport.Config{
		APIKey:      cfg.Generation.APIKey,
		BaseURL:     cfg.Generation.BaseURL,
		Model:       cfg.Generation.Model,
		Provider:    cfg.Generation.Provider,
		Temperature: cfg.Generation.Temperature,
		MaxTokens:   cfg.Generation.MaxTokens,
		Logger:      logger,
	})
	a.Answer = answeruc.New(a.buildRetriever(queryEmbedder), generator, answeruc.PromptTemplate{
		Role:              cfg.Prompt.Role,
		StyleOrTone:       cfg.Prompt.StyleOrTone,
		Instruction:       cfg.Prompt.Instruction,
		OutputConstraints: cfg.Prompt.OutputConstraints,
		OutputFormat:      cfg.Prompt.OutputFormat,
	}, logger)

	a.Usage = usageuc.New(budgetReader)

	healthCfg := healthuc.Config{
		Database:   a.store,
		Embedding:  baseEmbedder,
		Generation: generator,
		Logger:     logger,
	}
	if a.milvus != nil {
		healthCfg.VectorIndex = a.milvus
	}
	a.Health = healthuc.New(healthCfg)

	logger.Info("Pipeline ready",
		zap.String("index", a.Index.Name()),
		zap.Int("dimension", a.Index.Dimension()),
		zap.String("index_backend", cfg.VectorIndex.Backend),
		zap.String("retrieval_mode", cfg.Retrieval.Mode),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.String("generation_model", cfg.Generation.Model),
		zap.Bool("ocr", cfg.OCR.Enabled),
	)
	return a, nil
}

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler {
	server := chitransport.NewServer(chitransport.Config{
		Answer:         a.Answer,
		Ingest:         a.Ingest,
		Usage:          a.Usage,
		Health:         a.Health,
		UploadDir:      a.cfg.Storage.UploadDir,
		MaxUploadBytes: int64(a.cfg.HTTP.MaxUploadMB) << 20,
		Logger:         a.logger,
	})
	return chitransport.NewRouter(server, a.cfg.Auth.APIKeys, a.logger)
}

// Close releases the worker pool and the connections.
func (a *App) Close(ctx context.Context) {
	if a.Ingest != nil {
		a.Ingest.Close()
	}
	if a.milvus != nil {
		if err := a.milvus.Close(ctx); err != nil {
			a.logger.Warn("Failed to close milvus client", zap.Error(err))
		}
	}
	if a.store != nil {
		a.store.Close()
	}
}

func (a *App) buildBudget(ctx context.Context) *embeddinguc.BudgetTracker {
	bc := a.cfg.Embedding.Budget
	if bc.DailyTokenLimit <= 0 && bc.MonthlyTokenLimit <= 0 {
		return nil
	}
	action := embeddinguc.BudgetActionWarn
	if bc.Action == "reject" {
		action = embeddinguc.BudgetActionReject
	}
	return embeddinguc.NewBudgetTracker(
		a.cfg.Embedding.Provider, bc.DailyTokenLimit, bc.MonthlyTokenLimit, action, a.logger,
	).
		WithKeyPrefix(a.cfg.Storage.KeyPrefix).
		WithStore(ctx, budgetrepo.New(a.store))
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented -> Instruction.
func (a *App) buildEmbedder(
	base domain.Embedder, instruction string, budget embeddinguc.BudgetChecker,
) domain.Embedder {
	embedder := base
	if a.cfg.Embedding.Cache {
		embedder = embcache.New(embedder, a.store, embcache.Options{
			KeyPrefix: a.cfg.Storage.KeyPrefix + a.cfg.Embedding.Model + ":",
			TTL:       time.Duration(a.cfg.Embedding.CacheTTLHours) * time.Hour,
			Lookups:   metrics.EmbeddingCacheTotal,
		}, a.logger)
	}

	embedder = embeddinguc.NewInstrumentedEmbedder(
		embedder, a.cfg.Embedding.Provider, a.cfg.Embedding.Model, budget, a.logger,
	)

	// Outermost, so the cache key includes the instruction.
	if instruction != "" {
		return domain.NewInstructionEmbedder(embedder, instruction)
	}
	return embedder
}

func (a *App) buildBackend(ctx context.Context) (indexuc.Backend, error) {
	vi := a.cfg.VectorIndex
	hnsw := vector.HNSWConfig{M: vi.HNSWM, EFConstruct: vi.HNSWEFConstruct}

	if vi.Backend != "milvus" {
		return vector.NewStore(a.store, a.cfg.Storage.KeyPrefix).WithHNSW(hnsw), nil
	}

	client, err := dbmilvus.New(ctx, dbmilvus.Config{
		Address:  vi.Milvus.Address,
		Username: vi.Milvus.Username,
		Password: vi.Milvus.Password,
		DBName:   vi.Milvus.DBName,
		Timeout:  time.Duration(vi.Milvus.TimeoutSec) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	a.milvus = client
	a.logger.Info("Connected to milvus", zap.String("address", vi.Milvus.Address))
	return vector.NewMilvus(client).WithHNSW(hnsw), nil
}

func (a *App) buildExtractor(ctx context.Context) (*extraction.Service, error) {
	var (
		rasterizer extraction.Rasterizer
		ocr        extraction.OCR
	)
	if a.cfg.OCR.Enabled {
		creds, err := credentials.Resolve(a.cfg.OCR.Credentials)
		if err != nil {
			return nil, fmt.Errorf("resolve ocr credentials: %w", err)
		}
		client, err := vision.NewClient(ctx, creds, vision.Config{
			RequestsPerSecond: a.cfg.OCR.RequestsPerSecond,
			Burst:             a.cfg.OCR.Burst,
			Logger:            a.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create ocr client: %w", err)
		}
		ocr = client
		rasterizer = pdf.NewRasterizer(a.cfg.OCR.RasterizerPath, a.cfg.OCR.DPI)
	}

	cache := pagecache.New(
		a.store, a.cfg.Storage.KeyPrefix,
		time.Duration(a.cfg.Extraction.CacheTTLHours)*time.Hour, a.logger,
	)
	return extraction.New(pdf.NewReader(), rasterizer, ocr, cache, a.logger), nil
}

func (a *App) buildRetriever(queryEmbedder domain.Embedder) domain.Retriever {
	rc := a.cfg.Retrieval
	if rc.Mode != "static" {
		return retrieval.NewIndexRetriever(queryEmbedder, a.Index, rc.TopK, a.logger)
	}

	chunks := make([]domain.RetrievedChunk, len(rc.StaticDocuments))
	for i, d := range rc.StaticDocuments {
		chunks[i] = domain.RetrievedChunk{
			ID:      fmt.Sprintf("static-%d", i),
			Content: d.Content,
			Source:  d.Source,
			Page:    d.Page,
		}
	}
	return retrieval.NewStaticRetriever(chunks, rc.TopK)
}
