package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"policyrag/internal/answer"
	"policyrag/internal/chunker"
	"policyrag/internal/config"
	"policyrag/internal/domain"
	"policyrag/internal/embedding/cache"
	"policyrag/internal/embedding/hashing"
	"policyrag/internal/embedding/openai"
	"policyrag/internal/evaluation"
	"policyrag/internal/ingest"
	"policyrag/internal/layout"
	"policyrag/internal/ledger"
	"policyrag/internal/llm"
	llmopenai "policyrag/internal/llm/openai"
	"policyrag/internal/metrics"
	"policyrag/internal/retrieval"
	"policyrag/internal/summarizer"
	"policyrag/internal/vectorstore"
	"policyrag/internal/vectorstore/memory"
	"policyrag/internal/vectorstore/postgres"
	"policyrag/internal/vectorstore/qdrant"
)

// app assembles components from config. Components are built lazily and
// shared, so one process sees a single collection and ledger.
type app struct {
	cfg     *config.AppConfig
	log     *slog.Logger
	metrics *metrics.Metrics

	collection *vectorstore.Collection
	ledger     domain.Ledger
	ingest     *ingest.Service
	retriever  *retrieval.Retriever
	chat       llm.ChatModel
	answerer   *answer.Generator

	closers []func() error
}

func newApp(cfg *config.AppConfig, log *slog.Logger) *app {
	return &app{cfg: cfg, log: log, metrics: metrics.New()}
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func secs(n int) time.Duration { return time.Duration(n) * time.Second }

func (a *app) buildEmbedder(ctx context.Context) (domain.Embedder, error) {
	var emb domain.Embedder
	switch a.cfg.Embedder.Type {
	case "hashing":
		dim := hashing.DefaultDimension
		if a.cfg.Embedder.Hashing != nil && a.cfg.Embedder.Hashing.Dimension > 0 {
			dim = a.cfg.Embedder.Hashing.Dimension
		}
		emb = hashing.New(dim)
	case "openai":
		o := a.cfg.Embedder.OpenAI
		if o == nil {
			return nil, errors.New("openai embedder config missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:           o.BaseURL,
			APIKeyEnv:         o.APIKeyEnv,
			Model:             o.Model,
			Timeout:           secs(o.TimeoutSecs),
			BatchSize:         o.BatchSize,
			RequestsPerSecond: o.RequestsPerSecond,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder: %w", err)
		}
		emb = client
	default:
		return nil, fmt.Errorf("unknown embedder: %s", a.cfg.Embedder.Type)
	}

	if !a.cfg.Cache.Enabled {
		return emb, nil
	}
	rdb := cache.NewRedis(a.cfg.Cache.Addr, os.Getenv(a.cfg.Cache.PasswordEnv), a.cfg.Cache.DB)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx); err != nil {
		a.log.Warn("Embedding cache unavailable, continuing without it.", "addr", a.cfg.Cache.Addr, "error", err)
		_ = rdb.Close()
		return emb, nil
	}
	a.closers = append(a.closers, rdb.Close)
	return cache.New(emb, rdb, time.Duration(a.cfg.Cache.TTLHours)*time.Hour, a.log), nil
}

func (a *app) buildStorage(ctx context.Context) (vectorstore.Storage, error) {
	vs := a.cfg.VectorStore
	metric := a.cfg.Retrieval.Metric
	switch vs.Type {
	case "memory":
		return memory.NewStorage(metric), nil
	case "qdrant":
		if vs.Qdrant == nil {
			return nil, errors.New("qdrant config missing")
		}
		key := ""
		if vs.Qdrant.APIKeyEnv != "" {
			key = os.Getenv(vs.Qdrant.APIKeyEnv)
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        vs.Qdrant.URL,
			APIKey:     key,
			Collection: vs.Collection,
			Metric:     metric,
			Timeout:    secs(vs.Qdrant.TimeoutSecs),
		}), nil
	case "pgvector":
		if vs.Postgres == nil {
			return nil, errors.New("postgres config missing")
		}
		dsn, err := a.postgresDSN()
		if err != nil {
			return nil, err
		}
		if vs.Postgres.AutoMigrate {
			if err := postgres.Migrate(dsn, "up", 0); err != nil {
				return nil, err
			}
		}
		openCtx, cancel := context.WithTimeout(ctx, secs(vs.Postgres.TimeoutSecs))
		defer cancel()
		db, err := postgres.Open(openCtx, dsn)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		return postgres.New(db, vs.Collection, metric), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", vs.Type)
	}
}

func (a *app) postgresDSN() (string, error) {
	env := "PGVECTOR_URL"
	if a.cfg.VectorStore.Postgres != nil && a.cfg.VectorStore.Postgres.DSNEnv != "" {
		env = a.cfg.VectorStore.Postgres.DSNEnv
	}
	dsn := os.Getenv(env)
	if dsn == "" {
		return "", fmt.Errorf("missing postgres DSN in env %s", env)
	}
	return dsn, nil
}

func (a *app) Collection(ctx context.Context) (*vectorstore.Collection, error) {
	if a.collection != nil {
		return a.collection, nil
	}
	emb, err := a.buildEmbedder(ctx)
	if err != nil {
		return nil, err
	}
	st, err := a.buildStorage(ctx)
	if err != nil {
		return nil, err
	}
	a.collection = vectorstore.NewCollection(st, emb)
	return a.collection, nil
}

// Ledger returns the ingestion ledger. A memory vector store forgets its
// chunks on exit, so its ledger must too.
func (a *app) Ledger() (domain.Ledger, error) {
	if a.ledger != nil {
		return a.ledger, nil
	}
	typ := a.cfg.Ledger.Type
	if a.cfg.VectorStore.Type == "memory" && typ != "memory" {
		a.log.Debug("Memory vector store in use, keeping the ledger in memory too.")
		typ = "memory"
	}
	switch typ {
	case "memory":
		a.ledger = ledger.NewMemory()
	case "sqlite":
		l, err := ledger.OpenSQLite(a.cfg.Ledger.Path, a.ledgerScope())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, l.Close)
		a.ledger = l
	default:
		return nil, fmt.Errorf("unknown ledger: %s", typ)
	}
	return a.ledger, nil
}

// ledgerScope names the store the ledger's records describe, so a checksum
// seen by one vector store or collection does not skip files for another.
func (a *app) ledgerScope() string {
	return a.cfg.VectorStore.Type + "/" + a.cfg.VectorStore.Collection
}

func (a *app) Extractor() *layout.Extractor {
	p := a.cfg.PDF
	pdf := layout.NewPDF(layout.PDFOptions{
		MinRows:        p.TableMinRows,
		MinCols:        p.TableMinCols,
		MinConfidence:  p.TableMinConf,
		RequireRulings: p.RequireRulings == nil || *p.RequireRulings,
	})
	opts := []layout.Option{layout.WithLogger(a.log)}
	if p.Preflight == nil || *p.Preflight {
		opts = append(opts, layout.WithPreflight(layout.PDFCPUPreflight{}))
	}
	return layout.New(pdf, pdf, opts...)
}

func (a *app) chunker() (*chunker.Builder, error) {
	c := a.cfg.Chunker
	tok, err := chunker.NewTiktoken(c.TokenizerModel)
	if err != nil {
		return nil, err
	}
	opts := []chunker.Option{
		chunker.WithChunkTokens(c.ChunkTokens),
		chunker.WithOverlapTokens(c.OverlapTokens),
	}
	if c.TailTokens != nil {
		opts = append(opts, chunker.WithTailTokens(*c.TailTokens))
	}
	return chunker.NewBuilder(tok, opts...)
}

func (a *app) Ingest(ctx context.Context) (*ingest.Service, error) {
	if a.ingest != nil {
		return a.ingest, nil
	}
	col, err := a.Collection(ctx)
	if err != nil {
		return nil, err
	}
	led, err := a.Ledger()
	if err != nil {
		return nil, err
	}
	ch, err := a.chunker()
	if err != nil {
		return nil, err
	}
	a.ingest = ingest.New(a.Extractor(), ch, col,
		ingest.WithLedger(led),
		ingest.WithSummarizer(summarizer.NewFrequencySummarizer(), a.cfg.Summary.MaxSentences),
		ingest.WithExtractTimeout(secs(a.cfg.PDF.TimeoutSecs)),
		ingest.WithLogger(a.log),
		ingest.WithMetrics(a.metrics),
	)
	return a.ingest, nil
}

func (a *app) Retriever(ctx context.Context) (*retrieval.Retriever, error) {
	if a.retriever != nil {
		return a.retriever, nil
	}
	col, err := a.Collection(ctx)
	if err != nil {
		return nil, err
	}
	opts := []retrieval.Option{
		retrieval.WithK(a.cfg.Retrieval.K),
		retrieval.WithMetrics(a.metrics),
		retrieval.WithLogger(a.log),
	}
	if t := a.cfg.Retrieval.Threshold; t != nil {
		opts = append(opts, retrieval.WithThreshold(*t))
	}
	r, err := retrieval.New(col, a.cfg.Retrieval.Metric, opts...)
	if err != nil {
		return nil, err
	}
	a.retriever = r
	return r, nil
}

func (a *app) Chat() (llm.ChatModel, error) {
	if a.chat != nil {
		return a.chat, nil
	}
	c := a.cfg.LLM
	client, err := llmopenai.New(llmopenai.Config{
		APIKey:      os.Getenv(c.APIKeyEnv),
		BaseURL:     c.BaseURL,
		Model:       c.Model,
		Temperature: c.Temperature,
		Timeout:     secs(c.TimeoutSecs),
	})
	if err != nil {
		return nil, fmt.Errorf("chat model (key from %s): %w", c.APIKeyEnv, err)
	}
	a.chat = client
	return client, nil
}

func (a *app) Answerer(ctx context.Context) (*answer.Generator, error) {
	if a.answerer != nil {
		return a.answerer, nil
	}
	r, err := a.Retriever(ctx)
	if err != nil {
		return nil, err
	}
	chat, err := a.Chat()
	if err != nil {
		return nil, err
	}
	a.answerer = answer.New(r, chat, a.log)
	return a.answerer, nil
}

func (a *app) Evaluator(ctx context.Context) (*evaluation.Evaluator, error) {
	ans, err := a.Answerer(ctx)
	if err != nil {
		return nil, err
	}
	chat, err := a.Chat()
	if err != nil {
		return nil, err
	}
	ev := a.cfg.Evaluation
	return evaluation.New(a.Extractor(), ans, chat,
		evaluation.WithBlockBudgets(ev.BlockBudgets),
		evaluation.WithConcurrency(ev.Concurrency),
		evaluation.WithSeed(ev.Seed),
		evaluation.WithLogger(a.log),
	), nil
}
