// Package chainrag assembles the query service: providers, vector store,
// pipeline, admission pool and HTTP server.
package chainrag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/kart-io/chainrag/internal/chainrag/biz"
	"github.com/kart-io/chainrag/internal/chainrag/handler"
	"github.com/kart-io/chainrag/internal/chainrag/ingest"
	"github.com/kart-io/chainrag/internal/chainrag/metrics"
	"github.com/kart-io/chainrag/internal/chainrag/router"
	"github.com/kart-io/chainrag/internal/chainrag/store"
	"github.com/kart-io/chainrag/pkg/infra/app"
	"github.com/kart-io/chainrag/pkg/infra/pool"
	httpserver "github.com/kart-io/chainrag/pkg/infra/server/http"
	"github.com/kart-io/chainrag/pkg/infra/tracing"
	"github.com/kart-io/chainrag/pkg/llm"
	// 导入 LLM 供应商以自动注册
	_ "github.com/kart-io/chainrag/pkg/llm/ollama"
	_ "github.com/kart-io/chainrag/pkg/llm/openai"
	"github.com/kart-io/chainrag/pkg/llm/resilience"
	cacheopts "github.com/kart-io/chainrag/pkg/options/cache"
	ingestopts "github.com/kart-io/chainrag/pkg/options/ingest"
	llmopts "github.com/kart-io/chainrag/pkg/options/llm"
	logopts "github.com/kart-io/chainrag/pkg/options/logger"
	mwopts "github.com/kart-io/chainrag/pkg/options/middleware"
	pipelineopts "github.com/kart-io/chainrag/pkg/options/pipeline"
	httpopts "github.com/kart-io/chainrag/pkg/options/server/http"
	tracingopts "github.com/kart-io/chainrag/pkg/options/tracing"
	"github.com/kart-io/chainrag/pkg/options/vectorstore"
	apierrors "github.com/kart-io/chainrag/pkg/utils/errors"
)

// Name is the name of the application.
const Name = "chainrag"

const (
	dimCheckTimeout = 30 * time.Second
	dimCheckText    = "dimension check"
)

// Config contains application-related configurations.
type Config struct {
	HTTPOptions       *httpopts.Options
	MiddlewareOptions *mwopts.Options
	LogOptions        *logopts.Options
	StoreOptions      *vectorstore.Options
	EmbeddingOptions  *llmopts.ProviderOptions
	ReasoningOptions  *llmopts.ProviderOptions
	SynthesisOptions  *llmopts.ProviderOptions
	PipelineOptions   *pipelineopts.Options
	IngestOptions     *ingestopts.Options
	CacheOptions      *cacheopts.Options
	TracingOptions    *tracingopts.Options
}

// Server represents the query server.
type Server struct {
	http    *httpserver.Server
	pool    *pool.Pool
	watcher *ingest.Watcher
	indexer *ingest.Indexer
	dataDir string
	closers []func()
}

// NewServer initializes and returns a new Server instance.
func (cfg *Config) NewServer(ctx context.Context) (*Server, error) {
	// 1. 初始化日志
	cfg.LogOptions.AddInitialField("service.name", Name)
	cfg.LogOptions.AddInitialField("service.version", app.GetVersion())
	if err := cfg.LogOptions.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Infow("Starting chainrag query service", app.VersionFields()...)

	s := &Server{}
	ready := false
	defer func() {
		if !ready {
			s.close()
		}
	}()

	tp, err := tracing.NewProvider(ctx, cfg.TracingOptions, Name, app.GetVersion())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	s.closers = append(s.closers, func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(sctx); err != nil {
			logger.Warnw("Failed to flush spans", "error", err.Error())
		}
	})
	if tp.Enabled() {
		logger.Infow("Tracing enabled", "exporter", cfg.TracingOptions.Exporter, "endpoint", cfg.TracingOptions.Endpoint)
	}

	// 2. 向量库。集合维度与配置不一致时直接失败。
	vs, err := store.New(ctx, cfg.StoreOptions)
	if err != nil {
		return nil, wrapDimension(fmt.Errorf("failed to initialize vector store: %w", err))
	}
	s.closers = append(s.closers, func() { _ = vs.Close(context.Background()) })

	// 3. 嵌入供应商，可选 Redis 缓存
	embedProvider, err := llm.NewEmbeddingProvider(cfg.EmbeddingOptions.Provider, cfg.EmbeddingOptions.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	logger.Infow("Embedding provider initialized",
		"provider", cfg.EmbeddingOptions.Provider,
		"model", cfg.EmbeddingOptions.Model,
	)
	// 维度检查绕过缓存，向量必须来自当前模型。
	if err := checkEmbeddingDimension(ctx, embedProvider, cfg.StoreOptions.Dimension); err != nil {
		return nil, err
	}
	embedProvider = s.withCache(ctx, embedProvider, cacheConfig(cfg.CacheOptions, cfg.EmbeddingOptions.Model), cfg.CacheOptions)

	// 4. 推理与合成供应商
	reasonProvider, err := llm.NewChatProvider(cfg.ReasoningOptions.Provider, cfg.ReasoningOptions.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize reasoning provider: %w", err)
	}
	synthProvider, err := llm.NewChatProvider(cfg.SynthesisOptions.Provider, cfg.SynthesisOptions.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize synthesis provider: %w", err)
	}
	logger.Infow("Chat providers initialized",
		"reasoning.provider", cfg.ReasoningOptions.Provider,
		"reasoning.model", cfg.ReasoningOptions.Model,
		"synthesis.provider", cfg.SynthesisOptions.Provider,
		"synthesis.model", cfg.SynthesisOptions.Model,
	)

	// 5. 流水线与准入池
	m := metrics.New()
	po := cfg.PipelineOptions

	reasoningCfg := biz.DefaultReasoningConfig()
	reasoningCfg.Model = cfg.ReasoningOptions.Model
	synthesisCfg := biz.DefaultSynthesisConfig()
	synthesisCfg.Model = cfg.SynthesisOptions.Model

	pipeline := biz.NewQueryPipeline(
		biz.NewEmbedder(embedProvider, cfg.StoreOptions.Dimension),
		biz.NewRetriever(vs),
		biz.NewReasoningStage(reasonProvider, reasoningCfg),
		biz.NewSynthesisStage(synthProvider, synthesisCfg),
		m,
		pipelineConfig(po),
	)

	queryPool, err := pool.NewPool("query", &pool.Config{
		Capacity:         po.MaxInFlight,
		ExpiryDuration:   time.Minute,
		Nonblocking:      po.MaxQueued == 0,
		MaxBlockingTasks: po.MaxQueued,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create query pool: %w", err)
	}
	s.pool = queryPool
	logger.Infow("Query pipeline initialized",
		"max_in_flight", po.MaxInFlight,
		"max_queued", po.MaxQueued,
		"retries", po.Retries,
		"default_k", po.DefaultK,
	)

	// 6. 摄取（与查询共用嵌入供应商和向量库）
	ingestOpts := cfg.IngestOptions
	indexer := ingest.NewIndexer(embedProvider, vs, m, &ingest.Config{
		ChunkSize:    ingestOpts.ChunkSize,
		ChunkOverlap: ingestOpts.ChunkOverlap,
		BatchSize:    ingestOpts.BatchSize,
	})
	if ingestOpts.Watch {
		s.indexer = indexer
		s.dataDir = ingestOpts.DataDir
		s.watcher = ingest.NewWatcher(indexer, ingestOpts.DataDir, ingestOpts.Debounce)
	}

	// 7. Handler 与路由
	var lister llm.ModelLister
	if l, ok := reasonProvider.(llm.ModelLister); ok {
		lister = l
	}
	h := handler.New(&handler.Config{
		Executor: biz.NewExecutor(pipeline, queryPool),
		Store:    vs,
		Models:   lister,
		Indexer:  indexer,
		DataDir:  ingestOpts.DataDir,
	})

	s.http = httpserver.NewServer(cfg.HTTPOptions, cfg.MiddlewareOptions)
	router.Register(s.http.Engine(), h)

	ready = true
	logger.Infow("chainrag query service is ready", "addr", cfg.HTTPOptions.Addr)
	return s, nil
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	defer s.close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.http.Run(ctx) })
	if s.watcher != nil {
		g.Go(func() error {
			// 监听前先同步一次，启动期间的变化由监听补上。
			if _, err := s.indexer.IndexDir(ctx, s.dataDir); err != nil {
				logger.Errorw("Initial ingestion failed", "dir", s.dataDir, "error", err.Error())
			}
			return s.watcher.Run(ctx)
		})
	}
	return g.Wait()
}

func (s *Server) close() {
	if s.pool != nil {
		if err := s.pool.ReleaseTimeout(10 * time.Second); err != nil {
			logger.Warnw("Query pool did not drain", "error", err.Error())
		}
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// withCache wraps p with the Redis embedding cache. An unreachable Redis
// disables the cache instead of failing startup.
func (s *Server) withCache(ctx context.Context, p llm.EmbeddingProvider, cc *llm.EmbeddingCacheConfig, opts *cacheopts.Options) llm.EmbeddingProvider {
	if opts == nil || !opts.Enabled {
		logger.Info("Embedding cache is disabled")
		return p
	}

	client, err := opts.Redis.NewClient()
	if err != nil {
		logger.Warnw("Invalid redis configuration, embedding cache disabled", "error", err.Error())
		return p
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warnw("Failed to connect to redis, embedding cache disabled", "addr", opts.Redis.Addr(), "error", err.Error())
		_ = client.Close()
		return p
	}
	s.closers = append(s.closers, func() { _ = client.Close() })

	logger.Infow("Embedding cache initialized", "addr", opts.Redis.Addr(), "ttl", opts.TTL.String(), "namespace", cc.Namespace)
	return llm.NewCachedEmbeddingProvider(p, goredis.UniversalClient(client), cc)
}

// cacheConfig keys cached vectors by embedding model so a model switch never
// serves vectors of the previous one.
func cacheConfig(opts *cacheopts.Options, model string) *llm.EmbeddingCacheConfig {
	cc := llm.DefaultEmbeddingCacheConfig()
	cc.Namespace = model
	if opts != nil {
		cc.TTL = opts.TTL
		cc.KeyPrefix = opts.KeyPrefix
	}
	return cc
}

// checkEmbeddingDimension embeds a fixed text once and compares the vector length with
// the collection. An unreachable provider only logs; queries will surface it.
func checkEmbeddingDimension(ctx context.Context, p llm.EmbeddingProvider, dim int) error {
	ctx, cancel := context.WithTimeout(ctx, dimCheckTimeout)
	defer cancel()

	vec, err := p.EmbedSingle(ctx, dimCheckText)
	if err != nil {
		logger.Warnw("Embedding provider not reachable at startup", "provider", p.Name(), "error", err.Error())
		return nil
	}
	if len(vec) != dim {
		return apierrors.ErrDimensionMismatch.WithMessagef(
			"embedding model produces %d dimensions, collection expects %d", len(vec), dim)
	}
	return nil
}

func wrapDimension(err error) error {
	if errors.Is(err, store.ErrDimensionMismatch) {
		return apierrors.ErrDimensionMismatch.WithCause(err)
	}
	return err
}

func pipelineConfig(o *pipelineopts.Options) *biz.Config {
	cfg := &biz.Config{
		DefaultK:        o.DefaultK,
		MaxK:            o.MaxK,
		ContextBudget:   o.ContextBudget,
		ReasoningModels: o.ReasoningModels,
		Retry: biz.RetryPolicy{
			Retries:        o.Retries,
			InitialBackoff: o.InitialBackoff,
			MaxBackoff:     o.MaxBackoff,
		},
		Timeouts: biz.StageTimeouts{
			Embed:      o.Timeouts.Embed,
			Retrieve:   o.Timeouts.Retrieve,
			Reason:     o.Timeouts.Reason,
			Synthesize: o.Timeouts.Synthesize,
		},
	}
	if b := o.Breaker; b != nil && b.MaxFailures > 0 {
		cfg.Breaker = &resilience.CircuitBreakerConfig{
			MaxFailures:      b.MaxFailures,
			Timeout:          b.Cooldown,
			HalfOpenMaxCalls: 1,
		}
	}
	return cfg
}
