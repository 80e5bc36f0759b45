// Package pipeline builds the adapters and the usecase from configuration.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/forPelevin/nledit/internal/config"
	"github.com/forPelevin/nledit/internal/domain/planner"
	"github.com/forPelevin/nledit/internal/domain/references"
	"github.com/forPelevin/nledit/internal/editor"
	"github.com/forPelevin/nledit/internal/embedcache"
	"github.com/forPelevin/nledit/internal/lineage"
	"github.com/forPelevin/nledit/internal/ports"
	"github.com/forPelevin/nledit/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/nledit/internal/ports/adapters/gemini"
	"github.com/forPelevin/nledit/internal/ports/adapters/ollama"
	"github.com/forPelevin/nledit/internal/ports/adapters/openrouter"
	"github.com/forPelevin/nledit/internal/ports/adapters/rabbitmq"
	"github.com/forPelevin/nledit/internal/ports/adapters/sqlite"
	"github.com/forPelevin/nledit/internal/ports/adapters/whispercpp"
	"github.com/forPelevin/nledit/internal/resolver"
	"github.com/forPelevin/nledit/internal/usecase"
)

// App owns the process-wide collaborators. Close releases them in reverse
// order of construction.
type App struct {
	Usecase usecase.Usecase
	Store   Store
	// Embedder is the cached embedder, exposed for stats.
	Embedder *embedcache.Embedder

	closers []func() error
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Store is the version tree together with the transcripts of its videos.
type Store interface {
	ports.VideoStore
	ports.TranscriptStore
}

type Options struct {
	// Publish connects the job producer when a RabbitMQ URL is configured.
	Publish bool
}

func Build(ctx context.Context, cfg *config.Config, opts Options, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}

	app := &App{}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	store, err := buildStore(cfg, app, logger)
	if err != nil {
		return nil, err
	}
	app.Store = store

	var gem *gemini.Adapter
	if cfg.Planner.Provider == config.PlannerGemini || cfg.Embedding.Provider == config.EmbeddingGemini {
		if cfg.Gemini.APIKey != "" {
			if gem, err = gemini.New(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.EmbedModel, logger); err != nil {
				return nil, err
			}
		}
	}

	rawEmbedder, err := buildEmbedder(cfg, gem)
	if err != nil {
		return nil, err
	}
	cache, err := buildCache(ctx, cfg, app)
	if err != nil {
		return nil, err
	}
	emb := embedcache.NewEmbedder(rawEmbedder, cache, logger)
	app.Embedder = emb

	refs := references.New(emb, cfg.Resolver.Threshold, logger)
	var pl resolver.Planner
	if caller := buildCaller(cfg, gem, logger); caller != nil {
		pl = planner.New(caller, emb, planner.Config{TopK: cfg.Resolver.TopK, Timeout: cfg.Planner.Timeout}, logger)
	} else {
		logger.Warn("no planner credentials; only quick patterns will resolve", zap.String("provider", cfg.Planner.Provider))
	}

	video := ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath)
	ed := editor.New(editor.Deps{
		Store:    store,
		Renderer: video,
		OutDir:   cfg.VideosDir(),
		Logger:   logger,
	})

	var queue ports.JobQueue
	if opts.Publish && cfg.RabbitMQ.URL != "" {
		p, err := rabbitmq.NewProducer(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, p.Close)
		queue = p
	}

	app.Usecase = usecase.New(usecase.Deps{
		Store:       store,
		Transcripts: store,
		Resolver:    resolver.New(refs, pl, logger),
		Editor:      ed,
		Video:       video,
		ASR:         whispercpp.New(cfg.WhisperBin, cfg.WhisperModel),
		Embedder:    emb,
		CacheDir:    cfg.CacheDir(),
		Queue:       queue,
		Logger:      logger,
	})
	return app, nil
}

// NewConsumer connects a worker to the apply-job queue.
func NewConsumer(cfg *config.Config, logger *zap.Logger) (*rabbitmq.Consumer, error) {
	if cfg.RabbitMQ.URL == "" {
		return nil, errors.New("RABBITMQ_URL is required for the worker")
	}
	return rabbitmq.NewConsumer(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, cfg.RabbitMQ.Prefetch, logger)
}

func buildStore(cfg *config.Config, app *App, logger *zap.Logger) (Store, error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using the in-memory store; edits are lost on exit")
		return lineage.NewArena(), nil
	}
	db, err := sqlite.Open(cfg.DatabasePath(), logger)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, db.Close)
	return sqlite.NewStore(db), nil
}

func buildEmbedder(cfg *config.Config, gem *gemini.Adapter) (ports.Embedder, error) {
	switch cfg.Embedding.Provider {
	case config.EmbeddingGemini:
		if gem == nil {
			return nil, errors.New("gemini embeddings need GEMINI_API_KEY")
		}
		return timeoutEmbedder{next: gem, timeout: cfg.Embedding.Timeout}, nil
	default:
		return ollama.New(cfg.Embedding.Endpoint, cfg.Embedding.Model, cfg.Embedding.Timeout), nil
	}
}

func buildCache(ctx context.Context, cfg *config.Config, app *App) (embedcache.Cache, error) {
	if cfg.Cache.Backend != config.CacheRedis {
		return embedcache.NewMemory(), nil
	}
	client, err := embedcache.DialRedis(ctx, cfg.Cache.RedisAddr)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, client.Close)
	return embedcache.NewRedis(client, "", cfg.Cache.TTL), nil
}

// buildCaller returns nil when the selected provider has no credentials.
func buildCaller(cfg *config.Config, gem *gemini.Adapter, logger *zap.Logger) ports.FunctionCaller {
	switch cfg.Planner.Provider {
	case config.PlannerGemini:
		if gem == nil {
			return nil
		}
		return gem
	default:
		if cfg.OpenRouter.APIKey == "" {
			return nil
		}
		return openrouter.New(cfg.OpenRouter.APIKey, cfg.OpenRouter.Model, cfg.OpenRouter.BaseURL,
			openrouter.WithTimeout(cfg.Planner.Timeout),
			openrouter.WithLogger(logger),
		)
	}
}

// timeoutEmbedder bounds each call of an embedder that has no client-level timeout.
type timeoutEmbedder struct {
	next    ports.Embedder
	timeout time.Duration
}

func (e timeoutEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.next.Embed(ctx, text)
}

// ensure adapters implement ports
var _ ports.VideoTool = (*ffmpeg.Adapter)(nil)
var _ ports.Renderer = (*ffmpeg.Adapter)(nil)
var _ ports.ASR = (*whispercpp.Adapter)(nil)
var _ ports.FunctionCaller = (*openrouter.Adapter)(nil)
var _ ports.FunctionCaller = (*gemini.Adapter)(nil)
var _ ports.Embedder = (*gemini.Adapter)(nil)
var _ ports.Embedder = (*ollama.Embedder)(nil)
var _ ports.VideoStore = (*sqlite.Store)(nil)
var _ ports.TranscriptStore = (*sqlite.Store)(nil)
var _ Store = (*lineage.Arena)(nil)
var _ ports.JobQueue = (*rabbitmq.Producer)(nil)
