package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/custodia-labs/sercha-chat/internal/adapters/driven/config/file"
	"github.com/custodia-labs/sercha-chat/internal/adapters/driven/index/vectorstore"
	"github.com/custodia-labs/sercha-chat/internal/adapters/driven/llm/guard"
	"github.com/custodia-labs/sercha-chat/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/sercha-chat/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sercha-chat/internal/adapters/driven/storage/redis"
	"github.com/custodia-labs/sercha-chat/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/sercha-chat/internal/adapters/driving/cli"
	"github.com/custodia-labs/sercha-chat/internal/config"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-chat/internal/core/services"
	"github.com/custodia-labs/sercha-chat/internal/ingest"
	"github.com/custodia-labs/sercha-chat/internal/logger"
)

// buildRuntime loads configuration and wires every adapter into the
// conversation service.
func buildRuntime(ctx context.Context, opts cli.RuntimeOptions) (*cli.Runtime, error) {
	configStore, promptDir, err := openConfigStore(opts)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(configStore)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if opts.LogLevel == "" {
		logger.SetLevel(cfg.LogLevel)
	}
	logger.Section("startup")

	var closers []func() error

	store, closeStore, err := newCheckpointStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if closeStore != nil {
		closers = append(closers, closeStore)
	}

	index, err := newKnowledgeIndex(ctx, cfg)
	if err != nil {
		return nil, closeAll(closers, err)
	}

	generator, err := newGenerator(cfg)
	if err != nil {
		return nil, closeAll(closers, err)
	}

	svc := services.NewConversationService(store, index, generator, cfg.ConversationOptions())
	rt := &cli.Runtime{
		Conversation: svc,
		ServeAddr:    cfg.Serve.Addr,
		MetricsAddr:  cfg.Serve.MetricsAddr,
		Close: func() error {
			return closeAll(closers, nil)
		},
	}

	if promptDir == "" {
		logger.Debug("prompts: embedded defaults")
		return rt, nil
	}
	prompts, err := file.NewPromptStore(promptDir)
	if err != nil {
		return nil, closeAll(closers, fmt.Errorf("opening prompts: %w", err))
	}
	svc.SetPromptStore(prompts)
	if aware, ok := generator.(driven.PromptStoreAware); ok {
		aware.SetPromptStore(prompts)
	}
	rt.Prompts = prompts
	return rt, nil
}

// openConfigStore returns the config source and the prompt directory next to
// it. With NoConfigFile the store is empty and there is no prompt directory.
func openConfigStore(opts cli.RuntimeOptions) (driven.ConfigStore, string, error) {
	if opts.NoConfigFile {
		logger.Debug("config: defaults and environment only")
		return memory.NewConfigStore(), "", nil
	}
	store, err := file.NewConfigStore(opts.ConfigDir)
	if err != nil {
		return nil, "", fmt.Errorf("opening config: %w", err)
	}
	logger.Debug("config file %s", store.Path())
	return store, filepath.Join(filepath.Dir(store.Path()), "prompts"), nil
}

// newCheckpointStore returns the configured store and its close function (can be nil).
func newCheckpointStore(ctx context.Context, cfg *config.Config) (driven.CheckpointStore, func() error, error) {
	switch cfg.Storage.Backend {
	case config.StorageMemory:
		logger.Debug("checkpoints: memory")
		return memory.NewCheckpointStore(), nil, nil
	case config.StorageRedis:
		store, err := redis.Connect(ctx, cfg.Storage.RedisURL, redis.Options{
			KeyPrefix: cfg.Storage.KeyPrefix,
			TTL:       cfg.Storage.TTL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to redis: %w", err)
		}
		logger.Debug("checkpoints: redis")
		return store, store.Close, nil
	default:
		store, err := sqlite.NewStore(cfg.Storage.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		logger.Debug("checkpoints: sqlite at %s", store.Path())
		return store.CheckpointStore(), store.Close, nil
	}
}

// newKnowledgeIndex returns the configured index.
func newKnowledgeIndex(ctx context.Context, cfg *config.Config) (driven.KnowledgeIndex, error) {
	switch cfg.Index.Backend {
	case config.IndexVectorStore:
		logger.Debug("index: vectorstore at %s", cfg.Index.URL)
		return vectorstore.NewIndex(cfg.Index.URL, cfg.Index.Timeout, cfg.Index.APIKey), nil
	default:
		if cfg.Index.Corpus == "" {
			logger.Warn("no index.corpus configured; answers will have no evidence")
			return memory.NewKnowledgeIndex(), nil
		}
		if info, err := os.Stat(cfg.Index.Corpus); err == nil && info.IsDir() {
			docs, err := ingest.LoadDir(ctx, cfg.Index.Corpus, ingest.Options{
				ChunkSize:    cfg.Index.ChunkSize,
				ChunkOverlap: cfg.Index.ChunkOverlap,
			})
			if err != nil {
				return nil, fmt.Errorf("ingesting corpus: %w", err)
			}
			logger.Debug("index: %d chunks from %s", len(docs), cfg.Index.Corpus)
			return memory.NewKnowledgeIndex(docs...), nil
		}
		idx, err := memory.LoadCorpus(cfg.Index.Corpus)
		if err != nil {
			return nil, fmt.Errorf("loading corpus: %w", err)
		}
		logger.Debug("index: %d documents from %s", idx.Len(), cfg.Index.Corpus)
		return idx, nil
	}
}

// newGenerator returns the guarded generator, or nil when none is configured.
func newGenerator(cfg *config.Config) (driven.Generator, error) {
	if cfg.Generator.Provider != config.GeneratorOpenAI {
		logger.Debug("generator: none, using extractive answers")
		return nil, nil
	}

	gen, err := openai.NewGenerator(openai.Config{
		APIKey:  cfg.Generator.APIKey,
		BaseURL: cfg.Generator.BaseURL,
		Model:   cfg.Generator.Model,
		Timeout: cfg.Generator.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating generator: %w", err)
	}

	guarded, err := guard.New(gen, guard.Options{
		RequestsPerSecond: cfg.Guard.RequestsPerSecond,
		BurstSize:         cfg.Guard.Burst,
		Timeout:           cfg.Generator.Timeout,
		CacheSize:         cfg.Guard.CacheSize,
		FailureThreshold:  uint32(max(cfg.Guard.FailureThreshold, 0)),
		OpenTimeout:       cfg.Guard.OpenTimeout,
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("generator: %s", gen.ModelName())
	return guarded, nil
}

// closeAll runs closers in reverse order and joins their errors with cause.
func closeAll(closers []func() error, cause error) error {
	errs := []error{cause}
	for i := len(closers) - 1; i >= 0; i-- {
		errs = append(errs, closers[i]())
	}
	return errors.Join(errs...)
}
