package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/visibility-cli/internal/engine"
	"github.com/sells-group/visibility-cli/internal/provider"
	"github.com/sells-group/visibility-cli/internal/store"
	anthropicpkg "github.com/sells-group/visibility-cli/pkg/anthropic"
	"github.com/sells-group/visibility-cli/pkg/openai"
	"github.com/sells-group/visibility-cli/pkg/perplexity"
)

// engineEnv holds the initialized store and engine shared by the
// serve/analyze/export commands.
type engineEnv struct {
	Store  store.Store
	Engine *engine.Engine
}

// Close releases resources held by the environment.
func (e *engineEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "visibility.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEngine sets up the store, provider clients, and the engine.
// Callers should defer env.Close().
func initEngine(ctx context.Context) (*engineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	openaiClient := openai.NewClient(cfg.OpenAI.Key,
		openai.WithBaseURL(cfg.OpenAI.BaseURL), openai.WithModel(cfg.OpenAI.Model))
	geminiClient := openai.NewClient(cfg.Gemini.Key,
		openai.WithBaseURL(cfg.Gemini.BaseURL), openai.WithModel(cfg.Gemini.Model))
	perplexityClient := perplexity.NewClient(cfg.Perplexity.Key,
		perplexity.WithBaseURL(cfg.Perplexity.BaseURL), perplexity.WithModel(cfg.Perplexity.Model))

	scorer := provider.NewAnthropicScorer(anthropicClient, cfg.Anthropic.ScoringModel)
	registry := provider.NewRegistry(scorer, rate.Limit(cfg.Engine.ProviderRate), cfg.Engine.ProviderBurst)
	registry.Register("ChatGPT", provider.NewOpenAIQuerier(openaiClient, cfg.OpenAI.Model))
	registry.Register("Claude", provider.NewAnthropicQuerier(anthropicClient, cfg.Anthropic.QueryModel))
	registry.Register("Perplexity", provider.NewPerplexityQuerier(perplexityClient, cfg.Perplexity.Model))
	registry.Register("Gemini", provider.NewOpenAIQuerier(geminiClient, cfg.Gemini.Model))

	opts := engine.Options{
		ConcurrencyCap:   cfg.Engine.ConcurrencyCap,
		TimeoutThreshold: cfg.Engine.TimeoutThreshold,
		QueryTimeout:     time.Duration(cfg.Engine.QueryTimeoutSecs) * time.Second,
		ScoreTimeout:     time.Duration(cfg.Engine.ScoreTimeoutSecs) * time.Second,
		MaxUnits:         cfg.Engine.MaxUnits,
	}
	if cfg.Engine.ModelConfigPath != "" {
		sets, err := engine.LoadModelSets(cfg.Engine.ModelConfigPath)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		opts.ModelSets = &sets
		zap.L().Info("model sets loaded from file",
			zap.String("path", cfg.Engine.ModelConfigPath),
			zap.Strings("full", sets.Full),
			zap.Strings("fallback", sets.Fallback),
		)
	}

	eng := engine.New(st, registry, opts)
	eng.Start(ctx)

	return &engineEnv{Store: st, Engine: eng}, nil
}
