package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/hupe1980/raaf"
	"github.com/hupe1980/raaf/agent"
	"github.com/hupe1980/raaf/config"
	"github.com/hupe1980/raaf/core"
	"github.com/hupe1980/raaf/guardrail"
	"github.com/hupe1980/raaf/logging"
	"github.com/hupe1980/raaf/memory"
	"github.com/hupe1980/raaf/model"
	"github.com/hupe1980/raaf/model/anthropic"
	"github.com/hupe1980/raaf/model/langchain"
	"github.com/hupe1980/raaf/model/openai"
	"github.com/hupe1980/raaf/session"
	"github.com/hupe1980/raaf/session/libsql"
)

// app bundles the façade with the resources the process must release.
type app struct {
	raaf     *raaf.RAAF
	sessions core.SessionStore
	logger   logging.Logger
	close    func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := buildLogger(cfg.Logging)

	provider, err := buildProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := buildSessionStore(ctx, cfg.Session, logger)
	if err != nil {
		return nil, err
	}

	specs, err := loadAgents(cfg.Agents)
	if err != nil {
		_ = closeStore()
		return nil, err
	}

	m := raaf.New(func(o *raaf.Options) {
		o.Provider = provider
		o.DefaultAgent = cfg.Agents.Default
		o.MaxTurns = cfg.Runner.MaxTurns
		o.ContextBudget = cfg.Runner.ContextBudget
		o.ToolParallelism = cfg.Runner.ToolParallelism
		o.ToolTimeout = cfg.Runner.ToolTimeout
		o.RunTimeout = cfg.Runner.RunTimeout
		o.Retrier = buildRetrier(cfg.Retry, logger)
		o.ToolGuardrails = buildToolGuardrails(cfg.Guardrails, logger)
		o.SessionStore = store
		o.Memory = buildMemory(cfg.Memory, provider, logger)
		o.Logger = logger
	})
	m.RegisterAgent(specs...)

	logger.Info("raaf.ready",
		"provider", cfg.Provider.Type,
		"model", cfg.Provider.Model,
		"session_store", cfg.Session.Store,
		"memory_strategy", cfg.Memory.Strategy,
		"agents", m.Agents())

	return &app{raaf: m, sessions: store, logger: logger, close: closeStore}, nil
}

func buildLogger(cfg config.LoggingConfig) logging.Logger {
	level := logging.ParseLevel(cfg.Level)
	if cfg.Backend == "zerolog" {
		return logging.NewZerologLogger(level, cfg.Format, os.Stderr)
	}
	return logging.NewSlogLogger(level, cfg.Format, false).WithComponent("raaf")
}

func buildProvider(cfg config.ProviderConfig) (model.Provider, error) {
	switch cfg.Type {
	case "openai":
		return openai.NewProvider(func(o *openai.Options) {
			o.Model = cfg.Model
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	case "anthropic":
		return anthropic.NewProvider(func(o *anthropic.Options) {
			o.Model = anthropicsdk.Model(cfg.Model)
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("ollama: %w", err)
		}
		return langchain.NewProvider(llm, func(o *langchain.Options) {
			o.Model = cfg.Model
		}), nil
	case "mock":
		return model.NewMockProvider("mock"), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", core.ErrInvalidArgument, cfg.Type)
	}
}

func buildRetrier(cfg config.RetryConfig, logger logging.Logger) *model.Retrier {
	return model.NewRetrier(func(o *model.RetryOptions) {
		o.MaxAttempts = cfg.MaxAttempts
		o.BaseDelay = cfg.BaseDelay
		o.Factor = cfg.Factor
		o.MaxDelay = cfg.MaxDelay
		o.AttemptTimeout = cfg.AttemptTimeout
		o.Logger = logger
	})
}

func buildMemory(cfg config.MemoryConfig, provider model.Provider, logger logging.Logger) *memory.Manager {
	var summarizer memory.Summarizer = memory.ExtractiveSummarizer{}
	if cfg.LLMSummaries {
		summarizer = memory.NewLLMSummarizer(model.CompletionFunc(provider))
	}
	semantic := memory.Semantic{
		Embedder:  memory.NewCachedEmbedder(memory.NewHashingEmbedder(cfg.EmbeddingDims)),
		Threshold: cfg.Threshold,
	}

	var strategy memory.Strategy
	switch cfg.Strategy {
	case "summarization":
		strategy = memory.Summarization{Summarizer: summarizer, ReserveTokens: cfg.ReserveTokens}
	case "semantic":
		strategy = semantic
	case "hybrid":
		strategy = memory.Hybrid{
			RecentGroups:  cfg.RecentGroups,
			Semantic:      semantic,
			Summarizer:    summarizer,
			ReserveTokens: cfg.ReserveTokens,
		}
	default:
		strategy = memory.SlidingWindow{MaxMessages: cfg.MaxMessages}
	}

	return memory.NewManager(func(o *memory.Options) {
		o.Strategy = strategy
		o.Logger = logger
	})
}

func buildSessionStore(ctx context.Context, cfg config.SessionConfig, logger logging.Logger) (core.SessionStore, func() error, error) {
	if cfg.Store == "libsql" {
		store, err := libsql.Open(ctx, cfg.DSN, func(o *libsql.Options) {
			o.TTL = cfg.TTL
			o.AuthToken = cfg.AuthToken
			o.Logger = logger
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open session store: %w", err)
		}
		return store, store.Close, nil
	}
	store := session.NewInMemoryStore(func(o *session.Options) {
		o.TTL = cfg.TTL
	})
	return store, func() error { return nil }, nil
}

// buildToolGuardrails returns nil when no tool call filter is configured.
func buildToolGuardrails(cfg config.GuardrailsConfig, logger logging.Logger) *guardrail.Chain {
	var filters []guardrail.Filter
	if len(cfg.AllowedTools) > 0 {
		filters = append(filters, guardrail.ToolAllowlist(cfg.AllowedTools...))
	}
	if cfg.RedactSecret {
		filters = append(filters, guardrail.SecretRedactor())
	}
	if len(filters) == 0 {
		return nil
	}
	return guardrail.NewChain(filters, func(o *guardrail.ChainOptions) {
		o.Parallel = cfg.Parallel
		o.Logger = logger
	})
}

// loadAgents builds the configured definitions. A missing definitions path
// yields a single default assistant.
func loadAgents(cfg config.AgentsConfig) ([]*agent.Spec, error) {
	defs, err := agent.LoadDefinitions(cfg.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return []*agent.Spec{agent.MustNew("assistant")}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load agents: %w", err)
	}
	specs, err := agent.Build(defs, agent.DefaultCatalog())
	if err != nil {
		return nil, fmt.Errorf("build agents: %w", err)
	}
	return specs, nil
}
