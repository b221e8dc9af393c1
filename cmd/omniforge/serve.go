package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os/signal"
	"sort"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/sync/errgroup"

	"github.com/omniforge-ai/omniforge/pkg/auth"
	"github.com/omniforge-ai/omniforge/pkg/chain"
	"github.com/omniforge-ai/omniforge/pkg/config"
	"github.com/omniforge-ai/omniforge/pkg/executor"
	"github.com/omniforge-ai/omniforge/pkg/governance"
	"github.com/omniforge-ai/omniforge/pkg/llms"
	"github.com/omniforge-ai/omniforge/pkg/observability"
	"github.com/omniforge-ai/omniforge/pkg/ratelimit"
	"github.com/omniforge-ai/omniforge/pkg/server"
	"github.com/omniforge-ai/omniforge/pkg/task"
	"github.com/omniforge-ai/omniforge/pkg/tool"
	"github.com/omniforge-ai/omniforge/pkg/visibility"
)

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Port    int  `help:"Port to listen on (overrides config)." default:"0"`
	Metrics bool `help:"Enable Prometheus metrics." default:"true" negatable:""`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.LoadEnvFiles(); err != nil {
		return err
	}
	cfg, err := config.LoadFromFile(cli.Config)
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	metrics, err := observability.InitMetrics(ctx, observability.MetricsConfig{Enabled: c.Metrics})
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	observability.SetGlobalMetrics(metrics)

	taskRepo, chainRepo, closeDB, err := buildRepositories(cfg)
	if err != nil {
		return err
	}
	if closeDB != nil {
		defer closeDB()
	}

	registry, err := buildToolRegistry(cfg)
	if err != nil {
		return err
	}

	limiter, err := ratelimit.NewLimiter(*cfg.RateLimits)
	if err != nil {
		return fmt.Errorf("invalid rate limits: %w", err)
	}

	exec := executor.New(registry, limiter, cfg.Governor(), governance.NewCostTable())

	var validator auth.Validator
	if cfg.Server.Auth != nil {
		validator, err = auth.NewJWTValidator(cfg.Server.Auth.JWKSURL, cfg.Server.Auth.Issuer, cfg.Server.Auth.Audience)
		if err != nil {
			return fmt.Errorf("failed to initialize auth: %w", err)
		}
	} else {
		slog.Warn("authentication is disabled; all requests act for the default tenant")
	}

	srv := server.New(server.Options{
		Addr:            cfg.Server.Address(),
		Tasks:           taskRepo,
		Chains:          chainRepo,
		Executor:        exec,
		Agents:          cfg.Agents,
		Visibility:      visibility.NewController(),
		Validator:       validator,
		DefaultTenantID: cfg.Tenant.DefaultTenantID,
	})

	slog.Info("starting omniforge",
		"addr", cfg.Server.Address(),
		"agents", len(cfg.Agents),
		"storage", cfg.Storage.Backend,
		"auth", validator != nil)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(ctx) })
	return g.Wait()
}

// buildRepositories creates the task and chain stores from the storage
// configuration. The returned closer is nil for in-memory storage.
func buildRepositories(cfg *config.Config) (task.Repository, chain.Repository, func(), error) {
	if !cfg.Storage.IsSQL() {
		return task.NewInMemoryRepository(), chain.NewInMemoryRepository(), nil, nil
	}

	db, err := sql.Open(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Storage.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Storage.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	taskRepo, err := task.NewSQLRepository(db, cfg.Storage.Driver)
	if err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("failed to initialize task storage: %w", err)
	}
	chainRepo, err := chain.NewSQLRepository(db, cfg.Storage.Driver)
	if err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("failed to initialize chain storage: %w", err)
	}

	return taskRepo, chainRepo, func() { db.Close() }, nil
}

// defaultBaseURLs for OpenAI-compatible provider endpoints.
var defaultBaseURLs = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"anthropic":  "https://api.anthropic.com/v1",
	"groq":       "https://api.groq.com/openai/v1",
	"openrouter": "https://openrouter.ai/api/v1",
}

// buildToolRegistry registers the builtin llm tool backed by the configured
// providers.
func buildToolRegistry(cfg *config.Config) (*tool.Registry, error) {
	providers := llms.NewRegistry()

	names := make([]string, 0, len(cfg.LLM.Providers))
	for name := range cfg.LLM.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	defaultProvider := ""
	for _, name := range names {
		pc := cfg.LLM.Providers[name]

		baseURL := pc.BaseURL
		if baseURL == "" {
			baseURL = defaultBaseURLs[pc.Type]
		}
		model := pc.Model
		if model == "" {
			model = cfg.LLM.DefaultModel
		}

		provider, err := llms.NewOpenAIProvider(llms.OpenAIConfig{
			BaseURL:    baseURL,
			APIKey:     pc.APIKey,
			Model:      model,
			Timeout:    time.Duration(cfg.LLM.TimeoutMS) * time.Millisecond,
			MaxRetries: cfg.LLM.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("llm provider %q: %w", name, err)
		}
		if err := providers.Register(name, provider); err != nil {
			return nil, fmt.Errorf("llm provider %q: %w", name, err)
		}

		if defaultProvider == "" {
			defaultProvider = name
		}
	}
	if len(names) == 0 {
		slog.Warn("no llm providers configured; reasoning will fail until one is added")
	}

	llmTool := llms.NewTool(providers, defaultProvider)
	if cfg.LLM.CacheEnabled {
		llmTool = llmTool.WithCache(llms.NewCache(time.Duration(cfg.LLM.CacheTTLSeconds) * time.Second))
	}

	registry := tool.NewRegistry()
	if err := registry.Register(llmTool, false); err != nil {
		return nil, err
	}
	return registry, nil
}
