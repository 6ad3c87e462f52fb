// Package app assembles the service from its parts: data provider,
// strategies, engine, registry, archive, and HTTP server.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/quantfold/backtestd/internal/api"
	"github.com/quantfold/backtestd/internal/archive"
	"github.com/quantfold/backtestd/internal/backtest"
	"github.com/quantfold/backtestd/internal/config"
	"github.com/quantfold/backtestd/internal/history"
	"github.com/quantfold/backtestd/internal/history/alpaca"
	"github.com/quantfold/backtestd/internal/history/yahoo"
	"github.com/quantfold/backtestd/internal/llm"
	llmfactory "github.com/quantfold/backtestd/internal/llm/factory"
	"github.com/quantfold/backtestd/internal/metrics"
	"github.com/quantfold/backtestd/internal/strategy"
	"github.com/quantfold/backtestd/internal/strategy/advisor"
	"github.com/quantfold/backtestd/internal/strategy/momentum"
)

const shutdownTimeout = 10 * time.Second

// App is the assembled backtest service.
type App struct {
	cfg        *config.Config
	logger     *zap.Logger
	provider   history.Provider
	strategies *strategy.Engine
	registry   *backtest.Registry
	server     *api.Server

	barCache *history.SQLiteCache
}

// New builds the service from configuration. All dependencies are wired
// here; nothing below this layer reads config.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, logger: logger}

	var obs *metrics.Registry
	if cfg.Metrics.Enabled {
		obs = metrics.NewRegistry()
	}

	if err := a.buildProvider(); err != nil {
		return nil, err
	}
	if err := a.buildStrategies(); err != nil {
		return nil, err
	}

	store, err := buildArchive(cfg.Archive)
	if err != nil {
		return nil, err
	}

	engine := backtest.NewEngine(a.provider, a.strategies, store, obs, logger)
	a.registry = backtest.NewRegistry(engine, cfg.Backtest.MaxRuns, obs, logger)

	a.server = api.NewServer(api.Config{
		Host:   cfg.Server.Host,
		Port:   cfg.Server.Port,
		APIKey: cfg.Server.APIKey,
	}, a.registry, a.strategies, obs, logger)

	return a, nil
}

func (a *App) buildProvider() error {
	var upstream history.Provider
	switch a.cfg.History.Provider {
	case "yahoo":
		upstream = yahoo.New()
	case "alpaca":
		p, err := alpaca.New(alpaca.Config{
			APIKey:    a.cfg.History.Alpaca.APIKey,
			APISecret: a.cfg.History.Alpaca.APISecret,
			Feed:      a.cfg.History.Alpaca.Feed,
		})
		if err != nil {
			return err
		}
		upstream = p
	default:
		return fmt.Errorf("unknown history provider %q", a.cfg.History.Provider)
	}

	if a.cfg.History.CachePath != "" {
		cache, err := history.NewSQLiteCache(upstream, a.cfg.History.CachePath)
		if err != nil {
			return fmt.Errorf("opening bar cache: %w", err)
		}
		a.barCache = cache
		upstream = cache
	}

	a.provider = upstream
	a.logger.Info("history provider ready",
		zap.String("provider", a.cfg.History.Provider),
		zap.Bool("cached", a.barCache != nil),
	)
	return nil
}

func (a *App) buildStrategies() error {
	a.strategies = strategy.NewEngine(a.logger)

	mom := momentum.New()
	if sc, ok := a.cfg.Strategies[mom.Name()]; ok {
		if err := mom.Init(strategy.Config{Params: sc.Params}); err != nil {
			return fmt.Errorf("configuring %s: %w", mom.Name(), err)
		}
		if !sc.Enabled {
			mom = nil
		}
	}
	if mom != nil {
		a.strategies.Register(mom)
	}

	if a.cfg.LLM.Provider != "" {
		provider, err := buildLLM(a.cfg.LLM)
		if err != nil {
			return err
		}
		adv := advisor.New(provider)
		if sc, ok := a.cfg.Strategies[adv.Name()]; ok {
			if err := adv.Init(strategy.Config{Params: sc.Params}); err != nil {
				return fmt.Errorf("configuring %s: %w", adv.Name(), err)
			}
			if !sc.Enabled {
				adv = nil
			}
		}
		if adv != nil {
			a.strategies.Register(adv)
			a.logger.Info("llm advisor enabled", zap.String("provider", a.cfg.LLM.Provider))
		}
	}
	return nil
}

func buildLLM(cfg config.LLM) (llm.Provider, error) {
	switch cfg.Provider {
	case "claude":
		return llmfactory.New("claude", cfg.Claude.APIKey, cfg.Claude.Model)
	case "openai":
		return llmfactory.New("openai", cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

func buildArchive(cfg config.Archive) (archive.Storage, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Type {
	case "localfs":
		return archive.NewLocalFS(cfg.Path)
	case "s3":
		return archive.NewS3(archive.S3Config{
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    cfg.S3.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown archive type %q", cfg.Type)
	}
}

// Registry exposes the run registry, for embedding and one-shot commands.
func (a *App) Registry() *backtest.Registry {
	return a.registry
}

// Strategies exposes the strategy engine.
func (a *App) Strategies() *strategy.Engine {
	return a.strategies
}

// Run serves HTTP until ctx is cancelled, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start()
	}()

	select {
	case err := <-errCh:
		a.close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := a.server.Shutdown(shutdownCtx)

	a.close()
	return err
}

func (a *App) close() {
	a.registry.Close()
	if a.barCache != nil {
		if err := a.barCache.Close(); err != nil {
			a.logger.Warn("closing bar cache", zap.Error(err))
		}
	}
}
