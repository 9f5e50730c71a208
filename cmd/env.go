package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/marketlens/marketlens-cli/internal/fsm"
	"github.com/marketlens/marketlens-cli/internal/monitoring"
	"github.com/marketlens/marketlens-cli/internal/parser"
	"github.com/marketlens/marketlens-cli/internal/patterns"
	"github.com/marketlens/marketlens-cli/internal/store"
	"github.com/marketlens/marketlens-cli/internal/validate"
	"github.com/marketlens/marketlens-cli/internal/workflow"
	"github.com/marketlens/marketlens-cli/pkg/anthropic"
)

func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(cfg.Store.Path)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initParser builds the parser from the built-in pattern library, the
// optional overlay file, and configured validation ceilings.
func initParser(collector *monitoring.Collector) (*parser.Parser, error) {
	lib := patterns.Default()
	if cfg.Parser.OverlayFile != "" {
		overlay, err := patterns.LoadOverlay(cfg.Parser.OverlayFile)
		if err != nil {
			return nil, err
		}
		lib = lib.WithOverlay(overlay)
	}

	limits := validate.DefaultLimits()
	if cfg.Parser.MaxPrice > 0 {
		limits.MaxPrice = cfg.Parser.MaxPrice
	}
	if cfg.Parser.MaxPercent > 0 {
		limits.MaxPercent = cfg.Parser.MaxPercent
	}

	var opts []parser.Option
	if collector != nil {
		opts = append(opts, parser.WithObserver(collector))
	}
	return parser.New(lib, validate.New(limits), zap.L(), opts...), nil
}

// runnerEnv bundles everything a live workflow command needs.
type runnerEnv struct {
	runner    *workflow.Runner
	parser    *parser.Parser
	store     store.Store
	collector *monitoring.Collector
}

func (e *runnerEnv) Close() {
	if e.store != nil {
		e.store.Close()
	}
}

func initRunner(ctx context.Context, withStore bool) (*runnerEnv, error) {
	collector := monitoring.NewCollector()

	p, err := initParser(collector)
	if err != nil {
		return nil, err
	}

	env := &runnerEnv{parser: p, collector: collector}
	if withStore {
		env.store, err = initStore(ctx)
		if err != nil {
			return nil, err
		}
	}

	client := anthropic.NewClient(cfg.Anthropic.Key, cfg.Anthropic.RequestsPerSec)
	opts := []workflow.Option{
		workflow.WithModel(cfg.Anthropic.Model),
		workflow.WithMaxTokens(int64(cfg.Anthropic.MaxTokens)),
		workflow.WithTimeout(time.Duration(cfg.Anthropic.TimeoutSecs) * time.Second),
		workflow.WithPricing(anthropic.Pricing{
			InputPerMTok:  cfg.Anthropic.InputPerMTok,
			OutputPerMTok: cfg.Anthropic.OutputPerMTok,
		}),
		workflow.WithManagerOptions(
			fsm.WithObserver(collector),
			fsm.WithMaxRecoveryAttempts(cfg.Workflow.MaxRecoveryAttempts),
			fsm.WithErrorCooldown(cfg.Workflow.ErrorCooldown()),
		),
	}
	if env.store != nil {
		opts = append(opts, workflow.WithStore(env.store))
	}

	env.runner = workflow.New(client, p, zap.L(), opts...)
	return env, nil
}
