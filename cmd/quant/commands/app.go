package commands

import (
	"fmt"

	"github.com/wonny/autoquant/backend/internal/aiscreen"
	"github.com/wonny/autoquant/backend/internal/analysisdb"
	"github.com/wonny/autoquant/backend/internal/brain"
	"github.com/wonny/autoquant/backend/internal/llm"
	"github.com/wonny/autoquant/backend/internal/market"
	"github.com/wonny/autoquant/backend/internal/metrics"
	"github.com/wonny/autoquant/backend/internal/pricing"
	"github.com/wonny/autoquant/backend/internal/s0_data"
	"github.com/wonny/autoquant/backend/internal/strategyconfig"
	"github.com/wonny/autoquant/backend/internal/technical"
	"github.com/wonny/autoquant/backend/pkg/config"
	"github.com/wonny/autoquant/backend/pkg/database"
	"github.com/wonny/autoquant/backend/pkg/logger"
	"github.com/wonny/autoquant/backend/pkg/redis"
)

// app holds the wired dependencies shared by the commands
type app struct {
	cfg      *config.Config
	strategy *strategyconfig.Config
	yaml     []byte
	hash     string
	log      *logger.Logger
	db       *database.DB
	redis    *redis.Client
	metrics  *metrics.Registry
	store    *analysisdb.Store
	llm      *llm.Client
	orch     *brain.Orchestrator
}

// newBaseApp loads config, logger, strategy and database
// ⭐ SSOT: 의존성 조립은 여기서만
func newBaseApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	log := logger.New(cfg)

	path := cfg.Pipeline.StrategyConfigPath
	if strategyFile != "" {
		path = strategyFile
	}
	strategy, yamlData, err := strategyconfig.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("load strategy config: %w", err)
	}
	hash, err := strategyconfig.Hash(strategy)
	if err != nil {
		return nil, fmt.Errorf("hash strategy config: %w", err)
	}

	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	a := &app{
		cfg:      cfg,
		strategy: strategy,
		yaml:     yamlData,
		hash:     hash,
		log:      log,
		db:       db,
		store:    analysisdb.NewStore(db.Pool, log),
	}
	if cfg.MetricsEnabled {
		a.metrics = metrics.New()
	}

	log.WithFields(map[string]interface{}{
		"strategy":    strategy.Meta.StrategyID,
		"config_hash": hash,
		"source":      strategySource(path),
	}).Debug("Strategy config loaded")
	return a, nil
}

// newApp additionally wires the completion client and the orchestrator
func newApp() (*app, error) {
	a, err := newBaseApp()
	if err != nil {
		return nil, err
	}

	rc, err := redis.New(a.cfg)
	if err != nil {
		a.log.WithError(err).Warn("Redis unavailable, continuing without cache and shared rate limit")
		rc = redis.Disabled()
	}
	a.redis = rc

	client, err := llm.New(a.cfg, a.log,
		llm.WithCache(redis.NewCache(rc, "autoquant"), a.cfg.AI.CacheTTL),
		llm.WithSharedLimit(redis.NewRateLimiter(rc, "autoquant"), a.cfg.AI.RequestsPerMinute),
		llm.WithMetrics(a.metrics),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create completion client: %w", err)
	}
	a.llm = client

	predictor, err := pricing.NewPredictor(a.strategy.Pricing.Predictor)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create predictor: %w", err)
	}

	repo := s0_data.NewRepository(a.db.Pool, a.strategy.AIScreening.ExcludeNamePatterns, a.log)

	a.orch = brain.NewOrchestrator(brain.Deps{
		Universe:      repo,
		Bars:          repo,
		Market:        market.NewAnalyzer(repo, a.strategy.Market, a.log),
		AI:            aiscreen.NewScreener(client, a.strategy.AIScreening, a.log).WithMaxTokens(a.cfg.AI.MaxTokens),
		Technical:     technical.NewScreener(repo, a.strategy.Technical, a.log),
		Pricing:       pricing.NewCalculator(a.strategy.Pricing, predictor, a.log),
		Store:         a.store,
		Metrics:       a.metrics,
		Logger:        a.log,
		ConfigHash:    a.hash,
		StaleRunAfter: a.cfg.Pipeline.StaleRunAfter,
	})
	return a, nil
}

// Close releases the database and Redis connections
func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

func strategySource(path string) string {
	if path == "" {
		return "defaults"
	}
	return path
}
