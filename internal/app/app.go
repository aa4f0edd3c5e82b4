// Package app wires configuration, provider access and the analysis services
// into the shared core used by the divfolio commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/bobmcallan/divfolio/internal/clients/eodhd"
	"github.com/bobmcallan/divfolio/internal/common"
	"github.com/bobmcallan/divfolio/internal/gateway"
	"github.com/bobmcallan/divfolio/internal/interfaces"
	"github.com/bobmcallan/divfolio/internal/models"
	"github.com/bobmcallan/divfolio/internal/progress"
	"github.com/bobmcallan/divfolio/internal/scoring"
	"github.com/bobmcallan/divfolio/internal/services/allocation"
	"github.com/bobmcallan/divfolio/internal/services/analysis"
	"github.com/bobmcallan/divfolio/internal/services/universe"
	"github.com/bobmcallan/divfolio/internal/telemetry"
)

// App holds all initialized services and clients.
type App struct {
	Config      *common.Config
	Logger      *common.Logger
	Registry    *prometheus.Registry
	Metrics     *telemetry.Metrics
	EODHDClient interfaces.EODHDClient
	Caches      *gateway.Tiers
	Gateway     *gateway.Gateway
	Computer    *scoring.Computer
	Analysis    *analysis.Service
	Allocation  *allocation.Service
	Universe    *universe.Service
	Progress    *progress.Hub
	Telemetry   *telemetry.Server // nil unless [telemetry] listen is set
	StartupTime time.Time

	mu              sync.RWMutex
	latest          *models.AnalysisRun
	hubOnce         sync.Once
	schedulerCancel context.CancelFunc
	warmCacheCancel context.CancelFunc
	closeOnce       sync.Once
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// ResolveConfigPath picks the config file: the given path, DIVFOLIO_CONFIG,
// divfolio.toml next to the binary, then config/divfolio.toml.
func ResolveConfigPath(configPath string) string {
	if configPath == "" {
		configPath = os.Getenv("DIVFOLIO_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(getBinaryDir(), "divfolio.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/divfolio.toml" // fallback for development
		}
	}
	return configPath
}

// NewApp loads configuration and initializes every service.
// configPath may be empty, in which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	config, err := common.LoadConfig(ResolveConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewAppWithConfig(config, nil)
}

// NewAppWithConfig initializes every service from an already loaded config.
// A nil client builds the EODHD client from the [clients.eodhd] section.
func NewAppWithConfig(config *common.Config, client interfaces.EODHDClient) (*App, error) {
	startupStart := time.Now()

	if config == nil {
		return nil, errors.New("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := common.NewLoggerFromConfig(config.Logging)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(registry)

	if client == nil {
		if config.Clients.EODHD.APIKey == "" {
			logger.Warn().Msg("EODHD API key not configured - provider calls will fail")
		}
		client = eodhd.NewClient(config.Clients.EODHD.APIKey,
			eodhd.WithBaseURL(config.Clients.EODHD.BaseURL),
			eodhd.WithTimeout(config.Clients.EODHD.GetTimeout()),
			eodhd.WithLogger(logger),
		)
	}

	caches := gateway.NewTiers(
		config.Gateway.GetShortCacheTTL(),
		config.Gateway.GetLongCacheTTL(),
		gateway.WithStoreMetrics(metrics),
	)
	gw := gateway.NewGateway(client, caches, gateway.OptionsFromConfig(config), logger, metrics)

	computer := scoring.NewComputer(scoring.ConfigFromCommon(config.Scoring))
	analysisService := analysis.NewService(gw, computer, analysis.SettingsFromConfig(config), logger, metrics)
	allocationService := allocation.NewService(allocation.SettingsFromConfig(config.Allocation), logger)
	universeService := universe.NewService(gw, config.Universe, logger)
	hub := progress.NewHub(logger)

	a := &App{
		Config:      config,
		Logger:      logger,
		Registry:    registry,
		Metrics:     metrics,
		EODHDClient: client,
		Caches:      caches,
		Gateway:     gw,
		Computer:    computer,
		Analysis:    analysisService,
		Allocation:  allocationService,
		Universe:    universeService,
		Progress:    hub,
		StartupTime: startupStart,
	}

	if config.Telemetry.Listen != "" {
		a.Telemetry = telemetry.NewServer(config.Telemetry.Listen, registry, hub, logger)
		a.Telemetry.SetRankingSource(a)
	}

	logger.Debug().Dur("startup", time.Since(startupStart)).Msg("App initialized")

	return a, nil
}

// RankRequest selects and configures one ranking run
type RankRequest struct {
	Symbols     []string // explicit symbols; empty resolves the universe
	Categories  []models.Category
	Concurrency int
	Years       int
	Progress    interfaces.ProgressFunc
}

// Symbols resolves the symbols a request analyzes.
func (a *App) Symbols(ctx context.Context, req RankRequest) ([]string, error) {
	if len(req.Symbols) == 0 {
		return a.Universe.Symbols(ctx, req.Categories)
	}
	symbols := analysis.Dedupe(req.Symbols)
	if len(req.Categories) == 0 {
		return symbols, nil
	}
	wanted := make(map[models.Category]bool, len(req.Categories))
	for _, c := range req.Categories {
		wanted[c] = true
	}
	out := symbols[:0]
	for _, sym := range symbols {
		if wanted[models.CategorizeSymbol(sym)] {
			out = append(out, sym)
		}
	}
	return out, nil
}

// Rank analyzes the requested symbols and returns the run with its results
// ordered by score. Progress is published on the hub as well as forwarded to
// req.Progress. A cancelled run still returns its partial ranking.
func (a *App) Rank(ctx context.Context, req RankRequest) (*models.AnalysisRun, error) {
	symbols, err := a.Symbols(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve symbols: %w", err)
	}

	a.startHub()
	runID := uuid.NewString()
	run, err := a.Analysis.Analyze(ctx, symbols, interfaces.AnalyzeOptions{
		RunID:       runID,
		Concurrency: req.Concurrency,
		Years:       req.Years,
		Progress:    a.Progress.Sink(runID, len(symbols), req.Progress),
	})
	if err != nil {
		return nil, err
	}
	analysis.Rank(run.Results)

	if !run.Cancelled {
		a.mu.Lock()
		a.latest = run
		a.mu.Unlock()
	}
	return run, nil
}

// LatestRun returns the most recent ranking that ran to completion.
func (a *App) LatestRun() (*models.AnalysisRun, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.latest, a.latest != nil
}

// AllocateOptions adds report sections to an allocation
type AllocateOptions struct {
	ProjectYears int  // zero skips the income projection
	Reinvest     bool // reinvest dividends in the projection
	Calendar     bool
	HistoryYears int // zero skips the income history
}

// Report is an allocated portfolio with its derived views
type Report struct {
	Portfolio  *models.Portfolio              `json:"portfolio"`
	Summary    models.PortfolioSummary        `json:"summary"`
	Projection []models.IncomeProjection      `json:"projection,omitempty"`
	Calendar   []models.DividendCalendarMonth `json:"calendar,omitempty"`
	History    *models.IncomeHistory          `json:"history,omitempty"`
}

// Allocate builds a portfolio from ranked results and the requested views.
func (a *App) Allocate(ranked []models.MetricsResult, req interfaces.AllocationRequest, opts AllocateOptions) (*Report, error) {
	portfolio, err := a.Allocation.Allocate(ranked, req)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Portfolio: portfolio,
		Summary:   allocation.Summarize(portfolio),
	}
	if opts.ProjectYears > 0 {
		report.Projection = allocation.ProjectIncome(portfolio, opts.ProjectYears, opts.Reinvest, a.Config.Scoring.CAGRClamp)
	}
	if opts.Calendar || opts.HistoryYears > 0 {
		history := allocation.HistoryFromResults(ranked)
		now := time.Now()
		if opts.Calendar {
			report.Calendar = allocation.DividendCalendar(portfolio, history, now)
		}
		if opts.HistoryYears > 0 {
			h := allocation.IncomeHistory(portfolio, history, opts.HistoryYears, now)
			report.History = &h
		}
	}
	return report, nil
}

// startHub runs the progress event loop once per App.
func (a *App) startHub() {
	a.hubOnce.Do(func() {
		go a.Progress.Run()
	})
}

// StartTelemetry serves metrics, health, progress and the latest ranking in
// the background. It is a no-op without a listen address.
func (a *App) StartTelemetry() {
	if a.Telemetry == nil {
		return
	}
	a.startHub()
	go func() {
		if err := a.Telemetry.Start(); err != nil {
			a.Logger.Error().Err(err).Msg("Telemetry server failed")
		}
	}()
}

// StartWarmCache prefetches reference data for the universe in the background.
func (a *App) StartWarmCache(categories []models.Category) {
	warmCtx, warmCancel := context.WithTimeout(context.Background(), 5*time.Minute)
	a.warmCacheCancel = warmCancel
	go func() {
		defer warmCancel()
		warmCache(warmCtx, a.Universe, a.Gateway, categories, a.Logger)
	}()
}

// StartRankScheduler re-ranks the universe every interval until Close.
// onRun, when set, receives every completed run.
func (a *App) StartRankScheduler(req RankRequest, interval time.Duration, onRun func(*models.AnalysisRun)) {
	schedulerCtx, schedulerCancel := context.WithCancel(context.Background())
	a.schedulerCancel = schedulerCancel
	go startRankScheduler(schedulerCtx, a, req, interval, onRun, a.Logger)
}

// Close releases all resources held by the App.
// Shutdown order: cancel scheduler, cancel warm cache, stop telemetry, stop hub.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		if a.schedulerCancel != nil {
			a.schedulerCancel()
		}
		if a.warmCacheCancel != nil {
			a.warmCacheCancel()
		}
		if a.Telemetry != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := a.Telemetry.Shutdown(ctx); err != nil {
				a.Logger.Warn().Err(err).Msg("Telemetry server shutdown failed")
			}
			cancel()
		}
		a.Progress.Stop()
	})
}
