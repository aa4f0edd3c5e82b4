// Package analysis fans a symbol universe out over a bounded worker pool,
// scoring each symbol independently and collecting the survivors.
package analysis

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bobmcallan/divfolio/internal/common"
	"github.com/bobmcallan/divfolio/internal/failure"
	"github.com/bobmcallan/divfolio/internal/interfaces"
	"github.com/bobmcallan/divfolio/internal/models"
	"github.com/bobmcallan/divfolio/internal/telemetry"
)

// Settings configures the orchestrator
type Settings struct {
	Concurrency         int
	SequentialThreshold int // inputs this small run on a single worker
	TaskTimeout         time.Duration
	RunTimeout          time.Duration // zero means none
	Years               int
	LiquidityGate       bool
}

// SettingsFromConfig maps the config sections the orchestrator reads
func SettingsFromConfig(cfg *common.Config) Settings {
	return Settings{
		Concurrency:         cfg.Analysis.Concurrency,
		SequentialThreshold: cfg.Analysis.SequentialThreshold,
		TaskTimeout:         cfg.Analysis.GetTaskTimeout(),
		RunTimeout:          cfg.Analysis.GetRunTimeout(),
		Years:               cfg.Scoring.Years,
		LiquidityGate:       cfg.Gateway.Liquidity.Enabled,
	}
}

// Service implements AnalysisService
type Service struct {
	gateway  interfaces.MarketGateway
	computer interfaces.MetricsComputer
	settings Settings
	logger   *common.Logger
	metrics  *telemetry.Metrics
}

// NewService creates a new analysis service
func NewService(gateway interfaces.MarketGateway, computer interfaces.MetricsComputer, settings Settings, logger *common.Logger, metrics *telemetry.Metrics) *Service {
	if settings.Concurrency < 1 {
		settings.Concurrency = 10
	}
	if settings.TaskTimeout <= 0 {
		settings.TaskTimeout = 30 * time.Second
	}
	if settings.Years < 1 {
		settings.Years = 5
	}
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Service{
		gateway:  gateway,
		computer: computer,
		settings: settings,
		logger:   logger,
		metrics:  metrics,
	}
}

// outcome is what one task reports to the collector
type outcome struct {
	symbol  string
	result  *models.MetricsResult
	skipped bool
	err     error
}

// Analyze scores every symbol and returns the survivors in completion order.
// A failing symbol only removes itself. Cancelling ctx stops dispatching;
// tasks already running finish or hit their own deadline, and the partial run
// is returned with Cancelled set.
func (s *Service) Analyze(ctx context.Context, symbols []string, opts interfaces.AnalyzeOptions) (*models.AnalysisRun, error) {
	symbols = Dedupe(symbols)

	run := &models.AnalysisRun{
		RunID:     opts.RunID,
		StartedAt: time.Now(),
		Total:     len(symbols),
		Results:   make([]models.MetricsResult, 0, len(symbols)),
	}
	if run.RunID == "" {
		run.RunID = uuid.NewString()
	}

	years := opts.Years
	if years < 1 {
		years = s.settings.Years
	}
	run.Workers = s.workerCount(len(symbols), opts.Concurrency)

	progress := opts.Progress
	if progress == nil {
		progress = func(float64, string) {}
	}

	if len(symbols) == 0 {
		progress(1, "Nothing to analyze")
		return run, nil
	}

	if s.settings.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.settings.RunTimeout)
		defer cancel()
	}

	s.logger.Info().
		Str("run_id", run.RunID).
		Int("symbols", len(symbols)).
		Int("workers", run.Workers).
		Int("years", years).
		Msg("Analysis started")

	jobs := make(chan string)
	results := make(chan outcome, run.Workers)
	undispatched := make(chan []string, 1)

	// dispatcher
	go func() {
		defer close(jobs)
		for i, sym := range symbols {
			if ctx.Err() != nil {
				undispatched <- symbols[i:]
				return
			}
			select {
			case jobs <- sym:
			case <-ctx.Done():
				undispatched <- symbols[i:]
				return
			}
		}
		undispatched <- nil
	}()

	var wg sync.WaitGroup
	for i := 0; i < run.Workers; i++ {
		wg.Add(1)
		name := fmt.Sprintf("analysis-worker-%d", i)
		s.safeGo(name, func() {
			defer wg.Done()
			for sym := range jobs {
				s.metrics.WorkerBusy(1)
				results <- s.runTask(ctx, sym, years)
				s.metrics.WorkerBusy(-1)
			}
		}, nil)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	// the calling goroutine is the single collector
	completed := 0
	for o := range results {
		completed++
		s.collect(run, o)

		ratio := float64(completed) / float64(run.Total)
		s.metrics.SetProgress(ratio)
		progress(ratio, fmt.Sprintf("Analyzed %s (%d/%d)", o.symbol, completed, run.Total))
	}

	if rest := <-undispatched; len(rest) > 0 {
		run.Cancelled = true
		for _, sym := range rest {
			run.Failures = append(run.Failures, models.SymbolFailure{
				Symbol:  sym,
				Kind:    string(failure.Cancelled),
				Message: "run cancelled before dispatch",
			})
			s.metrics.SymbolOutcome(string(failure.Cancelled))
		}
		progress(float64(completed)/float64(run.Total), fmt.Sprintf("Cancelled after %d/%d", completed, run.Total))
	}

	run.Duration = time.Since(run.StartedAt)
	s.metrics.RunFinished(run.Duration)

	s.logger.Info().
		Str("run_id", run.RunID).
		Int("ranked", len(run.Results)).
		Int("failed", len(run.Failures)).
		Int("skipped", run.Skipped).
		Bool("cancelled", run.Cancelled).
		Dur("duration", run.Duration).
		Msg("Analysis finished")

	return run, nil
}

func (s *Service) collect(run *models.AnalysisRun, o outcome) {
	switch {
	case o.err != nil:
		kind := failure.KindOf(o.err)
		if !failure.IsSymbolLocal(o.err) {
			// untyped and run-level errors from one task still drop only that symbol
			kind = failure.DataUnavailable
		}
		run.Failures = append(run.Failures, models.SymbolFailure{
			Symbol:  o.symbol,
			Kind:    string(kind),
			Message: o.err.Error(),
		})
		s.metrics.SymbolOutcome(string(kind))
		s.logger.Debug().Str("symbol", o.symbol).Str("kind", string(kind)).Err(o.err).Msg("Symbol dropped")
	case o.skipped:
		run.Skipped++
		s.metrics.SymbolOutcome("no_dividends")
	default:
		run.Results = append(run.Results, *o.result)
		s.metrics.SymbolOutcome("ranked")
	}
}

// runTask analyzes one symbol under its own deadline. The task context is
// detached from run cancellation so in-flight work is not torn down.
func (s *Service) runTask(ctx context.Context, symbol string, years int) outcome {
	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.settings.TaskTimeout)
	defer cancel()

	done := make(chan outcome, 1)
	s.safeGo("analyze-"+symbol, func() {
		done <- s.analyzeSymbol(taskCtx, symbol, years)
	}, func(r interface{}) {
		done <- outcome{symbol: symbol, err: failure.New(failure.DataUnavailable, symbol, "analysis panicked: %v", r)}
	})

	select {
	case o := <-done:
		return o
	case <-taskCtx.Done():
		select {
		case o := <-done:
			return o
		default:
		}
		return outcome{
			symbol: symbol,
			err:    failure.Wrap(failure.Timeout, symbol, taskCtx.Err(), "analysis exceeded %s", s.settings.TaskTimeout),
		}
	}
}

func (s *Service) analyzeSymbol(ctx context.Context, symbol string, years int) outcome {
	if s.settings.LiquidityGate {
		if err := s.gateway.CheckLiquidity(ctx, symbol); err != nil {
			return outcome{symbol: symbol, err: err}
		}
	}

	snap, err := s.gateway.FetchSnapshot(ctx, symbol)
	if err != nil {
		return outcome{symbol: symbol, err: err}
	}

	dividends, err := s.gateway.FetchDividends(ctx, snap.Symbol, years)
	if err != nil {
		return outcome{symbol: symbol, err: err}
	}

	result, ok := s.computer.Compute(snap, dividends, years)
	if !ok {
		return outcome{symbol: symbol, skipped: true}
	}

	if err := s.gateway.ValidateYield(result.Symbol, result.TrailingYield); err != nil {
		return outcome{symbol: symbol, err: err}
	}

	return outcome{symbol: symbol, result: result}
}

// workerCount applies the configured concurrency, collapsing to one worker
// for small inputs and never exceeding the number of symbols.
func (s *Service) workerCount(n, requested int) int {
	workers := requested
	if workers < 1 {
		workers = s.settings.Concurrency
	}
	if n <= s.settings.SequentialThreshold {
		workers = 1
	}
	if workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

// safeGo launches a goroutine with panic recovery and logging.
func (s *Service) safeGo(name string, fn func(), onPanic func(r interface{})) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("Recovered from panic in analysis goroutine")
				if onPanic != nil {
					onPanic(r)
				}
			}
		}()
		fn()
	}()
}

// Dedupe drops blank and repeated symbols, keeping first occurrences
func Dedupe(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		key := strings.ToUpper(strings.TrimSpace(sym))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, sym)
	}
	return out
}

// Rank orders results by score descending, ties broken by symbol ascending.
// It sorts in place and returns results.
func Rank(results []models.MetricsResult) []models.MetricsResult {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Symbol < results[j].Symbol
	})
	return results
}

var _ interfaces.AnalysisService = (*Service)(nil)
