package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/divfolio/internal/clients/eodhd"
	"github.com/bobmcallan/divfolio/internal/common"
	"github.com/bobmcallan/divfolio/internal/failure"
	"github.com/bobmcallan/divfolio/internal/interfaces"
	"github.com/bobmcallan/divfolio/internal/models"
)

// fakeClient serves a fixed price and five years of dividends per symbol.
type fakeClient struct {
	prices  map[string]float64
	amounts map[string]float64 // per-payment dividend
	calls   atomic.Int64
}

func (f *fakeClient) GetRealTimeQuote(_ context.Context, ticker string) (*models.RealTimeQuote, error) {
	f.calls.Add(1)
	price, ok := f.prices[ticker]
	if !ok {
		return nil, &eodhd.APIError{StatusCode: http.StatusNotFound, Message: "not found", Endpoint: "/real-time"}
	}
	return &models.RealTimeQuote{Code: ticker, Close: price, Timestamp: time.Now()}, nil
}

func (f *fakeClient) GetEOD(context.Context, string, ...interfaces.EODOption) (*models.EODResponse, error) {
	f.calls.Add(1)
	return &models.EODResponse{}, nil
}

func (f *fakeClient) GetFundamentals(_ context.Context, ticker string) (*models.Fundamentals, error) {
	f.calls.Add(1)
	return &models.Fundamentals{Symbol: ticker, Name: ticker + " SA", Sector: "Utilities"}, nil
}

func (f *fakeClient) GetDividends(_ context.Context, ticker string, from time.Time) ([]models.DividendPayment, error) {
	f.calls.Add(1)
	amount, ok := f.amounts[ticker]
	if !ok {
		return nil, nil
	}
	var out []models.DividendPayment
	now := time.Now()
	for k := 4; k >= 0; k-- {
		date := now.AddDate(-k, 0, -30)
		if date.Before(from) {
			continue
		}
		out = append(out, models.DividendPayment{Date: date, Amount: amount})
	}
	return out, nil
}

func (f *fakeClient) GetExchangeSymbols(context.Context, string) ([]*models.Symbol, error) {
	f.calls.Add(1)
	return nil, nil
}

func testConfig() *common.Config {
	cfg := common.NewDefaultConfig()
	cfg.Logging.Level = "disabled"
	cfg.Gateway.RateLimit = 1000
	cfg.Analysis.Concurrency = 4
	cfg.Analysis.SequentialThreshold = 1
	return cfg
}

func newTestApp(t *testing.T) (*App, *fakeClient) {
	t.Helper()
	client := &fakeClient{
		prices:  map[string]float64{"TAEE11.SA": 10, "BBAS3.SA": 10, "HGLG11.SA": 100},
		amounts: map[string]float64{"TAEE11.SA": 1.0, "BBAS3.SA": 1.5, "HGLG11.SA": 9},
	}
	a, err := NewAppWithConfig(testConfig(), client)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, client
}

func TestNewAppWithConfig_InitializesAllServices(t *testing.T) {
	a, _ := newTestApp(t)

	assert.NotNil(t, a.Config)
	assert.NotNil(t, a.Logger)
	assert.NotNil(t, a.Registry)
	assert.NotNil(t, a.Metrics)
	assert.NotNil(t, a.EODHDClient)
	assert.NotNil(t, a.Caches)
	assert.NotNil(t, a.Gateway)
	assert.NotNil(t, a.Computer)
	assert.NotNil(t, a.Analysis)
	assert.NotNil(t, a.Allocation)
	assert.NotNil(t, a.Universe)
	assert.NotNil(t, a.Progress)
	assert.Nil(t, a.Telemetry, "telemetry is off without a listen address")
	assert.False(t, a.StartupTime.IsZero())

	_, ok := a.LatestRun()
	assert.False(t, ok)
}

func TestNewAppWithConfig_Telemetry(t *testing.T) {
	cfg := testConfig()
	cfg.Telemetry.Listen = "127.0.0.1:0"

	a, err := NewAppWithConfig(cfg, &fakeClient{})
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.Telemetry)
}

func TestNewAppWithConfig_Invalid(t *testing.T) {
	_, err := NewAppWithConfig(nil, nil)
	assert.Error(t, err)

	cfg := testConfig()
	cfg.Scoring.GrowthWeight = 0.9
	_, err = NewAppWithConfig(cfg, &fakeClient{})
	assert.Error(t, err)
}

func TestNewApp_LoadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "divfolio.toml")
	content := `
environment = "test"

[logging]
level = "disabled"

[analysis]
concurrency = 3

[allocation]
max_assets = 7
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	a, err := NewApp(path)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "test", a.Config.Environment)
	assert.Equal(t, 3, a.Config.Analysis.Concurrency)
	assert.Equal(t, 7, a.Config.Allocation.MaxAssets)
	assert.Equal(t, 15, common.NewDefaultConfig().Allocation.MaxAssets)
}

func TestResolveConfigPath(t *testing.T) {
	assert.Equal(t, "explicit.toml", ResolveConfigPath("explicit.toml"))

	t.Setenv("DIVFOLIO_CONFIG", "/etc/divfolio/custom.toml")
	assert.Equal(t, "/etc/divfolio/custom.toml", ResolveConfigPath(""))

	t.Setenv("DIVFOLIO_CONFIG", "")
	got := ResolveConfigPath("")
	assert.Contains(t, []string{"config/divfolio.toml", filepath.Join(getBinaryDir(), "divfolio.toml")}, got)
}

func TestSymbols_ExplicitWithCategories(t *testing.T) {
	a, _ := newTestApp(t)

	got, err := a.Symbols(context.Background(), RankRequest{
		Symbols: []string{"TAEE11.SA", "BBAS3.SA", "taee11.sa", " "},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"TAEE11.SA", "BBAS3.SA"}, got)

	got, err = a.Symbols(context.Background(), RankRequest{
		Symbols:    []string{"TAEE11.SA", "BBAS3.SA", "HGLG11.SA"},
		Categories: []models.Category{models.CategoryEquity},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"BBAS3.SA"}, got)
}

func TestSymbols_Universe(t *testing.T) {
	a, client := newTestApp(t)

	got, err := a.Symbols(context.Background(), RankRequest{Categories: []models.Category{models.CategoryIndexFund}})
	require.NoError(t, err)
	assert.Contains(t, got, "BOVA11.SA")
	assert.Zero(t, client.calls.Load(), "the builtin universe needs no provider calls")
}

func TestRank_OrdersByScoreAndPublishesProgress(t *testing.T) {
	a, _ := newTestApp(t)

	var mu sync.Mutex
	var ratios []float64
	run, err := a.Rank(context.Background(), RankRequest{
		Symbols: []string{"TAEE11.SA", "BBAS3.SA", "MISSING3.SA"},
		Progress: func(ratio float64, _ string) {
			mu.Lock()
			ratios = append(ratios, ratio)
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	require.Len(t, run.Results, 2)
	assert.Equal(t, "BBAS3.SA", run.Results[0].Symbol)
	assert.Equal(t, "TAEE11.SA", run.Results[1].Symbol)
	assert.Greater(t, run.Results[0].Score, run.Results[1].Score)
	require.Len(t, run.Failures, 1)
	assert.Equal(t, "MISSING3.SA", run.Failures[0].Symbol)
	assert.Equal(t, string(failure.DataUnavailable), run.Failures[0].Kind)

	mu.Lock()
	require.NotEmpty(t, ratios)
	assert.Equal(t, 1.0, ratios[len(ratios)-1])
	mu.Unlock()

	latest, ok := a.LatestRun()
	require.True(t, ok)
	assert.Equal(t, run.RunID, latest.RunID)

	require.Eventually(t, func() bool {
		e, ok := a.Progress.Last()
		return ok && e.RunID == run.RunID && e.Completed == 3
	}, time.Second, 10*time.Millisecond)
}

func TestRank_CancelledRunIsNotLatest(t *testing.T) {
	a, _ := newTestApp(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	run, err := a.Rank(ctx, RankRequest{Symbols: []string{"TAEE11.SA", "BBAS3.SA", "HGLG11.SA"}})
	require.NoError(t, err)
	assert.True(t, run.Cancelled)

	_, ok := a.LatestRun()
	assert.False(t, ok)
}

func TestAllocate_Report(t *testing.T) {
	a, _ := newTestApp(t)

	run, err := a.Rank(context.Background(), RankRequest{Symbols: []string{"TAEE11.SA", "BBAS3.SA", "HGLG11.SA"}})
	require.NoError(t, err)
	require.Len(t, run.Results, 3)

	report, err := a.Allocate(run.Results, interfaces.AllocationRequest{Capital: 10000}, AllocateOptions{
		ProjectYears: 3,
		Reinvest:     true,
		Calendar:     true,
		HistoryYears: 2,
	})
	require.NoError(t, err)

	p := report.Portfolio
	require.NotEmpty(t, p.Entries)
	assert.Equal(t, len(p.Entries), report.Summary.Assets)
	for _, e := range p.Entries {
		assert.Zero(t, e.Quantity%int64(e.LotSize), "%s quantity %d not a multiple of lot %d", e.Symbol, e.Quantity, e.LotSize)
	}
	assert.Len(t, report.Projection, 3)
	assert.Len(t, report.Calendar, 12)
	require.NotNil(t, report.History)
	assert.True(t, report.History.Total.IsPositive())

	bare, err := a.Allocate(run.Results, interfaces.AllocationRequest{Capital: 10000}, AllocateOptions{})
	require.NoError(t, err)
	assert.Nil(t, bare.Projection)
	assert.Nil(t, bare.Calendar)
	assert.Nil(t, bare.History)
}

func TestAllocate_Failure(t *testing.T) {
	a, _ := newTestApp(t)

	_, err := a.Allocate(nil, interfaces.AllocationRequest{Capital: 10000}, AllocateOptions{})
	assert.True(t, errors.Is(err, failure.ErrNoEligibleAssets))

	_, err = a.Allocate(nil, interfaces.AllocationRequest{Capital: 10}, AllocateOptions{})
	assert.True(t, errors.Is(err, failure.ErrInsufficientCapital))
}

func TestClose_Idempotent(t *testing.T) {
	a, err := NewAppWithConfig(testConfig(), &fakeClient{})
	require.NoError(t, err)
	a.StartTelemetry()
	a.Close()
	a.Close()
}
