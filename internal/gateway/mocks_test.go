package gateway

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bobmcallan/divfolio/internal/common"
	"github.com/bobmcallan/divfolio/internal/interfaces"
	"github.com/bobmcallan/divfolio/internal/models"
)

// --- Mocks ---

type mockEODHDClient struct {
	quoteFn        func(ctx context.Context, ticker string) (*models.RealTimeQuote, error)
	eodFn          func(ctx context.Context, ticker string, params interfaces.EODParams) (*models.EODResponse, error)
	fundamentalsFn func(ctx context.Context, ticker string) (*models.Fundamentals, error)
	dividendsFn    func(ctx context.Context, ticker string, from time.Time) ([]models.DividendPayment, error)
	symbolsFn      func(ctx context.Context, exchange string) ([]*models.Symbol, error)

	mu    sync.Mutex
	calls map[string]int
	total int64
}

func (m *mockEODHDClient) record(op string) {
	atomic.AddInt64(&m.total, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[op]++
}

func (m *mockEODHDClient) count(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *mockEODHDClient) totalCalls() int64 {
	return atomic.LoadInt64(&m.total)
}

func (m *mockEODHDClient) GetRealTimeQuote(ctx context.Context, ticker string) (*models.RealTimeQuote, error) {
	m.record(opQuote)
	if m.quoteFn != nil {
		return m.quoteFn(ctx, ticker)
	}
	return &models.RealTimeQuote{Code: ticker, Close: 10}, nil
}

func (m *mockEODHDClient) GetEOD(ctx context.Context, ticker string, opts ...interfaces.EODOption) (*models.EODResponse, error) {
	m.record(opEOD)
	var params interfaces.EODParams
	for _, o := range opts {
		o(&params)
	}
	if m.eodFn != nil {
		return m.eodFn(ctx, ticker, params)
	}
	return &models.EODResponse{}, nil
}

func (m *mockEODHDClient) GetFundamentals(ctx context.Context, ticker string) (*models.Fundamentals, error) {
	m.record(opFundamentals)
	if m.fundamentalsFn != nil {
		return m.fundamentalsFn(ctx, ticker)
	}
	return &models.Fundamentals{Symbol: ticker}, nil
}

func (m *mockEODHDClient) GetDividends(ctx context.Context, ticker string, from time.Time) ([]models.DividendPayment, error) {
	m.record(opDividends)
	if m.dividendsFn != nil {
		return m.dividendsFn(ctx, ticker, from)
	}
	return nil, nil
}

func (m *mockEODHDClient) GetExchangeSymbols(ctx context.Context, exchange string) ([]*models.Symbol, error) {
	m.record(opExchange)
	if m.symbolsFn != nil {
		return m.symbolsFn(ctx, exchange)
	}
	return nil, nil
}

// fakeClock is a settable clock shared by the gateway and its caches
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testOptions is fast: a generous rate, millisecond retries, breaker off
func testOptions(clock *fakeClock) Options {
	return Options{
		RateLimit: 1000,
		Validator: DefaultValidator,
		Retry:     RetryPolicy{Attempts: 3, Step: time.Millisecond},
		Liquidity: LiquidityPolicy{MinDaysTrading: 60, MinVolume: 1000, Lookback: 120 * 24 * time.Hour},
		Now:       clock.Now,
	}
}

func newTestGateway(client *mockEODHDClient, clock *fakeClock, opts Options) *Gateway {
	caches := NewTiers(common.FreshnessQuote, common.FreshnessReference, WithClock(clock.Now))
	return NewGateway(client, caches, opts, common.NewSilentLogger(), nil)
}
