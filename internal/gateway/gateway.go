// Package gateway turns the rate-limited, unreliable market-data provider into
// validated, cached per-symbol facts. Every provider call goes through one
// shared limiter, a bounded retry loop and a circuit breaker; results land in
// a short-lived tier (prices, dividends) or a long-lived tier (reference data).
// All returned errors are *failure.Error.
package gateway

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bobmcallan/divfolio/internal/clients/eodhd"
	"github.com/bobmcallan/divfolio/internal/common"
	"github.com/bobmcallan/divfolio/internal/failure"
	"github.com/bobmcallan/divfolio/internal/interfaces"
	"github.com/bobmcallan/divfolio/internal/models"
	"github.com/bobmcallan/divfolio/internal/telemetry"
)

// Provider operation names, used in cache keys, logs and metrics
const (
	opQuote        = "real-time"
	opFundamentals = "fundamentals"
	opDividends    = "dividends"
	opEOD          = "eod"
	opExchange     = "exchange-symbols"
	opSnapshot     = "snapshot"
	opLiquidity    = "liquidity"
)

// errLimiterWait marks a limiter wait that could not finish before the deadline
var errLimiterWait = errors.New("rate limiter wait exceeds deadline")

// LiquidityPolicy configures the optional liquidity gate
type LiquidityPolicy struct {
	MinDaysTrading int
	MinVolume      float64
	Lookback       time.Duration
}

// Options configures a Gateway
type Options struct {
	RateLimit float64
	Validator Validator
	Retry     RetryPolicy
	Breaker   BreakerSettings
	Liquidity LiquidityPolicy
	Now       func() time.Time
}

// OptionsFromConfig maps the [gateway] config section onto Options
func OptionsFromConfig(cfg *common.Config) Options {
	g := cfg.Gateway
	return Options{
		RateLimit: g.RateLimit,
		Validator: Validator{
			Suffix:   cfg.Universe.Suffix,
			MinPrice: g.MinPrice,
			MinYield: g.MinYield,
			MaxYield: g.MaxYield,
		},
		Retry: RetryPolicy{
			Attempts: g.Retry.Attempts,
			Step:     g.Retry.GetStep(),
			Linear:   g.Retry.Backoff == "linear",
		},
		Breaker: BreakerSettings{
			Enabled:             g.Breaker.Enabled,
			ConsecutiveFailures: uint32(g.Breaker.ConsecutiveFailures),
			OpenTimeout:         g.Breaker.GetOpenTimeout(),
		},
		Liquidity: LiquidityPolicy{
			MinDaysTrading: g.Liquidity.MinDaysTrading,
			MinVolume:      g.Liquidity.MinVolume,
			Lookback:       g.Liquidity.GetLookback(),
		},
	}
}

// Gateway implements interfaces.MarketGateway
type Gateway struct {
	client    interfaces.EODHDClient
	caches    *Tiers
	limiter   *Limiter
	retry     RetryPolicy
	breaker   *breaker
	validator Validator
	liquidity LiquidityPolicy
	logger    *common.Logger
	metrics   *telemetry.Metrics
	now       func() time.Time
}

// NewGateway creates a gateway over client using caches.
func NewGateway(client interfaces.EODHDClient, caches *Tiers, opts Options, logger *common.Logger, metrics *telemetry.Metrics) *Gateway {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5
	}
	if opts.Retry.Attempts < 1 {
		opts.Retry = DefaultRetryPolicy
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Liquidity.MinDaysTrading <= 0 {
		opts.Liquidity.MinDaysTrading = 60
	}
	if opts.Liquidity.Lookback <= 0 {
		opts.Liquidity.Lookback = 120 * 24 * time.Hour
	}

	return &Gateway{
		client:    client,
		caches:    caches,
		limiter:   NewLimiter(opts.RateLimit),
		retry:     opts.Retry,
		breaker:   newBreaker("eodhd", opts.Breaker, logger, metrics),
		validator: opts.Validator,
		liquidity: opts.Liquidity,
		logger:    logger,
		metrics:   metrics,
		now:       opts.Now,
	}
}

// FetchSnapshot returns the validated price and reference view of a symbol.
// Malformed symbols fail before any I/O and leave no cache entry.
func (g *Gateway) FetchSnapshot(ctx context.Context, symbol string) (*models.Snapshot, error) {
	sym, err := g.validator.Symbol(symbol)
	if err != nil {
		return nil, err
	}

	v, _, err := g.caches.Short.GetOrLoad(ctx, Key(opSnapshot, sym), func(ctx context.Context) (interface{}, error) {
		var quote *models.RealTimeQuote
		if err := g.call(ctx, opQuote, sym, func(ctx context.Context) error {
			var err error
			quote, err = g.client.GetRealTimeQuote(ctx, sym)
			return err
		}); err != nil {
			return nil, err
		}

		price := quote.Close
		if price <= 0 && quote.PreviousClose > 0 {
			price = quote.PreviousClose
		}
		if price <= 0 {
			// no trade yet today; the last daily close stands in
			if last, err := g.lastClose(ctx, sym); err == nil && last > 0 {
				price = last
			} else if err != nil {
				g.logger.Debug().Str("symbol", sym).Err(err).Msg("Daily close fallback failed")
			}
		}
		if err := g.validator.Price(sym, price); err != nil {
			return nil, err
		}

		snap := &models.Snapshot{
			Symbol:      sym,
			DisplayName: models.BaseSymbol(sym),
			Price:       price,
			FetchedAt:   g.now(),
		}

		fundamentals, err := g.FetchFundamentals(ctx, sym)
		switch {
		case err == nil:
			if fundamentals.Name != "" {
				snap.DisplayName = fundamentals.Name
			}
			snap.Sector = fundamentals.Sector
			snap.PERatio = fundamentals.PE
			snap.PayoutRatio = fundamentals.PayoutRatio
		case failure.KindOf(err) == failure.DataUnavailable:
			// reference data is optional for scoring
			g.logger.Debug().Str("symbol", sym).Err(err).Msg("Fundamentals unavailable, continuing with price only")
		default:
			return nil, err
		}

		return snap, nil
	})
	if err != nil {
		return nil, g.asFailure(ctx, opSnapshot, sym, 0, err)
	}
	return v.(*models.Snapshot), nil
}

// lastClose returns the most recent positive daily close, zero when the
// recent bars carry none.
func (g *Gateway) lastClose(ctx context.Context, sym string) (float64, error) {
	var bars *models.EODResponse
	if err := g.call(ctx, opEOD, sym, func(ctx context.Context) error {
		var err error
		bars, err = g.client.GetEOD(ctx, sym, interfaces.WithLimit(5))
		return err
	}); err != nil {
		return 0, err
	}

	var latest models.EODBar
	for _, bar := range bars.Data {
		if bar.Close > 0 && bar.Date.After(latest.Date) {
			latest = bar
		}
	}
	return latest.Close, nil
}

// FetchFundamentals returns reference data through the long-lived tier
func (g *Gateway) FetchFundamentals(ctx context.Context, symbol string) (*models.Fundamentals, error) {
	sym, err := g.validator.Symbol(symbol)
	if err != nil {
		return nil, err
	}

	v, _, err := g.caches.Long.GetOrLoad(ctx, Key(opFundamentals, sym), func(ctx context.Context) (interface{}, error) {
		var f *models.Fundamentals
		err := g.call(ctx, opFundamentals, sym, func(ctx context.Context) error {
			var err error
			f, err = g.client.GetFundamentals(ctx, sym)
			return err
		})
		return f, err
	})
	if err != nil {
		return nil, g.asFailure(ctx, opFundamentals, sym, 0, err)
	}
	return v.(*models.Fundamentals), nil
}

// DividendWindow is how far back a years-long history is requested. The
// extra 100 days catch payments declared late in the first year.
func DividendWindow(years int) time.Duration {
	return time.Duration(years*365+100) * 24 * time.Hour
}

// FetchDividends returns the trailing dividend history over years. A symbol
// that never paid yields an empty record, not an error.
func (g *Gateway) FetchDividends(ctx context.Context, symbol string, years int) (*models.DividendRecord, error) {
	sym, err := g.validator.Symbol(symbol)
	if err != nil {
		return nil, err
	}
	if years < 1 {
		years = 1
	}

	key := Key(opDividends, sym, strconv.Itoa(years))
	v, _, err := g.caches.Short.GetOrLoad(ctx, key, func(ctx context.Context) (interface{}, error) {
		now := g.now()
		from := now.Add(-DividendWindow(years))

		var payments []models.DividendPayment
		if err := g.call(ctx, opDividends, sym, func(ctx context.Context) error {
			var err error
			payments, err = g.client.GetDividends(ctx, sym, from)
			return err
		}); err != nil {
			return nil, err
		}

		return &models.DividendRecord{
			Symbol:    sym,
			Payments:  cleanPayments(payments),
			FetchedAt: now,
		}, nil
	})
	if err != nil {
		return nil, g.asFailure(ctx, opDividends, sym, 0, err)
	}
	return v.(*models.DividendRecord), nil
}

// liquidityStats summarises recent trading
type liquidityStats struct {
	TradingDays   int
	AverageVolume float64
}

// CheckLiquidity fails with Illiquid when the symbol traded on fewer than
// MinDaysTrading days in the lookback window or its average volume is below
// MinVolume. No bars at all is InsufficientHistory.
func (g *Gateway) CheckLiquidity(ctx context.Context, symbol string) error {
	sym, err := g.validator.Symbol(symbol)
	if err != nil {
		return err
	}

	key := Key(opLiquidity, sym, g.liquidity.Lookback.String())
	v, _, err := g.caches.Short.GetOrLoad(ctx, key, func(ctx context.Context) (interface{}, error) {
		now := g.now()
		var resp *models.EODResponse
		if err := g.call(ctx, opEOD, sym, func(ctx context.Context) error {
			var err error
			resp, err = g.client.GetEOD(ctx, sym, interfaces.WithDateRange(now.Add(-g.liquidity.Lookback), now))
			return err
		}); err != nil {
			return nil, err
		}

		stats := &liquidityStats{}
		var total float64
		for _, bar := range resp.Data {
			if bar.Volume > 0 {
				stats.TradingDays++
			}
			total += float64(bar.Volume)
		}
		if n := len(resp.Data); n > 0 {
			stats.AverageVolume = total / float64(n)
		}
		return stats, nil
	})
	if err != nil {
		return g.asFailure(ctx, opLiquidity, sym, 0, err)
	}

	stats := v.(*liquidityStats)
	switch {
	case stats.TradingDays == 0:
		return failure.New(failure.InsufficientHistory, sym, "no trading in the last %s", g.liquidity.Lookback)
	case stats.TradingDays < g.liquidity.MinDaysTrading:
		return failure.New(failure.Illiquid, sym, "traded on %d days, need %d", stats.TradingDays, g.liquidity.MinDaysTrading)
	case stats.AverageVolume < g.liquidity.MinVolume:
		return failure.New(failure.Illiquid, sym, "average volume %.0f below %.0f", stats.AverageVolume, g.liquidity.MinVolume)
	}
	return nil
}

// FetchExchangeSymbols lists an exchange through the long-lived tier
func (g *Gateway) FetchExchangeSymbols(ctx context.Context, exchange string) ([]*models.Symbol, error) {
	if exchange == "" {
		return nil, failure.New(failure.DataUnavailable, "", "exchange code is required")
	}

	v, _, err := g.caches.Long.GetOrLoad(ctx, Key(opExchange, exchange), func(ctx context.Context) (interface{}, error) {
		var symbols []*models.Symbol
		err := g.call(ctx, opExchange, exchange, func(ctx context.Context) error {
			var err error
			symbols, err = g.client.GetExchangeSymbols(ctx, exchange)
			return err
		})
		return symbols, err
	})
	if err != nil {
		return nil, g.asFailure(ctx, opExchange, exchange, 0, err)
	}
	return v.([]*models.Symbol), nil
}

// ValidateYield applies the trailing-yield acceptance band
func (g *Gateway) ValidateYield(symbol string, trailingYield float64) error {
	return g.validator.Yield(symbol, trailingYield)
}

// call performs one provider operation under the limiter, breaker and retry
// policy. Only transient errors are retried.
func (g *Gateway) call(ctx context.Context, op, symbol string, fn func(context.Context) error) error {
	attempts, err := g.retry.retry(ctx, func() error {
		start := time.Now()
		if err := g.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return backoff.Permanent(errLimiterWait)
		}

		err := g.breaker.execute(func() error { return fn(ctx) })
		g.metrics.ProviderCall(op, outcomeLabel(err), time.Since(start))

		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil, isBreakerRejection(err), !eodhd.IsTemporary(err):
			return backoff.Permanent(err)
		default:
			return err
		}
	}, func(err error, wait time.Duration) {
		g.metrics.ProviderRetry(op)
		g.logger.Debug().
			Str("symbol", symbol).
			Str("operation", op).
			Dur("wait", wait).
			Err(err).
			Msg("Retrying provider call")
	})
	if err == nil {
		return nil
	}
	return g.classify(ctx, op, symbol, attempts, err)
}

// asFailure passes failures through and classifies anything else, such as a
// waiter's context ending while another caller loads the key.
func (g *Gateway) asFailure(ctx context.Context, op, symbol string, attempts int, err error) error {
	if failure.KindOf(err) != "" {
		return err
	}
	return g.classify(ctx, op, symbol, attempts, err)
}

func (g *Gateway) classify(ctx context.Context, op, symbol string, attempts int, err error) error {
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return failure.Wrap(failure.Cancelled, symbol, err, "%s cancelled", op)
	case ctx.Err() != nil || errors.Is(err, errLimiterWait) || errors.Is(err, context.DeadlineExceeded):
		return failure.Wrap(failure.Timeout, symbol, err, "%s deadline exceeded after %d attempt(s)", op, attempts)
	case isBreakerRejection(err):
		return failure.Wrap(failure.DataUnavailable, symbol, err, "%s rejected, provider circuit open", op)
	case eodhd.IsTemporary(err):
		return failure.Wrap(failure.RetryExhausted, symbol, err, "%s failed after %d attempt(s)", op, attempts)
	default:
		return failure.Wrap(failure.DataUnavailable, symbol, err, "%s returned no usable data", op)
	}
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case isBreakerRejection(err):
		return "rejected"
	case eodhd.IsTemporary(err):
		return "transient"
	default:
		return "error"
	}
}

var _ interfaces.MarketGateway = (*Gateway)(nil)
