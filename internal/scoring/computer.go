package scoring

import (
	"fmt"
	"math"
	"time"

	"github.com/bobmcallan/divfolio/internal/common"
	"github.com/bobmcallan/divfolio/internal/interfaces"
	"github.com/bobmcallan/divfolio/internal/models"
)

// Weights are the composite score weights. They must sum to 1.
type Weights struct {
	Yield       float64
	Consistency float64
	Growth      float64
}

// Validate checks the weights are non-negative and sum to 1
func (w Weights) Validate() error {
	if w.Yield < 0 || w.Consistency < 0 || w.Growth < 0 {
		return fmt.Errorf("score weights must be non-negative: %+v", w)
	}
	if sum := w.Yield + w.Consistency + w.Growth; math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("score weights must sum to 1, got %.6f", sum)
	}
	return nil
}

// Config holds the scoring parameters
type Config struct {
	Weights   Weights
	CAGRClamp float64 // growth is clamped to [0, CAGRClamp] inside the score

	// Growth outside [CAGROutlierMin, CAGROutlierMax] is treated as a data
	// error and reported as 0.
	CAGROutlierMin float64
	CAGROutlierMax float64
}

// DefaultConfig is 40% yield, 30% consistency, 30% growth
var DefaultConfig = Config{
	Weights:        Weights{Yield: 0.4, Consistency: 0.3, Growth: 0.3},
	CAGRClamp:      20,
	CAGROutlierMin: -50,
	CAGROutlierMax: 100,
}

// ConfigFromCommon maps the [scoring] config section
func ConfigFromCommon(c common.ScoringConfig) Config {
	return Config{
		Weights: Weights{
			Yield:       c.YieldWeight,
			Consistency: c.ConsistencyWeight,
			Growth:      c.GrowthWeight,
		},
		CAGRClamp:      c.CAGRClamp,
		CAGROutlierMin: c.CAGROutlierMin,
		CAGROutlierMax: c.CAGROutlierMax,
	}
}

// Computer scores symbols
type Computer struct {
	cfg Config
	now func() time.Time
}

// NewComputer creates a new metrics computer
func NewComputer(cfg Config) *Computer {
	return &Computer{cfg: cfg, now: time.Now}
}

// Compute derives the dividend metrics of one symbol. It returns false when
// there is nothing to score: no usable price or no dividends in the window.
func (c *Computer) Compute(snapshot *models.Snapshot, dividends *models.DividendRecord, years int) (*models.MetricsResult, bool) {
	if snapshot == nil || !(snapshot.Price > 0) || math.IsInf(snapshot.Price, 0) {
		return nil, false
	}
	if dividends.Empty() {
		return nil, false
	}
	if years < 1 {
		years = 1
	}

	price := snapshot.Price
	yearly := dividends.YearlyTotals()

	trailing := finite(TrailingYield(dividends.Payments, price, c.now()))
	average := finite(AverageYield(yearly, price))
	consistency := Consistency(len(yearly), years)

	cagr := finite(DividendCAGR(yearly))
	if cagr < c.cfg.CAGROutlierMin || cagr > c.cfg.CAGROutlierMax {
		cagr = 0
	}

	return &models.MetricsResult{
		Symbol:             snapshot.Symbol,
		Name:               snapshot.DisplayName,
		Category:           models.CategorizeSymbol(snapshot.Symbol),
		Sector:             snapshot.Sector,
		Price:              price,
		TrailingYield:      trailing,
		AverageYield:       average,
		ConsistencyPct:     consistency,
		DividendCAGR:       cagr,
		YearsWithDividends: len(yearly),
		Score:              Score(trailing, consistency, cagr, c.cfg.Weights, c.cfg.CAGRClamp),
		PERatio:            snapshot.PERatio,
		PayoutRatio:        snapshot.PayoutRatio,
		DividendHistory:    dividends.Payments,
	}, true
}

var _ interfaces.MetricsComputer = (*Computer)(nil)
