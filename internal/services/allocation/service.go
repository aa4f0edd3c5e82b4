// Package allocation turns a ranked collection and a capital amount into a
// lot-rounded dividend portfolio.
package allocation

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/divfolio/internal/common"
	"github.com/bobmcallan/divfolio/internal/failure"
	"github.com/bobmcallan/divfolio/internal/interfaces"
	"github.com/bobmcallan/divfolio/internal/models"
)

var (
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)
)

// Settings holds the allocator defaults a request may override
type Settings struct {
	MaxAssets          int
	MinYield           float64 // percent
	MinCapital         float64
	MaxCapital         float64 // zero means unbounded
	DropUnderAllocated bool
	LotSize            interfaces.LotSizeFunc
}

// SettingsFromConfig maps the [allocation] config section
func SettingsFromConfig(cfg common.AllocationConfig) Settings {
	return Settings{
		MaxAssets:          cfg.MaxAssets,
		MinYield:           cfg.MinYieldFilter,
		MinCapital:         cfg.MinCapital,
		MaxCapital:         cfg.MaxCapital,
		DropUnderAllocated: cfg.UnderAllocation == "drop",
		LotSize:            LotSizes(cfg),
	}
}

// LotSizes returns the configured lot per category: 100 for equities and 1
// for everything else by default.
func LotSizes(cfg common.AllocationConfig) interfaces.LotSizeFunc {
	return func(c models.Category) int {
		return cfg.LotSizeFor(string(c))
	}
}

// Service implements AllocationService
type Service struct {
	settings Settings
	logger   *common.Logger
}

// NewService creates a new allocation service
func NewService(settings Settings, logger *common.Logger) *Service {
	if settings.MaxAssets < 1 {
		settings.MaxAssets = 15
	}
	if settings.LotSize == nil {
		settings.LotSize = LotSizes(common.AllocationConfig{LotSizes: map[string]int{string(models.CategoryEquity): 100}})
	}
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Service{settings: settings, logger: logger}
}

// Allocate distributes capital over the top-ranked eligible symbols in
// proportion to score, rounding each position down to whole lots. It is a
// pure function of its inputs. A position that rounds to zero buys one lot,
// or is dropped when the request asks for that.
func (s *Service) Allocate(ranked []models.MetricsResult, req interfaces.AllocationRequest) (*models.Portfolio, error) {
	if err := s.checkCapital(req.Capital); err != nil {
		return nil, err
	}

	minYield := s.settings.MinYield
	if req.MinYield != nil {
		minYield = *req.MinYield
	}
	maxAssets := req.MaxAssets
	if maxAssets < 1 {
		maxAssets = s.settings.MaxAssets
	}
	lotSize := req.LotSize
	if lotSize == nil {
		lotSize = s.settings.LotSize
	}
	drop := req.DropUnderAllocated || s.settings.DropUnderAllocated

	eligible := make([]models.MetricsResult, 0, len(ranked))
	for _, r := range ranked {
		if !usable(r) {
			s.logger.Warn().Str("symbol", r.Symbol).Msg("Skipping entry with unusable price, score or yield")
			continue
		}
		if r.TrailingYield >= minYield {
			eligible = append(eligible, r)
		}
	}
	if len(eligible) == 0 {
		return nil, failure.New(failure.NoEligibleAssets, "", "no symbol yields at least %.2f%%", minYield)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].Score != eligible[j].Score {
			return eligible[i].Score > eligible[j].Score
		}
		return eligible[i].Symbol < eligible[j].Symbol
	})
	selected := eligible
	if len(selected) > maxAssets {
		selected = selected[:maxAssets]
	}

	capital := decimal.NewFromFloat(req.Capital)
	scoreSum := 0.0
	for _, r := range selected {
		scoreSum += r.Score
	}

	portfolio := &models.Portfolio{
		Capital:    capital,
		Candidates: len(eligible),
	}

	for _, r := range selected {
		weight := 1 / float64(len(selected))
		if scoreSum > 0 {
			weight = r.Score / scoreSum
		}

		lot := lotSize(r.Category)
		if lot < 1 {
			lot = 1
		}
		lotD := decimal.NewFromInt(int64(lot))
		price := decimal.NewFromFloat(r.Price)
		allocated := capital.Mul(decimal.NewFromFloat(weight))

		quantity := allocated.Div(price).Div(lotD).Floor().Mul(lotD).IntPart()
		fallback := false
		if quantity <= 0 {
			if drop {
				portfolio.DroppedSymbols = append(portfolio.DroppedSymbols, r.Symbol)
				continue
			}
			quantity = int64(lot)
			fallback = true
		}

		invested := price.Mul(decimal.NewFromInt(quantity))
		if !invested.IsPositive() {
			portfolio.DroppedSymbols = append(portfolio.DroppedSymbols, r.Symbol)
			continue
		}
		annual := invested.Mul(decimal.NewFromFloat(r.TrailingYield)).Div(hundred)

		portfolio.Entries = append(portfolio.Entries, models.AllocationEntry{
			Symbol:                 r.Symbol,
			Name:                   r.Name,
			Category:               r.Category,
			Sector:                 r.Sector,
			Price:                  r.Price,
			Score:                  r.Score,
			TrailingYield:          r.TrailingYield,
			DividendCAGR:           r.DividendCAGR,
			LotSize:                lot,
			Quantity:               quantity,
			MinLotFallback:         fallback,
			TargetWeight:           weight,
			InvestedValue:          invested,
			EstimatedAnnualIncome:  annual,
			EstimatedMonthlyIncome: annual.Div(twelve),
		})
		portfolio.TotalInvested = portfolio.TotalInvested.Add(invested)
		portfolio.AnnualIncome = portfolio.AnnualIncome.Add(annual)
	}

	if len(portfolio.Entries) == 0 {
		return nil, failure.New(failure.NoEligibleAssets, "", "capital %.2f buys no whole lot of any eligible symbol", req.Capital)
	}

	// percentages are of the realized total, not the target capital
	for i := range portfolio.Entries {
		e := &portfolio.Entries[i]
		e.PortfolioPercent = e.InvestedValue.Div(portfolio.TotalInvested).Mul(hundred).InexactFloat64()
	}
	portfolio.MonthlyIncome = portfolio.AnnualIncome.Div(twelve)
	portfolio.Uninvested = capital.Sub(portfolio.TotalInvested)

	s.logger.Info().
		Int("assets", len(portfolio.Entries)).
		Int("candidates", portfolio.Candidates).
		Str("invested", portfolio.TotalInvested.StringFixed(2)).
		Str("annual_income", portfolio.AnnualIncome.StringFixed(2)).
		Msg("Portfolio allocated")

	return portfolio, nil
}

func (s *Service) checkCapital(capital float64) error {
	switch {
	case math.IsNaN(capital) || math.IsInf(capital, 0):
		return failure.New(failure.InsufficientCapital, "", "capital is not a finite number")
	case capital <= 0:
		return failure.New(failure.InsufficientCapital, "", "capital must be positive, got %.2f", capital)
	case capital < s.settings.MinCapital:
		return failure.New(failure.InsufficientCapital, "", "capital %.2f below minimum %.2f", capital, s.settings.MinCapital)
	case s.settings.MaxCapital > 0 && capital > s.settings.MaxCapital:
		return failure.New(failure.InsufficientCapital, "", "capital %.2f above maximum %.2f", capital, s.settings.MaxCapital)
	}
	return nil
}

// usable rejects entries no ranking should have produced
func usable(r models.MetricsResult) bool {
	for _, v := range []float64{r.Price, r.Score, r.TrailingYield} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return r.Price > 0 && r.Score >= 0 && r.TrailingYield >= 0
}

var _ interfaces.AllocationService = (*Service)(nil)
