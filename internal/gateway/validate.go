package gateway

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/bobmcallan/divfolio/internal/failure"
	"github.com/bobmcallan/divfolio/internal/models"
)

// symbolPattern is a 4-12 character alphanumeric code with an optional
// exchange suffix: PETR4, TAEE11.SA, MRSA3B.SA.
var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{4,12}(\.[A-Z]{1,4})?$`)

// Validator holds the acceptance bounds for provider data
type Validator struct {
	Suffix   string  // required exchange suffix, e.g. ".SA"; empty accepts any
	MinPrice float64 // smallest acceptable unit price
	MinYield float64 // percent
	MaxYield float64 // percent
}

// DefaultValidator mirrors the default configuration
var DefaultValidator = Validator{Suffix: ".SA", MinPrice: 0.01, MinYield: 0.1, MaxYield: 40}

// Symbol normalises a symbol and checks its syntax.
func (v Validator) Symbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return "", failure.New(failure.InvalidSymbol, symbol, "empty symbol")
	}
	if !symbolPattern.MatchString(s) {
		return "", failure.New(failure.InvalidSymbol, symbol, "malformed symbol")
	}
	if v.Suffix != "" && !strings.HasSuffix(s, strings.ToUpper(v.Suffix)) {
		return "", failure.New(failure.InvalidSymbol, symbol, "symbol must end with %s", v.Suffix)
	}
	return s, nil
}

// Price rejects non-finite prices and prices below the minimum
func (v Validator) Price(symbol string, price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return failure.New(failure.InvalidPrice, symbol, "price is not a finite number")
	}
	if price <= 0 || price < v.MinPrice {
		return failure.New(failure.InvalidPrice, symbol, "price %.4f below minimum %.4f", price, v.MinPrice)
	}
	return nil
}

// Yield rejects trailing yields outside [MinYield, MaxYield]. Out-of-band
// values are never clamped; the symbol is dropped.
func (v Validator) Yield(symbol string, yieldPct float64) error {
	if math.IsNaN(yieldPct) || math.IsInf(yieldPct, 0) {
		return failure.New(failure.InvalidYield, symbol, "yield is not a finite number")
	}
	if yieldPct < v.MinYield || yieldPct > v.MaxYield {
		return failure.New(failure.InvalidYield, symbol, "yield %.2f%% outside [%.2f%%, %.2f%%]", yieldPct, v.MinYield, v.MaxYield)
	}
	return nil
}

// cleanPayments drops non-positive or non-finite amounts and orders by date.
func cleanPayments(payments []models.DividendPayment) []models.DividendPayment {
	out := make([]models.DividendPayment, 0, len(payments))
	for _, p := range payments {
		if p.Amount <= 0 || math.IsNaN(p.Amount) || math.IsInf(p.Amount, 0) || p.Date.IsZero() {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}
