// Package models defines data structures for divfolio
package models

import (
	"fmt"
	"strings"
)

// Category is the instrument class derived from a symbol
type Category string

const (
	CategoryEquity            Category = "Equity"
	CategoryRealEstateFund    Category = "RealEstateFund"
	CategoryDepositaryReceipt Category = "DepositaryReceipt"
	CategoryIndexFund         Category = "IndexFund"
)

// AllCategories lists every category in display order
var AllCategories = []Category{
	CategoryEquity,
	CategoryRealEstateFund,
	CategoryDepositaryReceipt,
	CategoryIndexFund,
}

// knownIndexFunds end in "11" like real-estate funds but track an index.
var knownIndexFunds = map[string]struct{}{
	"BOVA11": {}, "SMAL11": {}, "IVVB11": {}, "SPXI11": {}, "MATB11": {}, "PIBB11": {},
	"ISUS11": {}, "FIND11": {}, "DIVO11": {}, "BOVX11": {}, "GOVE11": {}, "BRAX11": {},
	"XBOV11": {}, "BOVV11": {}, "WRLD11": {}, "ACWI11": {}, "DEFI11": {}, "HASH11": {},
	"FMID11": {},
}

// BaseSymbol strips the exchange suffix and normalises case: "petr4.sa" -> "PETR4".
func BaseSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if i := strings.LastIndex(s, "."); i >= 0 {
		s = s[:i]
	}
	return s
}

// CategorizeSymbol derives the category from the symbol alone. It is total:
// any string, including malformed ones, maps to exactly one category.
func CategorizeSymbol(symbol string) Category {
	base := BaseSymbol(symbol)

	if _, ok := knownIndexFunds[base]; ok {
		return CategoryIndexFund
	}
	switch {
	case strings.HasSuffix(base, "11"):
		return CategoryRealEstateFund
	case strings.HasSuffix(base, "34"), strings.HasSuffix(base, "35"):
		return CategoryDepositaryReceipt
	default:
		return CategoryEquity
	}
}

// ParseCategory accepts a category name or a common short alias.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "equity", "stock", "acao", "ação":
		return CategoryEquity, nil
	case "realestatefund", "reit", "fii":
		return CategoryRealEstateFund, nil
	case "depositaryreceipt", "bdr", "dr":
		return CategoryDepositaryReceipt, nil
	case "indexfund", "etf":
		return CategoryIndexFund, nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}
