package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/divfolio/internal/app"
	"github.com/bobmcallan/divfolio/internal/models"
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeString(w io.Writer, s string) {
	io.WriteString(w, s)
}

// newTable returns a tabwriter over sb with the layout every table shares
func newTable(sb *strings.Builder) *tabwriter.Writer {
	return tabwriter.NewWriter(sb, 0, 0, 2, ' ', 0)
}

// formatRanking formats the top limit results of a run; limit 0 prints all.
func formatRanking(run *models.AnalysisRun, limit int) string {
	var sb strings.Builder

	results := run.Results
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	if len(results) == 0 {
		sb.WriteString("No symbols could be ranked.\n")
	} else {
		tw := newTable(&sb)
		fmt.Fprintln(tw, "#\tSymbol\tName\tCategory\tPrice\tYield %\tAvg Yield %\tConsistency %\tCAGR %\tScore")
		for i, r := range results {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.2f\t%.2f\t%.2f\t%.0f\t%.2f\t%.2f\n",
				i+1, r.Symbol, truncate(r.Name, 28), r.Category, r.Price,
				r.TrailingYield, r.AverageYield, r.ConsistencyPct, r.DividendCAGR, r.Score)
		}
		tw.Flush()
	}

	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Ranked %d of %d symbols (%d failed, %d without dividends) in %s with %d workers\n",
		len(run.Results), run.Total, len(run.Failures), run.Skipped, run.Duration.Round(time.Millisecond), run.Workers))
	if limit > 0 && len(run.Results) > limit {
		sb.WriteString(fmt.Sprintf("Showing top %d; use --limit 0 for all\n", limit))
	}
	if run.Cancelled {
		sb.WriteString("Run cancelled: results are partial\n")
	}
	return sb.String()
}

// formatFailures lists dropped symbols grouped by failure kind
func formatFailures(failures []models.SymbolFailure) string {
	if len(failures) == 0 {
		return ""
	}
	sorted := make([]models.SymbolFailure, len(failures))
	copy(sorted, failures)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Kind != sorted[j].Kind {
			return sorted[i].Kind < sorted[j].Kind
		}
		return sorted[i].Symbol < sorted[j].Symbol
	})

	var sb strings.Builder
	sb.WriteString("\nDropped symbols\n\n")
	tw := newTable(&sb)
	fmt.Fprintln(tw, "Symbol\tReason\tDetail")
	for _, f := range sorted {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Symbol, f.Kind, truncate(f.Message, 60))
	}
	tw.Flush()
	return sb.String()
}

// formatReport formats an allocation with whichever views were requested
func formatReport(r *app.Report) string {
	var sb strings.Builder
	p := r.Portfolio

	sb.WriteString("Portfolio\n\n")
	tw := newTable(&sb)
	fmt.Fprintln(tw, "Symbol\tCategory\tLot\tQty\tPrice\tInvested\tWeight %\tYield %\tAnnual Income")
	fallback := false
	for _, e := range p.Entries {
		mark := ""
		if e.MinLotFallback {
			mark = " *"
			fallback = true
		}
		fmt.Fprintf(tw, "%s%s\t%s\t%d\t%d\t%.2f\t%s\t%.2f\t%.2f\t%s\n",
			e.Symbol, mark, e.Category, e.LotSize, e.Quantity, e.Price,
			formatMoney(e.InvestedValue), e.PortfolioPercent, e.TrailingYield, formatMoney(e.EstimatedAnnualIncome))
	}
	tw.Flush()
	if fallback {
		sb.WriteString("* bought one lot: the score share was smaller than a lot\n")
	}

	sb.WriteString("\n")
	tw = newTable(&sb)
	fmt.Fprintf(tw, "Capital\t%s\n", formatMoney(p.Capital))
	fmt.Fprintf(tw, "Invested\t%s\n", formatMoney(p.TotalInvested))
	fmt.Fprintf(tw, "Uninvested\t%s\n", formatMoney(p.Uninvested))
	fmt.Fprintf(tw, "Annual income\t%s\n", formatMoney(p.AnnualIncome))
	fmt.Fprintf(tw, "Monthly income\t%s\n", formatMoney(p.MonthlyIncome))
	fmt.Fprintf(tw, "Average yield\t%.2f%%\n", r.Summary.AverageYield)
	fmt.Fprintf(tw, "Weighted yield\t%.2f%%\n", r.Summary.WeightedYield)
	fmt.Fprintf(tw, "Largest position\t%s\n", r.Summary.LargestPosition)
	fmt.Fprintf(tw, "Candidates\t%d eligible, %d held\n", p.Candidates, len(p.Entries))
	tw.Flush()
	if len(p.DroppedSymbols) > 0 {
		sb.WriteString(fmt.Sprintf("Dropped (under one lot): %s\n", strings.Join(p.DroppedSymbols, ", ")))
	}

	sb.WriteString("\nBy category\n\n")
	tw = newTable(&sb)
	fmt.Fprintln(tw, "Category\tAssets\tInvested\tShare %")
	for _, c := range models.AllCategories {
		if x, ok := r.Summary.ByCategory[c]; ok {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%.1f\n", c, x.Count, formatMoney(x.Invested), x.Percent)
		}
	}
	tw.Flush()

	sectors := make([]string, 0, len(r.Summary.BySector))
	for s := range r.Summary.BySector {
		sectors = append(sectors, s)
	}
	sort.Strings(sectors)
	sb.WriteString("\nBy sector\n\n")
	tw = newTable(&sb)
	fmt.Fprintln(tw, "Sector\tAssets\tInvested\tShare %")
	for _, s := range sectors {
		x := r.Summary.BySector[s]
		fmt.Fprintf(tw, "%s\t%d\t%s\t%.1f\n", s, x.Count, formatMoney(x.Invested), x.Percent)
	}
	tw.Flush()

	if len(r.Projection) > 0 {
		sb.WriteString("\nProjected income\n\n")
		tw = newTable(&sb)
		fmt.Fprintln(tw, "Year\tAnnual\tMonthly\tCumulative")
		for _, y := range r.Projection {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", y.Year, formatMoney(y.AnnualIncome), formatMoney(y.MonthlyIncome), formatMoney(y.Cumulative))
		}
		tw.Flush()
	}

	if len(r.Calendar) > 0 {
		sb.WriteString("\nDividend calendar (average of the last two years)\n\n")
		tw = newTable(&sb)
		fmt.Fprintln(tw, "Month\tIncome\tPayers")
		for _, m := range r.Calendar {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", m.Month.String()[:3], formatMoney(m.AverageIncome), strings.Join(m.Symbols, " "))
		}
		tw.Flush()
	}

	if r.History != nil {
		sb.WriteString("\nIncome history\n\n")
		tw = newTable(&sb)
		fmt.Fprintln(tw, "Year\tIncome")
		for _, y := range r.History.Annual {
			fmt.Fprintf(tw, "%s\t%s\n", y.Period, formatMoney(y.Income))
		}
		fmt.Fprintf(tw, "Total\t%s\n", formatMoney(r.History.Total))
		tw.Flush()
	}

	return sb.String()
}

// formatMoney renders an amount with two decimals and thousands separators
func formatMoney(d decimal.Decimal) string {
	s := d.StringFixed(2)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}

	var b strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return sign + b.String() + frac
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
