package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/divfolio/internal/app"
	"github.com/bobmcallan/divfolio/internal/failure"
	"github.com/bobmcallan/divfolio/internal/models"
)

// providerStub serves the EODHD endpoints for a fixed set of symbols: price
// 10 and one payment of amount a year for five years.
func providerStub(t *testing.T, amounts map[string]float64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 2 {
			http.NotFound(w, r)
			return
		}
		endpoint, sym := parts[0], parts[1]
		amount, known := amounts[sym]
		if !known {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		switch endpoint {
		case "real-time":
			fmt.Fprintf(w, `{"code":%q,"timestamp":%d,"close":10,"previousClose":9.9,"volume":120000}`, sym, time.Now().Unix())
		case "fundamentals":
			fmt.Fprintf(w, `{"General":{"Code":%q,"Name":"%s Holding","Sector":"Utilities"},"Highlights":{"PERatio":"7.5"}}`, sym, sym)
		case "div":
			var rows []string
			now := time.Now()
			for k := 4; k >= 0; k-- {
				date := now.AddDate(-k, 0, -30).Format("2006-01-02")
				rows = append(rows, fmt.Sprintf(`{"date":%q,"value":%g,"currency":"BRL"}`, date, amount))
			}
			fmt.Fprintf(w, "[%s]", strings.Join(rows, ","))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// execute runs the CLI against the stub provider with an empty config file.
func execute(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DIVFOLIO_EODHD_BASE_URL", srv.URL)
	t.Setenv("EODHD_API_KEY", "test-key")
	t.Setenv("DIVFOLIO_RATE_LIMIT", "1000")

	base := []string{"--config", filepath.Join(t.TempDir(), "missing.toml"), "--log-level", "disabled", "--no-banner"}
	var stdout, stderr bytes.Buffer
	cmd := newRootCmdWithIO(&stdout, &stderr)
	cmd.SetArgs(append(args, base...))
	err := cmd.Execute()
	return stdout.String(), err
}

func TestRankCommand_JSON(t *testing.T) {
	srv := providerStub(t, map[string]float64{"TAEE11.SA": 1.0, "BBAS3.SA": 1.5})

	out, err := execute(t, srv, "rank", "--symbols", "TAEE11.SA,BBAS3.SA,GONE3.SA", "--json")
	require.NoError(t, err)

	var run models.AnalysisRun
	require.NoError(t, json.Unmarshal([]byte(out), &run))
	require.Len(t, run.Results, 2)
	assert.Equal(t, "BBAS3.SA", run.Results[0].Symbol)
	assert.InDelta(t, 15.0, run.Results[0].TrailingYield, 1e-9)
	assert.Equal(t, "TAEE11.SA", run.Results[1].Symbol)
	require.Len(t, run.Failures, 1)
	assert.Equal(t, "GONE3.SA", run.Failures[0].Symbol)
}

func TestRankCommand_Table(t *testing.T) {
	srv := providerStub(t, map[string]float64{"TAEE11.SA": 1.0, "BBAS3.SA": 1.5})

	out, err := execute(t, srv, "rank", "--symbols", "TAEE11.SA,BBAS3.SA,GONE3.SA", "--output", "table", "--limit", "1", "--show-failures")
	require.NoError(t, err)

	assert.Contains(t, out, "BBAS3.SA")
	assert.Contains(t, out, "Ranked 2 of 3 symbols")
	assert.Contains(t, out, "Showing top 1")
	assert.Contains(t, out, "Dropped symbols")
	assert.Contains(t, out, string(failure.DataUnavailable))
}

func TestAllocateCommand(t *testing.T) {
	srv := providerStub(t, map[string]float64{"TAEE11.SA": 1.0, "BBAS3.SA": 1.5})

	out, err := execute(t, srv, "allocate", "--capital", "10000", "--symbols", "TAEE11.SA,BBAS3.SA",
		"--output", "table", "--project-years", "3", "--calendar", "--history-years", "2")
	require.NoError(t, err)

	for _, section := range []string{"Portfolio", "By category", "Projected income", "Dividend calendar", "Income history"} {
		assert.Contains(t, out, section)
	}

	out, err = execute(t, srv, "allocate", "--capital", "10000", "--symbols", "TAEE11.SA,BBAS3.SA", "--json", "--lot-size", "10")
	require.NoError(t, err)
	var report app.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.NotEmpty(t, report.Portfolio.Entries)
	for _, e := range report.Portfolio.Entries {
		assert.Equal(t, 10, e.LotSize)
		assert.Zero(t, e.Quantity%10)
	}
	assert.Len(t, report.Projection, 5)
}

func TestAllocateCommand_Failures(t *testing.T) {
	srv := providerStub(t, map[string]float64{"TAEE11.SA": 1.0})

	_, err := execute(t, srv, "allocate", "--capital", "10", "--symbols", "TAEE11.SA")
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))

	_, err = execute(t, srv, "allocate", "--capital", "10000", "--symbols", "TAEE11.SA", "--min-yield", "30")
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrNoEligibleAssets))

	_, err = execute(t, srv, "allocate", "--symbols", "TAEE11.SA")
	assert.Error(t, err, "--capital is required")
}

func TestAllocateCommand_ZeroMinYield(t *testing.T) {
	srv := providerStub(t, map[string]float64{"LOWY3.SA": 0.3})

	_, err := execute(t, srv, "allocate", "--capital", "10000", "--symbols", "LOWY3.SA", "--json")
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrNoEligibleAssets), "a 3 percent yield is under the configured filter")

	out, err := execute(t, srv, "allocate", "--capital", "10000", "--symbols", "LOWY3.SA", "--json", "--min-yield", "0")
	require.NoError(t, err)
	var report app.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Portfolio.Entries, 1)
	assert.Equal(t, "LOWY3.SA", report.Portfolio.Entries[0].Symbol)
}

func TestUniverseCommand(t *testing.T) {
	srv := providerStub(t, nil)

	out, err := execute(t, srv, "universe", "--categories", "etf", "--json")
	require.NoError(t, err)

	var symbols []string
	require.NoError(t, json.Unmarshal([]byte(out), &symbols))
	assert.Contains(t, symbols, "BOVA11.SA")
	for _, sym := range symbols {
		assert.Equal(t, models.CategoryIndexFund, models.CategorizeSymbol(sym))
	}

	_, err = execute(t, srv, "universe", "--categories", "crypto")
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	srv := providerStub(t, nil)

	out, err := execute(t, srv, "version", "--json")
	require.NoError(t, err)
	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Contains(t, v, "version")

	out, err = execute(t, srv, "version", "--output", "table")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "divfolio "))

	_, err = execute(t, srv, "version", "--output", "xml")
	assert.Error(t, err)
}

func TestServeCommand_RequiresListen(t *testing.T) {
	srv := providerStub(t, nil)

	_, err := execute(t, srv, "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen")

	_, err = execute(t, srv, "serve", "--interval", "0s", "--listen", "127.0.0.1:0")
	assert.Error(t, err)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 130, exitCode(fmt.Errorf("allocation skipped: %w", errRunCancelled)))
	assert.Equal(t, 2, exitCode(failure.New(failure.InsufficientCapital, "", "too little")))
	assert.Equal(t, 2, exitCode(failure.New(failure.NoEligibleAssets, "", "none")))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
}

func TestCategoriesFlag(t *testing.T) {
	var f categoriesFlag
	require.NoError(t, f.Set("fii, etf"))
	require.NoError(t, f.Set("equity"))
	assert.Equal(t, []models.Category{models.CategoryRealEstateFund, models.CategoryIndexFund, models.CategoryEquity}, f.values)
	assert.Equal(t, "RealEstateFund,IndexFund,Equity", f.String())
	assert.Error(t, f.Set("bonds"))
}
