package universe

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/divfolio/internal/common"
	"github.com/bobmcallan/divfolio/internal/gateway"
	"github.com/bobmcallan/divfolio/internal/models"
)

type mockGateway struct {
	symbols []*models.Symbol
	err     error
	calls   int
}

func (m *mockGateway) FetchSnapshot(context.Context, string) (*models.Snapshot, error) {
	return nil, nil
}
func (m *mockGateway) FetchDividends(context.Context, string, int) (*models.DividendRecord, error) {
	return nil, nil
}
func (m *mockGateway) CheckLiquidity(context.Context, string) error { return nil }
func (m *mockGateway) FetchExchangeSymbols(_ context.Context, _ string) ([]*models.Symbol, error) {
	m.calls++
	return m.symbols, m.err
}
func (m *mockGateway) ValidateYield(string, float64) error { return nil }

func TestBuiltin(t *testing.T) {
	symbols := Builtin()
	require.Greater(t, len(symbols), 400)
	assert.True(t, sort.StringsAreSorted(symbols))

	v := gateway.DefaultValidator
	for _, sym := range symbols {
		_, err := v.Symbol(sym)
		assert.NoError(t, err, "bundled symbol %s", sym)
	}
	assert.Contains(t, symbols, "TAEE11.SA")
	assert.Contains(t, symbols, "BOVA11.SA")
}

func TestSymbols_BuiltinCategoryFilter(t *testing.T) {
	svc := NewService(nil, common.NewDefaultConfig().Universe, common.NewSilentLogger())

	all, err := svc.Symbols(context.Background(), nil)
	require.NoError(t, err)

	funds, err := svc.Symbols(context.Background(), []models.Category{models.CategoryRealEstateFund})
	require.NoError(t, err)
	require.NotEmpty(t, funds)
	assert.Less(t, len(funds), len(all))
	for _, sym := range funds {
		assert.Equal(t, models.CategoryRealEstateFund, models.CategorizeSymbol(sym), sym)
	}

	etfs, err := svc.Symbols(context.Background(), []models.Category{models.CategoryIndexFund})
	require.NoError(t, err)
	assert.Contains(t, etfs, "BOVA11.SA")
	assert.NotContains(t, funds, "BOVA11.SA")
}

func TestSymbols_Provider(t *testing.T) {
	gw := &mockGateway{symbols: []*models.Symbol{
		{Code: "PETR4"},
		{Code: "petr4"},
		{Code: "HGLG11"},
		{Code: "AB"},
		{Code: "BRK-B"},
	}}
	cfg := common.UniverseConfig{Source: SourceProvider, Exchange: "SA", Suffix: ".SA"}
	svc := NewService(gw, cfg, common.NewSilentLogger())

	got, err := svc.Symbols(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"HGLG11.SA", "PETR4.SA"}, got)
	assert.Equal(t, 1, gw.calls)
}

func TestSymbols_ProviderError(t *testing.T) {
	gw := &mockGateway{err: errors.New("down")}
	svc := NewService(gw, common.UniverseConfig{Source: SourceProvider, Exchange: "SA"}, nil)

	_, err := svc.Symbols(context.Background(), nil)
	assert.Error(t, err)

	_, err = NewService(nil, common.UniverseConfig{Source: SourceProvider}, nil).Symbols(context.Background(), nil)
	assert.Error(t, err)

	_, err = NewService(nil, common.UniverseConfig{Source: "ftp"}, nil).Symbols(context.Background(), nil)
	assert.Error(t, err)
}
