// Package universe resolves the symbols an analysis run covers.
package universe

import (
	"bufio"
	"context"
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/bobmcallan/divfolio/internal/common"
	"github.com/bobmcallan/divfolio/internal/interfaces"
	"github.com/bobmcallan/divfolio/internal/models"
)

// Universe sources
const (
	SourceBuiltin  = "builtin"
	SourceProvider = "provider"
)

//go:embed b3_symbols.txt
var builtinList string

// Builtin returns the bundled B3 symbol list, sorted
func Builtin() []string {
	var out []string
	sc := bufio.NewScanner(strings.NewReader(builtinList))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, strings.ToUpper(line))
	}
	sort.Strings(out)
	return out
}

// Service implements UniverseService
type Service struct {
	gateway interfaces.MarketGateway
	config  common.UniverseConfig
	logger  *common.Logger
}

// NewService creates a new universe service. gateway may be nil when the
// source is builtin.
func NewService(gateway interfaces.MarketGateway, config common.UniverseConfig, logger *common.Logger) *Service {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Service{gateway: gateway, config: config, logger: logger}
}

// Symbols returns the deduplicated, sorted universe restricted to
// categories. An empty filter keeps every category.
func (s *Service) Symbols(ctx context.Context, categories []models.Category) ([]string, error) {
	var raw []string
	switch s.config.Source {
	case SourceProvider:
		listed, err := s.fromProvider(ctx)
		if err != nil {
			return nil, err
		}
		raw = listed
	case SourceBuiltin, "":
		raw = Builtin()
	default:
		return nil, fmt.Errorf("unknown universe source %q", s.config.Source)
	}

	want := make(map[models.Category]bool, len(categories))
	for _, c := range categories {
		want[c] = true
	}

	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, sym := range raw {
		if seen[sym] {
			continue
		}
		seen[sym] = true
		if len(want) > 0 && !want[models.CategorizeSymbol(sym)] {
			continue
		}
		out = append(out, sym)
	}
	sort.Strings(out)

	s.logger.Debug().
		Str("source", s.config.Source).
		Int("listed", len(raw)).
		Int("selected", len(out)).
		Msg("Universe resolved")

	return out, nil
}

// fromProvider lists the configured exchange and appends the symbol suffix
func (s *Service) fromProvider(ctx context.Context) ([]string, error) {
	if s.gateway == nil {
		return nil, fmt.Errorf("provider universe requires a market gateway")
	}
	listed, err := s.gateway.FetchExchangeSymbols(ctx, s.config.Exchange)
	if err != nil {
		return nil, fmt.Errorf("failed to list exchange %s: %w", s.config.Exchange, err)
	}

	out := make([]string, 0, len(listed))
	for _, l := range listed {
		code := strings.ToUpper(strings.TrimSpace(l.Code))
		if !plainCode(code) {
			continue
		}
		out = append(out, code+strings.ToUpper(s.config.Suffix))
	}
	return out, nil
}

// plainCode accepts 4-12 character alphanumeric codes
func plainCode(code string) bool {
	if len(code) < 4 || len(code) > 12 {
		return false
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

var _ interfaces.UniverseService = (*Service)(nil)
