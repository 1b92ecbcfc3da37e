package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"
)

// Static prices used when the feed is unreachable. Deliberately coarse: they
// keep risk math usable during an outage, not accurate.
var fallbackUSD = map[string]float64{
	"ETH":  3000,
	"WETH": 3000,
	"WBTC": 60000,
	"USDC": 1,
	"USDT": 1,
	"DAI":  1,
}

type feedResponse struct {
	Coins map[string]struct {
		Price float64 `json:"price"`
	} `json:"coins"`
}

// Feed resolves USD prices per token symbol from an HTTP price API, with a
// short-lived cache in front and a static table behind.
type Feed struct {
	baseURL    string
	httpClient *http.Client
	cache      *ristretto.Cache
	cacheTTL   time.Duration
	logger     *zap.Logger
}

// NewFeed builds a feed against baseURL, which carries the full endpoint path
// (e.g. https://coins.llama.fi/prices/current); lookups append only the
// symbol. cacheTTL bounds how stale a served price may be.
func NewFeed(baseURL string, cacheTTL time.Duration, logger *zap.Logger) (*Feed, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1024,
		MaxCost:     256,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("price cache: %w", err)
	}
	return &Feed{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      cache,
		cacheTTL:   cacheTTL,
		logger:     logger,
	}, nil
}

// PriceUSD returns the USD price for a token symbol. Cache first, then the
// HTTP feed, then the static fallback table. Only an unknown symbol with no
// fallback is an error.
func (f *Feed) PriceUSD(ctx context.Context, symbol string) (float64, error) {
	symbol = strings.ToUpper(symbol)

	if cached, ok := f.cache.Get(symbol); ok {
		if value, ok := cached.(float64); ok {
			return value, nil
		}
	}

	value, err := f.fetch(ctx, symbol)
	if err == nil {
		f.cache.SetWithTTL(symbol, value, 1, f.cacheTTL)
		return value, nil
	}
	f.logger.Warn("price fetch failed, using fallback table", zap.String("symbol", symbol), zap.Error(err))

	if value, ok := fallbackUSD[symbol]; ok {
		return value, nil
	}
	return 0, fmt.Errorf("no price for %s: %w", symbol, err)
}

func (f *Feed) fetch(ctx context.Context, symbol string) (float64, error) {
	if f.baseURL == "" {
		return 0, fmt.Errorf("price feed not configured")
	}

	url := fmt.Sprintf("%s/%s", f.baseURL, strings.ToLower(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch price: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("price feed status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}

	var parsed feedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("unmarshal response: %w", err)
	}

	for _, coin := range parsed.Coins {
		if coin.Price > 0 {
			return coin.Price, nil
		}
	}
	return 0, fmt.Errorf("no price in response for %s", symbol)
}
