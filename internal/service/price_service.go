package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lumenfi/lending/internal/config"
	"github.com/lumenfi/lending/internal/domain"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Exchange constants
// ──────────────────────────────────────────────────────────────────────────────

const (
	exchangeBinance = "binance"
	exchangeBybit   = "bybit"
	exchangeOKX     = "okx"
)

// exchangeDef describes a single price-feed source.
type exchangeDef struct {
	name   string
	weight decimal.Decimal // 0–100
	fetch  func(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// cachedIndex is one asset's cached index price.
type cachedIndex struct {
	price   decimal.Decimal
	sources []domain.PriceSource
	at      time.Time
}

// ──────────────────────────────────────────────────────────────────────────────
// PriceService
// ──────────────────────────────────────────────────────────────────────────────

// PriceService is the oracle index feed: it fetches USD reference prices for
// supported assets from multiple exchanges in parallel, computes a weighted
// average, and caches the result per asset.
//
// Index prices feed monitoring surfaces only (dashboards, WS broadcasts).
// Position amounts entering the health-factor path are already
// oracle-normalized USD values and are never re-priced here.
type PriceService struct {
	client *http.Client
	cfg    *config.OracleConfig

	// per-asset in-memory cache
	mu    sync.RWMutex
	cache map[string]cachedIndex

	// per-exchange last-success timestamp (for ExchangeStatus)
	statusMu    sync.RWMutex
	lastSuccess map[string]time.Time
	exchanges   []exchangeDef
}

// NewPriceService constructs a PriceService from the given config.
func NewPriceService(cfg *config.Config) *PriceService {
	ps := &PriceService{
		client: &http.Client{Timeout: cfg.Oracle.FetchTimeout},
		cfg:    &cfg.Oracle,
		cache:  make(map[string]cachedIndex),
		lastSuccess: map[string]time.Time{
			exchangeBinance: {},
			exchangeBybit:   {},
			exchangeOKX:     {},
		},
	}

	ps.exchanges = []exchangeDef{
		{
			name:   exchangeBinance,
			weight: decimal.NewFromInt(int64(cfg.Oracle.BinanceWeight)),
			fetch:  ps.fetchBinance,
		},
		{
			name:   exchangeBybit,
			weight: decimal.NewFromInt(int64(cfg.Oracle.BybitWeight)),
			fetch:  ps.fetchBybit,
		},
		{
			name:   exchangeOKX,
			weight: decimal.NewFromInt(int64(cfg.Oracle.OKXWeight)),
			fetch:  ps.fetchOKX,
		},
	}

	return ps
}

// ──────────────────────────────────────────────────────────────────────────────
// Public API
// ──────────────────────────────────────────────────────────────────────────────

// GetIndexPrice returns the asset's USD index price as a weighted average of
// all configured exchanges.  If the per-asset cache is still fresh
// (< CacheTTL) the cached value is returned immediately.
//
// Partial failures are handled by re-normalising the weights over the
// available sources.  The method requires at least 1 successful source; if
// all fail it returns an error.
func (ps *PriceService) GetIndexPrice(ctx context.Context, asset string) (*domain.IndexPrice, error) {
	asset = strings.ToUpper(asset)

	// ── Cache check ──────────────────────────────────────────────────────────
	ps.mu.RLock()
	if c, ok := ps.cache[asset]; ok && time.Since(c.at) < ps.cfg.CacheTTL {
		ps.mu.RUnlock()
		return &domain.IndexPrice{Asset: asset, PriceUsd: c.price, Sources: c.sources, FetchedAt: c.at}, nil
	}
	ps.mu.RUnlock()

	symbol := asset + "USDT"

	// ── Parallel fetch with per-exchange timeout ──────────────────────────────
	type result struct {
		name  string
		price decimal.Decimal
		err   error
	}

	fetchCtx, cancel := context.WithTimeout(ctx, ps.client.Timeout)
	defer cancel()

	resultCh := make(chan result, len(ps.exchanges))
	for _, ex := range ps.exchanges {
		ex := ex // capture
		go func() {
			p, err := ex.fetch(fetchCtx, symbol)
			resultCh <- result{name: ex.name, price: p, err: err}
		}()
	}

	rawResults := make(map[string]result, len(ps.exchanges))
	for range ps.exchanges {
		r := <-resultCh
		rawResults[r.name] = r
	}

	// ── Build sources list & compute weighted average ─────────────────────────
	var sources []domain.PriceSource
	var sumWeighted, sumWeights decimal.Decimal
	now := time.Now()

	for _, ex := range ps.exchanges {
		r := rawResults[ex.name]
		if r.err != nil || r.price.IsZero() {
			continue
		}
		sources = append(sources, domain.PriceSource{
			Exchange:  ex.name,
			Price:     r.price,
			Weight:    ex.weight,
			FetchedAt: now,
		})
		sumWeighted = sumWeighted.Add(r.price.Mul(ex.weight))
		sumWeights = sumWeights.Add(ex.weight)

		ps.statusMu.Lock()
		ps.lastSuccess[ex.name] = now
		ps.statusMu.Unlock()
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("price_service: all exchange fetches failed for %s", asset)
	}

	// Normalize over available weights (handles missing exchange gracefully)
	weightedAvg := sumWeighted.Div(sumWeights)

	// ── Update cache ─────────────────────────────────────────────────────────
	ps.mu.Lock()
	ps.cache[asset] = cachedIndex{price: weightedAvg, sources: sources, at: now}
	ps.mu.Unlock()

	return &domain.IndexPrice{Asset: asset, PriceUsd: weightedAvg, Sources: sources, FetchedAt: now}, nil
}

// GetCachedPrice returns the most recently cached price for the asset and
// true if the cache is still within its TTL.  Returns (Zero, false) when the
// cache is stale or absent.
func (ps *PriceService) GetCachedPrice(asset string) (decimal.Decimal, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	c, ok := ps.cache[strings.ToUpper(asset)]
	if !ok || time.Since(c.at) >= ps.cfg.CacheTTL {
		return decimal.Zero, false
	}
	return c.price, true
}

// ExchangeStatus returns a map of exchange name → whether it was reachable in
// the last 5 seconds.  Used by the back-office health dashboard.
func (ps *PriceService) ExchangeStatus() map[string]bool {
	threshold := 5 * time.Second
	ps.statusMu.RLock()
	defer ps.statusMu.RUnlock()

	status := make(map[string]bool, len(ps.lastSuccess))
	for name, t := range ps.lastSuccess {
		status[name] = !t.IsZero() && time.Since(t) < threshold
	}
	return status
}

// ──────────────────────────────────────────────────────────────────────────────
// Exchange fetchers
// ──────────────────────────────────────────────────────────────────────────────

// fetchBinance fetches a spot price from the Binance REST API.
//
//	GET /api/v3/ticker/price?symbol=ETHUSDT
//	{"symbol":"ETHUSDT","price":"2350.00"}
func (ps *PriceService) fetchBinance(ctx context.Context, symbol string) (decimal.Decimal, error) {
	url := ps.cfg.BinanceURL + "/api/v3/ticker/price?symbol=" + symbol
	body, err := ps.doGet(ctx, url)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance: %w", err)
	}

	var resp struct {
		Price string `json:"price"`
	}
	if err = json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("binance parse: %w", err)
	}
	if resp.Price == "" {
		return decimal.Zero, fmt.Errorf("binance: empty price field")
	}
	price, err := decimal.NewFromString(resp.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance decimal: %w", err)
	}
	return price, nil
}

// fetchBybit fetches a spot price from the Bybit REST API.
//
//	GET /v5/market/tickers?category=spot&symbol=ETHUSDT
//	{"result":{"list":[{"lastPrice":"2350.00",...}]}}
func (ps *PriceService) fetchBybit(ctx context.Context, symbol string) (decimal.Decimal, error) {
	url := ps.cfg.BybitURL + "/v5/market/tickers?category=spot&symbol=" + symbol
	body, err := ps.doGet(ctx, url)
	if err != nil {
		return decimal.Zero, fmt.Errorf("bybit: %w", err)
	}

	var resp struct {
		Result struct {
			List []struct {
				LastPrice string `json:"lastPrice"`
			} `json:"list"`
		} `json:"result"`
	}
	if err = json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("bybit parse: %w", err)
	}
	if len(resp.Result.List) == 0 || resp.Result.List[0].LastPrice == "" {
		return decimal.Zero, fmt.Errorf("bybit: empty result list")
	}
	price, err := decimal.NewFromString(resp.Result.List[0].LastPrice)
	if err != nil {
		return decimal.Zero, fmt.Errorf("bybit decimal: %w", err)
	}
	return price, nil
}

// fetchOKX fetches a spot price from the OKX REST API.
//
//	GET /api/v5/market/ticker?instId=ETH-USDT
//	{"data":[{"last":"2350.00",...}]}
func (ps *PriceService) fetchOKX(ctx context.Context, symbol string) (decimal.Decimal, error) {
	instID := symbol
	if strings.HasSuffix(symbol, "USDT") {
		instID = strings.TrimSuffix(symbol, "USDT") + "-USDT"
	}
	url := ps.cfg.OKXURL + "/api/v5/market/ticker?instId=" + instID
	body, err := ps.doGet(ctx, url)
	if err != nil {
		return decimal.Zero, fmt.Errorf("okx: %w", err)
	}

	var resp struct {
		Data []struct {
			Last string `json:"last"`
		} `json:"data"`
	}
	if err = json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("okx parse: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].Last == "" {
		return decimal.Zero, fmt.Errorf("okx: empty data field")
	}
	price, err := decimal.NewFromString(resp.Data[0].Last)
	if err != nil {
		return decimal.Zero, fmt.Errorf("okx decimal: %w", err)
	}
	return price, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// HTTP helper
// ──────────────────────────────────────────────────────────────────────────────

// doGet performs an HTTP GET with the service's client and returns the body
// bytes, or an error for any non-200 status code.
func (ps *PriceService) doGet(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "lumenfi-lending/1.0")

	resp, err := ps.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
