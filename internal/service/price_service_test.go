package service_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lumenfi/lending/internal/config"
	"github.com/lumenfi/lending/internal/service"
	"github.com/shopspring/decimal"
)

// ── Mock exchange HTTP servers ────────────────────────────────────────────────

func mockBinanceOK(price float64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]string{"price": decimal.NewFromFloat(price).StringFixed(2)}
		_ = json.NewEncoder(w).Encode(resp)
	})
}

// Bybit expects: {"result":{"list":[{"lastPrice":"..."}]}}
func mockBybitOK(price float64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		outer := struct {
			Result struct {
				List []struct {
					LastPrice string `json:"lastPrice"`
				} `json:"list"`
			} `json:"result"`
		}{}
		outer.Result.List = []struct {
			LastPrice string `json:"lastPrice"`
		}{{LastPrice: decimal.NewFromFloat(price).StringFixed(2)}}
		_ = json.NewEncoder(w).Encode(outer)
	})
}

// OKX expects: {"data":[{"last":"..."}]}
func mockOKXOK(price float64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		outer := struct {
			Data []struct {
				Last string `json:"last"`
			} `json:"data"`
		}{
			Data: []struct {
				Last string `json:"last"`
			}{{Last: decimal.NewFromFloat(price).StringFixed(2)}},
		}
		_ = json.NewEncoder(w).Encode(outer)
	})
}

func mockServerError() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})
}

func buildOracleConfig(binanceURL, bybitURL, okxURL string, cacheTTL time.Duration) *config.Config {
	return &config.Config{
		Oracle: config.OracleConfig{
			BinanceURL:    binanceURL,
			BybitURL:      bybitURL,
			OKXURL:        okxURL,
			FetchTimeout:  3 * time.Second,
			CacheTTL:      cacheTTL,
			BinanceWeight: 50,
			BybitWeight:   30,
			OKXWeight:     20,
		},
	}
}

// ── Tests ─────────────────────────────────────────────────────────────────────

// TestPriceService_AllSources confirms weighted average with all 3 sources healthy.
// Binance 2300 (×50) + Bybit 2310 (×30) + OKX 2320 (×20) = 2307 / 100
func TestPriceService_AllSources(t *testing.T) {
	sBinance := httptest.NewServer(mockBinanceOK(2300))
	defer sBinance.Close()
	sBybit := httptest.NewServer(mockBybitOK(2310))
	defer sBybit.Close()
	sOKX := httptest.NewServer(mockOKXOK(2320))
	defer sOKX.Close()

	cfg := buildOracleConfig(sBinance.URL, sBybit.URL, sOKX.URL, 0)
	svc := service.NewPriceService(cfg)

	idx, err := svc.GetIndexPrice(context.Background(), "WETH")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if idx.PriceUsd.IsZero() {
		t.Error("expected non-zero price")
	}
	if len(idx.Sources) != 3 {
		t.Errorf("expected 3 sources, got %d", len(idx.Sources))
	}

	// Weighted: 2300*50 + 2310*30 + 2320*20 = 115000+69300+46400 = 230700 / 100 = 2307
	want := decimal.NewFromFloat(2307)
	if idx.PriceUsd.Sub(want).Abs().GreaterThan(decimal.NewFromFloat(1)) {
		t.Errorf("weighted price = %s, want ~%s", idx.PriceUsd, want)
	}
	t.Logf("weighted price = %s, sources = %d", idx.PriceUsd, len(idx.Sources))
}

// TestPriceServiceFallback_BinanceDown verifies Bybit+OKX provide a price
// when Binance returns HTTP 503, with weights renormalised over the survivors.
func TestPriceServiceFallback_BinanceDown(t *testing.T) {
	sBinance := httptest.NewServer(mockServerError())
	defer sBinance.Close()
	sBybit := httptest.NewServer(mockBybitOK(2310))
	defer sBybit.Close()
	sOKX := httptest.NewServer(mockOKXOK(2320))
	defer sOKX.Close()

	cfg := buildOracleConfig(sBinance.URL, sBybit.URL, sOKX.URL, 0)
	svc := service.NewPriceService(cfg)

	idx, err := svc.GetIndexPrice(context.Background(), "WETH")
	if err != nil {
		t.Fatalf("partial failure should still return price, got err: %v", err)
	}
	if idx.PriceUsd.IsZero() {
		t.Error("expected non-zero fallback price")
	}
	// Only Bybit+OKX sources
	if len(idx.Sources) != 2 {
		t.Errorf("expected 2 sources (Bybit+OKX), got %d", len(idx.Sources))
	}
	// Weighted: 2310*30 + 2320*20 = 69300+46400 = 115700 / 50 = 2314
	want := decimal.NewFromFloat(2314)
	if idx.PriceUsd.Sub(want).Abs().GreaterThan(decimal.NewFromFloat(1)) {
		t.Errorf("fallback price = %s, want ~%s", idx.PriceUsd, want)
	}
	t.Logf("fallback price=%s sources=%d", idx.PriceUsd, len(idx.Sources))
}

// TestPriceServiceFallback_AllDown confirms error returned when all sources fail.
func TestPriceServiceFallback_AllDown(t *testing.T) {
	sBinance := httptest.NewServer(mockServerError())
	defer sBinance.Close()
	sBybit := httptest.NewServer(mockServerError())
	defer sBybit.Close()
	sOKX := httptest.NewServer(mockServerError())
	defer sOKX.Close()

	cfg := buildOracleConfig(sBinance.URL, sBybit.URL, sOKX.URL, 0)
	svc := service.NewPriceService(cfg)

	_, err := svc.GetIndexPrice(context.Background(), "WETH")
	if err == nil {
		t.Fatal("expected error when all price sources are down")
	}
	t.Logf("all-sources-down error: %v", err)
}

// TestPriceService_CachedPrice checks that GetCachedPrice returns the price
// after a successful warm-up fetch when TTL is long.
func TestPriceService_CachedPrice(t *testing.T) {
	sBinance := httptest.NewServer(mockBinanceOK(2300))
	defer sBinance.Close()
	sBybit := httptest.NewServer(mockBybitOK(2300))
	defer sBybit.Close()
	sOKX := httptest.NewServer(mockOKXOK(2300))
	defer sOKX.Close()

	cfg := buildOracleConfig(sBinance.URL, sBybit.URL, sOKX.URL, 60*time.Second)
	svc := service.NewPriceService(cfg)

	// Warm cache
	if _, err := svc.GetIndexPrice(context.Background(), "WETH"); err != nil {
		t.Fatalf("warm cache fetch failed: %v", err)
	}

	price, ok := svc.GetCachedPrice("WETH")
	if !ok {
		t.Error("expected cache hit after successful fetch with 60s TTL")
	}
	if price.IsZero() {
		t.Error("cached price should not be zero")
	}

	// Cache key is case-insensitive (assets normalised to upper case)
	if _, ok = svc.GetCachedPrice("weth"); !ok {
		t.Error("lowercase asset lookup should hit the same cache entry")
	}
	t.Logf("cached price=%s", price)
}

// TestPriceService_CacheIsPerAsset confirms one asset's warm cache does not
// satisfy lookups for another asset.
func TestPriceService_CacheIsPerAsset(t *testing.T) {
	sBinance := httptest.NewServer(mockBinanceOK(1))
	defer sBinance.Close()
	sBybit := httptest.NewServer(mockBybitOK(1))
	defer sBybit.Close()
	sOKX := httptest.NewServer(mockOKXOK(1))
	defer sOKX.Close()

	cfg := buildOracleConfig(sBinance.URL, sBybit.URL, sOKX.URL, 60*time.Second)
	svc := service.NewPriceService(cfg)

	if _, err := svc.GetIndexPrice(context.Background(), "USDC"); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	if _, ok := svc.GetCachedPrice("WBTC"); ok {
		t.Error("WBTC should not be cached after a USDC-only fetch")
	}
}

// TestPriceService_CacheExpires confirms that with TTL=0 the cache is always stale.
func TestPriceService_CacheExpires(t *testing.T) {
	sBinance := httptest.NewServer(mockBinanceOK(2300))
	defer sBinance.Close()
	sBybit := httptest.NewServer(mockBybitOK(2300))
	defer sBybit.Close()
	sOKX := httptest.NewServer(mockOKXOK(2300))
	defer sOKX.Close()

	cfg := buildOracleConfig(sBinance.URL, sBybit.URL, sOKX.URL, 0) // instant expiry
	svc := service.NewPriceService(cfg)

	// Even after a fetch, with TTL=0 the cache is already expired
	if _, err := svc.GetIndexPrice(context.Background(), "WETH"); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	if _, ok := svc.GetCachedPrice("WETH"); ok {
		t.Error("with TTL=0, cache should be considered expired immediately")
	}
}
