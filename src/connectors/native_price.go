package connectors

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

type tickerAPI interface {
	GetTicker(currency goex.CurrencyPair) (*goex.Ticker, error)
}

// NativePrice reports the fiat price of the chain's native currency (SOL)
// from the Binance spot ticker. When the ticker cannot be read it falls back
// to a configured constant.
type NativePrice struct {
	api      tickerAPI
	pair     goex.CurrencyPair
	fallback decimal.Decimal
	ttl      time.Duration

	mu       sync.Mutex
	cached   decimal.Decimal
	cachedAt time.Time
}

func newBinanceInstance(endpoint string, timeout time.Duration) *binance.Binance {
	apiConfig := &goex.APIConfig{
		HttpClient: &http.Client{Timeout: timeout},
		Endpoint:   endpoint,
	}
	return binance.NewWithConfig(apiConfig)
}

func NewNativePrice(cfg Config, fallback decimal.Decimal) *NativePrice {
	endpoint := cfg.BinanceURL
	if endpoint == "" {
		endpoint = binance.GLOBAL_API_BASE_URL
	}
	return &NativePrice{
		api:      newBinanceInstance(endpoint, cfg.PriceTimeout),
		pair:     goex.NewCurrencyPair2(cfg.NativeSymbol + "_USDT"),
		fallback: fallback,
		ttl:      cfg.NativePriceTTL,
	}
}

// NativePrice returns the cached or freshly fetched price.
func (n *NativePrice) NativePrice(ctx context.Context) (decimal.Decimal, error) {
	n.mu.Lock()
	if n.cached.IsPositive() && time.Since(n.cachedAt) < n.ttl {
		p := n.cached
		n.mu.Unlock()
		return p, nil
	}
	n.mu.Unlock()

	price, err := n.fetch(ctx)
	if err != nil {
		if n.fallback.IsPositive() {
			logger.WithField("pair", n.pair.String()).WithError(err).
				Warn("native price unavailable, using fallback")
			return n.fallback, nil
		}
		return decimal.Zero, err
	}

	n.mu.Lock()
	n.cached = price
	n.cachedAt = time.Now()
	n.mu.Unlock()

	return price, nil
}

func (n *NativePrice) fetch(ctx context.Context) (decimal.Decimal, error) {
	type result struct {
		ticker *goex.Ticker
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		t, err := n.api.GetTicker(n.pair)
		ch <- result{t, err}
	}()

	select {
	case <-ctx.Done():
		return decimal.Zero, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return decimal.Zero, fmt.Errorf("binance ticker %s: %w", n.pair.String(), r.err)
		}
		if r.ticker == nil || r.ticker.Last <= 0 {
			return decimal.Zero, fmt.Errorf("%w: binance ticker %s has no last price", ErrPriceUnavailable, n.pair.String())
		}
		return decimal.NewFromFloat(r.ticker.Last), nil
	}
}
