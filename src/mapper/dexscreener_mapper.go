package mapper

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"limitbot/src/externalmodel"
	"limitbot/src/model"
)

var ErrNoPairs = errors.New("no trading pairs")

// parseDecimalSafe parses an upstream numeric string, defaulting to zero.
func parseDecimalSafe(field, v string) decimal.Decimal {
	if v == "" {
		logger.WithField("field", field).Debug("Empty numeric field received, defaulting to 0")
		return decimal.Zero
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"field": field,
			"value": v,
		}).WithError(err).Warn("Failed to parse decimal from upstream field; defaulting to 0")
		return decimal.Zero
	}
	return d
}

// SelectDexScreenerPair picks the pair quoting address as its base token,
// falling back to the first pair returned.
func SelectDexScreenerPair(resp *externalmodel.DexScreenerTokensResponse, address string) (*externalmodel.DexScreenerPair, error) {
	if resp == nil || len(resp.Pairs) == 0 {
		return nil, ErrNoPairs
	}
	for i := range resp.Pairs {
		if strings.EqualFold(resp.Pairs[i].BaseToken.Address, address) {
			return &resp.Pairs[i], nil
		}
	}
	return &resp.Pairs[0], nil
}

// MapDexScreenerPair converts a DexScreener pair into a quote. Market cap
// falls back to FDV when the pair does not report one.
func MapDexScreenerPair(pair *externalmodel.DexScreenerPair, address string, fetchedAt time.Time) (*model.TokenQuote, error) {
	if pair == nil {
		return nil, ErrNoPairs
	}

	quote := &model.TokenQuote{
		Address:   address,
		Symbol:    pair.BaseToken.Symbol,
		Name:      pair.BaseToken.Name,
		PriceUSD:  parseDecimalSafe("priceUsd", pair.PriceUsd),
		Source:    "dexscreener",
		FetchedAt: fetchedAt,
	}

	switch {
	case pair.MarketCap != nil && *pair.MarketCap > 0:
		quote.MarketCap = decimal.NewFromFloat(*pair.MarketCap)
	case pair.Fdv != nil && *pair.Fdv > 0:
		quote.MarketCap = decimal.NewFromFloat(*pair.Fdv)
	}

	return quote, nil
}

// MapJupiterPrice extracts the USD price of address from a Jupiter response.
func MapJupiterPrice(resp *externalmodel.JupiterPriceResponse, address string) (decimal.Decimal, bool) {
	if resp == nil || resp.Data == nil {
		return decimal.Zero, false
	}
	p, ok := resp.Data[address]
	if !ok || p == nil {
		return decimal.Zero, false
	}
	price := parseDecimalSafe("price", p.Price)
	return price, price.IsPositive()
}

// TradePriceInNative derives the per-token native price of a trade event.
func TradePriceInNative(ev *externalmodel.PumpPortalTradeEvent) (decimal.Decimal, bool) {
	if ev == nil || ev.TokenAmount <= 0 || ev.SolAmount <= 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(ev.SolAmount).Div(decimal.NewFromFloat(ev.TokenAmount)), true
}
