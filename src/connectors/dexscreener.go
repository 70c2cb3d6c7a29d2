package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"limitbot/src/externalmodel"
	"limitbot/src/mapper"
	"limitbot/src/model"
)

// DexScreenerClient reads token prices and market data from DexScreener.
type DexScreenerClient struct {
	http *resty.Client
}

func NewDexScreenerClient(baseURL string, timeout time.Duration, retries int) *DexScreenerClient {
	return &DexScreenerClient{http: newRestyClient(baseURL, timeout, retries)}
}

// GetQuote returns price, market cap and naming of a token.
func (c *DexScreenerClient) GetQuote(ctx context.Context, tokenAddress string) (*model.TokenQuote, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get("/latest/dex/tokens/" + url.PathEscape(tokenAddress))
	if err != nil {
		return nil, &model.TransientExternalError{Service: "dexscreener", Err: err}
	}

	if resp.StatusCode() != 200 {
		err := fmt.Errorf("HTTP %d: %s", resp.StatusCode(), string(resp.Body()))
		if isTransientStatus(resp.StatusCode()) {
			return nil, &model.TransientExternalError{Service: "dexscreener", Err: err}
		}
		return nil, err
	}

	var body externalmodel.DexScreenerTokensResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("decode dexscreener response: %w", err)
	}

	pair, err := mapper.SelectDexScreenerPair(&body, tokenAddress)
	if err != nil {
		return nil, fmt.Errorf("%w for %s: %w", ErrPriceUnavailable, tokenAddress, err)
	}

	quote, err := mapper.MapDexScreenerPair(pair, tokenAddress, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"connector": "dexscreener",
		"token":     tokenAddress,
		"price":     quote.PriceUSD.String(),
	}).Debug("quote fetched")

	return quote, nil
}

func (c *DexScreenerClient) GetPrice(ctx context.Context, tokenAddress string) (decimal.Decimal, error) {
	quote, err := c.GetQuote(ctx, tokenAddress)
	if err != nil {
		return decimal.Zero, err
	}
	if !quote.PriceUSD.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w for %s: dexscreener returned no price", ErrPriceUnavailable, tokenAddress)
	}
	return quote.PriceUSD, nil
}
