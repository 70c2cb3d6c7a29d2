package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"limitbot/src/externalmodel"
	"limitbot/src/mapper"
	"limitbot/src/model"
)

// JupiterClient reads USD prices from the Jupiter price API.
type JupiterClient struct {
	http *resty.Client
}

func NewJupiterClient(baseURL string, timeout time.Duration, retries int) *JupiterClient {
	return &JupiterClient{http: newRestyClient(baseURL, timeout, retries)}
}

func (c *JupiterClient) GetPrice(ctx context.Context, tokenAddress string) (decimal.Decimal, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("ids", tokenAddress).
		Get("/price/v2")
	if err != nil {
		return decimal.Zero, &model.TransientExternalError{Service: "jupiter", Err: err}
	}

	if resp.StatusCode() != 200 {
		err := fmt.Errorf("HTTP %d: %s", resp.StatusCode(), string(resp.Body()))
		if isTransientStatus(resp.StatusCode()) {
			return decimal.Zero, &model.TransientExternalError{Service: "jupiter", Err: err}
		}
		return decimal.Zero, err
	}

	var body externalmodel.JupiterPriceResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return decimal.Zero, fmt.Errorf("decode jupiter response: %w", err)
	}

	price, ok := mapper.MapJupiterPrice(&body, tokenAddress)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w for %s: jupiter returned no price", ErrPriceUnavailable, tokenAddress)
	}
	return price, nil
}
