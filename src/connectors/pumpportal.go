package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"

	"limitbot/src/externalmodel"
	"limitbot/src/model"
)

// PumpPortalClient submits swaps through the PumpPortal trade API.
type PumpPortalClient struct {
	http        *resty.Client
	apiKey      string
	priorityFee float64
	pool        string
}

// NewPumpPortalClient never retries: a resubmitted POST may fill twice.
func NewPumpPortalClient(baseURL, apiKey string, timeout time.Duration, priorityFee float64, pool string) *PumpPortalClient {
	if pool == "" {
		pool = "auto"
	}
	return &PumpPortalClient{
		http:        newRestyClient(baseURL, timeout, 0),
		apiKey:      apiKey,
		priorityFee: priorityFee,
		pool:        pool,
	}
}

func NewPumpPortalClientFromConfig(cfg Config) *PumpPortalClient {
	return NewPumpPortalClient(cfg.PumpPortalURL, cfg.PumpPortalAPIKey, cfg.TradeTimeout, cfg.PriorityFee, cfg.TradePool)
}

// Execute submits one trade and returns its transaction signature.
func (c *PumpPortalClient) Execute(ctx context.Context, req model.TradeRequest) (model.Settlement, error) {
	if c.apiKey == "" {
		return model.Settlement{}, fmt.Errorf("%w: PUMPPORTAL_API_KEY is not configured", ErrTradeRejected)
	}
	if !req.Side.Valid() {
		return model.Settlement{}, fmt.Errorf("%w: unknown side %q", ErrTradeRejected, req.Side)
	}
	if !req.Amount.IsPositive() {
		return model.Settlement{}, fmt.Errorf("%w: amount must be positive", ErrTradeRejected)
	}

	denominatedInSol := "false"
	if req.Denomination == model.DenominationNative {
		denominatedInSol = "true"
	}

	body := externalmodel.PumpPortalTradeRequest{
		Action:           string(req.Side),
		Mint:             req.TokenAddress,
		Amount:           json.Number(req.Amount.String()),
		DenominatedInSol: denominatedInSol,
		Slippage:         json.Number(req.Slippage.String()),
		PriorityFee:      c.priorityFee,
		Pool:             c.pool,
	}

	fields := map[string]interface{}{
		"connector": "pumpportal",
		"order_id":  req.OrderID,
		"action":    body.Action,
		"mint":      body.Mint,
		"amount":    body.Amount,
		"in_sol":    denominatedInSol,
	}
	logger.WithFields(fields).Info("submitting trade")

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("api-key", c.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post("/api/trade")
	if err != nil {
		logger.WithFields(fields).WithError(err).Error("trade request failed")
		return model.Settlement{}, &model.TransientExternalError{Service: "pumpportal", Err: err}
	}

	var out externalmodel.PumpPortalTradeResponse
	_ = json.Unmarshal(resp.Body(), &out)

	if resp.StatusCode() != 200 {
		msg := tradeErrorMessage(&out, resp.Body())
		logger.WithFields(fields).WithField("status", resp.StatusCode()).Error("trade rejected: " + msg)
		return model.Settlement{}, ClassifyTradeError(msg)
	}

	if msg := tradeErrorMessage(&out, nil); msg != "" {
		return model.Settlement{}, ClassifyTradeError(msg)
	}

	sig := out.Signature
	if sig == "" {
		sig = out.Tx
	}
	if sig == "" {
		return model.Settlement{}, ErrNoSignature
	}

	logger.WithFields(fields).WithField("signature", sig).Info("trade submitted")

	return model.Settlement{Signature: sig, SubmittedAt: time.Now().UTC()}, nil
}

// tradeErrorMessage extracts the most specific error text from a response.
func tradeErrorMessage(out *externalmodel.PumpPortalTradeResponse, raw []byte) string {
	if len(out.Errors) > 0 && string(out.Errors) != "null" && string(out.Errors) != "[]" {
		var list []string
		if err := json.Unmarshal(out.Errors, &list); err == nil {
			return strings.Join(list, "; ")
		}
		var single string
		if err := json.Unmarshal(out.Errors, &single); err == nil {
			return single
		}
		return string(out.Errors)
	}
	if out.Error != "" {
		return out.Error
	}
	if out.Message != "" && out.Signature == "" && out.Tx == "" {
		return out.Message
	}
	return strings.TrimSpace(string(raw))
}
