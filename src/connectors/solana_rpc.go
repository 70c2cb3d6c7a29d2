package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"limitbot/src/externalmodel"
	"limitbot/src/model"
)

const lamportsPerSol = 1_000_000_000

// SolanaRPCClient reads wallet balances over Solana JSON-RPC.
type SolanaRPCClient struct {
	http *resty.Client
}

func NewSolanaRPCClient(endpoint string, timeout time.Duration, retries int) *SolanaRPCClient {
	return &SolanaRPCClient{http: newRestyClient(endpoint, timeout, retries)}
}

func (c *SolanaRPCClient) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(externalmodel.RPCRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params}).
		Post("")
	if err != nil {
		return &model.TransientExternalError{Service: "solana rpc", Err: err}
	}
	if resp.StatusCode() != 200 {
		err := fmt.Errorf("%s: HTTP %d: %s", method, resp.StatusCode(), string(resp.Body()))
		if isTransientStatus(resp.StatusCode()) {
			return &model.TransientExternalError{Service: "solana rpc", Err: err}
		}
		return err
	}

	var body externalmodel.RPCResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if body.Error != nil {
		return fmt.Errorf("%s: rpc error %d: %s", method, body.Error.Code, body.Error.Message)
	}
	if err := json.Unmarshal(body.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// GetNativeBalance returns the SOL balance of owner.
func (c *SolanaRPCClient) GetNativeBalance(ctx context.Context, owner string) (decimal.Decimal, error) {
	var res externalmodel.GetBalanceResult
	if err := c.call(ctx, "getBalance", []interface{}{owner}, &res); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromInt(int64(res.Value)).Div(decimal.NewFromInt(lamportsPerSol)), nil
}

// GetTokenBalance sums the UI amount of every token account of owner for mint.
func (c *SolanaRPCClient) GetTokenBalance(ctx context.Context, owner, mint string) (decimal.Decimal, error) {
	var res externalmodel.TokenAccountsResult
	params := []interface{}{
		owner,
		map[string]string{"mint": mint},
		map[string]string{"encoding": "jsonParsed"},
	}
	if err := c.call(ctx, "getTokenAccountsByOwner", params, &res); err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, acc := range res.Value {
		v := acc.Account.Data.Parsed.Info.TokenAmount.UIAmountString
		if v == "" {
			continue
		}
		amt, err := decimal.NewFromString(v)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"connector": "solana_rpc",
				"account":   acc.Pubkey,
				"value":     v,
			}).WithError(err).Warn("skipping unparsable token amount")
			continue
		}
		total = total.Add(amt)
	}
	return total, nil
}

// WalletBalance returns the native balance and, when mints are given, the
// balance of each of them.
func (c *SolanaRPCClient) WalletBalance(ctx context.Context, owner string, mints ...string) (*model.WalletBalance, error) {
	native, err := c.GetNativeBalance(ctx, owner)
	if err != nil {
		return nil, err
	}
	out := &model.WalletBalance{Owner: owner, Native: native}
	if len(mints) > 0 {
		out.Tokens = make(map[string]decimal.Decimal, len(mints))
		for _, mint := range mints {
			bal, err := c.GetTokenBalance(ctx, owner, mint)
			if err != nil {
				return nil, err
			}
			out.Tokens[mint] = bal
		}
	}
	return out, nil
}
