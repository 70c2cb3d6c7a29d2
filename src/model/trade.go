package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TokenQuote is a price snapshot returned by a price provider.
type TokenQuote struct {
	Address   string          `json:"address"`
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name"`
	PriceUSD  decimal.Decimal `json:"price_usd"`
	MarketCap decimal.Decimal `json:"market_cap"`
	Source    string          `json:"source"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// TradeRequest is what the trade executor receives for a triggered order.
type TradeRequest struct {
	OrderID      string
	Side         OrderSide
	TokenAddress string
	Amount       decimal.Decimal
	Denomination Denomination
	Slippage     decimal.Decimal
}

// Settlement is the executor's acknowledgement of a submitted trade.
type Settlement struct {
	Signature   string
	SubmittedAt time.Time
}

// WalletBalance is the native and token holdings of the configured wallet.
type WalletBalance struct {
	Owner  string                     `json:"owner"`
	Native decimal.Decimal            `json:"native"`
	Tokens map[string]decimal.Decimal `json:"tokens,omitempty"`
}
