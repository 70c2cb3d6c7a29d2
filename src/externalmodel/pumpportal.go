package externalmodel

import "encoding/json"

// PumpPortalTradeRequest is the JSON body posted to /api/trade.
type PumpPortalTradeRequest struct {
	Action           string      `json:"action"`
	Mint             string      `json:"mint"`
	Amount           json.Number `json:"amount"`
	DenominatedInSol string      `json:"denominatedInSol"`
	Slippage         json.Number `json:"slippage"`
	PriorityFee      float64     `json:"priorityFee"`
	Pool             string      `json:"pool"`
}

// PumpPortalTradeResponse covers both the success and the error shapes.
type PumpPortalTradeResponse struct {
	Signature string          `json:"signature"`
	Tx        string          `json:"tx"`
	Errors    json.RawMessage `json:"errors"`
	Error     string          `json:"error"`
	Message   string          `json:"message"`
}

// PumpPortalSubscribe is sent on the data websocket.
type PumpPortalSubscribe struct {
	Method string   `json:"method"`
	Keys   []string `json:"keys,omitempty"`
}

// PumpPortalTradeEvent is one trade pushed by subscribeTokenTrade.
type PumpPortalTradeEvent struct {
	Signature    string  `json:"signature"`
	Mint         string  `json:"mint"`
	TxType       string  `json:"txType"`
	TokenAmount  float64 `json:"tokenAmount"`
	SolAmount    float64 `json:"solAmount"`
	MarketCapSol float64 `json:"marketCapSol"`
	Pool         string  `json:"pool"`
}
