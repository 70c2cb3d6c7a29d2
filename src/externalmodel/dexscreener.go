package externalmodel

// DexScreenerTokensResponse is the body of GET /latest/dex/tokens/{address}.
type DexScreenerTokensResponse struct {
	SchemaVersion string            `json:"schemaVersion"`
	Pairs         []DexScreenerPair `json:"pairs"`
}

type DexScreenerToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

type DexScreenerPair struct {
	ChainID     string           `json:"chainId"`
	DexID       string           `json:"dexId"`
	PairAddress string           `json:"pairAddress"`
	BaseToken   DexScreenerToken `json:"baseToken"`
	QuoteToken  DexScreenerToken `json:"quoteToken"`
	PriceNative string           `json:"priceNative"`
	PriceUsd    string           `json:"priceUsd"`
	Fdv         *float64         `json:"fdv"`
	MarketCap   *float64         `json:"marketCap"`
	Liquidity   *struct {
		Usd float64 `json:"usd"`
	} `json:"liquidity"`
}
