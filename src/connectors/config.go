package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	DexScreenerURL  string `envconfig:"DEXSCREENER_URL" default:"https://api.dexscreener.com"`
	JupiterPriceURL string `envconfig:"JUPITER_PRICE_URL" default:"https://api.jup.ag"`

	PumpPortalURL      string        `envconfig:"PUMPPORTAL_URL" default:"https://pumpportal.fun"`
	PumpPortalAPIKey   string        `envconfig:"PUMPPORTAL_API_KEY"`
	PumpPortalWSURL    string        `envconfig:"PUMPPORTAL_WS_URL" default:"wss://pumpportal.fun/api/data"`
	PriceStreamEnabled bool          `envconfig:"PRICE_STREAM_ENABLED" default:"false"`
	PriceStreamMaxAge  time.Duration `envconfig:"PRICE_STREAM_MAX_AGE" default:"30s"`
	PriorityFee        float64       `envconfig:"PRIORITY_FEE" default:"0.00005"`
	TradePool          string        `envconfig:"TRADE_POOL" default:"auto"`

	BinanceURL     string        `envconfig:"BINANCE_URL" default:"https://api.binance.com"`
	NativeSymbol   string        `envconfig:"NATIVE_SYMBOL" default:"SOL"`
	NativePriceTTL time.Duration `envconfig:"NATIVE_PRICE_TTL" default:"30s"`

	RPCEndpoint     string `envconfig:"RPC_ENDPOINT" default:"https://api.mainnet-beta.solana.com"`
	WalletPublicKey string `envconfig:"WALLET_PUBLIC_KEY"`

	HTTPRetryCount int           `envconfig:"HTTP_RETRY_COUNT" default:"2"`
	PriceTimeout   time.Duration `envconfig:"PRICE_HTTP_TIMEOUT" default:"5s"`
	TradeTimeout   time.Duration `envconfig:"TRADE_HTTP_TIMEOUT" default:"30s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
