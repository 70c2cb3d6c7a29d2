package executors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	LoopPeriod          time.Duration   `envconfig:"LOOP_PERIOD" default:"5s"`
	DefaultSlippage     decimal.Decimal `envconfig:"DEFAULT_SLIPPAGE" default:"10"`
	PriceTimeout        time.Duration   `envconfig:"PRICE_TIMEOUT" default:"10s"`
	TradeTimeout        time.Duration   `envconfig:"TRADE_TIMEOUT" default:"30s"`
	PriceConcurrency    int             `envconfig:"PRICE_CONCURRENCY" default:"4"`
	FinalizeAttempts    int             `envconfig:"FINALIZE_ATTEMPTS" default:"3"`
	NativePriceFallback decimal.Decimal `envconfig:"NATIVE_PRICE_FALLBACK" default:"150"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// withDefaults fills zero values so a partially built Config is usable.
func (c Config) withDefaults() Config {
	if c.LoopPeriod <= 0 {
		c.LoopPeriod = 5 * time.Second
	}
	if !c.DefaultSlippage.IsPositive() {
		c.DefaultSlippage = decimal.NewFromInt(10)
	}
	if c.PriceTimeout <= 0 {
		c.PriceTimeout = 10 * time.Second
	}
	if c.TradeTimeout <= 0 {
		c.TradeTimeout = 30 * time.Second
	}
	if c.PriceConcurrency <= 0 {
		c.PriceConcurrency = 4
	}
	if c.FinalizeAttempts <= 0 {
		c.FinalizeAttempts = 3
	}
	if !c.NativePriceFallback.IsPositive() {
		c.NativePriceFallback = decimal.NewFromInt(150)
	}
	return c
}
