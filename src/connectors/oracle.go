package connectors

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// PriceOracle returns the current fiat price of one token.
type PriceOracle interface {
	GetPrice(ctx context.Context, tokenAddress string) (decimal.Decimal, error)
}

// FallbackOracle asks each source in order and returns the first positive price.
type FallbackOracle struct {
	sources []namedOracle
	log     *logger.Entry
}

type namedOracle struct {
	name   string
	oracle PriceOracle
}

func NewFallbackOracle(log *logger.Entry) *FallbackOracle {
	if log == nil {
		log = logger.WithField("component", "FallbackOracle")
	}
	return &FallbackOracle{log: log}
}

// Add appends a source. Nil sources are ignored.
func (f *FallbackOracle) Add(name string, oracle PriceOracle) *FallbackOracle {
	if oracle != nil {
		f.sources = append(f.sources, namedOracle{name: name, oracle: oracle})
	}
	return f
}

func (f *FallbackOracle) GetPrice(ctx context.Context, tokenAddress string) (decimal.Decimal, error) {
	var errs error

	for _, src := range f.sources {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}

		price, err := src.oracle.GetPrice(ctx, tokenAddress)
		if err == nil && price.IsPositive() {
			return price, nil
		}
		if err == nil {
			err = fmt.Errorf("non-positive price %s", price.String())
		}

		f.log.WithFields(map[string]interface{}{
			"source": src.name,
			"token":  tokenAddress,
		}).WithError(err).Debug("price source failed, trying next")

		errs = multierr.Append(errs, fmt.Errorf("%s: %w", src.name, err))
	}

	if errs == nil {
		return decimal.Zero, fmt.Errorf("%w for %s: no sources configured", ErrPriceUnavailable, tokenAddress)
	}
	return decimal.Zero, fmt.Errorf("%w for %s: %w", ErrPriceUnavailable, tokenAddress, errs)
}
