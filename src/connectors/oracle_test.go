package connectors

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubOracle struct {
	price decimal.Decimal
	err   error
	calls int
}

func (s *stubOracle) GetPrice(_ context.Context, _ string) (decimal.Decimal, error) {
	s.calls++
	return s.price, s.err
}

func TestFallbackOracle(t *testing.T) {
	failing := &stubOracle{err: errors.New("down")}
	zero := &stubOracle{price: decimal.Zero}
	good := &stubOracle{price: decimal.RequireFromString("1.25")}
	unused := &stubOracle{price: decimal.NewFromInt(9)}

	o := NewFallbackOracle(nil).
		Add("a", failing).
		Add("b", zero).
		Add("c", good).
		Add("d", unused).
		Add("nil", nil)

	price, err := o.GetPrice(context.Background(), "mint")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("1.25")))
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, zero.calls)
	assert.Equal(t, 0, unused.calls)
}

func TestFallbackOracle_AllFail(t *testing.T) {
	o := NewFallbackOracle(nil).
		Add("a", &stubOracle{err: errors.New("down")}).
		Add("b", &stubOracle{err: errors.New("also down")})

	_, err := o.GetPrice(context.Background(), "mint")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPriceUnavailable)
	assert.Contains(t, err.Error(), "also down")

	_, err = NewFallbackOracle(nil).GetPrice(context.Background(), "mint")
	assert.ErrorIs(t, err, ErrPriceUnavailable)
}
