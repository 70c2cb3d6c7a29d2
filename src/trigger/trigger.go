package trigger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"limitbot/src/model"
)

var ErrInvalidPrice = errors.New("price must be positive")

// ShouldExecute reports whether the observed price satisfies the order's
// trigger condition. Buys fire at or below the target, sells at or above it.
func ShouldExecute(order *model.Order, price decimal.Decimal) (bool, error) {
	if order == nil {
		return false, errors.New("nil order")
	}
	if !price.IsPositive() {
		return false, fmt.Errorf("order %s: %w (got %s)", order.ID, ErrInvalidPrice, price.String())
	}

	switch order.Side {
	case model.OrderSideBuy:
		return price.LessThanOrEqual(order.TargetPrice), nil
	case model.OrderSideSell:
		return price.GreaterThanOrEqual(order.TargetPrice), nil
	}

	return false, fmt.Errorf("order %s: unknown side %q", order.ID, order.Side)
}

// Distance returns how far the price is from the target, as a percentage of
// the target. Negative means the trigger condition is already met.
func Distance(order *model.Order, price decimal.Decimal) decimal.Decimal {
	if order == nil || !order.TargetPrice.IsPositive() {
		return decimal.Zero
	}
	diff := price.Sub(order.TargetPrice)
	if order.Side == model.OrderSideSell {
		diff = diff.Neg()
	}
	return diff.Div(order.TargetPrice).Mul(decimal.NewFromInt(100))
}
