package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"limitbot/src/model"
)

// TargetPriceFromMarketCap scales the current price by the ratio between the
// target and the current market cap. Supply is assumed constant.
func TargetPriceFromMarketCap(targetMC, currentMC, currentPrice decimal.Decimal) (decimal.Decimal, error) {
	if !currentMC.IsPositive() || !currentPrice.IsPositive() {
		return decimal.Zero, &model.ValidationError{Field: "market_cap", Reason: "current market cap and price must be positive"}
	}
	if !targetMC.IsPositive() {
		return decimal.Zero, &model.ValidationError{Field: "market_cap", Reason: "target market cap must be positive"}
	}

	price := targetMC.Div(currentMC).Mul(currentPrice)

	logger.WithFields(map[string]interface{}{
		"target_mc":     targetMC.String(),
		"current_mc":    currentMC.String(),
		"current_price": currentPrice.String(),
		"target_price":  price.String(),
	}).Debug("Computed target price from market cap")

	return price, nil
}

// MarketCapAtPrice is the inverse of TargetPriceFromMarketCap.
func MarketCapAtPrice(price, currentPrice, currentMC decimal.Decimal) decimal.Decimal {
	if !currentPrice.IsPositive() {
		return decimal.Zero
	}
	return price.Div(currentPrice).Mul(currentMC)
}

// NormalizeAddress trims whitespace around a pasted token address.
// Mint addresses are base58 and case-sensitive, so the case is kept.
func NormalizeAddress(addr string) string {
	return strings.TrimSpace(addr)
}

// FormatPrice renders very small token prices without scientific notation.
//
//	0.000012345 -> 0.00001234
//	1.5         -> 1.5000
//	1234.5678   -> 1234.57
func FormatPrice(p decimal.Decimal) string {
	switch {
	case p.IsZero():
		return "0"
	case p.Abs().LessThan(decimal.NewFromInt(1)):
		// keep four significant digits after the leading zeros
		s := p.Abs().String()
		zeros := 0
		if i := strings.IndexByte(s, '.'); i >= 0 {
			for _, c := range s[i+1:] {
				if c != '0' {
					break
				}
				zeros++
			}
		}
		return p.Truncate(int32(zeros + 4)).String()
	case p.Abs().LessThan(decimal.NewFromInt(1000)):
		return p.StringFixed(4)
	default:
		return p.StringFixed(2)
	}
}

// Capture records a system exception, logs it locally, and optionally
// persists it in the database.
func Capture(
	ctx context.Context,
	repo ExceptionRecorder,
	module string,
	method string,
	orderID string,
	err error,
	contextData map[string]interface{},
) {

	if err == nil {
		return
	}

	var ctxJSON string
	if contextData != nil {
		if b, e := json.Marshal(contextData); e == nil {
			ctxJSON = string(b)
		}
	}

	exc := &model.Exception{
		Service:   "limitbot",
		Module:    module,
		Method:    method,
		Message:   err.Error(),
		Level:     levelFor(err),
		Context:   ctxJSON,
		CreatedAt: time.Now(),
	}
	if orderID != "" {
		exc.OrderID = &orderID
	}

	// Local log
	logger.WithFields(map[string]interface{}{
		"module":   module,
		"method":   method,
		"order_id": orderID,
		"level":    exc.Level,
	}).WithError(err).Error("System exception captured")

	// Persist in database
	if repo != nil {
		if e := repo.Create(ctx, exc); e != nil {
			logger.WithError(e).Error("Failed to persist exception")
		}
	}
}

func levelFor(err error) string {
	if model.IsValidation(err) || model.IsNotFound(err) || model.IsInvalidState(err) {
		return "warn"
	}
	return "error"
}

func describeOrder(o *model.Order) string {
	return fmt.Sprintf("%s %s @ %s", o.Side, o.Token, FormatPrice(o.TargetPrice))
}
