package connectors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrPriceUnavailable    = errors.New("price unavailable")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrSlippageExceeded    = errors.New("slippage tolerance exceeded")
	ErrTradeRejected       = errors.New("trade rejected")
	ErrNoSignature         = errors.New("trade response carried no signature")
)

// tradeErrorPatterns maps fragments of PumpPortal error text to the
// error reported on the failed order.
var tradeErrorPatterns = []struct {
	fragment string
	err      error
}{
	{"insufficient", ErrInsufficientBalance},
	{"slippage", ErrSlippageExceeded},
}

// ClassifyTradeError turns a raw trade API message into a typed error.
// Unrecognized messages are wrapped in ErrTradeRejected.
func ClassifyTradeError(msg string) error {
	lower := strings.ToLower(msg)
	for _, p := range tradeErrorPatterns {
		if strings.Contains(lower, p.fragment) {
			return fmt.Errorf("%w: %s", p.err, msg)
		}
	}
	if msg == "" {
		return ErrTradeRejected
	}
	return fmt.Errorf("%w: %s", ErrTradeRejected, msg)
}
