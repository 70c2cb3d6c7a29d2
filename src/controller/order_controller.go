package controller

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"limitbot/src/model"
)

// OrderRepository is the order store used by the controller.
type OrderRepository interface {
	Create(ctx context.Context, spec model.OrderSpec) (*model.Order, error)
	FindByID(ctx context.Context, id string) (*model.Order, error)
	ListActive(ctx context.Context) ([]model.Order, error)
	ListByToken(ctx context.Context, tokenAddress string) ([]model.Order, error)
	CommittedSellAmount(ctx context.Context, tokenAddress string) (decimal.Decimal, error)
	Cancel(ctx context.Context, id string) (*model.Order, error)
	Stats(ctx context.Context) (model.OrderStats, error)
	Logs(ctx context.Context, orderID string) ([]model.OrderLog, error)
}

type QuoteSource interface {
	GetQuote(ctx context.Context, tokenAddress string) (*model.TokenQuote, error)
}

type BalanceSource interface {
	GetTokenBalance(ctx context.Context, owner, mint string) (decimal.Decimal, error)
}

type ExceptionRecorder interface {
	Create(ctx context.Context, exc *model.Exception) error
}

// PlaceOrderRequest is a user order before the target price is resolved.
// Exactly one of TargetPrice and TargetMarketCap is expected.
type PlaceOrderRequest struct {
	TokenAddress    string           `json:"token_address"`
	Token           string           `json:"token,omitempty"`
	Side            model.OrderSide  `json:"side"`
	Amount          decimal.Decimal  `json:"amount"`
	NativeAmount    *decimal.Decimal `json:"sol_amount,omitempty"`
	TargetPrice     *decimal.Decimal `json:"target_price,omitempty"`
	TargetMarketCap *decimal.Decimal `json:"target_market_cap,omitempty"`
	Slippage        *decimal.Decimal `json:"slippage,omitempty"`
}

// OrderDetail is an order with its status history.
type OrderDetail struct {
	model.Order
	History []model.OrderLog `json:"history"`
}

// OrderController holds the user-facing order use cases. It never executes
// trades; that belongs to the monitor.
type OrderController struct {
	orders     OrderRepository
	quotes     QuoteSource
	balances   BalanceSource
	wallet     string
	exceptions ExceptionRecorder
	log        *logger.Entry
}

func NewOrderController(orders OrderRepository, log *logger.Entry) *OrderController {
	if log == nil {
		log = logger.WithField("component", "OrderController")
	}
	return &OrderController{orders: orders, log: log}
}

// WithQuotes enables token symbol lookup and market cap targets.
func (c *OrderController) WithQuotes(q QuoteSource) *OrderController {
	c.quotes = q
	return c
}

// WithBalances enables the wallet balance check on sell orders.
// An empty wallet disables it.
func (c *OrderController) WithBalances(b BalanceSource, wallet string) *OrderController {
	c.balances = b
	c.wallet = wallet
	return c
}

func (c *OrderController) WithExceptions(r ExceptionRecorder) *OrderController {
	c.exceptions = r
	return c
}

// PlaceOrder validates the request, resolves a market cap target into a
// price, checks the wallet for sells and registers a pending order.
func (c *OrderController) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*model.Order, error) {
	req.TokenAddress = NormalizeAddress(req.TokenAddress)
	if req.TokenAddress == "" {
		return nil, &model.ValidationError{Field: "token_address", Reason: "is required"}
	}

	log := c.log.WithFields(map[string]interface{}{
		"token": req.TokenAddress,
		"side":  req.Side,
	})

	var quote *model.TokenQuote
	if c.quotes != nil {
		q, err := c.quotes.GetQuote(ctx, req.TokenAddress)
		if err != nil {
			log.WithError(err).Warn("token quote unavailable")
		} else {
			quote = q
		}
	}

	target, err := c.resolveTarget(req, quote)
	if err != nil {
		return nil, err
	}

	spec := model.OrderSpec{
		Token:        req.Token,
		TokenAddress: req.TokenAddress,
		Side:         req.Side,
		Amount:       req.Amount,
		NativeAmount: req.NativeAmount,
		TargetPrice:  target,
		Slippage:     req.Slippage,
	}
	if spec.Token == "" && quote != nil {
		spec.Token = quote.Symbol
	}
	if spec.Side == model.OrderSideBuy {
		spec.Amount = decimal.Zero
	}

	if err := spec.Validate(); err != nil {
		return nil, err
	}

	if spec.Side == model.OrderSideSell {
		if err := c.checkSellBalance(ctx, spec); err != nil {
			return nil, err
		}
	}

	order, err := c.orders.Create(ctx, spec)
	if err != nil {
		if !model.IsValidation(err) {
			Capture(ctx, c.exceptions, "controller", "PlaceOrder", "", err, map[string]interface{}{
				"token": req.TokenAddress,
				"side":  req.Side,
			})
		}
		return nil, err
	}

	log.WithField("order_id", order.ID).Infof("order placed: %s", describeOrder(order))
	return order, nil
}

func (c *OrderController) resolveTarget(req PlaceOrderRequest, quote *model.TokenQuote) (decimal.Decimal, error) {
	switch {
	case req.TargetPrice != nil && req.TargetMarketCap != nil:
		return decimal.Zero, &model.ValidationError{Field: "target_price", Reason: "give either a price or a market cap, not both"}
	case req.TargetPrice != nil:
		return *req.TargetPrice, nil
	case req.TargetMarketCap != nil:
		if quote == nil {
			return decimal.Zero, &model.TransientExternalError{
				Service: "quotes",
				Err:     fmt.Errorf("current market cap of %s unknown", req.TokenAddress),
			}
		}
		return TargetPriceFromMarketCap(*req.TargetMarketCap, quote.MarketCap, quote.PriceUSD)
	}
	return decimal.Zero, &model.ValidationError{Field: "target_price", Reason: "is required"}
}

// checkSellBalance rejects a sell whose quantity exceeds the wallet balance
// minus what pending sells of the same token already commit.
func (c *OrderController) checkSellBalance(ctx context.Context, spec model.OrderSpec) error {
	if c.balances == nil || c.wallet == "" {
		return nil
	}

	balance, err := c.balances.GetTokenBalance(ctx, c.wallet, spec.TokenAddress)
	if err != nil {
		return err
	}

	committed, err := c.orders.CommittedSellAmount(ctx, spec.TokenAddress)
	if err != nil {
		return err
	}

	available := balance.Sub(committed)
	if spec.Amount.GreaterThan(available) {
		c.log.WithFields(map[string]interface{}{
			"token":     spec.TokenAddress,
			"balance":   balance.String(),
			"committed": committed.String(),
			"requested": spec.Amount.String(),
		}).Warn("sell amount exceeds available balance")

		return &model.ValidationError{
			Field:  "amount",
			Reason: fmt.Sprintf("exceeds available balance %s (%s committed in pending sells)", available, committed),
		}
	}
	return nil
}

// CancelOrder cancels a pending order. Any other status yields an
// InvalidStateError carrying the current status.
func (c *OrderController) CancelOrder(ctx context.Context, id string) (*model.Order, error) {
	order, err := c.orders.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}
	c.log.WithField("order_id", id).Info("order cancelled")
	return order, nil
}

func (c *OrderController) GetOrder(ctx context.Context, id string) (*OrderDetail, error) {
	order, err := c.orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	logs, err := c.orders.Logs(ctx, id)
	if err != nil {
		return nil, err
	}
	return &OrderDetail{Order: *order, History: logs}, nil
}

// ListOrders returns pending orders, optionally for one token only.
func (c *OrderController) ListOrders(ctx context.Context, tokenAddress string) ([]model.Order, error) {
	tokenAddress = NormalizeAddress(tokenAddress)
	if tokenAddress != "" {
		return c.orders.ListByToken(ctx, tokenAddress)
	}
	return c.orders.ListActive(ctx)
}

func (c *OrderController) Stats(ctx context.Context) (model.OrderStats, error) {
	return c.orders.Stats(ctx)
}

// Quote returns the current quote for a token, or an error when no quote
// source is configured.
func (c *OrderController) Quote(ctx context.Context, tokenAddress string) (*model.TokenQuote, error) {
	if c.quotes == nil {
		return nil, &model.TransientExternalError{Service: "quotes", Err: fmt.Errorf("no quote source configured")}
	}
	return c.quotes.GetQuote(ctx, NormalizeAddress(tokenAddress))
}
