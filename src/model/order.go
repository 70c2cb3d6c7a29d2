package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusExecuting OrderStatus = "executing"
	OrderStatusExecuted  OrderStatus = "executed"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusFailed    OrderStatus = "failed"
)

// orderTransitions lists every legal move of the order lifecycle.
// Terminal statuses have no entry.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusExecuting, OrderStatusCancelled},
	OrderStatusExecuting: {OrderStatusExecuted, OrderStatusFailed},
}

// IsTerminal reports whether no further transition is allowed from s.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusExecuted || s == OrderStatusCancelled || s == OrderStatusFailed
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusExecuting, OrderStatusExecuted, OrderStatusCancelled, OrderStatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is an edge of the order state machine.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PreviousStatus returns the only status from which to can be reached.
func PreviousStatus(to OrderStatus) (OrderStatus, bool) {
	for from, nexts := range orderTransitions {
		for _, next := range nexts {
			if next == to {
				return from, true
			}
		}
	}
	return "", false
}

// AmountKind records which amount column is authoritative for a row.
type AmountKind string

const (
	AmountKindToken  AmountKind = "token"
	AmountKindNative AmountKind = "native"
	AmountKindFiat   AmountKind = "fiat"
)

// Order is a price-triggered trade intent.
//
// Sell orders carry a token quantity in Amount. Buy orders carry the amount to
// spend in NativeAmount or, for rows created by older versions, in FiatAmount.
type Order struct {
	ID           string           `gorm:"primaryKey;size:36" json:"id"`
	Token        string           `gorm:"size:64;not null" json:"token"`
	TokenAddress string           `gorm:"size:64;not null;index" json:"token_address"`
	Side         OrderSide        `gorm:"size:10;not null" json:"side"`
	AmountKind   AmountKind       `gorm:"size:10" json:"amount_kind"`
	Amount       decimal.Decimal  `gorm:"type:numeric;not null;default:0" json:"amount"`
	NativeAmount *decimal.Decimal `gorm:"type:numeric;column:sol_amount" json:"sol_amount,omitempty"`
	FiatAmount   *decimal.Decimal `gorm:"type:numeric;column:usd_amount" json:"usd_amount,omitempty"`
	TargetPrice  decimal.Decimal  `gorm:"type:numeric;not null" json:"target_price"`
	Slippage     *decimal.Decimal `gorm:"type:numeric" json:"slippage,omitempty"`
	Status       OrderStatus      `gorm:"size:20;not null;default:pending;index" json:"status"`

	FailureReason string     `gorm:"size:512" json:"failure_reason,omitempty"`
	TxSignature   *string    `gorm:"size:128" json:"tx_signature,omitempty"`
	ExecutedAt    *time.Time `json:"executed_at,omitempty"`
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	Logs []OrderLog `gorm:"foreignKey:OrderID" json:"order_logs,omitempty"`
}

// TableName allows you to control the exact table name for orders.
func (Order) TableName() string {
	return "orders"
}

// SlippageOr returns the order slippage, or def when none was stored.
func (o *Order) SlippageOr(def decimal.Decimal) decimal.Decimal {
	if o.Slippage == nil || !o.Slippage.IsPositive() {
		return def
	}
	return *o.Slippage
}

// Denomination tells the executor how to read a trade amount.
type Denomination string

const (
	DenominationNative Denomination = "native"
	DenominationToken  Denomination = "token"
)

type ResolvedAmount struct {
	Value        decimal.Decimal
	Denomination Denomination
}

// ResolveAmount normalizes the stored amount columns into the single value
// sent to the trade executor. For buys the native amount wins over the fiat
// amount; a fiat amount is converted with nativePrice.
func (o *Order) ResolveAmount(nativePrice decimal.Decimal) (ResolvedAmount, error) {
	switch o.Side {
	case OrderSideSell:
		if !o.Amount.IsPositive() {
			return ResolvedAmount{}, &ValidationError{Field: "amount", Reason: "sell order has no token quantity"}
		}
		return ResolvedAmount{Value: o.Amount, Denomination: DenominationToken}, nil

	case OrderSideBuy:
		if o.NativeAmount != nil && o.NativeAmount.IsPositive() {
			return ResolvedAmount{Value: *o.NativeAmount, Denomination: DenominationNative}, nil
		}
		if o.FiatAmount != nil && o.FiatAmount.IsPositive() {
			if !nativePrice.IsPositive() {
				return ResolvedAmount{}, &ValidationError{Field: "native_price", Reason: "cannot convert fiat amount without a native price"}
			}
			return ResolvedAmount{
				Value:        o.FiatAmount.Div(nativePrice),
				Denomination: DenominationNative,
			}, nil
		}
		return ResolvedAmount{}, &ValidationError{Field: "amount", Reason: "buy order has no spend amount"}
	}

	return ResolvedAmount{}, &ValidationError{Field: "side", Reason: "unknown side " + string(o.Side)}
}

// NeedsNativePrice reports whether resolving the amount requires a native price.
func (o *Order) NeedsNativePrice() bool {
	if o.Side != OrderSideBuy {
		return false
	}
	if o.NativeAmount != nil && o.NativeAmount.IsPositive() {
		return false
	}
	return o.FiatAmount != nil && o.FiatAmount.IsPositive()
}

// OrderSpec is the input accepted when registering a new order.
type OrderSpec struct {
	Token        string           `json:"token"`
	TokenAddress string           `json:"token_address"`
	Side         OrderSide        `json:"side"`
	Amount       decimal.Decimal  `json:"amount"`
	NativeAmount *decimal.Decimal `json:"sol_amount,omitempty"`
	FiatAmount   *decimal.Decimal `json:"usd_amount,omitempty"`
	TargetPrice  decimal.Decimal  `json:"target_price"`
	Slippage     *decimal.Decimal `json:"slippage,omitempty"`
}

var (
	minSlippage = decimal.NewFromInt(1)
	maxSlippage = decimal.NewFromInt(50)
)

// Validate checks the fields required for the order side.
func (s OrderSpec) Validate() error {
	if s.TokenAddress == "" {
		return &ValidationError{Field: "token_address", Reason: "is required"}
	}
	if !s.Side.Valid() {
		return &ValidationError{Field: "side", Reason: "must be buy or sell"}
	}
	if !s.TargetPrice.IsPositive() {
		return &ValidationError{Field: "target_price", Reason: "must be positive"}
	}
	if s.Slippage != nil && (s.Slippage.LessThan(minSlippage) || s.Slippage.GreaterThan(maxSlippage)) {
		return &ValidationError{Field: "slippage", Reason: "must be between 1 and 50"}
	}

	switch s.Side {
	case OrderSideSell:
		if !s.Amount.IsPositive() {
			return &ValidationError{Field: "amount", Reason: "must be positive"}
		}
	case OrderSideBuy:
		native := s.NativeAmount != nil && s.NativeAmount.IsPositive()
		fiat := s.FiatAmount != nil && s.FiatAmount.IsPositive()
		if !native && !fiat {
			return &ValidationError{Field: "sol_amount", Reason: "must be positive"}
		}
	}

	return nil
}

// AmountKind returns the authoritative amount column for the spec.
func (s OrderSpec) AmountKind() AmountKind {
	if s.Side == OrderSideSell {
		return AmountKindToken
	}
	if s.NativeAmount != nil && s.NativeAmount.IsPositive() {
		return AmountKindNative
	}
	return AmountKindFiat
}

// OrderStats holds order counts grouped by status.
type OrderStats struct {
	Active    int64 `json:"active"`
	Executing int64 `json:"executing"`
	Executed  int64 `json:"executed"`
	Cancelled int64 `json:"cancelled"`
	Failed    int64 `json:"failed"`
	Total     int64 `json:"total"`
}
