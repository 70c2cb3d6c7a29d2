// model/order_execution_log.go
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderExecutionStatus constants describe the outcome of one trade submission.
const (
	OrderExecutionStatusPending = "pending"
	OrderExecutionStatusFilled  = "filled"
	OrderExecutionStatusError   = "error"
)

// OrderExecutionLog stores each submission sent to the trade executor and its conclusion.
type OrderExecutionLog struct {
	ID uint `gorm:"primaryKey" json:"id"`

	OrderID string `gorm:"size:36;index" json:"order_id"`

	// Snapshot of the request at submission time
	Side         OrderSide       `gorm:"size:10" json:"side"`
	TokenAddress string          `gorm:"size:64" json:"token_address"`
	Amount       decimal.Decimal `gorm:"type:numeric" json:"amount"`
	Denomination Denomination    `gorm:"size:10" json:"denomination"`
	Slippage     decimal.Decimal `gorm:"type:numeric" json:"slippage"`
	TriggerPrice decimal.Decimal `gorm:"type:numeric" json:"trigger_price"`

	Status       string     `gorm:"size:20;not null" json:"status"` // see OrderExecutionStatus* constants
	TxSignature  *string    `gorm:"size:128" json:"tx_signature,omitempty"`
	ErrorMessage *string    `gorm:"type:text" json:"error_message,omitempty"`
	RequestedAt  time.Time  `json:"requested_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// TableName allows you to control the exact table name for execution logs.
func (OrderExecutionLog) TableName() string {
	return "order_execution_logs"
}

// OrderLog is one row of the status audit trail. A row is written in the same
// transaction as every status change.
type OrderLog struct {
	ID uint `gorm:"primaryKey" json:"id"`

	OrderID     string      `gorm:"size:36;index" json:"order_id"`
	FromStatus  OrderStatus `gorm:"size:20" json:"from_status"`
	ToStatus    OrderStatus `gorm:"size:20;not null" json:"to_status"`
	Reason      string      `gorm:"size:512" json:"reason,omitempty"`
	TxSignature *string     `gorm:"size:128" json:"tx_signature,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

func (OrderLog) TableName() string {
	return "order_logs"
}
