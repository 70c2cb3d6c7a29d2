package model

import "time"

// Exception represents a system-level error that must be persisted
// for auditing, debugging, and monitoring purposes.
type Exception struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Where the error happened
	Service string `gorm:"size:100;index" json:"service"` // e.g. "limitbot"
	Module  string `gorm:"size:100;index" json:"module"`  // e.g. "monitor"
	Method  string `gorm:"size:100" json:"method"`        // e.g. "CheckOrders"

	// Order the error is attached to, when there is one
	OrderID *string `gorm:"size:36;index" json:"order_id,omitempty"`

	// Error information
	Message string `gorm:"type:text" json:"message"` // err.Error()

	// Severity level
	Level string `gorm:"size:20;index" json:"level"` // debug | info | warn | error | fatal

	// Extra context stored as JSON text (optional)
	Context string `gorm:"type:text" json:"context,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
