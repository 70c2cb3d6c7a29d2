package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"limitbot/src/model"
)

// ExecutionLogRepository records every submission sent to the trade executor.
type ExecutionLogRepository struct {
	db *gorm.DB
}

func NewExecutionLogRepository(db *gorm.DB) *ExecutionLogRepository {
	return &ExecutionLogRepository{db: db}
}

// Start inserts a pending execution log before the trade is submitted.
func (r *ExecutionLogRepository) Start(ctx context.Context, entry *model.OrderExecutionLog) error {
	now := time.Now().UTC()
	entry.Status = model.OrderExecutionStatusPending
	entry.RequestedAt = now
	entry.CreatedAt = now

	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "ExecutionLogRepository",
			"op":       "Start",
			"order_id": entry.OrderID,
		}).WithError(err).Error("Failed to write execution log")
		return err
	}
	return nil
}

// Complete stores the executor outcome. Exactly one of signature or errMsg is expected.
func (r *ExecutionLogRepository) Complete(ctx context.Context, id uint, signature string, errMsg string) error {
	now := time.Now().UTC()
	values := map[string]interface{}{"completed_at": now}
	if errMsg != "" {
		values["status"] = model.OrderExecutionStatusError
		values["error_message"] = errMsg
	} else {
		values["status"] = model.OrderExecutionStatusFilled
		values["tx_signature"] = signature
	}

	err := r.db.WithContext(ctx).
		Model(&model.OrderExecutionLog{}).
		Where("id = ?", id).
		Updates(values).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ExecutionLogRepository",
			"op":   "Complete",
			"id":   id,
		}).WithError(err).Error("Failed to complete execution log")
	}
	return err
}

// ForOrder returns every execution attempt of one order.
func (r *ExecutionLogRepository) ForOrder(ctx context.Context, orderID string) ([]model.OrderExecutionLog, error) {
	var out []model.OrderExecutionLog
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&out).Error
	return out, err
}
