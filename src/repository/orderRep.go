package repository

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"limitbot/src/model"
)

// OrderRepository is the durable order store. Every status change is a
// conditional update on the current status, so two writers racing on the
// same order can never both succeed.
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a repository bound to db.
func NewOrderRepository(db *gorm.DB) *OrderRepository {
	logger.WithField("component", "OrderRepository").
		Debug("Creating new OrderRepository")

	return &OrderRepository{db: db}
}

// Ping verifies the store is reachable.
func (r *OrderRepository) Ping(ctx context.Context) error {
	if r.db == nil {
		return &model.PersistenceError{Op: "ping", Err: errors.New("no database configured")}
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return &model.PersistenceError{Op: "ping", Err: err}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return &model.PersistenceError{Op: "ping", Err: err}
	}
	return nil
}

// ---------------------------------------------------
// Create / read
// ---------------------------------------------------

// Create validates spec and inserts a new pending order.
func (r *OrderRepository) Create(
	ctx context.Context,
	spec model.OrderSpec,
) (*model.Order, error) {

	logger.WithFields(map[string]interface{}{
		"repo":  "OrderRepository",
		"op":    "Create",
		"token": spec.TokenAddress,
		"side":  spec.Side,
	}).Debug("Creating new order")

	if err := spec.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order := &model.Order{
		ID:           uuid.NewString(),
		Token:        spec.Token,
		TokenAddress: spec.TokenAddress,
		Side:         spec.Side,
		AmountKind:   spec.AmountKind(),
		TargetPrice:  spec.TargetPrice,
		Slippage:     spec.Slippage,
		Status:       model.OrderStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if order.Token == "" {
		order.Token = shortAddress(spec.TokenAddress)
	}
	if spec.Side == model.OrderSideSell {
		order.Amount = spec.Amount
	} else {
		order.Amount = decimal.Zero
		order.NativeAmount = spec.NativeAmount
		order.FiatAmount = spec.FiatAmount
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		return tx.Create(&model.OrderLog{
			OrderID:   order.ID,
			ToStatus:  model.OrderStatusPending,
			Reason:    "created",
			CreatedAt: now,
		}).Error
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "Create",
		}).WithError(err).Error("Failed to create order")

		return nil, &model.PersistenceError{Op: "create order", Err: err}
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "OrderRepository",
		"op":       "Create",
		"order_id": order.ID,
	}).Info("Order created successfully")

	return order, nil
}

// FindByID fetches a single order by id. Returns a NotFoundError when absent.
func (r *OrderRepository) FindByID(
	ctx context.Context,
	id string,
) (*model.Order, error) {

	var order model.Order

	err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo": "OrderRepository",
				"op":   "FindByID",
				"id":   id,
			}).Info("Order not found")

			return nil, &model.NotFoundError{Entity: "order", ID: id}
		}

		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch order by ID")

		return nil, &model.PersistenceError{Op: "find order", Err: err}
	}

	return &order, nil
}

// ListActive returns all pending orders, most recently created first.
func (r *OrderRepository) ListActive(ctx context.Context) ([]model.Order, error) {
	var orders []model.Order

	err := r.db.WithContext(ctx).
		Where("status = ?", model.OrderStatusPending).
		Order("created_at DESC, id DESC").
		Find(&orders).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "ListActive",
		}).WithError(err).Error("Failed to list active orders")

		return nil, &model.PersistenceError{Op: "list active orders", Err: err}
	}

	return orders, nil
}

// ListByToken returns the pending orders of one token.
func (r *OrderRepository) ListByToken(ctx context.Context, tokenAddress string) ([]model.Order, error) {
	var orders []model.Order

	err := r.db.WithContext(ctx).
		Where("token_address = ? AND status = ?", tokenAddress, model.OrderStatusPending).
		Order("created_at DESC, id DESC").
		Find(&orders).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "OrderRepository",
			"op":    "ListByToken",
			"token": tokenAddress,
		}).WithError(err).Error("Failed to list orders by token")

		return nil, &model.PersistenceError{Op: "list orders by token", Err: err}
	}

	return orders, nil
}

// CommittedSellAmount sums the token quantity locked by pending sell orders.
func (r *OrderRepository) CommittedSellAmount(ctx context.Context, tokenAddress string) (decimal.Decimal, error) {
	orders, err := r.ListByToken(ctx, tokenAddress)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, o := range orders {
		if o.Side == model.OrderSideSell {
			total = total.Add(o.Amount)
		}
	}
	return total, nil
}

// OrderSearchOptions filters Search.
type OrderSearchOptions struct {
	Status       *model.OrderStatus
	TokenAddress *string
	Side         *model.OrderSide
	Limit        int
	Offset       int
}

// Search lists orders of any status with optional filters, newest first.
func (r *OrderRepository) Search(ctx context.Context, options OrderSearchOptions) ([]model.Order, error) {
	query := r.db.WithContext(ctx).Model(&model.Order{})

	if options.Status != nil {
		query = query.Where("status = ?", *options.Status)
	}
	if options.TokenAddress != nil {
		query = query.Where("token_address = ?", *options.TokenAddress)
	}
	if options.Side != nil {
		query = query.Where("side = ?", *options.Side)
	}
	if options.Limit > 0 {
		query = query.Limit(options.Limit)
	}
	if options.Offset > 0 {
		query = query.Offset(options.Offset)
	}

	var orders []model.Order
	if err := query.Order("created_at DESC, id DESC").Find(&orders).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "Search",
		}).WithError(err).Error("Failed to search orders")

		return nil, &model.PersistenceError{Op: "search orders", Err: err}
	}

	return orders, nil
}

// Logs returns the status audit trail of one order, oldest first.
func (r *OrderRepository) Logs(ctx context.Context, orderID string) ([]model.OrderLog, error) {
	var logs []model.OrderLog
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&logs).Error
	if err != nil {
		return nil, &model.PersistenceError{Op: "list order logs", Err: err}
	}
	return logs, nil
}

// Stats returns order counts grouped by status.
func (r *OrderRepository) Stats(ctx context.Context) (model.OrderStats, error) {
	var rows []struct {
		Status model.OrderStatus
		Count  int64
	}

	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "Stats",
		}).WithError(err).Error("Failed to compute order stats")

		return model.OrderStats{}, &model.PersistenceError{Op: "order stats", Err: err}
	}

	var stats model.OrderStats
	for _, row := range rows {
		switch row.Status {
		case model.OrderStatusPending:
			stats.Active = row.Count
		case model.OrderStatusExecuting:
			stats.Executing = row.Count
		case model.OrderStatusExecuted:
			stats.Executed = row.Count
		case model.OrderStatusCancelled:
			stats.Cancelled = row.Count
		case model.OrderStatusFailed:
			stats.Failed = row.Count
		}
		stats.Total += row.Count
	}

	return stats, nil
}

// ---------------------------------------------------
// Status transitions
// ---------------------------------------------------

// MarkExecuting claims a pending order for execution. It fails with an
// InvalidStateError when the order is no longer pending, which is how a
// second claimant (or a concurrent cancel) loses the race.
func (r *OrderRepository) MarkExecuting(ctx context.Context, id string) error {
	_, err := r.transition(ctx, id, model.OrderStatusPending, model.OrderStatusExecuting, nil, "triggered", nil)
	return err
}

// Cancel moves a pending order to cancelled and returns the updated row.
func (r *OrderRepository) Cancel(ctx context.Context, id string) (*model.Order, error) {
	return r.transition(ctx, id, model.OrderStatusPending, model.OrderStatusCancelled, nil, "cancelled by user", nil)
}

// MarkFailed moves an executing order to failed and records reason.
func (r *OrderRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	_, err := r.transition(ctx, id, model.OrderStatusExecuting, model.OrderStatusFailed,
		map[string]interface{}{"failure_reason": truncate(reason, 512)}, reason, nil)
	return err
}

// UpdateStatus persists a legal transition into status. executedAt and the
// signature are only written for executed.
func (r *OrderRepository) UpdateStatus(
	ctx context.Context,
	id string,
	status model.OrderStatus,
	signature string,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":   "OrderRepository",
		"op":     "UpdateStatus",
		"id":     id,
		"status": status,
	}).Debug("Updating order status")

	from, ok := model.PreviousStatus(status)
	if !ok {
		return &model.InvalidStateError{OrderID: id, Target: status}
	}

	var updates map[string]interface{}
	var sig *string
	if status == model.OrderStatusExecuted {
		if signature == "" {
			return &model.ValidationError{Field: "signature", Reason: "is required for executed orders"}
		}
		sig = &signature
		updates = map[string]interface{}{
			"executed_at":  time.Now().UTC(),
			"tx_signature": signature,
		}
	}

	_, err := r.transition(ctx, id, from, status, updates, "", sig)
	return err
}

// RecoverInterrupted fails every order left in executing, typically by a
// process that stopped between claiming an order and finalizing it. The
// trade outcome of such orders is unknown, so they are never retried.
func (r *OrderRepository) RecoverInterrupted(ctx context.Context, reason string) (int, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("status = ?", model.OrderStatusExecuting).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, &model.PersistenceError{Op: "find interrupted orders", Err: err}
	}

	recovered := 0
	for _, id := range ids {
		if err := r.MarkFailed(ctx, id, reason); err != nil {
			if model.IsInvalidState(err) {
				continue
			}
			return recovered, err
		}
		recovered++
	}

	if recovered > 0 {
		logger.WithFields(map[string]interface{}{
			"repo":  "OrderRepository",
			"op":    "RecoverInterrupted",
			"count": recovered,
		}).Warn("Failed orders interrupted during execution")
	}

	return recovered, nil
}

// transition applies from -> to atomically and appends an audit row in the
// same transaction. The returned order reflects the row after the update.
func (r *OrderRepository) transition(
	ctx context.Context,
	id string,
	from model.OrderStatus,
	to model.OrderStatus,
	updates map[string]interface{},
	reason string,
	signature *string,
) (*model.Order, error) {

	if !model.CanTransition(from, to) {
		return nil, &model.InvalidStateError{OrderID: id, Current: from, Target: to}
	}

	fields := map[string]interface{}{
		"repo": "OrderRepository",
		"op":   "transition",
		"id":   id,
		"from": from,
		"to":   to,
	}

	values := map[string]interface{}{"status": to}
	for k, v := range updates {
		values[k] = v
	}

	var order model.Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Order{}).
			Where("id = ? AND status = ?", id, from).
			Updates(values)
		if res.Error != nil {
			return &model.PersistenceError{Op: "update order status", Err: res.Error}
		}

		if res.RowsAffected == 0 {
			var current model.Order
			err := tx.Select("id", "status").First(&current, "id = ?", id).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &model.NotFoundError{Entity: "order", ID: id}
			}
			if err != nil {
				return &model.PersistenceError{Op: "read order status", Err: err}
			}
			return &model.InvalidStateError{OrderID: id, Current: current.Status, Target: to}
		}

		entry := &model.OrderLog{
			OrderID:     id,
			FromStatus:  from,
			ToStatus:    to,
			Reason:      truncate(reason, 512),
			TxSignature: signature,
			CreatedAt:   time.Now().UTC(),
		}
		if err := tx.Create(entry).Error; err != nil {
			return &model.PersistenceError{Op: "write order log", Err: err}
		}

		if err := tx.First(&order, "id = ?", id).Error; err != nil {
			return &model.PersistenceError{Op: "reload order", Err: err}
		}
		return nil
	})
	if err != nil {
		entry := logger.WithFields(fields).WithError(err)
		if model.IsPersistence(err) {
			entry.Error("Failed to transition order")
		} else {
			entry.Info("Order transition rejected")
		}
		return nil, err
	}

	logger.WithFields(fields).Info("Order status updated")

	return &order, nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func shortAddress(addr string) string {
	if len(addr) <= 8 {
		return addr
	}
	return addr[:4] + "..." + addr[len(addr)-4:]
}
