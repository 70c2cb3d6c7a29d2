package executors

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"limitbot/src/model"
	"limitbot/src/trigger"
)

const interruptedReason = "interrupted"

var (
	ErrAlreadyRunning  = errors.New("monitor already running")
	ErrCycleInProgress = errors.New("a check cycle is already in progress")
)

// OrderStore is the part of the order repository the monitor needs.
type OrderStore interface {
	Ping(ctx context.Context) error
	ListActive(ctx context.Context) ([]model.Order, error)
	MarkExecuting(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id string, status model.OrderStatus, signature string) error
	MarkFailed(ctx context.Context, id string, reason string) error
	RecoverInterrupted(ctx context.Context, reason string) (int, error)
}

type PriceOracle interface {
	GetPrice(ctx context.Context, tokenAddress string) (decimal.Decimal, error)
}

type NativePriceSource interface {
	NativePrice(ctx context.Context) (decimal.Decimal, error)
}

// TradeExecutor submits a trade and returns its settlement signature.
type TradeExecutor interface {
	Execute(ctx context.Context, req model.TradeRequest) (model.Settlement, error)
}

type ExceptionRecorder interface {
	Create(ctx context.Context, exc *model.Exception) error
}

type ExecutionRecorder interface {
	Start(ctx context.Context, entry *model.OrderExecutionLog) error
	Complete(ctx context.Context, id uint, signature string, errMsg string) error
}

type State int

const (
	StateStopped State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "stopped"
}

// CycleResult summarizes one pass over the active orders.
type CycleResult struct {
	CheckedAt time.Time `json:"checked_at"`
	Orders    int       `json:"orders"`
	Tokens    int       `json:"tokens"`
	Prices    int       `json:"prices"`
	Triggered int       `json:"triggered"`
	Executed  int       `json:"executed"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	Err       error     `json:"-"`
}

// Monitor periodically evaluates pending orders against current prices and
// executes those whose trigger condition holds.
//
// An order is claimed with an atomic pending -> executing write before the
// executor is called, and always finalized to executed or failed afterwards.
// That claim is what guarantees a trade is submitted at most once per order.
type Monitor struct {
	cfg        Config
	store      OrderStore
	oracle     PriceOracle
	executor   TradeExecutor
	native     NativePriceSource
	exceptions ExceptionRecorder
	executions ExecutionRecorder
	log        *logger.Entry

	mu        sync.Mutex
	state     State
	stopCh    chan struct{}
	done      chan struct{}
	lastCheck time.Time

	cycleMu sync.Mutex
}

func NewMonitor(cfg Config, store OrderStore, oracle PriceOracle, executor TradeExecutor, log *logger.Entry) *Monitor {
	if log == nil {
		log = logger.WithField("component", "Monitor")
	}
	return &Monitor{
		cfg:      cfg.withDefaults(),
		store:    store,
		oracle:   oracle,
		executor: executor,
		log:      log,
	}
}

// WithNativePrice sets the source used to convert fiat buy amounts.
func (m *Monitor) WithNativePrice(n NativePriceSource) *Monitor {
	m.native = n
	return m
}

// WithExceptions persists per-order cycle errors.
func (m *Monitor) WithExceptions(r ExceptionRecorder) *Monitor {
	m.exceptions = r
	return m
}

// WithExecutions records every trade submission.
func (m *Monitor) WithExecutions(r ExecutionRecorder) *Monitor {
	m.executions = r
	return m
}

// Start moves the monitor to running. The first cycle runs right away, then
// one per LoopPeriod. The loop outlives ctx; only Stop ends it.
func (m *Monitor) Start(ctx context.Context) error {
	if m.IsRunning() {
		return ErrAlreadyRunning
	}

	// Recovery waits for a manual cycle in flight so it never fails an order
	// that cycle has claimed. Lock order is cycleMu then mu.
	m.cycleMu.Lock()
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateRunning {
		m.cycleMu.Unlock()
		return ErrAlreadyRunning
	}

	err := m.prepare(ctx)
	m.cycleMu.Unlock()
	if err != nil {
		return err
	}

	m.state = StateRunning
	m.stopCh = make(chan struct{})
	m.done = make(chan struct{})

	go m.loop(context.WithoutCancel(ctx), m.stopCh, m.done)

	m.log.WithField("period", m.cfg.LoopPeriod.String()).Info("monitor started")
	return nil
}

// prepare checks the store and fails orders left executing by a previous run.
// Callers hold cycleMu.
func (m *Monitor) prepare(ctx context.Context) error {
	if err := m.store.Ping(ctx); err != nil {
		m.log.WithError(err).Error("order store unavailable, monitor not started")
		if !model.IsPersistence(err) {
			err = &model.PersistenceError{Op: "ping", Err: err}
		}
		return err
	}

	n, err := m.store.RecoverInterrupted(ctx, interruptedReason)
	if err != nil {
		m.log.WithError(err).Error("failed to recover interrupted orders")
		return err
	}
	if n > 0 {
		m.log.WithField("count", n).Warn("orders interrupted during execution marked failed")
	}
	return nil
}

// Stop moves the monitor to stopped and waits for an in-flight cycle to
// finish. Calling Stop on a stopped monitor does nothing.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.state == StateStopped {
		m.mu.Unlock()
		return
	}
	stopCh, done := m.stopCh, m.done
	m.state = StateStopped
	m.mu.Unlock()

	close(stopCh)
	<-done

	m.log.Info("monitor stopped")
}

func (m *Monitor) IsRunning() bool {
	return m.State() == StateRunning
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastCheckTime is the start time of the latest cycle, zero before the first.
func (m *Monitor) LastCheckTime() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCheck
}

// MonitoredTokens lists the distinct tokens that have pending orders.
func (m *Monitor) MonitoredTokens(ctx context.Context) ([]string, error) {
	orders, err := m.store.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	return distinctTokens(orders), nil
}

func (m *Monitor) loop(ctx context.Context, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	m.runCycle(ctx, stopCh)

	ticker := time.NewTicker(m.cfg.LoopPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.runCycle(ctx, stopCh)
		}
	}
}

func (m *Monitor) runCycle(ctx context.Context, stopCh <-chan struct{}) {
	res, err := m.checkOrders(ctx, stopCh)
	if errors.Is(err, ErrCycleInProgress) {
		m.log.Debug("previous cycle still running, tick skipped")
		return
	}

	entry := m.log.WithFields(map[string]interface{}{
		"orders":    res.Orders,
		"tokens":    res.Tokens,
		"prices":    res.Prices,
		"triggered": res.Triggered,
		"executed":  res.Executed,
		"failed":    res.Failed,
	})
	if err != nil {
		entry.WithError(err).Warn("check cycle finished with errors")
		return
	}
	if res.Orders > 0 {
		entry.Debug("check cycle finished")
	}
}

func stopRequested(stopCh <-chan struct{}) bool {
	if stopCh == nil {
		return false
	}
	select {
	case <-stopCh:
		return true
	default:
		return false
	}
}

// CheckOrders runs one cycle. Cycles never overlap: a call made while
// another cycle is in progress returns ErrCycleInProgress without work.
func (m *Monitor) CheckOrders(ctx context.Context) (CycleResult, error) {
	return m.checkOrders(ctx, nil)
}

// checkOrders stops claiming new orders once stopCh is closed. Orders
// already claimed are always finalized.
func (m *Monitor) checkOrders(ctx context.Context, stopCh <-chan struct{}) (CycleResult, error) {
	if !m.cycleMu.TryLock() {
		return CycleResult{}, ErrCycleInProgress
	}
	defer m.cycleMu.Unlock()

	res := CycleResult{CheckedAt: time.Now().UTC()}

	m.mu.Lock()
	m.lastCheck = res.CheckedAt
	m.mu.Unlock()

	orders, err := m.store.ListActive(ctx)
	if err != nil {
		m.log.WithError(err).Error("failed to list active orders")
		res.Err = err
		return res, err
	}
	res.Orders = len(orders)
	if len(orders) == 0 {
		return res, nil
	}

	tokens := distinctTokens(orders)
	res.Tokens = len(tokens)

	prices := m.fetchPrices(ctx, tokens)
	res.Prices = len(prices)

	var errs error
	nativePrice := decimal.Zero

	for i := range orders {
		order := &orders[i]

		if stopRequested(stopCh) {
			res.Skipped += len(orders) - i
			break
		}

		price, ok := prices[order.TokenAddress]
		if !ok {
			res.Skipped++
			continue
		}

		fire, err := trigger.ShouldExecute(order, price)
		if err != nil {
			errs = multierr.Append(errs, err)
			m.recordException(ctx, "ShouldExecute", order.ID, err)
			continue
		}
		if !fire {
			continue
		}

		res.Triggered++

		if order.NeedsNativePrice() && !nativePrice.IsPositive() {
			nativePrice = m.nativePrice(ctx)
		}

		executed, err := m.executeOrder(ctx, order, price, nativePrice)
		switch {
		case executed:
			res.Executed++
		case err == nil:
			res.Skipped++
		default:
			res.Failed++
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
			m.recordException(ctx, "executeOrder", order.ID, err)
		}
	}

	res.Err = errs
	return res, errs
}

// fetchPrices queries the oracle once per distinct token. Tokens whose price
// is unavailable are left out and their orders wait for the next cycle.
func (m *Monitor) fetchPrices(ctx context.Context, tokens []string) map[string]decimal.Decimal {
	prices := make(map[string]decimal.Decimal, len(tokens))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(m.cfg.PriceConcurrency)

	for _, token := range tokens {
		token := token
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, m.cfg.PriceTimeout)
			defer cancel()

			price, err := m.oracle.GetPrice(pctx, token)
			if err != nil || !price.IsPositive() {
				m.log.WithField("token", token).WithError(err).Warn("price unavailable, skipping token this cycle")
				return nil
			}

			mu.Lock()
			prices[token] = price
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return prices
}

func (m *Monitor) nativePrice(ctx context.Context) decimal.Decimal {
	if m.native == nil {
		return m.cfg.NativePriceFallback
	}

	nctx, cancel := context.WithTimeout(ctx, m.cfg.PriceTimeout)
	defer cancel()

	p, err := m.native.NativePrice(nctx)
	if err != nil || !p.IsPositive() {
		m.log.WithError(err).Warn("native price unavailable, using fallback")
		return m.cfg.NativePriceFallback
	}
	return p
}

// executeOrder claims, submits and finalizes one triggered order. It returns
// (false, nil) when the claim was lost to a concurrent writer.
func (m *Monitor) executeOrder(ctx context.Context, order *model.Order, price, nativePrice decimal.Decimal) (bool, error) {
	log := m.log.WithFields(map[string]interface{}{
		"order_id": order.ID,
		"token":    order.TokenAddress,
		"side":     order.Side,
		"target":   order.TargetPrice.String(),
		"price":    price.String(),
	})

	if err := m.store.MarkExecuting(ctx, order.ID); err != nil {
		if model.IsInvalidState(err) || model.IsNotFound(err) {
			log.WithError(err).Info("order no longer pending, skipping")
			return false, nil
		}
		return false, err
	}

	log.Info("order triggered")

	// From here on the order must leave executing, whatever happens.
	amount, err := order.ResolveAmount(nativePrice)
	if err != nil {
		log.WithError(err).Error("cannot resolve trade amount")
		return false, multierr.Append(err, m.finalizeFailed(ctx, order.ID, err.Error()))
	}

	req := model.TradeRequest{
		OrderID:      order.ID,
		Side:         order.Side,
		TokenAddress: order.TokenAddress,
		Amount:       amount.Value,
		Denomination: amount.Denomination,
		Slippage:     order.SlippageOr(m.cfg.DefaultSlippage),
	}

	logID := m.startExecutionLog(ctx, req, price)

	tradeCtx, cancel := context.WithTimeout(ctx, m.cfg.TradeTimeout)
	settlement, err := m.submit(tradeCtx, req)
	cancel()

	if err == nil && settlement.Signature == "" {
		err = errors.New("executor returned no signature")
	}

	if err != nil {
		log.WithError(err).Error("trade failed")
		m.completeExecutionLog(ctx, logID, "", err.Error())
		return false, multierr.Append(err, m.finalizeFailed(ctx, order.ID, err.Error()))
	}

	m.completeExecutionLog(ctx, logID, settlement.Signature, "")

	if err := m.finalize(ctx, order.ID, func(c context.Context) error {
		return m.store.UpdateStatus(c, order.ID, model.OrderStatusExecuted, settlement.Signature)
	}); err != nil {
		log.WithError(err).WithField("signature", settlement.Signature).
			Error("trade submitted but executed status could not be saved")
		return false, err
	}

	log.WithField("signature", settlement.Signature).Info("order executed")
	return true, nil
}

// submit calls the executor, turning a panic into an error so the claimed
// order is still finalized.
func (m *Monitor) submit(ctx context.Context, req model.TradeRequest) (settlement model.Settlement, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("trade executor panic: %v", r)
		}
	}()
	return m.executor.Execute(ctx, req)
}

func (m *Monitor) finalizeFailed(ctx context.Context, id, reason string) error {
	return m.finalize(ctx, id, func(c context.Context) error {
		return m.store.MarkFailed(c, id, reason)
	})
}

// finalize writes a final status on a context detached from cancellation,
// retrying transient store errors.
func (m *Monitor) finalize(ctx context.Context, id string, write func(context.Context) error) error {
	base := context.WithoutCancel(ctx)

	var err error
	for attempt := 1; attempt <= m.cfg.FinalizeAttempts; attempt++ {
		wctx, cancel := context.WithTimeout(base, 10*time.Second)
		err = write(wctx)
		cancel()

		if err == nil || model.IsInvalidState(err) || model.IsNotFound(err) || model.IsValidation(err) {
			return err
		}

		m.log.WithFields(map[string]interface{}{
			"order_id": id,
			"attempt":  attempt,
		}).WithError(err).Warn("final status write failed")

		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	return err
}

func (m *Monitor) startExecutionLog(ctx context.Context, req model.TradeRequest, price decimal.Decimal) uint {
	if m.executions == nil {
		return 0
	}
	entry := &model.OrderExecutionLog{
		OrderID:      req.OrderID,
		Side:         req.Side,
		TokenAddress: req.TokenAddress,
		Amount:       req.Amount,
		Denomination: req.Denomination,
		Slippage:     req.Slippage,
		TriggerPrice: price,
	}
	if err := m.executions.Start(context.WithoutCancel(ctx), entry); err != nil {
		return 0
	}
	return entry.ID
}

func (m *Monitor) completeExecutionLog(ctx context.Context, id uint, signature, errMsg string) {
	if m.executions == nil || id == 0 {
		return
	}
	_ = m.executions.Complete(context.WithoutCancel(ctx), id, signature, errMsg)
}

func (m *Monitor) recordException(ctx context.Context, method, orderID string, err error) {
	if m.exceptions == nil || err == nil {
		return
	}
	id := orderID
	exc := &model.Exception{
		Service: "limitbot",
		Module:  "monitor",
		Method:  method,
		OrderID: &id,
		Message: err.Error(),
		Level:   "error",
	}
	if werr := m.exceptions.Create(context.WithoutCancel(ctx), exc); werr != nil {
		m.log.WithError(werr).Error("failed to persist exception")
	}
}

func distinctTokens(orders []model.Order) []string {
	seen := make(map[string]struct{}, len(orders))
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		if _, ok := seen[o.TokenAddress]; ok {
			continue
		}
		seen[o.TokenAddress] = struct{}{}
		out = append(out, o.TokenAddress)
	}
	return out
}
