package executors

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"limitbot/src/model"
)

type memStore struct {
	mu        sync.Mutex
	orders    map[string]*model.Order
	order     []string
	pingErr   error
	listErr   error
	recovered int
	// claimHook runs inside MarkExecuting before the status check.
	claimHook func(id string)
}

func newMemStore(orders ...model.Order) *memStore {
	s := &memStore{orders: map[string]*model.Order{}}
	for i := range orders {
		o := orders[i]
		if o.Status == "" {
			o.Status = model.OrderStatusPending
		}
		s.orders[o.ID] = &o
		s.order = append(s.order, o.ID)
	}
	return s
}

func (s *memStore) Ping(context.Context) error { return s.pingErr }

func (s *memStore) ListActive(context.Context) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []model.Order
	for _, id := range s.order {
		if o := s.orders[id]; o.Status == model.OrderStatusPending {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *memStore) move(id string, from, to model.OrderStatus, mutate func(o *model.Order)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return &model.NotFoundError{Entity: "order", ID: id}
	}
	if o.Status != from {
		return &model.InvalidStateError{OrderID: id, Current: o.Status, Target: to}
	}
	o.Status = to
	if mutate != nil {
		mutate(o)
	}
	return nil
}

func (s *memStore) MarkExecuting(_ context.Context, id string) error {
	if s.claimHook != nil {
		s.claimHook(id)
	}
	return s.move(id, model.OrderStatusPending, model.OrderStatusExecuting, nil)
}

func (s *memStore) UpdateStatus(_ context.Context, id string, status model.OrderStatus, signature string) error {
	return s.move(id, model.OrderStatusExecuting, status, func(o *model.Order) {
		sig := signature
		now := time.Now()
		o.TxSignature = &sig
		o.ExecutedAt = &now
	})
}

func (s *memStore) MarkFailed(_ context.Context, id string, reason string) error {
	return s.move(id, model.OrderStatusExecuting, model.OrderStatusFailed, func(o *model.Order) {
		o.FailureReason = reason
	})
}

func (s *memStore) RecoverInterrupted(_ context.Context, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, o := range s.orders {
		if o.Status == model.OrderStatusExecuting {
			o.Status = model.OrderStatusFailed
			o.FailureReason = reason
			n++
		}
	}
	s.recovered += n
	return n, nil
}

func (s *memStore) get(id string) model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.orders[id]
}

type mapOracle struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	calls  map[string]int
	block  chan struct{}
	// entered is signalled when a blocked call has started.
	entered chan struct{}
}

func newMapOracle(prices map[string]string) *mapOracle {
	o := &mapOracle{prices: map[string]decimal.Decimal{}, calls: map[string]int{}}
	for k, v := range prices {
		o.prices[k] = decimal.RequireFromString(v)
	}
	return o
}

func (o *mapOracle) GetPrice(ctx context.Context, token string) (decimal.Decimal, error) {
	if o.block != nil {
		if o.entered != nil {
			select {
			case o.entered <- struct{}{}:
			default:
			}
		}
		select {
		case <-o.block:
		case <-ctx.Done():
			return decimal.Zero, ctx.Err()
		}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls[token]++
	p, ok := o.prices[token]
	if !ok {
		return decimal.Zero, errors.New("no price")
	}
	return p, nil
}

type recordingExecutor struct {
	mu       sync.Mutex
	requests []model.TradeRequest
	err      error
}

func (e *recordingExecutor) Execute(_ context.Context, req model.TradeRequest) (model.Settlement, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests = append(e.requests, req)
	if e.err != nil {
		return model.Settlement{}, e.err
	}
	return model.Settlement{Signature: "sig-" + req.OrderID, SubmittedAt: time.Now()}, nil
}

func (e *recordingExecutor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.requests)
}

type fixedNative decimal.Decimal

func (f fixedNative) NativePrice(context.Context) (decimal.Decimal, error) {
	return decimal.Decimal(f), nil
}

type memExceptions struct {
	mu    sync.Mutex
	items []model.Exception
}

func (m *memExceptions) Create(_ context.Context, exc *model.Exception) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, *exc)
	return nil
}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func dp(v string) *decimal.Decimal {
	x := d(v)
	return &x
}

func buyOrder(id, token, target, sol string) model.Order {
	return model.Order{
		ID:           id,
		TokenAddress: token,
		Side:         model.OrderSideBuy,
		NativeAmount: dp(sol),
		TargetPrice:  d(target),
	}
}

func sellOrder(id, token, target, qty string) model.Order {
	return model.Order{
		ID:           id,
		TokenAddress: token,
		Side:         model.OrderSideSell,
		Amount:       d(qty),
		TargetPrice:  d(target),
	}
}

func testLog() *logger.Entry {
	l := logger.New()
	l.SetLevel(logger.PanicLevel)
	return logger.NewEntry(l)
}

func testConfig() Config {
	return Config{LoopPeriod: 20 * time.Millisecond, PriceTimeout: time.Second, TradeTimeout: time.Second}
}

func TestCheckOrders_ExecutesTriggeredOrdersOnce(t *testing.T) {
	store := newMemStore(
		buyOrder("b1", "mintA", "0.00002", "0.5"),
		sellOrder("s1", "mintA", "0.00005", "1000"),
		buyOrder("b2", "mintB", "1", "0.1"),
	)
	oracle := newMapOracle(map[string]string{"mintA": "0.000019", "mintB": "2"})
	exec := &recordingExecutor{}
	m := NewMonitor(testConfig(), store, oracle, exec, testLog())

	res, err := m.CheckOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Orders)
	assert.Equal(t, 2, res.Tokens)
	assert.Equal(t, 1, res.Triggered)
	assert.Equal(t, 1, res.Executed)

	b1 := store.get("b1")
	assert.Equal(t, model.OrderStatusExecuted, b1.Status)
	require.NotNil(t, b1.TxSignature)
	assert.Equal(t, "sig-b1", *b1.TxSignature)
	assert.NotNil(t, b1.ExecutedAt)

	assert.Equal(t, model.OrderStatusPending, store.get("s1").Status)
	assert.Equal(t, model.OrderStatusPending, store.get("b2").Status)

	// one oracle query per distinct token
	assert.Equal(t, 1, oracle.calls["mintA"])
	assert.Equal(t, 1, oracle.calls["mintB"])

	require.Len(t, exec.requests, 1)
	req := exec.requests[0]
	assert.Equal(t, model.DenominationNative, req.Denomination)
	assert.True(t, req.Amount.Equal(d("0.5")))
	assert.True(t, req.Slippage.Equal(d("10")))

	_, err = m.CheckOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, exec.count())
}

func TestCheckOrders_SellAtTargetExecutes(t *testing.T) {
	o := sellOrder("s1", "mintA", "0.00005", "1000")
	o.Slippage = dp("25")
	store := newMemStore(o)
	exec := &recordingExecutor{}
	m := NewMonitor(testConfig(), store, newMapOracle(map[string]string{"mintA": "0.00005"}), exec, testLog())

	res, err := m.CheckOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Executed)

	require.Len(t, exec.requests, 1)
	assert.Equal(t, model.DenominationToken, exec.requests[0].Denomination)
	assert.True(t, exec.requests[0].Amount.Equal(d("1000")))
	assert.True(t, exec.requests[0].Slippage.Equal(d("25")))
}

func TestCheckOrders_MissingPriceSkipsOrder(t *testing.T) {
	store := newMemStore(buyOrder("b1", "mintA", "1", "0.1"))
	exec := &recordingExecutor{}
	m := NewMonitor(testConfig(), store, newMapOracle(nil), exec, testLog())

	res, err := m.CheckOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, exec.count())
	assert.Equal(t, model.OrderStatusPending, store.get("b1").Status)
}

func TestCheckOrders_ExecutorFailureMarksFailed(t *testing.T) {
	store := newMemStore(buyOrder("b1", "mintA", "1", "0.1"))
	exec := &recordingExecutor{err: errors.New("slippage exceeded")}
	exceptions := &memExceptions{}
	m := NewMonitor(testConfig(), store, newMapOracle(map[string]string{"mintA": "0.5"}), exec, testLog()).
		WithExceptions(exceptions)

	res, err := m.CheckOrders(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, res.Failed)

	b1 := store.get("b1")
	assert.Equal(t, model.OrderStatusFailed, b1.Status)
	assert.Contains(t, b1.FailureReason, "slippage exceeded")
	assert.Nil(t, b1.TxSignature)

	require.Len(t, exceptions.items, 1)
	assert.Equal(t, "b1", *exceptions.items[0].OrderID)

	// failed orders are never retried
	_, err = m.CheckOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, exec.count())
}

func TestCheckOrders_LostClaimIsSkipped(t *testing.T) {
	store := newMemStore(buyOrder("b1", "mintA", "1", "0.1"))
	store.claimHook = func(id string) {
		store.mu.Lock()
		store.orders[id].Status = model.OrderStatusCancelled
		store.mu.Unlock()
	}
	exec := &recordingExecutor{}
	m := NewMonitor(testConfig(), store, newMapOracle(map[string]string{"mintA": "0.5"}), exec, testLog())

	res, err := m.CheckOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Triggered)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, exec.count())
	assert.Equal(t, model.OrderStatusCancelled, store.get("b1").Status)
}

func TestCheckOrders_FiatBuyUsesNativePrice(t *testing.T) {
	o := model.Order{
		ID:           "f1",
		TokenAddress: "mintA",
		Side:         model.OrderSideBuy,
		FiatAmount:   dp("30"),
		TargetPrice:  d("1"),
	}
	store := newMemStore(o)
	exec := &recordingExecutor{}
	m := NewMonitor(testConfig(), store, newMapOracle(map[string]string{"mintA": "0.5"}), exec, testLog()).
		WithNativePrice(fixedNative(d("200")))

	_, err := m.CheckOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, exec.requests, 1)
	assert.True(t, exec.requests[0].Amount.Equal(d("0.15")), exec.requests[0].Amount.String())
}

func TestCheckOrders_BuyWithoutAmountFails(t *testing.T) {
	o := model.Order{ID: "x", TokenAddress: "mintA", Side: model.OrderSideBuy, TargetPrice: d("1")}
	store := newMemStore(o)
	exec := &recordingExecutor{}
	m := NewMonitor(testConfig(), store, newMapOracle(map[string]string{"mintA": "0.5"}), exec, testLog())

	res, err := m.CheckOrders(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 0, exec.count())
	assert.Equal(t, model.OrderStatusFailed, store.get("x").Status)
	assert.NotEmpty(t, store.get("x").FailureReason)
}

func TestCheckOrders_ListErrorAbortsCycle(t *testing.T) {
	store := newMemStore()
	store.listErr = errors.New("db down")
	m := NewMonitor(testConfig(), store, newMapOracle(nil), &recordingExecutor{}, testLog())

	_, err := m.CheckOrders(context.Background())
	require.Error(t, err)
	assert.False(t, m.LastCheckTime().IsZero())
}

func TestCheckOrders_NoOverlap(t *testing.T) {
	store := newMemStore(buyOrder("b1", "mintA", "1", "0.1"))
	oracle := newMapOracle(map[string]string{"mintA": "0.5"})
	oracle.block = make(chan struct{})
	oracle.entered = make(chan struct{}, 1)
	m := NewMonitor(testConfig(), store, oracle, &recordingExecutor{}, testLog())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = m.CheckOrders(context.Background())
	}()

	select {
	case <-oracle.entered:
	case <-time.After(time.Second):
		t.Fatal("first cycle never reached the oracle")
	}

	_, err := m.CheckOrders(context.Background())
	assert.ErrorIs(t, err, ErrCycleInProgress)

	close(oracle.block)
	<-done
}

func TestMonitor_StartStop(t *testing.T) {
	executing := buyOrder("e1", "mintA", "1", "0.1")
	executing.Status = model.OrderStatusExecuting
	store := newMemStore(executing, buyOrder("b1", "mintA", "1", "0.1"))
	exec := &recordingExecutor{}
	m := NewMonitor(testConfig(), store, newMapOracle(map[string]string{"mintA": "0.5"}), exec, testLog())

	assert.Equal(t, StateStopped, m.State())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Start(ctx))
	assert.True(t, m.IsRunning())
	assert.ErrorIs(t, m.Start(ctx), ErrAlreadyRunning)

	// interrupted executions are closed out before the first cycle
	e1 := store.get("e1")
	assert.Equal(t, model.OrderStatusFailed, e1.Status)
	assert.Equal(t, interruptedReason, e1.FailureReason)

	// cancelling the start context does not stop the loop
	cancel()

	require.Eventually(t, func() bool {
		return store.get("b1").Status == model.OrderStatusExecuted
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, m.IsRunning())

	m.Stop()
	assert.False(t, m.IsRunning())
	m.Stop()

	assert.Equal(t, 1, exec.count())
	assert.False(t, m.LastCheckTime().IsZero())
}

func TestMonitor_StartFailsWhenStoreUnavailable(t *testing.T) {
	store := newMemStore()
	store.pingErr = errors.New("connection refused")
	m := NewMonitor(testConfig(), store, newMapOracle(nil), &recordingExecutor{}, testLog())

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.True(t, model.IsPersistence(err))
	assert.Equal(t, StateStopped, m.State())
}

func TestMonitor_RestartAfterStop(t *testing.T) {
	m := NewMonitor(testConfig(), newMemStore(), newMapOracle(nil), &recordingExecutor{}, testLog())

	require.NoError(t, m.Start(context.Background()))
	m.Stop()
	require.NoError(t, m.Start(context.Background()))
	m.Stop()
	assert.Equal(t, StateStopped, m.State())
}

func TestMonitor_MonitoredTokens(t *testing.T) {
	store := newMemStore(
		buyOrder("b1", "mintA", "1", "0.1"),
		buyOrder("b2", "mintB", "1", "0.1"),
		sellOrder("s1", "mintA", "2", "5"),
	)
	m := NewMonitor(testConfig(), store, newMapOracle(nil), &recordingExecutor{}, testLog())

	tokens, err := m.MonitoredTokens(context.Background())
	require.NoError(t, err)
	sort.Strings(tokens)
	assert.Equal(t, []string{"mintA", "mintB"}, tokens)
}

func TestCheckOrders_ConcurrentMonitorsExecuteOnce(t *testing.T) {
	store := newMemStore(buyOrder("b1", "mintA", "1", "0.1"))
	exec := &recordingExecutor{}

	var wg sync.WaitGroup
	var executed int32
	for i := 0; i < 4; i++ {
		m := NewMonitor(testConfig(), store, newMapOracle(map[string]string{"mintA": "0.5"}), exec, testLog())
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, _ := m.CheckOrders(context.Background())
			atomic.AddInt32(&executed, int32(res.Executed))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&executed))
	assert.Equal(t, 1, exec.count())
}
