package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"limitbot/src/controller"
	"limitbot/src/model"
	"limitbot/src/repository"
)

type mockOrderSearcher struct {
	orders      []model.Order
	err         error
	options     repository.OrderSearchOptions
	calledCount int
}

func (m *mockOrderSearcher) Search(ctx context.Context, options repository.OrderSearchOptions) ([]model.Order, error) {
	m.calledCount++
	m.options = options
	return m.orders, m.err
}

type mockOrderService struct {
	placed   *controller.PlaceOrderRequest
	order    *model.Order
	detail   *controller.OrderDetail
	orders   []model.Order
	token    string
	stats    model.OrderStats
	err      error
	cancelID string
}

func (m *mockOrderService) PlaceOrder(_ context.Context, req controller.PlaceOrderRequest) (*model.Order, error) {
	m.placed = &req
	return m.order, m.err
}

func (m *mockOrderService) CancelOrder(_ context.Context, id string) (*model.Order, error) {
	m.cancelID = id
	return m.order, m.err
}

func (m *mockOrderService) GetOrder(_ context.Context, id string) (*controller.OrderDetail, error) {
	return m.detail, m.err
}

func (m *mockOrderService) ListOrders(_ context.Context, token string) ([]model.Order, error) {
	m.token = token
	return m.orders, m.err
}

func (m *mockOrderService) Stats(context.Context) (model.OrderStats, error) {
	return m.stats, m.err
}

func withID(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestSearchOrdersHandler_InvalidStatus(t *testing.T) {
	handler := SearchOrdersHandler(&mockOrderSearcher{})

	req := httptest.NewRequest(http.MethodGet, "/orders/search?status=open", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestSearchOrdersHandler_RepoError(t *testing.T) {
	mockRepo := &mockOrderSearcher{err: assert.AnError}
	handler := SearchOrdersHandler(mockRepo)

	req := httptest.NewRequest(http.MethodGet, "/orders/search", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}

	if mockRepo.calledCount != 1 {
		t.Fatalf("expected repository to be called once, got %d", mockRepo.calledCount)
	}
}

func TestSearchOrdersHandler_Success(t *testing.T) {
	orders := []model.Order{{ID: "o1", TokenAddress: "mintA"}}
	mockRepo := &mockOrderSearcher{orders: orders}
	handler := SearchOrdersHandler(mockRepo)

	req := httptest.NewRequest(http.MethodGet, "/orders/search?status=executed&side=sell&token=mintA&page=2&pageSize=5", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	opts := mockRepo.options
	if opts.Status == nil || *opts.Status != model.OrderStatusExecuted {
		t.Fatalf("expected status executed, got %v", opts.Status)
	}
	if opts.Side == nil || *opts.Side != model.OrderSideSell {
		t.Fatalf("expected side sell, got %v", opts.Side)
	}
	if opts.TokenAddress == nil || *opts.TokenAddress != "mintA" {
		t.Fatalf("expected token mintA, got %v", opts.TokenAddress)
	}
	if opts.Limit != 5 || opts.Offset != 5 {
		t.Fatalf("expected limit 5 and offset 5, got limit=%d offset=%d", opts.Limit, opts.Offset)
	}

	if !strings.Contains(rr.Body.String(), `"o1"`) {
		t.Fatalf("expected response body to contain the order, got %s", rr.Body.String())
	}
}

func TestSearchOrdersHandler_InvalidPagination(t *testing.T) {
	handler := SearchOrdersHandler(&mockOrderSearcher{})

	for _, q := range []string{"page=0", "pageSize=-1", "page=x", "side=hold"} {
		req := httptest.NewRequest(http.MethodGet, "/orders/search?"+q, nil)
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected status 400, got %d", q, rr.Code)
		}
	}
}

func TestListOrdersHandler(t *testing.T) {
	svc := &mockOrderService{}
	rr := httptest.NewRecorder()

	ListOrdersHandler(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders?token=mintB", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "mintB", svc.token)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestCreateOrderHandler(t *testing.T) {
	svc := &mockOrderService{order: &model.Order{ID: "new", Status: model.OrderStatusPending}}
	body := `{"token_address":"mintA","side":"buy","sol_amount":"0.5","target_price":"0.0001","slippage":15}`

	rr := httptest.NewRecorder()
	CreateOrderHandler(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rr.Code)
	require.NotNil(t, svc.placed)
	assert.Equal(t, model.OrderSideBuy, svc.placed.Side)
	require.NotNil(t, svc.placed.NativeAmount)
	assert.True(t, svc.placed.NativeAmount.Equal(decimal.RequireFromString("0.5")))
	require.NotNil(t, svc.placed.Slippage)
	assert.True(t, svc.placed.Slippage.Equal(decimal.NewFromInt(15)))

	var got model.Order
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "new", got.ID)
}

func TestCreateOrderHandler_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		code int
	}{
		{"malformed", `{`, nil, http.StatusBadRequest},
		{"unknown field", `{"price":1}`, nil, http.StatusBadRequest},
		{"validation", `{"side":"buy"}`, &model.ValidationError{Field: "token_address", Reason: "is required"}, http.StatusBadRequest},
		{"upstream", `{"side":"sell"}`, &model.TransientExternalError{Service: "quotes", Err: assert.AnError}, http.StatusBadGateway},
		{"storage", `{"side":"sell"}`, &model.PersistenceError{Op: "create", Err: assert.AnError}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockOrderService{err: tt.err}
			rr := httptest.NewRecorder()
			CreateOrderHandler(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(tt.body)))
			assert.Equal(t, tt.code, rr.Code)
		})
	}
}

func TestCancelOrderHandler(t *testing.T) {
	svc := &mockOrderService{order: &model.Order{ID: "o1", Status: model.OrderStatusCancelled}}
	rr := httptest.NewRecorder()

	CancelOrderHandler(svc).ServeHTTP(rr, withID(httptest.NewRequest(http.MethodPost, "/orders/o1/cancel", nil), "o1"))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "o1", svc.cancelID)

	svc.err = &model.InvalidStateError{OrderID: "o1", Current: model.OrderStatusExecuted, Target: model.OrderStatusCancelled}
	rr = httptest.NewRecorder()
	CancelOrderHandler(svc).ServeHTTP(rr, withID(httptest.NewRequest(http.MethodPost, "/orders/o1/cancel", nil), "o1"))

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "executed")
}

func TestGetOrderHandler_NotFound(t *testing.T) {
	svc := &mockOrderService{err: &model.NotFoundError{Entity: "order", ID: "zz"}}
	rr := httptest.NewRecorder()

	GetOrderHandler(svc).ServeHTTP(rr, withID(httptest.NewRequest(http.MethodGet, "/orders/zz", nil), "zz"))

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStatsHandler(t *testing.T) {
	svc := &mockOrderService{stats: model.OrderStats{Active: 2, Executed: 1, Total: 3}}
	rr := httptest.NewRecorder()

	StatsHandler(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/stats", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"active":2,"executing":0,"executed":1,"cancelled":0,"failed":0,"total":3}`, rr.Body.String())
}
