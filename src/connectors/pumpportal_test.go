package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"limitbot/src/model"
)

func TestPumpPortalClient_Execute(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/trade", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("api-key"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		_, _ = w.Write([]byte(`{"signature":"5xSig"}`))
	}))
	defer srv.Close()

	c := NewPumpPortalClient(srv.URL, "secret", time.Second, 0.00005, "")
	s, err := c.Execute(context.Background(), model.TradeRequest{
		OrderID:      "o-1",
		Side:         model.OrderSideBuy,
		TokenAddress: "mintA",
		Amount:       decimal.RequireFromString("0.25"),
		Denomination: model.DenominationNative,
		Slippage:     decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	assert.Equal(t, "5xSig", s.Signature)

	assert.Equal(t, "buy", body["action"])
	assert.Equal(t, "mintA", body["mint"])
	assert.Equal(t, 0.25, body["amount"])
	assert.Equal(t, "true", body["denominatedInSol"])
	assert.Equal(t, float64(10), body["slippage"])
	assert.Equal(t, 0.00005, body["priorityFee"])
	assert.Equal(t, "auto", body["pool"])
}

func TestPumpPortalClient_TxFieldAndSellDenomination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "false", body["denominatedInSol"])
		_, _ = w.Write([]byte(`{"tx":"txSig"}`))
	}))
	defer srv.Close()

	s, err := NewPumpPortalClient(srv.URL, "k", time.Second, 0, "pump").Execute(context.Background(), model.TradeRequest{
		Side:         model.OrderSideSell,
		TokenAddress: "mintA",
		Amount:       decimal.NewFromInt(1000),
		Denomination: model.DenominationToken,
		Slippage:     decimal.NewFromInt(5),
	})
	require.NoError(t, err)
	assert.Equal(t, "txSig", s.Signature)
}

func TestPumpPortalClient_Errors(t *testing.T) {
	var calls int32
	status := http.StatusBadRequest
	payload := `{"errors":["Insufficient SOL balance"]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	c := NewPumpPortalClient(srv.URL, "k", time.Second, 0, "")
	req := model.TradeRequest{Side: model.OrderSideBuy, TokenAddress: "m", Amount: decimal.NewFromInt(1), Denomination: model.DenominationNative, Slippage: decimal.NewFromInt(10)}

	_, err := c.Execute(context.Background(), req)
	assert.True(t, errors.Is(err, ErrInsufficientBalance))

	payload = `{"error":"slippage exceeded"}`
	_, err = c.Execute(context.Background(), req)
	assert.True(t, errors.Is(err, ErrSlippageExceeded))

	// server errors are never retried for trades
	status = http.StatusInternalServerError
	payload = `oops`
	atomic.StoreInt32(&calls, 0)
	_, err = c.Execute(context.Background(), req)
	assert.True(t, errors.Is(err, ErrTradeRejected))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	status = http.StatusOK
	payload = `{}`
	_, err = c.Execute(context.Background(), req)
	assert.True(t, errors.Is(err, ErrNoSignature))
}

func TestPumpPortalClient_Validation(t *testing.T) {
	c := NewPumpPortalClient("http://127.0.0.1:1", "", time.Second, 0, "")
	_, err := c.Execute(context.Background(), model.TradeRequest{Side: model.OrderSideBuy, Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrTradeRejected)

	c = NewPumpPortalClient("http://127.0.0.1:1", "k", time.Second, 0, "")
	_, err = c.Execute(context.Background(), model.TradeRequest{Side: model.OrderSideBuy})
	assert.ErrorIs(t, err, ErrTradeRejected)
}

func TestPumpPortalClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"signature":"late"}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewPumpPortalClient(srv.URL, "k", time.Second, 0, "").Execute(ctx, model.TradeRequest{
		Side: model.OrderSideBuy, TokenAddress: "m", Amount: decimal.NewFromInt(1), Denomination: model.DenominationNative, Slippage: decimal.NewFromInt(1),
	})
	require.Error(t, err)
	assert.True(t, model.IsTransient(err))
}
