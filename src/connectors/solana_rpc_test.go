package connectors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"limitbot/src/externalmodel"
)

func newRPCServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req externalmodel.RPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		switch req.Method {
		case "getBalance":
			assert.Equal(t, "owner1", req.Params[0])
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":1},"value":2500000000}}`))
		case "getTokenAccountsByOwner":
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"value":[
				{"pubkey":"acc1","account":{"data":{"parsed":{"info":{"mint":"mintA","tokenAmount":{"amount":"1000000","decimals":6,"uiAmountString":"1"}}}}}},
				{"pubkey":"acc2","account":{"data":{"parsed":{"info":{"mint":"mintA","tokenAmount":{"amount":"2500000","decimals":6,"uiAmountString":"2.5"}}}}}}
			]}}`))
		default:
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"Method not found"}}`))
		}
	}))
}

func TestSolanaRPCClient_Balances(t *testing.T) {
	srv := newRPCServer(t)
	defer srv.Close()

	c := NewSolanaRPCClient(srv.URL, time.Second, 0)

	sol, err := c.GetNativeBalance(context.Background(), "owner1")
	require.NoError(t, err)
	assert.True(t, sol.Equal(decimal.RequireFromString("2.5")))

	tok, err := c.GetTokenBalance(context.Background(), "owner1", "mintA")
	require.NoError(t, err)
	assert.True(t, tok.Equal(decimal.RequireFromString("3.5")))

	bal, err := c.WalletBalance(context.Background(), "owner1", "mintA")
	require.NoError(t, err)
	assert.True(t, bal.Native.Equal(decimal.RequireFromString("2.5")))
	assert.True(t, bal.Tokens["mintA"].Equal(decimal.RequireFromString("3.5")))
}

func TestSolanaRPCClient_RPCError(t *testing.T) {
	srv := newRPCServer(t)
	defer srv.Close()

	var out json.RawMessage
	err := NewSolanaRPCClient(srv.URL, time.Second, 0).call(context.Background(), "nope", nil, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Method not found")
}
