package bybit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetStopLossTakeProfitSendsBothLegs(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decodeJSONBody(t, r, &gotBody)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{}}`))
	}))
	defer server.Close()

	client, err := NewClient("key", "secret", false)
	require.NoError(t, err)
	client.baseURL = server.URL

	err = client.SetStopLossTakeProfit(context.Background(), "BTC", "58000", "65000")
	require.NoError(t, err)
	assert.Equal(t, "58000", gotBody["stopLoss"])
	assert.Equal(t, "65000", gotBody["takeProfit"])
	assert.Equal(t, "MarkPrice", gotBody["slTriggerBy"])
	assert.Equal(t, "MarkPrice", gotBody["tpTriggerBy"])
}

func TestCancelStopOrdersTreatsNothingToCancelAsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"retCode":110020,"retMsg":"nothing to cancel","result":{}}`))
	}))
	defer server.Close()

	client, err := NewClient("key", "secret", false)
	require.NoError(t, err)
	client.baseURL = server.URL

	err = client.CancelStopOrders(context.Background(), "BTC")
	assert.NoError(t, err)
}

func TestCancelStopOrdersPropagatesOtherErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"retCode":10001,"retMsg":"unknown error","result":{}}`))
	}))
	defer server.Close()

	client, err := NewClient("key", "secret", false)
	require.NoError(t, err)
	client.baseURL = server.URL

	err = client.CancelStopOrders(context.Background(), "BTC")
	assert.Error(t, err)
}
