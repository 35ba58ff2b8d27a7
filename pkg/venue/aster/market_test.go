package aster

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMarketDataParsesTicker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTC-PERP", r.URL.Query().Get("symbol"))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"data":{"bestBid":"60000","bestAsk":"60010","lastPrice":"60005","markPrice":"60003","fundingRate":"0.0001"}}`))
	}))
	defer server.Close()

	client, err := NewClient(testPrivateKey, false,
		WithClock(func() time.Time { return time.UnixMilli(1700000000000) }))
	require.NoError(t, err)
	client.baseURL = server.URL

	data, err := client.GetMarketData(context.Background(), "BTC")
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, "BTC-PERP", data.Symbol)
	assert.Equal(t, 60000.0, data.Bid)
	assert.Equal(t, 60010.0, data.Ask)
	assert.Equal(t, 0.0001, data.FundingRate)
	assert.Equal(t, int64(1700000000000), data.Timestamp)
	assert.Equal(t, 60005.0, data.Mid())
}

func TestGetMarketDataReturnsNilWhenEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"data":{}}`))
	}))
	defer server.Close()

	client, err := NewClient(testPrivateKey, false)
	require.NoError(t, err)
	client.baseURL = server.URL

	data, err := client.GetMarketData(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Nil(t, data)
}
