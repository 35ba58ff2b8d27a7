package aster

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatSymbol(t *testing.T) {
	tests := map[string]string{
		"BTC":      "BTC-PERP",
		"btc":      "BTC-PERP",
		"BTC-PERP": "BTC-PERP",
		"  eth ":   "ETH-PERP",
	}
	for input, expected := range tests {
		assert.Equalf(t, expected, FormatSymbol(input), "FormatSymbol(%q)", input)
	}
}

func precisionServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"data": {
				"data": [
					{"symbol": "BTC-PERP", "pricePrecision": 1, "sizePrecision": 3},
					{"symbol": "ETH-PERP", "pricePrecision": 2, "sizePrecision": 2}
				]
			}
		}`))
	}))
}

func TestAssetIndexAssignsStableSequentialIndices(t *testing.T) {
	server := precisionServer()
	defer server.Close()

	client, err := NewClient(testPrivateKey, false)
	require.NoError(t, err)
	client.baseURL = server.URL

	btcIdx, err := client.AssetIndex(context.Background(), "BTC")
	require.NoError(t, err)
	ethIdx, err := client.AssetIndex(context.Background(), "ETH")
	require.NoError(t, err)
	assert.NotEqual(t, btcIdx, ethIdx)

	symbol, ok := client.symbolForIndex(btcIdx)
	require.True(t, ok)
	assert.Equal(t, "BTC-PERP", symbol)
}

func TestFormatQuantityAndPriceTruncateRatherThanRound(t *testing.T) {
	server := precisionServer()
	defer server.Close()

	client, err := NewClient(testPrivateKey, false)
	require.NoError(t, err)
	client.baseURL = server.URL

	qty, err := client.FormatQuantity(context.Background(), "BTC", 0.129999)
	require.NoError(t, err)
	assert.Equal(t, "0.129", qty) // truncated, not rounded to 0.130

	price, err := client.FormatPrice(context.Background(), "ETH", 1234.999)
	require.NoError(t, err)
	assert.Equal(t, "1234.99", price)
}

func TestFormatQuantityFallsBackToDefaultOnLoadFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := NewClient(testPrivateKey, false)
	require.NoError(t, err)
	client.baseURL = server.URL

	qty, err := client.FormatQuantity(context.Background(), "BTC", 1.23456)
	require.NoError(t, err) // falls back to default precision rather than erroring
	assert.Equal(t, "1.2345", qty)
}

func TestTruncateDecimal(t *testing.T) {
	assert.Equal(t, "1.23", truncateDecimal(1.239, 2))
	assert.Equal(t, "1.25", truncateDecimal(1.25, 2))
	assert.Equal(t, "0", truncateDecimal(0.5, 0))
}
