package bybit

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
		"BTC":       "BTCUSDT",
		"btc":       "BTCUSDT",
		"BTC-PERP":  "BTCUSDT",
		"ETH/USDT":  "ETHUSDT",
		"  sol ":    "SOLUSDT",
		"BTCUSDT":   "BTCUSDT",
	}
	for input, expected := range tests {
		assert.Equalf(t, expected, FormatSymbol(input), "FormatSymbol(%q)", input)
	}
}

func instrumentsServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"retCode": 0,
			"retMsg": "OK",
			"result": {
				"list": [
					{"symbol": "BTCUSDT", "lotSizeFilter": {"qtyStep": "0.001"}, "priceFilter": {"tickSize": "0.1"}},
					{"symbol": "ETHUSDT", "lotSizeFilter": {"qtyStep": "0.01"}, "priceFilter": {"tickSize": "0.01"}}
				]
			}
		}`))
	}))
}

func TestAssetIndexAssignsStableSequentialIndices(t *testing.T) {
	server := instrumentsServer()
	defer server.Close()

	client, err := NewClient("key", "secret", false)
	require.NoError(t, err)
	client.baseURL = server.URL

	btcIdx, err := client.AssetIndex(context.Background(), "BTC")
	require.NoError(t, err)
	ethIdx, err := client.AssetIndex(context.Background(), "ETH")
	require.NoError(t, err)
	assert.NotEqual(t, btcIdx, ethIdx)

	symbol, ok := client.symbolForIndex(btcIdx)
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT", symbol)

	// Re-querying the same symbol returns the same index without another call.
	again, err := client.AssetIndex(context.Background(), "btc")
	require.NoError(t, err)
	assert.Equal(t, btcIdx, again)
}

func TestFormatQuantityAndPriceUsePerSymbolPrecision(t *testing.T) {
	server := instrumentsServer()
	defer server.Close()

	client, err := NewClient("key", "secret", false)
	require.NoError(t, err)
	client.baseURL = server.URL

	qty, err := client.FormatQuantity(context.Background(), "BTC", 0.123456)
	require.NoError(t, err)
	assert.Equal(t, "0.123", qty)

	price, err := client.FormatPrice(context.Background(), "ETH", 1234.5678)
	require.NoError(t, err)
	assert.Equal(t, "1234.57", price)
}

func TestFormatQuantityErrorsOnLoadFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := NewClient("key", "secret", false)
	require.NoError(t, err)
	client.baseURL = server.URL

	_, err = client.FormatQuantity(context.Background(), "BTC", 1.0)
	assert.Error(t, err)
}

func TestDecimalsFromStep(t *testing.T) {
	tests := map[string]int{
		"0.001": 3,
		"0.1":   1,
		"1":     0,
		"":      0,
	}
	for step, expected := range tests {
		assert.Equalf(t, expected, decimalsFromStep(step), "decimalsFromStep(%q)", step)
	}
}
