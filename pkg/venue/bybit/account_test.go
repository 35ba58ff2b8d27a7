package bybit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetBalanceParsesUSDTCoin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"retCode": 0,
			"retMsg": "OK",
			"result": {
				"list": [{
					"coin": [
						{"coin": "USDC", "equity": "1.0", "availableToWithdraw": "1.0", "totalPositionMM": "0", "unrealisedPnl": "0"},
						{"coin": "USDT", "equity": "10000.5", "availableToWithdraw": "9000.0", "totalPositionMM": "500.0", "unrealisedPnl": "25.5"}
					]
				}]
			}
		}`))
	}))
	defer server.Close()

	client, err := NewClient("key", "secret", false)
	require.NoError(t, err)
	client.baseURL = server.URL

	balance, err := client.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "USDT", balance.Currency)
	assert.Equal(t, 10000.5, balance.TotalEquity)
	assert.Equal(t, 9000.0, balance.AvailableBalance)
	assert.Equal(t, 500.0, balance.MarginUsed)
	assert.Equal(t, 25.5, balance.UnrealizedPnl)
}

func TestGetBalanceErrorsWhenUSDTMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"list":[{"coin":[]}]}}`))
	}))
	defer server.Close()

	client, err := NewClient("key", "secret", false)
	require.NoError(t, err)
	client.baseURL = server.URL

	_, err = client.GetBalance(context.Background())
	assert.Error(t, err)
}

func TestGetPositionsSkipsZeroSizeAndSignsShort(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"retCode": 0,
			"retMsg": "OK",
			"result": {
				"list": [
					{"symbol": "BTCUSDT", "side": "Buy", "size": "0.5", "avgPrice": "60000", "markPrice": "61000", "liqPrice": "50000", "unrealisedPnl": "500", "leverage": "10", "tradeMode": 0},
					{"symbol": "ETHUSDT", "side": "Sell", "size": "2", "avgPrice": "3000", "markPrice": "2900", "liqPrice": "3500", "unrealisedPnl": "200", "leverage": "5", "tradeMode": 1},
					{"symbol": "SOLUSDT", "side": "Buy", "size": "0", "avgPrice": "0", "markPrice": "0", "liqPrice": "0", "unrealisedPnl": "0", "leverage": "1", "tradeMode": 0}
				]
			}
		}`))
	}))
	defer server.Close()

	client, err := NewClient("key", "secret", false)
	require.NoError(t, err)
	client.baseURL = server.URL

	positions, err := client.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 2)

	assert.Equal(t, "BTCUSDT", positions[0].Coin)
	assert.Equal(t, "0.5", positions[0].Szi)
	assert.Equal(t, "cross", positions[0].Leverage.Type)
	assert.Equal(t, 10, positions[0].Leverage.Value)

	assert.Equal(t, "ETHUSDT", positions[1].Coin)
	assert.Equal(t, "-2", positions[1].Szi)
	assert.Equal(t, "isolated", positions[1].Leverage.Type)
}

func TestUpdateLeverageRejectsNonPositive(t *testing.T) {
	client, err := NewClient("key", "secret", false)
	require.NoError(t, err)

	err = client.UpdateLeverage(context.Background(), "BTC", 0)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "leverage must be positive")
}

func TestUpdateLeverageSkipsRedundantCall(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{}}`))
	}))
	defer server.Close()

	client, err := NewClient("key", "secret", false)
	require.NoError(t, err)
	client.baseURL = server.URL

	require.NoError(t, client.UpdateLeverage(context.Background(), "BTC", 5))
	require.NoError(t, client.UpdateLeverage(context.Background(), "BTC", 5))
	assert.Equal(t, 1, calls)
}

func TestUpdateLeverageTreatsAlreadySetRetCodeAsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"retCode":110043,"retMsg":"leverage not modified","result":{}}`))
	}))
	defer server.Close()

	client, err := NewClient("key", "secret", false)
	require.NoError(t, err)
	client.baseURL = server.URL

	err = client.UpdateLeverage(context.Background(), "BTC", 10)
	assert.NoError(t, err)
}
