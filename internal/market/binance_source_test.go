package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1h", r.URL.Query().Get("interval"))
		w.Write([]byte(`[[1700000000000,"50000","50500","49900","50400","123.4",1700003599999,"0",42,"0","0","0"]]`))
	}))
	defer srv.Close()

	src := NewBinanceSource(srv.URL)
	candles, err := src.Candles(context.Background(), "BTCUSDT", "1h", 100)
	require.NoError(t, err)
	require.Len(t, candles, 1)

	c := candles[0]
	assert.Equal(t, int64(1700000000000), c.OpenTime)
	assert.Equal(t, 50000.0, c.Open)
	assert.Equal(t, 50400.0, c.Close)
	assert.Equal(t, 123.4, c.Volume)
	assert.Equal(t, int64(42), c.Trades)
}

func TestCandlesRequiresSymbol(t *testing.T) {
	src := NewBinanceSource("")
	_, err := src.Candles(context.Background(), "", "1h", 100)
	assert.Error(t, err)
}

func TestLastPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/ticker/price", r.URL.Path)
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"50123.45"}`))
	}))
	defer srv.Close()

	src := NewBinanceSource(srv.URL)
	price, err := src.LastPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "50123.45", price.String())
}

func TestLastPriceBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	src := NewBinanceSource(srv.URL)
	_, err := src.LastPrice(context.Background(), "BTCUSDT")
	assert.Error(t, err)
}

func TestSnapshotSeries(t *testing.T) {
	snap := Snapshot{Candles: []Candle{
		{Close: 1, High: 2, Low: 0.5, Volume: 10},
		{Close: 2, High: 3, Low: 1.5, Volume: 20},
	}}
	assert.Equal(t, []float64{1, 2}, snap.Closes())
	assert.Equal(t, []float64{2, 3}, snap.Highs())
	assert.Equal(t, []float64{0.5, 1.5}, snap.Lows())
	assert.Equal(t, []float64{10, 20}, snap.Volumes())
}
