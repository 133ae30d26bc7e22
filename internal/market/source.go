package market

import (
	"context"

	"github.com/shopspring/decimal"
)

// QuoteSource serves candles for agent analysis and mark prices for
// shadow trades.
type QuoteSource interface {
	Name() string
	Candles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}
