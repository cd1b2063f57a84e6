package trades

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LOBFuse/internal/domain/models"
)

func tp(ts time.Time, price, qty float64, side models.Side) models.TradePrint {
	return models.TradePrint{Timestamp: ts, Price: price, Qty: qty, Side: side}
}

func TestAggregatePerTrade(t *testing.T) {
	a := New(Config{Window: time.Second}, nil)

	var raws []models.TradePrint
	var aggs []models.TradeAggregate
	a.OnRawTrade(func(tr models.TradePrint) { raws = append(raws, tr) })
	a.OnTradeAggregate(func(ag models.TradeAggregate) { aggs = append(aggs, ag) })

	base := time.Now()
	require.NoError(t, a.AddTrade(tp(base, 100, 2, models.SideBuy)))
	require.NoError(t, a.AddTrade(tp(base.Add(100*time.Millisecond), 101, 3, models.SideSell)))

	require.Len(t, raws, 2, "raw callback fires per trade")
	require.Len(t, aggs, 2, "aggregate recomputed per trade")

	last := aggs[1]
	assert.Equal(t, 2.0, last.BuyVolume)
	assert.Equal(t, 3.0, last.SellVolume)
	assert.Equal(t, 2, last.TradeCount)
	// vwap = (100*2 + 101*3) / 5
	assert.InDelta(t, 100.6, last.AvgPrice, 1e-9)
}

func TestWindowEviction(t *testing.T) {
	a := New(Config{Window: time.Second}, nil)
	base := time.Now()

	require.NoError(t, a.AddTrade(tp(base, 100, 1, models.SideBuy)))
	require.NoError(t, a.AddTrade(tp(base.Add(500*time.Millisecond), 100, 1, models.SideBuy)))
	assert.Equal(t, 2, a.WindowSize())

	// 1.2s later the first two are stale
	var got models.TradeAggregate
	a.OnTradeAggregate(func(ag models.TradeAggregate) { got = ag })
	require.NoError(t, a.AddTrade(tp(base.Add(1700*time.Millisecond), 100, 5, models.SideSell)))

	assert.Equal(t, 1, a.WindowSize())
	assert.Equal(t, 0.0, got.BuyVolume)
	assert.Equal(t, 5.0, got.SellVolume)
	assert.Equal(t, 1, got.TradeCount)
}

func TestMovingAverageBaseline(t *testing.T) {
	a := New(Config{Window: time.Second, Lookback: time.Minute}, nil)
	base := time.Now()

	var aggs []models.TradeAggregate
	a.OnTradeAggregate(func(ag models.TradeAggregate) { aggs = append(aggs, ag) })

	require.NoError(t, a.AddTrade(tp(base, 100, 4, models.SideBuy)))
	require.NoError(t, a.AddTrade(tp(base.Add(100*time.Millisecond), 100, 2, models.SideSell)))

	require.Len(t, aggs, 2)
	assert.Equal(t, 0.0, aggs[0].BuyMean, "first aggregate has no baseline")
	assert.Equal(t, 4.0, aggs[1].BuyMean, "baseline is the prior window sum")
	assert.Equal(t, 0.0, aggs[1].SellMean)
}

func TestRejectedTradesEmitNothing(t *testing.T) {
	a := New(Config{}, nil)
	fired := 0
	a.OnRawTrade(func(models.TradePrint) { fired++ })
	a.OnTradeAggregate(func(models.TradeAggregate) { fired++ })

	require.Error(t, a.AddTrade(models.TradePrint{}))
	require.Error(t, a.AddTrade(tp(time.Now(), -1, 1, models.SideBuy)))
	require.Error(t, a.AddTrade(tp(time.Now(), 100, 0, models.SideBuy)))
	require.Error(t, a.AddTrade(tp(time.Now(), 100, 1, models.Side("hold"))))

	assert.Zero(t, fired)
	assert.Zero(t, a.WindowSize())
}
