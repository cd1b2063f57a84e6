package book

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LOBFuse/internal/domain/models"
)

func update(ts time.Time, bids, asks []models.PriceLevel) *models.BookUpdate {
	return &models.BookUpdate{Timestamp: ts, Bids: bids, Asks: asks}
}

func TestMidPrice(t *testing.T) {
	b := New(Config{}, nil)
	ts := time.Now()

	_, err := b.MidPrice()
	require.ErrorIs(t, err, ErrEmptySide)

	require.NoError(t, b.Apply(update(ts, []models.PriceLevel{{Price: 100, Qty: 1}}, nil)))
	_, err = b.MidPrice()
	require.ErrorIs(t, err, ErrEmptySide, "one-sided book has no mid")

	require.NoError(t, b.Apply(update(ts, nil, []models.PriceLevel{{Price: 102, Qty: 1}})))
	mid, err := b.MidPrice()
	require.NoError(t, err)
	assert.Equal(t, 101.0, mid)

	// better bid moves the mid
	require.NoError(t, b.Apply(update(ts, []models.PriceLevel{{Price: 101, Qty: 2}}, nil)))
	mid, err = b.MidPrice()
	require.NoError(t, err)
	assert.Equal(t, 101.5, mid)
}

func TestZeroQtyRemovesLevel(t *testing.T) {
	b := New(Config{}, nil)
	ts := time.Now()
	require.NoError(t, b.Apply(update(ts,
		[]models.PriceLevel{{Price: 100, Qty: 1}, {Price: 99, Qty: 2}},
		[]models.PriceLevel{{Price: 101, Qty: 1}})))

	require.NoError(t, b.Apply(update(ts, []models.PriceLevel{{Price: 100, Qty: 0}}, nil)))
	mid, err := b.MidPrice()
	require.NoError(t, err)
	assert.Equal(t, 100.0, mid, "best bid should fall back to 99")
}

func TestImbalance(t *testing.T) {
	b := New(Config{TopLevels: 2}, nil)
	ts := time.Now()
	require.NoError(t, b.Apply(update(ts,
		[]models.PriceLevel{{Price: 100, Qty: 3}, {Price: 99, Qty: 3}, {Price: 98, Qty: 50}},
		[]models.PriceLevel{{Price: 101, Qty: 1}, {Price: 102, Qty: 1}, {Price: 103, Qty: 50}})))

	ratio, bidVol, askVol := b.Imbalance()
	assert.Equal(t, 6.0, bidVol, "only top 2 levels count")
	assert.Equal(t, 2.0, askVol)
	assert.InDelta(t, 0.5, ratio, 1e-9)
}

func TestNearPriceVolume(t *testing.T) {
	b := New(Config{NearBandPct: 0.01}, nil)
	ts := time.Now()
	require.NoError(t, b.Apply(update(ts,
		[]models.PriceLevel{{Price: 100, Qty: 1}, {Price: 99.5, Qty: 2}, {Price: 90, Qty: 100}},
		[]models.PriceLevel{{Price: 101, Qty: 3}, {Price: 110, Qty: 100}})))

	// mid = 100.5, band = [99.495, 101.505]
	bidNear, askNear := b.NearPriceVolume(0.01)
	assert.Equal(t, 3.0, bidNear)
	assert.Equal(t, 3.0, askNear)
}

func TestObserversFireInRegistrationOrder(t *testing.T) {
	b := New(Config{}, nil)
	var order []int
	b.OnUpdate(func(models.OrderBookSnapshot) { order = append(order, 1) })
	b.OnUpdate(func(models.OrderBookSnapshot) { order = append(order, 2) })
	b.OnUpdate(func(models.OrderBookSnapshot) { order = append(order, 3) })

	ts := time.Now()
	require.NoError(t, b.Apply(update(ts,
		[]models.PriceLevel{{Price: 100, Qty: 1}},
		[]models.PriceLevel{{Price: 101, Qty: 1}})))

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestSnapshotPerAppliedUpdate(t *testing.T) {
	b := New(Config{}, nil)
	var snaps []models.OrderBookSnapshot
	b.OnUpdate(func(s models.OrderBookSnapshot) { snaps = append(snaps, s) })

	ts := time.Now()
	require.NoError(t, b.Apply(update(ts,
		[]models.PriceLevel{{Price: 100, Qty: 1}},
		[]models.PriceLevel{{Price: 102, Qty: 1}})))
	require.NoError(t, b.Apply(update(ts.Add(time.Millisecond),
		[]models.PriceLevel{{Price: 101, Qty: 1}}, nil)))

	require.Len(t, snaps, 2)
	assert.Equal(t, 101.0, snaps[0].MidPrice)
	assert.Equal(t, 101.5, snaps[1].MidPrice)
	assert.Equal(t, ts.Add(time.Millisecond), b.LastUpdate())
}

func TestMalformedUpdateLeavesStateUnchanged(t *testing.T) {
	b := New(Config{}, nil)
	ts := time.Now()
	require.NoError(t, b.Apply(update(ts,
		[]models.PriceLevel{{Price: 100, Qty: 1}},
		[]models.PriceLevel{{Price: 102, Qty: 1}})))

	err := b.Apply(update(ts, []models.PriceLevel{{Price: -1, Qty: 5}}, nil))
	require.Error(t, err)
	err = b.Apply(&models.BookUpdate{Bids: []models.PriceLevel{{Price: 100, Qty: 5}}})
	require.Error(t, err, "zero timestamp rejected")
	err = b.Apply(nil)
	require.Error(t, err)

	mid, merr := b.MidPrice()
	require.NoError(t, merr)
	assert.Equal(t, 101.0, mid, "rejected updates must not corrupt the book")
}
