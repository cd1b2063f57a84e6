package repository

import (
	"context"
	"time"

	"LOBFuse/internal/domain/models"
)

// MarketStream delivers parsed feed messages for one instrument.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.BookUpdate, <-chan *models.TradePrint, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// RecordStore persists finalized records to columnar storage.
type RecordStore interface {
	Init(ctx context.Context) error
	StoreBatch(ctx context.Context, recs []*models.FinalizedRecord) error
	Query(ctx context.Context, from, to time.Time, limit int) ([]*models.FinalizedRecord, error)
	Health(ctx context.Context) error
	Close() error
}

// RecordPublisher pushes finalized records to downstream consumers.
type RecordPublisher interface {
	Publish(ctx context.Context, rec *models.FinalizedRecord) error
	Close() error
}

// AuditLog is the append-only trail of activity spike events.
type AuditLog interface {
	Append(ev *models.ActivitySpikeEvent) error
	Close() error
}

type Metrics interface {
	RecordEvent(stream string)
	RecordError(kind string)
	RecordLastPrice(price float64)
	RecordPendingDepth(n int)
	RecordLatency(op string, seconds float64)
}
