package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"LOBFuse/internal/domain/models"
	domrepo "LOBFuse/internal/domain/repository"
	pkgch "LOBFuse/pkg/clickhouse"
)

// CHRecordStore implements RecordStore for ClickHouse. All runs share one
// table; rows are namespaced by run_id.
type CHRecordStore struct {
	client *pkgch.Client
	db     *sql.DB
	runID  string
	table  string
}

// NewCHRecordStore creates ClickHouse-backed record storage.
func NewCHRecordStore(ch *pkgch.Client, runID string) domrepo.RecordStore {
	return &CHRecordStore{
		client: ch,
		db:     ch.DB(),
		runID:  runID,
		table:  "lobfuse.merged_records",
	}
}

func (s *CHRecordStore) Init(ctx context.Context) error {
	stmts := []string{
		"CREATE DATABASE IF NOT EXISTS lobfuse",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			run_id          String,
			ts              DateTime64(3),
			mid_price       Float64,
			imbalance       Float64,
			bid_volume      Float64,
			ask_volume      Float64,
			bid_volume_near Float64,
			ask_volume_near Float64,
			buy_volume      Float64,
			sell_volume     Float64,
			buy_mean        Float64,
			sell_mean       Float64,
			avg_price       Float64,
			trade_count     UInt32,
			activity_spike  UInt8,
			label           LowCardinality(String),
			future_return   Float64,
			label_price     Float64,
			labeled_at      DateTime64(3)
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMMDD(ts)
		ORDER BY (run_id, ts)`, s.table),
	}
	return s.client.InitSchema(ctx, stmts)
}

const recordColumns = "run_id, ts, mid_price, imbalance, bid_volume, ask_volume, bid_volume_near, ask_volume_near, " +
	"buy_volume, sell_volume, buy_mean, sell_mean, avg_price, trade_count, activity_spike, " +
	"label, future_return, label_price, labeled_at"

func (s *CHRecordStore) StoreBatch(ctx context.Context, recs []*models.FinalizedRecord) error {
	if len(recs) == 0 {
		return nil
	}
	// Multi-row VALUES insert to reduce round-trips.
	const chunkSize = 2000
	for start := 0; start < len(recs); start += chunkSize {
		end := start + chunkSize
		if end > len(recs) {
			end = len(recs)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*19)
		for _, r := range recs[start:end] {
			if r == nil || r.Features.Timestamp.IsZero() {
				continue
			}
			agg := r.Features.Agg
			if agg == nil {
				agg = &models.TradeAggregate{}
			}
			spike := uint8(0)
			if r.Features.ActivitySpike {
				spike = 1
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				s.runID,
				r.Features.Timestamp,
				r.Features.MidPrice,
				r.Features.Imbalance,
				r.Features.BidVolume,
				r.Features.AskVolume,
				r.Features.BidVolumeNear,
				r.Features.AskVolumeNear,
				agg.BuyVolume,
				agg.SellVolume,
				agg.BuyMean,
				agg.SellMean,
				agg.AvgPrice,
				uint32(agg.TradeCount),
				spike,
				string(r.Label),
				r.FutureReturn,
				r.LabelPrice,
				r.LabeledAt,
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", s.table, recordColumns, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("store batch: %w", err)
		}
	}
	return nil
}

func (s *CHRecordStore) Query(ctx context.Context, from, to time.Time, limit int) ([]*models.FinalizedRecord, error) {
	q := fmt.Sprintf(`SELECT ts, mid_price, imbalance, bid_volume, ask_volume, bid_volume_near, ask_volume_near,
		buy_volume, sell_volume, buy_mean, sell_mean, avg_price, trade_count, activity_spike,
		label, future_return, label_price, labeled_at
		FROM %s WHERE run_id = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?`, s.table)
	rows, err := s.db.QueryContext(ctx, q, s.runID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []*models.FinalizedRecord
	for rows.Next() {
		var (
			r          models.FinalizedRecord
			agg        models.TradeAggregate
			tradeCount uint32
			spike      uint8
			label      string
		)
		if err := rows.Scan(
			&r.Features.Timestamp,
			&r.Features.MidPrice,
			&r.Features.Imbalance,
			&r.Features.BidVolume,
			&r.Features.AskVolume,
			&r.Features.BidVolumeNear,
			&r.Features.AskVolumeNear,
			&agg.BuyVolume,
			&agg.SellVolume,
			&agg.BuyMean,
			&agg.SellMean,
			&agg.AvgPrice,
			&tradeCount,
			&spike,
			&label,
			&r.FutureReturn,
			&r.LabelPrice,
			&r.LabeledAt,
		); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		agg.Timestamp = r.Features.Timestamp
		agg.TradeCount = int(tradeCount)
		r.Features.Agg = &agg
		r.Features.ActivitySpike = spike != 0
		r.Label = models.Label(label)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *CHRecordStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHRecordStore) Close() error {
	return nil // pool managed by pkg client
}
