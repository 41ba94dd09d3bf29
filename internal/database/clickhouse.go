package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"shhe-backend/internal/models"
)

// ClassifiedRecordsTableSQL creates the classified_records table
const ClassifiedRecordsTableSQL = `
	CREATE TABLE IF NOT EXISTS classified_records (
		ts DateTime,
		device String,
		temp Float64,
		hum Float64,
		gas Float64,
		heartrate Float64,
		ai LowCardinality(String)
	) ENGINE = MergeTree()
	ORDER BY (device, ts)
	PARTITION BY toYYYYMM(ts)
`

const insertRecordSQL = `
	INSERT INTO classified_records (ts, device, temp, hum, gas, heartrate, ai)
	VALUES (?, ?, ?, ?, ?, ?, ?)
`

// AllTables returns the schema statements executed at startup
func AllTables() []string {
	return []string{ClassifiedRecordsTableSQL}
}

// ClickHouseConfig holds connection settings for the analytics mirror
type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
}

// ClickHouseDB mirrors classified records into ClickHouse for analytics
type ClickHouseDB struct {
	conn   driver.Conn
	logger *slog.Logger
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(ctx context.Context, cfg ClickHouseConfig, logger *slog.Logger) (*ClickHouseDB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	db := &ClickHouseDB{conn: conn, logger: logger.With("component", "clickhouse")}
	if err := db.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("connected to ClickHouse", "addr", cfg.Addr, "database", cfg.Database)
	return db, nil
}

// InitSchema creates the necessary tables if they don't exist
func (db *ClickHouseDB) InitSchema(ctx context.Context) error {
	for _, tableSQL := range AllTables() {
		if err := db.conn.Exec(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// MirrorRecord inserts one classified record
func (db *ClickHouseDB) MirrorRecord(ctx context.Context, rec models.ClassifiedRecord) error {
	args, err := RecordArgs(rec)
	if err != nil {
		return err
	}
	if err := db.conn.Exec(ctx, insertRecordSQL, args...); err != nil {
		return fmt.Errorf("failed to insert classified record: %w", err)
	}
	return nil
}

// RecordArgs converts a record to insert arguments in column order
func RecordArgs(rec models.ClassifiedRecord) ([]any, error) {
	ts, err := time.ParseInLocation(models.TimestampLayout, rec.Timestamp, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("record timestamp %q: %w", rec.Timestamp, err)
	}
	return []any{
		ts,
		rec.DeviceID,
		rec.Temp,
		rec.Hum,
		rec.Gas,
		rec.HeartRate,
		rec.Label.String(),
	}, nil
}

// Close closes the ClickHouse connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		if err := db.conn.Close(); err != nil {
			return fmt.Errorf("failed to close ClickHouse connection: %w", err)
		}
		db.logger.Info("ClickHouse connection closed")
	}
	return nil
}
