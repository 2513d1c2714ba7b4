package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"

	"github.com/Shiki0138/hotelbooking-sub004/internal/notify"
)

const (
	tableDispatchRecords = "dispatch_records"

	createDispatchRecordsSQL = `
		CREATE TABLE IF NOT EXISTS dispatch_records (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			request_id VARCHAR(128) NOT NULL,
			subscriber_id VARCHAR(128) NOT NULL,
			kind VARCHAR(64) NOT NULL,
			priority VARCHAR(16) NOT NULL,
			title TEXT,
			channels JSON,
			status VARCHAR(32) NOT NULL,
			detail TEXT,
			suppressed_by VARCHAR(32),
			created_at BIGINT NOT NULL,
			completed_at BIGINT DEFAULT 0,
			INDEX idx_subscriber_created (subscriber_id, created_at DESC),
			UNIQUE KEY uq_request (request_id),
			INDEX idx_kind_status (kind, status)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`

	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
)

// MySQL archives dispatch history for long-term audit. It complements the
// Redis store, which only keeps a capped recent window.
type MySQL struct {
	db      *sql.DB
	log     zerolog.Logger
	maxKeep int64
}

// OpenMySQL connects, tunes the pool, and ensures the archive table exists.
func OpenMySQL(dsn string, maxKeep int64, log zerolog.Logger) (*MySQL, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	if _, err := db.Exec(createDispatchRecordsSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create %s: %w", tableDispatchRecords, err)
	}
	return &MySQL{
		db:      db,
		log:     log.With().Str("component", "mysql-history").Logger(),
		maxKeep: maxKeep,
	}, nil
}

func (m *MySQL) Close() error { return m.db.Close() }

func (m *MySQL) SaveRecord(ctx context.Context, rec notify.Record) error {
	channels, err := json.Marshal(rec.Channels)
	if err != nil {
		return fmt.Errorf("encode channels: %w", err)
	}
	// Upsert on request_id keeps backfills and replays idempotent.
	_, err = m.db.ExecContext(ctx, `
		INSERT INTO dispatch_records
			(request_id, subscriber_id, kind, priority, title, channels,
			 status, detail, suppressed_by, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			status = VALUES(status),
			detail = VALUES(detail),
			suppressed_by = VALUES(suppressed_by),
			completed_at = VALUES(completed_at)`,
		rec.RequestID, rec.SubscriberID, string(rec.Kind), string(rec.Priority),
		rec.Title, channels, rec.Status, rec.Detail, string(rec.SuppressedBy),
		rec.CreatedAt, rec.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert dispatch record: %w", err)
	}
	return nil
}

func (m *MySQL) Query(ctx context.Context, subscriberID string, limit int64) ([]notify.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT request_id, subscriber_id, kind, priority, title, channels,
		       status, detail, suppressed_by, created_at, completed_at
		FROM dispatch_records`
	args := []any{}
	if subscriberID != "" {
		query += " WHERE subscriber_id = ?"
		args = append(args, subscriberID)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query dispatch records: %w", err)
	}
	defer rows.Close()

	var out []notify.Record
	for rows.Next() {
		var rec notify.Record
		var kind, priority, suppressedBy string
		var channels []byte
		if err := rows.Scan(&rec.RequestID, &rec.SubscriberID, &kind, &priority,
			&rec.Title, &channels, &rec.Status, &rec.Detail, &suppressedBy,
			&rec.CreatedAt, &rec.CompletedAt); err != nil {
			return nil, err
		}
		rec.Kind = notify.EventKind(kind)
		rec.Priority = notify.Priority(priority)
		rec.SuppressedBy = notify.SuppressReason(suppressedBy)
		if len(channels) > 0 {
			if err := json.Unmarshal(channels, &rec.Channels); err != nil {
				m.log.Warn().Str("request_id", rec.RequestID).Err(err).Msg("bad channels column")
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Trim deletes the oldest rows past the retention cap.
func (m *MySQL) Trim(ctx context.Context) (int, error) {
	if m.maxKeep <= 0 {
		return 0, nil
	}
	var total int64
	if err := m.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM dispatch_records").Scan(&total); err != nil {
		return 0, err
	}
	excess := total - m.maxKeep
	if excess <= 0 {
		return 0, nil
	}
	res, err := m.db.ExecContext(ctx,
		"DELETE FROM dispatch_records ORDER BY created_at ASC LIMIT ?", excess)
	if err != nil {
		return 0, fmt.Errorf("trim dispatch records: %w", err)
	}
	deleted, _ := res.RowsAffected()
	return int(deleted), nil
}
