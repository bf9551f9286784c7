package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is the default Store backend: a single-file database under data/.
type SQLite struct {
	db *sql.DB

	// now is a test hook for deterministic windowing; defaults to time.Now.
	now func() time.Time
}

// OpenSQLite opens (or creates) the ledger database at path.
// Use ":memory:" for an in-memory store in tests.
func OpenSQLite(path string) (*SQLite, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return nil, fmt.Errorf("ledger: mkdir %s: %w", dir, err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer

	s := &SQLite{db: db, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: init schema: %w", err)
	}
	slog.Debug("ledger: sqlite ready", slog.String("path", path))
	return s, nil
}

func (s *SQLite) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS processed_videos (
			video_id      TEXT PRIMARY KEY,
			channel_id    TEXT NOT NULL,
			channel_name  TEXT,
			title         TEXT NOT NULL,
			published_at  TEXT,
			processed_at  TEXT NOT NULL,
			status        TEXT NOT NULL DEFAULT 'completed',
			error_message TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_processed_at ON processed_videos(processed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_channel_id ON processed_videos(channel_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }

// IsProcessed reports whether any record exists for videoID.
func (s *SQLite) IsProcessed(ctx context.Context, videoID string) (bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT video_id FROM processed_videos WHERE video_id = ?`, videoID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledger: is_processed: %w", err)
	}
	return true, nil
}

// RecordOutcome upserts the outcome for video.VideoID. The upsert is a single
// atomic statement so a second write fully replaces the first.
func (s *SQLite) RecordOutcome(ctx context.Context, video Video, status Status, errorMessage string) error {
	if video.VideoID == "" || video.Title == "" {
		return fmt.Errorf("ledger: record_outcome: video_id and title are required")
	}
	if !status.Valid() {
		return fmt.Errorf("ledger: record_outcome: invalid status %q", status)
	}

	processedAt := s.now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO processed_videos
		 (video_id, channel_id, channel_name, title, published_at, processed_at, status, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(video_id) DO UPDATE SET
		   channel_id = excluded.channel_id,
		   channel_name = excluded.channel_name,
		   title = excluded.title,
		   published_at = excluded.published_at,
		   processed_at = excluded.processed_at,
		   status = excluded.status,
		   error_message = excluded.error_message`,
		video.VideoID, video.ChannelID, video.ChannelName, video.Title,
		video.PublishedAt, processedAt, string(status), nullable(errorMessage),
	)
	if err != nil {
		return fmt.Errorf("ledger: record_outcome: %w", err)
	}

	slog.Info("ledger: outcome recorded",
		slog.String("video_id", video.VideoID),
		slog.String("status", string(status)),
	)
	return nil
}

// Stats returns aggregate counts; today/this-week boundaries use UTC calendar
// days relative to the store's clock.
func (s *SQLite) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{StatusBreakdown: map[Status]int{}}
	today := s.now().UTC().Format("2006-01-02")
	weekAgo := s.now().UTC().AddDate(0, 0, -7).Format("2006-01-02")

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processed_videos`,
	).Scan(&st.Total); err != nil {
		return nil, fmt.Errorf("ledger: stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM processed_videos GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("ledger: stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("ledger: stats: %w", err)
		}
		st.StatusBreakdown[Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: stats: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processed_videos WHERE date(processed_at) = ?`, today,
	).Scan(&st.ProcessedToday); err != nil {
		return nil, fmt.Errorf("ledger: stats: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processed_videos WHERE date(processed_at) >= ?`, weekAgo,
	).Scan(&st.ProcessedThisWeek); err != nil {
		return nil, fmt.Errorf("ledger: stats: %w", err)
	}

	return st, nil
}

// Failed returns up to limit failed records, most recent first.
func (s *SQLite) Failed(ctx context.Context, limit int) ([]VideoRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT video_id, channel_id, channel_name, title, published_at, processed_at, status, error_message
		 FROM processed_videos
		 WHERE status = 'failed'
		 ORDER BY processed_at DESC
		 LIMIT ?`, clampLimit(limit, 10))
	if err != nil {
		return nil, fmt.Errorf("ledger: failed: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ByChannel returns up to limit records for channelID, most recent first.
func (s *SQLite) ByChannel(ctx context.Context, channelID string, limit int) ([]VideoRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT video_id, channel_id, channel_name, title, published_at, processed_at, status, error_message
		 FROM processed_videos
		 WHERE channel_id = ?
		 ORDER BY processed_at DESC
		 LIMIT ?`, channelID, clampLimit(limit, 50))
	if err != nil {
		return nil, fmt.Errorf("ledger: by_channel: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Cleanup deletes records whose processed_at UTC date is strictly before
// today minus retentionDays. A record exactly retentionDays old is retained.
func (s *SQLite) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays).Format("2006-01-02")
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM processed_videos WHERE date(processed_at) < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("ledger: cleanup: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ledger: cleanup: %w", err)
	}
	slog.Info("ledger: cleanup done", slog.Int64("deleted", deleted), slog.Int("retention_days", retentionDays))
	return deleted, nil
}

// ClearAll deletes every record.
func (s *SQLite) ClearAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM processed_videos`); err != nil {
		return fmt.Errorf("ledger: clear_all: %w", err)
	}
	return nil
}

func scanRecords(rows *sql.Rows) ([]VideoRecord, error) {
	records := []VideoRecord{}
	for rows.Next() {
		var r VideoRecord
		var channelName, publishedAt, errMsg sql.NullString
		var status string
		if err := rows.Scan(&r.VideoID, &r.ChannelID, &channelName, &r.Title,
			&publishedAt, &r.ProcessedAt, &status, &errMsg); err != nil {
			return nil, fmt.Errorf("ledger: scan: %w", err)
		}
		r.ChannelName = channelName.String
		r.PublishedAt = publishedAt.String
		r.Status = Status(status)
		r.ErrorMessage = errMsg.String
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: scan: %w", err)
	}
	return records, nil
}

func clampLimit(limit, def int) int {
	if limit <= 0 || limit > 500 {
		return def
	}
	return limit
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
