package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is an alternative Store backend for deployments where the ledger
// must live on a shared server instead of a local file. Selected when
// DATABASE_URL is set. Semantics are identical to the SQLite store.
type Postgres struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// ConnectPostgres creates a pgx pool and ensures the schema exists.
func ConnectPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	if databaseURL == "" {
		return nil, errors.New("ledger: DATABASE_URL is required")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("ledger: parse DATABASE_URL: %w", err)
	}
	config.MaxConns = 4
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("ledger: create pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ledger: ping postgres: %w", err)
	}

	p := &Postgres{pool: pool, now: time.Now}
	if err := p.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ledger: init schema: %w", err)
	}

	slog.Info("ledger: postgres connected", slog.String("addr", config.ConnConfig.Host))
	return p, nil
}

func (p *Postgres) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS processed_videos (
			video_id      TEXT PRIMARY KEY,
			channel_id    TEXT NOT NULL,
			channel_name  TEXT,
			title         TEXT NOT NULL,
			published_at  TEXT,
			processed_at  TIMESTAMPTZ NOT NULL,
			status        TEXT NOT NULL DEFAULT 'completed',
			error_message TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_processed_at ON processed_videos(processed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_channel_id ON processed_videos(channel_id)`,
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) IsProcessed(ctx context.Context, videoID string) (bool, error) {
	var id string
	err := p.pool.QueryRow(ctx,
		`SELECT video_id FROM processed_videos WHERE video_id = $1`, videoID,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledger: is_processed: %w", err)
	}
	return true, nil
}

func (p *Postgres) RecordOutcome(ctx context.Context, video Video, status Status, errorMessage string) error {
	if video.VideoID == "" || video.Title == "" {
		return errors.New("ledger: record_outcome: video_id and title are required")
	}
	if !status.Valid() {
		return fmt.Errorf("ledger: record_outcome: invalid status %q", status)
	}

	var errMsg *string
	if errorMessage != "" {
		errMsg = &errorMessage
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO processed_videos
		 (video_id, channel_id, channel_name, title, published_at, processed_at, status, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (video_id) DO UPDATE SET
		   channel_id = EXCLUDED.channel_id,
		   channel_name = EXCLUDED.channel_name,
		   title = EXCLUDED.title,
		   published_at = EXCLUDED.published_at,
		   processed_at = EXCLUDED.processed_at,
		   status = EXCLUDED.status,
		   error_message = EXCLUDED.error_message`,
		video.VideoID, video.ChannelID, video.ChannelName, video.Title,
		video.PublishedAt, p.now().UTC(), string(status), errMsg,
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

func (p *Postgres) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{StatusBreakdown: map[Status]int{}}
	today := p.now().UTC().Truncate(24 * time.Hour)
	weekAgo := today.AddDate(0, 0, -7)

	if err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM processed_videos`,
	).Scan(&st.Total); err != nil {
		return nil, fmt.Errorf("ledger: stats: %w", err)
	}

	rows, err := p.pool.Query(ctx,
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

	if err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM processed_videos WHERE (processed_at AT TIME ZONE 'UTC')::date = $1::date`, today,
	).Scan(&st.ProcessedToday); err != nil {
		return nil, fmt.Errorf("ledger: stats: %w", err)
	}

	if err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM processed_videos WHERE (processed_at AT TIME ZONE 'UTC')::date >= $1::date`, weekAgo,
	).Scan(&st.ProcessedThisWeek); err != nil {
		return nil, fmt.Errorf("ledger: stats: %w", err)
	}

	return st, nil
}

func (p *Postgres) Failed(ctx context.Context, limit int) ([]VideoRecord, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT video_id, channel_id, channel_name, title, published_at, processed_at, status, error_message
		 FROM processed_videos
		 WHERE status = 'failed'
		 ORDER BY processed_at DESC
		 LIMIT $1`, clampLimit(limit, 10))
	if err != nil {
		return nil, fmt.Errorf("ledger: failed: %w", err)
	}
	defer rows.Close()
	return scanPgRecords(rows)
}

func (p *Postgres) ByChannel(ctx context.Context, channelID string, limit int) ([]VideoRecord, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT video_id, channel_id, channel_name, title, published_at, processed_at, status, error_message
		 FROM processed_videos
		 WHERE channel_id = $1
		 ORDER BY processed_at DESC
		 LIMIT $2`, channelID, clampLimit(limit, 50))
	if err != nil {
		return nil, fmt.Errorf("ledger: by_channel: %w", err)
	}
	defer rows.Close()
	return scanPgRecords(rows)
}

func (p *Postgres) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := p.now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -retentionDays)
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM processed_videos WHERE (processed_at AT TIME ZONE 'UTC')::date < $1::date`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("ledger: cleanup: %w", err)
	}
	deleted := tag.RowsAffected()
	slog.Info("ledger: cleanup done", slog.Int64("deleted", deleted), slog.Int("retention_days", retentionDays))
	return deleted, nil
}

func (p *Postgres) ClearAll(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM processed_videos`); err != nil {
		return fmt.Errorf("ledger: clear_all: %w", err)
	}
	return nil
}

func scanPgRecords(rows pgx.Rows) ([]VideoRecord, error) {
	records := []VideoRecord{}
	for rows.Next() {
		var r VideoRecord
		var channelName, publishedAt, errMsg *string
		var status string
		var processedAt time.Time
		if err := rows.Scan(&r.VideoID, &r.ChannelID, &channelName, &r.Title,
			&publishedAt, &processedAt, &status, &errMsg); err != nil {
			return nil, fmt.Errorf("ledger: scan: %w", err)
		}
		if channelName != nil {
			r.ChannelName = *channelName
		}
		if publishedAt != nil {
			r.PublishedAt = *publishedAt
		}
		if errMsg != nil {
			r.ErrorMessage = *errMsg
		}
		r.ProcessedAt = processedAt.UTC().Format(time.RFC3339)
		r.Status = Status(status)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: scan: %w", err)
	}
	return records, nil
}
