// Package ledger is the durable per-video outcome store that makes repeated
// pipeline runs idempotent. One record per video ID, last write wins; a
// record's presence — regardless of status — excludes the video from future
// runs.
package ledger

import "context"

// Status is the terminal outcome recorded for a video.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// Video is the caller-supplied portion of an outcome record.
// ChannelID, ChannelName and PublishedAt may be empty if unknown.
type Video struct {
	VideoID     string
	ChannelID   string
	ChannelName string
	Title       string
	PublishedAt string // ISO-8601, as reported by the source
}

// VideoRecord is one row in the ledger.
type VideoRecord struct {
	VideoID      string `json:"video_id"`
	ChannelID    string `json:"channel_id"`
	ChannelName  string `json:"channel_name,omitempty"`
	Title        string `json:"title"`
	PublishedAt  string `json:"published_at,omitempty"`
	ProcessedAt  string `json:"processed_at"` // RFC3339 UTC, set by the store
	Status       Status `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Stats summarizes the ledger's contents. Today/this-week windows use UTC
// calendar days; "this week" is the last 7 days inclusive.
type Stats struct {
	Total             int            `json:"total_videos"`
	StatusBreakdown   map[Status]int `json:"status_breakdown"`
	ProcessedToday    int            `json:"processed_today"`
	ProcessedThisWeek int            `json:"processed_this_week"`
}

// Store is the durable outcome ledger. Storage failures propagate as errors;
// missing rows resolve to empty or zero results.
type Store interface {
	// IsProcessed reports whether any record exists for videoID, regardless
	// of status. No side effects.
	IsProcessed(ctx context.Context, videoID string) (bool, error)

	// RecordOutcome upserts the record for video.VideoID, replacing any prior
	// record entirely. processed_at is set by the store to the current UTC
	// time; callers never supply it. errorMessage should be empty for
	// completed outcomes.
	RecordOutcome(ctx context.Context, video Video, status Status, errorMessage string) error

	// Stats returns aggregate counts over the whole ledger.
	Stats(ctx context.Context) (*Stats, error)

	// Failed returns up to limit failed records, most recent first.
	Failed(ctx context.Context, limit int) ([]VideoRecord, error)

	// ByChannel returns up to limit records for the channel, most recent first.
	ByChannel(ctx context.Context, channelID string, limit int) ([]VideoRecord, error)

	// Cleanup deletes records whose processed_at UTC calendar date is strictly
	// before today minus retentionDays. Returns the number deleted.
	Cleanup(ctx context.Context, retentionDays int) (int64, error)

	// ClearAll deletes every record. Maintenance only; the pipeline never
	// calls this.
	ClearAll(ctx context.Context) error

	Close() error
}
