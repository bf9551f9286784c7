package engine

import "time"

// Channel is one subscribed channel, as reported by the video source.
type Channel struct {
	ID   string `json:"channel_id"`
	Name string `json:"channel_name"`
}

// CandidateVideo is a video discovered from a channel within the lookback
// window, before it has been checked against the ledger. Read-only input to
// the pipeline.
type CandidateVideo struct {
	VideoID      string `json:"video_id"`
	Title        string `json:"title"`
	ChannelID    string `json:"channel_id"`
	ChannelName  string `json:"channel_name,omitempty"`
	PublishedAt  string `json:"published_at,omitempty"` // ISO-8601, may be empty
	Description  string `json:"description,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// WatchURL returns the canonical watch page URL for the video.
func (v CandidateVideo) WatchURL() string {
	return "https://youtube.com/watch?v=" + v.VideoID
}

// NarrationRequest carries everything the narrator needs for one video.
type NarrationRequest struct {
	Transcript string
	Title      string
	VideoID    string
	VideoURL   string
}

// Narration is the narrator's output: a condensed restatement of the
// transcript plus the path of the synthesized MP3.
type Narration struct {
	Summary   string
	AudioPath string
}

// RunOptions configures one pipeline execution.
type RunOptions struct {
	Hours      int           // lookback window for recent uploads
	MinMinutes int           // videos shorter than this are skipped
	MaxMinutes int           // videos longer than this are skipped
	DryRun     bool          // process but never deliver email
	Timeout    time.Duration // optional wall-clock budget for the whole run (0 = none)
}
