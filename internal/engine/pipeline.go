package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/anatolykoptev/go_digest/internal/engine/ledger"
)

// Collaborator interfaces. The runner owns orchestration and the ledger;
// everything network-facing hides behind one of these so runs can be tested
// with fakes.

// VideoSource discovers subscribed channels, their recent uploads, and video
// durations.
type VideoSource interface {
	Subscriptions(ctx context.Context) ([]Channel, error)
	RecentVideos(ctx context.Context, channel Channel, hours int) ([]CandidateVideo, error)
	DurationSeconds(ctx context.Context, videoID string) (seconds int, known bool, err error)
}

// TranscriptProvider fetches caption text for a video.
type TranscriptProvider interface {
	Fetch(ctx context.Context, videoID string) (string, error)
}

// NarrationProvider produces the summary and its audio narration.
type NarrationProvider interface {
	Narrate(ctx context.Context, req NarrationRequest) (*Narration, error)
}

// Notifier delivers one finished digest.
type Notifier interface {
	SendDigest(ctx context.Context, video CandidateVideo, narration *Narration) error
}

// Runner executes the digest pipeline: discover → filter → transcribe →
// narrate → deliver → record. Videos are processed sequentially; one video's
// failure never aborts the run.
type Runner struct {
	Source      VideoSource
	Transcripts TranscriptProvider
	Narrator    NarrationProvider
	Notifier    Notifier
	Ledger      ledger.Store
}

// Run executes one pipeline pass. The returned error is non-nil only for
// run-fatal conditions (subscription fetch or ledger failures); per-video
// failures land in the stats and the ledger instead.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*RunStats, error) {
	if opts.Hours <= 0 {
		opts.Hours = 24
	}
	if opts.MinMinutes <= 0 {
		opts.MinMinutes = 1
	}
	if opts.MaxMinutes <= 0 {
		opts.MaxMinutes = 30
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	IncrRunsStarted()
	start := time.Now()
	slog.Info("pipeline started",
		slog.Bool("dry_run", opts.DryRun),
		slog.Int("hours", opts.Hours),
		slog.Int("min_minutes", opts.MinMinutes),
		slog.Int("max_minutes", opts.MaxMinutes),
	)

	stats := &RunStats{}

	// 1. Subscribed channels. Failure here is fatal: without the channel
	// list there is nothing to do.
	channels, err := r.Source.Subscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch subscriptions: %w", err)
	}
	slog.Info("subscriptions fetched", slog.Int("channels", len(channels)))

	// 2. Recent uploads per channel. A single channel's failure is logged
	// and skipped; the rest of the run proceeds.
	var discovered []CandidateVideo
	for _, ch := range channels {
		videos, err := r.Source.RecentVideos(ctx, ch, opts.Hours)
		if err != nil {
			slog.Error("channel fetch failed",
				slog.String("channel", ch.Name),
				slog.Any("error", err),
			)
			continue
		}
		if len(videos) > 0 {
			slog.Info("new videos found",
				slog.String("channel", ch.Name),
				slog.Int("count", len(videos)),
			)
		}
		discovered = append(discovered, videos...)
		stats.TotalDiscovered += len(videos)
	}
	slog.Info("discovery done", slog.Int("total", stats.TotalDiscovered))

	// 3. Drop everything the ledger already knows, regardless of its
	// recorded status.
	newVideos := make([]CandidateVideo, 0, len(discovered))
	for _, v := range discovered {
		processed, err := r.Ledger.IsProcessed(ctx, v.VideoID)
		if err != nil {
			return stats, fmt.Errorf("ledger check: %w", err)
		}
		if !processed {
			newVideos = append(newVideos, v)
		}
	}
	stats.NewVideos = len(newVideos)
	slog.Info("new videos to process", slog.Int("count", stats.NewVideos))

	// 4. Process sequentially.
	for i, video := range newVideos {
		if ctx.Err() != nil {
			slog.Warn("run cancelled", slog.Int("remaining", len(newVideos)-i))
			break
		}
		slog.Info("processing video",
			slog.Int("index", i+1),
			slog.Int("total", len(newVideos)),
			slog.String("video_id", video.VideoID),
			slog.String("title", video.Title),
			slog.String("channel", video.ChannelName),
		)
		r.processVideo(ctx, video, opts, stats)
	}

	IncrRunsCompleted()
	stats.Log()
	slog.Info("pipeline completed", slog.Duration("elapsed", time.Since(start).Round(time.Millisecond)))

	if dbStats, err := r.Ledger.Stats(ctx); err == nil {
		slog.Info("ledger totals",
			slog.Int("total_videos", dbStats.Total),
			slog.Int("processed_today", dbStats.ProcessedToday),
			slog.Int("processed_this_week", dbStats.ProcessedThisWeek),
		)
	}
	return stats, nil
}

// processVideo runs the per-video state machine and records exactly one
// terminal outcome in the ledger.
func (r *Runner) processVideo(ctx context.Context, video CandidateVideo, opts RunOptions, stats *RunStats) {
	// a. Duration gate. An unknown duration is a soft skip; a failed lookup
	// is a hard failure.
	seconds, known, err := r.Source.DurationSeconds(ctx, video.VideoID)
	if err != nil {
		slog.Error("duration lookup failed", slog.String("video_id", video.VideoID), slog.Any("error", err))
		r.record(ctx, video, ledger.StatusFailed, err.Error())
		stats.Failed++
		return
	}

	minutes := float64(seconds) / 60
	switch ClassifyDuration(seconds, known, opts.MinMinutes, opts.MaxMinutes) {
	case DurationUnknown:
		slog.Warn("could not determine duration, skipping", slog.String("video_id", video.VideoID))
		r.record(ctx, video, ledger.StatusSkipped, "Could not fetch video duration")
		stats.Skipped++
		return
	case DurationTooShort:
		slog.Warn("video too short, skipping",
			slog.String("video_id", video.VideoID), slog.Float64("minutes", minutes))
		r.record(ctx, video, ledger.StatusSkipped, fmt.Sprintf("Video too short (%.1f minutes)", minutes))
		stats.Skipped++
		return
	case DurationTooLong:
		slog.Warn("video too long, skipping",
			slog.String("video_id", video.VideoID), slog.Float64("minutes", minutes))
		r.record(ctx, video, ledger.StatusSkipped, fmt.Sprintf("Video too long (%.1f minutes)", minutes))
		stats.SkippedTooLong++
		return
	}
	slog.Info("duration ok", slog.String("video_id", video.VideoID), slog.Float64("minutes", minutes))

	// b. Transcript. Any failure degrades to "no transcript": a soft skip,
	// never a hard failure.
	transcript, err := r.Transcripts.Fetch(ctx, video.VideoID)
	if err != nil {
		slog.Warn("no transcript available, skipping",
			slog.String("video_id", video.VideoID), slog.Any("error", err))
		transcript = ""
	}
	if transcript == "" {
		r.record(ctx, video, ledger.StatusSkipped, "No transcript available")
		stats.Skipped++
		return
	}
	slog.Info("transcript extracted",
		slog.String("video_id", video.VideoID), slog.Int("chars", len(transcript)))

	// c. Summary + audio.
	narration, err := r.Narrator.Narrate(ctx, NarrationRequest{
		Transcript: transcript,
		Title:      video.Title,
		VideoID:    video.VideoID,
		VideoURL:   video.WatchURL(),
	})
	if err != nil {
		slog.Error("narration failed", slog.String("video_id", video.VideoID), slog.Any("error", err))
		r.record(ctx, video, ledger.StatusFailed, err.Error())
		stats.Failed++
		return
	}
	slog.Info("narration ready",
		slog.String("video_id", video.VideoID),
		slog.String("summary", Truncate(narration.Summary, 100)),
		slog.String("audio", narration.AudioPath),
	)

	// d. Delivery. Dry runs skip the notifier but still record completed, so
	// a later real run does not resend.
	if opts.DryRun {
		slog.Info("dry run: email not sent", slog.String("video_id", video.VideoID))
	} else {
		if err := r.Notifier.SendDigest(ctx, video, narration); err != nil {
			slog.Error("delivery failed", slog.String("video_id", video.VideoID), slog.Any("error", err))
			r.record(ctx, video, ledger.StatusFailed, err.Error())
			stats.Failed++
			return
		}
	}

	// e. Done.
	r.record(ctx, video, ledger.StatusCompleted, "")
	stats.Processed++
}

// record writes the terminal outcome. A write failure is logged but does not
// abort the run; the video may be reprocessed next time.
func (r *Runner) record(ctx context.Context, video CandidateVideo, status ledger.Status, errorMessage string) {
	err := r.Ledger.RecordOutcome(ctx, ledger.Video{
		VideoID:     video.VideoID,
		ChannelID:   video.ChannelID,
		ChannelName: video.ChannelName,
		Title:       video.Title,
		PublishedAt: video.PublishedAt,
	}, status, errorMessage)
	if err != nil {
		slog.Error("ledger write failed",
			slog.String("video_id", video.VideoID),
			slog.String("status", string(status)),
			slog.Any("error", err),
		)
	}
}
