package engine

import "log/slog"

// RunStats accumulates counters for one pipeline execution. Not persisted;
// returned to the caller at run end.
type RunStats struct {
	TotalDiscovered int `json:"total_videos_found"`
	NewVideos       int `json:"new_videos"`
	Processed       int `json:"processed"`
	Failed          int `json:"failed"`
	Skipped         int `json:"skipped"`
	SkippedTooLong  int `json:"skipped_too_long"`
}

// Log emits the end-of-run summary.
func (s *RunStats) Log() {
	slog.Info("pipeline summary",
		slog.Int("total_videos_found", s.TotalDiscovered),
		slog.Int("new_videos", s.NewVideos),
		slog.Int("processed", s.Processed),
		slog.Int("failed", s.Failed),
		slog.Int("skipped", s.Skipped),
		slog.Int("skipped_too_long", s.SkippedTooLong),
	)
}
