package engine

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Metrics tracks operational counters across the pipeline.
var metrics struct {
	RunsStarted        atomic.Int64
	RunsCompleted      atomic.Int64
	YouTubeAPIRequests atomic.Int64
	QuotaUnits         atomic.Int64
	TranscriptRequests atomic.Int64
	TranscriptMisses   atomic.Int64
	LLMCalls           atomic.Int64
	LLMErrors          atomic.Int64
	TTSCalls           atomic.Int64
	TTSErrors          atomic.Int64
	EmailsSent         atomic.Int64
	EmailErrors        atomic.Int64
}

// GetMetrics returns a snapshot of all metrics including cache stats.
func GetMetrics() map[string]int64 {
	hits, misses := CacheStats()
	return map[string]int64{
		"runs_started":         metrics.RunsStarted.Load(),
		"runs_completed":       metrics.RunsCompleted.Load(),
		"youtube_api_requests": metrics.YouTubeAPIRequests.Load(),
		"quota_units":          metrics.QuotaUnits.Load(),
		"transcript_requests":  metrics.TranscriptRequests.Load(),
		"transcript_misses":    metrics.TranscriptMisses.Load(),
		"llm_calls":            metrics.LLMCalls.Load(),
		"llm_errors":           metrics.LLMErrors.Load(),
		"tts_calls":            metrics.TTSCalls.Load(),
		"tts_errors":           metrics.TTSErrors.Load(),
		"emails_sent":          metrics.EmailsSent.Load(),
		"email_errors":         metrics.EmailErrors.Load(),
		"cache_hits":           hits,
		"cache_misses":         misses,
	}
}

// FormatMetrics returns metrics as a simple text format for HTTP endpoint.
func FormatMetrics() string {
	m := GetMetrics()
	var sb strings.Builder
	keys := []string{
		"runs_started", "runs_completed",
		"youtube_api_requests", "quota_units",
		"transcript_requests", "transcript_misses",
		"llm_calls", "llm_errors",
		"tts_calls", "tts_errors",
		"emails_sent", "email_errors",
		"cache_hits", "cache_misses",
	}
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

// Incrementors for sub-packages.
func IncrRunsStarted()        { metrics.RunsStarted.Add(1) }
func IncrRunsCompleted()      { metrics.RunsCompleted.Add(1) }
func IncrYouTubeAPIRequests() { metrics.YouTubeAPIRequests.Add(1) }
func AddQuotaUnits(n int64)   { metrics.QuotaUnits.Add(n) }
func IncrTranscriptRequests() { metrics.TranscriptRequests.Add(1) }
func IncrTranscriptMisses()   { metrics.TranscriptMisses.Add(1) }
func IncrLLMCalls()           { metrics.LLMCalls.Add(1) }
func IncrLLMErrors()          { metrics.LLMErrors.Add(1) }
func IncrTTSCalls()           { metrics.TTSCalls.Add(1) }
func IncrTTSErrors()          { metrics.TTSErrors.Add(1) }
func IncrEmailsSent()         { metrics.EmailsSent.Add(1) }
func IncrEmailErrors()        { metrics.EmailErrors.Add(1) }
