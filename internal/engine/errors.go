package engine

import "fmt"

// Error kinds for pipeline failure classification. The runner only needs the
// message for the ledger, but callers and logs can branch with errors.As.

// SourceError wraps a video-source transport or auth failure.
// Fatal to the run at the subscription level; isolated at the channel level.
type SourceError struct {
	Op  string // "subscriptions", "recent_videos", "duration"
	Err error
}

func (e *SourceError) Error() string { return "video source " + e.Op + ": " + e.Err.Error() }
func (e *SourceError) Unwrap() error { return e.Err }

// GenerationError wraps a summarization or TTS failure. Recorded as a failed
// outcome for the video, never fatal to the run.
type GenerationError struct {
	Stage string // "summarize" or "tts"
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("narration %s: %v", e.Stage, e.Err)
}
func (e *GenerationError) Unwrap() error { return e.Err }

// DeliveryError wraps an email delivery failure after the notifier exhausted
// its own retry policy. Recorded as a failed outcome, never fatal to the run.
type DeliveryError struct {
	Err error
}

func (e *DeliveryError) Error() string { return "email delivery: " + e.Err.Error() }
func (e *DeliveryError) Unwrap() error { return e.Err }
