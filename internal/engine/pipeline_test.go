package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/anatolykoptev/go_digest/internal/engine/ledger"
)

// --- fakes ---

type fakeSource struct {
	channels    []Channel
	subsErr     error
	videos      map[string][]CandidateVideo // channelID → videos
	channelErrs map[string]error            // channelID → error
	durations   map[string]int              // videoID → seconds
	unknown     map[string]bool             // videoID → duration unknown
	durErrs     map[string]error            // videoID → lookup error
}

func (f *fakeSource) Subscriptions(context.Context) ([]Channel, error) {
	if f.subsErr != nil {
		return nil, f.subsErr
	}
	return f.channels, nil
}

func (f *fakeSource) RecentVideos(_ context.Context, ch Channel, _ int) ([]CandidateVideo, error) {
	if err := f.channelErrs[ch.ID]; err != nil {
		return nil, err
	}
	return f.videos[ch.ID], nil
}

func (f *fakeSource) DurationSeconds(_ context.Context, videoID string) (int, bool, error) {
	if err := f.durErrs[videoID]; err != nil {
		return 0, false, err
	}
	if f.unknown[videoID] {
		return 0, false, nil
	}
	if secs, ok := f.durations[videoID]; ok {
		return secs, true, nil
	}
	return 600, true, nil // 10 minutes by default
}

type fakeTranscripts struct {
	texts map[string]string
	errs  map[string]error
}

func (f *fakeTranscripts) Fetch(_ context.Context, videoID string) (string, error) {
	if err := f.errs[videoID]; err != nil {
		return "", err
	}
	if text, ok := f.texts[videoID]; ok {
		return text, nil
	}
	return "default transcript text", nil
}

type fakeNarrator struct {
	failFor map[string]error
}

func (f *fakeNarrator) Narrate(_ context.Context, req NarrationRequest) (*Narration, error) {
	if err := f.failFor[req.VideoID]; err != nil {
		return nil, err
	}
	return &Narration{Summary: "summary of " + req.Title, AudioPath: "data/audio/" + req.VideoID + "_summary.mp3"}, nil
}

type fakeNotifier struct {
	sent    []string
	sendErr error
}

func (f *fakeNotifier) SendDigest(_ context.Context, video CandidateVideo, _ *Narration) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, video.VideoID)
	return nil
}

type recordedOutcome struct {
	status ledger.Status
	msg    string
}

type fakeLedger struct {
	records map[string]recordedOutcome
	writes  int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{records: map[string]recordedOutcome{}}
}

func (f *fakeLedger) IsProcessed(_ context.Context, videoID string) (bool, error) {
	_, ok := f.records[videoID]
	return ok, nil
}

func (f *fakeLedger) RecordOutcome(_ context.Context, video ledger.Video, status ledger.Status, msg string) error {
	f.records[video.VideoID] = recordedOutcome{status: status, msg: msg}
	f.writes++
	return nil
}

func (f *fakeLedger) Stats(context.Context) (*ledger.Stats, error) {
	return &ledger.Stats{StatusBreakdown: map[ledger.Status]int{}}, nil
}

func (f *fakeLedger) Failed(context.Context, int) ([]ledger.VideoRecord, error) { return nil, nil }
func (f *fakeLedger) ByChannel(context.Context, string, int) ([]ledger.VideoRecord, error) {
	return nil, nil
}
func (f *fakeLedger) Cleanup(context.Context, int) (int64, error) { return 0, nil }
func (f *fakeLedger) ClearAll(context.Context) error              { return nil }
func (f *fakeLedger) Close() error                                { return nil }

func video(id, channelID string) CandidateVideo {
	return CandidateVideo{VideoID: id, Title: "Video " + id, ChannelID: channelID, ChannelName: "Channel " + channelID}
}

func newRunner(src *fakeSource, tr *fakeTranscripts, nar *fakeNarrator, not *fakeNotifier, led *fakeLedger) *Runner {
	return &Runner{Source: src, Transcripts: tr, Narrator: nar, Notifier: not, Ledger: led}
}

// --- tests ---

func TestRun_MixedOutcomes(t *testing.T) {
	src := &fakeSource{
		channels: []Channel{{ID: "ch1", Name: "Chan One"}},
		videos: map[string][]CandidateVideo{
			"ch1": {video("ok", "ch1"), video("no-transcript", "ch1"), video("bad-narration", "ch1")},
		},
	}
	tr := &fakeTranscripts{errs: map[string]error{"no-transcript": errors.New("no caption tracks")}}
	nar := &fakeNarrator{failFor: map[string]error{"bad-narration": &GenerationError{Stage: "summarize", Err: errors.New("llm down")}}}
	not := &fakeNotifier{}
	led := newFakeLedger()

	stats, err := newRunner(src, tr, nar, not, led).Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	want := RunStats{TotalDiscovered: 3, NewVideos: 3, Processed: 1, Failed: 1, Skipped: 1}
	if *stats != want {
		t.Errorf("stats = %+v, want %+v", *stats, want)
	}

	if got := led.records["ok"]; got.status != ledger.StatusCompleted || got.msg != "" {
		t.Errorf("ok: recorded %+v, want completed with no message", got)
	}
	if got := led.records["no-transcript"]; got.status != ledger.StatusSkipped || got.msg != "No transcript available" {
		t.Errorf("no-transcript: recorded %+v", got)
	}
	if got := led.records["bad-narration"]; got.status != ledger.StatusFailed {
		t.Errorf("bad-narration: recorded %+v, want failed", got)
	}

	if len(not.sent) != 1 || not.sent[0] != "ok" {
		t.Errorf("notifier sent %v, want [ok]", not.sent)
	}
	if led.writes != 3 {
		t.Errorf("expected exactly one ledger write per video, got %d", led.writes)
	}
}

func TestRun_AlreadyProcessedExcluded(t *testing.T) {
	src := &fakeSource{
		channels: []Channel{{ID: "ch1", Name: "Chan One"}},
		videos:   map[string][]CandidateVideo{"ch1": {video("seen", "ch1"), video("fresh", "ch1")}},
	}
	led := newFakeLedger()
	// Prior failed outcome still excludes the video: no automatic retry.
	led.records["seen"] = recordedOutcome{status: ledger.StatusFailed, msg: "old failure"}
	not := &fakeNotifier{}

	stats, err := newRunner(src, &fakeTranscripts{}, &fakeNarrator{}, not, led).Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if stats.TotalDiscovered != 2 || stats.NewVideos != 1 || stats.Processed != 1 {
		t.Errorf("stats = %+v", *stats)
	}
	if got := led.records["seen"]; got.msg != "old failure" {
		t.Errorf("pre-existing record was overwritten: %+v", got)
	}
	if len(not.sent) != 1 || not.sent[0] != "fresh" {
		t.Errorf("notifier sent %v, want [fresh]", not.sent)
	}
}

func TestRun_DurationGates(t *testing.T) {
	src := &fakeSource{
		channels: []Channel{{ID: "ch1", Name: "Chan One"}},
		videos: map[string][]CandidateVideo{
			"ch1": {video("short", "ch1"), video("long", "ch1"), video("mystery", "ch1")},
		},
		durations: map[string]int{"short": 45, "long": 2400},
		unknown:   map[string]bool{"mystery": true},
	}
	not := &fakeNotifier{}
	led := newFakeLedger()

	stats, err := newRunner(src, &fakeTranscripts{}, &fakeNarrator{}, not, led).Run(context.Background(), RunOptions{MinMinutes: 1, MaxMinutes: 30})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if stats.Skipped != 2 || stats.SkippedTooLong != 1 || stats.Processed != 0 {
		t.Errorf("stats = %+v", *stats)
	}
	if got := led.records["short"]; got.status != ledger.StatusSkipped || got.msg != "Video too short (0.8 minutes)" {
		t.Errorf("short: recorded %+v", got)
	}
	if got := led.records["long"]; got.status != ledger.StatusSkipped || got.msg != "Video too long (40.0 minutes)" {
		t.Errorf("long: recorded %+v", got)
	}
	if got := led.records["mystery"]; got.status != ledger.StatusSkipped || got.msg != "Could not fetch video duration" {
		t.Errorf("mystery: recorded %+v", got)
	}
	if len(not.sent) != 0 {
		t.Errorf("nothing should have been sent, got %v", not.sent)
	}
}

func TestRun_DurationLookupFailure(t *testing.T) {
	src := &fakeSource{
		channels: []Channel{{ID: "ch1", Name: "Chan One"}},
		videos:   map[string][]CandidateVideo{"ch1": {video("v1", "ch1")}},
		durErrs:  map[string]error{"v1": &SourceError{Op: "duration", Err: errors.New("HTTP 500")}},
	}
	led := newFakeLedger()

	stats, err := newRunner(src, &fakeTranscripts{}, &fakeNarrator{}, &fakeNotifier{}, led).Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if stats.Failed != 1 || stats.Skipped != 0 {
		t.Errorf("stats = %+v, want failed=1", *stats)
	}
	if got := led.records["v1"]; got.status != ledger.StatusFailed || got.msg == "" {
		t.Errorf("v1: recorded %+v, want failed with message", got)
	}
}

func TestRun_DryRunSkipsDelivery(t *testing.T) {
	src := &fakeSource{
		channels: []Channel{{ID: "ch1", Name: "Chan One"}},
		videos:   map[string][]CandidateVideo{"ch1": {video("v1", "ch1")}},
	}
	not := &fakeNotifier{}
	led := newFakeLedger()

	stats, err := newRunner(src, &fakeTranscripts{}, &fakeNarrator{}, not, led).Run(context.Background(), RunOptions{DryRun: true})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if stats.Processed != 1 {
		t.Errorf("stats = %+v", *stats)
	}
	if len(not.sent) != 0 {
		t.Errorf("dry run must not deliver, sent %v", not.sent)
	}
	// Still recorded completed so a later real run does not resend.
	if got := led.records["v1"]; got.status != ledger.StatusCompleted {
		t.Errorf("v1: recorded %+v, want completed", got)
	}
}

func TestRun_DeliveryFailure(t *testing.T) {
	src := &fakeSource{
		channels: []Channel{{ID: "ch1", Name: "Chan One"}},
		videos:   map[string][]CandidateVideo{"ch1": {video("v1", "ch1")}},
	}
	not := &fakeNotifier{sendErr: &DeliveryError{Err: errors.New("smtp refused")}}
	led := newFakeLedger()

	stats, err := newRunner(src, &fakeTranscripts{}, &fakeNarrator{}, not, led).Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if stats.Failed != 1 || stats.Processed != 0 {
		t.Errorf("stats = %+v", *stats)
	}
	if got := led.records["v1"]; got.status != ledger.StatusFailed {
		t.Errorf("v1: recorded %+v, want failed", got)
	}
}

func TestRun_ChannelFailureIsolated(t *testing.T) {
	src := &fakeSource{
		channels: []Channel{{ID: "bad", Name: "Broken"}, {ID: "good", Name: "Fine"}},
		videos:   map[string][]CandidateVideo{"good": {video("v1", "good")}},
		channelErrs: map[string]error{
			"bad": &SourceError{Op: "recent_videos", Err: errors.New("HTTP 500")},
		},
	}
	led := newFakeLedger()

	stats, err := newRunner(src, &fakeTranscripts{}, &fakeNarrator{}, &fakeNotifier{}, led).Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("one channel failing must not fail the run: %v", err)
	}
	if stats.TotalDiscovered != 1 || stats.Processed != 1 {
		t.Errorf("stats = %+v", *stats)
	}
}

func TestRun_SubscriptionsFailureFatal(t *testing.T) {
	src := &fakeSource{subsErr: &SourceError{Op: "subscriptions", Err: errors.New("401 unauthorized")}}
	led := newFakeLedger()

	_, err := newRunner(src, &fakeTranscripts{}, &fakeNarrator{}, &fakeNotifier{}, led).Run(context.Background(), RunOptions{})
	if err == nil {
		t.Fatal("expected a fatal error when subscriptions cannot be fetched")
	}
	if led.writes != 0 {
		t.Errorf("no outcomes should be recorded, got %d writes", led.writes)
	}
}

func TestRun_EmptyTranscriptSkips(t *testing.T) {
	src := &fakeSource{
		channels: []Channel{{ID: "ch1", Name: "Chan One"}},
		videos:   map[string][]CandidateVideo{"ch1": {video("v1", "ch1")}},
	}
	tr := &fakeTranscripts{texts: map[string]string{"v1": ""}}
	led := newFakeLedger()

	stats, err := newRunner(src, tr, &fakeNarrator{}, &fakeNotifier{}, led).Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if stats.Skipped != 1 {
		t.Errorf("stats = %+v", *stats)
	}
	if got := led.records["v1"]; got.msg != "No transcript available" {
		t.Errorf("v1: recorded %+v", got)
	}
}
