package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/anatolykoptev/go_digest/internal/engine"
)

func TestParseISODuration(t *testing.T) {
	tests := []struct {
		in     string
		want   int
		wantOK bool
	}{
		{"PT1H23M45S", 5025, true},
		{"PT30M", 1800, true},
		{"PT45S", 45, true},
		{"PT2H", 7200, true},
		{"PT1M1S", 61, true},
		{"PT", 0, true}, // live streams report an empty duration
		{"P1DT2H", 0, false},
		{"garbage", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseISODuration(tt.in)
		if ok != tt.wantOK {
			t.Errorf("parseISODuration(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			continue
		}
		if got != tt.want {
			t.Errorf("parseISODuration(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple object", `{"a":1};rest`, `{"a":1}`},
		{"nested", `{"a":{"b":2}}tail`, `{"a":{"b":2}}`},
		{"braces in string", `{"a":"{not a brace}"}x`, `{"a":"{not a brace}"}`},
		{"escaped quote", `{"a":"say \"hi\""}x`, `{"a":"say \"hi\""}`},
		{"not an object", `[1,2,3]`, ""},
		{"unterminated", `{"a":1`, ""},
		{"empty", ``, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractJSON([]byte(tt.in))
			if string(got) != tt.want {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func testClient(srv *httptest.Server) *YouTube {
	return &YouTube{
		apiKey:     "test-key",
		baseURL:    srv.URL,
		httpClient: srv.Client(),
		limiter:    rate.NewLimiter(rate.Inf, 1),
	}
}

func TestDurationSeconds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/videos" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		switch r.URL.Query().Get("id") {
		case "known":
			fmt.Fprint(w, `{"items":[{"contentDetails":{"duration":"PT12M34S"}}]}`)
		case "missing":
			fmt.Fprint(w, `{"items":[]}`)
		case "unparseable":
			fmt.Fprint(w, `{"items":[{"contentDetails":{"duration":"P1DT1H"}}]}`)
		}
	}))
	defer srv.Close()
	yt := testClient(srv)
	ctx := context.Background()

	secs, known, err := yt.DurationSeconds(ctx, "known")
	if err != nil || !known || secs != 754 {
		t.Errorf("known: got (%d, %v, %v), want (754, true, nil)", secs, known, err)
	}

	secs, known, err = yt.DurationSeconds(ctx, "missing")
	if err != nil || known || secs != 0 {
		t.Errorf("missing: got (%d, %v, %v), want (0, false, nil)", secs, known, err)
	}

	_, known, err = yt.DurationSeconds(ctx, "unparseable")
	if err != nil || known {
		t.Errorf("unparseable: got (known=%v, err=%v), want unknown with nil error", known, err)
	}
}

func TestDurationSecondsLookupError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()
	yt := testClient(srv)

	_, _, err := yt.DurationSeconds(context.Background(), "v")
	if err == nil {
		t.Fatal("expected an error for a failing lookup")
	}
	var srcErr *engine.SourceError
	if !errors.As(err, &srcErr) || srcErr.Op != "duration" {
		t.Errorf("expected SourceError{Op: duration}, got %v", err)
	}
}

func TestRecentVideosEarlyCutoff(t *testing.T) {
	old := time.Now().UTC().Add(-72 * time.Hour).Format(time.RFC3339)

	playlistCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/channels":
			fmt.Fprint(w, `{"items":[{"contentDetails":{"relatedPlaylists":{"uploads":"UU-uploads"}}}]}`)
		case "/playlistItems":
			playlistCalls++
			// Every item on this page is older than the window, but a next
			// page token is offered. Pagination must stop anyway.
			fmt.Fprintf(w, `{"nextPageToken":"page2","items":[
				{"snippet":{"title":"Old","publishedAt":"%s"},"contentDetails":{"videoId":"old1"}}
			]}`, old)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()
	yt := testClient(srv)

	videos, err := yt.RecentVideos(context.Background(), engine.Channel{ID: "UC-x", Name: "X"}, 24)
	if err != nil {
		t.Fatalf("RecentVideos error: %v", err)
	}
	if len(videos) != 0 {
		t.Errorf("expected no videos inside the window, got %d", len(videos))
	}
	if playlistCalls != 1 {
		t.Errorf("expected pagination to stop after the all-older page, got %d calls", playlistCalls)
	}
}

func TestRecentVideosFiltersWindow(t *testing.T) {
	now := time.Now().UTC()
	recent := now.Add(-2 * time.Hour).Format(time.RFC3339)
	old := now.Add(-48 * time.Hour).Format(time.RFC3339)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/channels":
			fmt.Fprint(w, `{"items":[{"contentDetails":{"relatedPlaylists":{"uploads":"UU-uploads"}}}]}`)
		case "/playlistItems":
			fmt.Fprintf(w, `{"items":[
				{"snippet":{"title":"Fresh","channelTitle":"X","publishedAt":"%s","thumbnails":{"default":{"url":"https://img/x.jpg"}}},"contentDetails":{"videoId":"fresh1"}},
				{"snippet":{"title":"Stale","publishedAt":"%s"},"contentDetails":{"videoId":"stale1"}}
			]}`, recent, old)
		}
	}))
	defer srv.Close()
	yt := testClient(srv)

	videos, err := yt.RecentVideos(context.Background(), engine.Channel{ID: "UC-x", Name: "X"}, 24)
	if err != nil {
		t.Fatalf("RecentVideos error: %v", err)
	}
	if len(videos) != 1 || videos[0].VideoID != "fresh1" {
		t.Fatalf("expected only the fresh video, got %+v", videos)
	}
	if videos[0].ChannelID != "UC-x" || videos[0].ChannelName != "X" {
		t.Errorf("channel fields not propagated: %+v", videos[0])
	}
	if videos[0].ThumbnailURL != "https://img/x.jpg" {
		t.Errorf("thumbnail not parsed: %+v", videos[0])
	}
}

func TestSubscriptionsRequiresOAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()
	yt := testClient(srv) // no token source configured

	_, err := yt.Subscriptions(context.Background())
	if err == nil {
		t.Fatal("expected an error without OAuth configuration")
	}
	var srcErr *engine.SourceError
	if !errors.As(err, &srcErr) || srcErr.Op != "subscriptions" {
		t.Errorf("expected SourceError{Op: subscriptions}, got %v", err)
	}
}
