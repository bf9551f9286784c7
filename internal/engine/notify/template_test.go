package notify

import (
	"strings"
	"testing"

	"github.com/anatolykoptev/go_digest/internal/engine"
)

func TestRenderHTMLBody(t *testing.T) {
	video := engine.CandidateVideo{
		VideoID:      "abc123xyz00",
		Title:        "Go Concurrency Patterns",
		ChannelID:    "UC-go",
		ChannelName:  "Go Channel",
		ThumbnailURL: "https://img.example/thumb.jpg",
	}

	html, err := renderHTMLBody(video, "A tour of goroutines and channels.")
	if err != nil {
		t.Fatalf("renderHTMLBody error: %v", err)
	}

	for _, want := range []string{
		"Go Concurrency Patterns",
		"Go Channel",
		"A tour of goroutines and channels.",
		"https://youtube.com/watch?v=abc123xyz00",
		"https://img.example/thumb.jpg",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestRenderHTMLBodyEscapes(t *testing.T) {
	video := engine.CandidateVideo{
		VideoID:     "abc123xyz00",
		Title:       `<script>alert("xss")</script>`,
		ChannelName: "A & B",
	}

	html, err := renderHTMLBody(video, `summary with <tags> & "quotes"`)
	if err != nil {
		t.Fatalf("renderHTMLBody error: %v", err)
	}
	if strings.Contains(html, "<script>") {
		t.Error("title was not escaped")
	}
	if !strings.Contains(html, "A &amp; B") {
		t.Error("channel name was not escaped")
	}
	if strings.Contains(html, "<tags>") {
		t.Error("summary was not escaped")
	}
}

func TestRenderHTMLBodyDefaults(t *testing.T) {
	video := engine.CandidateVideo{VideoID: "abc123xyz00", Title: "No extras"}

	html, err := renderHTMLBody(video, "s")
	if err != nil {
		t.Fatalf("renderHTMLBody error: %v", err)
	}
	if !strings.Contains(html, "Unknown Channel") {
		t.Error("missing channel name should default to Unknown Channel")
	}
	if !strings.Contains(html, "https://img.youtube.com/vi/abc123xyz00/maxresdefault.jpg") {
		t.Error("missing thumbnail should fall back to maxresdefault")
	}
}
