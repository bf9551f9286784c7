package sources

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anatolykoptev/go_digest/internal/engine"
)

// Caption fetching.
// Primary:  scrape watch page ytInitialPlayerResponse → caption track XML
// Fallback: ANDROID Innertube /player → captionTracks
//
// Neither path spends Data API quota.

// ytInitialPlayerResponseMarker marks the start of the player response JSON in watch page HTML.
const ytInitialPlayerResponseMarker = "ytInitialPlayerResponse = "

// Transcripts fetches caption text for videos, with a 2-tier cache in front
// of the network paths.
type Transcripts struct {
	httpClient *http.Client
	cache      *engine.TranscriptCache
	langs      []string
}

// NewTranscripts builds the caption provider. cache may be nil.
func NewTranscripts(cfg *engine.Config, cache *engine.TranscriptCache) *Transcripts {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	langs := cfg.TranscriptLangs
	if len(langs) == 0 {
		langs = []string{"en"}
	}
	return &Transcripts{httpClient: client, cache: cache, langs: langs}
}

// Fetch returns the cleaned caption text for videoID, or an error when no
// usable track could be retrieved. Results are cached per video + language
// preference.
func (t *Transcripts) Fetch(ctx context.Context, videoID string) (string, error) {
	engine.IncrTranscriptRequests()

	key := engine.CacheKey(append([]string{"transcript", videoID}, t.langs...)...)
	if text, ok := t.cache.Get(ctx, key); ok {
		return text, nil
	}

	text, err := t.fetchViaPageScrape(ctx, videoID)
	if err != nil {
		slog.Warn("transcript: page scrape failed, trying player",
			slog.String("video_id", videoID), slog.Any("error", err))
		text, err = t.fetchViaPlayer(ctx, videoID)
	}
	if err != nil {
		engine.IncrTranscriptMisses()
		return "", err
	}

	text = engine.CleanCaptionText(text)
	if text == "" {
		engine.IncrTranscriptMisses()
		return "", errors.New("transcript empty after cleaning")
	}

	t.cache.Put(ctx, key, text)
	return text, nil
}

// fetchViaPageScrape scrapes the watch page HTML and extracts the caption
// track URL from ytInitialPlayerResponse. Works from any IP.
func (t *Transcripts) fetchViaPageScrape(ctx context.Context, videoID string) (string, error) {
	watchURL := "https://www.youtube.com/watch?v=" + videoID

	resp, err := engine.RetryHTTP(ctx, engine.DefaultRetryConfig, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, watchURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", engine.UserAgentChrome)
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		return t.httpClient.Do(req)
	})
	if err != nil {
		return "", fmt.Errorf("watch page: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 6*1024*1024))
	if err != nil {
		return "", fmt.Errorf("read watch page: %w", err)
	}

	idx := strings.Index(string(body), ytInitialPlayerResponseMarker)
	if idx < 0 {
		return "", errors.New("ytInitialPlayerResponse not found in watch page")
	}
	jsonData := extractJSON(body[idx+len(ytInitialPlayerResponseMarker):])
	if jsonData == nil {
		return "", errors.New("failed to extract ytInitialPlayerResponse JSON")
	}

	var playerResp innertubePlayerResp
	if err := json.Unmarshal(jsonData, &playerResp); err != nil {
		return "", fmt.Errorf("decode ytInitialPlayerResponse: %w", err)
	}
	return t.textFromPlayerResp(ctx, &playerResp)
}

// fetchViaPlayer uses the ANDROID Innertube /player endpoint. Works from
// non-blocked (residential/cloud) IP addresses.
func (t *Transcripts) fetchViaPlayer(ctx context.Context, videoID string) (string, error) {
	playerResp, err := postInnertubePlayer(ctx, t.httpClient, videoID)
	if err != nil {
		return "", err
	}
	return t.textFromPlayerResp(ctx, playerResp)
}

// textFromPlayerResp picks the best caption track from a player response and
// downloads its timedtext.
func (t *Transcripts) textFromPlayerResp(ctx context.Context, playerResp *innertubePlayerResp) (string, error) {
	if playerResp.Captions == nil {
		reason := ""
		if playerResp.PlayabilityStatus != nil {
			reason = playerResp.PlayabilityStatus.Reason
		}
		if reason != "" {
			return "", fmt.Errorf("captions unavailable: %s", reason)
		}
		return "", errors.New("no captions in player response")
	}
	tracks := playerResp.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks
	if len(tracks) == 0 {
		return "", errors.New("no caption tracks")
	}
	track, ok := pickBestTrack(tracks, t.langs)
	if !ok {
		return "", errors.New("all caption tracks require PoToken")
	}
	return t.fetchTimedText(ctx, track.BaseURL)
}

// needsPoToken reports whether a caption track URL requires a PoToken (browser-only).
// Tracks with &exp=xpe cannot be fetched server-side.
func needsPoToken(baseURL string) bool {
	return strings.Contains(baseURL, "&exp=xpe")
}

// pickBestTrack selects the best usable caption track for the given language preferences.
// Skips tracks that require PoToken — those only work in a browser.
func pickBestTrack(tracks []captionTrack, langs []string) (captionTrack, bool) {
	usable := make([]captionTrack, 0, len(tracks))
	for _, t := range tracks {
		if !needsPoToken(t.BaseURL) {
			usable = append(usable, t)
		}
	}
	if len(usable) == 0 {
		return tracks[0], false
	}
	// 1. Manual track in preferred language
	for _, lang := range langs {
		for _, t := range usable {
			if t.LanguageCode == lang && t.Kind != "asr" {
				return t, true
			}
		}
	}
	// 2. Auto-generated track in preferred language
	for _, lang := range langs {
		for _, t := range usable {
			if t.LanguageCode == lang {
				return t, true
			}
		}
	}
	// 3. Any English track
	for _, t := range usable {
		if strings.HasPrefix(t.LanguageCode, "en") {
			return t, true
		}
	}
	return usable[0], true
}

// fetchTimedText fetches and parses a timedtext XML caption URL into plain text.
func (t *Transcripts) fetchTimedText(ctx context.Context, baseURL string) (string, error) {
	resp, err := engine.RetryHTTP(ctx, engine.DefaultRetryConfig, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", engine.UserAgentBot)
		return t.httpClient.Do(req)
	})
	if err != nil {
		return "", fmt.Errorf("fetch timedtext: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return "", err
	}

	var tt ytTimedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return "", fmt.Errorf("parse timedtext XML: %w", err)
	}

	var sb strings.Builder
	for _, line := range tt.Lines {
		text := engine.CleanHTML(line.Text)
		if text != "" {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(text)
		}
	}
	return sb.String(), nil
}
