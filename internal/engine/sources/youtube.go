package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/anatolykoptev/go_digest/internal/engine"
)

// YouTube Data API v3 client for subscriptions, channel uploads and video
// durations.
//
// Quota notes (daily limit 10,000 units):
//   - subscriptions.list:  1 unit per page (50 subscriptions/page)
//   - channels.list:       1 unit per call
//   - playlistItems.list:  1 unit per page
//   - videos.list:         1 unit per call
//
// The uploads-playlist approach is used instead of search.list (100 units).

const (
	ytDataAPIBase   = "https://www.googleapis.com/youtube/v3"
	ytReadonlyScope = "https://www.googleapis.com/auth/youtube.readonly"
)

// googleOAuthEndpoint is Google's OAuth 2.0 endpoint, defined inline so the
// client only needs the core oauth2 package.
var googleOAuthEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

// YouTube is the Data API v3 video source. Subscriptions require OAuth; the
// rest works with the API key alone. All requests go through a shared rate
// limiter so bursts of channel fetches stay under the API's per-second limit.
type YouTube struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	limiter     *rate.Limiter
	tokenSource oauth2.TokenSource
}

// NewYouTube builds the Data API client from config. OAuth is wired only when
// client credentials and a token file are configured; without it,
// Subscriptions returns an error but channel-level calls still work.
func NewYouTube(cfg *engine.Config) (*YouTube, error) {
	if cfg.YouTubeAPIKey == "" {
		return nil, errors.New("youtube: API key is required")
	}

	perSec := cfg.YouTubeRatePerSec
	if perSec <= 0 {
		perSec = 5
	}

	yt := &YouTube{
		apiKey:     cfg.YouTubeAPIKey,
		baseURL:    ytDataAPIBase,
		httpClient: cfg.HTTPClient,
		limiter:    rate.NewLimiter(rate.Limit(perSec), 1),
	}
	if yt.httpClient == nil {
		yt.httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	if cfg.OAuthClientID != "" && cfg.OAuthClientSecret != "" && cfg.OAuthTokenFile != "" {
		ts, err := newPersistedTokenSource(cfg.OAuthClientID, cfg.OAuthClientSecret, cfg.OAuthTokenFile)
		if err != nil {
			slog.Warn("youtube: oauth token unavailable, subscriptions disabled", slog.Any("error", err))
		} else {
			yt.tokenSource = ts
		}
	}
	return yt, nil
}

// apiGet performs one rate-limited, retried GET against the Data API and
// decodes the JSON response into out. Each call counts one quota unit.
func (yt *YouTube) apiGet(ctx context.Context, path string, params url.Values, authed bool, out any) error {
	if err := yt.limiter.Wait(ctx); err != nil {
		return err
	}
	engine.IncrYouTubeAPIRequests()
	engine.AddQuotaUnits(1)

	if !authed {
		params.Set("key", yt.apiKey)
	}
	apiURL := yt.baseURL + path + "?" + params.Encode()

	var bearer string
	if authed {
		if yt.tokenSource == nil {
			return errors.New("OAuth is not configured (set OAUTH_CLIENT_ID, OAUTH_CLIENT_SECRET, OAUTH_TOKEN_FILE)")
		}
		tok, err := yt.tokenSource.Token()
		if err != nil {
			return fmt.Errorf("oauth token: %w", err)
		}
		bearer = tok.AccessToken
	}

	resp, err := engine.RetryHTTP(ctx, engine.DefaultRetryConfig, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", engine.UserAgentBot)
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		return yt.httpClient.Do(req)
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("data API %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// --- Data API response types ---

type ytSubscriptionsResp struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		Snippet struct {
			Title      string `json:"title"`
			ResourceID struct {
				ChannelID string `json:"channelId"`
			} `json:"resourceId"`
		} `json:"snippet"`
	} `json:"items"`
}

type ytChannelsResp struct {
	Items []struct {
		ContentDetails struct {
			RelatedPlaylists struct {
				Uploads string `json:"uploads"`
			} `json:"relatedPlaylists"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type ytPlaylistItemsResp struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		Snippet struct {
			Title        string `json:"title"`
			ChannelTitle string `json:"channelTitle"`
			Description  string `json:"description"`
			PublishedAt  string `json:"publishedAt"`
			Thumbnails   struct {
				Default struct {
					URL string `json:"url"`
				} `json:"default"`
			} `json:"thumbnails"`
		} `json:"snippet"`
		ContentDetails struct {
			VideoID string `json:"videoId"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type ytVideosResp struct {
	Items []struct {
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
	} `json:"items"`
}

// Subscriptions returns every channel the authenticated account subscribes
// to, paginating until the API reports no next page.
func (yt *YouTube) Subscriptions(ctx context.Context) ([]engine.Channel, error) {
	var channels []engine.Channel
	pageToken := ""
	page := 0

	for {
		params := url.Values{}
		params.Set("part", "snippet")
		params.Set("mine", "true")
		params.Set("maxResults", "50")
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var resp ytSubscriptionsResp
		if err := yt.apiGet(ctx, "/subscriptions", params, true, &resp); err != nil {
			return nil, &engine.SourceError{Op: "subscriptions", Err: err}
		}
		page++

		for _, item := range resp.Items {
			if item.Snippet.ResourceID.ChannelID == "" {
				continue
			}
			channels = append(channels, engine.Channel{
				ID:   item.Snippet.ResourceID.ChannelID,
				Name: item.Snippet.Title,
			})
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	slog.Info("youtube: subscriptions fetched", slog.Int("channels", len(channels)), slog.Int("pages", page))
	return channels, nil
}

// uploadsPlaylistID resolves a channel's uploads playlist. Empty result means
// the channel does not exist or has no uploads playlist.
func (yt *YouTube) uploadsPlaylistID(ctx context.Context, channelID string) (string, error) {
	params := url.Values{}
	params.Set("part", "contentDetails")
	params.Set("id", channelID)

	var resp ytChannelsResp
	if err := yt.apiGet(ctx, "/channels", params, false, &resp); err != nil {
		return "", err
	}
	if len(resp.Items) == 0 {
		slog.Warn("youtube: no channel found", slog.String("channel_id", channelID))
		return "", nil
	}
	return resp.Items[0].ContentDetails.RelatedPlaylists.Uploads, nil
}

// RecentVideos fetches videos from a channel's uploads playlist published in
// the last hours. Pagination stops early once a whole page is older than the
// window, since the uploads playlist is ordered newest-first.
func (yt *YouTube) RecentVideos(ctx context.Context, channel engine.Channel, hours int) ([]engine.CandidateVideo, error) {
	playlistID, err := yt.uploadsPlaylistID(ctx, channel.ID)
	if err != nil {
		return nil, &engine.SourceError{Op: "recent_videos", Err: err}
	}
	if playlistID == "" {
		return nil, nil
	}

	publishedAfter := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	var videos []engine.CandidateVideo
	pageToken := ""

	for {
		params := url.Values{}
		params.Set("part", "snippet,contentDetails")
		params.Set("playlistId", playlistID)
		params.Set("maxResults", "50")
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var resp ytPlaylistItemsResp
		if err := yt.apiGet(ctx, "/playlistItems", params, false, &resp); err != nil {
			return nil, &engine.SourceError{Op: "recent_videos", Err: err}
		}
		if len(resp.Items) == 0 {
			break
		}

		allOlder := true
		for _, item := range resp.Items {
			publishedAt, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt)
			if err != nil {
				continue
			}
			if publishedAt.Before(publishedAfter) {
				continue
			}
			allOlder = false
			name := item.Snippet.ChannelTitle
			if name == "" {
				name = channel.Name
			}
			videos = append(videos, engine.CandidateVideo{
				VideoID:      item.ContentDetails.VideoID,
				Title:        item.Snippet.Title,
				ChannelID:    channel.ID,
				ChannelName:  name,
				PublishedAt:  item.Snippet.PublishedAt,
				Description:  item.Snippet.Description,
				ThumbnailURL: item.Snippet.Thumbnails.Default.URL,
			})
		}

		pageToken = resp.NextPageToken
		if allOlder || pageToken == "" {
			break
		}
	}

	slog.Debug("youtube: recent videos",
		slog.String("channel_id", channel.ID),
		slog.Int("found", len(videos)),
		slog.Int("hours", hours),
	)
	return videos, nil
}

// DurationSeconds returns a video's duration in seconds. known=false with a
// nil error means the API had no record of the video (or no parseable
// duration); a non-nil error means the lookup itself failed.
func (yt *YouTube) DurationSeconds(ctx context.Context, videoID string) (int, bool, error) {
	params := url.Values{}
	params.Set("part", "contentDetails")
	params.Set("id", videoID)

	var resp ytVideosResp
	if err := yt.apiGet(ctx, "/videos", params, false, &resp); err != nil {
		return 0, false, &engine.SourceError{Op: "duration", Err: err}
	}
	if len(resp.Items) == 0 {
		slog.Warn("youtube: no video found", slog.String("video_id", videoID))
		return 0, false, nil
	}

	seconds, ok := parseISODuration(resp.Items[0].ContentDetails.Duration)
	if !ok {
		slog.Warn("youtube: unparseable duration",
			slog.String("video_id", videoID),
			slog.String("duration", resp.Items[0].ContentDetails.Duration),
		)
		return 0, false, nil
	}
	return seconds, true, nil
}

var isoDurationRE = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// parseISODuration parses the Data API's ISO-8601 duration form ("PT1H23M45S")
// into seconds.
func parseISODuration(s string) (int, bool) {
	m := isoDurationRE.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	atoi := func(v string) int {
		if v == "" {
			return 0
		}
		n, _ := strconv.Atoi(v)
		return n
	}
	return atoi(m[1])*3600 + atoi(m[2])*60 + atoi(m[3]), true
}

// --- OAuth token persistence ---

// persistedTokenSource wraps a refreshing token source and writes the token
// back to disk whenever the access token rotates, so refreshes survive
// restarts.
type persistedTokenSource struct {
	path string
	src  oauth2.TokenSource

	mu   sync.Mutex
	last string // last persisted access token
}

func newPersistedTokenSource(clientID, clientSecret, tokenFile string) (oauth2.TokenSource, error) {
	raw, err := os.ReadFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}

	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     googleOAuthEndpoint,
		Scopes:       []string{ytReadonlyScope},
	}
	return &persistedTokenSource{
		path: tokenFile,
		src:  conf.TokenSource(context.Background(), &tok),
		last: tok.AccessToken,
	}, nil
}

func (p *persistedTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		if err := p.save(tok); err != nil {
			slog.Warn("youtube: failed to persist refreshed token", slog.Any("error", err))
		} else {
			p.last = tok.AccessToken
			slog.Debug("youtube: refreshed token persisted", slog.String("path", p.path))
		}
	}
	return tok, nil
}

func (p *persistedTokenSource) save(tok *oauth2.Token) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(p.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return err
		}
	}
	return os.WriteFile(p.path, raw, 0600)
}
