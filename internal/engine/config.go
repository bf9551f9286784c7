package engine

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// Config holds all shared configuration, built in main and injected into
// collaborator constructors.
type Config struct {
	// YouTube Data API
	YouTubeAPIKey      string
	OAuthClientID      string
	OAuthClientSecret  string
	OAuthTokenFile     string
	YouTubeRatePerSec  float64 // Data API request rate limit
	TranscriptLangs    []string

	// OpenAI (summaries + TTS)
	OpenAIAPIKey   string
	OpenAIAPIBase  string
	LLMModel       string
	LLMMaxTokens   int
	LLMTemperature float64
	TTSModel       string
	TTSVoice       string
	AudioDir       string

	// Email
	SMTPServer     string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	EmailRecipient string

	// Storage
	DatabasePath string // SQLite ledger path
	DatabaseURL  string // optional Postgres ledger; overrides SQLite when set
	RedisURL     string // optional L2 transcript cache
	CacheTTL     time.Duration

	HTTPClient *http.Client
}

// Validate checks that the settings required to run the pipeline are present.
// Called before a run starts; a failure here means the run never begins.
func (c *Config) Validate() error {
	var missing []string
	if c.YouTubeAPIKey == "" {
		missing = append(missing, "YOUTUBE_API_KEY")
	}
	if c.OpenAIAPIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if c.SMTPServer == "" {
		missing = append(missing, "SMTP_SERVER")
	}
	if c.SMTPUsername == "" {
		missing = append(missing, "SMTP_USERNAME")
	}
	if c.SMTPPassword == "" {
		missing = append(missing, "SMTP_PASSWORD")
	}
	if c.EmailRecipient == "" {
		missing = append(missing, "EMAIL_RECIPIENT")
	}
	if len(missing) > 0 {
		return errors.New("missing required settings: " + strings.Join(missing, ", "))
	}
	return nil
}
