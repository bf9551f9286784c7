// go_digest — YouTube subscription digest pipeline.
//
// Discovers new uploads from the authenticated account's subscriptions,
// summarizes each video's transcript with an LLM, narrates the summary to
// MP3, and emails the digest. A SQLite (or Postgres) ledger makes runs
// idempotent: every video gets exactly one terminal outcome.
//
// Subcommands: run, stats, failed, channel, cleanup, clear, serve.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-mcpserver"
	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_digest/internal/digestserver"
	"github.com/anatolykoptev/go_digest/internal/engine"
	"github.com/anatolykoptev/go_digest/internal/engine/ledger"
	"github.com/anatolykoptev/go_digest/internal/engine/narrate"
	"github.com/anatolykoptev/go_digest/internal/engine/notify"
	"github.com/anatolykoptev/go_digest/internal/engine/sources"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env")
	}

	args := os.Args[1:]
	cmd := "run"
	if len(args) > 0 {
		cmd = args[0]
		args = args[1:]
	}

	switch cmd {
	case "run":
		return cmdRun(args)
	case "stats":
		return cmdStats(args)
	case "failed":
		return cmdFailed(args)
	case "channel":
		return cmdChannel(args)
	case "cleanup":
		return cmdCleanup(args)
	case "clear":
		return cmdClear(args)
	case "serve":
		return cmdServe(args)
	case "-h", "--help", "help":
		usage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		return 1
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: go_digest <command> [flags]

Commands:
  run       run the digest pipeline once (default)
  stats     show ledger statistics
  failed    list recently failed videos
  channel   list processed videos for a channel
  cleanup   delete ledger records past the retention window
  clear     delete ALL ledger records (requires --force)
  serve     run the MCP server

Run 'go_digest <command> -h' for command flags.
`)
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

// loadConfig builds the runtime configuration from the environment.
func loadConfig() *engine.Config {
	return &engine.Config{
		YouTubeAPIKey:     env.Str("YOUTUBE_API_KEY", ""),
		OAuthClientID:     env.Str("OAUTH_CLIENT_ID", ""),
		OAuthClientSecret: env.Str("OAUTH_CLIENT_SECRET", ""),
		OAuthTokenFile:    env.Str("OAUTH_TOKEN_FILE", "data/youtube_token.json"),
		YouTubeRatePerSec: env.Float("YOUTUBE_RATE_PER_SEC", 5),
		TranscriptLangs:   env.List("TRANSCRIPT_LANGUAGES", "en"),

		OpenAIAPIKey:   env.Str("OPENAI_API_KEY", ""),
		OpenAIAPIBase:  env.Str("OPENAI_API_BASE", "https://api.openai.com/v1"),
		LLMModel:       env.Str("LLM_MODEL", "gpt-4-turbo-preview"),
		LLMMaxTokens:   env.Int("LLM_MAX_TOKENS", 500),
		LLMTemperature: env.Float("LLM_TEMPERATURE", 0.7),
		TTSModel:       env.Str("TTS_MODEL", "tts-1"),
		TTSVoice:       env.Str("TTS_VOICE", "alloy"),
		AudioDir:       env.Str("AUDIO_DIR", "data/audio"),

		SMTPServer:     env.Str("SMTP_SERVER", ""),
		SMTPPort:       env.Int("SMTP_PORT", 587),
		SMTPUsername:   env.Str("SMTP_USERNAME", ""),
		SMTPPassword:   env.Str("SMTP_PASSWORD", ""),
		EmailRecipient: env.Str("EMAIL_RECIPIENT", ""),

		DatabasePath: env.Str("DATABASE_PATH", "data/processed_videos.db"),
		DatabaseURL:  env.Str("DATABASE_URL", ""),
		RedisURL:     env.Str("REDIS_URL", ""),
		CacheTTL:     env.Duration("CACHE_TTL", 24*time.Hour),

		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// openLedger picks Postgres when DATABASE_URL is set, SQLite otherwise.
func openLedger(ctx context.Context, cfg *engine.Config) (ledger.Store, error) {
	if cfg.DatabaseURL != "" {
		return ledger.ConnectPostgres(ctx, cfg.DatabaseURL)
	}
	return ledger.OpenSQLite(cfg.DatabasePath)
}

// buildRunner wires the pipeline's collaborators from config.
func buildRunner(cfg *engine.Config, store ledger.Store) (*engine.Runner, error) {
	source, err := sources.NewYouTube(cfg)
	if err != nil {
		return nil, err
	}
	cache := engine.NewTranscriptCache(cfg.RedisURL, cfg.CacheTTL, 1000)
	notifier, err := notify.NewEmail(cfg)
	if err != nil {
		return nil, err
	}
	return &engine.Runner{
		Source:      source,
		Transcripts: sources.NewTranscripts(cfg, cache),
		Narrator:    narrate.New(cfg),
		Notifier:    notifier,
		Ledger:      store,
	}, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		slog.Error("marshal output", slog.Any("error", err))
		return
	}
	fmt.Println(string(out))
}

func cmdRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "process videos but do not send emails")
	hours := fs.Int("hours", 24, "check for videos from last N hours")
	minMinutes := fs.Int("min-minutes", 1, "skip videos shorter than this many minutes")
	maxMinutes := fs.Int("limit", 30, "skip videos longer than this many minutes")
	timeout := fs.Duration("timeout", 0, "wall-clock budget for the whole run (0 = none)")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	fs.Parse(args)
	setupLogging(*verbose)

	cfg := loadConfig()
	if err := cfg.Validate(); err != nil {
		slog.Error("configuration error", slog.Any("error", err))
		return 1
	}

	ctx, cancel := signalContext()
	defer cancel()

	store, err := openLedger(ctx, cfg)
	if err != nil {
		slog.Error("open ledger", slog.Any("error", err))
		return 1
	}
	defer store.Close()

	runner, err := buildRunner(cfg, store)
	if err != nil {
		slog.Error("build pipeline", slog.Any("error", err))
		return 1
	}

	stats, err := runner.Run(ctx, engine.RunOptions{
		Hours:      *hours,
		MinMinutes: *minMinutes,
		MaxMinutes: *maxMinutes,
		DryRun:     *dryRun,
		Timeout:    *timeout,
	})
	if err != nil {
		slog.Error("pipeline failed", slog.Any("error", err))
		return 1
	}
	printJSON(stats)
	return 0
}

func cmdStats(args []string) int {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	verbose := fs.Bool("verbose", false, "enable debug logging")
	fs.Parse(args)
	setupLogging(*verbose)

	return withLedger(func(ctx context.Context, store ledger.Store) error {
		stats, err := store.Stats(ctx)
		if err != nil {
			return err
		}
		printJSON(stats)
		return nil
	})
}

func cmdFailed(args []string) int {
	fs := flag.NewFlagSet("failed", flag.ExitOnError)
	limit := fs.Int("limit", 10, "maximum records to show")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	fs.Parse(args)
	setupLogging(*verbose)

	return withLedger(func(ctx context.Context, store ledger.Store) error {
		records, err := store.Failed(ctx, *limit)
		if err != nil {
			return err
		}
		printJSON(records)
		return nil
	})
}

func cmdChannel(args []string) int {
	fs := flag.NewFlagSet("channel", flag.ExitOnError)
	channelID := fs.String("id", "", "channel ID (required)")
	limit := fs.Int("limit", 50, "maximum records to show")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	fs.Parse(args)
	setupLogging(*verbose)

	if *channelID == "" {
		fmt.Fprintln(os.Stderr, "channel: --id is required")
		return 1
	}
	return withLedger(func(ctx context.Context, store ledger.Store) error {
		records, err := store.ByChannel(ctx, *channelID, *limit)
		if err != nil {
			return err
		}
		printJSON(records)
		return nil
	})
}

func cmdCleanup(args []string) int {
	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
	days := fs.Int("days", 90, "delete records older than this many days")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	fs.Parse(args)
	setupLogging(*verbose)

	return withLedger(func(ctx context.Context, store ledger.Store) error {
		deleted, err := store.Cleanup(ctx, *days)
		if err != nil {
			return err
		}
		fmt.Printf("deleted %d record(s) older than %d days\n", deleted, *days)
		return nil
	})
}

func cmdClear(args []string) int {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	force := fs.Bool("force", false, "confirm deleting ALL ledger records")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	fs.Parse(args)
	setupLogging(*verbose)

	if !*force {
		fmt.Fprintln(os.Stderr, "clear: refusing to delete all records without --force")
		return 1
	}
	return withLedger(func(ctx context.Context, store ledger.Store) error {
		if err := store.ClearAll(ctx); err != nil {
			return err
		}
		fmt.Println("ledger cleared")
		return nil
	})
}

// withLedger opens the store, runs fn, and maps errors to exit codes.
func withLedger(fn func(context.Context, ledger.Store) error) int {
	ctx, cancel := signalContext()
	defer cancel()

	store, err := openLedger(ctx, loadConfig())
	if err != nil {
		slog.Error("open ledger", slog.Any("error", err))
		return 1
	}
	defer store.Close()

	if err := fn(ctx, store); err != nil {
		slog.Error("command failed", slog.Any("error", err))
		return 1
	}
	return 0
}

func cmdServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	port := fs.String("port", env.Str("MCP_PORT", "8892"), "MCP server port")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	fs.Parse(args)
	setupLogging(*verbose)

	cfg := loadConfig()
	if err := cfg.Validate(); err != nil {
		slog.Error("configuration error", slog.Any("error", err))
		return 1
	}

	ctx, cancel := signalContext()
	defer cancel()

	store, err := openLedger(ctx, cfg)
	if err != nil {
		slog.Error("open ledger", slog.Any("error", err))
		return 1
	}
	defer store.Close()

	runner, err := buildRunner(cfg, store)
	if err != nil {
		slog.Error("build pipeline", slog.Any("error", err))
		return 1
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "go_digest",
		Version: version,
	}, nil)
	digestserver.RegisterTools(server, digestserver.Deps{Runner: runner, Ledger: store})
	slog.Info("starting go_digest MCP server", slog.String("port", *port))

	if err := mcpserver.Run(server, mcpserver.Config{
		Name:         "go_digest",
		Version:      version,
		Port:         *port,
		WriteTimeout: 1800 * time.Second,
		Metrics:      engine.FormatMetrics,
	}); err != nil {
		slog.Error("server failed", slog.Any("error", err))
		return 1
	}
	return 0
}
