// Package narrate turns a video transcript into a short text restatement and
// a synthesized MP3 narration of it.
package narrate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/anatolykoptev/go-kit/llm"

	"github.com/anatolykoptev/go_digest/internal/engine"
)

const (
	systemPrompt = "You are an expert at restating video content concisely while preserving all key points."

	// Conservative chunking threshold: ~100k tokens at 4 chars/token, leaving
	// room for the prompt and response inside the model's context window.
	maxChunkChars = 400_000
)

// Narrator produces summaries via the LLM API and audio via the OpenAI
// speech endpoint.
type Narrator struct {
	llm        *llm.Client
	httpClient *http.Client

	apiBase  string
	apiKey   string
	ttsModel string
	voice    string
	audioDir string
}

// New builds a Narrator from config.
func New(cfg *engine.Config) *Narrator {
	apiBase := cfg.OpenAIAPIBase
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}
	model := cfg.LLMModel
	if model == "" {
		model = "gpt-4-turbo-preview"
	}
	maxTokens := cfg.LLMMaxTokens
	if maxTokens <= 0 {
		maxTokens = 500
	}
	temperature := cfg.LLMTemperature
	if temperature <= 0 {
		temperature = 0.7
	}
	ttsModel := cfg.TTSModel
	if ttsModel == "" {
		ttsModel = "tts-1"
	}
	voice := cfg.TTSVoice
	if voice == "" {
		voice = "alloy"
	}
	audioDir := cfg.AudioDir
	if audioDir == "" {
		audioDir = "data/audio"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}

	return &Narrator{
		llm: llm.NewClient(apiBase, cfg.OpenAIAPIKey, model,
			llm.WithMaxTokens(maxTokens),
			llm.WithTemperature(temperature),
			llm.WithHTTPClient(httpClient),
		),
		httpClient: httpClient,
		apiBase:    apiBase,
		apiKey:     cfg.OpenAIAPIKey,
		ttsModel:   ttsModel,
		voice:      voice,
		audioDir:   audioDir,
	}
}

// Narrate produces the summary and its MP3 narration for one video.
func (n *Narrator) Narrate(ctx context.Context, req engine.NarrationRequest) (*engine.Narration, error) {
	summary, err := n.Summarize(ctx, req.Transcript, req.Title, req.VideoURL)
	if err != nil {
		return nil, &engine.GenerationError{Stage: "summarize", Err: err}
	}

	audioPath, err := n.Synthesize(ctx, summary, req.VideoID)
	if err != nil {
		return nil, &engine.GenerationError{Stage: "tts", Err: err}
	}

	return &engine.Narration{Summary: summary, AudioPath: audioPath}, nil
}

// Summarize restates the transcript in 3-5 sentences. Transcripts past the
// chunking threshold are summarized per chunk and the chunk summaries are
// condensed into the final restatement.
func (n *Narrator) Summarize(ctx context.Context, transcript, title, videoURL string) (string, error) {
	chunks := chunkTranscript(transcript, maxChunkChars)
	if len(chunks) == 1 {
		return n.summarizeOnce(ctx, transcript, title, videoURL)
	}

	slog.Info("narrate: long transcript, summarizing in chunks",
		slog.Int("chunks", len(chunks)), slog.Int("chars", len(transcript)))

	summaries := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		summary, err := n.summarizeOnce(ctx, chunk, fmt.Sprintf("%s (Part %d)", title, i+1), "")
		if err != nil {
			return "", fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		summaries = append(summaries, summary)
	}

	return n.summarizeOnce(ctx, strings.Join(summaries, "\n\n"), title, videoURL)
}

func (n *Narrator) summarizeOnce(ctx context.Context, transcript, title, videoURL string) (string, error) {
	urlLine := ""
	if videoURL != "" {
		urlLine = "Video URL: " + videoURL + "\n"
	}
	prompt := fmt.Sprintf(`You are restating the content of a YouTube video transcript for an email digest.

Video Title: %s
%s
Transcript:
%s

Please restate everything discussed in this transcript in a more concise form:
1. Preserve all key points and information from the original
2. Condense redundancy, repetition, and unnecessary verbosity
3. Maintain the speaker's actual points and perspective
4. Present as a concise restatement (3-5 sentences) without adding interpretation

Restatement:`, title, urlLine, transcript)

	engine.IncrLLMCalls()
	raw, err := n.llm.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		engine.IncrLLMErrors()
		return "", err
	}

	summary := strings.TrimSpace(raw)
	if summary == "" {
		engine.IncrLLMErrors()
		return "", fmt.Errorf("empty summary for %q", title)
	}
	return summary, nil
}

type ttsRequest struct {
	Model string `json:"model"`
	Voice string `json:"voice"`
	Input string `json:"input"`
}

// Synthesize converts text to speech and writes <videoID>_summary.mp3 under
// the audio directory. Returns the written file's path.
func (n *Narrator) Synthesize(ctx context.Context, text, videoID string) (string, error) {
	if err := os.MkdirAll(n.audioDir, 0750); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", n.audioDir, err)
	}
	outputPath := filepath.Join(n.audioDir, videoID+"_summary.mp3")

	reqBody, err := json.Marshal(ttsRequest{Model: n.ttsModel, Voice: n.voice, Input: text})
	if err != nil {
		return "", err
	}

	engine.IncrTTSCalls()
	resp, err := engine.RetryHTTP(ctx, engine.DefaultRetryConfig, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.apiBase+"/audio/speech", bytes.NewReader(reqBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+n.apiKey)
		return n.httpClient.Do(req)
	})
	if err != nil {
		engine.IncrTTSErrors()
		return "", fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		engine.IncrTTSErrors()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("tts API %d: %s", resp.StatusCode, string(body))
	}

	out, err := os.Create(outputPath)
	if err != nil {
		engine.IncrTTSErrors()
		return "", fmt.Errorf("create %s: %w", outputPath, err)
	}
	defer out.Close()

	written, err := io.Copy(out, resp.Body)
	if err != nil {
		engine.IncrTTSErrors()
		os.Remove(outputPath) // don't leave a truncated file behind
		return "", fmt.Errorf("write audio: %w", err)
	}

	slog.Info("narrate: audio saved",
		slog.String("path", outputPath),
		slog.Int64("bytes", written),
		slog.Int("chars", len(text)),
	)
	return outputPath, nil
}
