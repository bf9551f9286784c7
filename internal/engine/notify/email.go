// Package notify delivers the finished digest: an HTML email with the
// summary, a plain-text alternative, and the MP3 narration attached.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/wneessen/go-mail"

	"github.com/anatolykoptev/go_digest/internal/engine"
)

const (
	fromName        = "YouTube Digest"
	subjectTitleMax = 50
)

// smtpRetryConfig mirrors the classic 1s/2s/4s backoff for transient SMTP
// failures.
var smtpRetryConfig = engine.RetryConfig{
	MaxRetries:  3,
	InitialWait: time.Second,
	MaxWait:     8 * time.Second,
	Multiplier:  2.0,
}

// Email sends digest emails over authenticated SMTP with STARTTLS.
type Email struct {
	client    *mail.Client
	username  string
	recipient string
}

// NewEmail builds the SMTP notifier from config.
func NewEmail(cfg *engine.Config) (*Email, error) {
	port := cfg.SMTPPort
	if port == 0 {
		port = 587
	}

	client, err := mail.NewClient(cfg.SMTPServer,
		mail.WithPort(port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.SMTPUsername),
		mail.WithPassword(cfg.SMTPPassword),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return nil, fmt.Errorf("notify: smtp client: %w", err)
	}

	return &Email{
		client:    client,
		username:  cfg.SMTPUsername,
		recipient: cfg.EmailRecipient,
	}, nil
}

// SendDigest emails the summary for one video with its audio narration
// attached. Retries transient failures before giving up; the returned error
// is a DeliveryError once retries are exhausted.
func (e *Email) SendDigest(ctx context.Context, video engine.CandidateVideo, narration *engine.Narration) error {
	msg, err := e.buildMessage(video, narration)
	if err != nil {
		engine.IncrEmailErrors()
		return &engine.DeliveryError{Err: err}
	}

	_, err = engine.RetryDo(ctx, smtpRetryConfig, retryableSMTP, func() (struct{}, error) {
		return struct{}{}, e.client.DialAndSendWithContext(ctx, msg)
	})
	if err != nil {
		engine.IncrEmailErrors()
		return &engine.DeliveryError{Err: err}
	}

	engine.IncrEmailsSent()
	slog.Info("notify: email sent",
		slog.String("video_id", video.VideoID),
		slog.String("to", e.recipient),
	)
	return nil
}

func (e *Email) buildMessage(video engine.CandidateVideo, narration *engine.Narration) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.FromFormat(fromName, e.username); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(e.recipient); err != nil {
		return nil, fmt.Errorf("to address: %w", err)
	}

	title := engine.TruncateRunes(video.Title, subjectTitleMax, "...")
	channel := video.ChannelName
	if channel == "" {
		channel = "Unknown Channel"
	}
	msg.Subject(fmt.Sprintf("[%s] %s", channel, title))

	htmlBody, err := renderHTMLBody(video, narration.Summary)
	if err != nil {
		return nil, fmt.Errorf("render body: %w", err)
	}

	// Plain-text alternative derived from the HTML so the two never drift.
	plainBody, err := htmltomarkdown.ConvertString(htmlBody)
	if err != nil {
		slog.Warn("notify: html-to-text conversion failed, plain part is the summary only", slog.Any("error", err))
		plainBody = narration.Summary + "\n\nWatch: " + video.WatchURL()
	}

	msg.SetBodyString(mail.TypeTextPlain, plainBody)
	msg.AddAlternativeString(mail.TypeTextHTML, htmlBody)

	if narration.AudioPath != "" {
		if _, err := os.Stat(narration.AudioPath); err == nil {
			msg.AttachFile(narration.AudioPath,
				mail.WithFileName(filepath.Base(narration.AudioPath)))
		} else {
			slog.Warn("notify: audio file missing, sending without attachment",
				slog.String("path", narration.AudioPath))
		}
	}
	return msg, nil
}

// retryableSMTP retries everything except context cancellation; SMTP servers
// fail in too many transient ways to enumerate.
func retryableSMTP(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
