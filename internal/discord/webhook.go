package discord

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

const (
	// Colors for Discord embeds
	colorRed    = 15158332 // 0xE74C3C
	colorGreen  = 5763719  // 0x57F287
	colorYellow = 16776960 // 0xFFFF00

	defaultWebhookTimeout = 10 * time.Second

	// Max attempts when Discord rate limits the webhook
	maxRetries = 3
)

// WebhookPayload represents a Discord webhook message
type WebhookPayload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

// Embed represents a Discord embed
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

// EmbedField represents a field in a Discord embed
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// EmbedFooter represents the footer of a Discord embed
type EmbedFooter struct {
	Text string `json:"text"`
}

// SyncSummary is what a finished sync run reports to the channel.
type SyncSummary struct {
	Player       string
	NewMatches   int
	Updated      int
	Failed       int
	Total        int
	StoredTotal  int
	RanksFetched int
	Duration     time.Duration
	Err          error
	FinishedAt   time.Time
}

// NewSyncSummaryPayload builds the embed posted after every sync run. A run
// that ended with an error is shown in red, one with failed units in yellow.
func NewSyncSummaryPayload(s SyncSummary) WebhookPayload {
	embed := Embed{
		Title: "📥 Sync Complete",
		Color: colorGreen,
		Fields: []EmbedField{
			{Name: "Player", Value: s.Player, Inline: true},
			{Name: "New Matches", Value: humanize.Comma(int64(s.NewMatches)), Inline: true},
			{Name: "Updated", Value: humanize.Comma(int64(s.Updated)), Inline: true},
			{Name: "Failed", Value: humanize.Comma(int64(s.Failed)), Inline: true},
			{Name: "Ranks Fetched", Value: humanize.Comma(int64(s.RanksFetched)), Inline: true},
			{Name: "Duration", Value: formatDuration(s.Duration), Inline: true},
		},
		Footer: &EmbedFooter{
			Text: fmt.Sprintf("%s matches stored · %s considered this run",
				humanize.Comma(int64(s.StoredTotal)), humanize.Comma(int64(s.Total))),
		},
	}
	if !s.FinishedAt.IsZero() {
		embed.Timestamp = s.FinishedAt.UTC().Format(time.RFC3339)
	}

	switch {
	case s.Err != nil:
		embed.Title = "⚠️ Sync Aborted"
		embed.Color = colorRed
		embed.Description = s.Err.Error()
	case s.Failed > 0:
		embed.Color = colorYellow
	}

	return WebhookPayload{Embeds: []Embed{embed}}
}

// NewKeyExpiredPayload creates a payload for API key expiration notification
func NewKeyExpiredPayload(storedMatches int, uptime time.Duration, lastSync time.Time) WebhookPayload {
	last := "never"
	if !lastSync.IsZero() {
		last = humanize.Time(lastSync)
	}

	return WebhookPayload{
		Content: "@here API Key Expired!",
		Embeds: []Embed{
			{
				Title: "🔑 API Key Expired",
				Color: colorRed,
				Fields: []EmbedField{
					{
						Name:   "Matches Stored",
						Value:  humanize.Comma(int64(storedMatches)),
						Inline: true,
					},
					{
						Name:   "Uptime",
						Value:  formatDuration(uptime),
						Inline: true,
					},
					{
						Name:   "Last Sync",
						Value:  last,
						Inline: true,
					},
				},
				Footer: &EmbedFooter{
					Text: "Reply with a new RGAPI-xxx key to resume syncing",
				},
			},
		},
	}
}

// NewKeyRotatedPayload creates a payload confirming a replacement key
func NewKeyRotatedPayload(apiKey string) WebhookPayload {
	return WebhookPayload{
		Embeds: []Embed{
			{
				Title: "✅ API Key Rotated",
				Color: colorGreen,
				Fields: []EmbedField{
					{
						Name:   "New Key",
						Value:  maskAPIKey(apiKey) + " (validated)",
						Inline: true,
					},
				},
				Footer: &EmbedFooter{
					Text: "Sync requests are accepted again",
				},
			},
		},
	}
}

// WebhookClient sends notifications to Discord webhooks
type WebhookClient struct {
	webhookURL string
	httpClient *http.Client
	log        *zap.SugaredLogger
}

// WebhookOption configures a WebhookClient
type WebhookOption func(*WebhookClient)

// WithWebhookLogger sets the logger used for retry diagnostics.
func WithWebhookLogger(log *zap.SugaredLogger) WebhookOption {
	return func(c *WebhookClient) {
		c.log = log
	}
}

// NewWebhookClient creates a new WebhookClient
func NewWebhookClient(webhookURL string, opts ...WebhookOption) *WebhookClient {
	c := &WebhookClient{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: defaultWebhookTimeout,
		},
		log: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendSyncSummary posts the summary of a finished sync run
func (c *WebhookClient) SendSyncSummary(ctx context.Context, s SyncSummary) error {
	return c.sendPayload(ctx, NewSyncSummaryPayload(s))
}

// SendKeyExpiredNotification sends a key expiration notification
func (c *WebhookClient) SendKeyExpiredNotification(ctx context.Context, storedMatches int, uptime time.Duration, lastSync time.Time) error {
	return c.sendPayload(ctx, NewKeyExpiredPayload(storedMatches, uptime, lastSync))
}

// SendKeyRotatedNotification sends a key rotation confirmation
func (c *WebhookClient) SendKeyRotatedNotification(ctx context.Context, apiKey string) error {
	return c.sendPayload(ctx, NewKeyRotatedPayload(apiKey))
}

// sendPayload sends a webhook payload with retry on rate limiting
func (c *WebhookClient) sendPayload(ctx context.Context, payload WebhookPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		resp.Body.Close()

		// Discord returns 204 No Content
		if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK {
			return nil
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			wait := retryAfter(resp.Header.Get("Retry-After"))
			c.log.Debugw("webhook rate limited", "attempt", attempt+1, "wait", wait)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
				continue
			}
		}

		return fmt.Errorf("webhook request failed with status %d", resp.StatusCode)
	}

	return fmt.Errorf("webhook request failed after %d retries", maxRetries)
}

// retryAfter parses Discord's Retry-After header, which may carry
// fractional seconds.
func retryAfter(header string) time.Duration {
	if header == "" {
		return time.Second
	}
	seconds, err := strconv.ParseFloat(header, 64)
	if err != nil || seconds < 0 {
		return time.Second
	}
	return time.Duration(seconds * float64(time.Second))
}

// formatDuration formats a duration as "18h 32m", or "4m 05s" under an hour
func formatDuration(d time.Duration) string {
	if d < time.Hour {
		return fmt.Sprintf("%dm %02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

// maskAPIKey masks an API key for display (e.g., "RGAPI-xxxx-xxxx" -> "RGAPI...xxxx")
func maskAPIKey(key string) string {
	if len(key) <= 10 {
		return "****"
	}
	return key[:5] + "..." + key[len(key)-4:]
}
