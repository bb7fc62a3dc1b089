package discord

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

const (
	defaultDiscordBaseURL = "https://discord.com/api/v10"

	// Default poll interval for waiting for key
	defaultPollInterval = 10 * time.Second

	defaultDiscordTimeout = 10 * time.Second

	// Number of messages to fetch per poll
	defaultMessageLimit = 10
)

// Format: RGAPI-xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx
var apiKeyPattern = regexp.MustCompile(`RGAPI-[a-zA-Z0-9-]{20,50}`)

// DiscordMessage represents a message from the Discord API
type DiscordMessage struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Author    struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"author"`
}

// KeyFinder polls a Discord channel for replacement Riot API keys
type KeyFinder struct {
	botToken     string
	channelID    string
	baseURL      string
	pollInterval time.Duration
	httpClient   *http.Client
	log          *zap.SugaredLogger
}

// KeyFinderOption configures a KeyFinder
type KeyFinderOption func(*KeyFinder)

// WithDiscordBaseURL sets a custom Discord API base URL (for testing)
func WithDiscordBaseURL(url string) KeyFinderOption {
	return func(f *KeyFinder) {
		f.baseURL = url
	}
}

// WithPollInterval sets the polling interval for WaitForKey
func WithPollInterval(interval time.Duration) KeyFinderOption {
	return func(f *KeyFinder) {
		f.pollInterval = interval
	}
}

// WithKeyFinderLogger sets the logger
func WithKeyFinderLogger(log *zap.SugaredLogger) KeyFinderOption {
	return func(f *KeyFinder) {
		f.log = log
	}
}

// NewKeyFinder creates a new KeyFinder
func NewKeyFinder(botToken, channelID string, opts ...KeyFinderOption) *KeyFinder {
	f := &KeyFinder{
		botToken:     botToken,
		channelID:    channelID,
		baseURL:      defaultDiscordBaseURL,
		pollInterval: defaultPollInterval,
		httpClient: &http.Client{
			Timeout: defaultDiscordTimeout,
		},
		log: zap.NewNop().Sugar(),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// ParseAPIKey extracts a Riot API key from message content
func ParseAPIKey(content string) (string, bool) {
	match := apiKeyPattern.FindString(content)
	if match == "" {
		return "", false
	}
	return match, true
}

// PollForKey returns the newest key posted after since, or "" when there is
// none. Messages with an unparseable timestamp are ignored.
func (f *KeyFinder) PollForKey(ctx context.Context, since time.Time) (string, error) {
	messages, err := f.fetchMessages(ctx)
	if err != nil {
		return "", err
	}

	// Discord lists the most recent message first
	for _, msg := range messages {
		posted, err := time.Parse(time.RFC3339, msg.Timestamp)
		if err != nil || posted.Before(since) {
			continue
		}
		if key, found := ParseAPIKey(msg.Content); found {
			f.log.Infow("found api key in channel", "author", msg.Author.Username, "key", maskAPIKey(key))
			return key, nil
		}
	}

	return "", nil
}

// WaitForKey polls the channel until a key is found or ctx is done
func (f *KeyFinder) WaitForKey(ctx context.Context, since time.Time) (string, error) {
	return f.AwaitValidKey(ctx, since, nil)
}

// AwaitValidKey polls the channel until a posted key passes check. A key
// that check rejects is remembered and not tried again. A nil check accepts
// the first key found.
func (f *KeyFinder) AwaitValidKey(ctx context.Context, since time.Time, check func(context.Context, string) error) (string, error) {
	f.log.Infow("waiting for new api key", "channel", f.channelID, "interval", f.pollInterval)

	rejected := make(map[string]bool)
	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	for {
		key, err := f.PollForKey(ctx, since)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			f.log.Warnw("polling channel failed", "error", err)
		}

		if key != "" && !rejected[key] {
			if check == nil {
				return key, nil
			}
			if err := check(ctx, key); err != nil {
				f.log.Warnw("posted api key rejected", "key", maskAPIKey(key), "error", err)
				rejected[key] = true
			} else {
				return key, nil
			}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// fetchMessages fetches recent messages from the Discord channel
func (f *KeyFinder) fetchMessages(ctx context.Context) ([]DiscordMessage, error) {
	url := fmt.Sprintf("%s/channels/%s/messages?limit=%d", f.baseURL, f.channelID, defaultMessageLimit)

	for attempt := 0; attempt < maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bot "+f.botToken)

		resp, err := f.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			wait := retryAfter(resp.Header.Get("Retry-After"))
			resp.Body.Close()

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
				continue
			}
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("Discord API returned status %d", resp.StatusCode)
		}

		var messages []DiscordMessage
		err = json.NewDecoder(resp.Body).Decode(&messages)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return messages, nil
	}

	return nil, fmt.Errorf("Discord API rate limited after %d retries", maxRetries)
}
