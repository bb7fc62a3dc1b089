package riot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultRequestsPerSecond stays under the dev key's 100 req/2min budget
	// while allowing short bursts.
	DefaultRequestsPerSecond = 6.5

	// MatchIDPageSize is the largest page the match-id listing returns.
	MatchIDPageSize = 100

	defaultTimeout        = 30 * time.Second
	defaultRetryAfter     = 10 * time.Second
	maxRateLimitRetries   = 2
	DefaultRateLimitBurst = 2
)

// Endpoint labels reported to the request observer.
const (
	EndpointAccount  = "account"
	EndpointMatchIDs = "match-ids"
	EndpointMatch    = "match"
	EndpointTimeline = "timeline"
	EndpointLeague   = "league"
	EndpointStatus   = "status"
)

// RegionalBaseURL returns the routing host for account and match endpoints.
func RegionalBaseURL(region string) string {
	return fmt.Sprintf("https://%s.api.riotgames.com", region)
}

// PlatformBaseURL returns the host for platform-scoped endpoints (league, status).
func PlatformBaseURL(platform string) string {
	return fmt.Sprintf("https://%s.api.riotgames.com", platform)
}

// Client is a rate-limited Riot API client
type Client struct {
	keyMu       sync.RWMutex
	apiKey      string
	regionalURL string
	platformURL string
	httpClient  *http.Client
	limiter     *rate.Limiter
	observe     func(endpoint string, status int)
	log         *zap.SugaredLogger
}

// Option configures a Client
type Option func(*Client)

// WithRegion routes account and match calls to a regional host (americas, europe, asia, sea).
func WithRegion(region string) Option {
	return func(c *Client) {
		c.regionalURL = RegionalBaseURL(region)
	}
}

// WithPlatform routes league calls to a platform host (na1, euw1, kr, ...).
func WithPlatform(platform string) Option {
	return func(c *Client) {
		c.platformURL = PlatformBaseURL(platform)
	}
}

// WithBaseURLs overrides both hosts (useful for testing)
func WithBaseURLs(regional, platform string) Option {
	return func(c *Client) {
		c.regionalURL = regional
		c.platformURL = platform
	}
}

// WithRateLimit sets the sustained request rate and burst size.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger attaches a logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithRequestObserver registers a callback invoked once per completed HTTP
// exchange with the endpoint label and status code (0 on transport failure).
func WithRequestObserver(fn func(endpoint string, status int)) Option {
	return func(c *Client) {
		c.observe = fn
	}
}

// NewClient creates a new Riot API client
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("riot api key not set (RIOT_API_KEY or RIOT-DEV-KEY)")
	}

	c := &Client{
		apiKey:      apiKey,
		regionalURL: RegionalBaseURL("americas"),
		platformURL: PlatformBaseURL("na1"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRequestsPerSecond), DefaultRateLimitBurst),
		log:     zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if len(apiKey) > 10 {
		c.log.Debugf("Using API key: %s...%s", apiKey[:8], apiKey[len(apiKey)-4:])
	}

	return c, nil
}

// SetAPIKey swaps the key used by subsequent requests. Development keys
// expire daily, so long-running processes rotate them in place.
func (c *Client) SetAPIKey(apiKey string) {
	c.keyMu.Lock()
	defer c.keyMu.Unlock()
	c.apiKey = apiKey
}

func (c *Client) key() string {
	c.keyMu.RLock()
	defer c.keyMu.RUnlock()
	return c.apiKey
}

// doRequest makes a rate-limited GET and returns the raw body on 200.
// A 429 is honored via Retry-After a bounded number of times before it
// surfaces as ErrRateLimited.
func (c *Client) doRequest(ctx context.Context, endpoint, rawURL string) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Riot-Token", c.key())

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.report(endpoint, 0)
			return nil, fmt.Errorf("%s: %w", endpoint, err)
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		c.report(endpoint, resp.StatusCode)

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxRateLimitRetries {
			wait := retryAfter(resp.Header.Get("Retry-After"))
			c.log.Warnw("rate limited", "endpoint", endpoint, "wait", wait)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return nil, WrapHTTPError(resp.StatusCode, endpoint)
		}
		if readErr != nil {
			return nil, fmt.Errorf("%s: read body: %w", endpoint, readErr)
		}
		return body, nil
	}
}

func (c *Client) report(endpoint string, status int) {
	if c.observe != nil {
		c.observe(endpoint, status)
	}
}

func retryAfter(header string) time.Duration {
	if header == "" {
		return defaultRetryAfter
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return defaultRetryAfter
	}
	return time.Duration(secs) * time.Second
}

func (c *Client) getJSON(ctx context.Context, endpoint, rawURL string, result interface{}) error {
	body, err := c.doRequest(ctx, endpoint, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("%s: decode: %w", endpoint, err)
	}
	return nil
}

// GetAccountByRiotID fetches account info by Riot ID (gameName#tagLine)
func (c *Client) GetAccountByRiotID(ctx context.Context, gameName, tagLine string) (*AccountResponse, error) {
	u := fmt.Sprintf("%s/riot/account/v1/accounts/by-riot-id/%s/%s",
		c.regionalURL, url.PathEscape(gameName), url.PathEscape(tagLine))

	var account AccountResponse
	if err := c.getJSON(ctx, EndpointAccount, u, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// MatchIDQuery filters one page of the match-id listing. Zero values are omitted.
type MatchIDQuery struct {
	StartTime int64 // epoch seconds
	EndTime   int64 // epoch seconds
	Queue     int
	Start     int
	Count     int
}

func (q MatchIDQuery) values() url.Values {
	v := url.Values{}
	if q.StartTime > 0 {
		v.Set("startTime", strconv.FormatInt(q.StartTime, 10))
	}
	if q.EndTime > 0 {
		v.Set("endTime", strconv.FormatInt(q.EndTime, 10))
	}
	if q.Queue > 0 {
		v.Set("queue", strconv.Itoa(q.Queue))
	}
	if q.Start > 0 {
		v.Set("start", strconv.Itoa(q.Start))
	}
	count := q.Count
	if count <= 0 || count > MatchIDPageSize {
		count = MatchIDPageSize
	}
	v.Set("count", strconv.Itoa(count))
	return v
}

// GetMatchIDs fetches a single page of match ids for a player, newest first.
func (c *Client) GetMatchIDs(ctx context.Context, puuid string, q MatchIDQuery) ([]string, error) {
	u := fmt.Sprintf("%s/lol/match/v5/matches/by-puuid/%s/ids?%s",
		c.regionalURL, url.PathEscape(puuid), q.values().Encode())

	var matchIDs []string
	if err := c.getJSON(ctx, EndpointMatchIDs, u, &matchIDs); err != nil {
		return nil, err
	}
	return matchIDs, nil
}

// GetMatchRaw fetches the match detail payload as returned by the API.
func (c *Client) GetMatchRaw(ctx context.Context, matchID string) ([]byte, error) {
	u := fmt.Sprintf("%s/lol/match/v5/matches/%s", c.regionalURL, url.PathEscape(matchID))
	return c.doRequest(ctx, EndpointMatch, u)
}

// GetTimelineRaw fetches the match timeline payload as returned by the API.
func (c *Client) GetTimelineRaw(ctx context.Context, matchID string) ([]byte, error) {
	u := fmt.Sprintf("%s/lol/match/v5/matches/%s/timeline", c.regionalURL, url.PathEscape(matchID))
	return c.doRequest(ctx, EndpointTimeline, u)
}

// GetMatch fetches and decodes match details
func (c *Client) GetMatch(ctx context.Context, matchID string) (*MatchResponse, error) {
	raw, err := c.GetMatchRaw(ctx, matchID)
	if err != nil {
		return nil, err
	}
	return DecodeMatch(raw)
}

// GetRankedEntriesByPUUID fetches all ranked league entries for a player.
func (c *Client) GetRankedEntriesByPUUID(ctx context.Context, puuid string) ([]LeagueEntryResponse, error) {
	u := fmt.Sprintf("%s/lol/league/v4/entries/by-puuid/%s", c.platformURL, url.PathEscape(puuid))

	var entries []LeagueEntryResponse
	if err := c.getJSON(ctx, EndpointLeague, u, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// DecodeMatch parses a raw match detail payload.
func DecodeMatch(raw []byte) (*MatchResponse, error) {
	var match MatchResponse
	if err := json.Unmarshal(raw, &match); err != nil {
		return nil, fmt.Errorf("decode match: %w", err)
	}
	return &match, nil
}

// DecodeTimeline parses a raw timeline payload.
func DecodeTimeline(raw []byte) (*TimelineResponse, error) {
	var timeline TimelineResponse
	if err := json.Unmarshal(raw, &timeline); err != nil {
		return nil, fmt.Errorf("decode timeline: %w", err)
	}
	return &timeline, nil
}
