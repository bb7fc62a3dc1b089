package riot

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const (
	// LoL Status API: cheapest platform call that still checks the key
	statusEndpoint = "/lol/status/v4/platform-data"

	defaultValidationTimeout = 10 * time.Second
)

// KeyValidator checks a Riot API key before a run starts, so an expired dev
// key fails fast instead of surfacing as a 403 on the first match fetch.
type KeyValidator struct {
	httpClient *http.Client
	baseURL    string
	observe    func(endpoint string, status int)
}

// KeyValidatorOption configures a KeyValidator
type KeyValidatorOption func(*KeyValidator)

// WithBaseURL sets a custom base URL (useful for testing)
func WithBaseURL(url string) KeyValidatorOption {
	return func(v *KeyValidator) {
		v.baseURL = url
	}
}

// WithTimeout sets a custom timeout for validation requests
func WithTimeout(timeout time.Duration) KeyValidatorOption {
	return func(v *KeyValidator) {
		v.httpClient.Timeout = timeout
	}
}

// WithValidationObserver reports the status request like any other Riot call.
func WithValidationObserver(fn func(endpoint string, status int)) KeyValidatorOption {
	return func(v *KeyValidator) {
		v.observe = fn
	}
}

// NewKeyValidator creates a validator against the given platform host (na1, euw1, ...).
func NewKeyValidator(platform string, opts ...KeyValidatorOption) *KeyValidator {
	v := &KeyValidator{
		httpClient: &http.Client{
			Timeout: defaultValidationTimeout,
		},
		baseURL: PlatformBaseURL(platform),
	}

	for _, opt := range opts {
		opt(v)
	}

	return v
}

// ValidateKey validates an API key by making a test request to the Riot API.
// Returns:
//   - (true, nil) if the key is valid
//   - (false, nil) if the key is invalid (401/403)
//   - (false, error) if there was a network/server error (key validity unknown)
func (v *KeyValidator) ValidateKey(ctx context.Context, apiKey string) (bool, error) {
	if apiKey == "" {
		return false, fmt.Errorf("API key cannot be empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+statusEndpoint, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Riot-Token", apiKey)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		v.report(0)
		return false, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	v.report(resp.StatusCode)

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return false, nil
	default:
		return false, WrapHTTPError(resp.StatusCode, EndpointStatus)
	}
}

// CheckKey is ValidateKey folded into a single error: nil when the key
// works, ErrUnauthorized when it was rejected.
func (v *KeyValidator) CheckKey(ctx context.Context, apiKey string) error {
	valid, err := v.ValidateKey(ctx, apiKey)
	if err != nil {
		return err
	}
	if !valid {
		return &APIError{StatusCode: http.StatusForbidden, Endpoint: EndpointStatus, Err: ErrUnauthorized}
	}
	return nil
}

func (v *KeyValidator) report(status int) {
	if v.observe != nil {
		v.observe(EndpointStatus, status)
	}
}
