package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	defaultTimeout = 10 * time.Second
	defaultRetries = 3
	defaultBackoff = 500 * time.Millisecond
)

// orgKeyHeader carries the organisation credential.
const orgKeyHeader = "x-org-key"

// Config configures a Client. BaseURL and OrgKey are required.
type Config struct {
	// BaseURL is the gate's root URL, e.g. "https://machineid.example.com".
	BaseURL string

	// OrgKey is the organisation's API key (the org_... credential).
	OrgKey string

	// HTTPClient optionally replaces the default client, which uses a
	// 10 second timeout. Supply your own to tune transport settings.
	HTTPClient *http.Client

	// MaxRetries is the number of additional attempts after the first
	// call fails retryably. Zero means the default of 3; negative
	// disables retries entirely.
	MaxRetries int

	// RetryBackoff is the delay before the first retry; it doubles on
	// every subsequent one. Zero means the default of 500ms.
	RetryBackoff time.Duration
}

// Client calls a MachineID admission gate on behalf of one
// organisation. It is safe for concurrent use.
type Client struct {
	baseURL string
	orgKey  string
	http    *http.Client
	retries int
	backoff time.Duration
}

// New validates the configuration and returns a ready Client.
//
// Parameters:
//   - cfg: Connection settings; BaseURL and OrgKey are required
//
// Returns:
//   - *Client: Ready to call the gate
//   - error: If the configuration is unusable
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("client: BaseURL is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("client: invalid BaseURL %q", cfg.BaseURL)
	}
	if cfg.OrgKey == "" {
		return nil, errors.New("client: OrgKey is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	retries := cfg.MaxRetries
	switch {
	case retries == 0:
		retries = defaultRetries
	case retries < 0:
		retries = 0
	}

	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		orgKey:  cfg.OrgKey,
		http:    httpClient,
		retries: retries,
		backoff: backoff,
	}, nil
}

// RegisterStatus is the gate's verdict on a registration attempt.
type RegisterStatus string

// Register verdicts. The first three leave the device holding an
// active slot; LimitReached means the organisation is full and
// nothing changed.
const (
	StatusOK           RegisterStatus = "ok"
	StatusExists       RegisterStatus = "exists"
	StatusRestored     RegisterStatus = "restored"
	StatusLimitReached RegisterStatus = "limit_reached"
)

// RegisterResult is the outcome of a Register call.
type RegisterResult struct {
	Status    RegisterStatus
	RequestID string
}

// Admitted reports whether the device holds an active slot after the
// call. A worker that is not admitted must not start.
func (r RegisterResult) Admitted() bool {
	switch r.Status {
	case StatusOK, StatusExists, StatusRestored:
		return true
	}
	return false
}

// ValidateResult is the outcome of a Validate call.
type ValidateResult struct {
	// Allowed is the hard gate: false means stop, whatever the code.
	Allowed   bool
	Code      string
	RequestID string
}

// Register asks the gate to admit the device into the organisation's
// fleet. Registration is idempotent: calling it for an already-active
// device succeeds with StatusExists.
//
// A denied registration (StatusLimitReached) is a successful call;
// check Admitted on the result.
func (c *Client) Register(ctx context.Context, deviceID string) (RegisterResult, error) {
	var resp struct {
		Status    string `json:"status"`
		RequestID string `json:"request_id"`
	}
	if err := c.post(ctx, "/api/v1/devices/register", deviceID, &resp); err != nil {
		return RegisterResult{}, err
	}
	return RegisterResult{Status: RegisterStatus(resp.Status), RequestID: resp.RequestID}, nil
}

// Validate asks the gate whether the device may operate right now.
// A denial (Allowed false) is a successful call carrying the reason
// in Code.
func (c *Client) Validate(ctx context.Context, deviceID string) (ValidateResult, error) {
	var resp struct {
		Allowed   bool   `json:"allowed"`
		Code      string `json:"code"`
		RequestID string `json:"request_id"`
	}
	if err := c.post(ctx, "/api/v1/devices/validate", deviceID, &resp); err != nil {
		return ValidateResult{}, err
	}
	return ValidateResult{Allowed: resp.Allowed, Code: resp.Code, RequestID: resp.RequestID}, nil
}

// post sends one protocol call, retrying with doubling backoff while
// the failure is retryable. Terminal failures and context
// cancellation return immediately.
func (c *Client) post(ctx context.Context, path, deviceID string, out any) error {
	payload, err := json.Marshal(map[string]string{"deviceId": deviceID})
	if err != nil {
		return fmt.Errorf("client: encoding request: %w", err)
	}

	for attempt := 0; ; attempt++ {
		err := c.once(ctx, path, payload, out)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrUnavailable) || attempt >= c.retries {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff << attempt):
		}
	}
}

// apiError mirrors the gate's structured error payload.
type apiError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Retryable bool   `json:"retryable"`
}

// once performs a single HTTP exchange. Failures come back wrapping
// one of the package sentinels so the retry loop and callers can
// classify them with errors.Is.
func (c *Client) once(ctx context.Context, path string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("client: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(orgKeyHeader, c.orgKey)

	resp, err := c.http.Do(req)
	if err != nil {
		// Propagate cancellation as such rather than as an outage.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Response body close on read path

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if derr := json.NewDecoder(resp.Body).Decode(&apiErr); derr != nil || apiErr.Code == "" {
			if resp.StatusCode >= 500 {
				return fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode)
			}
			return fmt.Errorf("client: unexpected HTTP %d", resp.StatusCode)
		}

		switch {
		case apiErr.Retryable:
			return fmt.Errorf("%w: %s", ErrUnavailable, apiErr.Message)
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: %s (%s)", ErrUnauthorized, apiErr.Message, apiErr.Code)
		case resp.StatusCode == http.StatusBadRequest:
			return fmt.Errorf("%w: %s (%s)", ErrInvalidRequest, apiErr.Message, apiErr.Code)
		default:
			return fmt.Errorf("client: %s (%s, HTTP %d)", apiErr.Message, apiErr.Code, resp.StatusCode)
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decoding response: %w", err)
	}
	return nil
}
