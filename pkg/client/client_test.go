package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// stubResponse is one scripted gate reply.
type stubResponse struct {
	status int
	body   string
}

// newGate serves the scripted responses in order, repeating the last
// one when the script runs out, and reports how many calls it saw.
func newGate(t *testing.T, script ...stubResponse) (*httptest.Server, func() int) {
	t.Helper()

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idx := calls
		if idx >= len(script) {
			idx = len(script) - 1
		}
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(script[idx].status)
		_, _ = io.WriteString(w, script[idx].body)
	}))
	t.Cleanup(srv.Close)
	return srv, func() int { return calls }
}

// fastClient builds a client with millisecond backoff so retry tests
// finish promptly.
func fastClient(t *testing.T, baseURL string, retries int) *Client {
	t.Helper()

	c, err := New(Config{
		BaseURL:      baseURL,
		OrgKey:       "org_test",
		MaxRetries:   retries,
		RetryBackoff: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

const unavailableBody = `{"status":503,"code":"unavailable",` +
	`"message":"service temporarily unavailable, retry with backoff","request_id":"req-7","retryable":true}`

// ─── Wire Contract ─────────────────────────────────────────────────

func TestRegister_SendsCredentialAndPayload(t *testing.T) {
	var gotKey, gotPath string
	var gotBody map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-org-key")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = io.WriteString(w, `{"status":"ok","request_id":"req-1"}`)
	}))
	t.Cleanup(srv.Close)

	c := fastClient(t, srv.URL, 0)
	res, err := c.Register(context.Background(), "crewai:agent-01")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if gotKey != "org_test" {
		t.Errorf("x-org-key = %q, want org_test", gotKey)
	}
	if gotPath != "/api/v1/devices/register" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody["deviceId"] != "crewai:agent-01" {
		t.Errorf("body = %v, want deviceId crewai:agent-01", gotBody)
	}
	if res.Status != StatusOK || res.RequestID != "req-1" {
		t.Errorf("result = %+v", res)
	}
}

func TestRegister_Admitted(t *testing.T) {
	tests := []struct {
		status   RegisterStatus
		admitted bool
	}{
		{StatusOK, true},
		{StatusExists, true},
		{StatusRestored, true},
		{StatusLimitReached, false},
		{RegisterStatus("weird"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			srv, _ := newGate(t, stubResponse{http.StatusOK,
				`{"status":"` + string(tt.status) + `","request_id":"r"}`})

			res, err := fastClient(t, srv.URL, 0).Register(context.Background(), "dev-1")
			if err != nil {
				t.Fatalf("Register: %v", err)
			}
			if res.Admitted() != tt.admitted {
				t.Errorf("Admitted() = %v, want %v", res.Admitted(), tt.admitted)
			}
		})
	}
}

func TestValidate_Allowed(t *testing.T) {
	srv, _ := newGate(t, stubResponse{http.StatusOK, `{"allowed":true,"code":"ok","request_id":"req-2"}`})

	res, err := fastClient(t, srv.URL, 0).Validate(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !res.Allowed || res.Code != "ok" || res.RequestID != "req-2" {
		t.Errorf("result = %+v", res)
	}
}

func TestValidate_DenialIsNotAnError(t *testing.T) {
	srv, calls := newGate(t, stubResponse{http.StatusOK, `{"allowed":false,"code":"revoked","request_id":"req-3"}`})

	res, err := fastClient(t, srv.URL, 3).Validate(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("a denial must not be an error, got: %v", err)
	}
	if res.Allowed {
		t.Error("Allowed = true, want false")
	}
	if res.Code != "revoked" {
		t.Errorf("Code = %q, want revoked", res.Code)
	}
	if calls() != 1 {
		t.Errorf("calls = %d, denials must never be retried", calls())
	}
}

// ─── Retry Policy ──────────────────────────────────────────────────

func TestRetry_RetryableThenSuccess(t *testing.T) {
	srv, calls := newGate(t,
		stubResponse{http.StatusServiceUnavailable, unavailableBody},
		stubResponse{http.StatusServiceUnavailable, unavailableBody},
		stubResponse{http.StatusOK, `{"status":"ok","request_id":"req-8"}`},
	)

	res, err := fastClient(t, srv.URL, 3).Register(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("Register should recover after retries: %v", err)
	}
	if res.Status != StatusOK {
		t.Errorf("Status = %q", res.Status)
	}
	if calls() != 3 {
		t.Errorf("calls = %d, want 3", calls())
	}
}

func TestRetry_Exhausted(t *testing.T) {
	srv, calls := newGate(t, stubResponse{http.StatusServiceUnavailable, unavailableBody})

	_, err := fastClient(t, srv.URL, 2).Register(context.Background(), "dev-1")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if calls() != 3 {
		t.Errorf("calls = %d, want 1 attempt + 2 retries", calls())
	}
}

func TestRetry_RateLimitedIsRetryable(t *testing.T) {
	srv, calls := newGate(t,
		stubResponse{http.StatusTooManyRequests,
			`{"status":429,"code":"rate_limited","message":"request budget exhausted, slow down","retryable":true}`},
		stubResponse{http.StatusOK, `{"allowed":true,"code":"ok","request_id":"r"}`},
	)

	res, err := fastClient(t, srv.URL, 3).Validate(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !res.Allowed {
		t.Error("Allowed = false after retry")
	}
	if calls() != 2 {
		t.Errorf("calls = %d, want 2", calls())
	}
}

func TestNoRetry_Unauthorized(t *testing.T) {
	srv, calls := newGate(t, stubResponse{http.StatusUnauthorized,
		`{"status":401,"code":"invalid_org_key","message":"organisation key not recognised","request_id":"req-9"}`})

	_, err := fastClient(t, srv.URL, 5).Register(context.Background(), "dev-1")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if calls() != 1 {
		t.Errorf("calls = %d, credential failures must never be retried", calls())
	}
}

func TestNoRetry_SuspendedOrg(t *testing.T) {
	srv, calls := newGate(t, stubResponse{http.StatusForbidden,
		`{"status":403,"code":"org_suspended","message":"organisation is suspended","request_id":"req-5"}`})

	_, err := fastClient(t, srv.URL, 5).Validate(context.Background(), "dev-1")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if calls() != 1 {
		t.Errorf("calls = %d, want 1", calls())
	}
}

func TestNoRetry_BadRequest(t *testing.T) {
	srv, calls := newGate(t, stubResponse{http.StatusBadRequest,
		`{"status":400,"code":"validation_error","message":"device identifier invalid: leading or trailing whitespace"}`})

	_, err := fastClient(t, srv.URL, 5).Register(context.Background(), " padded ")
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
	if calls() != 1 {
		t.Errorf("calls = %d, want 1", calls())
	}
}

func TestRetry_Disabled(t *testing.T) {
	srv, calls := newGate(t, stubResponse{http.StatusServiceUnavailable, unavailableBody})

	_, err := fastClient(t, srv.URL, -1).Register(context.Background(), "dev-1")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if calls() != 1 {
		t.Errorf("calls = %d, want 1 with retries disabled", calls())
	}
}

func TestRetry_UndecodableServerError(t *testing.T) {
	srv, _ := newGate(t,
		stubResponse{http.StatusBadGateway, "upstream exploded"},
		stubResponse{http.StatusOK, `{"status":"ok","request_id":"r"}`},
	)

	res, err := fastClient(t, srv.URL, 3).Register(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("a bare 5xx should be treated as retryable: %v", err)
	}
	if res.Status != StatusOK {
		t.Errorf("Status = %q", res.Status)
	}
}

func TestNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := srv.URL
	srv.Close()

	_, err := fastClient(t, baseURL, -1).Register(context.Background(), "dev-1")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestContextCancelDuringBackoff(t *testing.T) {
	srv, _ := newGate(t, stubResponse{http.StatusServiceUnavailable, unavailableBody})

	c, err := New(Config{
		BaseURL:      srv.URL,
		OrgKey:       "org_test",
		MaxRetries:   5,
		RetryBackoff: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = c.Register(ctx, "dev-1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("cancellation took %s, backoff was not interrupted", elapsed)
	}
}

// ─── Construction ──────────────────────────────────────────────────

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing base url", Config{OrgKey: "org_x"}},
		{"unparseable base url", Config{BaseURL: ":nope", OrgKey: "org_x"}},
		{"missing org key", Config{BaseURL: "http://127.0.0.1:8080"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("expected a configuration error")
			}
		})
	}
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	srv, _ := newGate(t, stubResponse{http.StatusOK, `{"status":"ok","request_id":"r"}`})

	c, err := New(Config{BaseURL: srv.URL + "/", OrgKey: "org_test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Register(context.Background(), "dev-1"); err != nil {
		t.Fatalf("Register against slash-suffixed base URL: %v", err)
	}
}
