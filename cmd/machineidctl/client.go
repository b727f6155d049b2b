package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/machineid-io/machineid-core/internal/api"
)

// apiClient is a thin wrapper over the server's HTTP API. It knows
// the two credential headers and the structured error shape; the
// commands supply paths and payloads.
type apiClient struct {
	baseURL string
	token   string
	orgKey  string
	http    *http.Client
}

// newClient resolves connection settings from flags and environment
// and returns a client ready to call the server.
//
// Parameters:
//   - cmd: The executing command, used to read persistent flags
//
// Returns:
//   - *apiClient: Configured client
//   - error: If the server URL is unusable
func newClient(cmd *cobra.Command) (*apiClient, error) {
	server := flagOrEnv(cmd, "server", envServer)
	u, err := url.Parse(server)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q: expected http(s)://host[:port]", server)
	}

	timeout, err := cmd.Flags().GetInt("timeout")
	if err != nil || timeout <= 0 {
		timeout = 10
	}

	return &apiClient{
		baseURL: strings.TrimRight(server, "/"),
		token:   flagOrEnv(cmd, "token", envAdminToken),
		orgKey:  flagOrEnv(cmd, "org-key", envOrgKey),
		http:    &http.Client{Timeout: time.Duration(timeout) * time.Second},
	}, nil
}

// flagOrEnv returns the flag's value when the user set it explicitly,
// the environment variable when present, and the flag default
// otherwise.
func flagOrEnv(cmd *cobra.Command, name, env string) string {
	if !cmd.Flags().Changed(name) {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	v, _ := cmd.Flags().GetString(name)
	return v
}

// requireAdminToken fails early with a usable hint instead of letting
// the server answer 401.
func (c *apiClient) requireAdminToken() error {
	if c.token == "" {
		return errors.New("an admin token is required: pass --token or set " + envAdminToken +
			" (mint one with 'machineidctl token mint')")
	}
	return nil
}

// requireOrgKey fails early when a fleet command has no organisation
// credential to present.
func (c *apiClient) requireOrgKey() error {
	if c.orgKey == "" {
		return errors.New("an organisation key is required: pass --org-key or set " + envOrgKey)
	}
	return nil
}

func (c *apiClient) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *apiClient) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *apiClient) patch(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPatch, path, body, out)
}

func (c *apiClient) delete(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodDelete, path, nil, out)
}

// do performs one API request. Non-2xx responses are decoded into the
// server's structured error shape and surfaced as a single readable
// error line carrying the code, the message and the request id so an
// operator can quote it when chasing logs.
func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.orgKey != "" {
		req.Header.Set("x-org-key", c.orgKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", c.baseURL+path, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Response body close on read path

	if resp.StatusCode >= 400 {
		var apiErr api.Error
		if derr := json.NewDecoder(resp.Body).Decode(&apiErr); derr != nil || apiErr.Code == "" {
			return fmt.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode)
		}
		msg := fmt.Sprintf("%s: %s", apiErr.Code, apiErr.Message)
		if apiErr.Retryable {
			msg += " (retryable)"
		}
		if apiErr.RequestID != "" {
			msg += " [request_id " + apiErr.RequestID + "]"
		}
		return errors.New(msg)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response from %s: %w", path, err)
		}
	}
	return nil
}

// jsonOutput reports whether the user asked for raw JSON.
func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

// printJSON pretty-prints a response payload.
func printJSON(w io.Writer, v any) error {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(buf))
	return err
}
