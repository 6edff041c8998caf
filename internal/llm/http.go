package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/corroborate/internal/httpx"
)

// maxResponseBytes bounds a provider reply; oracle answers are a few hundred bytes
const maxResponseBytes = 1 << 20

// APIError is a non-200 reply from a provider's HTTP API
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (%d): %s", e.Provider, e.StatusCode, e.Message)
}

// Retryable reports whether repeating the request may succeed
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// jsonEndpoint describes one JSON-over-HTTP provider call
type jsonEndpoint struct {
	provider string
	url      string
	header   http.Header
	// errMessage extracts the provider's error text from a failed reply body
	errMessage func(body []byte) string
}

// postJSON sends in as the request body and decodes a 200 reply into out
func postJSON(ctx context.Context, client *http.Client, ep jsonEndpoint, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, vs := range ep.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(respBody))
		if ep.errMessage != nil {
			if m := ep.errMessage(respBody); m != "" {
				msg = m
			}
		}
		return &APIError{Provider: ep.provider, StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// newHTTPClient builds a provider client honouring the configured timeout and proxies
func newHTTPClient(config Config, fallback time.Duration) *http.Client {
	timeout := time.Duration(config.Timeout) * time.Second
	if timeout == 0 {
		timeout = fallback
	}
	return httpx.NewClient(timeout, config.HTTPProxy, config.HTTPSProxy)
}
