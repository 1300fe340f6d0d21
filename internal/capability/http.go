// Package capability adapts remote reasoning services to verdict.Capability.
package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hyperengineering/verdict"
)

// StatusError is returned when an endpoint answers with a non-200 status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// HTTP invokes a capability served over HTTP as a JSON POST.
// It is safe for concurrent use.
type HTTP struct {
	id         string
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewHTTP creates an HTTP capability. apiKey is optional; when set it is
// sent as a bearer token.
func NewHTTP(id, endpoint, apiKey string) *HTTP {
	return &HTTP{
		id:       id,
		endpoint: strings.TrimSuffix(endpoint, "/"),
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithHTTPClient sets a custom http.Client (for testing or custom transports).
func (h *HTTP) WithHTTPClient(client *http.Client) *HTTP {
	h.httpClient = client
	return h
}

// ID returns the registry id the capability is bound to.
func (h *HTTP) ID() string { return h.id }

// Invoke posts the prompt and strategy parameters to the endpoint. The
// attempt deadline travels in ctx. Transport failures and non-200 answers
// are returned as *verdict.CapabilityError.
func (h *HTTP) Invoke(ctx context.Context, prompt string, params verdict.InvokeParams) (verdict.CapabilityResult, error) {
	start := time.Now()

	body, err := json.Marshal(InvokeRequest{
		Prompt:   prompt,
		Strategy: string(params.Strategy()),
		Params:   params,
	})
	if err != nil {
		return verdict.CapabilityResult{}, h.wrap(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return verdict.CapabilityResult{}, h.wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "verdict-client/1.0")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return verdict.CapabilityResult{}, h.wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 201))
		msg := string(respBody)
		if len(msg) > 200 {
			msg = msg[:200] + "..."
		}
		return verdict.CapabilityResult{}, h.wrap(&StatusError{StatusCode: resp.StatusCode, Body: msg})
	}

	var out InvokeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return verdict.CapabilityResult{}, h.wrap(fmt.Errorf("decode response: %w", err))
	}

	elapsed := time.Duration(out.ExecutionTimeMS) * time.Millisecond
	if elapsed <= 0 {
		elapsed = time.Since(start)
	}
	return verdict.CapabilityResult{
		Success:       out.Success,
		Output:        out.Output,
		Confidence:    out.Confidence,
		ExecutionTime: elapsed,
	}, nil
}

func (h *HTTP) wrap(err error) error {
	return &verdict.CapabilityError{Capability: h.id, Err: err}
}

// BindEndpoints binds an HTTP capability to every registry entry that
// declares an Endpoint and returns how many were bound.
func BindEndpoints(reg *verdict.Registry, apiKey string) (int, error) {
	n := 0
	for _, entry := range reg.Entries() {
		if entry.Endpoint == "" {
			continue
		}
		if err := reg.Bind(entry.ID, NewHTTP(entry.ID, entry.Endpoint, apiKey)); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
