package capability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hyperengineering/verdict"
)

func TestHTTP_Invoke_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}

		var req struct {
			Prompt   string          `json:"prompt"`
			Strategy string          `json:"strategy"`
			Params   json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Prompt != "why is the sky blue?" {
			t.Errorf("Prompt = %q", req.Prompt)
		}
		if req.Strategy != "deep-reason" {
			t.Errorf("Strategy = %q, want deep-reason", req.Strategy)
		}
		var params verdict.DeepReasonParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			t.Fatalf("decode params: %v", err)
		}
		if params.Depth != 3 {
			t.Errorf("Depth = %d, want 3", params.Depth)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(InvokeResponse{
			Success:         true,
			Output:          "Rayleigh scattering",
			Confidence:      0.82,
			ExecutionTimeMS: 1500,
		})
	}))
	defer server.Close()

	capability := NewHTTP("reasoner", server.URL, "test-key")
	res, err := capability.Invoke(context.Background(), "why is the sky blue?", verdict.DeepReasonParams{MaxTokens: 2048, Depth: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Error("Success = false, want true")
	}
	if res.Output != "Rayleigh scattering" {
		t.Errorf("Output = %q", res.Output)
	}
	if res.Confidence != 0.82 {
		t.Errorf("Confidence = %v, want 0.82", res.Confidence)
	}
	if res.ExecutionTime != 1500*time.Millisecond {
		t.Errorf("ExecutionTime = %v, want 1.5s", res.ExecutionTime)
	}
}

func TestHTTP_Invoke_NoAPIKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("Authorization = %q, want empty", got)
		}
		_ = json.NewEncoder(w).Encode(InvokeResponse{Success: true, Confidence: 0.5})
	}))
	defer server.Close()

	_, err := NewHTTP("quick", server.URL, "").Invoke(context.Background(), "hi", verdict.QuickReplyParams{MaxTokens: 512})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHTTP_Invoke_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error": "overloaded"}`))
	}))
	defer server.Close()

	_, err := NewHTTP("reasoner", server.URL, "").Invoke(context.Background(), "hi", verdict.QuickReplyParams{})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var capErr *verdict.CapabilityError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected CapabilityError, got %T", err)
	}
	if capErr.Capability != "reasoner" {
		t.Errorf("Capability = %q, want reasoner", capErr.Capability)
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %T", err)
	}
	if statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", statusErr.StatusCode)
	}
}

func TestHTTP_Invoke_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	_, err := NewHTTP("reasoner", server.URL, "").Invoke(context.Background(), "hi", verdict.QuickReplyParams{})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestHTTP_Invoke_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewHTTP("slow", server.URL, "").Invoke(ctx, "hi", verdict.QuickReplyParams{})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestHTTP_Invoke_NetworkError(t *testing.T) {
	_, err := NewHTTP("down", "http://localhost:1", "").Invoke(context.Background(), "hi", verdict.QuickReplyParams{})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestBindEndpoints(t *testing.T) {
	reg, err := verdict.NewRegistry(
		verdict.CapabilityConfig{ID: "local", Tier: verdict.TierSimple},
		verdict.CapabilityConfig{ID: "remote", Tier: verdict.TierComplex, Endpoint: "http://example.invalid/invoke"},
	)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	n, err := BindEndpoints(reg, "key")
	if err != nil {
		t.Fatalf("BindEndpoints: %v", err)
	}
	if n != 1 {
		t.Errorf("bound = %d, want 1", n)
	}
	if _, ok := reg.Capability("remote"); !ok {
		t.Error("remote capability not bound")
	}
	if _, ok := reg.Capability("local"); ok {
		t.Error("local capability bound unexpectedly")
	}
}
