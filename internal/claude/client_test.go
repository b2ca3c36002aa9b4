package claude

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"unicode/utf8"
)

func TestComplete_SendsRequestAndStripsFence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "k" {
			t.Errorf("expected api key header, got %q", got)
		}
		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if req.System != "sys" || len(req.Messages) != 1 || req.Messages[0].Content != "hello" {
			t.Errorf("unexpected request body: %+v", req)
		}
		w.Write([]byte(`{"content":[{"type":"text","text":"` + "```json\\n{\\\"ok\\\":true}\\n```" + `"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", "test-model")
	defer c.Close()
	got, err := c.Complete(context.Background(), "sys", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `{"ok":true}` {
		t.Errorf("expected fence stripped, got %q", got)
	}
	if c.Model() != "test-model" {
		t.Errorf("expected model %q, got %q", "test-model", c.Model())
	}
	if snap := c.Stats.Snapshot(); snap.Count != 1 {
		t.Errorf("expected one recorded sample, got %d", snap.Count)
	}
}

func TestComplete_RetryableStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"type":"rate_limit","message":"slow down"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", "m")
	_, err := c.Complete(context.Background(), "", "x")
	if !IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
	if snap := c.Stats.Snapshot(); snap.Failures != MaxRetries {
		t.Errorf("expected %d failures, got %d", MaxRetries, snap.Failures)
	}
}

func TestComplete_ClientErrorNotRetryable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "k", "m").Complete(context.Background(), "", "x")
	if err == nil || IsRetryable(err) {
		t.Fatalf("expected non-retryable error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single attempt, got %d", calls.Load())
	}
}

func TestComplete_RecoversFromTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"content":[{"type":"text","text":"done"}]}`))
	}))
	defer srv.Close()

	got, err := NewClient(srv.URL, "k", "m").Complete(context.Background(), "", "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "done" {
		t.Errorf("expected %q, got %q", "done", got)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestStripCodeBlock(t *testing.T) {
	tests := map[string]string{
		"```json\n[1]\n```": "[1]",
		"```\nplain\n```":    "plain",
		"  {\"a\":1}  ":      `{"a":1}`,
	}
	for in, want := range tests {
		if got := StripCodeBlock(in); got != want {
			t.Errorf("StripCodeBlock(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTruncate_RuneBoundary(t *testing.T) {
	got := truncate("résumé résumé", 2)
	if got != "ré..." {
		t.Errorf("truncate = %q, want %q", got, "ré...")
	}
	if !utf8.ValidString(got) {
		t.Errorf("truncate produced invalid UTF-8: %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate = %q, want unchanged", got)
	}
}
