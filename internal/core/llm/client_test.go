package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/haasonsaas/nexus/internal/core/llm/toolcall"
	"github.com/haasonsaas/nexus/internal/core/middleware"
	"github.com/haasonsaas/nexus/pkg/harnesstypes"
)

func newTestRequest() middleware.Request {
	return middleware.Request{
		Model:    "test-model",
		Messages: []harnesstypes.Msg{harnesstypes.User("hello")},
	}
}

func TestChatOllamaSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message":           map[string]any{"role": "assistant", "content": "the answer is 42"},
			"done":              true,
			"prompt_eval_count": 10,
			"eval_count":        5,
		})
	}))
	defer srv.Close()

	c := New(Config{Dialect: DialectOllama, BaseURL: srv.URL})
	resp, err := c.Chat(context.Background(), newTestRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "the answer is 42" {
		t.Fatalf("unexpected content: %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
}

func TestChatOllamaRetriesOnServerError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("temporarily overloaded"))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"role": "assistant", "content": "recovered"},
			"done":    true,
		})
	}))
	defer srv.Close()

	c := New(Config{Dialect: DialectOllama, BaseURL: srv.URL})
	resp, err := c.Chat(context.Background(), newTestRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "recovered" {
		t.Fatalf("unexpected content: %q", resp.Content)
	}
	if attempts != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", attempts)
	}
}

func TestChatOllamaNonRetryableStatusReturnsErrorContent(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("invalid model name"))
	}))
	defer srv.Close()

	c := New(Config{Dialect: DialectOllama, BaseURL: srv.URL})
	resp, err := c.Chat(context.Background(), newTestRequest())
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}
	if resp.FinishReason != "error" {
		t.Fatalf("expected finish_reason=error, got %+v", resp)
	}
	if attempts != 1 {
		t.Fatalf("expected no retries for a non-retryable status, got %d attempts", attempts)
	}
}

func TestChatOllamaOOMShrinksContextBeforeRetry(t *testing.T) {
	var seenNumCtx []int
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload ollamaRequest
		_ = json.NewDecoder(r.Body).Decode(&payload)
		numCtx := 0
		if v, ok := payload.Options["num_ctx"]; ok {
			numCtx = int(v.(float64))
		}
		seenNumCtx = append(seenNumCtx, numCtx)

		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("model ran out of memory during generation"))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"role": "assistant", "content": "ok"},
			"done":    true,
		})
	}))
	defer srv.Close()

	c := New(Config{Dialect: DialectOllama, BaseURL: srv.URL, ContextLength: 32768})
	_, err := c.Chat(context.Background(), newTestRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seenNumCtx) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(seenNumCtx))
	}
	if seenNumCtx[1] >= seenNumCtx[0] {
		t.Fatalf("expected num_ctx to shrink after an OOM response, got %v", seenNumCtx)
	}
}

func TestChatOllamaDoesNotShrinkBelowThreshold(t *testing.T) {
	c := New(Config{Dialect: DialectOllama, ContextLength: 4096})
	c.handleOOM()
	if c.currentNumCtx() != 4096 {
		t.Fatalf("expected context unchanged below threshold, got %d", c.currentNumCtx())
	}
}

func TestStreamOllamaStreamsTextAndReportsUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, _ := w.(http.Flusher)
		lines := []string{
			`{"message": {"role": "assistant", "content": "Hello "}, "done": false}`,
			`{"message": {"role": "assistant", "content": "there"}, "done": false}`,
			`{"message": {"role": "assistant", "content": ""}, "done": true, "prompt_eval_count": 3, "eval_count": 2}`,
		}
		for _, l := range lines {
			fmt.Fprintln(w, l)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}))
	defer srv.Close()

	c := New(Config{Dialect: DialectOllama, BaseURL: srv.URL})
	var streamed string
	resp, err := c.ChatStream(context.Background(), newTestRequest(), func(ev toolcall.StreamEvent) {
		if ev.Kind == toolcall.StreamText {
			streamed += ev.Data
		}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if streamed == "" && resp.Content == "" {
		t.Fatal("expected some text to be streamed or present in the final response")
	}
	if resp.Usage.TotalTokens != 5 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
}
