// Package llm implements the harness's dual-dialect LLM transport: an
// OpenAI-compatible chat-completions client (cloud providers) and a
// native Ollama client (local models), unified behind one Client with
// retry/backoff, OOM-triggered context shrinking, and the toolcall
// package for text-based tool-call extraction.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/nexus/internal/backoff"
	"github.com/haasonsaas/nexus/internal/core/llm/toolcall"
	"github.com/haasonsaas/nexus/internal/core/middleware"
	"github.com/haasonsaas/nexus/pkg/harnesstypes"
)

// Dialect selects which wire protocol a Client speaks.
type Dialect string

const (
	DialectOpenAI Dialect = "openai"
	DialectOllama Dialect = "ollama"
)

const (
	maxRetries            = 3
	retryInitialMs        = 1000
	retryFactor           = 2
	retryMaxMs            = 8000
	oomShrinkThreshold    = 8192
	defaultRequestTimeout = 2 * time.Minute
)

// Config configures a Client. Exactly one dialect is active per
// Client; a harness that talks to both a cloud and a local model holds
// two Clients.
type Config struct {
	Dialect       Dialect
	BaseURL       string
	APIKey        string
	Model         string
	Timeout       time.Duration
	ContextLength int // native dialect's num_ctx; 0 means let the backend default
}

// Client is a retrying, OOM-aware LLM transport for one backend.
type Client struct {
	cfg    Config
	http   *http.Client
	openai *openai.Client

	mu     sync.Mutex
	numCtx int
}

// New builds a Client for cfg.Dialect. For DialectOpenAI, an
// openai.Client is constructed pointed at cfg.BaseURL (or the public
// API if empty); for DialectOllama, a raw *http.Client is used against
// cfg.BaseURL (default http://localhost:11434).
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		numCtx: cfg.ContextLength,
	}
	if cfg.Dialect == DialectOpenAI {
		oaiCfg := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			oaiCfg.BaseURL = cfg.BaseURL
		}
		oaiCfg.HTTPClient = c.http
		client := openai.NewClientWithConfig(oaiCfg)
		c.openai = client
	}
	if cfg.BaseURL == "" && cfg.Dialect == DialectOllama {
		c.cfg.BaseURL = "http://localhost:11434"
	}
	return c
}

func backoffPolicy() backoff.BackoffPolicy {
	return backoff.BackoffPolicy{InitialMs: retryInitialMs, MaxMs: retryMaxMs, Factor: retryFactor, Jitter: 0}
}

// Chat sends req and blocks for the full (non-streaming) response.
func (c *Client) Chat(ctx context.Context, req middleware.Request) (harnesstypes.LLMResponse, error) {
	start := time.Now()
	var resp harnesstypes.LLMResponse
	var err error
	if c.cfg.Dialect == DialectOllama {
		resp, err = c.chatOllama(ctx, req)
	} else {
		resp, err = c.chatOpenAI(ctx, req)
	}
	if err == nil {
		resp.LatencyMS = float64(time.Since(start).Microseconds()) / 1000.0
		resp.Model = req.Model
	}
	return resp, err
}

// ChatStream sends req and streams parsed events to onEvent as they
// arrive, returning the finalized response once the stream ends.
func (c *Client) ChatStream(ctx context.Context, req middleware.Request, onEvent func(toolcall.StreamEvent)) (harnesstypes.LLMResponse, error) {
	start := time.Now()
	var resp harnesstypes.LLMResponse
	var err error
	if c.cfg.Dialect == DialectOllama {
		resp, err = c.streamOllama(ctx, req, onEvent)
	} else {
		resp, err = c.streamOpenAI(ctx, req, onEvent)
	}
	if err == nil {
		resp.LatencyMS = float64(time.Since(start).Microseconds()) / 1000.0
		resp.Model = req.Model
	}
	return resp, err
}

// ---- openai dialect ----

func toOpenAIMessages(msgs []harnesstypes.Msg) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func toOpenAITools(tools []map[string]any) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		fn, _ := t["function"].(map[string]any)
		if fn == nil {
			fn = t
		}
		name, _ := fn["name"].(string)
		desc, _ := fn["description"].(string)
		params := fn["parameters"]
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        name,
				Description: desc,
				Parameters:  params,
			},
		})
	}
	return out
}

func (c *Client) buildOpenAIRequest(req middleware.Request, stream bool) openai.ChatCompletionRequest {
	out := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: toOpenAIMessages(req.Messages),
		Stream:   stream,
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		out.Temperature = float32(req.Temperature)
	}
	if len(req.Tools) > 0 {
		out.Tools = toOpenAITools(req.Tools)
	}
	return out
}

func (c *Client) chatOpenAI(ctx context.Context, req middleware.Request) (harnesstypes.LLMResponse, error) {
	chatReq := c.buildOpenAIRequest(req, false)

	var out harnesstypes.LLMResponse
	for attempt := 1; attempt <= maxRetries; attempt++ {
		resp, err := c.openai.CreateChatCompletion(ctx, chatReq)
		if err == nil {
			return openAIResponseToLLM(resp), nil
		}

		status, retryable := classifyOpenAIError(err)
		if !retryable {
			return harnesstypes.LLMResponse{
				Content:      "[LLM API Error: " + err.Error() + "]",
				FinishReason: "error",
			}, nil
		}
		if attempt == maxRetries {
			return out, &TransportError{Reason: classifyStatus(status), Status: status, Cause: err}
		}
		if sleepErr := backoff.SleepWithBackoff(ctx, backoffPolicy(), attempt); sleepErr != nil {
			return out, sleepErr
		}
	}
	return out, &TransportError{Reason: ReasonUnknown, Cause: fmt.Errorf("exhausted retries")}
}

func classifyOpenAIError(err error) (status int, retryable bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, retryableStatus[apiErr.HTTPStatusCode]
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
		return 0, true
	}
	return 0, false
}

func openAIResponseToLLM(resp openai.ChatCompletionResponse) harnesstypes.LLMResponse {
	out := harnesstypes.LLMResponse{
		Usage: harnesstypes.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if len(resp.Choices) == 0 {
		return out
	}
	choice := resp.Choices[0]
	out.FinishReason = string(choice.FinishReason)
	out.Content = choice.Message.Content

	if len(choice.Message.ToolCalls) > 0 {
		for _, tc := range choice.Message.ToolCalls {
			var args map[string]any
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
			if args == nil {
				args = map[string]any{}
			}
			out.ToolCalls = append(out.ToolCalls, harnesstypes.ToolCall{
				Name:      tc.Function.Name,
				Arguments: args,
				Raw:       tc.Function.Arguments,
			})
		}
		return out
	}

	thinking, cleaned := toolcall.ExtractThinking(out.Content)
	out.Thinking = thinking
	out.Content = cleaned
	out.ToolCalls = toolcall.ParseFromText(cleaned)
	return out
}

func (c *Client) streamOpenAI(ctx context.Context, req middleware.Request, onEvent func(toolcall.StreamEvent)) (harnesstypes.LLMResponse, error) {
	chatReq := c.buildOpenAIRequest(req, true)

	var stream *openai.ChatCompletionStream
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		stream, lastErr = c.openai.CreateChatCompletionStream(ctx, chatReq)
		if lastErr == nil {
			break
		}
		status, retryable := classifyOpenAIError(lastErr)
		if !retryable {
			return harnesstypes.LLMResponse{Content: "[LLM API Error: " + lastErr.Error() + "]", FinishReason: "error"}, nil
		}
		if attempt == maxRetries {
			return harnesstypes.LLMResponse{}, &TransportError{Reason: classifyStatus(status), Status: status, Cause: lastErr}
		}
		if sleepErr := backoff.SleepWithBackoff(ctx, backoffPolicy(), attempt); sleepErr != nil {
			return harnesstypes.LLMResponse{}, sleepErr
		}
	}
	defer stream.Close()

	proc := toolcall.NewProcessor()
	native := toolcall.NewNativeAccumulator()
	finishReason := ""
	var usage harnesstypes.Usage

	for {
		chunk, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				break
			}
			return harnesstypes.LLMResponse{}, &TransportError{Reason: ReasonUnknown, Cause: err}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			for _, ev := range proc.Feed(delta.Content) {
				onEvent(ev)
			}
		}
		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			native.Feed([]toolcall.DeltaToolCall{{Index: idx, Name: tc.Function.Name, Arguments: tc.Function.Arguments}})
		}
		if chunk.Choices[0].FinishReason != "" {
			finishReason = string(chunk.Choices[0].FinishReason)
		}
	}

	thinking, content, calls := proc.Finish()
	if native.HasCalls() {
		calls = native.Finalize()
		content = ""
	}
	return harnesstypes.LLMResponse{
		Content:      content,
		Thinking:     thinking,
		ToolCalls:    calls,
		FinishReason: finishReason,
		Usage:        usage,
	}, nil
}

// ---- native (ollama) dialect ----

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool `json:"done"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
}

func (c *Client) currentNumCtx() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.numCtx
}

// handleOOM halves the tracked context window once it exceeds the
// shrink threshold, so the next attempt asks the backend for less.
func (c *Client) handleOOM() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.numCtx > oomShrinkThreshold {
		c.numCtx /= 2
	}
}

func (c *Client) buildOllamaRequest(req middleware.Request, stream bool) ollamaRequest {
	msgs := make([]ollamaMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, ollamaMessage{Role: string(m.Role), Content: m.Content})
	}
	out := ollamaRequest{Model: req.Model, Messages: msgs, Stream: stream}
	if numCtx := c.currentNumCtx(); numCtx > 0 {
		out.Options = map[string]any{"num_ctx": numCtx}
	}
	return out
}

// doOllama performs one non-streaming round trip, returning the parsed
// body, the raw status, and the raw response body text (for OOM
// keyword sniffing on failure).
func (c *Client) doOllama(ctx context.Context, payload ollamaRequest) (ollamaResponse, int, string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return ollamaResponse{}, 0, "", fmt.Errorf("marshal ollama request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return ollamaResponse{}, 0, "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return ollamaResponse{}, 0, "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ollamaResponse{}, resp.StatusCode, "", err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return ollamaResponse{}, resp.StatusCode, string(raw), nil
	}
	var parsed ollamaResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return ollamaResponse{}, resp.StatusCode, string(raw), fmt.Errorf("decode ollama response: %w", err)
	}
	return parsed, resp.StatusCode, string(raw), nil
}

func (c *Client) chatOllama(ctx context.Context, req middleware.Request) (harnesstypes.LLMResponse, error) {
	payload := c.buildOllamaRequest(req, false)

	for attempt := 1; attempt <= maxRetries; attempt++ {
		parsed, status, rawBody, err := c.doOllama(ctx, payload)
		if err != nil {
			if attempt == maxRetries {
				return harnesstypes.LLMResponse{}, &TransportError{Reason: ReasonTimeout, Cause: err}
			}
			if sleepErr := backoff.SleepWithBackoff(ctx, backoffPolicy(), attempt); sleepErr != nil {
				return harnesstypes.LLMResponse{}, sleepErr
			}
			continue
		}

		if status >= http.StatusBadRequest {
			if isOOMError(rawBody) {
				c.handleOOM()
				payload = c.buildOllamaRequest(req, false)
			}
			if !retryableStatus[status] {
				return harnesstypes.LLMResponse{Content: "[LLM API Error: ollama status " + fmt.Sprint(status) + ": " + rawBody + "]", FinishReason: "error"}, nil
			}
			if attempt == maxRetries {
				return harnesstypes.LLMResponse{}, &TransportError{Reason: classifyStatus(status), Status: status, Cause: fmt.Errorf("%s", rawBody)}
			}
			if sleepErr := backoff.SleepWithBackoff(ctx, backoffPolicy(), attempt); sleepErr != nil {
				return harnesstypes.LLMResponse{}, sleepErr
			}
			continue
		}

		thinking, cleaned := toolcall.ExtractThinking(parsed.Message.Content)
		return harnesstypes.LLMResponse{
			Content:      cleaned,
			Thinking:     thinking,
			ToolCalls:    toolcall.ParseFromText(cleaned),
			FinishReason: "stop",
			Usage: harnesstypes.Usage{
				PromptTokens:     parsed.PromptEvalCount,
				CompletionTokens: parsed.EvalCount,
				TotalTokens:      parsed.PromptEvalCount + parsed.EvalCount,
			},
		}, nil
	}
	return harnesstypes.LLMResponse{}, &TransportError{Reason: ReasonUnknown, Cause: fmt.Errorf("exhausted retries")}
}

func (c *Client) streamOllama(ctx context.Context, req middleware.Request, onEvent func(toolcall.StreamEvent)) (harnesstypes.LLMResponse, error) {
	payload := c.buildOllamaRequest(req, true)

	var bodyReader io.ReadCloser
	var lastErr error
	var lastStatus int
	for attempt := 1; attempt <= maxRetries; attempt++ {
		marshaled, err := json.Marshal(payload)
		if err != nil {
			return harnesstypes.LLMResponse{}, fmt.Errorf("marshal ollama request: %w", err)
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/chat", bytes.NewReader(marshaled))
		if err != nil {
			return harnesstypes.LLMResponse{}, err
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(httpReq)
		if err != nil {
			lastErr = err
			if attempt == maxRetries {
				return harnesstypes.LLMResponse{}, &TransportError{Reason: ReasonTimeout, Cause: err}
			}
			if sleepErr := backoff.SleepWithBackoff(ctx, backoffPolicy(), attempt); sleepErr != nil {
				return harnesstypes.LLMResponse{}, sleepErr
			}
			continue
		}

		if resp.StatusCode >= http.StatusBadRequest {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			resp.Body.Close()
			lastStatus = resp.StatusCode
			if isOOMError(string(raw)) {
				c.handleOOM()
				payload = c.buildOllamaRequest(req, true)
			}
			if !retryableStatus[resp.StatusCode] {
				return harnesstypes.LLMResponse{Content: "[LLM API Error: ollama status " + fmt.Sprint(resp.StatusCode) + ": " + string(raw) + "]", FinishReason: "error"}, nil
			}
			if attempt == maxRetries {
				return harnesstypes.LLMResponse{}, &TransportError{Reason: classifyStatus(resp.StatusCode), Status: resp.StatusCode, Cause: fmt.Errorf("%s", string(raw))}
			}
			if sleepErr := backoff.SleepWithBackoff(ctx, backoffPolicy(), attempt); sleepErr != nil {
				return harnesstypes.LLMResponse{}, sleepErr
			}
			continue
		}
		bodyReader = resp.Body
		break
	}
	if bodyReader == nil {
		return harnesstypes.LLMResponse{}, &TransportError{Reason: classifyStatus(lastStatus), Status: lastStatus, Cause: lastErr}
	}
	defer bodyReader.Close()

	proc := toolcall.NewProcessor()
	scanner := bufio.NewScanner(bodyReader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var usage harnesstypes.Usage
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var chunk ollamaResponse
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			return harnesstypes.LLMResponse{}, fmt.Errorf("decode ollama stream chunk: %w", err)
		}
		if chunk.Message.Content != "" {
			for _, ev := range proc.Feed(chunk.Message.Content) {
				onEvent(ev)
			}
		}
		if chunk.Done {
			usage = harnesstypes.Usage{
				PromptTokens:     chunk.PromptEvalCount,
				CompletionTokens: chunk.EvalCount,
				TotalTokens:      chunk.PromptEvalCount + chunk.EvalCount,
			}
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return harnesstypes.LLMResponse{}, fmt.Errorf("read ollama stream: %w", err)
	}

	thinking, content, calls := proc.Finish()
	return harnesstypes.LLMResponse{
		Content:      content,
		Thinking:     thinking,
		ToolCalls:    calls,
		FinishReason: "stop",
		Usage:        usage,
	}, nil
}
