// Package llm provides a thin HTTP client for OpenAI-compatible chat
// completion APIs (OpenRouter, or any upstream speaking the same wire
// format). It supports tool calling and SSE streaming, and performs a
// single retry on transient failures. All calls are context-aware.
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
	"time"

	"github.com/rs/zerolog/log"

	"github.com/averla/portfolio-ai-backend/internal/config"
)

// Message is one chat turn on the wire. Tool result turns carry
// ToolCallID and Name; assistant turns that request tools carry ToolCalls.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a model-issued request to invoke one registered tool.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the tool name and its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition advertises one callable tool to the model.
type ToolDefinition struct {
	Type     string       `json:"type"`
	Function FunctionSpec `json:"function"`
}

// FunctionSpec describes a tool function with a JSON Schema for its
// parameters.
type FunctionSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Usage reports token accounting for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []Message        `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	Stream      bool             `json:"stream"`
	Temperature *float64         `json:"temperature,omitempty"`
	TopP        *float64         `json:"top_p,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message      Message     `json:"message"`
		Delta        streamDelta `json:"delta"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

// streamDelta is the incremental form of an assistant message on the SSE
// wire. Tool calls arrive as indexed fragments: the first fragment for an
// index carries id/type/name, later ones append to the arguments string.
type streamDelta struct {
	Content   string `json:"content"`
	ToolCalls []struct {
		Index    int          `json:"index"`
		ID       string       `json:"id"`
		Type     string       `json:"type"`
		Function FunctionCall `json:"function"`
	} `json:"tool_calls"`
}

// Completion is the decoded result of a non-streaming chat call.
type Completion struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        *Usage
}

// StreamChunk is one unit of a streamed completion. Exactly one terminal
// chunk is sent: either Done with optional Usage and any accumulated
// ToolCalls, or Err.
type StreamChunk struct {
	Content   string
	Usage     *Usage
	ToolCalls []ToolCall
	Done      bool
	Err       error
}

// ErrNoChoices indicates the upstream returned an empty choices array.
var ErrNoChoices = errors.New("chat completion returned no choices")

// Client talks to one OpenAI-compatible chat completions endpoint.
type Client struct {
	httpc       *http.Client
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	topP        float64
}

// NewClient builds a Client from configuration. The HTTP timeout bounds
// non-streaming calls; streaming calls rely on the request context instead.
func NewClient(cfg config.ChatModelConfig) *Client {
	return &Client{
		httpc:       &http.Client{Timeout: cfg.Timeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

func (c *Client) newRequest(ctx context.Context, body chatRequest) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return req, nil
}

// retryable reports whether a failed attempt is worth one more try.
func retryable(status int, err error) bool {
	if err != nil {
		return true
	}
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// Complete performs a blocking chat completion, retrying once on transport
// errors, 429s, and 5xx responses.
func (c *Client) Complete(ctx context.Context, messages []Message, tools []ToolDefinition) (*Completion, error) {
	body := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Tools:       tools,
		Stream:      false,
		Temperature: &c.temperature,
		TopP:        &c.topP,
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(500 * time.Millisecond):
			}
			log.Warn().Err(lastErr).Msg("retrying chat completion")
		}

		req, err := c.newRequest(ctx, body)
		if err != nil {
			return nil, err
		}
		resp, err := c.httpc.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("chat completion request: %w", err)
			if ctx.Err() != nil {
				return nil, lastErr
			}
			continue
		}

		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read chat completion response: %w", err)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("chat completion status %d: %s", resp.StatusCode, truncate(string(raw), 300))
			if retryable(resp.StatusCode, nil) {
				continue
			}
			return nil, lastErr
		}

		var out chatResponse
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("decode chat completion: %w", err)
		}
		if out.Error != nil {
			return nil, fmt.Errorf("chat completion upstream error: %s", out.Error.Message)
		}
		if len(out.Choices) == 0 {
			return nil, ErrNoChoices
		}

		ch := out.Choices[0]
		return &Completion{
			Content:      ch.Message.Content,
			ToolCalls:    ch.Message.ToolCalls,
			FinishReason: ch.FinishReason,
			Usage:        out.Usage,
		}, nil
	}
	return nil, lastErr
}

// Stream performs a streaming chat completion, advertising tools when
// provided. Content deltas are emitted as they arrive; tool-call deltas
// are accumulated and delivered on the terminal Done chunk. The returned
// channel is closed after a terminal chunk. Cancelling ctx aborts the
// stream and the reader goroutine exits even when the consumer has
// stopped receiving.
func (c *Client) Stream(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error) {
	body := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Tools:       tools,
		Stream:      true,
		Temperature: &c.temperature,
		TopP:        &c.topP,
	}

	req, err := c.newRequest(ctx, body)
	if err != nil {
		return nil, err
	}

	// No client-level timeout for SSE; long generations are legitimate.
	streamClient := &http.Client{Transport: c.httpc.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat stream request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("chat stream status %d: %s", resp.StatusCode, truncate(string(raw), 300))
	}

	chunks := make(chan StreamChunk)
	go func() {
		defer resp.Body.Close()
		defer close(chunks)

		// send delivers one chunk unless the context is gone. Every send
		// goes through here: an unguarded send would park this goroutine
		// forever once the consumer stops receiving, and the deferred
		// body close would never run.
		send := func(ch StreamChunk) bool {
			select {
			case chunks <- ch:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var usage *Usage
		var calls []ToolCall
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			if line == "" || line == "data: [DONE]" {
				continue
			}
			data, ok := strings.CutPrefix(line, "data: ")
			if !ok {
				continue
			}

			var ev chatResponse
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				log.Warn().Err(err).Msg("skipping malformed stream event")
				continue
			}
			if ev.Usage != nil {
				usage = ev.Usage
			}
			if len(ev.Choices) == 0 {
				continue
			}

			delta := ev.Choices[0].Delta
			for _, tc := range delta.ToolCalls {
				for len(calls) <= tc.Index {
					calls = append(calls, ToolCall{})
				}
				acc := &calls[tc.Index]
				if tc.ID != "" {
					acc.ID = tc.ID
				}
				if tc.Type != "" {
					acc.Type = tc.Type
				}
				if tc.Function.Name != "" {
					acc.Function.Name = tc.Function.Name
				}
				acc.Function.Arguments += tc.Function.Arguments
			}
			if delta.Content != "" && !send(StreamChunk{Content: delta.Content}) {
				send(StreamChunk{Err: ctx.Err()})
				return
			}
		}

		if err := scanner.Err(); err != nil {
			send(StreamChunk{Err: fmt.Errorf("read chat stream: %w", err)})
			return
		}
		send(StreamChunk{Done: true, Usage: usage, ToolCalls: calls})
	}()

	return chunks, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
