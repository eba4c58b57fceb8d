package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/averla/portfolio-ai-backend/internal/llm"
)

// ErrStreamAbandoned indicates the consumer went away mid-stream. The turn
// is abandoned without persistence so no partial assistant message survives.
var ErrStreamAbandoned = errors.New("stream abandoned by consumer")

// QueryStream runs the pipeline in streaming mode: guardrails and
// persistence are identical to Query, but answer tokens are forwarded to
// sink as they arrive — on the first generation too, with tool-call deltas
// accumulated off to the side. Tokens reach the consumer before output
// validation completes, so a violation discovered late substitutes the
// persisted response without retracting what was already sent.
//
// Streaming turns resolve at most one tool round: the follow-up generation
// after tool results is asked without tool definitions, so it must answer
// in text.
//
// Disconnect policy: a sink error or context cancellation abandons the turn
// entirely. Nothing is persisted.
func (o *Orchestrator) QueryStream(ctx context.Context, accountID int64, threadID, query, contextDate string, sink func(fragment string) error) (*Response, error) {
	tr := otel.Tracer("orchestrator")
	ctx, span := tr.Start(ctx, "QueryStream",
		trace.WithAttributes(
			attribute.Int64("account.id", accountID),
			attribute.String("thread.id", threadID),
		),
	)
	defer span.End()

	if res := o.Input.ValidateInput(query, accountID); !res.Valid {
		o.recordViolation(ctx, accountID, res, query)
		span.SetAttributes(attribute.String("pipeline.status", string(StatusRejected)))
		return &Response{Status: StatusRejected, Content: res.Reason}, nil
	}

	thread, err := o.resolveThread(ctx, accountID, threadID)
	if err != nil {
		if errors.Is(err, ErrThreadNotFound) {
			return nil, err
		}
		return o.failed(span, accountID, "resolve thread", err)
	}
	messages, err := o.assemblePrompt(ctx, accountID, thread.ID, query, contextDate)
	if err != nil {
		return o.failed(span, accountID, "assemble context", err)
	}

	finalText, calls, failResp, err := o.streamRound(ctx, span, accountID, messages, o.Tools.Definitions(), sink)
	if failResp != nil || err != nil {
		return failResp, err
	}

	rounds := 0
	if len(calls) > 0 {
		rounds = 1
		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   finalText,
			ToolCalls: calls,
		})
		for _, call := range calls {
			result, err := o.Tools.Invoke(ctx, accountID, call.Function.Name, call.Function.Arguments)
			if err != nil {
				return o.failed(span, accountID, "tool execution", err)
			}
			payload, _ := json.Marshal(result)
			messages = append(messages, llm.Message{
				Role:       "tool",
				Name:       call.Function.Name,
				ToolCallID: call.ID,
				Content:    string(payload),
			})
		}

		text, _, failResp, err := o.streamRound(ctx, span, accountID, messages, nil, sink)
		if failResp != nil || err != nil {
			return failResp, err
		}
		finalText += text
	}

	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrStreamAbandoned, ctx.Err())
	}

	answer := o.validateOutput(ctx, accountID, query, finalText)

	resp := &Response{
		Status:     StatusCompleted,
		ThreadID:   thread.ID,
		Title:      thread.Title,
		Content:    answer,
		ToolRounds: rounds,
	}
	o.persistTurn(ctx, thread, query, resp, nil)
	span.SetAttributes(attribute.String("pipeline.status", string(StatusCompleted)))
	return resp, nil
}

// streamRound drives one streamed generation: content fragments go to sink
// as they arrive, accumulated tool calls come back from the terminal chunk.
// A non-nil *Response or error is terminal for the whole turn and must be
// returned by the caller as-is.
func (o *Orchestrator) streamRound(ctx context.Context, span trace.Span, accountID int64, messages []llm.Message, defs []llm.ToolDefinition, sink func(fragment string) error) (string, []llm.ToolCall, *Response, error) {
	chunks, err := o.Chat.Stream(ctx, messages, defs)
	if err != nil {
		resp, rerr := o.failed(span, accountID, "model stream", err)
		return "", nil, resp, rerr
	}

	var text string
	var calls []llm.ToolCall
	for chunk := range chunks {
		if chunk.Err != nil {
			if ctx.Err() != nil {
				return "", nil, nil, fmt.Errorf("%w: %v", ErrStreamAbandoned, chunk.Err)
			}
			resp, rerr := o.failed(span, accountID, "model stream", chunk.Err)
			return "", nil, resp, rerr
		}
		if chunk.Done {
			calls = chunk.ToolCalls
			continue
		}
		text += chunk.Content
		if err := sink(chunk.Content); err != nil {
			return "", nil, nil, fmt.Errorf("%w: %v", ErrStreamAbandoned, err)
		}
	}
	return text, calls, nil, nil
}
