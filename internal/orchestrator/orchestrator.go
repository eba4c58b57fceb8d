// Package orchestrator drives the chat query lifecycle: input validation,
// context assembly, model calls with bounded tool execution, output
// validation, and persistence of the resulting turn. It is the only
// component that sees the whole pipeline; everything else is a collaborator
// behind a narrow interface.
//
// Observability: public entry points are OpenTelemetry-instrumented; spans
// carry account/thread identifiers and the terminal pipeline status.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/averla/portfolio-ai-backend/internal/domain"
	"github.com/averla/portfolio-ai-backend/internal/guardrails"
	"github.com/averla/portfolio-ai-backend/internal/llm"
	"github.com/averla/portfolio-ai-backend/internal/memory"
	"github.com/averla/portfolio-ai-backend/internal/repo"
	"github.com/averla/portfolio-ai-backend/internal/security"
	"github.com/averla/portfolio-ai-backend/internal/tools"
)

// Status is the terminal state of one pipeline run.
type Status string

// Terminal pipeline states.
const (
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
	StatusFailed    Status = "failed"
)

// Canned user-visible messages. Guardrail substitutions scale with severity;
// internal failures never leak detail.
const (
	refusalStrict = "I can't help with that request. Let's keep the conversation focused on your portfolio and the markets."
	refusalSoft   = "I couldn't produce a useful answer to that. Could you rephrase your question?"
	failureMsg    = "Something went wrong while answering your question. Please try again."
)

// ErrThreadNotFound indicates the supplied thread id does not exist or is
// not owned by the account.
var ErrThreadNotFound = errors.New("thread not found")

// ChatClient is the hosted chat-completion surface the orchestrator needs.
// Satisfied by *llm.Client; tests substitute a scripted double.
type ChatClient interface {
	Complete(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition) (*llm.Completion, error)
	Stream(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition) (<-chan llm.StreamChunk, error)
	Model() string
}

// Response is the outcome of one query turn.
type Response struct {
	Status     Status `json:"status"`
	ThreadID   string `json:"thread_id,omitempty"`
	Title      string `json:"title,omitempty"`
	MessageID  string `json:"message_id,omitempty"`
	Content    string `json:"content"`
	ToolRounds int    `json:"tool_rounds,omitempty"`
}

// Orchestrator wires the pipeline stages together.
type Orchestrator struct {
	DB        *gorm.DB
	Chat      ChatClient
	Tools     *tools.Registry
	Memory    *memory.Manager
	Input     *guardrails.InputGuardrail
	Output    *guardrails.OutputGuardrail
	Incidents *security.Sink

	MaxToolRounds int
	DefaultTitle  string
	TitleMaxLen   int
	TitleLocale   language.Tag

	now func() time.Time
}

// New returns an Orchestrator with the standard stage wiring.
func New(db *gorm.DB, chat ChatClient, reg *tools.Registry, mem *memory.Manager, in *guardrails.InputGuardrail, out *guardrails.OutputGuardrail, sink *security.Sink, maxToolRounds int, defaultTitle string) *Orchestrator {
	if maxToolRounds <= 0 {
		maxToolRounds = 3
	}
	if defaultTitle == "" {
		defaultTitle = "New conversation"
	}
	return &Orchestrator{
		DB:            db,
		Chat:          chat,
		Tools:         reg,
		Memory:        mem,
		Input:         in,
		Output:        out,
		Incidents:     sink,
		MaxToolRounds: maxToolRounds,
		DefaultTitle:  defaultTitle,
		TitleMaxLen:   60,
		TitleLocale:   language.English,
		now:           time.Now,
	}
}

// Query runs the full single-shot pipeline for one user turn.
func (o *Orchestrator) Query(ctx context.Context, accountID int64, threadID, query, contextDate string) (*Response, error) {
	tr := otel.Tracer("orchestrator")
	ctx, span := tr.Start(ctx, "Query",
		trace.WithAttributes(
			attribute.Int64("account.id", accountID),
			attribute.String("thread.id", threadID),
		),
	)
	defer span.End()

	// Validating(Input)
	if res := o.Input.ValidateInput(query, accountID); !res.Valid {
		o.recordViolation(ctx, accountID, res, query)
		span.SetAttributes(attribute.String("pipeline.status", string(StatusRejected)))
		return &Response{Status: StatusRejected, Content: res.Reason}, nil
	}

	// AssemblingContext
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

	// AwaitingModel / ExecutingTools / ReQueryingModel
	final, rounds, err := o.runModel(ctx, accountID, messages)
	if err != nil {
		return o.failed(span, accountID, "model turn", err)
	}

	// Validating(Output)
	answer := o.validateOutput(ctx, accountID, query, final.Content)

	// Completed
	resp := &Response{
		Status:     StatusCompleted,
		ThreadID:   thread.ID,
		Title:      thread.Title,
		Content:    answer,
		ToolRounds: rounds,
	}
	o.persistTurn(ctx, thread, query, resp, final.Usage)
	span.SetAttributes(attribute.String("pipeline.status", string(StatusCompleted)))
	return resp, nil
}

// runModel performs the model call loop: an initial completion, then up to
// MaxToolRounds rounds of tool execution and re-query. A model that still
// demands tools past the cap fails the turn.
func (o *Orchestrator) runModel(ctx context.Context, accountID int64, messages []llm.Message) (*llm.Completion, int, error) {
	defs := o.Tools.Definitions()

	completion, err := o.Chat.Complete(ctx, messages, defs)
	if err != nil {
		return nil, 0, fmt.Errorf("chat completion: %w", err)
	}

	rounds := 0
	for len(completion.ToolCalls) > 0 {
		if rounds >= o.MaxToolRounds {
			return nil, rounds, fmt.Errorf("tool round limit (%d) exceeded", o.MaxToolRounds)
		}
		rounds++

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   completion.Content,
			ToolCalls: completion.ToolCalls,
		})
		for _, call := range completion.ToolCalls {
			result, err := o.Tools.Invoke(ctx, accountID, call.Function.Name, call.Function.Arguments)
			if err != nil {
				return nil, rounds, fmt.Errorf("tool %s: %w", call.Function.Name, err)
			}
			payload, _ := json.Marshal(result)
			messages = append(messages, llm.Message{
				Role:       "tool",
				Name:       call.Function.Name,
				ToolCallID: call.ID,
				Content:    string(payload),
			})
		}

		completion, err = o.Chat.Complete(ctx, messages, defs)
		if err != nil {
			return nil, rounds, fmt.Errorf("chat completion after tools: %w", err)
		}
	}
	return completion, rounds, nil
}

// validateOutput applies the output guardrail. Invalid output is replaced
// by a canned refusal scaled to severity; valid output is sanitized.
func (o *Orchestrator) validateOutput(ctx context.Context, accountID int64, query, text string) string {
	res := o.Output.ValidateOutput(text, accountID, query)
	if res.Valid {
		return o.Output.Sanitize(text)
	}
	o.recordViolation(ctx, accountID, res, text)
	if res.Severity.AtLeast(domain.SeverityHigh) {
		return refusalStrict
	}
	return refusalSoft
}

// recordViolation persists guardrail violations of severity >= High through
// the incident sink, off the request path.
func (o *Orchestrator) recordViolation(ctx context.Context, accountID int64, res guardrails.Result, snippet string) {
	if !res.Severity.AtLeast(domain.SeverityHigh) {
		return
	}
	bg := context.WithoutCancel(ctx)
	go o.Incidents.Record(bg, accountID, res.ViolationType, res.Severity, res.Reason, snippet)
}

// resolveThread loads the caller's thread, falls back to the most recent
// active one, or starts a new thread when the account has none.
func (o *Orchestrator) resolveThread(ctx context.Context, accountID int64, threadID string) (*domain.ConversationThread, error) {
	if threadID != "" {
		th, err := repo.GetThread(ctx, o.DB, threadID, accountID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrThreadNotFound
		}
		return th, err
	}

	th, err := repo.MostRecentActiveThread(ctx, o.DB, accountID)
	if err == nil {
		return th, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	return repo.CreateThread(ctx, o.DB, accountID, o.DefaultTitle)
}

// persistTurn writes the user/assistant message pair, bumps thread activity
// under the optimistic guard, and auto-titles new threads. Persistence
// failures are logged but do not void the already-produced response; the
// turn's continuity is lost, not the answer.
func (o *Orchestrator) persistTurn(ctx context.Context, thread *domain.ConversationThread, query string, resp *Response, usage *llm.Usage) {
	userTokens, assistantTokens := estimateTokens(query), estimateTokens(resp.Content)
	if usage != nil {
		userTokens, assistantTokens = usage.PromptTokens, usage.CompletionTokens
	}

	meta, _ := json.Marshal(map[string]any{
		"model":       o.Chat.Model(),
		"tool_rounds": resp.ToolRounds,
	})

	err := o.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.CreateMessage(tx, thread.ID, domain.RoleUser, query, "", userTokens); err != nil {
			return err
		}
		m, err := repo.CreateMessage(tx, thread.ID, domain.RoleAssistant, resp.Content, string(meta), assistantTokens)
		if err != nil {
			return err
		}
		resp.MessageID = m.ID

		if o.shouldAutoTitle(thread.Title) {
			if gen := o.generateTitle(query); gen != "" {
				if uerr := repo.UpdateThreadTitle(ctx, tx, thread.ID, thread.AccountID, gen); uerr == nil {
					resp.Title = gen
				}
			}
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("thread_id", thread.ID).Msg("failed to persist turn")
		return
	}

	// Last-writer-wins on concurrent bumps: a stale observation means
	// another turn already advanced the thread, which is fine.
	if err := repo.TouchThread(ctx, o.DB, thread.ID, thread.LastActivityAt, o.now().UTC()); err != nil && !errors.Is(err, repo.ErrStaleThread) {
		log.Warn().Err(err).Str("thread_id", thread.ID).Msg("failed to bump thread activity")
	}

	// Out-of-band summarization once the day's volume warrants it.
	bg := context.WithoutCancel(ctx)
	day := o.now().UTC().Format("2006-01-02")
	go func() {
		if _, err := o.Memory.SummarizeIfDue(bg, thread.ID, day); err != nil {
			log.Warn().Err(err).Str("thread_id", thread.ID).Msg("summarization check failed")
		}
	}()
}

func (o *Orchestrator) failed(span trace.Span, accountID int64, stage string, err error) (*Response, error) {
	log.Error().Err(err).Int64("account_id", accountID).Str("stage", stage).Msg("pipeline failed")
	span.RecordError(err)
	span.SetAttributes(attribute.String("pipeline.status", string(StatusFailed)))
	return &Response{Status: StatusFailed, Content: failureMsg}, nil
}

// estimateTokens approximates token counts when the upstream reports no
// usage (≈4 characters per token for English text).
func estimateTokens(s string) int {
	n := len(s) / 4
	if n == 0 && s != "" {
		n = 1
	}
	return n
}
