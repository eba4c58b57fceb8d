package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/averla/portfolio-ai-backend/internal/domain"
	"github.com/averla/portfolio-ai-backend/internal/llm"
)

// Completer is the slice of the chat client the summarizer needs.
// Satisfied by *llm.Client.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition) (*llm.Completion, error)
}

const summarizerSystemPrompt = `You condense one day of a portfolio assistant conversation.
Produce two sections, each on its own lines:

SUMMARY:
<2-4 sentences capturing topics discussed, instruments mentioned, and conclusions reached>

PREFERENCES:
<one short line of durable user preferences you can infer, e.g. "prefers percentages over absolute values"; write "none" if nothing can be inferred>

Do not invent facts that are not in the transcript.`

// ModelSummarizer asks the chat model to condense a day of messages.
// Manager falls back to extractive summarization when Summarize errors,
// so this implementation returns errors rather than degrading silently.
type ModelSummarizer struct {
	client Completer
}

// NewModelSummarizer wraps a chat client as a memory Summarizer.
func NewModelSummarizer(c Completer) *ModelSummarizer {
	return &ModelSummarizer{client: c}
}

// Summarize implements Summarizer via one completion call without tools.
func (s *ModelSummarizer) Summarize(ctx context.Context, messages []domain.ChatMessage) (summary, preferences string, err error) {
	if s.client == nil {
		return "", "", fmt.Errorf("no chat client configured")
	}

	var b strings.Builder
	for _, m := range messages {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}

	out, err := s.client.Complete(ctx, []llm.Message{
		{Role: "system", Content: summarizerSystemPrompt},
		{Role: "user", Content: b.String()},
	}, nil)
	if err != nil {
		return "", "", fmt.Errorf("summarization call: %w", err)
	}

	summary, preferences = parseSummaryOutput(out.Content)
	if summary == "" {
		return "", "", fmt.Errorf("summarization returned no SUMMARY section")
	}
	return summary, preferences, nil
}

// parseSummaryOutput splits the model output into its SUMMARY and
// PREFERENCES sections. A missing PREFERENCES section (or a literal "none")
// yields an empty preferences string.
func parseSummaryOutput(content string) (summary, preferences string) {
	const (
		sumTag  = "SUMMARY:"
		prefTag = "PREFERENCES:"
	)
	rest := content
	if i := strings.Index(rest, sumTag); i >= 0 {
		rest = rest[i+len(sumTag):]
	}
	if j := strings.Index(rest, prefTag); j >= 0 {
		summary = strings.TrimSpace(rest[:j])
		preferences = strings.TrimSpace(rest[j+len(prefTag):])
	} else {
		summary = strings.TrimSpace(rest)
	}
	if strings.EqualFold(preferences, "none") {
		preferences = ""
	}
	return summary, preferences
}
