package guardrails

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/averla/portfolio-ai-backend/internal/domain"
)

// leakagePatterns detect system/role text echoed back by the model.
// Any match is Critical: the model is reproducing text it should never
// disclose. Immutable after init.
var leakagePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\[\s*(system|assistant|inst)\s*\]`),
	regexp.MustCompile(`(?i)<\s*\|?\s*(system|im_start|im_end)\s*\|?\s*>`),
	regexp.MustCompile(`(?i)my\s+(system\s+)?(instructions?|prompt)\s+(are|is|says?)`),
	regexp.MustCompile(`(?i)(here\s+(is|are)|these\s+are)\s+(my|the)\s+(system\s+)?(instructions?|prompt)`),
	regexp.MustCompile(`(?i)^\s*system\s*:`),
	regexp.MustCompile(`(?i)you\s+are\s+a\s+portfolio\s+assistant\s+for\s+account`),
}

// markerTokens are literal delimiter fragments stripped by Sanitize.
var markerTokens = []string{
	"[SYSTEM]", "[system]", "[ASSISTANT]", "[assistant]", "[INST]", "[/INST]",
	"<|im_start|>", "<|im_end|>", "<|system|>", "<system>", "</system>",
}

// OutputGuardrail scans model output for leaked instructions or system text
// before it reaches the caller. Safe for concurrent use.
type OutputGuardrail struct{}

// NewOutputGuardrail constructs an OutputGuardrail.
func NewOutputGuardrail() *OutputGuardrail {
	return &OutputGuardrail{}
}

// ValidateOutput checks the model's final text. Empty output is a Medium
// rejection; any leakage signature is Critical and tagged as prompt
// leakage. originalQuery is logged for audit context only and never
// influences the verdict.
func (g *OutputGuardrail) ValidateOutput(text string, accountID int64, originalQuery string) Result {
	if strings.TrimSpace(text) == "" {
		res := Block("model returned empty output", domain.SeverityMedium, domain.ViolationEmptyOutput)
		g.logRejection(accountID, "empty", originalQuery, res)
		return res
	}

	for _, p := range leakagePatterns {
		if p.MatchString(text) {
			res := Block("model output contains leaked system or role text",
				domain.SeverityCritical, domain.ViolationPromptLeakage)
			g.logRejection(accountID, p.String(), originalQuery, res)
			return res
		}
	}

	return Pass()
}

// Sanitize strips recognized marker tokens and collapses runs of
// whitespace. It is a best-effort cleanup path, distinct from rejection:
// callers use it on output that passed validation but may still carry
// stray delimiters.
func (g *OutputGuardrail) Sanitize(text string) string {
	for _, tok := range markerTokens {
		text = strings.ReplaceAll(text, tok, "")
	}
	return collapseWhitespace(text)
}

func (g *OutputGuardrail) logRejection(accountID int64, rule, originalQuery string, res Result) {
	log.Warn().
		Int64("account_id", accountID).
		Str("rule", rule).
		Str("severity", string(res.Severity)).
		Str("original_query", truncateForLog(originalQuery, 200)).
		Msg("output guardrail rejected model response")
}

// wsRE collapses consecutive whitespace to a single space per line.
var wsRE = regexp.MustCompile(`[ \t]+`)

// collapseWhitespace normalizes line endings, squeezes runs of spaces and
// tabs, and drops blank lines produced by token removal.
func collapseWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, ln := range lines {
		ln = strings.TrimSpace(wsRE.ReplaceAllString(ln, " "))
		if ln != "" {
			out = append(out, ln)
		}
	}
	return strings.Join(out, "\n")
}

// truncateForLog caps a logged string at max bytes.
func truncateForLog(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
