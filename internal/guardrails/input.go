package guardrails

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/averla/portfolio-ai-backend/internal/domain"
)

// DefaultMaxInputLen is the character ceiling applied when InputGuardrail
// is constructed with a non-positive limit. It bounds prompt cost and
// protects the upstream model from oversized payloads.
const DefaultMaxInputLen = 5000

// Inputs shorter than this skip the character-ratio check; very short
// strings produce noisy ratios.
const ratioMinLen = 50

// Maximum tolerated share of control/symbol characters before the input is
// treated as encoding-based obfuscation.
const maxSuspiciousRatio = 0.20

// injectionPatterns are prompt-injection signatures matched case-insensitively
// against user input. Immutable after init.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+|any\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+|any\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)forget\s+(everything|all)\s+(you|above)`),
	regexp.MustCompile(`(?i)(reveal|show|print|display)\s+(me\s+)?(your|the)\s+(system\s+)?(prompt|instructions?)`),
	regexp.MustCompile(`(?i)pretend\s+(to\s+be|you\s+are)`),
	regexp.MustCompile(`(?i)act\s+as\s+(if\s+you\s+are\s+)?(a|an|the)\s`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|in)\s`),
	regexp.MustCompile(`(?i)\b(jailbreak|DAN\s+mode|developer\s+mode)\b`),
	regexp.MustCompile(`(?i)<\s*/?\s*(script|system|assistant|img|iframe)\b`),
	regexp.MustCompile(`(?i)\[\s*(system|assistant|inst)\s*\]`),
	regexp.MustCompile(`(?i)new\s+(system\s+)?instructions?\s*:`),
	regexp.MustCompile(`(?i)override\s+(your|the)\s+(role|rules?|instructions?)`),
}

// InputGuardrail validates user queries before any model call. The zero
// value is not usable; construct with NewInputGuardrail.
type InputGuardrail struct {
	// MaxLen caps input length in runes; <= 0 falls back to DefaultMaxInputLen.
	MaxLen int
}

// NewInputGuardrail constructs an InputGuardrail with the given length
// ceiling (<= 0 selects DefaultMaxInputLen).
func NewInputGuardrail(maxLen int) *InputGuardrail {
	if maxLen <= 0 {
		maxLen = DefaultMaxInputLen
	}
	return &InputGuardrail{MaxLen: maxLen}
}

// ValidateInput runs all input checks in order (emptiness, length,
// injection signatures, character ratio) and short-circuits on the first
// failure. Rejections are logged with the account and matched rule;
// persisting an incident is the caller's responsibility.
func (g *InputGuardrail) ValidateInput(text string, accountID int64) Result {
	if strings.TrimSpace(text) == "" {
		return g.reject(accountID, "empty",
			Block("query must not be empty", domain.SeverityLow, domain.ViolationInvalidInput))
	}

	if n := utf8.RuneCountInString(text); n > g.MaxLen {
		return g.reject(accountID, "length",
			Block(fmt.Sprintf("query exceeds maximum length of %d characters", g.MaxLen),
				domain.SeverityMedium, domain.ViolationInvalidInput))
	}

	for _, p := range injectionPatterns {
		if p.MatchString(text) {
			return g.reject(accountID, p.String(),
				Block("query matches a known prompt-injection pattern",
					domain.SeverityHigh, domain.ViolationPromptInjection))
		}
	}

	if n := utf8.RuneCountInString(text); n > ratioMinLen {
		if r := suspiciousRatio(text); r > maxSuspiciousRatio {
			return g.reject(accountID, "char_ratio",
				Block(fmt.Sprintf("query contains an unusually high ratio (%.0f%%) of non-text characters", r*100),
					domain.SeverityMedium, domain.ViolationSuspiciousEncoding))
		}
	}

	return Pass()
}

// reject logs the rejection and returns res unchanged.
func (g *InputGuardrail) reject(accountID int64, rule string, res Result) Result {
	log.Warn().
		Int64("account_id", accountID).
		Str("rule", rule).
		Str("severity", string(res.Severity)).
		Str("violation_type", string(res.ViolationType)).
		Msg("input guardrail rejected query")
	return res
}

// suspiciousRatio returns the share of runes that are neither letters,
// digits, punctuation, nor ordinary spaces.
func suspiciousRatio(s string) float64 {
	total, odd := 0, 0
	for _, r := range s {
		total++
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsPunct(r):
		case r == ' ', r == '\n', r == '\t':
		case unicode.IsSymbol(r), unicode.IsControl(r), !unicode.IsPrint(r):
			odd++
		default:
			odd++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(odd) / float64(total)
}
