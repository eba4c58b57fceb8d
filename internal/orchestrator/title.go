package orchestrator

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// titleWordRE extracts Unicode letters with optional trailing numbers.
var titleWordRE = regexp.MustCompile(`[\p{L}]+[\p{N}]*`)

// titleStopWords is a minimal English stop-word set for compact titles.
var titleStopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {}, "in": {},
	"is": {}, "are": {}, "for": {}, "on": {}, "with": {}, "by": {}, "from": {},
	"at": {}, "as": {}, "that": {}, "this": {}, "it": {}, "be": {}, "was": {}, "were": {},
	"my": {}, "me": {}, "what": {}, "how": {}, "please": {},
}

// shouldAutoTitle reports whether the current title is a placeholder
// eligible for generation from the first user query.
func (o *Orchestrator) shouldAutoTitle(current string) bool {
	t := strings.TrimSpace(strings.ToLower(current))
	return t == "" || t == strings.ToLower(o.DefaultTitle)
}

// generateTitle derives a concise title from the query: the first few
// non-stop-words, title-cased per the configured locale, clipped.
func (o *Orchestrator) generateTitle(query string) string {
	toks := titleWordRE.FindAllString(strings.ToLower(strings.TrimSpace(query)), -1)
	if len(toks) == 0 {
		return ""
	}

	locale := o.TitleLocale
	if locale == language.Und {
		locale = language.English
	}
	titleCaser := cases.Title(locale)

	out := make([]string, 0, 8)
	for _, w := range toks {
		if _, skip := titleStopWords[w]; skip {
			continue
		}
		out = append(out, titleCaser.String(w))
		if len(out) >= 8 {
			break
		}
	}
	if len(out) == 0 {
		return ""
	}

	title := strings.Join(out, " ")
	max := o.TitleMaxLen
	if max <= 0 {
		max = 60
	}
	if utf8.RuneCountInString(title) > max {
		title = string([]rune(title)[:max])
	}
	return title
}
