// Package memory manages bounded conversation context: a sliding window of
// recent messages plus idempotent daily summaries per thread. Summaries keep
// long threads useful to the model without resending full history.
package memory

import (
	"regexp"
	"sort"
	"strings"
)

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*`)

// stopwords are common English function words plus chat filler that would
// otherwise dominate frequency counts.
var stopwords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"a", "about", "after", "all", "also", "am", "an", "and", "any", "are",
		"as", "at", "be", "because", "been", "before", "being", "but", "by",
		"can", "could", "did", "do", "does", "doing", "down", "during", "each",
		"few", "for", "from", "further", "had", "has", "have", "having", "he",
		"her", "here", "hers", "him", "his", "how", "i", "if", "in", "into",
		"is", "it", "its", "just", "like", "me", "more", "most", "my", "no",
		"not", "now", "of", "off", "on", "once", "only", "or", "other", "our",
		"out", "over", "own", "please", "same", "she", "should", "so", "some",
		"such", "than", "that", "the", "their", "them", "then", "there",
		"these", "they", "this", "those", "through", "to", "too", "under",
		"until", "up", "very", "was", "we", "were", "what", "when", "where",
		"which", "while", "who", "whom", "why", "will", "with", "would", "you",
		"your", "yours", "tell", "show", "give", "want", "know", "think",
	} {
		stopwords[w] = struct{}{}
	}
}

// ExtractTopics returns up to k frequent content words across texts,
// lowercased, most frequent first. Ties break alphabetically so output is
// deterministic. Words shorter than three runes are skipped.
func ExtractTopics(texts []string, k int) []string {
	if k <= 0 {
		k = 5
	}

	freq := map[string]int{}
	for _, t := range texts {
		for _, w := range wordRE.FindAllString(strings.ToLower(t), -1) {
			if len([]rune(w)) < 3 {
				continue
			}
			if _, skip := stopwords[w]; skip {
				continue
			}
			freq[w]++
		}
	}
	if len(freq) == 0 {
		return nil
	}

	words := make([]string, 0, len(freq))
	for w := range freq {
		words = append(words, w)
	}
	sort.Slice(words, func(a, b int) bool {
		if freq[words[a]] != freq[words[b]] {
			return freq[words[a]] > freq[words[b]]
		}
		return words[a] < words[b]
	})

	if k > len(words) {
		k = len(words)
	}
	return words[:k]
}
