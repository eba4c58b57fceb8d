package memory

import (
	"reflect"
	"testing"
)

func TestExtractTopics(t *testing.T) {
	texts := []string{
		"How are my tech holdings performing today?",
		"Show me my holdings and compare tech exposure",
		"What is the dividend yield on my holdings?",
	}
	got := ExtractTopics(texts, 3)
	if len(got) != 3 {
		t.Fatalf("topics = %v; want 3", got)
	}
	if got[0] != "holdings" {
		t.Fatalf("top topic = %q; want holdings", got[0])
	}
}

func TestExtractTopics_Deterministic(t *testing.T) {
	texts := []string{"alpha beta gamma", "gamma beta alpha"}
	a := ExtractTopics(texts, 5)
	b := ExtractTopics(texts, 5)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("non-deterministic: %v vs %v", a, b)
	}
	// Equal frequency breaks ties alphabetically.
	want := []string{"alpha", "beta", "gamma"}
	if !reflect.DeepEqual(a, want) {
		t.Fatalf("topics = %v; want %v", a, want)
	}
}

func TestExtractTopics_StopwordsAndEmpty(t *testing.T) {
	if got := ExtractTopics([]string{"the and of to is"}, 5); got != nil {
		t.Fatalf("stopword-only input = %v; want nil", got)
	}
	if got := ExtractTopics(nil, 5); got != nil {
		t.Fatalf("empty input = %v; want nil", got)
	}
}
