package query

import (
	"strings"
	"testing"
)

func TestClassifyType(t *testing.T) {
	tests := []struct {
		text string
		want Type
	}{
		{"Why did the negotiations collapse in 1921?", TypeAnalytical},
		{"Compare the treatment of land reform in both documents", TypeAnalytical},
		{"What are the main themes of the memoir?", TypeThematic},
		{"What happened after the expedition reached the delta?", TypeNarrative},
		{"When was the treaty signed?", TypeFactual},
		{"Tell me more", TypeHybrid},
	}
	for _, tt := range tests {
		if got := classifyType(tt.text); got != tt.want {
			t.Errorf("%q: got %s, want %s", tt.text, got, tt.want)
		}
	}
}

func TestClassifyMultiDocument(t *testing.T) {
	a := Classify("Compare the two accounts of the siege", []string{"d1", "d2"}, nil)
	if !a.IsComparative || !a.IsMultiDocument {
		t.Fatalf("comparative two-doc: %+v", a)
	}

	// Comparative vocabulary alone is not multi-document with one doc selected.
	b := Classify("Compare the two accounts of the siege", []string{"d1"}, nil)
	if b.IsMultiDocument {
		t.Fatalf("single doc cannot be multi-document: %+v", b)
	}

	c := Classify("When was the treaty signed?", []string{"d1", "d2"}, nil)
	if c.IsMultiDocument {
		t.Fatalf("factual lookup over two docs is not cross-document: %+v", c)
	}
}

func TestIsComplex(t *testing.T) {
	complex := []string{
		"Why did the harvest fail and how did the government respond?",
		"What caused the split between the factions, and what were the long term consequences of it?",
		"Compare both accounts: why do they disagree about the casualty figures?",
	}
	for _, q := range complex {
		if !IsComplex(q) {
			t.Errorf("should be complex: %q", q)
		}
	}

	simple := []string{
		"When was the treaty signed?",
		"Who led the expedition?",
		"Summarize chapter three",
	}
	for _, q := range simple {
		if IsComplex(q) {
			t.Errorf("should be simple: %q", q)
		}
	}
}

func TestKeywords(t *testing.T) {
	kws := Keywords("Why did the Harvest fail in the northern provinces?", 8)
	want := []string{"harvest", "fail", "northern", "provinces"}
	if len(kws) != len(want) {
		t.Fatalf("keywords: %v", kws)
	}
	for i := range want {
		if kws[i] != want[i] {
			t.Fatalf("keyword %d: got %q want %q", i, kws[i], want[i])
		}
	}
}

func TestKeywordsLimitAndDedup(t *testing.T) {
	kws := Keywords("treaty treaty treaty border border rivers", 2)
	if len(kws) != 2 || kws[0] != "treaty" || kws[1] != "border" {
		t.Fatalf("keywords: %v", kws)
	}
}

func TestExpandWithHistory(t *testing.T) {
	history := []string{
		"Tell me about the land reform program",
		"Who administered it in the south?",
	}
	got := expand("And what about the second phase?", history)
	if !strings.Contains(got, "administered") && !strings.Contains(got, "reform") {
		t.Fatalf("expansion should borrow topic words: %q", got)
	}

	if got := expand("standalone question about treaties", nil); got != "standalone question about treaties" {
		t.Fatalf("no history should leave query untouched: %q", got)
	}
}
