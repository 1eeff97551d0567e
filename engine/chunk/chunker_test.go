package chunk

import (
	"fmt"
	"strings"
	"testing"
)

const para = "The expedition departed in early spring, following the river north. " +
	"Supplies were scarce and the crew argued about rationing almost daily. " +
	"By the third week the map had proven useless and they navigated by the stars."

func TestSplitPageAcceptsSubstantiveParagraph(t *testing.T) {
	s := NewSplitter(DefaultOptions())
	frags := s.SplitPage(para, 3)
	if len(frags) != 1 {
		t.Fatalf("fragments: %d", len(frags))
	}
	if frags[0].PageNumber != 3 {
		t.Fatalf("page: %d", frags[0].PageNumber)
	}
	if frags[0].Uniqueness != 1.0 {
		t.Fatalf("first fragment should be fully unique, got %v", frags[0].Uniqueness)
	}
}

func TestSplitPageRejectsLowInformation(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"page number", "42"},
		{"divider", "--- 17 ---"},
		{"bare heading", "3.1 METHODS AND MATERIALS"},
		{"too short", "A tiny line."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSplitter(DefaultOptions())
			if frags := s.SplitPage(tt.text, 1); len(frags) != 0 {
				t.Fatalf("should reject %q, got %+v", tt.text, frags)
			}
			if s.Rejected() != 1 {
				t.Fatalf("rejected count: %d", s.Rejected())
			}
		})
	}
}

func TestSplitPageRejectsNearDuplicate(t *testing.T) {
	s := NewSplitter(DefaultOptions())
	first := s.SplitPage(para, 1)
	if len(first) != 1 {
		t.Fatal("setup")
	}
	// Same text again on a later page: near-duplicate.
	again := s.SplitPage(para, 9)
	if len(again) != 0 {
		t.Fatalf("duplicate should be rejected, got %+v", again)
	}
}

func TestLongParagraphRegroupedWithOverlap(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&b, "Chapter %d describes event%d at location%d with witness%d recalling incident%d in detail. ", i, i, i, i, i)
	}
	opts := DefaultOptions()
	opts.TargetSize = 400
	s := NewSplitter(opts)

	frags := s.SplitPage(b.String(), 1)
	if len(frags) < 2 {
		t.Fatalf("long paragraph should produce several chunks, got %d", len(frags))
	}
	for _, f := range frags {
		// Regrouped chunks respect the target size plus one sentence of slack.
		if len(f.Text) > opts.TargetSize+200 {
			t.Fatalf("chunk too large: %d chars", len(f.Text))
		}
	}
	// Overlap: the second chunk starts with the tail sentences of the first.
	firstSentences := splitSentences(frags[0].Text)
	tail := firstSentences[len(firstSentences)-1]
	if !strings.Contains(frags[1].Text, tail) {
		t.Fatalf("second chunk should carry overlap sentence %q", tail)
	}
}

func TestSplitIsIdempotent(t *testing.T) {
	text := para + "\n\n" + "A second paragraph continues the account of the journey. " +
		"They reached the delta at dusk and made camp beneath the cliffs, exhausted but alive."

	a := NewSplitter(DefaultOptions()).SplitPage(text, 1)
	b := NewSplitter(DefaultOptions()).SplitPage(text, 1)
	if len(a) != len(b) {
		t.Fatalf("boundary counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Text != b[i].Text {
			t.Fatalf("boundary %d differs", i)
		}
	}
}

func TestSplitParagraphs(t *testing.T) {
	out := splitParagraphs("one\n\ntwo\r\n\r\nthree\n")
	if len(out) != 3 || out[1] != "two" {
		t.Fatalf("paragraphs: %v", out)
	}
}

func TestJaccard(t *testing.T) {
	a := tokenSet("the quick brown fox")
	b := tokenSet("the quick brown fox")
	if j := jaccard(a, b); j != 1 {
		t.Fatalf("identical sets: %v", j)
	}
	c := tokenSet("entirely different words here")
	if j := jaccard(a, c); j != 0 {
		t.Fatalf("disjoint sets: %v", j)
	}
	if j := jaccard(nil, a); j != 0 {
		t.Fatalf("empty set: %v", j)
	}
}
