package chunk

import (
	"testing"

	"github.com/DocentAI/docent-engine/engine/domain"
)

func TestSubstantive(t *testing.T) {
	opts := DefaultOptions()
	good := "The committee reviewed the proposal at length before voting, and the " +
		"minutes record a long disagreement about funding priorities for the coming year."
	if !Substantive(good, opts) {
		t.Fatal("substantive paragraph rejected")
	}
	if Substantive("1999 — 2004 / 45%", opts) {
		t.Fatal("numeric fragment accepted")
	}
	if Substantive("CHAPTER SEVEN: THE RECKONING", opts) {
		t.Fatal("heading accepted")
	}
}

func TestSelectDuplicates(t *testing.T) {
	text := "The treaty was signed in the autumn after months of negotiation between the delegations."
	other := "Completely unrelated material describing agricultural yields across the southern provinces instead."
	chunks := []domain.Chunk{
		{ID: "c1", Text: text},
		{ID: "c2", Text: other},
		{ID: "c3", Text: text}, // exact duplicate of c1
	}

	prune := SelectDuplicates(chunks, 0.30)
	if len(prune) != 1 || prune[0] != "c3" {
		t.Fatalf("prune: %v", prune)
	}
}

func TestSelectDuplicatesEmpty(t *testing.T) {
	if got := SelectDuplicates(nil, 0.3); got != nil {
		t.Fatalf("nil corpus: %v", got)
	}
}
