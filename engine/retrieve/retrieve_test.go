package retrieve

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/DocentAI/docent-engine/engine/domain"
	"github.com/DocentAI/docent-engine/engine/query"
	"github.com/DocentAI/docent-engine/engine/semantic"
	"github.com/DocentAI/docent-engine/pkg/fn"
)

type fakeStore struct {
	byDoc   map[string][]semantic.SearchResult
	keyword []semantic.SearchResult
}

func (f *fakeStore) Search(_ context.Context, _ []float32, docIDs []string, limit int, threshold float32) []semantic.SearchResult {
	var out []semantic.SearchResult
	for _, id := range docIDs {
		for _, r := range f.byDoc[id] {
			if r.Score >= threshold {
				out = append(out, r)
			}
		}
	}
	fn.SortDesc(out, func(r semantic.SearchResult) float64 { return float64(r.Score) })
	return fn.Top(out, limit)
}

func (f *fakeStore) KeywordSearch(_ context.Context, _ []string, _ []string, limit int) []semantic.SearchResult {
	return fn.Top(f.keyword, limit)
}

func (f *fakeStore) ByPages(_ context.Context, docID string, pages []int) []semantic.SearchResult {
	want := make(map[int]struct{})
	for _, p := range pages {
		want[p] = struct{}{}
	}
	var out []semantic.SearchResult
	for _, r := range f.byDoc[docID] {
		if _, ok := want[r.PageNumber]; ok {
			out = append(out, r)
		}
	}
	return out
}

type fakeEmbed struct{ err error }

func (f *fakeEmbed) Embed(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

// identityReranker returns candidates unchanged, truncated.
type identityReranker struct{}

func (identityReranker) Rerank(_ context.Context, _ string, cands []semantic.SearchResult, topN int) []semantic.SearchResult {
	return fn.Top(cands, topN)
}

type fakePages struct{ n int }

func (f fakePages) Pages(context.Context, string) (int, error) {
	if f.n == 0 {
		return 0, errors.New("unknown document")
	}
	return f.n, nil
}

func corpus(docID string, n int, base float32) []semantic.SearchResult {
	out := make([]semantic.SearchResult, n)
	for i := 0; i < n; i++ {
		out[i] = semantic.SearchResult{
			ID:         fmt.Sprintf("%s-c%d", docID, i),
			Score:      base - float32(i)*0.03,
			Text:       fmt.Sprintf("%s chunk %d discusses a distinct aspect of the subject.", docID, i),
			DocumentID: docID,
			PageNumber: i + 1,
		}
	}
	return out
}

func newTestEngine(store *fakeStore, pages PageCounter) *Engine {
	return NewEngine(store, &fakeEmbed{}, identityReranker{}, pages, DefaultOptions(), nil)
}

func TestComparativeCoversBothDocuments(t *testing.T) {
	store := &fakeStore{byDoc: map[string][]semantic.SearchResult{
		"d1": corpus("d1", 10, 0.85),
		"d2": corpus("d2", 10, 0.60),
	}}
	e := newTestEngine(store, fakePages{n: 20})

	a := query.Classify("Compare the two accounts of the siege", []string{"d1", "d2"}, nil)
	res, err := e.Retrieve(context.Background(), a, "Compare the two accounts of the siege", []string{"d1", "d2"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Strategy != StrategyComparative {
		t.Fatalf("strategy: %s", res.Strategy)
	}
	if len(res.Meta.DocCoverage) != 2 {
		t.Fatalf("both documents must be represented: %+v", res.Meta.DocCoverage)
	}
	seen := make(map[string]struct{})
	for _, c := range res.Chunks {
		if c.DocumentID != "d1" && c.DocumentID != "d2" {
			t.Fatalf("foreign document in result: %s", c.DocumentID)
		}
		if _, dup := seen[c.Text]; dup {
			t.Fatalf("duplicate text: %q", c.Text)
		}
		seen[c.Text] = struct{}{}
	}
}

func TestBalancedEnsureAllDocs(t *testing.T) {
	// d2 sits below the standard threshold but above the fallback floor.
	weak := corpus("d2", 3, 0.22)
	store := &fakeStore{byDoc: map[string][]semantic.SearchResult{
		"d1": corpus("d1", 5, 0.80),
		"d2": weak,
	}}
	e := newTestEngine(store, nil)

	got := e.balanced(context.Background(), []float32{0.1}, []string{"d1", "d2"}, 5, e.opts.Threshold, true)

	var fallback int
	for _, r := range got {
		if r.DocumentID == "d2" {
			if r.Origin != "balanced-fallback" {
				t.Fatalf("forced hit should be tagged, got %q", r.Origin)
			}
			fallback++
		}
	}
	if fallback == 0 {
		t.Fatal("d2 must be force-represented")
	}
}

func TestCrossDocBalanceFloor(t *testing.T) {
	// d1 dominates the global ranking.
	in := append(corpus("d1", 10, 0.90), corpus("d2", 5, 0.40)...)
	fn.SortDesc(in, func(r semantic.SearchResult) float64 { return float64(r.Score) })

	out := crossDocBalance(in, []string{"d1", "d2"}, 2, 8)
	if len(out) != 8 {
		t.Fatalf("size: %d", len(out))
	}
	count := map[string]int{}
	for _, r := range out {
		count[r.DocumentID]++
	}
	if count["d2"] < 2 {
		t.Fatalf("d2 below floor: %+v", count)
	}
}

func TestFactualRaisesThreshold(t *testing.T) {
	store := &fakeStore{byDoc: map[string][]semantic.SearchResult{
		// 0.35 passes the base threshold but not the factual floor (0.40).
		"d1": {
			{ID: "hi", Score: 0.80, Text: "precise fact", DocumentID: "d1", PageNumber: 4},
			{ID: "lo", Score: 0.35, Text: "marginal match", DocumentID: "d1", PageNumber: 20},
		},
	}}
	e := newTestEngine(store, nil)

	got := e.factual(context.Background(), query.Analysis{}, "when", []float32{0.1}, "d1")
	for _, r := range got {
		if r.ID == "lo" && r.Origin == "vector" {
			t.Fatalf("sub-floor vector hit survived: %+v", r)
		}
	}
}

func TestThematicSamplesBands(t *testing.T) {
	docs := corpus("d1", 100, 0.90)
	store := &fakeStore{byDoc: map[string][]semantic.SearchResult{"d1": docs}}
	e := newTestEngine(store, fakePages{n: 100})

	got := e.thematic(context.Background(), "themes", []float32{0.1}, "d1")
	if len(got) == 0 {
		t.Fatal("no results")
	}
	// Structural sampling reaches late pages even though early chunks rank higher.
	late := false
	for _, r := range got {
		if r.PageNumber > 70 {
			late = true
		}
	}
	if !late {
		t.Fatalf("band sampling missing late-document coverage: %+v", got)
	}
}

func TestThematicBoundedByLimit(t *testing.T) {
	// Every band page is dense: ten stored chunks each. Band sampling must
	// not balloon the evidence set past the configured limit.
	var docs []semantic.SearchResult
	for _, p := range bandPages(100) {
		for i := 0; i < 10; i++ {
			docs = append(docs, semantic.SearchResult{
				ID:         fmt.Sprintf("p%d-%d", p, i),
				Score:      0.20 + float32(i)*0.005,
				Text:       fmt.Sprintf("page %d passage %d on a recurring motif.", p, i),
				DocumentID: "d1",
				PageNumber: p,
			})
		}
	}
	docs = append(docs, corpus("d1", 10, 0.90)...)
	store := &fakeStore{byDoc: map[string][]semantic.SearchResult{"d1": docs}}
	e := newTestEngine(store, fakePages{n: 100})

	got := e.thematic(context.Background(), "themes", []float32{0.1}, "d1")
	if len(got) > e.opts.Limit {
		t.Fatalf("result exceeds limit: %d > %d", len(got), e.opts.Limit)
	}
	perPage := map[int]int{}
	for _, r := range got {
		if r.Origin == "band" {
			perPage[r.PageNumber]++
		}
	}
	for p, n := range perPage {
		if n > 2 {
			t.Fatalf("band page %d contributed %d chunks", p, n)
		}
	}
}

func TestRetrieveNoDocuments(t *testing.T) {
	e := newTestEngine(&fakeStore{}, nil)
	_, err := e.Retrieve(context.Background(), query.Analysis{}, "q", nil)
	if !errors.Is(err, domain.ErrNoDocuments) {
		t.Fatalf("err: %v", err)
	}
}

func TestConfidenceSingleDocFloor(t *testing.T) {
	e := newTestEngine(&fakeStore{}, nil)
	chunks := []semantic.SearchResult{
		{Score: 0.32, DocumentID: "d1", Text: "a"},
		{Score: 0.31, DocumentID: "d1", Text: "b"},
		{Score: 0.30, DocumentID: "d1", Text: "c"},
	}
	if got := e.confidence(chunks, []string{"d1"}, StrategyHybrid); got < e.opts.BaselineConfidence {
		t.Fatalf("single-doc confidence below baseline: %v", got)
	}

	if got := e.confidence(nil, []string{"d1"}, StrategyHybrid); got != 0 {
		t.Fatalf("empty evidence confidence: %v", got)
	}
}

func TestConfidenceMultiDocDiscount(t *testing.T) {
	e := newTestEngine(&fakeStore{}, nil)
	chunks := []semantic.SearchResult{
		{Score: 0.8, DocumentID: "d1", Text: "a"},
		{Score: 0.8, DocumentID: "d2", Text: "b"},
	}
	comp := e.confidence(chunks, []string{"d1", "d2"}, StrategyComparative)
	comprehensive := e.confidence(chunks, []string{"d1", "d2"}, StrategyMultiDoc)
	if comprehensive >= comp {
		t.Fatalf("comprehensive mode should be discounted: %v vs %v", comprehensive, comp)
	}
}

func TestNeighborPages(t *testing.T) {
	hits := []semantic.SearchResult{{PageNumber: 1}, {PageNumber: 5}}
	got := neighborPages(hits, 3)
	want := []int{1, 2, 4, 5, 6}
	if len(got) != len(want) {
		t.Fatalf("pages: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pages: %v", got)
		}
	}
}

func TestBandPages(t *testing.T) {
	got := bandPages(100)
	if len(got) != 5 {
		t.Fatalf("bands: %v", got)
	}
	if got[0] >= got[4] {
		t.Fatalf("bands not spread: %v", got)
	}

	// Tiny documents collapse to fewer distinct pages.
	if tiny := bandPages(2); len(tiny) > 2 {
		t.Fatalf("tiny doc bands: %v", tiny)
	}
}

func TestDiversitySample(t *testing.T) {
	primary := []semantic.SearchResult{{PageNumber: 1}}
	pool := []semantic.SearchResult{
		{ID: "a", PageNumber: 1},
		{ID: "b", PageNumber: 2},
		{ID: "c", PageNumber: 2},
		{ID: "d", PageNumber: 3},
	}
	got := diversitySample(pool, primary, 5)
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "d" {
		t.Fatalf("sample: %+v", got)
	}
}

func TestDedupeByTextKeepsBestScore(t *testing.T) {
	in := []semantic.SearchResult{
		{ID: "low", Text: "same", Score: 0.3},
		{ID: "high", Text: "same", Score: 0.9},
		{ID: "other", Text: "different", Score: 0.5},
	}
	out := dedupeByText(in)
	if len(out) != 2 || out[0].ID != "high" {
		t.Fatalf("dedupe: %+v", out)
	}
}
