package retrieve

import (
	"context"
	"sort"

	"github.com/DocentAI/docent-engine/engine/query"
	"github.com/DocentAI/docent-engine/engine/semantic"
	"github.com/DocentAI/docent-engine/pkg/fn"
)

// narrative seeds with early-document context, adds vector hits, expands to
// page-adjacent neighbors of the top hits, and corroborates with keyword
// matches. Sequential context matters more than raw similarity here.
func (e *Engine) narrative(ctx context.Context, a query.Analysis, text string, emb []float32, docID string) []semantic.SearchResult {
	early := e.store.ByPages(ctx, docID, []int{1, 2, 3})
	for i := range early {
		early[i].Origin = "early"
	}

	hits := e.store.Search(ctx, emb, []string{docID}, e.opts.Limit, e.opts.Threshold)

	adjacent := e.store.ByPages(ctx, docID, neighborPages(hits, 3))

	var kw []semantic.SearchResult
	if len(a.Keywords) > 0 {
		kw = e.store.KeywordSearch(ctx, []string{docID}, a.Keywords, e.opts.Limit/2)
	}

	merged := dedupeByText(concat(early, hits, adjacent, kw))
	return e.rerank.Rerank(ctx, text, merged, min(len(merged), e.opts.Limit))
}

// analytical buckets candidates by page region and keeps the top few per
// bucket, so the answer isn't assembled from one redundant region. Very high
// similarity hits bypass the bucket cap.
func (e *Engine) analytical(ctx context.Context, text string, emb []float32, docID string) []semantic.SearchResult {
	candidates := e.store.Search(ctx, emb, []string{docID}, e.opts.Limit*e.opts.CandidateFactor, e.opts.Threshold)

	buckets := fn.GroupBy(candidates, func(r semantic.SearchResult) int { return r.PageNumber / 10 })

	var kept []semantic.SearchResult
	for _, group := range buckets {
		fn.SortDesc(group, func(r semantic.SearchResult) float64 { return float64(r.Score) })
		kept = append(kept, fn.Top(group, 2)...)
	}
	kept = append(kept, fn.Filter(candidates, func(c semantic.SearchResult) bool {
		return c.Score >= e.opts.HighSimilarity
	})...)

	merged := dedupeByText(kept)
	return e.rerank.Rerank(ctx, text, merged, min(len(merged), e.opts.Limit))
}

// factual raises the similarity floor, corroborates with exact keyword
// matches, and pulls page-adjacent supporting chunks around the top hits.
func (e *Engine) factual(ctx context.Context, a query.Analysis, text string, emb []float32, docID string) []semantic.SearchResult {
	hits := e.store.Search(ctx, emb, []string{docID}, e.opts.Limit, e.opts.Threshold+e.opts.FactualRaise)

	var kw []semantic.SearchResult
	if len(a.Keywords) > 0 {
		kw = e.store.KeywordSearch(ctx, []string{docID}, a.Keywords, e.opts.Limit/2)
	}

	supporting := e.store.ByPages(ctx, docID, neighborPages(hits, 3))

	merged := dedupeByText(concat(hits, kw, supporting))
	return e.rerank.Rerank(ctx, text, merged, min(len(merged), e.opts.Limit))
}

// thematic samples structurally across the document by page percentile bands
// in addition to vector hits, guaranteeing whole-document coverage.
func (e *Engine) thematic(ctx context.Context, text string, emb []float32, docID string) []semantic.SearchResult {
	hits := e.store.Search(ctx, emb, []string{docID}, e.opts.Limit, e.opts.Threshold)

	var band []semantic.SearchResult
	if e.pages != nil {
		if total, err := e.pages.Pages(ctx, docID); err == nil && total > 0 {
			// Keep only the best couple of chunks per band page; a dense page
			// must not crowd out the rest of the evidence set.
			sampled := fn.GroupBy(e.store.ByPages(ctx, docID, bandPages(total)),
				func(r semantic.SearchResult) int { return r.PageNumber })
			for _, group := range sampled {
				fn.SortDesc(group, func(r semantic.SearchResult) float64 { return float64(r.Score) })
				band = append(band, fn.Top(group, 2)...)
			}
			for i := range band {
				band[i].Origin = "band"
			}
		} else if err != nil {
			e.logger.Warn("retrieve: page count unavailable, skipping structural sampling", "doc", docID, "err", err)
		}
	}

	// Band samples are seeded first regardless of score, so ranked truncation
	// cannot erase structural coverage.
	final := dedupeByText(band)
	seen := make(map[string]struct{}, len(final))
	for _, r := range final {
		seen[r.Text] = struct{}{}
	}
	ranked := e.rerank.Rerank(ctx, text, dedupeByText(hits), min(len(hits), e.opts.Limit))
	for _, r := range ranked {
		if len(final) >= e.opts.Limit {
			break
		}
		if _, dup := seen[r.Text]; dup {
			continue
		}
		seen[r.Text] = struct{}{}
		final = append(final, r)
	}
	fn.SortDesc(final, func(r semantic.SearchResult) float64 { return float64(r.Score) })
	return fn.Top(final, e.opts.Limit)
}

// hybrid is the default: vector hits, keyword hits, and one round of page
// diversity sampling from the wider candidate pool.
func (e *Engine) hybrid(ctx context.Context, a query.Analysis, text string, emb []float32, docID string) []semantic.SearchResult {
	hits := e.store.Search(ctx, emb, []string{docID}, e.opts.Limit, e.opts.Threshold)

	var kw []semantic.SearchResult
	if len(a.Keywords) > 0 {
		kw = e.store.KeywordSearch(ctx, []string{docID}, a.Keywords, e.opts.Limit/2)
	}

	pool := e.store.Search(ctx, emb, []string{docID}, e.opts.Limit*e.opts.CandidateFactor, e.opts.Threshold)
	diverse := diversitySample(pool, hits, e.opts.Limit/3)

	merged := dedupeByText(concat(hits, kw, diverse))
	return e.rerank.Rerank(ctx, text, merged, min(len(merged), e.opts.Limit))
}

// neighborPages returns the deduplicated ±1 page neighborhood of the top n
// hits, sorted ascending.
func neighborPages(hits []semantic.SearchResult, n int) []int {
	seen := make(map[int]struct{})
	for _, h := range fn.Top(hits, n) {
		for _, p := range []int{h.PageNumber - 1, h.PageNumber, h.PageNumber + 1} {
			if p >= 1 {
				seen[p] = struct{}{}
			}
		}
	}
	pages := make([]int, 0, len(seen))
	for p := range seen {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}

// bandPages picks one representative page per structural band:
// introduction, early, core, late, conclusion.
func bandPages(total int) []int {
	percentiles := []float64{0.05, 0.22, 0.50, 0.78, 0.95}
	seen := make(map[int]struct{})
	var pages []int
	for _, pct := range percentiles {
		p := int(float64(total)*pct) + 1
		if p > total {
			p = total
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		pages = append(pages, p)
	}
	return pages
}

// diversitySample picks up to n pool chunks from pages not already covered
// by the primary hits, one per page.
func diversitySample(pool, primary []semantic.SearchResult, n int) []semantic.SearchResult {
	covered := make(map[int]struct{})
	for _, h := range primary {
		covered[h.PageNumber] = struct{}{}
	}
	var out []semantic.SearchResult
	for _, c := range pool {
		if len(out) == n {
			break
		}
		if _, ok := covered[c.PageNumber]; ok {
			continue
		}
		covered[c.PageNumber] = struct{}{}
		out = append(out, c)
	}
	return out
}

func concat(groups ...[]semantic.SearchResult) []semantic.SearchResult {
	var out []semantic.SearchResult
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
