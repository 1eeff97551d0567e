package retrieve

import (
	"context"

	"github.com/DocentAI/docent-engine/engine/query"
	"github.com/DocentAI/docent-engine/engine/semantic"
	"github.com/DocentAI/docent-engine/pkg/fn"
)

// balanced queries each document independently with an equal quota, then
// merges and sorts globally. With ensureAllDocs set, any document missing
// from the merged set is force-queried again at the fallback threshold so no
// selected document is silently dropped.
func (e *Engine) balanced(ctx context.Context, emb []float32, docIDs []string, quota int, threshold float32, ensureAllDocs bool) []semantic.SearchResult {
	perDoc := fn.ParMapResult(docIDs, e.opts.Workers, func(id string) fn.Result[[]semantic.SearchResult] {
		return fn.Ok(e.store.Search(ctx, emb, []string{id}, quota, threshold))
	})
	groups, _ := fn.Collect(perDoc).Unwrap()

	var merged []semantic.SearchResult
	covered := make(map[string]struct{})
	for _, group := range groups {
		for _, hit := range group {
			merged = append(merged, hit)
			covered[hit.DocumentID] = struct{}{}
		}
	}

	if ensureAllDocs {
		for _, id := range docIDs {
			if _, ok := covered[id]; ok {
				continue
			}
			forced := e.store.Search(ctx, emb, []string{id}, e.opts.CrossDocFloor, e.opts.FallbackThreshold)
			for i := range forced {
				forced[i].Origin = "balanced-fallback"
			}
			if len(forced) == 0 {
				e.logger.Warn("retrieve: document has no chunks above fallback threshold", "doc", id)
				continue
			}
			merged = append(merged, forced...)
		}
	}

	return fn.SortDesc(merged, func(r semantic.SearchResult) float64 { return float64(r.Score) })
}

// crossDocBalance truncates to limit while guaranteeing a floor count per
// represented document: floor slots are filled first in input order (which
// encodes rank), then remaining slots by global rank.
func crossDocBalance(in []semantic.SearchResult, docIDs []string, floor, limit int) []semantic.SearchResult {
	if len(in) <= limit {
		return in
	}

	taken := make(map[int]struct{}, limit)
	perDoc := make(map[string]int, len(docIDs))
	out := make([]semantic.SearchResult, 0, limit)

	for i, r := range in {
		if len(out) == limit {
			break
		}
		if perDoc[r.DocumentID] < floor {
			perDoc[r.DocumentID]++
			taken[i] = struct{}{}
			out = append(out, r)
		}
	}
	for i, r := range in {
		if len(out) == limit {
			break
		}
		if _, ok := taken[i]; ok {
			continue
		}
		out = append(out, r)
	}

	return fn.SortDesc(out, func(r semantic.SearchResult) float64 { return float64(r.Score) })
}

// comparative serves multi-document comparison questions: balanced retrieval
// enriched with each document's highest-similarity chunks, reranked, then
// cross-document balance re-enforced on the final set.
func (e *Engine) comparative(ctx context.Context, text string, emb []float32, docIDs []string) []semantic.SearchResult {
	base := e.balanced(ctx, emb, docIDs, e.opts.Limit, e.opts.Threshold, true)

	// Each document's strongest chunks, fetched concurrently.
	tops := fn.FanOut(fn.Map(docIDs, func(id string) func() []semantic.SearchResult {
		return func() []semantic.SearchResult {
			return e.store.Search(ctx, emb, []string{id}, 3, e.opts.HighSimilarity)
		}
	})...)
	for _, top := range tops {
		base = append(base, top...)
	}

	candidates := dedupeByText(base)
	reranked := e.rerank.Rerank(ctx, text, candidates, min(len(candidates), e.opts.Limit*2))
	return crossDocBalance(reranked, docIDs, e.opts.CrossDocFloor, e.opts.Limit)
}

// multiDocComprehensive serves cross-document questions that are not
// comparisons: balanced retrieval, enhanced per query type, reranked.
func (e *Engine) multiDocComprehensive(ctx context.Context, a query.Analysis, text string, emb []float32, docIDs []string) []semantic.SearchResult {
	base := e.balanced(ctx, emb, docIDs, e.opts.Limit, e.opts.Threshold, true)

	if len(a.Keywords) > 0 {
		kw := e.store.KeywordSearch(ctx, docIDs, a.Keywords, e.opts.Limit/2)
		base = append(base, kw...)
	}

	candidates := dedupeByText(base)
	reranked := e.rerank.Rerank(ctx, text, candidates, min(len(candidates), e.opts.Limit*2))
	return crossDocBalance(reranked, docIDs, e.opts.CrossDocFloor, e.opts.Limit)
}
