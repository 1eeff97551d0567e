// Package retrieve selects and executes a retrieval procedure per classified
// query: balanced multi-document modes for comparative and cross-document
// questions, and five single-document procedures keyed by query type.
package retrieve

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/DocentAI/docent-engine/engine/domain"
	"github.com/DocentAI/docent-engine/engine/query"
	"github.com/DocentAI/docent-engine/engine/semantic"
	"github.com/DocentAI/docent-engine/pkg/fn"
)

// Strategy labels the retrieval procedure that produced a result.
type Strategy string

const (
	StrategyComparative Strategy = "comparative_balanced_enhanced"
	StrategyMultiDoc    Strategy = "multi_document_comprehensive"
	StrategyNarrative   Strategy = "narrative_contextual"
	StrategyAnalytical  Strategy = "analytical_diverse"
	StrategyFactual     Strategy = "factual_precise"
	StrategyThematic    Strategy = "thematic_structural"
	StrategyHybrid      Strategy = "hybrid_default"
)

// Searcher is the slice of the vector store the dispatcher needs.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, docIDs []string, limit int, threshold float32) []semantic.SearchResult
	KeywordSearch(ctx context.Context, docIDs []string, keywords []string, limit int) []semantic.SearchResult
	ByPages(ctx context.Context, docID string, pages []int) []semantic.SearchResult
}

// Embedder turns query text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Reranker reorders candidates by relevance to the literal query. It must
// never fail: on any internal error it returns the input order truncated.
type Reranker interface {
	Rerank(ctx context.Context, queryText string, candidates []semantic.SearchResult, topN int) []semantic.SearchResult
}

// PageCounter supplies document page counts for structural sampling.
type PageCounter interface {
	Pages(ctx context.Context, docID string) (int, error)
}

// Options holds the tunable retrieval constants. The thresholds are
// empirically chosen; treat them as configuration, not semantics.
type Options struct {
	Limit              int     // final evidence set size
	CandidateFactor    int     // candidate pool multiplier before shaping
	Threshold          float32 // store-level similarity floor
	FallbackThreshold  float32 // forced per-document re-query floor
	HighSimilarity     float32 // bucket-exempt bar for analytical mode
	FactualRaise       float32 // added to Threshold in factual mode
	CrossDocFloor      int     // min chunks per document in balanced sets
	BaselineConfidence float64 // single-document confidence floor
	MultiDocDiscount   float64 // comprehensive-mode confidence discount
	Workers            int     // per-document fan-out bound
}

func DefaultOptions() Options {
	return Options{
		Limit:              12,
		CandidateFactor:    3,
		Threshold:          semantic.DefaultThreshold,
		FallbackThreshold:  0.15,
		HighSimilarity:     0.72,
		FactualRaise:       0.10,
		CrossDocFloor:      2,
		BaselineConfidence: 0.60,
		MultiDocDiscount:   0.85,
		Workers:            4,
	}
}

// Meta carries diagnostics about how a result was assembled.
type Meta struct {
	TotalCandidates int            `json:"total_candidates"`
	UniquePages     int            `json:"unique_pages"`
	DocCoverage     map[string]int `json:"doc_coverage"`
	QualityScore    float64        `json:"quality_score"`
}

// Result is the evidence set for one query. Transient; never persisted.
type Result struct {
	Chunks     []semantic.SearchResult `json:"chunks"`
	Strategy   Strategy                `json:"strategy"`
	Confidence float64                 `json:"confidence"`
	Meta       Meta                    `json:"metadata"`
}

// Engine dispatches queries to retrieval procedures.
type Engine struct {
	store  Searcher
	embed  Embedder
	rerank Reranker
	pages  PageCounter
	opts   Options
	logger *slog.Logger
}

func NewEngine(store Searcher, embed Embedder, rerank Reranker, pages PageCounter, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Limit <= 0 {
		opts = DefaultOptions()
	}
	return &Engine{store: store, embed: embed, rerank: rerank, pages: pages, opts: opts, logger: logger}
}

// Retrieve runs the procedure selected by the query analysis and returns the
// shaped evidence set. The only hard failure is query embedding; vector store
// errors surface as empty results handled by each procedure.
func (e *Engine) Retrieve(ctx context.Context, a query.Analysis, text string, docIDs []string) (Result, error) {
	if len(docIDs) == 0 {
		return Result{}, fmt.Errorf("retrieve: %w", domain.ErrNoDocuments)
	}

	queryText := text
	if a.ExpandedQuery != "" {
		queryText = a.ExpandedQuery
	}
	emb, err := e.embed.Embed(ctx, queryText)
	if err != nil {
		return Result{}, fmt.Errorf("retrieve: embed query: %w", err)
	}

	var (
		chunks   []semantic.SearchResult
		strategy Strategy
	)
	switch {
	case a.IsMultiDocument && a.IsComparative:
		strategy = StrategyComparative
		chunks = e.comparative(ctx, text, emb, docIDs)
	case a.IsMultiDocument:
		strategy = StrategyMultiDoc
		chunks = e.multiDocComprehensive(ctx, a, text, emb, docIDs)
	default:
		strategy, chunks = e.singleDocument(ctx, a, text, emb, docIDs[0])
	}

	res := Result{
		Chunks:   chunks,
		Strategy: strategy,
		Meta:     buildMeta(chunks),
	}
	res.Confidence = e.confidence(chunks, docIDs, strategy)
	e.logger.Debug("retrieve: done",
		"strategy", strategy, "chunks", len(chunks), "confidence", res.Confidence)
	return res, nil
}

func (e *Engine) singleDocument(ctx context.Context, a query.Analysis, text string, emb []float32, docID string) (Strategy, []semantic.SearchResult) {
	switch a.Type {
	case query.TypeNarrative:
		return StrategyNarrative, e.narrative(ctx, a, text, emb, docID)
	case query.TypeAnalytical:
		return StrategyAnalytical, e.analytical(ctx, text, emb, docID)
	case query.TypeFactual:
		return StrategyFactual, e.factual(ctx, a, text, emb, docID)
	case query.TypeThematic:
		return StrategyThematic, e.thematic(ctx, text, emb, docID)
	default:
		return StrategyHybrid, e.hybrid(ctx, a, text, emb, docID)
	}
}

// confidence combines coverage ratio and mean similarity of the leading
// results. Single-document results floor at a baseline once minimal evidence
// volume is present; comprehensive multi-document results are discounted.
func (e *Engine) confidence(chunks []semantic.SearchResult, docIDs []string, strategy Strategy) float64 {
	if len(chunks) == 0 {
		return 0
	}
	covered := make(map[string]struct{})
	for _, c := range chunks {
		covered[c.DocumentID] = struct{}{}
	}
	coverage := float64(len(covered)) / float64(len(docIDs))

	top := fn.Top(chunks, 5)
	var sum float64
	for _, c := range top {
		sum += float64(c.Score)
	}
	avg := sum / float64(len(top))

	conf := 0.5*coverage + 0.5*avg
	if len(docIDs) == 1 && len(chunks) >= 3 && conf < e.opts.BaselineConfidence {
		conf = e.opts.BaselineConfidence
	}
	if strategy == StrategyMultiDoc {
		conf *= e.opts.MultiDocDiscount
	}
	if conf > 1 {
		conf = 1
	}
	return conf
}

// buildMeta derives coverage diagnostics from the final chunk set.
func buildMeta(chunks []semantic.SearchResult) Meta {
	coverage := make(map[string]int)
	pages := make(map[int]struct{})
	var sum float64
	for _, c := range chunks {
		coverage[c.DocumentID]++
		pages[c.PageNumber] = struct{}{}
		sum += float64(c.Score)
	}
	quality := 0.0
	if len(chunks) > 0 {
		quality = sum / float64(len(chunks))
	}
	return Meta{
		TotalCandidates: len(chunks),
		UniquePages:     len(pages),
		DocCoverage:     coverage,
		QualityScore:    quality,
	}
}

// dedupeByText collapses text-identical chunks keeping the best score. The
// map is built and discarded per call; nothing is shared across queries.
func dedupeByText(in []semantic.SearchResult) []semantic.SearchResult {
	sorted := fn.SortDesc(in, func(r semantic.SearchResult) float64 { return float64(r.Score) })
	return fn.UniqueBy(sorted, func(r semantic.SearchResult) string { return r.Text })
}
