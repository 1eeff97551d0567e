// Package rerank reorders a candidate evidence set by relevance to the
// literal query using a generative call. It is strictly best-effort: any
// failure falls back to the original similarity order.
package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/DocentAI/docent-engine/engine/semantic"
	"github.com/DocentAI/docent-engine/pkg/fn"
)

// Generator produces text from a prompt, reporting which model served it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (text string, model string, err error)
}

// Reranker asks a generator for a relevance ordering over candidates.
type Reranker struct {
	gen    Generator
	logger *slog.Logger
}

func New(gen Generator, logger *slog.Logger) *Reranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{gen: gen, logger: logger}
}

// maxSnippet bounds per-candidate prompt size.
const maxSnippet = 300

// Rerank returns up to topN candidates reordered by the generator's
// judgment. On call failure or unparseable output it returns the input
// order truncated; reranking never fails the surrounding retrieval.
func (r *Reranker) Rerank(ctx context.Context, queryText string, candidates []semantic.SearchResult, topN int) []semantic.SearchResult {
	if topN <= 0 {
		return nil
	}
	if len(candidates) <= 1 {
		return fn.Top(candidates, topN)
	}

	text, model, err := r.gen.Generate(ctx, buildPrompt(queryText, candidates, topN))
	if err != nil {
		r.logger.Warn("rerank: generation failed, keeping original order", "err", err)
		return fn.Top(candidates, topN)
	}

	indices := parseIndices(text)
	ordered := make([]semantic.SearchResult, 0, topN)
	seen := make(map[int]struct{}, topN)
	for _, i := range indices {
		if i < 0 || i >= len(candidates) {
			continue
		}
		if _, dup := seen[i]; dup {
			continue
		}
		seen[i] = struct{}{}
		ordered = append(ordered, candidates[i])
		if len(ordered) == topN {
			break
		}
	}
	if len(ordered) == 0 {
		r.logger.Warn("rerank: no usable indices in response, keeping original order", "model", model)
		return fn.Top(candidates, topN)
	}

	// Backfill remaining slots in original order so a partial ordering
	// doesn't shrink the evidence set.
	for i := range candidates {
		if len(ordered) == topN {
			break
		}
		if _, ok := seen[i]; ok {
			continue
		}
		ordered = append(ordered, candidates[i])
	}
	return ordered
}

func buildPrompt(queryText string, candidates []semantic.SearchResult, topN int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rank the following passages by relevance to the question.\n\nQuestion: %s\n\nPassages:\n", queryText)
	for i, c := range candidates {
		snippet := truncateSnippet(c.Text)
		fmt.Fprintf(&b, "[%d] (page %d, similarity %.2f) %s\n", i, c.PageNumber, c.Score, snippet)
	}
	fmt.Fprintf(&b, "\nReturn ONLY a JSON array of the %d most relevant passage indices, most relevant first. Example: [2,0,5]\n", topN)
	return b.String()
}

// truncateSnippet bounds text to maxSnippet bytes, cutting on a rune
// boundary so the prompt never carries a split multi-byte character.
func truncateSnippet(text string) string {
	if len(text) <= maxSnippet {
		return text
	}
	cut := maxSnippet
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

var (
	fencedRe  = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	bracketRe = regexp.MustCompile(`\[[\d,\s\[\]]*\d[\d,\s\[\]]*\]`)
)

// parseIndices tries, in order: direct JSON parse, a fenced code block, and
// the first bracketed numeric array in the text. Nested arrays are flattened.
func parseIndices(raw string) []int {
	candidates := []string{strings.TrimSpace(raw)}
	if m := fencedRe.FindStringSubmatch(raw); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if m := bracketRe.FindString(raw); m != "" {
		candidates = append(candidates, m)
	}

	for _, c := range candidates {
		var v any
		if err := json.Unmarshal([]byte(c), &v); err != nil {
			continue
		}
		if idx := flatten(v); len(idx) > 0 {
			return idx
		}
	}
	return nil
}

func flatten(v any) []int {
	switch t := v.(type) {
	case float64:
		return []int{int(t)}
	case []any:
		var out []int
		for _, e := range t {
			out = append(out, flatten(e)...)
		}
		return out
	default:
		return nil
	}
}
