package chunk

import (
	"regexp"
	"strings"

	"github.com/DocentAI/docent-engine/engine/domain"
)

// numericOnly matches fragments that are purely numbers, dashes, dots and
// whitespace: page numbers, dividers, table scraps.
var numericOnly = regexp.MustCompile(`^[\d\s\.\-–—_/%,:]+$`)

// headingLike matches short all-caps or numbered section headings.
var headingLike = regexp.MustCompile(`^(\d+(\.\d+)*\s+)?[A-Z][A-Z\s\d\.\-:]{0,60}$`)

// Substantive reports whether a candidate fragment carries enough
// information to be worth embedding.
func Substantive(text string, opts Options) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < opts.MinChars {
		return false
	}
	words := strings.Fields(trimmed)
	if len(words) < opts.MinWords {
		return false
	}
	if len(splitSentences(trimmed)) < opts.MinSentences {
		return false
	}
	if numericOnly.MatchString(trimmed) {
		return false
	}
	if headingLike.MatchString(trimmed) {
		return false
	}
	return true
}

// tokenSet lowercases and tokenizes text into a set of words.
func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, `.,;:!?"'()[]{}`)
		if len(w) > 1 {
			set[w] = struct{}{}
		}
	}
	return set
}

// jaccard computes token-set overlap in [0,1].
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// overlapTracker scores candidates against already accepted token sets.
// Built and discarded per document; never shared across calls.
type overlapTracker struct {
	accepted []map[string]struct{}
}

func newOverlapTracker() *overlapTracker { return &overlapTracker{} }

// uniqueness returns 1 - max Jaccard overlap with accepted fragments.
func (t *overlapTracker) uniqueness(tokens map[string]struct{}) float64 {
	best := 0.0
	for _, prev := range t.accepted {
		if j := jaccard(tokens, prev); j > best {
			best = j
		}
	}
	return 1 - best
}

func (t *overlapTracker) accept(tokens map[string]struct{}) {
	t.accepted = append(t.accepted, tokens)
}

// SelectDuplicates runs the cleanup pass over an existing corpus: it returns
// the ids of chunks whose uniqueness against earlier chunks falls below the
// threshold. Earlier chunks win; later near-duplicates are selected for
// pruning.
func SelectDuplicates(chunks []domain.Chunk, threshold float64) []string {
	tracker := newOverlapTracker()
	var prune []string
	for _, c := range chunks {
		tokens := tokenSet(c.Text)
		if tracker.uniqueness(tokens) < threshold {
			prune = append(prune, c.ID)
			continue
		}
		tracker.accept(tokens)
	}
	return prune
}
