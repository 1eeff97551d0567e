// Package chunk splits normalized document text into semantically coherent
// units and filters out low-information fragments before embedding.
package chunk

import (
	"strings"
	"unicode"
)

// Options controls chunk boundaries and the quality filter.
type Options struct {
	// TargetSize is the preferred chunk size in characters. Paragraphs
	// longer than this are re-split on sentence boundaries and regrouped.
	TargetSize int
	// OverlapSentences is how many trailing sentences of a finished chunk
	// seed the next one, preserving context across the boundary.
	OverlapSentences int
	// Quality filter minimums.
	MinChars     int
	MinWords     int
	MinSentences int
	// UniquenessThreshold marks chunks below this uniqueness score as
	// near-duplicates of already accepted material.
	UniquenessThreshold float64
}

// DefaultOptions returns the tuned defaults.
func DefaultOptions() Options {
	return Options{
		TargetSize:          1200,
		OverlapSentences:    2,
		MinChars:            80,
		MinWords:            12,
		MinSentences:        1,
		UniquenessThreshold: 0.30,
	}
}

// Fragment is an accepted span of page text, not yet embedded.
type Fragment struct {
	Text       string
	PageNumber int
	// Uniqueness is 1 minus the highest token-set overlap with previously
	// accepted fragments of the same document.
	Uniqueness float64
}

// Splitter produces fragments from page text. One Splitter serves one
// document; it tracks accepted fragments for uniqueness scoring and must not
// be shared between documents.
type Splitter struct {
	opts  Options
	dedup *overlapTracker
	// rejected counts fragments dropped by the quality filter.
	rejected int
}

// NewSplitter creates a Splitter with the given options.
func NewSplitter(opts Options) *Splitter {
	if opts.TargetSize <= 0 {
		opts = DefaultOptions()
	}
	return &Splitter{opts: opts, dedup: newOverlapTracker()}
}

// Rejected returns how many candidate fragments the quality filter dropped.
func (s *Splitter) Rejected() int { return s.rejected }

// SplitPage splits one page of normalized text into accepted fragments.
// Splitting is deterministic: the same input always yields the same
// boundaries.
func (s *Splitter) SplitPage(text string, page int) []Fragment {
	var out []Fragment
	for _, candidate := range s.boundaries(text) {
		if !Substantive(candidate, s.opts) {
			s.rejected++
			continue
		}
		uniq := s.dedup.uniqueness(tokenSet(candidate))
		if uniq < s.opts.UniquenessThreshold {
			s.rejected++
			continue
		}
		s.dedup.accept(tokenSet(candidate))
		out = append(out, Fragment{Text: candidate, PageNumber: page, Uniqueness: uniq})
	}
	return out
}

// boundaries computes raw chunk texts: paragraph splits, with over-length
// paragraphs regrouped from sentences up to TargetSize with sentence overlap.
func (s *Splitter) boundaries(text string) []string {
	var out []string
	for _, para := range splitParagraphs(text) {
		if len(para) <= s.opts.TargetSize {
			out = append(out, para)
			continue
		}
		out = append(out, s.regroup(splitSentences(para))...)
	}
	return out
}

// regroup packs sentences into chunks of up to TargetSize characters,
// carrying OverlapSentences trailing sentences into the next chunk.
func (s *Splitter) regroup(sentences []string) []string {
	if len(sentences) == 0 {
		return nil
	}

	var out []string
	start := 0
	for start < len(sentences) {
		var b strings.Builder
		end := start
		for end < len(sentences) {
			if b.Len() > 0 && b.Len()+len(sentences[end])+1 > s.opts.TargetSize {
				break
			}
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(sentences[end])
			end++
		}
		out = append(out, b.String())
		if end >= len(sentences) {
			break
		}
		next := end - s.opts.OverlapSentences
		if next <= start {
			next = end // ensure forward progress
		}
		start = next
	}
	return out
}

// splitParagraphs splits on blank lines, trimming each paragraph.
func splitParagraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitSentences splits text into sentences using punctuation and newlines.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for i, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			if r == '\n' || i == len(text)-1 || (i+1 < len(text) && unicode.IsSpace(rune(text[i+1]))) {
				s := strings.TrimSpace(current.String())
				if s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
			}
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
