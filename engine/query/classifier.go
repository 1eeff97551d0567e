// Package query classifies questions before retrieval: query type, keywords,
// multi-document intent, and a complexity flag that routes a question to
// single-shot retrieval or the multi-hop reasoner.
package query

import (
	"regexp"
	"strings"
)

// Type is the closed set of query types the dispatcher knows how to serve.
type Type int

const (
	TypeHybrid Type = iota // default when nothing else matches
	TypeNarrative
	TypeAnalytical
	TypeFactual
	TypeThematic
)

func (t Type) String() string {
	switch t {
	case TypeNarrative:
		return "narrative"
	case TypeAnalytical:
		return "analytical"
	case TypeFactual:
		return "factual"
	case TypeThematic:
		return "thematic"
	default:
		return "hybrid"
	}
}

// Analysis is the classifier's verdict on one question.
type Analysis struct {
	Type            Type     `json:"query_type"`
	Keywords        []string `json:"keywords"`
	IsMultiDocument bool     `json:"is_multi_document"`
	IsComparative   bool     `json:"is_comparative"`
	ExpandedQuery   string   `json:"expanded_query"`
}

var (
	comparativeRe = regexp.MustCompile(`(?i)\b(compare|comparison|contrast|versus|vs\.?|difference|differences|differ|similarit(y|ies)|both|between)\b`)
	analyticalRe  = regexp.MustCompile(`(?i)\b(why|explain|analy[sz]e|cause[sd]?|because|effect|impact|influence|relationship|implication|reason)\b`)
	factualRe     = regexp.MustCompile(`(?i)\b(who|when|where|which|how (many|much|old|long)|what (year|date|name|number)|define|definition)\b`)
	narrativeRe   = regexp.MustCompile(`(?i)\b(story|happen(ed|s)?|events?|timeline|sequence|chronolog|plot|unfold|journey|beginning|ending)\b`)
	thematicRe    = regexp.MustCompile(`(?i)\b(theme[s]?|motif|overall|main (idea|point|argument)|summar(y|ize|ise)|throughout|general(ly)?|big picture)\b`)

	crossDocRe = regexp.MustCompile(`(?i)\b(between|both|across|each document|all documents|the two|these documents)\b`)
	causalRe   = regexp.MustCompile(`(?i)\b(why|because|cause[sd]?|lead(s|ing)? to|result(s|ed)? in|due to|consequence)\b`)
	multiPartRe = regexp.MustCompile(`(?i)\b(and (also|then|how|why|what)|as well as|in addition)\b`)
)

// stopwords excluded from keyword extraction. Mixed English set; language
// detection lives in the registry, not here.
var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"of": {}, "in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "from": {},
	"and": {}, "or": {}, "but": {}, "with": {}, "about": {}, "into": {},
	"what": {}, "which": {}, "who": {}, "whom": {}, "when": {}, "where": {},
	"why": {}, "how": {}, "do": {}, "does": {}, "did": {}, "can": {},
	"could": {}, "would": {}, "should": {}, "this": {}, "that": {},
	"these": {}, "those": {}, "it": {}, "its": {}, "be": {}, "been": {},
	"as": {}, "by": {}, "not": {}, "there": {}, "their": {}, "they": {},
}

// Classify analyzes a raw question. docIDs is the caller's selected document
// set; history holds recent conversation turns used only for query expansion.
func Classify(text string, docIDs []string, history []string) Analysis {
	a := Analysis{
		Keywords:      Keywords(text, 8),
		IsComparative: comparativeRe.MatchString(text),
	}
	a.IsMultiDocument = len(docIDs) > 1 && (a.IsComparative || crossDocRe.MatchString(text))
	a.Type = classifyType(text)
	a.ExpandedQuery = expand(text, history)
	return a
}

// classifyType picks the most specific type whose vocabulary matches.
// Comparative questions lean analytical; order matters.
func classifyType(text string) Type {
	switch {
	case analyticalRe.MatchString(text) || comparativeRe.MatchString(text):
		return TypeAnalytical
	case thematicRe.MatchString(text):
		return TypeThematic
	case narrativeRe.MatchString(text):
		return TypeNarrative
	case factualRe.MatchString(text):
		return TypeFactual
	default:
		return TypeHybrid
	}
}

// IsComplex reports whether a question should be routed to multi-hop
// reasoning rather than single-shot retrieval: multi-part structure,
// comparison, causal reasoning, or explicit cross-document phrasing.
func IsComplex(text string) bool {
	if strings.Count(text, "?") > 1 {
		return true
	}
	if comparativeRe.MatchString(text) && causalRe.MatchString(text) {
		return true
	}
	if multiPartRe.MatchString(text) {
		return true
	}
	if crossDocRe.MatchString(text) && comparativeRe.MatchString(text) {
		return true
	}
	// Long causal questions need decomposition even without comparison.
	return causalRe.MatchString(text) && len(strings.Fields(text)) > 12
}

// Keywords extracts up to limit content words, lowercased, order-preserving.
func Keywords(text string, limit int) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, `.,;:!?"'()[]{}`)
		if len(w) < 3 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
		if len(out) == limit {
			break
		}
	}
	return out
}

// expand appends content words from recent turns that the question itself
// doesn't carry, so follow-ups like "and what about the second one" still
// retrieve against the topic under discussion.
func expand(text string, history []string) string {
	if len(history) == 0 {
		return text
	}
	have := make(map[string]struct{})
	for _, k := range Keywords(text, 32) {
		have[k] = struct{}{}
	}
	var extra []string
	for i := len(history) - 1; i >= 0 && len(extra) < 4; i-- {
		for _, k := range Keywords(history[i], 8) {
			if _, ok := have[k]; ok {
				continue
			}
			have[k] = struct{}{}
			extra = append(extra, k)
			if len(extra) == 4 {
				break
			}
		}
	}
	if len(extra) == 0 {
		return text
	}
	return text + " " + strings.Join(extra, " ")
}
