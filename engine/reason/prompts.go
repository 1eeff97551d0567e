package reason

import (
	"context"
	"fmt"
	"strings"

	"github.com/DocentAI/docent-engine/engine/semantic"
)

// answerFromEvidence asks the generator to answer from the assembled context
// block, each chunk labeled by document index and page. Returns false on
// call failure or an empty completion.
func (e *Engine) answerFromEvidence(ctx context.Context, subQuestion string, chunks []semantic.SearchResult) (string, bool) {
	docIndex := make(map[string]int)
	var b strings.Builder
	for _, c := range chunks {
		idx, ok := docIndex[c.DocumentID]
		if !ok {
			idx = len(docIndex) + 1
			docIndex[c.DocumentID] = idx
		}
		fmt.Fprintf(&b, "[Doc %d, p.%d] %s\n\n", idx, c.PageNumber, c.Text)
	}

	prompt := fmt.Sprintf(
		"Answer the question concisely using ONLY the context below. If the context does not fully answer it, say what is missing.\n\nContext:\n%s\nQuestion: %s\n\nAnswer:",
		b.String(), subQuestion)

	text, _, err := e.gen.Generate(ctx, prompt)
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			e.logger.Warn("reason: answer generation failed", "err", err)
		}
		return "", false
	}
	return strings.TrimSpace(text), true
}

// answerGeneral handles the hybrid branch: no document context at all.
func (e *Engine) answerGeneral(ctx context.Context, subQuestion string) string {
	prompt := fmt.Sprintf(
		"The documents contain no evidence for this question. Answer briefly from general knowledge, and state that the answer is not grounded in the provided documents.\n\nQuestion: %s\n\nAnswer:",
		subQuestion)
	text, _, err := e.gen.Generate(ctx, prompt)
	if err != nil || strings.TrimSpace(text) == "" {
		return "No document evidence was found and no general-knowledge answer could be produced."
	}
	return strings.TrimSpace(text)
}

// nextQuestion asks the generator for exactly one follow-up sub-question.
// Returns false when the loop should stop: call failure, empty proposal, or
// an explicit DONE marker.
func (e *Engine) nextQuestion(ctx context.Context, original, current, partialAnswer string) (string, bool) {
	prompt := fmt.Sprintf(
		"Original question: %s\n\nLast sub-question: %s\nPartial answer: %s\n\nPropose exactly ONE next sub-question that would most advance answering the original question. If the original question is already fully answered, reply DONE. Reply with the sub-question only.",
		original, current, partialAnswer)

	text, _, err := e.gen.Generate(ctx, prompt)
	if err != nil {
		e.logger.Warn("reason: next-question generation failed, stopping loop", "err", err)
		return "", false
	}
	next := strings.TrimSpace(strings.Trim(strings.TrimSpace(text), `"`))
	if next == "" || strings.EqualFold(next, "DONE") {
		return "", false
	}
	return next, true
}

// correct applies spelling/OCR correction to chunk text before context
// assembly. Languages picks per-document behavior; failures leave the
// original text in place.
func (e *Engine) correct(ctx context.Context, chunks []semantic.SearchResult, langs map[string]string) []semantic.SearchResult {
	out := make([]semantic.SearchResult, len(chunks))
	copy(out, chunks)
	for i, c := range out {
		lang := langs[c.DocumentID]
		if lang == "" {
			lang = "en"
		}
		prompt := fmt.Sprintf(
			"Correct OCR and spelling errors in the following passage (language: %s). Preserve wording and meaning exactly; fix only obvious scanning errors. Reply with the corrected passage only.\n\n%s",
			lang, c.Text)
		text, _, err := e.gen.Generate(ctx, prompt)
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		out[i].Text = strings.TrimSpace(text)
	}
	return out
}

// synthesize produces the final answer from the full step transcript. On
// generation failure it degrades to a concatenation of step answers.
func (e *Engine) synthesize(ctx context.Context, original string, steps []Step, responseLanguage string) string {
	var b strings.Builder
	for _, s := range steps {
		fmt.Fprintf(&b, "Step %d\nSub-question: %s\nAnswer: %s\nConfidence: %.2f\n", s.StepNumber, s.Question, s.Answer, s.Confidence)
		if s.UsedGeneralKnowledge {
			b.WriteString("Source: general knowledge (not document-grounded)\n")
		} else {
			fmt.Fprintf(&b, "Source: documents %s\n", strings.Join(s.DocumentSources, ", "))
		}
		b.WriteString("\n")
	}

	lang := responseLanguage
	if lang == "" {
		lang = "the same language as the question"
	}
	prompt := fmt.Sprintf(
		"Original question: %s\n\nReasoning transcript:\n%s\nWrite ONE coherent final answer in %s that integrates the steps above. Where a step used general knowledge rather than the documents, mark that part explicitly.",
		original, b.String(), lang)

	text, _, err := e.gen.Generate(ctx, prompt)
	if err != nil || strings.TrimSpace(text) == "" {
		e.logger.Warn("reason: synthesis failed, returning concatenated step answers", "err", err)
		parts := make([]string, len(steps))
		for i, s := range steps {
			parts[i] = s.Answer
		}
		return strings.Join(parts, "\n\n")
	}
	return strings.TrimSpace(text)
}
