// Package reason implements the bounded multi-hop reasoning loop: decompose
// a complex question into sub-questions, retrieve evidence per hop, fall
// back to general knowledge when evidence is weak, and synthesize one final
// answer with a calibrated confidence score.
package reason

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/DocentAI/docent-engine/engine/semantic"
)

const (
	StrategyMultiHop       = "multi-hop"
	StrategyHybridMultiHop = "hybrid-multi-hop"
)

// Embedder turns a sub-question into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher is the evidence source for each hop.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, docIDs []string, limit int, threshold float32) []semantic.SearchResult
}

// Generator answers sub-questions and proposes the next one.
type Generator interface {
	Generate(ctx context.Context, prompt string) (text string, model string, err error)
}

// Options holds the loop's tunable constants.
type Options struct {
	MaxHops             int     // hard bound on hops per run
	CandidateLimit      int     // per-hop retrieval width
	Threshold           float32 // per-hop retrieval floor
	EvidenceBar         float32 // best-similarity gate below which a hop goes hybrid
	LoopSimilarity      float64 // next-question similarity above which the run stops
	ContextChunks       int     // max chunks assembled into a hop's context
	CorrectionMaxChunks int     // correction applies only to small evidence sets
	GeneralConfidence   float64 // per-step confidence of a general-knowledge hop
}

func DefaultOptions() Options {
	return Options{
		MaxHops:             4,
		CandidateLimit:      15,
		Threshold:           semantic.DefaultThreshold,
		EvidenceBar:         0.35,
		LoopSimilarity:      0.85,
		ContextChunks:       10,
		CorrectionMaxChunks: 6,
		GeneralConfidence:   0.35,
	}
}

// Step records one hop of the loop. The full list is the run's audit trail.
type Step struct {
	StepNumber           int                     `json:"step_number"`
	Question             string                  `json:"question"`
	RetrievedChunks      []semantic.SearchResult `json:"retrieved_chunks"`
	Answer               string                  `json:"answer"`
	Confidence           float64                 `json:"confidence"`
	DocumentSources      []string                `json:"document_sources"`
	UsedGeneralKnowledge bool                    `json:"used_general_knowledge"`
}

// RunResult is the terminal output of one reasoning run.
type RunResult struct {
	Steps                []Step   `json:"steps"`
	FinalAnswer          string   `json:"final_answer"`
	ConfidenceScore      float64  `json:"confidence_score"`
	EvidenceChain        []string `json:"evidence_chain"`
	Strategy             string   `json:"strategy"`
	TotalDocumentsUsed   int      `json:"total_documents_used"`
	UsedGeneralKnowledge bool     `json:"used_general_knowledge"`
}

// Params carries per-run caller preferences.
type Params struct {
	MaxHops          int               // 0 means Options default
	ResponseLanguage string            // language the final answer is written in
	Languages        map[string]string // document_id -> language, for correction
	CorrectSpelling  bool
	Aggressive       bool // correct even mid-sized evidence sets
}

// Engine runs the hop loop. Each run builds its own state; an Engine is safe
// for concurrent use.
type Engine struct {
	embed  Embedder
	store  Searcher
	gen    Generator
	opts   Options
	logger *slog.Logger
}

func NewEngine(embed Embedder, store Searcher, gen Generator, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxHops <= 0 {
		opts = DefaultOptions()
	}
	return &Engine{embed: embed, store: store, gen: gen, opts: opts, logger: logger}
}

// Run executes one bounded multi-hop reasoning run over the selected
// documents. External-call failures degrade (general-knowledge hop, early
// stop, unsynthesized fallback answer) rather than failing the run.
func (e *Engine) Run(ctx context.Context, question string, docIDs []string, p Params) (RunResult, error) {
	maxHops := p.MaxHops
	if maxHops <= 0 || maxHops > e.opts.MaxHops {
		maxHops = e.opts.MaxHops
	}

	var (
		steps   []Step
		usedDoc = make(map[string]struct{})
		current = question
	)

	for hop := 1; hop <= maxHops; hop++ {
		step := e.hop(ctx, hop, current, docIDs, p)
		steps = append(steps, step)
		for _, d := range step.DocumentSources {
			usedDoc[d] = struct{}{}
		}

		if hop == maxHops {
			break
		}
		next, ok := e.nextQuestion(ctx, question, current, step.Answer)
		if !ok {
			break
		}
		if sim := similarity(next, question); sim > e.opts.LoopSimilarity {
			e.logger.Debug("reason: proposed question circles back, stopping", "similarity", sim)
			break
		}
		current = next
	}

	result := RunResult{
		Steps:              steps,
		Strategy:           StrategyMultiHop,
		TotalDocumentsUsed: len(usedDoc),
		EvidenceChain:      evidenceChain(steps),
	}
	for _, s := range steps {
		if s.UsedGeneralKnowledge {
			result.UsedGeneralKnowledge = true
			result.Strategy = StrategyHybridMultiHop
			break
		}
	}
	result.FinalAnswer = e.synthesize(ctx, question, steps, p.ResponseLanguage)
	result.ConfidenceScore = overallConfidence(steps, maxHops)
	return result, nil
}

// hop executes RETRIEVE → EVIDENCE_GATE → ANSWER for one sub-question.
func (e *Engine) hop(ctx context.Context, n int, subQuestion string, docIDs []string, p Params) Step {
	step := Step{StepNumber: n, Question: subQuestion}

	var chunks []semantic.SearchResult
	emb, err := e.embed.Embed(ctx, subQuestion)
	if err != nil {
		// A failed retrieval is "no evidence", not a fatal error.
		e.logger.Warn("reason: embed failed, treating hop as no-evidence", "hop", n, "err", err)
	} else {
		chunks = e.store.Search(ctx, emb, docIDs, e.opts.CandidateLimit, e.opts.Threshold)
	}

	best := float32(0)
	for _, c := range chunks {
		if c.Score > best {
			best = c.Score
		}
	}

	if len(chunks) == 0 || best < e.opts.EvidenceBar {
		step.UsedGeneralKnowledge = true
		step.Answer = e.answerGeneral(ctx, subQuestion)
		step.Confidence = e.opts.GeneralConfidence
		return step
	}

	if len(chunks) > e.opts.ContextChunks {
		chunks = chunks[:e.opts.ContextChunks]
	}
	step.RetrievedChunks = chunks
	step.DocumentSources = uniqueDocs(chunks)

	if p.CorrectSpelling && (p.Aggressive || len(chunks) <= e.opts.CorrectionMaxChunks) {
		chunks = e.correct(ctx, chunks, p.Languages)
	}

	answer, ok := e.answerFromEvidence(ctx, subQuestion, chunks)
	if !ok {
		step.Answer = "Insufficient information available for this step."
		step.Confidence = 0.2
		return step
	}
	step.Answer = answer
	step.Confidence = stepConfidence(best)
	return step
}

// stepConfidence maps best evidence similarity to a per-step confidence.
func stepConfidence(best float32) float64 {
	c := 0.45 + 0.5*float64(best)
	if c > 0.95 {
		c = 0.95
	}
	return c
}

// overallConfidence applies a completion-ratio discount so early-stopped
// runs score more conservatively.
func overallConfidence(steps []Step, maxHops int) float64 {
	if len(steps) == 0 {
		return 0
	}
	var sum float64
	for _, s := range steps {
		sum += s.Confidence
	}
	mean := sum / float64(len(steps))
	return mean * (0.7 + 0.3*float64(len(steps))/float64(maxHops))
}

func uniqueDocs(chunks []semantic.SearchResult) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, c := range chunks {
		if _, ok := seen[c.DocumentID]; ok {
			continue
		}
		seen[c.DocumentID] = struct{}{}
		out = append(out, c.DocumentID)
	}
	return out
}

func evidenceChain(steps []Step) []string {
	chain := make([]string, len(steps))
	for i, s := range steps {
		src := "general knowledge"
		if !s.UsedGeneralKnowledge {
			src = fmt.Sprintf("%d chunks from %s", len(s.RetrievedChunks), strings.Join(s.DocumentSources, ", "))
		}
		chain[i] = fmt.Sprintf("Step %d: %s [%s, confidence %.2f]", s.StepNumber, s.Question, src, s.Confidence)
	}
	return chain
}
