// Package ingest turns raw document pages into embedded, stored chunks:
// chunking and quality filtering, rate-paced embedding with retry and
// skip-on-persistent-failure, vector upserts, and registry bookkeeping.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DocentAI/docent-engine/engine/chunk"
	"github.com/DocentAI/docent-engine/engine/domain"
	"github.com/DocentAI/docent-engine/engine/semantic"
	"github.com/DocentAI/docent-engine/pkg/fn"
	"github.com/DocentAI/docent-engine/pkg/resilience"
)

// Embedder is the embedding service consumed by the pipeline.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Store is the slice of the vector store the pipeline writes to.
type Store interface {
	EnsureCollection(ctx context.Context, dims int) error
	Upsert(ctx context.Context, records []semantic.VectorRecord) error
	DeleteByDocID(ctx context.Context, docID string) error
}

// Saver records document metadata after a successful run.
type Saver interface {
	Save(ctx context.Context, d domain.DocumentInfo) error
}

// Document is the pipeline's input: normalized page texts.
type Document struct {
	ID       string
	Title    string
	Language string
	Pages    []string
}

// Summary aggregates one ingestion run.
type Summary struct {
	TotalPages    int `json:"total_pages"`
	ChunksCount   int `json:"chunks_count"`
	SkippedChunks int `json:"skipped_chunks"`
	Rejected      int `json:"rejected_fragments"`
}

// Options controls pipeline pacing and retry behavior.
type Options struct {
	// Window is how many pages are embedded concurrently per batch.
	Window int
	// PageRate paces batch windows, in windows per second.
	PageRate float64
	// Embedding retry: linear backoff, then skip the chunk.
	RetryAttempts int
	RetryWait     time.Duration
	Chunking      chunk.Options
}

func DefaultOptions() Options {
	return Options{
		Window:        4,
		PageRate:      2,
		RetryAttempts: 3,
		RetryWait:     500 * time.Millisecond,
		Chunking:      chunk.DefaultOptions(),
	}
}

// Pipeline ingests documents. Safe for sequential reuse; one document at a
// time.
type Pipeline struct {
	embed    Embedder
	store    Store
	registry Saver
	events   EventSink
	limiter  *resilience.Limiter
	opts     Options
	logger   *slog.Logger
	run      fn.Stage[Document, Summary]
}

func NewPipeline(embed Embedder, store Store, registry Saver, events EventSink, opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if events == nil {
		events = NopEvents{}
	}
	if opts.Window <= 0 {
		opts = DefaultOptions()
	}
	p := &Pipeline{
		embed:    embed,
		store:    store,
		registry: registry,
		events:   events,
		limiter:  resilience.NewLimiter(opts.PageRate, 1),
		opts:     opts,
		logger:   logger,
	}
	p.run = p.buildPipeline()
	return p
}

// pageFragments pairs a page with its accepted fragments.
type pageFragments struct {
	page      int
	fragments []chunk.Fragment
}

// chunkedDoc is the intermediate between the chunk and embed stages.
type chunkedDoc struct {
	doc      Document
	pages    []pageFragments
	rejected int
}

// storedDoc is the intermediate between the embed-store and finish stages.
type storedDoc struct {
	doc     Document
	summary Summary
}

// buildPipeline composes the stages:
// validate → supersede → chunk → embed+store → finish.
func (p *Pipeline) buildPipeline() fn.Stage[Document, Summary] {
	validated := fn.Then(p.validateStage(), fn.TracedStage("ingest.supersede", p.supersedeStage()))
	chunked := fn.Then(validated, fn.TracedStage("ingest.chunk", p.chunkStage()))
	tapped := fn.Then(chunked, fn.TapStage(func(_ context.Context, cd chunkedDoc) {
		p.logger.Debug("ingest: chunked", "doc", cd.doc.ID, "rejected", cd.rejected)
	}))
	stored := fn.Then(tapped, fn.TracedStage("ingest.embed_store", p.embedStoreStage()))
	return fn.Then(stored, p.finishStage())
}

// Ingest runs the full pipeline for one document. Existing chunks of the
// document are deleted first: re-embedding supersedes, never edits.
func (p *Pipeline) Ingest(ctx context.Context, doc Document) (Summary, error) {
	return p.run(ctx, doc).Unwrap()
}

func (p *Pipeline) validateStage() fn.Stage[Document, Document] {
	return func(_ context.Context, doc Document) fn.Result[Document] {
		if doc.ID == "" {
			return fn.Errf[Document]("ingest: document id required")
		}
		return fn.Ok(doc)
	}
}

func (p *Pipeline) supersedeStage() fn.Stage[Document, Document] {
	return func(ctx context.Context, doc Document) fn.Result[Document] {
		if err := p.store.EnsureCollection(ctx, p.embed.Dimension()); err != nil {
			return fn.Errf[Document]("ingest: %w", err)
		}
		if err := p.store.DeleteByDocID(ctx, doc.ID); err != nil {
			return fn.Errf[Document]("ingest: supersede %s: %w", doc.ID, err)
		}
		return fn.Ok(doc)
	}
}

// chunkStage splits every page. Chunking is sequential: the splitter's
// uniqueness tracker depends on page order.
func (p *Pipeline) chunkStage() fn.Stage[Document, chunkedDoc] {
	return fn.MapStage(func(doc Document) chunkedDoc {
		splitter := chunk.NewSplitter(p.opts.Chunking)
		pages := make([]pageFragments, 0, len(doc.Pages))
		for i, text := range doc.Pages {
			pages = append(pages, pageFragments{
				page:      i + 1,
				fragments: splitter.SplitPage(text, i+1),
			})
		}
		return chunkedDoc{doc: doc, pages: pages, rejected: splitter.Rejected()}
	})
}

func (p *Pipeline) embedStoreStage() fn.Stage[chunkedDoc, storedDoc] {
	return func(ctx context.Context, cd chunkedDoc) fn.Result[storedDoc] {
		summary := Summary{TotalPages: len(cd.doc.Pages), Rejected: cd.rejected}
		processed := 0

		for _, window := range fn.Batch(cd.pages, p.opts.Window) {
			if err := p.limiter.Wait(ctx); err != nil {
				return fn.Errf[storedDoc]("ingest: %w", err)
			}

			records, skipped := p.embedWindow(ctx, cd.doc.ID, window)
			if len(records) > 0 {
				if err := p.store.Upsert(ctx, records); err != nil {
					return fn.Errf[storedDoc]("ingest: %w", err)
				}
			}
			summary.ChunksCount += len(records)
			summary.SkippedChunks += skipped

			processed += len(window)
			p.events.Progress(ctx, ProgressEvent{
				DocumentID:     cd.doc.ID,
				ProcessedPages: processed,
				TotalPages:     len(cd.doc.Pages),
			})
		}
		return fn.Ok(storedDoc{doc: cd.doc, summary: summary})
	}
}

func (p *Pipeline) finishStage() fn.Stage[storedDoc, Summary] {
	return func(ctx context.Context, sd storedDoc) fn.Result[Summary] {
		if err := p.registry.Save(ctx, domain.DocumentInfo{
			ID:       sd.doc.ID,
			Title:    sd.doc.Title,
			Language: sd.doc.Language,
			Pages:    len(sd.doc.Pages),
		}); err != nil {
			return fn.Errf[Summary]("ingest: %w", err)
		}

		p.events.Done(ctx, DoneEvent{DocumentID: sd.doc.ID, Summary: sd.summary})
		p.logger.Info("ingest: document complete",
			"doc", sd.doc.ID, "pages", sd.summary.TotalPages,
			"chunks", sd.summary.ChunksCount, "skipped", sd.summary.SkippedChunks,
			"rejected", sd.summary.Rejected)
		return fn.Ok(sd.summary)
	}
}

// windowFragment carries a fragment with its index within its own page, so
// point ids do not depend on how pages are windowed.
type windowFragment struct {
	chunk.Fragment
	index int
}

// embedWindow embeds all fragments of a page window concurrently. A fragment
// whose embedding persistently fails is skipped, never stored degenerate.
func (p *Pipeline) embedWindow(ctx context.Context, docID string, window []pageFragments) ([]semantic.VectorRecord, int) {
	var flat []windowFragment
	for _, pf := range window {
		for j, f := range pf.fragments {
			flat = append(flat, windowFragment{Fragment: f, index: j})
		}
	}
	if len(flat) == 0 {
		return nil, 0
	}

	var embedFragment fn.Stage[windowFragment, []float32] = func(ctx context.Context, f windowFragment) fn.Result[[]float32] {
		return fn.FromPair(p.embed.Embed(ctx, f.Text))
	}
	embedOne := fn.RetryStage(fn.RetryOpts{
		MaxAttempts: p.opts.RetryAttempts,
		InitialWait: p.opts.RetryWait,
		Backoff:     fn.BackoffLinear,
	}, embedFragment)
	results := fn.ParMapResult(flat, p.opts.Window, func(f windowFragment) fn.Result[[]float32] {
		return embedOne(ctx, f)
	})

	var (
		records []semantic.VectorRecord
		skipped int
	)
	for i, r := range results {
		emb, err := r.Unwrap()
		if err != nil {
			skipped++
			p.logger.Warn("ingest: embedding failed after retries, skipping chunk",
				"doc", docID, "page", flat[i].PageNumber, "err", err)
			continue
		}
		c := domain.Chunk{
			ID:         chunkID(docID, flat[i].PageNumber, flat[i].index),
			DocumentID: docID,
			PageNumber: flat[i].PageNumber,
			Text:       flat[i].Text,
			Embedding:  emb,
		}
		if err := domain.ValidateChunk(c, p.embed.Dimension()); err != nil {
			skipped++
			p.logger.Warn("ingest: degenerate chunk rejected", "doc", docID, "err", err)
			continue
		}
		records = append(records, semantic.VectorRecord{
			ID:        c.ID,
			Embedding: c.Embedding,
			Payload: map[string]any{
				"text":        c.Text,
				"document_id": c.DocumentID,
				"page_number": c.PageNumber,
				"chunk_index": flat[i].index,
			},
		})
	}
	return records, skipped
}

// chunkID derives a stable point id from the document, page, and the chunk's
// index within that page, so re-ingesting the same content maps to the same
// points regardless of pacing configuration.
func chunkID(docID string, page, index int) string {
	name := fmt.Sprintf("%s:%d:%d", docID, page, index)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}
