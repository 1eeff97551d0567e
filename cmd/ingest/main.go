// Command ingest watches a directory for normalized document JSON files and
// runs them through the ingestion pipeline into Qdrant and Neo4j, publishing
// progress events to NATS.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/DocentAI/docent-engine/engine/chunk"
	"github.com/DocentAI/docent-engine/engine/domain"
	"github.com/DocentAI/docent-engine/engine/ingest"
	"github.com/DocentAI/docent-engine/engine/registry"
	"github.com/DocentAI/docent-engine/engine/semantic"
	"github.com/DocentAI/docent-engine/pkg/fn"
	"github.com/DocentAI/docent-engine/pkg/metrics"
	"github.com/DocentAI/docent-engine/pkg/ollama"
)

var met = metrics.New()

var (
	mDocsTotal      = met.Counter("docent_ingest_docs_total", "Total documents ingested")
	mChunksTotal    = met.Counter("docent_ingest_chunks_total", "Total chunks stored")
	mSkippedTotal   = met.Counter("docent_ingest_chunks_skipped_total", "Chunks skipped after embedding failures")
	mRejectedTotal  = met.Counter("docent_ingest_fragments_rejected_total", "Fragments dropped by the quality filter")
	mPrunedTotal    = met.Counter("docent_ingest_chunks_pruned_total", "Near-duplicate chunks pruned")
	mErrorsTotal    = met.Counter("docent_ingest_errors_total", "Failed ingestion runs")
	mFilesProcessed = met.Counter("docent_ingest_files_processed_total", "Files processed")
	mLastScan       = met.Gauge("docent_ingest_last_scan_timestamp", "Epoch of last directory scan")
	mPipelineDur    = met.Histogram("docent_ingest_pipeline_duration_seconds", "Per-document pipeline time", nil)
)

func main() {
	var (
		dataDir     = flag.String("dir", "/var/lib/docent/inbox", "directory to watch for document JSON files")
		ollamaURL   = flag.String("ollama", "http://localhost:11434", "Ollama base URL")
		embedModel  = flag.String("model", "nomic-embed-text", "Ollama embedding model")
		embedDim    = flag.Int("dim", 768, "embedding dimension of the model")
		neo4jURL    = flag.String("neo4j", "neo4j://localhost:7687", "Neo4j bolt URL")
		neo4jUser   = flag.String("neo4j-user", "neo4j", "Neo4j username")
		neo4jPass   = flag.String("neo4j-pass", "password", "Neo4j password")
		qdrantAddr  = flag.String("qdrant", "localhost:6334", "Qdrant gRPC address")
		collection  = flag.String("collection", "docent", "Qdrant collection name")
		natsURL     = flag.String("nats", "", "NATS URL for progress events (empty disables)")
		interval    = flag.Duration("interval", 30*time.Second, "scan interval")
		stateFile   = flag.String("state", "", "processed-files state path (default <dir>/.ingest-state.json)")
		prune       = flag.Bool("prune", false, "prune near-duplicate chunks after each document")
		metricsPort = flag.Int("metrics-port", 9091, "Prometheus metrics port")
	)
	flag.Parse()
	if *stateFile == "" {
		*stateFile = filepath.Join(*dataDir, ".ingest-state.json")
	}

	met.ServeAsync(*metricsPort)

	log := slog.Default()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Connect Neo4j
	driver, err := neo4j.NewDriverWithContext(*neo4jURL, neo4j.BasicAuth(*neo4jUser, *neo4jPass, ""))
	if err != nil {
		log.Error("neo4j connect failed", "error", err)
		os.Exit(1)
	}
	defer driver.Close(ctx)
	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Error("neo4j verify failed", "error", err)
		os.Exit(1)
	}
	reg := registry.New(driver)

	// Connect Qdrant
	vs, err := semantic.New(*qdrantAddr, *collection, log)
	if err != nil {
		log.Error("qdrant connect failed", "error", err)
		os.Exit(1)
	}
	defer vs.Close()
	if err := vs.EnsureCollection(ctx, *embedDim); err != nil {
		log.Error("qdrant ensure collection failed", "error", err)
		os.Exit(1)
	}
	log.Info("connected to Qdrant", "collection", *collection, "dims", *embedDim)

	// Progress events
	var events ingest.EventSink = ingest.NopEvents{}
	if *natsURL != "" {
		nc, err := nats.Connect(*natsURL, nats.Name("docent-ingest"))
		if err != nil {
			log.Error("nats connect failed", "error", err)
			os.Exit(1)
		}
		defer nc.Drain()
		events = ingest.NewNATSEvents(nc, log)
	}

	embedder := ollama.NewEmbedClient(*ollamaURL, *embedModel, *embedDim)
	pipeline := ingest.NewPipeline(embedder, vs, reg, events, ingest.DefaultOptions(), log)

	processed := loadState(*stateFile)
	os.MkdirAll(*dataDir, 0o755)
	log.Info("watching for documents", "dir", *dataDir, "interval", *interval)

	scan := func() {
		mLastScan.Set(time.Now().Unix())
		entries, err := os.ReadDir(*dataDir)
		if err != nil {
			log.Error("readdir failed", "error", err)
			return
		}

		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") || e.Name()[0] == '.' {
				continue
			}
			path := filepath.Join(*dataDir, e.Name())
			info, _ := e.Info()
			key := fmt.Sprintf("%s:%d", e.Name(), info.Size())
			if processed[key] {
				continue
			}

			log.Info("processing file", "file", e.Name())
			ok := processFile(ctx, path, pipeline, vs, *prune, log)
			mFilesProcessed.Inc()

			// Only mark processed on success so failures retry next scan.
			if ok {
				processed[key] = true
				saveState(*stateFile, processed)
			}
		}
	}

	scan()
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return
		case <-ticker.C:
			scan()
		}
	}
}

// docFile is the on-disk document format: normalized page texts.
type docFile struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Language string   `json:"language"`
	Pages    []string `json:"pages"`
}

func processFile(ctx context.Context, path string, pipeline *ingest.Pipeline, vs *semantic.VectorStore, prune bool, log *slog.Logger) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Error("read failed", "file", path, "error", err)
		mErrorsTotal.Inc()
		return false
	}
	var doc docFile
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Error("parse failed", "file", path, "error", err)
		mErrorsTotal.Inc()
		return false
	}
	if doc.ID == "" {
		doc.ID = strings.TrimSuffix(filepath.Base(path), ".json")
	}

	start := time.Now()
	sum, err := pipeline.Ingest(ctx, ingest.Document{
		ID:       doc.ID,
		Title:    doc.Title,
		Language: doc.Language,
		Pages:    doc.Pages,
	})
	mPipelineDur.Observe(time.Since(start).Seconds())
	if err != nil {
		log.Error("ingest failed", "doc", doc.ID, "error", err)
		mErrorsTotal.Inc()
		return false
	}

	mDocsTotal.Inc()
	mChunksTotal.Add(int64(sum.ChunksCount))
	mSkippedTotal.Add(int64(sum.SkippedChunks))
	mRejectedTotal.Add(int64(sum.Rejected))

	if prune {
		mPrunedTotal.Add(int64(pruneDuplicates(ctx, vs, doc.ID, log)))
	}
	return true
}

// pruneDuplicates runs the near-duplicate cleanup pass over a document's
// stored chunks and deletes the losers.
func pruneDuplicates(ctx context.Context, vs *semantic.VectorStore, docID string, log *slog.Logger) int {
	stored := vs.ChunksByDocument(ctx, docID, 10000)
	chunks := fn.Map(stored, func(s semantic.SearchResult) domain.Chunk {
		return domain.Chunk{ID: s.ID, Text: s.Text}
	})

	ids := chunk.SelectDuplicates(chunks, chunk.DefaultOptions().UniquenessThreshold)
	if len(ids) == 0 {
		return 0
	}
	if err := vs.DeleteByIDs(ctx, ids); err != nil {
		log.Warn("duplicate prune failed", "doc", docID, "error", err)
		return 0
	}
	log.Info("pruned near-duplicate chunks", "doc", docID, "count", len(ids))
	return len(ids)
}

func loadState(path string) map[string]bool {
	state := make(map[string]bool)
	data, err := os.ReadFile(path)
	if err != nil {
		return state
	}
	json.Unmarshal(data, &state)
	return state
}

func saveState(path string, state map[string]bool) {
	data, err := json.Marshal(state)
	if err != nil {
		return
	}
	os.WriteFile(path, data, 0o644)
}
