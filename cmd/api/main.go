// Package main implements the Docent query API server: single-shot retrieval
// and multi-hop reasoning over an embedded document corpus.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/DocentAI/docent-engine/engine/domain"
	"github.com/DocentAI/docent-engine/engine/query"
	"github.com/DocentAI/docent-engine/engine/reason"
	"github.com/DocentAI/docent-engine/engine/registry"
	"github.com/DocentAI/docent-engine/engine/rerank"
	"github.com/DocentAI/docent-engine/engine/retrieve"
	"github.com/DocentAI/docent-engine/engine/semantic"
	"github.com/DocentAI/docent-engine/pkg/metrics"
	"github.com/DocentAI/docent-engine/pkg/mid"
	"github.com/DocentAI/docent-engine/pkg/ollama"
)

// Config holds all environment-based configuration.
type Config struct {
	Port       string
	OllamaURL  string
	EmbedModel string
	EmbedDim   int
	GenModels  []string
	Neo4jURL   string
	Neo4jUser  string
	Neo4jPass  string
	QdrantURL  string
	Collection string
	CORSOrigin string
}

func loadConfig() Config {
	dim, _ := strconv.Atoi(envOr("EMBED_DIM", "768"))
	return Config{
		Port:       envOr("PORT", "8080"),
		OllamaURL:  envOr("OLLAMA_URL", "http://localhost:11434"),
		EmbedModel: envOr("EMBED_MODEL", "nomic-embed-text"),
		EmbedDim:   dim,
		GenModels:  strings.Split(envOr("GEN_MODELS", "llama3.1:8b,mistral:7b"), ","),
		Neo4jURL:   envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:  envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:  envOr("NEO4J_PASS", "password"),
		QdrantURL:  envOr("QDRANT_URL", "localhost:6334"),
		Collection: envOr("QDRANT_COLLECTION", "docent"),
		CORSOrigin: envOr("CORS_ORIGIN", "*"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	_ = godotenv.Load()
	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Connect to Neo4j (document registry) ---
	neo4jDriver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer neo4jDriver.Close(ctx)
	reg := registry.New(neo4jDriver)

	// --- Connect to Qdrant ---
	store, err := semantic.New(cfg.QdrantURL, cfg.Collection, logger)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer store.Close()

	// --- Ollama clients ---
	embedClient := ollama.NewEmbedClient(cfg.OllamaURL, cfg.EmbedModel, cfg.EmbedDim)
	genClient := ollama.NewGenerateClient(cfg.OllamaURL, cfg.GenModels, logger)

	// --- Engines ---
	reranker := rerank.New(genClient, logger)
	retriever := retrieve.NewEngine(store, embedClient, reranker, reg, retrieve.DefaultOptions(), logger)
	reasoner := reason.NewEngine(embedClient, store, genClient, reason.DefaultOptions(), logger)

	// --- Metrics ---
	mreg := metrics.New()
	queries := mreg.Counter("docent_queries_total", "Total retrieval queries served")
	reasonRuns := mreg.Counter("docent_reason_runs_total", "Total multi-hop reasoning runs")

	// --- HTTP server ---
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.Handle("POST /api/query", handleQuery(retriever, queries, logger))
	mux.Handle("POST /api/reason", handleReason(reasoner, reg, reasonRuns, logger))
	mux.Handle("GET /api/documents/{id}/related", handleRelated(reg, logger))
	mux.Handle("POST /api/documents/relate", handleRelate(reg, logger))
	mux.Handle("GET /metrics", mreg.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.Trace("docent-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// --- Handlers ---

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// QueryRequest is the JSON body for POST /api/query.
type QueryRequest struct {
	Question    string   `json:"question"`
	DocumentIDs []string `json:"document_ids"`
	History     []string `json:"history,omitempty"`
}

// QueryResponse is the JSON response for POST /api/query.
type QueryResponse struct {
	Chunks     []semantic.SearchResult `json:"chunks"`
	Strategy   string                  `json:"strategy"`
	Confidence float64                 `json:"confidence"`
	Metadata   retrieve.Meta           `json:"metadata"`
	QueryType  string                  `json:"query_type"`
	IsComplex  bool                    `json:"is_complex"`
}

func handleQuery(retriever *retrieve.Engine, queries *metrics.Counter, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if err := domain.ValidateQuestion(domain.Question{Text: req.Question, DocumentIDs: req.DocumentIDs}); err != nil {
			http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusBadRequest)
			return
		}
		queries.Inc()

		analysis := query.Classify(req.Question, req.DocumentIDs, req.History)
		result, err := retriever.Retrieve(r.Context(), analysis, req.Question, req.DocumentIDs)
		if err != nil {
			logger.Error("retrieval failed", "err", err)
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(QueryResponse{
			Chunks:     result.Chunks,
			Strategy:   string(result.Strategy),
			Confidence: result.Confidence,
			Metadata:   result.Meta,
			QueryType:  analysis.Type.String(),
			IsComplex:  query.IsComplex(req.Question),
		})
	}
}

// ReasonRequest is the JSON body for POST /api/reason.
type ReasonRequest struct {
	Question         string   `json:"question"`
	DocumentIDs      []string `json:"document_ids"`
	MaxHops          int      `json:"max_hops,omitempty"`
	ResponseLanguage string   `json:"response_language,omitempty"`
	CorrectSpelling  bool     `json:"correct_spelling,omitempty"`
	Aggressive       bool     `json:"aggressive,omitempty"`
}

func handleReason(reasoner *reason.Engine, reg *registry.Registry, runs *metrics.Counter, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReasonRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if err := domain.ValidateQuestion(domain.Question{Text: req.Question, DocumentIDs: req.DocumentIDs}); err != nil {
			http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusBadRequest)
			return
		}
		runs.Inc()

		result, err := reasoner.Run(r.Context(), req.Question, req.DocumentIDs, reason.Params{
			MaxHops:          req.MaxHops,
			ResponseLanguage: req.ResponseLanguage,
			Languages:        reg.Languages(r.Context(), req.DocumentIDs),
			CorrectSpelling:  req.CorrectSpelling,
			Aggressive:       req.Aggressive,
		})
		if err != nil {
			logger.Error("reasoning run failed", "err", err)
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

// RelateRequest links two documents in the registry.
type RelateRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func handleRelate(reg *registry.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RelateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.From == "" || req.To == "" {
			http.Error(w, `{"error":"from and to document ids are required"}`, http.StatusBadRequest)
			return
		}
		if err := reg.Relate(r.Context(), req.From, req.To); err != nil {
			logger.Error("relate failed", "err", err)
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleRelated(reg *registry.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := reg.Related(r.Context(), r.PathValue("id"))
		if err != nil {
			logger.Error("related lookup failed", "err", err)
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"documents": docs})
	}
}
