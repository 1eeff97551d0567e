// Command chat is an interactive console client. Simple questions go through
// single-shot retrieval plus one generation call; complex questions are
// routed to the multi-hop reasoner.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/DocentAI/docent-engine/engine/domain"
	"github.com/DocentAI/docent-engine/engine/query"
	"github.com/DocentAI/docent-engine/engine/reason"
	"github.com/DocentAI/docent-engine/engine/registry"
	"github.com/DocentAI/docent-engine/engine/rerank"
	"github.com/DocentAI/docent-engine/engine/retrieve"
	"github.com/DocentAI/docent-engine/engine/semantic"
	"github.com/DocentAI/docent-engine/pkg/ollama"
)

func main() {
	var (
		ollamaURL  = flag.String("ollama", "http://localhost:11434", "Ollama base URL")
		embedModel = flag.String("embed-model", "nomic-embed-text", "embedding model")
		embedDim   = flag.Int("dim", 768, "embedding dimension")
		genModels  = flag.String("models", "llama3.1:8b,mistral:7b", "generation models in priority order")
		qdrantAddr = flag.String("qdrant", "localhost:6334", "Qdrant gRPC address")
		collection = flag.String("collection", "docent", "Qdrant collection name")
		neo4jURL   = flag.String("neo4j", "neo4j://localhost:7687", "Neo4j bolt URL")
		neo4jUser  = flag.String("neo4j-user", "neo4j", "Neo4j username")
		neo4jPass  = flag.String("neo4j-pass", "password", "Neo4j password")
		docs       = flag.String("docs", "", "comma-separated document ids to query")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx := context.Background()

	store, err := semantic.New(*qdrantAddr, *collection, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "qdrant connect failed:", err)
		os.Exit(1)
	}
	defer store.Close()

	driver, err := neo4j.NewDriverWithContext(*neo4jURL, neo4j.BasicAuth(*neo4jUser, *neo4jPass, ""))
	if err != nil {
		fmt.Fprintln(os.Stderr, "neo4j connect failed:", err)
		os.Exit(1)
	}
	defer driver.Close(ctx)
	reg := registry.New(driver)

	embedClient := ollama.NewEmbedClient(*ollamaURL, *embedModel, *embedDim)
	genClient := ollama.NewGenerateClient(*ollamaURL, strings.Split(*genModels, ","), logger)

	reranker := rerank.New(genClient, logger)
	retriever := retrieve.NewEngine(store, embedClient, reranker, reg, retrieve.DefaultOptions(), logger)
	reasoner := reason.NewEngine(embedClient, store, genClient, reason.DefaultOptions(), logger)

	docIDs := splitDocs(*docs)
	var history []string

	fmt.Println("docent chat. /docs id1,id2 selects documents, /quit exits")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case strings.HasPrefix(line, "/docs "):
			docIDs = splitDocs(strings.TrimPrefix(line, "/docs "))
			fmt.Printf("querying %d documents\n", len(docIDs))
			continue
		}

		if err := domain.ValidateQuestion(domain.Question{Text: line, DocumentIDs: docIDs}); err != nil {
			fmt.Println("!", err)
			continue
		}

		if query.IsComplex(line) {
			runComplex(ctx, reasoner, reg, line, docIDs)
		} else {
			runSimple(ctx, retriever, genClient, line, docIDs, history)
		}
		history = append(history, line)
		if len(history) > 6 {
			history = history[len(history)-6:]
		}
	}
}

func runSimple(ctx context.Context, retriever *retrieve.Engine, gen *ollama.GenerateClient, question string, docIDs, history []string) {
	analysis := query.Classify(question, docIDs, history)
	result, err := retriever.Retrieve(ctx, analysis, question, docIDs)
	if err != nil {
		fmt.Println("! retrieval failed:", err)
		return
	}
	if len(result.Chunks) == 0 {
		fmt.Println("No relevant passages found.")
		return
	}

	var b strings.Builder
	for _, c := range result.Chunks {
		fmt.Fprintf(&b, "[p.%d] %s\n\n", c.PageNumber, c.Text)
	}
	prompt := fmt.Sprintf(
		"Answer the question using ONLY the context below. Cite page numbers. If the context is insufficient, say so.\n\nContext:\n%s\nQuestion: %s\n\nAnswer:",
		b.String(), question)

	answer, model, err := gen.Generate(ctx, prompt)
	if err != nil {
		fmt.Println("! generation failed:", err)
		return
	}
	fmt.Printf("\n%s\n\n[%s | %s | confidence %.2f | %d chunks]\n",
		strings.TrimSpace(answer), model, result.Strategy, result.Confidence, len(result.Chunks))
}

func runComplex(ctx context.Context, reasoner *reason.Engine, reg *registry.Registry, question string, docIDs []string) {
	fmt.Println("(complex question, running multi-hop reasoning)")
	result, err := reasoner.Run(ctx, question, docIDs, reason.Params{
		Languages: reg.Languages(ctx, docIDs),
	})
	if err != nil {
		fmt.Println("! reasoning failed:", err)
		return
	}

	for _, line := range result.EvidenceChain {
		fmt.Println("  ·", line)
	}
	fmt.Printf("\n%s\n\n[%s | confidence %.2f | %d documents]\n",
		result.FinalAnswer, result.Strategy, result.ConfidenceScore, result.TotalDocumentsUsed)
}

func splitDocs(s string) []string {
	var out []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
