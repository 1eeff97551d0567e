package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Fatalf("path %s", r.URL.Path)
		}
		var req embedReq
		json.NewDecoder(r.Body).Decode(&req)
		if req.Prompt != "hello" {
			t.Fatalf("prompt %q", req.Prompt)
		}
		json.NewEncoder(w).Encode(embedResp{Embedding: []float64{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	c := NewEmbedClient(srv.URL, "nomic-embed-text", 3)
	vec, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Fatalf("vector: %v", vec)
	}
	if c.Dimension() != 3 {
		t.Fatal("dimension")
	}
}

func TestEmbedEmptyVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(embedResp{})
	}))
	defer srv.Close()

	c := NewEmbedClient(srv.URL, "m", 3)
	if _, err := c.Embed(context.Background(), "x"); err == nil {
		t.Fatal("empty embedding should error")
	}
}

func TestGenerateFirstModelSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResp{Response: "answer"})
	}))
	defer srv.Close()

	c := NewGenerateClient(srv.URL, []string{"llama3.1:8b", "mistral"}, nil)
	text, model, err := c.Generate(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}
	if text != "answer" || model != "llama3.1:8b" {
		t.Fatalf("text=%q model=%q", text, model)
	}
}

func TestGenerateFallsBackAndSurfacesModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateReq
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model == "first" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(generateResp{Response: "from second"})
	}))
	defer srv.Close()

	c := NewGenerateClient(srv.URL, []string{"first", "second"}, nil)
	text, model, err := c.Generate(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}
	if model != "second" || text != "from second" {
		t.Fatalf("model=%q text=%q", model, text)
	}
}

func TestGenerateBreakerSkipsTrippedModel(t *testing.T) {
	firstCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateReq
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model == "first" {
			firstCalls++
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(generateResp{Response: "ok"})
	}))
	defer srv.Close()

	c := NewGenerateClient(srv.URL, []string{"first", "second"}, nil)
	for i := 0; i < 8; i++ {
		if _, model, err := c.Generate(context.Background(), "q"); err != nil || model != "second" {
			t.Fatalf("call %d: model=%q err=%v", i, model, err)
		}
	}
	// After the failure threshold the breaker opens and "first" is skipped
	// without an HTTP round trip.
	if firstCalls != 5 {
		t.Fatalf("first model calls: %d", firstCalls)
	}
}

func TestGenerateAllModelsFailAggregated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateReq
		json.NewDecoder(r.Body).Decode(&req)
		switch req.Model {
		case "quota-model":
			w.WriteHeader(http.StatusTooManyRequests)
		case "missing-model":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	c := NewGenerateClient(srv.URL, []string{"quota-model", "missing-model", "broken"}, nil)
	_, _, err := c.Generate(context.Background(), "q")

	var fe *FallbackError
	if !errors.As(err, &fe) {
		t.Fatalf("want FallbackError, got %v", err)
	}
	if len(fe.Attempts) != 3 {
		t.Fatalf("attempts: %d", len(fe.Attempts))
	}
	if fe.Attempts[0].Reason != FailureQuota {
		t.Fatalf("first reason: %s", fe.Attempts[0].Reason)
	}
	if fe.Attempts[1].Reason != FailureUnsupported {
		t.Fatalf("second reason: %s", fe.Attempts[1].Reason)
	}
	if fe.Attempts[2].Reason != FailureOther {
		t.Fatalf("third reason: %s", fe.Attempts[2].Reason)
	}
	for _, name := range []string{"quota-model", "missing-model", "broken"} {
		if !strings.Contains(fe.Error(), name) {
			t.Fatalf("error should list %s: %s", name, fe.Error())
		}
	}
}
