// Package registry provides the Neo4j-backed document registry. It owns the
// document_id → language mapping used to pick correction behaviour, page
// counts used for structural sampling, and RELATES_TO edges between
// documents consulted by multi-document retrieval.
package registry

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/DocentAI/docent-engine/engine/domain"
	"github.com/DocentAI/docent-engine/pkg/repo"
)

// DefaultLanguage is assumed for documents with no recorded language.
const DefaultLanguage = "en"

// Registry stores document metadata and cross-document references.
type Registry struct {
	driver    neo4j.DriverWithContext
	documents *repo.Neo4jRepo[domain.DocumentInfo, string]
	runner    sessionRunner // for testing
}

// sessionRunner abstracts the single-query session use in this package.
type sessionRunner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (neo4jResult, error)
	Close(ctx context.Context) error
}

type neo4jResult interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
}

type driverSession struct{ sess neo4j.SessionWithContext }

func (s *driverSession) Run(ctx context.Context, cypher string, params map[string]any) (neo4jResult, error) {
	return s.sess.Run(ctx, cypher, params)
}
func (s *driverSession) Close(ctx context.Context) error { return s.sess.Close(ctx) }

// New creates a Registry on top of a Neo4j driver.
func New(driver neo4j.DriverWithContext) *Registry {
	return &Registry{
		driver:    driver,
		documents: repo.NewNeo4jRepo[domain.DocumentInfo, string](driver, "Document", docToMap, docFromRecord),
	}
}

func (r *Registry) session(ctx context.Context) sessionRunner {
	if r.runner != nil {
		return r.runner
	}
	return &driverSession{sess: r.driver.NewSession(ctx, neo4j.SessionConfig{})}
}

func docToMap(d domain.DocumentInfo) map[string]any {
	return map[string]any{
		"id":       d.ID,
		"title":    d.Title,
		"language": d.Language,
		"pages":    d.Pages,
	}
}

func docFromRecord(rec *neo4j.Record) (domain.DocumentInfo, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return domain.DocumentInfo{}, err
	}
	return nodeToDoc(node), nil
}

func nodeToDoc(node dbtype.Node) domain.DocumentInfo {
	d := domain.DocumentInfo{}
	if v, ok := node.Props["id"].(string); ok {
		d.ID = v
	}
	if v, ok := node.Props["title"].(string); ok {
		d.Title = v
	}
	if v, ok := node.Props["language"].(string); ok {
		d.Language = v
	}
	if v, ok := node.Props["pages"].(int64); ok {
		d.Pages = int(v)
	}
	return d
}

// Save upserts a document node.
func (r *Registry) Save(ctx context.Context, d domain.DocumentInfo) error {
	if err := r.documents.Put(ctx, d); err != nil {
		return fmt.Errorf("registry: save %s: %w", d.ID, err)
	}
	return nil
}

// Get returns a document by id.
func (r *Registry) Get(ctx context.Context, id string) (domain.DocumentInfo, error) {
	d, err := r.documents.Get(ctx, id)
	if err != nil {
		return domain.DocumentInfo{}, fmt.Errorf("registry: %w: %s", domain.ErrDocumentNotFound, id)
	}
	return d, nil
}

// Delete removes a document node and its relationships.
func (r *Registry) Delete(ctx context.Context, id string) error {
	return r.documents.Delete(ctx, id)
}

// Language returns the recorded language for a document, or DefaultLanguage.
func (r *Registry) Language(ctx context.Context, id string) string {
	d, err := r.Get(ctx, id)
	if err != nil || d.Language == "" {
		return DefaultLanguage
	}
	return d.Language
}

// Languages resolves languages for a set of document ids. Lookups that fail
// fall back to DefaultLanguage; the map always has one entry per id.
func (r *Registry) Languages(ctx context.Context, ids []string) map[string]string {
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		out[id] = r.Language(ctx, id)
	}
	return out
}

// Pages returns the recorded page count for a document, used by structural
// sampling in thematic retrieval.
func (r *Registry) Pages(ctx context.Context, id string) (int, error) {
	d, err := r.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return d.Pages, nil
}

// Relate records a RELATES_TO edge between two documents (citation,
// shared topic). Idempotent.
func (r *Registry) Relate(ctx context.Context, fromID, toID string) error {
	sess := r.session(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH (a:Document {id: $from}), (b:Document {id: $to})
	 MERGE (a)-[:RELATES_TO]->(b)`
	_, err := sess.Run(ctx, cypher, map[string]any{"from": fromID, "to": toID})
	if err != nil {
		return fmt.Errorf("registry: relate %s -> %s: %w", fromID, toID, err)
	}
	return nil
}

// Related returns documents connected to the given one in either direction.
func (r *Registry) Related(ctx context.Context, id string) ([]domain.DocumentInfo, error) {
	sess := r.session(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH (d:Document {id: $id})-[:RELATES_TO]-(n:Document)
	 RETURN DISTINCT n`
	res, err := sess.Run(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("registry: related %s: %w", id, err)
	}

	var docs []domain.DocumentInfo
	for res.Next(ctx) {
		node, _, err := neo4j.GetRecordValue[dbtype.Node](res.Record(), "n")
		if err != nil {
			continue
		}
		docs = append(docs, nodeToDoc(node))
	}
	return docs, nil
}
