// Package semantic owns all Qdrant operations: collection lifecycle, chunk
// upserts, and the similarity search primitive used by every retrieval
// strategy.
package semantic

import (
	"context"
	"fmt"
	"log/slog"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// DefaultThreshold is the permissive store-level similarity floor. Precision
// is handled downstream by reranking, not by the store.
const DefaultThreshold float32 = 0.30

// VectorStore is the sole owner of all Qdrant operations.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	logger      *slog.Logger
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
func New(addr string, collection string, logger *slog.Logger) (*VectorStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		logger:      logger,
	}, nil
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	return v.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist.
func (v *VectorStore) EnsureCollection(ctx context.Context, dims int) error {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			return nil
		}
	}

	d := uint64(dims)
	_, err = v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     d,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", v.collection, err)
	}
	return nil
}

// Upsert stores embedding records. Called by engine/ingest.
func (v *VectorStore) Upsert(ctx context.Context, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: r.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Embedding},
				},
			},
			Payload: toPayload(r.Payload),
		}
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(records), err)
	}
	return nil
}

// DeleteByDocID removes all points of a document. Used for re-embedding:
// chunks are superseded, never edited in place.
func (v *VectorStore) DeleteByDocID(ctx context.Context, docID string) error {
	wait := true
	_, err := v.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{fieldMatch("document_id", docID)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: delete by document_id %s: %w", docID, err)
	}
	return nil
}

// DeleteByIDs removes specific points, used by the duplicate-pruning pass.
func (v *VectorStore) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}
	}
	wait := true
	_, err := v.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: delete %d points: %w", len(ids), err)
	}
	return nil
}

// Search performs k-NN similarity search restricted to the given document
// set, with a similarity floor. Results are ordered descending by score and
// capped at limit. On service error it logs and returns an empty result so
// callers can apply their fallback policy.
func (v *VectorStore) Search(ctx context.Context, embedding []float32, docIDs []string, limit int, threshold float32) []SearchResult {
	if limit <= 0 {
		return nil
	}
	req := &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         embedding,
		Limit:          uint64(limit),
		ScoreThreshold: &threshold,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if f := docFilter(docIDs); f != nil {
		req.Filter = f
	}

	resp, err := v.points.Search(ctx, req)
	if err != nil {
		v.logger.Warn("semantic: search failed, returning empty result", "err", err, "docs", len(docIDs))
		return nil
	}

	results := make([]SearchResult, len(resp.GetResult()))
	for i, p := range resp.GetResult() {
		results[i] = scoredToResult(p.GetId().GetUuid(), p.GetScore(), p.GetPayload())
	}
	return results
}

// KeywordSearch returns chunks whose text contains any of the keywords,
// restricted to the document set. Scores are not similarity-based; hits get
// a neutral score and the "keyword" origin tag.
func (v *VectorStore) KeywordSearch(ctx context.Context, docIDs []string, keywords []string, limit int) []SearchResult {
	if len(keywords) == 0 || limit <= 0 {
		return nil
	}

	should := make([]*pb.Condition, 0, len(keywords))
	for _, kw := range keywords {
		should = append(should, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key:   "text",
					Match: &pb.Match{MatchValue: &pb.Match_Text{Text: kw}},
				},
			},
		})
	}
	filter := &pb.Filter{Should: should}
	if f := docFilter(docIDs); f != nil {
		filter.Must = f.Must
	}

	return v.scroll(ctx, filter, limit, "keyword")
}

// ByPages returns chunks of a document on the given pages, used for
// page-adjacent context expansion.
func (v *VectorStore) ByPages(ctx context.Context, docID string, pages []int) []SearchResult {
	if len(pages) == 0 {
		return nil
	}
	ints := make([]int64, len(pages))
	for i, p := range pages {
		ints[i] = int64(p)
	}
	filter := &pb.Filter{Must: []*pb.Condition{
		fieldMatch("document_id", docID),
		{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key:   "page_number",
					Match: &pb.Match{MatchValue: &pb.Match_Integers{Integers: &pb.RepeatedIntegers{Integers: ints}}},
				},
			},
		},
	}}
	return v.scroll(ctx, filter, len(pages)*8, "adjacent")
}

// ChunksByDocument returns up to limit chunks of one document, used by the
// duplicate-pruning cleanup pass.
func (v *VectorStore) ChunksByDocument(ctx context.Context, docID string, limit int) []SearchResult {
	filter := &pb.Filter{Must: []*pb.Condition{fieldMatch("document_id", docID)}}
	return v.scroll(ctx, filter, limit, "")
}

func (v *VectorStore) scroll(ctx context.Context, filter *pb.Filter, limit int, origin string) []SearchResult {
	l := uint32(limit)
	resp, err := v.points.Scroll(ctx, &pb.ScrollPoints{
		CollectionName: v.collection,
		Filter:         filter,
		Limit:          &l,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		v.logger.Warn("semantic: scroll failed, returning empty result", "err", err)
		return nil
	}

	results := make([]SearchResult, len(resp.GetResult()))
	for i, p := range resp.GetResult() {
		r := scoredToResult(p.GetId().GetUuid(), 0, p.GetPayload())
		r.Origin = origin
		results[i] = r
	}
	return results
}

// docFilter builds the document-set restriction, nil when unrestricted.
func docFilter(docIDs []string) *pb.Filter {
	switch len(docIDs) {
	case 0:
		return nil
	case 1:
		return &pb.Filter{Must: []*pb.Condition{fieldMatch("document_id", docIDs[0])}}
	default:
		return &pb.Filter{Must: []*pb.Condition{{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key: "document_id",
					Match: &pb.Match{
						MatchValue: &pb.Match_Keywords{Keywords: &pb.RepeatedStrings{Strings: docIDs}},
					},
				},
			},
		}}}
	}
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

// toPayload converts a generic payload map to qdrant values.
func toPayload(m map[string]any) map[string]*pb.Value {
	payload := make(map[string]*pb.Value, len(m))
	for k, val := range m {
		switch tv := val.(type) {
		case string:
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
		case int:
			payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
		case int64:
			payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
		case float64:
			payload[k] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
		case bool:
			payload[k] = &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
		default:
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
		}
	}
	return payload
}

// scoredToResult maps a qdrant payload back to a SearchResult.
func scoredToResult(id string, score float32, payload map[string]*pb.Value) SearchResult {
	sr := SearchResult{
		ID:     id,
		Score:  score,
		Origin: "vector",
		Meta:   make(map[string]string),
	}
	for k, val := range payload {
		switch k {
		case "text":
			sr.Text = val.GetStringValue()
		case "document_id":
			sr.DocumentID = val.GetStringValue()
		case "page_number":
			sr.PageNumber = int(val.GetIntegerValue())
		default:
			sr.Meta[k] = val.GetStringValue()
		}
	}
	return sr
}
