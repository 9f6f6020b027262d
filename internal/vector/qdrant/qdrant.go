package qdrant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/hackrx/docqa/internal/vector"
)

// Config for a Qdrant-backed repository.
type Config struct {
	Addr       string // gRPC address, host:port
	APIKey     string
	Collection string
	Dimension  int
	BatchSize  int // entries per upsert request, defaults to vector.DefaultBatchSize
}

// Repository implements vector.Repository over Qdrant's gRPC API.
type Repository struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	dimension   int
	batchSize   int
}

// New connects to Qdrant and ensures the collection exists (cosine distance,
// configured dimension). The ListCollections round trip doubles as a
// connectivity check so a dead address fails here, not on first use.
func New(ctx context.Context, cfg Config) (*Repository, error) {
	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if cfg.APIKey != "" {
		key := cfg.APIKey
		opts = append(opts, grpc.WithUnaryInterceptor(
			func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, callOpts ...grpc.CallOption) error {
				ctx = metadata.AppendToOutgoingContext(ctx, "api-key", key)
				return invoker(ctx, method, req, reply, cc, callOpts...)
			}))
	}

	conn, err := grpc.NewClient(cfg.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = vector.DefaultBatchSize
	}

	r := &Repository{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  cfg.Collection,
		dimension:   cfg.Dimension,
		batchSize:   batchSize,
	}

	if err := r.ensureCollection(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("qdrant collection %q: %w", cfg.Collection, err)
	}
	return r, nil
}

func (r *Repository) ensureCollection(ctx context.Context) error {
	resp, err := r.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return err
	}
	for _, c := range resp.GetCollections() {
		if c.GetName() == r.collection {
			return nil
		}
	}

	_, err = r.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(r.dimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	return err
}

// pointUUID maps the composite chunk key onto a Qdrant-legal point id.
// Qdrant accepts only UUIDs or integers, so the key is hashed
// deterministically; the raw document_id and chunk_index live in the payload.
func pointUUID(docID string, index int) string {
	return uuid.NewMD5(uuid.NameSpaceURL, []byte(vector.PointID(docID, index))).String()
}

func (r *Repository) Upsert(ctx context.Context, docID string, chunks []vector.Chunk) error {
	for _, c := range chunks {
		if r.dimension > 0 && len(c.Vector) != r.dimension {
			return &vector.DimensionMismatchError{Got: len(c.Vector), Want: r.dimension}
		}
	}

	wait := true
	for start, batch := 0, 0; start < len(chunks); start, batch = start+r.batchSize, batch+1 {
		end := start + r.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		points := make([]*pb.PointStruct, 0, end-start)
		for _, c := range chunks[start:end] {
			text := vector.SanitizeUTF8(vector.TruncateForPayload(c.Text))
			points = append(points, &pb.PointStruct{
				Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: pointUUID(docID, c.Index)}},
				Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: c.Vector},
				}},
				Payload: map[string]*pb.Value{
					"document_id": {Kind: &pb.Value_StringValue{StringValue: docID}},
					"chunk_index": {Kind: &pb.Value_IntegerValue{IntegerValue: int64(c.Index)}},
					"text":        {Kind: &pb.Value_StringValue{StringValue: text}},
				},
			})
		}

		// Wait so a follow-up Exists probe sees the write
		_, err := r.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: r.collection,
			Points:         points,
			Wait:           &wait,
		})
		if err != nil {
			return &vector.IndexWriteError{Batch: batch, Err: err}
		}
	}
	return nil
}

func (r *Repository) Exists(ctx context.Context, docID string) (bool, error) {
	limit := uint32(1)
	resp, err := r.points.Scroll(ctx, &pb.ScrollPoints{
		CollectionName: r.collection,
		Filter:         documentFilter(docID),
		Limit:          &limit,
	})
	if err != nil {
		return false, err
	}
	return len(resp.GetResult()) > 0, nil
}

func (r *Repository) Query(ctx context.Context, vec []float32, docID string, topK int) ([]vector.SearchResult, error) {
	if topK <= 0 {
		topK = 8
	}
	resp, err := r.points.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collection,
		Vector:         vec,
		Filter:         documentFilter(docID),
		Limit:          uint64(topK),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, &vector.IndexQueryError{Err: err}
	}

	results := make([]vector.SearchResult, len(resp.GetResult()))
	for i, pt := range resp.GetResult() {
		results[i] = vector.SearchResult{
			Text:  pt.Payload["text"].GetStringValue(),
			Score: pt.Score,
			Index: int(pt.Payload["chunk_index"].GetIntegerValue()),
		}
	}
	return results, nil
}

func documentFilter(docID string) *pb.Filter {
	return &pb.Filter{
		Must: []*pb.Condition{{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key:   "document_id",
					Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: docID}},
				},
			},
		}},
	}
}

func (r *Repository) Close() error {
	return r.conn.Close()
}

var _ vector.Repository = (*Repository)(nil)
