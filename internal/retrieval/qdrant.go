package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// Chunk is one indexable slice of a source document.
type Chunk struct {
	ID   string
	Text string
	Path string
}

// QdrantStore persists document chunks and answers nearest-neighbour queries.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	logger     *slog.Logger
}

type QdrantOptions struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

func NewQdrantStore(log *slog.Logger, opts QdrantOptions) (*QdrantStore, error) {
	if log == nil {
		log = slog.Default()
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   opts.Host,
		Port:   opts.Port,
		APIKey: opts.APIKey,
		UseTLS: opts.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant client: %w", err)
	}
	return &QdrantStore{
		client:     client,
		collection: opts.Collection,
		logger:     log.With(slog.String("service", "qdrant")),
	}, nil
}

// EnsureCollection creates the collection when it does not exist yet.
func (s *QdrantStore) EnsureCollection(ctx context.Context, dimensions int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", s.collection, err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", s.collection, err)
	}
	s.logger.Info("collection created",
		slog.String("collection", s.collection),
		slog.Int("dimensions", dimensions))
	return nil
}

// Upsert writes chunks with their embedding vectors. vectors[i] belongs to
// chunks[i].
func (s *QdrantStore) Upsert(ctx context.Context, chunks []Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk/vector count mismatch: %d vs %d", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i, chunk := range chunks {
		id := chunk.ID
		if id == "" {
			id = uuid.NewString()
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(id),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				"text": chunk.Text,
				"path": chunk.Path,
			}),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("upsert %d points: %w", len(points), err)
	}
	return nil
}

// Search returns up to limit nearest chunks for the query vector, best first.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, limit int) ([]Hit, error) {
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", s.collection, err)
	}

	hits := make([]Hit, 0, len(points))
	for _, point := range points {
		hit := Hit{Score: float64(point.GetScore())}
		if payload := point.GetPayload(); payload != nil {
			hit.Text = payload["text"].GetStringValue()
			hit.Path = payload["path"].GetStringValue()
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
