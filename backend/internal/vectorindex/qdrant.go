package vectorindex

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	apperrors "trails/backend/pkg/errors"
)

const (
	qdrantTextKey  = "text"
	qdrantNodeKey  = "node_id"
	qdrantLabelKey = "label"
)

// QdrantBackend keeps indexes in Qdrant, one collection per index name.
type QdrantBackend struct {
	client     *qdrant.Client
	embedder   Embedder
	dimensions uint64
}

// NewQdrantBackend connects to Qdrant over gRPC.
func NewQdrantBackend(host string, port int, embedder Embedder, dimensions int) (*QdrantBackend, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	return &QdrantBackend{client: client, embedder: embedder, dimensions: uint64(dimensions)}, nil
}

// Close releases the gRPC connection.
func (b *QdrantBackend) Close() error {
	return b.client.Close()
}

func (b *QdrantBackend) Attach(ctx context.Context, name, label string) (Index, error) {
	exists, err := b.client.CollectionExists(ctx, name)
	if err != nil {
		return nil, apperrors.NewIndexUnavailable(name, err)
	}
	if !exists {
		return nil, apperrors.NewIndexNotFound(name)
	}
	return &qdrantIndex{backend: b, name: name, label: label}, nil
}

func (b *QdrantBackend) Bootstrap(ctx context.Context, name, label, placeholder string) error {
	err := b.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     b.dimensions,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	idx := &qdrantIndex{backend: b, name: name, label: label}
	return idx.Add(ctx, Document{ID: uuid.New().String(), Text: placeholder, Label: label})
}

type qdrantIndex struct {
	backend *QdrantBackend
	name    string
	label   string
}

func (i *qdrantIndex) Name() string  { return i.name }
func (i *qdrantIndex) Label() string { return i.label }

// Add upserts the document. Point ids must be UUIDs, so other node ids are
// mapped to a stable name-based UUID and kept in the payload.
func (i *qdrantIndex) Add(ctx context.Context, doc Document) error {
	vector, err := i.backend.embedder.Embed(ctx, doc.Text)
	if err != nil {
		return err
	}
	pointID := doc.ID
	if _, err := uuid.Parse(pointID); err != nil {
		pointID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(doc.ID)).String()
	}

	_, err = i.backend.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: i.name,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(pointID),
			Vectors: qdrant.NewVectors(vector...),
			Payload: map[string]*qdrant.Value{
				qdrantTextKey:  stringValue(doc.Text),
				qdrantNodeKey:  stringValue(doc.ID),
				qdrantLabelKey: stringValue(doc.Label),
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert into %s: %w", i.name, err)
	}
	return nil
}

func (i *qdrantIndex) Search(ctx context.Context, text string, k int) ([]Neighbor, error) {
	vector, err := i.backend.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	points, err := i.backend.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: i.name,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", i.name, err)
	}

	neighbors := make([]Neighbor, 0, len(points))
	for _, p := range points {
		neighbors = append(neighbors, Neighbor{
			ID:    p.Payload[qdrantNodeKey].GetStringValue(),
			Text:  p.Payload[qdrantTextKey].GetStringValue(),
			Score: cosineToRelevance(float64(p.Score)),
		})
	}
	return neighbors, nil
}

func stringValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}
