// Package vectorstore provides vector storage implementations.
package vectorstore

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// qdrantTracer for OpenTelemetry instrumentation.
var qdrantTracer = otel.Tracer("voxnote.vectorstore.qdrant")

// payloadDocumentKey holds the indexed text inside the Qdrant point payload.
const payloadDocumentKey = "document"

// payloadNoteIDKey holds the original note id inside the point payload.
const payloadNoteIDKey = "note_id"

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port (NOT the HTTP REST port).
	// Default: 6334
	Port int

	// Collection is the collection name holding the note corpus.
	// Default: "notes"
	Collection string

	// VectorSize is the dimensionality of embeddings.
	// MUST match the embedder's output dimension.
	VectorSize uint64

	// UseTLS enables TLS encryption for the gRPC connection.
	UseTLS bool

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "notes"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: collection name required", ErrInvalidConfig)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// QdrantStore is a Store implementation using Qdrant's native gRPC client.
//
// Point IDs are derived deterministically from the note id, so re-adding a
// note overwrites its previous point rather than creating a duplicate. The
// original note id travels in the payload for retrieval.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger
}

// NewQdrantStore creates a new QdrantStore and ensures the collection exists.
func NewQdrantStore(config QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if !config.UseTLS {
		fmt.Fprintf(os.Stderr, "WARNING: Qdrant gRPC using plaintext (TLS disabled). Insecure for production.\n")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &QdrantStore{
		client: client,
		config: config,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("QdrantStore initialized",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("collection", config.Collection),
		zap.Uint64("vector_size", config.VectorSize),
	)

	return store, nil
}

// Path returns the remote address backing this store.
func (s *QdrantStore) Path() string {
	return fmt.Sprintf("qdrant://%s:%d/%s", s.config.Host, s.config.Port, s.config.Collection)
}

// ensureCollection creates the notes collection if it does not exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", s.config.Collection, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.config.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.config.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		// Lost a create race with another process.
		if st, ok := status.FromError(err); ok && st.Code() == grpccodes.AlreadyExists {
			return nil
		}
		return fmt.Errorf("creating collection %s: %w", s.config.Collection, err)
	}
	return nil
}

// pointID derives the deterministic Qdrant point UUID for a note id.
func pointID(id string) *qdrant.PointId {
	u := uuid.NewSHA1(uuid.NameSpaceURL, []byte("voxnote:note:"+id))
	return qdrant.NewIDUUID(u.String())
}

// Upsert inserts or replaces the entry stored under id.
func (s *QdrantStore) Upsert(ctx context.Context, id string, vector []float32, document string, metadata map[string]string) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Upsert")
	defer span.End()

	span.SetAttributes(
		attribute.String("id", id),
		attribute.String("collection", s.config.Collection),
	)

	if id == "" {
		return ErrEmptyID
	}
	if len(vector) == 0 {
		return ErrEmptyVector
	}

	payload := make(map[string]*qdrant.Value, len(metadata)+2)
	payload[payloadDocumentKey] = qdrant.NewValueString(document)
	payload[payloadNoteIDKey] = qdrant.NewValueString(id)
	for k, v := range metadata {
		payload[k] = qdrant.NewValueString(v)
	}

	point := &qdrant.PointStruct{
		Id:      pointID(id),
		Vectors: qdrant.NewVectors(vector...),
		Payload: payload,
	}

	// Wait=true so the write is durable before returning.
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.config.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting point for %s: %w", id, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Query returns up to k nearest neighbors by cosine distance, closest first.
func (s *QdrantStore) Query(ctx context.Context, vector []float32, k int) ([]Neighbor, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Query")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("k", k),
	)

	if len(vector) == 0 {
		return nil, ErrEmptyVector
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	count, err := s.Count(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if count == 0 {
		return []Neighbor{}, nil
	}
	if k > count {
		k = count
	}

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.config.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	neighbors := make([]Neighbor, 0, len(results))
	for _, point := range results {
		n := Neighbor{
			// Qdrant cosine score is similarity, 1 = identical.
			Distance: 1 - point.Score,
			Metadata: make(map[string]string),
		}
		for key, value := range point.Payload {
			str := value.GetStringValue()
			switch key {
			case payloadDocumentKey:
				n.Document = str
			case payloadNoteIDKey:
				n.ID = str
			default:
				n.Metadata[key] = str
			}
		}
		neighbors = append(neighbors, n)
	}

	span.SetAttributes(attribute.Int("results_count", len(neighbors)))
	span.SetStatus(codes.Ok, "success")
	return neighbors, nil
}

// Delete removes the entry stored under id. Absent ids are a no-op.
func (s *QdrantStore) Delete(ctx context.Context, id string) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Delete")
	defer span.End()

	span.SetAttributes(
		attribute.String("id", id),
		attribute.String("collection", s.config.Collection),
	)

	if id == "" {
		return ErrEmptyID
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.config.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(pointID(id)),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting point for %s: %w", id, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Count returns the current number of entries.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Count")
	defer span.End()

	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.config.Collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("counting collection %s: %w", s.config.Collection, err)
	}

	span.SetAttributes(attribute.Int("count", int(count)))
	span.SetStatus(codes.Ok, "success")
	return int(count), nil
}

// Drop removes the entire index and recreates an empty collection.
func (s *QdrantStore) Drop(ctx context.Context) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Drop")
	defer span.End()

	span.SetAttributes(attribute.String("collection", s.config.Collection))

	if err := s.client.DeleteCollection(ctx, s.config.Collection); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection %s: %w", s.config.Collection, err)
	}

	if err := s.ensureCollection(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "success")

	s.logger.Warn("dropped qdrant collection",
		zap.String("collection", s.config.Collection),
	)

	return nil
}

// Close closes the Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	s.logger.Info("qdrant store closed")
	return s.client.Close()
}

// Ensure QdrantStore implements Store interface.
var _ Store = (*QdrantStore)(nil)
