package repository

import (
	"context"
	"crypto/tls"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"github.com/timmy/armscan/internal/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

const (
	upsertBatchSize = 128
	scrollPageSize  = 256
)

// referencePointNamespace seeds deterministic point ids for reference images.
var referencePointNamespace = uuid.MustParse("6f1c2a0e-3b8d-4c55-9a0e-5d7b1f3c2e41")

// QdrantConnectionConfig holds configuration for Qdrant connection
type QdrantConnectionConfig struct {
	Host       string
	Port       int
	Collection string
	APIKey     string // Qdrant Cloud API Key (enables TLS automatically)
	UseTLS     bool   // Explicitly enable TLS without API Key
}

// apiKeyInterceptor creates a unary interceptor that adds API key to metadata
func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// QdrantRepository stores reference image embeddings in a Qdrant collection.
// The collection holds exactly one build; saving a new build recreates it.
type QdrantRepository struct {
	conn           *grpc.ClientConn
	pointsClient   pb.PointsClient
	collectClient  pb.CollectionsClient
	collectionName string
}

// NewQdrantRepository creates a new QdrantRepository
// Supports both local Qdrant (insecure) and Qdrant Cloud (TLS + API Key)
func NewQdrantRepository(cfg *QdrantConnectionConfig) (*QdrantRepository, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var opts []grpc.DialOption
	if cfg.UseTLS || cfg.APIKey != "" {
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS13})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return &QdrantRepository{
		conn:           conn,
		pointsClient:   pb.NewPointsClient(conn),
		collectClient:  pb.NewCollectionsClient(conn),
		collectionName: cfg.Collection,
	}, nil
}

// Close closes the gRPC connection
func (r *QdrantRepository) Close() error {
	return r.conn.Close()
}

// ReferencePointID returns the deterministic point id of a reference image.
// The same encoder and path always map to the same id.
func ReferencePointID(encoderID, path string) string {
	return uuid.NewSHA1(referencePointNamespace, []byte(encoderID+"|"+path)).String()
}

// Save recreates the collection sized for idx and upserts every entry.
func (r *QdrantRepository) Save(ctx context.Context, idx *domain.ReferenceIndex) error {
	if err := r.Clear(ctx, idx.Build.CorpusPath); err != nil {
		return err
	}
	if len(idx.Entries) == 0 {
		return nil
	}
	if err := r.createCollection(ctx, uint64(idx.Build.Dim)); err != nil {
		return err
	}

	wait := true
	for start := 0; start < len(idx.Entries); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(idx.Entries))
		points := make([]*pb.PointStruct, 0, end-start)
		for _, e := range idx.Entries[start:end] {
			points = append(points, referencePoint(&idx.Build, &e))
		}

		if _, err := r.pointsClient.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: r.collectionName,
			Wait:           &wait,
			Points:         points,
		}); err != nil {
			return fmt.Errorf("failed to upsert reference points: %w", err)
		}
	}
	return nil
}

func referencePoint(build *domain.IndexBuild, e *domain.ReferenceEntry) *pb.PointStruct {
	return &pb.PointStruct{
		Id: &pb.PointId{
			PointIdOptions: &pb.PointId_Uuid{Uuid: ReferencePointID(build.EncoderID, e.Path)},
		},
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: e.Vector}},
		},
		Payload: map[string]*pb.Value{
			"label":       stringValue(e.Label),
			"path":        stringValue(e.Path),
			"position":    {Kind: &pb.Value_IntegerValue{IntegerValue: int64(e.Position)}},
			"build_id":    stringValue(build.ID),
			"corpus_path": stringValue(build.CorpusPath),
			"encoder_id":  stringValue(build.EncoderID),
			"fingerprint": stringValue(build.Fingerprint),
			"skipped":     {Kind: &pb.Value_IntegerValue{IntegerValue: int64(build.Skipped)}},
			"created_at":  stringValue(build.CreatedAt.UTC().Format(time.RFC3339Nano)),
		},
	}
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

// Load scrolls the whole collection and rebuilds the index in walk order.
// A missing collection, or one built from another corpus, is a cache miss.
func (r *QdrantRepository) Load(ctx context.Context, corpusPath string) (*domain.ReferenceIndex, error) {
	exists, err := r.collectionExists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrCacheMiss
	}

	idx := &domain.ReferenceIndex{LogitScale: 1, Source: domain.IndexSourceStore}
	limit := uint32(scrollPageSize)
	var offset *pb.PointId
	for {
		resp, err := r.pointsClient.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: r.collectionName,
			Offset:         offset,
			Limit:          &limit,
			WithPayload: &pb.WithPayloadSelector{
				SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
			},
			WithVectors: &pb.WithVectorsSelector{
				SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scroll reference points: %w", err)
		}

		for _, p := range resp.GetResult() {
			payload := p.GetPayload()
			if len(idx.Entries) == 0 {
				idx.Build = parseBuild(payload)
			}
			idx.Entries = append(idx.Entries, domain.ReferenceEntry{
				BuildID:  payload["build_id"].GetStringValue(),
				Position: int(payload["position"].GetIntegerValue()),
				Label:    payload["label"].GetStringValue(),
				Path:     payload["path"].GetStringValue(),
				Vector:   domain.Vector(p.GetVectors().GetVector().GetData()),
			})
		}

		offset = resp.GetNextPageOffset()
		if offset == nil {
			break
		}
	}

	if len(idx.Entries) == 0 || idx.Build.CorpusPath != corpusPath {
		return nil, domain.ErrCacheMiss
	}

	// points come back in id order
	sort.Slice(idx.Entries, func(i, j int) bool { return idx.Entries[i].Position < idx.Entries[j].Position })
	idx.Build.EntryCount = len(idx.Entries)
	idx.Build.Dim = len(idx.Entries[0].Vector)
	return idx, nil
}

func parseBuild(payload map[string]*pb.Value) domain.IndexBuild {
	build := domain.IndexBuild{
		ID:          payload["build_id"].GetStringValue(),
		CorpusPath:  payload["corpus_path"].GetStringValue(),
		EncoderID:   payload["encoder_id"].GetStringValue(),
		Fingerprint: payload["fingerprint"].GetStringValue(),
		Skipped:     int(payload["skipped"].GetIntegerValue()),
		Shape:       domain.IndexShapeCorpus,
	}
	if t, err := time.Parse(time.RFC3339Nano, payload["created_at"].GetStringValue()); err == nil {
		build.CreatedAt = t
	}
	return build
}

// Clear drops the collection if it exists.
func (r *QdrantRepository) Clear(ctx context.Context, corpusPath string) error {
	exists, err := r.collectionExists(ctx)
	if err != nil || !exists {
		return err
	}
	if _, err := r.collectClient.Delete(ctx, &pb.DeleteCollection{
		CollectionName: r.collectionName,
	}); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

func (r *QdrantRepository) collectionExists(ctx context.Context) (bool, error) {
	resp, err := r.collectClient.CollectionExists(ctx, &pb.CollectionExistsRequest{
		CollectionName: r.collectionName,
	})
	if err != nil {
		return false, fmt.Errorf("failed to check collection: %w", err)
	}
	return resp.GetResult().GetExists(), nil
}

func (r *QdrantRepository) createCollection(ctx context.Context, dim uint64) error {
	_, err := r.collectClient.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collectionName,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     dim,
					Distance: pb.Distance_Cosine,
				},
			},
		},
		HnswConfig: &pb.HnswConfigDiff{
			M:                 optionalUint64(16),
			EfConstruct:       optionalUint64(128),
			FullScanThreshold: optionalUint64(10000),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

func optionalUint64(v uint64) *uint64 {
	return &v
}
