package storeclients

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/adverant/nexus-memory/pkg/memmodel"
	"github.com/adverant/nexus-memory/pkg/observability"
	"github.com/adverant/nexus-memory/pkg/rollback"
)

// QdrantVectorStore is the vector index backing similarity search. One
// collection holds both episodic memories and document chunks,
// disambiguated by the "content_type" payload field.
type QdrantVectorStore struct {
	client     *qdrant.Client
	collection string
	logger     observability.Logger
	metrics    observability.MetricsClient
}

// NewQdrantVectorStore wraps an existing Qdrant client connection.
func NewQdrantVectorStore(client *qdrant.Client, collection string, logger observability.Logger, metrics observability.MetricsClient) *QdrantVectorStore {
	if collection == "" {
		collection = "nexus_memory"
	}
	if logger == nil {
		logger = observability.NewLogger("storeclients.qdrant")
	}
	if metrics == nil {
		metrics = observability.NewMetricsClient()
	}
	return &QdrantVectorStore{client: client, collection: collection, logger: logger, metrics: metrics}
}

func (q *QdrantVectorStore) Name() string { return "qdrant_vector" }

// EnsureCollection creates the backing collection if it does not exist
// yet, sized for memmodel.VectorDimension with cosine distance.
func (q *QdrantVectorStore) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     memmodel.VectorDimension,
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func (q *QdrantVectorStore) Upsert(ctx context.Context, record memmodel.VectorRecord) error {
	if err := memmodel.ValidateVector(record.Vector); err != nil {
		return err
	}

	payload := map[string]any{
		"content":      record.Content,
		"content_type": string(record.ContentType),
		"company_id":   record.Tenant.CompanyID,
		"app_id":       record.Tenant.AppID,
		"user_id":      record.Tenant.UserID,
	}
	for k, v := range record.Metadata {
		payload[k] = v
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewID(record.PointID),
				Vectors: qdrant.NewVectors(record.Vector...),
				Payload: qdrant.NewValueMap(payload),
			},
		},
	})
	if err != nil {
		q.metrics.IncrementCounter("storeclients_qdrant_upsert_errors", 1)
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

// FindSimilar runs a tenant-filtered nearest-neighbor query.
func (q *QdrantVectorStore) FindSimilar(ctx context.Context, tenant memmodel.TenantContext, vector []float32, minScore float64, limit int) ([]memmodel.VectorRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("company_id", tenant.CompanyID),
			qdrant.NewMatch("app_id", tenant.AppID),
		},
		Should: []*qdrant.Condition{
			qdrant.NewMatch("user_id", tenant.UserID),
			qdrant.NewMatch("user_id", memmodel.SystemUserID),
		},
	}

	scoreThreshold := float32(minScore)
	limitU := uint64(limit)
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         filter,
		Limit:          &limitU,
		ScoreThreshold: &scoreThreshold,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}

	records := make([]memmodel.VectorRecord, 0, len(points))
	for _, p := range points {
		records = append(records, scoredPointToRecord(p, tenant))
	}
	return records, nil
}

// FindByPage returns every document_chunk point tagged with page,
// tenant-filtered, for the recall engine's page-anchor override. It
// applies no score threshold: page-anchored lookups are an exact
// metadata match, not a similarity search.
func (q *QdrantVectorStore) FindByPage(ctx context.Context, tenant memmodel.TenantContext, page int) ([]memmodel.VectorRecord, error) {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("company_id", tenant.CompanyID),
			qdrant.NewMatch("app_id", tenant.AppID),
			qdrant.NewMatch("content_type", string(memmodel.ContentDocumentChunk)),
			qdrant.NewMatchInt("page_number", int64(page)),
		},
		Should: []*qdrant.Condition{
			qdrant.NewMatch("user_id", tenant.UserID),
			qdrant.NewMatch("user_id", memmodel.SystemUserID),
		},
	}

	limit := uint32(100)
	points, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: q.collection,
		Filter:         filter,
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant scroll by page: %w", err)
	}

	records := make([]memmodel.VectorRecord, 0, len(points))
	for _, p := range points {
		records = append(records, retrievedPointToRecord(p, tenant))
	}
	return records, nil
}

func retrievedPointToRecord(p *qdrant.RetrievedPoint, tenant memmodel.TenantContext) memmodel.VectorRecord {
	record := memmodel.VectorRecord{
		PointID:  pointIDString(p.Id),
		Tenant:   tenant,
		Metadata: map[string]any{},
	}
	for k, v := range p.Payload {
		switch k {
		case "content":
			record.Content = v.GetStringValue()
		case "content_type":
			record.ContentType = memmodel.ContentType(v.GetStringValue())
		case "company_id", "app_id", "user_id":
		default:
			record.Metadata[k] = payloadValue(v)
		}
	}
	return record
}

func scoredPointToRecord(p *qdrant.ScoredPoint, tenant memmodel.TenantContext) memmodel.VectorRecord {
	record := memmodel.VectorRecord{
		PointID:  pointIDString(p.Id),
		Tenant:   tenant,
		Metadata: map[string]any{},
		Score:    float64(p.Score),
	}
	for k, v := range p.Payload {
		switch k {
		case "content":
			record.Content = v.GetStringValue()
		case "content_type":
			record.ContentType = memmodel.ContentType(v.GetStringValue())
		case "company_id", "app_id", "user_id":
			// tenant fields, already carried on record.Tenant
		default:
			record.Metadata[k] = payloadValue(v)
		}
	}
	return record
}

// payloadValue extracts the Go value behind a Qdrant payload value,
// covering the scalar kinds memory/episode metadata actually uses.
func payloadValue(v *qdrant.Value) any {
	switch {
	case v.GetStringValue() != "":
		return v.GetStringValue()
	case v.GetIntegerValue() != 0:
		return v.GetIntegerValue()
	case v.GetDoubleValue() != 0:
		return v.GetDoubleValue()
	case v.GetBoolValue():
		return true
	default:
		return nil
	}
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return fmt.Sprintf("%d", id.GetNum())
}

func (q *QdrantVectorStore) Delete(ctx context.Context, tenant memmodel.TenantContext, ids []string) rollback.DeleteResult {
	if len(ids) == 0 {
		return rollback.DeleteResult{Success: true}
	}
	points := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		points[i] = qdrant.NewID(id)
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(points...),
	})
	if err != nil {
		q.logger.Error("qdrant delete failed", map[string]interface{}{"error": err.Error()})
		return rollback.DeleteResult{Success: false, Error: fmt.Errorf("qdrant delete: %w", err)}
	}
	return rollback.DeleteResult{Success: true, RecordsDeleted: len(ids)}
}

func (q *QdrantVectorStore) Exists(ctx context.Context, tenant memmodel.TenantContext, id string) (bool, error) {
	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.collection,
		Ids:            []*qdrant.PointId{qdrant.NewID(id)},
	})
	if err != nil {
		return false, fmt.Errorf("qdrant get: %w", err)
	}
	return len(points) > 0, nil
}
