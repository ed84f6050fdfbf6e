package storeclients

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/adverant/nexus-memory/pkg/memmodel"
	"github.com/adverant/nexus-memory/pkg/observability"
	"github.com/adverant/nexus-memory/pkg/recall"
)

// recallEdgeRelationships are the Cypher relationship labels the
// recall graph step follows between episodes, in the order spec'd:
// temporal, causal, then reference.
const recallEdgeRelationships = "TEMPORAL|CAUSAL|REFERENCE"

func edgeTypeFromRelationship(rel string) memmodel.EdgeType {
	switch rel {
	case "TEMPORAL":
		return memmodel.EdgeTemporal
	case "CAUSAL":
		return memmodel.EdgeCausal
	case "REFERENCE":
		return memmodel.EdgeReference
	default:
		return ""
	}
}

// adjacentEntityIDs returns the ids of entities a Memory node MENTIONS.
func (n *Neo4jGraphStore) adjacentEntityIDs(ctx context.Context, tenant memmodel.TenantContext, episodeID string) ([]string, error) {
	session := n.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	params := map[string]any{
		"id":         episodeID,
		"company_id": tenant.CompanyID,
		"app_id":     tenant.AppID,
	}

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (m:Memory {id: $id, company_id: $company_id, app_id: $app_id})-[:MENTIONS]->(e:Entity)
			RETURN e.id AS id
		`, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(records))
		for _, rec := range records {
			if id, ok := rec.Get("id"); ok {
				if s, ok := id.(string); ok {
					ids = append(ids, s)
				}
			}
		}
		return ids, nil
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j adjacent entities: %w", err)
	}
	ids, _ := result.([]string)
	return ids, nil
}

// connectedEpisodeEdges returns the temporal/causal/reference edges
// touching episodeID, in either direction, tenant-filtered.
func (n *Neo4jGraphStore) connectedEpisodeEdges(ctx context.Context, tenant memmodel.TenantContext, episodeID string) ([]memmodel.Edge, error) {
	session := n.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	params := map[string]any{
		"id":         episodeID,
		"company_id": tenant.CompanyID,
		"app_id":     tenant.AppID,
	}

	query := fmt.Sprintf(`
		MATCH (m:Memory {id: $id, company_id: $company_id, app_id: $app_id})-[r:%s]-(o:Memory)
		WHERE o.company_id = $company_id AND o.app_id = $app_id
		RETURN type(r) AS rel_type, startNode(r).id AS source_id, endNode(r).id AS target_id, r.weight AS weight
	`, recallEdgeRelationships)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		edges := make([]memmodel.Edge, 0, len(records))
		for _, rec := range records {
			relType, _ := rec.Get("rel_type")
			sourceID, _ := rec.Get("source_id")
			targetID, _ := rec.Get("target_id")
			weight, _ := rec.Get("weight")

			edge := memmodel.Edge{Type: edgeTypeFromRelationship(fmt.Sprintf("%v", relType))}
			if s, ok := sourceID.(string); ok {
				edge.SourceEpisodeID = s
			}
			if t, ok := targetID.(string); ok {
				edge.TargetEpisodeID = t
			}
			if w, ok := weight.(float64); ok {
				edge.Weight = w
			}
			edges = append(edges, edge)
		}
		return edges, nil
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j connected episodes: %w", err)
	}
	edges, _ := result.([]memmodel.Edge)
	return edges, nil
}

// RecallGraphReader assembles a candidate episode's graph neighborhood
// from the property graph (adjacent entities, connected episodes) and
// the relational fact store (top facts), composing the three backing
// stores the way episode.Engine composes its relational/vector/graph
// dependencies for the write path.
type RecallGraphReader struct {
	graph   *Neo4jGraphStore
	entities *PostgresEntityStore
	facts    *PostgresFactStore
	logger   observability.Logger
}

// NewRecallGraphReader builds a RecallGraphReader over existing store
// adapters.
func NewRecallGraphReader(graph *Neo4jGraphStore, entities *PostgresEntityStore, facts *PostgresFactStore, logger observability.Logger) *RecallGraphReader {
	if logger == nil {
		logger = observability.NewLogger("storeclients.recall_graph")
	}
	return &RecallGraphReader{graph: graph, entities: entities, facts: facts, logger: logger}
}

// FetchContext implements recall.GraphReader.
func (r *RecallGraphReader) FetchContext(ctx context.Context, tenant memmodel.TenantContext, episodeID string) (recall.GraphContext, error) {
	entityIDs, err := r.graph.adjacentEntityIDs(ctx, tenant, episodeID)
	if err != nil {
		return recall.GraphContext{}, err
	}

	var entities []memmodel.ExtractedEntity
	if len(entityIDs) > 0 {
		resolved, err := r.entities.GetByIDs(ctx, tenant, entityIDs)
		if err != nil {
			return recall.GraphContext{}, err
		}
		entities = make([]memmodel.ExtractedEntity, len(resolved))
		for i, e := range resolved {
			entities[i] = *e
		}
	}

	facts, err := r.facts.ListBySourceEpisode(ctx, tenant, episodeID, 5)
	if err != nil {
		return recall.GraphContext{}, err
	}

	edges, err := r.graph.connectedEpisodeEdges(ctx, tenant, episodeID)
	if err != nil {
		return recall.GraphContext{}, err
	}

	return recall.GraphContext{Entities: entities, Facts: facts, Edges: edges}, nil
}

var _ recall.GraphReader = (*RecallGraphReader)(nil)
