package storeclients

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/adverant/nexus-memory/pkg/episode"
	"github.com/adverant/nexus-memory/pkg/memmodel"
)

// edgeRelationship maps an EdgeType to its Cypher relationship label.
func edgeRelationship(t memmodel.EdgeType) string {
	switch t {
	case memmodel.EdgeTemporal:
		return "TEMPORAL"
	case memmodel.EdgeCausal:
		return "CAUSAL"
	case memmodel.EdgeReference:
		return "REFERENCE"
	case memmodel.EdgeContradiction:
		return "CONTRADICTS"
	case memmodel.EdgeElaboration:
		return "ELABORATES"
	case memmodel.EdgeSummarizedIn:
		return "SUMMARIZED_IN"
	case memmodel.EdgeSimilarTo:
		return "SIMILAR_TO"
	case memmodel.EdgeMentions:
		return "MENTIONS"
	default:
		return "RELATED"
	}
}

// CreateEdge creates a directed, typed edge between two episode nodes.
func (n *Neo4jGraphStore) CreateEdge(ctx context.Context, tenant memmodel.TenantContext, edge memmodel.Edge) error {
	session := n.session(ctx)
	defer session.Close(ctx)

	rel := edgeRelationship(edge.Type)
	cypher := fmt.Sprintf(`
		MATCH (a:Memory {id: $source_id, company_id: $company_id, app_id: $app_id})
		MATCH (b:Memory {id: $target_id, company_id: $company_id, app_id: $app_id})
		MERGE (a)-[r:%s]->(b)
		SET r.weight = $weight, r.created_at = $created_at
	`, rel)

	params := map[string]any{
		"source_id":  edge.SourceEpisodeID,
		"target_id":  edge.TargetEpisodeID,
		"company_id": tenant.CompanyID,
		"app_id":     tenant.AppID,
		"weight":     edge.Weight,
		"created_at": edge.CreatedAt.Unix(),
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, cypher, params)
	})
	if err != nil {
		n.metrics.IncrementCounter("storeclients_neo4j_create_edge_errors", 1)
		return fmt.Errorf("neo4j create edge: %w", err)
	}
	return nil
}

// LinkMention creates a MENTIONS edge from an episode node to an entity
// node, creating the entity node (by id) if it does not already exist.
func (n *Neo4jGraphStore) LinkMention(ctx context.Context, tenant memmodel.TenantContext, episodeID, entityID string) error {
	session := n.session(ctx)
	defer session.Close(ctx)

	params := map[string]any{
		"episode_id": episodeID,
		"entity_id":  entityID,
		"company_id": tenant.CompanyID,
		"app_id":     tenant.AppID,
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `
			MATCH (m:Memory {id: $episode_id, company_id: $company_id, app_id: $app_id})
			MERGE (e:Entity {id: $entity_id, company_id: $company_id, app_id: $app_id})
			MERGE (m)-[:MENTIONS]->(e)
		`, params)
	})
	if err != nil {
		return fmt.Errorf("neo4j link mention: %w", err)
	}
	return nil
}

var _ episode.GraphStore = (*Neo4jGraphStore)(nil)
