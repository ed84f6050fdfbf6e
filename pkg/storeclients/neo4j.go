package storeclients

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/adverant/nexus-memory/pkg/memmodel"
	"github.com/adverant/nexus-memory/pkg/observability"
	"github.com/adverant/nexus-memory/pkg/rollback"
)

// Neo4jGraphStore is the property graph backing entity and edge
// traversal: memory nodes, SIMILAR_TO/MENTIONS/CAUSED edges.
type Neo4jGraphStore struct {
	driver  neo4j.DriverWithContext
	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewNeo4jGraphStore wraps an existing driver connection.
func NewNeo4jGraphStore(driver neo4j.DriverWithContext, logger observability.Logger, metrics observability.MetricsClient) *Neo4jGraphStore {
	if logger == nil {
		logger = observability.NewLogger("storeclients.neo4j")
	}
	if metrics == nil {
		metrics = observability.NewMetricsClient()
	}
	return &Neo4jGraphStore{driver: driver, logger: logger, metrics: metrics}
}

func (n *Neo4jGraphStore) Name() string { return "neo4j_graph" }

func (n *Neo4jGraphStore) session(ctx context.Context) neo4j.SessionWithContext {
	return n.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
}

func (n *Neo4jGraphStore) CreateNode(ctx context.Context, tenant memmodel.TenantContext, id string, properties map[string]any) error {
	session := n.session(ctx)
	defer session.Close(ctx)

	params := map[string]any{
		"id":         id,
		"company_id": tenant.CompanyID,
		"app_id":     tenant.AppID,
		"user_id":    tenant.UserID,
		"props":      properties,
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `
			MERGE (m:Memory {id: $id, company_id: $company_id, app_id: $app_id})
			SET m.user_id = $user_id, m += $props
		`, params)
	})
	if err != nil {
		n.metrics.IncrementCounter("storeclients_neo4j_create_node_errors", 1)
		return fmt.Errorf("neo4j create node: %w", err)
	}
	return nil
}

// LinkSimilar creates a SIMILAR_TO edge carrying the similarity weight.
func (n *Neo4jGraphStore) LinkSimilar(ctx context.Context, tenant memmodel.TenantContext, fromID, toID string, weight float64) error {
	session := n.session(ctx)
	defer session.Close(ctx)

	params := map[string]any{
		"from_id":    fromID,
		"to_id":      toID,
		"company_id": tenant.CompanyID,
		"app_id":     tenant.AppID,
		"weight":     weight,
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `
			MATCH (a:Memory {id: $from_id, company_id: $company_id, app_id: $app_id})
			MATCH (b:Memory {id: $to_id, company_id: $company_id, app_id: $app_id})
			MERGE (a)-[r:SIMILAR_TO]->(b)
			SET r.weight = $weight
		`, params)
	})
	if err != nil {
		return fmt.Errorf("neo4j link similar: %w", err)
	}
	return nil
}

// Delete removes a Memory node, detaching any edges (the compensation
// semantics required for a failed-saga rollback).
func (n *Neo4jGraphStore) Delete(ctx context.Context, tenant memmodel.TenantContext, ids []string) rollback.DeleteResult {
	if len(ids) == 0 {
		return rollback.DeleteResult{Success: true}
	}
	session := n.session(ctx)
	defer session.Close(ctx)

	params := map[string]any{
		"ids":        ids,
		"company_id": tenant.CompanyID,
		"app_id":     tenant.AppID,
	}

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (m:Memory)
			WHERE m.id IN $ids AND m.company_id = $company_id AND m.app_id = $app_id
			DETACH DELETE m
			RETURN count(m) AS deleted
		`, params)
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return 0, nil
		}
		deleted, _ := record.Get("deleted")
		return deleted, nil
	})
	if err != nil {
		n.logger.Error("neo4j delete failed", map[string]interface{}{"error": err.Error()})
		return rollback.DeleteResult{Success: false, Error: fmt.Errorf("neo4j delete: %w", err)}
	}

	deleted, _ := result.(int64)
	return rollback.DeleteResult{Success: true, RecordsDeleted: int(deleted)}
}

func (n *Neo4jGraphStore) Exists(ctx context.Context, tenant memmodel.TenantContext, id string) (bool, error) {
	session := n.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	params := map[string]any{
		"id":         id,
		"company_id": tenant.CompanyID,
		"app_id":     tenant.AppID,
	}

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (m:Memory {id: $id, company_id: $company_id, app_id: $app_id})
			RETURN count(m) > 0 AS found
		`, params)
		if err != nil {
			return false, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return false, nil
		}
		found, _ := record.Get("found")
		return found, nil
	})
	if err != nil {
		return false, fmt.Errorf("neo4j exists: %w", err)
	}
	found, _ := result.(bool)
	return found, nil
}
