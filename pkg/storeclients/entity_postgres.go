package storeclients

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/adverant/nexus-memory/pkg/episode"
	"github.com/adverant/nexus-memory/pkg/memmodel"
	"github.com/adverant/nexus-memory/pkg/memory"
	"github.com/adverant/nexus-memory/pkg/observability"
)

// PostgresEntityStore is the relational system of record for resolved
// entities: one row per entity per tenant, with alias list and salience
// updated as new mentions are folded in.
type PostgresEntityStore struct {
	db      *sqlx.DB
	table   string
	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewPostgresEntityStore wraps an existing *sqlx.DB. table defaults to
// "mcp.entities".
func NewPostgresEntityStore(db *sqlx.DB, table string, logger observability.Logger, metrics observability.MetricsClient) *PostgresEntityStore {
	if table == "" {
		table = "mcp.entities"
	}
	if logger == nil {
		logger = observability.NewLogger("storeclients.entity_postgres")
	}
	if metrics == nil {
		metrics = observability.NewMetricsClient()
	}
	return &PostgresEntityStore{db: db, table: table, logger: logger, metrics: metrics}
}

type entityRow struct {
	ID              string         `db:"id"`
	CompanyID       string         `db:"company_id"`
	AppID           string         `db:"app_id"`
	UserID          string         `db:"user_id"`
	Name            string         `db:"name"`
	Type            string         `db:"type"`
	Confidence      float64        `db:"confidence"`
	FirstSeen       sql.NullTime   `db:"first_seen"`
	LastSeen        sql.NullTime   `db:"last_seen"`
	MentionCount    int            `db:"mention_count"`
	Salience        float64        `db:"salience"`
	Aliases         pq.StringArray `db:"aliases"`
	TemporalType    sql.NullString `db:"temporal_type"`
	NormalizedValue sql.NullString `db:"normalized_value"`
}

// ListByTenant returns every resolved entity in tenant scope, used by
// the resolver to match new mentions against known entities.
func (p *PostgresEntityStore) ListByTenant(ctx context.Context, tenant memmodel.TenantContext) ([]*memmodel.ExtractedEntity, error) {
	query := fmt.Sprintf(`
		SELECT id, company_id, app_id, user_id, name, type, confidence,
			first_seen, last_seen, mention_count, salience, aliases,
			temporal_type, normalized_value
		FROM %s WHERE company_id = $1 AND app_id = $2 AND (user_id = $3 OR user_id = $4)
	`, p.table)

	var rows []entityRow
	if err := p.db.SelectContext(ctx, &rows, query, tenant.CompanyID, tenant.AppID, tenant.UserID, memmodel.SystemUserID); err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}

	entities := make([]*memmodel.ExtractedEntity, 0, len(rows))
	for _, row := range rows {
		entities = append(entities, &memmodel.ExtractedEntity{
			ID:              row.ID,
			Name:            row.Name,
			Type:            memmodel.EntityType(row.Type),
			Confidence:      row.Confidence,
			FirstSeen:       row.FirstSeen.Time,
			LastSeen:        row.LastSeen.Time,
			MentionCount:    row.MentionCount,
			Salience:        row.Salience,
			Aliases:         []string(row.Aliases),
			Tenant:          tenant,
			TemporalType:    memmodel.TemporalType(row.TemporalType.String),
			NormalizedValue: row.NormalizedValue.String,
		})
	}
	return entities, nil
}

// Upsert inserts entity, or updates it in place (by id) when it already
// exists, keyed on the entity having been resolved to an existing id by
// the caller's resolver pass.
func (p *PostgresEntityStore) Upsert(ctx context.Context, tenant memmodel.TenantContext, entity *memmodel.ExtractedEntity) error {
	if entity.ID == "" {
		return fmt.Errorf("upsert entity: missing id")
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (
			id, company_id, app_id, user_id, name, type, confidence,
			first_seen, last_seen, mention_count, salience, aliases,
			temporal_type, normalized_value
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			confidence = EXCLUDED.confidence,
			last_seen = EXCLUDED.last_seen,
			mention_count = EXCLUDED.mention_count,
			salience = EXCLUDED.salience,
			aliases = EXCLUDED.aliases
	`, p.table)

	_, err := p.db.ExecContext(ctx, query,
		entity.ID, tenant.CompanyID, tenant.AppID, tenant.UserID, entity.Name, string(entity.Type), entity.Confidence,
		entity.FirstSeen, entity.LastSeen, entity.MentionCount, entity.Salience, pq.StringArray(entity.Aliases),
		string(entity.TemporalType), entity.NormalizedValue,
	)
	if err != nil {
		p.metrics.IncrementCounter("storeclients_entity_postgres_errors", 1)
		return fmt.Errorf("upsert entity: %w", err)
	}
	return nil
}

// GetByIDs hydrates resolved entities by id, for the recall graph
// step's adjacent-entity lookup. Missing ids are silently omitted.
func (p *PostgresEntityStore) GetByIDs(ctx context.Context, tenant memmodel.TenantContext, ids []string) ([]*memmodel.ExtractedEntity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT id, company_id, app_id, user_id, name, type, confidence,
			first_seen, last_seen, mention_count, salience, aliases,
			temporal_type, normalized_value
		FROM %s WHERE company_id = $1 AND app_id = $2 AND id = ANY($3)
	`, p.table)

	var rows []entityRow
	if err := p.db.SelectContext(ctx, &rows, query, tenant.CompanyID, tenant.AppID, pq.StringArray(ids)); err != nil {
		return nil, fmt.Errorf("get entities by ids: %w", err)
	}

	entities := make([]*memmodel.ExtractedEntity, 0, len(rows))
	for _, row := range rows {
		entities = append(entities, &memmodel.ExtractedEntity{
			ID:              row.ID,
			Name:            row.Name,
			Type:            memmodel.EntityType(row.Type),
			Confidence:      row.Confidence,
			FirstSeen:       row.FirstSeen.Time,
			LastSeen:        row.LastSeen.Time,
			MentionCount:    row.MentionCount,
			Salience:        row.Salience,
			Aliases:         []string(row.Aliases),
			Tenant:          tenant,
			TemporalType:    memmodel.TemporalType(row.TemporalType.String),
			NormalizedValue: row.NormalizedValue.String,
		})
	}
	return entities, nil
}

// DeleteByIDs removes entity rows by id, used by mergeEntities to drop
// the duplicates once their aliases/mentions have been folded into the
// surviving entity.
func (p *PostgresEntityStore) DeleteByIDs(ctx context.Context, tenant memmodel.TenantContext, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE company_id = $1 AND app_id = $2 AND id = ANY($3)`, p.table)
	if _, err := p.db.ExecContext(ctx, query, tenant.CompanyID, tenant.AppID, pq.StringArray(ids)); err != nil {
		return fmt.Errorf("delete entities: %w", err)
	}
	return nil
}

// CountByTenant reports the total resolved-entity count in tenant scope.
func (p *PostgresEntityStore) CountByTenant(ctx context.Context, tenant memmodel.TenantContext) (int64, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE company_id = $1 AND app_id = $2`, p.table)
	var count int64
	if err := p.db.GetContext(ctx, &count, query, tenant.CompanyID, tenant.AppID); err != nil {
		return 0, fmt.Errorf("count entities: %w", err)
	}
	return count, nil
}

var (
	_ episode.EntityStore = (*PostgresEntityStore)(nil)
	_ memory.EntityStore  = (*PostgresEntityStore)(nil)
)
