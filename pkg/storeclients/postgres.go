// Package storeclients adapts concrete backing-store clients (Postgres,
// Qdrant, Neo4j, Redis) to the storage.RelationalStore, storage.VectorStore,
// storage.GraphStore, and storage.RecentCache contracts.
package storeclients

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/adverant/nexus-memory/pkg/memmodel"
	"github.com/adverant/nexus-memory/pkg/memory"
	"github.com/adverant/nexus-memory/pkg/observability"
	"github.com/adverant/nexus-memory/pkg/rollback"
	"github.com/adverant/nexus-memory/pkg/storage"
)

// PostgresRelationalStore is the system of record for memory items,
// backed by sqlx over lib/pq.
type PostgresRelationalStore struct {
	db      *sqlx.DB
	table   string
	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewPostgresRelationalStore wraps an existing *sqlx.DB. table is the
// fully-qualified table name (e.g. "mcp.memory_items").
func NewPostgresRelationalStore(db *sqlx.DB, table string, logger observability.Logger, metrics observability.MetricsClient) *PostgresRelationalStore {
	if table == "" {
		table = "mcp.memory_items"
	}
	if logger == nil {
		logger = observability.NewLogger("storeclients.postgres")
	}
	if metrics == nil {
		metrics = observability.NewMetricsClient()
	}
	return &PostgresRelationalStore{db: db, table: table, logger: logger, metrics: metrics}
}

func (p *PostgresRelationalStore) Name() string { return "postgres_relational" }

type memoryRow struct {
	ID             string         `db:"id"`
	CompanyID      string         `db:"company_id"`
	AppID          string         `db:"app_id"`
	UserID         string         `db:"user_id"`
	SessionID      string         `db:"session_id"`
	Content        string         `db:"content"`
	Tags           pq.StringArray `db:"tags"`
	Timestamp      sql.NullTime   `db:"timestamp"`
	Importance     float64        `db:"importance"`
	Metadata       []byte         `db:"metadata"`
	ContentHash    string         `db:"content_hash"`
	IdempotencyKey sql.NullString `db:"idempotency_key"`
	HasEmbedding   bool           `db:"has_embedding"`
}

// Insert writes a memory item. Content hash and idempotency key are
// pulled out of Metadata by the caller's convention ("content_hash",
// "idempotency_key" keys) so the relational row can index on them.
func (p *PostgresRelationalStore) Insert(ctx context.Context, item memmodel.MemoryItem) error {
	metaJSON, err := json.Marshal(item.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	row := memoryRow{
		ID:           item.ID,
		CompanyID:    item.Tenant.CompanyID,
		AppID:        item.Tenant.AppID,
		UserID:       item.Tenant.UserID,
		SessionID:    item.Tenant.SessionID,
		Content:      item.Content,
		Tags:         pq.StringArray(item.Tags),
		Timestamp:    sql.NullTime{Time: item.Timestamp, Valid: !item.Timestamp.IsZero()},
		Importance:   item.Importance,
		Metadata:     metaJSON,
		ContentHash:  stringMeta(item.Metadata, "content_hash"),
		HasEmbedding: item.HasEmbedding,
	}
	if key := stringMeta(item.Metadata, "idempotency_key"); key != "" {
		row.IdempotencyKey = sql.NullString{String: key, Valid: true}
	}

	query := fmt.Sprintf(`
		INSERT INTO %s
			(id, company_id, app_id, user_id, session_id, content, tags, timestamp,
			 importance, metadata, content_hash, idempotency_key, has_embedding)
		VALUES
			(:id, :company_id, :app_id, :user_id, :session_id, :content, :tags, :timestamp,
			 :importance, :metadata, :content_hash, :idempotency_key, :has_embedding)
	`, p.table)

	_, err = p.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return p.translateError(err)
	}
	return nil
}

func stringMeta(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	if v, ok := meta[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (p *PostgresRelationalStore) FindByHash(ctx context.Context, tenant memmodel.TenantContext, hash string) (*memmodel.MemoryItem, bool, error) {
	query := fmt.Sprintf(`
		SELECT id, company_id, app_id, user_id, session_id, content, tags, timestamp,
		       importance, metadata, content_hash, idempotency_key, has_embedding
		FROM %s
		WHERE company_id = $1 AND app_id = $2 AND content_hash = $3
		LIMIT 1
	`, p.table)

	var row memoryRow
	err := p.db.GetContext(ctx, &row, query, tenant.CompanyID, tenant.AppID, hash)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, p.translateError(err)
	}
	item := rowToItem(row)
	return &item, true, nil
}

func (p *PostgresRelationalStore) FindByIdempotencyKey(ctx context.Context, tenant memmodel.TenantContext, key string) (*memmodel.MemoryItem, bool, error) {
	query := fmt.Sprintf(`
		SELECT id, company_id, app_id, user_id, session_id, content, tags, timestamp,
		       importance, metadata, content_hash, idempotency_key, has_embedding
		FROM %s
		WHERE company_id = $1 AND app_id = $2 AND idempotency_key = $3
		LIMIT 1
	`, p.table)

	var row memoryRow
	err := p.db.GetContext(ctx, &row, query, tenant.CompanyID, tenant.AppID, key)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, p.translateError(err)
	}
	item := rowToItem(row)
	return &item, true, nil
}

func rowToItem(row memoryRow) memmodel.MemoryItem {
	var meta map[string]any
	_ = json.Unmarshal(row.Metadata, &meta)
	return memmodel.MemoryItem{
		ID:         row.ID,
		Content:    row.Content,
		Tags:       []string(row.Tags),
		Timestamp:  row.Timestamp.Time,
		Importance: row.Importance,
		Metadata:   meta,
		Tenant: memmodel.TenantContext{
			CompanyID: row.CompanyID,
			AppID:     row.AppID,
			UserID:    row.UserID,
			SessionID: row.SessionID,
		},
		HasEmbedding: row.HasEmbedding,
	}
}

// GetByID fetches a single memory item by id, tenant-scoped.
func (p *PostgresRelationalStore) GetByID(ctx context.Context, tenant memmodel.TenantContext, id string) (*memmodel.MemoryItem, bool, error) {
	query := fmt.Sprintf(`
		SELECT id, company_id, app_id, user_id, session_id, content, tags, timestamp,
		       importance, metadata, content_hash, idempotency_key, has_embedding
		FROM %s
		WHERE company_id = $1 AND app_id = $2 AND id = $3
		LIMIT 1
	`, p.table)

	var row memoryRow
	err := p.db.GetContext(ctx, &row, query, tenant.CompanyID, tenant.AppID, id)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, p.translateError(err)
	}
	item := rowToItem(row)
	return &item, true, nil
}

// ListRecent returns up to limit memory items in tenant scope, most
// recent first, for the facade's listMemories operation.
func (p *PostgresRelationalStore) ListRecent(ctx context.Context, tenant memmodel.TenantContext, limit int) ([]memmodel.MemoryItem, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT id, company_id, app_id, user_id, session_id, content, tags, timestamp,
		       importance, metadata, content_hash, idempotency_key, has_embedding
		FROM %s
		WHERE company_id = $1 AND app_id = $2 AND (user_id = $3 OR user_id = $4)
		ORDER BY timestamp DESC LIMIT $5
	`, p.table)

	var rows []memoryRow
	if err := p.db.SelectContext(ctx, &rows, query, tenant.CompanyID, tenant.AppID, tenant.UserID, memmodel.SystemUserID, limit); err != nil {
		return nil, p.translateError(err)
	}
	items := make([]memmodel.MemoryItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, rowToItem(row))
	}
	return items, nil
}

// CountByTenant reports the total memory item count in tenant scope.
func (p *PostgresRelationalStore) CountByTenant(ctx context.Context, tenant memmodel.TenantContext) (int64, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE company_id = $1 AND app_id = $2`, p.table)
	var count int64
	if err := p.db.GetContext(ctx, &count, query, tenant.CompanyID, tenant.AppID); err != nil {
		return 0, p.translateError(err)
	}
	return count, nil
}

// Delete removes rows tenant-scoped by id, treating "no rows affected" as
// success so repeated compensation calls stay idempotent.
func (p *PostgresRelationalStore) Delete(ctx context.Context, tenant memmodel.TenantContext, ids []string) rollback.DeleteResult {
	if len(ids) == 0 {
		return rollback.DeleteResult{Success: true}
	}
	query := fmt.Sprintf(`
		DELETE FROM %s WHERE company_id = $1 AND app_id = $2 AND id = ANY($3)
	`, p.table)

	res, err := p.db.ExecContext(ctx, query, tenant.CompanyID, tenant.AppID, pq.StringArray(ids))
	if err != nil {
		p.logger.Error("relational delete failed", map[string]interface{}{"error": err.Error(), "ids": strings.Join(ids, ",")})
		return rollback.DeleteResult{Success: false, Error: p.translateError(err)}
	}
	n, _ := res.RowsAffected()
	return rollback.DeleteResult{Success: true, RecordsDeleted: int(n)}
}

func (p *PostgresRelationalStore) Exists(ctx context.Context, tenant memmodel.TenantContext, id string) (bool, error) {
	query := fmt.Sprintf(`
		SELECT EXISTS(SELECT 1 FROM %s WHERE company_id = $1 AND app_id = $2 AND id = $3)
	`, p.table)
	var exists bool
	if err := p.db.GetContext(ctx, &exists, query, tenant.CompanyID, tenant.AppID, id); err != nil {
		return false, p.translateError(err)
	}
	return exists, nil
}

// translateError maps lib/pq errors to sentinel-friendly wrapped errors,
// the same shape as the repository layer's TranslateError.
func (p *PostgresRelationalStore) translateError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		p.metrics.IncrementCounterWithLabels("storeclients_postgres_errors", 1, map[string]string{"code": string(pqErr.Code)})
		return fmt.Errorf("postgres error %s: %w", pqErr.Code, err)
	}
	return err
}

var (
	_ storage.RelationalStore = (*PostgresRelationalStore)(nil)
	_ memory.MemoryLookupStore = (*PostgresRelationalStore)(nil)
)
