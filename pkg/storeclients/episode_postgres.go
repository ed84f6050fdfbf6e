package storeclients

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/adverant/nexus-memory/pkg/episode"
	"github.com/adverant/nexus-memory/pkg/memmodel"
	"github.com/adverant/nexus-memory/pkg/observability"
	"github.com/adverant/nexus-memory/pkg/rollback"
)

// PostgresEpisodeStore is the relational system of record for episodes:
// content-hash dedup, temporal/causal edge lookups, and the decay-scoped
// consolidation scan, all scoped by tenant.
type PostgresEpisodeStore struct {
	db      *sqlx.DB
	table   string
	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewPostgresEpisodeStore wraps an existing *sqlx.DB. table defaults to
// "mcp.episodes".
func NewPostgresEpisodeStore(db *sqlx.DB, table string, logger observability.Logger, metrics observability.MetricsClient) *PostgresEpisodeStore {
	if table == "" {
		table = "mcp.episodes"
	}
	if logger == nil {
		logger = observability.NewLogger("storeclients.episode_postgres")
	}
	if metrics == nil {
		metrics = observability.NewMetricsClient()
	}
	return &PostgresEpisodeStore{db: db, table: table, logger: logger, metrics: metrics}
}

func (p *PostgresEpisodeStore) Name() string { return "postgres_episode" }

type episodeRow struct {
	ID             string         `db:"id"`
	CompanyID      string         `db:"company_id"`
	AppID          string         `db:"app_id"`
	UserID         string         `db:"user_id"`
	SessionID      string         `db:"session_id"`
	Content        string         `db:"content"`
	Timestamp      sql.NullTime   `db:"timestamp"`
	Importance     float64        `db:"importance"`
	Metadata       []byte         `db:"metadata"`
	HasEmbedding   bool           `db:"has_embedding"`
	Type           string         `db:"type"`
	Summary        sql.NullString `db:"summary"`
	ContentHash    string         `db:"content_hash"`
	DecayRate      float64        `db:"decay_rate"`
	InteractionID  sql.NullString `db:"interaction_id"`
	Consolidated   bool           `db:"consolidated"`
	LastAccessedAt sql.NullTime   `db:"last_accessed_at"`
}

// Insert persists a new episode row.
func (p *PostgresEpisodeStore) Insert(ctx context.Context, ep memmodel.Episode) error {
	metadataJSON, err := json.Marshal(ep.Metadata)
	if err != nil {
		return fmt.Errorf("marshal episode metadata: %w", err)
	}

	_, err = p.db.NamedExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (
			id, company_id, app_id, user_id, session_id, content, timestamp,
			importance, metadata, has_embedding, type, summary, content_hash,
			decay_rate, interaction_id, consolidated, last_accessed_at
		) VALUES (
			:id, :company_id, :app_id, :user_id, :session_id, :content, :timestamp,
			:importance, :metadata, :has_embedding, :type, :summary, :content_hash,
			:decay_rate, :interaction_id, :consolidated, :last_accessed_at
		)
	`, p.table), map[string]any{
		"id":               ep.ID,
		"company_id":       ep.Tenant.CompanyID,
		"app_id":           ep.Tenant.AppID,
		"user_id":          ep.Tenant.UserID,
		"session_id":       ep.Tenant.SessionID,
		"content":          ep.Content,
		"timestamp":        ep.Timestamp,
		"importance":       ep.Importance,
		"metadata":         metadataJSON,
		"has_embedding":    ep.HasEmbedding,
		"type":             string(ep.Type),
		"summary":          ep.Summary,
		"content_hash":     ep.ContentHash,
		"decay_rate":       ep.DecayRate,
		"interaction_id":   ep.InteractionID,
		"consolidated":     ep.Consolidated,
		"last_accessed_at": ep.LastAccessedAt,
	})
	if err != nil {
		p.metrics.IncrementCounter("storeclients_episode_postgres_errors", 1)
		return fmt.Errorf("insert episode: %w", err)
	}
	return nil
}

func (p *PostgresEpisodeStore) episodeColumns() string {
	return `id, company_id, app_id, user_id, session_id, content, timestamp,
		importance, metadata, has_embedding, type, summary, content_hash,
		decay_rate, interaction_id, consolidated, last_accessed_at`
}

func rowToEpisode(row episodeRow) memmodel.Episode {
	var metadata map[string]any
	_ = json.Unmarshal(row.Metadata, &metadata)

	return memmodel.Episode{
		MemoryItem: memmodel.MemoryItem{
			ID:           row.ID,
			Content:      row.Content,
			Timestamp:    row.Timestamp.Time,
			Importance:   row.Importance,
			Metadata:     metadata,
			HasEmbedding: row.HasEmbedding,
			Tenant: memmodel.TenantContext{
				CompanyID: row.CompanyID,
				AppID:     row.AppID,
				UserID:    row.UserID,
				SessionID: row.SessionID,
			},
		},
		Type:           memmodel.EpisodeType(row.Type),
		Summary:        row.Summary.String,
		ContentHash:    row.ContentHash,
		DecayRate:      row.DecayRate,
		InteractionID:  row.InteractionID.String,
		Consolidated:   row.Consolidated,
		LastAccessedAt: row.LastAccessedAt.Time,
	}
}

// FindByHash supports the duplicate-episode pre-check.
func (p *PostgresEpisodeStore) FindByHash(ctx context.Context, tenant memmodel.TenantContext, hash string) (*memmodel.Episode, bool, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE company_id = $1 AND app_id = $2 AND content_hash = $3 LIMIT 1`, p.episodeColumns(), p.table)
	var row episodeRow
	if err := p.db.GetContext(ctx, &row, query, tenant.CompanyID, tenant.AppID, hash); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("find episode by hash: %w", err)
	}
	ep := rowToEpisode(row)
	return &ep, true, nil
}

// FindMostRecentNonConsolidated backs TEMPORAL edge creation: the latest
// episode strictly before `before`, visible to tenant (same user or the
// system broadcast user), not yet consolidated.
func (p *PostgresEpisodeStore) FindMostRecentNonConsolidated(ctx context.Context, tenant memmodel.TenantContext, before time.Time) (*memmodel.Episode, bool, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE company_id = $1 AND app_id = $2 AND (user_id = $3 OR user_id = $4)
		AND consolidated = false AND timestamp < $5
		ORDER BY timestamp DESC LIMIT 1
	`, p.episodeColumns(), p.table)

	var row episodeRow
	err := p.db.GetContext(ctx, &row, query, tenant.CompanyID, tenant.AppID, tenant.UserID, memmodel.SystemUserID, before)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("find most recent non-consolidated episode: %w", err)
	}
	ep := rowToEpisode(row)
	return &ep, true, nil
}

// FindByInteraction locates the episode of type t sharing interactionID,
// used to pair a system_response back to its originating user_query.
func (p *PostgresEpisodeStore) FindByInteraction(ctx context.Context, tenant memmodel.TenantContext, interactionID string, t memmodel.EpisodeType) (*memmodel.Episode, bool, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE company_id = $1 AND app_id = $2 AND interaction_id = $3 AND type = $4
		ORDER BY timestamp DESC LIMIT 1
	`, p.episodeColumns(), p.table)

	var row episodeRow
	err := p.db.GetContext(ctx, &row, query, tenant.CompanyID, tenant.AppID, interactionID, string(t))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("find episode by interaction: %w", err)
	}
	ep := rowToEpisode(row)
	return &ep, true, nil
}

// ListForConsolidation returns non-consolidated episodes in tenant scope
// whose decayed importance (importance * exp(-decay_rate * days elapsed))
// has fallen below threshold as of now. The decay formula is evaluated
// SQL-side, mirroring the ApplyDecay idiom of computing strength in the
// query rather than round-tripping through application code.
func (p *PostgresEpisodeStore) ListForConsolidation(ctx context.Context, tenant memmodel.TenantContext, threshold float64, now time.Time) ([]memmodel.Episode, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE company_id = $1 AND app_id = $2 AND consolidated = false
		AND importance * EXP(-decay_rate * EXTRACT(EPOCH FROM ($3 - timestamp)) / 86400) < $4
		ORDER BY timestamp ASC
	`, p.episodeColumns(), p.table)

	var rows []episodeRow
	if err := p.db.SelectContext(ctx, &rows, query, tenant.CompanyID, tenant.AppID, now, threshold); err != nil {
		return nil, fmt.Errorf("list episodes for consolidation: %w", err)
	}

	episodes := make([]memmodel.Episode, 0, len(rows))
	for _, row := range rows {
		episodes = append(episodes, rowToEpisode(row))
	}
	return episodes, nil
}

// MarkConsolidated flags ids consolidated and records which summary
// episode they were folded into.
func (p *PostgresEpisodeStore) MarkConsolidated(ctx context.Context, tenant memmodel.TenantContext, ids []string, summaryID string) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
		UPDATE %s SET consolidated = true, summary = $1
		WHERE company_id = $2 AND app_id = $3 AND id = ANY($4)
	`, p.table)

	if _, err := p.db.ExecContext(ctx, query, summaryID, tenant.CompanyID, tenant.AppID, pq.StringArray(ids)); err != nil {
		return fmt.Errorf("mark episodes consolidated: %w", err)
	}
	return nil
}

// Delete removes episode rows by id, for saga compensation.
func (p *PostgresEpisodeStore) Delete(ctx context.Context, tenant memmodel.TenantContext, ids []string) rollback.DeleteResult {
	if len(ids) == 0 {
		return rollback.DeleteResult{Success: true}
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE company_id = $1 AND app_id = $2 AND id = ANY($3)`, p.table)

	result, err := p.db.ExecContext(ctx, query, tenant.CompanyID, tenant.AppID, pq.StringArray(ids))
	if err != nil {
		return rollback.DeleteResult{Success: false, Error: fmt.Errorf("delete episodes: %w", err)}
	}
	affected, _ := result.RowsAffected()
	return rollback.DeleteResult{Success: true, RecordsDeleted: int(affected)}
}

// UpdateImportance overwrites a single episode's importance score, for
// administrative correction outside the normal decay/consolidation path.
func (p *PostgresEpisodeStore) UpdateImportance(ctx context.Context, tenant memmodel.TenantContext, id string, importance float64) error {
	query := fmt.Sprintf(`UPDATE %s SET importance = $1 WHERE company_id = $2 AND app_id = $3 AND id = $4`, p.table)
	result, err := p.db.ExecContext(ctx, query, importance, tenant.CompanyID, tenant.AppID, id)
	if err != nil {
		p.metrics.IncrementCounter("storeclients_episode_postgres_errors", 1)
		return fmt.Errorf("update episode importance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update episode importance: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update episode importance: episode %q not found", id)
	}
	return nil
}

// Exists reports whether an episode id is present under tenant.
func (p *PostgresEpisodeStore) Exists(ctx context.Context, tenant memmodel.TenantContext, id string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE company_id = $1 AND app_id = $2 AND id = $3)`, p.table)
	var exists bool
	if err := p.db.GetContext(ctx, &exists, query, tenant.CompanyID, tenant.AppID, id); err != nil {
		return false, fmt.Errorf("episode exists: %w", err)
	}
	return exists, nil
}

// ListTenants enumerates every distinct tenant with at least one stored
// episode, for the consolidation sweep's per-tenant scan.
func (p *PostgresEpisodeStore) ListTenants(ctx context.Context) ([]memmodel.TenantContext, error) {
	query := fmt.Sprintf(`SELECT DISTINCT company_id, app_id, user_id FROM %s`, p.table)
	var rows []struct {
		CompanyID string `db:"company_id"`
		AppID     string `db:"app_id"`
		UserID    string `db:"user_id"`
	}
	if err := p.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	tenants := make([]memmodel.TenantContext, 0, len(rows))
	for _, row := range rows {
		tenants = append(tenants, memmodel.TenantContext{CompanyID: row.CompanyID, AppID: row.AppID, UserID: row.UserID})
	}
	return tenants, nil
}

var (
	_ episode.RelationalStore = (*PostgresEpisodeStore)(nil)
	_ episode.TenantLister    = (*PostgresEpisodeStore)(nil)
)
