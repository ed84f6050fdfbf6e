package storeclients

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/adverant/nexus-memory/pkg/memmodel"
	"github.com/adverant/nexus-memory/pkg/memory"
	"github.com/adverant/nexus-memory/pkg/recall"
)

// GetByIDs hydrates full episode records for a vector search's point
// ids. Missing ids are silently omitted rather than erroring the whole
// recall.
func (p *PostgresEpisodeStore) GetByIDs(ctx context.Context, tenant memmodel.TenantContext, ids []string) ([]memmodel.Episode, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE company_id = $1 AND app_id = $2 AND id = ANY($3)
	`, p.episodeColumns(), p.table)

	var rows []episodeRow
	if err := p.db.SelectContext(ctx, &rows, query, tenant.CompanyID, tenant.AppID, pq.StringArray(ids)); err != nil {
		return nil, fmt.Errorf("get episodes by ids: %w", err)
	}

	episodes := make([]memmodel.Episode, 0, len(rows))
	for _, row := range rows {
		episodes = append(episodes, rowToEpisode(row))
	}
	return episodes, nil
}

// ListRecentNonConsolidated returns up to limit non-consolidated
// episodes visible to tenant (own or system-broadcast), most recent
// first, for the recall engine's vector-search-unavailable fallback.
func (p *PostgresEpisodeStore) ListRecentNonConsolidated(ctx context.Context, tenant memmodel.TenantContext, limit int) ([]memmodel.Episode, error) {
	if limit <= 0 {
		limit = 10
	}
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE company_id = $1 AND app_id = $2 AND (user_id = $3 OR user_id = $4)
		AND consolidated = false
		ORDER BY timestamp DESC LIMIT $5
	`, p.episodeColumns(), p.table)

	var rows []episodeRow
	err := p.db.SelectContext(ctx, &rows, query, tenant.CompanyID, tenant.AppID, tenant.UserID, memmodel.SystemUserID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent non-consolidated episodes: %w", err)
	}

	episodes := make([]memmodel.Episode, 0, len(rows))
	for _, row := range rows {
		episodes = append(episodes, rowToEpisode(row))
	}
	return episodes, nil
}

// ListTemporalContext returns up to beforeN episodes immediately
// preceding anchor and up to afterN immediately following it, each
// ordered nearest-to-anchor first, for the recall engine's
// first-result temporal-context assembly step.
func (p *PostgresEpisodeStore) ListTemporalContext(ctx context.Context, tenant memmodel.TenantContext, anchor memmodel.Episode, beforeN, afterN int) ([]memmodel.Episode, []memmodel.Episode, error) {
	beforeQuery := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE company_id = $1 AND app_id = $2 AND (user_id = $3 OR user_id = $4)
		AND timestamp < $5
		ORDER BY timestamp DESC LIMIT $6
	`, p.episodeColumns(), p.table)
	afterQuery := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE company_id = $1 AND app_id = $2 AND (user_id = $3 OR user_id = $4)
		AND timestamp > $5
		ORDER BY timestamp ASC LIMIT $6
	`, p.episodeColumns(), p.table)

	var beforeRows, afterRows []episodeRow
	args := []any{tenant.CompanyID, tenant.AppID, tenant.UserID, memmodel.SystemUserID, anchor.Timestamp}
	if err := p.db.SelectContext(ctx, &beforeRows, beforeQuery, append(append([]any{}, args...), beforeN)...); err != nil {
		return nil, nil, fmt.Errorf("list temporal context (before): %w", err)
	}
	if err := p.db.SelectContext(ctx, &afterRows, afterQuery, append(append([]any{}, args...), afterN)...); err != nil {
		return nil, nil, fmt.Errorf("list temporal context (after): %w", err)
	}

	before := make([]memmodel.Episode, 0, len(beforeRows))
	for _, row := range beforeRows {
		before = append(before, rowToEpisode(row))
	}
	after := make([]memmodel.Episode, 0, len(afterRows))
	for _, row := range afterRows {
		after = append(after, rowToEpisode(row))
	}
	return before, after, nil
}

// CountByTenant reports the total episode count in tenant scope.
func (p *PostgresEpisodeStore) CountByTenant(ctx context.Context, tenant memmodel.TenantContext) (int64, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE company_id = $1 AND app_id = $2`, p.table)
	var count int64
	if err := p.db.GetContext(ctx, &count, query, tenant.CompanyID, tenant.AppID); err != nil {
		return 0, fmt.Errorf("count episodes: %w", err)
	}
	return count, nil
}

// AvgImportance reports the mean stored importance across episodes in
// tenant scope, for the facade's getMemoryStats operation.
func (p *PostgresEpisodeStore) AvgImportance(ctx context.Context, tenant memmodel.TenantContext) (float64, error) {
	query := fmt.Sprintf(`SELECT COALESCE(AVG(importance), 0) FROM %s WHERE company_id = $1 AND app_id = $2`, p.table)
	var avg float64
	if err := p.db.GetContext(ctx, &avg, query, tenant.CompanyID, tenant.AppID); err != nil {
		return 0, fmt.Errorf("average episode importance: %w", err)
	}
	return avg, nil
}

var (
	_ recall.RelationalStore    = (*PostgresEpisodeStore)(nil)
	_ memory.EpisodeLookupStore = (*PostgresEpisodeStore)(nil)
)
