package storeclients

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/adverant/nexus-memory/pkg/episode"
	"github.com/adverant/nexus-memory/pkg/memmodel"
	"github.com/adverant/nexus-memory/pkg/memory"
	"github.com/adverant/nexus-memory/pkg/observability"
)

// PostgresFactStore is the relational system of record for extracted
// facts, each tied back to the episode it was extracted from.
type PostgresFactStore struct {
	db      *sqlx.DB
	table   string
	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewPostgresFactStore wraps an existing *sqlx.DB. table defaults to
// "mcp.facts".
func NewPostgresFactStore(db *sqlx.DB, table string, logger observability.Logger, metrics observability.MetricsClient) *PostgresFactStore {
	if table == "" {
		table = "mcp.facts"
	}
	if logger == nil {
		logger = observability.NewLogger("storeclients.fact_postgres")
	}
	if metrics == nil {
		metrics = observability.NewMetricsClient()
	}
	return &PostgresFactStore{db: db, table: table, logger: logger, metrics: metrics}
}

// Insert persists one extracted fact.
func (p *PostgresFactStore) Insert(ctx context.Context, tenant memmodel.TenantContext, fact memmodel.ExtractedFact) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (
			id, company_id, app_id, user_id, subject, predicate, object, content,
			confidence, source_episode_id, extracted_at, validity_start, validity_end,
			is_valid, validated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
	`, p.table)

	_, err := p.db.ExecContext(ctx, query,
		fact.ID, tenant.CompanyID, tenant.AppID, tenant.UserID, fact.Subject, fact.Predicate, fact.Object, fact.Content,
		fact.Confidence, fact.SourceEpisodeID, fact.ExtractedAt, fact.ValidityStart, fact.ValidityEnd,
		fact.IsValid, fact.ValidatedAt,
	)
	if err != nil {
		p.metrics.IncrementCounter("storeclients_fact_postgres_errors", 1)
		return fmt.Errorf("insert fact: %w", err)
	}
	return nil
}

type factRow struct {
	ID              string         `db:"id"`
	Subject         string         `db:"subject"`
	Predicate       string         `db:"predicate"`
	Object          string         `db:"object"`
	Content         string         `db:"content"`
	Confidence      float64        `db:"confidence"`
	SourceEpisodeID string         `db:"source_episode_id"`
	ExtractedAt     sql.NullTime   `db:"extracted_at"`
	ValidityStart   sql.NullTime   `db:"validity_start"`
	ValidityEnd     sql.NullTime   `db:"validity_end"`
	IsValid         bool           `db:"is_valid"`
	ValidatedAt     sql.NullTime   `db:"validated_at"`
}

// ListBySourceEpisode returns up to limit valid facts extracted from
// episodeID, most-confident first, for the recall graph step's
// top-facts lookup.
func (p *PostgresFactStore) ListBySourceEpisode(ctx context.Context, tenant memmodel.TenantContext, episodeID string, limit int) ([]memmodel.ExtractedFact, error) {
	if limit <= 0 {
		limit = 5
	}
	query := fmt.Sprintf(`
		SELECT id, subject, predicate, object, content, confidence, source_episode_id,
			extracted_at, validity_start, validity_end, is_valid, validated_at
		FROM %s
		WHERE company_id = $1 AND app_id = $2 AND source_episode_id = $3 AND is_valid = true
		ORDER BY confidence DESC LIMIT $4
	`, p.table)

	var rows []factRow
	if err := p.db.SelectContext(ctx, &rows, query, tenant.CompanyID, tenant.AppID, episodeID, limit); err != nil {
		return nil, fmt.Errorf("list facts by source episode: %w", err)
	}

	facts := make([]memmodel.ExtractedFact, 0, len(rows))
	for _, row := range rows {
		f := memmodel.ExtractedFact{
			ID:              row.ID,
			Subject:         row.Subject,
			Predicate:       row.Predicate,
			Object:          row.Object,
			Content:         row.Content,
			Confidence:      row.Confidence,
			SourceEpisodeID: row.SourceEpisodeID,
			ExtractedAt:     row.ExtractedAt.Time,
			IsValid:         row.IsValid,
			Tenant:          tenant,
		}
		if row.ValidityStart.Valid {
			f.ValidityStart = &row.ValidityStart.Time
		}
		if row.ValidityEnd.Valid {
			f.ValidityEnd = &row.ValidityEnd.Time
		}
		if row.ValidatedAt.Valid {
			f.ValidatedAt = &row.ValidatedAt.Time
		}
		facts = append(facts, f)
	}
	return facts, nil
}

// SetValid flips a fact's validity flag and stamps validated_at, for
// the facade's validateFact operation. History is never erased: the
// row stays, only is_valid/validated_at change.
func (p *PostgresFactStore) SetValid(ctx context.Context, tenant memmodel.TenantContext, id string, isValid bool, validatedAt time.Time) error {
	query := fmt.Sprintf(`
		UPDATE %s SET is_valid = $1, validated_at = $2
		WHERE company_id = $3 AND app_id = $4 AND id = $5
	`, p.table)
	if _, err := p.db.ExecContext(ctx, query, isValid, validatedAt, tenant.CompanyID, tenant.AppID, id); err != nil {
		return fmt.Errorf("set fact valid: %w", err)
	}
	return nil
}

// CountByTenant reports the total fact count in tenant scope.
func (p *PostgresFactStore) CountByTenant(ctx context.Context, tenant memmodel.TenantContext) (int64, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE company_id = $1 AND app_id = $2`, p.table)
	var count int64
	if err := p.db.GetContext(ctx, &count, query, tenant.CompanyID, tenant.AppID); err != nil {
		return 0, fmt.Errorf("count facts: %w", err)
	}
	return count, nil
}

var (
	_ episode.FactStore = (*PostgresFactStore)(nil)
	_ memory.FactStore  = (*PostgresFactStore)(nil)
)
