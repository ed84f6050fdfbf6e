package memmodel

import "time"

// MemoryItem is the base persisted unit: immutable content, mutable
// importance, created by the storage API and deleted by saga rollback or
// a tenant-scoped delete.
type MemoryItem struct {
	ID         string         `json:"id" db:"id"`
	Content    string         `json:"content" db:"content"`
	Tags       []string       `json:"tags" db:"tags"`
	Timestamp  time.Time      `json:"timestamp" db:"timestamp"`
	Importance float64        `json:"importance" db:"importance"`
	Metadata   map[string]any `json:"metadata,omitempty" db:"metadata"`
	Tenant     TenantContext  `json:"tenant"`
	HasEmbedding bool         `json:"has_embedding" db:"has_embedding"`
}

const (
	// MinContentLength is the minimum accepted content length in characters.
	MinContentLength = 10
	// MaxContentLength is the maximum accepted content length in characters.
	MaxContentLength = 8000
)

// EpisodeType enumerates the kinds of episodes the engine persists.
type EpisodeType string

const (
	EpisodeUserQuery          EpisodeType = "user_query"
	EpisodeSystemResponse     EpisodeType = "system_response"
	EpisodeDocumentInteraction EpisodeType = "document_interaction"
	EpisodeEntityMention      EpisodeType = "entity_mention"
	EpisodeSummary            EpisodeType = "summary"
	EpisodeEvent              EpisodeType = "event"
	EpisodeObservation        EpisodeType = "observation"
	EpisodeInsight            EpisodeType = "insight"
)

// Episode specializes MemoryItem with episode-only fields: type,
// optional summary, content hash for dedup, decay rate, and the
// InteractionID used to pair a user_query with its system_response.
type Episode struct {
	MemoryItem
	Type            EpisodeType `json:"type" db:"type"`
	Summary         string      `json:"summary,omitempty" db:"summary"`
	ContentHash     string      `json:"content_hash" db:"content_hash"`
	DecayRate       float64     `json:"decay_rate" db:"decay_rate"`
	InteractionID   string      `json:"interaction_id,omitempty" db:"interaction_id"`
	Consolidated    bool        `json:"consolidated" db:"consolidated"`
	LastAccessedAt  time.Time   `json:"last_accessed_at" db:"last_accessed_at"`

	Entities []ExtractedEntity `json:"entities,omitempty"`
	Facts    []ExtractedFact   `json:"facts,omitempty"`
}

// DeriveDecayRate computes decay_rate = 0.1*(1-importance).
func DeriveDecayRate(importance float64) float64 {
	if importance < 0 {
		importance = 0
	}
	if importance > 1 {
		importance = 1
	}
	return 0.1 * (1 - importance)
}
