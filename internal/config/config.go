// Package config loads the memory engine's runtime configuration from a
// config file and environment variables using viper, with bounds-clamping
// and default fallback for every extraction/classification/recall knob the
// core recognizes.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete runtime configuration for the memory engine.
type Config struct {
	Environment string `mapstructure:"environment"`

	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Vector    VectorConfig    `mapstructure:"vector"`
	Graph     GraphConfig     `mapstructure:"graph"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Rerank    RerankConfig    `mapstructure:"rerank"`

	Extraction     ExtractionConfig     `mapstructure:"extraction"`
	Classification ClassificationConfig `mapstructure:"classification"`
	Recall         RecallConfig         `mapstructure:"recall"`
	Tenant         TenantConfig         `mapstructure:"tenant"`
	Consolidation  ConsolidationConfig  `mapstructure:"consolidation"`

	LogLevel string `mapstructure:"log_level"`
}

// DatabaseConfig configures the relational store connection pool.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Driver          string        `mapstructure:"driver"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// CacheConfig configures the key-value cache (embedding cache, recent list).
type CacheConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	EmbeddingTTL time.Duration `mapstructure:"embedding_ttl"`
}

// VectorConfig configures the Qdrant vector store client.
type VectorConfig struct {
	URL                  string `mapstructure:"url"`
	APIKey               string `mapstructure:"api_key"`
	UnifiedCollection    string `mapstructure:"unified_collection"`
	EpisodicCollection   string `mapstructure:"episodic_collection"`
	Dimension            int    `mapstructure:"dimension"`
}

// GraphConfig configures the Neo4j property-graph driver.
type GraphConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// EmbeddingConfig configures the embedder client. The Bedrock fields are
// loaded but nexus-memoryd does not read them; it builds no fallback embedder.
type EmbeddingConfig struct {
	VoyageAPIKey    string        `mapstructure:"voyage_api_key"`
	VoyageModel     string        `mapstructure:"voyage_model"`
	BedrockRegion   string        `mapstructure:"bedrock_region"`
	BedrockModel    string        `mapstructure:"bedrock_model"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	AttemptTimeout  time.Duration `mapstructure:"attempt_timeout"`
	BackoffBaseMs   int           `mapstructure:"backoff_base_ms"`
	BackoffCapMs    int           `mapstructure:"backoff_cap_ms"`
}

// LLMConfig configures the extraction/classification LLM client.
type LLMConfig struct {
	OpenRouterAPIKey string        `mapstructure:"openrouter_api_key"`
	Model            string        `mapstructure:"model"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// RerankConfig configures the cross-encoder reranker.
type RerankConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`
	APIKey         string        `mapstructure:"api_key"`
	BatchSize      int           `mapstructure:"batch_size"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	TimeoutPerCall time.Duration `mapstructure:"timeout_per_call"`
}

// ExtractionConfig configures entity/fact extraction thresholds (spec §6).
type ExtractionConfig struct {
	EntityMinConfidence       float64 `mapstructure:"entity_min_confidence"`
	EntityMinNameLength       int     `mapstructure:"entity_min_name_length"`
	MaxEntitiesPerEpisode     int     `mapstructure:"max_entities_per_episode"`
	MaxEntitiesPerQuery       int     `mapstructure:"max_entities_per_query"`
	EnableLLMEntityExtraction bool    `mapstructure:"enable_llm_entity_extraction"`
	EnableRegexEntityFallback bool    `mapstructure:"enable_regex_entity_fallback"`
	FactMinConfidence         float64 `mapstructure:"fact_min_confidence"`
	MaxFactsPerEpisode        int     `mapstructure:"max_facts_per_episode"`
	FactMinObjectLength       int     `mapstructure:"fact_min_object_length"`
	FactMaxObjectLength       int     `mapstructure:"fact_max_object_length"`
}

// ClassificationConfig configures the entity classifier's thresholds.
type ClassificationConfig struct {
	HighConfidence   float64 `mapstructure:"high_confidence"`
	MediumConfidence float64 `mapstructure:"medium_confidence"`
	BaseConfidence   float64 `mapstructure:"base_confidence"`
	MinSalience      float64 `mapstructure:"min_salience"`
	EnableSemantic   bool    `mapstructure:"enable_semantic_classification"`
}

// RecallConfig configures recall-time scoring thresholds and bounds.
type RecallConfig struct {
	ScoreThresholdEpisodic float64 `mapstructure:"score_threshold_episodic"`
	ScoreThresholdUnified  float64 `mapstructure:"score_threshold_unified"`
	RerankShortlistMax     int     `mapstructure:"rerank_shortlist_max"`
	EntityResolverWindow   int     `mapstructure:"entity_resolver_window"`
	ResolverAutoMerge      float64 `mapstructure:"resolver_auto_merge_threshold"`
	ResolverMinSimilarity  float64 `mapstructure:"resolver_min_similarity"`
}

// TenantConfig configures the legacy allow-list behavior.
type TenantConfig struct {
	LegacyAllowlistEnabled bool     `mapstructure:"legacy_allowlist_enabled"`
	LegacyCompanyAllowlist []string `mapstructure:"legacy_company_allowlist"`
	LegacySystemLane       string   `mapstructure:"legacy_system_lane"`
}

// ConsolidationConfig configures the background consolidation sweep.
type ConsolidationConfig struct {
	Interval            time.Duration `mapstructure:"interval"`
	AgeThreshold        time.Duration `mapstructure:"age_threshold"`
	ImportanceThreshold float64       `mapstructure:"importance_threshold"`
	GroupWindow         time.Duration `mapstructure:"group_window"`
}

// Load reads configuration from NEXUS_MEM_CONFIG_FILE (default
// configs/config.yaml), environment variables prefixed NEXUS_MEM_, and
// ${VAR}/${VAR:-default} expansions within config values, then unmarshals
// into a Config. Missing config files are tolerated. Values outside
// their allowed range fall back to defaults with a warning (see
// clampAndValidate); a value that cannot be parsed as its field's type
// does not fall back: Unmarshal fails and Load returns that error.
func Load(logf func(format string, args ...interface{})) (*Config, error) {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}

	v := viper.New()
	setDefaults(v)

	configFile := os.Getenv("NEXUS_MEM_CONFIG_FILE")
	if configFile == "" {
		configFile = "configs/config.yaml"
	}
	v.SetConfigFile(configFile)

	v.SetEnvPrefix("NEXUS_MEM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.AllowEmptyEnv(true)

	bindLegacyEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	processEnvExpansion(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	clampAndValidate(&cfg, logf)
	return &cfg, nil
}

// bindLegacyEnvVars binds flat, non-prefixed environment variable names
// onto their nested config keys for backward-compatible deployments.
func bindLegacyEnvVars(v *viper.Viper) {
	_ = v.BindEnv("embedding.voyage_api_key", "VOYAGE_API_KEY")
	_ = v.BindEnv("llm.openrouter_api_key", "OPENROUTER_API_KEY")
	_ = v.BindEnv("vector.url", "QDRANT_URL")
	_ = v.BindEnv("vector.api_key", "QDRANT_API_KEY")
	_ = v.BindEnv("log_level", "LOG_LEVEL")
	_ = v.BindEnv("extraction.entity_min_confidence", "ENTITY_MIN_CONFIDENCE")
	_ = v.BindEnv("extraction.entity_min_name_length", "ENTITY_MIN_NAME_LENGTH")
	_ = v.BindEnv("extraction.max_entities_per_episode", "MAX_ENTITIES_PER_EPISODE")
	_ = v.BindEnv("extraction.max_entities_per_query", "MAX_ENTITIES_PER_QUERY")
	_ = v.BindEnv("extraction.enable_llm_entity_extraction", "ENABLE_LLM_ENTITY_EXTRACTION")
	_ = v.BindEnv("extraction.enable_regex_entity_fallback", "ENABLE_REGEX_ENTITY_FALLBACK")
	_ = v.BindEnv("extraction.fact_min_confidence", "FACT_MIN_CONFIDENCE")
	_ = v.BindEnv("extraction.max_facts_per_episode", "MAX_FACTS_PER_EPISODE")
	_ = v.BindEnv("extraction.fact_min_object_length", "FACT_MIN_OBJECT_LENGTH")
	_ = v.BindEnv("extraction.fact_max_object_length", "FACT_MAX_OBJECT_LENGTH")
	_ = v.BindEnv("classification.high_confidence", "CLASSIFICATION_HIGH_CONFIDENCE")
	_ = v.BindEnv("classification.medium_confidence", "CLASSIFICATION_MEDIUM_CONFIDENCE")
	_ = v.BindEnv("classification.base_confidence", "CLASSIFICATION_BASE_CONFIDENCE")
	_ = v.BindEnv("classification.min_salience", "CLASSIFICATION_MIN_SALIENCE")
	_ = v.BindEnv("classification.enable_semantic_classification", "ENABLE_SEMANTIC_CLASSIFICATION")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "dev")
	v.SetDefault("log_level", "info")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.dial_timeout", 5*time.Second)
	v.SetDefault("cache.read_timeout", 3*time.Second)
	v.SetDefault("cache.write_timeout", 3*time.Second)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.embedding_ttl", 24*time.Hour)

	v.SetDefault("vector.url", "http://localhost:6334")
	v.SetDefault("vector.unified_collection", "unified_content")
	v.SetDefault("vector.episodic_collection", "memories")
	v.SetDefault("vector.dimension", 1024)

	v.SetDefault("graph.uri", "neo4j://localhost:7687")
	v.SetDefault("graph.username", "neo4j")

	v.SetDefault("embedding.voyage_model", "voyage-3")
	v.SetDefault("embedding.bedrock_region", "us-east-1")
	v.SetDefault("embedding.bedrock_model", "amazon.titan-embed-text-v2:0")
	v.SetDefault("embedding.max_attempts", 3)
	v.SetDefault("embedding.attempt_timeout", 30*time.Second)
	v.SetDefault("embedding.backoff_base_ms", 500)
	v.SetDefault("embedding.backoff_cap_ms", 2000)

	v.SetDefault("llm.model", "anthropic/claude-3-haiku")
	v.SetDefault("llm.timeout", 30*time.Second)

	v.SetDefault("rerank.batch_size", 10)
	v.SetDefault("rerank.max_concurrency", 3)
	v.SetDefault("rerank.timeout_per_call", 5*time.Second)

	v.SetDefault("extraction.entity_min_confidence", 0.5)
	v.SetDefault("extraction.entity_min_name_length", 2)
	v.SetDefault("extraction.max_entities_per_episode", 20)
	v.SetDefault("extraction.max_entities_per_query", 50)
	v.SetDefault("extraction.enable_llm_entity_extraction", true)
	v.SetDefault("extraction.enable_regex_entity_fallback", true)
	v.SetDefault("extraction.fact_min_confidence", 0.6)
	v.SetDefault("extraction.max_facts_per_episode", 10)
	v.SetDefault("extraction.fact_min_object_length", 5)
	v.SetDefault("extraction.fact_max_object_length", 100)

	v.SetDefault("classification.high_confidence", 0.95)
	v.SetDefault("classification.medium_confidence", 0.7)
	v.SetDefault("classification.base_confidence", 0.6)
	v.SetDefault("classification.min_salience", 0.1)
	v.SetDefault("classification.enable_semantic_classification", true)

	v.SetDefault("recall.score_threshold_episodic", 0.5)
	v.SetDefault("recall.score_threshold_unified", 0.15)
	v.SetDefault("recall.rerank_shortlist_max", 30)
	v.SetDefault("recall.entity_resolver_window", 500)
	v.SetDefault("recall.resolver_auto_merge_threshold", 0.9)
	v.SetDefault("recall.resolver_min_similarity", 0.6)

	v.SetDefault("tenant.legacy_allowlist_enabled", false)
	v.SetDefault("tenant.legacy_company_allowlist", []string{"nexus-default", "system", "adverant"})
	v.SetDefault("tenant.legacy_system_lane", "unified-memory")

	v.SetDefault("consolidation.interval", 6*time.Hour)
	v.SetDefault("consolidation.age_threshold", 72*time.Hour)
	v.SetDefault("consolidation.importance_threshold", 0.1)
	v.SetDefault("consolidation.group_window", 12*time.Hour)
}

// clampAndValidate bounds-clamps parsed values and checks credential
// formats, falling back to defaults with a logged warning on violation.
func clampAndValidate(cfg *Config, logf func(string, ...interface{})) {
	clamp01 := func(name string, val *float64, def float64) {
		if *val < 0 || *val > 1 {
			logf("config: %s=%v out of [0,1], using default %v", name, *val, def)
			*val = def
		}
	}
	clamp01("extraction.entity_min_confidence", &cfg.Extraction.EntityMinConfidence, 0.5)
	clamp01("extraction.fact_min_confidence", &cfg.Extraction.FactMinConfidence, 0.6)
	clamp01("classification.high_confidence", &cfg.Classification.HighConfidence, 0.95)
	clamp01("classification.medium_confidence", &cfg.Classification.MediumConfidence, 0.7)
	clamp01("classification.base_confidence", &cfg.Classification.BaseConfidence, 0.6)
	clamp01("classification.min_salience", &cfg.Classification.MinSalience, 0.1)
	clamp01("recall.score_threshold_episodic", &cfg.Recall.ScoreThresholdEpisodic, 0.5)
	clamp01("recall.score_threshold_unified", &cfg.Recall.ScoreThresholdUnified, 0.15)
	clamp01("recall.resolver_auto_merge_threshold", &cfg.Recall.ResolverAutoMerge, 0.9)
	clamp01("recall.resolver_min_similarity", &cfg.Recall.ResolverMinSimilarity, 0.6)

	if cfg.Extraction.MaxEntitiesPerEpisode <= 0 {
		logf("config: max_entities_per_episode <= 0, using default 20")
		cfg.Extraction.MaxEntitiesPerEpisode = 20
	}
	if cfg.Extraction.MaxFactsPerEpisode <= 0 {
		logf("config: max_facts_per_episode <= 0, using default 10")
		cfg.Extraction.MaxFactsPerEpisode = 10
	}
	if cfg.Recall.RerankShortlistMax <= 0 {
		logf("config: rerank_shortlist_max <= 0, using default 30")
		cfg.Recall.RerankShortlistMax = 30
	}
	if cfg.Recall.EntityResolverWindow <= 0 {
		logf("config: entity_resolver_window <= 0, using default 500")
		cfg.Recall.EntityResolverWindow = 500
	}
	if cfg.Vector.Dimension <= 0 {
		logf("config: vector.dimension <= 0, using default 1024")
		cfg.Vector.Dimension = 1024
	}

	if cfg.Embedding.VoyageAPIKey != "" && !strings.HasPrefix(cfg.Embedding.VoyageAPIKey, "pa-") {
		logf("config: VOYAGE_API_KEY does not match expected 'pa-' prefix format")
	}
}

// processEnvExpansion expands ${VAR} / ${VAR:-default} references inside
// string config values already loaded into viper.
func processEnvExpansion(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		value := v.GetString(key)
		if value == "" || !strings.Contains(value, "${") {
			continue
		}
		if expanded := expandEnvVars(value); expanded != value {
			v.Set(key, expanded)
		}
	}
}

func expandEnvVars(value string) string {
	result := value
	for {
		start := strings.Index(result, "${")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varRef := result[start+2 : end]
		envVar, defaultVal := varRef, ""
		if idx := strings.Index(varRef, ":-"); idx >= 0 {
			envVar, defaultVal = varRef[:idx], varRef[idx+2:]
		}

		envVal := os.Getenv(envVar)
		if envVal == "" && defaultVal != "" {
			envVal = defaultVal
		}
		result = result[:start] + envVal + result[end+1:]
	}
	return result
}

// IsProduction reports whether the configured environment is production.
func (c *Config) IsProduction() bool {
	return c.Environment == "prod" || c.Environment == "production"
}

// ParseBoolEnv parses a boolean environment variable, falling back to def
// and logging a warning on a malformed value. Exposed for callers that
// need to read an ad hoc flag outside the Config struct.
func ParseBoolEnv(name string, def bool, logf func(string, ...interface{})) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		if logf != nil {
			logf("config: %s=%q is not a valid bool, using default %v", name, raw, def)
		}
		return def
	}
	return val
}
