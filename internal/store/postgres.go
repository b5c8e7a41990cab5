// Package store provides read access to cluster routing configuration and
// the append path for usage records, backed by PostgreSQL.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/routefabric/cluster-gateway/internal/types"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Postgres implements the store collaborator over a pgx pool.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// GetCluster loads one cluster by project and name.
func (s *Postgres) GetCluster(ctx context.Context, projectID, clusterName string) (*types.Cluster, error) {
	var c types.Cluster
	err := s.db.QueryRow(ctx, `
		SELECT id, project_id, name,
		       fallback_enabled, fallback_mode, circuit_breaker_enabled,
		       max_retries, timeout_seconds,
		       cost_bias, complexity_threshold, token_threshold,
		       semantic_cache_enabled, semantic_threshold,
		       prompt_cache_enabled, prompt_cache_ttl_seconds,
		       created_at, updated_at
		FROM clusters
		WHERE project_id = $1 AND name = $2
	`, projectID, clusterName).Scan(
		&c.ID,
		&c.ProjectID,
		&c.Name,
		&c.FallbackEnabled,
		&c.FallbackMode,
		&c.CircuitBreakerEnabled,
		&c.MaxRetries,
		&c.TimeoutSeconds,
		&c.CostBias,
		&c.ComplexityThreshold,
		&c.TokenThreshold,
		&c.SemanticCacheEnabled,
		&c.SemanticThreshold,
		&c.PromptCacheEnabled,
		&c.PromptCacheTTLSeconds,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query clusters: %w", err)
	}
	return &c, nil
}

// GetBindings loads the provider bindings for a cluster. Order is not
// significant but the query orders by id so results are reproducible.
func (s *Postgres) GetBindings(ctx context.Context, clusterID string) ([]types.ProviderBinding, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, cluster_id, provider, config_id, model_filter
		FROM cluster_provider_bindings
		WHERE cluster_id = $1
		ORDER BY id
	`, clusterID)
	if err != nil {
		return nil, fmt.Errorf("query cluster_provider_bindings: %w", err)
	}
	defer rows.Close()

	var bindings []types.ProviderBinding
	for rows.Next() {
		var b types.ProviderBinding
		if err := rows.Scan(&b.ID, &b.ClusterID, &b.Provider, &b.ConfigID, &b.ModelFilter); err != nil {
			return nil, fmt.Errorf("scan binding: %w", err)
		}
		bindings = append(bindings, b)
	}
	return bindings, rows.Err()
}

// ListProviderConfigs returns the project's provider configs plus any
// organization-level configs the project inherits. API keys come back in
// their encrypted form; decryption is the resolver's job.
func (s *Postgres) ListProviderConfigs(ctx context.Context, projectID string) ([]types.ProviderConfig, error) {
	rows, err := s.db.Query(ctx, `
		SELECT pc.id, COALESCE(pc.project_id, ''), COALESCE(pc.organization_id, ''),
		       pc.provider, pc.base_url, pc.auth_type, COALESCE(pc.auth_header_name, ''),
		       pc.encrypted_api_key, pc.headers, pc.rate_limit,
		       pc.timeout_seconds, pc.max_retries, pc.created_at, pc.updated_at
		FROM provider_configs pc
		WHERE pc.project_id = $1
		   OR (pc.project_id IS NULL AND pc.organization_id = (
		         SELECT organization_id FROM projects WHERE id = $1))
		ORDER BY pc.provider, pc.project_id NULLS LAST
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query provider_configs: %w", err)
	}
	defer rows.Close()

	var configs []types.ProviderConfig
	for rows.Next() {
		var pc types.ProviderConfig
		if err := rows.Scan(
			&pc.ID,
			&pc.ProjectID,
			&pc.OrganizationID,
			&pc.Provider,
			&pc.BaseURL,
			&pc.AuthType,
			&pc.AuthHeaderName,
			&pc.EncryptedAPIKey,
			&pc.Headers,
			&pc.RateLimit,
			&pc.TimeoutSeconds,
			&pc.MaxRetries,
			&pc.CreatedAt,
			&pc.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan provider_config: %w", err)
		}
		configs = append(configs, pc)
	}
	return configs, rows.Err()
}

// InsertUsage appends one usage record to the ledger.
func (s *Postgres) InsertUsage(ctx context.Context, rec types.UsageRecord) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO usage_records (
			id, request_id, project_id, cluster_id, provider, model,
			prompt_tokens, completion_tokens, total_tokens,
			duration_ms, cache_tier, streamed, error, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		rec.ID, rec.RequestID, rec.ProjectID, rec.ClusterID, rec.Provider, rec.Model,
		rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens,
		rec.DurationMs, rec.CacheTier, rec.Streamed, rec.Error, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert usage_records: %w", err)
	}
	return nil
}
