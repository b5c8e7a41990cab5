// Package resolver loads the configuration needed to route one request:
// the cluster definition with its provider bindings, and the project's
// decrypted provider configs. Both paths read through the shared cache;
// every path is correct when the cache is empty or down.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/routefabric/cluster-gateway/internal/cache"
	"github.com/routefabric/cluster-gateway/internal/store"
	"github.com/routefabric/cluster-gateway/internal/types"
)

var (
	// ErrClusterNotFound maps to 404: the named cluster does not exist in
	// the project.
	ErrClusterNotFound = errors.New("cluster not found")

	// ErrProviderConfig maps to a configuration error: a binding references
	// a provider config the gateway cannot load or decrypt. Routing cannot
	// proceed safely through a provider it cannot authenticate to.
	ErrProviderConfig = errors.New("provider configuration inaccessible")
)

// Store is the subset of the relational store the resolver reads.
type Store interface {
	GetCluster(ctx context.Context, projectID, clusterName string) (*types.Cluster, error)
	GetBindings(ctx context.Context, clusterID string) ([]types.ProviderBinding, error)
	ListProviderConfigs(ctx context.Context, projectID string) ([]types.ProviderConfig, error)
}

// clusterBundle is the cached form of a resolved cluster: definition plus
// bindings travel together since bindings are always needed next.
type clusterBundle struct {
	Cluster  types.Cluster           `json:"cluster"`
	Bindings []types.ProviderBinding `json:"bindings"`
}

type Resolver struct {
	store  Store
	cache  *cache.Cache
	cipher *Cipher
	logger *slog.Logger
}

func New(st Store, c *cache.Cache, cipher *Cipher, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: st, cache: c, cipher: cipher, logger: logger}
}

// ResolveCluster returns the cluster definition and its provider bindings.
func (r *Resolver) ResolveCluster(ctx context.Context, projectID, clusterName string) (*types.Cluster, []types.ProviderBinding, error) {
	key := cache.ClusterKey(projectID, clusterName)

	var bundle clusterBundle
	if r.cache.GetJSON(ctx, key, &bundle) {
		return &bundle.Cluster, bundle.Bindings, nil
	}

	cluster, err := r.store.GetCluster(ctx, projectID, clusterName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrClusterNotFound
		}
		return nil, nil, fmt.Errorf("load cluster %s/%s: %w", projectID, clusterName, err)
	}

	// Policy bounds are enforced at write time by the administrative
	// surface; a row that slips through still routes, but loudly.
	if verr := cluster.Validate(); verr != nil {
		r.logger.Warn("cluster has out-of-range policy values",
			"project_id", projectID, "cluster", clusterName, "error", verr)
	}

	bindings, err := r.store.GetBindings(ctx, cluster.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("load bindings for cluster %s: %w", cluster.ID, err)
	}

	r.cache.SetJSON(ctx, key, clusterBundle{Cluster: *cluster, Bindings: bindings}, cache.ClusterTTL)
	return cluster, bindings, nil
}

// ResolveProviderConfigs returns the project's provider configs keyed by
// provider name, decrypted. The cache holds the encrypted rows only;
// decryption runs after every cache or store read so plaintext credentials
// never leave the request scope. Project-scoped rows shadow inherited
// organization rows for the same provider.
func (r *Resolver) ResolveProviderConfigs(ctx context.Context, projectID string) (map[string]types.ResolvedProviderConfig, error) {
	key := cache.ProviderConfigsKey(projectID)

	var encrypted []types.ProviderConfig
	if !r.cache.GetJSON(ctx, key, &encrypted) {
		var err error
		encrypted, err = r.store.ListProviderConfigs(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("load provider configs for project %s: %w", projectID, err)
		}
		r.cache.SetJSON(ctx, key, encrypted, cache.ProviderConfigTTL)
	}

	resolved := make(map[string]types.ResolvedProviderConfig, len(encrypted))
	for _, pc := range encrypted {
		if _, exists := resolved[pc.Provider]; exists {
			// Rows are ordered project-scoped first, so the first entry per
			// provider wins and inherited org rows are shadowed.
			continue
		}
		apiKey, err := r.cipher.Decrypt(pc.EncryptedAPIKey)
		if err != nil {
			r.logger.Error("provider credential decrypt failed",
				"project_id", projectID, "provider", pc.Provider, "config_id", pc.ID, "error", err)
			return nil, fmt.Errorf("%w: %s", ErrProviderConfig, pc.Provider)
		}
		resolved[pc.Provider] = types.ResolvedProviderConfig{
			Provider:       pc.Provider,
			BaseURL:        pc.BaseURL,
			AuthType:       pc.AuthType,
			AuthHeaderName: pc.AuthHeaderName,
			APIKey:         apiKey,
			Headers:        pc.Headers,
			TimeoutSeconds: pc.TimeoutSeconds,
			MaxRetries:     pc.MaxRetries,
		}
	}
	return resolved, nil
}

// CheckBindings verifies that every binding with an explicit config
// reference has a resolvable config for its provider. A missing config
// aborts the request.
func CheckBindings(bindings []types.ProviderBinding, configs map[string]types.ResolvedProviderConfig) error {
	for _, b := range bindings {
		if b.ConfigID == nil {
			continue
		}
		if _, ok := configs[b.Provider]; !ok {
			return fmt.Errorf("%w: binding %s references provider %s", ErrProviderConfig, b.ID, b.Provider)
		}
	}
	return nil
}

// InvalidateCluster drops the cluster's cached definition and its derived
// model catalog. Called by administrative flows after configuration writes.
func (r *Resolver) InvalidateCluster(ctx context.Context, projectID, clusterID string) {
	r.cache.Invalidate(ctx, cache.ClusterPattern(projectID), cache.ModelMetadataPattern(clusterID))
}

// InvalidateProject drops every cache entry derived from the project's
// provider configs.
func (r *Resolver) InvalidateProject(ctx context.Context, projectID string) {
	r.cache.Invalidate(ctx, cache.ProviderConfigsPattern(projectID))
}
