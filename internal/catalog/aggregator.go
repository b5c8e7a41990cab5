// Package catalog aggregates per-provider model metadata for a cluster.
// Fetches fan out concurrently across the cluster's bindings; one provider
// failing, timing out or returning unusable capability data only removes
// that provider's models from the catalog, never the whole call. A cluster
// with N providers stays usable with N-1.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/routefabric/cluster-gateway/internal/cache"
	"github.com/routefabric/cluster-gateway/internal/types"
)

// ErrNoUsableProviders maps to a configuration error: every binding failed
// to resolve, so the cluster cannot route at all.
var ErrNoUsableProviders = errors.New("no usable providers")

// Fetcher retrieves the usable model list for one provider binding.
type Fetcher interface {
	FetchModels(ctx context.Context, binding types.ProviderBinding, cfg types.ResolvedProviderConfig) ([]types.ModelDescriptor, error)
}

type Aggregator struct {
	fetcher      Fetcher
	cache        *cache.Cache
	fetchTimeout time.Duration
	logger       *slog.Logger
	onFetchFail  func(provider string)
}

// OnFetchFailure registers a callback invoked with the provider name each
// time a metadata fetch fails or times out.
func (a *Aggregator) OnFetchFailure(fn func(provider string)) { a.onFetchFail = fn }

func New(fetcher Fetcher, c *cache.Cache, fetchTimeout time.Duration, logger *slog.Logger) *Aggregator {
	if fetchTimeout <= 0 {
		fetchTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{fetcher: fetcher, cache: c, fetchTimeout: fetchTimeout, logger: logger}
}

// Aggregate returns the model catalog for a cluster. The result is cached
// per cluster; on miss all bindings are dispatched in parallel and the call
// returns once every fetch has settled. Descriptor order follows binding
// submission order so results are reproducible.
func (a *Aggregator) Aggregate(ctx context.Context, projectID, clusterID string, bindings []types.ProviderBinding, configs map[string]types.ResolvedProviderConfig) ([]types.ModelDescriptor, error) {
	if len(bindings) == 0 {
		return nil, fmt.Errorf("%w: cluster %s has no provider bindings", ErrNoUsableProviders, clusterID)
	}

	key := cache.ModelMetadataKey(clusterID)
	var cached []types.ModelDescriptor
	if a.cache.GetJSON(ctx, key, &cached) && len(cached) > 0 {
		return cached, nil
	}

	results := make([][]types.ModelDescriptor, len(bindings))
	var wg sync.WaitGroup
	for i, binding := range bindings {
		cfg, ok := configs[binding.Provider]
		if !ok {
			a.logger.Warn("binding has no provider config, omitting",
				"project_id", projectID, "cluster_id", clusterID, "provider", binding.Provider)
			continue
		}
		wg.Add(1)
		go func(i int, binding types.ProviderBinding, cfg types.ResolvedProviderConfig) {
			defer wg.Done()
			fetchCtx, cancel := context.WithTimeout(ctx, a.fetchTimeout)
			defer cancel()

			models, err := a.fetcher.FetchModels(fetchCtx, binding, cfg)
			if err != nil {
				// Per-binding isolation: log and omit, never fail the join.
				a.logger.Warn("provider metadata fetch failed, omitting provider",
					"project_id", projectID, "cluster_id", clusterID,
					"provider", binding.Provider, "error", err)
				if a.onFetchFail != nil {
					a.onFetchFail(binding.Provider)
				}
				return
			}
			results[i] = filterUsable(a.logger, binding, models)
		}(i, binding, cfg)
	}
	wg.Wait()

	var descriptors []types.ModelDescriptor
	for _, models := range results {
		descriptors = append(descriptors, models...)
	}
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("%w: all %d bindings failed for cluster %s", ErrNoUsableProviders, len(bindings), clusterID)
	}

	a.cache.SetJSON(ctx, key, descriptors, cache.ModelMetadataTTL)
	return descriptors, nil
}

// filterUsable drops models whose capability metadata is absent. Defaulting
// cost or context values silently could mis-route traffic, so incomplete
// entries are skipped and logged instead.
func filterUsable(logger *slog.Logger, binding types.ProviderBinding, models []types.ModelDescriptor) []types.ModelDescriptor {
	usable := models[:0:0]
	for _, m := range models {
		if !matchesFilter(binding.ModelFilter, m.Model) {
			continue
		}
		if m.InputCostPerMillion <= 0 || m.OutputCostPerMillion <= 0 || m.ContextTokens <= 0 {
			logger.Warn("model missing capability metadata, skipping",
				"provider", binding.Provider, "model", m.Model)
			continue
		}
		usable = append(usable, m)
	}
	return usable
}

func matchesFilter(filter []string, model string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == model {
			return true
		}
	}
	return false
}
