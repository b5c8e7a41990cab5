// Package enhance merges the caller's request with the cluster's routing
// policy, the aggregated model catalog and per-provider connection details.
// Enhance is a pure function: deterministic for fixed inputs, no clock or
// randomness, and it never mutates its arguments.
package enhance

import (
	"github.com/goccy/go-json"

	"github.com/routefabric/cluster-gateway/internal/types"
)

// Enhance builds the outbound request for the downstream inference engine.
// Only providers that contributed at least one model to the catalog receive
// a connection entry; the engine cannot select a provider it has no models
// for, so forwarding its credentials would be pointless exposure.
func Enhance(req *types.CompletionRequest, cluster *types.Cluster, models []types.ModelDescriptor, configs map[string]types.ResolvedProviderConfig) *types.EnhancedRequest {
	enhanced := &types.EnhancedRequest{
		CompletionRequest: copyRequest(req),
		ProjectID:         cluster.ProjectID,
		ClusterID:         cluster.ID,
		ClusterName:       cluster.Name,
		Models:            append([]types.ModelDescriptor(nil), models...),
		Routing: types.RoutingPolicy{
			CostBias:            cluster.CostBias,
			ComplexityThreshold: copyFloat(cluster.ComplexityThreshold),
			TokenThreshold:      copyInt(cluster.TokenThreshold),
		},
		Cache: types.CacheDirectives{
			SemanticEnabled:   cluster.SemanticCacheEnabled,
			SemanticThreshold: cluster.SemanticThreshold,
			PromptEnabled:     cluster.PromptCacheEnabled,
			PromptTTLSeconds:  cluster.PromptCacheTTLSeconds,
		},
		Fallback: types.FallbackDirectives{
			Enabled:               cluster.FallbackEnabled,
			Mode:                  cluster.FallbackMode,
			MaxRetries:            cluster.MaxRetries,
			TimeoutSeconds:        cluster.TimeoutSeconds,
			CircuitBreakerEnabled: cluster.CircuitBreakerEnabled,
		},
		ProviderConnections: connectionsFor(models, configs),
	}
	return enhanced
}

func connectionsFor(models []types.ModelDescriptor, configs map[string]types.ResolvedProviderConfig) map[string]types.ProviderConnection {
	present := make(map[string]bool, len(models))
	for _, m := range models {
		present[m.Provider] = true
	}

	connections := make(map[string]types.ProviderConnection, len(present))
	for provider := range present {
		cfg, ok := configs[provider]
		if !ok {
			continue
		}
		connections[provider] = types.ProviderConnection{
			BaseURL:        cfg.BaseURL,
			AuthType:       cfg.AuthType,
			AuthHeaderName: cfg.AuthHeaderName,
			APIKey:         cfg.APIKey,
			Headers:        copyHeaders(cfg.Headers),
			TimeoutSeconds: cfg.TimeoutSeconds,
			MaxRetries:     cfg.MaxRetries,
		}
	}
	return connections
}

func copyRequest(req *types.CompletionRequest) types.CompletionRequest {
	out := *req
	out.Messages = append([]types.Message(nil), req.Messages...)
	out.Stop = append([]string(nil), req.Stop...)
	out.Temperature = copyFloat(req.Temperature)
	out.TopP = copyFloat(req.TopP)
	out.MaxTokens = copyInt(req.MaxTokens)
	if req.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(req.Extra))
		for k, v := range req.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

func copyHeaders(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func copyInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}
