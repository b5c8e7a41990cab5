package enhance

import (
	"bytes"
	"testing"

	"github.com/goccy/go-json"

	"github.com/routefabric/cluster-gateway/internal/types"
)

func fixtures() (*types.CompletionRequest, *types.Cluster, []types.ModelDescriptor, map[string]types.ResolvedProviderConfig) {
	temp := 0.7
	threshold := 0.4
	req := &types.CompletionRequest{
		Messages:    []types.Message{{Role: "user", Content: "hello"}},
		Temperature: &temp,
		Stream:      true,
	}
	cluster := &types.Cluster{
		ID:                    "c1",
		ProjectID:             "42",
		Name:                  "prod",
		FallbackEnabled:       true,
		FallbackMode:          types.FallbackRace,
		CircuitBreakerEnabled: true,
		MaxRetries:            2,
		TimeoutSeconds:        30,
		CostBias:              0.3,
		ComplexityThreshold:   &threshold,
		SemanticCacheEnabled:  true,
		SemanticThreshold:     0.92,
		PromptCacheEnabled:    true,
		PromptCacheTTLSeconds: 300,
	}
	models := []types.ModelDescriptor{
		{Provider: "openai", Model: "gpt-4o", InputCostPerMillion: 2.5, OutputCostPerMillion: 10, ContextTokens: 128000},
		{Provider: "anthropic", Model: "claude-sonnet", InputCostPerMillion: 3, OutputCostPerMillion: 15, ContextTokens: 200000},
	}
	configs := map[string]types.ResolvedProviderConfig{
		"openai":    {Provider: "openai", BaseURL: "https://api.openai.com", AuthType: "bearer", APIKey: "sk-a"},
		"anthropic": {Provider: "anthropic", BaseURL: "https://api.anthropic.com", AuthType: "header", AuthHeaderName: "x-api-key", APIKey: "sk-b"},
		"groq":      {Provider: "groq", BaseURL: "https://api.groq.com", AuthType: "bearer", APIKey: "sk-c"},
	}
	return req, cluster, models, configs
}

func TestEnhance_Deterministic(t *testing.T) {
	req, cluster, models, configs := fixtures()

	first, err := json.Marshal(Enhance(req, cluster, models, configs))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := json.Marshal(Enhance(req, cluster, models, configs))
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("run %d differs:\n%s\n%s", i, first, again)
		}
	}
}

func TestEnhance_DoesNotMutateInputs(t *testing.T) {
	req, cluster, models, configs := fixtures()
	before, _ := json.Marshal(req)
	clusterBefore, _ := json.Marshal(cluster)

	enhanced := Enhance(req, cluster, models, configs)
	enhanced.Messages[0].Content = "mutated"
	enhanced.Models[0].Model = "mutated"
	*enhanced.Temperature = 0.1

	after, _ := json.Marshal(req)
	clusterAfter, _ := json.Marshal(cluster)
	if !bytes.Equal(before, after) {
		t.Fatalf("input request mutated:\n%s\n%s", before, after)
	}
	if !bytes.Equal(clusterBefore, clusterAfter) {
		t.Fatalf("input cluster mutated")
	}
	if models[0].Model == "mutated" {
		t.Fatalf("input models mutated")
	}
}

func TestEnhance_PolicyAndDirectives(t *testing.T) {
	req, cluster, models, configs := fixtures()

	got := Enhance(req, cluster, models, configs)

	if got.Routing.CostBias != 0.3 {
		t.Errorf("cost bias = %v", got.Routing.CostBias)
	}
	if got.Routing.ComplexityThreshold == nil || *got.Routing.ComplexityThreshold != 0.4 {
		t.Errorf("complexity threshold = %v", got.Routing.ComplexityThreshold)
	}
	if !got.Cache.SemanticEnabled || got.Cache.SemanticThreshold != 0.92 {
		t.Errorf("semantic cache directives = %+v", got.Cache)
	}
	if !got.Cache.PromptEnabled || got.Cache.PromptTTLSeconds != 300 {
		t.Errorf("prompt cache directives = %+v", got.Cache)
	}
	if !got.Fallback.Enabled || got.Fallback.Mode != types.FallbackRace || got.Fallback.MaxRetries != 2 {
		t.Errorf("fallback directives = %+v", got.Fallback)
	}
	if !got.Fallback.CircuitBreakerEnabled {
		t.Errorf("circuit breaker flag lost")
	}
	if got.ClusterName != "prod" || got.ProjectID != "42" || got.ClusterID != "c1" {
		t.Errorf("identity fields = %+v", got)
	}
}

func TestEnhance_ConnectionsOnlyForCatalogProviders(t *testing.T) {
	req, cluster, models, configs := fixtures()

	got := Enhance(req, cluster, models, configs)

	if len(got.ProviderConnections) != 2 {
		t.Fatalf("expected 2 connections, got %d", len(got.ProviderConnections))
	}
	if _, ok := got.ProviderConnections["groq"]; ok {
		t.Fatalf("provider without catalog models must not get a connection")
	}
	if got.ProviderConnections["anthropic"].AuthHeaderName != "x-api-key" {
		t.Fatalf("connection detail lost: %+v", got.ProviderConnections["anthropic"])
	}
}
