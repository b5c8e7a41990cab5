package types

import (
	"fmt"
	"time"
)

// FallbackMode controls how the downstream engine tries alternate providers.
type FallbackMode string

const (
	FallbackSequential FallbackMode = "sequential" // try providers in order
	FallbackRace       FallbackMode = "race"       // dispatch to several, take first success
)

// Cluster is a named, project-scoped routing policy. The gateway only ever
// reads clusters; they are created and updated by the administrative surface.
type Cluster struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`

	// Fallback / resilience policy, forwarded to the downstream engine.
	FallbackEnabled       bool         `json:"fallback_enabled"`
	FallbackMode          FallbackMode `json:"fallback_mode"`
	CircuitBreakerEnabled bool         `json:"circuit_breaker_enabled"`
	MaxRetries            int          `json:"max_retries"`
	TimeoutSeconds        int          `json:"timeout_seconds"`

	// Routing policy. CostBias weights cost against quality: 0 = cheapest,
	// 1 = best regardless of cost.
	CostBias            float64  `json:"cost_bias"`
	ComplexityThreshold *float64 `json:"complexity_threshold,omitempty"`
	TokenThreshold      *int     `json:"token_threshold,omitempty"`

	// Cache policy.
	SemanticCacheEnabled  bool    `json:"semantic_cache_enabled"`
	SemanticThreshold     float64 `json:"semantic_threshold"`
	PromptCacheEnabled    bool    `json:"prompt_cache_enabled"`
	PromptCacheTTLSeconds int     `json:"prompt_cache_ttl_seconds"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the documented bounds on policy fields.
func (c *Cluster) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("cluster name is required")
	}
	if c.CostBias < 0 || c.CostBias > 1 {
		return fmt.Errorf("cost_bias %v out of range [0,1]", c.CostBias)
	}
	if c.ComplexityThreshold != nil && (*c.ComplexityThreshold < 0 || *c.ComplexityThreshold > 1) {
		return fmt.Errorf("complexity_threshold %v out of range [0,1]", *c.ComplexityThreshold)
	}
	if c.TokenThreshold != nil && *c.TokenThreshold < 0 {
		return fmt.Errorf("token_threshold must be non-negative")
	}
	if c.SemanticCacheEnabled && (c.SemanticThreshold <= 0 || c.SemanticThreshold > 1) {
		return fmt.Errorf("semantic_threshold %v out of range (0,1]", c.SemanticThreshold)
	}
	switch c.FallbackMode {
	case FallbackSequential, FallbackRace, "":
	default:
		return fmt.Errorf("unknown fallback_mode %q", c.FallbackMode)
	}
	return nil
}

// ProviderBinding associates a cluster with one provider and, optionally,
// the provider config to authenticate with. Order carries no meaning; the
// downstream engine performs the actual selection.
type ProviderBinding struct {
	ID          string   `json:"id"`
	ClusterID   string   `json:"cluster_id"`
	Provider    string   `json:"provider"`
	ConfigID    *string  `json:"config_id,omitempty"`
	ModelFilter []string `json:"model_filter,omitempty"`
}
