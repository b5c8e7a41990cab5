package types

import (
	"time"

	"github.com/goccy/go-json"
)

// CompletionRequest is the caller's model-completion payload. Fields the
// gateway does not interpret are kept verbatim in Extra so the downstream
// engine sees exactly what the caller sent.
type CompletionRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
	Stream      bool      `json:"stream,omitempty"`

	// Extra holds caller fields the gateway does not interpret, forwarded
	// under "extra" so nothing the caller sent is lost.
	Extra map[string]json.RawMessage `json:"extra,omitempty"`
}

// knownRequestFields are the top-level keys the gateway interprets itself.
var knownRequestFields = map[string]bool{
	"model": true, "messages": true, "temperature": true,
	"max_tokens": true, "top_p": true, "stop": true, "stream": true,
	"extra": true,
}

// DecodeCompletionRequest parses a caller payload, routing unrecognized
// top-level fields into Extra.
func DecodeCompletionRequest(data []byte) (*CompletionRequest, error) {
	var req CompletionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	for key, val := range raw {
		if knownRequestFields[key] {
			continue
		}
		if req.Extra == nil {
			req.Extra = make(map[string]json.RawMessage)
		}
		req.Extra[key] = val
	}
	return &req, nil
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// RoutingPolicy carries the cluster's cost/complexity routing knobs.
type RoutingPolicy struct {
	CostBias            float64  `json:"cost_bias"`
	ComplexityThreshold *float64 `json:"complexity_threshold,omitempty"`
	TokenThreshold      *int     `json:"token_threshold,omitempty"`
}

// CacheDirectives tells the downstream engine which response caches to use.
type CacheDirectives struct {
	SemanticEnabled   bool    `json:"semantic_enabled"`
	SemanticThreshold float64 `json:"semantic_threshold,omitempty"`
	PromptEnabled     bool    `json:"prompt_enabled"`
	PromptTTLSeconds  int     `json:"prompt_ttl_seconds,omitempty"`
}

// FallbackDirectives tells the downstream engine how to retry across providers.
type FallbackDirectives struct {
	Enabled               bool         `json:"enabled"`
	Mode                  FallbackMode `json:"mode,omitempty"`
	MaxRetries            int          `json:"max_retries"`
	TimeoutSeconds        int          `json:"timeout_seconds"`
	CircuitBreakerEnabled bool         `json:"circuit_breaker_enabled"`
}

// ProviderConnection is the per-provider connection detail the downstream
// engine needs to reach a provider on the caller's behalf.
type ProviderConnection struct {
	BaseURL        string            `json:"base_url"`
	AuthType       string            `json:"auth_type"`
	AuthHeaderName string            `json:"auth_header_name,omitempty"`
	APIKey         string            `json:"api_key"`
	Headers        map[string]string `json:"headers,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
	MaxRetries     int               `json:"max_retries,omitempty"`
}

// EnhancedRequest is the caller's request merged with the cluster's routing
// policy, the aggregated model catalog and provider connection details:
// everything the downstream engine needs to select and call a model.
type EnhancedRequest struct {
	CompletionRequest

	RequestID   string `json:"request_id"`
	ProjectID   string `json:"project_id"`
	ClusterID   string `json:"cluster_id"`
	ClusterName string `json:"cluster_name"`

	Models              []ModelDescriptor             `json:"models"`
	Routing             RoutingPolicy                 `json:"routing"`
	Cache               CacheDirectives               `json:"cache"`
	Fallback            FallbackDirectives            `json:"fallback"`
	ProviderConnections map[string]ProviderConnection `json:"provider_connections"`
}

// Usage is the token accounting block reported by the downstream engine.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// UsageRecord is one accounting row per completed (or failed) request.
// Written exactly once, asynchronously, after the authoritative response
// has been determined.
type UsageRecord struct {
	ID        string `json:"id"`
	RequestID string `json:"request_id"`
	ProjectID string `json:"project_id"`
	ClusterID string `json:"cluster_id"`
	Provider  string `json:"provider,omitempty"`
	Model     string `json:"model,omitempty"`

	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	DurationMs int64  `json:"duration_ms"`
	CacheTier  string `json:"cache_tier,omitempty"`
	Streamed   bool   `json:"streamed"`
	Error      string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
