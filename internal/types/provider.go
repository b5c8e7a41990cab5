package types

import "time"

// ProviderConfig is the stored credential + endpoint-override bundle a project
// (or its organization) uses to call a provider. The API key is encrypted at
// rest and stays encrypted in every cache; only ResolvedProviderConfig ever
// holds plaintext, and only for the duration of one request.
type ProviderConfig struct {
	ID             string            `json:"id"`
	ProjectID      string            `json:"project_id,omitempty"`
	OrganizationID string            `json:"organization_id,omitempty"`
	Provider       string            `json:"provider"`
	BaseURL        string            `json:"base_url"`
	AuthType       string            `json:"auth_type"`
	AuthHeaderName string            `json:"auth_header_name,omitempty"`
	EncryptedAPIKey string            `json:"encrypted_api_key"`
	Headers        map[string]string `json:"headers,omitempty"`
	RateLimit      *int              `json:"rate_limit,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds"`
	MaxRetries     int               `json:"max_retries"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// ResolvedProviderConfig is the decrypted, request-scoped view of a
// ProviderConfig. It must never be cached or persisted.
type ResolvedProviderConfig struct {
	Provider       string            `json:"provider"`
	BaseURL        string            `json:"base_url"`
	AuthType       string            `json:"auth_type"`
	AuthHeaderName string            `json:"auth_header_name,omitempty"`
	APIKey         string            `json:"api_key"`
	Headers        map[string]string `json:"headers,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds"`
	MaxRetries     int               `json:"max_retries"`
}

// ModelDescriptor is the per-model cost/capability metadata the aggregator
// produces for the downstream engine. Reconstructed per request (subject to
// caching), never persisted.
type ModelDescriptor struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`

	InputCostPerMillion  float64 `json:"input_cost_per_million"`
	OutputCostPerMillion float64 `json:"output_cost_per_million"`
	ContextTokens        int     `json:"context_tokens"`
	MaxOutputTokens      int     `json:"max_output_tokens"`

	SupportsFunctions bool     `json:"supports_functions"`
	Languages         []string `json:"languages,omitempty"`

	// Optional classifiers used by cost/complexity routing.
	Size           string `json:"size,omitempty"`
	LatencyTier    string `json:"latency_tier,omitempty"`
	ComplexityTier string `json:"complexity_tier,omitempty"`
	TaskType       string `json:"task_type,omitempty"`
}
