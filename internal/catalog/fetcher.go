package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/routefabric/cluster-gateway/internal/types"
)

// HTTPModelFetcher retrieves a provider's model list and capability metadata
// from its models endpoint, using the binding's resolved credentials.
type HTTPModelFetcher struct {
	client *http.Client
}

func NewHTTPModelFetcher(client *http.Client) *HTTPModelFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPModelFetcher{client: client}
}

// providerModel is the wire shape of one entry in a provider's model list.
// Providers that expose richer catalogs include the capability block.
type providerModel struct {
	ID           string `json:"id"`
	Capabilities *struct {
		InputCostPerMillion  float64  `json:"input_cost_per_million"`
		OutputCostPerMillion float64  `json:"output_cost_per_million"`
		ContextTokens        int      `json:"context_tokens"`
		MaxOutputTokens      int      `json:"max_output_tokens"`
		SupportsFunctions    bool     `json:"supports_functions"`
		Languages            []string `json:"languages"`
		Size                 string   `json:"size"`
		LatencyTier          string   `json:"latency_tier"`
		ComplexityTier       string   `json:"complexity_tier"`
		TaskType             string   `json:"task_type"`
	} `json:"capabilities"`
}

type modelListResponse struct {
	Data []providerModel `json:"data"`
}

func (f *HTTPModelFetcher) FetchModels(ctx context.Context, binding types.ProviderBinding, cfg types.ResolvedProviderConfig) ([]types.ModelDescriptor, error) {
	url := strings.TrimSuffix(cfg.BaseURL, "/") + "/v1/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build models request: %w", err)
	}
	applyAuth(req, cfg)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch models from %s: %w", cfg.Provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("models endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var list modelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode models response: %w", err)
	}

	descriptors := make([]types.ModelDescriptor, 0, len(list.Data))
	for _, m := range list.Data {
		d := types.ModelDescriptor{Provider: binding.Provider, Model: m.ID}
		if m.Capabilities != nil {
			d.InputCostPerMillion = m.Capabilities.InputCostPerMillion
			d.OutputCostPerMillion = m.Capabilities.OutputCostPerMillion
			d.ContextTokens = m.Capabilities.ContextTokens
			d.MaxOutputTokens = m.Capabilities.MaxOutputTokens
			d.SupportsFunctions = m.Capabilities.SupportsFunctions
			d.Languages = m.Capabilities.Languages
			d.Size = m.Capabilities.Size
			d.LatencyTier = m.Capabilities.LatencyTier
			d.ComplexityTier = m.Capabilities.ComplexityTier
			d.TaskType = m.Capabilities.TaskType
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

func applyAuth(req *http.Request, cfg types.ResolvedProviderConfig) {
	switch cfg.AuthType {
	case "header":
		name := cfg.AuthHeaderName
		if name == "" {
			name = "X-Api-Key"
		}
		req.Header.Set(name, cfg.APIKey)
	default: // bearer
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
}
