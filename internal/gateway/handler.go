// Package gateway orchestrates one completion request: resolve cluster
// configuration, aggregate the model catalog, enhance the request, relay it
// to the inference engine, and schedule usage recording.
package gateway

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/routefabric/cluster-gateway/internal/auth"
	"github.com/routefabric/cluster-gateway/internal/catalog"
	"github.com/routefabric/cluster-gateway/internal/enhance"
	"github.com/routefabric/cluster-gateway/internal/httputil"
	"github.com/routefabric/cluster-gateway/internal/relay"
	"github.com/routefabric/cluster-gateway/internal/resolver"
	"github.com/routefabric/cluster-gateway/internal/telemetry"
	"github.com/routefabric/cluster-gateway/internal/types"
	"github.com/routefabric/cluster-gateway/internal/usage"
)

// Handler holds dependencies for the gateway HTTP handlers.
type Handler struct {
	resolver   *resolver.Resolver
	aggregator *catalog.Aggregator
	relay      *relay.Relay
	recorder   *usage.Recorder
	metrics    *telemetry.Metrics
}

func NewHandler(res *resolver.Resolver, agg *catalog.Aggregator, rel *relay.Relay, rec *usage.Recorder, metrics *telemetry.Metrics) *Handler {
	return &Handler{
		resolver:   res,
		aggregator: agg,
		relay:      rel,
		recorder:   rec,
		metrics:    metrics,
	}
}

// Completions handles POST /v1/projects/{projectID}/clusters/{clusterName}/completions.
func (h *Handler) Completions(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	receivedAt := time.Now()

	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	projectID := chi.URLParam(r, "projectID")
	clusterName := chi.URLParam(r, "clusterName")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "Failed to read request body")
		return
	}
	defer r.Body.Close()

	req, err := types.DecodeCompletionRequest(body)
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	if len(req.Messages) == 0 {
		httputil.WriteBadRequestError(w, reqID, "messages is required")
		return
	}

	cluster, bindings, err := h.resolver.ResolveCluster(r.Context(), projectID, clusterName)
	if err != nil {
		if errors.Is(err, resolver.ErrClusterNotFound) {
			httputil.WriteNotFoundError(w, reqID, "No cluster named "+clusterName+" in this project")
			return
		}
		slog.Error("cluster resolution failed", "request_id", reqID, "project_id", projectID, "cluster", clusterName, "error", err)
		httputil.WriteInternalError(w, reqID, "Failed to resolve cluster")
		return
	}

	configs, err := h.resolver.ResolveProviderConfigs(r.Context(), projectID)
	if err == nil {
		err = resolver.CheckBindings(bindings, configs)
	}
	if err != nil {
		if errors.Is(err, resolver.ErrProviderConfig) {
			slog.Error("provider configuration unusable", "request_id", reqID, "project_id", projectID, "cluster", clusterName, "error", err)
			httputil.WriteConfigurationError(w, reqID, "A provider bound to this cluster has an unusable configuration")
			return
		}
		slog.Error("provider config resolution failed", "request_id", reqID, "project_id", projectID, "error", err)
		httputil.WriteInternalError(w, reqID, "Failed to resolve provider configuration")
		return
	}

	models, err := h.aggregator.Aggregate(r.Context(), projectID, cluster.ID, bindings, configs)
	if err != nil {
		if errors.Is(err, catalog.ErrNoUsableProviders) {
			slog.Error("no usable providers for cluster", "request_id", reqID, "project_id", projectID, "cluster", clusterName, "error", err)
			httputil.WriteConfigurationError(w, reqID, "No provider bound to this cluster is currently usable")
			return
		}
		slog.Error("model aggregation failed", "request_id", reqID, "cluster", clusterName, "error", err)
		httputil.WriteInternalError(w, reqID, "Failed to build model catalog")
		return
	}

	enhanced := enhance.Enhance(req, cluster, models, configs)
	enhanced.RequestID = reqID

	result, err := h.relay.Do(r.Context(), w, enhanced)
	if err != nil {
		if errors.Is(err, relay.ErrUpstream) {
			httputil.WriteUpstreamError(w, reqID)
			h.recordUsage(reqID, cluster, &relay.Result{Status: http.StatusBadGateway, Err: "engine unreachable"}, receivedAt)
			return
		}
		slog.Error("relay failed", "request_id", reqID, "cluster", clusterName, "error", err)
		httputil.WriteInternalError(w, reqID, "Failed to relay request")
		return
	}

	h.recordUsage(reqID, cluster, result, receivedAt)

	duration := time.Since(receivedAt)
	slog.Info("request completed",
		"request_id", reqID,
		"project_id", projectID,
		"cluster", clusterName,
		"provider", result.Provider,
		"model", result.Model,
		"status", result.Status,
		"streamed", result.Streamed,
		"chunks", result.ChunkCount,
		"prompt_tokens", result.Usage.PromptTokens,
		"completion_tokens", result.Usage.CompletionTokens,
		"cache_tier", result.CacheTier,
		"duration_ms", duration.Milliseconds(),
		"key_id", identity.KeyID,
	)

	if h.metrics != nil {
		h.metrics.RecordRequest(telemetry.RequestLabels{
			Project:          projectID,
			Cluster:          clusterName,
			Provider:         result.Provider,
			Model:            result.Model,
			Status:           strconv.Itoa(result.Status),
			Streamed:         result.Streamed,
			DurationMs:       float64(duration.Milliseconds()),
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
			ChunkCount:       result.ChunkCount,
		})
	}
}

// recordUsage schedules the accounting row for a settled relay. Exactly one
// record per dispatched request, failure-tagged when the relay failed.
func (h *Handler) recordUsage(reqID string, cluster *types.Cluster, result *relay.Result, receivedAt time.Time) {
	h.recorder.Record(types.UsageRecord{
		RequestID:        reqID,
		ProjectID:        cluster.ProjectID,
		ClusterID:        cluster.ID,
		Provider:         result.Provider,
		Model:            result.Model,
		PromptTokens:     result.Usage.PromptTokens,
		CompletionTokens: result.Usage.CompletionTokens,
		TotalTokens:      result.Usage.TotalTokens,
		DurationMs:       time.Since(receivedAt).Milliseconds(),
		CacheTier:        result.CacheTier,
		Streamed:         result.Streamed,
		Error:            result.Err,
	})
}

// ListModels handles GET /v1/projects/{projectID}/clusters/{clusterName}/models.
// It exposes the same catalog the enhancer would embed, mostly for operators
// debugging a cluster's effective model set.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	projectID := chi.URLParam(r, "projectID")
	clusterName := chi.URLParam(r, "clusterName")

	cluster, bindings, err := h.resolver.ResolveCluster(r.Context(), projectID, clusterName)
	if err != nil {
		if errors.Is(err, resolver.ErrClusterNotFound) {
			httputil.WriteNotFoundError(w, reqID, "No cluster named "+clusterName+" in this project")
			return
		}
		httputil.WriteInternalError(w, reqID, "Failed to resolve cluster")
		return
	}

	configs, err := h.resolver.ResolveProviderConfigs(r.Context(), projectID)
	if err != nil {
		if errors.Is(err, resolver.ErrProviderConfig) {
			httputil.WriteConfigurationError(w, reqID, "Provider configuration unusable")
			return
		}
		slog.Error("provider config resolution failed", "request_id", reqID, "project_id", projectID, "error", err)
		httputil.WriteInternalError(w, reqID, "Failed to resolve provider configuration")
		return
	}

	models, err := h.aggregator.Aggregate(r.Context(), projectID, cluster.ID, bindings, configs)
	if err != nil {
		if errors.Is(err, catalog.ErrNoUsableProviders) {
			httputil.WriteConfigurationError(w, reqID, "No provider bound to this cluster is currently usable")
			return
		}
		httputil.WriteInternalError(w, reqID, "Failed to build model catalog")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"object": "list",
		"data":   models,
	})
}
