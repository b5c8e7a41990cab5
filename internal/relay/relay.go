// Package relay forwards the enhanced request to the downstream inference
// engine and relays the response to the caller, buffered or streamed.
package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/routefabric/cluster-gateway/internal/types"
)

// ErrUpstream is returned when the downstream engine is unreachable or
// fails before any response bytes are sent. The caller sees a generic 502;
// internal detail stays in the logs.
var ErrUpstream = errors.New("downstream engine unavailable")

// Result summarizes one relay call for usage recording. Exactly one Result
// is produced per call, success or failure.
type Result struct {
	Status     int
	Provider   string
	Model      string
	Usage      types.Usage
	CacheTier  string
	Streamed   bool
	ChunkCount int
	Err        string
}

type Relay struct {
	client       *http.Client
	engineURL    string
	serviceToken string
	logger       *slog.Logger
}

func New(client *http.Client, engineURL, serviceToken string, logger *slog.Logger) *Relay {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		client:       client,
		engineURL:    strings.TrimSuffix(engineURL, "/"),
		serviceToken: serviceToken,
		logger:       logger,
	}
}

// Do dispatches the enhanced request and relays the downstream response to w.
// The downstream hop carries the internal service credential; the engine
// does not re-verify the caller's external key.
func (r *Relay) Do(ctx context.Context, w http.ResponseWriter, enhanced *types.EnhancedRequest) (*Result, error) {
	payload, err := json.Marshal(enhanced)
	if err != nil {
		return nil, fmt.Errorf("marshal enhanced request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.engineURL+"/v1/route", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build engine request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.serviceToken)
	req.Header.Set("X-Internal-Service", "cluster-gateway")
	req.Header.Set("X-Request-ID", enhanced.RequestID)

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Error("engine dispatch failed", "request_id", enhanced.RequestID, "error", err)
		return nil, ErrUpstream
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		return r.stream(ctx, w, enhanced.RequestID, resp), nil
	}
	return r.buffered(w, enhanced.RequestID, resp), nil
}

// usageProbe is the best-effort shape sniffed from response payloads for
// accounting. Fields absent in a given chunk stay zero.
type usageProbe struct {
	Provider  string       `json:"provider"`
	Model     string       `json:"model"`
	CacheTier string       `json:"cache_tier"`
	Usage     *types.Usage `json:"usage"`
}

// buffered reads the full downstream body and propagates status, content
// type and body verbatim, including non-2xx. The gateway never rewrites
// downstream errors; callers must see the true failure mode.
func (r *Relay) buffered(w http.ResponseWriter, requestID string, resp *http.Response) *Result {
	defer resp.Body.Close()

	result := &Result{Status: resp.StatusCode}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		r.logger.Error("reading engine response failed", "request_id", requestID, "error", err)
		result.Status = http.StatusBadGateway
		result.Err = "reading downstream response: " + err.Error()
		http.Error(w, `{"error":{"message":"upstream read failed","type":"upstream_error"}}`, http.StatusBadGateway)
		return result
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		sniffUsage(body, result)
	} else {
		result.Err = fmt.Sprintf("downstream status %d", resp.StatusCode)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	w.Write(body)
	return result
}

// stream forwards downstream SSE chunks as they arrive. A producer reads
// the downstream body into a bounded channel and a consumer writes chunks
// to the caller, so a slow caller backpressures the downstream read instead
// of growing a buffer. Usage metadata is sniffed off each chunk without
// ever blocking the forward path.
func (r *Relay) stream(ctx context.Context, w http.ResponseWriter, requestID string, resp *http.Response) *Result {
	defer resp.Body.Close()

	result := &Result{Status: http.StatusOK, Streamed: true}

	flusher, ok := w.(http.Flusher)
	if !ok {
		result.Status = http.StatusInternalServerError
		result.Err = "response writer does not support streaming"
		http.Error(w, `{"error":{"message":"streaming unsupported","type":"server_error"}}`, http.StatusInternalServerError)
		return result
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	lines := make(chan string, 16)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := newSSEScanner(resp.Body)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			readErr <- err
		}
	}()

	for {
		select {
		case <-ctx.Done():
			// Caller went away: stop forwarding and close the downstream
			// body (deferred) so the producer unblocks. Usage observed so
			// far is still recorded.
			result.Err = "client disconnected"
			r.logger.Info("caller disconnected mid-stream",
				"request_id", requestID, "chunks_forwarded", result.ChunkCount)
			return result

		case line, open := <-lines:
			if !open {
				select {
				case err := <-readErr:
					result.Err = "stream read: " + err.Error()
					r.logger.Error("downstream stream failed mid-flight",
						"request_id", requestID, "error", err)
					// Best-effort terminal error chunk before closing.
					fmt.Fprintf(w, "data: {\"error\":{\"message\":\"upstream stream interrupted\",\"type\":\"upstream_error\"}}\n\n")
					flusher.Flush()
				default:
				}
				return result
			}

			if data, ok := strings.CutPrefix(line, "data: "); ok && data != "[DONE]" {
				result.ChunkCount++
				sniffUsage([]byte(data), result)
			}
			fmt.Fprintf(w, "%s\n", line)
			if line == "" {
				flusher.Flush()
			}
		}
	}
}

// sniffUsage decodes a payload into the usage probe, tolerating anything
// that is not the shape it expects.
func sniffUsage(data []byte, result *Result) {
	var probe usageProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return
	}
	if probe.Provider != "" {
		result.Provider = probe.Provider
	}
	if probe.Model != "" {
		result.Model = probe.Model
	}
	if probe.CacheTier != "" {
		result.CacheTier = probe.CacheTier
	}
	if probe.Usage != nil {
		result.Usage = *probe.Usage
	}
}

// DefaultClient builds the long-lived HTTP client for the engine hop.
func DefaultClient(timeout time.Duration) *http.Client {
	return &http.Client{
		// No overall timeout on the client itself: streams legitimately
		// outlive any fixed budget. The dial/TLS phases are bounded below
		// and request contexts bound the rest.
		Transport: &http.Transport{
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   100,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: timeout,
			ForceAttemptHTTP2:     true,
		},
	}
}
