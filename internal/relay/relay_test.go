package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/routefabric/cluster-gateway/internal/types"
)

func testRequest() *types.EnhancedRequest {
	return &types.EnhancedRequest{
		RequestID: "req-1",
		ProjectID: "42",
		ClusterID: "c1",
	}
}

func TestDo_BufferedPassthrough(t *testing.T) {
	body := `{"id":"cmpl-1","provider":"openai","model":"gpt-4o","usage":{"prompt_tokens":10,"completion_tokens":20,"total_tokens":30},"cache_tier":"semantic"}`
	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Internal-Service") != "cluster-gateway" {
			t.Errorf("missing internal service header")
		}
		if r.Header.Get("Authorization") != "Bearer svc-token" {
			t.Errorf("missing service credential")
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	}))
	defer engine.Close()

	r := New(engine.Client(), engine.URL, "svc-token", nil)
	w := httptest.NewRecorder()

	result, err := r.Do(context.Background(), w, testRequest())
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	if w.Code != http.StatusOK || w.Body.String() != body {
		t.Fatalf("body not passed through verbatim: %d %s", w.Code, w.Body.String())
	}
	if result.Provider != "openai" || result.Model != "gpt-4o" {
		t.Errorf("usage attribution lost: %+v", result)
	}
	if result.Usage.TotalTokens != 30 || result.CacheTier != "semantic" {
		t.Errorf("usage not extracted: %+v", result)
	}
	if result.Streamed {
		t.Errorf("buffered response marked streamed")
	}
}

func TestDo_BufferedNonOKStatusPreserved(t *testing.T) {
	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"message":"rate limited by provider"}}`)
	}))
	defer engine.Close()

	r := New(engine.Client(), engine.URL, "svc-token", nil)
	w := httptest.NewRecorder()

	result, err := r.Do(context.Background(), w, testRequest())
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("downstream status translated: got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "rate limited by provider") {
		t.Fatalf("downstream error body rewritten: %s", w.Body.String())
	}
	if result.Err == "" {
		t.Fatalf("non-2xx must produce a failure-tagged result")
	}
}

func TestDo_ConnectionFailureIsUpstreamError(t *testing.T) {
	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	engine.Close() // nothing listening

	r := New(http.DefaultClient, engine.URL, "svc-token", nil)
	w := httptest.NewRecorder()

	_, err := r.Do(context.Background(), w, testRequest())
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestDo_StreamingForwardIntegrity(t *testing.T) {
	chunks := []string{
		`{"choices":[{"delta":{"content":"Hel"}}]}`,
		`{"choices":[{"delta":{"content":"lo"}}]}`,
		`{"choices":[{"delta":{}}],"provider":"anthropic","model":"claude-sonnet","usage":{"prompt_tokens":5,"completion_tokens":7,"total_tokens":12}}`,
	}
	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, chunk := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", chunk)
			flusher.Flush()
		}
		fmt.Fprintf(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer engine.Close()

	r := New(engine.Client(), engine.URL, "svc-token", nil)
	w := httptest.NewRecorder()

	result, err := r.Do(context.Background(), w, testRequest())
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	if w.Header().Get("Content-Type") != "text/event-stream" {
		t.Errorf("content type = %s", w.Header().Get("Content-Type"))
	}
	if w.Header().Get("Cache-Control") != "no-cache" {
		t.Errorf("cache-control = %s", w.Header().Get("Cache-Control"))
	}

	out := w.Body.String()
	for _, chunk := range chunks {
		if !strings.Contains(out, "data: "+chunk) {
			t.Errorf("chunk missing from forwarded stream: %s", chunk)
		}
	}
	if idx1, idx2 := strings.Index(out, chunks[0]), strings.Index(out, chunks[1]); idx1 > idx2 {
		t.Errorf("chunks forwarded out of order")
	}
	if !strings.Contains(out, "data: [DONE]") {
		t.Errorf("terminator not forwarded")
	}

	if result.ChunkCount != len(chunks) {
		t.Errorf("chunk count = %d, want %d", result.ChunkCount, len(chunks))
	}
	if result.Provider != "anthropic" || result.Usage.TotalTokens != 12 {
		t.Errorf("usage not sniffed from stream: %+v", result)
	}
	if !result.Streamed || result.Err != "" {
		t.Errorf("unexpected result: %+v", result)
	}
}

// brokenBody yields some SSE data, then fails the read.
type brokenBody struct {
	data *strings.Reader
	err  error
}

func (b *brokenBody) Read(p []byte) (int, error) {
	n, err := b.data.Read(p)
	if err == io.EOF {
		return n, b.err
	}
	return n, err
}

func (b *brokenBody) Close() error { return nil }

func TestStream_MidFlightErrorSendsTerminalChunk(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
		Body: &brokenBody{
			data: strings.NewReader("data: {\"choices\":[]}\n\n"),
			err:  errors.New("connection reset"),
		},
	}
	r := New(nil, "http://engine", "svc-token", nil)
	w := httptest.NewRecorder()

	result := r.stream(context.Background(), w, "req-1", resp)

	if result.Err == "" {
		t.Fatalf("mid-stream failure must be failure-tagged")
	}
	if !strings.Contains(w.Body.String(), "upstream_error") {
		t.Fatalf("terminal error chunk not sent: %s", w.Body.String())
	}
	if result.ChunkCount != 1 {
		t.Fatalf("chunks before failure must still count: %d", result.ChunkCount)
	}
}

func TestStream_CallerDisconnectStopsReading(t *testing.T) {
	pr, pw := io.Pipe()
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
		Body:       pr,
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := New(nil, "http://engine", "svc-token", nil)
	w := httptest.NewRecorder()

	done := make(chan *Result, 1)
	go func() {
		done <- r.stream(ctx, w, "req-1", resp)
	}()

	fmt.Fprintf(pw, "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n")
	cancel()

	select {
	case result := <-done:
		if result.Err != "client disconnected" {
			t.Fatalf("result err = %q", result.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("relay kept consuming after caller disconnect")
	}

	// Downstream body was closed, so further writes must fail promptly.
	pw.CloseWithError(io.ErrClosedPipe)
}
