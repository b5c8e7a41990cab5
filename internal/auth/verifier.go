// Package auth verifies caller credentials against the identity service and
// enforces the project boundary. Key issuance and the verification protocol
// itself live outside the gateway; this package only consumes the outcome.
package auth

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/routefabric/cluster-gateway/internal/cache"
)

var (
	// ErrInvalidCredential maps to 401.
	ErrInvalidCredential = errors.New("invalid credential")
)

// Identity is what the identity service associates with a verified key.
type Identity struct {
	KeyID     string `json:"key_id"`
	ProjectID string `json:"project_id"`
	OrgID     string `json:"org_id,omitempty"`
}

// Verifier checks an opaque API credential.
type Verifier interface {
	Verify(ctx context.Context, credential string) (*Identity, error)
}

const identityCacheTTL = 5 * time.Minute

// HTTPVerifier calls the identity service over HTTP. Verified identities are
// cached by key hash so repeat callers skip the network hop; the raw
// credential never enters the cache.
type HTTPVerifier struct {
	client  *http.Client
	baseURL string
	cache   *cache.Cache
}

func NewHTTPVerifier(client *http.Client, baseURL string, c *cache.Cache) *HTTPVerifier {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPVerifier{
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		cache:   c,
	}
}

// HashKey returns the SHA-256 hex digest of a credential, the only form the
// gateway stores or logs.
func HashKey(credential string) string {
	h := sha256.Sum256([]byte(credential))
	return fmt.Sprintf("%x", h)
}

func (v *HTTPVerifier) Verify(ctx context.Context, credential string) (*Identity, error) {
	keyHash := HashKey(credential)
	cacheKey := "identity:" + keyHash

	var cached Identity
	if v.cache.GetJSON(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	payload, _ := json.Marshal(map[string]string{"credential": credential})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/v1/verify", strings.NewReader(string(payload)))
	if err != nil {
		return nil, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity service: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return nil, ErrInvalidCredential
	default:
		return nil, fmt.Errorf("identity service returned %d", resp.StatusCode)
	}

	var body struct {
		Valid    bool     `json:"valid"`
		Identity Identity `json:"identity"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode verify response: %w", err)
	}
	if !body.Valid {
		return nil, ErrInvalidCredential
	}

	v.cache.SetJSON(ctx, cacheKey, body.Identity, identityCacheTTL)
	return &body.Identity, nil
}

// SafePrefix returns a loggable prefix of a credential, never the full key.
func SafePrefix(credential string) string {
	if len(credential) > 12 {
		return credential[:12] + "..."
	}
	return credential
}
