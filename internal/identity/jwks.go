package identity

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"
)

type jwks struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type keySet struct {
	keys      map[string]*rsa.PublicKey
	expiresAt time.Time
}

// JWKSClient fetches and caches RSA signing keys per JWKS endpoint.
// Cached sets live for 24 hours; an unknown kid forces a refetch so
// provider key rotation is picked up without a restart.
type JWKSClient struct {
	mu         sync.RWMutex
	sets       map[string]*keySet
	httpClient *http.Client
}

func NewJWKSClient(timeout time.Duration) *JWKSClient {
	return &JWKSClient{
		sets:       make(map[string]*keySet),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetKey returns the RSA public key with the given kid from the JWKS at
// url, fetching the set if it is missing, stale, or lacks the kid.
func (c *JWKSClient) GetKey(ctx context.Context, url, kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	set, ok := c.sets[url]
	if ok && time.Now().Before(set.expiresAt) {
		if key, found := set.keys[kid]; found {
			c.mu.RUnlock()
			return key, nil
		}
	}
	c.mu.RUnlock()

	if err := c.fetch(ctx, url); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if set, ok := c.sets[url]; ok {
		if key, found := set.keys[kid]; found {
			return key, nil
		}
	}
	return nil, fmt.Errorf("public key with kid %s not found at %s", kid, url)
}

func (c *JWKSClient) fetch(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build JWKS request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var doc jwks
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("failed to decode JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey)
	for _, k := range doc.Keys {
		if k.Kty != "" && k.Kty != "RSA" {
			continue
		}
		pubKey, err := parseRSAPublicKey(k.N, k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = pubKey
	}

	c.mu.Lock()
	c.sets[url] = &keySet{
		keys:      keys,
		expiresAt: time.Now().Add(24 * time.Hour),
	}
	c.mu.Unlock()
	return nil
}

func parseRSAPublicKey(nStr, eStr string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}

	eBytes, err := base64.RawURLEncoding.DecodeString(eStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	var e int
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}
