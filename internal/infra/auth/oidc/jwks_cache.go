package oidc

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"medgate/internal/domain"
)

const (
	defaultJWKSRefresh      = 5 * time.Minute
	defaultJWKSMaxStale     = 15 * time.Minute
	defaultJWKSFetchTimeout = 5 * time.Second
)

// jwksCache is the process-wide trust anchor: the identity provider's
// current signing keys, resolved lazily through the discovery document and
// cached until the refresh interval elapses. Concurrent cache misses
// coalesce into a single in-flight fetch.
type jwksCache struct {
	discoveryURL string
	httpClient   *http.Client
	ttl          time.Duration
	maxStale     time.Duration
	fetchTimeout time.Duration
	now          func() time.Time

	mu         sync.RWMutex
	jwksURL    string
	keys       map[string]*rsa.PublicKey
	expiresAt  time.Time
	staleUntil time.Time

	refreshMu sync.Mutex
	refreshCh chan struct{}
	lastErr   error
}

type discoveryDocument struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

type jwksResponse struct {
	Keys []jwkKey `json:"keys"`
}

type jwkKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func newJWKSCache(discoveryURL string, refreshInterval time.Duration, httpClient *http.Client) *jwksCache {
	if refreshInterval <= 0 {
		refreshInterval = defaultJWKSRefresh
	}
	return &jwksCache{
		discoveryURL: discoveryURL,
		httpClient:   httpClient,
		ttl:          refreshInterval,
		maxStale:     defaultJWKSMaxStale,
		fetchTimeout: defaultJWKSFetchTimeout,
		now:          time.Now,
		keys:         map[string]*rsa.PublicKey{},
	}
}

// current returns the cached key set, refreshing it first when the cache is
// empty or past its refresh interval. A stale-but-usable set is returned
// immediately while a background refresh runs.
func (c *jwksCache) current(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	now := c.now()
	if keys, state := c.lookup(now); state == keyFresh {
		return keys, nil
	} else if state == keyStale {
		c.refreshAsync()
		return keys, nil
	}
	if err := c.refresh(ctx); err != nil {
		return nil, err
	}
	keys, _ := c.lookup(c.now())
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: empty key set", domain.ErrTrustAnchorUnavailable)
	}
	return keys, nil
}

type keyState int

const (
	keyMissing keyState = iota
	keyFresh
	keyStale
)

func (c *jwksCache) lookup(now time.Time) (map[string]*rsa.PublicKey, keyState) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.keys) == 0 {
		return nil, keyMissing
	}
	if now.Before(c.expiresAt) {
		return c.keys, keyFresh
	}
	if !c.staleUntil.IsZero() && now.Before(c.staleUntil) {
		return c.keys, keyStale
	}
	return nil, keyMissing
}

func (c *jwksCache) refreshAsync() {
	ctx, cancel := context.WithTimeout(context.Background(), c.fetchTimeout)
	go func() {
		_ = c.refresh(ctx)
		cancel()
	}()
}

func (c *jwksCache) refresh(ctx context.Context) error {
	ch, leader := c.beginRefresh()
	if !leader {
		return c.waitRefresh(ctx, ch)
	}

	err := c.doRefresh(ctx)
	c.finishRefresh(err, ch)
	return err
}

func (c *jwksCache) beginRefresh() (chan struct{}, bool) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	if c.refreshCh != nil {
		return c.refreshCh, false
	}
	ch := make(chan struct{})
	c.refreshCh = ch
	return ch, true
}

func (c *jwksCache) waitRefresh(ctx context.Context, ch chan struct{}) error {
	select {
	case <-ch:
		c.refreshMu.Lock()
		defer c.refreshMu.Unlock()
		return c.lastErr
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", domain.ErrTrustAnchorUnavailable, ctx.Err())
	}
}

func (c *jwksCache) finishRefresh(err error, ch chan struct{}) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	c.lastErr = err
	close(ch)
	c.refreshCh = nil
}

func (c *jwksCache) doRefresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	jwksURL, err := c.resolveJWKSURL(ctx)
	if err != nil {
		return err
	}
	keys, err := c.fetchKeys(ctx, jwksURL)
	if err != nil {
		return err
	}
	now := c.now()
	c.mu.Lock()
	c.keys = keys
	c.expiresAt = now.Add(c.ttl)
	c.staleUntil = c.expiresAt.Add(c.maxStale)
	c.mu.Unlock()
	return nil
}

func (c *jwksCache) resolveJWKSURL(ctx context.Context) (string, error) {
	c.mu.RLock()
	cached := c.jwksURL
	c.mu.RUnlock()
	if cached != "" {
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.discoveryURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTrustAnchorUnavailable, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: discovery fetch: %v", domain.ErrTrustAnchorUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: discovery status %d", domain.ErrTrustAnchorUnavailable, resp.StatusCode)
	}
	var doc discoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", fmt.Errorf("%w: discovery decode: %v", domain.ErrTrustAnchorUnavailable, err)
	}
	if doc.JWKSURI == "" {
		return "", fmt.Errorf("%w: discovery missing jwks_uri", domain.ErrTrustAnchorUnavailable)
	}

	c.mu.Lock()
	c.jwksURL = doc.JWKSURI
	c.mu.Unlock()
	return doc.JWKSURI, nil
}

func (c *jwksCache) fetchKeys(ctx context.Context, jwksURL string) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTrustAnchorUnavailable, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: jwks fetch: %v", domain.ErrTrustAnchorUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: jwks status %d", domain.ErrTrustAnchorUnavailable, resp.StatusCode)
	}
	var payload jwksResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: jwks decode: %v", domain.ErrTrustAnchorUnavailable, err)
	}
	keys := make(map[string]*rsa.PublicKey, len(payload.Keys))
	for _, key := range payload.Keys {
		if key.Kty != "RSA" || key.Kid == "" {
			continue
		}
		pub, err := jwkToRSAPublicKey(key)
		if err != nil {
			continue
		}
		keys[key.Kid] = pub
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: jwks contains no usable keys", domain.ErrTrustAnchorUnavailable)
	}
	return keys, nil
}

func jwkToRSAPublicKey(key jwkKey) (*rsa.PublicKey, error) {
	if key.N == "" || key.E == "" {
		return nil, errors.New("missing rsa params")
	}
	nBytes, err := base64.RawURLEncoding.DecodeString(key.N)
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(key.E)
	if err != nil {
		return nil, err
	}
	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes).Int64()
	if e <= 0 || e > int64(^uint32(0)) {
		return nil, errors.New("invalid rsa exponent")
	}
	return &rsa.PublicKey{
		N: n,
		E: int(e),
	}, nil
}
