package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"medgate/internal/config"
	"medgate/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultHTTPTimeout = 5 * time.Second
	discoveryPath      = "/.well-known/openid-configuration"

	// Fixed leeway on exp and nbf. Tokens issued by the external provider
	// routinely arrive from machines with drifting clocks.
	clockSkew = 5 * time.Minute
)

// acceptedAlgs lists the asymmetric signing schemes accepted for externally
// issued tokens. Symmetric algorithms are rejected outright: accepting an
// HMAC token verified against public key material would let anyone holding
// that material forge tokens.
var acceptedAlgs = []string{"RS256", "RS384", "RS512"}

// subjectClaims are the claim names checked, in order, for the caller's
// stable subject identifier. Providers differ: plain OIDC uses sub, older
// federation stacks emit nameid or the WS-* NameIdentifier URI, and some
// directories put the durable id in oid or upn.
var subjectClaims = []string{
	"sub",
	"nameid",
	"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/nameidentifier",
	"oid",
	"upn",
}

// Verifier validates bearer tokens against the identity provider's trust
// anchor and extracts the caller's subject. It implements
// domain.TokenVerifier.
type Verifier struct {
	issuers map[string]struct{}
	anchor  *jwksCache
	parser  *jwt.Parser
}

type Option func(*Verifier)

func WithHTTPClient(client *http.Client) Option {
	return func(v *Verifier) {
		if client != nil {
			v.anchor.httpClient = client
		}
	}
}

func NewVerifier(cfg config.Config, opts ...Option) (*Verifier, error) {
	if len(cfg.OIDCIssuers) == 0 {
		return nil, errors.New("OIDC_ISSUERS is required")
	}
	if strings.TrimSpace(cfg.OIDCAudience) == "" {
		return nil, errors.New("OIDC_AUDIENCE is required")
	}
	discoveryURL := strings.TrimSpace(cfg.OIDCDiscoveryURL)
	if discoveryURL == "" {
		discoveryURL = strings.TrimRight(cfg.OIDCIssuers[0], "/") + discoveryPath
	}

	issuers := make(map[string]struct{}, len(cfg.OIDCIssuers))
	for _, iss := range cfg.OIDCIssuers {
		issuers[strings.TrimSpace(iss)] = struct{}{}
	}

	refresh := time.Duration(cfg.OIDCJWKSRefreshSecs) * time.Second
	v := &Verifier{
		issuers: issuers,
		anchor:  newJWKSCache(discoveryURL, refresh, &http.Client{Timeout: defaultHTTPTimeout}),
		parser: jwt.NewParser(
			jwt.WithValidMethods(acceptedAlgs),
			jwt.WithAudience(strings.TrimSpace(cfg.OIDCAudience)),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(clockSkew),
		),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

func (v *Verifier) Verify(ctx context.Context, bearerToken string) (domain.Principal, error) {
	tokenString := strings.TrimSpace(bearerToken)
	if tokenString == "" {
		return domain.Principal{}, fmt.Errorf("%w: empty token", domain.ErrTokenInvalid)
	}

	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return v.verificationKey(ctx, t)
	})
	if err != nil {
		if errors.Is(err, domain.ErrTrustAnchorUnavailable) {
			return domain.Principal{}, err
		}
		return domain.Principal{}, fmt.Errorf("%w: %v", domain.ErrTokenInvalid, err)
	}
	if err := v.checkIssuer(claims); err != nil {
		return domain.Principal{}, err
	}

	subject := extractSubject(claims)
	if subject == "" {
		return domain.Principal{}, domain.ErrSubjectMissing
	}
	return domain.Principal{Subject: subject, Claims: map[string]any(claims)}, nil
}

// verificationKey selects the signing key for a token. When the token names
// a known kid that key is used; otherwise every key in the current trust
// anchor is tried, so tokens signed by a freshly rotated key still verify.
func (v *Verifier) verificationKey(ctx context.Context, t *jwt.Token) (any, error) {
	keys, err := v.anchor.current(ctx)
	if err != nil {
		return nil, err
	}
	if kid, ok := t.Header["kid"].(string); ok && kid != "" {
		if key, ok := keys[kid]; ok {
			return key, nil
		}
	}
	set := jwt.VerificationKeySet{Keys: make([]jwt.VerificationKey, 0, len(keys))}
	for _, key := range keys {
		set.Keys = append(set.Keys, key)
	}
	return set, nil
}

func (v *Verifier) checkIssuer(claims jwt.MapClaims) error {
	iss, err := claims.GetIssuer()
	if err != nil || iss == "" {
		return fmt.Errorf("%w: issuer missing", domain.ErrTokenInvalid)
	}
	if _, ok := v.issuers[iss]; !ok {
		return fmt.Errorf("%w: issuer not trusted", domain.ErrTokenInvalid)
	}
	return nil
}

func extractSubject(claims jwt.MapClaims) string {
	for _, name := range subjectClaims {
		if value, ok := claims[name].(string); ok {
			if subject := strings.TrimSpace(value); subject != "" {
				return subject
			}
		}
	}
	return ""
}
