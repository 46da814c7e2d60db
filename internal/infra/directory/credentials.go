package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"medgate/internal/config"
	"medgate/internal/domain"
)

// CredentialClient acquires a service-level directory credential through
// the OAuth2 client-credentials grant. It implements
// domain.CredentialExchanger.
type CredentialClient struct {
	tokenURL     string
	clientID     string
	clientSecret string
	scope        string
	httpClient   *http.Client
	now          func() time.Time
}

type CredentialOption func(*CredentialClient)

func WithCredentialHTTPClient(httpClient *http.Client) CredentialOption {
	return func(c *CredentialClient) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func NewCredentialClient(cfg config.Config, opts ...CredentialOption) (*CredentialClient, error) {
	tokenURL := strings.TrimSpace(cfg.DirectoryTokenURL)
	if tokenURL == "" {
		return nil, errors.New("DIRECTORY_TOKEN_URL is required")
	}
	if cfg.DirectoryClientID == "" || cfg.DirectoryClientSecret == "" {
		return nil, errors.New("DIRECTORY_CLIENT_ID and DIRECTORY_CLIENT_SECRET are required")
	}
	timeout := time.Duration(cfg.DirectoryTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &CredentialClient{
		tokenURL:     tokenURL,
		clientID:     cfg.DirectoryClientID,
		clientSecret: cfg.DirectoryClientSecret,
		scope:        cfg.DirectoryScope,
		httpClient:   &http.Client{Timeout: timeout},
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *CredentialClient) Exchange(ctx context.Context) (domain.ServiceCredential, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}
	if c.scope != "" {
		form.Set("scope", c.scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.ServiceCredential{}, fmt.Errorf("%w: %v", domain.ErrProfileUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.ServiceCredential{}, fmt.Errorf("%w: credential exchange: %v", domain.ErrProfileUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.ServiceCredential{}, fmt.Errorf("%w: credential exchange status %d", domain.ErrProfileUnavailable, resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.ServiceCredential{}, fmt.Errorf("%w: credential decode: %v", domain.ErrProfileUnavailable, err)
	}
	if payload.AccessToken == "" {
		return domain.ServiceCredential{}, fmt.Errorf("%w: credential response missing access_token", domain.ErrProfileUnavailable)
	}

	cred := domain.ServiceCredential{AccessToken: payload.AccessToken}
	if payload.ExpiresIn > 0 {
		cred.ExpiresAt = c.now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	}
	return cred, nil
}
