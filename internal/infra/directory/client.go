package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"medgate/internal/config"
	"medgate/internal/domain"
	"medgate/internal/infra/cachemem"
)

const profileFields = "id,givenName,surname,displayName,mail,identificationNumber"

// subjectPattern is a defensive allow-list applied before the subject id is
// embedded in a filter expression. The value originates from an
// already-verified token, but quotes, semicolons and other filter-reserved
// characters are rejected anyway.
var subjectPattern = regexp.MustCompile(`^[A-Za-z0-9._@-]+$`)

// Client resolves a verified subject id to the directory's profile record.
// It implements domain.ProfileResolver.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      domain.CredentialExchanger
	credCache  *cachemem.CredentialCache
}

type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func NewClient(cfg config.Config, creds domain.CredentialExchanger, opts ...ClientOption) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.DirectoryBaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("DIRECTORY_BASE_URL is required")
	}
	if creds == nil {
		return nil, errors.New("credential exchanger is required")
	}
	timeout := time.Duration(cfg.DirectoryTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		creds:      creds,
	}
	if cfg.DirectoryTokenCache {
		// Credential reuse is opt-in; the default is one exchange per
		// resolution. The 30s margin keeps a nearly-expired credential
		// from being sent on a request that outlives it.
		c.credCache = cachemem.New(30 * time.Second)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Resolve(ctx context.Context, subjectID string) (domain.Profile, error) {
	if subjectID == "" || !subjectPattern.MatchString(subjectID) {
		return domain.Profile{}, fmt.Errorf("%w: subject fails filter allow-list", domain.ErrInvalidSubject)
	}

	cred, err := c.credential(ctx)
	if err != nil {
		return domain.Profile{}, err
	}

	query := url.Values{}
	query.Set("$filter", fmt.Sprintf("id eq '%s'", subjectID))
	query.Set("$select", profileFields)
	reqURL := c.baseURL + "/users?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("%w: %v", domain.ErrProfileUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("%w: directory query: %v", domain.ErrProfileUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.Profile{}, fmt.Errorf("%w: directory status %d", domain.ErrProfileUnavailable, resp.StatusCode)
	}

	var payload struct {
		Value []profileRecord `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Profile{}, fmt.Errorf("%w: directory decode: %v", domain.ErrProfileUnavailable, err)
	}
	if len(payload.Value) == 0 {
		return domain.Profile{}, domain.ErrProfileNotFound
	}
	// Duplicate subject mappings are a directory data-integrity issue; the
	// first record wins deterministically.
	return payload.Value[0].toProfile(), nil
}

func (c *Client) credential(ctx context.Context) (domain.ServiceCredential, error) {
	if cred, ok := c.credCache.Get(); ok {
		return cred, nil
	}
	cred, err := c.creds.Exchange(ctx)
	if err != nil {
		return domain.ServiceCredential{}, err
	}
	if c.credCache != nil {
		c.credCache.Put(cred)
	}
	return cred, nil
}

type profileRecord struct {
	ID                   string `json:"id"`
	GivenName            string `json:"givenName"`
	Surname              string `json:"surname"`
	DisplayName          string `json:"displayName"`
	Mail                 string `json:"mail"`
	IdentificationNumber string `json:"identificationNumber"`
}

func (r profileRecord) toProfile() domain.Profile {
	return domain.Profile{
		ID:                   r.ID,
		GivenName:            r.GivenName,
		Surname:              r.Surname,
		DisplayName:          r.DisplayName,
		Email:                r.Mail,
		IdentificationNumber: r.IdentificationNumber,
	}
}
