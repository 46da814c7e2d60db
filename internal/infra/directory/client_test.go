package directory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"medgate/internal/config"
	"medgate/internal/domain"
)

const (
	testTokenURL = "https://login.test/oauth2/token"
	testBaseURL  = "https://directory.test"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}
}

func testConfig() config.Config {
	return config.Config{
		DirectoryBaseURL:      testBaseURL,
		DirectoryTokenURL:     testTokenURL,
		DirectoryClientID:     "client-1",
		DirectoryClientSecret: "secret-1",
		DirectoryScope:        "directory.read",
		DirectoryTimeoutSecs:  5,
	}
}

type scriptedDirectory struct {
	t              *testing.T
	tokenStatus    int
	tokenBody      string
	queryStatus    int
	queryBody      string
	exchanges      atomic.Int32
	queries        atomic.Int32
	lastTokenForm  atomic.Value
	lastQueryURL   atomic.Value
	lastAuthHeader atomic.Value
}

func (s *scriptedDirectory) client() *http.Client {
	return &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			switch {
			case req.URL.String() == testTokenURL:
				s.exchanges.Add(1)
				body, _ := io.ReadAll(req.Body)
				s.lastTokenForm.Store(string(body))
				return jsonResponse(s.tokenStatus, s.tokenBody), nil
			case strings.HasPrefix(req.URL.String(), testBaseURL):
				s.queries.Add(1)
				s.lastQueryURL.Store(req.URL.String())
				s.lastAuthHeader.Store(req.Header.Get("Authorization"))
				return jsonResponse(s.queryStatus, s.queryBody), nil
			}
			s.t.Fatalf("unexpected request: %s", req.URL)
			return nil, nil
		}),
	}
}

func newTestResolver(t *testing.T, cfg config.Config, script *scriptedDirectory) *Client {
	t.Helper()
	httpClient := script.client()
	creds, err := NewCredentialClient(cfg, WithCredentialHTTPClient(httpClient))
	if err != nil {
		t.Fatalf("new credential client: %v", err)
	}
	resolver, err := NewClient(cfg, creds, WithHTTPClient(httpClient))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return resolver
}

func okScript(t *testing.T, queryBody string) *scriptedDirectory {
	return &scriptedDirectory{
		t:           t,
		tokenStatus: http.StatusOK,
		tokenBody:   `{"access_token":"svc-token","token_type":"Bearer","expires_in":3600}`,
		queryStatus: http.StatusOK,
		queryBody:   queryBody,
	}
}

func TestResolve_HappyPath(t *testing.T) {
	script := okScript(t, `{"value":[{"id":"rec-1","givenName":"Ana","surname":"Diaz","displayName":"Ana Diaz","mail":"ana@example.test","identificationNumber":"900123456"}]}`)
	resolver := newTestResolver(t, testConfig(), script)

	profile, err := resolver.Resolve(context.Background(), "user-42")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if profile.IdentificationNumber != "900123456" {
		t.Fatalf("unexpected identification number: %s", profile.IdentificationNumber)
	}
	if profile.Email != "ana@example.test" {
		t.Fatalf("unexpected email: %s", profile.Email)
	}

	form, _ := script.lastTokenForm.Load().(string)
	for _, want := range []string{"grant_type=client_credentials", "client_id=client-1", "scope=directory.read"} {
		if !strings.Contains(form, want) {
			t.Fatalf("credential form missing %q: %s", want, form)
		}
	}
	queryURL, _ := script.lastQueryURL.Load().(string)
	if !strings.Contains(queryURL, "%24filter=id+eq+%27user-42%27") {
		t.Fatalf("unexpected filter in query url: %s", queryURL)
	}
	if !strings.Contains(queryURL, "%24select=") {
		t.Fatalf("expected field selection in query url: %s", queryURL)
	}
	auth, _ := script.lastAuthHeader.Load().(string)
	if auth != "Bearer svc-token" {
		t.Fatalf("unexpected authorization header: %s", auth)
	}
}

func TestResolve_SubjectAllowList(t *testing.T) {
	script := okScript(t, `{"value":[]}`)
	resolver := newTestResolver(t, testConfig(), script)

	for _, subject := range []string{"", "user'42", "a;b", "x y", `sub"ject`, "a(b)", "user&x"} {
		if _, err := resolver.Resolve(context.Background(), subject); !errors.Is(err, domain.ErrInvalidSubject) {
			t.Fatalf("subject %q: expected ErrInvalidSubject, got %v", subject, err)
		}
	}
	// Rejected subjects never reach the wire.
	if script.exchanges.Load() != 0 || script.queries.Load() != 0 {
		t.Fatalf("expected no outbound calls, got %d exchanges %d queries", script.exchanges.Load(), script.queries.Load())
	}
}

func TestResolve_ProfileNotFound(t *testing.T) {
	script := okScript(t, `{"value":[]}`)
	resolver := newTestResolver(t, testConfig(), script)

	if _, err := resolver.Resolve(context.Background(), "user-42"); !errors.Is(err, domain.ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestResolve_DirectoryFailure(t *testing.T) {
	script := okScript(t, `{}`)
	script.queryStatus = http.StatusBadGateway
	resolver := newTestResolver(t, testConfig(), script)

	if _, err := resolver.Resolve(context.Background(), "user-42"); !errors.Is(err, domain.ErrProfileUnavailable) {
		t.Fatalf("expected ErrProfileUnavailable, got %v", err)
	}
}

func TestResolve_CredentialExchangeFailure(t *testing.T) {
	script := okScript(t, `{"value":[]}`)
	script.tokenStatus = http.StatusUnauthorized
	script.tokenBody = `{"error":"invalid_client"}`
	resolver := newTestResolver(t, testConfig(), script)

	if _, err := resolver.Resolve(context.Background(), "user-42"); !errors.Is(err, domain.ErrProfileUnavailable) {
		t.Fatalf("expected ErrProfileUnavailable, got %v", err)
	}
	if script.queries.Load() != 0 {
		t.Fatalf("expected no directory query after failed exchange, got %d", script.queries.Load())
	}
}

func TestResolve_MalformedBody(t *testing.T) {
	script := okScript(t, `{"value": not-json`)
	resolver := newTestResolver(t, testConfig(), script)

	if _, err := resolver.Resolve(context.Background(), "user-42"); !errors.Is(err, domain.ErrProfileUnavailable) {
		t.Fatalf("expected ErrProfileUnavailable, got %v", err)
	}
}

func TestResolve_FirstRecordWinsAndMissingFieldsAreEmpty(t *testing.T) {
	script := okScript(t, `{"value":[{"id":"rec-1","identificationNumber":"111"},{"id":"rec-2","identificationNumber":"222"}]}`)
	resolver := newTestResolver(t, testConfig(), script)

	profile, err := resolver.Resolve(context.Background(), "user-42")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if profile.ID != "rec-1" || profile.IdentificationNumber != "111" {
		t.Fatalf("expected first record, got %+v", profile)
	}
	if profile.GivenName != "" || profile.Email != "" {
		t.Fatalf("expected missing fields to map to empty strings, got %+v", profile)
	}
}

func TestResolve_ReacquiresCredentialPerRequest(t *testing.T) {
	script := okScript(t, `{"value":[{"id":"rec-1"}]}`)
	resolver := newTestResolver(t, testConfig(), script)

	for i := 0; i < 2; i++ {
		if _, err := resolver.Resolve(context.Background(), "user-42"); err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
	}
	if got := script.exchanges.Load(); got != 2 {
		t.Fatalf("expected one exchange per resolution, got %d", got)
	}
	if got := script.queries.Load(); got != 2 {
		t.Fatalf("expected independent directory queries, got %d", got)
	}
}

func TestResolve_CredentialCacheReuse(t *testing.T) {
	cfg := testConfig()
	cfg.DirectoryTokenCache = true
	script := okScript(t, `{"value":[{"id":"rec-1"}]}`)
	resolver := newTestResolver(t, cfg, script)

	for i := 0; i < 3; i++ {
		if _, err := resolver.Resolve(context.Background(), "user-42"); err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
	}
	if got := script.exchanges.Load(); got != 1 {
		t.Fatalf("expected cached credential reuse, got %d exchanges", got)
	}
	if got := script.queries.Load(); got != 3 {
		t.Fatalf("profiles must not be cached, got %d queries", got)
	}
}

func TestResolve_CredentialCacheHonorsExpiry(t *testing.T) {
	cfg := testConfig()
	cfg.DirectoryTokenCache = true
	script := okScript(t, `{"value":[{"id":"rec-1"}]}`)
	// Credential expires inside the cache's early-expiry margin, so every
	// resolution must re-exchange.
	script.tokenBody = `{"access_token":"svc-token","token_type":"Bearer","expires_in":10}`
	resolver := newTestResolver(t, cfg, script)

	for i := 0; i < 2; i++ {
		if _, err := resolver.Resolve(context.Background(), "user-42"); err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
	}
	if got := script.exchanges.Load(); got != 2 {
		t.Fatalf("expected near-expiry credential to be refreshed, got %d exchanges", got)
	}
}
