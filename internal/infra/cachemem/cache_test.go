package cachemem

import (
	"testing"
	"time"

	"medgate/internal/domain"
)

func TestGet_EmptyCache(t *testing.T) {
	c := New(30 * time.Second)
	if _, ok := c.Get(); ok {
		t.Fatal("expected empty cache miss")
	}
}

func TestPutGet_RoundTrip(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := New(30 * time.Second)
	c.now = func() time.Time { return base }

	want := domain.ServiceCredential{AccessToken: "tok", ExpiresAt: base.Add(time.Hour)}
	c.Put(want)
	got, ok := c.Get()
	if !ok || got.AccessToken != "tok" {
		t.Fatalf("expected cached credential, got %+v ok=%v", got, ok)
	}
}

func TestGet_ExpiryMargin(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := New(30 * time.Second)
	c.now = func() time.Time { return base }

	// Expires inside the margin: treated as absent.
	c.Put(domain.ServiceCredential{AccessToken: "tok", ExpiresAt: base.Add(10 * time.Second)})
	if _, ok := c.Get(); ok {
		t.Fatal("credential inside the expiry margin must not be served")
	}

	// A subsequent put replaces the evicted entry.
	c.Put(domain.ServiceCredential{AccessToken: "tok2", ExpiresAt: base.Add(time.Hour)})
	if got, ok := c.Get(); !ok || got.AccessToken != "tok2" {
		t.Fatalf("expected replacement credential, got %+v ok=%v", got, ok)
	}
}

func TestGet_NoExpiryNeverEvicted(t *testing.T) {
	c := New(30 * time.Second)
	c.Put(domain.ServiceCredential{AccessToken: "tok"})
	if _, ok := c.Get(); !ok {
		t.Fatal("credential without expiry should be served")
	}
}

func TestNilReceiver(t *testing.T) {
	var c *CredentialCache
	if _, ok := c.Get(); ok {
		t.Fatal("nil cache must miss")
	}
	c.Put(domain.ServiceCredential{AccessToken: "tok"})
}
