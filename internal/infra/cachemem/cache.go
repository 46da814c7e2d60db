package cachemem

import (
	"sync"
	"time"

	"medgate/internal/domain"
)

// CredentialCache holds the directory service credential for expiry-aware
// reuse. A credential within the margin of its expiry is treated as absent,
// so an expired credential is never served.
type CredentialCache struct {
	mu     sync.Mutex
	margin time.Duration
	now    func() time.Time
	cred   domain.ServiceCredential
	set    bool
}

func New(margin time.Duration) *CredentialCache {
	return &CredentialCache{
		margin: margin,
		now:    time.Now,
	}
}

func (c *CredentialCache) Get() (domain.ServiceCredential, bool) {
	if c == nil {
		return domain.ServiceCredential{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.set {
		return domain.ServiceCredential{}, false
	}
	if !c.cred.ExpiresAt.IsZero() && !c.now().Add(c.margin).Before(c.cred.ExpiresAt) {
		c.set = false
		return domain.ServiceCredential{}, false
	}
	return c.cred, true
}

func (c *CredentialCache) Put(cred domain.ServiceCredential) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cred = cred
	c.set = true
}
