package domain

import "context"

// Principal is the identity extracted from a successfully verified bearer
// token. Subject is always non-empty; Claims carries the remaining token
// claims for callers that need extension claims.
type Principal struct {
	Subject string
	Claims  map[string]any
}

type TokenVerifier interface {
	Verify(ctx context.Context, bearerToken string) (Principal, error)
}
