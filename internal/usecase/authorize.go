package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"medgate/internal/domain"
	"medgate/internal/logging"
)

// AuthorizationGate decides whether a caller may read the expenses of a
// given identification number. The steps run in a strict short-circuit
// sequence: extract the bearer token, verify it, resolve the subject's
// directory profile, then compare the profile's registered identification
// number byte-for-byte against the requested one. The gate holds no state
// between calls; concurrent invocations are independent.
type AuthorizationGate struct {
	verifier domain.TokenVerifier
	resolver domain.ProfileResolver
	logger   *slog.Logger
}

func NewAuthorizationGate(verifier domain.TokenVerifier, resolver domain.ProfileResolver, logger *slog.Logger) *AuthorizationGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthorizationGate{verifier: verifier, resolver: resolver, logger: logger}
}

func (g *AuthorizationGate) Authorize(ctx context.Context, rawAuthorizationHeader, requestedID string) (decision domain.Decision) {
	// Nothing below is allowed to escape as a fault; a programming error
	// becomes a generic deny at this boundary.
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("authorization panicked",
				"request_id", logging.RequestID(ctx),
				"panic", fmt.Sprint(r))
			decision = domain.Deny(domain.DenyUnexpected)
		}
	}()

	token, ok := bearerToken(rawAuthorizationHeader)
	if !ok {
		g.deny(ctx, "header", domain.DenyMissingToken, nil)
		return domain.Deny(domain.DenyMissingToken)
	}

	principal, err := g.verifier.Verify(ctx, token)
	if err != nil {
		reason := verificationDenyReason(err)
		g.deny(ctx, "verify", reason, err)
		return domain.Deny(reason)
	}

	profile, err := g.resolver.Resolve(ctx, principal.Subject)
	if err != nil {
		reason := resolutionDenyReason(err)
		g.deny(ctx, "resolve", reason, err)
		return domain.Deny(reason)
	}

	if profile.IdentificationNumber != requestedID {
		g.deny(ctx, "compare", domain.DenyIdentificationMismatch, nil)
		return domain.Deny(domain.DenyIdentificationMismatch)
	}
	return domain.Allow(requestedID)
}

func (g *AuthorizationGate) deny(ctx context.Context, step string, reason domain.DenyReason, err error) {
	attrs := []any{
		"request_id", logging.RequestID(ctx),
		"step", step,
		"reason", string(reason),
	}
	if err != nil {
		// Wrapped errors carry upstream status codes but never the raw
		// token, the client secret or profile contents.
		attrs = append(attrs, "error", err.Error())
	}
	g.logger.Warn("authorization denied", attrs...)
}

func verificationDenyReason(err error) domain.DenyReason {
	switch {
	case errors.Is(err, domain.ErrSubjectMissing):
		return domain.DenySubjectMissing
	case errors.Is(err, domain.ErrTrustAnchorUnavailable):
		// An identity-provider outage is an infrastructure failure, not a
		// statement about the caller's token.
		return domain.DenyUnexpected
	case errors.Is(err, domain.ErrTokenInvalid):
		return domain.DenyTokenInvalid
	default:
		return domain.DenyUnexpected
	}
}

func resolutionDenyReason(err error) domain.DenyReason {
	switch {
	case errors.Is(err, domain.ErrInvalidSubject):
		// A subject that fails the filter allow-list means the token
		// carried content we refuse to forward; treat it like a bad token.
		return domain.DenyTokenInvalid
	case errors.Is(err, domain.ErrProfileNotFound):
		return domain.DenyProfileNotFound
	case errors.Is(err, domain.ErrProfileUnavailable):
		return domain.DenyProfileUnavailable
	default:
		return domain.DenyUnexpected
	}
}

// bearerToken strips the case-insensitive "Bearer " scheme prefix. An
// absent header, a different scheme, or an empty remainder all count as
// missing-or-malformed.
func bearerToken(header string) (string, bool) {
	value := strings.TrimSpace(header)
	if value == "" {
		return "", false
	}
	if !strings.HasPrefix(strings.ToLower(value), "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(value[len("bearer "):])
	if token == "" {
		return "", false
	}
	return token, true
}
