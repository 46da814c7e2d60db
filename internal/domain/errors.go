package domain

import "errors"

var (
	ErrMalformedRequest       = errors.New("malformed request")
	ErrTrustAnchorUnavailable = errors.New("trust anchor unavailable")
	ErrTokenInvalid           = errors.New("token invalid")
	ErrSubjectMissing         = errors.New("subject missing")
	ErrInvalidSubject         = errors.New("invalid subject")
	ErrProfileNotFound        = errors.New("profile not found")
	ErrProfileUnavailable     = errors.New("profile unavailable")
	ErrNotFound               = errors.New("not found")
)
