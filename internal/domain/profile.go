package domain

import (
	"context"
	"time"
)

// Profile is the external directory's record for a person. Fields absent
// from the upstream response are empty strings, never an error; the
// identification-number comparison downstream handles the rest.
type Profile struct {
	ID                   string
	GivenName            string
	Surname              string
	DisplayName          string
	Email                string
	IdentificationNumber string
}

type ProfileResolver interface {
	Resolve(ctx context.Context, subjectID string) (Profile, error)
}

// ServiceCredential is a directory access credential obtained through a
// client-credentials exchange.
type ServiceCredential struct {
	AccessToken string
	ExpiresAt   time.Time
}

type CredentialExchanger interface {
	Exchange(ctx context.Context) (ServiceCredential, error)
}
