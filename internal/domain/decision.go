package domain

type DenyReason string

const (
	DenyMissingToken           DenyReason = "missing-or-malformed-token"
	DenyTokenInvalid           DenyReason = "token-invalid"
	DenySubjectMissing         DenyReason = "subject-missing"
	DenyProfileNotFound        DenyReason = "profile-not-found"
	DenyProfileUnavailable     DenyReason = "profile-unavailable"
	DenyIdentificationMismatch DenyReason = "identification-mismatch"
	DenyUnexpected             DenyReason = "unexpected"
)

// Decision is the terminal output of the authorization gate. Either the
// whole chain succeeded and the decision allows the requested
// identification number, or the first failing step denied with its reason.
type Decision struct {
	Allowed              bool
	IdentificationNumber string
	Reason               DenyReason
}

func Allow(identificationNumber string) Decision {
	return Decision{Allowed: true, IdentificationNumber: identificationNumber}
}

func Deny(reason DenyReason) Decision {
	return Decision{Allowed: false, Reason: reason}
}
