package authn

import "errors"

var (
	// ErrNotAuthenticated is returned by operations requiring a live
	// session (impersonation) when none exists.
	ErrNotAuthenticated = errors.New("authn: not authenticated")
)

// AuthError is a credential rejection reported by the backend. It carries
// the backend-provided message so the UI can surface it verbatim. No
// session state is mutated when one of these is returned.
type AuthError struct {
	Message    string
	StatusCode int
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return "authn: " + e.Message
	}
	return "authn: authentication rejected"
}
