package brain

import "fmt"

// AuthError reports that the backend rejected or did not receive the bearer
// credential. It is deliberately distinct from plain transport failures so
// callers can route the user to re-authentication instead of retrying.
type AuthError struct {
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication rejected by backend (status %d)", e.StatusCode)
}
