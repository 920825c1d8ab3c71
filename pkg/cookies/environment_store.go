package cookies

import (
	"os"
	"time"
)

// SessionEnvVar holds a raw Cookie header, e.g. "_pinterest_sess=...; csrftoken=..."
const SessionEnvVar = "PINSCRAPER_SESSION_COOKIE"

// EnvironmentStore is a read-only Store over SessionEnvVar
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(*Session) error {
	return ErrStoreUnavailable
}

// Retrieve returns the environment session under any profile name
func (e *EnvironmentStore) Retrieve(profile string) (*Session, error) {
	cookies := ParseHeader(os.Getenv(SessionEnvVar))
	if len(cookies) == 0 {
		return nil, ErrSessionNotFound
	}
	if profile == "" {
		profile = "default"
	}
	return &Session{Profile: profile, Cookies: cookies, LastModified: time.Now()}, nil
}

// List returns the environment session when one is set
func (e *EnvironmentStore) List() ([]*Session, error) {
	session, err := e.Retrieve("")
	if err != nil {
		return []*Session{}, nil
	}
	return []*Session{session}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment cookies are set
func (e *EnvironmentStore) Exists(string) bool {
	return os.Getenv(SessionEnvVar) != ""
}
