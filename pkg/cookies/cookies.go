// Package cookies loads browser session cookies and keeps them in a vault
// backed by the system keychain, with an encrypted file as fallback.
package cookies

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// DefaultFile is where cookie exports are looked up relative to the working
// directory
const DefaultFile = "cookies/cookies.json"

// Cookie is one entry of a browser cookie export. Both the extension style
// (expirationDate in seconds) and the devtools style (expires) are accepted.
type Cookie struct {
	Name           string  `json:"name"`
	Value          string  `json:"value"`
	Domain         string  `json:"domain,omitempty"`
	Path           string  `json:"path,omitempty"`
	Expires        float64 `json:"expires,omitempty"`
	ExpirationDate float64 `json:"expirationDate,omitempty"`
	Secure         bool    `json:"secure,omitempty"`
	HTTPOnly       bool    `json:"httpOnly,omitempty"`
}

// Expiry returns the cookie's expiry, or the zero time for session cookies
func (c Cookie) Expiry() time.Time {
	secs := c.ExpirationDate
	if secs == 0 {
		secs = c.Expires
	}
	if secs <= 0 {
		return time.Time{}
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9))
}

// Session is a named set of cookies
type Session struct {
	Profile      string    `json:"profile"`
	Cookies      []Cookie  `json:"cookies"`
	LastModified time.Time `json:"last_modified"`
}

// Store is the interface for storing and retrieving sessions
type Store interface {
	// Store saves the session under its profile name
	Store(session *Session) error

	// Retrieve gets the session for a profile
	Retrieve(profile string) (*Session, error)

	// List returns all stored sessions
	List() ([]*Session, error)

	// Delete removes the session for a profile
	Delete(profile string) error

	// Exists checks if a session exists for a profile
	Exists(profile string) bool
}

// Errors
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrInvalidSession   = errors.New("invalid session")
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// LoadFile reads a JSON array of cookies as exported by a browser
func LoadFile(path string) ([]Cookie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a cookie export. A bare array and an object with a
// "cookies" field are both accepted.
func Parse(data []byte) ([]Cookie, error) {
	var list []Cookie
	if err := json.Unmarshal(data, &list); err != nil {
		var wrapped struct {
			Cookies []Cookie `json:"cookies"`
		}
		if err2 := json.Unmarshal(data, &wrapped); err2 != nil {
			return nil, fmt.Errorf("failed to parse cookies: %w", err)
		}
		list = wrapped.Cookies
	}

	out := list[:0]
	for _, c := range list {
		if c.Name != "" {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, ErrInvalidSession
	}
	return out, nil
}

// SaveFile writes cookies as a JSON array readable by LoadFile
func SaveFile(path string, cookies []Cookie) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cookies: %w", err)
	}
	tempFile := path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return os.Rename(tempFile, path)
}

// ToHTTP converts cookies for use with net/http, dropping expired ones
func ToHTTP(cookies []Cookie, now time.Time) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		exp := c.Expiry()
		if !exp.IsZero() && exp.Before(now) {
			continue
		}
		out = append(out, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  exp,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		})
	}
	return out
}

// Manager handles session storage with fallback mechanisms
type Manager struct {
	stores []Store
}

// NewManager creates a manager using the keychain when it is reachable,
// then the encrypted file store, then the environment.
func NewManager() (*Manager, error) {
	var stores []Store

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "sessions.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a manager over explicit stores
func NewManagerWithStores(stores ...Store) *Manager {
	return &Manager{stores: stores}
}

// Store saves the session using the first store that accepts it
func (m *Manager) Store(session *Session) error {
	if session == nil || session.Profile == "" {
		return errors.New("profile is required")
	}
	if len(session.Cookies) == 0 {
		return errors.New("at least one cookie is required")
	}

	session.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(session)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store session: %w", lastErr)
	}
	return errors.New("no available session stores")
}

// Retrieve gets the session from the first store that has it
func (m *Manager) Retrieve(profile string) (*Session, error) {
	for _, store := range m.stores {
		if session, err := store.Retrieve(profile); err == nil && session != nil {
			return session, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, profile)
}

// List returns all sessions, keeping the newest copy of each profile
func (m *Manager) List() ([]*Session, error) {
	byProfile := make(map[string]*Session)

	for _, store := range m.stores {
		sessions, err := store.List()
		if err != nil {
			continue
		}
		for _, s := range sessions {
			if existing, ok := byProfile[s.Profile]; !ok || s.LastModified.After(existing.LastModified) {
				byProfile[s.Profile] = s
			}
		}
	}

	result := make([]*Session, 0, len(byProfile))
	for _, s := range byProfile {
		result = append(result, s)
	}
	return result, nil
}

// Delete removes the session from all stores
func (m *Manager) Delete(profile string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Delete(profile); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}

	if !deleted && lastErr != nil && !errors.Is(lastErr, ErrSessionNotFound) && !errors.Is(lastErr, ErrStoreUnavailable) {
		return fmt.Errorf("failed to delete session: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, profile)
	}
	return nil
}

// Resolve returns the cookies to use for a run: the export at path when it
// exists, otherwise the stored session for profile.
func (m *Manager) Resolve(path, profile string) ([]Cookie, string, error) {
	if path != "" {
		cookies, err := LoadFile(path)
		if err == nil {
			return cookies, path, nil
		}
		if !os.IsNotExist(err) {
			return nil, "", fmt.Errorf("cookie file %s: %w", path, err)
		}
	}

	session, err := m.Retrieve(profile)
	if err != nil {
		return nil, "", err
	}
	return session.Cookies, "vault:" + profile, nil
}

// Sanitize returns a copy of the session with cookie values masked
func Sanitize(session *Session) *Session {
	if session == nil {
		return nil
	}
	masked := make([]Cookie, len(session.Cookies))
	for i, c := range session.Cookies {
		c.Value = maskString(c.Value)
		masked[i] = c
	}
	return &Session{
		Profile:      session.Profile,
		Cookies:      masked,
		LastModified: session.LastModified,
	}
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// getConfigDir returns the configuration directory path
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "pinscraper")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "pinscraper")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "pinscraper")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "pinscraper")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return configDir, nil
}

// ParseHeader splits a Cookie request header value ("a=1; b=2")
func ParseHeader(header string) []Cookie {
	var out []Cookie
	for _, part := range strings.Split(header, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || name == "" {
			continue
		}
		out = append(out, Cookie{Name: name, Value: value, Domain: ".pinterest.com", Path: "/"})
	}
	return out
}
