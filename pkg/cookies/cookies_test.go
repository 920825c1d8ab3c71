package cookies

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exportJSON = `[
  {"name": "_pinterest_sess", "value": "TWc9PSZ0b2tlbg==", "domain": ".pinterest.com", "path": "/", "expirationDate": 4102444800.5, "secure": true, "httpOnly": true},
  {"name": "csrftoken", "value": "abc123", "domain": ".pinterest.com", "path": "/"},
  {"name": "old", "value": "x", "expires": 1000},
  {"value": "nameless"}
]`

func TestParse(t *testing.T) {
	cookies, err := Parse([]byte(exportJSON))
	require.NoError(t, err)
	require.Len(t, cookies, 3)
	assert.Equal(t, "_pinterest_sess", cookies[0].Name)
	assert.Equal(t, int64(4102444800), cookies[0].Expiry().Unix())
	assert.True(t, cookies[1].Expiry().IsZero())

	wrapped, err := Parse([]byte(`{"cookies": [{"name": "a", "value": "1"}]}`))
	require.NoError(t, err)
	assert.Len(t, wrapped, 1)

	_, err = Parse([]byte(`[]`))
	assert.ErrorIs(t, err, ErrInvalidSession)

	_, err = Parse([]byte(`not json`))
	assert.Error(t, err)
}

func TestToHTTPDropsExpired(t *testing.T) {
	cookies, err := Parse([]byte(exportJSON))
	require.NoError(t, err)

	httpCookies := ToHTTP(cookies, time.Now())
	require.Len(t, httpCookies, 2)
	assert.Equal(t, "_pinterest_sess", httpCookies[0].Name)
	assert.True(t, httpCookies[0].Secure)
	assert.Equal(t, "csrftoken", httpCookies[1].Name)
}

func TestSaveAndLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies", "cookies.json")
	in := []Cookie{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}}

	require.NoError(t, SaveFile(path, in))

	out, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestParseHeader(t *testing.T) {
	cookies := ParseHeader(" _pinterest_sess=abc; csrftoken=def ;broken")
	require.Len(t, cookies, 2)
	assert.Equal(t, "abc", cookies[0].Value)
	assert.Equal(t, "csrftoken", cookies[1].Name)
	assert.Empty(t, ParseHeader(""))
}

func TestManagerWithMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	manager := NewManagerWithStores(store)

	session := &Session{Profile: "work", Cookies: []Cookie{{Name: "_pinterest_sess", Value: "secretvalue123"}}}
	require.NoError(t, manager.Store(session))
	assert.False(t, session.LastModified.IsZero())

	got, err := manager.Retrieve("work")
	require.NoError(t, err)
	assert.Equal(t, "secretvalue123", got.Cookies[0].Value)

	sessions, err := manager.List()
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	masked := Sanitize(got)
	assert.Equal(t, "secr...e123", masked.Cookies[0].Value)
	assert.Equal(t, "secretvalue123", got.Cookies[0].Value, "sanitize must not modify the input")

	require.NoError(t, manager.Delete("work"))
	_, err = manager.Retrieve("work")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 0, store.Count())

	assert.ErrorIs(t, manager.Delete("work"), ErrSessionNotFound)
}

func TestManagerValidation(t *testing.T) {
	manager := NewManagerWithStores(NewMemoryStore())

	assert.Error(t, manager.Store(&Session{}))
	assert.Error(t, manager.Store(&Session{Profile: "p"}))
}

func TestManagerFallsBackOnStoreError(t *testing.T) {
	broken := NewMemoryStore()
	broken.StoreError = errors.New("keychain locked")
	fallback := NewMemoryStore()

	manager := NewManagerWithStores(broken, fallback)
	require.NoError(t, manager.Store(&Session{Profile: "p", Cookies: []Cookie{{Name: "a"}}}))

	assert.Equal(t, 0, broken.Count())
	assert.Equal(t, 1, fallback.Count())
}

func TestManagerResolve(t *testing.T) {
	store := NewMemoryStore()
	manager := NewManagerWithStores(store)
	dir := t.TempDir()

	_, _, err := manager.Resolve(filepath.Join(dir, "missing.json"), "default")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, store.Store(&Session{Profile: "default", Cookies: []Cookie{{Name: "vault", Value: "1"}}}))
	cookies, source, err := manager.Resolve(filepath.Join(dir, "missing.json"), "default")
	require.NoError(t, err)
	assert.Equal(t, "vault:default", source)
	assert.Equal(t, "vault", cookies[0].Name)

	path := filepath.Join(dir, "cookies.json")
	require.NoError(t, SaveFile(path, []Cookie{{Name: "file", Value: "1"}}))
	cookies, source, err = manager.Resolve(path, "default")
	require.NoError(t, err)
	assert.Equal(t, path, source)
	assert.Equal(t, "file", cookies[0].Name)

	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0600))
	_, _, err = manager.Resolve(path, "default")
	assert.Error(t, err)
}

func TestEncryptedFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.enc")
	store, err := NewEncryptedFileStoreWithPassphrase(path, "correct horse")
	require.NoError(t, err)

	session := &Session{Profile: "default", Cookies: []Cookie{{Name: "_pinterest_sess", Value: "plaintext-secret"}}}
	require.NoError(t, store.Store(session))
	require.NoError(t, store.Store(&Session{Profile: "other", Cookies: []Cookie{{Name: "x"}}}))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(content, []byte("plaintext-secret")), "file must not contain plaintext")

	got, err := store.Retrieve("default")
	require.NoError(t, err)
	assert.Equal(t, "plaintext-secret", got.Cookies[0].Value)
	assert.True(t, store.Exists("other"))

	wrongKey, err := NewEncryptedFileStoreWithPassphrase(path, "wrong")
	require.NoError(t, err)
	_, err = wrongKey.Retrieve("default")
	assert.Error(t, err)

	require.NoError(t, store.Delete("default"))
	require.NoError(t, store.Delete("other"))
	assert.NoFileExists(t, path)
	assert.ErrorIs(t, store.Delete("other"), ErrSessionNotFound)
}

func TestEncryptedFileStoreUsesPassphraseEnv(t *testing.T) {
	t.Setenv(PassphraseEnvVar, "from-env")
	dir := t.TempDir()

	store, err := NewEncryptedFileStore(filepath.Join(dir, "sessions.enc"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", store.passphrase)
	assert.NoFileExists(t, filepath.Join(dir, ".passphrase"))
}

func TestEnvironmentStore(t *testing.T) {
	store := NewEnvironmentStore()

	t.Setenv(SessionEnvVar, "")
	_, err := store.Retrieve("default")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	t.Setenv(SessionEnvVar, "_pinterest_sess=abc")
	session, err := store.Retrieve("")
	require.NoError(t, err)
	assert.Equal(t, "default", session.Profile)
	assert.True(t, store.Exists(""))
	assert.ErrorIs(t, store.Store(session), ErrStoreUnavailable)
}

func TestShowExportGuide(t *testing.T) {
	var buf bytes.Buffer
	ShowExportGuide(&buf)
	assert.Contains(t, buf.String(), DefaultFile)
	assert.Contains(t, buf.String(), SessionEnvVar)
}
