package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/soyeahso/autoreply/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), []byte("test-derivation-key"), logging.Nop())
	require.NoError(t, err)
	return s
}

func TestStoreCreateLoadDelete(t *testing.T) {
	s := newTestStore(t)

	created, err := s.Create("acc-1")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", created.AccountID)
	assert.NotEmpty(t, created.Credentials)

	loaded, err := s.Load("acc-1")
	require.NoError(t, err)
	assert.Equal(t, created.AccountID, loaded.AccountID)
	assert.JSONEq(t, string(created.Credentials), string(loaded.Credentials))

	require.NoError(t, s.Delete("acc-1"))
	_, err = s.Load("acc-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreFilenamesNeverContainAccountID(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, []byte("k"), logging.Nop())
	require.NoError(t, err)

	_, err = s.Create("customer-12345")
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].Name(), "customer-12345")
	assert.Equal(t, ".json", filepath.Ext(entries[0].Name()))
	// 32-byte HMAC-SHA256 digest, hex encoded.
	assert.Len(t, strings.TrimSuffix(entries[0].Name(), ".json"), 64)
}

func TestStoreKeyChangesDerivedName(t *testing.T) {
	dir := t.TempDir()
	a, err := NewStore(dir, []byte("key-a"), logging.Nop())
	require.NoError(t, err)
	b, err := NewStore(dir, []byte("key-b"), logging.Nop())
	require.NoError(t, err)

	assert.NotEqual(t, a.path("acc-1"), b.path("acc-1"))
}

func TestStoreLoadOrCreate(t *testing.T) {
	s := newTestStore(t)

	first, err := s.LoadOrCreate("acc-9")
	require.NoError(t, err)

	second, err := s.LoadOrCreate("acc-9")
	require.NoError(t, err)
	assert.JSONEq(t, string(first.Credentials), string(second.Credentials))
}

func TestStoreDeleteMissingIsNoError(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Delete("never-created"))
}

func TestStoreRejectsEmptyKey(t *testing.T) {
	_, err := NewStore(t.TempDir(), nil, logging.Nop())
	assert.Error(t, err)
}
