package state

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picogrid/legion-connector/pkg/models"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: t.TempDir(), CompressionLevel: 3})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGet(t *testing.T) {
	s := openTemp(t)

	in := models.ModelState{
		ExternalID:    "hx-model-1",
		FilePath:      "/models/hx-model-1.yaml",
		VersionNumber: 3,
		DownloadedAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Parsed:        true,
	}
	require.NoError(t, s.Put("models", in.ExternalID, in))

	var out models.ModelState
	found, err := s.Get("models", in.ExternalID, &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, in, out)
}

func TestGetMissing(t *testing.T) {
	s := openTemp(t)

	var out models.ModelState
	found, err := s.Get("models", "nope", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNamespacesAreIsolated(t *testing.T) {
	s := openTemp(t)

	require.NoError(t, s.Put("models", "a", 1))
	require.NoError(t, s.Put("models", "b", 2))
	require.NoError(t, s.Put("routines", "a", 3))

	keys, err := s.Keys("models")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"a", "b"}, keys)

	all, err := LoadAll[int](s, "routines")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 3}, all)
}

func TestDelete(t *testing.T) {
	s := openTemp(t)

	require.NoError(t, s.Put("models", "a", "x"))
	require.NoError(t, s.Delete("models", "a"))
	require.NoError(t, s.Delete("models", "missing"))

	var out string
	found, err := s.Get("models", "a", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestReopenKeepsState(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(Config{Path: dir})
	require.NoError(t, err)
	require.NoError(t, s.Put("models", "a", "persisted"))
	require.NoError(t, s.Persist())
	require.NoError(t, s.Close())

	s, err = Open(Config{Path: dir})
	require.NoError(t, err)
	defer s.Close()

	var out string
	found, err := s.Get("models", "a", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "persisted", out)
}

func TestInMemory(t *testing.T) {
	s, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put("runs", "1", map[string]string{"status": "success"}))
	require.NoError(t, s.Persist())

	_, err = Open(Config{})
	assert.Error(t, err)
}
