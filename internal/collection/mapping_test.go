package collection

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapper_ResolveIsStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collections.json")
	m := NewMapper(path)

	id1, err := m.Resolve("my-proj")
	require.NoError(t, err)

	id2, err := m.Resolve("my-proj")
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
}

func TestMapper_DistinctNamesMapToDistinctIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collections.json")
	m := NewMapper(path)

	idA, err := m.Resolve("alpha")
	require.NoError(t, err)
	idB, err := m.Resolve("beta")
	require.NoError(t, err)

	assert.NotEqual(t, idA, idB)
}

func TestMapper_ForgetThenResolveYieldsNewID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collections.json")
	m := NewMapper(path)

	id1, err := m.Resolve("my-proj")
	require.NoError(t, err)

	require.NoError(t, m.Forget("my-proj"))

	id2, err := m.Resolve("my-proj")
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)

	got, ok, err := m.Lookup("my-proj")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id2, got)
}

func TestMapper_LookupMissingReturnsFalse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collections.json")
	m := NewMapper(path)

	_, ok, err := m.Lookup("nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMapper_BackendIDShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collections.json")
	m := NewMapper(path)

	id, err := m.Resolve("My-Proj Name")
	require.NoError(t, err)

	assert.Regexp(t, `^[a-z0-9_]+_[0-9]{6}$`, id)
}

func TestMapper_List(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collections.json")
	m := NewMapper(path)

	_, err := m.Resolve("alpha")
	require.NoError(t, err)
	_, err = m.Resolve("beta")
	require.NoError(t, err)

	entries, err := m.List()
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
