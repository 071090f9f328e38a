// pkg/volume/hash_test.go
// TEST TYPE: Unit Test
// DEPENDENCIES: afero memory filesystem
// PURPOSE: Test content hash stability and sensitivity

package volume_test

import (
	"testing"

	"github.com/strata-build/strata/pkg/volume"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sealedWith(t *testing.T, store *volume.Store, id string, files map[string]string) *volume.Immutable {
	t.Helper()
	vol, err := store.Create(id)
	require.NoError(t, err)
	for p, content := range files {
		require.NoError(t, vol.MkdirAll(volume.ParentDir(p), 0755))
		require.NoError(t, vol.WriteFile(p, []byte(content), 0644))
	}
	sealed, err := store.Seal(vol)
	require.NoError(t, err)
	return sealed
}

func TestTreeHashStable(t *testing.T) {
	store := newMemStore(t)
	files := map[string]string{
		"/etc/hostname": "web01\n",
		"/etc/hosts":    "127.0.0.1 localhost\n",
	}

	a := sealedWith(t, store, "a", files)
	b := sealedWith(t, store, "b", files)

	ha, err := volume.TreeHash(a)
	require.NoError(t, err)
	hb, err := volume.TreeHash(b)
	require.NoError(t, err)

	assert.Equal(t, ha, hb, "identical trees must hash identically")
	assert.Len(t, ha, 64)
}

func TestTreeHashSensitive(t *testing.T) {
	store := newMemStore(t)

	a := sealedWith(t, store, "a", map[string]string{"/f": "x"})
	b := sealedWith(t, store, "b", map[string]string{"/f": "y"})
	c := sealedWith(t, store, "c", map[string]string{"/g": "x"})

	ha, err := volume.TreeHash(a)
	require.NoError(t, err)
	hb, err := volume.TreeHash(b)
	require.NoError(t, err)
	hc, err := volume.TreeHash(c)
	require.NoError(t, err)

	assert.NotEqual(t, ha, hb, "content change must change the hash")
	assert.NotEqual(t, ha, hc, "path change must change the hash")
}

func TestTreeSize(t *testing.T) {
	store := newMemStore(t)
	v := sealedWith(t, store, "sized", map[string]string{
		"/a": "12345",
		"/b": "123",
	})

	size, err := volume.TreeSize(v)
	require.NoError(t, err)
	assert.Equal(t, int64(8), size)
}
