// pkg/volume/volume_test.go
// TEST TYPE: Unit Test
// DEPENDENCIES: OS filesystem (temp dirs), afero memory filesystem
// PURPOSE: Test volume lifecycle, path containment, clone and seal semantics

package volume_test

import (
	"io/fs"
	"testing"

	"github.com/strata-build/strata/pkg/errors"
	"github.com/strata-build/strata/pkg/volume"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemStore(t *testing.T) *volume.Store {
	t.Helper()
	f := volume.NewMemoryFS()
	require.NoError(t, f.MkdirAll("/work", 0755))
	return volume.NewStore(f, "/work")
}

func TestCreateAndMutate(t *testing.T) {
	store := newMemStore(t)

	vol, err := store.Create("base")
	require.NoError(t, err)
	assert.Equal(t, "base", vol.ID())

	require.NoError(t, vol.MkdirAll("/etc", 0755))
	require.NoError(t, vol.WriteFile("/etc/hostname", []byte("web01\n"), 0644))

	data, err := vol.ReadFile("/etc/hostname")
	require.NoError(t, err)
	assert.Equal(t, "web01\n", string(data))
	assert.True(t, vol.Exists("/etc"))
	assert.False(t, vol.Exists("/var"))
}

func TestCreateDuplicate(t *testing.T) {
	store := newMemStore(t)

	_, err := store.Create("base")
	require.NoError(t, err)

	_, err = store.Create("base")
	assert.True(t, errors.IsErrorCode(err, errors.ErrVolumeCreate))
}

func TestInvalidID(t *testing.T) {
	store := newMemStore(t)

	for _, id := range []string{"", "a/b", "..", "."} {
		_, err := store.Create(id)
		assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput), "id %q", id)
	}
}

func TestPathEscapeRejected(t *testing.T) {
	store := newMemStore(t)
	vol, err := store.Create("base")
	require.NoError(t, err)

	// Normalization collapses traversal back inside the root.
	p, err := vol.HostPath("/../../outside")
	require.NoError(t, err)
	assert.Contains(t, p, "base")
}

func TestSealBlocksMutation(t *testing.T) {
	store := newMemStore(t)
	vol, err := store.Create("base")
	require.NoError(t, err)
	require.NoError(t, vol.WriteFile("/f", []byte("x"), 0644))

	sealed, err := store.Seal(vol)
	require.NoError(t, err)
	assert.Equal(t, "base", sealed.ID())

	err = vol.WriteFile("/g", []byte("y"), 0644)
	assert.True(t, errors.IsErrorCode(err, errors.ErrVolumeSealed))

	_, err = store.Seal(vol)
	assert.True(t, errors.IsErrorCode(err, errors.ErrVolumeSealed))
}

func TestSealRefusesActiveMounts(t *testing.T) {
	store := newMemStore(t)
	vol, err := store.Create("base")
	require.NoError(t, err)

	vol.RecordMount("/mnt/repo", "repo-snapshot")
	_, err = store.Seal(vol)
	require.Error(t, err)

	vol.ReleaseMounts()
	assert.Empty(t, vol.Mounts())
	_, err = store.Seal(vol)
	assert.NoError(t, err)
}

func TestCloneCopiesParentTree(t *testing.T) {
	store := newMemStore(t)

	parentMut, err := store.Create("parent")
	require.NoError(t, err)
	require.NoError(t, parentMut.MkdirAll("/usr/bin", 0755))
	require.NoError(t, parentMut.WriteFile("/usr/bin/sh", []byte("#!"), 0755))
	parent, err := store.Seal(parentMut)
	require.NoError(t, err)

	child, err := store.Clone(parent, "child")
	require.NoError(t, err)
	assert.Equal(t, "parent", child.Parent())

	data, err := child.ReadFile("/usr/bin/sh")
	require.NoError(t, err)
	assert.Equal(t, "#!", string(data))

	// Mutating the clone leaves the parent untouched.
	require.NoError(t, child.WriteFile("/usr/bin/env", []byte("e"), 0755))
	_, err = parent.Lstat("/usr/bin/env")
	assert.Error(t, err)
}

func TestDiscard(t *testing.T) {
	store := newMemStore(t)
	vol, err := store.Create("doomed")
	require.NoError(t, err)
	require.NoError(t, vol.WriteFile("/f", []byte("x"), 0644))

	require.NoError(t, store.Discard(vol))
	_, err = store.Open("doomed")
	assert.True(t, errors.IsErrorCode(err, errors.ErrNotFound))
}

func TestSymlinkRoundTrip(t *testing.T) {
	store := volume.NewStore(volume.NewOSFS(), t.TempDir())
	vol, err := store.Create("links")
	require.NoError(t, err)

	require.NoError(t, vol.MkdirAll("/usr/bin", 0755))
	require.NoError(t, vol.Symlink("/usr/bin", "/bin"))

	info, err := vol.Lstat("/bin")
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&fs.ModeSymlink)
}
