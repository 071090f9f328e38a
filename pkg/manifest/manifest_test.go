// pkg/manifest/manifest_test.go
// TEST TYPE: Unit Test
// DEPENDENCIES: afero memory filesystem
// PURPOSE: Test manifest persistence

package manifest_test

import (
	"testing"
	"time"

	"github.com/strata-build/strata/pkg/errors"
	"github.com/strata-build/strata/pkg/manifest"
	"github.com/strata-build/strata/pkg/volume"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndRead(t *testing.T) {
	f := volume.NewMemoryFS()
	require.NoError(t, f.MkdirAll("/store", 0755))

	in := &manifest.Manifest{
		Target:         "app-layer",
		Subvolume:      "app-layer-v1",
		Parent:         "base",
		BuildAppliance: "centos9",
		ItemCount:      7,
		ContentHash:    "blake2b:deadbeef",
		SizeBytes:      4096,
		BuiltAt:        time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}

	path := manifest.PathFor("/store", "app-layer-v1")
	assert.Equal(t, "/store/app-layer-v1.manifest.toml", path)

	require.NoError(t, manifest.Write(f, path, in))
	out, err := manifest.Read(f, path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestReadMissing(t *testing.T) {
	f := volume.NewMemoryFS()
	_, err := manifest.Read(f, "/store/nope.manifest.toml")
	assert.True(t, errors.IsErrorCode(err, errors.ErrManifestRead))
}
