// Package manifest records the outcome of a layer build: what was
// built, from what parent, and the content hash that makes rebuilds
// comparable. Manifests live next to the sealed volume, outside the
// hashed tree, so writing one never perturbs the hash it records.
package manifest

import (
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/strata-build/strata/pkg/errors"
	"github.com/strata-build/strata/pkg/volume"
)

// Manifest describes one sealed layer.
type Manifest struct {
	Target         string    `toml:"target"`
	Subvolume      string    `toml:"subvolume"`
	Parent         string    `toml:"parent,omitempty"`
	BuildAppliance string    `toml:"build_appliance,omitempty"`
	ItemCount      int       `toml:"item_count"`
	ContentHash    string    `toml:"content_hash"`
	SizeBytes      int64     `toml:"size_bytes"`
	BuiltAt        time.Time `toml:"built_at"`
}

// PathFor returns the manifest location for a sealed volume id within a
// store directory.
func PathFor(storeDir, id string) string {
	return filepath.Join(storeDir, id+".manifest.toml")
}

// Write serializes the manifest to path.
func Write(f volume.FS, path string, m *Manifest) error {
	data, err := toml.Marshal(m)
	if err != nil {
		return errors.Wrap(err, errors.ErrManifestWrite, "encoding manifest")
	}
	if err := f.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, errors.ErrManifestWrite, "writing manifest %s", path)
	}
	return nil
}

// Read loads a manifest from path.
func Read(f volume.FS, path string) (*Manifest, error) {
	data, err := f.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrManifestRead, "reading manifest %s", path)
	}
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(err, errors.ErrManifestRead, "parsing manifest %s", path)
	}
	return &m, nil
}
