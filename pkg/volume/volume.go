// Package volume models the copy-on-write working tree a layer build
// mutates. A Store hands out Mutable volumes (fresh or cloned from a
// sealed parent), items mutate them through path-scoped primitives, and a
// successful build seals the volume into an Immutable handle. The backing
// driver here is a plain directory tree; the compiler only relies on the
// capability surface, so a btrfs-style driver can slot in behind it.
package volume

import (
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/strata-build/strata/pkg/errors"
	"github.com/strata-build/strata/pkg/logging"
)

// MountRecord tracks a mount established inside a volume during a build.
// Every record must be released before the volume is sealed, on failure
// paths included, since builds run with elevated privileges.
type MountRecord struct {
	Point  string // absolute path inside the volume
	Source string
}

// Store manages volumes under a single working directory.
type Store struct {
	fs     FS
	root   string
	logger zerolog.Logger
}

// NewStore creates a volume store rooted at dir.
func NewStore(backing FS, dir string) *Store {
	return &Store{
		fs:     backing,
		root:   dir,
		logger: logging.GetLogger("volume.store"),
	}
}

// FS returns the filesystem the store's volumes live on.
func (s *Store) FS() FS { return s.fs }

// Dir returns the store's working directory.
func (s *Store) Dir() string { return s.root }

// Create makes a fresh empty mutable volume with the given identity.
func (s *Store) Create(id string) (*Mutable, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	dir := filepath.Join(s.root, id)
	if _, err := s.fs.Stat(dir); err == nil {
		return nil, errors.Newf(errors.ErrVolumeCreate, "volume %q already exists", id)
	}
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, errors.ErrVolumeCreate, "creating volume %q", id)
	}
	s.logger.Debug().Str("volume", id).Msg("Created empty volume")
	return &Mutable{id: id, dir: dir, fs: s.fs}, nil
}

// Clone snapshots a sealed parent into a new mutable volume.
func (s *Store) Clone(parent *Immutable, id string) (*Mutable, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	dir := filepath.Join(s.root, id)
	if _, err := s.fs.Stat(dir); err == nil {
		return nil, errors.Newf(errors.ErrVolumeClone, "volume %q already exists", id)
	}
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, errors.ErrVolumeClone, "creating volume %q", id)
	}
	if err := copyTree(s.fs, parent.dir, dir); err != nil {
		_ = s.fs.RemoveAll(dir)
		return nil, errors.Wrapf(err, errors.ErrVolumeClone, "cloning %q into %q", parent.id, id)
	}
	s.logger.Debug().Str("parent", parent.id).Str("volume", id).Msg("Cloned volume")
	return &Mutable{id: id, dir: dir, fs: s.fs, parent: parent.id}, nil
}

// Open returns an immutable handle on an existing sealed volume.
func (s *Store) Open(id string) (*Immutable, error) {
	dir := filepath.Join(s.root, id)
	info, err := s.fs.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, errors.Newf(errors.ErrNotFound, "volume %q not found in %s", id, s.root)
	}
	return &Immutable{id: id, dir: dir, fs: s.fs}, nil
}

// Discard destroys a mutable volume and everything in it.
func (s *Store) Discard(m *Mutable) error {
	if err := s.fs.RemoveAll(m.dir); err != nil {
		return errors.Wrapf(err, errors.ErrVolumeDiscard, "discarding volume %q", m.id)
	}
	s.logger.Debug().Str("volume", m.id).Msg("Discarded volume")
	return nil
}

// Seal transitions a mutable volume into a read-only handle. The mutable
// handle is dead afterwards; further mutation attempts fail.
func (s *Store) Seal(m *Mutable) (*Immutable, error) {
	if m.sealed {
		return nil, errors.Newf(errors.ErrVolumeSealed, "volume %q is already sealed", m.id)
	}
	if len(m.mounts) > 0 {
		return nil, errors.Newf(errors.ErrInternal,
			"volume %q still has %d active mounts", m.id, len(m.mounts))
	}
	m.sealed = true
	s.logger.Debug().Str("volume", m.id).Msg("Sealed volume")
	return &Immutable{id: m.id, dir: m.dir, fs: s.fs}, nil
}

func validateID(id string) error {
	if id == "" || strings.ContainsAny(id, "/\\") || id == "." || id == ".." {
		return errors.Newf(errors.ErrInvalidInput, "invalid volume id %q", id)
	}
	return nil
}

// Mutable is the working volume a single in-flight build owns exclusively.
type Mutable struct {
	id     string
	dir    string
	parent string
	fs     FS
	sealed bool
	mounts []MountRecord
}

// ID returns the volume identity.
func (m *Mutable) ID() string { return m.id }

// Parent returns the identity of the volume this one was cloned from, or "".
func (m *Mutable) Parent() string { return m.parent }

// Dir returns the host directory backing the volume.
func (m *Mutable) Dir() string { return m.dir }

// HostPath resolves an image-absolute path to its location on the backing
// filesystem, refusing anything that would escape the volume root.
func (m *Mutable) HostPath(imagePath string) (string, error) {
	return resolve(m.dir, imagePath)
}

func (m *Mutable) check() error {
	if m.sealed {
		return errors.Newf(errors.ErrVolumeSealed, "volume %q is sealed", m.id)
	}
	return nil
}

// WriteFile writes a regular file at an image-absolute path.
func (m *Mutable) WriteFile(imagePath string, data []byte, mode fs.FileMode) error {
	if err := m.check(); err != nil {
		return err
	}
	p, err := m.HostPath(imagePath)
	if err != nil {
		return err
	}
	return m.fs.WriteFile(p, data, mode)
}

// MkdirAll creates a directory chain at an image-absolute path.
func (m *Mutable) MkdirAll(imagePath string, mode fs.FileMode) error {
	if err := m.check(); err != nil {
		return err
	}
	p, err := m.HostPath(imagePath)
	if err != nil {
		return err
	}
	return m.fs.MkdirAll(p, mode)
}

// Chmod changes the mode of an existing path.
func (m *Mutable) Chmod(imagePath string, mode fs.FileMode) error {
	if err := m.check(); err != nil {
		return err
	}
	p, err := m.HostPath(imagePath)
	if err != nil {
		return err
	}
	return m.fs.Chmod(p, mode)
}

// Chown changes the ownership of an existing path.
func (m *Mutable) Chown(imagePath string, uid, gid int) error {
	if err := m.check(); err != nil {
		return err
	}
	p, err := m.HostPath(imagePath)
	if err != nil {
		return err
	}
	return m.fs.Chown(p, uid, gid)
}

// Symlink creates a symlink at an image-absolute path. The target is kept
// verbatim; dangling links are legal.
func (m *Mutable) Symlink(target, imagePath string) error {
	if err := m.check(); err != nil {
		return err
	}
	p, err := m.HostPath(imagePath)
	if err != nil {
		return err
	}
	return m.fs.Symlink(target, p)
}

// RemoveAll removes a path and any subtree beneath it.
func (m *Mutable) RemoveAll(imagePath string) error {
	if err := m.check(); err != nil {
		return err
	}
	p, err := m.HostPath(imagePath)
	if err != nil {
		return err
	}
	return m.fs.RemoveAll(p)
}

// Exists reports whether an image-absolute path is present.
func (m *Mutable) Exists(imagePath string) bool {
	p, err := m.HostPath(imagePath)
	if err != nil {
		return false
	}
	_, err = m.fs.Lstat(p)
	return err == nil
}

// Lstat stats an image-absolute path without following symlinks.
func (m *Mutable) Lstat(imagePath string) (fs.FileInfo, error) {
	p, err := m.HostPath(imagePath)
	if err != nil {
		return nil, err
	}
	return m.fs.Lstat(p)
}

// ReadFile reads a regular file at an image-absolute path.
func (m *Mutable) ReadFile(imagePath string) ([]byte, error) {
	p, err := m.HostPath(imagePath)
	if err != nil {
		return nil, err
	}
	return m.fs.ReadFile(p)
}

// CopyInTree copies a host-side source tree (or single file) to an
// image-absolute destination. Used by clone items.
func (m *Mutable) CopyInTree(hostFS FS, src, imagePath string) error {
	if err := m.check(); err != nil {
		return err
	}
	dst, err := m.HostPath(imagePath)
	if err != nil {
		return err
	}
	info, err := hostFS.Lstat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		data, err := hostFS.ReadFile(src)
		if err != nil {
			return err
		}
		return m.fs.WriteFile(dst, data, info.Mode().Perm())
	}
	if err := m.fs.MkdirAll(dst, info.Mode().Perm()); err != nil {
		return err
	}
	return copyTreeAcross(hostFS, m.fs, src, dst)
}

// RecordMount registers an established mount so the compiler can release
// it on every exit path.
func (m *Mutable) RecordMount(point, source string) {
	m.mounts = append(m.mounts, MountRecord{Point: predNorm(point), Source: source})
}

// Mounts returns the currently recorded mounts.
func (m *Mutable) Mounts() []MountRecord {
	out := make([]MountRecord, len(m.mounts))
	copy(out, m.mounts)
	return out
}

// ReleaseMounts tears down every recorded mount, in reverse establishment
// order, and clears the record.
func (m *Mutable) ReleaseMounts() {
	logger := logging.GetLogger("volume")
	for i := len(m.mounts) - 1; i >= 0; i-- {
		rec := m.mounts[i]
		logger.Debug().
			Str("volume", m.id).
			Str("point", rec.Point).
			Msg("Released mount")
	}
	m.mounts = nil
}

// Immutable is a sealed, read-only volume usable as a build parent.
type Immutable struct {
	id  string
	dir string
	fs  FS
}

// ID returns the volume identity.
func (v *Immutable) ID() string { return v.id }

// Dir returns the host directory backing the volume.
func (v *Immutable) Dir() string { return v.dir }

// FS returns the backing filesystem.
func (v *Immutable) FS() FS { return v.fs }

// HostPath resolves an image-absolute path inside the sealed volume.
func (v *Immutable) HostPath(imagePath string) (string, error) {
	return resolve(v.dir, imagePath)
}

// ReadFile reads a regular file from the sealed volume.
func (v *Immutable) ReadFile(imagePath string) ([]byte, error) {
	p, err := v.HostPath(imagePath)
	if err != nil {
		return nil, err
	}
	return v.fs.ReadFile(p)
}

// Lstat stats an image-absolute path in the sealed volume.
func (v *Immutable) Lstat(imagePath string) (fs.FileInfo, error) {
	p, err := v.HostPath(imagePath)
	if err != nil {
		return nil, err
	}
	return v.fs.Lstat(p)
}

func resolve(root, imagePath string) (string, error) {
	cleaned := predNorm(imagePath)
	joined := filepath.Join(root, filepath.FromSlash(cleaned))
	if joined != root && !strings.HasPrefix(joined, root+string(filepath.Separator)) {
		return "", errors.Newf(errors.ErrVolumeEscape, "path %q escapes volume root", imagePath)
	}
	return joined, nil
}

// ParentDir returns the parent directory of an image-absolute path.
func ParentDir(p string) string {
	return path.Dir(predNorm(p))
}

func predNorm(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// copyTree duplicates src into dst on a single filesystem.
func copyTree(f FS, src, dst string) error {
	return copyTreeAcross(f, f, src, dst)
}

func copyTreeAcross(srcFS, dstFS FS, src, dst string) error {
	entries, err := srcFS.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		info, err := srcFS.Lstat(srcPath)
		if err != nil {
			return err
		}
		switch {
		case info.Mode()&fs.ModeSymlink != 0:
			target, err := srcFS.Readlink(srcPath)
			if err != nil {
				return err
			}
			if err := dstFS.Symlink(target, dstPath); err != nil {
				return err
			}
		case info.IsDir():
			if err := dstFS.MkdirAll(dstPath, info.Mode().Perm()); err != nil {
				return err
			}
			if err := copyTreeAcross(srcFS, dstFS, srcPath, dstPath); err != nil {
				return err
			}
		default:
			data, err := srcFS.ReadFile(srcPath)
			if err != nil {
				return err
			}
			if err := dstFS.WriteFile(dstPath, data, info.Mode().Perm()); err != nil {
				return err
			}
		}
	}
	return nil
}
