package items

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strconv"
	"strings"

	"github.com/strata-build/strata/pkg/errors"
	"github.com/strata-build/strata/pkg/predicates"
)

// DefaultDirMode leaves directories writable by the owner, since files
// are reasonably added at runtime.
const DefaultDirMode fs.FileMode = 0755

// MakeDirs creates a directory chain under an existing directory and
// provides every level it creates, so a single deep MakeDirs discharges
// ancestor requirements of later items.
type MakeDirs struct {
	// Into is the image-absolute directory the chain is created under.
	// It must already be provided.
	Into string

	// Make is the chain to create, relative to Into, e.g. "a/b/c".
	Make string

	// Mode applies to the outermost created directory; zero means
	// DefaultDirMode.
	Mode fs.FileMode

	// Owner and Group are numeric uid/gid strings applied to the
	// outermost created directory. Empty leaves ownership untouched.
	Owner string
	Group string
}

func (m *MakeDirs) Kind() string { return "make_dirs" }

func (m *MakeDirs) ID() string {
	return fmt.Sprintf("make_dirs:%s", m.leafPath())
}

func (m *MakeDirs) Phase() Phase { return PhaseGeneric }

func (m *MakeDirs) leafPath() string {
	return predicates.Normalize(path.Join(predicates.Normalize(m.Into), m.Make))
}

func (m *MakeDirs) Requires() []predicates.Predicate {
	return []predicates.Predicate{predicates.Directory(m.Into)}
}

// Provides yields a directory predicate for every level from the leaf up
// to, but not including, Into.
func (m *MakeDirs) Provides() []predicates.Predicate {
	into := predicates.Normalize(m.Into)
	inner := m.leafPath()

	var out []predicates.Predicate
	for inner != into {
		out = append(out, predicates.Directory(inner))
		inner = path.Dir(inner)
	}
	return out
}

func (m *MakeDirs) Apply(ctx context.Context, env *ApplyEnv) error {
	leaf := m.leafPath()

	mode := m.Mode
	if mode == 0 {
		mode = DefaultDirMode
	}

	// Idempotent when the chain already exists as directories.
	if info, err := env.Volume.Lstat(leaf); err == nil {
		if !info.IsDir() {
			return errors.Newf(errors.ErrDestinationConflict,
				"%s exists and is not a directory", leaf)
		}
		return nil
	}

	if err := env.Volume.MkdirAll(leaf, mode); err != nil {
		return err
	}

	// Stat options apply to the outermost directory this item created.
	outer := m.outermost()
	if err := env.Volume.Chmod(outer, mode); err != nil {
		return err
	}
	uid, gid, err := m.ownership()
	if err != nil {
		return err
	}
	if uid >= 0 || gid >= 0 {
		return env.Volume.Chown(outer, uid, gid)
	}
	return nil
}

// ownership parses Owner and Group as numeric ids, -1 for fields left
// unset.
func (m *MakeDirs) ownership() (int, int, error) {
	uid, gid := -1, -1
	if m.Owner != "" {
		n, err := strconv.Atoi(m.Owner)
		if err != nil || n < 0 {
			return 0, 0, errors.Newf(errors.ErrItemInvalid,
				"make_dirs owner %q is not a numeric uid", m.Owner)
		}
		uid = n
	}
	if m.Group != "" {
		n, err := strconv.Atoi(m.Group)
		if err != nil || n < 0 {
			return 0, 0, errors.Newf(errors.ErrItemInvalid,
				"make_dirs group %q is not a numeric gid", m.Group)
		}
		gid = n
	}
	return uid, gid, nil
}

// outermost returns the shallowest directory level this item creates.
func (m *MakeDirs) outermost() string {
	into := predicates.Normalize(m.Into)
	first := strings.Split(strings.Trim(m.Make, "/"), "/")[0]
	return predicates.Normalize(path.Join(into, first))
}
