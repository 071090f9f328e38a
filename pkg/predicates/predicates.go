// Package predicates defines typed assertions about filesystem paths.
// Predicates are the currency of dependencies between items: every item
// declares the predicates it requires before applying and the predicates
// it provides afterwards, and the graph builder matches them up.
package predicates

import (
	"fmt"
	"path"
	"strings"
)

// Kind classifies what a predicate asserts about its path.
type Kind int

const (
	// KindDirectory asserts the path is a directory.
	KindDirectory Kind = iota

	// KindFile asserts the path is a regular file.
	KindFile

	// KindSymlink asserts the path is a symlink to Target.
	KindSymlink

	// KindAbsent asserts the path does not exist.
	KindAbsent

	// KindAny asserts the path exists, with no constraint on its kind.
	// Only valid in requirements; items never provide KindAny.
	KindAny

	// KindMount asserts the path is an established mount point. Items
	// targeting paths under a mount point are ordered after the mount.
	KindMount
)

func (k Kind) String() string {
	switch k {
	case KindDirectory:
		return "directory"
	case KindFile:
		return "file"
	case KindSymlink:
		return "symlink"
	case KindAbsent:
		return "absent"
	case KindAny:
		return "any"
	case KindMount:
		return "mount"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Predicate is an assertion about a single normalized absolute path.
// Equality is by (Path, Kind); Target only participates for symlinks.
type Predicate struct {
	Path   string
	Kind   Kind
	Target string // symlink target, for KindSymlink

	// Override marks a provision that intentionally replaces an earlier
	// provision of the same path. Clone is the one sanctioned user.
	Override bool

	// Shared marks a provision that may legally coincide with an
	// identical shared provision from another item. Package-owned
	// directories use this: many packages own /usr/bin.
	Shared bool
}

// Normalize cleans a path into the canonical absolute form predicates use.
func Normalize(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// Directory returns a directory-existence predicate.
func Directory(p string) Predicate {
	return Predicate{Path: Normalize(p), Kind: KindDirectory}
}

// File returns a regular-file-existence predicate.
func File(p string) Predicate {
	return Predicate{Path: Normalize(p), Kind: KindFile}
}

// SymlinkTo returns a symlink predicate. Target is kept verbatim; relative
// targets and dangling links are legal.
func SymlinkTo(p, target string) Predicate {
	return Predicate{Path: Normalize(p), Kind: KindSymlink, Target: target}
}

// Absent returns a does-not-exist predicate.
func Absent(p string) Predicate {
	return Predicate{Path: Normalize(p), Kind: KindAbsent}
}

// ParentDirectory returns a directory predicate for p's parent.
func ParentDirectory(p string) Predicate {
	return Directory(path.Dir(Normalize(p)))
}

// AnyExisting returns a predicate satisfied by any existing path kind.
func AnyExisting(p string) Predicate {
	return Predicate{Path: Normalize(p), Kind: KindAny}
}

// Mount returns a mount-point predicate.
func Mount(p string) Predicate {
	return Predicate{Path: Normalize(p), Kind: KindMount}
}

// String renders the predicate in "kind:path" form for diagnostics.
func (p Predicate) String() string {
	if p.Kind == KindSymlink {
		return fmt.Sprintf("symlink:%s->%s", p.Path, p.Target)
	}
	return fmt.Sprintf("%s:%s", p.Kind, p.Path)
}

// Exists reports whether the predicate asserts existence of its path.
func (p Predicate) Exists() bool {
	return p.Kind != KindAbsent
}

// Parent returns the parent directory of the predicate's path, or "/" for
// the root itself.
func (p Predicate) Parent() string {
	return path.Dir(p.Path)
}

// IsRoot reports whether the predicate refers to "/".
func (p Predicate) IsRoot() bool {
	return p.Path == "/"
}

// Satisfies reports whether a provision of this predicate discharges the
// given requirement exactly (same path). A File provision does not satisfy
// a Directory requirement for the same path; that mismatch is surfaced as
// a kind error by the graph builder, not here.
func (p Predicate) Satisfies(req Predicate) bool {
	if p.Path != req.Path {
		return false
	}
	switch req.Kind {
	case KindAny:
		return p.Exists()
	case KindAbsent:
		return p.Kind == KindAbsent
	case KindSymlink:
		return p.Kind == KindSymlink && (req.Target == "" || p.Target == req.Target)
	default:
		return p.Kind == req.Kind
	}
}

// Implies reports whether this provision makes the requirement true
// indirectly: the existence of /a/b/c implies that /a/b and /a exist and
// are directories, so a deep provision discharges ancestor directory
// requirements without every item declaring them.
func (p Predicate) Implies(req Predicate) bool {
	if p.Satisfies(req) {
		return true
	}
	if !p.Exists() {
		return false
	}
	if req.Kind != KindDirectory && req.Kind != KindAny {
		return false
	}
	return IsStrictAncestor(req.Path, p.Path)
}

// IsStrictAncestor reports whether ancestor is a proper path prefix of p.
func IsStrictAncestor(ancestor, p string) bool {
	if ancestor == p {
		return false
	}
	if ancestor == "/" {
		return strings.HasPrefix(p, "/")
	}
	return strings.HasPrefix(p, ancestor+"/")
}

// Ancestors yields every strict ancestor of p from the immediate parent up
// to and including "/".
func Ancestors(p string) []string {
	p = Normalize(p)
	var out []string
	for p != "/" {
		p = path.Dir(p)
		out = append(out, p)
	}
	return out
}
