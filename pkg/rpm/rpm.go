// Package rpm models the package side of a layer build: a read-only
// Source resolving package names to content and path-ownership metadata,
// and a Transaction coalescing every package action of a layer into one
// atomic unit handed to the sandboxed package manager.
package rpm

import (
	"github.com/strata-build/strata/pkg/errors"
	"github.com/strata-build/strata/pkg/predicates"
)

// Package is the resolved form of one named package: its version and the
// paths it owns. Ownership is declared metadata, never computed by
// scanning, so provisions are known at graph-build time.
type Package struct {
	Name    string
	Version string

	// Files maps image-absolute paths to file content.
	Files map[string]string

	// Dirs lists directories the package owns.
	Dirs []string
}

// Source resolves package names. It is queried, never mutated.
type Source interface {
	// Resolve returns the package metadata for name, or an error with
	// code ErrPackageUnknown.
	Resolve(name string) (*Package, error)

	// Endpoint returns the repo snapshot endpoint handed to the sandbox.
	Endpoint() string
}

// Provides returns the predicates an installed package makes true.
// Directories come first so deterministic ordering is stable.
func (p *Package) Provides() []predicates.Predicate {
	out := make([]predicates.Predicate, 0, len(p.Dirs)+len(p.Files))
	for _, d := range sortedStrings(p.Dirs) {
		dir := predicates.Directory(d)
		dir.Shared = true
		out = append(out, dir)
	}
	for _, f := range sortedKeys(p.Files) {
		out = append(out, predicates.File(f))
	}
	return out
}

// RemovalProvides returns the predicates true after the package is removed.
func (p *Package) RemovalProvides() []predicates.Predicate {
	out := make([]predicates.Predicate, 0, len(p.Files))
	for _, f := range sortedKeys(p.Files) {
		out = append(out, predicates.Absent(f))
	}
	return out
}

// unknownPackage builds the canonical resolution failure.
func unknownPackage(name string) error {
	return errors.Newf(errors.ErrPackageUnknown, "package %q not found in snapshot", name)
}
