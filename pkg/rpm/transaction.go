package rpm

import (
	"context"
	"sort"

	"github.com/rs/zerolog"
	"github.com/strata-build/strata/pkg/errors"
	"github.com/strata-build/strata/pkg/logging"
	"github.com/strata-build/strata/pkg/sandbox"
	"github.com/strata-build/strata/pkg/volume"
)

// Op is a package action verb.
type Op int

const (
	// OpInstall installs (or upgrades) packages.
	OpInstall Op = iota

	// OpRemove removes packages.
	OpRemove
)

func (o Op) String() string {
	if o == OpRemove {
		return "remove"
	}
	return "install"
}

// Request is one declared package action before coalescing.
type Request struct {
	Op    Op
	Names []string
}

// Transaction is the coalesced package work of a single layer. All
// requests resolve up front; a name that fails to resolve or a package
// both installed and removed fails the transaction before anything runs.
type Transaction struct {
	installs []*Package
	removes  []*Package
	endpoint string
	logger   zerolog.Logger
}

// NewTransaction resolves and coalesces requests into one transaction.
func NewTransaction(src Source, reqs ...Request) (*Transaction, error) {
	tx := &Transaction{
		endpoint: src.Endpoint(),
		logger:   logging.GetLogger("rpm.transaction"),
	}

	installed := make(map[string]bool)
	removed := make(map[string]bool)

	for _, req := range reqs {
		for _, name := range req.Names {
			pkg, err := src.Resolve(name)
			if err != nil {
				return nil, err
			}
			switch req.Op {
			case OpInstall:
				if removed[name] {
					return nil, conflictErr(name)
				}
				if !installed[name] {
					installed[name] = true
					tx.installs = append(tx.installs, pkg)
				}
			case OpRemove:
				if installed[name] {
					return nil, conflictErr(name)
				}
				if !removed[name] {
					removed[name] = true
					tx.removes = append(tx.removes, pkg)
				}
			}
		}
	}

	sort.Slice(tx.installs, func(i, j int) bool { return tx.installs[i].Name < tx.installs[j].Name })
	sort.Slice(tx.removes, func(i, j int) bool { return tx.removes[i].Name < tx.removes[j].Name })
	return tx, nil
}

func conflictErr(name string) error {
	return errors.Newf(errors.ErrPackageTransaction,
		"package %q is both installed and removed in the same layer", name)
}

// Empty reports whether the transaction has no work.
func (t *Transaction) Empty() bool {
	return len(t.installs) == 0 && len(t.removes) == 0
}

// InstallNames returns the sorted names of packages to install.
func (t *Transaction) InstallNames() []string { return pkgNames(t.installs) }

// RemoveNames returns the sorted names of packages to remove.
func (t *Transaction) RemoveNames() []string { return pkgNames(t.removes) }

func pkgNames(pkgs []*Package) []string {
	out := make([]string, len(pkgs))
	for i, p := range pkgs {
		out[i] = p.Name
	}
	return out
}

// Apply runs the whole transaction atomically: one sandbox invocation of
// the appliance package tool, then materialization of the owned paths.
// If the sandbox reports failure, the volume is untouched — no files from
// any package in the batch survive.
func (t *Transaction) Apply(ctx context.Context, vol *volume.Mutable, sb sandbox.Sandbox) error {
	if t.Empty() {
		return nil
	}

	argv := []string{"strata-pkg", "--transaction"}
	for _, name := range t.RemoveNames() {
		argv = append(argv, "--remove", name)
	}
	for _, name := range t.InstallNames() {
		argv = append(argv, "--install", name)
	}

	t.logger.Info().
		Strs("install", t.InstallNames()).
		Strs("remove", t.RemoveNames()).
		Str("volume", vol.ID()).
		Msg("Running package transaction")

	if _, err := sb.Run(ctx, sandbox.Spec{
		Argv:         argv,
		Root:         vol.Dir(),
		RepoEndpoint: t.endpoint,
	}); err != nil {
		return errors.Wrap(err, errors.ErrPackageTransaction, "package transaction failed")
	}

	// The sandbox accepted the whole batch; mirror its effects onto the
	// volume from the snapshot's ownership metadata.
	for _, pkg := range t.removes {
		for _, f := range sortedKeys(pkg.Files) {
			if err := vol.RemoveAll(f); err != nil {
				return errors.Wrapf(err, errors.ErrPackageTransaction,
					"removing %s owned by %s", f, pkg.Name)
			}
		}
	}
	for _, pkg := range t.installs {
		for _, d := range sortedStrings(pkg.Dirs) {
			if err := vol.MkdirAll(d, 0755); err != nil {
				return errors.Wrapf(err, errors.ErrPackageTransaction,
					"creating %s owned by %s", d, pkg.Name)
			}
		}
		for _, f := range sortedKeys(pkg.Files) {
			if err := vol.MkdirAll(volume.ParentDir(f), 0755); err != nil {
				return errors.Wrapf(err, errors.ErrPackageTransaction,
					"creating parent of %s owned by %s", f, pkg.Name)
			}
			if err := vol.WriteFile(f, []byte(pkg.Files[f]), 0644); err != nil {
				return errors.Wrapf(err, errors.ErrPackageTransaction,
					"writing %s owned by %s", f, pkg.Name)
			}
		}
	}

	return nil
}
