package items

import (
	"context"
	"fmt"
	"strings"

	"github.com/strata-build/strata/pkg/predicates"
	"github.com/strata-build/strata/pkg/rpm"
)

// RpmAction declares a package install or remove. All RpmAction items of
// a layer are coalesced into a single transaction by the compiler, for
// atomicity and performance; Apply on an individual item runs a
// single-item transaction and only exists to satisfy the Item contract.
type RpmAction struct {
	op       rpm.Op
	names    []string
	resolved []*rpm.Package
	source   rpm.Source
}

// NewRpmAction resolves package names eagerly so provisions are known at
// graph-build time. Unknown names fail here, before anything mutates.
func NewRpmAction(src rpm.Source, op rpm.Op, names ...string) (*RpmAction, error) {
	resolved := make([]*rpm.Package, 0, len(names))
	for _, name := range names {
		pkg, err := src.Resolve(name)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, pkg)
	}
	return &RpmAction{op: op, names: names, resolved: resolved, source: src}, nil
}

func (r *RpmAction) Kind() string { return "rpm_action" }

func (r *RpmAction) ID() string {
	return fmt.Sprintf("rpm_action:%s:%s", r.op, strings.Join(r.names, ","))
}

func (r *RpmAction) Phase() Phase { return PhasePackageActions }

// Op returns the action verb.
func (r *RpmAction) Op() rpm.Op { return r.op }

// Names returns the declared package names.
func (r *RpmAction) Names() []string { return r.names }

// Request converts the item into its transaction request.
func (r *RpmAction) Request() rpm.Request {
	return rpm.Request{Op: r.op, Names: r.names}
}

// Source returns the package source the action resolved against.
func (r *RpmAction) Source() rpm.Source { return r.source }

// Requires is empty: the sandboxed package-manager environment is ambient
// for the package phase, not a path predicate.
func (r *RpmAction) Requires() []predicates.Predicate { return nil }

// Provides comes from declared package ownership metadata, never from
// scanning.
func (r *RpmAction) Provides() []predicates.Predicate {
	var out []predicates.Predicate
	for _, pkg := range r.resolved {
		if r.op == rpm.OpRemove {
			out = append(out, pkg.RemovalProvides()...)
		} else {
			out = append(out, pkg.Provides()...)
		}
	}
	return out
}

func (r *RpmAction) Apply(ctx context.Context, env *ApplyEnv) error {
	tx, err := rpm.NewTransaction(r.source, r.Request())
	if err != nil {
		return err
	}
	return tx.Apply(ctx, env.Volume, env.Sandbox)
}
