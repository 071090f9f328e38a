package items

import (
	"context"
	"fmt"

	"github.com/strata-build/strata/pkg/errors"
	"github.com/strata-build/strata/pkg/predicates"
	"github.com/strata-build/strata/pkg/sandbox"
)

// ForeignLayer runs an arbitrary external build step inside the sandbox
// with the working volume as its root. Its filesystem effects are captured
// wholesale, not tracked per path: the graph sees one opaque node that
// provides the entire resulting subtree.
type ForeignLayer struct {
	// Name identifies the step in diagnostics.
	Name string

	// Cmd is the command run inside the sandbox.
	Cmd []string

	Env map[string]string
}

func (f *ForeignLayer) Kind() string { return "foreign_layer" }

func (f *ForeignLayer) ID() string {
	return fmt.Sprintf("foreign_layer:%s", f.Name)
}

func (f *ForeignLayer) Phase() Phase { return PhaseForeign }

func (f *ForeignLayer) Requires() []predicates.Predicate { return nil }

// Provides claims the whole tree, as an override: the step may rewrite
// anything earlier phases produced.
func (f *ForeignLayer) Provides() []predicates.Predicate {
	root := predicates.Directory("/")
	root.Override = true
	return []predicates.Predicate{root}
}

func (f *ForeignLayer) Apply(ctx context.Context, env *ApplyEnv) error {
	mounts := make([]sandbox.Mount, 0, len(env.Volume.Mounts()))
	for _, rec := range env.Volume.Mounts() {
		mounts = append(mounts, sandbox.Mount{Source: rec.Source, Point: rec.Point})
	}

	_, err := env.Sandbox.Run(ctx, sandbox.Spec{
		Argv:   f.Cmd,
		Root:   env.Volume.Dir(),
		Mounts: mounts,
		Env:    f.Env,
	})
	if err != nil {
		return errors.Wrapf(err, errors.ErrSandbox, "foreign layer %q failed", f.Name)
	}
	return nil
}
