// pkg/depgraph/depgraph_test.go
// TEST TYPE: Unit Test
// DEPENDENCIES: item stubs, in-memory snapshot source
// PURPOSE: Test graph validation, error taxonomy, and deterministic ordering

package depgraph_test

import (
	"context"
	"testing"

	"github.com/strata-build/strata/pkg/depgraph"
	"github.com/strata-build/strata/pkg/errors"
	"github.com/strata-build/strata/pkg/items"
	"github.com/strata-build/strata/pkg/predicates"
	"github.com/strata-build/strata/pkg/rpm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubItem lets tests wire arbitrary requires/provides shapes that the
// concrete item kinds cannot express.
type stubItem struct {
	id    string
	phase items.Phase
	req   []predicates.Predicate
	prov  []predicates.Predicate
}

func (s *stubItem) Kind() string                                    { return "stub" }
func (s *stubItem) ID() string                                      { return s.id }
func (s *stubItem) Phase() items.Phase                              { return s.phase }
func (s *stubItem) Requires() []predicates.Predicate                { return s.req }
func (s *stubItem) Provides() []predicates.Predicate                { return s.prov }
func (s *stubItem) Apply(context.Context, *items.ApplyEnv) error    { return nil }

func seed(facts ...predicates.Predicate) items.Item {
	return items.NewPhasesProvide("parent", facts...)
}

func ids(plan *depgraph.Plan) []string {
	out := make([]string, 0, len(plan.Order))
	for _, item := range plan.Order {
		out = append(out, item.ID())
	}
	return out
}

func TestOrderIsDeterministic(t *testing.T) {
	build := func() []string {
		plan, err := depgraph.Build([]items.Item{
			seed(),
			&items.MakeDirs{Into: "/", Make: "a/b"},
			&items.InstallFile{Dest: "/a/b/f", Content: []byte("x")},
			&items.InstallFile{Dest: "/a/b/g", Content: []byte("y")},
			&items.Symlink{Link: "/g", Target: "/a/b/g"},
		})
		require.NoError(t, err)
		return ids(plan)
	}

	first := build()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, build())
	}
}

func TestInstallFileOrderedAfterMakeDirs(t *testing.T) {
	mkdir := &items.MakeDirs{Into: "/", Make: "a/b"}
	install := &items.InstallFile{Dest: "/a/b/f", Content: []byte("x")}

	// Declaration order must not matter.
	for _, list := range [][]items.Item{
		{seed(), mkdir, install},
		{seed(), install, mkdir},
	} {
		plan, err := depgraph.Build(list)
		require.NoError(t, err)

		got := ids(plan)
		mi, ii := indexOf(got, mkdir.ID()), indexOf(got, install.ID())
		assert.Less(t, mi, ii, "mkdir must precede install in %v", got)
	}
}

func TestUnsatisfiedRequirement(t *testing.T) {
	_, err := depgraph.Build([]items.Item{
		seed(),
		&items.InstallFile{Dest: "/a/f", Content: []byte("x")},
		&items.RemovePath{Path: "/a/f"},
	})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrUnsatisfiedRequirement))
	assert.Contains(t, err.Error(), "/a")
}

func TestConflictingProvisionRegardlessOfOrder(t *testing.T) {
	a := &items.InstallFile{Dest: "/a/f", Content: []byte("one")}
	b := &items.InstallFile{Dest: "/a/f", Content: []byte("two")}

	for _, list := range [][]items.Item{
		{seed(predicates.Directory("/a")), a, b},
		{seed(predicates.Directory("/a")), b, a},
	} {
		_, err := depgraph.Build(list)
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrConflictingProvision))
		assert.Contains(t, err.Error(), "/a/f")
	}
}

func TestSharedPackageDirectoriesDoNotConflict(t *testing.T) {
	src := rpm.NewSnapshot("http://repo",
		&rpm.Package{Name: "bash", Version: "5", Dirs: []string{"/usr/bin"},
			Files: map[string]string{"/usr/bin/bash": "b"}},
		&rpm.Package{Name: "coreutils", Version: "9", Dirs: []string{"/usr/bin"},
			Files: map[string]string{"/usr/bin/ls": "l"}})

	bash, err := items.NewRpmAction(src, rpm.OpInstall, "bash")
	require.NoError(t, err)
	core, err := items.NewRpmAction(src, rpm.OpInstall, "coreutils")
	require.NoError(t, err)

	plan, err := depgraph.Build([]items.Item{seed(), bash, core})
	require.NoError(t, err)
	assert.Len(t, plan.Order, 3)
}

func TestImpliedAncestorDirectories(t *testing.T) {
	// The package provides /usr/bin/bash; the symlink requirement on
	// /usr/bin is discharged by implication without any explicit mkdir.
	src := rpm.NewSnapshot("http://repo",
		&rpm.Package{Name: "bash", Version: "5",
			Files: map[string]string{"/usr/bin/bash": "b"}})
	bash, err := items.NewRpmAction(src, rpm.OpInstall, "bash")
	require.NoError(t, err)

	link := &items.Symlink{Link: "/usr/bin/sh", Target: "bash"}
	plan, err := depgraph.Build([]items.Item{seed(), link, bash})
	require.NoError(t, err)

	got := ids(plan)
	assert.Less(t, indexOf(got, bash.ID()), indexOf(got, link.ID()))
}

func TestDependencyCycle(t *testing.T) {
	a := &stubItem{id: "stub:a", phase: items.PhaseGeneric,
		req:  []predicates.Predicate{predicates.File("/b")},
		prov: []predicates.Predicate{predicates.File("/a")}}
	b := &stubItem{id: "stub:b", phase: items.PhaseGeneric,
		req:  []predicates.Predicate{predicates.File("/a")},
		prov: []predicates.Predicate{predicates.File("/b")}}

	_, err := depgraph.Build([]items.Item{seed(), a, b})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrDependencyCycle))
	assert.Contains(t, err.Error(), "stub:a")
	assert.Contains(t, err.Error(), "stub:b")
}

func TestRemovalOfInheritedPath(t *testing.T) {
	remove := &items.RemovePath{Path: "/etc/stale"}
	plan, err := depgraph.Build([]items.Item{
		seed(predicates.Directory("/etc"), predicates.File("/etc/stale")),
		remove,
	})
	require.NoError(t, err)
	assert.Equal(t, remove.ID(), ids(plan)[1])
}

func TestRemovalCancelsInheritedSubtree(t *testing.T) {
	// Removing a directory takes its whole inherited subtree with it:
	// a later item cannot anchor on a file beneath the removed root.
	reader := &stubItem{id: "stub:reader", phase: items.PhaseGeneric,
		req: []predicates.Predicate{predicates.File("/a/f")}}

	_, err := depgraph.Build([]items.Item{
		seed(predicates.Directory("/a"), predicates.File("/a/f")),
		&items.RemovePath{Path: "/a"},
		reader,
	})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrUnsatisfiedRequirement))
}

func TestRemovedSubtreeDoesNotImplyAncestors(t *testing.T) {
	// A cancelled provision must not keep implying its ancestor
	// directories either.
	reader := &stubItem{id: "stub:reader", phase: items.PhaseGeneric,
		req: []predicates.Predicate{predicates.Directory("/a")}}

	_, err := depgraph.Build([]items.Item{
		seed(predicates.File("/a/f")),
		&items.RemovePath{Path: "/a/f"},
		reader,
	})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrUnsatisfiedRequirement))
}

func TestRemovedPathCannotBeRequiredLater(t *testing.T) {
	later := &stubItem{id: "stub:reader", phase: items.PhaseGeneric,
		req: []predicates.Predicate{predicates.File("/etc/stale")}}

	_, err := depgraph.Build([]items.Item{
		seed(predicates.Directory("/etc"), predicates.File("/etc/stale")),
		&items.RemovePath{Path: "/etc/stale"},
		later,
	})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrUnsatisfiedRequirement))
}

func TestPhaseOrderViolation(t *testing.T) {
	// A package action anchored on a path only a generic item will
	// create would need the generic phase to run first; never legal.
	early := &stubItem{id: "stub:pkg", phase: items.PhasePackageActions,
		req: []predicates.Predicate{predicates.File("/gen/f")}}
	late := &stubItem{id: "stub:gen", phase: items.PhaseGeneric,
		prov: []predicates.Predicate{predicates.File("/gen/f")}}

	_, err := depgraph.Build([]items.Item{seed(), early, late})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrPhaseOrderViolation))
}

func TestRemovalOfLaterProvisionConflicts(t *testing.T) {
	// Removing a path that only comes into existence later in the same
	// layer is a contradiction, caught before anything runs.
	_, err := depgraph.Build([]items.Item{
		seed(predicates.Directory("/a")),
		&items.RemovePath{Path: "/a/f"},
		&items.InstallFile{Dest: "/a/f", Content: []byte("x")},
	})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrConflictingProvision))
}

func TestPhasesOrderedBeforeGenericItems(t *testing.T) {
	src := rpm.NewSnapshot("http://repo",
		&rpm.Package{Name: "bash", Version: "5",
			Files: map[string]string{"/usr/bin/bash": "b"}})
	bash, err := items.NewRpmAction(src, rpm.OpInstall, "bash")
	require.NoError(t, err)

	plan, err := depgraph.Build([]items.Item{
		seed(predicates.Directory("/etc"), predicates.File("/etc/stale")),
		&items.InstallFile{Dest: "/etc/motd", Content: []byte("hi")},
		bash,
		&items.RemovePath{Path: "/etc/stale"},
		&items.ForeignLayer{Name: "post", Cmd: []string{"true"}},
	})
	require.NoError(t, err)

	got := ids(plan)
	assert.Equal(t, []string{
		"phases_provide:parent",
		"remove_path:/etc/stale",
		bash.ID(),
		"install_file:/etc/motd",
		"foreign_layer:post",
	}, got)
}

func TestForeignLayerCoexistsWithRootItems(t *testing.T) {
	// The foreign layer's whole-tree override must not capture the root
	// requirements of ordinary items; they resolve against the earliest
	// provider and the foreign step still runs last.
	install := &items.InstallFile{Dest: "/f", Content: []byte("x")}
	foreign := &items.ForeignLayer{Name: "post", Cmd: []string{"true"}}

	plan, err := depgraph.Build([]items.Item{seed(), install, foreign})
	require.NoError(t, err)

	got := ids(plan)
	assert.Less(t, indexOf(got, install.ID()), indexOf(got, foreign.ID()))
}

func TestDependsOn(t *testing.T) {
	mkdir := &items.MakeDirs{Into: "/", Make: "a"}
	install := &items.InstallFile{Dest: "/a/f", Content: []byte("x")}

	plan, err := depgraph.Build([]items.Item{seed(), mkdir, install})
	require.NoError(t, err)

	// Declaration indices: 0 seed, 1 mkdir, 2 install.
	assert.True(t, plan.DependsOn(2, 1), "install depends on mkdir")
	assert.False(t, plan.DependsOn(1, 2))
}

func TestProtectedPathRejected(t *testing.T) {
	_, err := depgraph.Build([]items.Item{
		seed(),
		&items.InstallFile{Dest: "/.meta/marker", Content: []byte("x")},
	})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrProtectedPath))
}

func TestKindMismatch(t *testing.T) {
	_, err := depgraph.Build([]items.Item{
		seed(),
		&stubItem{id: "stub:file", phase: items.PhaseGeneric,
			prov: []predicates.Predicate{predicates.File("/a")}},
		&stubItem{id: "stub:wants-dir", phase: items.PhaseGeneric,
			req: []predicates.Predicate{predicates.Directory("/a")}},
	})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrKindMismatch))
}

func TestMountOrderedBeforeSubtreeWriters(t *testing.T) {
	mkdir := &items.MakeDirs{Into: "/", Make: "mnt/repo"}
	mount := &items.Mount{Point: "/mnt/repo", Source: "snap"}
	install := &items.InstallFile{Dest: "/mnt/repo/f", Content: []byte("x")}

	plan, err := depgraph.Build([]items.Item{seed(), install, mount, mkdir})
	require.NoError(t, err)

	got := ids(plan)
	assert.Less(t, indexOf(got, mkdir.ID()), indexOf(got, mount.ID()))
	assert.Less(t, indexOf(got, mount.ID()), indexOf(got, install.ID()))
}

func TestCloneOverrideDoesNotConflict(t *testing.T) {
	clone := &stubItem{id: "stub:clone", phase: items.PhaseGeneric,
		prov: []predicates.Predicate{{
			Path: "/data", Kind: predicates.KindDirectory, Override: true,
		}}}

	plan, err := depgraph.Build([]items.Item{
		seed(predicates.Directory("/data")),
		clone,
	})
	require.NoError(t, err)
	assert.Len(t, plan.Order, 2)
}

func TestSymlinkTargetRequirement(t *testing.T) {
	// A requirement for a specific symlink target is only satisfied by
	// a provider declaring the same target.
	link := &stubItem{id: "stub:link", phase: items.PhaseGeneric,
		prov: []predicates.Predicate{predicates.SymlinkTo("/bin", "/usr/bin")}}
	wants := &stubItem{id: "stub:wants", phase: items.PhaseGeneric,
		req: []predicates.Predicate{predicates.SymlinkTo("/bin", "/opt/bin")}}

	_, err := depgraph.Build([]items.Item{seed(), link, wants})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrKindMismatch))
}

func indexOf(list []string, want string) int {
	for i, s := range list {
		if s == want {
			return i
		}
	}
	return -1
}
