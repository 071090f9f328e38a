package items

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/strata-build/strata/pkg/predicates"
	"github.com/strata-build/strata/pkg/volume"
)

// protectedPaths are provided to the graph so dependents can anchor on
// them, but items may never target anything beneath them.
var protectedPaths = []string{"/.meta"}

// IsProtectedPath reports whether p is, or lies under, a protected path.
func IsProtectedPath(p string) bool {
	p = predicates.Normalize(p)
	for _, prot := range protectedPaths {
		if p == prot || strings.HasPrefix(p, prot+"/") {
			return true
		}
	}
	return false
}

// PhasesProvide is the synthetic item seeding the graph with facts that
// are already true before this layer's items run: everything the parent
// layer (or the freshly created volume root) guarantees. It cannot be
// declared in a layer document; the compiler injects it.
type PhasesProvide struct {
	// Layer names the origin of the facts, for diagnostics.
	Layer string

	// Facts are the predicates known to hold.
	Facts []predicates.Predicate
}

// NewPhasesProvide builds the synthetic item. The root directory fact is
// always included: even an empty fresh volume has "/".
func NewPhasesProvide(layer string, facts ...predicates.Predicate) *PhasesProvide {
	all := append([]predicates.Predicate{predicates.Directory("/")}, facts...)
	return &PhasesProvide{Layer: layer, Facts: dedupe(all)}
}

// ScanVolume derives the full fact set of a sealed volume by walking its
// tree: a directory predicate per directory, a file predicate per regular
// file, a symlink predicate per link. Protected paths are provided as
// opaque directories without descending into them; a very large or slow
// mount under a protected path must not stall graph construction.
func ScanVolume(v *volume.Immutable) ([]predicates.Predicate, error) {
	facts := []predicates.Predicate{predicates.Directory("/")}

	var walk func(hostDir, imageDir string) error
	walk = func(hostDir, imageDir string) error {
		entries, err := v.FS().ReadDir(hostDir)
		if err != nil {
			return err
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
		for _, entry := range entries {
			hostPath := filepath.Join(hostDir, entry.Name())
			imagePath := path.Join(imageDir, entry.Name())
			info, err := v.FS().Lstat(hostPath)
			if err != nil {
				return err
			}
			switch {
			case info.Mode()&fs.ModeSymlink != 0:
				target, err := v.FS().Readlink(hostPath)
				if err != nil {
					return err
				}
				facts = append(facts, predicates.SymlinkTo(imagePath, target))
			case info.IsDir():
				facts = append(facts, predicates.Directory(imagePath))
				if IsProtectedPath(imagePath) {
					continue
				}
				if err := walk(hostPath, imagePath); err != nil {
					return err
				}
			default:
				facts = append(facts, predicates.File(imagePath))
			}
		}
		return nil
	}

	if err := walk(v.Dir(), "/"); err != nil {
		return nil, err
	}
	return facts, nil
}

func dedupe(in []predicates.Predicate) []predicates.Predicate {
	type key struct {
		path string
		kind predicates.Kind
	}
	seen := make(map[key]bool, len(in))
	out := make([]predicates.Predicate, 0, len(in))
	for _, p := range in {
		k := key{p.Path, p.Kind}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, p)
	}
	return out
}

func (p *PhasesProvide) Kind() string { return "phases_provide" }

func (p *PhasesProvide) ID() string {
	return fmt.Sprintf("phases_provide:%s", p.Layer)
}

func (p *PhasesProvide) Phase() Phase { return PhaseParentProvides }

func (p *PhasesProvide) Requires() []predicates.Predicate { return nil }

func (p *PhasesProvide) Provides() []predicates.Predicate { return p.Facts }

// Apply is a no-op: the item exists purely to seed the graph.
func (p *PhasesProvide) Apply(ctx context.Context, env *ApplyEnv) error { return nil }
