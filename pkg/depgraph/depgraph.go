// Package depgraph validates a layer's items against each other and
// produces a deterministic execution order. Nothing here touches the
// filesystem: the whole point is that every requirement, conflict, and
// cycle is found before the first byte of the image is written.
package depgraph

import (
	"sort"
	"strings"

	"github.com/strata-build/strata/pkg/errors"
	"github.com/strata-build/strata/pkg/items"
	"github.com/strata-build/strata/pkg/logging"
	"github.com/strata-build/strata/pkg/predicates"
)

// Plan is a validated, fully ordered execution plan. Order is total and
// deterministic: the same items in the same declaration order always
// produce the same plan.
type Plan struct {
	Order []items.Item

	// edges maps each item index in Order's input numbering to the
	// indices it depends on. Kept for diagnostics.
	edges map[int][]int
}

// DependsOn reports whether item a (by declaration index) was ordered
// after item b because of a provision edge. Edges run provider to
// dependent, so a depends on b when a appears in b's adjacency.
func (p *Plan) DependsOn(a, b int) bool {
	for _, dep := range p.edges[b] {
		if dep == a {
			return true
		}
	}
	return false
}

type provision struct {
	owner int
	pred  predicates.Predicate

	// dead marks an inherited provision cancelled by a removal. Dead
	// provisions are visible only to the removal phase and earlier.
	dead bool
}

type builder struct {
	nodes  []items.Item
	phases []items.Phase

	byPath  map[string][]*provision
	implied map[string][]int // ancestor dir -> providing item indices

	adj      map[int][]int
	indeg    []int
	edgeSeen map[[2]int]bool
}

// Build validates the item set and computes the execution order. Items
// must be passed in declaration order; ties in the ordering are broken
// by declaration index, which is what makes the plan reproducible.
func Build(list []items.Item) (*Plan, error) {
	b := &builder{
		nodes:    list,
		phases:   make([]items.Phase, len(list)),
		byPath:   make(map[string][]*provision),
		implied:  make(map[string][]int),
		adj:      make(map[int][]int),
		indeg:    make([]int, len(list)),
		edgeSeen: make(map[[2]int]bool),
	}
	for i, item := range list {
		b.phases[i] = item.Phase()
	}

	if err := b.collectProvisions(); err != nil {
		return nil, err
	}
	b.markRemovals()
	b.buildImpliedIndex()
	if err := b.resolveRequirements(); err != nil {
		return nil, err
	}
	if err := b.checkConflicts(); err != nil {
		return nil, err
	}
	b.addMountEdges()
	if err := b.checkPhaseOrder(); err != nil {
		return nil, err
	}
	order, err := b.topoSort()
	if err != nil {
		return nil, err
	}

	logger := logging.GetLogger("depgraph")
	logger.Debug().
		Int("items", len(list)).
		Msg("dependency graph validated")

	return &Plan{Order: order, edges: b.adj}, nil
}

func (b *builder) collectProvisions() error {
	for i, item := range b.nodes {
		_, synthetic := item.(*items.PhasesProvide)
		for _, pred := range item.Provides() {
			if !synthetic && items.IsProtectedPath(pred.Path) {
				return errors.Newf(errors.ErrProtectedPath,
					"item %s provides protected path %s", item.ID(), pred.Path).
					WithDetail("item", item.ID()).
					WithDetail("path", pred.Path)
			}
			b.byPath[pred.Path] = append(b.byPath[pred.Path], &provision{owner: i, pred: pred})
		}
		if !synthetic {
			for _, req := range item.Requires() {
				if items.IsProtectedPath(req.Path) {
					return errors.Newf(errors.ErrProtectedPath,
						"item %s requires protected path %s", item.ID(), req.Path).
						WithDetail("item", item.ID()).
						WithDetail("path", req.Path)
				}
			}
		}
	}
	return nil
}

// markRemovals cancels inherited provisions for every path a removal
// claims absent. Removal is recursive at apply time, so everything the
// parent provided at or under a removed path dies with it. The cancelled
// provisions stay visible to the removal phase itself, which is what
// lets the remover anchor on the path it is about to delete.
func (b *builder) markRemovals() {
	var removedRoots []string
	for p, provs := range b.byPath {
		for _, prov := range provs {
			if prov.pred.Kind == predicates.KindAbsent {
				removedRoots = append(removedRoots, p)
				break
			}
		}
	}
	if len(removedRoots) == 0 {
		return
	}
	for p, provs := range b.byPath {
		covered := false
		for _, root := range removedRoots {
			if p == root || predicates.IsStrictAncestor(root, p) {
				covered = true
				break
			}
		}
		if !covered {
			continue
		}
		for _, prov := range provs {
			if prov.pred.Exists() && b.phases[prov.owner] == items.PhaseParentProvides {
				prov.dead = true
			}
		}
	}
}

// checkConflicts enforces the single-provider rule per path. The legal
// exceptions: identical shared provisions (package-owned directories),
// overriding provisions (clones and foreign layers, which replace
// whatever was there), and a removal cancelling exactly the provisions
// inherited from the parent.
func (b *builder) checkConflicts() error {
	for _, p := range b.sortedPaths() {
		provs := b.byPath[p]

		var absent, exist []*provision
		for _, prov := range provs {
			switch {
			case prov.pred.Kind == predicates.KindMount:
				// A mount point coincides with the directory provision
				// beneath it; never a conflict.
			case prov.pred.Override:
				// Overrides replace, they do not contend.
			case prov.pred.Kind == predicates.KindAbsent:
				absent = append(absent, prov)
			default:
				exist = append(exist, prov)
			}
		}

		if len(absent) > 1 {
			return conflictErr(b.nodes, p, absent)
		}
		if len(absent) == 1 {
			for _, prov := range exist {
				if b.phases[prov.owner] != items.PhaseParentProvides {
					return conflictErr(b.nodes, p, append(exist, absent...))
				}
			}
			continue
		}
		if len(exist) > 1 {
			first := exist[0].pred
			for _, prov := range exist {
				if !prov.pred.Shared || !first.Shared ||
					prov.pred.Kind != first.Kind || prov.pred.Target != first.Target {
					return conflictErr(b.nodes, p, exist)
				}
			}
		}
	}
	return nil
}

func conflictErr(nodes []items.Item, path string, provs []*provision) error {
	ids := make([]string, 0, len(provs))
	for _, prov := range provs {
		ids = append(ids, nodes[prov.owner].ID())
	}
	sort.Strings(ids)
	return errors.Newf(errors.ErrConflictingProvision,
		"path %s is provided by multiple items: %s", path, strings.Join(ids, ", ")).
		WithDetail("path", path).
		WithDetail("items", strings.Join(ids, ", "))
}

// buildImpliedIndex records, for every ancestor of an existing provision,
// the earliest item whose provision implies that directory. A package
// that owns /usr/bin/bash implies /usr and /usr/bin without declaring
// them.
func (b *builder) buildImpliedIndex() {
	for _, p := range b.sortedPaths() {
		for _, prov := range b.byPath[p] {
			if !prov.pred.Exists() || prov.pred.Kind == predicates.KindMount || prov.dead {
				continue
			}
			for _, anc := range predicates.Ancestors(p) {
				b.implied[anc] = append(b.implied[anc], prov.owner)
			}
		}
	}
}

func (b *builder) resolveRequirements() error {
	for i, item := range b.nodes {
		for _, req := range item.Requires() {
			if err := b.resolveOne(i, req); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *builder) resolveOne(requirer int, req predicates.Predicate) error {
	provs := b.byPath[req.Path]

	// Absent requirements hold trivially unless something will create
	// the path; a removal provision discharges them explicitly.
	if req.Kind == predicates.KindAbsent {
		willExist := false
		for _, prov := range provs {
			switch {
			case prov.pred.Kind == predicates.KindAbsent:
				b.addEdge(prov.owner, requirer)
				return nil
			case prov.pred.Exists() && prov.pred.Kind != predicates.KindMount && !prov.dead:
				willExist = true
			}
		}
		if willExist {
			return unsatisfiedErr(b.nodes[requirer], req)
		}
		return nil
	}

	// A requirement resolves against the earliest phase that can
	// discharge it. Later-phase providers (a foreign layer's override of
	// the whole tree, say) must not pull dependents backwards; they are
	// used only when nothing earlier provides the path, which then
	// surfaces as a phase order violation.
	var satisfying []*provision
	mismatched := false
	for _, prov := range provs {
		if prov.dead && b.phases[requirer] > items.PhaseRemovals {
			continue
		}
		if prov.pred.Kind == predicates.KindMount || prov.pred.Kind == predicates.KindAbsent {
			continue
		}
		if prov.pred.Satisfies(req) {
			satisfying = append(satisfying, prov)
		} else {
			mismatched = true
		}
	}
	if len(satisfying) > 0 {
		best := satisfying[0]
		for _, prov := range satisfying {
			if b.phases[prov.owner] < b.phases[best.owner] {
				best = prov
			}
		}
		for _, prov := range satisfying {
			if b.phases[prov.owner] == b.phases[best.owner] {
				b.addEdge(prov.owner, requirer)
			}
		}
		return nil
	}

	// An item's own provisions never discharge its requirements: the
	// file it installs cannot imply the directory it needs first.
	// Earliest phase wins here too, then declaration index.
	if req.Kind == predicates.KindDirectory || req.Kind == predicates.KindAny {
		owner := -1
		for _, cand := range b.implied[req.Path] {
			if cand == requirer {
				continue
			}
			if owner < 0 || b.phases[cand] < b.phases[owner] ||
				(b.phases[cand] == b.phases[owner] && cand < owner) {
				owner = cand
			}
		}
		if owner >= 0 {
			b.addEdge(owner, requirer)
			return nil
		}
	}

	if mismatched {
		got := provs[0]
		for _, prov := range provs {
			if prov.pred.Exists() && prov.pred.Kind != predicates.KindMount {
				got = prov
				break
			}
		}
		return errors.Newf(errors.ErrKindMismatch,
			"item %s requires %s but %s provides %s",
			b.nodes[requirer].ID(), req, b.nodes[got.owner].ID(), got.pred).
			WithDetail("item", b.nodes[requirer].ID()).
			WithDetail("required", req.String()).
			WithDetail("provided", got.pred.String())
	}
	return unsatisfiedErr(b.nodes[requirer], req)
}

func unsatisfiedErr(item items.Item, req predicates.Predicate) error {
	return errors.Newf(errors.ErrUnsatisfiedRequirement,
		"item %s requires %s, which nothing provides", item.ID(), req).
		WithDetail("item", item.ID()).
		WithDetail("requirement", req.String())
}

// addMountEdges orders every item that touches a path under a mount
// point after the item establishing the mount.
func (b *builder) addMountEdges() {
	for _, p := range b.sortedPaths() {
		for _, prov := range b.byPath[p] {
			if prov.pred.Kind != predicates.KindMount {
				continue
			}
			for j, other := range b.nodes {
				if j == prov.owner {
					continue
				}
				if b.touchesSubtree(other, p) {
					b.addEdge(prov.owner, j)
				}
			}
		}
	}
}

func (b *builder) touchesSubtree(item items.Item, root string) bool {
	for _, req := range item.Requires() {
		if predicates.IsStrictAncestor(root, req.Path) {
			return true
		}
	}
	for _, pred := range item.Provides() {
		if predicates.IsStrictAncestor(root, pred.Path) {
			return true
		}
	}
	return false
}

// checkPhaseOrder rejects edges that point backwards across phases.
// Phase order dominates the graph: a generic item cannot be a
// prerequisite of a removal, whatever the path predicates say.
func (b *builder) checkPhaseOrder() error {
	for from, tos := range b.adj {
		for _, to := range tos {
			if b.phases[from] > b.phases[to] {
				return errors.Newf(errors.ErrPhaseOrderViolation,
					"item %s (%s phase) cannot precede item %s (%s phase)",
					b.nodes[from].ID(), b.phases[from],
					b.nodes[to].ID(), b.phases[to]).
					WithDetail("provider", b.nodes[from].ID()).
					WithDetail("requirer", b.nodes[to].ID())
			}
		}
	}
	return nil
}

func (b *builder) addEdge(from, to int) {
	if from == to {
		return
	}
	key := [2]int{from, to}
	if b.edgeSeen[key] {
		return
	}
	b.edgeSeen[key] = true
	b.adj[from] = append(b.adj[from], to)
	b.indeg[to]++
}

// topoSort orders the graph. Among ready nodes the earlier phase wins,
// and within a phase the smaller declaration index wins, so the order is
// a pure function of the input.
func (b *builder) topoSort() ([]items.Item, error) {
	n := len(b.nodes)
	indeg := make([]int, n)
	copy(indeg, b.indeg)
	done := make([]bool, n)

	order := make([]items.Item, 0, n)
	for len(order) < n {
		pick := -1
		for i := 0; i < n; i++ {
			if done[i] || indeg[i] != 0 {
				continue
			}
			if pick < 0 || b.phases[i] < b.phases[pick] ||
				(b.phases[i] == b.phases[pick] && i < pick) {
				pick = i
			}
		}
		if pick < 0 {
			return nil, b.cycleErr(done)
		}
		done[pick] = true
		order = append(order, b.nodes[pick])
		for _, to := range b.adj[pick] {
			indeg[to]--
		}
	}
	return order, nil
}

// cycleErr walks the unfinished remainder of the graph to name one
// concrete cycle in the error.
func (b *builder) cycleErr(done []bool) error {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make([]int, len(b.nodes))
	var stack []int
	var cycle []int

	var visit func(i int) bool
	visit = func(i int) bool {
		color[i] = grey
		stack = append(stack, i)
		for _, to := range b.adj[i] {
			if done[to] {
				continue
			}
			if color[to] == grey {
				for k, s := range stack {
					if s == to {
						cycle = append(cycle, stack[k:]...)
						return true
					}
				}
			}
			if color[to] == white && visit(to) {
				return true
			}
		}
		color[i] = black
		stack = stack[:len(stack)-1]
		return false
	}

	for i := range b.nodes {
		if !done[i] && color[i] == white && visit(i) {
			break
		}
	}

	ids := make([]string, 0, len(cycle))
	for _, i := range cycle {
		ids = append(ids, b.nodes[i].ID())
	}
	return errors.Newf(errors.ErrDependencyCycle,
		"items form a dependency cycle: %s", strings.Join(ids, " -> ")).
		WithDetail("cycle", strings.Join(ids, " -> "))
}

func (b *builder) sortedPaths() []string {
	paths := make([]string, 0, len(b.byPath))
	for p := range b.byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
