// Package phases splits a validated execution plan into its build
// phases. The plan is already totally ordered; splitting preserves that
// order within each bucket, so running the buckets back to back replays
// the plan exactly.
package phases

import (
	"github.com/strata-build/strata/pkg/depgraph"
	"github.com/strata-build/strata/pkg/items"
	"github.com/strata-build/strata/pkg/rpm"
)

// Partition holds a plan's items bucketed by phase.
type Partition struct {
	buckets [items.PhaseCount][]items.Item
}

// Split buckets the ordered plan by phase.
func Split(plan *depgraph.Plan) *Partition {
	p := &Partition{}
	for _, item := range plan.Order {
		ph := item.Phase()
		p.buckets[ph] = append(p.buckets[ph], item)
	}
	return p
}

// Items returns the phase's items in plan order.
func (p *Partition) Items(ph items.Phase) []items.Item {
	return p.buckets[ph]
}

// Total counts items across all phases.
func (p *Partition) Total() int {
	n := 0
	for _, bucket := range p.buckets {
		n += len(bucket)
	}
	return n
}

// CoalescePackageActions separates the package phase into one combined
// transaction and the remaining non-package items. All declared installs
// and removes land in a single transaction so a mid-batch failure leaves
// no trace of any package.
func CoalescePackageActions(bucket []items.Item) (*rpm.Transaction, []items.Item, error) {
	var reqs []rpm.Request
	var src rpm.Source
	var rest []items.Item

	for _, item := range bucket {
		action, ok := item.(*items.RpmAction)
		if !ok {
			rest = append(rest, item)
			continue
		}
		reqs = append(reqs, action.Request())
		src = action.Source()
	}
	if len(reqs) == 0 {
		return nil, rest, nil
	}

	tx, err := rpm.NewTransaction(src, reqs...)
	if err != nil {
		return nil, nil, err
	}
	return tx, rest, nil
}
