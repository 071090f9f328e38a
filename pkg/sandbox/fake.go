package sandbox

import (
	"context"
	"sync"

	"github.com/strata-build/strata/pkg/errors"
)

// Fake is an in-memory Sandbox for tests. It records every spec it is
// asked to run and answers with a scripted result.
type Fake struct {
	mu    sync.Mutex
	runs  []Spec
	Err   error
	Reply Result

	// OnRun, when set, decides the outcome per invocation.
	OnRun func(spec Spec) (Result, error)
}

// NewFake creates a fake sandbox that succeeds with an empty result.
func NewFake() *Fake {
	return &Fake{}
}

// Run records the spec and returns the scripted outcome.
func (f *Fake) Run(ctx context.Context, spec Spec) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, errors.Wrap(err, errors.ErrSandbox, "sandbox run cancelled")
	}

	f.mu.Lock()
	f.runs = append(f.runs, spec)
	f.mu.Unlock()

	if f.OnRun != nil {
		return f.OnRun(spec)
	}
	if f.Err != nil {
		return f.Reply, f.Err
	}
	return f.Reply, nil
}

// Runs returns the specs run so far, in order.
func (f *Fake) Runs() []Spec {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Spec, len(f.runs))
	copy(out, f.runs)
	return out
}
