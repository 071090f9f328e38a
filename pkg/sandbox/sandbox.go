// Package sandbox is the narrow interface the compiler uses to run
// package-manager transactions and foreign build steps in an isolated
// root. The compiler core has no dependency on process-spawning details,
// so tests substitute the in-memory fake.
package sandbox

import "context"

// Mount describes a bind mount made visible inside the sandbox.
type Mount struct {
	Source   string
	Point    string
	ReadOnly bool
}

// Spec describes one sandboxed command invocation.
type Spec struct {
	Argv []string

	// Root is the host directory that becomes / inside the sandbox.
	Root string

	Mounts []Mount

	// RepoEndpoint points the sandboxed package manager at a repo
	// snapshot. Empty means no network at all.
	RepoEndpoint string

	Env        map[string]string
	WorkingDir string
}

// Result captures a finished sandboxed command.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Sandbox runs commands in an isolated environment. Run blocks until the
// command exits; cancellation arrives through ctx and is reported as an
// ordinary error so the compiler can take its abort path.
type Sandbox interface {
	Run(ctx context.Context, spec Spec) (Result, error)
}
