// pkg/sandbox/exec_test.go
// TEST TYPE: Unit Test
// DEPENDENCIES: /bin/sh (skipped where unavailable)
// PURPOSE: Test subprocess sandbox execution, env plumbing, and failures

package sandbox_test

import (
	"context"
	"os/exec"
	"testing"

	"github.com/strata-build/strata/pkg/errors"
	"github.com/strata-build/strata/pkg/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireSh(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestRunCapturesOutput(t *testing.T) {
	requireSh(t)
	s := sandbox.NewExecSandbox()

	res, err := s.Run(context.Background(), sandbox.Spec{
		Argv: []string{"sh", "-c", "echo out; echo err >&2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "out\n", string(res.Stdout))
	assert.Equal(t, "err\n", string(res.Stderr))
}

func TestRunExposesRootAndRepo(t *testing.T) {
	requireSh(t)
	s := sandbox.NewExecSandbox()

	res, err := s.Run(context.Background(), sandbox.Spec{
		Argv:         []string{"sh", "-c", "printf '%s|%s' \"$STRATA_ROOT\" \"$STRATA_REPO\""},
		Root:         "/work/base",
		RepoEndpoint: "http://127.0.0.1:8000/snapshot",
	})
	require.NoError(t, err)
	assert.Equal(t, "/work/base|http://127.0.0.1:8000/snapshot", string(res.Stdout))
}

func TestRunNonZeroExit(t *testing.T) {
	requireSh(t)
	s := sandbox.NewExecSandbox()

	res, err := s.Run(context.Background(), sandbox.Spec{
		Argv: []string{"sh", "-c", "echo boom >&2; exit 3"},
	})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrSandbox))
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, string(res.Stderr), "boom")
}

func TestRunEmptyArgv(t *testing.T) {
	s := sandbox.NewExecSandbox()
	_, err := s.Run(context.Background(), sandbox.Spec{})
	assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))
}

func TestFakeRecordsRuns(t *testing.T) {
	f := sandbox.NewFake()

	_, err := f.Run(context.Background(), sandbox.Spec{Argv: []string{"rpm", "-i"}})
	require.NoError(t, err)
	_, err = f.Run(context.Background(), sandbox.Spec{Argv: []string{"make"}})
	require.NoError(t, err)

	runs := f.Runs()
	require.Len(t, runs, 2)
	assert.Equal(t, []string{"rpm", "-i"}, runs[0].Argv)
	assert.Equal(t, []string{"make"}, runs[1].Argv)
}

func TestFakeCancelled(t *testing.T) {
	f := sandbox.NewFake()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Run(ctx, sandbox.Spec{Argv: []string{"rpm"}})
	assert.True(t, errors.IsErrorCode(err, errors.ErrSandbox))
	assert.Empty(t, f.Runs())
}
