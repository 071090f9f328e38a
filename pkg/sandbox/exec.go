package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog"
	"github.com/strata-build/strata/pkg/errors"
	"github.com/strata-build/strata/pkg/logging"
)

// DefaultTimeout bounds a single sandboxed command. Package transactions
// routinely take minutes; anything past this is assumed wedged.
const DefaultTimeout = 15 * time.Minute

// ExecSandbox runs commands as host subprocesses rooted at the volume
// directory. Namespacing is delegated to a wrapper command (for example
// systemd-nspawn) configured as the prefix; with no prefix, commands run
// directly with STRATA_ROOT pointing at the volume.
type ExecSandbox struct {
	prefix  []string
	timeout time.Duration
	logger  zerolog.Logger
}

// Option configures an ExecSandbox.
type Option func(*ExecSandbox)

// WithPrefix sets the wrapper command prepended to every invocation.
func WithPrefix(argv ...string) Option {
	return func(s *ExecSandbox) { s.prefix = argv }
}

// WithTimeout overrides the per-command timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *ExecSandbox) { s.timeout = d }
}

// NewExecSandbox creates a subprocess-backed sandbox.
func NewExecSandbox(opts ...Option) *ExecSandbox {
	s := &ExecSandbox{
		timeout: DefaultTimeout,
		logger:  logging.GetLogger("sandbox.exec"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes the spec and captures its output.
func (s *ExecSandbox) Run(ctx context.Context, spec Spec) (Result, error) {
	if len(spec.Argv) == 0 {
		return Result{}, errors.New(errors.ErrInvalidInput, "sandbox run requires a command")
	}

	argv := append(append([]string{}, s.prefix...), spec.Argv...)

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	if spec.WorkingDir != "" {
		cmd.Dir = spec.WorkingDir
	}

	cmd.Env = os.Environ()
	cmd.Env = append(cmd.Env, fmt.Sprintf("STRATA_ROOT=%s", spec.Root))
	if spec.RepoEndpoint != "" {
		cmd.Env = append(cmd.Env, fmt.Sprintf("STRATA_REPO=%s", spec.RepoEndpoint))
	}
	for key, value := range spec.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, value))
	}
	for _, m := range spec.Mounts {
		cmd.Env = append(cmd.Env, fmt.Sprintf("STRATA_MOUNT_%s=%s", sanitizeEnvKey(m.Point), m.Source))
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	s.logger.Debug().
		Strs("argv", argv).
		Str("root", spec.Root).
		Str("repo", spec.RepoEndpoint).
		Msg("Running sandboxed command")

	err := cmd.Run()
	result := Result{
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			return result, errors.Wrapf(err, errors.ErrSandbox,
				"command %q exited with status %d", argv[0], result.ExitCode).
				WithDetail("stderr", stderr.String())
		}
		return result, errors.Wrapf(err, errors.ErrSandbox, "failed to run command %q", argv[0])
	}

	return result, nil
}

func sanitizeEnvKey(p string) string {
	out := make([]byte, 0, len(p))
	for i := 0; i < len(p); i++ {
		c := p[i]
		switch {
		case c >= 'a' && c <= 'z':
			out = append(out, c-('a'-'A'))
		case (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9'):
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
