// Package process runs external commands on behalf of the harness.
//
// Every command is started in its own process group. If the context passed to Run is cancelled
// while the command is running, the whole group is terminated before Run returns, so no
// orphaned children survive the caller. The returned error then wraps the context error, so
// callers can check for cancellation with errors.Is(err, context.Canceled).
package process

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/stressbench/stressbench/internal/common/bencherrors"
)

const (
	// How long a terminated process group is given to exit before it's killed.
	defaultGracePeriod = 5 * time.Second
	// Number of stderr bytes kept for error messages.
	stderrTailBytes = 4096
)

// Command is an external program invocation.
type Command struct {
	// Path of the executable, looked up in PATH if it contains no separator.
	Path string `yaml:"path"`
	// Arguments, not including Path.
	Args []string `yaml:"args"`
	// Working directory. Defaults to the current directory.
	Dir string `yaml:"dir"`
	// Extra environment variables in KEY=VALUE form, appended to the parent's environment.
	Env []string `yaml:"env"`
}

// With returns a copy of c with args appended.
func (c Command) With(args ...string) Command {
	rv := c
	rv.Args = make([]string, 0, len(c.Args)+len(args))
	rv.Args = append(rv.Args, c.Args...)
	rv.Args = append(rv.Args, args...)
	return rv
}

// Argv returns the full argument vector, including Path.
func (c Command) Argv() []string {
	return append([]string{c.Path}, c.Args...)
}

func (c Command) String() string {
	return strings.Join(c.Argv(), " ")
}

// IsZero returns true if no executable has been configured.
func (c Command) IsZero() bool {
	return c.Path == ""
}

// Exec runs commands as local child processes.
type Exec struct {
	// Name used in error messages, e.g. "union" or "ssh". Defaults to the base name of the executable.
	Name string
	// Stderr of the child, and the stdout of commands started with Run, are copied here. Stderr is
	// also captured for error messages. New sets it to os.Stderr; nil discards.
	Stderr io.Writer
	// Time a cancelled process group is given to exit after SIGTERM before it's killed.
	GracePeriod time.Duration
}

// New returns an Exec writing child stderr to os.Stderr.
func New() *Exec {
	return &Exec{
		Stderr:      os.Stderr,
		GracePeriod: defaultGracePeriod,
	}
}

// Run runs c to completion. Its stdout goes to Stderr along with its stderr, keeping the
// parent's stdout for reports.
func (e *Exec) Run(ctx context.Context, c Command) error {
	return e.run(ctx, c, nil)
}

// Output runs c to completion and returns its stdout.
func (e *Exec) Output(ctx context.Context, c Command) ([]byte, error) {
	var stdout bytes.Buffer
	if err := e.run(ctx, c, &stdout); err != nil {
		return nil, err
	}
	return stdout.Bytes(), nil
}

// RunToFile runs c to completion with its stdout written to path, which is created or truncated.
func (e *Exec) RunToFile(ctx context.Context, c Command, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.WithStack(err)
	}
	runErr := e.run(ctx, c, f)
	closeErr := f.Close()
	if runErr != nil {
		return runErr
	}
	return errors.WithStack(closeErr)
}

// run runs c with its stdout written to stdout, or forwarded with its stderr if stdout is nil.
func (e *Exec) run(ctx context.Context, c Command, stdout io.Writer) error {
	if c.IsZero() {
		return errors.WithStack(&bencherrors.ErrInvalidArgument{
			Name:    "Path",
			Value:   c.Path,
			Message: "no executable configured",
		})
	}
	if err := ctx.Err(); err != nil {
		return errors.WithStack(err)
	}

	stderr := &tailBuffer{limit: stderrTailBytes}
	var forward io.Writer = io.Discard
	if e.Stderr != nil {
		forward = &lockedWriter{w: e.Stderr}
	}
	stderrOut := io.MultiWriter(forward, stderr)
	if stdout == nil {
		stdout = forward
	}

	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderrOut
	setProcessGroup(cmd)

	log.WithField("command", c.String()).Debug("running command")
	if err := cmd.Start(); err != nil {
		return errors.WithStack(&bencherrors.ErrToolFailure{
			Tool:     e.toolName(c),
			Command:  c.Argv(),
			ExitCode: -1,
			Stderr:   err.Error(),
		})
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	select {
	case err := <-waitCh:
		if err != nil {
			return errors.WithStack(&bencherrors.ErrToolFailure{
				Tool:     e.toolName(c),
				Command:  c.Argv(),
				ExitCode: exitCode(err),
				Stderr:   stderr.String(),
			})
		}
		return nil
	case <-ctx.Done():
		e.terminate(cmd, waitCh)
		log.WithField("command", c.String()).Debug("command terminated on cancellation")
		return errors.WithStack(ctx.Err())
	}
}

// terminate signals the process group of cmd and blocks until the leader has been reaped.
// Anything left in the group after the grace period is killed.
func (e *Exec) terminate(cmd *exec.Cmd, waitCh <-chan error) {
	if err := signalGroup(cmd, terminateSignal); err != nil {
		log.WithError(err).Debug("failed to signal process group")
	}
	grace := e.GracePeriod
	if grace <= 0 {
		grace = defaultGracePeriod
	}
	select {
	case <-waitCh:
	case <-time.After(grace):
		_ = signalGroup(cmd, killSignal)
		<-waitCh
	}
	// Children that ignored the first signal may outlive the leader.
	_ = signalGroup(cmd, killSignal)
}

func (e *Exec) toolName(c Command) string {
	if e.Name != "" {
		return e.Name
	}
	name := c.Path
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return name
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// lockedWriter serialises writes from the stdout and stderr copiers of one child.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if len(b.buf) > b.limit {
		b.buf = b.buf[len(b.buf)-b.limit:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	return string(b.buf)
}
