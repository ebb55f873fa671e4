// Package extern runs shell commands and background jobs on behalf of the
// calibration procedures: relay toggling scripts, pin watchers and the like.
package extern

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Executor is the part of the gateway the procedures consume
type Executor interface {
	// Run executes command and returns its captured stdout
	Run(ctx context.Context, command string) (string, error)
	// Start spawns command in the background and returns immediately
	Start(ctx context.Context, command string) (Job, error)
}

// Shell is an Executor whose timeout and working directory can be set by the session
type Shell interface {
	Executor
	SetTimeout(d time.Duration)
	SetWorkingDir(dir string)
}

// Job is a background process
type Job interface {
	// Done is closed when the process exits
	Done() <-chan struct{}
	// Err returns the exit error once Done is closed
	Err() error
	// Stop terminates the process and everything it spawned
	Stop() error
}

// Gateway executes commands through a shell. A zero timeout means no limit.
type Gateway struct {
	mu      sync.Mutex
	shell   string
	dir     string
	timeout time.Duration
	jobs    map[*process]struct{}
	log     logrus.FieldLogger
}

// Option customizes the gateway
type Option func(*Gateway)

// WithShell sets the shell used to interpret commands (default /bin/sh)
func WithShell(shell string) Option {
	return func(g *Gateway) {
		if shell != "" {
			g.shell = shell
		}
	}
}

// WithLogger sets the logger used for command tracing
func WithLogger(log logrus.FieldLogger) Option {
	return func(g *Gateway) {
		if log != nil {
			g.log = log
		}
	}
}

// NewGateway creates a gateway running commands in the current directory
func NewGateway(opts ...Option) *Gateway {
	g := &Gateway{
		shell: "/bin/sh",
		dir:   ".",
		jobs:  make(map[*process]struct{}),
		log:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SetTimeout sets the limit applied to Run. Zero disables it.
func (g *Gateway) SetTimeout(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if d < 0 {
		d = 0
	}
	g.timeout = d
}

// SetWorkingDir sets the directory commands run in
func (g *Gateway) SetWorkingDir(dir string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dir = dir
}

func (g *Gateway) command(ctx context.Context, command string) *exec.Cmd {
	g.mu.Lock()
	dir, shell := g.dir, g.shell
	g.mu.Unlock()

	cmd := exec.CommandContext(ctx, shell, "-c", command)
	cmd.Dir = dir
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		return killProcessGroup(cmd)
	}
	cmd.WaitDelay = time.Second
	return cmd
}

// Run executes command and waits for it. Stdout is returned; stderr is folded
// into the error on failure.
func (g *Gateway) Run(ctx context.Context, command string) (string, error) {
	g.mu.Lock()
	timeout := g.timeout
	g.mu.Unlock()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := g.command(ctx, command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	g.log.WithFields(logrus.Fields{
		"command":  command,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("extern run")

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stdout.String(), fmt.Errorf("extern %q: %w", command, ctxErr)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return stdout.String(), fmt.Errorf("extern %q: %w: %s", command, err, msg)
		}
		return stdout.String(), fmt.Errorf("extern %q: %w", command, err)
	}
	return stdout.String(), nil
}

// Start spawns command in the background. The job is terminated when ctx is
// cancelled, when Stop is called, or by StopAll.
func (g *Gateway) Start(ctx context.Context, command string) (Job, error) {
	cmd := g.command(ctx, command)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("extern start %q: %w", command, err)
	}

	p := &process{cmd: cmd, done: make(chan struct{})}
	g.mu.Lock()
	g.jobs[p] = struct{}{}
	g.mu.Unlock()

	g.log.WithFields(logrus.Fields{"command": command, "pid": cmd.Process.Pid}).Debug("extern background job started")

	go func() {
		p.err = cmd.Wait()
		g.mu.Lock()
		delete(g.jobs, p)
		g.mu.Unlock()
		close(p.done)
	}()
	return p, nil
}

// StopAll terminates every background job still running
func (g *Gateway) StopAll() error {
	g.mu.Lock()
	jobs := make([]*process, 0, len(g.jobs))
	for p := range g.jobs {
		jobs = append(jobs, p)
	}
	g.mu.Unlock()

	var errs []error
	for _, p := range jobs {
		errs = append(errs, p.Stop())
	}
	return errors.Join(errs...)
}

type process struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (p *process) Done() <-chan struct{} {
	return p.done
}

func (p *process) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

func (p *process) Stop() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	if err := killProcessGroup(p.cmd); err != nil {
		return err
	}
	<-p.done
	return nil
}
