// Package executil runs host shell scripts.
package executil

import (
	"context"
	"fmt"
	"os/exec"
)

// Executor runs shell scripts.
type Executor interface {
	// Shell runs script with sh -c, waits, and returns combined output.
	Shell(ctx context.Context, script string) ([]byte, error)
	// Start launches script with sh -c and returns once it has started.
	Start(script string) error
}

// RealExecutor runs scripts with /bin/sh.
type RealExecutor struct {
	// Interpreter overrides the shell. Defaults to "sh".
	Interpreter string
}

func (e *RealExecutor) interpreter() string {
	if e.Interpreter == "" {
		return "sh"
	}
	return e.Interpreter
}

// Shell runs script and returns its combined output.
func (e *RealExecutor) Shell(ctx context.Context, script string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, e.interpreter(), "-c", script).CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("exec %q: %w", script, err)
	}
	return out, nil
}

// Start launches script detached from the caller's context. The process is
// reaped in the background.
func (e *RealExecutor) Start(script string) error {
	c := exec.Command(e.interpreter(), "-c", script)
	if err := c.Start(); err != nil {
		return fmt.Errorf("start %q: %w", script, err)
	}
	go func() { _ = c.Wait() }()
	return nil
}
