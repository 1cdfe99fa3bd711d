package executil

import (
	"context"
	"strings"
	"sync"
)

// RecordedCommand captures a script that was executed.
type RecordedCommand struct {
	Script   string
	Detached bool
}

// RecordingExecutor captures scripts for testing. Errors maps a script
// prefix to the error returned for scripts starting with it.
type RecordingExecutor struct {
	mu       sync.Mutex
	Commands []RecordedCommand

	Output []byte
	Errors map[string]error
}

// Shell records script and returns the configured output and error.
func (e *RecordingExecutor) Shell(_ context.Context, script string) ([]byte, error) {
	err := e.record(script, false)
	return e.Output, err
}

// Start records script as detached.
func (e *RecordingExecutor) Start(script string) error {
	return e.record(script, true)
}

func (e *RecordingExecutor) record(script string, detached bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.Commands = append(e.Commands, RecordedCommand{Script: script, Detached: detached})

	for prefix, err := range e.Errors {
		if strings.HasPrefix(script, prefix) {
			return err
		}
	}
	return nil
}

// Scripts returns the recorded scripts in order.
func (e *RecordingExecutor) Scripts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]string, len(e.Commands))
	for i, c := range e.Commands {
		out[i] = c.Script
	}
	return out
}

// Reset clears recorded commands.
func (e *RecordingExecutor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Commands = nil
}
