// Package utils holds small helpers shared by the command layer.
package utils

import (
	"io"
	"sync"
)

// DeferredWriter buffers writes until Flush. It keeps log output from
// drawing over a full-screen terminal UI.
type DeferredWriter struct {
	mu     sync.Mutex
	chunks [][]byte
}

// Write stores a copy of p.
func (w *DeferredWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.chunks = append(w.chunks, append([]byte(nil), p...))
	return len(p), nil
}

// Flush writes every buffered chunk to out in order and clears the buffer.
func (w *DeferredWriter) Flush(out io.Writer) error {
	w.mu.Lock()
	chunks := w.chunks
	w.chunks = nil
	w.mu.Unlock()

	for _, c := range chunks {
		if _, err := out.Write(c); err != nil {
			return err
		}
	}
	return nil
}
