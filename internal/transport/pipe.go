package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hay-kot/deskbus/internal/core/protocol"
)

// pipeEnd is one side of an in-process connection. Envelopes are encoded on
// send so both sides never share maps or slices.
type pipeEnd struct {
	in    chan []byte
	out   chan []byte
	done  chan struct{}
	close func()
}

// Pipe returns two connected in-memory ends. Closing either end closes both.
func Pipe(buffer int) (Conn, Conn) {
	if buffer < 1 {
		buffer = 64
	}
	a := make(chan []byte, buffer)
	b := make(chan []byte, buffer)
	done := make(chan struct{})

	var once sync.Once
	closeFn := func() { once.Do(func() { close(done) }) }

	return &pipeEnd{in: a, out: b, done: done, close: closeFn},
		&pipeEnd{in: b, out: a, done: done, close: closeFn}
}

func (p *pipeEnd) Send(env protocol.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	select {
	case <-p.done:
		return ErrClosed
	default:
	}

	select {
	case p.out <- data:
		return nil
	case <-p.done:
		return ErrClosed
	}
}

func (p *pipeEnd) Recv(ctx context.Context) (protocol.Envelope, error) {
	// Drain what was sent before the close.
	select {
	case data := <-p.in:
		return decode(data)
	default:
	}

	select {
	case data := <-p.in:
		return decode(data)
	case <-p.done:
		return protocol.Envelope{}, ErrClosed
	case <-ctx.Done():
		return protocol.Envelope{}, ctx.Err()
	}
}

func (p *pipeEnd) Close() error {
	p.close()
	return nil
}

func decode(data []byte) (protocol.Envelope, error) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return protocol.Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}
