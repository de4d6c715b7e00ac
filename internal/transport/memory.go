// Package transport provides duplex channel implementations at the service
// boundary. The real gRPC transport is an external collaborator injected by
// the caller, this package carries the in-process pipe used by the mock
// inference service and by tests.
package transport

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/faceflow-labs/faceflow-core/internal/protocol"
)

var errSendClosed = errors.New("send side closed")

// ClientStream is the client half of an in-process duplex pipe. It satisfies
// protocol.DuplexStream.
type ClientStream struct {
	out      chan *protocol.AudioStream
	in       chan *protocol.AnimationDataStream
	mu       sync.Mutex
	sendDone bool
}

// ServerStream is the service half of the pipe.
type ServerStream struct {
	in  chan *protocol.AudioStream
	out chan *protocol.AnimationDataStream
}

// Pipe builds a connected client/server stream pair with the given frame
// buffer per direction.
func Pipe(buffer int) (*ClientStream, *ServerStream) {
	out := make(chan *protocol.AudioStream, buffer)
	in := make(chan *protocol.AnimationDataStream, buffer)
	client := &ClientStream{out: out, in: in}
	server := &ServerStream{in: out, out: in}
	return client, server
}

func (c *ClientStream) Send(ctx context.Context, frame *protocol.AudioStream) error {
	c.mu.Lock()
	closed := c.sendDone
	c.mu.Unlock()
	if closed {
		return errSendClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case c.out <- frame:
		return nil
	}
}

func (c *ClientStream) Recv(ctx context.Context) (*protocol.AnimationDataStream, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case frame, ok := <-c.in:
		if !ok {
			return nil, io.EOF
		}
		return frame, nil
	}
}

func (c *ClientStream) CloseSend() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendDone {
		return nil
	}
	c.sendDone = true
	close(c.out)
	return nil
}

// Recv returns io.EOF once the client closed its send side.
func (s *ServerStream) Recv(ctx context.Context) (*protocol.AudioStream, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case frame, ok := <-s.in:
		if !ok {
			return nil, io.EOF
		}
		return frame, nil
	}
}

func (s *ServerStream) Send(ctx context.Context, frame *protocol.AnimationDataStream) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.out <- frame:
		return nil
	}
}

// Close ends the inbound stream, the client observes io.EOF.
func (s *ServerStream) Close() {
	close(s.out)
}
