package sessions

import "context"

// Stream is the outbound half of a transport connection. Send writes one
// complete message; the session guarantees Send is never called concurrently.
type Stream interface {
	Send(ctx context.Context, msg []byte) error
}

// StreamFunc adapts a function to the Stream interface.
type StreamFunc func(ctx context.Context, msg []byte) error

// Send implements Stream.
func (f StreamFunc) Send(ctx context.Context, msg []byte) error {
	return f(ctx, msg)
}
