package ssehttp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// lockedWriteFlusher serializes writes and flushes to a streaming response and
// refuses to write once ctx is done.
type lockedWriteFlusher struct {
	io.Writer
	http.Flusher
	mu  sync.Mutex
	ctx context.Context
}

func (l *lockedWriteFlusher) writeFrame(frame []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ctx.Err(); err != nil {
		return err
	}
	if _, err := l.Writer.Write(frame); err != nil {
		return err
	}
	l.Flusher.Flush()
	return nil
}

// sseStream adapts a streaming response to sessions.Stream.
type sseStream struct {
	wf *lockedWriteFlusher
}

func (s *sseStream) Send(_ context.Context, msg []byte) error {
	if err := writeSSEEvent(s.wf, "message", msg); err != nil {
		return fmt.Errorf("failed to write SSE event: %w", err)
	}
	return nil
}

// writeSSEEvent writes one named event as a single frame and flushes it.
// payload must not contain newlines; encoded JSON-RPC messages never do.
func writeSSEEvent(wf *lockedWriteFlusher, event string, payload []byte) error {
	frame := make([]byte, 0, len(event)+len(payload)+16)
	frame = append(frame, "event: "...)
	frame = append(frame, event...)
	frame = append(frame, "\ndata: "...)
	frame = append(frame, payload...)
	frame = append(frame, "\n\n"...)
	return wf.writeFrame(frame)
}

func writeSSEComment(wf *lockedWriteFlusher, comment string) error {
	return wf.writeFrame([]byte(": " + comment + "\n\n"))
}
