package stdio

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/ggoodman/shiprocket-mcp-go/internal/engine"
	"github.com/ggoodman/shiprocket-mcp-go/internal/logctx"
	"github.com/ggoodman/shiprocket-mcp-go/sessions"
)

const (
	// SessionID is the fixed id of the single stdio session.
	SessionID = "stdio"
	// TransportName identifies this transport in logs.
	TransportName = "stdio"

	maxLineBytes = 4 << 20
)

// SessionOpener registers the stdio session under its fixed id.
// *sessions.Manager implements it.
type SessionOpener interface {
	OpenWithID(ctx context.Context, id string, cred sessions.Credential, stream sessions.Stream) (*sessions.Session, error)
	Close(ctx context.Context, sessionID string)
}

// MessageHandler accepts inbound messages. *engine.Engine implements it.
type MessageHandler interface {
	HandleMessage(ctx context.Context, sessionID string, raw []byte) error
	RejectMalformed(ctx context.Context, sessionID string)
}

// Handler is a single-connection stdio transport that reads JSON-RPC messages
// from an io.Reader and writes every pushed message to an io.Writer.
type Handler struct {
	sessions SessionOpener
	messages MessageHandler
	cred     sessions.Credential

	r io.Reader
	w io.Writer
	l *slog.Logger
}

// NewHandler constructs a stdio Handler with defaults and applies options.
func NewHandler(opener SessionOpener, messages MessageHandler, cred sessions.Credential, opts ...Option) *Handler {
	h := &Handler{
		sessions: opener,
		messages: messages,
		cred:     cred,
		r:        os.Stdin,
		w:        os.Stdout,
		l:        slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.l = logctx.Wrap(h.l)
	return h
}

// lineStream writes each message followed by a newline.
type lineStream struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *lineStream) Send(_ context.Context, msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(append(bytes.Clone(msg), '\n')); err != nil {
		return fmt.Errorf("failed to write stdio message: %w", err)
	}
	return nil
}

// Serve registers the stdio session and runs the read loop until EOF on the
// reader or ctx is cancelled. On EOF, replies to messages already read are
// flushed before the session is closed. It is safe to call at most once per
// Handler.
//
// Reads cannot be interrupted: after cancellation Serve returns, but the
// reader goroutine stays blocked until the reader yields a line, EOF or an
// error. Callers that need it reclaimed must close the reader.
func (h *Handler) Serve(ctx context.Context) error {
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: SessionID, Transport: TransportName})

	sess, err := h.sessions.OpenWithID(ctx, SessionID, h.cred, &lineStream{w: h.w})
	if err != nil {
		return fmt.Errorf("open stdio session: %w", err)
	}
	defer h.sessions.Close(context.WithoutCancel(ctx), SessionID)
	h.l.InfoContext(ctx, "stdio.serve.start")

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(h.r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			select {
			case lines <- bytes.Clone(line):
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			h.l.InfoContext(ctx, "stdio.serve.cancelled")
			return ctx.Err()
		case err := <-readErr:
			sess.Drain()
			if err != nil {
				h.l.ErrorContext(ctx, "stdio.read.fail", slog.String("err", err.Error()))
				return fmt.Errorf("read stdio: %w", err)
			}
			h.l.InfoContext(ctx, "stdio.serve.eof")
			return nil
		case line := <-lines:
			h.handleLine(ctx, sess, line)
		}
	}
}

func (h *Handler) handleLine(ctx context.Context, sess *sessions.Session, line []byte) {
	err := h.messages.HandleMessage(ctx, SessionID, line)
	if errors.Is(err, sessions.ErrQueueFull) {
		// Input is read serially, so waiting for the backlog is backpressure.
		h.l.DebugContext(ctx, "stdio.queue_full.drain")
		sess.Drain()
		err = h.messages.HandleMessage(ctx, SessionID, line)
	}
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrMalformedMessage):
		h.l.InfoContext(ctx, "jsonrpc.message.invalid", slog.String("err", err.Error()))
		h.messages.RejectMalformed(ctx, SessionID)
	default:
		h.l.ErrorContext(ctx, "stdio.handle_message.fail", slog.String("err", err.Error()))
	}
}
