package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/ggoodman/shiprocket-mcp-go/internal/jsonrpc"
	"github.com/ggoodman/shiprocket-mcp-go/internal/logctx"
	"github.com/ggoodman/shiprocket-mcp-go/mcpservice"
	"github.com/ggoodman/shiprocket-mcp-go/sessions"
)

const unknownToolLabel = "unknown"

// Pusher delivers an encoded message to a session's stream.
type Pusher interface {
	Push(ctx context.Context, sessionID string, msg []byte) error
}

// CredentialSource resolves the credential bound to a live session.
type CredentialSource interface {
	CredentialFor(sessionID string) (sessions.CredentialContext, bool)
}

// Observer receives dispatch outcomes. *metrics.Metrics implements it.
type Observer interface {
	InvocationDone(tool, outcome string, d time.Duration)
	PushDropped()
}

type nopObserver struct{}

func (nopObserver) InvocationDone(string, string, time.Duration) {}
func (nopObserver) PushDropped()                                 {}

// Invocation is one tool call addressed to a session.
type Invocation struct {
	SessionID string
	ToolName  string
	Payload   json.RawMessage
	RequestID *jsonrpc.RequestID
}

// Dispatcher routes invocations to tools and pushes the outcome back onto the
// originating session.
type Dispatcher struct {
	tools  *mcpservice.ToolRegistry
	creds  CredentialSource
	pusher Pusher
	log    *slog.Logger
	obs    Observer
}

// NewDispatcher constructs a Dispatcher. Options shared with the Engine
// (WithLogger, WithObserver) apply.
func NewDispatcher(tools *mcpservice.ToolRegistry, creds CredentialSource, pusher Pusher, opts ...Option) *Dispatcher {
	cfg := newConfig(opts...)
	return &Dispatcher{
		tools:  tools,
		creds:  creds,
		pusher: pusher,
		log:    cfg.log,
		obs:    cfg.obs,
	}
}

// Dispatch runs inv and pushes its result. The returned Result is what was
// (or would have been) pushed; a push failure never surfaces as an error.
func (d *Dispatcher) Dispatch(ctx context.Context, inv Invocation) mcpservice.Result {
	start := time.Now()
	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: inv.ToolName})

	res, label := d.invoke(ctx, inv)

	outcome := metricsOutcome(res)
	d.obs.InvocationDone(label, outcome, time.Since(start))
	if res.OK() {
		d.log.InfoContext(ctx, "dispatch.ok", slog.Duration("dur", time.Since(start)))
	} else {
		d.log.InfoContext(ctx, "dispatch.fail",
			slog.String("kind", string(res.Failure.Kind)),
			slog.Duration("dur", time.Since(start)))
	}

	resp, err := jsonrpc.NewResultResponse(inv.RequestID, res.CallToolResult())
	if err != nil {
		d.log.ErrorContext(ctx, "dispatch.encode.fail", slog.String("err", err.Error()))
		resp = jsonrpc.NewErrorResponse(inv.RequestID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}
	d.push(ctx, inv.SessionID, resp)

	return res
}

func (d *Dispatcher) invoke(ctx context.Context, inv Invocation) (mcpservice.Result, string) {
	tool, ok := d.tools.Lookup(inv.ToolName)
	if !ok {
		return mcpservice.FailureResult(mcpservice.Errorf(mcpservice.FailureUnknownTool, "unknown tool %q", inv.ToolName)), unknownToolLabel
	}

	if err := tool.Schema.Validate(inv.Payload); err != nil {
		return mcpservice.FailureResult(mcpservice.Errorf(mcpservice.FailureInvalidInput, "%v", err)), tool.Name
	}

	cred, ok := d.creds.CredentialFor(inv.SessionID)
	if !ok {
		return mcpservice.FailureResult(mcpservice.Errorf(mcpservice.FailureSessionExpired, "session is no longer active")), tool.Name
	}

	return d.runHandler(ctx, tool, cred, inv.Payload), tool.Name
}

func (d *Dispatcher) runHandler(ctx context.Context, tool *mcpservice.ToolDescriptor, cred sessions.CredentialContext, payload json.RawMessage) (res mcpservice.Result) {
	defer func() {
		if r := recover(); r != nil {
			d.log.ErrorContext(ctx, "dispatch.handler.panic",
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())))
			res = mcpservice.FailureResult(mcpservice.Errorf(mcpservice.FailureInternal, "internal error"))
		}
	}()

	res, err := tool.Handler(ctx, cred, payload)
	if err == nil {
		return res
	}

	var f *mcpservice.Failure
	if errors.As(err, &f) {
		return mcpservice.FailureResult(f)
	}
	d.log.ErrorContext(ctx, "dispatch.handler.fail", slog.String("err", err.Error()))
	return mcpservice.FailureResult(mcpservice.Errorf(mcpservice.FailureInternal, "internal error"))
}

// push encodes resp and writes it to the session. A missing session or a
// failed stream drops the message.
func (d *Dispatcher) push(ctx context.Context, sessionID string, resp *jsonrpc.Response) {
	msg, err := json.Marshal(resp)
	if err != nil {
		d.log.ErrorContext(ctx, "dispatch.encode.fail", slog.String("err", err.Error()))
		return
	}

	if err := d.pusher.Push(ctx, sessionID, msg); err != nil {
		d.obs.PushDropped()
		if errors.Is(err, sessions.ErrSessionNotFound) || errors.Is(err, sessions.ErrStreamClosed) {
			d.log.InfoContext(ctx, "dispatch.push.drop", slog.String("session_id", sessionID), slog.String("err", err.Error()))
			return
		}
		d.log.WarnContext(ctx, "dispatch.push.fail", slog.String("session_id", sessionID), slog.String("err", err.Error()))
	}
}

func metricsOutcome(res mcpservice.Result) string {
	if res.OK() {
		return "ok"
	}
	return string(res.Failure.Kind)
}
