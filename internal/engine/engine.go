// Package engine turns inbound JSON-RPC messages into pushed replies. It owns
// protocol handling (initialize, ping, tools/list) and delegates tools/call to
// the Dispatcher. Transports hand every inbound message to
// Engine.HandleMessage; replies always travel over the session's stream.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ggoodman/shiprocket-mcp-go/internal/jsonrpc"
	"github.com/ggoodman/shiprocket-mcp-go/internal/logctx"
	"github.com/ggoodman/shiprocket-mcp-go/mcp"
	"github.com/ggoodman/shiprocket-mcp-go/mcpservice"
	"github.com/ggoodman/shiprocket-mcp-go/sessions"
)

// ErrMalformedMessage is returned by HandleMessage when the body is not a
// valid JSON-RPC message.
var ErrMalformedMessage = errors.New("engine: malformed message")

// Sessions is the view of the session manager the engine needs.
type Sessions interface {
	Pusher
	Lookup(sessionID string) (*sessions.Session, bool)
}

// Option configures an Engine or Dispatcher.
type Option func(*config)

type config struct {
	log          *slog.Logger
	obs          Observer
	serverInfo   mcp.ImplementationInfo
	instructions string
}

func newConfig(opts ...Option) config {
	cfg := config{
		log:        slog.Default(),
		obs:        nopObserver{},
		serverInfo: mcp.ImplementationInfo{Name: "shiprocket-mcp", Version: "dev"},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	cfg.log = logctx.Wrap(cfg.log)
	return cfg
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

// WithObserver receives dispatch outcomes.
func WithObserver(o Observer) Option {
	return func(c *config) {
		if o != nil {
			c.obs = o
		}
	}
}

// WithServerInfo sets the implementation info returned from initialize.
func WithServerInfo(info mcp.ImplementationInfo) Option {
	return func(c *config) { c.serverInfo = info }
}

// WithInstructions sets the instructions returned from initialize.
func WithInstructions(s string) Option {
	return func(c *config) { c.instructions = s }
}

// Engine handles inbound messages for every session.
type Engine struct {
	sessions     Sessions
	tools        *mcpservice.ToolRegistry
	dispatcher   *Dispatcher
	log          *slog.Logger
	serverInfo   mcp.ImplementationInfo
	instructions string
}

// NewEngine wires a Dispatcher over the given sessions and tools.
func NewEngine(sess Sessions, creds CredentialSource, tools *mcpservice.ToolRegistry, opts ...Option) *Engine {
	cfg := newConfig(opts...)
	return &Engine{
		sessions:     sess,
		tools:        tools,
		dispatcher:   NewDispatcher(tools, creds, sess, opts...),
		log:          cfg.log,
		serverInfo:   cfg.serverInfo,
		instructions: cfg.instructions,
	}
}

// Dispatcher returns the engine's dispatcher.
func (e *Engine) Dispatcher() *Dispatcher { return e.dispatcher }

// HandleMessage accepts one inbound message for sessionID. It returns
// sessions.ErrSessionNotFound for unknown sessions, ErrMalformedMessage for
// undecodable bodies and sessions.ErrQueueFull when the session has too many
// requests pending; otherwise the message has been accepted and any reply will
// be pushed to the session later. Requests for one session are processed in
// arrival order.
func (e *Engine) HandleMessage(ctx context.Context, sessionID string, raw []byte) error {
	sess, ok := e.sessions.Lookup(sessionID)
	if !ok {
		return sessions.ErrSessionNotFound
	}

	msg, err := jsonrpc.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: msg.Method, ID: msg.ID.String(), Type: msg.Type()})

	switch msg.Type() {
	case "response":
		e.log.DebugContext(ctx, "engine.handle_response.ignored")
		return nil
	case "notification":
		e.handleNotification(ctx, msg.AsRequest())
		return nil
	}

	req := msg.AsRequest()
	jobCtx := context.WithoutCancel(ctx)
	if err := sess.Enqueue(func() {
		e.handleRequest(jobCtx, sessionID, req)
	}); err != nil {
		e.log.WarnContext(ctx, "engine.enqueue.fail", slog.String("err", err.Error()))
		return err
	}
	return nil
}

// RejectMalformed queues a parse error response for sessionID behind any
// replies still pending. Transports without a synchronous error channel use it
// after HandleMessage returns ErrMalformedMessage.
func (e *Engine) RejectMalformed(ctx context.Context, sessionID string) {
	sess, ok := e.sessions.Lookup(sessionID)
	if !ok {
		return
	}
	jobCtx := context.WithoutCancel(ctx)
	if err := sess.Enqueue(func() {
		e.dispatcher.push(jobCtx, sessionID, jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeParseError, "parse error", nil))
	}); err != nil {
		e.log.WarnContext(ctx, "engine.reject_malformed.drop", slog.String("err", err.Error()))
	}
}

func (e *Engine) handleNotification(ctx context.Context, note *jsonrpc.Request) {
	switch mcp.Method(note.Method) {
	case mcp.InitializedNotificationMethod:
		e.log.InfoContext(ctx, "engine.session.initialized")
	case mcp.CancelledNotificationMethod:
		// In-flight handlers run to completion; the late reply is harmless.
		e.log.DebugContext(ctx, "engine.handle_notification.cancelled")
	default:
		e.log.DebugContext(ctx, "engine.handle_notification.ignored", slog.String("method", note.Method))
	}
}

func (e *Engine) handleRequest(ctx context.Context, sessionID string, req *jsonrpc.Request) {
	start := time.Now()
	log := e.log.With(slog.String("method", req.Method))

	var resp *jsonrpc.Response
	switch mcp.Method(req.Method) {
	case mcp.InitializeMethod:
		resp = e.handleInitialize(ctx, log, req)
	case mcp.PingMethod:
		resp = e.result(ctx, log, req, &mcp.EmptyResult{})
	case mcp.ToolsListMethod:
		resp = e.result(ctx, log, req, &mcp.ListToolsResult{Tools: e.tools.List()})
	case mcp.ToolsCallMethod:
		e.handleToolCall(ctx, log, sessionID, req)
		return
	default:
		log.InfoContext(ctx, "engine.handle_request.unsupported")
		resp = jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "method not found", nil)
	}

	log.InfoContext(ctx, "engine.handle_request.done", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	e.dispatcher.push(ctx, sessionID, resp)
}

func (e *Engine) handleInitialize(ctx context.Context, log *slog.Logger, req *jsonrpc.Request) *jsonrpc.Response {
	var params mcp.InitializeRequest
	if err := unmarshalParams(req.Params, &params); err != nil {
		log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil)
	}

	version := mcp.LatestProtocolVersion
	if mcp.IsSupportedProtocolVersion(params.ProtocolVersion) {
		version = params.ProtocolVersion
	}

	result := &mcp.InitializeResult{
		ProtocolVersion: version,
		ServerInfo:      e.serverInfo,
		Instructions:    e.instructions,
	}
	result.Capabilities.Tools = &struct {
		ListChanged bool `json:"listChanged"`
	}{}

	log.InfoContext(ctx, "engine.initialize.ok",
		slog.String("client", params.ClientInfo.Name),
		slog.String("protocol_version", version))
	return e.result(ctx, log, req, result)
}

func (e *Engine) handleToolCall(ctx context.Context, log *slog.Logger, sessionID string, req *jsonrpc.Request) {
	var params mcp.CallToolRequestReceived
	if err := unmarshalParams(req.Params, &params); err != nil || params.Name == "" {
		log.InfoContext(ctx, "engine.handle_request.invalid")
		e.dispatcher.push(ctx, sessionID, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil))
		return
	}

	e.dispatcher.Dispatch(ctx, Invocation{
		SessionID: sessionID,
		ToolName:  params.Name,
		Payload:   params.Arguments,
		RequestID: req.ID,
	})
}

func (e *Engine) result(ctx context.Context, log *slog.Logger, req *jsonrpc.Request, v any) *jsonrpc.Response {
	resp, err := jsonrpc.NewResultResponse(req.ID, v)
	if err != nil {
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}
	return resp
}

func unmarshalParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}
