package ssehttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/go-chi/chi/v5"

	"github.com/ggoodman/shiprocket-mcp-go/auth"
	"github.com/ggoodman/shiprocket-mcp-go/internal/engine"
	"github.com/ggoodman/shiprocket-mcp-go/internal/logctx"
	"github.com/ggoodman/shiprocket-mcp-go/internal/wellknown"
	"github.com/ggoodman/shiprocket-mcp-go/sessions"
)

var _ http.Handler = (*Handler)(nil)

var (
	jsonMediaType         = contenttype.NewMediaType("application/json")
	eventStreamMediaType  = contenttype.NewMediaType("text/event-stream")
	eventStreamMediaTypes = []contenttype.MediaType{eventStreamMediaType}
)

const (
	// TransportName identifies this transport in logs.
	TransportName = "sse"

	ssePath      = "/sse"
	messagesPath = "/messages"

	credentialParam     = "st"
	sessionIDParam      = "sessionId"
	authorizationHeader = "Authorization"

	maxMessageBytes = 4 << 20
)

// MessageHandler accepts inbound messages for a session. *engine.Engine
// implements it.
type MessageHandler interface {
	HandleMessage(ctx context.Context, sessionID string, raw []byte) error
}

// Option configures the Handler.
type Option func(*config)

type config struct {
	log       *slog.Logger
	keepAlive time.Duration
	metrics   http.Handler
	resource  *ProtectedResource
}

// ProtectedResource describes this server to OAuth clients. When set, the
// metadata document is served under /.well-known/oauth-protected-resource
// and advertised on 401 responses.
type ProtectedResource struct {
	// Resource is the absolute public URL of the SSE endpoint.
	Resource             string
	AuthorizationServers []string
	JwksURI              string
	ScopesSupported      []string
	Name                 string
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

// WithKeepAlive sets the interval between SSE comment pings. Zero disables
// them.
func WithKeepAlive(d time.Duration) Option {
	return func(c *config) { c.keepAlive = d }
}

// WithMetricsHandler serves h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(c *config) { c.metrics = h }
}

// WithProtectedResource publishes OAuth protected resource metadata.
func WithProtectedResource(pr ProtectedResource) Option {
	return func(c *config) { c.resource = &pr }
}

// Handler serves the dual-channel transport.
type Handler struct {
	router    chi.Router
	log       *slog.Logger
	transport sessions.Transport
	messages  MessageHandler
	auth      auth.Authenticator
	keepAlive time.Duration

	// resource_metadata parameter of the WWW-Authenticate challenge.
	metadataURL string
}

// New constructs a Handler. Sessions are opened and closed on transport;
// inbound messages go to messages.
func New(transport sessions.Transport, messages MessageHandler, authenticator auth.Authenticator, opts ...Option) (*Handler, error) {
	if transport == nil {
		return nil, errors.New("transport is required")
	}
	if messages == nil {
		return nil, errors.New("message handler is required")
	}
	if authenticator == nil {
		return nil, errors.New("authenticator is required")
	}

	cfg := &config{log: slog.Default(), keepAlive: 25 * time.Second}
	for _, opt := range opts {
		opt(cfg)
	}

	h := &Handler{
		log:       logctx.Wrap(cfg.log),
		transport: transport,
		messages:  messages,
		auth:      authenticator,
		keepAlive: cfg.keepAlive,
	}

	r := chi.NewRouter()
	r.Use(middlewares(h.log)...)
	r.Get(ssePath, h.handleGetSSE)
	r.Post(messagesPath, h.handlePostMessage)
	r.Get("/health-check", h.handleHealthCheck)
	if cfg.metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.metrics)
	}
	if pr := cfg.resource; pr != nil {
		u, err := wellknown.MetadataURL(pr.Resource)
		if err != nil {
			return nil, err
		}
		h.metadataURL = u.String()
		r.Get(u.Path, wellknown.Handler(wellknown.ProtectedResourceMetadata{
			Resource:               pr.Resource,
			AuthorizationServers:   pr.AuthorizationServers,
			JwksURI:                pr.JwksURI,
			ScopesSupported:        pr.ScopesSupported,
			BearerMethodsSupported: []string{"header", "query"},
			ResourceName:           pr.Name,
		}))
	}
	r.NotFound(h.handleFallback)
	r.MethodNotAllowed(h.handleFallback)
	h.router = r

	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) handleGetSSE(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes); err != nil {
		writeEnvelope(w, http.StatusNotAcceptable, false, "Client must accept text/event-stream")
		h.log.WarnContext(ctx, "http.get.unsupported_media_type")
		return
	}

	f, ok := w.(http.Flusher)
	if !ok {
		writeEnvelope(w, http.StatusInternalServerError, false, "Streaming unsupported")
		h.log.ErrorContext(ctx, "sse.flusher.missing")
		return
	}

	cred, ok := h.checkAuthentication(ctx, w, r)
	if !ok {
		return
	}

	wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: ctx}
	sess, err := h.transport.Open(ctx, cred, &sseStream{wf: wf})
	if err != nil {
		writeEnvelope(w, http.StatusInternalServerError, false, "Something went wrong")
		h.log.ErrorContext(ctx, "session.open.fail", slog.String("err", err.Error()))
		return
	}

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sess.ID(), Transport: TransportName})
	// Detached so the session is closed even though the request is done.
	defer h.transport.Close(context.WithoutCancel(ctx), sess.ID())

	w.Header().Set("Content-Type", eventStreamMediaType.String())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	endpoint := fmt.Sprintf("%s?%s=%s", messagesPath, sessionIDParam, url.QueryEscape(sess.ID()))
	if err := writeSSEEvent(wf, "endpoint", []byte(endpoint)); err != nil {
		h.log.InfoContext(ctx, "sse.endpoint.fail", slog.String("err", err.Error()))
		return
	}
	h.log.InfoContext(ctx, "sse.stream.start")

	var tick <-chan time.Time
	if h.keepAlive > 0 {
		ticker := time.NewTicker(h.keepAlive)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			h.log.InfoContext(ctx, "sse.stream.end", slog.Duration("dur", time.Since(start)))
			return
		case <-tick:
			if err := writeSSEComment(wf, "ping"); err != nil {
				h.log.InfoContext(ctx, "sse.keepalive.fail", slog.String("err", err.Error()))
				return
			}
		}
	}
}

func (h *Handler) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	sessionID := r.URL.Query().Get(sessionIDParam)
	if sessionID == "" {
		writeEnvelope(w, http.StatusBadRequest, false, "Missing sessionId parameter")
		h.log.InfoContext(ctx, "http.post.session_id.missing")
		return
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sessionID, Transport: TransportName})

	if ctype, err := contenttype.GetMediaType(r); err != nil || !ctype.Matches(jsonMediaType) {
		writeEnvelope(w, http.StatusUnsupportedMediaType, false, "Content-Type must be application/json")
		h.log.WarnContext(ctx, "content_type.unsupported")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeEnvelope(w, http.StatusRequestEntityTooLarge, false, "Payload too large")
		} else {
			writeEnvelope(w, http.StatusBadRequest, false, "Invalid JSON payload")
		}
		h.log.WarnContext(ctx, "http.post.read.fail", slog.String("err", err.Error()))
		return
	}

	err = h.messages.HandleMessage(ctx, sessionID, body)
	switch {
	case err == nil:
	case errors.Is(err, sessions.ErrSessionNotFound):
		writeEnvelope(w, http.StatusNotFound, false, "No transport found for sessionId")
		h.log.InfoContext(ctx, "session.load.miss")
		return
	case errors.Is(err, sessions.ErrQueueFull):
		w.Header().Set("Retry-After", "1")
		writeEnvelope(w, http.StatusTooManyRequests, false, "Too many pending messages")
		h.log.WarnContext(ctx, "http.post.queue_full")
		return
	case errors.Is(err, engine.ErrMalformedMessage):
		writeEnvelope(w, http.StatusBadRequest, false, "Invalid JSON payload")
		h.log.InfoContext(ctx, "jsonrpc.message.invalid", slog.String("err", err.Error()))
		return
	default:
		writeEnvelope(w, http.StatusInternalServerError, false, "Something went wrong")
		h.log.ErrorContext(ctx, "http.post.fail", slog.String("err", err.Error()))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusAccepted)
	_, _ = io.WriteString(w, "Accepted")
	h.log.InfoContext(ctx, "http.post.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
}

func (h *Handler) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, http.StatusOK, true, "All is well!!!")
}

func (h *Handler) handleFallback(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, http.StatusNotFound, false, "Looking for something?")
}

// checkAuthentication extracts the credential from the st query parameter or
// a bearer Authorization header and runs it through the authenticator. On
// failure the response has been written.
func (h *Handler) checkAuthentication(ctx context.Context, w http.ResponseWriter, r *http.Request) (sessions.Credential, bool) {
	tok := r.URL.Query().Get(credentialParam)
	if tok == "" {
		const bearerPrefix = "Bearer "
		if ah := r.Header.Get(authorizationHeader); len(ah) > len(bearerPrefix) && strings.EqualFold(ah[:len(bearerPrefix)], bearerPrefix) {
			tok = strings.TrimSpace(ah[len(bearerPrefix):])
		}
	}
	if tok == "" {
		h.challenge(w)
		writeEnvelope(w, http.StatusUnauthorized, false, "Missing credential")
		h.log.InfoContext(ctx, "auth.check.missing")
		return "", false
	}

	if _, err := h.auth.CheckAuthentication(ctx, tok); err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			h.challenge(w)
			writeEnvelope(w, http.StatusUnauthorized, false, "Invalid credential")
			h.log.InfoContext(ctx, "auth.check.fail", slog.String("err", err.Error()))
			return "", false
		}
		writeEnvelope(w, http.StatusInternalServerError, false, "Something went wrong")
		h.log.ErrorContext(ctx, "auth.check.err", slog.String("err", err.Error()))
		return "", false
	}

	h.log.InfoContext(ctx, "auth.ok")
	return sessions.Credential(tok), true
}

func (h *Handler) challenge(w http.ResponseWriter) {
	if h.metadataURL == "" {
		return
	}
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer resource_metadata=%q`, h.metadataURL))
}
