package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"

	"github.com/ggoodman/shiprocket-mcp-go/auth"
	"github.com/ggoodman/shiprocket-mcp-go/internal/engine"
	"github.com/ggoodman/shiprocket-mcp-go/internal/logging"
	"github.com/ggoodman/shiprocket-mcp-go/internal/metrics"
	"github.com/ggoodman/shiprocket-mcp-go/mcp"
	"github.com/ggoodman/shiprocket-mcp-go/sessions"
	"github.com/ggoodman/shiprocket-mcp-go/shipping"
	"github.com/ggoodman/shiprocket-mcp-go/shiptools"
	"github.com/ggoodman/shiprocket-mcp-go/ssehttp"
	"github.com/ggoodman/shiprocket-mcp-go/stdio"
	"github.com/ggoodman/shiprocket-mcp-go/storage"
	"github.com/ggoodman/shiprocket-mcp-go/storage/memory"
	rediscache "github.com/ggoodman/shiprocket-mcp-go/storage/redis"
)

const (
	instructions    = "Track Shiprocket shipments by tracking ID and compare courier rates between two postcodes."
	shutdownTimeout = 10 * time.Second
)

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// stdout belongs to the stdio protocol, so logs always go to stderr.
	log := logging.New(os.Stderr, cfg.LogHandler, cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	switch transport := cmd.String("transport"); transport {
	case transportSSE:
		addr := cmd.String("addr")
		if addr == "" {
			addr = fmt.Sprintf(":%d", cfg.Port)
		}
		return a.serveSSE(ctx, addr)
	case transportStdio:
		return a.serveStdio(ctx)
	default:
		return fmt.Errorf("unknown transport %q", transport)
	}
}

// app holds the wired components shared by both transports.
type app struct {
	cfg      Config
	log      *slog.Logger
	mgr      *sessions.Manager
	eng      *engine.Engine
	metrics  *metrics.Metrics
	shipping *shipping.Client
	cache    storage.Storage
}

func newApp(ctx context.Context, cfg Config, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}
	reg := sessions.NewRegistry(
		sessions.WithMaxPendingJobs(cfg.MaxPendingJobs),
		sessions.WithJobLogger(log),
	)
	a.mgr = sessions.NewManager(sessions.WithLogger(log), sessions.WithRegistry(reg))
	if cfg.MetricsEnabled {
		a.metrics = metrics.New(a.mgr.Registry().Len)
	}

	cache, err := newCache(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.cache = cache

	shipOpts := []shipping.Option{
		shipping.WithHTTPClient(&http.Client{
			Timeout:   cfg.Timeout,
			Transport: a.metrics.InstrumentTransport(http.DefaultTransport),
		}),
		shipping.WithAPIURL(cfg.APIURL),
		shipping.WithServiceabilityURL(cfg.ServiceabilityURL),
		shipping.WithLogger(log),
	}
	if cache != nil {
		shipOpts = append(shipOpts, shipping.WithCache(cache, cfg.CacheTTL))
	}
	a.shipping = shipping.New(shipOpts...)

	tools, err := shiptools.NewRegistry(a.shipping, shiptools.WithLogger(log))
	if err != nil {
		a.close()
		return nil, fmt.Errorf("build tools: %w", err)
	}

	engOpts := []engine.Option{
		engine.WithLogger(log),
		engine.WithServerInfo(mcp.ImplementationInfo{Name: "shiprocket-mcp", Version: version}),
		engine.WithInstructions(instructions),
	}
	if a.metrics != nil {
		engOpts = append(engOpts, engine.WithObserver(a.metrics))
	}
	a.eng = engine.NewEngine(a.mgr, a.mgr.Registry(), tools, engOpts...)

	return a, nil
}

func (a *app) close() {
	a.mgr.CloseAll(context.Background())
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn("cache.close.fail", slog.String("err", err.Error()))
		}
	}
}

func (a *app) serveSSE(ctx context.Context, addr string) error {
	authenticator, err := newAuthenticator(ctx, a.cfg)
	if err != nil {
		return err
	}

	opts := []ssehttp.Option{
		ssehttp.WithLogger(a.log),
		ssehttp.WithKeepAlive(a.cfg.KeepAlive),
	}
	if a.metrics != nil {
		opts = append(opts, ssehttp.WithMetricsHandler(a.metrics.Handler()))
	}
	if pr := protectedResource(a.cfg); pr != nil {
		opts = append(opts, ssehttp.WithProtectedResource(*pr))
	}
	h, err := ssehttp.New(a.mgr, a.eng, authenticator, opts...)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		// Request contexts end with ctx so open SSE streams unwind on shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		a.log.Info("http.listen", slog.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	a.log.Info("http.shutdown.start")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	a.log.Info("http.shutdown.ok")
	return nil
}

func (a *app) serveStdio(ctx context.Context) error {
	cred, err := bootstrapCredential(ctx, a.cfg, a.shipping)
	if err != nil {
		return err
	}

	h := stdio.NewHandler(a.mgr, a.eng, cred, stdio.WithLogger(a.log))
	if err := h.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// loginer is satisfied by *shipping.Client.
type loginer interface {
	Login(ctx context.Context, email, password string) (string, error)
}

// bootstrapCredential resolves the stdio session credential: SELLER_TOKEN
// when set, otherwise a token obtained by logging in with SELLER_EMAIL and
// SELLER_PASSWORD.
func bootstrapCredential(ctx context.Context, cfg Config, l loginer) (sessions.Credential, error) {
	if cfg.SellerToken != "" {
		return sessions.Credential(cfg.SellerToken), nil
	}
	if cfg.SellerEmail == "" || cfg.SellerPassword == "" {
		return "", errors.New("stdio transport requires SELLER_TOKEN or SELLER_EMAIL and SELLER_PASSWORD")
	}
	tok, err := l.Login(ctx, cfg.SellerEmail, cfg.SellerPassword)
	if err != nil {
		return "", fmt.Errorf("seller login: %w", err)
	}
	return sessions.Credential(tok), nil
}

// protectedResource returns the metadata advertised to OAuth clients, or nil
// when PUBLIC_URL is unset or the credentials are not issuer-backed JWTs.
func protectedResource(cfg Config) *ssehttp.ProtectedResource {
	if cfg.PublicURL == "" || (cfg.AuthMode != authJWKS && cfg.AuthMode != authOIDC) {
		return nil
	}
	pr := &ssehttp.ProtectedResource{
		Resource: strings.TrimRight(cfg.PublicURL, "/") + "/sse",
		JwksURI:  cfg.AuthJWKSURL,
		Name:     "shiprocket-mcp",
	}
	if cfg.AuthIssuer != "" {
		pr.AuthorizationServers = []string{cfg.AuthIssuer}
	}
	return pr
}

func newCache(ctx context.Context, cfg Config) (storage.Storage, error) {
	switch cfg.CacheBackend {
	case cacheNone:
		return nil, nil
	case cacheRedis:
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return rediscache.New(rediscache.Config{Client: client})
	default:
		return memory.New(cfg.CacheMaxItems)
	}
}

func newAuthenticator(ctx context.Context, cfg Config) (auth.Authenticator, error) {
	var opts []auth.Option
	if cfg.AuthIssuer != "" && cfg.AuthMode != authOIDC {
		opts = append(opts, auth.WithIssuer(cfg.AuthIssuer))
	}

	switch cfg.AuthMode {
	case authJWTExpiry:
		return auth.NewJWTExpiry(opts...), nil
	case authJWKS:
		return auth.NewJWKS(ctx, cfg.AuthJWKSURL, opts...)
	case authOIDC:
		return auth.NewFromDiscovery(ctx, cfg.AuthIssuer, opts...)
	default:
		return auth.NewOpaque(), nil
	}
}
