package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggoodman/shiprocket-mcp-go/auth"
	"github.com/ggoodman/shiprocket-mcp-go/shipping"
	"github.com/ggoodman/shiprocket-mcp-go/storage/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_PORT", "9090")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, shipping.DefaultAPIURL, cfg.APIURL)
	assert.Equal(t, 15*time.Second, cfg.Timeout)
	assert.Equal(t, cacheMemory, cfg.CacheBackend)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, authOpaque, cfg.AuthMode)
	assert.Equal(t, 25*time.Second, cfg.KeepAlive)
	assert.Equal(t, 256, cfg.MaxPendingJobs)
	assert.True(t, cfg.MetricsEnabled)
	assert.Equal(t, "json", cfg.LogHandler)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown cache":   {"CACHE_BACKEND": "disk"},
		"unknown auth":    {"AUTH_MODE": "saml"},
		"jwks needs url":  {"AUTH_MODE": "jwks"},
		"oidc needs iss":  {"AUTH_MODE": "oidc"},
		"zero cache size": {"CACHE_MAX_ITEMS": "0"},
		"bad duration":    {"CACHE_TTL": "soon"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := loadConfig()
			assert.Error(t, err)
		})
	}
}

type loginFunc func(ctx context.Context, email, password string) (string, error)

func (f loginFunc) Login(ctx context.Context, email, password string) (string, error) {
	return f(ctx, email, password)
}

func TestBootstrapCredential(t *testing.T) {
	noLogin := loginFunc(func(context.Context, string, string) (string, error) {
		t.Fatal("login should not be called")
		return "", nil
	})

	t.Run("token wins", func(t *testing.T) {
		cred, err := bootstrapCredential(context.Background(), Config{SellerToken: "tok", SellerEmail: "a@b"}, noLogin)
		require.NoError(t, err)
		assert.Equal(t, "tok", cred.Reveal())
	})

	t.Run("missing", func(t *testing.T) {
		_, err := bootstrapCredential(context.Background(), Config{SellerEmail: "a@b"}, noLogin)
		assert.ErrorContains(t, err, "SELLER_TOKEN")
	})

	t.Run("login", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body struct{ Email, Password string }
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body.Password != "pw" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"message":"Invalid email and password combination"}`))
				return
			}
			_, _ = w.Write([]byte(`{"token":"from-login"}`))
		}))
		t.Cleanup(srv.Close)
		client := shipping.New(shipping.WithAPIURL(srv.URL), shipping.WithHTTPClient(srv.Client()))

		cred, err := bootstrapCredential(context.Background(), Config{SellerEmail: "a@b", SellerPassword: "pw"}, client)
		require.NoError(t, err)
		assert.Equal(t, "from-login", cred.Reveal())

		_, err = bootstrapCredential(context.Background(), Config{SellerEmail: "a@b", SellerPassword: "nope"}, client)
		assert.ErrorContains(t, err, "seller login")
	})
}

func TestNewCache(t *testing.T) {
	ctx := context.Background()

	c, err := newCache(ctx, Config{CacheBackend: cacheNone})
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = newCache(ctx, Config{CacheBackend: cacheMemory, CacheMaxItems: 10})
	require.NoError(t, err)
	assert.IsType(t, &memory.Storage{}, c)
	require.NoError(t, c.Close())

	mr := miniredis.RunT(t)
	c, err = newCache(ctx, Config{CacheBackend: cacheRedis, RedisAddr: mr.Addr()})
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, "k", []byte("v")))
	item, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, []byte("v"), item.Data)
	require.NoError(t, c.Close())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	_, err = newCache(ctx, Config{CacheBackend: cacheRedis, RedisAddr: addr})
	assert.ErrorContains(t, err, "redis ping")
}

func TestNewAuthenticator(t *testing.T) {
	ctx := context.Background()

	a, err := newAuthenticator(ctx, Config{AuthMode: authOpaque})
	require.NoError(t, err)
	_, err = a.CheckAuthentication(ctx, "")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
	_, err = a.CheckAuthentication(ctx, "seller-token")
	assert.NoError(t, err)

	a, err = newAuthenticator(ctx, Config{AuthMode: authJWTExpiry})
	require.NoError(t, err)
	_, err = a.CheckAuthentication(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)

	missing := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(missing.Close)
	_, err = newAuthenticator(ctx, Config{AuthMode: authOIDC, AuthIssuer: missing.URL})
	assert.Error(t, err)
}

func TestProtectedResource(t *testing.T) {
	assert.Nil(t, protectedResource(Config{AuthMode: authOIDC, AuthIssuer: "https://iss"}))
	assert.Nil(t, protectedResource(Config{AuthMode: authOpaque, PublicURL: "https://mcp.example.com"}))

	pr := protectedResource(Config{AuthMode: authOIDC, AuthIssuer: "https://iss", PublicURL: "https://mcp.example.com/"})
	require.NotNil(t, pr)
	assert.Equal(t, "https://mcp.example.com/sse", pr.Resource)
	assert.Equal(t, []string{"https://iss"}, pr.AuthorizationServers)
}

func TestNewAppWiresComponents(t *testing.T) {
	cfg := Config{
		CacheBackend:   cacheNone,
		Timeout:        time.Second,
		MetricsEnabled: true,
	}
	a, err := newApp(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(a.close)

	require.NotNil(t, a.metrics)
	assert.Nil(t, a.cache)

	rec := httptest.NewRecorder()
	a.metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sessions_open")
}

func TestCommandRejectsUnknownTransport(t *testing.T) {
	t.Setenv("CACHE_BACKEND", "none")
	t.Setenv("LOG_LEVEL", "error")

	err := command().Run(context.Background(), []string{"shiprocket-mcp", "--transport", "carrier-pigeon"})
	assert.ErrorContains(t, err, "unknown transport")
}
