package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// Option configures the JWT based authenticators.
type Option func(*config)

type config struct {
	allowedAlgs []string
	leeway      time.Duration
	issuer      string
	audiences   []string
	now         func() time.Time
}

func newConfig(opts ...Option) *config {
	cfg := &config{
		allowedAlgs: []string{"RS256"},
		leeway:      60 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithAllowedAlgs restricts the accepted JWS algorithms. Defaults to RS256.
// Ignored by NewJWTExpiry, which never checks signatures.
func WithAllowedAlgs(algs ...string) Option {
	return func(c *config) { c.allowedAlgs = append([]string(nil), algs...) }
}

// WithLeeway sets clock skew tolerance for exp/nbf.
func WithLeeway(d time.Duration) Option {
	return func(c *config) { c.leeway = d }
}

// WithIssuer requires the iss claim to match.
func WithIssuer(iss string) Option {
	return func(c *config) { c.issuer = iss }
}

// WithAudiences requires the aud claim to contain at least one of auds.
func WithAudiences(auds ...string) Option {
	return func(c *config) { c.audiences = append([]string(nil), auds...) }
}

func withClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

type expiryAuthenticator struct {
	cfg    *config
	parser *jwt.Parser
}

// NewJWTExpiry returns an Authenticator that accepts any well-formed JWT that
// has not expired. The signature is not verified.
func NewJWTExpiry(opts ...Option) Authenticator {
	cfg := newConfig(opts...)
	return &expiryAuthenticator{cfg: cfg, parser: jwt.NewParser()}
}

func (a *expiryAuthenticator) CheckAuthentication(_ context.Context, tok string) (UserInfo, error) {
	claims := jwt.MapClaims{}
	if _, _, err := a.parser.ParseUnverified(tok, claims); err != nil {
		return nil, fmt.Errorf("%w: malformed token: %v", ErrUnauthorized, err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: invalid exp claim: %v", ErrUnauthorized, err)
	}
	if exp != nil && a.cfg.now().After(exp.Add(a.cfg.leeway)) {
		return nil, fmt.Errorf("%w: token expired", ErrUnauthorized)
	}
	if err := a.cfg.checkClaims(claims); err != nil {
		return nil, err
	}

	return newUserInfo(claims), nil
}

type verifyingAuthenticator struct {
	cfg     *config
	keyfunc jwt.Keyfunc
}

// NewJWKS returns an Authenticator that verifies JWT signatures against the
// key set served at jwksURL. Keys are refreshed in the background until ctx is
// cancelled.
func NewJWKS(ctx context.Context, jwksURL string, opts ...Option) (Authenticator, error) {
	if jwksURL == "" {
		return nil, errors.New("jwks url is required")
	}
	cfg := newConfig(opts...)

	kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}

	return &verifyingAuthenticator{cfg: cfg, keyfunc: func(t *jwt.Token) (any, error) {
		if alg := t.Method.Alg(); !slices.Contains(cfg.allowedAlgs, alg) {
			return nil, fmt.Errorf("disallowed alg: %s", alg)
		}
		return kf.Keyfunc(t)
	}}, nil
}

// NewFromDiscovery performs OpenID Connect discovery against issuer and
// returns a JWKS authenticator pinned to the discovered issuer.
func NewFromDiscovery(ctx context.Context, issuer string, opts ...Option) (Authenticator, error) {
	if issuer == "" {
		return nil, errors.New("issuer is required")
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery failed: %w", err)
	}
	var meta struct {
		Issuer  string `json:"issuer"`
		JwksURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return nil, fmt.Errorf("invalid discovery metadata: %w", err)
	}
	if meta.JwksURI == "" {
		return nil, errors.New("discovery incomplete: missing jwks_uri")
	}

	return NewJWKS(ctx, meta.JwksURI, append(opts, WithIssuer(meta.Issuer))...)
}

func (a *verifyingAuthenticator) CheckAuthentication(_ context.Context, tok string) (UserInfo, error) {
	if tok == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods(a.cfg.allowedAlgs),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(a.cfg.leeway),
		jwt.WithTimeFunc(a.cfg.now),
	)
	parsed, err := parser.Parse(tok, a.keyfunc)
	if err != nil {
		return nil, fmt.Errorf("%w: token parse/verify failed: %v", ErrUnauthorized, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}
	if err := a.cfg.checkClaims(claims); err != nil {
		return nil, err
	}

	return newUserInfo(claims), nil
}

func (c *config) checkClaims(claims jwt.MapClaims) error {
	if c.issuer != "" {
		if iss, _ := claims["iss"].(string); iss != c.issuer {
			return fmt.Errorf("%w: issuer mismatch", ErrUnauthorized)
		}
	}
	if len(c.audiences) > 0 {
		aud, err := claims.GetAudience()
		if err != nil || !slices.ContainsFunc(aud, func(s string) bool { return slices.Contains(c.audiences, s) }) {
			return fmt.Errorf("%w: audience mismatch", ErrUnauthorized)
		}
	}
	return nil
}

func newUserInfo(claims jwt.MapClaims) *userInfo {
	sub, _ := claims.GetSubject()
	return &userInfo{sub: sub, claims: claims}
}
