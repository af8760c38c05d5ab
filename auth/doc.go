// Package auth gates connection accept on the credential a client presents.
//
// An Authenticator only decides whether a session may be opened. The accepted
// credential is stored on the session unchanged and forwarded to the upstream
// API as-is; nothing in this package rewrites or exchanges it.
//
// Four implementations are provided:
//
//   - NewOpaque accepts any non-empty credential.
//   - NewJWTExpiry parses the credential as a JWT without verifying its
//     signature and rejects it once expired.
//   - NewJWKS verifies the signature against a JSON Web Key Set fetched (and
//     refreshed) from a URL.
//   - NewFromDiscovery locates the key set through OpenID Connect discovery
//     and additionally pins the issuer.
//
// Every rejection wraps ErrUnauthorized.
package auth
